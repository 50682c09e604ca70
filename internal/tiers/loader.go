package tiers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

type DocumentReader interface {
	Read(ctx context.Context, name string) ([]byte, error)
}

type Loader struct {
	docs DocumentReader
	name string
}

func NewLoader(docs DocumentReader, name string) *Loader {
	return &Loader{docs: docs, name: name}
}

// Load returns the tier table from the document, or DefaultTable with a
// warning when the document is absent, unparsable or has any invalid tier.
func (l *Loader) Load(ctx context.Context) (Table, error) {
	data, err := l.docs.Read(ctx, l.name)
	if err != nil {
		return DefaultTable(), fmt.Errorf("failed to read tier document %s: %w", l.name, err)
	}
	return Parse(data)
}

// Parse decodes a tier document. Both max_karma and maxKarma are accepted so
// JSON exported from the app settings can be pasted in unchanged.
func Parse(data []byte) (Table, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return DefaultTable(), fmt.Errorf("failed to parse tier document: %w", err)
	}

	if doc.Kind == 0 || len(doc.Content) == 0 || doc.Content[0].Tag == "!!null" {
		return DefaultTable(), nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.SequenceNode {
		return DefaultTable(), errors.New("tier document must be a list")
	}

	tiers := make([]Tier, 0, len(root.Content))
	var warnings []error
	for i, item := range root.Content {
		tier, err := parseTier(item)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("tier #%d: %w", i+1, err))
			continue
		}
		tiers = append(tiers, tier)
	}

	if len(warnings) > 0 {
		warnings = append(warnings, errors.New("invalid tier document, using defaults"))
		return DefaultTable(), errors.Join(warnings...)
	}
	if len(tiers) == 0 {
		return DefaultTable(), errors.New("no usable tiers, using defaults")
	}

	return NewTable(tiers), nil
}

func parseTier(node *yaml.Node) (Tier, error) {
	if node.Kind != yaml.MappingNode {
		return Tier{}, errors.New("expected a mapping")
	}

	tier := Tier{MaxKarma: 0, Limit: 1}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		switch key {
		case "max_karma", "maxKarma":
			raw := value.Value
			if value.Tag == "!!null" {
				raw = ""
			}
			ceiling, ok := parseCeiling(raw)
			if !ok {
				return Tier{}, fmt.Errorf("invalid max_karma %q", value.Value)
			}
			tier.MaxKarma = ceiling
		case "limit":
			limit, err := strconv.Atoi(value.Value)
			if err != nil {
				return Tier{}, fmt.Errorf("invalid limit %q", value.Value)
			}
			if limit < 1 {
				return Tier{}, fmt.Errorf("limit must be positive, got %d", limit)
			}
			tier.Limit = limit
		}
	}
	return tier, nil
}
