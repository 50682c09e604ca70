package rules

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DocumentReader fetches the raw bytes of a named configuration document.
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

// Load reads and parses the rule document. It never fails hard: when the
// document is missing or unparsable it returns an empty RuleSet together with
// a warning, and the caller proceeds as if no rule matched.
func (l *Loader) Load(ctx context.Context) (RuleSet, error) {
	data, err := l.docs.Read(ctx, l.name)
	if err != nil {
		return RuleSet{}, fmt.Errorf("failed to read rule document %s: %w", l.name, err)
	}
	return Parse(data)
}

// Parse decodes a rule document. Entries that are not mappings are skipped and
// reported in the returned error; the remaining rules are still returned.
func Parse(data []byte) (RuleSet, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return RuleSet{}, fmt.Errorf("failed to parse rule document: %w", err)
	}

	if doc.Kind == 0 || len(doc.Content) == 0 {
		return RuleSet{}, nil
	}

	root := doc.Content[0]
	if root.Tag == "!!null" {
		return RuleSet{}, nil
	}
	if root.Kind != yaml.SequenceNode {
		return RuleSet{}, fmt.Errorf("rule document must be a list, got %s", kindName(root))
	}

	set := make(RuleSet, 0, len(root.Content))
	var warnings []error
	for i, item := range root.Content {
		if item.Kind != yaml.MappingNode {
			warnings = append(warnings, fmt.Errorf("rule #%d: expected a mapping, got %s", i+1, kindName(item)))
			continue
		}
		rule, ruleWarnings := parseRule(item)
		for _, w := range ruleWarnings {
			warnings = append(warnings, fmt.Errorf("rule #%d (%s): %w", i+1, rule.Name, w))
		}
		set = append(set, rule)
	}

	return set, errors.Join(warnings...)
}

func parseRule(node *yaml.Node) (Rule, []error) {
	rule := Rule{
		Action:        ActionFilter,
		AllowApproval: true,
	}
	var warnings []error

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "name":
			rule.Name = scalarString(value)
		case "triggers":
			triggers, errs := parseTriggers(value)
			rule.Triggers = triggers
			warnings = append(warnings, errs...)
		case "action":
			switch Action(scalarString(value)) {
			case ActionSpam:
				rule.Action = ActionSpam
			case ActionFilter:
			default:
				warnings = append(warnings, fmt.Errorf("unknown action %q, using filter", value.Value))
			}
		case "message":
			if value.Kind == yaml.ScalarNode && value.Tag != "!!null" {
				rule.Message = value.Value
				rule.HasMessage = true
			}
		case "allow_approval":
			allow, err := strconv.ParseBool(value.Value)
			if err != nil || value.Kind != yaml.ScalarNode {
				warnings = append(warnings, fmt.Errorf("allow_approval %q is not a boolean, using true", value.Value))
				continue
			}
			rule.AllowApproval = allow
		}
	}

	return rule, warnings
}

func parseTriggers(node *yaml.Node) ([]Trigger, []error) {
	if node.Kind != yaml.MappingNode {
		if node.Tag == "!!null" {
			return nil, nil
		}
		return nil, []error{fmt.Errorf("triggers must be a mapping, got %s", kindName(node))}
	}

	triggers := make([]Trigger, 0, len(node.Content)/2)
	var warnings []error
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]

		var patterns []string
		switch value.Kind {
		case yaml.ScalarNode:
			if value.Tag != "!!null" {
				patterns = []string{value.Value}
			}
		case yaml.SequenceNode:
			for _, p := range value.Content {
				if p.Kind != yaml.ScalarNode || p.Tag == "!!null" {
					warnings = append(warnings, fmt.Errorf("trigger %q: skipping non-scalar pattern", key))
					continue
				}
				patterns = append(patterns, p.Value)
			}
		default:
			warnings = append(warnings, fmt.Errorf("trigger %q: patterns must be a string or a list", key))
			continue
		}

		triggers = append(triggers, Trigger{
			Key:      key,
			Selector: ParseSelector(key),
			Patterns: patterns,
		})
	}
	return triggers, warnings
}

func scalarString(node *yaml.Node) string {
	if node.Kind != yaml.ScalarNode || node.Tag == "!!null" {
		return ""
	}
	return node.Value
}

func kindName(node *yaml.Node) string {
	switch node.Kind {
	case yaml.SequenceNode:
		return "list"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "document"
	}
}
