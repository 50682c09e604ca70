package rules

import (
	"strings"
)

type MatchMode int

const (
	ModeSubstring MatchMode = iota
	ModeRegex
	ModeStartsWith
)

func (m MatchMode) String() string {
	switch m {
	case ModeRegex:
		return "regex"
	case ModeStartsWith:
		return "starts-with"
	default:
		return "substring"
	}
}

const (
	FieldTitle    = "title"
	FieldBody     = "body"
	FieldDomain   = "domain"
	FieldCombined = "combined"
)

const (
	tagRegex      = "(regex)"
	tagStartsWith = "(starts-with)"
)

// Selector is a parsed trigger key such as "title+body (regex)".
type Selector struct {
	Fields []string
	Mode   MatchMode
}

// ParseSelector splits a trigger key into field names and a match mode.
// A key carrying both tags is treated as regex.
func ParseSelector(key string) Selector {
	mode := ModeSubstring
	switch {
	case strings.Contains(key, tagRegex):
		mode = ModeRegex
		key = strings.ReplaceAll(key, tagRegex, "")
	case strings.Contains(key, tagStartsWith):
		mode = ModeStartsWith
		key = strings.ReplaceAll(key, tagStartsWith, "")
	}

	parts := strings.Split(strings.TrimSpace(key), "+")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		fields = append(fields, strings.TrimSpace(p))
	}

	return Selector{Fields: fields, Mode: mode}
}
