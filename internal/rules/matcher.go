package rules

import (
	"regexp"
	"strings"
)

// Fields holds the text of one submission addressed by selectors.
type Fields struct {
	Title  string
	Body   string
	Domain string
}

// Text resolves a logical field name. Unknown names resolve to "" and are
// therefore never matched.
func (f Fields) Text(name string) string {
	switch name {
	case FieldTitle:
		return f.Title
	case FieldBody:
		return f.Body
	case FieldDomain:
		return f.Domain
	case FieldCombined:
		return f.Title + " " + f.Body
	default:
		return ""
	}
}

// Match is the outcome of evaluating a RuleSet. The zero value is NoMatch.
type Match struct {
	Rule    *Rule
	Pattern string
	Field   string
}

var NoMatch = Match{}

func (m Match) Matched() bool {
	return m.Rule != nil
}

// PatternError describes a regex trigger pattern that failed to compile.
type PatternError struct {
	Rule    string
	Key     string
	Pattern string
	Err     error
}

func (e PatternError) Error() string {
	return "rule " + e.Rule + ": invalid pattern " + e.Pattern + " for " + e.Key + ": " + e.Err.Error()
}

type Matcher struct {
	onInvalidPattern func(PatternError)
}

type MatcherOption func(*Matcher)

// WithInvalidPatternHandler registers a callback for patterns that cannot be
// compiled. Evaluation continues with the next pattern regardless.
func WithInvalidPatternHandler(fn func(PatternError)) MatcherOption {
	return func(m *Matcher) {
		m.onInvalidPattern = fn
	}
}

func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Evaluate returns the first rule, in document order, with a trigger that
// hits the submission. Within a trigger, fields are scanned in selector order
// and patterns in list order; the first hit wins.
func Evaluate(fields Fields, set RuleSet) Match {
	return NewMatcher().Evaluate(fields, set)
}

func (m *Matcher) Evaluate(fields Fields, set RuleSet) Match {
	// compiled regexes live for one evaluation so edits to the document
	// take effect on the next submission
	compiled := make(map[string]*regexp.Regexp)

	for i := range set {
		rule := &set[i]
		for _, trigger := range rule.Triggers {
			if field, pattern, ok := m.evaluateTrigger(rule, trigger, fields, compiled); ok {
				return Match{Rule: rule, Pattern: pattern, Field: field}
			}
		}
	}
	return NoMatch
}

func (m *Matcher) evaluateTrigger(rule *Rule, trigger Trigger, fields Fields, compiled map[string]*regexp.Regexp) (string, string, bool) {
	for _, field := range trigger.Selector.Fields {
		text := fields.Text(field)
		if text == "" {
			continue
		}

		lowered := strings.ToLower(text)
		for _, pattern := range trigger.Patterns {
			var hit bool
			switch trigger.Selector.Mode {
			case ModeRegex:
				re := m.compile(rule, trigger, pattern, compiled)
				hit = re != nil && re.MatchString(text)
			case ModeStartsWith:
				hit = strings.HasPrefix(lowered, strings.ToLower(pattern))
			default:
				hit = strings.Contains(lowered, strings.ToLower(pattern))
			}
			if hit {
				return field, pattern, true
			}
		}
	}
	return "", "", false
}

func (m *Matcher) compile(rule *Rule, trigger Trigger, pattern string, compiled map[string]*regexp.Regexp) *regexp.Regexp {
	if re, ok := compiled[pattern]; ok {
		return re
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		re = nil
		if m.onInvalidPattern != nil {
			m.onInvalidPattern(PatternError{Rule: rule.Name, Key: trigger.Key, Pattern: pattern, Err: err})
		}
	}
	compiled[pattern] = re
	return re
}
