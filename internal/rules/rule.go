package rules

import (
	"strings"
)

type Action string

const (
	ActionFilter Action = "filter"
	ActionSpam   Action = "spam"
)

const (
	placeholderKind  = "{{kind}}"
	placeholderMatch = "{{match}}"
	submissionKind   = "submission"
)

// Rule is one moderation policy entry. Triggers keep the order in which they
// appear in the document.
type Rule struct {
	Name          string
	Triggers      []Trigger
	Action        Action
	Message       string
	HasMessage    bool
	AllowApproval bool
}

// Trigger pairs a field selector with the patterns tested against it.
type Trigger struct {
	Key      string
	Selector Selector
	Patterns []string
}

type RuleSet []Rule

func (r Rule) IsSpam() bool {
	return r.Action == ActionSpam
}

// ActionType is the audit tag for a removal by this rule. Dashboards group and
// search on it, so the derivation must stay stable.
func (r Rule) ActionType() string {
	return RulePrefix + strings.ToUpper(strings.ReplaceAll(r.Name, " ", "_"))
}

// RenderMessage fills the reply template with the matched pattern.
func (r Rule) RenderMessage(pattern string) string {
	msg := strings.ReplaceAll(r.Message, placeholderKind, submissionKind)
	return strings.ReplaceAll(msg, placeholderMatch, pattern)
}
