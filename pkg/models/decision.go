package models

import "time"

// DecisionEvent is published once per processed submission.
type DecisionEvent struct {
	SubmissionID string    `json:"submission_id"`
	Author       string    `json:"author"`
	Verdict      string    `json:"verdict"`
	Rule         string    `json:"rule,omitempty"`
	Pattern      string    `json:"pattern,omitempty"`
	Karma        int64     `json:"karma"`
	Limit        int       `json:"limit,omitempty"`
	Count        int       `json:"count,omitempty"`
	ActionType   string    `json:"action_type,omitempty"`
	Reversible   bool      `json:"reversible"`
	DryRun       bool      `json:"dry_run"`
	DecidedAt    time.Time `json:"decided_at"`
}
