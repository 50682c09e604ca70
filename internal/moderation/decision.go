package moderation

import (
	"fmt"
	"time"

	"tierguard/internal/platform"
	"tierguard/internal/rules"
	"tierguard/pkg/models"
)

type Verdict string

const (
	// VerdictSkipped covers anonymous authors and moderators. Nothing is
	// recorded for them.
	VerdictSkipped     Verdict = "skipped"
	VerdictMatchedRule Verdict = "matched_rule"
	VerdictRateLimited Verdict = "rate_limited"
	VerdictAllowed     Verdict = "allowed"
)

const (
	SkipAnonymous = "anonymous"
	SkipModerator = "moderator"
)

// Decision is the terminal state reached for one submission. Karma, Limit
// and Count are only set once rate limiting ran.
type Decision struct {
	Verdict    Verdict
	Submission platform.Submission
	SkipReason string

	Rule    *rules.Rule
	Pattern string
	Field   string

	Karma int64
	Limit int
	Count int

	ActionType string
	Reversible bool
	DryRun     bool
	DecidedAt  time.Time
}

// Removed reports whether the submission was taken down.
func (d Decision) Removed() bool {
	return d.Verdict == VerdictMatchedRule || d.Verdict == VerdictRateLimited
}

func (d Decision) String() string {
	switch d.Verdict {
	case VerdictMatchedRule:
		return fmt.Sprintf("%s: rule %q matched %q", d.Verdict, d.Rule.Name, d.Pattern)
	case VerdictRateLimited, VerdictAllowed:
		return fmt.Sprintf("%s: karma %d, %d/%d posts", d.Verdict, d.Karma, d.Count, d.Limit)
	case VerdictSkipped:
		return fmt.Sprintf("%s: %s", d.Verdict, d.SkipReason)
	default:
		return string(d.Verdict)
	}
}

func (d Decision) Event() models.DecisionEvent {
	event := models.DecisionEvent{
		SubmissionID: d.Submission.ID,
		Author:       d.Submission.Author,
		Verdict:      string(d.Verdict),
		Pattern:      d.Pattern,
		Karma:        d.Karma,
		Limit:        d.Limit,
		Count:        d.Count,
		ActionType:   d.ActionType,
		Reversible:   d.Reversible,
		DryRun:       d.DryRun,
		DecidedAt:    d.DecidedAt,
	}
	if d.Rule != nil {
		event.Rule = d.Rule.Name
	}
	return event
}
