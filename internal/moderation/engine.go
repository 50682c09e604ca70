// Package moderation decides what happens to each incoming submission: skip,
// remove by rule, remove by rate limit, or allow.
package moderation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"tierguard/internal/audit"
	"tierguard/internal/logger"
	"tierguard/internal/platform"
	"tierguard/internal/rules"
	"tierguard/internal/window"
	"tierguard/pkg/logging"
	"tierguard/pkg/metrics"
	"tierguard/pkg/models"
	"tierguard/pkg/tracing"
)

type AuditAppender interface {
	Append(ctx context.Context, rec *audit.Record) error
}

type DecisionPublisher interface {
	PublishDecision(ctx context.Context, event models.DecisionEvent) error
}

// Deps are the collaborators every Engine needs.
type Deps struct {
	Policy     PolicySource
	Window     window.Store
	Karma      platform.KarmaFetcher
	Moderators platform.ModeratorChecker
	Actions    platform.Actions
	Audit      AuditAppender
}

type Option func(*Engine)

// WithDryRun swaps the platform actions for logging stand-ins and prefixes
// audit action types with TEST_.
func WithDryRun(dryRun bool) Option {
	return func(e *Engine) {
		e.dryRun = dryRun
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithPublisher(p DecisionPublisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

type Engine struct {
	policy     PolicySource
	window     window.Store
	karma      platform.KarmaFetcher
	moderators platform.ModeratorChecker
	actions    platform.Actions
	audit      AuditAppender
	publisher  DecisionPublisher
	matcher    *rules.Matcher
	dryRun     bool
	now        func() time.Time
	log        logger.Logger
}

func NewEngine(deps Deps, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		policy:     deps.Policy,
		window:     deps.Window,
		karma:      deps.Karma,
		moderators: deps.Moderators,
		actions:    deps.Actions,
		audit:      deps.Audit,
		now:        time.Now,
		log:        log.Named("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.dryRun {
		e.actions = platform.NewDryRunActions(log)
	}
	e.matcher = rules.NewMatcher(rules.WithInvalidPatternHandler(func(pe rules.PatternError) {
		e.log.Warnw("Invalid pattern treated as non-matching",
			"rule", pe.Rule,
			"trigger", pe.Key,
			"pattern", pe.Pattern,
			"error", pe.Err,
		)
	}))
	return e
}

// Decide runs one submission through the state machine. An error means the
// window store failed; the submission may be retried. Action and audit
// failures are logged and do not fail the decision.
func (e *Engine) Decide(ctx context.Context, sub platform.Submission) (Decision, error) {
	ctx = logging.WithSubmissionID(ctx, sub.ID)
	ctx = logging.WithAuthor(ctx, sub.Author)
	ctx, span := tracing.StartSpan(ctx, "moderation.decide",
		attribute.String("submission.id", sub.ID),
	)
	defer span.End()

	start := time.Now()
	decision, err := e.decide(ctx, sub)
	if err != nil {
		tracing.RecordError(span, err)
		metrics.IncCollaboratorError("window")
		return decision, err
	}

	span.SetAttributes(attribute.String("moderation.verdict", string(decision.Verdict)))
	metrics.ObserveDecision(string(decision.Verdict), time.Since(start))
	e.log.InfowCtx(ctx, "Submission decided",
		"verdict", decision.Verdict,
		"action_type", decision.ActionType,
		"karma", decision.Karma,
		"count", decision.Count,
		"limit", decision.Limit,
	)
	e.publish(ctx, decision)
	return decision, nil
}

func (e *Engine) decide(ctx context.Context, sub platform.Submission) (Decision, error) {
	now := e.now()
	d := Decision{Submission: sub, DryRun: e.dryRun, DecidedAt: now}

	if sub.Anonymous() {
		d.Verdict, d.SkipReason = VerdictSkipped, SkipAnonymous
		return d, nil
	}

	if e.isModerator(ctx, sub.Author) {
		d.Verdict, d.SkipReason = VerdictSkipped, SkipModerator
		return d, nil
	}

	policy := e.policy.Load(ctx)

	if match := e.evaluate(ctx, sub, policy.Rules); match.Matched() {
		e.removeByRule(ctx, &d, match)
		return d, nil
	}

	if _, err := e.window.Prune(ctx, now); err != nil {
		return d, fmt.Errorf("failed to prune post window: %w", err)
	}

	d.Karma = e.fetchKarma(ctx, sub.Author)
	d.Limit = policy.Tiers.LimitFor(d.Karma)

	count, err := e.window.Count(ctx, sub.Author)
	if err != nil {
		return d, fmt.Errorf("failed to count posts for %s: %w", sub.Author, err)
	}
	d.Count = count

	if count >= d.Limit {
		e.removeByLimit(ctx, &d)
		return d, nil
	}

	if err := e.window.Record(ctx, sub.Author, now); err != nil {
		return d, fmt.Errorf("failed to record post for %s: %w", sub.Author, err)
	}
	d.Verdict = VerdictAllowed
	return d, nil
}

func (e *Engine) evaluate(ctx context.Context, sub platform.Submission, set rules.RuleSet) rules.Match {
	_, span := tracing.StartSpan(ctx, "rules.evaluate", attribute.Int("rules.count", len(set)))
	defer span.End()

	match := e.matcher.Evaluate(sub.Fields(), set)
	if match.Matched() {
		span.SetAttributes(attribute.String("rules.matched", match.Rule.Name))
	}
	return match
}

func (e *Engine) isModerator(ctx context.Context, identity string) bool {
	ok, err := e.moderators.IsModerator(ctx, identity)
	if err != nil {
		metrics.IncCollaboratorError("moderators")
		e.log.WarnwCtx(ctx, "Moderator check failed, treating author as a regular user",
			"error", err,
		)
		return false
	}
	return ok
}

// fetchKarma falls back to zero, the strictest tier, when the lookup fails.
func (e *Engine) fetchKarma(ctx context.Context, identity string) int64 {
	karma, err := e.karma.Karma(ctx, identity)
	if err != nil {
		metrics.IncCollaboratorError("karma")
		e.log.WarnwCtx(ctx, "Karma lookup failed, assuming zero",
			"error", err,
		)
		return 0
	}
	return karma
}

func (e *Engine) removeByRule(ctx context.Context, d *Decision, match rules.Match) {
	rule := match.Rule
	d.Verdict = VerdictMatchedRule
	d.Rule = rule
	d.Pattern = match.Pattern
	d.Field = match.Field
	d.ActionType = rules.WithDryRun(rule.ActionType(), e.dryRun)
	d.Reversible = rule.AllowApproval
	metrics.IncRuleHit(rule.Name)

	var reply string
	if rule.HasMessage {
		reply = rule.RenderMessage(match.Pattern)
	}
	e.takeDown(ctx, d.Submission.ID, rule.IsSpam(), rule.Name, reply)
	e.appendAudit(ctx, d, audit.MatchDetails(match.Pattern))
}

func (e *Engine) removeByLimit(ctx context.Context, d *Decision) {
	d.Verdict = VerdictRateLimited
	d.ActionType = rules.WithDryRun(rules.RateLimitActionType, e.dryRun)
	d.Reversible = true

	reply := rateLimitReply(d.Submission.Author, d.Karma, d.Limit)
	e.takeDown(ctx, d.Submission.ID, false, rateLimitNote, reply)
	e.appendAudit(ctx, d, audit.LimitDetails(d.Karma, d.Limit))
}

// takeDown removes the submission and, when reply is non-empty, posts a
// stickied reply. A failed removal skips the reply.
func (e *Engine) takeDown(ctx context.Context, submissionID string, spam bool, note, reply string) {
	if err := e.actions.Remove(ctx, submissionID, spam, note); err != nil {
		metrics.IncCollaboratorError("remove")
		e.log.ErrorwCtx(ctx, "Failed to remove submission", "error", err)
		return
	}
	if reply == "" {
		return
	}
	if err := e.actions.Reply(ctx, submissionID, reply, true); err != nil {
		metrics.IncCollaboratorError("reply")
		e.log.ErrorwCtx(ctx, "Failed to reply to submission", "error", err)
	}
}

func (e *Engine) appendAudit(ctx context.Context, d *Decision, details string) {
	rec := &audit.Record{
		ActionType:   d.ActionType,
		Identity:     d.Submission.Author,
		Details:      details,
		Timestamp:    d.DecidedAt,
		SubmissionID: d.Submission.ID,
		Reversible:   d.Reversible,
	}
	if err := e.audit.Append(ctx, rec); err != nil {
		metrics.IncCollaboratorError("audit")
		e.log.ErrorwCtx(ctx, "Failed to append audit record",
			"error", err,
			"action_type", d.ActionType,
		)
	}
}

func (e *Engine) publish(ctx context.Context, d Decision) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishDecision(ctx, d.Event()); err != nil {
		metrics.IncCollaboratorError("publish")
		e.log.WarnwCtx(ctx, "Failed to publish decision event", "error", err)
	}
}
