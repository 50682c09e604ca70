package moderation

import (
	"context"

	"tierguard/internal/logger"
	"tierguard/internal/rules"
	"tierguard/internal/tiers"
	"tierguard/pkg/metrics"
)

// Policy is the immutable view of the rule and tier documents used for one
// decision.
type Policy struct {
	Rules rules.RuleSet
	Tiers tiers.Table
}

// PolicySource produces a fresh Policy. It is called once per decision so
// document edits apply to the next submission without a restart.
type PolicySource interface {
	Load(ctx context.Context) Policy
}

type RuleLoader interface {
	Load(ctx context.Context) (rules.RuleSet, error)
}

type TierLoader interface {
	Load(ctx context.Context) (tiers.Table, error)
}

// DocumentPolicy reads both documents on every Load. Unusable documents
// degrade to an empty rule set or the default tiers and are logged.
type DocumentPolicy struct {
	rules RuleLoader
	tiers TierLoader
	log   logger.Logger
}

func NewDocumentPolicy(r RuleLoader, t TierLoader, log logger.Logger) *DocumentPolicy {
	return &DocumentPolicy{rules: r, tiers: t, log: log}
}

func (p *DocumentPolicy) Load(ctx context.Context) Policy {
	ruleSet, err := p.rules.Load(ctx)
	if err != nil {
		metrics.IncConfigFallback("rules")
		p.log.WarnwCtx(ctx, "Rule document problem, continuing with usable rules",
			"error", err,
			"rules", len(ruleSet),
		)
	}

	table, err := p.tiers.Load(ctx)
	if err != nil {
		metrics.IncConfigFallback("tiers")
		p.log.WarnwCtx(ctx, "Tier document problem, continuing with usable tiers",
			"error", err,
			"tiers", table.Len(),
		)
	}

	return Policy{Rules: ruleSet, Tiers: table}
}

// StaticPolicy always returns the same Policy.
type StaticPolicy Policy

func (p StaticPolicy) Load(context.Context) Policy {
	return Policy(p)
}
