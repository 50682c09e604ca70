package moderation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"tierguard/internal/logger"
	"tierguard/internal/rules"
	"tierguard/internal/tiers"
)

type stubRuleLoader struct {
	set rules.RuleSet
	err error
}

func (s stubRuleLoader) Load(context.Context) (rules.RuleSet, error) { return s.set, s.err }

type stubTierLoader struct {
	table tiers.Table
	err   error
}

func (s stubTierLoader) Load(context.Context) (tiers.Table, error) { return s.table, s.err }

func TestDocumentPolicyFallsBack(t *testing.T) {
	policy := NewDocumentPolicy(
		stubRuleLoader{set: rules.RuleSet{}, err: errors.New("automod.yaml: no such file")},
		stubTierLoader{table: tiers.DefaultTable(), err: errors.New("tiers.yaml: not a list")},
		logger.NopLogger(),
	).Load(context.Background())

	assert.Empty(t, policy.Rules)
	assert.Equal(t, tiers.DefaultTable(), policy.Tiers)
}

func TestDocumentPolicyKeepsUsableEntries(t *testing.T) {
	set := rules.RuleSet{{Name: "Linkspam"}}
	table := tiers.NewTable([]tiers.Tier{{MaxKarma: 10, Limit: 3}})

	policy := NewDocumentPolicy(
		stubRuleLoader{set: set, err: errors.New("rule #2: expected a mapping")},
		stubTierLoader{table: table},
		logger.NopLogger(),
	).Load(context.Background())

	assert.Equal(t, set, policy.Rules)
	assert.Equal(t, 3, policy.Tiers.LimitFor(1))
}

func TestScenarioEmptyRulesDefaultTiers(t *testing.T) {
	h := newHarness(t, rules.RuleSet{})
	h.karma.karma["newbie"] = 100

	d, err := h.engine.Decide(context.Background(), post("p1", "newbie"))
	assert.NoError(t, err)
	assert.Equal(t, VerdictAllowed, d.Verdict)
	assert.Equal(t, 1, h.count(t, "newbie"))
	assert.Empty(t, h.audit.records)
}
