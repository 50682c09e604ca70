package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tierguard/internal/audit"
	"tierguard/internal/logger"
	"tierguard/internal/platform"
	"tierguard/internal/rules"
	"tierguard/internal/tiers"
	"tierguard/internal/window"
	"tierguard/pkg/models"
)

type fakeKarma struct {
	karma map[string]int64
	err   error
	calls int
}

func (f *fakeKarma) Karma(_ context.Context, identity string) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.karma[identity], nil
}

type fakeModerators struct {
	mods map[string]bool
	err  error
}

func (f fakeModerators) IsModerator(_ context.Context, identity string) (bool, error) {
	return f.mods[identity], f.err
}

type removal struct {
	ID   string
	Spam bool
	Note string
}

type reply struct {
	ID     string
	Text   string
	Sticky bool
}

type recordingActions struct {
	mu        sync.Mutex
	removals  []removal
	replies   []reply
	removeErr error
	replyErr  error
}

func (a *recordingActions) Remove(_ context.Context, id string, spam bool, note string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.removals = append(a.removals, removal{ID: id, Spam: spam, Note: note})
	return a.removeErr
}

func (a *recordingActions) Reply(_ context.Context, id string, text string, sticky bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.replies = append(a.replies, reply{ID: id, Text: text, Sticky: sticky})
	return a.replyErr
}

type recordingAudit struct {
	records []audit.Record
	err     error
}

func (a *recordingAudit) Append(_ context.Context, rec *audit.Record) error {
	if a.err != nil {
		return a.err
	}
	a.records = append(a.records, *rec)
	return nil
}

type recordingPublisher struct {
	events []models.DecisionEvent
	err    error
}

func (p *recordingPublisher) PublishDecision(_ context.Context, event models.DecisionEvent) error {
	p.events = append(p.events, event)
	return p.err
}

type failingWindow struct {
	window.Store
	pruneErr  error
	countErr  error
	recordErr error
}

func (f failingWindow) Prune(ctx context.Context, now time.Time) (int64, error) {
	if f.pruneErr != nil {
		return 0, f.pruneErr
	}
	return f.Store.Prune(ctx, now)
}

func (f failingWindow) Count(ctx context.Context, identity string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.Store.Count(ctx, identity)
}

func (f failingWindow) Record(ctx context.Context, identity string, now time.Time) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	return f.Store.Record(ctx, identity, now)
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type harness struct {
	engine    *Engine
	window    *window.MemoryStore
	karma     *fakeKarma
	actions   *recordingActions
	audit     *recordingAudit
	publisher *recordingPublisher
	clock     *clock
}

func mustRules(t *testing.T, doc string) rules.RuleSet {
	t.Helper()
	set, err := rules.Parse([]byte(doc))
	require.NoError(t, err)
	return set
}

func newHarness(t *testing.T, set rules.RuleSet, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		window:    window.NewMemoryStore(),
		karma:     &fakeKarma{karma: map[string]int64{}},
		actions:   &recordingActions{},
		audit:     &recordingAudit{},
		publisher: &recordingPublisher{},
		clock:     &clock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)},
	}
	h.engine = h.build(fakeModerators{mods: map[string]bool{"modperson": true}}, h.window, set, opts...)
	return h
}

func (h *harness) build(mods platform.ModeratorChecker, store window.Store, set rules.RuleSet, opts ...Option) *Engine {
	opts = append([]Option{WithClock(h.clock.Now), WithPublisher(h.publisher)}, opts...)
	return NewEngine(Deps{
		Policy:     StaticPolicy{Rules: set, Tiers: tiers.DefaultTable()},
		Window:     store,
		Karma:      h.karma,
		Moderators: mods,
		Actions:    h.actions,
		Audit:      h.audit,
	}, logger.NopLogger(), opts...)
}

func (h *harness) count(t *testing.T, identity string) int {
	t.Helper()
	n, err := h.window.Count(context.Background(), identity)
	require.NoError(t, err)
	return n
}

func post(id, author string) platform.Submission {
	return platform.Submission{ID: id, Author: author, Title: "Train delayed at Central", Domain: "self.SydneyTrains"}
}

func TestDecideAllowsFirstPost(t *testing.T) {
	h := newHarness(t, nil)
	h.karma.karma["alice"] = 100

	d, err := h.engine.Decide(context.Background(), post("p1", "alice"))
	require.NoError(t, err)

	assert.Equal(t, VerdictAllowed, d.Verdict)
	assert.Equal(t, int64(100), d.Karma)
	assert.Equal(t, 1, d.Limit)
	assert.Equal(t, 0, d.Count)
	assert.Equal(t, 1, h.count(t, "alice"))
	assert.Empty(t, h.audit.records)
	assert.Empty(t, h.actions.removals)
	assert.False(t, d.Removed())
}

func TestDecideLinkspamRule(t *testing.T) {
	set := mustRules(t, `
- name: Linkspam
  triggers:
    domain: [bit.ly]
  action: spam
`)
	h := newHarness(t, set)
	sub := post("p1", "spammer")
	sub.Domain = "bit.ly"

	d, err := h.engine.Decide(context.Background(), sub)
	require.NoError(t, err)

	assert.Equal(t, VerdictMatchedRule, d.Verdict)
	assert.Equal(t, "bit.ly", d.Pattern)
	assert.Equal(t, []removal{{ID: "p1", Spam: true, Note: "Linkspam"}}, h.actions.removals)
	assert.Empty(t, h.actions.replies, "rule has no message")

	require.Len(t, h.audit.records, 1)
	rec := h.audit.records[0]
	assert.Equal(t, "RULE_LINKSPAM", rec.ActionType)
	assert.Equal(t, "spammer", rec.Identity)
	assert.Equal(t, "Match: bit.ly", rec.Details)
	assert.Equal(t, "p1", rec.SubmissionID)
	assert.True(t, rec.Reversible)
	assert.Equal(t, h.clock.now, rec.Timestamp)
}

func TestDecideRuleReplyAndApproval(t *testing.T) {
	set := mustRules(t, `
- name: Mod Impersonation
  triggers:
    "title (regex)": ['^\[MOD\]']
  message: 'Your {{kind}} was removed: titles may not start with "{{match}}".'
  allow_approval: false
`)
	h := newHarness(t, set)
	sub := post("p9", "faker")
	sub.Title = "[mod] read this"

	d, err := h.engine.Decide(context.Background(), sub)
	require.NoError(t, err)

	assert.Equal(t, VerdictMatchedRule, d.Verdict)
	assert.Equal(t, "RULE_MOD_IMPERSONATION", d.ActionType)
	assert.False(t, d.Reversible)
	require.Len(t, h.actions.replies, 1)
	assert.Equal(t, reply{ID: "p9", Text: `Your submission was removed: titles may not start with "^\[MOD\]".`, Sticky: true}, h.actions.replies[0])
	assert.False(t, h.audit.records[0].Reversible)
}

func TestDecideFirstRuleWins(t *testing.T) {
	set := mustRules(t, `
- name: Unrelated
  triggers: {domain: [example.com]}
- name: First
  triggers: {"title+body": [spam]}
- name: Other
  triggers: {title: [nothing]}
- name: Broken
  triggers: {"title (regex)": ["("]}
- name: Second
  triggers: {body: [spam]}
`)
	h := newHarness(t, set)
	sub := post("p1", "bob")
	sub.Title = "clean title"
	sub.Body = "buy SPAM now"

	d, err := h.engine.Decide(context.Background(), sub)
	require.NoError(t, err)

	require.NotNil(t, d.Rule)
	assert.Equal(t, "First", d.Rule.Name)
	assert.Equal(t, "body", d.Field)
}

func TestDecideRuleSkipsRateLimit(t *testing.T) {
	set := mustRules(t, `[{name: Linkspam, triggers: {domain: bit.ly}}]`)
	h := newHarness(t, set)
	sub := post("p1", "carol")
	sub.Domain = "BIT.LY"

	d, err := h.engine.Decide(context.Background(), sub)
	require.NoError(t, err)

	assert.Equal(t, VerdictMatchedRule, d.Verdict)
	assert.Zero(t, h.karma.calls, "karma is only fetched for rate limiting")
	assert.Zero(t, h.count(t, "carol"))
	assert.Zero(t, d.Limit)
}

func TestDecideRateLimitWindow(t *testing.T) {
	h := newHarness(t, nil)
	h.karma.karma["dave"] = 300 // limit 2
	ctx := context.Background()

	first, err := h.engine.Decide(ctx, post("p1", "dave"))
	require.NoError(t, err)
	assert.Equal(t, VerdictAllowed, first.Verdict)

	h.clock.Advance(time.Hour)
	second, err := h.engine.Decide(ctx, post("p2", "dave"))
	require.NoError(t, err)
	assert.Equal(t, VerdictAllowed, second.Verdict)

	h.clock.Advance(time.Hour)
	third, err := h.engine.Decide(ctx, post("p3", "dave"))
	require.NoError(t, err)
	assert.Equal(t, VerdictRateLimited, third.Verdict)
	assert.Equal(t, 2, third.Count)
	assert.Equal(t, 2, third.Limit)
	assert.Equal(t, 2, h.count(t, "dave"), "removed posts are not counted")

	assert.Equal(t, []removal{{ID: "p3", Spam: false, Note: "Daily post limit exceeded"}}, h.actions.removals)
	require.Len(t, h.actions.replies, 1)
	assert.Equal(t, "Hi /u/dave, your post has been removed because you have reached your daily posting limit.\n\n"+
		"Your account has **300 karma**, which limits you to **2 post(s)** per 24 hours.\n\n"+
		"Please try again tomorrow!", h.actions.replies[0].Text)
	assert.True(t, h.actions.replies[0].Sticky)

	require.Len(t, h.audit.records, 1)
	assert.Equal(t, "REMOVE_LIMIT", h.audit.records[0].ActionType)
	assert.Equal(t, "Karma: 300, Limit: 2", h.audit.records[0].Details)
	assert.True(t, h.audit.records[0].Reversible)

	// 24h after the first post it drops out of the window.
	h.clock.Advance(22*time.Hour + time.Second)
	fourth, err := h.engine.Decide(ctx, post("p4", "dave"))
	require.NoError(t, err)
	assert.Equal(t, VerdictAllowed, fourth.Verdict)
	assert.Equal(t, 1, fourth.Count)
	assert.Equal(t, 2, h.count(t, "dave"))
}

func TestDecideDryRun(t *testing.T) {
	set := mustRules(t, `[{name: Linkspam, triggers: {domain: bit.ly}, message: "no {{match}}"}]`)
	h := newHarness(t, set, WithDryRun(true))
	h.karma.karma["erin"] = 0
	ctx := context.Background()

	sub := post("p1", "erin")
	sub.Domain = "bit.ly"
	d, err := h.engine.Decide(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, "TEST_RULE_LINKSPAM", d.ActionType)
	assert.True(t, d.DryRun)

	_, err = h.engine.Decide(ctx, post("p2", "erin"))
	require.NoError(t, err)
	limited, err := h.engine.Decide(ctx, post("p3", "erin"))
	require.NoError(t, err)
	assert.Equal(t, VerdictRateLimited, limited.Verdict)

	assert.Empty(t, h.actions.removals)
	assert.Empty(t, h.actions.replies)
	require.Len(t, h.audit.records, 2)
	assert.Equal(t, "TEST_RULE_LINKSPAM", h.audit.records[0].ActionType)
	assert.Equal(t, "TEST_REMOVE_LIMIT", h.audit.records[1].ActionType)
	assert.Equal(t, 1, h.count(t, "erin"), "allowed posts are still recorded in dry run")
}

func TestDecideSkips(t *testing.T) {
	set := mustRules(t, `[{name: Everything, triggers: {combined: [""]}}]`)
	h := newHarness(t, set)

	tests := []struct {
		name   string
		author string
		reason string
	}{
		{name: "empty author", author: "", reason: SkipAnonymous},
		{name: "deleted author", author: "[deleted]", reason: SkipAnonymous},
		{name: "moderator", author: "modperson", reason: SkipModerator},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := h.engine.Decide(context.Background(), post("p1", tt.author))
			require.NoError(t, err)
			assert.Equal(t, VerdictSkipped, d.Verdict)
			assert.Equal(t, tt.reason, d.SkipReason)
		})
	}

	assert.Empty(t, h.actions.removals)
	assert.Empty(t, h.audit.records)
	assert.Zero(t, h.karma.calls)
}

func TestDecideModeratorCheckFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.engine = h.build(fakeModerators{err: platform.ErrTransient}, h.window, nil)

	d, err := h.engine.Decide(context.Background(), post("p1", "modperson"))
	require.NoError(t, err)
	assert.Equal(t, VerdictAllowed, d.Verdict)
}

func TestDecideKarmaFailureUsesStrictestTier(t *testing.T) {
	h := newHarness(t, nil)
	h.karma.err = platform.ErrTransient
	ctx := context.Background()

	d, err := h.engine.Decide(ctx, post("p1", "frank"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), d.Karma)
	assert.Equal(t, 1, d.Limit)

	d, err = h.engine.Decide(ctx, post("p2", "frank"))
	require.NoError(t, err)
	assert.Equal(t, VerdictRateLimited, d.Verdict)
}

func TestDecideActionAndAuditFailuresAreNotFatal(t *testing.T) {
	set := mustRules(t, `[{name: Linkspam, triggers: {domain: bit.ly}, message: hi}]`)
	h := newHarness(t, set)
	h.actions.removeErr = errors.New("403 forbidden")
	sub := post("p1", "gina")
	sub.Domain = "bit.ly"

	d, err := h.engine.Decide(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, VerdictMatchedRule, d.Verdict)
	assert.Empty(t, h.actions.replies, "no reply after a failed removal")
	assert.Len(t, h.audit.records, 1)

	h.audit.err = errors.New("db down")
	h.actions.removeErr = nil
	d, err = h.engine.Decide(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, VerdictMatchedRule, d.Verdict)
	assert.Len(t, h.actions.replies, 1)
}

func TestDecideWindowFailures(t *testing.T) {
	storeErr := errors.New("connection refused")

	for name, store := range map[string]failingWindow{
		"prune":  {pruneErr: storeErr},
		"count":  {countErr: storeErr},
		"record": {recordErr: storeErr},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, nil)
			store.Store = h.window
			h.engine = h.build(fakeModerators{}, store, nil)

			_, err := h.engine.Decide(context.Background(), post("p1", "hank"))
			assert.ErrorIs(t, err, storeErr)
			assert.Empty(t, h.publisher.events)
		})
	}
}

func TestDecidePublishesEvents(t *testing.T) {
	h := newHarness(t, nil)
	h.karma.karma["ivy"] = 42

	_, err := h.engine.Decide(context.Background(), post("p1", "ivy"))
	require.NoError(t, err)

	require.Len(t, h.publisher.events, 1)
	event := h.publisher.events[0]
	assert.Equal(t, "p1", event.SubmissionID)
	assert.Equal(t, "ivy", event.Author)
	assert.Equal(t, "allowed", event.Verdict)
	assert.Equal(t, int64(42), event.Karma)
	assert.Equal(t, h.clock.now, event.DecidedAt)

	h.publisher.err = errors.New("broker down")
	_, err = h.engine.Decide(context.Background(), post("p2", "ivy2"))
	assert.NoError(t, err)
}

func TestDecisionString(t *testing.T) {
	rule := &rules.Rule{Name: "Linkspam"}
	assert.Equal(t, `matched_rule: rule "Linkspam" matched "bit.ly"`, Decision{Verdict: VerdictMatchedRule, Rule: rule, Pattern: "bit.ly"}.String())
	assert.Equal(t, "rate_limited: karma 5, 1/1 posts", Decision{Verdict: VerdictRateLimited, Karma: 5, Count: 1, Limit: 1}.String())
	assert.Equal(t, "skipped: moderator", Decision{Verdict: VerdictSkipped, SkipReason: SkipModerator}.String())
}
