package dashboard

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tierguard/internal/audit"
	"tierguard/internal/documents"
	"tierguard/internal/logger"
	"tierguard/internal/notes"
	pkgerrors "tierguard/pkg/errors"
)

type harness struct {
	svc   *Service
	audit *fakeAudit
	notes *fakeNotes
	tools *fakeTools
	docs  *documents.FileStore
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		audit: &fakeAudit{},
		notes: newFakeNotes(),
		tools: &fakeTools{},
		docs:  documents.NewFileStore(t.TempDir()),
	}
	opts = append([]Option{WithModTools(h.tools), WithClock(func() time.Time { return fixedNow })}, opts...)
	h.svc = NewService(h.audit, h.notes, h.docs, logger.NopLogger(), opts...)
	return h
}

func TestListActionsAttachesNotes(t *testing.T) {
	h := newHarness(t, WithPageSize(2))
	h.audit.records = []audit.Record{
		{ID: 1, ActionType: "REMOVE_LIMIT", Identity: "alice"},
		{ID: 2, ActionType: "RULE_LINKSPAM", Identity: "alice"},
		{ID: 3, ActionType: "RULE_LINKSPAM", Identity: "bob"},
	}
	h.notes.notes["alice"] = notes.Note{Identity: "alice", Text: "repeat offender"}

	page, err := h.svc.ListActions(context.Background(), 1, "  spam ")
	require.NoError(t, err)

	assert.Equal(t, audit.Query{Page: 1, PageSize: 2, Search: "spam"}, h.audit.lastQuery)
	assert.Equal(t, "spam", page.Search)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Notes, 1)
	assert.Equal(t, "repeat offender", page.Notes["alice"].Text)
}

func TestListActionsSurvivesNoteFailure(t *testing.T) {
	h := newHarness(t)
	h.audit.records = []audit.Record{{ID: 1, Identity: "alice"}}
	h.notes.lookupErr = errors.New("db down")

	page, err := h.svc.ListActions(context.Background(), 1, "")
	require.NoError(t, err)
	assert.Len(t, page.Records, 1)
	assert.Empty(t, page.Notes)
}

func TestExportActions(t *testing.T) {
	h := newHarness(t)
	h.audit.records = []audit.Record{
		{ID: 7, ActionType: "REMOVE_LIMIT", Identity: "alice", Details: "Karma: 10, Limit: 1", Timestamp: fixedNow, SubmissionID: "abc", Reversible: true},
		{ID: 8, ActionType: "BAN_USER", Identity: "bob", Timestamp: fixedNow},
	}

	data, err := h.svc.ExportActions(context.Background(), "ali")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ID,Action Type,Username,Details,Time,Submission ID,Can Approve", lines[0])
	assert.Equal(t, `7,REMOVE_LIMIT,alice,"Karma: 10, Limit: 1",2024-05-01 12:00:00,abc,True`, lines[1])
}

func TestStats(t *testing.T) {
	ctx := context.Background()

	t.Run("no range", func(t *testing.T) {
		h := newHarness(t)
		resp, err := h.svc.Stats(ctx, "", "")
		require.NoError(t, err)
		assert.Nil(t, h.audit.lastRange)
		assert.Empty(t, resp.StartDate)
		assert.Len(t, resp.ByType, 1)
	})

	t.Run("half a range is ignored", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.Stats(ctx, "2024-01-01", "")
		require.NoError(t, err)
		assert.Nil(t, h.audit.lastRange)
	})

	t.Run("full range", func(t *testing.T) {
		h := newHarness(t)
		resp, err := h.svc.Stats(ctx, "2024-01-01", "2024-01-31")
		require.NoError(t, err)
		require.NotNil(t, h.audit.lastRange)
		assert.Equal(t, 31, h.audit.lastRange.End.Day())
		assert.Equal(t, "2024-01-01", resp.StartDate)
	})

	t.Run("invalid", func(t *testing.T) {
		h := newHarness(t)
		for _, rng := range [][2]string{{"01/01/2024", "2024-01-31"}, {"2024-01-01", "tomorrow"}, {"2024-02-01", "2024-01-01"}} {
			_, err := h.svc.Stats(ctx, rng[0], rng[1])
			assert.True(t, pkgerrors.IsValidation(err), "%v", rng)
		}
	})
}

func TestNotes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	note, err := h.svc.SaveNote(ctx, SaveNoteRequest{Username: " alice ", Note: "warned twice"}, "mod1")
	require.NoError(t, err)
	assert.Equal(t, "alice", note.Identity)
	assert.Equal(t, "mod1", note.Moderator)
	assert.Equal(t, fixedNow, note.Timestamp)

	got, err := h.svc.GetNote(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "warned twice", got.Text)

	list, err := h.svc.ListNotes(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, h.svc.DeleteNote(ctx, "alice", "mod1"))
	_, err = h.svc.GetNote(ctx, "alice")
	assert.True(t, pkgerrors.IsNotFound(err))

	assert.True(t, pkgerrors.IsNotFound(h.svc.DeleteNote(ctx, "alice", "mod1")))

	_, err = h.svc.SaveNote(ctx, SaveNoteRequest{Username: "   "}, "mod1")
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestDocuments(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	doc, err := h.svc.GetDocument(ctx, "automod")
	require.NoError(t, err)
	assert.False(t, doc.Exists)
	assert.False(t, doc.HasBackup)

	first := "- name: Linkspam\n  triggers:\n    domain: [bit.ly]\n"
	doc, err = h.svc.UpdateDocument(ctx, "automod", first, "mod1")
	require.NoError(t, err)
	assert.True(t, doc.Exists)
	assert.Equal(t, first, doc.Content)
	assert.False(t, doc.HasBackup)

	second := "- name: Linkspam\n  triggers:\n    domain: [bit.ly, tinyurl.com]\n"
	doc, err = h.svc.UpdateDocument(ctx, "automod", second, "mod1")
	require.NoError(t, err)
	assert.True(t, doc.HasBackup)

	doc, err = h.svc.RestoreDocument(ctx, "automod", "mod1")
	require.NoError(t, err)
	assert.Equal(t, first, doc.Content)
}

func TestUpdateDocumentValidates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "broken yaml", file: "automod", content: "- name: [unclosed"},
		{name: "rules not a list", file: "automod", content: "name: Linkspam"},
		{name: "tier limit not a number", file: "tiers", content: "[{max_karma: 10, limit: lots}]"},
		{name: "tiers not a list", file: "tiers", content: "max_karma: 10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.UpdateDocument(ctx, tt.file, tt.content, "mod1")
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err))

			doc, err := h.svc.GetDocument(ctx, tt.file)
			require.NoError(t, err)
			assert.False(t, doc.Exists, "rejected content is not written")
		})
	}
}

func TestDocumentNames(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.svc.GetDocument(ctx, "secrets")
	assert.True(t, pkgerrors.IsNotFound(err))

	_, err = h.svc.RestoreDocument(ctx, "tiers", "mod1")
	assert.True(t, pkgerrors.IsNotFound(err), "no backup yet")

	custom := newHarness(t, WithDocumentNames("rules", "limits"))
	_, err = custom.svc.UpdateDocument(ctx, "limits", "[{max_karma: 10, limit: 2}]", "mod1")
	require.NoError(t, err)
	_, err = custom.svc.GetDocument(ctx, "automod")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestBan(t *testing.T) {
	ctx := context.Background()

	t.Run("timed ban is audited", func(t *testing.T) {
		h := newHarness(t)
		rec, err := h.svc.Ban(ctx, BanRequest{Username: "spammer", Duration: 7, Reason: "spam"}, "mod1")
		require.NoError(t, err)

		require.Len(t, h.tools.bans, 1)
		assert.Equal(t, 7, h.tools.bans[0].Days)
		assert.Equal(t, "BAN_USER", rec.ActionType)
		assert.Equal(t, "mod1", rec.Identity)
		assert.Equal(t, "Banned u/spammer for 7 days. Reason: spam", rec.Details)
		assert.False(t, rec.Reversible)
		assert.Len(t, h.audit.records, 1)
	})

	t.Run("permanent ban", func(t *testing.T) {
		h := newHarness(t)
		rec, err := h.svc.Ban(ctx, BanRequest{Username: "spammer", Reason: "spam"}, "mod1")
		require.NoError(t, err)
		assert.Equal(t, "Banned u/spammer for permanent days. Reason: spam", rec.Details)
	})

	t.Run("duration out of range", func(t *testing.T) {
		h := newHarness(t)
		for _, d := range []int{-1, 1000} {
			_, err := h.svc.Ban(ctx, BanRequest{Username: "spammer", Duration: d}, "mod1")
			assert.True(t, pkgerrors.IsValidation(err), "duration %d", d)
		}
		assert.Empty(t, h.tools.bans)
	})

	t.Run("platform failure is not audited", func(t *testing.T) {
		h := newHarness(t)
		h.tools.banErr = errPlatform
		_, err := h.svc.Ban(ctx, BanRequest{Username: "spammer"}, "mod1")
		assert.ErrorIs(t, err, pkgerrors.ErrBadGateway)
		assert.ErrorIs(t, err, errPlatform)
		assert.Empty(t, h.audit.records)
	})

	t.Run("without platform", func(t *testing.T) {
		svc := NewService(&fakeAudit{}, newFakeNotes(), documents.NewFileStore(t.TempDir()), logger.NopLogger())
		_, err := svc.Ban(ctx, BanRequest{Username: "spammer"}, "mod1")
		assert.ErrorIs(t, err, pkgerrors.ErrServiceUnavailable)
	})
}

func TestItemActions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.svc.Approve(ctx, "t3_abc"))
	require.NoError(t, h.svc.RemoveItem(ctx, "t3_abc", RemoveItemRequest{Spam: true, Reason: "spam"}))
	require.NoError(t, h.svc.IgnoreReports(ctx, "t1_def"))

	assert.Equal(t, []toolCall{
		{Op: "approve", ID: "t3_abc"},
		{Op: "remove", ID: "t3_abc", Spam: true, Note: "spam"},
		{Op: "ignore_reports", ID: "t1_def"},
	}, h.tools.calls)

	h.tools.failIDs = map[string]bool{"t3_bad": true}
	assert.ErrorIs(t, h.svc.Approve(ctx, "t3_bad"), pkgerrors.ErrBadGateway)
}

func TestBulk(t *testing.T) {
	ctx := context.Background()

	t.Run("remove uses default reason and reports failures", func(t *testing.T) {
		h := newHarness(t)
		h.tools.failIDs = map[string]bool{"t3_b": true}

		resp, err := h.svc.Bulk(ctx, BulkRequest{Action: BulkRemove, ItemIDs: []string{"t3_a", "t3_b", "t3_c"}})
		require.NoError(t, err)

		assert.Equal(t, 2, resp.Succeeded)
		assert.Equal(t, 1, resp.Failed)
		require.Len(t, resp.Results, 3)
		assert.Equal(t, "t3_b", resp.Results[1].ID)
		assert.NotEmpty(t, resp.Results[1].Error)
		assert.Empty(t, resp.Results[0].Error)

		require.Len(t, h.tools.calls, 3)
		ids := make([]string, 0, 3)
		for _, call := range h.tools.calls {
			assert.Equal(t, "remove", call.Op)
			assert.False(t, call.Spam)
			assert.Equal(t, "Removed by moderator", call.Note)
			ids = append(ids, call.ID)
		}
		sort.Strings(ids)
		assert.Equal(t, []string{"t3_a", "t3_b", "t3_c"}, ids)
	})

	t.Run("ignore reports", func(t *testing.T) {
		h := newHarness(t)
		resp, err := h.svc.Bulk(ctx, BulkRequest{Action: BulkIgnoreReports, ItemIDs: []string{"t1_x"}})
		require.NoError(t, err)
		assert.Equal(t, 1, resp.Succeeded)
		assert.Equal(t, "ignore_reports", h.tools.calls[0].Op)
	})

	t.Run("unknown action", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.Bulk(ctx, BulkRequest{Action: "nuke", ItemIDs: []string{"t3_a"}})
		assert.True(t, pkgerrors.IsValidation(err))
		assert.Empty(t, h.tools.calls)
	})
}
