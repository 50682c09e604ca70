package dashboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"tierguard/internal/audit"
	"tierguard/internal/notes"
	"tierguard/internal/platform"
	pkgerrors "tierguard/pkg/errors"
)

type fakeAudit struct {
	records   []audit.Record
	lastQuery audit.Query
	lastRange *audit.DateRange
	err       error
}

func (f *fakeAudit) Append(_ context.Context, rec *audit.Record) error {
	if f.err != nil {
		return f.err
	}
	rec.ID = int64(len(f.records) + 1)
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeAudit) List(_ context.Context, q audit.Query) (audit.Page, error) {
	f.lastQuery = q
	if f.err != nil {
		return audit.Page{}, f.err
	}
	return audit.Page{
		Records:    f.records,
		Page:       q.Page,
		PageSize:   q.PageSize,
		Total:      len(f.records),
		TotalPages: audit.TotalPages(len(f.records), q.PageSize),
	}, nil
}

func (f *fakeAudit) Recent(_ context.Context, limit int) ([]audit.Record, error) {
	if len(f.records) < limit {
		return f.records, f.err
	}
	return f.records[:limit], f.err
}

func (f *fakeAudit) Export(_ context.Context, search string) ([]audit.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []audit.Record
	for _, rec := range f.records {
		if search == "" || strings.Contains(strings.ToLower(rec.Identity), strings.ToLower(search)) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeAudit) Stats(_ context.Context, rng *audit.DateRange) (audit.Stats, error) {
	f.lastRange = rng
	return audit.Stats{ByType: []audit.Count{{Label: "REMOVE_LIMIT", Count: 2}}}, f.err
}

type fakeNotes struct {
	notes     map[string]notes.Note
	lookupErr error
}

func newFakeNotes() *fakeNotes {
	return &fakeNotes{notes: map[string]notes.Note{}}
}

func (f *fakeNotes) Upsert(_ context.Context, n *notes.Note) error {
	if strings.TrimSpace(n.Identity) == "" {
		return pkgerrors.ErrValidation.WithMessage("username is required")
	}
	f.notes[n.Identity] = *n
	return nil
}

func (f *fakeNotes) Delete(_ context.Context, identity string) error {
	if _, ok := f.notes[identity]; !ok {
		return pkgerrors.ErrNotFound.WithMessage("no note for " + identity)
	}
	delete(f.notes, identity)
	return nil
}

func (f *fakeNotes) List(context.Context) ([]notes.Note, error) {
	out := []notes.Note{}
	for _, n := range f.notes {
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeNotes) Get(_ context.Context, identity string) (*notes.Note, error) {
	n, ok := f.notes[identity]
	if !ok {
		return nil, pkgerrors.ErrNotFound.WithMessage("no note for " + identity)
	}
	return &n, nil
}

func (f *fakeNotes) Lookup(_ context.Context, identities []string) (map[string]notes.Note, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	out := map[string]notes.Note{}
	for _, id := range identities {
		if n, ok := f.notes[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

type toolCall struct {
	Op   string
	ID   string
	Spam bool
	Note string
}

type fakeTools struct {
	mu      sync.Mutex
	calls   []toolCall
	bans    []platform.BanRequest
	failIDs map[string]bool
	banErr  error
}

var errPlatform = errors.New("platform says no")

func (f *fakeTools) record(call toolCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.failIDs[call.ID] {
		return errPlatform
	}
	return nil
}

func (f *fakeTools) Approve(_ context.Context, id string) error {
	return f.record(toolCall{Op: "approve", ID: id})
}

func (f *fakeTools) RemoveItem(_ context.Context, id string, spam bool, note string) error {
	return f.record(toolCall{Op: "remove", ID: id, Spam: spam, Note: note})
}

func (f *fakeTools) IgnoreReports(_ context.Context, id string) error {
	return f.record(toolCall{Op: "ignore_reports", ID: id})
}

func (f *fakeTools) Ban(_ context.Context, req platform.BanRequest) error {
	if f.banErr != nil {
		return f.banErr
	}
	f.bans = append(f.bans, req)
	return nil
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
