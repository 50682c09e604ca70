// Package dashboard serves the moderator API: the audit log, user notes, the
// rule and tier documents, and manual platform actions.
package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tierguard/internal/audit"
	"tierguard/internal/constants"
	"tierguard/internal/documents"
	"tierguard/internal/logger"
	"tierguard/internal/notes"
	"tierguard/internal/platform"
	"tierguard/internal/rules"
	"tierguard/internal/tiers"
	pkgerrors "tierguard/pkg/errors"
)

const (
	dateLayout      = "2006-01-02"
	bulkConcurrency = 4
)

type Service struct {
	audit      audit.Repository
	notes      notes.Repository
	docs       documents.Store
	tools      platform.ModTools
	validators map[string]func([]byte) error
	pageSize   int
	loc        *time.Location
	now        func() time.Time
	log        logger.Logger
}

type Option func(*Service)

func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithLocation sets the zone CSV export times are rendered in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDocumentNames overrides the names under which the rule and tier
// documents are stored.
func WithDocumentNames(rulesName, tiersName string) Option {
	return func(s *Service) {
		s.validators = map[string]func([]byte) error{
			rulesName: validateRules,
			tiersName: validateTiers,
		}
	}
}

// WithModTools enables bans and item actions.
func WithModTools(tools platform.ModTools) Option {
	return func(s *Service) { s.tools = tools }
}

func NewService(auditRepo audit.Repository, notesRepo notes.Repository, docs documents.Store, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		audit: auditRepo,
		notes: notesRepo,
		docs:  docs,
		validators: map[string]func([]byte) error{
			constants.DocumentRules: validateRules,
			constants.DocumentTiers: validateTiers,
		},
		pageSize: constants.AuditPageSize,
		loc:      time.UTC,
		now:      time.Now,
		log:      log.Named("dashboard"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ListActions(ctx context.Context, page int, search string) (*ActionsPage, error) {
	search = strings.TrimSpace(search)
	p, err := s.audit.List(ctx, audit.Query{Page: page, PageSize: s.pageSize, Search: search})
	if err != nil {
		return nil, err
	}

	identities := make([]string, 0, len(p.Records))
	seen := make(map[string]struct{}, len(p.Records))
	for _, rec := range p.Records {
		if _, ok := seen[rec.Identity]; ok || rec.Identity == "" {
			continue
		}
		seen[rec.Identity] = struct{}{}
		identities = append(identities, rec.Identity)
	}

	userNotes, err := s.notes.Lookup(ctx, identities)
	if err != nil {
		s.log.WarnwCtx(ctx, "Failed to look up notes for actions page", "error", err)
		userNotes = map[string]notes.Note{}
	}

	return &ActionsPage{Page: p, Search: search, Notes: userNotes}, nil
}

func (s *Service) RecentActions(ctx context.Context) ([]audit.Record, error) {
	return s.audit.Recent(ctx, constants.RecentActionsLimit)
}

// ExportActions renders the matching audit records as CSV.
func (s *Service) ExportActions(ctx context.Context, search string) ([]byte, error) {
	records, err := s.audit.Export(ctx, strings.TrimSpace(search))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := audit.WriteCSV(&buf, records, s.loc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Stats applies a date range only when both ends are given.
func (s *Service) Stats(ctx context.Context, startDate, endDate string) (*StatsResponse, error) {
	var rng *audit.DateRange
	if startDate != "" && endDate != "" {
		start, err := time.Parse(dateLayout, startDate)
		if err != nil {
			return nil, pkgerrors.ErrValidation.WithMessage("start_date must be YYYY-MM-DD").WithCause(err)
		}
		end, err := time.Parse(dateLayout, endDate)
		if err != nil {
			return nil, pkgerrors.ErrValidation.WithMessage("end_date must be YYYY-MM-DD").WithCause(err)
		}
		if end.Before(start) {
			return nil, pkgerrors.ErrValidation.WithMessage("end_date is before start_date")
		}
		rng = &audit.DateRange{Start: start, End: end}
	}

	stats, err := s.audit.Stats(ctx, rng)
	if err != nil {
		return nil, err
	}

	resp := &StatsResponse{Stats: stats}
	if rng != nil {
		resp.StartDate, resp.EndDate = startDate, endDate
	}
	return resp, nil
}

func (s *Service) ListNotes(ctx context.Context) ([]notes.Note, error) {
	return s.notes.List(ctx)
}

func (s *Service) GetNote(ctx context.Context, identity string) (*notes.Note, error) {
	return s.notes.Get(ctx, strings.TrimSpace(identity))
}

func (s *Service) SaveNote(ctx context.Context, req SaveNoteRequest, moderator string) (*notes.Note, error) {
	note := &notes.Note{
		Identity:  strings.TrimSpace(req.Username),
		Text:      req.Note,
		Timestamp: s.now(),
		Moderator: moderator,
	}
	if err := s.notes.Upsert(ctx, note); err != nil {
		return nil, err
	}
	s.log.InfowCtx(ctx, "Saved user note", "username", note.Identity, "moderator", moderator)
	return note, nil
}

func (s *Service) DeleteNote(ctx context.Context, identity, moderator string) error {
	if err := s.notes.Delete(ctx, identity); err != nil {
		return err
	}
	s.log.InfowCtx(ctx, "Deleted user note", "username", identity, "moderator", moderator)
	return nil
}

func (s *Service) GetDocument(ctx context.Context, name string) (*Document, error) {
	if _, err := s.validator(name); err != nil {
		return nil, err
	}

	doc := &Document{Name: name}
	data, err := s.docs.Read(ctx, name)
	switch {
	case errors.Is(err, documents.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		doc.Content = string(data)
		doc.Exists = true
	}

	doc.HasBackup, err = s.docs.HasBackup(ctx, name)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateDocument rejects content the engine could not fully load, then writes
// it, keeping the previous version as the backup.
func (s *Service) UpdateDocument(ctx context.Context, name, content, moderator string) (*Document, error) {
	validate, err := s.validator(name)
	if err != nil {
		return nil, err
	}
	if err := validate([]byte(content)); err != nil {
		return nil, pkgerrors.ErrValidation.
			WithMessage(fmt.Sprintf("invalid %s document", name)).
			WithDetail("reason", err.Error())
	}

	if err := s.docs.Write(ctx, name, []byte(content)); err != nil {
		return nil, err
	}
	s.log.InfowCtx(ctx, "Updated config document", "document", name, "moderator", moderator)
	return s.GetDocument(ctx, name)
}

func (s *Service) RestoreDocument(ctx context.Context, name, moderator string) (*Document, error) {
	if _, err := s.validator(name); err != nil {
		return nil, err
	}

	err := s.docs.Restore(ctx, name)
	if errors.Is(err, documents.ErrNoBackup) {
		return nil, pkgerrors.ErrNotFound.WithMessage(fmt.Sprintf("no backup of %s", name))
	}
	if err != nil {
		return nil, err
	}
	s.log.InfowCtx(ctx, "Restored config document", "document", name, "moderator", moderator)
	return s.GetDocument(ctx, name)
}

func (s *Service) validator(name string) (func([]byte) error, error) {
	v, ok := s.validators[name]
	if !ok {
		return nil, pkgerrors.ErrNotFound.WithMessage(fmt.Sprintf("unknown config document %q", name))
	}
	return v, nil
}

func validateRules(data []byte) error {
	_, err := rules.Parse(data)
	return err
}

func validateTiers(data []byte) error {
	_, err := tiers.Parse(data)
	return err
}

// Ban bans a user through the platform and records it. The audit record
// names the moderator, and a ban cannot be approved away.
func (s *Service) Ban(ctx context.Context, req BanRequest, moderator string) (*audit.Record, error) {
	tools, err := s.modTools()
	if err != nil {
		return nil, err
	}

	identity := strings.TrimSpace(req.Username)
	if identity == "" {
		return nil, pkgerrors.ErrValidation.WithMessage("username is required")
	}
	if req.Duration < 0 || req.Duration > constants.MaxBanDays {
		return nil, pkgerrors.ErrValidation.WithMessage(fmt.Sprintf("duration must be between 1 and %d days", constants.MaxBanDays))
	}

	err = tools.Ban(ctx, platform.BanRequest{
		Identity: identity,
		Days:     req.Duration,
		Reason:   req.Reason,
		Note:     req.Note,
		Message:  req.Message,
	})
	if err != nil {
		return nil, pkgerrors.ErrBadGateway.WithMessage(fmt.Sprintf("failed to ban %s", identity)).WithCause(err)
	}

	rec := &audit.Record{
		ActionType: constants.BanActionType,
		Identity:   moderator,
		Details:    audit.BanDetails(identity, req.Duration, req.Reason),
		Timestamp:  s.now(),
		Reversible: false,
	}
	if err := s.audit.Append(ctx, rec); err != nil {
		s.log.ErrorwCtx(ctx, "Ban applied but audit append failed", "username", identity, "error", err)
		return nil, err
	}
	return rec, nil
}

func (s *Service) Approve(ctx context.Context, id string) error {
	tools, err := s.modTools()
	if err != nil {
		return err
	}
	return platformErr(tools.Approve(ctx, id))
}

func (s *Service) RemoveItem(ctx context.Context, id string, req RemoveItemRequest) error {
	tools, err := s.modTools()
	if err != nil {
		return err
	}
	return platformErr(tools.RemoveItem(ctx, id, req.Spam, req.Reason))
}

func (s *Service) IgnoreReports(ctx context.Context, id string) error {
	tools, err := s.modTools()
	if err != nil {
		return err
	}
	return platformErr(tools.IgnoreReports(ctx, id))
}

// Bulk applies one action to every item. Failures are reported per item and
// never abort the rest.
func (s *Service) Bulk(ctx context.Context, req BulkRequest) (*BulkResponse, error) {
	tools, err := s.modTools()
	if err != nil {
		return nil, err
	}

	var apply func(ctx context.Context, id string) error
	switch req.Action {
	case BulkApprove:
		apply = tools.Approve
	case BulkIgnoreReports:
		apply = tools.IgnoreReports
	case BulkRemove:
		reason := req.Reason
		if reason == "" {
			reason = constants.DefaultRemovalNote
		}
		apply = func(ctx context.Context, id string) error {
			return tools.RemoveItem(ctx, id, false, reason)
		}
	default:
		return nil, pkgerrors.ErrValidation.WithMessage(fmt.Sprintf("unknown bulk action %q", req.Action))
	}

	resp := &BulkResponse{Action: req.Action, Results: make([]BulkItemResult, len(req.ItemIDs))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for i, id := range req.ItemIDs {
		g.Go(func() error {
			result := BulkItemResult{ID: id}
			if err := apply(gctx, id); err != nil {
				result.Error = err.Error()
				s.log.WarnwCtx(ctx, "Bulk action failed for item", "action", req.Action, "item_id", id, "error", err)
			}

			mu.Lock()
			resp.Results[i] = result
			if result.Error == "" {
				resp.Succeeded++
			} else {
				resp.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return resp, nil
}

func (s *Service) modTools() (platform.ModTools, error) {
	if s.tools == nil {
		return nil, pkgerrors.ErrServiceUnavailable.WithMessage("platform actions are not configured")
	}
	return s.tools, nil
}

func platformErr(err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.ErrBadGateway.WithCause(err)
}
