package dashboard

import (
	"tierguard/internal/audit"
	"tierguard/internal/notes"
)

// ActionsPage is one page of the audit log with the notes of every user on
// the page.
type ActionsPage struct {
	audit.Page
	Search string                `json:"search,omitempty"`
	Notes  map[string]notes.Note `json:"notes"`
}

type StatsResponse struct {
	audit.Stats
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

type SaveNoteRequest struct {
	Username string `json:"username" binding:"required"`
	Note     string `json:"note"`
}

type Document struct {
	Name      string `json:"name"`
	Content   string `json:"content"`
	Exists    bool   `json:"exists"`
	HasBackup bool   `json:"has_backup"`
}

type UpdateDocumentRequest struct {
	Content string `json:"content"`
}

type BanRequest struct {
	Username string `json:"username" binding:"required"`
	// Duration in days; omitted or zero bans permanently.
	Duration int    `json:"duration"`
	Reason   string `json:"reason"`
	Note     string `json:"note"`
	Message  string `json:"message"`
}

type RemoveItemRequest struct {
	Spam   bool   `json:"spam"`
	Reason string `json:"reason"`
}

const (
	BulkApprove       = "approve"
	BulkRemove        = "remove"
	BulkIgnoreReports = "ignore_reports"
)

type BulkRequest struct {
	Action  string   `json:"action" binding:"required"`
	ItemIDs []string `json:"item_ids" binding:"required"`
	Reason  string   `json:"reason"`
}

type BulkItemResult struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

type BulkResponse struct {
	Action    string           `json:"action"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Results   []BulkItemResult `json:"results"`
}
