// Package audit persists every automated and dashboard moderation action in
// the mod_actions table.
package audit

import (
	"fmt"
	"time"
)

// Record is one row of the audit log. SubmissionID is empty for actions that
// are not tied to a submission, such as bans.
type Record struct {
	ID           int64     `json:"id"`
	ActionType   string    `json:"action_type"`
	Identity     string    `json:"username"`
	Details      string    `json:"details"`
	Timestamp    time.Time `json:"timestamp"`
	SubmissionID string    `json:"submission_id,omitempty"`
	Reversible   bool      `json:"can_approve"`
}

func MatchDetails(pattern string) string {
	return "Match: " + pattern
}

func LimitDetails(karma int64, limit int) string {
	return fmt.Sprintf("Karma: %d, Limit: %d", karma, limit)
}

// BanDetails describes a ban; days of zero means permanent.
func BanDetails(identity string, days int, reason string) string {
	duration := "permanent"
	if days > 0 {
		duration = fmt.Sprintf("%d", days)
	}
	return fmt.Sprintf("Banned u/%s for %s days. Reason: %s", identity, duration, reason)
}

type Query struct {
	Page     int
	PageSize int
	Search   string
}

type Page struct {
	Records    []Record `json:"records"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	Total      int      `json:"total"`
	TotalPages int      `json:"total_pages"`
}

// TotalPages never reports fewer than one page so an empty log still renders.
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}

// DateRange selects whole days, End inclusive.
type DateRange struct {
	Start time.Time
	End   time.Time
}

type Count struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type Stats struct {
	ByType   []Count `json:"by_type"`
	ByDay    []Count `json:"by_day"`
	TopUsers []Count `json:"top_users"`
}

func fromUnixSeconds(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
