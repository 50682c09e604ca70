// Package platform defines what the moderation engine needs from the content
// platform it moderates.
package platform

import (
	"context"
	"errors"
	"strings"
	"time"

	"tierguard/internal/rules"
)

// ErrTransient marks failures worth retrying later, such as timeouts and 5xx
// responses.
var ErrTransient = errors.New("transient platform error")

const deletedAuthor = "[deleted]"

type Submission struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Title     string    `json:"title"`
	Body      string    `json:"selftext"`
	Domain    string    `json:"domain"`
	URL       string    `json:"url,omitempty"`
	Permalink string    `json:"permalink,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Anonymous reports whether the submission has no attributable author.
func (s Submission) Anonymous() bool {
	author := strings.TrimSpace(s.Author)
	return author == "" || author == deletedAuthor
}

func (s Submission) Fields() rules.Fields {
	return rules.Fields{Title: s.Title, Body: s.Body, Domain: s.Domain}
}

type KarmaFetcher interface {
	// Karma returns link plus comment karma.
	Karma(ctx context.Context, identity string) (int64, error)
}

type ModeratorChecker interface {
	IsModerator(ctx context.Context, identity string) (bool, error)
}

// Actions are the side effects the engine applies to a submission.
type Actions interface {
	Remove(ctx context.Context, submissionID string, spam bool, modNote string) error
	Reply(ctx context.Context, submissionID string, text string, sticky bool) error
}

// Handler processes one submission.
type Handler func(ctx context.Context, sub Submission) error

// Source delivers submissions to handle until ctx is cancelled. Handler errors
// are the source's to log or dead-letter; they never stop delivery.
type Source interface {
	Run(ctx context.Context, handle Handler) error
}

type BanRequest struct {
	Identity string `json:"username"`
	// Days of zero means permanent.
	Days    int    `json:"duration,omitempty"`
	Reason  string `json:"reason"`
	Note    string `json:"note,omitempty"`
	Message string `json:"message,omitempty"`
}

// ModTools are the manual actions offered on the dashboard.
type ModTools interface {
	Approve(ctx context.Context, fullname string) error
	RemoveItem(ctx context.Context, fullname string, spam bool, modNote string) error
	IgnoreReports(ctx context.Context, fullname string) error
	Ban(ctx context.Context, req BanRequest) error
}
