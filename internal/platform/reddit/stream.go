package reddit

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"tierguard/internal/constants"
	"tierguard/internal/logger"
	"tierguard/internal/platform"
	"tierguard/pkg/logging"
	"tierguard/pkg/retry"
)

const listingLimit = 100

type lister interface {
	NewSubmissions(ctx context.Context, limit int) ([]platform.Submission, error)
}

// Stream polls the community's new listing and hands each unseen submission
// to the handler, oldest first.
type Stream struct {
	client       lister
	interval     time.Duration
	skipExisting bool
	seen         *lru.Cache[string, struct{}]
	backoff      backoff.BackOff
	log          logger.Logger
}

type StreamOptions struct {
	PollInterval time.Duration
	// SkipExisting marks the backlog present at startup as seen without
	// handling it.
	SkipExisting bool
	SeenCacheSize int
}

func NewStream(client lister, opts StreamOptions, log logger.Logger) (*Stream, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = constants.DefaultPollInterval
	}
	if opts.SeenCacheSize < listingLimit {
		opts.SeenCacheSize = constants.DefaultSeenCacheSize
	}

	seen, err := lru.New[string, struct{}](opts.SeenCacheSize)
	if err != nil {
		return nil, err
	}

	return &Stream{
		client:       client,
		interval:     opts.PollInterval,
		skipExisting: opts.SkipExisting,
		seen:         seen,
		backoff:      retry.ExponentialBackoff(time.Second, 2*time.Minute, 2.0),
		log:          log.Named("stream"),
	}, nil
}

// Run blocks until ctx is cancelled. Listing failures are retried with
// exponential backoff; handler errors are logged and skipped.
func (s *Stream) Run(ctx context.Context, handle platform.Handler) error {
	primed := !s.skipExisting

	for {
		wait := s.interval

		subs, err := s.client.NewSubmissions(ctx, listingLimit)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait = s.backoff.NextBackOff()
			s.log.Warnw("Failed to poll submissions, backing off",
				"error", err,
				"retry_in", wait.String(),
			)
		} else {
			s.backoff.Reset()
			s.dispatch(ctx, subs, primed, handle)
			primed = true
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (s *Stream) dispatch(ctx context.Context, subs []platform.Submission, primed bool, handle platform.Handler) {
	for i := len(subs) - 1; i >= 0; i-- {
		sub := subs[i]
		if s.seen.Contains(sub.ID) {
			continue
		}
		s.seen.Add(sub.ID, struct{}{})

		if !primed {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		subCtx := logging.WithSubmissionID(ctx, sub.ID)
		if err := handle(subCtx, sub); err != nil {
			s.log.ErrorwCtx(subCtx, "Failed to handle submission", "error", err)
		}
	}
}
