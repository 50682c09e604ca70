package window

import (
	"context"
	"time"

	"tierguard/internal/config"
	"tierguard/pkg/circuitbreaker"
)

// CircuitBreakerRepository fails window calls fast while the backend is
// unhealthy. A tripped breaker surfaces as an error, so the decision for that
// submission fails rather than being made against a guessed count.
type CircuitBreakerRepository struct {
	repo Store
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerRepository(repo Store, name string, cfg config.CircuitBreakerConfig) *CircuitBreakerRepository {
	return &CircuitBreakerRepository{
		repo: repo,
		cb:   circuitbreaker.New(name, cfg),
	}
}

func (r *CircuitBreakerRepository) Prune(ctx context.Context, now time.Time) (int64, error) {
	return circuitbreaker.Execute(ctx, r.cb, func() (int64, error) {
		return r.repo.Prune(ctx, now)
	})
}

func (r *CircuitBreakerRepository) Count(ctx context.Context, identity string) (int, error) {
	return circuitbreaker.Execute(ctx, r.cb, func() (int, error) {
		return r.repo.Count(ctx, identity)
	})
}

func (r *CircuitBreakerRepository) Record(ctx context.Context, identity string, now time.Time) error {
	_, err := circuitbreaker.Execute(ctx, r.cb, func() (struct{}, error) {
		return struct{}{}, r.repo.Record(ctx, identity, now)
	})
	return err
}

type recordResult struct {
	accepted bool
	count    int
}

func (r *CircuitBreakerRepository) RecordIfUnder(ctx context.Context, identity string, now time.Time, limit int) (bool, int, error) {
	res, err := circuitbreaker.Execute(ctx, r.cb, func() (recordResult, error) {
		accepted, count, err := r.repo.RecordIfUnder(ctx, identity, now, limit)
		return recordResult{accepted: accepted, count: count}, err
	})
	return res.accepted, res.count, err
}

func (r *CircuitBreakerRepository) State() string {
	return r.cb.State()
}

func (r *CircuitBreakerRepository) IsOpen() bool {
	return r.cb.IsOpen()
}
