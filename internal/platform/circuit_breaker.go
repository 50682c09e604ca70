package platform

import (
	"context"

	"tierguard/internal/config"
	"tierguard/pkg/circuitbreaker"
)

// CircuitBreakerKarma stops hammering the account endpoint while it is failing.
// Errors still reach the engine, which treats the author as having zero karma.
type CircuitBreakerKarma struct {
	next KarmaFetcher
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerKarma(next KarmaFetcher, cfg config.CircuitBreakerConfig) *CircuitBreakerKarma {
	return &CircuitBreakerKarma{
		next: next,
		cb:   circuitbreaker.New("platform-karma", cfg),
	}
}

func (k *CircuitBreakerKarma) Karma(ctx context.Context, identity string) (int64, error) {
	return circuitbreaker.Execute(ctx, k.cb, func() (int64, error) {
		return k.next.Karma(ctx, identity)
	})
}

func (k *CircuitBreakerKarma) State() string {
	return k.cb.State()
}

func (k *CircuitBreakerKarma) IsOpen() bool {
	return k.cb.IsOpen()
}
