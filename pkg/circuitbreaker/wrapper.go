package circuitbreaker

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"tierguard/internal/config"
	"tierguard/pkg/metrics"
)

// Config defines circuit breaker configuration
type Config struct {
	Name          string
	MaxRequests   uint32
	Interval      time.Duration
	Timeout       time.Duration
	ReadyToTrip   func(counts gobreaker.Counts) bool
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: ratioTrip(3, 0.5),
	}
}

// FromConfig overlays the non-zero fields of the process configuration on
// DefaultConfig.
func FromConfig(name string, cfg config.CircuitBreakerConfig) Config {
	c := DefaultConfig(name)
	if cfg.MaxRequests > 0 {
		c.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		c.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		c.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		c.ReadyToTrip = ratioTrip(cfg.MinRequests, cfg.FailureRatio)
	}
	return c
}

func ratioTrip(minRequests uint32, ratio float64) func(gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		if counts.Requests < minRequests {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
	}
}

// Wrapper guards calls to a single collaborator.
type Wrapper struct {
	cb *gobreaker.CircuitBreaker
}

// New returns nil when the breaker is disabled; Execute on a nil Wrapper
// calls through.
func New(name string, cfg config.CircuitBreakerConfig) *Wrapper {
	if !cfg.Enabled {
		return nil
	}
	return NewWrapper(FromConfig(name, cfg))
}

func NewWrapper(cfg Config) *Wrapper {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.ReadyToTrip,
	}

	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		setStateMetric(name, to)
		if cfg.OnStateChange != nil {
			cfg.OnStateChange(name, from, to)
		}
	}

	cb := gobreaker.NewCircuitBreaker(settings)
	setStateMetric(cfg.Name, cb.State())

	return &Wrapper{cb: cb}
}

// Execute runs fn through the breaker. A cancelled context short-circuits
// without counting against the breaker.
func Execute[T any](ctx context.Context, w *Wrapper, fn func() (T, error)) (T, error) {
	var zero T
	if w == nil {
		return fn()
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	result, err := w.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	w.record(err == nil)

	if err != nil {
		if w.IsOpen() {
			return zero, fmt.Errorf("circuit breaker is open for %s: %w", w.Name(), err)
		}
		return zero, err
	}

	value, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker %s: unexpected result type %T", w.Name(), result)
	}
	return value, nil
}

// State reports "disabled" for a nil Wrapper.
func (w *Wrapper) State() string {
	if w == nil {
		return "disabled"
	}
	return w.cb.State().String()
}

func (w *Wrapper) Counts() gobreaker.Counts {
	if w == nil {
		return gobreaker.Counts{}
	}
	return w.cb.Counts()
}

func (w *Wrapper) Name() string {
	if w == nil {
		return ""
	}
	return w.cb.Name()
}

func (w *Wrapper) IsOpen() bool {
	return w != nil && w.cb.State() == gobreaker.StateOpen
}

func (w *Wrapper) record(success bool) {
	metrics.CircuitBreakerRequests.WithLabelValues(w.cb.Name(), w.cb.State().String()).Inc()
	if !success {
		metrics.CircuitBreakerFailures.WithLabelValues(w.cb.Name()).Inc()
	}
}

func setStateMetric(name string, state gobreaker.State) {
	var value float64
	switch state {
	case gobreaker.StateClosed:
		value = 0
	case gobreaker.StateHalfOpen:
		value = 1
	case gobreaker.StateOpen:
		value = 2
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(value)
}
