package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"tierguard/internal/config"
	"tierguard/pkg/metrics"
)

type Config struct {
	RPS             float64
	Burst           int
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

func DefaultConfig() Config {
	return Config{
		RPS:             10.0,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// FromConfig reads the dashboard settings, where intervals are in seconds.
func FromConfig(cfg config.RateLimitConfig) Config {
	c := DefaultConfig()
	if cfg.RPS > 0 {
		c.RPS = cfg.RPS
	}
	if cfg.Burst > 0 {
		c.Burst = cfg.Burst
	}
	if cfg.CleanupInterval > 0 {
		c.CleanupInterval = time.Duration(cfg.CleanupInterval) * time.Second
	}
	if cfg.MaxAge > 0 {
		c.MaxAge = time.Duration(cfg.MaxAge) * time.Second
	}
	return c
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Store keeps one token bucket per client IP.
type Store struct {
	cfg     Config
	mu      sync.Mutex
	clients map[string]*client
	now     func() time.Time
}

func NewStore(cfg Config) *Store {
	return &Store{
		cfg:     cfg,
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

// Allow takes a token for key and reports the tokens left.
func (s *Store) Allow(key string) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(s.cfg.RPS), s.cfg.Burst)}
		s.clients[key] = c
	}
	c.lastSeen = now

	if !c.limiter.AllowN(now, 1) {
		return false, 0
	}
	remaining := int(c.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining
}

// Sweep forgets clients idle for longer than MaxAge.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, c := range s.clients {
		if now.Sub(c.lastSeen) > s.cfg.MaxAge {
			delete(s.clients, key)
			removed++
		}
	}
	return removed
}

// RunCleanup sweeps every CleanupInterval until ctx is cancelled.
func (s *Store) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Middleware rejects clients over their budget with 429. The cleanup
// goroutine lives as long as ctx.
func Middleware(ctx context.Context, cfg Config) gin.HandlerFunc {
	store := NewStore(cfg)
	go store.RunCleanup(ctx)
	return store.Handler()
}

func (s *Store) Handler() gin.HandlerFunc {
	limit := strconv.Itoa(int(s.cfg.RPS))

	return func(c *gin.Context) {
		key := c.ClientIP()
		if key == "" {
			key = c.RemoteIP()
		}

		allowed, remaining := s.Allow(key)
		c.Header("X-RateLimit-Limit", limit)

		if !allowed {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate limit exceeded",
				"error_code": "RATE_LIMIT_EXCEEDED",
			})
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Next()
	}
}
