package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tierguard/internal/config"
)

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.RateLimitConfig{RPS: 2, CleanupInterval: 30, MaxAge: 60})
	assert.Equal(t, 2.0, cfg.RPS)
	assert.Equal(t, 20, cfg.Burst)
	assert.Equal(t, 30*time.Second, cfg.CleanupInterval)
	assert.Equal(t, time.Minute, cfg.MaxAge)
}

func TestStoreAllow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewStore(Config{RPS: 1, Burst: 2, MaxAge: time.Minute})
	store.now = func() time.Time { return now }

	ok, remaining := store.Allow("10.0.0.1")
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)

	ok, _ = store.Allow("10.0.0.1")
	assert.True(t, ok)

	ok, _ = store.Allow("10.0.0.1")
	assert.False(t, ok, "burst exhausted")

	ok, _ = store.Allow("10.0.0.2")
	assert.True(t, ok, "buckets are per client")

	now = now.Add(time.Second)
	ok, _ = store.Allow("10.0.0.1")
	assert.True(t, ok, "bucket refills")
}

func TestStoreSweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewStore(Config{RPS: 1, Burst: 1, MaxAge: time.Minute})
	store.now = func() time.Time { return now }

	store.Allow("old")
	now = now.Add(50 * time.Second)
	store.Allow("fresh")
	now = now.Add(20 * time.Second)

	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := NewStore(Config{RPS: 1, Burst: 1, MaxAge: time.Minute})

	router := gin.New()
	router.Use(store.Handler())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}
