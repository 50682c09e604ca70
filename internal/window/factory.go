package window

import (
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tierguard/internal/config"
	"tierguard/internal/constants"
)

// New builds the backend named by moderation.window_backend wrapped in a
// circuit breaker.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) (Store, error) {
	var repo Store
	switch cfg.Moderation.WindowBackend {
	case "", constants.BackendPostgres:
		if db == nil {
			return nil, fmt.Errorf("window backend postgres requires a database connection")
		}
		repo = NewPostgresRepository(db)
	case constants.BackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("window backend redis requires a redis connection")
		}
		repo = NewRedisRepository(rdb, cfg.Database.Redis.KeyPrefix)
	case constants.BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported window backend: %s", cfg.Moderation.WindowBackend)
	}

	return NewCircuitBreakerRepository(repo, "window-"+backendName(cfg.Moderation.WindowBackend), cfg.CircuitBreaker), nil
}

func backendName(backend string) string {
	if backend == "" {
		return constants.BackendPostgres
	}
	return backend
}
