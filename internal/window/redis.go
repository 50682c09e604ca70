package window

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tierguard/internal/constants"
)

const indexSuffix = "index"

// recordIfUnderScript: KEYS[1] window zset, KEYS[2] identity index.
// ARGV: cutoff, score, limit, member, ttl seconds, identity.
var recordIfUnderScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
local n = redis.call('ZCARD', KEYS[1])
if n >= tonumber(ARGV[3]) then
  return {0, n}
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
redis.call('EXPIRE', KEYS[1], ARGV[5])
redis.call('SADD', KEYS[2], ARGV[6])
return {1, n + 1}
`)

// RedisRepository keeps one sorted set per identity scored by unix seconds,
// plus a set indexing which identities have a window.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisRepository(client *redis.Client, keyPrefix string) *RedisRepository {
	return &RedisRepository{client: client, prefix: keyPrefix + constants.CacheKeyPrefixWindow}
}

func (r *RedisRepository) key(identity string) string {
	return r.prefix + identity
}

func (r *RedisRepository) indexKey() string {
	return r.prefix + indexSuffix
}

func formatScore(t time.Time) string {
	return strconv.FormatFloat(unixSeconds(t), 'f', -1, 64)
}

func newMember(now time.Time) string {
	return formatScore(now) + ":" + uuid.NewString()
}

func (r *RedisRepository) Prune(ctx context.Context, now time.Time) (int64, error) {
	identities, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis SMEMBERS failed: %w", err)
	}
	if len(identities) == 0 {
		return 0, nil
	}

	upper := "(" + formatScore(cutoff(now))

	pipe := r.client.Pipeline()
	removed := make([]*redis.IntCmd, len(identities))
	remaining := make([]*redis.IntCmd, len(identities))
	for i, identity := range identities {
		removed[i] = pipe.ZRemRangeByScore(ctx, r.key(identity), "-inf", upper)
		remaining[i] = pipe.ZCard(ctx, r.key(identity))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis prune pipeline failed: %w", err)
	}

	var total int64
	var empty []interface{}
	for i, identity := range identities {
		total += removed[i].Val()
		if remaining[i].Val() == 0 {
			empty = append(empty, identity)
		}
	}

	if len(empty) > 0 {
		if err := r.client.SRem(ctx, r.indexKey(), empty...).Err(); err != nil {
			return total, fmt.Errorf("redis SREM failed: %w", err)
		}
	}

	return total, nil
}

func (r *RedisRepository) Count(ctx context.Context, identity string) (int, error) {
	n, err := r.client.ZCard(ctx, r.key(identity)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ZCARD failed: %w", err)
	}
	return int(n), nil
}

func (r *RedisRepository) Record(ctx context.Context, identity string, now time.Time) error {
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, r.key(identity), redis.Z{Score: unixSeconds(now), Member: newMember(now)})
	pipe.Expire(ctx, r.key(identity), Duration)
	pipe.SAdd(ctx, r.indexKey(), identity)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis record failed: %w", err)
	}
	return nil
}

func (r *RedisRepository) RecordIfUnder(ctx context.Context, identity string, now time.Time, limit int) (bool, int, error) {
	res, err := recordIfUnderScript.Run(ctx, r.client,
		[]string{r.key(identity), r.indexKey()},
		formatScore(cutoff(now)),
		formatScore(now),
		limit,
		newMember(now),
		int(Duration/time.Second),
		identity,
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis record script failed: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("redis record script returned %d values", len(res))
	}
	return res[0] == 1, int(res[1]), nil
}
