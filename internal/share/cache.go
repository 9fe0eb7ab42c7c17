package share

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/listenupapp/tasksync-server/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Cache holds resolved share snapshots keyed by token digest.
//
// Every write to a library must call Evict with the revision it produced so
// an in-flight Put of an older snapshot cannot resurrect stale content.
// Evict reports failure: a snapshot that could not be dropped may still be
// served until it expires.
type Cache interface {
	Get(ctx context.Context, hash string) (*domain.SharedSnapshot, bool)
	Put(ctx context.Context, lib *domain.TaskLibrary)
	Evict(ctx context.Context, key domain.Key, revision int64) error
	Ping(ctx context.Context) error
}

// NopCache caches nothing.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*domain.SharedSnapshot, bool) { return nil, false }
func (NopCache) Put(context.Context, *domain.TaskLibrary)                   {}
func (NopCache) Evict(context.Context, domain.Key, int64) error             { return nil }
func (NopCache) Ping(context.Context) error                                 { return nil }

const (
	snapshotPrefix = "tasksync:share:"
	indexPrefix    = "tasksync:sharekey:"
	revisionPrefix = "tasksync:sharerev:"

	// Tombstone is the eviction revision used for deleted libraries. It is
	// above any reachable revision and exactly representable in Lua numbers.
	Tombstone int64 = 1 << 52
)

// raiseRevision stores max(current, ARGV[1]) and refreshes the expiry.
var raiseRevision = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local rev = tonumber(ARGV[1])
if rev > cur then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// RedisCache is a Cache backed by Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache wraps client. Snapshots live for ttl.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func keyID(key domain.Key) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key.Owner)) + ":" + string(key.TaskType) + ":" + string(key.Category)
}

// Get returns the cached snapshot for a token digest.
func (c *RedisCache) Get(ctx context.Context, hash string) (*domain.SharedSnapshot, bool) {
	b, err := c.client.Get(ctx, snapshotPrefix+hash).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("share cache read failed", "error", err)
		}
		return nil, false
	}

	var snap domain.SharedSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		c.logger.Warn("share cache entry corrupt", "error", err)
		c.client.Del(ctx, snapshotPrefix+hash)
		return nil, false
	}
	return &snap, true
}

// Put caches lib's snapshot unless a newer revision has been evicted since lib was read.
func (c *RedisCache) Put(ctx context.Context, lib *domain.TaskLibrary) {
	if !lib.Shared || lib.ShareTokenHash == "" {
		return
	}

	data, err := json.Marshal(lib.Snapshot())
	if err != nil {
		c.logger.Warn("share cache encode failed", "error", err)
		return
	}

	id := keyID(lib.Key())
	revKey := revisionPrefix + id

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		evicted, err := tx.Get(ctx, revKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if evicted > lib.Revision {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, snapshotPrefix+lib.ShareTokenHash, data, c.ttl)
			p.Set(ctx, indexPrefix+id, lib.ShareTokenHash, c.ttl)
			return nil
		})
		return err
	}, revKey)

	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		c.logger.Warn("share cache write failed", "error", err)
	}
}

// Evict drops the cached snapshot for key and fences out older Puts.
func (c *RedisCache) Evict(ctx context.Context, key domain.Key, revision int64) error {
	id := keyID(key)

	// The fence outlives any snapshot that could have been read before it.
	fence := (2 * c.ttl).Milliseconds()
	if err := raiseRevision.Run(ctx, c.client, []string{revisionPrefix + id}, revision, fence).Err(); err != nil {
		return fmt.Errorf("fence share cache for %s: %w", key, err)
	}

	hash, err := c.client.Get(ctx, indexPrefix+id).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil
	case err != nil:
		return fmt.Errorf("read share cache index for %s: %w", key, err)
	}

	if err := c.client.Del(ctx, snapshotPrefix+hash, indexPrefix+id).Err(); err != nil {
		return fmt.Errorf("evict share cache for %s: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
