package providers

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"

	"github.com/listenupapp/tasksync-server/internal/config"
	"github.com/listenupapp/tasksync-server/internal/logger"
	"github.com/listenupapp/tasksync-server/internal/share"
)

// CacheHandle wraps the share snapshot cache with Shutdownable.
type CacheHandle struct {
	share.Cache
	client *redis.Client
}

// Shutdown implements do.Shutdownable.
func (h *CacheHandle) Shutdown() error {
	if h.client == nil {
		return nil
	}
	return h.client.Close()
}

// ProvideCache provides the share cache configured for the server.
func ProvideCache(i do.Injector) (*CacheHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	return OpenCache(context.Background(), cfg.Cache, log), nil
}

// OpenCache connects the Redis share cache, or returns a no-op cache when no
// Redis address is configured. An unreachable Redis is logged, not fatal:
// shared reads fall back to the store.
func OpenCache(ctx context.Context, cfg config.CacheConfig, log *logger.Logger) *CacheHandle {
	if !cfg.Enabled() {
		log.Info("Share cache disabled")
		return &CacheHandle{Cache: share.NopCache{}}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("Share cache unreachable at startup", "addr", cfg.RedisAddr, "error", err)
	} else {
		log.Info("Share cache connected", "addr", cfg.RedisAddr, "ttl", cfg.ShareTTL)
	}

	return &CacheHandle{
		Cache:  share.NewRedisCache(client, cfg.ShareTTL, log.Logger),
		client: client,
	}
}
