package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/tasksync-server/internal/config"
	"github.com/listenupapp/tasksync-server/internal/logger"
	"github.com/listenupapp/tasksync-server/internal/ratelimit"
	"github.com/listenupapp/tasksync-server/internal/service"
	"github.com/listenupapp/tasksync-server/internal/share"
)

// ProvideShareRegistry provides the share token registry.
func ProvideShareRegistry(i do.Injector) (*share.Registry, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	cacheHandle := do.MustInvoke[*CacheHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return share.NewRegistry(storeHandle.RecordStore, cacheHandle.Cache, log.Logger), nil
}

// ProvideTaskService provides the task library service.
func ProvideTaskService(i do.Injector) (*service.TaskService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	registry := do.MustInvoke[*share.Registry](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewTaskService(storeHandle.RecordStore, registry, log.Logger), nil
}

// RateLimiterHandle wraps the keyed rate limiter with Shutdownable.
type RateLimiterHandle struct {
	*ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *RateLimiterHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideRateLimiter provides the per-client request limiter.
func ProvideRateLimiter(i do.Injector) (*RateLimiterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)

	return &RateLimiterHandle{
		KeyedRateLimiter: ratelimit.PerMinute(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst),
	}, nil
}
