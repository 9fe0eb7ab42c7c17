package providers

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/tasksync-server/internal/auth"
	"github.com/listenupapp/tasksync-server/internal/config"
	"github.com/listenupapp/tasksync-server/internal/domain"
	"github.com/listenupapp/tasksync-server/internal/logger"
	"github.com/listenupapp/tasksync-server/internal/share"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Writer: io.Discard, Level: slog.LevelError})
}

func testInjector(t *testing.T, cfg *config.Config) *do.RootScope {
	t.Helper()
	i := do.New()
	do.ProvideValue(i, cfg)
	do.ProvideValue(i, testLogger())
	t.Cleanup(func() { _ = i.Shutdown() })
	return i
}

func TestOpenStore_LocalDrivers(t *testing.T) {
	for _, driver := range []string{config.DriverSQLite, config.DriverBadger} {
		t.Run(driver, func(t *testing.T) {
			dataPath := filepath.Join(t.TempDir(), "nested", "data")

			st, err := OpenStore(context.Background(), config.StorageConfig{Driver: driver, DataPath: dataPath}, testLogger())
			require.NoError(t, err)
			defer st.Close()

			require.NoError(t, st.Ping(context.Background()))
			_, err = os.Stat(dataPath)
			assert.NoError(t, err, "data directory should be created")
		})
	}
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), config.StorageConfig{Driver: "mongo", DataPath: t.TempDir()}, testLogger())
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestProvideCache_Disabled(t *testing.T) {
	i := testInjector(t, &config.Config{})
	do.Provide(i, ProvideCache)

	h := do.MustInvoke[*CacheHandle](i)
	assert.IsType(t, share.NopCache{}, h.Cache)
	assert.NoError(t, h.Shutdown())
}

func TestProvideCache_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	i := testInjector(t, &config.Config{Cache: config.CacheConfig{RedisAddr: mr.Addr(), ShareTTL: time.Minute}})
	do.Provide(i, ProvideCache)

	h := do.MustInvoke[*CacheHandle](i)
	assert.IsType(t, &share.RedisCache{}, h.Cache)
	assert.NoError(t, h.Ping(context.Background()))
}

func TestOpenCache_UnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	h := OpenCache(context.Background(), config.CacheConfig{RedisAddr: addr, ShareTTL: time.Minute}, testLogger())
	t.Cleanup(func() { _ = h.Shutdown() })

	assert.IsType(t, &share.RedisCache{}, h.Cache, "startup continues without Redis")
	assert.Error(t, h.Ping(context.Background()))
}

func TestOpenCache_EvictsThroughHandle(t *testing.T) {
	mr := miniredis.RunT(t)
	h := OpenCache(context.Background(), config.CacheConfig{RedisAddr: mr.Addr(), ShareTTL: time.Minute}, testLogger())
	defer func() { require.NoError(t, h.Shutdown()) }()

	key := domain.Key{Owner: "alice", TaskType: domain.TaskTypeCouple, Category: domain.CategoryTruth}
	require.NoError(t, h.Evict(context.Background(), key, 1))
	assert.NotEmpty(t, mr.Keys(), "eviction fences the key")
}

func TestProvideAuthKey(t *testing.T) {
	t.Run("from config", func(t *testing.T) {
		key := "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
		i := testInjector(t, &config.Config{Auth: config.AuthConfig{AccessTokenKey: key}})
		do.Provide(i, ProvideAuthKey)

		assert.Equal(t, AuthKey(key), do.MustInvoke[AuthKey](i))
	})

	t.Run("generated into data path", func(t *testing.T) {
		dataPath := t.TempDir()
		cfg := &config.Config{
			Storage: config.StorageConfig{DataPath: dataPath},
			Auth:    config.AuthConfig{AccessTokenDuration: time.Hour},
		}
		i := testInjector(t, cfg)
		do.Provide(i, ProvideAuthKey)
		do.Provide(i, ProvideTokenService)

		key := do.MustInvoke[AuthKey](i)
		assert.Equal(t, string(key), cfg.Auth.AccessTokenKey)

		stored, err := auth.LoadKey(filepath.Join(dataPath, auth.KeyFile))
		require.NoError(t, err)
		assert.Equal(t, string(key), stored)

		tokens := do.MustInvoke[*auth.TokenService](i)
		token, err := tokens.GenerateAccessToken("alice")
		require.NoError(t, err)
		claims, err := tokens.VerifyAccessToken(token)
		require.NoError(t, err)
		assert.Equal(t, "alice", claims.Owner)
	})
}

func TestProvideRateLimiter(t *testing.T) {
	i := testInjector(t, &config.Config{RateLimit: config.RateLimitConfig{PerMinute: 60, Burst: 1}})
	do.Provide(i, ProvideRateLimiter)

	h := do.MustInvoke[*RateLimiterHandle](i)
	assert.True(t, h.Allow("ip:192.0.2.1"))
	assert.False(t, h.Allow("ip:192.0.2.1"))
}
