package share

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/listenupapp/tasksync-server/internal/domain"
	domainerrors "github.com/listenupapp/tasksync-server/internal/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, time.Minute, nil), mr
}

func sharedLib(revision int64, hash string, tasks ...string) *domain.TaskLibrary {
	return &domain.TaskLibrary{
		Owner:          libKey.Owner,
		TaskType:       libKey.TaskType,
		Category:       libKey.Category,
		Tasks:          tasks,
		Version:        revision,
		Revision:       revision,
		Shared:         true,
		ShareTokenHash: hash,
		LastModified:   time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRedisCache_PutGet(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, "h1")
	assert.False(t, ok)

	c.Put(ctx, sharedLib(1, "h1", "a"))

	snap, ok := c.Get(ctx, "h1")
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, snap.Tasks)
	assert.Equal(t, domain.TaskTypeCouple, snap.TaskType)

	assert.Equal(t, time.Minute, mr.TTL(snapshotPrefix+"h1"))
}

func TestRedisCache_PutSkipsPrivate(t *testing.T) {
	c, mr := newRedisCache(t)
	lib := sharedLib(1, "h1")
	lib.Shared = false

	c.Put(context.Background(), lib)
	assert.False(t, mr.Exists(snapshotPrefix+"h1"))
}

func TestRedisCache_EvictRemovesSnapshot(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	c.Put(ctx, sharedLib(1, "h1", "a"))
	require.NoError(t, c.Evict(ctx, libKey, 2))

	_, ok := c.Get(ctx, "h1")
	assert.False(t, ok)
	assert.False(t, mr.Exists(indexPrefix+keyID(libKey)))
}

// A reader that loaded revision 1 before a write to revision 2 must not be
// able to cache its stale snapshot after the eviction.
func TestRedisCache_EvictFencesOlderPuts(t *testing.T) {
	c, _ := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Evict(ctx, libKey, 2))
	c.Put(ctx, sharedLib(1, "h1", "stale"))

	_, ok := c.Get(ctx, "h1")
	assert.False(t, ok)

	c.Put(ctx, sharedLib(2, "h1", "fresh"))
	snap, ok := c.Get(ctx, "h1")
	require.True(t, ok)
	assert.Equal(t, []string{"fresh"}, snap.Tasks)
}

func TestRedisCache_FenceNeverLowers(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Evict(ctx, libKey, 5))
	require.NoError(t, c.Evict(ctx, libKey, 3))

	got, err := mr.Get(revisionPrefix + keyID(libKey))
	require.NoError(t, err)
	assert.Equal(t, "5", got)
}

func TestRedisCache_CorruptEntry(t *testing.T) {
	c, mr := newRedisCache(t)
	require.NoError(t, mr.Set(snapshotPrefix+"bad", "{not json"))

	_, ok := c.Get(context.Background(), "bad")
	assert.False(t, ok)
	assert.False(t, mr.Exists(snapshotPrefix+"bad"))
}

func TestRedisCache_ServerDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisCache(client, time.Minute, nil)
	ctx := context.Background()

	_, ok := c.Get(ctx, "h1")
	assert.False(t, ok)
	c.Put(ctx, sharedLib(1, "h1"))
	assert.Error(t, c.Evict(ctx, libKey, 1))
	assert.Error(t, c.Ping(ctx))
}

// The registry serves repeat resolves from Redis and stops serving them once
// the share is revoked.
func TestRegistryWithRedis(t *testing.T) {
	c, mr := newRedisCache(t)
	reg, s := newTestRegistry(t, c)
	ctx := context.Background()
	seed(t, s, "cached")

	token, err := reg.Create(ctx, libKey)
	require.NoError(t, err)

	_, err = reg.Resolve(ctx, token)
	require.NoError(t, err)
	assert.True(t, mr.Exists(snapshotPrefix+HashToken(token)))

	snap, err := reg.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, []string{"cached"}, snap.Tasks)

	require.NoError(t, reg.Revoke(ctx, libKey))
	assert.False(t, mr.Exists(snapshotPrefix+HashToken(token)))

	_, err = reg.Resolve(ctx, token)
	assert.Error(t, err)
}

func TestNopCache(t *testing.T) {
	var c Cache = NopCache{}
	ctx := context.Background()

	c.Put(ctx, sharedLib(1, "h"))
	_, ok := c.Get(ctx, "h")
	assert.False(t, ok)
	assert.NoError(t, c.Evict(ctx, libKey, 1))
	assert.NoError(t, c.Ping(ctx))
}

// While Redis is failing, deleting a shared library reports StorageUnavailable
// and the stale snapshot keeps resolving; the retried delete clears it.
func TestRegistryWithRedis_DeleteDuringOutage(t *testing.T) {
	c, mr := newRedisCache(t)
	reg, s := newTestRegistry(t, c)
	ctx := context.Background()
	seed(t, s, "secret")

	token, err := reg.Create(ctx, libKey)
	require.NoError(t, err)
	_, err = reg.Resolve(ctx, token)
	require.NoError(t, err)
	require.True(t, mr.Exists(snapshotPrefix+HashToken(token)))

	mr.SetError("ERR cache unavailable")
	existed, err := s.Delete(ctx, libKey)
	require.NoError(t, err)
	require.True(t, existed)
	err = reg.InvalidateDeleted(ctx, libKey)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrStorageUnavailable), "got %v", err)
	mr.SetError("")

	require.NoError(t, reg.InvalidateDeleted(ctx, libKey))
	_, err = reg.Resolve(ctx, token)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound), "got %v", err)
}

func TestRegistryWithRedis_RevokeDuringOutage(t *testing.T) {
	c, mr := newRedisCache(t)
	reg, s := newTestRegistry(t, c)
	ctx := context.Background()
	seed(t, s, "secret")

	token, err := reg.Create(ctx, libKey)
	require.NoError(t, err)
	_, err = reg.Resolve(ctx, token)
	require.NoError(t, err)

	mr.SetError("ERR cache unavailable")
	err = reg.Revoke(ctx, libKey)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrStorageUnavailable), "got %v", err)
	mr.SetError("")

	// The record is already private; the retry still evicts.
	require.NoError(t, reg.Revoke(ctx, libKey))
	_, err = reg.Resolve(ctx, token)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound), "got %v", err)
}

func TestRegistryWithRedis_ReshareDuringOutage(t *testing.T) {
	c, mr := newRedisCache(t)
	reg, s := newTestRegistry(t, c)
	ctx := context.Background()
	seed(t, s, "secret")

	first, err := reg.Create(ctx, libKey)
	require.NoError(t, err)
	_, err = reg.Resolve(ctx, first)
	require.NoError(t, err)

	mr.SetError("ERR cache unavailable")
	_, err = reg.Create(ctx, libKey)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrStorageUnavailable), "got %v", err)
	mr.SetError("")

	second, err := reg.Create(ctx, libKey)
	require.NoError(t, err)
	_, err = reg.Resolve(ctx, first)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound), "got %v", err)
	_, err = reg.Resolve(ctx, second)
	assert.NoError(t, err)
}
