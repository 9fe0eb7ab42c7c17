// Package storetest is a conformance suite every store.RecordStore backend runs.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/listenupapp/tasksync-server/internal/domain"
	"github.com/listenupapp/tasksync-server/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory opens an empty store. The suite closes it.
type Factory func(t *testing.T) store.RecordStore

var (
	keyA = domain.Key{Owner: "owner-a", TaskType: domain.TaskTypeCouple, Category: domain.CategoryTruth}
	keyB = domain.Key{Owner: "owner-a", TaskType: domain.TaskTypeCouple, Category: domain.CategoryDare}
	keyC = domain.Key{Owner: "owner-b", TaskType: domain.TaskTypeCouple, Category: domain.CategoryTruth}
)

// Run executes every conformance test against stores produced by open.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(*testing.T, store.RecordStore)
	}{
		{"GetMissing", testGetMissing},
		{"UpsertAndGet", testUpsertAndGet},
		{"UpsertReplaces", testUpsertReplaces},
		{"MutateCreate", testMutateCreate},
		{"MutateDeclines", testMutateDeclines},
		{"MutatePassesErrors", testMutatePassesErrors},
		{"KeysAreIndependent", testKeysAreIndependent},
		{"Delete", testDelete},
		{"ShareLookup", testShareLookup},
		{"ShareDigestUnique", testShareDigestUnique},
		{"DeleteRevokesShare", testDeleteRevokesShare},
		{"ListByOwner", testListByOwner},
		{"Scan", testScan},
		{"ConcurrentMutate", testConcurrentMutate},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func record(key domain.Key, version int64, tasks ...string) *domain.TaskLibrary {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.TaskLibrary{
		Owner:        key.Owner,
		TaskType:     key.TaskType,
		Category:     key.Category,
		Tasks:        domain.CloneTasks(tasks),
		Version:      version,
		LastModified: now,
	}
}

func bump(tasks ...string) store.MutateFunc {
	return func(cur *domain.TaskLibrary) (*domain.TaskLibrary, error) {
		if cur == nil {
			return nil, errors.New("expected existing record")
		}
		next := cur.Clone()
		next.Version++
		next.Tasks = domain.CloneTasks(tasks)
		return next, nil
	}
}

func testGetMissing(t *testing.T, s store.RecordStore) {
	_, err := s.Get(context.Background(), keyA)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUpsertAndGet(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	in := record(keyA, 1, "first", "second")

	out, err := s.Upsert(ctx, in)
	require.NoError(t, err)
	assert.NotEmpty(t, out.ID)

	got, err := s.Get(ctx, keyA)
	require.NoError(t, err)
	assert.Equal(t, keyA, got.Key())
	assert.Equal(t, []string{"first", "second"}, got.Tasks)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, out.ID, got.ID)
	assert.True(t, in.LastModified.Equal(got.LastModified))
	assert.False(t, got.Shared)
}

func testUpsertReplaces(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	first, err := s.Upsert(ctx, record(keyA, 1, "a"))
	require.NoError(t, err)

	_, err = s.Upsert(ctx, record(keyA, 9))
	require.NoError(t, err)

	got, err := s.Get(ctx, keyA)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.Version)
	assert.Empty(t, got.Tasks)
	assert.NotNil(t, got.Tasks)
	assert.Equal(t, first.ID, got.ID, "natural key keeps one row")
}

func testMutateCreate(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	var seen *domain.TaskLibrary
	sawNil := false

	out, err := s.Mutate(ctx, keyA, func(cur *domain.TaskLibrary) (*domain.TaskLibrary, error) {
		seen = cur
		sawNil = cur == nil
		return record(keyA, 1, "x"), nil
	})
	require.NoError(t, err)
	assert.True(t, sawNil, "absent record is passed as nil")
	assert.Nil(t, seen)
	assert.Equal(t, int64(1), out.Version)

	out, err = s.Mutate(ctx, keyA, bump("y", "z"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Version)
	assert.Equal(t, []string{"y", "z"}, out.Tasks)
}

func testMutateDeclines(t *testing.T, s store.RecordStore) {
	ctx := context.Background()

	out, err := s.Mutate(ctx, keyA, func(*domain.TaskLibrary) (*domain.TaskLibrary, error) { return nil, nil })
	require.NoError(t, err)
	assert.Nil(t, out)
	_, err = s.Get(ctx, keyA)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Upsert(ctx, record(keyA, 3, "keep"))
	require.NoError(t, err)

	out, err = s.Mutate(ctx, keyA, func(*domain.TaskLibrary) (*domain.TaskLibrary, error) { return nil, nil })
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, int64(3), out.Version)
	assert.Equal(t, []string{"keep"}, out.Tasks)
}

func testMutatePassesErrors(t *testing.T, s store.RecordStore) {
	sentinel := errors.New("refuse")
	_, err := s.Mutate(context.Background(), keyA, func(*domain.TaskLibrary) (*domain.TaskLibrary, error) {
		return nil, sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}

func testKeysAreIndependent(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	_, err := s.Upsert(ctx, record(keyA, 5, "a"))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, record(keyB, 1, "b"))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, record(keyC, 2, "c"))
	require.NoError(t, err)

	_, err = s.Mutate(ctx, keyA, bump("a2"))
	require.NoError(t, err)

	b, err := s.Get(ctx, keyB)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Version)
	assert.Equal(t, []string{"b"}, b.Tasks)

	c, err := s.Get(ctx, keyC)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Version)
}

func testDelete(t *testing.T, s store.RecordStore) {
	ctx := context.Background()

	existed, err := s.Delete(ctx, keyA)
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = s.Upsert(ctx, record(keyA, 1))
	require.NoError(t, err)

	existed, err = s.Delete(ctx, keyA)
	require.NoError(t, err)
	assert.True(t, existed)

	_, err = s.Get(ctx, keyA)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func share(hash string) store.MutateFunc {
	return func(cur *domain.TaskLibrary) (*domain.TaskLibrary, error) {
		next := cur.Clone()
		next.Shared = true
		next.ShareTokenHash = hash
		return next, nil
	}
}

func testShareLookup(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	_, err := s.Upsert(ctx, record(keyA, 2, "shared task"))
	require.NoError(t, err)

	_, err = s.GetByShareHash(ctx, "digest-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Mutate(ctx, keyA, share("digest-1"))
	require.NoError(t, err)

	got, err := s.GetByShareHash(ctx, "digest-1")
	require.NoError(t, err)
	assert.Equal(t, keyA, got.Key())
	assert.True(t, got.Shared)
	assert.Equal(t, int64(2), got.Version, "sharing does not bump the version")

	// Re-sharing replaces the digest; the old one stops resolving.
	_, err = s.Mutate(ctx, keyA, share("digest-2"))
	require.NoError(t, err)
	_, err = s.GetByShareHash(ctx, "digest-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetByShareHash(ctx, "digest-2")
	require.NoError(t, err)

	// Content writes keep the share.
	_, err = s.Mutate(ctx, keyA, bump("edited"))
	require.NoError(t, err)
	got, err = s.GetByShareHash(ctx, "digest-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"edited"}, got.Tasks)

	// Unsharing clears it.
	_, err = s.Mutate(ctx, keyA, func(cur *domain.TaskLibrary) (*domain.TaskLibrary, error) {
		next := cur.Clone()
		next.Shared = false
		return next, nil
	})
	require.NoError(t, err)
	_, err = s.GetByShareHash(ctx, "digest-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testShareDigestUnique(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	_, err := s.Upsert(ctx, record(keyA, 1))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, record(keyC, 1))
	require.NoError(t, err)

	_, err = s.Mutate(ctx, keyA, share("same"))
	require.NoError(t, err)

	_, err = s.Mutate(ctx, keyC, share("same"))
	assert.ErrorIs(t, err, store.ErrShareTokenTaken)

	got, err := s.GetByShareHash(ctx, "same")
	require.NoError(t, err)
	assert.Equal(t, keyA, got.Key())
}

func testDeleteRevokesShare(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	_, err := s.Upsert(ctx, record(keyA, 1))
	require.NoError(t, err)
	_, err = s.Mutate(ctx, keyA, share("gone-soon"))
	require.NoError(t, err)

	_, err = s.Delete(ctx, keyA)
	require.NoError(t, err)

	_, err = s.GetByShareHash(ctx, "gone-soon")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Recreating the key does not resurrect the share.
	_, err = s.Upsert(ctx, record(keyA, 1))
	require.NoError(t, err)
	_, err = s.GetByShareHash(ctx, "gone-soon")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testListByOwner(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	for _, k := range []domain.Key{keyB, keyA, keyC} {
		_, err := s.Upsert(ctx, record(k, 1))
		require.NoError(t, err)
	}

	libs, err := s.ListByOwner(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, libs, 2)
	assert.Equal(t, keyA, libs[0].Key(), "truth sorts before dare")
	assert.Equal(t, keyB, libs[1].Key())

	none, err := s.ListByOwner(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testScan(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	for _, k := range []domain.Key{keyA, keyB, keyC} {
		_, err := s.Upsert(ctx, record(k, 1))
		require.NoError(t, err)
	}

	seen := map[domain.Key]bool{}
	err := s.Scan(ctx, func(l *domain.TaskLibrary) error {
		seen[l.Key()] = true
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 3)

	stop := errors.New("stop")
	calls := 0
	err = s.Scan(ctx, func(*domain.TaskLibrary) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

// Concurrent increments on one key must not lose updates.
func testConcurrentMutate(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	_, err := s.Upsert(ctx, record(keyA, 1))
	require.NoError(t, err)

	const writers = 12
	var wg sync.WaitGroup
	errs := make(chan error, writers)

	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Mutate(ctx, keyA, bump())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Get(ctx, keyA)
	require.NoError(t, err)
	assert.Equal(t, int64(1+writers), got.Version)
}

func testPing(t *testing.T, s store.RecordStore) {
	assert.NoError(t, s.Ping(context.Background()))
}
