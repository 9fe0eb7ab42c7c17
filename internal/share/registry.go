// Package share mints and resolves read-only share tokens for task libraries.
//
// Only a blake2b-256 digest of each token is stored, so a leaked database
// does not leak working links. Minting a token replaces any earlier one.
package share

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/listenupapp/tasksync-server/internal/domain"
	domainerrors "github.com/listenupapp/tasksync-server/internal/errors"
	"github.com/listenupapp/tasksync-server/internal/id"
	"github.com/listenupapp/tasksync-server/internal/store"
	"golang.org/x/crypto/blake2b"
)

// mintAttempts bounds how often Create re-rolls on a digest collision.
const mintAttempts = 5

// HashToken returns the hex blake2b-256 digest stored for token.
func HashToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Registry issues and resolves share tokens on top of a RecordStore.
type Registry struct {
	store    store.RecordStore
	cache    Cache
	logger   *slog.Logger
	newToken func() (string, error)
}

// NewRegistry creates a registry. A nil cache disables snapshot caching.
func NewRegistry(s store.RecordStore, cache Cache, logger *slog.Logger) *Registry {
	if cache == nil {
		cache = NopCache{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		store:    s,
		cache:    cache,
		logger:   logger,
		newToken: id.NewShareToken,
	}
}

var errNoLibrary = domainerrors.NotFound("task library not found")

// Create marks the library at key as shared and returns a fresh token.
// Any previously issued token for the same library stops resolving.
func (r *Registry) Create(ctx context.Context, key domain.Key) (string, error) {
	for range mintAttempts {
		token, err := r.newToken()
		if err != nil {
			return "", domainerrors.Wrap(err, domainerrors.CodeInternal, "mint share token")
		}
		hash := HashToken(token)

		rec, err := r.store.Mutate(ctx, key, func(cur *domain.TaskLibrary) (*domain.TaskLibrary, error) {
			if cur == nil {
				return nil, errNoLibrary
			}
			next := cur.Clone()
			next.Shared = true
			next.ShareTokenHash = hash
			return next, nil
		})
		if errors.Is(err, store.ErrShareTokenTaken) {
			r.logger.Warn("share token digest collision, minting again", "key", key.String())
			continue
		}
		if err != nil {
			return "", store.ToDomain(err)
		}

		// The previous token's snapshot must not outlive the swap.
		if err := r.cache.Evict(ctx, key, rec.Revision); err != nil {
			return "", domainerrors.StorageUnavailable(err)
		}
		r.logger.Info("task library shared", "key", key.String())
		return token, nil
	}
	return "", domainerrors.Internal(fmt.Sprintf("could not mint a unique share token after %d attempts", mintAttempts))
}

// Resolve returns the snapshot a token grants access to.
// Unknown, revoked and deleted shares are all NotFound.
func (r *Registry) Resolve(ctx context.Context, token string) (*domain.SharedSnapshot, error) {
	if token == "" {
		return nil, domainerrors.NotFound("share not found")
	}
	hash := HashToken(token)

	if snap, ok := r.cache.Get(ctx, hash); ok {
		return snap, nil
	}

	lib, err := r.store.GetByShareHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFound("share not found")
		}
		return nil, store.ToDomain(err)
	}

	r.cache.Put(ctx, lib)
	return lib.Snapshot(), nil
}

// Revoke stops sharing the library at key. It succeeds when the library is
// absent or already private. The cache is evicted on every call, so retrying
// after a cache failure finishes the revocation.
func (r *Registry) Revoke(ctx context.Context, key domain.Key) error {
	rec, err := r.store.Mutate(ctx, key, func(cur *domain.TaskLibrary) (*domain.TaskLibrary, error) {
		if cur == nil || !cur.Shared {
			return nil, nil
		}
		next := cur.Clone()
		next.Shared = false
		next.ShareTokenHash = ""
		return next, nil
	})
	if err != nil {
		return store.ToDomain(err)
	}

	revision := Tombstone
	if rec != nil {
		revision = rec.Revision
	}
	if err := r.cache.Evict(ctx, key, revision); err != nil {
		return domainerrors.StorageUnavailable(err)
	}
	return nil
}

// Invalidate drops cached snapshots after a content write to rec. The share
// itself stays valid, so a failure only leaves older content visible until
// the snapshot expires.
func (r *Registry) Invalidate(ctx context.Context, rec *domain.TaskLibrary) {
	if err := r.cache.Evict(ctx, rec.Key(), rec.Revision); err != nil {
		r.logger.WarnContext(ctx, "share cache invalidation failed", "key", rec.Key().String(), "error", err)
	}
}

// InvalidateDeleted drops cached snapshots after key was deleted. A failure
// is StorageUnavailable: the deleted content may still resolve until the
// caller retries the delete.
func (r *Registry) InvalidateDeleted(ctx context.Context, key domain.Key) error {
	if err := r.cache.Evict(ctx, key, Tombstone); err != nil {
		return domainerrors.StorageUnavailable(err)
	}
	return nil
}
