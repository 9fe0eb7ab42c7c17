// Package store defines the persistence contract for task libraries.
//
// Backends live in subpackages (sqlite, badgerstore, aztables) and all
// satisfy RecordStore. The only cross-key guarantee a backend must give is
// that share token digests are unique; everything else is per key.
package store

import (
	"context"

	"github.com/listenupapp/tasksync-server/internal/domain"
)

// MutateFunc computes the next state of a record from its current state.
//
// current is nil when no record exists. Returning a nil record with a nil
// error leaves storage untouched. A MutateFunc may be invoked several times
// when concurrent writers race, so it must not have side effects.
type MutateFunc func(current *domain.TaskLibrary) (*domain.TaskLibrary, error)

// RecordStore persists task libraries keyed by (owner, task type, category).
type RecordStore interface {
	// Get returns the record for key or ErrNotFound.
	Get(ctx context.Context, key domain.Key) (*domain.TaskLibrary, error)

	// GetByShareHash returns the shared record whose token digest equals hash, or ErrNotFound.
	GetByShareHash(ctx context.Context, hash string) (*domain.TaskLibrary, error)

	// ListByOwner returns every record for owner ordered by task type then category.
	ListByOwner(ctx context.Context, owner string) ([]*domain.TaskLibrary, error)

	// Scan calls fn for every record in the store. Iteration stops at the first error.
	Scan(ctx context.Context, fn func(*domain.TaskLibrary) error) error

	// Upsert atomically creates or replaces the record at rec's key.
	// The version is stored as given; incrementing it is the caller's job.
	Upsert(ctx context.Context, rec *domain.TaskLibrary) (*domain.TaskLibrary, error)

	// Mutate performs an atomic read-modify-write of a single key.
	// It returns the record as stored after the call, which is the unchanged
	// current record (possibly nil) when fn declines to write. Errors returned
	// by fn are passed through unchanged.
	Mutate(ctx context.Context, key domain.Key, fn MutateFunc) (*domain.TaskLibrary, error)

	// Delete removes the record at key together with its share token.
	// It reports whether a record existed.
	Delete(ctx context.Context, key domain.Key) (bool, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
