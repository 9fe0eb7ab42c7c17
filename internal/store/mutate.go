package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/listenupapp/tasksync-server/internal/domain"
	"github.com/listenupapp/tasksync-server/internal/id"
)

// MaxAttempts bounds compare-and-swap retries for one Mutate call.
// Every lost attempt means some other writer committed, so with fewer than
// MaxAttempts concurrent writers on a key each of them eventually wins.
const MaxAttempts = 32

// ErrStale is returned by a single backend attempt whose compare-and-swap lost.
// Retry consumes it; it never escapes a RecordStore.
var ErrStale = errors.New("stale revision")

// Retry runs attempt until it returns something other than ErrStale.
// It backs off with jitter between attempts and gives up with ErrContention.
func Retry(ctx context.Context, attempt func() error) error {
	for i := range MaxAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := attempt()
		if !errors.Is(err, ErrStale) {
			return err
		}

		ceiling := min(1<<i, 50)
		delay := time.Duration(rand.IntN(ceiling)+1) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return ErrContention
}

// ValidateKey rejects keys no backend can store.
func ValidateKey(key domain.Key) error {
	if key.Owner == "" || !key.TaskType.IsValid() || !key.Category.IsValid() {
		return ErrInvalidInput.WithCause(fmt.Errorf("invalid key %q", key.String()))
	}
	return nil
}

// Prepare checks the record a MutateFunc produced for key and stamps the
// storage-owned fields: the ID is kept stable across writes and Revision is
// advanced past current.
func Prepare(key domain.Key, current, next *domain.TaskLibrary) (*domain.TaskLibrary, error) {
	if next.Key() != key {
		return nil, ErrInvalidInput.WithCause(fmt.Errorf("mutation moved %s to %s", key, next.Key()))
	}
	if next.Shared && next.ShareTokenHash == "" {
		return nil, ErrInvalidInput.WithCause(fmt.Errorf("shared record %s without token", key))
	}

	out := next.Clone()
	if !out.Shared {
		out.ShareTokenHash = ""
	}

	switch {
	case current != nil:
		out.ID = current.ID
		out.Revision = current.Revision + 1
		if out.CreatedAt.IsZero() {
			out.CreatedAt = current.CreatedAt
		}
	default:
		out.Revision = 1
		if out.ID == "" {
			out.ID = id.NewLibraryID()
		}
		if out.CreatedAt.IsZero() {
			out.CreatedAt = out.LastModified
		}
	}
	return out, nil
}

// Replace returns a MutateFunc that writes rec regardless of what is stored.
// Backends use it to implement Upsert on top of Mutate.
func Replace(rec *domain.TaskLibrary) MutateFunc {
	return func(*domain.TaskLibrary) (*domain.TaskLibrary, error) {
		return rec.Clone(), nil
	}
}
