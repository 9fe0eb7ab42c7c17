// Package badgerstore implements store.RecordStore on an embedded Badger database.
//
// Layout:
//
//	lib:<base64url(owner)>:<task_type>:<category>  -> JSON task library
//	share:<token digest>                           -> primary key of the shared record
//
// Badger transactions are optimistic, so a commit that raced another writer
// fails with badger.ErrConflict and is retried through store.Retry.
package badgerstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/listenupapp/tasksync-server/internal/domain"
	"github.com/listenupapp/tasksync-server/internal/store"
)

const (
	libraryPrefix = "lib:"
	sharePrefix   = "share:"
)

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ store.RecordStore = (*Store)(nil)

// Open opens (or creates) a Badger database in dir.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil            // Badger's internal logging is noisy
	opts.SyncWrites = true       // Sync to disk so a crash never loses an acknowledged write
	opts.CompactL0OnClose = true // Faster startup

	return open(opts, logger, dir)
}

// OpenInMemory opens a throwaway in-memory database.
func OpenInMemory(logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts, logger, ":memory:")
}

func open(opts badger.Options, logger *slog.Logger, where string) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	if logger != nil {
		logger.Info("Badger database opened", "path", where)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close gracefully closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is still open.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return store.ErrUnavailable.WithCause(errors.New("badger db closed"))
	}
	return nil
}

func ownerPrefix(owner string) []byte {
	return []byte(libraryPrefix + base64.RawURLEncoding.EncodeToString([]byte(owner)) + ":")
}

func libraryKey(key domain.Key) []byte {
	return append(ownerPrefix(key.Owner), string(key.TaskType)+":"+string(key.Category)...)
}

func shareKey(hash string) []byte {
	return []byte(sharePrefix + hash)
}

// getTxn returns nil, nil when the key is absent.
func getTxn(txn *badger.Txn, k []byte) (*domain.TaskLibrary, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Unavailable(err)
	}

	var lib domain.TaskLibrary
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &lib)
	})
	if err != nil {
		return nil, store.Unavailable(fmt.Errorf("decode %s: %w", k, err))
	}
	if lib.Tasks == nil {
		lib.Tasks = []string{}
	}
	return &lib, nil
}

// Get retrieves a task library by natural key.
func (s *Store) Get(ctx context.Context, key domain.Key) (*domain.TaskLibrary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var lib *domain.TaskLibrary
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		lib, err = getTxn(txn, libraryKey(key))
		return err
	})
	if err != nil {
		return nil, store.Unavailable(err)
	}
	if lib == nil {
		return nil, store.ErrNotFound
	}
	return lib, nil
}

// GetByShareHash follows the share index to the shared record.
func (s *Store) GetByShareHash(ctx context.Context, hash string) (*domain.TaskLibrary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if hash == "" {
		return nil, store.ErrNotFound
	}

	var lib *domain.TaskLibrary
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(shareKey(hash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		primary, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		lib, err = getTxn(txn, primary)
		return err
	})
	if err != nil {
		return nil, store.Unavailable(err)
	}
	if lib == nil || !lib.Shared || lib.ShareTokenHash != hash {
		return nil, store.ErrNotFound
	}
	return lib, nil
}

// ListByOwner returns all task libraries for owner.
func (s *Store) ListByOwner(ctx context.Context, owner string) ([]*domain.TaskLibrary, error) {
	var libs []*domain.TaskLibrary
	err := s.iterate(ctx, ownerPrefix(owner), func(lib *domain.TaskLibrary) error {
		libs = append(libs, lib)
		return nil
	})
	if err != nil {
		return nil, err
	}
	store.SortLibraries(libs)
	return libs, nil
}

// Scan calls fn for every task library in key order.
func (s *Store) Scan(ctx context.Context, fn func(*domain.TaskLibrary) error) error {
	return s.iterate(ctx, []byte(libraryPrefix), fn)
}

func (s *Store) iterate(ctx context.Context, prefix []byte, fn func(*domain.TaskLibrary) error) error {
	var fnErr error
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var lib domain.TaskLibrary
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &lib)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if lib.Tasks == nil {
				lib.Tasks = []string{}
			}
			if err := fn(&lib); err != nil {
				fnErr = err
				return err
			}
		}
		return nil
	})
	if fnErr != nil {
		return fnErr
	}
	return store.Unavailable(err)
}

// Upsert creates or replaces the task library at rec's natural key.
func (s *Store) Upsert(ctx context.Context, rec *domain.TaskLibrary) (*domain.TaskLibrary, error) {
	return s.Mutate(ctx, rec.Key(), store.Replace(rec))
}

// Mutate runs fn and its write inside one optimistic transaction.
func (s *Store) Mutate(ctx context.Context, key domain.Key, fn store.MutateFunc) (*domain.TaskLibrary, error) {
	if err := store.ValidateKey(key); err != nil {
		return nil, err
	}

	primary := libraryKey(key)
	var result *domain.TaskLibrary

	err := store.Retry(ctx, func() error {
		return s.update(func(txn *badger.Txn) error {
			current, err := getTxn(txn, primary)
			if err != nil {
				return err
			}

			next, err := fn(current.Clone())
			if err != nil {
				return err
			}
			if next == nil {
				result = current
				return nil
			}

			rec, err := store.Prepare(key, current, next)
			if err != nil {
				return err
			}
			if err := reindexShare(txn, primary, current, rec); err != nil {
				return err
			}

			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encode %s: %w", key, err)
			}
			if err := txn.Set(primary, data); err != nil {
				return store.Unavailable(err)
			}

			result = rec
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// reindexShare moves the share index entry from current's digest to next's.
func reindexShare(txn *badger.Txn, primary []byte, current, next *domain.TaskLibrary) error {
	var old string
	if current != nil {
		old = current.ShareTokenHash
	}
	if old == next.ShareTokenHash {
		return nil
	}

	if old != "" {
		if err := txn.Delete(shareKey(old)); err != nil {
			return store.Unavailable(err)
		}
	}
	if next.ShareTokenHash == "" {
		return nil
	}

	_, err := txn.Get(shareKey(next.ShareTokenHash))
	switch {
	case err == nil:
		return store.ErrShareTokenTaken
	case !errors.Is(err, badger.ErrKeyNotFound):
		return store.Unavailable(err)
	}

	if err := txn.Set(shareKey(next.ShareTokenHash), primary); err != nil {
		return store.Unavailable(err)
	}
	return nil
}

// Delete removes the record and its share index entry.
func (s *Store) Delete(ctx context.Context, key domain.Key) (bool, error) {
	primary := libraryKey(key)
	var existed bool

	err := store.Retry(ctx, func() error {
		return s.update(func(txn *badger.Txn) error {
			current, err := getTxn(txn, primary)
			if err != nil {
				return err
			}
			existed = current != nil
			if current == nil {
				return nil
			}

			if current.ShareTokenHash != "" {
				if err := txn.Delete(shareKey(current.ShareTokenHash)); err != nil {
					return store.Unavailable(err)
				}
			}
			if err := txn.Delete(primary); err != nil {
				return store.Unavailable(err)
			}
			return nil
		})
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

// update runs body in a read-write transaction. Errors from body come back
// unchanged; a commit that lost a race becomes store.ErrStale.
func (s *Store) update(body func(txn *badger.Txn) error) error {
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := body(txn); err != nil {
		return err
	}

	if err := txn.Commit(); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return store.ErrStale
		}
		return store.Unavailable(err)
	}
	return nil
}
