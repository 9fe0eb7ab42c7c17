// Package aztables implements store.RecordStore on Azure Table Storage.
//
// Each task library is one entity: PartitionKey is the encoded owner and
// RowKey is "<task_type>|<category>". Writes are conditional on the entity
// ETag. Share digests are indexed in a dedicated partition; the index is
// only a pointer, and a lookup always re-checks the library entity, so a
// stale index row left by a failed cleanup can never resolve.
package aztables

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/listenupapp/tasksync-server/internal/domain"
	"github.com/listenupapp/tasksync-server/internal/store"
)

// tableAPI is the subset of *aztables.Client the store uses.
type tableAPI interface {
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

// Store persists task libraries in one Azure table.
type Store struct {
	client tableAPI
	logger *slog.Logger
}

var _ store.RecordStore = (*Store)(nil)

// Open connects to the table named table, creating it if needed.
func Open(ctx context.Context, connStr, table string, logger *slog.Logger) (*Store, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    30 * time.Second,
				RetryDelay:    500 * time.Millisecond,
				MaxRetryDelay: 5 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, fmt.Errorf("create table service client: %w", err)
	}

	client := svc.NewClient(table)
	if _, err := client.CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
			return nil, fmt.Errorf("create table %s: %w", table, err)
		}
	}

	if logger != nil {
		logger.Info("Azure table store opened", "table", table)
	}
	return newStore(client, logger), nil
}

func newStore(client tableAPI, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{client: client, logger: logger}
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *Store) Close() error { return nil }

// Ping lists a single entity to prove the table answers.
func (s *Store) Ping(ctx context.Context) error {
	top := int32(1)
	pager := s.client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Top: &top})
	if _, err := pager.NextPage(ctx); err != nil {
		return store.Unavailable(err)
	}
	return nil
}

func hasStatus(err error, status int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == status
}

// get returns the library and its ETag, or nil when absent.
func (s *Store) get(ctx context.Context, key domain.Key) (*domain.TaskLibrary, azcore.ETag, error) {
	resp, err := s.client.GetEntity(ctx, partitionKey(key.Owner), rowKey(key), nil)
	if hasStatus(err, http.StatusNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", store.Unavailable(err)
	}

	lib, err := decodeEntity(resp.Value)
	if err != nil {
		return nil, "", store.Unavailable(err)
	}
	return lib, resp.ETag, nil
}

// Get retrieves a task library by natural key.
func (s *Store) Get(ctx context.Context, key domain.Key) (*domain.TaskLibrary, error) {
	lib, _, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	if lib == nil {
		return nil, store.ErrNotFound
	}
	return lib, nil
}

// GetByShareHash follows the share index and verifies the library still holds the digest.
func (s *Store) GetByShareHash(ctx context.Context, hash string) (*domain.TaskLibrary, error) {
	if hash == "" {
		return nil, store.ErrNotFound
	}

	resp, err := s.client.GetEntity(ctx, sharePartition, hash, nil)
	if hasStatus(err, http.StatusNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Unavailable(err)
	}

	var idx shareIndexEntity
	if err := json.Unmarshal(resp.Value, &idx); err != nil {
		return nil, store.Unavailable(err)
	}

	libResp, err := s.client.GetEntity(ctx, idx.LibraryPK, idx.LibraryRK, nil)
	if hasStatus(err, http.StatusNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Unavailable(err)
	}
	lib, err := decodeEntity(libResp.Value)
	if err != nil {
		return nil, store.Unavailable(err)
	}
	if !lib.Shared || lib.ShareTokenHash != hash {
		return nil, store.ErrNotFound
	}
	return lib, nil
}

// ListByOwner returns every library in the owner's partition.
func (s *Store) ListByOwner(ctx context.Context, owner string) ([]*domain.TaskLibrary, error) {
	var libs []*domain.TaskLibrary
	err := s.list(ctx, "PartitionKey eq '"+partitionKey(owner)+"'", func(lib *domain.TaskLibrary) error {
		libs = append(libs, lib)
		return nil
	})
	if err != nil {
		return nil, err
	}
	store.SortLibraries(libs)
	return libs, nil
}

// Scan calls fn for every library in the table.
func (s *Store) Scan(ctx context.Context, fn func(*domain.TaskLibrary) error) error {
	return s.list(ctx, "PartitionKey ne '"+sharePartition+"'", fn)
}

func (s *Store) list(ctx context.Context, filter string, fn func(*domain.TaskLibrary) error) error {
	pager := s.client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return store.Unavailable(err)
		}
		for _, raw := range resp.Entities {
			lib, err := decodeEntity(raw)
			if err != nil {
				return store.Unavailable(err)
			}
			if err := fn(lib); err != nil {
				return err
			}
		}
	}
	return nil
}

// Upsert creates or replaces the task library at rec's natural key.
func (s *Store) Upsert(ctx context.Context, rec *domain.TaskLibrary) (*domain.TaskLibrary, error) {
	return s.Mutate(ctx, rec.Key(), store.Replace(rec))
}

// Mutate reads the entity, applies fn and writes back conditioned on the ETag.
func (s *Store) Mutate(ctx context.Context, key domain.Key, fn store.MutateFunc) (*domain.TaskLibrary, error) {
	if err := store.ValidateKey(key); err != nil {
		return nil, err
	}

	var result *domain.TaskLibrary
	err := store.Retry(ctx, func() error {
		current, etag, err := s.get(ctx, key)
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
		payload, err := encodeEntity(rec)
		if err != nil {
			return err
		}

		var oldHash string
		if current != nil {
			oldHash = current.ShareTokenHash
		}
		newHash := rec.ShareTokenHash
		claimed := newHash != "" && newHash != oldHash
		if claimed {
			if err := s.claimShare(ctx, newHash, key); err != nil {
				return err
			}
		}

		if err := s.write(ctx, current == nil, payload, etag); err != nil {
			if claimed {
				s.releaseShare(ctx, newHash)
			}
			return err
		}

		if oldHash != "" && oldHash != newHash {
			s.releaseShare(ctx, oldHash)
		}
		result = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// write inserts or conditionally replaces. Losing the race yields store.ErrStale.
func (s *Store) write(ctx context.Context, insert bool, payload []byte, etag azcore.ETag) error {
	var err error
	if insert {
		_, err = s.client.AddEntity(ctx, payload, nil)
		if hasStatus(err, http.StatusConflict) {
			return store.ErrStale
		}
	} else {
		_, err = s.client.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
			IfMatch:    &etag,
			UpdateMode: aztables.UpdateModeReplace,
		})
		if hasStatus(err, http.StatusPreconditionFailed) || hasStatus(err, http.StatusNotFound) {
			return store.ErrStale
		}
	}
	return store.Unavailable(err)
}

// claimShare inserts the index row for hash. The insert fails if the digest
// is already indexed, which is what makes digests unique.
func (s *Store) claimShare(ctx context.Context, hash string, key domain.Key) error {
	payload, err := json.Marshal(shareIndexEntity{
		PartitionKey: sharePartition,
		RowKey:       hash,
		LibraryPK:    partitionKey(key.Owner),
		LibraryRK:    rowKey(key),
	})
	if err != nil {
		return err
	}

	_, err = s.client.AddEntity(ctx, payload, nil)
	if hasStatus(err, http.StatusConflict) {
		return store.ErrShareTokenTaken
	}
	return store.Unavailable(err)
}

// releaseShare drops an index row. Failures only leave a dangling pointer
// that lookups already ignore, so they are logged and swallowed.
func (s *Store) releaseShare(ctx context.Context, hash string) {
	etag := azcore.ETagAny
	_, err := s.client.DeleteEntity(ctx, sharePartition, hash, &aztables.DeleteEntityOptions{IfMatch: &etag})
	if err != nil && !hasStatus(err, http.StatusNotFound) {
		s.logger.Warn("failed to release share index", "error", err)
	}
}

// Delete removes the library entity, then its share index row.
func (s *Store) Delete(ctx context.Context, key domain.Key) (bool, error) {
	var existed bool
	err := store.Retry(ctx, func() error {
		current, etag, err := s.get(ctx, key)
		if err != nil {
			return err
		}
		existed = current != nil
		if current == nil {
			return nil
		}

		_, err = s.client.DeleteEntity(ctx, partitionKey(key.Owner), rowKey(key), &aztables.DeleteEntityOptions{IfMatch: &etag})
		switch {
		case hasStatus(err, http.StatusPreconditionFailed) || hasStatus(err, http.StatusNotFound):
			return store.ErrStale
		case err != nil:
			return store.Unavailable(err)
		}

		if current.ShareTokenHash != "" {
			s.releaseShare(ctx, current.ShareTokenHash)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}
