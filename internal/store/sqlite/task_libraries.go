package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/listenupapp/tasksync-server/internal/domain"
	"github.com/listenupapp/tasksync-server/internal/store"
)

// libraryColumns is the ordered list of columns selected in task library queries.
// Must match the scan order in scanLibrary.
const libraryColumns = `id, owner, task_type, category, tasks, version, revision,
	shared, share_token_hash, created_at, last_modified`

// scanLibrary scans a sql.Row (or sql.Rows via its Scan method) into a domain.TaskLibrary.
func scanLibrary(scanner interface{ Scan(dest ...any) error }) (*domain.TaskLibrary, error) {
	var lib domain.TaskLibrary

	var (
		taskType     string
		category     string
		tasksJSON    string
		shared       int
		shareHash    sql.NullString
		createdAt    string
		lastModified string
	)

	err := scanner.Scan(
		&lib.ID,
		&lib.Owner,
		&taskType,
		&category,
		&tasksJSON,
		&lib.Version,
		&lib.Revision,
		&shared,
		&shareHash,
		&createdAt,
		&lastModified,
	)
	if err != nil {
		return nil, err
	}

	lib.TaskType = domain.TaskType(taskType)
	lib.Category = domain.Category(category)
	lib.Shared = shared != 0
	if shareHash.Valid {
		lib.ShareTokenHash = shareHash.String
	}

	if err := json.Unmarshal([]byte(tasksJSON), &lib.Tasks); err != nil {
		return nil, fmt.Errorf("decode tasks for %s: %w", lib.ID, err)
	}
	if lib.Tasks == nil {
		lib.Tasks = []string{}
	}

	lib.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	lib.LastModified, err = parseTime(lastModified)
	if err != nil {
		return nil, err
	}

	return &lib, nil
}

// Get retrieves a task library by natural key.
// Returns store.ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, key domain.Key) (*domain.TaskLibrary, error) {
	lib, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	if lib == nil {
		return nil, store.ErrNotFound
	}
	return lib, nil
}

// get returns nil, nil when the key is absent.
func (s *Store) get(ctx context.Context, key domain.Key) (*domain.TaskLibrary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+libraryColumns+` FROM task_libraries
		WHERE owner = ? AND task_type = ? AND category = ?`,
		key.Owner, string(key.TaskType), string(key.Category))

	lib, err := scanLibrary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Unavailable(err)
	}
	return lib, nil
}

// GetByShareHash retrieves the shared task library holding a token digest.
// Returns store.ErrNotFound if no shared record matches.
func (s *Store) GetByShareHash(ctx context.Context, hash string) (*domain.TaskLibrary, error) {
	if hash == "" {
		return nil, store.ErrNotFound
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+libraryColumns+` FROM task_libraries
		WHERE share_token_hash = ? AND shared = 1`, hash)

	lib, err := scanLibrary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Unavailable(err)
	}
	return lib, nil
}

// ListByOwner returns all task libraries belonging to owner.
func (s *Store) ListByOwner(ctx context.Context, owner string) ([]*domain.TaskLibrary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+libraryColumns+` FROM task_libraries WHERE owner = ?`, owner)
	if err != nil {
		return nil, store.Unavailable(err)
	}
	defer rows.Close()

	var libs []*domain.TaskLibrary
	for rows.Next() {
		lib, err := scanLibrary(rows)
		if err != nil {
			return nil, store.Unavailable(err)
		}
		libs = append(libs, lib)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable(err)
	}

	store.SortLibraries(libs)
	return libs, nil
}

// Scan calls fn for every task library, ordered by owner.
func (s *Store) Scan(ctx context.Context, fn func(*domain.TaskLibrary) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+libraryColumns+` FROM task_libraries ORDER BY owner, id`)
	if err != nil {
		return store.Unavailable(err)
	}
	defer rows.Close()

	for rows.Next() {
		lib, err := scanLibrary(rows)
		if err != nil {
			return store.Unavailable(err)
		}
		if err := fn(lib); err != nil {
			return err
		}
	}
	return store.Unavailable(rows.Err())
}

// Upsert creates or replaces the task library at rec's natural key.
func (s *Store) Upsert(ctx context.Context, rec *domain.TaskLibrary) (*domain.TaskLibrary, error) {
	return s.Mutate(ctx, rec.Key(), store.Replace(rec))
}

// Mutate runs fn against the current row and writes its result with a
// compare-and-swap on (id, revision). Lost races are retried.
func (s *Store) Mutate(ctx context.Context, key domain.Key, fn store.MutateFunc) (*domain.TaskLibrary, error) {
	if err := store.ValidateKey(key); err != nil {
		return nil, err
	}

	var result *domain.TaskLibrary
	err := store.Retry(ctx, func() error {
		current, err := s.get(ctx, key)
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

		if current == nil {
			err = s.insert(ctx, rec)
		} else {
			err = s.update(ctx, rec, current.Revision)
		}
		if err != nil {
			return err
		}

		result = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// insert adds a new row. A concurrent insert of the same key yields store.ErrStale.
func (s *Store) insert(ctx context.Context, rec *domain.TaskLibrary) error {
	tasks, err := json.Marshal(domain.CloneTasks(rec.Tasks))
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO task_libraries (
			id, owner, task_type, category, tasks, version, revision,
			shared, share_token_hash, created_at, last_modified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner, task_type, category) DO NOTHING`,
		rec.ID,
		rec.Owner,
		string(rec.TaskType),
		string(rec.Category),
		string(tasks),
		rec.Version,
		rec.Revision,
		boolInt(rec.Shared),
		nullString(rec.ShareTokenHash),
		formatTime(rec.CreatedAt),
		formatTime(rec.LastModified),
	)
	if err != nil {
		return writeError(err)
	}
	return expectOneRow(res)
}

// update replaces a row only if nobody else wrote it since it was read.
func (s *Store) update(ctx context.Context, rec *domain.TaskLibrary, expectRevision int64) error {
	tasks, err := json.Marshal(domain.CloneTasks(rec.Tasks))
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE task_libraries SET
			tasks = ?, version = ?, revision = ?, shared = ?,
			share_token_hash = ?, created_at = ?, last_modified = ?
		WHERE id = ? AND revision = ?`,
		string(tasks),
		rec.Version,
		rec.Revision,
		boolInt(rec.Shared),
		nullString(rec.ShareTokenHash),
		formatTime(rec.CreatedAt),
		formatTime(rec.LastModified),
		rec.ID,
		expectRevision,
	)
	if err != nil {
		return writeError(err)
	}
	return expectOneRow(res)
}

// Delete removes the task library at key. Its share digest goes with the row.
func (s *Store) Delete(ctx context.Context, key domain.Key) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM task_libraries WHERE owner = ? AND task_type = ? AND category = ?`,
		key.Owner, string(key.TaskType), string(key.Category))
	if err != nil {
		return false, store.Unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, store.Unavailable(err)
	}
	return n > 0, nil
}

func writeError(err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") && strings.Contains(err.Error(), "share_token_hash") {
		return store.ErrShareTokenTaken.WithCause(err)
	}
	return store.Unavailable(err)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return store.Unavailable(err)
	}
	if n == 0 {
		return store.ErrStale
	}
	return nil
}
