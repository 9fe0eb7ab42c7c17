// Package service implements the task library operations behind the HTTP API.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/listenupapp/tasksync-server/internal/domain"
	domainerrors "github.com/listenupapp/tasksync-server/internal/errors"
	"github.com/listenupapp/tasksync-server/internal/normalize"
	"github.com/listenupapp/tasksync-server/internal/reconcile"
	"github.com/listenupapp/tasksync-server/internal/share"
	"github.com/listenupapp/tasksync-server/internal/store"
	"github.com/listenupapp/tasksync-server/internal/validation"
)

const tracerName = "github.com/listenupapp/tasksync-server/internal/service"

// TaskService validates requests and runs them against the store and share registry.
type TaskService struct {
	store     store.RecordStore
	registry  *share.Registry
	validator *validation.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewTaskService creates a new task service.
func NewTaskService(s store.RecordStore, registry *share.Registry, logger *slog.Logger) *TaskService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TaskService{
		store:     s,
		registry:  registry,
		validator: validation.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// Read returns the library at the request's key. A library that was never
// written reads as empty at version 0 with no modification time.
func (s *TaskService) Read(ctx context.Context, req ReadRequest) (*LibraryState, error) {
	req.normalize()
	ctx, span := s.start(ctx, OpRead, req.LibraryRef)
	defer span.End()

	if err := s.validator.Validate(req); err != nil {
		return nil, s.fail(ctx, span, OpRead, err)
	}

	lib, err := s.store.Get(ctx, req.Key())
	if errors.Is(err, store.ErrNotFound) {
		span.SetAttributes(attribute.Bool("task.exists", false))
		return emptyState(), nil
	}
	if err != nil {
		return nil, s.fail(ctx, span, OpRead, store.ToDomain(err))
	}

	span.SetAttributes(attribute.Int64("task.version", lib.Version))
	return stateOf(lib), nil
}

// Sync applies the client's tasks when the client has seen the latest version.
// Otherwise it writes nothing and reports the server and client lists so the
// caller can resolve the conflict.
func (s *TaskService) Sync(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	req.normalize()
	ctx, span := s.start(ctx, OpSync, req.LibraryRef)
	defer span.End()

	if err := s.validator.Validate(req); err != nil {
		return nil, s.fail(ctx, span, OpSync, err)
	}

	key := req.Key()
	clientVersion := req.clientVersion()
	now := s.now().UTC()

	var decision reconcile.Decision
	rec, err := s.store.Mutate(ctx, key, func(cur *domain.TaskLibrary) (*domain.TaskLibrary, error) {
		decision = reconcile.Decide(cur, clientVersion)
		if decision.Outcome == reconcile.Conflict {
			return nil, nil
		}
		return reconcile.Next(cur, key, req.Tasks, now), nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, OpSync, store.ToDomain(err))
	}

	span.SetAttributes(
		attribute.String("task.outcome", decision.Outcome.String()),
		attribute.Int64("task.client_version", clientVersion),
		attribute.Int64("task.version", rec.Version),
	)

	if decision.Outcome == reconcile.Conflict {
		s.logger.DebugContext(ctx, "sync conflict",
			"key", key.String(),
			"client_version", clientVersion,
			"server_version", rec.Version,
		)
		return &SyncResult{
			Outcome: decision.Outcome,
			Conflict: &Conflict{
				ServerTasks:   domain.CloneTasks(rec.Tasks),
				ServerVersion: rec.Version,
				ClientTasks:   domain.CloneTasks(req.Tasks),
			},
		}, nil
	}

	s.registry.Invalidate(ctx, rec)
	s.logger.DebugContext(ctx, "sync accepted",
		"key", key.String(),
		"outcome", decision.Outcome.String(),
		"version", rec.Version,
	)
	return &SyncResult{Outcome: decision.Outcome, Accepted: stateOf(rec)}, nil
}

// Update overwrites the library regardless of version. The version still
// advances so other clients notice the change on their next sync.
func (s *TaskService) Update(ctx context.Context, req UpdateRequest) (*LibraryState, error) {
	req.normalize()
	ctx, span := s.start(ctx, OpUpdate, req.LibraryRef)
	defer span.End()

	if err := s.validator.Validate(req); err != nil {
		return nil, s.fail(ctx, span, OpUpdate, err)
	}

	key := req.Key()
	now := s.now().UTC()
	rec, err := s.store.Mutate(ctx, key, func(cur *domain.TaskLibrary) (*domain.TaskLibrary, error) {
		return reconcile.Next(cur, key, req.Tasks, now), nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, OpUpdate, store.ToDomain(err))
	}

	s.registry.Invalidate(ctx, rec)
	span.SetAttributes(attribute.Int64("task.version", rec.Version))
	s.logger.InfoContext(ctx, "task library overwritten", "key", key.String(), "version", rec.Version)
	return stateOf(rec), nil
}

// Delete removes the library and any share token pointing at it.
// Deleting a library that does not exist succeeds.
func (s *TaskService) Delete(ctx context.Context, req DeleteRequest) error {
	req.normalize()
	ctx, span := s.start(ctx, OpDelete, req.LibraryRef)
	defer span.End()

	if err := s.validator.Validate(req); err != nil {
		return s.fail(ctx, span, OpDelete, err)
	}

	key := req.Key()
	existed, err := s.store.Delete(ctx, key)
	if err != nil {
		return s.fail(ctx, span, OpDelete, store.ToDomain(err))
	}

	// Evicted even when nothing existed, so a retried delete finishes the job.
	if err := s.registry.InvalidateDeleted(ctx, key); err != nil {
		return s.fail(ctx, span, OpDelete, err)
	}
	span.SetAttributes(attribute.Bool("task.exists", existed))
	if existed {
		s.logger.InfoContext(ctx, "task library deleted", "key", key.String())
	}
	return nil
}

// Share mints a token granting read-only access to the library.
// Sharing again replaces the previous token.
func (s *TaskService) Share(ctx context.Context, req ShareRequest) (string, error) {
	req.normalize()
	ctx, span := s.start(ctx, OpShare, req.LibraryRef)
	defer span.End()

	if err := s.validator.Validate(req); err != nil {
		return "", s.fail(ctx, span, OpShare, err)
	}

	token, err := s.registry.Create(ctx, req.Key())
	if err != nil {
		return "", s.fail(ctx, span, OpShare, err)
	}
	return token, nil
}

// Unshare revokes the library's token, if any.
func (s *TaskService) Unshare(ctx context.Context, req UnshareRequest) error {
	req.normalize()
	ctx, span := s.start(ctx, OpUnshare, req.LibraryRef)
	defer span.End()

	if err := s.validator.Validate(req); err != nil {
		return s.fail(ctx, span, OpUnshare, err)
	}

	if err := s.registry.Revoke(ctx, req.Key()); err != nil {
		return s.fail(ctx, span, OpUnshare, err)
	}
	s.logger.InfoContext(ctx, "task library unshared", "key", req.Key().String())
	return nil
}

// ReadShared resolves a share token to the library it grants access to.
func (s *TaskService) ReadShared(ctx context.Context, req ReadSharedRequest) (*domain.SharedSnapshot, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "tasks."+string(OpReadShared))
	defer span.End()

	if err := s.validator.Validate(req); err != nil {
		// An unusable token cannot name any library.
		return nil, s.fail(ctx, span, OpReadShared, domainerrors.NotFound("share not found"))
	}

	snap, err := s.registry.Resolve(ctx, req.Token)
	if err != nil {
		return nil, s.fail(ctx, span, OpReadShared, err)
	}
	return snap, nil
}

// List returns a summary of every library the owner has.
func (s *TaskService) List(ctx context.Context, req ListRequest) ([]LibrarySummary, error) {
	req.Owner = normalize.Owner(req.Owner)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "tasks."+string(OpList))
	defer span.End()

	if err := s.validator.Validate(req); err != nil {
		return nil, s.fail(ctx, span, OpList, err)
	}

	libs, err := s.store.ListByOwner(ctx, req.Owner)
	if err != nil {
		return nil, s.fail(ctx, span, OpList, store.ToDomain(err))
	}

	out := make([]LibrarySummary, 0, len(libs))
	for _, lib := range libs {
		out = append(out, LibrarySummary{
			TaskType:     lib.TaskType,
			Category:     lib.Category,
			Version:      lib.Version,
			TaskCount:    len(lib.Tasks),
			Shared:       lib.Shared,
			LastModified: lib.LastModified,
		})
	}
	span.SetAttributes(attribute.Int("task.libraries", len(out)))
	return out, nil
}

func (s *TaskService) start(ctx context.Context, op Operation, ref LibraryRef) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tasks."+string(op),
		trace.WithAttributes(
			attribute.String("task.type", ref.TaskType),
			attribute.String("task.category", ref.Category),
		),
	)
}

// fail records err on the span and logs it at a level matching its kind.
func (s *TaskService) fail(ctx context.Context, span trace.Span, op Operation, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	switch {
	case domainerrors.Is(err, domainerrors.ErrValidation),
		domainerrors.Is(err, domainerrors.ErrNotFound),
		domainerrors.Is(err, domainerrors.ErrConflict),
		errors.Is(err, context.Canceled):
		s.logger.DebugContext(ctx, "task operation rejected", "op", string(op), "error", err)
	default:
		s.logger.ErrorContext(ctx, "task operation failed", "op", string(op), "error", err)
	}
	return err
}
