package service

import (
	"time"

	"github.com/listenupapp/tasksync-server/internal/domain"
	"github.com/listenupapp/tasksync-server/internal/normalize"
	"github.com/listenupapp/tasksync-server/internal/reconcile"
)

// Operation names a gateway request variant.
type Operation string

// Gateway operations.
const (
	OpRead       Operation = "read"
	OpSync       Operation = "sync"
	OpUpdate     Operation = "update"
	OpDelete     Operation = "delete"
	OpShare      Operation = "share"
	OpUnshare    Operation = "unshare"
	OpReadShared Operation = "read_shared"
	OpList       Operation = "list"
)

// LibraryRef addresses one task library.
type LibraryRef struct {
	Owner    string `json:"owner" validate:"required,max=256"`
	TaskType string `json:"task_type" validate:"task_type"`
	Category string `json:"category" validate:"category"`
}

func (r *LibraryRef) normalize() {
	r.Owner = normalize.Owner(r.Owner)
	r.TaskType = normalize.Tag(r.TaskType)
	r.Category = normalize.Tag(r.Category)
}

// Key returns the storage key for r. Only meaningful after validation.
func (r LibraryRef) Key() domain.Key {
	return domain.Key{
		Owner:    r.Owner,
		TaskType: domain.TaskType(r.TaskType),
		Category: domain.Category(r.Category),
	}
}

// ReadRequest fetches a library.
type ReadRequest struct {
	LibraryRef
}

// SyncRequest pushes a client's task list against the version it last saw.
// A nil ClientVersion is treated as 0.
type SyncRequest struct {
	LibraryRef
	Tasks         []string `json:"tasks" validate:"required,max=1000,dive,max=500"`
	ClientVersion *int64   `json:"client_version" validate:"omitempty,gte=0"`
}

func (r SyncRequest) clientVersion() int64 {
	if r.ClientVersion == nil {
		return 0
	}
	return *r.ClientVersion
}

// UpdateRequest overwrites a library regardless of version.
type UpdateRequest struct {
	LibraryRef
	Tasks []string `json:"tasks" validate:"required,max=1000,dive,max=500"`
}

// DeleteRequest removes a library.
type DeleteRequest struct {
	LibraryRef
}

// ShareRequest mints a share token for a library.
type ShareRequest struct {
	LibraryRef
}

// UnshareRequest revokes a library's share token.
type UnshareRequest struct {
	LibraryRef
}

// ReadSharedRequest resolves a share token.
type ReadSharedRequest struct {
	Token string `json:"token" validate:"required,max=64"`
}

// ListRequest lists every library of an owner.
type ListRequest struct {
	Owner string `json:"owner" validate:"required,max=256"`
}

// LibraryState is what a caller sees of a library after a read or write.
// LastModified is nil for the empty sentinel of a library that does not exist.
type LibraryState struct {
	Tasks        []string
	Version      int64
	LastModified *time.Time
	Shared       bool
}

func stateOf(lib *domain.TaskLibrary) *LibraryState {
	lm := lib.LastModified
	return &LibraryState{
		Tasks:        domain.CloneTasks(lib.Tasks),
		Version:      lib.Version,
		LastModified: &lm,
		Shared:       lib.Shared,
	}
}

func emptyState() *LibraryState {
	return &LibraryState{Tasks: []string{}}
}

// Conflict describes a rejected sync. Nothing was written.
type Conflict struct {
	ServerTasks   []string
	ServerVersion int64
	ClientTasks   []string
}

// SyncResult is either an accepted write or a conflict.
type SyncResult struct {
	Outcome  reconcile.Outcome
	Accepted *LibraryState
	Conflict *Conflict
}

// LibrarySummary is one entry of an owner's listing.
type LibrarySummary struct {
	TaskType     domain.TaskType
	Category     domain.Category
	Version      int64
	TaskCount    int
	Shared       bool
	LastModified time.Time
}
