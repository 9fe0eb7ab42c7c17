// Package reconcile decides how a client's copy of a task library relates to
// the stored copy. Nothing here performs I/O or locking, and the clock is
// passed in. Callers run Decide inside the store's per-key atomic mutation so the
// decision and the write observe the same stored version.
package reconcile

import (
	"time"

	"github.com/listenupapp/tasksync-server/internal/domain"
	"github.com/listenupapp/tasksync-server/internal/id"
)

// Outcome classifies a synchronization attempt.
type Outcome int

const (
	// Create means no record exists; the submission becomes version 1.
	Create Outcome = iota + 1
	// Accept means the client was current; the submission replaces the record.
	Accept
	// Conflict means the client is behind; nothing is written.
	Conflict
)

// String returns the lowercase outcome name used in logs and spans.
func (o Outcome) String() string {
	switch o {
	case Create:
		return "create"
	case Accept:
		return "accept"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Decision is the result of comparing a client version with the stored record.
type Decision struct {
	Outcome Outcome
	// StoredVersion is the version currently persisted, 0 when absent.
	StoredVersion int64
	// NextVersion is the version that will be written for Create and Accept.
	// For Conflict it equals StoredVersion.
	NextVersion int64
}

// Decide compares clientVersion with the stored record.
//
// A client that is at or ahead of the store wins, but the new version is
// always derived from the stored one, never from what the client claims.
// A missing clientVersion should be passed as 0.
func Decide(stored *domain.TaskLibrary, clientVersion int64) Decision {
	if stored == nil {
		return Decision{Outcome: Create, NextVersion: 1}
	}
	if clientVersion >= stored.Version {
		return Decision{
			Outcome:       Accept,
			StoredVersion: stored.Version,
			NextVersion:   stored.Version + 1,
		}
	}
	return Decision{
		Outcome:       Conflict,
		StoredVersion: stored.Version,
		NextVersion:   stored.Version,
	}
}

// Next builds the record that replaces stored with tasks.
// The version is stored.Version+1, or 1 when stored is nil. Share state and
// storage identity carry over from stored so a content write never leaks or
// revokes a share.
func Next(stored *domain.TaskLibrary, key domain.Key, tasks []string, now time.Time) *domain.TaskLibrary {
	if stored == nil {
		return &domain.TaskLibrary{
			ID:           id.NewLibraryID(),
			Owner:        key.Owner,
			TaskType:     key.TaskType,
			Category:     key.Category,
			Tasks:        domain.CloneTasks(tasks),
			Version:      1,
			CreatedAt:    now,
			LastModified: now,
		}
	}

	next := stored.Clone()
	next.Tasks = domain.CloneTasks(tasks)
	next.Version = stored.Version + 1
	next.LastModified = now
	return next
}
