package domain

import (
	"slices"
	"time"
)

// TaskType is the flavor of a deck of prompts.
type TaskType string

// Supported task types.
const (
	TaskTypeCouple      TaskType = "couple"
	TaskTypeFunny       TaskType = "funny"
	TaskTypeRomantic    TaskType = "romantic"
	TaskTypeAdventurous TaskType = "adventurous"
	TaskTypeIntimate    TaskType = "intimate"
)

// TaskTypes lists every supported task type in display order.
var TaskTypes = []TaskType{
	TaskTypeCouple,
	TaskTypeFunny,
	TaskTypeRomantic,
	TaskTypeAdventurous,
	TaskTypeIntimate,
}

// IsValid reports whether t is one of the supported task types.
func (t TaskType) IsValid() bool {
	return slices.Contains(TaskTypes, t)
}

// Category splits a deck into truths and dares.
type Category string

// Supported categories.
const (
	CategoryTruth Category = "truth"
	CategoryDare  Category = "dare"
)

// Categories lists every supported category.
var Categories = []Category{CategoryTruth, CategoryDare}

// IsValid reports whether c is a supported category.
func (c Category) IsValid() bool {
	return c == CategoryTruth || c == CategoryDare
}

// Key is the natural key of a task library. At most one record exists per key.
type Key struct {
	Owner    string   `json:"owner"`
	TaskType TaskType `json:"task_type"`
	Category Category `json:"category"`
}

// String renders the key for logs: "owner/couple/truth".
func (k Key) String() string {
	return k.Owner + "/" + string(k.TaskType) + "/" + string(k.Category)
}

// TaskLibrary is one owner's ordered list of prompts for a task type and category.
//
// Version starts at 1 on creation and increases by exactly one on every
// accepted content mutation. Revision is a storage write counter bumped on
// every write, including share changes; it never leaves the server.
type TaskLibrary struct {
	ID             string    `json:"id"`
	Owner          string    `json:"owner"`
	TaskType       TaskType  `json:"task_type"`
	Category       Category  `json:"category"`
	Tasks          []string  `json:"tasks"`
	Version        int64     `json:"version"`
	Revision       int64     `json:"revision"`
	Shared         bool      `json:"shared"`
	ShareTokenHash string    `json:"share_token_hash,omitempty"` // hex digest, only set while Shared
	CreatedAt      time.Time `json:"created_at"`
	LastModified   time.Time `json:"last_modified"`
}

// Key returns the natural key of the record.
func (l *TaskLibrary) Key() Key {
	return Key{Owner: l.Owner, TaskType: l.TaskType, Category: l.Category}
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (l *TaskLibrary) Clone() *TaskLibrary {
	if l == nil {
		return nil
	}
	c := *l
	c.Tasks = CloneTasks(l.Tasks)
	return &c
}

// Snapshot projects the record onto what an anonymous share viewer may see.
func (l *TaskLibrary) Snapshot() *SharedSnapshot {
	return &SharedSnapshot{
		TaskType:     l.TaskType,
		Category:     l.Category,
		Tasks:        CloneTasks(l.Tasks),
		LastModified: l.LastModified,
	}
}

// SharedSnapshot is the read-only view handed out through a share token.
// It carries neither the owner nor the version.
type SharedSnapshot struct {
	TaskType     TaskType  `json:"task_type"`
	Category     Category  `json:"category"`
	Tasks        []string  `json:"tasks"`
	LastModified time.Time `json:"last_modified"`
}

// CloneTasks copies a task list, normalizing nil to an empty slice.
func CloneTasks(tasks []string) []string {
	out := make([]string, len(tasks))
	copy(out, tasks)
	return out
}
