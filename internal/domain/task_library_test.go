package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskTypeIsValid(t *testing.T) {
	for _, tt := range TaskTypes {
		assert.True(t, tt.IsValid(), string(tt))
	}
	assert.False(t, TaskType("spicy").IsValid())
	assert.False(t, TaskType("").IsValid())
	assert.False(t, TaskType("Couple").IsValid())
}

func TestCategoryIsValid(t *testing.T) {
	assert.True(t, CategoryTruth.IsValid())
	assert.True(t, CategoryDare.IsValid())
	assert.False(t, Category("both").IsValid())
}

func TestKeyString(t *testing.T) {
	k := Key{Owner: "u1", TaskType: TaskTypeFunny, Category: CategoryDare}
	assert.Equal(t, "u1/funny/dare", k.String())
}

func TestCloneDoesNotAlias(t *testing.T) {
	lib := &TaskLibrary{Owner: "u1", TaskType: TaskTypeCouple, Category: CategoryTruth, Tasks: []string{"a", "b"}}

	c := lib.Clone()
	c.Tasks[0] = "changed"

	assert.Equal(t, "a", lib.Tasks[0])
	assert.Equal(t, lib.Key(), c.Key())

	var nilLib *TaskLibrary
	assert.Nil(t, nilLib.Clone())
}

func TestSnapshotStripsIdentity(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	lib := &TaskLibrary{
		Owner:          "u1",
		TaskType:       TaskTypeRomantic,
		Category:       CategoryDare,
		Tasks:          []string{"x"},
		Version:        7,
		Shared:         true,
		ShareTokenHash: "abc",
		LastModified:   now,
	}

	snap := lib.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, TaskTypeRomantic, snap.TaskType)
	assert.Equal(t, CategoryDare, snap.Category)
	assert.Equal(t, []string{"x"}, snap.Tasks)
	assert.Equal(t, now, snap.LastModified)

	snap.Tasks[0] = "y"
	assert.Equal(t, "x", lib.Tasks[0])
}

func TestCloneTasksNil(t *testing.T) {
	out := CloneTasks(nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}
