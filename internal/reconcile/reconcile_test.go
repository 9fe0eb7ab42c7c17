package reconcile

import (
	"testing"
	"time"

	"github.com/listenupapp/tasksync-server/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = domain.Key{Owner: "u1", TaskType: domain.TaskTypeCouple, Category: domain.CategoryTruth}

func stored(version int64, tasks ...string) *domain.TaskLibrary {
	return &domain.TaskLibrary{
		ID:       "tl-1",
		Owner:    key.Owner,
		TaskType: key.TaskType,
		Category: key.Category,
		Tasks:    tasks,
		Version:  version,
	}
}

func TestDecide_CreateIgnoresClientVersion(t *testing.T) {
	for _, cv := range []int64{0, 1, 5, 1000} {
		d := Decide(nil, cv)
		assert.Equal(t, Create, d.Outcome)
		assert.Equal(t, int64(1), d.NextVersion)
		assert.Equal(t, int64(0), d.StoredVersion)
	}
}

func TestDecide_Table(t *testing.T) {
	tests := []struct {
		name          string
		storedVersion int64
		clientVersion int64
		want          Outcome
		wantNext      int64
	}{
		{"equal versions accept", 3, 3, Accept, 4},
		{"client ahead accepts from stored", 2, 5, Accept, 3},
		{"client at zero behind", 1, 0, Conflict, 1},
		{"client behind", 7, 6, Conflict, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(stored(tt.storedVersion), tt.clientVersion)
			assert.Equal(t, tt.want, d.Outcome)
			assert.Equal(t, tt.wantNext, d.NextVersion)
			assert.Equal(t, tt.storedVersion, d.StoredVersion)
		})
	}
}

// Every pair of stored/client versions resolves one way or the other and the
// next version never decreases or skips.
func TestDecide_Properties(t *testing.T) {
	for sv := int64(1); sv <= 20; sv++ {
		for cv := int64(0); cv <= 25; cv++ {
			d := Decide(stored(sv), cv)
			switch {
			case cv >= sv:
				require.Equal(t, Accept, d.Outcome, "sv=%d cv=%d", sv, cv)
				require.Equal(t, sv+1, d.NextVersion)
			default:
				require.Equal(t, Conflict, d.Outcome, "sv=%d cv=%d", sv, cv)
				require.Equal(t, sv, d.NextVersion)
			}
		}
	}
}

func TestNext_Create(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tasks := []string{"a", "b"}

	rec := Next(nil, key, tasks, now)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, key, rec.Key())
	assert.Equal(t, []string{"a", "b"}, rec.Tasks)
	assert.Equal(t, int64(1), rec.Version)
	assert.Equal(t, now, rec.CreatedAt)
	assert.Equal(t, now, rec.LastModified)
	assert.False(t, rec.Shared)

	tasks[0] = "mutated"
	assert.Equal(t, "a", rec.Tasks[0], "Next must copy the submitted slice")
}

func TestNext_ReplacePreservesShareAndIdentity(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := created.Add(time.Hour)

	prev := stored(4, "old")
	prev.Shared = true
	prev.ShareTokenHash = "digest"
	prev.CreatedAt = created
	prev.Revision = 9

	rec := Next(prev, key, nil, now)

	assert.Equal(t, "tl-1", rec.ID)
	assert.Equal(t, int64(5), rec.Version)
	assert.Equal(t, []string{}, rec.Tasks, "empty submission still writes")
	assert.True(t, rec.Shared)
	assert.Equal(t, "digest", rec.ShareTokenHash)
	assert.Equal(t, created, rec.CreatedAt)
	assert.Equal(t, now, rec.LastModified)
	assert.Equal(t, int64(9), rec.Revision, "revision is owned by the store")

	assert.Equal(t, []string{"old"}, prev.Tasks)
	assert.Equal(t, int64(4), prev.Version)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "create", Create.String())
	assert.Equal(t, "accept", Accept.String())
	assert.Equal(t, "conflict", Conflict.String())
	assert.Equal(t, "unknown", Outcome(0).String())
}
