package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncEnvelopeData decodes either branch of a sync response.
type syncEnvelopeData struct {
	Accepted      bool       `json:"accepted"`
	Tasks         []string   `json:"tasks"`
	Version       int64      `json:"version"`
	LastModified  *time.Time `json:"last_modified"`
	Conflict      bool       `json:"conflict"`
	ServerTasks   []string   `json:"server_tasks"`
	ServerVersion int64      `json:"server_version"`
	ClientTasks   []string   `json:"client_tasks"`
}

func TestGetLibrary_Absent(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/tasks/couple/truth", ts.bearer(t, "alice"))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	env := decodeEnvelope[LibraryResponse](t, resp)
	assert.True(t, env.Success)
	assert.Equal(t, []string{}, env.Data.Tasks)
	assert.Zero(t, env.Data.Version)
	assert.Nil(t, env.Data.LastModified)
	assert.Contains(t, resp.Body.String(), `"last_modified":null`)
}

func TestSync_CreatesAtVersionOne(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.bearer(t, "alice")

	resp := ts.api.Post("/api/v1/tasks/couple/truth/sync", alice, map[string]any{
		"tasks":          []string{"a", "b"},
		"client_version": 0,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	env := decodeEnvelope[syncEnvelopeData](t, resp)
	assert.True(t, env.Data.Accepted)
	assert.False(t, env.Data.Conflict)
	assert.Equal(t, []string{"a", "b"}, env.Data.Tasks)
	assert.Equal(t, int64(1), env.Data.Version)
	require.NotNil(t, env.Data.LastModified)
	assert.NotContains(t, resp.Body.String(), "server_tasks")

	read := decodeEnvelope[LibraryResponse](t, ts.api.Get("/api/v1/tasks/couple/truth", alice))
	assert.Equal(t, []string{"a", "b"}, read.Data.Tasks)
	assert.Equal(t, int64(1), read.Data.Version)
}

func TestSync_MissingClientVersionCreates(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/tasks/funny/dare/sync", ts.bearer(t, "alice"), map[string]any{
		"tasks": []string{"sing"},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	env := decodeEnvelope[syncEnvelopeData](t, resp)
	assert.True(t, env.Data.Accepted)
	assert.Equal(t, int64(1), env.Data.Version)
}

func TestSync_StaleClientConflicts(t *testing.T) {
	ts := setupTestServer(t)
	ts.seed(t, "alice", 3, "x", "y", "z")
	alice := ts.bearer(t, "alice")

	resp := ts.api.Post("/api/v1/tasks/couple/truth/sync", alice, map[string]any{
		"tasks":          []string{"p"},
		"client_version": 2,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	env := decodeEnvelope[syncEnvelopeData](t, resp)
	assert.True(t, env.Success)
	assert.True(t, env.Data.Conflict)
	assert.False(t, env.Data.Accepted)
	assert.Equal(t, []string{"x", "y", "z"}, env.Data.ServerTasks)
	assert.Equal(t, int64(3), env.Data.ServerVersion)
	assert.Equal(t, []string{"p"}, env.Data.ClientTasks)

	read := decodeEnvelope[LibraryResponse](t, ts.api.Get("/api/v1/tasks/couple/truth", alice))
	assert.Equal(t, []string{"x", "y", "z"}, read.Data.Tasks, "conflict must not write")
	assert.Equal(t, int64(3), read.Data.Version)
}

func TestSync_CurrentClientAccepted(t *testing.T) {
	ts := setupTestServer(t)
	ts.seed(t, "alice", 3, "x", "y", "z")

	resp := ts.api.Post("/api/v1/tasks/couple/truth/sync", ts.bearer(t, "alice"), map[string]any{
		"tasks":          []string{"x", "y", "z", "w"},
		"client_version": 3,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	env := decodeEnvelope[syncEnvelopeData](t, resp)
	assert.True(t, env.Data.Accepted)
	assert.Equal(t, int64(4), env.Data.Version)
	assert.Equal(t, []string{"x", "y", "z", "w"}, env.Data.Tasks)
}

func TestSync_OwnersAreIsolated(t *testing.T) {
	ts := setupTestServer(t)
	ts.seed(t, "alice", 5, "mine")

	resp := ts.api.Post("/api/v1/tasks/couple/truth/sync", ts.bearer(t, "bob"), map[string]any{
		"tasks":          []string{"bob's"},
		"client_version": 0,
	})
	env := decodeEnvelope[syncEnvelopeData](t, resp)
	assert.True(t, env.Data.Accepted)
	assert.Equal(t, int64(1), env.Data.Version)

	read := decodeEnvelope[LibraryResponse](t, ts.api.Get("/api/v1/tasks/couple/truth", ts.bearer(t, "alice")))
	assert.Equal(t, []string{"mine"}, read.Data.Tasks)
	assert.Equal(t, int64(5), read.Data.Version)
}

func TestSync_NormalizesPathTags(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.bearer(t, "alice")

	resp := ts.api.Post("/api/v1/tasks/Romantic/DARE/sync", alice, map[string]any{
		"tasks": []string{"dance"},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	read := decodeEnvelope[LibraryResponse](t, ts.api.Get("/api/v1/tasks/romantic/dare", alice))
	assert.Equal(t, []string{"dance"}, read.Data.Tasks)
}

func TestSync_Validation(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.bearer(t, "alice")

	tests := []struct {
		name  string
		path  string
		body  map[string]any
		field string
	}{
		{"unknown task type", "/api/v1/tasks/spicy/truth/sync", map[string]any{"tasks": []string{"a"}}, "task_type"},
		{"unknown category", "/api/v1/tasks/couple/maybe/sync", map[string]any{"tasks": []string{"a"}}, "category"},
		{"negative version", "/api/v1/tasks/couple/truth/sync", map[string]any{"tasks": []string{"a"}, "client_version": -1}, "client_version"},
		{"task too long", "/api/v1/tasks/couple/truth/sync", map[string]any{"tasks": []string{"ok", strings.Repeat("x", 501)}}, "tasks[1]"},
		{"missing tasks", "/api/v1/tasks/couple/truth/sync", map[string]any{"client_version": 1}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.api.Post(tt.path, alice, tt.body)
			require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())

			env := decodeEnvelope[any](t, resp)
			assert.False(t, env.Success)
			assert.Equal(t, "VALIDATION", env.Code)
			if tt.field != "" {
				assert.Contains(t, env.Details, tt.field)
			}
		})
	}
}

func TestUpdateLibrary(t *testing.T) {
	ts := setupTestServer(t)
	ts.seed(t, "alice", 7, "old")
	alice := ts.bearer(t, "alice")

	resp := ts.api.Put("/api/v1/tasks/couple/truth", alice, map[string]any{
		"tasks": []string{"new", "newer"},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	env := decodeEnvelope[AcceptedLibrary](t, resp)
	assert.True(t, env.Data.Accepted)
	assert.Equal(t, int64(8), env.Data.Version)
	assert.Equal(t, []string{"new", "newer"}, env.Data.Tasks)

	resp = ts.api.Put("/api/v1/tasks/funny/truth", alice, map[string]any{"tasks": []string{}})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	env = decodeEnvelope[AcceptedLibrary](t, resp)
	assert.Equal(t, int64(1), env.Data.Version)
	assert.Equal(t, []string{}, env.Data.Tasks)
}

func TestDeleteLibrary(t *testing.T) {
	ts := setupTestServer(t)
	ts.seed(t, "alice", 2, "a")
	alice := ts.bearer(t, "alice")

	resp := ts.api.Delete("/api/v1/tasks/couple/truth", alice)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.True(t, decodeEnvelope[AckResponse](t, resp).Data.Accepted)

	read := decodeEnvelope[LibraryResponse](t, ts.api.Get("/api/v1/tasks/couple/truth", alice))
	assert.Zero(t, read.Data.Version)

	// Deleting again is not an error.
	resp = ts.api.Delete("/api/v1/tasks/couple/truth", alice)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestListLibraries(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.bearer(t, "alice")

	for _, path := range []string{"/api/v1/tasks/romantic/dare", "/api/v1/tasks/couple/truth", "/api/v1/tasks/couple/dare"} {
		resp := ts.api.Put(path, alice, map[string]any{"tasks": []string{"one", "two"}})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	}
	ts.api.Put("/api/v1/tasks/funny/dare", ts.bearer(t, "bob"), map[string]any{"tasks": []string{"x"}})

	resp := ts.api.Get("/api/v1/tasks", alice)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	env := decodeEnvelope[ListLibrariesResponse](t, resp)
	require.Len(t, env.Data.Libraries, 3)

	got := make([]string, len(env.Data.Libraries))
	for i, lib := range env.Data.Libraries {
		got[i] = lib.TaskType + "/" + lib.Category
		assert.Equal(t, 2, lib.TaskCount)
		assert.Equal(t, int64(1), lib.Version)
	}
	assert.Equal(t, []string{"couple/truth", "couple/dare", "romantic/dare"}, got)
}
