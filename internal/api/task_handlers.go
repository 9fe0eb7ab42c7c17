package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/listenupapp/tasksync-server/internal/service"
)

// maxTasksBodyBytes fits a full library of maximum-length multibyte tasks.
const maxTasksBodyBytes = 4 << 20

func (s *Server) registerTaskRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listTaskLibraries",
		Method:      http.MethodGet,
		Path:        "/api/v1/tasks",
		Summary:     "List task libraries",
		Description: "Returns a summary of every task library the caller owns",
		Tags:        []string{"Tasks"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListLibraries)

	huma.Register(s.api, huma.Operation{
		OperationID: "getTaskLibrary",
		Method:      http.MethodGet,
		Path:        "/api/v1/tasks/{task_type}/{category}",
		Summary:     "Get task library",
		Description: "Returns the tasks and version of a library. A library that was never written reads as empty at version 0",
		Tags:        []string{"Tasks"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetLibrary)

	huma.Register(s.api, huma.Operation{
		OperationID:  "syncTaskLibrary",
		Method:       http.MethodPost,
		Path:         "/api/v1/tasks/{task_type}/{category}/sync",
		Summary:      "Sync task library",
		Description:  "Writes the client's tasks if client_version matches the stored version, otherwise reports a conflict without writing",
		Tags:         []string{"Tasks"},
		Security:     []map[string][]string{{"bearer": {}}},
		MaxBodyBytes: maxTasksBodyBytes,
	}, s.handleSyncLibrary)

	huma.Register(s.api, huma.Operation{
		OperationID:  "updateTaskLibrary",
		Method:       http.MethodPut,
		Path:         "/api/v1/tasks/{task_type}/{category}",
		Summary:      "Replace task library",
		Description:  "Overwrites the library's tasks regardless of version",
		Tags:         []string{"Tasks"},
		Security:     []map[string][]string{{"bearer": {}}},
		MaxBodyBytes: maxTasksBodyBytes,
	}, s.handleUpdateLibrary)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteTaskLibrary",
		Method:      http.MethodDelete,
		Path:        "/api/v1/tasks/{task_type}/{category}",
		Summary:     "Delete task library",
		Description: "Removes the library and revokes its share token. Deleting a missing library succeeds",
		Tags:        []string{"Tasks"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteLibrary)
}

// === DTOs ===

// ListLibrariesInput contains parameters for listing libraries.
type ListLibrariesInput struct {
	Authorization string `header:"Authorization"`
}

// LibrarySummaryResponse is one entry of a library listing.
type LibrarySummaryResponse struct {
	TaskType     string    `json:"task_type" doc:"Task type"`
	Category     string    `json:"category" doc:"truth or dare"`
	Version      int64     `json:"version" doc:"Current version"`
	TaskCount    int       `json:"task_count" doc:"Number of tasks"`
	Shared       bool      `json:"shared" doc:"Whether a share token is active"`
	LastModified time.Time `json:"last_modified" doc:"Last content change"`
}

// ListLibrariesResponse contains the caller's libraries.
type ListLibrariesResponse struct {
	Libraries []LibrarySummaryResponse `json:"libraries" doc:"Libraries ordered by task type then category"`
}

// ListLibrariesOutput wraps the list response for Huma.
type ListLibrariesOutput struct {
	Body ListLibrariesResponse
}

// LibraryPathInput addresses one library.
type LibraryPathInput struct {
	Authorization string `header:"Authorization"`
	TaskType      string `path:"task_type" doc:"couple, funny, romantic, adventurous or intimate"`
	Category      string `path:"category" doc:"truth or dare"`
}

// LibraryResponse is the current state of a library.
type LibraryResponse struct {
	Tasks        []string   `json:"tasks" doc:"Ordered task texts"`
	Version      int64      `json:"version" doc:"Current version, 0 if the library does not exist"`
	LastModified *time.Time `json:"last_modified" doc:"Last content change, null if the library does not exist"`
	Shared       bool       `json:"shared" doc:"Whether a share token is active"`
}

// LibraryOutput wraps the library response for Huma.
type LibraryOutput struct {
	Body LibraryResponse
}

// SyncLibraryRequest is the sync request body.
type SyncLibraryRequest struct {
	Tasks         []string `json:"tasks" doc:"The client's full ordered task list"`
	ClientVersion *int64   `json:"client_version,omitempty" doc:"Version the client last saw; omitted means 0"`
}

// SyncLibraryInput wraps the sync request for Huma.
type SyncLibraryInput struct {
	Authorization string `header:"Authorization"`
	TaskType      string `path:"task_type" doc:"couple, funny, romantic, adventurous or intimate"`
	Category      string `path:"category" doc:"truth or dare"`
	Body          SyncLibraryRequest
}

// AcceptedLibrary is returned when a write was applied.
type AcceptedLibrary struct {
	Accepted     bool       `json:"accepted" doc:"Always true"`
	Tasks        []string   `json:"tasks" doc:"Stored task texts"`
	Version      int64      `json:"version" doc:"Version after the write"`
	LastModified *time.Time `json:"last_modified" doc:"Time of the write"`
}

// ConflictDetail is returned when a sync was rejected. Nothing was written.
type ConflictDetail struct {
	Conflict      bool     `json:"conflict" doc:"Always true"`
	ServerTasks   []string `json:"server_tasks" doc:"Currently stored tasks"`
	ServerVersion int64    `json:"server_version" doc:"Currently stored version"`
	ClientTasks   []string `json:"client_tasks" doc:"The tasks the client sent"`
}

// SyncLibraryResponse carries exactly one of its embedded variants.
type SyncLibraryResponse struct {
	*AcceptedLibrary
	*ConflictDetail
}

// SyncLibraryOutput wraps the sync response for Huma.
type SyncLibraryOutput struct {
	Body SyncLibraryResponse
}

// UpdateLibraryRequest is the replace request body.
type UpdateLibraryRequest struct {
	Tasks []string `json:"tasks" doc:"The new ordered task list"`
}

// UpdateLibraryInput wraps the replace request for Huma.
type UpdateLibraryInput struct {
	Authorization string `header:"Authorization"`
	TaskType      string `path:"task_type" doc:"couple, funny, romantic, adventurous or intimate"`
	Category      string `path:"category" doc:"truth or dare"`
	Body          UpdateLibraryRequest
}

// AcceptedOutput wraps an accepted write for Huma.
type AcceptedOutput struct {
	Body AcceptedLibrary
}

// AckResponse acknowledges an operation that returns no data.
type AckResponse struct {
	Accepted bool `json:"accepted" doc:"Always true"`
}

// AckOutput wraps an acknowledgement for Huma.
type AckOutput struct {
	Body AckResponse
}

// === Handlers ===

func (s *Server) handleListLibraries(ctx context.Context, _ *ListLibrariesInput) (*ListLibrariesOutput, error) {
	owner, err := GetOwner(ctx)
	if err != nil {
		return nil, err
	}

	summaries, err := s.services.Tasks.List(ctx, service.ListRequest{Owner: owner})
	if err != nil {
		return nil, err
	}

	resp := make([]LibrarySummaryResponse, len(summaries))
	for i, sum := range summaries {
		resp[i] = LibrarySummaryResponse{
			TaskType:     string(sum.TaskType),
			Category:     string(sum.Category),
			Version:      sum.Version,
			TaskCount:    sum.TaskCount,
			Shared:       sum.Shared,
			LastModified: sum.LastModified,
		}
	}

	return &ListLibrariesOutput{Body: ListLibrariesResponse{Libraries: resp}}, nil
}

func (s *Server) handleGetLibrary(ctx context.Context, input *LibraryPathInput) (*LibraryOutput, error) {
	ref, err := libraryRef(ctx, input.TaskType, input.Category)
	if err != nil {
		return nil, err
	}

	state, err := s.services.Tasks.Read(ctx, service.ReadRequest{LibraryRef: ref})
	if err != nil {
		return nil, err
	}

	return &LibraryOutput{Body: LibraryResponse{
		Tasks:        state.Tasks,
		Version:      state.Version,
		LastModified: state.LastModified,
		Shared:       state.Shared,
	}}, nil
}

func (s *Server) handleSyncLibrary(ctx context.Context, input *SyncLibraryInput) (*SyncLibraryOutput, error) {
	ref, err := libraryRef(ctx, input.TaskType, input.Category)
	if err != nil {
		return nil, err
	}

	result, err := s.services.Tasks.Sync(ctx, service.SyncRequest{
		LibraryRef:    ref,
		Tasks:         input.Body.Tasks,
		ClientVersion: input.Body.ClientVersion,
	})
	if err != nil {
		return nil, err
	}

	if result.Conflict != nil {
		return &SyncLibraryOutput{Body: SyncLibraryResponse{ConflictDetail: &ConflictDetail{
			Conflict:      true,
			ServerTasks:   result.Conflict.ServerTasks,
			ServerVersion: result.Conflict.ServerVersion,
			ClientTasks:   result.Conflict.ClientTasks,
		}}}, nil
	}

	return &SyncLibraryOutput{Body: SyncLibraryResponse{AcceptedLibrary: accepted(result.Accepted)}}, nil
}

func (s *Server) handleUpdateLibrary(ctx context.Context, input *UpdateLibraryInput) (*AcceptedOutput, error) {
	ref, err := libraryRef(ctx, input.TaskType, input.Category)
	if err != nil {
		return nil, err
	}

	state, err := s.services.Tasks.Update(ctx, service.UpdateRequest{
		LibraryRef: ref,
		Tasks:      input.Body.Tasks,
	})
	if err != nil {
		return nil, err
	}

	return &AcceptedOutput{Body: *accepted(state)}, nil
}

func (s *Server) handleDeleteLibrary(ctx context.Context, input *LibraryPathInput) (*AckOutput, error) {
	ref, err := libraryRef(ctx, input.TaskType, input.Category)
	if err != nil {
		return nil, err
	}

	if err := s.services.Tasks.Delete(ctx, service.DeleteRequest{LibraryRef: ref}); err != nil {
		return nil, err
	}

	return &AckOutput{Body: AckResponse{Accepted: true}}, nil
}

// libraryRef combines the authenticated owner with the path tags.
// Tags are validated by the service.
func libraryRef(ctx context.Context, taskType, category string) (service.LibraryRef, error) {
	owner, err := GetOwner(ctx)
	if err != nil {
		return service.LibraryRef{}, err
	}
	return service.LibraryRef{Owner: owner, TaskType: taskType, Category: category}, nil
}

func accepted(state *service.LibraryState) *AcceptedLibrary {
	return &AcceptedLibrary{
		Accepted:     true,
		Tasks:        state.Tasks,
		Version:      state.Version,
		LastModified: state.LastModified,
	}
}
