package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/listenupapp/tasksync-server/internal/service"
)

func (s *Server) registerShareRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "shareTaskLibrary",
		Method:      http.MethodPost,
		Path:        "/api/v1/tasks/{task_type}/{category}/share",
		Summary:     "Share task library",
		Description: "Creates a new share token for an existing library, replacing any previous one. The token is only returned once",
		Tags:        []string{"Sharing"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleShareLibrary)

	huma.Register(s.api, huma.Operation{
		OperationID: "unshareTaskLibrary",
		Method:      http.MethodDelete,
		Path:        "/api/v1/tasks/{task_type}/{category}/share",
		Summary:     "Revoke share token",
		Description: "Revokes the library's share token. Revoking an unshared library succeeds",
		Tags:        []string{"Sharing"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUnshareLibrary)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSharedTaskLibrary",
		Method:      http.MethodGet,
		Path:        "/api/v1/shared/{token}",
		Summary:     "Get shared task library",
		Description: "Public read-only view of a shared library. Does not reveal the owner or the version",
		Tags:        []string{"Sharing"},
	}, s.handleGetShared)
}

// === DTOs ===

// ShareResponse contains a freshly minted share token.
type ShareResponse struct {
	Token string `json:"token" doc:"Opaque share token"`
}

// ShareOutput wraps the share response for Huma.
type ShareOutput struct {
	Body ShareResponse
}

// SharedLibraryInput contains the share token.
type SharedLibraryInput struct {
	Token string `path:"token" doc:"Share token"`
}

// SharedLibraryResponse is the anonymous view of a shared library.
type SharedLibraryResponse struct {
	TaskType     string    `json:"task_type" doc:"Task type"`
	Category     string    `json:"category" doc:"truth or dare"`
	Tasks        []string  `json:"tasks" doc:"Ordered task texts"`
	LastModified time.Time `json:"last_modified" doc:"Last content change"`
}

// SharedLibraryOutput wraps the shared library response for Huma.
type SharedLibraryOutput struct {
	Body SharedLibraryResponse
}

// === Handlers ===

func (s *Server) handleShareLibrary(ctx context.Context, input *LibraryPathInput) (*ShareOutput, error) {
	ref, err := libraryRef(ctx, input.TaskType, input.Category)
	if err != nil {
		return nil, err
	}

	token, err := s.services.Tasks.Share(ctx, service.ShareRequest{LibraryRef: ref})
	if err != nil {
		return nil, err
	}

	return &ShareOutput{Body: ShareResponse{Token: token}}, nil
}

func (s *Server) handleUnshareLibrary(ctx context.Context, input *LibraryPathInput) (*AckOutput, error) {
	ref, err := libraryRef(ctx, input.TaskType, input.Category)
	if err != nil {
		return nil, err
	}

	if err := s.services.Tasks.Unshare(ctx, service.UnshareRequest{LibraryRef: ref}); err != nil {
		return nil, err
	}

	return &AckOutput{Body: AckResponse{Accepted: true}}, nil
}

func (s *Server) handleGetShared(ctx context.Context, input *SharedLibraryInput) (*SharedLibraryOutput, error) {
	snap, err := s.services.Tasks.ReadShared(ctx, service.ReadSharedRequest{Token: input.Token})
	if err != nil {
		return nil, err
	}

	return &SharedLibraryOutput{Body: SharedLibraryResponse{
		TaskType:     string(snap.TaskType),
		Category:     string(snap.Category),
		Tasks:        snap.Tasks,
		LastModified: snap.LastModified,
	}}, nil
}
