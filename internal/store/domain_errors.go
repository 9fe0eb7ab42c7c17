package store

import (
	"context"
	"errors"
	"net/http"

	domainerrors "github.com/listenupapp/tasksync-server/internal/errors"
)

// ToDomain maps a storage failure onto the domain error kinds the API reports.
// Domain errors and context cancellation pass through unchanged.
func ToDomain(err error) error {
	var domainErr *domainerrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrNotFound):
		return domainerrors.NotFound("task library not found")
	case errors.Is(err, ErrInvalidInput):
		return domainerrors.Wrap(err, domainerrors.CodeValidation, "invalid task library")
	default:
		return domainerrors.StorageUnavailable(err)
	}
}

// GetHeaders returns the headers of the domain error e maps to.
func (e *Error) GetHeaders() http.Header {
	var domainErr *domainerrors.Error
	if errors.As(ToDomain(e), &domainErr) {
		return domainErr.GetHeaders()
	}
	return nil
}
