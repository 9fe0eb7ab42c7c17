package api

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/listenupapp/tasksync-server/internal/http/response"
)

// EnvelopeTransformer wraps every huma response body in the shared envelope.
// Errors keep "error" for older clients and add "code", "message" and "details".
func EnvelopeTransformer(_ huma.Context, _ string, v any) (any, error) {
	switch body := v.(type) {
	case response.Envelope, *response.Envelope:
		return v, nil
	case *APIError:
		return response.Envelope{
			Version: response.EnvelopeVersion,
			Success: false,
			Error:   body.Message,
			Code:    body.Code,
			Message: body.Message,
			Details: body.Details,
		}, nil
	case huma.StatusError:
		return response.Envelope{
			Version: response.EnvelopeVersion,
			Success: false,
			Error:   body.Error(),
			Code:    statusToCode(body.GetStatus()),
			Message: body.Error(),
		}, nil
	default:
		return response.Envelope{
			Version: response.EnvelopeVersion,
			Success: true,
			Data:    v,
		}, nil
	}
}
