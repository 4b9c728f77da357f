package transport

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// APIError is a non-2xx backend response, passed through to the caller
// for interpretation.
type APIError struct {
	Status  int
	Body    []byte
	Message string // backend-supplied error message, when present
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error: status %d", e.Status)
}

// newAPIError builds an APIError, pulling the human-readable message
// out of the standard backend error envelope when one is present.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Body: body}
	var payload struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Error != "":
			apiErr.Message = payload.Error
		case payload.Detail != "":
			apiErr.Message = payload.Detail
		case payload.Message != "":
			apiErr.Message = payload.Message
		}
	}
	return apiErr
}

// ErrorMessage returns the backend-supplied message carried by err, or
// fallback when err carries none. Stores use it to turn a failure into
// the user-facing error string they record.
func ErrorMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
