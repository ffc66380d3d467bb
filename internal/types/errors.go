package types

import "errors"

// Error taxonomy shared by the event log, storage and the API layer.
var (
	// ErrInvalidArgument marks malformed input to a mutation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflictingState marks an attempt to open a second concurrent interval.
	ErrConflictingState = errors.New("conflicting state")
	// ErrPersistenceFailure marks snapshot save/load I/O or parse errors.
	ErrPersistenceFailure = errors.New("persistence failure")
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
