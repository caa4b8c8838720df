package utils

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrorRecordNotFound = errors.New("record not found")

// ValidationError is raised synchronously for bad or missing input
// (missing reason, duplicate document, invalid segment name). Never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// PermissionError is raised when the acting user lacks the capability for
// the requested approval stage. No state is mutated.
type PermissionError struct {
	Message string
}

func (e *PermissionError) Error() string { return e.Message }

func NewPermissionError(format string, args ...any) error {
	return &PermissionError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError is raised for unknown partners, jobs or change requests.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

func NewNotFoundError(format string, args ...any) error {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ExternalError wraps failures of downstream systems (SAP dispatch, registry
// lookup, reverse-sync paging). The engines record these into segment or
// audit state instead of surfacing them to the workflow caller.
type ExternalError struct {
	Message string
	Err     error
}

func (e *ExternalError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ExternalError) Unwrap() error { return e.Err }

func NewExternalError(message string, err error) error {
	return &ExternalError{Message: message, Err: err}
}

// ErrorStatus maps an error to the HTTP status the REST handlers respond with.
func ErrorStatus(err error) int {
	var validationErr *ValidationError
	var permissionErr *PermissionError
	var notFoundErr *NotFoundError
	var externalErr *ExternalError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &permissionErr):
		return http.StatusForbidden
	case errors.As(err, &notFoundErr), errors.Is(err, ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.As(err, &externalErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
