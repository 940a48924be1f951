package filters

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned by repositories when no row matches.
	ErrNotFound = errors.New("filters: not found")
	// ErrPermission signals the caller may not access a specific filter.
	ErrPermission = errors.New("filters: permission denied")
	// ErrValidation wraps payloads rejected by the schema.
	ErrValidation = errors.New("filters: validation failed")
)

// BusinessError is a named rule violation whose status and message are
// returned to the client unchanged.
type BusinessError struct {
	Code    string
	Message string
	Status  int
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewFilterNotFound is raised for ids that do not resolve to a usable filter.
func NewFilterNotFound() *BusinessError {
	return &BusinessError{
		Code:    "FILTER_NOT_FOUND",
		Message: "The specified filter not found",
		Status:  http.StatusBadRequest,
	}
}

// ValidationError carries the reasons a payload was rejected. The reasons are
// for logs only and are never written to clients.
type ValidationError struct {
	Reasons []string
	cause   error
}

func (e *ValidationError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("filters: validation failed: %v", e.cause)
	}
	return fmt.Sprintf("filters: validation failed: %v", e.Reasons)
}

func (e *ValidationError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrValidation, e.cause}
	}
	return []error{ErrValidation}
}
