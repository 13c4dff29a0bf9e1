package compile

import (
	"fmt"
	"net/http"
)

// ValidationError is returned for malformed client input, before any
// backend call is made.
type ValidationError struct {
	// Field is the offending request field.
	Field string

	// Reason describes what is wrong with it.
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// HTTPStatus reports the status a ValidationError maps to.
func (e *ValidationError) HTTPStatus() int {
	return http.StatusBadRequest
}
