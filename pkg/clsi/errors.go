package clsi

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNotFound is matched by errors.Is for any backend 404.
var ErrNotFound = errors.New("clsi: not found")

// RequestFailedError is returned when the backend answers with a non-2xx
// status. The status travels unchanged to the client where it is safe to.
type RequestFailedError struct {
	// Op is the backend operation (compile, sync-to-code, ...).
	Op string

	// StatusCode is the backend HTTP status.
	StatusCode int

	// Body is the first part of the backend response body.
	Body string
}

// Error implements the error interface.
func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("clsi %s failed with status %d", e.Op, e.StatusCode)
}

// Is makes a 404 match ErrNotFound.
func (e *RequestFailedError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// TimeoutError is returned when a backend call exceeds its deadline.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("clsi %s timed out after %s", e.Op, e.Timeout)
}

// TransportError wraps a connection-level failure talking to the backend.
type TransportError struct {
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("clsi %s transport error: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ParseError is returned when a backend response cannot be decoded.
type ParseError struct {
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("clsi %s response parse error: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// statusCoder is implemented by errors that carry an HTTP status of their own.
type statusCoder interface {
	HTTPStatus() int
}

// StatusCode extracts the HTTP status a failure should be reported with.
// It reports false when err carries none.
func StatusCode(err error) (int, bool) {
	var rf *RequestFailedError
	if errors.As(err, &rf) {
		return rf.StatusCode, true
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return http.StatusGatewayTimeout, true
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus(), true
	}
	return 0, false
}
