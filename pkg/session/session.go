package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Session is the subset of the web application's session this service
// reads.
type Session struct {
	// ID is the session id. It is not part of the stored document.
	ID string `json:"-"`

	User *User `json:"user,omitempty"`

	// AnalyticsID identifies anonymous visitors.
	AnalyticsID string `json:"analyticsId,omitempty"`

	// AnonTokenAccess maps project id to a read token granted by link
	// sharing.
	AnonTokenAccess map[string]string `json:"anonTokenAccess,omitempty"`
}

// User is the logged-in user of a session.
type User struct {
	ID          string `json:"_id"`
	AnalyticsID string `json:"analyticsId,omitempty"`
}

// UserID returns the logged-in user id, or "" for anonymous sessions.
func (s *Session) UserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}

// AnalyticsIDOrUser returns the id analytics events are keyed by: the
// user's analytics id, else the user id for legacy users, else the
// session's own analytics id.
func (s *Session) AnalyticsIDOrUser() string {
	if s == nil {
		return ""
	}
	if s.User != nil {
		if s.User.AnalyticsID != "" {
			return s.User.AnalyticsID
		}
		if s.User.ID != "" {
			return s.User.ID
		}
	}
	return s.AnalyticsID
}

// TokenFor returns the anonymous access token for projectID.
func (s *Session) TokenFor(projectID string) string {
	if s == nil {
		return ""
	}
	return s.AnonTokenAccess[projectID]
}

// Store loads sessions by id.
type Store interface {
	// Get returns the session for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Set stores s under s.ID for ttl.
	Set(ctx context.Context, s *Session, ttl time.Duration) error

	// Delete removes a session. Missing ids are not an error.
	Delete(ctx context.Context, id string) error

	// Close releases resources.
	Close() error
}

// ErrNotFound is returned by Store.Get for unknown or expired sessions.
var ErrNotFound = errors.New("session: not found")

// StorageError wraps a store backend failure.
type StorageError struct {
	Backend string
	Op      string
	Cause   error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("session %s store %s failed: %v", e.Backend, e.Op, e.Cause)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}
