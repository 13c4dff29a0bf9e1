package middleware

import (
	"context"

	"mercator-hq/compilegate/pkg/session"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// SessionKey stores the session loaded from the request cookie.
const SessionKey contextKey = "session"

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}

// GetSession returns the session loaded for the request. It returns nil for
// anonymous visitors without a session; the session accessors are nil-safe.
func GetSession(ctx context.Context) *session.Session {
	s, _ := ctx.Value(SessionKey).(*session.Session)
	return s
}

// GetSessionID returns the id of the request's session, or "".
func GetSessionID(ctx context.Context) string {
	if s := GetSession(ctx); s != nil {
		return s.ID
	}
	return ""
}
