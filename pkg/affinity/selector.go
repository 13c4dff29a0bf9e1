package affinity

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Selector reads and refreshes the backend server a project is pinned to.
// Store failures never fail the caller: a read error is a cache miss and a
// write error is dropped, both logged at warn.
type Selector struct {
	store      Store
	ttl        time.Duration
	cookieName string
	logger     *slog.Logger
}

// SelectorConfig configures a Selector.
type SelectorConfig struct {
	// TTL is how long a recorded server id stays sticky.
	// Default: 24 hours
	TTL time.Duration

	// CookieName is the cookie the backend load balancer reads.
	// Default: "clsiserver"
	CookieName string

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// NewSelector creates a Selector over store.
func NewSelector(store Store, cfg SelectorConfig) *Selector {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "clsiserver"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Selector{
		store:      store,
		ttl:        cfg.TTL,
		cookieName: cfg.CookieName,
		logger:     cfg.Logger.With("component", "affinity.selector"),
	}
}

// GetServerID returns the pinned server for key, or "" when none is known.
func (s *Selector) GetServerID(ctx context.Context, key Key) string {
	serverID, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read backend affinity",
			"project_id", key.ProjectID,
			"user_id", key.UserID,
			"error", err,
		)
		return ""
	}
	if !ok {
		return ""
	}
	return serverID
}

// RecordServerID pins key to serverID and refreshes its expiry.
// An empty serverID is ignored.
func (s *Selector) RecordServerID(ctx context.Context, key Key, serverID string) {
	if serverID == "" {
		return
	}
	if err := s.store.Set(ctx, key, serverID, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "failed to record backend affinity",
			"project_id", key.ProjectID,
			"user_id", key.UserID,
			"server_id", serverID,
			"error", err,
		)
	}
}

// ClearServerID forgets the pinned server for key.
func (s *Selector) ClearServerID(ctx context.Context, key Key) {
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "failed to clear backend affinity",
			"project_id", key.ProjectID,
			"error", err,
		)
	}
}

// CookieName returns the affinity cookie name.
func (s *Selector) CookieName() string {
	return s.cookieName
}

// CookieFor builds the affinity cookie for serverID, or nil when serverID is empty.
func (s *Selector) CookieFor(serverID string) *http.Cookie {
	if serverID == "" {
		return nil
	}
	return &http.Cookie{Name: s.cookieName, Value: serverID}
}

// ServerIDFromResponse extracts the backend server id a response was served
// by: the affinity cookie first, then the X-Clsi-Server-Id header.
func (s *Selector) ServerIDFromResponse(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if c.Name == s.cookieName && c.Value != "" {
			return c.Value
		}
	}
	return resp.Header.Get("X-Clsi-Server-Id")
}
