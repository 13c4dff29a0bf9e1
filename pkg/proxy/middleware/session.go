package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"mercator-hq/compilegate/pkg/session"
	"mercator-hq/compilegate/pkg/telemetry/logging"
)

// SessionConfig configures SessionMiddleware.
type SessionConfig struct {
	Store      session.Store
	CookieName string
	Secrets    []string
	Logger     *slog.Logger
}

// SessionMiddleware loads the session named by the request cookie into the
// context. Requests without a cookie, with a cookie no secret verifies, or
// whose session has expired continue as anonymous. A store failure is
// logged and the request continues as anonymous too.
func SessionMiddleware(cfg SessionConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "middleware.session")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			sid, err := session.IDFromRequest(r, cfg.CookieName, cfg.Secrets)
			switch {
			case errors.Is(err, session.ErrNoSession):
				next.ServeHTTP(w, r)
				return
			case err != nil:
				logger.DebugContext(ctx, "ignoring session cookie", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			s, err := cfg.Store.Get(ctx, sid)
			switch {
			case errors.Is(err, session.ErrNotFound):
				s = &session.Session{ID: sid}
			case err != nil:
				logger.WarnContext(ctx, "session lookup failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			ctx = WithSession(ctx, s)
			if uid := s.UserID(); uid != "" {
				ctx = logging.WithUserID(ctx, uid)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
