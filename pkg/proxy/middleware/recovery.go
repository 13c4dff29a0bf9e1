package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"

	"mercator-hq/compilegate/pkg/proxy/types"
)

// RecoveryMiddleware turns a handler panic into a logged 500 with a generic
// server_error envelope. When the handler already started its response, as
// a streamed PDF does, the connection is aborted instead so the client sees
// a truncated download rather than a spliced error body.
//
// http.ErrAbortHandler is re-raised untouched.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := newResponseWriter(w)
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}

			slog.ErrorContext(r.Context(), "panic in handler",
				"error", p,
				"method", r.Method,
				"path", r.URL.Path,
				"response_started", rw.written || rw.hijacked,
				"stack", string(debug.Stack()),
			)
			if rw.written || rw.hijacked {
				panic(http.ErrAbortHandler)
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(types.NewServerError("An internal error occurred. Please try again later."))
		}()

		next.ServeHTTP(rw, r)
	})
}
