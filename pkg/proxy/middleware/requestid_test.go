package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"mercator-hq/compilegate/pkg/telemetry/logging"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	wrapped := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name     string
		header   string
		wantKept bool
	}{
		{"missing", "", false},
		{"client supplied", "custom-request-id-12345", true},
		{"contains space", "bad id", false},
		{"control character", "bad\x01id", false},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), false},
		{"at limit", strings.Repeat("a", maxRequestIDLen), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/project/p1/wordcount", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			w := httptest.NewRecorder()
			wrapped.ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			if seen != got {
				t.Errorf("context request ID = %q, header = %q", seen, got)
			}
			if tt.wantKept {
				if got != tt.header {
					t.Errorf("request ID = %q, want %q", got, tt.header)
				}
				return
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("request ID %q is not a UUID: %v", got, err)
			}
		})
	}
}

func TestRequestIDMiddleware_Unique(t *testing.T) {
	wrapped := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w1 := httptest.NewRecorder()
	wrapped.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/", nil))
	w2 := httptest.NewRecorder()
	wrapped.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/", nil))

	if id := w1.Header().Get(RequestIDHeader); id == w2.Header().Get(RequestIDHeader) {
		t.Errorf("request IDs should be unique, got %s twice", id)
	}
}
