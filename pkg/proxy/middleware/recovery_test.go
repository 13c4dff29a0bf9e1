package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRecoveryMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantBody   string
	}{
		{
			name:       "recovers from string panic",
			handler:    func(http.ResponseWriter, *http.Request) { panic("test panic") },
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "recovers from error panic",
			handler:    func(http.ResponseWriter, *http.Request) { panic(errors.New("boom")) },
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "passes through normal requests",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("OK"))
			},
			wantStatus: http.StatusOK,
			wantBody:   "OK",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			RecoveryMiddleware(tt.handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("Status code = %v, want %v", w.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("Body = %v, want %v", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRecoveryMiddleware_ReraisesAbortHandler(t *testing.T) {
	wrapped := RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", r)
		}
	}()
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))
	t.Error("ErrAbortHandler was swallowed")
}

func TestRecoveryMiddleware_AbortsStartedResponse(t *testing.T) {
	wrapped := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.5"))
		panic("stream broke")
	}))

	w := httptest.NewRecorder()
	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", r)
		}
		if got := w.Header().Get("Content-Type"); got != "application/pdf" {
			t.Errorf("Content-Type = %q, error envelope must not be spliced in", got)
		}
	}()
	wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/project/p1/output/output.pdf", nil))
	t.Error("started response was not aborted")
}

func BenchmarkRecoveryMiddleware(b *testing.B) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	wrapped := RecoveryMiddleware(handler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)
	}
}
