package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func storeFactories() map[string]func(t *testing.T, clk clock.Clock) Store {
	return map[string]func(t *testing.T, clk clock.Clock) Store{
		"memory": func(t *testing.T, clk clock.Clock) Store {
			return NewMemoryStore(clk)
		},
		"sqlite": func(t *testing.T, clk clock.Clock) Store {
			s, err := NewSQLiteStore(SQLiteStoreConfig{
				Path:  filepath.Join(t.TempDir(), "sessions.db"),
				Clock: clk,
			})
			if err != nil {
				t.Fatalf("failed to open sqlite store: %v", err)
			}
			return s
		},
	}
}

func TestStore_RoundTrip(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clk := clock.NewMock()
			store := factory(t, clk)
			defer store.Close()

			if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			in := &Session{
				ID:              "sid-1",
				User:            &User{ID: "u1", AnalyticsID: "a1"},
				AnonTokenAccess: map[string]string{"p1": "tok"},
			}
			if err := store.Set(ctx, in, time.Hour); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			got, err := store.Get(ctx, "sid-1")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.ID != "sid-1" || got.UserID() != "u1" || got.TokenFor("p1") != "tok" {
				t.Errorf("unexpected session %+v", got)
			}

			clk.Add(time.Hour)
			if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected expired session, got %v", err)
			}

			if err := store.Delete(ctx, "sid-1"); err != nil {
				t.Errorf("Delete failed: %v", err)
			}
		})
	}
}

func TestSession_AnalyticsID(t *testing.T) {
	tests := []struct {
		name string
		s    *Session
		want string
	}{
		{"nil", nil, ""},
		{"anonymous", &Session{AnalyticsID: "anon-1"}, "anon-1"},
		{"user with analytics id", &Session{AnalyticsID: "anon-1", User: &User{ID: "u1", AnalyticsID: "a1"}}, "a1"},
		{"legacy user", &Session{AnalyticsID: "anon-1", User: &User{ID: "u1"}}, "u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.AnalyticsIDOrUser(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	_, err := NewSQLiteStore(SQLiteStoreConfig{})
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "open" {
		t.Errorf("expected open StorageError, got %v", err)
	}
}
