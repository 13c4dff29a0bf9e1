package affinity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

var testKey = Key{
	ProjectID:    "p1",
	UserID:       "u1",
	CompileGroup: CompileGroupStandard,
	BackendClass: BackendClassN2D,
}

type storeFactory func(t *testing.T, clk clock.Clock) Store

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, clk clock.Clock) Store {
			return NewMemoryStore(MemoryStoreConfig{MaxEntries: 100, MaxTTL: time.Hour, Clock: clk})
		},
		"sqlite": func(t *testing.T, clk clock.Clock) Store {
			s, err := NewSQLiteStore(SQLiteStoreConfig{
				Path:  filepath.Join(t.TempDir(), "affinity.db"),
				Clock: clk,
			})
			if err != nil {
				t.Fatalf("failed to open sqlite store: %v", err)
			}
			return s
		},
	}
}

func TestStore_SetGetDelete(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clk := clock.NewMock()
			store := factory(t, clk)
			defer store.Close()

			if _, ok, err := store.Get(ctx, testKey); err != nil || ok {
				t.Fatalf("expected miss on empty store, got ok=%v err=%v", ok, err)
			}

			if err := store.Set(ctx, testKey, "clsi-1", time.Minute); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			got, ok, err := store.Get(ctx, testKey)
			if err != nil || !ok || got != "clsi-1" {
				t.Fatalf("expected clsi-1, got %q ok=%v err=%v", got, ok, err)
			}

			// Last writer wins.
			if err := store.Set(ctx, testKey, "clsi-2", time.Minute); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if got, _, _ := store.Get(ctx, testKey); got != "clsi-2" {
				t.Errorf("expected clsi-2 after overwrite, got %q", got)
			}

			if err := store.Delete(ctx, testKey); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, ok, _ := store.Get(ctx, testKey); ok {
				t.Error("expected miss after delete")
			}
			if err := store.Delete(ctx, testKey); err != nil {
				t.Errorf("deleting a missing key should be a no-op, got %v", err)
			}
		})
	}
}

func TestStore_Expiry(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clk := clock.NewMock()
			store := factory(t, clk)
			defer store.Close()

			if err := store.Set(ctx, testKey, "clsi-1", time.Minute); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			clk.Add(59 * time.Second)
			if _, ok, _ := store.Get(ctx, testKey); !ok {
				t.Fatal("expected hit before ttl")
			}

			clk.Add(time.Second)
			if _, ok, _ := store.Get(ctx, testKey); ok {
				t.Fatal("expected miss at ttl")
			}
		})
	}
}

func TestStore_PruneExpired(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clk := clock.NewMock()
			store := factory(t, clk)
			defer store.Close()

			other := testKey
			other.ProjectID = "p2"

			_ = store.Set(ctx, testKey, "clsi-1", time.Minute)
			_ = store.Set(ctx, other, "clsi-2", time.Hour-time.Second)

			deleted, err := store.PruneExpired(ctx, clk.Now().Add(2*time.Minute))
			if err != nil {
				t.Fatalf("PruneExpired failed: %v", err)
			}
			if deleted != 1 {
				t.Errorf("expected 1 pruned, got %d", deleted)
			}
			if _, ok, _ := store.Get(ctx, other); !ok {
				t.Error("expected unexpired record to survive prune")
			}
		})
	}
}

func TestMemoryStore_Eviction(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(MemoryStoreConfig{MaxEntries: 2, MaxTTL: time.Hour})

	for _, p := range []string{"a", "b", "c"} {
		k := testKey
		k.ProjectID = p
		_ = store.Set(ctx, k, "clsi-"+p, time.Hour)
	}

	if store.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", store.Len())
	}
	first := testKey
	first.ProjectID = "a"
	if _, ok, _ := store.Get(ctx, first); ok {
		t.Error("expected least recently used entry to be evicted")
	}
}

func TestKey_String(t *testing.T) {
	shared := testKey
	shared.UserID = ""

	if got := testKey.String(); got != "clsiserver:p1:u1:standard:n2d" {
		t.Errorf("unexpected key %q", got)
	}
	if got := shared.String(); got != "clsiserver:p1:-:standard:n2d" {
		t.Errorf("unexpected shared key %q", got)
	}
}

func TestParseBackendClass(t *testing.T) {
	tests := []struct {
		in      string
		want    BackendClass
		wantErr bool
	}{
		{"n2d", BackendClassN2D, false},
		{" C4D ", BackendClassC4D, false},
		{"gpu", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBackendClass(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := ParseCompileGroup("priority"); err != nil {
		t.Errorf("expected priority to parse: %v", err)
	}
	if _, err := ParseCompileGroup("vip"); err == nil {
		t.Error("expected unknown compile group to fail")
	}
}
