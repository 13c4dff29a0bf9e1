package filewatch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "split_tests.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reloads atomic.Int32
	w := New(path, 20*time.Millisecond, nil)
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(ctx, func() error {
			reloads.Add(1)
			return nil
		})
	}()

	// Give the watcher time to register.
	time.Sleep(50 * time.Millisecond)

	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("b: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("a: 2\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for reloads.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if reloads.Load() != 1 {
		t.Errorf("expected a single debounced reload, got %d", reloads.Load())
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "nope", "file.yaml"), 0, nil)
	if err := w.Run(context.Background(), func() error { return nil }); err == nil {
		t.Error("expected error for missing directory")
	}
}
