package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type captureRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureRecorder) Record(_ context.Context, ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureRecorder) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestLogRecorder(t *testing.T) {
	var buf bytes.Buffer
	r := NewLogRecorder(slog.New(slog.NewJSONHandler(&buf, nil)))

	r.Record(context.Background(), Event{
		Name:         "compile-result-backend",
		AnalyticsID:  "a1",
		Segmentation: map[string]any{"status": "success", "server": "faster"},
	})

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["event"] != "compile-result-backend" || rec["analytics_id"] != "a1" {
		t.Errorf("unexpected record %v", rec)
	}
	seg, _ := rec["segmentation"].(map[string]any)
	if seg["server"] != "faster" {
		t.Errorf("expected segmentation group, got %v", rec["segmentation"])
	}
}

func TestRecordable(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want bool
	}{
		{"complete", Event{Name: "x", AnalyticsID: "a"}, true},
		{"missing name", Event{AnalyticsID: "a"}, false},
		{"missing analytics id", Event{Name: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Recordable(tt.ev); got != tt.want {
				t.Errorf("Recordable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQueue_DeliversAndDrains(t *testing.T) {
	next := &captureRecorder{}
	q := NewQueue(next, 16, nil)

	for i := 0; i < 10; i++ {
		q.Record(context.Background(), Event{Name: "e", AnalyticsID: "a"})
	}
	q.Record(context.Background(), Event{Name: "no id"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if next.len() != 10 {
		t.Errorf("expected 10 delivered events, got %d", next.len())
	}

	// Recording after close is a no-op, not a panic.
	q.Record(context.Background(), Event{Name: "late", AnalyticsID: "a"})
	if err := q.Close(ctx); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

type blockingRecorder struct{ release chan struct{} }

func (b blockingRecorder) Record(context.Context, Event) { <-b.release }

func TestQueue_DropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue(blockingRecorder{release: release}, 1, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			q.Record(context.Background(), Event{Name: "e", AnalyticsID: "a"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full queue")
	}
	close(release)
	_ = q.Close(context.Background())
}
