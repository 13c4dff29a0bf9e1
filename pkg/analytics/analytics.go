// Package analytics records product analytics events.
//
// Events are best effort: recording never blocks or fails a request. The
// Queue hands events to a background worker and drops them when full.
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Event is one analytics event.
type Event struct {
	Name         string
	AnalyticsID  string
	UserID       string
	Segmentation map[string]any
	Time         time.Time
}

// Recorder records events.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// Nop discards every event.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Event) {}

// LogRecorder writes events as structured log records.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder creates a LogRecorder.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger.With("component", "analytics")}
}

// Record implements Recorder. Events without a name or analytics id are
// ignored.
func (r *LogRecorder) Record(ctx context.Context, ev Event) {
	if !Recordable(ev) {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	attrs := make([]any, 0, len(ev.Segmentation))
	for k, v := range ev.Segmentation {
		attrs = append(attrs, slog.Any(k, v))
	}
	r.logger.InfoContext(ctx, "analytics event",
		"event", ev.Name,
		"analytics_id", ev.AnalyticsID,
		"time", ev.Time.UTC().Format(time.RFC3339Nano),
		slog.Group("segmentation", attrs...),
	)
}

// Recordable reports whether ev carries enough identity to be recorded.
func Recordable(ev Event) bool {
	if ev.Name == "" || ev.AnalyticsID == "" {
		return false
	}
	return true
}

// Queue records events on a background goroutine.
type Queue struct {
	next   Recorder
	events chan queued
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	exited chan struct{}
}

type queued struct {
	ctx context.Context
	ev  Event
}

// NewQueue starts a worker feeding next. size bounds the backlog.
func NewQueue(next Recorder, size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		next:   next,
		events: make(chan queued, size),
		logger: logger.With("component", "analytics.queue"),
		exited: make(chan struct{}),
	}
	go q.run()
	return q
}

// Record implements Recorder. It never blocks.
func (q *Queue) Record(ctx context.Context, ev Event) {
	if !Recordable(ev) {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case q.events <- queued{ctx: context.WithoutCancel(ctx), ev: ev}:
	default:
		q.logger.WarnContext(ctx, "analytics queue full, dropping event", "event", ev.Name)
	}
}

func (q *Queue) run() {
	defer close(q.exited)
	for item := range q.events {
		q.next.Record(item.ctx, item.ev)
	}
}

// Close stops accepting events and waits for the backlog to drain, or for
// ctx to end.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	q.mu.Unlock()

	select {
	case <-q.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
