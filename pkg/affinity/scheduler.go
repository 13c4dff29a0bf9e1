package affinity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner removes expired affinity records on a cron schedule.
type Pruner struct {
	store    Store
	schedule string
	now      func() time.Time
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewPruner creates a pruner for store running on a standard five-field
// cron schedule. An empty schedule disables pruning.
func NewPruner(store Store, schedule string) *Pruner {
	return &Pruner{
		store:    store,
		schedule: schedule,
		now:      time.Now,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "affinity.pruner"),
	}
}

// Start schedules pruning. The pruner stops when ctx is cancelled.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.schedule == "" {
		p.logger.Info("prune schedule not configured, skipping pruner")
		return nil
	}

	if _, err := cron.ParseStandard(p.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", p.schedule, err)
	}

	if _, err := p.cron.AddFunc(p.schedule, func() { p.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	p.cron.Start()
	p.running = true
	p.logger.Info("affinity pruner started", "schedule", p.schedule)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()

	return nil
}

// RunOnce prunes expired records immediately and returns the number removed.
func (p *Pruner) RunOnce(ctx context.Context) int {
	deleted, err := p.store.PruneExpired(ctx, p.now())
	if err != nil {
		p.logger.Error("affinity pruning failed", "error", err)
		return 0
	}
	if deleted > 0 {
		p.logger.Info("affinity pruning completed", "deleted_count", deleted)
	} else {
		p.logger.Debug("affinity pruning completed, nothing expired")
	}
	return deleted
}

// Stop stops the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		<-p.cron.Stop().Done()
		p.running = false
		p.logger.Info("affinity pruner stopped")
	}
}

// IsRunning reports whether the schedule is active.
func (p *Pruner) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
