package proxy

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"mercator-hq/compilegate/pkg/config"
)

// DownloadLimiter limits PDF downloads per client address. Limiters for
// idle addresses are evicted after one window.
type DownloadLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters *expirable.LRU[string, *rate.Limiter]
}

// NewDownloadLimiter creates a limiter allowing cfg.Requests per cfg.Window
// per address. It returns nil when cfg.Requests is zero; a nil limiter
// allows everything.
func NewDownloadLimiter(cfg config.RateLimitConfig) *DownloadLimiter {
	if cfg.Requests <= 0 {
		return nil
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 10000
	}
	return &DownloadLimiter{
		limit:    rate.Limit(float64(cfg.Requests) / cfg.Window.Seconds()),
		burst:    cfg.Requests,
		limiters: expirable.NewLRU[string, *rate.Limiter](cfg.MaxClients, nil, cfg.Window),
	}
}

// Allow consumes one download for addr.
func (l *DownloadLimiter) Allow(addr string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters.Get(addr)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(addr, lim)
	}
	l.mu.Unlock()
	return lim.Allow()
}
