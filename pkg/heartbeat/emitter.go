package heartbeat

import (
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Sink receives keepalive pings.
type Sink interface {
	// Ping sends one keepalive. An error stops further pings.
	Ping() error

	// Done is closed when the transport is gone or the response is final.
	Done() <-chan struct{}
}

// Config configures an Emitter.
type Config struct {
	// Interval between pings. Zero or negative disables the emitter.
	Interval time.Duration

	// Clock drives the ticker. Default: wall clock.
	Clock clock.Clock

	// OnPing is called after every successful ping.
	OnPing func()

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Emitter starts heartbeat loops.
type Emitter struct {
	interval time.Duration
	clock    clock.Clock
	onPing   func()
	logger   *slog.Logger
}

// NewEmitter creates an Emitter.
func NewEmitter(cfg Config) *Emitter {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Emitter{
		interval: cfg.Interval,
		clock:    cfg.Clock,
		onPing:   cfg.OnPing,
		logger:   cfg.Logger.With("component", "heartbeat"),
	}
}

// Interval returns the configured ping interval.
func (e *Emitter) Interval() time.Duration {
	return e.interval
}

// Start pings sink immediately and then every interval. The returned stop
// function may be called any number of times; once it returns no further
// ping is sent.
func (e *Emitter) Start(sink Sink) (stop func()) {
	if e == nil || e.interval <= 0 || sink == nil {
		return func() {}
	}

	if !e.ping(sink) {
		return func() {}
	}

	ticker := e.clock.Ticker(e.interval)
	stopCh := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-sink.Done():
				return
			case <-ticker.C:
				// stop may race with the tick; it wins.
				select {
				case <-stopCh:
					return
				default:
				}
				if !e.ping(sink) {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stopCh) })
		<-exited
	}
}

func (e *Emitter) ping(sink Sink) bool {
	select {
	case <-sink.Done():
		return false
	default:
	}
	if err := sink.Ping(); err != nil {
		e.logger.Debug("heartbeat ping failed, stopping", "error", err)
		return false
	}
	if e.onPing != nil {
		e.onPing()
	}
	return true
}
