package heartbeat

import (
	"context"
	"errors"
	"net/http"
	"sync"
)

// ErrFinished is returned by Ping after the final response was started.
var ErrFinished = errors.New("heartbeat: response already finished")

// HTTPSink pings a plain HTTP response with 102 Processing interim headers.
// Callers must call Finish before writing the final response so that no
// interim header interleaves with it.
type HTTPSink struct {
	mu       sync.Mutex
	w        http.ResponseWriter
	finished bool

	done      chan struct{}
	closeOnce sync.Once
	stopWatch func() bool
}

// NewHTTPSink creates a sink for w. The sink is done when r's context ends
// or Finish is called.
func NewHTTPSink(w http.ResponseWriter, r *http.Request) *HTTPSink {
	s := &HTTPSink{
		w:    w,
		done: make(chan struct{}),
	}
	s.stopWatch = context.AfterFunc(r.Context(), s.close)
	return s
}

// Ping writes a 102 Processing interim response.
func (s *HTTPSink) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return ErrFinished
	}
	s.w.WriteHeader(http.StatusProcessing)
	return nil
}

// Done implements Sink.
func (s *HTTPSink) Done() <-chan struct{} {
	return s.done
}

// Finish marks the response final. It waits for an in-flight ping.
func (s *HTTPSink) Finish() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.stopWatch()
	s.close()
}

func (s *HTTPSink) close() {
	s.closeOnce.Do(func() { close(s.done) })
}
