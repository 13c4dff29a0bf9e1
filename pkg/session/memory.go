package session

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memorySession
	clock    clock.Clock
}

type memorySession struct {
	s         Session
	expiresAt time.Time
}

// NewMemoryStore creates an empty store. A nil clock uses the wall clock.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryStore{
		sessions: make(map[string]memorySession),
		clock:    clk,
	}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	entry, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || !m.clock.Now().Before(entry.expiresAt) {
		return nil, ErrNotFound
	}
	s := entry.s
	s.ID = id
	return &s, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, s *Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = memorySession{s: *s, expiresAt: m.clock.Now().Add(ttl)}
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.sessions)
	return nil
}
