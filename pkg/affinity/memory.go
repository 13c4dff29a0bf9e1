package affinity

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore keeps affinity records in a bounded, expiring LRU. Nothing
// survives a restart, which only costs a cold backend cache on the next
// compile.
type MemoryStore struct {
	cache *expirable.LRU[string, memoryEntry]
	clock clock.Clock
}

type memoryEntry struct {
	serverID  string
	expiresAt time.Time
}

// MemoryStoreConfig configures the memory store.
type MemoryStoreConfig struct {
	// MaxEntries bounds the cache. Least recently used records are evicted first.
	// Default: 100,000
	MaxEntries int

	// MaxTTL is the upper bound on a record's lifetime, enforced by the LRU
	// itself. Per-record ttl passed to Set is checked on read.
	// Default: 24 hours
	MaxTTL time.Duration

	// Clock is used for per-record expiry. Default: wall clock.
	Clock clock.Clock
}

// NewMemoryStore creates a memory store.
func NewMemoryStore(cfg MemoryStoreConfig) *MemoryStore {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 100000
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = 24 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	return &MemoryStore{
		cache: expirable.NewLRU[string, memoryEntry](cfg.MaxEntries, nil, cfg.MaxTTL),
		clock: cfg.Clock,
	}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key Key) (string, bool, error) {
	k := key.String()
	entry, ok := m.cache.Get(k)
	if !ok {
		return "", false, nil
	}
	if !m.clock.Now().Before(entry.expiresAt) {
		m.cache.Remove(k)
		return "", false, nil
	}
	return entry.serverID, true, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, key Key, serverID string, ttl time.Duration) error {
	m.cache.Add(key.String(), memoryEntry{
		serverID:  serverID,
		expiresAt: m.clock.Now().Add(ttl),
	})
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key Key) error {
	m.cache.Remove(key.String())
	return nil
}

// PruneExpired implements Store.
func (m *MemoryStore) PruneExpired(_ context.Context, now time.Time) (int, error) {
	removed := 0
	for _, k := range m.cache.Keys() {
		entry, ok := m.cache.Peek(k)
		if ok && !now.Before(entry.expiresAt) {
			m.cache.Remove(k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of cached records, including ones past their
// per-record expiry that have not been read or pruned yet.
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.cache.Purge()
	return nil
}
