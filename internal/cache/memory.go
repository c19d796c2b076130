package cache

import (
	"context"
	"sync"
	"time"
)

// Memory implements Cache with an in-process map. Suitable for single-node
// deployments and tests; entries expire lazily on read.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	// now is swappable for expiry tests.
	now func() time.Time
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, fingerprint string) (*Entry, error) {
	m.mu.RLock()
	me, ok := m.entries[fingerprint]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if m.now().After(me.expiresAt) {
		m.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// refreshed the entry.
		if cur, ok := m.entries[fingerprint]; ok && m.now().After(cur.expiresAt) {
			delete(m.entries, fingerprint)
		}
		m.mu.Unlock()
		return nil, nil
	}
	e := me.entry
	return &e, nil
}

func (m *Memory) Set(_ context.Context, fingerprint string, e *Entry, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[fingerprint] = memoryEntry{entry: *e, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Flush(context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
