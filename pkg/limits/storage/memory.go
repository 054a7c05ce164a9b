package storage

import (
	"context"
	"sync"
	"time"

	"mercator-hq/pacer/pkg/route"
)

// MemoryBackend implements Backend in memory. Nothing survives the
// process; it exists for tests and for runs without a state file.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[route.Key]Assignment
	closed  bool

	// maxEntries bounds the map; the least recently seen entry is
	// evicted first.
	maxEntries int
}

// MemoryBackendConfig configures the memory backend.
type MemoryBackendConfig struct {
	// MaxEntries is the maximum number of stored routes.
	// Default: 100,000
	MaxEntries int
}

// NewMemoryBackend creates an in-memory backend with default settings.
func NewMemoryBackend() *MemoryBackend {
	return NewMemoryBackendWithConfig(MemoryBackendConfig{})
}

// NewMemoryBackendWithConfig creates an in-memory backend.
func NewMemoryBackendWithConfig(cfg MemoryBackendConfig) *MemoryBackend {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 100000
	}
	return &MemoryBackend{
		entries:    make(map[route.Key]Assignment),
		maxEntries: cfg.MaxEntries,
	}
}

// Save upserts entries.
func (m *MemoryBackend) Save(ctx context.Context, entries []*Assignment) error {
	for _, a := range entries {
		if err := validate(a); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	now := time.Now()
	for _, a := range entries {
		e := *a
		if e.LastSeen.IsZero() {
			e.LastSeen = now
		}
		if _, exists := m.entries[e.Route]; !exists && len(m.entries) >= m.maxEntries {
			m.evictOldestLocked()
		}
		m.entries[e.Route] = e
	}
	return nil
}

// Load returns the entry for k, or nil.
func (m *MemoryBackend) Load(ctx context.Context, k route.Key) (*Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	e, ok := m.entries[k]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// Delete removes the entry for k.
func (m *MemoryBackend) Delete(ctx context.Context, k route.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.entries, k)
	return nil
}

// List returns every entry ordered by route key.
func (m *MemoryBackend) List(ctx context.Context) ([]*Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	out := make([]*Assignment, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, &e)
	}
	sortAssignments(out)
	return out, nil
}

// Cleanup removes entries last seen before olderThan.
func (m *MemoryBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}

	deleted := 0
	for k, e := range m.entries {
		if e.LastSeen.Before(olderThan) {
			delete(m.entries, k)
			deleted++
		}
	}
	return deleted, nil
}

// Close marks the backend closed.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Size returns the number of stored entries.
func (m *MemoryBackend) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// evictOldestLocked drops the least recently seen entry.
// Caller must hold the write lock.
func (m *MemoryBackend) evictOldestLocked() {
	var (
		oldest     route.Key
		oldestTime time.Time
		found      bool
	)
	for k, e := range m.entries {
		if !found || e.LastSeen.Before(oldestTime) {
			oldest, oldestTime, found = k, e.LastSeen, true
		}
	}
	if found {
		delete(m.entries, oldest)
	}
}
