package history

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu     sync.Mutex
	keys   map[string]time.Time
	closed bool
	now    func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryStore) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.keys[key]
	return ok, nil
}

func (m *MemoryStore) Claim(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = m.now()
	return true, nil
}

func (m *MemoryStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	removed := 0
	for k, at := range m.keys {
		if at.Before(cutoff) {
			delete(m.keys, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of recorded keys.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
