package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryTier keeps entries in process memory. It is the fastest tier and
// the only one a warm Lambda container carries between invocations.
type MemoryTier struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	data     []byte
	storedAt time.Time
}

// NewMemoryTier creates an empty in-memory tier.
func NewMemoryTier() *MemoryTier {
	return &MemoryTier{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the stored entry and when it was set.
func (t *MemoryTier) Get(ctx context.Context, key string) ([]byte, time.Time, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[key]
	if !ok {
		return nil, time.Time{}, ErrMiss
	}
	return e.data, e.storedAt, nil
}

// Set stores the entry, stamping it with the current time.
func (t *MemoryTier) Set(ctx context.Context, key string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = memoryEntry{data: data, storedAt: t.now()}
	return nil
}
