package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryEntries = 10000

type memEntry struct {
	fields   map[string]string
	deadline time.Time // zero means no expiry
}

// MemoryKV is a bounded in-process KV. Least recently used keys are evicted
// once the size limit is reached; expired keys are dropped on access.
type MemoryKV struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *memEntry]
	now     func() time.Time
}

// NewMemoryKV creates a KV holding at most size keys. Non-positive sizes use
// the default.
func NewMemoryKV(size int) (*MemoryKV, error) {
	if size <= 0 {
		size = defaultMemoryEntries
	}
	entries, err := lru.New[string, *memEntry](size)
	if err != nil {
		return nil, err
	}
	return &MemoryKV{entries: entries, now: time.Now}, nil
}

// live returns the entry for key unless it has expired. Caller holds mu.
func (m *MemoryKV) live(key string) (*memEntry, bool) {
	e, ok := m.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !e.deadline.IsZero() && !m.now().Before(e.deadline) {
		m.entries.Remove(key)
		return nil, false
	}
	return e, true
}

func (m *MemoryKV) GetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key)
	if !ok {
		return map[string]string{}, nil
	}
	return copyFields(e.fields), nil
}

func (m *MemoryKV) SetAll(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key)
	if !ok {
		e = &memEntry{fields: make(map[string]string, len(fields))}
	}
	for k, v := range fields {
		e.fields[k] = v
	}
	m.entries.Add(key, e)
	return nil
}

func (m *MemoryKV) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key)
	if !ok {
		return nil
	}
	if ttl <= 0 {
		m.entries.Remove(key)
		return nil
	}
	e.deadline = m.now().Add(ttl)
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries.Remove(key)
	return nil
}

// Len reports the number of stored keys, including expired ones not yet dropped.
func (m *MemoryKV) Len() int {
	return m.entries.Len()
}

func (m *MemoryKV) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries.Purge()
	return nil
}
