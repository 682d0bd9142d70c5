package persistence

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"

	"triage_worker/core/port/out"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryKV is an in-process KVStore with the same NX and TTL semantics as
// the Redis store. It backs local runs (KV_BACKEND=memory) and tests.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

var _ out.KVStore = (*MemoryKV)(nil)

// NewMemoryKV creates an empty store using the wall clock.
func NewMemoryKV() *MemoryKV {
	return NewMemoryKVWithClock(time.Now)
}

// NewMemoryKVWithClock creates an empty store whose expiry checks use now.
func NewMemoryKVWithClock(now func() time.Time) *MemoryKV {
	return &MemoryKV{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

// liveLocked returns the entry for key, evicting it first if it has expired.
func (m *MemoryKV) liveLocked(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *MemoryKV) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.liveLocked(key)
	return e.value, ok, nil
}

func (m *MemoryKV) Set(ctx context.Context, key, value string, opts out.SetOptions) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if opts.IfNotExists {
		if _, ok := m.liveLocked(key); ok {
			return false, nil
		}
	}
	e := memoryEntry{value: value}
	if opts.TTL > 0 {
		e.expiresAt = m.now().Add(opts.TTL)
	}
	m.entries[key] = e
	return true, nil
}

func (m *MemoryKV) Delete(ctx context.Context, keys ...string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, key := range keys {
		if _, ok := m.liveLocked(key); ok {
			delete(m.entries, key)
			n++
		}
	}
	return n, nil
}

// ScanKeys matches keys with shell glob rules, which agree with Redis MATCH
// for the '*' and '?' patterns used here.
func (m *MemoryKV) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for key := range m.entries {
		if _, ok := m.liveLocked(key); !ok {
			continue
		}
		matched, err := path.Match(pattern, key)
		if err != nil {
			return nil, err
		}
		if matched {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Ping always succeeds.
func (m *MemoryKV) Ping(ctx context.Context) error {
	return ctx.Err()
}

// =============================================================================
// Memory response cache
// =============================================================================

// MemoryResponseCache is an unbounded in-process ResponseCache.
type MemoryResponseCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

var _ out.ResponseCache = (*MemoryResponseCache)(nil)

func NewMemoryResponseCache() *MemoryResponseCache {
	return &MemoryResponseCache{entries: make(map[string][]byte)}
}

func (c *MemoryResponseCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (c *MemoryResponseCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = append([]byte(nil), value...)
	return nil
}

// Len reports the number of stored entries.
func (c *MemoryResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
