package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/zakupai/lotsearch/internal/upstream"
)

// Memory is an in-process TTL cache with LRU eviction once capacity is
// reached. Safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	capacity int

	// now is swappable in tests.
	now func() time.Time
}

type memoryEntry struct {
	key       string
	results   []upstream.LotResult
	expiresAt time.Time
}

// NewMemory creates a cache holding at most capacity entries; zero or
// negative means 1024.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Memory{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		now:      time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]upstream.LotResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*memoryEntry)
	if m.now().After(entry.expiresAt) {
		m.order.Remove(el)
		delete(m.entries, key)
		return nil, false
	}
	m.order.MoveToFront(el)
	// Hand out a copy so callers cannot mutate the cached slice.
	out := make([]upstream.LotResult, len(entry.results))
	copy(out, entry.results)
	return out, true
}

func (m *Memory) Set(_ context.Context, key string, results []upstream.LotResult, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	stored := make([]upstream.LotResult, len(results))
	copy(stored, results)
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.entries[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.results = stored
		entry.expiresAt = m.now().Add(ttl)
		m.order.MoveToFront(el)
		return
	}
	el := m.order.PushFront(&memoryEntry{key: key, results: stored, expiresAt: m.now().Add(ttl)})
	m.entries[key] = el
	for m.order.Len() > m.capacity {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		m.order.Remove(oldest)
		delete(m.entries, oldest.Value.(*memoryEntry).key)
	}
}

func (m *Memory) Delete(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.entries[key]; ok {
		m.order.Remove(el)
		delete(m.entries, key)
	}
}

// Len reports the live entry count, expired entries included until their
// next Get.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
