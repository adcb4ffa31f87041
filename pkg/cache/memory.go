package cache

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultMaxSize is the entry bound of a Memory cache.
	DefaultMaxSize = 1000

	// DefaultEvictCount is how many of the oldest entries are dropped when
	// an insert exceeds MaxSize.
	DefaultEvictCount = 100
)

// Options configures a Memory cache.
type Options struct {
	// Name labels the Prometheus series of this cache (e.g. "compute", "ai")
	Name string

	// MaxSize bounds the number of entries (default 1000)
	MaxSize int

	// EvictCount is the number of oldest entries removed on overflow (default 100)
	EvictCount int

	// Now overrides the clock, for tests
	Now func() time.Time
}

// Memory is a bounded in-process cache with per-entry TTL.
// Safe for concurrent use.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	name       string
	maxSize    int
	evictCount int
	now        func() time.Time
}

// NewMemory creates a Memory cache, filling unset options with defaults.
func NewMemory(opts Options) *Memory {
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.EvictCount <= 0 {
		opts.EvictCount = DefaultEvictCount
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Memory{
		entries:    make(map[string]*Entry),
		name:       opts.Name,
		maxSize:    opts.MaxSize,
		evictCount: opts.EvictCount,
		now:        opts.Now,
	}
}

// Get returns the value stored under key.
// An expired entry is deleted and reported as absent.
func (m *Memory) Get(key string) (json.RawMessage, bool) {
	entry, ok := m.GetEntry(key)
	if !ok {
		return nil, false
	}
	return entry.Value, true
}

// GetEntry is Get returning the whole entry.
func (m *Memory) GetEntry(key string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if entry.Expired(m.now()) {
		delete(m.entries, key)
		CacheExpirations.WithLabelValues(m.name).Inc()
		CacheEntries.WithLabelValues(m.name).Set(float64(len(m.entries)))
		return nil, false
	}
	copied := *entry
	return &copied, true
}

// Set stores value under key for ttl, replacing any previous entry.
// A non-positive ttl stores nothing.
func (m *Memory) Set(key string, value json.RawMessage, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = &Entry{
		Key:      key,
		Value:    value,
		StoredAt: m.now(),
		TTL:      ttl,
	}
	if len(m.entries) > m.maxSize {
		m.evictOldest()
	}
	CacheEntries.WithLabelValues(m.name).Set(float64(len(m.entries)))
}

// evictOldest drops EvictCount entries by ascending StoredAt, or more if
// that is not enough to get back under maxSize. Caller holds mu.
func (m *Memory) evictOldest() {
	n := m.evictCount
	if over := len(m.entries) - m.maxSize; over > n {
		n = over
	}

	ordered := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].StoredAt.Before(ordered[j].StoredAt)
	})
	if n > len(ordered) {
		n = len(ordered)
	}
	for _, e := range ordered[:n] {
		delete(m.entries, e.Key)
	}
	CacheEvictions.WithLabelValues(m.name).Add(float64(n))
}

// Delete removes key.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	CacheEntries.WithLabelValues(m.name).Set(float64(len(m.entries)))
}

// Clear removes every entry.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*Entry)
	CacheEntries.WithLabelValues(m.name).Set(0)
}

// Len returns the number of stored entries, including expired ones not yet
// read.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
