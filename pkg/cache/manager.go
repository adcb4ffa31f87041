package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Manager layers the in-memory cache over an optional Redis store.
type Manager struct {
	memory *Memory
	redis  *RedisStore
}

// NewManager creates a layered cache. remote may be nil.
func NewManager(memory *Memory, remote *RedisStore) *Manager {
	if memory == nil {
		panic("memory cache cannot be nil")
	}
	return &Manager{
		memory: memory,
		redis:  remote,
	}
}

// Lookup returns the cached value for key.
// A Redis hit is copied into memory with its remaining TTL.
func (m *Manager) Lookup(ctx context.Context, key string) (json.RawMessage, bool) {
	if value, ok := m.memory.Get(key); ok {
		return value, true
	}
	if m.redis == nil {
		return nil, false
	}

	entry, err := m.redis.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			log.Warn().Err(err).Str("key", key).Msg("Redis cache lookup failed")
		}
		return nil, false
	}

	RedisHits.WithLabelValues(m.memory.name).Inc()
	m.memory.Set(key, entry.Value, entry.Remaining(m.memory.now()))
	return entry.Value, true
}

// Store writes value to every layer.
func (m *Manager) Store(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) {
	m.memory.Set(key, value, ttl)
	if m.redis == nil || ttl <= 0 {
		return
	}

	entry := &Entry{Key: key, Value: value, StoredAt: m.memory.now(), TTL: ttl}
	if err := m.redis.Set(ctx, entry); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Redis cache store failed")
	}
}

// Purge clears every layer. The memory layer is always cleared; the Redis
// error, if any, is returned.
func (m *Manager) Purge(ctx context.Context) error {
	m.memory.Clear()
	if m.redis == nil {
		return nil
	}
	return m.redis.Clear(ctx)
}

// Len returns the in-memory entry count.
func (m *Manager) Len() int {
	return m.memory.Len()
}
