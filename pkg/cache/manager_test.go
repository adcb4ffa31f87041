package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis returns a client for a local Redis on DB 15, or skips.
// The integration-tagged tests use testcontainers-go instead.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil memory cache")
		}
	}()
	NewManager(nil, nil)
}

func TestNewRedisStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisStore should panic with nil redis client")
		}
	}()
	NewRedisStore(nil, "soft:")
}

func TestManager_MemoryOnly(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(NewMemory(Options{Name: "test"}), nil)

	if _, ok := manager.Lookup(ctx, "k"); ok {
		t.Fatal("Lookup() should miss on empty cache")
	}

	manager.Store(ctx, "k", json.RawMessage(`{"ok":true}`), time.Minute)

	got, ok := manager.Lookup(ctx, "k")
	if !ok {
		t.Fatal("Lookup() should hit after Store")
	}
	if string(got) != `{"ok":true}` {
		t.Errorf("Lookup() = %s, want {\"ok\":true}", got)
	}
	if manager.Len() != 1 {
		t.Errorf("Len() = %d, want 1", manager.Len())
	}

	if err := manager.Purge(ctx); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if manager.Len() != 0 {
		t.Errorf("Len() after Purge = %d, want 0", manager.Len())
	}
}

func TestManager_RedisBackfill(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	store := NewRedisStore(client, "test:")

	writer := NewManager(NewMemory(Options{Name: "writer"}), store)
	writer.Store(ctx, "k", json.RawMessage(`"shared"`), time.Minute)

	// A second instance with an empty memory layer reads through Redis.
	reader := NewManager(NewMemory(Options{Name: "reader"}), store)
	got, ok := reader.Lookup(ctx, "k")
	if !ok {
		t.Fatal("Lookup() should hit via Redis")
	}
	if string(got) != `"shared"` {
		t.Errorf("Lookup() = %s, want \"shared\"", got)
	}
	if reader.Len() != 1 {
		t.Errorf("Redis hit should backfill memory, Len() = %d", reader.Len())
	}
}

func TestRedisStore_GetMiss(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStore(client, "test:")

	_, err := store.Get(context.Background(), "absent")
	if err != ErrCacheMiss {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestRedisStore_ExpiredEntry(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	store := NewRedisStore(client, "test:")

	clock := newFakeClock()
	store.now = clock.Now

	entry := &Entry{Key: "k", Value: json.RawMessage(`1`), StoredAt: clock.Now(), TTL: time.Minute}
	if err := store.Set(ctx, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	clock.Advance(2 * time.Minute)

	if _, err := store.Get(ctx, "k"); err != ErrCacheMiss {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestRedisStore_SetNilEntry(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()
	store := NewRedisStore(client, "test:")

	if err := store.Set(context.Background(), nil); err == nil {
		t.Error("Set() should return error for nil entry")
	}
}
