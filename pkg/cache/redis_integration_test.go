//go:build integration

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestRedisStore_Integration_SetGet(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()
	ctx := context.Background()

	store := NewRedisStore(client, "soft:compute:")
	entry := &Entry{
		Key:      "compute:abc",
		Value:    json.RawMessage(`{"success":true}`),
		StoredAt: time.Now(),
		TTL:      5 * time.Minute,
	}
	if err := store.Set(ctx, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := store.Get(ctx, "compute:abc")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got.Value) != `{"success":true}` {
		t.Errorf("Value = %s, want {\"success\":true}", got.Value)
	}

	ttl, err := client.TTL(ctx, "soft:compute:compute:abc").Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 4*time.Minute || ttl > 5*time.Minute {
		t.Errorf("redis TTL = %v, want ~5m", ttl)
	}
}

func TestRedisStore_Integration_ClearOnlyPrefix(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()
	ctx := context.Background()

	compute := NewRedisStore(client, "soft:compute:")
	ai := NewRedisStore(client, "soft:ai:")

	for i := 0; i < 250; i++ {
		entry := &Entry{Key: fmt.Sprintf("k%d", i), Value: json.RawMessage(`1`), StoredAt: time.Now(), TTL: time.Hour}
		if err := compute.Set(ctx, entry); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
	if err := ai.Set(ctx, &Entry{Key: "keep", Value: json.RawMessage(`1`), StoredAt: time.Now(), TTL: time.Hour}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := compute.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	keys, err := client.Keys(ctx, "soft:compute:*").Result()
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("compute keys after Clear = %d, want 0", len(keys))
	}
	if _, err := ai.Get(ctx, "keep"); err != nil {
		t.Errorf("ai entry should survive compute Clear, Get() error = %v", err)
	}
}

func TestManager_Integration_SharedAcrossInstances(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()
	ctx := context.Background()

	store := NewRedisStore(client, "soft:compute:")
	a := NewManager(NewMemory(Options{Name: "a"}), store)
	b := NewManager(NewMemory(Options{Name: "b"}), store)

	a.Store(ctx, "k", json.RawMessage(`42`), time.Minute)

	got, ok := b.Lookup(ctx, "k")
	if !ok || string(got) != "42" {
		t.Errorf("Lookup() = %s, %v; want 42, true", got, ok)
	}

	if err := b.Purge(ctx); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if a.Len() != 1 {
		t.Errorf("Purge only clears its own memory layer, a.Len() = %d", a.Len())
	}
	if _, err := store.Get(ctx, "k"); err != ErrCacheMiss {
		t.Errorf("shared layer should be empty after Purge, err = %v", err)
	}
}
