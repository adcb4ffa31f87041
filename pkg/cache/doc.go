// Package cache provides the operation response cache used in front of the
// Rhino.Compute and OpenAI upstreams.
//
// Two layers are available:
//
// - Memory: a bounded in-process map with per-entry TTL. When an insert pushes
//   the entry count above MaxSize, the EvictCount oldest entries (by StoredAt)
//   are dropped, so the cache never holds more than MaxSize entries.
// - RedisStore: an optional shared layer with native Redis TTLs, so several
//   gateway instances can reuse each other's upstream results.
//
// Manager combines both. Lookups try memory first, then Redis (backfilling
// memory with the remaining TTL). Redis failures are logged and treated as a
// miss; they never fail a request.
//
// # Basic Usage
//
//	mem := cache.NewMemory(cache.Options{Name: "compute"})
//	manager := cache.NewManager(mem, nil)
//
//	key := cache.Key("compute", map[string]any{
//		"operation": "mesh_analysis",
//		"geometry":  geometry,
//		"params":    params,
//	})
//
//	if value, ok := manager.Lookup(ctx, key); ok {
//		return value
//	}
//	manager.Store(ctx, key, value, 5*time.Minute)
//
// # Shared Layer
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(mem, cache.NewRedisStore(redisClient, "soft:compute:"))
//
// # Metrics
//
//   - gateway_cache_entries{cache} - Current in-memory entries
//   - gateway_cache_evictions_total{cache} - Entries removed by size eviction
//   - gateway_cache_expirations_total{cache} - Entries removed on expired read
//   - gateway_cache_redis_hits_total{cache} - Lookups served by Redis
//   - gateway_cache_errors_total{operation} - Redis operation errors
//
// Hit and miss counts per operation live in package metrics, because the
// cache does not know operation names.
package cache
