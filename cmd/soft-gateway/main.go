// Command soft-gateway serves the Rhino.Compute and AI assistance API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/softlyplease/soft-compute-gateway/internal/config"
	"github.com/softlyplease/soft-compute-gateway/internal/httpapi"
	"github.com/softlyplease/soft-compute-gateway/pkg/ai"
	"github.com/softlyplease/soft-compute-gateway/pkg/artifact"
	"github.com/softlyplease/soft-compute-gateway/pkg/breaker"
	"github.com/softlyplease/soft-compute-gateway/pkg/cache"
	"github.com/softlyplease/soft-compute-gateway/pkg/compute"
	"github.com/softlyplease/soft-compute-gateway/pkg/logging"
	"github.com/softlyplease/soft-compute-gateway/pkg/metrics"
	"github.com/softlyplease/soft-compute-gateway/pkg/ratelimit"
	"github.com/softlyplease/soft-compute-gateway/pkg/upstream"
)

const redisPingTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Pretty = cfg.Log.Pretty
	logCfg.Fields = map[string]string{
		"service":     "soft-gateway",
		"environment": cfg.Server.Environment,
		"version":     httpapi.Version,
	}
	logging.Setup(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Gateway stopped with error")
	}
}

// run serves until ctx ends, then shuts down within the configured timeout.
func run(ctx context.Context, cfg *config.Config) error {
	redisClient := connectRedis(ctx, cfg.Redis.URL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	srv, err := buildServer(ctx, cfg, redisClient)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Addr())
	}()

	log.Info().
		Str("addr", cfg.Addr()).
		Str("environment", cfg.Server.Environment).
		Str("compute_url", cfg.Compute.URL).
		Bool("redis", redisClient != nil).
		Msg("Gateway started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// buildServer wires the upstream clients, caches and limiter. redisClient
// may be nil; caches then stay in memory and rate limits are per instance.
func buildServer(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (*httpapi.Server, error) {
	policy := upstream.Policy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BaseDelay:      cfg.Retry.Delay,
		MaxDelay:       cfg.Retry.MaxDelay,
		Multiplier:     upstream.DefaultPolicy().Multiplier,
		Jitter:         upstream.DefaultPolicy().Jitter,
		AttemptTimeout: cfg.Compute.Timeout,
	}

	computeCfg := compute.DefaultConfig(strings.TrimRight(cfg.Compute.URL, "/"))
	computeCfg.APIKey = cfg.Compute.APIKey
	computeCfg.CacheTTL = cfg.Cache.TTL
	computeCfg.Policy = policy

	computeClient, err := compute.New(computeCfg,
		newCache(cfg, redisClient, compute.CacheNamespace),
		metrics.NewCounter(),
		newGate(cfg, compute.Service))
	if err != nil {
		return nil, fmt.Errorf("compute client: %w", err)
	}

	deps := httpapi.Deps{
		Compute:   computeClient,
		Artifacts: artifact.NewLogger(cfg.Artifact.IndexPath, cfg.Artifact.Project),
		Limiter:   newLimiter(cfg, redisClient),
	}

	if cfg.OpenAI.APIKey != "" {
		aiPolicy := policy
		aiPolicy.AttemptTimeout = cfg.OpenAI.Timeout
		service, err := ai.New(ai.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Policy:  aiPolicy,
		}, newCache(cfg, redisClient, ai.CacheNamespace), metrics.NewCounter(), newGate(cfg, ai.ServiceName))
		if err != nil {
			return nil, fmt.Errorf("ai service: %w", err)
		}
		validateAI(ctx, service)
		deps.AI = service
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, AI routes disabled")
	}

	return httpapi.NewServer(httpapi.Config{
		Environment:    cfg.Server.Environment,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		MaxUploadFiles: cfg.Server.MaxUploadFiles,
		MaxConcurrent:  cfg.Server.MaxConcurrent,
		TrustedProxies: cfg.Server.TrustedProxies,
	}, deps), nil
}

// validateAI checks the OpenAI connection at startup. Failure is logged and
// the service stays enabled.
func validateAI(ctx context.Context, service *ai.Service) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	status := service.ValidateConnection(ctx)
	if !status.Success {
		log.Warn().Str("error", status.Error).Msg("OpenAI connection validation failed")
		return
	}
	log.Info().Int("models", len(status.Models)).Interface("features", status.Features).Msg("OpenAI connection validated")
}

func newCache(cfg *config.Config, redisClient *redis.Client, namespace string) *cache.Manager {
	mem := cache.NewMemory(cache.Options{
		Name:       namespace,
		MaxSize:    cfg.Cache.MaxSize,
		EvictCount: cfg.Cache.EvictCount,
	})
	var remote *cache.RedisStore
	if redisClient != nil {
		remote = cache.NewRedisStore(redisClient, "soft-gateway:"+namespace+":")
	}
	return cache.NewManager(mem, remote)
}

// newGate returns the breaker for service, or nil when breakers are off.
func newGate(cfg *config.Config, service string) upstream.Gate {
	if !cfg.Breaker.Enabled {
		return nil
	}
	return breaker.New(breaker.Config{
		Name:        service,
		Threshold:   cfg.Breaker.Threshold,
		OpenTimeout: cfg.Breaker.Timeout,
	})
}

func newLimiter(cfg *config.Config, redisClient *redis.Client) ratelimit.Limiter {
	if cfg.RateLimit.Max <= 0 {
		return nil
	}
	if redisClient != nil {
		return ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit.Window, cfg.RateLimit.Max, logging.NewLogger("ratelimit"))
	}
	return ratelimit.NewMemoryLimiter(cfg.RateLimit.Window, cfg.RateLimit.Max)
}

// connectRedis returns a connected client, or nil when rawURL is empty or
// Redis does not answer.
func connectRedis(ctx context.Context, rawURL string) *redis.Client {
	if rawURL == "" {
		return nil
	}

	opts, err := redisOptions(rawURL)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid REDIS_URL, running without Redis")
		return nil
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis unavailable, using in-memory cache and rate limits")
		_ = client.Close()
		return nil
	}

	log.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	return client
}

// redisOptions accepts redis:// and rediss:// URLs or a bare host:port.
func redisOptions(rawURL string) (*redis.Options, error) {
	if strings.Contains(rawURL, "://") {
		return redis.ParseURL(rawURL)
	}
	if rawURL == "" {
		return nil, errors.New("empty redis address")
	}
	return &redis.Options{Addr: rawURL}, nil
}
