// Package config loads gateway configuration from defaults, an optional
// YAML file named by CONFIG_FILE, and environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/softlyplease/soft-compute-gateway/pkg/logging"
	"gopkg.in/yaml.v3"
)

// Config is the complete gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Compute   ComputeConfig   `yaml:"compute"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Retry     RetryConfig     `yaml:"retry"`
	Cache     CacheConfig     `yaml:"cache"`
	Breaker   BreakerConfig   `yaml:"circuit_breaker"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Redis     RedisConfig     `yaml:"redis"`
	Artifact  ArtifactConfig  `yaml:"artifact"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Environment     string        `yaml:"environment"`
	MaxConcurrent   int           `yaml:"max_concurrent_requests"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	MaxUploadFiles  int           `yaml:"max_upload_files"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TrustedProxies  int           `yaml:"trusted_proxies"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// ComputeConfig locates Rhino.Compute.
type ComputeConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// OpenAIConfig configures the AI service. An empty APIKey disables it.
type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RetryConfig is the upstream retry policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// CacheConfig sizes the in-memory response caches.
type CacheConfig struct {
	MaxSize    int           `yaml:"max_size"`
	EvictCount int           `yaml:"evict_count"`
	TTL        time.Duration `yaml:"ttl"`
}

// BreakerConfig configures the per-upstream circuit breakers.
type BreakerConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Threshold int           `yaml:"threshold"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RateLimitConfig configures per-client request limits on /api/ routes.
type RateLimitConfig struct {
	Window time.Duration `yaml:"window"`
	Max    int           `yaml:"max"`
}

// RedisConfig locates the optional shared Redis. An empty URL disables it.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ArtifactConfig locates the artifact index.
type ArtifactConfig struct {
	IndexPath string `yaml:"index_path"`
	Project   string `yaml:"project"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            3000,
			Environment:     "development",
			MaxConcurrent:   10,
			MaxUploadBytes:  50 << 20,
			MaxUploadFiles:  10,
			ShutdownTimeout: 30 * time.Second,
			TrustedProxies:  1,
		},
		Log: LogConfig{
			Level: "info",
		},
		Compute: ComputeConfig{
			URL:     "http://127.0.0.1:8081",
			Timeout: 30 * time.Second,
		},
		OpenAI: OpenAIConfig{
			Timeout: 60 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Delay:       time.Second,
			MaxDelay:    30 * time.Second,
		},
		Cache: CacheConfig{
			MaxSize:    1000,
			EvictCount: 100,
			TTL:        5 * time.Minute,
		},
		Breaker: BreakerConfig{
			Enabled:   true,
			Threshold: 5,
			Timeout:   60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Window: 15 * time.Minute,
			Max:    1000,
		},
		Artifact: ArtifactConfig{
			IndexPath: "artifact_index.json",
			Project:   "soft-compute-gateway",
		},
	}
}

// Load builds the configuration from defaults, CONFIG_FILE and the
// environment, then validates it.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadFile decodes a YAML file over cfg. Keys absent from the file keep
// their current values.
func (c *Config) loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = file.Close() }()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("failed to decode YAML config: %w", err)
	}
	return nil
}

// lookupFunc matches os.LookupEnv.
type lookupFunc func(key string) (string, bool)

// applyEnv overrides cfg with the environment variables that are set.
func (c *Config) applyEnv(lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.intVar("PORT", &c.Server.Port)
	e.strVar("NODE_ENV", &c.Server.Environment)
	e.strVar("ENVIRONMENT", &c.Server.Environment)
	e.intVar("MAX_CONCURRENT_REQUESTS", &c.Server.MaxConcurrent)
	e.sizeVar("MAX_UPLOAD_SIZE", &c.Server.MaxUploadBytes)
	e.intVar("MAX_UPLOAD_FILES", &c.Server.MaxUploadFiles)
	e.durationVar("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	e.intVar("TRUSTED_PROXIES", &c.Server.TrustedProxies)

	e.strVar("LOG_LEVEL", &c.Log.Level)
	e.boolVar("LOG_PRETTY", &c.Log.Pretty)

	e.strVar("SOFT_COMPUTE_URL", &c.Compute.URL)
	e.strVar("SOFT_COMPUTE_API_KEY", &c.Compute.APIKey)
	e.durationVar("RHINO_COMPUTE_TIMEOUT", &c.Compute.Timeout)

	e.strVar("OPENAI_API_KEY", &c.OpenAI.APIKey)
	e.strVar("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	e.durationVar("OPENAI_TIMEOUT", &c.OpenAI.Timeout)

	e.intVar("MAX_RETRIES", &c.Retry.MaxAttempts)
	e.durationVar("RETRY_DELAY", &c.Retry.Delay)
	e.durationVar("RETRY_MAX_DELAY", &c.Retry.MaxDelay)

	e.intVar("CACHE_MAX_SIZE", &c.Cache.MaxSize)
	e.intVar("CACHE_EVICT_COUNT", &c.Cache.EvictCount)
	e.durationVar("CACHE_TTL", &c.Cache.TTL)

	e.boolVar("ENABLE_CIRCUIT_BREAKER", &c.Breaker.Enabled)
	e.intVar("CIRCUIT_BREAKER_THRESHOLD", &c.Breaker.Threshold)
	e.durationVar("CIRCUIT_BREAKER_TIMEOUT", &c.Breaker.Timeout)

	e.durationVar("RATE_LIMIT_WINDOW", &c.RateLimit.Window)
	e.intVar("RATE_LIMIT_MAX", &c.RateLimit.Max)

	e.strVar("REDIS_URL", &c.Redis.URL)

	e.strVar("ARTIFACT_INDEX_PATH", &c.Artifact.IndexPath)
	e.strVar("ARTIFACT_PROJECT", &c.Artifact.Project)

	return errors.Join(e.errs...)
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port <= 65535, "port must be between 1 and 65535 (got %d)", c.Server.Port)
	check(c.Server.MaxConcurrent >= 1, "max concurrent requests must be >= 1 (got %d)", c.Server.MaxConcurrent)
	check(c.Server.MaxUploadBytes > 0, "max upload size must be > 0 (got %d)", c.Server.MaxUploadBytes)
	check(c.Server.MaxUploadFiles >= 1, "max upload files must be >= 1 (got %d)", c.Server.MaxUploadFiles)
	check(c.Server.ShutdownTimeout > 0, "shutdown timeout must be > 0 (got %v)", c.Server.ShutdownTimeout)
	check(c.Server.TrustedProxies >= 0, "trusted proxies must be >= 0 (got %d)", c.Server.TrustedProxies)

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	if u, err := url.Parse(c.Compute.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("compute url must be an http(s) URL (got %q)", c.Compute.URL))
	}
	check(c.Compute.Timeout > 0, "compute timeout must be > 0 (got %v)", c.Compute.Timeout)
	check(c.OpenAI.Timeout > 0, "openai timeout must be > 0 (got %v)", c.OpenAI.Timeout)

	check(c.Retry.MaxAttempts >= 1, "max retries must be >= 1 (got %d)", c.Retry.MaxAttempts)
	check(c.Retry.Delay > 0, "retry delay must be > 0 (got %v)", c.Retry.Delay)
	check(c.Retry.MaxDelay >= c.Retry.Delay, "retry max delay must be >= retry delay (got %v < %v)", c.Retry.MaxDelay, c.Retry.Delay)

	check(c.Cache.MaxSize >= 1, "cache max size must be >= 1 (got %d)", c.Cache.MaxSize)
	check(c.Cache.EvictCount >= 1 && c.Cache.EvictCount <= c.Cache.MaxSize,
		"cache evict count must be between 1 and cache max size (got %d)", c.Cache.EvictCount)
	check(c.Cache.TTL > 0, "cache ttl must be > 0 (got %v)", c.Cache.TTL)

	if c.Breaker.Enabled {
		check(c.Breaker.Threshold >= 1, "circuit breaker threshold must be >= 1 (got %d)", c.Breaker.Threshold)
		check(c.Breaker.Timeout > 0, "circuit breaker timeout must be > 0 (got %v)", c.Breaker.Timeout)
	}

	check(c.RateLimit.Window > 0, "rate limit window must be > 0 (got %v)", c.RateLimit.Window)
	check(c.RateLimit.Max >= 1, "rate limit max must be >= 1 (got %d)", c.RateLimit.Max)

	check(c.Artifact.IndexPath != "", "artifact index path is required")

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

// envReader parses environment variables into config fields, collecting
// parse errors.
type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) strVar(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) intVar(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", key, v))
			return
		}
		*dst = n
	}
}

func (e *envReader) boolVar(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
			return
		}
		*dst = b
	}
}

// duration accepts Go durations ("30s") or plain milliseconds ("30000").
func (e *envReader) durationVar(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := parseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
}

// size accepts bytes ("1048576") or a KB/MB/GB suffix ("50MB").
func (e *envReader) sizeVar(key string, dst *int64) {
	if v, ok := e.get(key); ok {
		n, err := parseSize(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func parseDuration(v string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

func parseSize(v string) (int64, error) {
	upper := strings.ToUpper(v)
	units := []struct {
		suffix string
		factor int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(upper, u.suffix) {
			n, err := strconv.ParseInt(strings.TrimSpace(strings.TrimSuffix(upper, u.suffix)), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size %q", v)
			}
			return n * u.factor, nil
		}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", v)
	}
	return n, nil
}
