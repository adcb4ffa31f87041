package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func envMap(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Compute.URL != "http://127.0.0.1:8081" {
		t.Errorf("Compute.URL = %q", cfg.Compute.URL)
	}
	if cfg.Addr() != ":3000" {
		t.Errorf("Addr() = %q, want :3000", cfg.Addr())
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"PORT":                    "8080",
		"LOG_LEVEL":               "debug",
		"LOG_PRETTY":              "true",
		"SOFT_COMPUTE_URL":        "https://compute.example.com",
		"SOFT_COMPUTE_API_KEY":    "key",
		"RHINO_COMPUTE_TIMEOUT":   "45000",
		"MAX_RETRIES":             "5",
		"RETRY_DELAY":             "500ms",
		"CACHE_MAX_SIZE":          "200",
		"CACHE_EVICT_COUNT":       "20",
		"ENABLE_CIRCUIT_BREAKER":  "false",
		"RATE_LIMIT_WINDOW":       "1m",
		"RATE_LIMIT_MAX":          "60",
		"MAX_UPLOAD_SIZE":         "10MB",
		"REDIS_URL":               "redis://localhost:6379/0",
		"OPENAI_API_KEY":          "sk-x",
		"OPENAI_TIMEOUT":          "90s",
		"MAX_CONCURRENT_REQUESTS": "  ",
	}))
	if err != nil {
		t.Fatalf("applyEnv() error = %v", err)
	}

	want := Default()
	want.Server.Port = 8080
	want.Log = LogConfig{Level: "debug", Pretty: true}
	want.Compute = ComputeConfig{URL: "https://compute.example.com", APIKey: "key", Timeout: 45 * time.Second}
	want.Retry.MaxAttempts = 5
	want.Retry.Delay = 500 * time.Millisecond
	want.Cache.MaxSize = 200
	want.Cache.EvictCount = 20
	want.Breaker.Enabled = false
	want.RateLimit = RateLimitConfig{Window: time.Minute, Max: 60}
	want.Server.MaxUploadBytes = 10 << 20
	want.Redis.URL = "redis://localhost:6379/0"
	want.OpenAI.APIKey = "sk-x"
	want.OpenAI.Timeout = 90 * time.Second

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"PORT":        "eighty",
		"LOG_PRETTY":  "maybe",
		"RETRY_DELAY": "soon",
	}))
	if err == nil {
		t.Fatal("applyEnv() should fail")
	}
	for _, key := range []string{"PORT", "LOG_PRETTY", "RETRY_DELAY"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "port"},
		{"bad url", func(c *Config) { c.Compute.URL = "ftp://x" }, "compute url"},
		{"no retries", func(c *Config) { c.Retry.MaxAttempts = 0 }, "max retries"},
		{"max delay below delay", func(c *Config) { c.Retry.MaxDelay = time.Millisecond }, "max delay"},
		{"evict above size", func(c *Config) { c.Cache.EvictCount = 2000 }, "evict count"},
		{"breaker threshold", func(c *Config) { c.Breaker.Threshold = 0 }, "threshold"},
		{"rate limit", func(c *Config) { c.RateLimit.Max = 0 }, "rate limit max"},
		{"trusted proxies", func(c *Config) { c.Server.TrustedProxies = -1 }, "trusted proxies"},
		{"openai timeout", func(c *Config) { c.OpenAI.Timeout = 0 }, "openai timeout"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "unknown log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}

	t.Run("disabled breaker skips its checks", func(t *testing.T) {
		cfg := Default()
		cfg.Breaker = BreakerConfig{Enabled: false}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	yaml := `
server:
  port: 4000
compute:
  url: http://compute.internal:8081
  timeout: 10s
cache:
  max_size: 50
  evict_count: 5
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "5000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Port = %d, want 5000 (env over file)", cfg.Server.Port)
	}
	if cfg.Compute.URL != "http://compute.internal:8081" || cfg.Compute.Timeout != 10*time.Second {
		t.Errorf("Compute = %+v, want values from file", cfg.Compute)
	}
	if cfg.Cache.MaxSize != 50 || cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("Cache = %+v, want file size and default TTL", cfg.Cache)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
		if _, err := Load(); err == nil {
			t.Error("Load() should fail for a missing file")
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("server:\n  prot: 1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv("CONFIG_FILE", path)
		if _, err := Load(); err == nil {
			t.Error("Load() should reject unknown keys")
		}
	})
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1024", 1024},
		{"50MB", 50 << 20},
		{"2kb", 2 << 10},
		{"1GB", 1 << 30},
		{"10B", 10},
	}
	for _, tt := range tests {
		got, err := parseSize(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("parseSize(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}
	if _, err := parseSize("lots"); err == nil {
		t.Error("parseSize(lots) should fail")
	}
}
