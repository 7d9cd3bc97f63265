package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()

	if got := cfg.Server.GetMaxUploadSize(); got != 100<<20 {
		t.Errorf("GetMaxUploadSize() = %d, want %d", got, 100<<20)
	}
	if got := cfg.Server.GetMaxFiles(); got != 10 {
		t.Errorf("GetMaxFiles() = %d, want 10", got)
	}
	if !cfg.Cache.IsEnabled() {
		t.Error("cache should be enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestGetters(t *testing.T) {
	var zero Config

	if got := zero.RateLimit.GetRequests(); got != 100 {
		t.Errorf("GetRequests() = %d, want 100", got)
	}
	if got := zero.RateLimit.GetUploadRequests(); got != 20 {
		t.Errorf("GetUploadRequests() = %d, want 20", got)
	}
	if got := zero.RateLimit.GetWindow(); got != 15*time.Minute {
		t.Errorf("GetWindow() = %v, want 15m", got)
	}
	if got := zero.Render.GetFormat(); got != "png" {
		t.Errorf("GetFormat() = %q, want png", got)
	}
	if got := zero.Render.GetScale(); got != 2 {
		t.Errorf("GetScale() = %v, want 2", got)
	}
	if got := zero.Render.GetQuality(); got != 100 {
		t.Errorf("GetQuality() = %d, want 100", got)
	}
	if got := zero.Queue.GetWorkers(); got != 2 {
		t.Errorf("GetWorkers() = %d, want 2", got)
	}
	if got := zero.Queue.Retry.GetMultiplier(); got != 2.0 {
		t.Errorf("GetMultiplier() = %v, want 2.0", got)
	}
	if got := zero.Server.GetTempDir(); got != os.TempDir() {
		t.Errorf("GetTempDir() = %q, want %q", got, os.TempDir())
	}
	if zero.Cache.IsEnabled() {
		t.Error("zero cache config should be disabled")
	}
}

func TestGetConfigForOperation(t *testing.T) {
	cfg := New()
	cfg.Default.Timeout = time.Minute
	cfg.Default.Throttle = ThrottleConfig{RequestsPerSecond: 5, Burst: 2}
	cfg.Operations = []OperationConfig{
		{
			Name:     OpToImages,
			Timeout:  5 * time.Minute,
			Throttle: &ThrottleConfig{MaxConcurrent: 2},
			Cache:    &CacheConfig{Disabled: true},
		},
	}

	t.Run("override merges onto defaults", func(t *testing.T) {
		resolved := cfg.GetConfigForOperation(OpToImages)
		if resolved.GetTimeout() != 5*time.Minute {
			t.Errorf("timeout = %v, want 5m", resolved.GetTimeout())
		}
		if resolved.Throttle.MaxConcurrent != 2 {
			t.Errorf("max_concurrent = %d, want 2", resolved.Throttle.MaxConcurrent)
		}
		if resolved.Throttle.RequestsPerSecond != 5 {
			t.Errorf("requests_per_second = %v, want 5 (inherited)", resolved.Throttle.RequestsPerSecond)
		}
		if resolved.Cache.IsEnabled() {
			t.Error("cache should be disabled for convert-to-images")
		}
	})

	t.Run("other operations use defaults", func(t *testing.T) {
		resolved := cfg.GetConfigForOperation(OpMerge)
		if resolved.GetTimeout() != time.Minute {
			t.Errorf("timeout = %v, want 1m", resolved.GetTimeout())
		}
		if resolved.Throttle.MaxConcurrent != 0 {
			t.Errorf("max_concurrent = %d, want 0", resolved.Throttle.MaxConcurrent)
		}
		if !resolved.Cache.IsEnabled() {
			t.Error("cache should stay enabled")
		}
	})

	t.Run("zero timeout falls back", func(t *testing.T) {
		if got := New().GetConfigForOperation(OpInfo).GetTimeout(); got != 2*time.Minute {
			t.Errorf("timeout = %v, want 2m", got)
		}
	})
}

func TestThrottleConfig(t *testing.T) {
	th := ThrottleConfig{RequestsPerSecond: 4}
	if th.GetDelay() != 250*time.Millisecond {
		t.Errorf("GetDelay() = %v, want 250ms", th.GetDelay())
	}
	if !th.IsEnabled() {
		t.Error("throttle with rate should be enabled")
	}

	var empty ThrottleConfig
	if empty.IsEnabled() || empty.GetDelay() != 0 || empty.GetMaxConcurrent() != 0 {
		t.Error("empty throttle should be disabled")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"negative upload size", func(c *Config) { c.Server.MaxUploadSize = -1 }, "max_upload_size"},
		{"negative rate limit", func(c *Config) { c.RateLimit.Requests = -5 }, "rate_limit"},
		{"burst without rate", func(c *Config) { c.Default.Throttle.Burst = 3 }, "burst"},
		{"bad render format", func(c *Config) { c.Render.Format = "gif" }, "format"},
		{"scale too large", func(c *Config) { c.Render.Scale = 11 }, "scale"},
		{"quality too large", func(c *Config) { c.Render.Quality = 101 }, "quality"},
		{"retry multiplier below one", func(c *Config) { c.Queue.Retry.Multiplier = 0.5 }, "multiplier"},
		{"initial delay above max", func(c *Config) {
			c.Queue.Retry.InitialDelay = time.Minute
			c.Queue.Retry.MaxDelay = time.Second
		}, "initial_delay"},
		{"empty operation name", func(c *Config) { c.Operations = []OperationConfig{{}} }, "name cannot be empty"},
		{"unknown operation", func(c *Config) { c.Operations = []OperationConfig{{Name: "rotate"}} }, "unknown operation"},
		{"duplicate operation", func(c *Config) {
			c.Operations = []OperationConfig{{Name: OpMerge}, {Name: OpMerge}}
		}, "duplicate"},
		{"operation throttle", func(c *Config) {
			c.Operations = []OperationConfig{{Name: OpMerge, Throttle: &ThrottleConfig{MaxConcurrent: -1}}}
		}, "max_concurrent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	yamlData := `
server:
  max_upload_size: 1048576
  max_files: 3
rate_limit:
  requests: 50
  window: 1m
cache:
  ttl: 30m
default:
  timeout: 45s
operations:
  - name: convert-to-images
    timeout: 5m
    throttle:
      max_concurrent: 1
render:
  format: jpeg
  scale: 1.5
queue:
  workers: 4
  retry:
    max_retries: 3
    initial_delay: 500ms
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yamlData), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.GetMaxUploadSize() != 1<<20 {
		t.Errorf("max_upload_size = %d", cfg.Server.MaxUploadSize)
	}
	if cfg.Server.GetMaxFiles() != 3 {
		t.Errorf("max_files = %d", cfg.Server.MaxFiles)
	}
	if cfg.RateLimit.GetWindow() != time.Minute {
		t.Errorf("window = %v", cfg.RateLimit.Window)
	}
	if cfg.Cache.TTL != 30*time.Minute {
		t.Errorf("cache ttl = %v", cfg.Cache.TTL)
	}
	if cfg.Render.GetFormat() != "jpeg" || cfg.Render.GetScale() != 1.5 {
		t.Errorf("render = %+v", cfg.Render)
	}
	if cfg.Queue.Retry.GetInitialDelay() != 500*time.Millisecond {
		t.Errorf("initial_delay = %v", cfg.Queue.Retry.InitialDelay)
	}

	resolved := cfg.GetConfigForOperation(OpToImages)
	if resolved.GetTimeout() != 5*time.Minute || resolved.Throttle.GetMaxConcurrent() != 1 {
		t.Errorf("resolved = %+v", resolved)
	}
	if cfg.GetConfigForOperation(OpInfo).GetTimeout() != 45*time.Second {
		t.Errorf("default timeout not applied")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		if _, err := Parse([]byte("server: [")); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := Parse([]byte("render:\n  format: tiff\n"))
		if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		cfg, err := Parse([]byte("queue:\n  workers: 1\n"))
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if cfg.Server.MaxUploadSize != DefaultMaxUploadSize {
			t.Errorf("max_upload_size default lost: %d", cfg.Server.MaxUploadSize)
		}
		if cfg.Cache.TTL != time.Hour {
			t.Errorf("cache ttl default lost: %v", cfg.Cache.TTL)
		}
	})
}
