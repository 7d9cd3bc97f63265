package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"go.yaml.in/yaml/v2"
)

const (
	// DefaultMaxUploadSize is the per-file upload limit (100 MB).
	DefaultMaxUploadSize int64 = 100 << 20
	// DefaultMaxFiles is the number of files accepted by multi-file operations.
	DefaultMaxFiles = 10
)

// Config represents the top-level configuration for the PDF service.
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	RateLimit  HTTPLimitConfig   `yaml:"rate_limit"`
	Cache      CacheConfig       `yaml:"cache"`
	Default    OperationDefaults `yaml:"default"`
	Operations []OperationConfig `yaml:"operations"`
	Render     RenderConfig      `yaml:"render"`
	Queue      QueueConfig       `yaml:"queue"`
}

// New returns a new Config with sensible defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			MaxUploadSize: DefaultMaxUploadSize,
			MaxFiles:      DefaultMaxFiles,
		},
		Cache: CacheConfig{
			TTL: time.Hour,
		},
		Operations: []OperationConfig{},
	}
}

// ResolvedConfig is the final merged configuration for a single operation.
type ResolvedConfig struct {
	Timeout  time.Duration
	Throttle ThrottleConfig
	Cache    CacheConfig
}

// GetConfigForOperation returns the defaults merged with any override
// registered for the named operation.
func (c *Config) GetConfigForOperation(name string) ResolvedConfig {
	resolved := ResolvedConfig{
		Timeout:  c.Default.Timeout,
		Throttle: c.Default.Throttle,
		Cache:    c.Cache,
	}
	for _, op := range c.Operations {
		if op.Name != name {
			continue
		}
		if op.Timeout > 0 {
			resolved.Timeout = op.Timeout
		}
		if op.Throttle != nil {
			resolved.Throttle = mergeThrottle(resolved.Throttle, *op.Throttle)
		}
		if op.Cache != nil {
			resolved.Cache = mergeCache(resolved.Cache, *op.Cache)
		}
	}
	return resolved
}

// GetTimeout returns the operation timeout with a default of 2 minutes.
func (r ResolvedConfig) GetTimeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return 2 * time.Minute
}

// ServerConfig holds HTTP intake settings.
type ServerConfig struct {
	MaxUploadSize  int64  `yaml:"max_upload_size,omitempty"`
	MaxFiles       int    `yaml:"max_files,omitempty"`
	MaxConnections int    `yaml:"max_connections,omitempty"`
	TempDir        string `yaml:"temp_dir,omitempty"`
	StaticDir      string `yaml:"static_dir,omitempty"`
	CORSOrigin     string `yaml:"cors_origin,omitempty"`
	APIKey         string `yaml:"api_key,omitempty"`
}

// GetMaxUploadSize returns the per-file upload limit with a default of 100 MB.
func (s *ServerConfig) GetMaxUploadSize() int64 {
	if s.MaxUploadSize > 0 {
		return s.MaxUploadSize
	}
	return DefaultMaxUploadSize
}

// GetMaxFiles returns the multi-file limit with a default of 10.
func (s *ServerConfig) GetMaxFiles() int {
	if s.MaxFiles > 0 {
		return s.MaxFiles
	}
	return DefaultMaxFiles
}

// GetTempDir returns the upload directory, falling back to the OS temp dir.
func (s *ServerConfig) GetTempDir() string {
	if s.TempDir != "" {
		return s.TempDir
	}
	return os.TempDir()
}

// HTTPLimitConfig defines per-client request limits applied at the HTTP edge.
type HTTPLimitConfig struct {
	Requests       int           `yaml:"requests,omitempty"`
	Window         time.Duration `yaml:"window,omitempty"`
	UploadRequests int           `yaml:"upload_requests,omitempty"`
	UploadWindow   time.Duration `yaml:"upload_window,omitempty"`
}

// GetRequests returns the general request limit with a default of 100.
func (h *HTTPLimitConfig) GetRequests() int {
	if h.Requests > 0 {
		return h.Requests
	}
	return 100
}

// GetWindow returns the general window with a default of 15 minutes.
func (h *HTTPLimitConfig) GetWindow() time.Duration {
	if h.Window > 0 {
		return h.Window
	}
	return 15 * time.Minute
}

// GetUploadRequests returns the upload request limit with a default of 20.
func (h *HTTPLimitConfig) GetUploadRequests() int {
	if h.UploadRequests > 0 {
		return h.UploadRequests
	}
	return 20
}

// GetUploadWindow returns the upload window with a default of 15 minutes.
func (h *HTTPLimitConfig) GetUploadWindow() time.Duration {
	if h.UploadWindow > 0 {
		return h.UploadWindow
	}
	return 15 * time.Minute
}

// CacheConfig defines result caching.
type CacheConfig struct {
	TTL          time.Duration `yaml:"ttl,omitempty"`
	MaxEntrySize int64         `yaml:"max_entry_size,omitempty"`
	Disabled     bool          `yaml:"disabled,omitempty"`
}

// IsEnabled returns true if caching is enabled.
func (c *CacheConfig) IsEnabled() bool {
	return !c.Disabled && c.TTL > 0
}

// GetMaxEntrySize returns the largest cacheable result with a default of 20 MB.
func (c *CacheConfig) GetMaxEntrySize() int64 {
	if c.MaxEntrySize > 0 {
		return c.MaxEntrySize
	}
	return 20 << 20
}

// OperationDefaults contains settings applied to every operation unless overridden.
type OperationDefaults struct {
	Timeout  time.Duration  `yaml:"timeout,omitempty"`
	Throttle ThrottleConfig `yaml:"throttle"`
}

// OperationConfig overrides defaults for a single named operation.
type OperationConfig struct {
	Name     string          `yaml:"name"`
	Timeout  time.Duration   `yaml:"timeout,omitempty"`
	Throttle *ThrottleConfig `yaml:"throttle,omitempty"`
	Cache    *CacheConfig    `yaml:"cache,omitempty"`
}

// ThrottleConfig limits how often and how many instances of an operation run.
type ThrottleConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	Burst             int     `yaml:"burst,omitempty"`
	MaxConcurrent     int     `yaml:"max_concurrent,omitempty"`
}

// GetDelay returns the minimum delay between operation starts.
func (t *ThrottleConfig) GetDelay() time.Duration {
	if t.RequestsPerSecond > 0 {
		return time.Duration(float64(time.Second) / t.RequestsPerSecond)
	}
	return 0
}

// IsEnabled returns true if any throttling is configured.
func (t *ThrottleConfig) IsEnabled() bool {
	return t.RequestsPerSecond > 0 || t.MaxConcurrent > 0
}

// GetMaxConcurrent returns the concurrency cap (default unlimited).
func (t *ThrottleConfig) GetMaxConcurrent() int {
	if t.MaxConcurrent <= 0 {
		return 0
	}
	return t.MaxConcurrent
}

// RenderConfig holds defaults for page rasterization.
type RenderConfig struct {
	Format   string  `yaml:"format,omitempty"`
	Scale    float64 `yaml:"scale,omitempty"`
	Quality  int     `yaml:"quality,omitempty"`
	MaxPages int     `yaml:"max_pages,omitempty"`
	Workers  int     `yaml:"workers,omitempty"`
}

// GetFormat returns the output image format with a default of png.
func (r *RenderConfig) GetFormat() string {
	if r.Format != "" {
		return r.Format
	}
	return "png"
}

// GetScale returns the render scale with a default of 2 (144 DPI).
func (r *RenderConfig) GetScale() float64 {
	if r.Scale > 0 {
		return r.Scale
	}
	return 2
}

// GetQuality returns the JPEG quality with a default of 100.
func (r *RenderConfig) GetQuality() int {
	if r.Quality > 0 {
		return r.Quality
	}
	return 100
}

// GetMaxPages returns the most pages rendered per request with a default of 200.
func (r *RenderConfig) GetMaxPages() int {
	if r.MaxPages > 0 {
		return r.MaxPages
	}
	return 200
}

// GetWorkers returns the encoder parallelism with a default of 4.
func (r *RenderConfig) GetWorkers() int {
	if r.Workers > 0 {
		return r.Workers
	}
	return 4
}

// QueueConfig defines the asynchronous job queue.
type QueueConfig struct {
	Workers int           `yaml:"workers,omitempty"`
	Buffer  int           `yaml:"buffer,omitempty"`
	JobTTL  time.Duration `yaml:"job_ttl,omitempty"`
	Retry   RetryConfig   `yaml:"retry"`
}

// GetWorkers returns the number of queue workers with a default of 2.
func (q *QueueConfig) GetWorkers() int {
	if q.Workers > 0 {
		return q.Workers
	}
	return 2
}

// GetBuffer returns the queue depth with a default of 100.
func (q *QueueConfig) GetBuffer() int {
	if q.Buffer > 0 {
		return q.Buffer
	}
	return 100
}

// GetJobTTL returns how long job records are kept with a default of 1 hour.
func (q *QueueConfig) GetJobTTL() time.Duration {
	if q.JobTTL > 0 {
		return q.JobTTL
	}
	return time.Hour
}

// RetryConfig defines retry and exponential backoff behavior for failed jobs.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries,omitempty"`
	InitialDelay time.Duration `yaml:"initial_delay,omitempty"`
	MaxDelay     time.Duration `yaml:"max_delay,omitempty"`
	Multiplier   float64       `yaml:"multiplier,omitempty"`
}

// IsEnabled returns true if retries are configured
func (r *RetryConfig) IsEnabled() bool {
	return r.MaxRetries > 0
}

// GetMaxRetries returns the max retries with a default of 0 (no retries)
func (r *RetryConfig) GetMaxRetries() int {
	if r.MaxRetries < 0 {
		return 0
	}
	return r.MaxRetries
}

// GetInitialDelay returns the initial delay with a default of 1 second
func (r *RetryConfig) GetInitialDelay() time.Duration {
	if r.InitialDelay > 0 {
		return r.InitialDelay
	}
	return time.Second
}

// GetMaxDelay returns the max delay with a default of 30 seconds
func (r *RetryConfig) GetMaxDelay() time.Duration {
	if r.MaxDelay > 0 {
		return r.MaxDelay
	}
	return 30 * time.Second
}

// GetMultiplier returns the backoff multiplier with a default of 2.0
func (r *RetryConfig) GetMultiplier() float64 {
	if r.Multiplier > 0 {
		return r.Multiplier
	}
	return 2.0
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := New()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors and conflicts
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateHTTPLimit(); err != nil {
		return err
	}
	if c.Cache.TTL < 0 || c.Cache.MaxEntrySize < 0 {
		return fmt.Errorf("cache: 'ttl' and 'max_entry_size' must be >= 0")
	}
	if c.Default.Timeout < 0 {
		return fmt.Errorf("default: 'timeout' must be >= 0")
	}
	if err := validateThrottle("default", c.Default.Throttle); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Operations))
	for i, op := range c.Operations {
		if op.Name == "" {
			return fmt.Errorf("operations[%d]: name cannot be empty", i)
		}
		if !slices.Contains(Operations, op.Name) {
			return fmt.Errorf("operations[%d]: unknown operation %q (known: %s)", i, op.Name, strings.Join(Operations, ", "))
		}
		if seen[op.Name] {
			return fmt.Errorf("operations[%d]: duplicate operation %q", i, op.Name)
		}
		seen[op.Name] = true

		opCtx := fmt.Sprintf("operations[%d](%s)", i, op.Name)
		if op.Timeout < 0 {
			return fmt.Errorf("%s: 'timeout' must be >= 0", opCtx)
		}
		if op.Throttle != nil {
			if err := validateThrottle(opCtx, *op.Throttle); err != nil {
				return err
			}
		}
		if op.Cache != nil && op.Cache.TTL < 0 {
			return fmt.Errorf("%s.cache: 'ttl' must be >= 0", opCtx)
		}
	}

	return nil
}

func (c *Config) validateServer() error {
	s := c.Server
	if s.MaxUploadSize < 0 {
		return fmt.Errorf("server: 'max_upload_size' must be >= 0")
	}
	if s.MaxFiles < 0 {
		return fmt.Errorf("server: 'max_files' must be >= 0")
	}
	if s.MaxConnections < 0 {
		return fmt.Errorf("server: 'max_connections' must be >= 0")
	}
	return nil
}

func (c *Config) validateHTTPLimit() error {
	h := c.RateLimit
	if h.Requests < 0 || h.UploadRequests < 0 {
		return fmt.Errorf("rate_limit: request limits must be >= 0")
	}
	if h.Window < 0 || h.UploadWindow < 0 {
		return fmt.Errorf("rate_limit: windows must be >= 0")
	}
	return nil
}

func validateThrottle(ctx string, t ThrottleConfig) error {
	if t.RequestsPerSecond < 0 {
		return fmt.Errorf("%s.throttle: 'requests_per_second' must be >= 0", ctx)
	}
	if t.Burst > 0 && t.RequestsPerSecond == 0 {
		return fmt.Errorf("%s.throttle: 'burst' requires 'requests_per_second'", ctx)
	}
	if t.MaxConcurrent < 0 {
		return fmt.Errorf("%s.throttle: 'max_concurrent' must be >= 0", ctx)
	}
	return nil
}

func (c *Config) validateRender() error {
	r := c.Render
	if r.Format != "" && r.Format != "png" && r.Format != "jpeg" && r.Format != "jpg" {
		return fmt.Errorf("render: 'format' must be 'png' or 'jpeg' (got %q)", r.Format)
	}
	if r.Scale < 0 || r.Scale > 10 {
		return fmt.Errorf("render: 'scale' must be between 0 and 10 (got %.2f)", r.Scale)
	}
	if r.Quality < 0 || r.Quality > 100 {
		return fmt.Errorf("render: 'quality' must be between 1 and 100 (got %d)", r.Quality)
	}
	if r.MaxPages < 0 || r.Workers < 0 {
		return fmt.Errorf("render: 'max_pages' and 'workers' must be >= 0")
	}
	return nil
}

func (c *Config) validateQueue() error {
	q := c.Queue
	if q.Workers < 0 || q.Buffer < 0 || q.JobTTL < 0 {
		return fmt.Errorf("queue: 'workers', 'buffer' and 'job_ttl' must be >= 0")
	}

	r := q.Retry
	if r.Multiplier > 0 && r.Multiplier < 1.0 {
		return fmt.Errorf("queue.retry: 'multiplier' must be >= 1.0 (got %.2f)", r.Multiplier)
	}
	if r.MaxRetries < 0 {
		return fmt.Errorf("queue.retry: 'max_retries' must be >= 0")
	}
	if r.MaxDelay > 0 && r.InitialDelay > r.MaxDelay {
		return fmt.Errorf("queue.retry: 'initial_delay' (%s) cannot be greater than 'max_delay' (%s)",
			r.InitialDelay, r.MaxDelay)
	}
	return nil
}

func mergeThrottle(base, override ThrottleConfig) ThrottleConfig {
	result := base

	if override.RequestsPerSecond > 0 {
		result.RequestsPerSecond = override.RequestsPerSecond
	}

	if override.Burst > 0 {
		result.Burst = override.Burst
	}

	if override.MaxConcurrent > 0 {
		result.MaxConcurrent = override.MaxConcurrent
	}

	return result
}

func mergeCache(base, override CacheConfig) CacheConfig {
	result := base

	if override.TTL != 0 {
		result.TTL = override.TTL
	}

	if override.MaxEntrySize != 0 {
		result.MaxEntrySize = override.MaxEntrySize
	}

	if override.Disabled {
		result.Disabled = true
	}

	return result
}
