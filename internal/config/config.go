package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"constellation/internal/logging"
)

// Config holds the runtime configuration for the Constellation compiler
// and scheduler: nothing here influences compile-time semantics, only
// how a compiled DagSpec is executed and how the toolchain logs and
// caches along the way.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Cache     CacheConfig     `yaml:"cache"`
	Limiter   LimiterConfig   `yaml:"limiter"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SchedulerConfig controls the dependency-driven executor (section 9).
type SchedulerConfig struct {
	Workers          int    `yaml:"workers"`
	StarvationTimeout string `yaml:"starvation_timeout"`
	DrainTimeout     string `yaml:"drain_timeout"`
}

// CacheConfig selects and tunes the module-call result cache used by
// internal/options' decorator chain (section 4.7 item 5).
type CacheConfig struct {
	Backend    string `yaml:"backend"` // "memory" or "sqlite"
	SQLitePath string `yaml:"sqlite_path"`
	DefaultTTL string `yaml:"default_ttl"`
}

// LimiterConfig sets defaults used when a module-call site declares
// concurrency/throttle options without an explicit count or window
// (section 4.7 items 3-4).
type LimiterConfig struct {
	DefaultConcurrency int    `yaml:"default_concurrency"`
	DefaultThrottleN   int    `yaml:"default_throttle_count"`
	DefaultThrottleWin string `yaml:"default_throttle_window"`
}

// StoreConfig points at the content-addressed pipeline store (section
// C.5 of the specification).
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig mirrors internal/logging's config.json shape in its json
// tags; Save writes the whole Config as YAML, which logging.Initialize
// does not read.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode"`
	Categories map[string]bool `yaml:"categories" json:"categories"`
	Level      string          `yaml:"level" json:"level"`
	JSONFormat bool            `yaml:"json_format" json:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "constellation",
		Version: "0.1.0",

		Scheduler: SchedulerConfig{
			Workers:           4,
			StarvationTimeout: "5s",
			DrainTimeout:      "30s",
		},

		Cache: CacheConfig{
			Backend:    "memory",
			SQLitePath: ".constellation/cache.db",
			DefaultTTL: "0s", // 0 means no expiry unless a call site overrides it
		},

		Limiter: LimiterConfig{
			DefaultConcurrency: 1,
			DefaultThrottleN:   1,
			DefaultThrottleWin: "1s",
		},

		Store: StoreConfig{
			Path: ".constellation/store.db",
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
			Categories: map[string]bool{
				"parse":      true,
				"typecheck":  true,
				"irgen":      true,
				"optimize":   true,
				"dagcompile": true,
				"options":    true,
				"store":      true,
				"scheduler":  true,
			},
			JSONFormat: false,
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults
// (with env overrides applied) when the file doesn't exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	logging.ParseDebug("loading config from: %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Parse("config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		logging.ParseError("failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		logging.ParseError("failed to parse config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	logging.Parse("config loaded: scheduler.workers=%d cache.backend=%s", cfg.Scheduler.Workers, cfg.Cache.Backend)

	return cfg, nil
}

// Save writes the configuration to a YAML file, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("CONSTELLATION_STORE"); path != "" {
		c.Store.Path = path
	}
	if path := os.Getenv("CONSTELLATION_CACHE_DB"); path != "" {
		c.Cache.SQLitePath = path
	}
	if backend := os.Getenv("CONSTELLATION_CACHE_BACKEND"); backend != "" {
		c.Cache.Backend = backend
	}
	if v := os.Getenv("CONSTELLATION_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
	}
	if n := os.Getenv("CONSTELLATION_SCHEDULER_WORKERS"); n != "" {
		if workers, err := parsePositiveInt(n); err == nil {
			c.Scheduler.Workers = workers
		}
	}
}

func parsePositiveInt(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("value must be positive: %s", s)
	}
	return n, nil
}

// GetStarvationTimeout returns the scheduler's starvation-elevation
// timeout as a duration (section 9).
func (c *Config) GetStarvationTimeout() time.Duration {
	d, err := time.ParseDuration(c.Scheduler.StarvationTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// GetDrainTimeout returns how long the scheduler waits for in-flight
// module calls to finish before a run is considered abandoned.
func (c *Config) GetDrainTimeout() time.Duration {
	d, err := time.ParseDuration(c.Scheduler.DrainTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetCacheDefaultTTL returns the cache's default entry TTL; zero means
// entries never expire unless a call site's cache option overrides it.
func (c *Config) GetCacheDefaultTTL() time.Duration {
	d, err := time.ParseDuration(c.Cache.DefaultTTL)
	if err != nil {
		return 0
	}
	return d
}

// GetDefaultThrottleWindow returns the limiter's default throttle
// window (section 4.7 item 4).
func (c *Config) GetDefaultThrottleWindow() time.Duration {
	d, err := time.ParseDuration(c.Limiter.DefaultThrottleWin)
	if err != nil {
		return 1 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be positive, got %d", c.Scheduler.Workers)
	}
	switch c.Cache.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("invalid cache backend: %s (valid: memory, sqlite)", c.Cache.Backend)
	}
	if c.Limiter.DefaultConcurrency <= 0 {
		return fmt.Errorf("limiter.default_concurrency must be positive, got %d", c.Limiter.DefaultConcurrency)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}
	return nil
}
