package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/config-overlay/internal/cache"
	"github.com/eugenenazirov/config-overlay/internal/store"
)

const (
	defaultPort           = "8080"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > Environment variables > YAML config > Defaults
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Merge    MergeConfig   `yaml:"merge"`
	Store    StoreConfig   `yaml:"store"`
	Cache    CacheConfig   `yaml:"cache"`
	Restart  RestartConfig `yaml:"restart"`
	LogLevel string        `yaml:"log_level"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port                string          `yaml:"port"`
	ShutdownGracePeriod time.Duration   `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout   time.Duration   `yaml:"read_header_timeout"`
	WriteTimeout        time.Duration   `yaml:"write_timeout"`
	IdleTimeout         time.Duration   `yaml:"idle_timeout"`
	RequestLogging      *bool           `yaml:"enable_request_logging"`
	RateLimit           RateLimitConfig `yaml:"rate_limit"`
}

// RequestLoggingEnabled reports whether access logs are emitted.
func (s ServerConfig) RequestLoggingEnabled() bool {
	return s.RequestLogging == nil || *s.RequestLogging
}

// RateLimitConfig configures the API token bucket.
type RateLimitConfig struct {
	RPS      float64 `yaml:"rps"`
	Burst    int     `yaml:"burst"`
	Disabled bool    `yaml:"disabled"`
}

// MergeConfig names the files read and written by the merge engine.
type MergeConfig struct {
	BasePath    string `yaml:"base_path"`
	OutputPath  string `yaml:"output_path"`
	OverlayPath string `yaml:"overlay_path"`
}

// StoreConfig selects the override document backend.
type StoreConfig struct {
	store.Config `yaml:",inline"`
	PruneStale   bool `yaml:"prune_stale"`
}

// CacheConfig selects the effective-config cache.
type CacheConfig struct {
	Driver        string            `yaml:"driver"`
	TTL           time.Duration     `yaml:"ttl"`
	GraceInterval time.Duration     `yaml:"grace_interval"`
	Redis         cache.RedisConfig `yaml:"redis"`
}

// RestartConfig lists the marker files touched by apply.
type RestartConfig struct {
	Markers []string `yaml:"markers"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	Port           *string
	LogLevel       *string
	BasePath       *string
	OutputPath     *string
	StoreDriver    *string
	CacheDriver    *string
	RateLimitRPS   *float64
	RateLimitBurst *int
	PruneStale     *bool
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > Environment variables > YAML config > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	return load(overrides, os.LookupEnv)
}

func load(overrides *CLIOverrides, lookup func(string) (string, bool)) (Config, error) {
	cfg := defaultConfig()

	if overrides != nil && overrides.ConfigFile != "" {
		fileCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
			return Config{}, fmt.Errorf("merge YAML config: %w", err)
		}
	}

	if err := applyEnvConfig(&cfg, lookup); err != nil {
		return Config{}, err
	}

	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:                defaultPort,
			ShutdownGracePeriod: 10 * time.Second,
			ReadHeaderTimeout:   5 * time.Second,
			WriteTimeout:        15 * time.Second,
			IdleTimeout:         60 * time.Second,
			RateLimit: RateLimitConfig{
				RPS:   defaultRateLimitRPS,
				Burst: defaultRateLimitBurst,
			},
		},
		Merge: MergeConfig{
			BasePath:    "librechat.yaml",
			OutputPath:  "librechat.merged.yaml",
			OverlayPath: "admin-overrides.yaml",
		},
		Store: StoreConfig{
			Config: store.Config{
				Driver:         store.DriverMemory,
				ConnectTimeout: 10 * time.Second,
				Surreal: store.SurrealConfig{
					Namespace: "librechat",
					Database:  "admin",
				},
			},
		},
		Cache: CacheConfig{
			Driver:        cache.DriverLocal,
			TTL:           5 * time.Minute,
			GraceInterval: 50 * time.Millisecond,
			Redis: cache.RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "librechat:",
			},
		},
		Restart: RestartConfig{
			Markers: []string{"restart.flag"},
		},
		LogLevel: "info",
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read file: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("parse YAML: %w", err)
	}

	return fileCfg, nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config, lookup func(string) (string, bool)) error {
	env := envReader{lookup: lookup}

	env.string("PORT", &cfg.Server.Port)
	env.string("LOG_LEVEL", &cfg.LogLevel)
	env.float("RATE_LIMIT_RPS", &cfg.Server.RateLimit.RPS)
	env.int("RATE_LIMIT_BURST", &cfg.Server.RateLimit.Burst)

	env.string("BASE_CONFIG_PATH", &cfg.Merge.BasePath)
	env.string("MERGED_CONFIG_PATH", &cfg.Merge.OutputPath)
	env.string("OVERLAY_CONFIG_PATH", &cfg.Merge.OverlayPath)
	env.list("RESTART_MARKERS", &cfg.Restart.Markers)

	env.string("STORE_DRIVER", &cfg.Store.Driver)
	env.string("DATABASE_URL", &cfg.Store.PostgresDSN)
	env.duration("STORE_CONNECT_TIMEOUT", &cfg.Store.ConnectTimeout)
	env.bool("STORE_PRUNE_STALE", &cfg.Store.PruneStale)
	env.string("SURREAL_URL", &cfg.Store.Surreal.URL)
	env.string("SURREAL_USER", &cfg.Store.Surreal.User)
	env.string("SURREAL_PASS", &cfg.Store.Surreal.Password)
	env.string("SURREAL_NS", &cfg.Store.Surreal.Namespace)
	env.string("SURREAL_DB", &cfg.Store.Surreal.Database)

	env.string("CACHE_DRIVER", &cfg.Cache.Driver)
	env.duration("CACHE_TTL", &cfg.Cache.TTL)
	env.duration("CACHE_GRACE_INTERVAL", &cfg.Cache.GraceInterval)
	env.string("REDIS_ADDR", &cfg.Cache.Redis.Addr)
	env.string("REDIS_PASSWORD", &cfg.Cache.Redis.Password)
	env.int("REDIS_DB", &cfg.Cache.Redis.DB)

	return env.err()
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) raw(name string) (string, bool) {
	v, ok := e.lookup(name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) string(name string, dst *string) {
	if v, ok := e.raw(name); ok {
		*dst = v
	}
}

func (e *envReader) list(name string, dst *[]string) {
	v, ok := e.raw(name)
	if !ok {
		return
	}
	items := splitList(v)
	if len(items) > 0 {
		*dst = items
	}
}

func (e *envReader) int(name string, dst *int) {
	if v, ok := e.raw(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", name, v))
			return
		}
		*dst = n
	}
}

func (e *envReader) float(name string, dst *float64) {
	if v, ok := e.raw(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: invalid number %q", name, v))
			return
		}
		*dst = f
	}
}

func (e *envReader) bool(name string, dst *bool) {
	if v, ok := e.raw(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: invalid boolean %q", name, v))
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	if v, ok := e.raw(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: invalid duration %q", name, v))
			return
		}
		*dst = d
	}
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	setString := func(dst *string, src *string) {
		if src != nil && *src != "" {
			*dst = *src
		}
	}
	setString(&cfg.Server.Port, overrides.Port)
	setString(&cfg.LogLevel, overrides.LogLevel)
	setString(&cfg.Merge.BasePath, overrides.BasePath)
	setString(&cfg.Merge.OutputPath, overrides.OutputPath)
	setString(&cfg.Store.Driver, overrides.StoreDriver)
	setString(&cfg.Cache.Driver, overrides.CacheDriver)

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.Server.RateLimit.RPS = *overrides.RateLimitRPS
	}
	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.Server.RateLimit.Burst = *overrides.RateLimitBurst
	}
	if overrides.PruneStale != nil && *overrides.PruneStale {
		cfg.Store.PruneStale = true
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.Server.RateLimit.RPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if strings.TrimSpace(cfg.Merge.BasePath) == "" {
		return fmt.Errorf("base config path cannot be empty")
	}
	if strings.TrimSpace(cfg.Merge.OutputPath) == "" {
		return fmt.Errorf("merged config path cannot be empty")
	}
	if cfg.Merge.OutputPath == cfg.Merge.BasePath {
		return fmt.Errorf("merged config path must differ from the base config path")
	}

	switch cfg.Store.Driver {
	case store.DriverMemory:
	case store.DriverPostgres:
		if cfg.Store.PostgresDSN == "" {
			return fmt.Errorf("postgres store requires DATABASE_URL")
		}
	case store.DriverSurreal:
		if cfg.Store.Surreal.URL == "" {
			return fmt.Errorf("surrealdb store requires SURREAL_URL")
		}
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	switch cfg.Cache.Driver {
	case cache.DriverLocal:
	case cache.DriverRedis:
		if cfg.Cache.Redis.Addr == "" {
			return fmt.Errorf("redis cache requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}
	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	return nil
}

// splitList parses a comma-separated list, dropping empty items.
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		items = append(items, part)
	}
	return items
}
