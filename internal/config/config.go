// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	stash "github.com/eugener/stash/internal"
)

// Config is the top-level service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Admin     AdminConfig     `yaml:"admin"`
	Cache     CacheConfig     `yaml:"cache"`
	DNS       DNSConfig       `yaml:"dns"`
	Breaker   BreakerConfig   `yaml:"circuit_breaker"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Origins   []OriginEntry   `yaml:"origins"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AdminConfig holds admin API settings.
type AdminConfig struct {
	Key string `yaml:"key"` // bearer key for /admin; empty disables the check
}

// Backend names accepted in CacheConfig.Backend.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendTiered = "tiered"
)

// CacheConfig selects and tunes the store behind every origin.
type CacheConfig struct {
	Backend        string        `yaml:"backend"`
	MaxEntries     int           `yaml:"max_entries"`
	TTL            time.Duration `yaml:"ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`  // sqlite expiry sweep
	SampleInterval time.Duration `yaml:"sample_interval"` // cache_entries gauge refresh
	SQLite         SQLiteConfig  `yaml:"sqlite"`
	Redis          RedisConfig   `yaml:"redis"`
}

// SQLiteConfig holds durable store settings.
type SQLiteConfig struct {
	DSN string `yaml:"dsn"` // file path or ":memory:"
}

// RedisConfig holds shared store settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// DNSConfig controls the origin DNS cache.
type DNSConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// BreakerConfig tunes the per-origin circuit breaker.
type BreakerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ErrorThreshold float64       `yaml:"error_threshold"` // weighted error rate, 0.0 to 1.0
	MinSamples     int           `yaml:"min_samples"`
	Window         time.Duration `yaml:"window"` // up to 60s
	OpenTimeout    time.Duration `yaml:"open_timeout"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// OriginEntry is a cached upstream mounted under a path prefix.
type OriginEntry struct {
	Name         string        `yaml:"name"`
	Prefix       string        `yaml:"prefix"`
	Upstream     string        `yaml:"upstream"`
	ResponseType string        `yaml:"response_type"` // "json" (default) or "html"
	Scope        string        `yaml:"scope"`         // "", "bearer" or "header:<Name>"
	TTL          time.Duration `yaml:"ttl"`           // overrides cache.ttl when set
	MaxEntries   int           `yaml:"max_entries"`   // overrides cache.max_entries when set
	Timeout      time.Duration `yaml:"timeout"`
}

// ResolvedResponseType returns the response type, defaulting to JSON.
func (o OriginEntry) ResolvedResponseType() stash.ResponseType {
	if o.ResponseType == "" {
		return stash.ResponseJSON
	}
	return stash.ResponseType(o.ResponseType)
}

// ScopeHeader returns the header name for "header:<Name>" scopes.
func (o OriginEntry) ScopeHeader() (string, bool) {
	name, ok := strings.CutPrefix(o.Scope, "header:")
	return name, ok && name != ""
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Backend:        BackendMemory,
			MaxEntries:     10_000,
			TTL:            5 * time.Minute,
			SweepInterval:  time.Minute,
			SampleInterval: 15 * time.Second,
			SQLite:         SQLiteConfig{DSN: "stash.db"},
			Redis:          RedisConfig{Addr: "localhost:6379", Prefix: "stash:"},
		},
		DNS: DNSConfig{
			RefreshInterval: 5 * time.Minute,
		},
		Breaker: BreakerConfig{
			Enabled:        true,
			ErrorThreshold: 0.5,
			MinSamples:     20,
			Window:         30 * time.Second,
			OpenTimeout:    15 * time.Second,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// originName restricts names to characters that are literal in store key
// prefixes and SCAN patterns, so one origin's prefix never matches another's.
var originName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Validate checks the settings that cannot fall back to a default.
func (c *Config) Validate() error {
	var errs []error
	switch c.Cache.Backend {
	case BackendMemory, BackendSQLite, BackendRedis, BackendTiered:
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q: %w", c.Cache.Backend, stash.ErrUnknownBackend))
	}

	for _, iv := range []struct {
		field string
		d     time.Duration
	}{
		{"cache.sweep_interval", c.Cache.SweepInterval},
		{"cache.sample_interval", c.Cache.SampleInterval},
		{"dns.refresh_interval", c.DNS.RefreshInterval},
	} {
		if iv.d <= 0 {
			errs = append(errs, fmt.Errorf("%s %v must be positive", iv.field, iv.d))
		}
	}

	if b := c.Breaker; b.Enabled && (b.ErrorThreshold <= 0 || b.ErrorThreshold > 1) {
		errs = append(errs, fmt.Errorf("circuit_breaker.error_threshold %v must be in (0, 1]", b.ErrorThreshold))
	}

	seen := make(map[string]bool, len(c.Origins))
	for i, o := range c.Origins {
		field := fmt.Sprintf("origins[%d]", i)
		if o.Name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", field))
		} else if !originName.MatchString(o.Name) {
			errs = append(errs, fmt.Errorf("%s: name %q may only contain letters, digits, '_' and '-'", field, o.Name))
		} else if seen[o.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate name %q", field, o.Name))
		}
		seen[o.Name] = true

		if !strings.HasPrefix(o.Prefix, "/") {
			errs = append(errs, fmt.Errorf("%s: prefix %q must start with /", field, o.Prefix))
		}
		if u, err := url.Parse(o.Upstream); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s: invalid upstream %q", field, o.Upstream))
		}
		if !o.ResolvedResponseType().Valid() {
			errs = append(errs, fmt.Errorf("%s: unknown response_type %q", field, o.ResponseType))
		}
		if _, ok := o.ScopeHeader(); o.Scope != "" && o.Scope != "bearer" && !ok {
			errs = append(errs, fmt.Errorf("%s: unknown scope %q", field, o.Scope))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
