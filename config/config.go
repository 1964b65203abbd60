// Package config loads the service configuration.
//
// Values are layered: built-in defaults, then a TOML file, then TASKAPI_*
// environment variables. The API key may live in a separate secrets file
// that must not be readable by group or others.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/taskapi/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TASKAPI_"

// Idempotency backends.
const (
	BackendSQL = "sql"
	BackendKV  = "kv"
)

// Config is the complete service configuration.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Database    DatabaseConfig    `toml:"database"`
	Cache       CacheConfig       `toml:"cache"`
	Idempotency IdempotencyConfig `toml:"idempotency"`
	Events      EventsConfig      `toml:"events"`
	NATS        NATSConfig        `toml:"nats"`
	Telemetry   TelemetryConfig   `toml:"telemetry"`
	Log         LogConfig         `toml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr              string        `toml:"addr"`
	APIKey            string        `toml:"api_key"`
	APIKeyFile        string        `toml:"api_key_file"`
	RequestsPerMinute int           `toml:"requests_per_minute"` // 0 disables throttling
	ReadTimeout       time.Duration `toml:"read_timeout"`
	WriteTimeout      time.Duration `toml:"write_timeout"`
	ShutdownTimeout   time.Duration `toml:"shutdown_timeout"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// CacheConfig bounds the read cache.
type CacheConfig struct {
	Size int           `toml:"size"`
	TTL  time.Duration `toml:"ttl"`
}

// IdempotencyConfig selects and tunes the registry.
type IdempotencyConfig struct {
	Backend       string        `toml:"backend"` // sql or kv
	TTL           time.Duration `toml:"ttl"`
	SweepInterval time.Duration `toml:"sweep_interval"`
}

// EventsConfig tunes the dispatcher and event retention.
type EventsConfig struct {
	Workers        int           `toml:"workers"`
	QueueSize      int           `toml:"queue_size"`
	HandlerTimeout time.Duration `toml:"handler_timeout"`
	Retention      time.Duration `toml:"retention"` // 0 keeps events forever
}

// NATSConfig enables the NATS bus and KV registry backend.
type NATSConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	Bucket  string `toml:"bucket"`
}

// TelemetryConfig configures OTLP tracing. An empty endpoint disables it.
type TelemetryConfig struct {
	Endpoint    string  `toml:"endpoint"`
	Protocol    string  `toml:"protocol"`
	Insecure    bool    `toml:"insecure"`
	ServiceName string  `toml:"service_name"`
	SampleRatio float64 `toml:"sample_ratio"` // 0 samples every trace
}

// LogConfig sets the minimum log level.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			RequestsPerMinute: 120,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Database: DatabaseConfig{Path: "taskapi.db"},
		Cache:    CacheConfig{Size: 1000, TTL: 5 * time.Minute},
		Idempotency: IdempotencyConfig{
			Backend:       BackendSQL,
			TTL:           24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Events: EventsConfig{
			Workers:        4,
			QueueSize:      1024,
			HandlerTimeout: 5 * time.Second,
		},
		NATS: NATSConfig{
			URL:    "nats://127.0.0.1:4222",
			Bucket: "taskapi-idempotency",
		},
		Telemetry: TelemetryConfig{Protocol: "grpc", ServiceName: "taskapi"},
		Log:       LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, the TOML file at path (if
// non-empty) and the environment.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("loading config file %s: unknown keys %v", path, undecoded)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}

	if cfg.Server.APIKey == "" && cfg.Server.APIKeyFile != "" {
		key, err := LoadAPIKeyFile(cfg.Server.APIKeyFile)
		if err != nil {
			return nil, err
		}
		cfg.Server.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Server.Addr) == "" {
		problems = append(problems, "server.addr is required")
	}
	if c.Server.RequestsPerMinute < 0 {
		problems = append(problems, "server.requests_per_minute must not be negative")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		problems = append(problems, "database.path is required")
	}
	switch c.Idempotency.Backend {
	case BackendSQL, BackendKV:
	default:
		problems = append(problems, fmt.Sprintf("idempotency.backend must be %q or %q", BackendSQL, BackendKV))
	}
	if c.Events.Retention < 0 {
		problems = append(problems, "events.retention must not be negative")
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http":
	default:
		problems = append(problems, "telemetry.protocol must be grpc or http")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		problems = append(problems, "telemetry.sample_ratio must be between 0 and 1")
	}
	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		problems = append(problems, "log.level must be debug, info, warn or error")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// applyEnv overrides cfg from TASKAPI_* variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []string
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, EnvPrefix+name+": "+err.Error())
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, EnvPrefix+name+": "+err.Error())
				return
			}
			*dst = d
		}
	}
	ratio := func(name string, dst *float64) {
		if v, ok := lookup(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, EnvPrefix+name+": "+err.Error())
				return
			}
			*dst = f
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, EnvPrefix+name+": "+err.Error())
				return
			}
			*dst = b
		}
	}

	str("SERVER_ADDR", &cfg.Server.Addr)
	str("API_KEY", &cfg.Server.APIKey)
	str("API_KEY_FILE", &cfg.Server.APIKeyFile)
	num("REQUESTS_PER_MINUTE", &cfg.Server.RequestsPerMinute)
	dur("SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	str("DATABASE_PATH", &cfg.Database.Path)
	num("CACHE_SIZE", &cfg.Cache.Size)
	dur("CACHE_TTL", &cfg.Cache.TTL)
	str("IDEMPOTENCY_BACKEND", &cfg.Idempotency.Backend)
	dur("IDEMPOTENCY_TTL", &cfg.Idempotency.TTL)
	dur("IDEMPOTENCY_SWEEP_INTERVAL", &cfg.Idempotency.SweepInterval)
	num("EVENTS_WORKERS", &cfg.Events.Workers)
	num("EVENTS_QUEUE_SIZE", &cfg.Events.QueueSize)
	dur("EVENTS_RETENTION", &cfg.Events.Retention)
	boolean("NATS_ENABLED", &cfg.NATS.Enabled)
	str("NATS_URL", &cfg.NATS.URL)
	str("NATS_BUCKET", &cfg.NATS.Bucket)
	str("TELEMETRY_ENDPOINT", &cfg.Telemetry.Endpoint)
	str("TELEMETRY_PROTOCOL", &cfg.Telemetry.Protocol)
	boolean("TELEMETRY_INSECURE", &cfg.Telemetry.Insecure)
	ratio("TELEMETRY_SAMPLE_RATIO", &cfg.Telemetry.SampleRatio)
	str("LOG_LEVEL", &cfg.Log.Level)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}
