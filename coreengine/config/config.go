// Package config provides registry configuration parsed from the environment.
//
// Every variable carries the O008_ prefix followed by its section prefix,
// e.g. O008_BUS_REQUEST_CAPACITY or O008_QUEUE_MAX_IN_FLIGHT. Optional .env
// files are loaded first; variables already set in the process environment
// win over file values.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/o008/registry/coreengine/api"
	"github.com/o008/registry/coreengine/kernel"
	"github.com/o008/registry/coreengine/observability"
	"github.com/o008/registry/coreengine/runtime"
	"github.com/o008/registry/coreengine/store"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "O008_"

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds the complete registry configuration.
type Config struct {
	Bus      BusConfig      `json:"bus" envPrefix:"BUS_"`
	Queue    QueueConfig    `json:"queue" envPrefix:"QUEUE_"`
	Database DatabaseConfig `json:"database" envPrefix:"DB_"`
	API      APIConfig      `json:"api" envPrefix:"API_"`
	Tracing  TracingConfig  `json:"tracing" envPrefix:"OTEL_"`
	Log      LogConfig      `json:"log" envPrefix:"LOG_"`

	// Store selects the persistence backend: memory or postgres.
	Store string `json:"store" env:"STORE" envDefault:"memory"`
}

// BusConfig sizes the request/response buses and the poller backoff.
type BusConfig struct {
	RequestCapacity  int           `json:"request_capacity" env:"REQUEST_CAPACITY" envDefault:"64"`
	ResponseCapacity int           `json:"response_capacity" env:"RESPONSE_CAPACITY" envDefault:"64"`
	RequestWaitMS    int           `json:"request_wait_ms" env:"REQUEST_WAIT_MS" envDefault:"10"`
	ResponseWaitMS   int           `json:"response_wait_ms" env:"RESPONSE_WAIT_MS" envDefault:"10"`
	MaxDispatch      int           `json:"max_dispatch" env:"MAX_DISPATCH" envDefault:"16"`
	ClaimRetention   time.Duration `json:"claim_retention" env:"CLAIM_RETENTION" envDefault:"5m"`
	CleanupInterval  time.Duration `json:"cleanup_interval" env:"CLEANUP_INTERVAL" envDefault:"1m"`
}

// QueueConfig configures the command queue used by the CLI.
type QueueConfig struct {
	DispatchWaitMS int `json:"dispatch_wait_ms" env:"DISPATCH_WAIT_MS" envDefault:"64"`
	JoinWaitMS     int `json:"join_wait_ms" env:"JOIN_WAIT_MS" envDefault:"24"`
	MaxInFlight    int `json:"max_in_flight" env:"MAX_IN_FLIGHT" envDefault:"8"`
	Capacity       int `json:"capacity" env:"CAPACITY" envDefault:"128"`
}

// DatabaseConfig configures the PostgreSQL store.
type DatabaseConfig struct {
	URL      string `json:"-" env:"URL"`
	MaxConns int32  `json:"max_conns" env:"MAX_CONNS" envDefault:"10"`
	Migrate  bool   `json:"migrate" env:"MIGRATE" envDefault:"true"`
}

// APIConfig configures the REST server.
type APIConfig struct {
	Host              string        `json:"host" env:"HOST" envDefault:"0.0.0.0"`
	Port              int           `json:"port" env:"PORT" envDefault:"3000"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// TracingConfig configures OpenTelemetry export. Tracing is off when
// Endpoint is empty.
type TracingConfig struct {
	Endpoint    string  `json:"endpoint" env:"ENDPOINT"`
	ServiceName string  `json:"service_name" env:"SERVICE_NAME" envDefault:"o008-registry"`
	Environment string  `json:"environment" env:"ENVIRONMENT" envDefault:"development"`
	Insecure    bool    `json:"insecure" env:"INSECURE" envDefault:"true"`
	SampleRatio float64 `json:"sample_ratio" env:"SAMPLE_RATIO" envDefault:"1"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `json:"level" env:"LEVEL" envDefault:"info"`
	Format string `json:"format" env:"FORMAT" envDefault:"text"`
}

// DefaultConfig returns a Config with the same values as an empty environment.
func DefaultConfig() *Config {
	return &Config{
		Bus: BusConfig{
			RequestCapacity:  64,
			ResponseCapacity: 64,
			RequestWaitMS:    10,
			ResponseWaitMS:   10,
			MaxDispatch:      16,
			ClaimRetention:   5 * time.Minute,
			CleanupInterval:  time.Minute,
		},
		Queue: QueueConfig{
			DispatchWaitMS: 64,
			JoinWaitMS:     24,
			MaxInFlight:    8,
			Capacity:       128,
		},
		Database: DatabaseConfig{
			MaxConns: 10,
			Migrate:  true,
		},
		API: APIConfig{
			Host:              "0.0.0.0",
			Port:              3000,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Tracing: TracingConfig{
			ServiceName: "o008-registry",
			Environment: "development",
			Insecure:    true,
			SampleRatio: 1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreMemory,
	}
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the given .env files (missing files are skipped), parses the
// environment and validates the result.
func Load(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("load env file %s: %w", file, err)
		}
	}
	return parse(env.Options{Prefix: EnvPrefix})
}

// FromMap parses configuration from an explicit variable map instead of the
// process environment. Keys carry the full O008_ prefix.
func FromMap(vars map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: EnvPrefix, Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the runtime cannot work with.
func (c *Config) Validate() error {
	positives := []struct {
		name  string
		value int
	}{
		{"O008_BUS_REQUEST_CAPACITY", c.Bus.RequestCapacity},
		{"O008_BUS_RESPONSE_CAPACITY", c.Bus.ResponseCapacity},
		{"O008_BUS_REQUEST_WAIT_MS", c.Bus.RequestWaitMS},
		{"O008_BUS_RESPONSE_WAIT_MS", c.Bus.ResponseWaitMS},
		{"O008_BUS_MAX_DISPATCH", c.Bus.MaxDispatch},
		{"O008_QUEUE_DISPATCH_WAIT_MS", c.Queue.DispatchWaitMS},
		{"O008_QUEUE_JOIN_WAIT_MS", c.Queue.JoinWaitMS},
		{"O008_QUEUE_MAX_IN_FLIGHT", c.Queue.MaxInFlight},
		{"O008_QUEUE_CAPACITY", c.Queue.Capacity},
	}
	for _, p := range positives {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}

	if c.Bus.ClaimRetention <= 0 {
		return fmt.Errorf("O008_BUS_CLAIM_RETENTION must be positive, got %s", c.Bus.ClaimRetention)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("O008_API_PORT out of range: %d", c.API.Port)
	}

	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("O008_DB_URL is required when O008_STORE=%s", StorePostgres)
		}
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, StoreMemory, StorePostgres)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.Log.Format)
	}
	return nil
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// Runtime returns the CommandRunner configuration.
func (b BusConfig) Runtime() runtime.Config {
	return runtime.Config{
		RequestCapacity:  b.RequestCapacity,
		ResponseCapacity: b.ResponseCapacity,
		RequestWait:      time.Duration(b.RequestWaitMS) * time.Millisecond,
		ResponseWait:     time.Duration(b.ResponseWaitMS) * time.Millisecond,
		MaxDispatch:      b.MaxDispatch,
	}
}

// Cleanup returns the claim cleanup configuration.
func (b BusConfig) Cleanup() runtime.CleanupConfig {
	return runtime.CleanupConfig{
		Interval:       b.CleanupInterval,
		ClaimRetention: b.ClaimRetention,
	}
}

// Kernel returns the CommandQueue configuration.
func (q QueueConfig) Kernel() kernel.QueueConfig {
	return kernel.QueueConfig{
		DispatchWait: time.Duration(q.DispatchWaitMS) * time.Millisecond,
		JoinWait:     time.Duration(q.JoinWaitMS) * time.Millisecond,
		MaxInFlight:  q.MaxInFlight,
		Capacity:     q.Capacity,
	}
}

// Postgres returns the store connection configuration.
func (d DatabaseConfig) Postgres() store.PostgresConfig {
	return store.PostgresConfig{URL: d.URL, MaxConns: d.MaxConns}
}

// OpenStore opens the configured store. For postgres it applies pending
// migrations when Database.Migrate is set.
func (c *Config) OpenStore(ctx context.Context, logger store.Logger) (store.Store, error) {
	if c.Store != StorePostgres {
		return store.NewMemory(), nil
	}

	pg, err := store.OpenPostgres(ctx, c.Database.Postgres())
	if err != nil {
		return nil, err
	}
	if c.Database.Migrate {
		if _, err := store.Migrate(ctx, pg.Pool(), logger); err != nil {
			pg.Close()
			return nil, err
		}
	}
	return pg, nil
}

// Addr returns host:port.
func (a APIConfig) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Server returns the HTTP server configuration.
func (a APIConfig) Server() api.ServerConfig {
	return api.ServerConfig{
		ReadHeaderTimeout: a.ReadHeaderTimeout,
		ShutdownTimeout:   a.ShutdownTimeout,
	}
}

// Tracer returns the tracer configuration for the given build version.
func (t TracingConfig) Tracer(version string) observability.TracerConfig {
	return observability.TracerConfig{
		ServiceName:    t.ServiceName,
		ServiceVersion: version,
		Environment:    t.Environment,
		Endpoint:       t.Endpoint,
		Insecure:       t.Insecure,
		SampleRatio:    t.SampleRatio,
	}
}

// ToMap flattens the configuration for startup logging. Secrets are left out.
func (c *Config) ToMap() map[string]any {
	return map[string]any{
		"store":                  c.Store,
		"bus_request_capacity":   c.Bus.RequestCapacity,
		"bus_response_capacity":  c.Bus.ResponseCapacity,
		"bus_request_wait_ms":    c.Bus.RequestWaitMS,
		"bus_response_wait_ms":   c.Bus.ResponseWaitMS,
		"bus_max_dispatch":       c.Bus.MaxDispatch,
		"bus_claim_retention":    c.Bus.ClaimRetention.String(),
		"queue_dispatch_wait_ms": c.Queue.DispatchWaitMS,
		"queue_join_wait_ms":     c.Queue.JoinWaitMS,
		"queue_max_in_flight":    c.Queue.MaxInFlight,
		"api_addr":               c.API.Addr(),
		"db_migrate":             c.Database.Migrate,
		"tracing_enabled":        c.Tracing.Endpoint != "",
		"log_level":              c.Log.Level,
		"log_format":             c.Log.Format,
	}
}
