// Package config loads service settings from an optional YAML file and
// TASKTRACK_* environment variables. Environment wins over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable holding the YAML file path.
const EnvConfigPath = "TASKTRACK_CONFIG"

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Env       string          `yaml:"env"`
	HTTP      HTTPConfig      `yaml:"http"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Store     StoreConfig     `yaml:"store"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// Timeouts in seconds.
	ReadTimeout  int `yaml:"read_timeout"`
	WriteTimeout int `yaml:"write_timeout"`
	IdleTimeout  int `yaml:"idle_timeout"`
	// TrustProxy honours X-Forwarded-For for rate limit keys.
	TrustProxy bool `yaml:"trust_proxy"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

type StoreConfig struct {
	Driver         string `yaml:"driver"`
	DSN            string `yaml:"dsn"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	BlockInactive bool   `yaml:"block_inactive"`
}

type RateLimitConfig struct {
	Enabled   bool `yaml:"enabled"`
	Burst     int  `yaml:"burst"`
	PerSecond int  `yaml:"per_second"`
	// RedisURL switches to the shared fixed window limiter.
	RedisURL string `yaml:"redis_url"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type TracingConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Env: EnvProduction,
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  15,
			WriteTimeout: 15,
			IdleTimeout:  60,
		},
		GRPC:  GRPCConfig{Addr: ":9090"},
		Store: StoreConfig{Driver: StorePostgres},
		RateLimit: RateLimitConfig{
			Enabled:   true,
			Burst:     20,
			PerSecond: 10,
		},
		Logging: LoggingConfig{Level: "info"},
		Tracing: TracingConfig{ServiceName: "tasktrack-api"},
	}
}

// FromEnv loads the file named by TASKTRACK_CONFIG, if any, then the environment.
func FromEnv() (*Config, error) {
	return Load(os.Getenv(EnvConfigPath))
}

// Load reads path (skipped when empty), applies env overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
	var errs []error
	integer := func(name string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}

	str("TASKTRACK_ENV", &cfg.Env)
	str("TASKTRACK_HTTP_ADDR", &cfg.HTTP.Addr)
	boolean("TASKTRACK_TRUST_PROXY", &cfg.HTTP.TrustProxy)
	str("TASKTRACK_GRPC_ADDR", &cfg.GRPC.Addr)
	str("TASKTRACK_STORE_DRIVER", &cfg.Store.Driver)
	str("TASKTRACK_PG_DSN", &cfg.Store.DSN)
	boolean("TASKTRACK_MIGRATE_ON_START", &cfg.Store.MigrateOnStart)
	// Always override the secret from the environment in production.
	str("TASKTRACK_JWT_SECRET", &cfg.Auth.JWTSecret)
	boolean("TASKTRACK_BLOCK_INACTIVE", &cfg.Auth.BlockInactive)
	boolean("TASKTRACK_RATE_LIMIT_ENABLED", &cfg.RateLimit.Enabled)
	integer("TASKTRACK_RATE_LIMIT_BURST", &cfg.RateLimit.Burst)
	integer("TASKTRACK_RATE_LIMIT_PER_SECOND", &cfg.RateLimit.PerSecond)
	str("TASKTRACK_REDIS_URL", &cfg.RateLimit.RedisURL)
	str("TASKTRACK_LOG_LEVEL", &cfg.Logging.Level)
	str("TASKTRACK_OTLP_ENDPOINT", &cfg.Tracing.Endpoint)
	boolean("TASKTRACK_OTLP_INSECURE", &cfg.Tracing.Insecure)

	return errors.Join(errs...)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		errs = append(errs, fmt.Errorf("env must be %q or %q", EnvDevelopment, EnvProduction))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres driver (set TASKTRACK_PG_DSN)"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver must be %q or %q", StorePostgres, StoreMemory))
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required (set TASKTRACK_JWT_SECRET)"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Burst < 1 || c.RateLimit.PerSecond < 1) {
		errs = append(errs, errors.New("rate_limit.burst and rate_limit.per_second must be positive"))
	}
	return errors.Join(errs...)
}

// IsDevelopment enables verbose error bodies.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.HTTP.ReadTimeout) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.HTTP.WriteTimeout) * time.Second
}

func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.HTTP.IdleTimeout) * time.Second
}
