package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/atrium/pkg/authz"
	"github.com/platinummonkey/atrium/pkg/identity"
	"github.com/platinummonkey/atrium/pkg/invites"
	"github.com/platinummonkey/atrium/pkg/observability"
	"github.com/platinummonkey/atrium/pkg/storage"
)

// FileEnv names the environment variable pointing at an optional YAML config file
const FileEnv = "ATRIUM_CONFIG_FILE"

// Cache backends
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Invites       InvitesConfig       `yaml:"invites"`
	Cache         CacheConfig         `yaml:"cache"`
	OIDC          OIDCConfig          `yaml:"oidc"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort    string        `yaml:"health_port"`
	HealthTimeout time.Duration `yaml:"health_timeout"`

	// Requests per minute on the invite token routes, per user or client IP
	TokenRateLimit int `yaml:"token_rate_limit"`
}

// DatabaseConfig selects the SQL driver and pool
type DatabaseConfig struct {
	Driver      string        `yaml:"driver"`
	URL         string        `yaml:"url"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
}

// RedisConfig is optional; an empty URL runs without Redis
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
	PoolSize   int    `yaml:"pool_size"`
	KeyPrefix  string `yaml:"key_prefix"`
}

// InvitesConfig controls invitation validity and the expiry sweep
type InvitesConfig struct {
	Validity      time.Duration `yaml:"validity"`
	SweepSchedule string        `yaml:"sweep_schedule"`
	SweepLockTTL  time.Duration `yaml:"sweep_lock_ttl"`
	// SweepInProcess runs the sweeper inside the API server
	SweepInProcess bool `yaml:"sweep_in_process"`
}

// CacheConfig controls the permission cache
type CacheConfig struct {
	Backend string        `yaml:"backend"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
}

// OIDCConfig configures ID token verification
type OIDCConfig struct {
	IssuerURL string `yaml:"issuer_url"`
	ClientID  string `yaml:"client_id"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool          `yaml:"otel_enabled"`
	OTelEndpoint       string        `yaml:"otel_endpoint"`
	OTelServiceName    string        `yaml:"otel_service_name"`
	OTelServiceVersion string        `yaml:"otel_service_version"`
	OTelInsecure       bool          `yaml:"otel_insecure"`
	OTelSampleRatio    float64       `yaml:"otel_sample_ratio"`
	OTelExportInterval time.Duration `yaml:"otel_export_interval"`
	OTelBatchTimeout   time.Duration `yaml:"otel_batch_timeout"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	db := storage.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
			HealthTimeout:   observability.DefaultReadinessTimeout,
			TokenRateLimit:  30,
		},
		Database: DatabaseConfig{
			Driver:      db.Driver,
			URL:         db.URL,
			MaxConns:    db.MaxConns,
			MinConns:    db.MinConns,
			Timeout:     db.Timeout,
			MaxLifetime: db.MaxLifetime,
			MaxIdleTime: db.MaxIdleTime,
		},
		Redis: RedisConfig{
			MaxRetries: 3,
			PoolSize:   10,
			KeyPrefix:  "atrium",
		},
		Invites: InvitesConfig{
			Validity:       invites.DefaultValidity,
			SweepSchedule:  "@every 5m",
			SweepLockTTL:   time.Minute,
			SweepInProcess: true,
		},
		Cache: CacheConfig{
			Backend: CacheBackendMemory,
			Size:    10000,
			TTL:     5 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			LogFormat:          observability.FormatJSON,
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "atrium",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// LoadConfig loads defaults, overlays the YAML file named by ATRIUM_CONFIG_FILE, then
// applies ATRIUM_* environment variables
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile overlays the YAML document at path onto c; absent keys keep their values
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("ATRIUM_HOST", s.Host)
	s.Port = getEnv("ATRIUM_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("ATRIUM_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("ATRIUM_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("ATRIUM_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("ATRIUM_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("ATRIUM_HEALTH_PORT", s.HealthPort)
	s.HealthTimeout = getEnvDuration("ATRIUM_HEALTH_TIMEOUT", s.HealthTimeout)
	s.TokenRateLimit = getEnvInt("ATRIUM_TOKEN_RATE_LIMIT", s.TokenRateLimit)

	d := &c.Database
	d.Driver = getEnv("ATRIUM_DB_DRIVER", d.Driver)
	d.URL = getEnv("ATRIUM_DB_URL", d.URL)
	d.MaxConns = getEnvInt("ATRIUM_DB_MAX_CONNS", d.MaxConns)
	d.MinConns = getEnvInt("ATRIUM_DB_MIN_CONNS", d.MinConns)
	d.Timeout = getEnvDuration("ATRIUM_DB_TIMEOUT", d.Timeout)
	d.MaxLifetime = getEnvDuration("ATRIUM_DB_MAX_LIFETIME", d.MaxLifetime)
	d.MaxIdleTime = getEnvDuration("ATRIUM_DB_MAX_IDLE_TIME", d.MaxIdleTime)

	r := &c.Redis
	r.URL = getEnv("ATRIUM_REDIS_URL", r.URL)
	r.Password = getEnv("ATRIUM_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("ATRIUM_REDIS_DB", r.DB)
	r.MaxRetries = getEnvInt("ATRIUM_REDIS_MAX_RETRIES", r.MaxRetries)
	r.PoolSize = getEnvInt("ATRIUM_REDIS_POOL_SIZE", r.PoolSize)
	r.KeyPrefix = getEnv("ATRIUM_REDIS_KEY_PREFIX", r.KeyPrefix)

	i := &c.Invites
	i.Validity = getEnvDuration("ATRIUM_INVITE_VALIDITY", i.Validity)
	i.SweepSchedule = getEnv("ATRIUM_SWEEP_SCHEDULE", i.SweepSchedule)
	i.SweepLockTTL = getEnvDuration("ATRIUM_SWEEP_LOCK_TTL", i.SweepLockTTL)
	i.SweepInProcess = getEnvBool("ATRIUM_SWEEP_IN_PROCESS", i.SweepInProcess)

	k := &c.Cache
	k.Backend = getEnv("ATRIUM_CACHE_BACKEND", k.Backend)
	k.Size = getEnvInt("ATRIUM_CACHE_SIZE", k.Size)
	k.TTL = getEnvDuration("ATRIUM_CACHE_TTL", k.TTL)

	c.OIDC.IssuerURL = getEnv("ATRIUM_OIDC_ISSUER_URL", c.OIDC.IssuerURL)
	c.OIDC.ClientID = getEnv("ATRIUM_OIDC_CLIENT_ID", c.OIDC.ClientID)

	o := &c.Observability
	o.LogLevel = getEnv("ATRIUM_LOG_LEVEL", o.LogLevel)
	o.LogFormat = getEnv("ATRIUM_LOG_FORMAT", o.LogFormat)
	o.MetricsEnabled = getEnvBool("ATRIUM_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("ATRIUM_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("ATRIUM_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("ATRIUM_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("ATRIUM_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("ATRIUM_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("ATRIUM_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
	o.OTelExportInterval = getEnvDuration("ATRIUM_OTEL_EXPORT_INTERVAL", o.OTelExportInterval)
	o.OTelBatchTimeout = getEnvDuration("ATRIUM_OTEL_BATCH_TIMEOUT", o.OTelBatchTimeout)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if err := c.Storage().Validate(); err != nil {
		return err
	}

	if c.Invites.Validity <= 0 {
		return fmt.Errorf("invite validity must be positive")
	}
	if c.Invites.SweepSchedule == "" {
		return fmt.Errorf("invite sweep schedule is required")
	}

	switch c.Cache.Backend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis URL is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory or redis)", c.Cache.Backend)
	}

	if c.OIDC.IssuerURL != "" || c.OIDC.ClientID != "" {
		if err := c.Identity().Validate(); err != nil {
			return err
		}
	}

	if _, err := logrus.ParseLevel(c.Observability.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Observability.LogLevel)
	}
	switch strings.ToLower(c.Observability.LogFormat) {
	case observability.FormatJSON, observability.FormatText:
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Observability.LogFormat)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

// Storage returns the database connection settings
func (c *Config) Storage() storage.Config {
	d := c.Database
	return storage.Config{
		Driver:      d.Driver,
		URL:         d.URL,
		MaxConns:    d.MaxConns,
		MinConns:    d.MinConns,
		Timeout:     d.Timeout,
		MaxLifetime: d.MaxLifetime,
		MaxIdleTime: d.MaxIdleTime,
	}
}

// RedisClient returns the Redis connection settings
func (c *Config) RedisClient() storage.RedisConfig {
	r := c.Redis
	return storage.RedisConfig{
		URL:        r.URL,
		Password:   r.Password,
		DB:         r.DB,
		MaxRetries: r.MaxRetries,
		PoolSize:   r.PoolSize,
	}
}

// Identity returns the OIDC verifier settings
func (c *Config) Identity() identity.OIDCConfig {
	return identity.OIDCConfig{IssuerURL: c.OIDC.IssuerURL, ClientID: c.OIDC.ClientID}
}

// PermissionCache returns the permission cache sizing
func (c *Config) PermissionCache() authz.CacheConfig {
	return authz.CacheConfig{Size: c.Cache.Size, TTL: c.Cache.TTL}
}

// Sweeper returns the expiry sweep schedule
func (c *Config) Sweeper() invites.SweeperConfig {
	return invites.SweeperConfig{Schedule: c.Invites.SweepSchedule, LeaseTTL: c.Invites.SweepLockTTL}
}

// OTel returns the OpenTelemetry exporter settings
func (c *Config) OTel() observability.OTelConfig {
	o := c.Observability
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
		ExportInterval: o.OTelExportInterval,
		BatchTimeout:   o.OTelBatchTimeout,
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
