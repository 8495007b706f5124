// Package config provides configuration management for the clothes API server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	DefaultServerPort      = 3000
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsEnabled  = true
	DefaultStoreBackend    = BackendFile
	DefaultStorePath       = "db.json"
	DefaultRateLimitRPS    = 50.0
	DefaultRateLimitBurst  = 100
	DefaultRateLimitIdle   = 10 * time.Minute
	DefaultCORSMaxAge      = 86400
)

// Store backends.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
)

// DefaultAllowedOrigins are the browser origins of the storefront frontends.
var DefaultAllowedOrigins = []string{
	"http://localhost:4200",
	"https://miniapp-frontend.netlify.app",
}

// EnvPrefix prefixes every environment variable, e.g. APP_SERVER_PORT.
const EnvPrefix = "APP"

// EnvPort is the platform port variable honoured when APP_SERVER_PORT is unset.
const EnvPort = "PORT"

// Configuration keys.
const (
	KeyServerPort           = "server.port"
	KeyShutdownTimeout      = "server.shutdown_timeout"
	KeyLogLevel             = "log.level"
	KeyMetricsEnabled       = "metrics.enabled"
	KeyStoreBackend         = "store.backend"
	KeyStorePath            = "store.path"
	KeyStoreCreateIfMissing = "store.create_if_missing"
	KeyCORSAllowedOrigins   = "cors.allowed_origins"
	KeyCORSMaxAge           = "cors.max_age"
	KeyRateLimitEnabled     = "ratelimit.enabled"
	KeyRateLimitRPS         = "ratelimit.rps"
	KeyRateLimitBurst       = "ratelimit.burst"
	KeyRateLimitTrustProxy  = "ratelimit.trust_proxy"
	KeyRateLimitIdleTTL     = "ratelimit.idle_ttl"
)

// Config holds the application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Store     StoreConfig     `mapstructure:"store"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// MetricsConfig toggles the Prometheus endpoint and middleware.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// StoreConfig selects and locates the document backend.
type StoreConfig struct {
	Backend         string `mapstructure:"backend"`
	Path            string `mapstructure:"path"`
	CreateIfMissing bool   `mapstructure:"create_if_missing"`
}

// CORSConfig holds the cross-origin allow-list.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxAge         int      `mapstructure:"max_age"`
}

// RateLimitConfig holds per-client rate limiting settings. TrustProxy keys
// clients by X-Forwarded-For and X-Real-IP instead of the peer address.
type RateLimitConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	RPS        float64       `mapstructure:"rps"`
	Burst      int           `mapstructure:"burst"`
	TrustProxy bool          `mapstructure:"trust_proxy"`
	IdleTTL    time.Duration `mapstructure:"idle_ttl"`
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidStoreBackend    = errors.New("store backend must be one of: file, memory")
	ErrMissingStorePath       = errors.New("store path must be set for the file backend")
	ErrInvalidOrigin          = errors.New("allowed origins must not contain empty entries")
	ErrInvalidCORSMaxAge      = errors.New("CORS max age must not be negative")
	ErrInvalidRateLimit       = errors.New("rate limit rps and burst must be positive when enabled")
	ErrInvalidRateLimitIdle   = errors.New("rate limit idle TTL must be positive when enabled")
)

// Load reads configuration with precedence: environment > config file > defaults.
// configFile is optional.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv(KeyServerPort, envName(KeyServerPort), EnvPort); err != nil {
		return nil, fmt.Errorf("binding %s: %w", KeyServerPort, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyServerPort, DefaultServerPort)
	v.SetDefault(KeyShutdownTimeout, DefaultShutdownTimeout)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyMetricsEnabled, DefaultMetricsEnabled)
	v.SetDefault(KeyStoreBackend, DefaultStoreBackend)
	v.SetDefault(KeyStorePath, DefaultStorePath)
	v.SetDefault(KeyStoreCreateIfMissing, false)
	v.SetDefault(KeyCORSAllowedOrigins, DefaultAllowedOrigins)
	v.SetDefault(KeyCORSMaxAge, DefaultCORSMaxAge)
	v.SetDefault(KeyRateLimitEnabled, false)
	v.SetDefault(KeyRateLimitRPS, DefaultRateLimitRPS)
	v.SetDefault(KeyRateLimitBurst, DefaultRateLimitBurst)
	v.SetDefault(KeyRateLimitTrustProxy, false)
	v.SetDefault(KeyRateLimitIdleTTL, DefaultRateLimitIdle)
}

// envName returns the environment variable bound to a configuration key.
func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Validate checks every configuration value and reports all problems at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		result = multierror.Append(result, ErrInvalidServerPort)
	}

	if c.Server.ShutdownTimeout <= 0 {
		result = multierror.Append(result, ErrInvalidShutdownTimeout)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		result = multierror.Append(result, ErrInvalidLogLevel)
	}

	switch c.Store.Backend {
	case BackendFile:
		if c.Store.Path == "" {
			result = multierror.Append(result, ErrMissingStorePath)
		}
	case BackendMemory:
	default:
		result = multierror.Append(result, ErrInvalidStoreBackend)
	}

	for _, origin := range c.CORS.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			result = multierror.Append(result, ErrInvalidOrigin)
			break
		}
	}

	if c.CORS.MaxAge < 0 {
		result = multierror.Append(result, ErrInvalidCORSMaxAge)
	}

	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1) {
		result = multierror.Append(result, ErrInvalidRateLimit)
	}

	if c.RateLimit.Enabled && c.RateLimit.IdleTTL <= 0 {
		result = multierror.Append(result, ErrInvalidRateLimitIdle)
	}

	return result.ErrorOrNil()
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
