package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/jatpclient/cache"
	"github.com/jonwraymond/jatpclient/client"
	"github.com/jonwraymond/jatpclient/observe"
	"github.com/jonwraymond/jatpclient/protocol"
	"github.com/jonwraymond/jatpclient/resilience"
	"github.com/jonwraymond/jatpclient/transport"
)

// Key cache drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config is the normalized client configuration.
type Config struct {
	// Address is host[:port] of the auth service.
	// Default: "localhost:50052"
	Address string `mapstructure:"address"`

	// ProjectID is the default project for public-key lookups.
	ProjectID string `mapstructure:"project_id"`

	// APIKey is kept for API-key validation helpers. It is never sent on
	// the wire as envelope auth.
	APIKey string `mapstructure:"api_key"`

	Auth           AuthConfig           `mapstructure:"auth"`
	TCP            TCPConfig            `mapstructure:"tcp"`
	Timeout        TimeoutConfig        `mapstructure:"timeout"`
	Retry          RetryConfig          `mapstructure:"retry"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	KeyCache       KeyCacheConfig       `mapstructure:"key_cache"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Observe        ObserveConfig        `mapstructure:"observe"`
}

// AuthConfig holds the default envelope credentials. At most one of
// JWTToken or the service pair may be set.
type AuthConfig struct {
	JWTToken      string `mapstructure:"jwt_token"`
	ServiceName   string `mapstructure:"service_name"`
	ServiceSecret string `mapstructure:"service_secret"`
}

// TCPConfig configures the JATP connection.
type TCPConfig struct {
	// Persistent keeps one connection open across calls; false opens a
	// connection per call.
	// Default: true
	Persistent bool `mapstructure:"persistent"`

	// MaxFrameSize bounds one inbound line in bytes.
	// Default: 4 MiB
	MaxFrameSize int `mapstructure:"max_frame_size"`

	TLS TLSConfig `mapstructure:"tls"`
}

// TLSConfig mirrors transport.TLSSettings with file-friendly names.
type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	CAFile             string `mapstructure:"ca_file"`
	CertFile           string `mapstructure:"cert_file"`
	KeyFile            string `mapstructure:"key_file"`
	ServerName         string `mapstructure:"server_name"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// TimeoutConfig holds timeouts in seconds.
type TimeoutConfig struct {
	// Default: 10
	Connect float64 `mapstructure:"connect"`
	// Default: 30
	Request float64 `mapstructure:"request"`
}

// RetryConfig holds the retry policy; backoffs are in seconds.
type RetryConfig struct {
	// Default: 3
	MaxAttempts int `mapstructure:"max_attempts"`
	// Default: 0.1
	InitialBackoff float64 `mapstructure:"initial_backoff"`
	// Default: 5
	MaxBackoff float64 `mapstructure:"max_backoff"`
}

// CircuitBreakerConfig enables a breaker over connection failures.
type CircuitBreakerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Default: 5
	MaxFailures int `mapstructure:"max_failures"`
	// ResetTimeout is in seconds.
	// Default: 30
	ResetTimeout float64 `mapstructure:"reset_timeout"`
}

// RateLimitConfig enables a client-side token bucket.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Rate is calls per second.
	// Default: 100
	Rate float64 `mapstructure:"rate"`
	// Default: 10
	Burst int `mapstructure:"burst"`
	// Wait blocks for a token instead of failing fast.
	Wait bool `mapstructure:"wait"`
}

// KeyCacheConfig configures the public-key cache.
type KeyCacheConfig struct {
	// TTL is in seconds. Zero falls back to each key's own expiry.
	// Default: 3600
	TTL float64 `mapstructure:"ttl"`
	// MaxSize bounds cached projects. Zero is unbounded.
	// Default: 100
	MaxSize int `mapstructure:"max_size"`
	// Driver is memory or redis.
	// Default: "memory"
	Driver string `mapstructure:"driver"`
	// CleanupInterval runs a janitor every N seconds. Zero disables it.
	CleanupInterval float64 `mapstructure:"cleanup_interval"`
}

// RedisConfig is used when KeyCache.Driver is redis.
type RedisConfig struct {
	// Default: "localhost"
	Host string `mapstructure:"host"`
	// Default: 6379
	Port     int    `mapstructure:"port"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	// Prefix namespaces cache keys.
	// Default: cache.DefaultRedisPrefix
	Prefix string `mapstructure:"prefix"`
}

// ObserveConfig configures telemetry.
type ObserveConfig struct {
	// Default: "jatp-client"
	ServiceName string `mapstructure:"service_name"`
	// Default: "info"
	LogLevel string `mapstructure:"log_level"`

	Tracing struct {
		Enabled   bool    `mapstructure:"enabled"`
		Exporter  string  `mapstructure:"exporter"`
		SamplePct float64 `mapstructure:"sample_pct"`
		Endpoint  string  `mapstructure:"endpoint"`
		Insecure  bool    `mapstructure:"insecure"`
	} `mapstructure:"tracing"`

	Metrics struct {
		Enabled  bool   `mapstructure:"enabled"`
		Exporter string `mapstructure:"exporter"`
		Endpoint string `mapstructure:"endpoint"`
		Insecure bool   `mapstructure:"insecure"`
	} `mapstructure:"metrics"`
}

// Validate checks cross-field constraints. TLS file checks are left to
// transport.TLSSettings.Validate, which runs when the client is built.
func (c *Config) Validate() error {
	if _, _, err := transport.ParseAddress(c.Address); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if c.Timeout.Connect <= 0 || c.Timeout.Request <= 0 {
		return ErrInvalidTimeout
	}
	if c.Retry.MaxAttempts < 1 || c.Retry.InitialBackoff <= 0 || c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return fmt.Errorf("%w: max_attempts=%d initial_backoff=%v max_backoff=%v",
			ErrInvalidRetry, c.Retry.MaxAttempts, c.Retry.InitialBackoff, c.Retry.MaxBackoff)
	}

	if c.Auth.JWTToken != "" && (c.Auth.ServiceName != "" || c.Auth.ServiceSecret != "") {
		return ErrConflictingAuth
	}
	if (c.Auth.ServiceName == "") != (c.Auth.ServiceSecret == "") {
		return ErrIncompleteService
	}

	if c.KeyCache.TTL < 0 || c.KeyCache.MaxSize < 0 || c.KeyCache.CleanupInterval < 0 {
		return ErrInvalidKeyCache
	}
	switch c.KeyCache.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.Host == "" || c.Redis.Port <= 0 {
			return ErrInvalidRedisAddress
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.KeyCache.Driver)
	}

	if c.RateLimit.Enabled && (c.RateLimit.Rate <= 0 || c.RateLimit.Burst <= 0) {
		return ErrInvalidRateLimit
	}

	obs := c.ObserveConfig()
	return obs.Validate()
}

// Endpoint builds the transport endpoint. A legacy top-level tls block
// has already been folded into TCP.TLS by Load.
func (c *Config) Endpoint() (transport.Endpoint, error) {
	host, port, err := transport.ParseAddress(c.Address)
	if err != nil {
		return transport.Endpoint{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	ep := transport.Endpoint{
		Host:           host,
		Port:           port,
		Persistent:     c.TCP.Persistent,
		ConnectTimeout: Seconds(c.Timeout.Connect),
		RequestTimeout: Seconds(c.Timeout.Request),
		MaxFrameSize:   c.TCP.MaxFrameSize,
	}
	if c.TCP.TLS.Enabled {
		ep.TLS = &transport.TLSSettings{
			Enabled:            true,
			CAFile:             c.TCP.TLS.CAFile,
			CertFile:           c.TCP.TLS.CertFile,
			KeyFile:            c.TCP.TLS.KeyFile,
			ServerName:         c.TCP.TLS.ServerName,
			InsecureSkipVerify: c.TCP.TLS.InsecureSkipVerify,
		}
	}
	return ep, nil
}

// RetryConfig converts the retry section.
func (c *Config) RetryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    c.Retry.MaxAttempts,
		InitialBackoff: Seconds(c.Retry.InitialBackoff),
		MaxBackoff:     Seconds(c.Retry.MaxBackoff),
	}
}

// CachePolicy converts the key cache section.
func (c *Config) CachePolicy() cache.Policy {
	return cache.Policy{
		TTL:     Seconds(c.KeyCache.TTL),
		MaxSize: c.KeyCache.MaxSize,
	}
}

// Credentials returns the default envelope credentials.
func (c *Config) Credentials() protocol.Credentials {
	return protocol.Credentials{
		JWTToken:      c.Auth.JWTToken,
		ServiceName:   c.Auth.ServiceName,
		ServiceSecret: c.Auth.ServiceSecret,
	}
}

// ClientConfig assembles client.Config. The key store is built separately
// by NewKeyStore and passed with client.WithKeyStore.
func (c *Config) ClientConfig() (client.Config, error) {
	ep, err := c.Endpoint()
	if err != nil {
		return client.Config{}, err
	}
	cc := client.Config{
		Endpoint:    ep,
		Retry:       c.RetryConfig(),
		Credentials: c.Credentials(),
		ProjectID:   c.ProjectID,
		KeyCache:    c.CachePolicy(),
	}
	if c.CircuitBreaker.Enabled {
		cc.CircuitBreaker = &resilience.CircuitBreakerConfig{
			MaxFailures:  c.CircuitBreaker.MaxFailures,
			ResetTimeout: Seconds(c.CircuitBreaker.ResetTimeout),
		}
	}
	if c.RateLimit.Enabled {
		cc.RateLimit = &resilience.RateLimiterConfig{
			Rate:        c.RateLimit.Rate,
			Burst:       c.RateLimit.Burst,
			WaitOnLimit: c.RateLimit.Wait,
		}
	}
	return cc, nil
}

// RedisOptions returns go-redis options for the redis driver.
func (c *Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     net.JoinHostPort(c.Redis.Host, strconv.Itoa(c.Redis.Port)),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}

// NewKeyStore builds the configured key store. For the redis driver it
// also returns the Redis client, which the caller owns and must close;
// for memory the client is nil.
func (c *Config) NewKeyStore(opts ...cache.Option) (cache.KeyStore, redis.UniversalClient, error) {
	policy := c.CachePolicy()
	if err := policy.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidKeyCache, err)
	}

	switch c.KeyCache.Driver {
	case DriverMemory, "":
		return cache.NewMemoryKeyCache(policy, opts...), nil, nil
	case DriverRedis:
		rdb := redis.NewClient(c.RedisOptions())
		store, err := cache.NewRedisKeyCache(rdb, c.Redis.Prefix, policy, opts...)
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return store, rdb, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownDriver, c.KeyCache.Driver)
	}
}

// ObserveConfig converts the observe section.
func (c *Config) ObserveConfig() observe.Config {
	o := c.Observe
	return observe.Config{
		ServiceName: o.ServiceName,
		Tracing: observe.TracingConfig{
			Enabled:   o.Tracing.Enabled,
			Exporter:  o.Tracing.Exporter,
			SamplePct: o.Tracing.SamplePct,
			Endpoint:  o.Tracing.Endpoint,
			Insecure:  o.Tracing.Insecure,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  o.Metrics.Enabled,
			Exporter: o.Metrics.Exporter,
			Endpoint: o.Metrics.Endpoint,
			Insecure: o.Metrics.Insecure,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   strings.ToLower(o.LogLevel),
		},
	}
}

// Seconds converts fractional seconds to a Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
