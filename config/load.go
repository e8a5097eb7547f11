package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/jonwraymond/jatpclient/cache"
	"github.com/jonwraymond/jatpclient/secret"
)

// EnvPrefix prefixes environment overrides: tcp.persistent is read from
// JATP_TCP_PERSISTENT.
const EnvPrefix = "JATP"

var tlsKeys = []string{"enabled", "ca_file", "cert_file", "key_file", "server_name", "insecure_skip_verify"}

// unboundKeys have no default but must still be visible to env overrides.
var unboundKeys = []string{
	"project_id", "api_key",
	"auth.jwt_token", "auth.service_name", "auth.service_secret",
	"redis.password",
	"observe.tracing.endpoint", "observe.metrics.endpoint",
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("address", "localhost:50052")
	v.SetDefault("tcp.persistent", true)
	v.SetDefault("tcp.max_frame_size", 4<<20)
	v.SetDefault("timeout.connect", 10.0)
	v.SetDefault("timeout.request", 30.0)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff", 0.1)
	v.SetDefault("retry.max_backoff", 5.0)
	v.SetDefault("circuit_breaker.enabled", false)
	v.SetDefault("circuit_breaker.max_failures", 5)
	v.SetDefault("circuit_breaker.reset_timeout", 30.0)
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.rate", 100.0)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("rate_limit.wait", false)
	v.SetDefault("key_cache.ttl", 3600.0)
	v.SetDefault("key_cache.max_size", 100)
	v.SetDefault("key_cache.driver", DriverMemory)
	v.SetDefault("key_cache.cleanup_interval", 0.0)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", cache.DefaultRedisPrefix)
	v.SetDefault("observe.service_name", "jatp-client")
	v.SetDefault("observe.log_level", "info")
	v.SetDefault("observe.tracing.enabled", false)
	v.SetDefault("observe.tracing.exporter", "none")
	v.SetDefault("observe.tracing.sample_pct", 1.0)
	v.SetDefault("observe.tracing.insecure", false)
	v.SetDefault("observe.metrics.enabled", false)
	v.SetDefault("observe.metrics.exporter", "none")
	v.SetDefault("observe.metrics.insecure", false)
}

// Options tune Load.
type Options struct {
	// Resolver resolves credential references.
	// Default: secret.NewDefaultResolver(nil)
	Resolver *secret.Resolver

	// Viper is used instead of a fresh instance, so callers can bind
	// command-line flags before loading.
	Viper *viper.Viper
}

// Load reads path (optional), applies JATP_ environment overrides and
// defaults, folds a legacy top-level tls block into tcp.tls, resolves
// credentials and validates the result.
func Load(ctx context.Context, path string, opts Options) (*Config, error) {
	v := opts.Viper
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range unboundKeys {
		_ = v.BindEnv(k)
	}
	for _, k := range tlsKeys {
		_ = v.BindEnv("tcp.tls." + k)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	foldLegacyTLS(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	resolver := opts.Resolver
	if resolver == nil {
		r, err := secret.NewDefaultResolver(nil)
		if err != nil {
			return nil, err
		}
		resolver = r
	}
	if err := cfg.ResolveSecrets(ctx, resolver); err != nil {
		return nil, err
	}

	cfg.KeyCache.Driver = strings.ToLower(strings.TrimSpace(cfg.KeyCache.Driver))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// foldLegacyTLS copies a top-level tls block under tcp.tls. Keys already
// set under tcp.tls, in the file or the environment, are kept.
func foldLegacyTLS(v *viper.Viper) {
	if !v.IsSet("tls") {
		return
	}
	for k, val := range v.GetStringMap("tls") {
		key := "tcp.tls." + strings.ToLower(k)
		if !v.IsSet(key) {
			v.Set(key, val)
		}
	}
}

// ResolveSecrets resolves credential fields in place. TLS file paths only
// get ${VAR} expansion; a secretref there would yield file contents.
func (c *Config) ResolveSecrets(ctx context.Context, r *secret.Resolver) error {
	err := r.ResolveFields(ctx, map[string]*string{
		"api_key":             &c.APIKey,
		"auth.jwt_token":      &c.Auth.JWTToken,
		"auth.service_name":   &c.Auth.ServiceName,
		"auth.service_secret": &c.Auth.ServiceSecret,
		"redis.password":      &c.Redis.Password,
	})
	if err != nil {
		return err
	}

	for name, p := range map[string]*string{
		"tcp.tls.ca_file":   &c.TCP.TLS.CAFile,
		"tcp.tls.cert_file": &c.TCP.TLS.CertFile,
		"tcp.tls.key_file":  &c.TCP.TLS.KeyFile,
	} {
		expanded, err := secret.ExpandEnvStrict(*p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", name, err)
		}
		*p = expanded
	}
	return nil
}
