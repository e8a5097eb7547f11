package config

import "errors"

// Sentinel errors for configuration loading.
var (
	ErrInvalidAddress      = errors.New("config: address is invalid")
	ErrInvalidTimeout      = errors.New("config: timeouts must be positive")
	ErrInvalidKeyCache     = errors.New("config: key cache settings are invalid")
	ErrUnknownDriver       = errors.New("config: unknown key cache driver")
	ErrConflictingAuth     = errors.New("config: jwt_token and service credentials are mutually exclusive")
	ErrIncompleteService   = errors.New("config: service_name and service_secret must be set together")
	ErrInvalidRetry        = errors.New("config: retry needs max_attempts >= 1 and 0 < initial_backoff <= max_backoff")
	ErrInvalidRateLimit    = errors.New("config: rate limit must be positive")
	ErrInvalidRedisAddress = errors.New("config: redis host and port are required")
)
