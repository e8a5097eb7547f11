package resilience

import "github.com/jonwraymond/jatpclient/autherr"

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	// It is a connection-kind error: the service is treated as unreachable.
	ErrCircuitOpen = autherr.New(autherr.KindConnection, "resilience: circuit breaker is open")

	// ErrRateLimitExceeded is returned when the local rate limit is exceeded.
	ErrRateLimitExceeded = autherr.New(autherr.KindRateLimit, "resilience: client rate limit exceeded")
)
