// Package resilience provides the retry policy and the failure-isolation
// patterns wrapped around each auth-service call.
//
// # Patterns
//
//   - Retry: re-runs an operation on retryable failures with exponential
//     backoff, min(initial*2^(n-1), max), plus up to 25% jitter. Retryability
//     defaults to autherr.IsRetryable: connection failures and a small
//     allow-list of wire codes.
//
//   - Circuit Breaker: stops calling a service whose transport keeps
//     failing. Only connection-kind errors count as failures.
//
//   - Rate Limiter: a client-side token bucket; rejections are
//     autherr.KindRateLimit errors with limit/remaining/window details.
//
// # Usage
//
//	retry := resilience.NewRetry(resilience.RetryConfig{
//	    MaxAttempts:    3,
//	    InitialBackoff: 100 * time.Millisecond,
//	    MaxBackoff:     5 * time.Second,
//	})
//
//	executor := resilience.NewExecutor(
//	    resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 50})),
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})),
//	    resilience.WithRetry(retry),
//	)
//
//	err := executor.Execute(ctx, func(ctx context.Context) error {
//	    return roundTrip(ctx)
//	})
package resilience
