package resilience

import "context"

// Guard is one resilience layer around an operation.
type Guard interface {
	Execute(ctx context.Context, op func(context.Context) error) error
}

// Ensure the built-in patterns implement Guard.
var (
	_ Guard = (*Retry)(nil)
	_ Guard = (*CircuitBreaker)(nil)
	_ Guard = (*RateLimiter)(nil)
)

// Executor runs one auth-service call through the configured guards,
// outermost first: rate limiter, circuit breaker, retry.
//
// The limiter takes one token and the breaker records one outcome per
// logical call, however many attempts the retry policy makes. Per-attempt
// timeouts belong to the transport, which closes the socket on expiry.
type Executor struct {
	rateLimiter    *RateLimiter
	circuitBreaker *CircuitBreaker
	retry          *Retry

	guards []Guard
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates an executor. Without options it calls op directly.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	if e.rateLimiter != nil {
		e.guards = append(e.guards, e.rateLimiter)
	}
	if e.circuitBreaker != nil {
		e.guards = append(e.guards, e.circuitBreaker)
	}
	if e.retry != nil {
		e.guards = append(e.guards, e.retry)
	}
	return e
}

// WithCircuitBreaker adds a circuit breaker.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.circuitBreaker = cb }
}

// WithRetry adds a retry policy.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) { e.retry = r }
}

// WithRateLimiter adds a client-side rate limiter.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) { e.rateLimiter = rl }
}

// Retry returns the configured retry policy, or nil.
func (e *Executor) Retry() *Retry { return e.retry }

// CircuitBreaker returns the configured circuit breaker, or nil.
func (e *Executor) CircuitBreaker() *CircuitBreaker { return e.circuitBreaker }

// RateLimiter returns the configured rate limiter, or nil.
func (e *Executor) RateLimiter() *RateLimiter { return e.rateLimiter }

// Execute runs op through every guard.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	return e.run(ctx, 0, op)
}

func (e *Executor) run(ctx context.Context, i int, op func(context.Context) error) error {
	if i == len(e.guards) {
		return op(ctx)
	}
	return e.guards[i].Execute(ctx, func(ctx context.Context) error {
		return e.run(ctx, i+1, op)
	})
}
