package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/jonwraymond/jatpclient/autherr"
)

// Retry defaults.
const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
)

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int

	// InitialBackoff is the base delay before the first retry.
	// Default: 100ms
	InitialBackoff time.Duration

	// MaxBackoff caps the pre-jitter delay between retries.
	// Default: 5s
	MaxBackoff time.Duration

	// RetryIf determines if an error should trigger a retry.
	// Default: autherr.IsRetryable
	RetryIf func(err error) bool

	// OnRetry is called before each retry sleep with the failed attempt
	// number (1-indexed), its error and the delay about to be slept.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Validate checks the bounds a caller-supplied configuration must satisfy.
// Zero values are accepted; NewRetry replaces them with defaults.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 0 {
		return autherr.Newf(autherr.KindInvalidRequest,
			"resilience: max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.InitialBackoff < 0 {
		return autherr.Newf(autherr.KindInvalidRequest,
			"resilience: initial_backoff must be positive, got %v", c.InitialBackoff)
	}
	if c.MaxBackoff < 0 {
		return autherr.Newf(autherr.KindInvalidRequest,
			"resilience: max_backoff must be positive, got %v", c.MaxBackoff)
	}
	if c.InitialBackoff > 0 && c.MaxBackoff > 0 && c.MaxBackoff < c.InitialBackoff {
		return autherr.Newf(autherr.KindInvalidRequest,
			"resilience: max_backoff (%v) must not be less than initial_backoff (%v)",
			c.MaxBackoff, c.InitialBackoff)
	}
	return nil
}

// Retry implements retry with exponential backoff and jitter.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = DefaultInitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = DefaultMaxBackoff
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = config.InitialBackoff
	}
	if config.RetryIf == nil {
		config.RetryIf = autherr.IsRetryable
	}

	return &Retry{config: config}
}

// Execute runs the operation with retry logic.
//
// A non-retryable failure is returned after one attempt. When attempts run
// out the last failure is returned. A cancelled context interrupts the
// backoff sleep and returns the last failure translated as a connection
// error.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.config.RetryIf(err) {
			return err
		}
		if attempt >= r.config.MaxAttempts {
			break
		}

		delay := r.Delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}
		if notify := retryNotifyFromContext(ctx); notify != nil {
			notify(attempt, err, delay)
		}

		if err := sleep(ctx, delay); err != nil {
			return autherr.Wrap(autherr.KindConnection, err,
				"resilience: retry interrupted: "+lastErr.Error())
		}
	}

	return lastErr
}

// Backoff returns the pre-jitter delay after attempt n (1-indexed):
// min(InitialBackoff * 2^(n-1), MaxBackoff).
func (r *Retry) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := r.config.InitialBackoff
	for i := 1; i < attempt; i++ {
		if delay >= r.config.MaxBackoff/2 {
			return r.config.MaxBackoff
		}
		delay *= 2
	}
	if delay > r.config.MaxBackoff {
		delay = r.config.MaxBackoff
	}
	return delay
}

// Delay returns Backoff(attempt) plus jitter drawn uniformly from
// [0, Backoff(attempt)/4].
func (r *Retry) Delay(attempt int) time.Duration {
	delay := r.Backoff(attempt)
	if quarter := int64(delay / 4); quarter > 0 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += time.Duration(rand.Int64N(quarter + 1))
	}
	return delay
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type retryNotifyKey struct{}

// WithRetryNotify returns a context that makes Retry.Execute call fn before
// each backoff sleep, in addition to RetryConfig.OnRetry. It scopes a hook
// to one logical call, in the manner of httptrace.WithClientTrace.
func WithRetryNotify(ctx context.Context, fn func(attempt int, err error, delay time.Duration)) context.Context {
	if fn == nil {
		return ctx
	}
	return context.WithValue(ctx, retryNotifyKey{}, fn)
}

func retryNotifyFromContext(ctx context.Context) func(int, error, time.Duration) {
	fn, _ := ctx.Value(retryNotifyKey{}).(func(attempt int, err error, delay time.Duration))
	return fn
}
