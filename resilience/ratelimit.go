package resilience

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonwraymond/jatpclient/autherr"
)

// RateLimiterConfig configures the client-side rate limiter.
type RateLimiterConfig struct {
	// Rate is the number of calls allowed per second.
	// Default: 100
	Rate float64

	// Burst is the maximum burst size.
	// Default: 10
	Burst int

	// WaitOnLimit waits for a token instead of returning an error.
	// Default: false
	WaitOnLimit bool

	// MaxWait caps how long a call may queue for a token.
	// Default: 1 second
	MaxWait time.Duration

	// Now is the clock used for refills.
	// Default: time.Now
	Now func() time.Time
}

// RateLimiter keeps a client below the auth service's own limit.
// Rejections carry the same details shape as a server-side
// ERROR_RATE_LIMIT_EXCEEDED.
type RateLimiter struct {
	config RateLimiterConfig
	bucket atomic.Pointer[rate.Limiter]
}

// NewRateLimiter creates a new rate limiter with a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 100
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	if config.MaxWait <= 0 {
		config.MaxWait = time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	rl := &RateLimiter{config: config}
	rl.Reset()
	return rl
}

// Allow takes one token if available.
func (rl *RateLimiter) Allow() bool {
	return rl.AllowN(1)
}

// AllowN takes n tokens if available.
func (rl *RateLimiter) AllowN(n int) bool {
	return rl.bucket.Load().AllowN(rl.config.Now(), n)
}

// Wait blocks until a token is available, MaxWait elapses or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.WaitN(ctx, 1)
}

// WaitN reserves n tokens and sleeps until they are due. A reservation
// that would take longer than MaxWait is cancelled and reported as a
// rate limit rejection.
func (rl *RateLimiter) WaitN(ctx context.Context, n int) error {
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}

	now := rl.config.Now()
	r := rl.bucket.Load().ReserveN(now, n)
	if !r.OK() {
		return rl.exceeded()
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return nil
	}
	if delay > rl.config.MaxWait {
		r.CancelAt(now)
		return rl.exceeded()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		r.CancelAt(rl.config.Now())
		return cancelled(ctx.Err())
	case <-timer.C:
		return nil
	}
}

// Execute runs op if the limiter admits it.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if rl.config.WaitOnLimit {
		if err := rl.Wait(ctx); err != nil {
			return err
		}
	} else if !rl.Allow() {
		return rl.exceeded()
	}
	return op(ctx)
}

// Tokens returns the current number of available tokens.
func (rl *RateLimiter) Tokens() float64 {
	return rl.bucket.Load().TokensAt(rl.config.Now())
}

// Reset refills the bucket.
func (rl *RateLimiter) Reset() {
	b := rate.NewLimiter(rate.Limit(rl.config.Rate), rl.config.Burst)
	b.SetBurstAt(rl.config.Now(), rl.config.Burst)
	rl.bucket.Store(b)
}

// exceeded builds the rejection; window is the seconds a drained bucket
// needs to refill.
func (rl *RateLimiter) exceeded() error {
	window := int64(math.Ceil(float64(rl.config.Burst) / rl.config.Rate))
	return autherr.Wrap(autherr.KindRateLimit, ErrRateLimitExceeded, "").WithDetails(map[string]any{
		"limit":     int64(rl.config.Burst),
		"remaining": int64(0),
		"window":    max(window, 1),
	})
}

func cancelled(err error) error {
	return autherr.Wrap(autherr.KindConnection, err, "resilience: rate limiter wait cancelled")
}
