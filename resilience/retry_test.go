package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/jatpclient/autherr"
)

var (
	errTransient = autherr.New(autherr.KindConnection, "read timeout")
	errAuth      = autherr.FromWire(autherr.CodeAuthFailed, "bad credentials", nil)
)

func TestNewRetry(t *testing.T) {
	r := NewRetry(RetryConfig{})

	if r.config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", r.config.MaxAttempts)
	}
	if r.config.InitialBackoff != 100*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 100ms", r.config.InitialBackoff)
	}
	if r.config.MaxBackoff != 5*time.Second {
		t.Errorf("MaxBackoff = %v, want 5s", r.config.MaxBackoff)
	}
	if r.config.RetryIf == nil {
		t.Error("RetryIf not defaulted")
	}
}

func TestRetryConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RetryConfig
		wantErr bool
	}{
		{"zero", RetryConfig{}, false},
		{"valid", RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Second}, false},
		{"equal bounds", RetryConfig{MaxAttempts: 1, InitialBackoff: time.Second, MaxBackoff: time.Second}, false},
		{"negative attempts", RetryConfig{MaxAttempts: -1}, true},
		{"negative initial", RetryConfig{InitialBackoff: -time.Second}, true},
		{"max below initial", RetryConfig{InitialBackoff: time.Second, MaxBackoff: time.Millisecond}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, autherr.ErrInvalidRequest) {
				t.Errorf("Validate() error kind = %v, want invalid request", err)
			}
		})
	}
}

func TestRetry_SuccessOnFirstAttempt(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_SuccessOnRetry(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errTransient
		}
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_ExhaustedAttempts(t *testing.T) {
	for _, k := range []int{1, 2, 5} {
		r := NewRetry(RetryConfig{MaxAttempts: k, InitialBackoff: time.Millisecond})

		attempts := 0
		err := r.Execute(context.Background(), func(ctx context.Context) error {
			attempts++
			return errTransient
		})

		if err != errTransient {
			t.Errorf("k=%d: Execute() error = %v, want %v", k, err, errTransient)
		}
		if attempts != k {
			t.Errorf("k=%d: attempts = %d, want %d", k, attempts, k)
		}
	}
}

func TestRetry_NonRetryableOnce(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 5, InitialBackoff: time.Millisecond})

	for _, err := range []error{
		errAuth,
		errors.New("[AUTH_FAILED] bad creds"),
		autherr.FromWire(autherr.CodeNotFound, "missing", nil),
		autherr.New(autherr.KindProtocol, "missing request_id"),
	} {
		attempts := 0
		got := r.Execute(context.Background(), func(ctx context.Context) error {
			attempts++
			return err
		})
		if got != err {
			t.Errorf("Execute() error = %v, want %v", got, err)
		}
		if attempts != 1 {
			t.Errorf("%v: attempts = %d, want 1", err, attempts)
		}
	}
}

func TestRetry_RetriesAllowListedCodes(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond})

	for _, err := range []error{
		autherr.FromWire(autherr.CodeInternal, "boom", nil),
		autherr.FromWire(autherr.CodeRateLimitExceeded, "slow down", nil),
		errors.New("[INTERNAL_ERROR] boom"),
	} {
		attempts := 0
		_ = r.Execute(context.Background(), func(ctx context.Context) error {
			attempts++
			return err
		})
		if attempts != 2 {
			t.Errorf("%v: attempts = %d, want 2", err, attempts)
		}
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 10, InitialBackoff: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	start := time.Now()
	err := r.Execute(ctx, func(ctx context.Context) error {
		attempts++
		return errTransient
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled in chain", err)
	}
	if !autherr.IsConnection(err) {
		t.Errorf("Execute() error kind = %v, want connection", autherr.Translate(err).Kind)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("cancellation did not interrupt the backoff sleep")
	}
}

func TestRetry_RetryIf(t *testing.T) {
	retryableErr := errors.New("retryable")
	nonRetryableErr := errors.New("non-retryable")

	r := NewRetry(RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		RetryIf: func(err error) bool {
			return err == retryableErr
		},
	})

	t.Run("retryable error", func(t *testing.T) {
		attempts := 0
		err := r.Execute(context.Background(), func(ctx context.Context) error {
			attempts++
			return retryableErr
		})

		if err != retryableErr {
			t.Errorf("Execute() error = %v, want %v", err, retryableErr)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("non-retryable error", func(t *testing.T) {
		attempts := 0
		err := r.Execute(context.Background(), func(ctx context.Context) error {
			attempts++
			return nonRetryableErr
		})

		if err != nonRetryableErr {
			t.Errorf("Execute() error = %v, want %v", err, nonRetryableErr)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})
}

func TestRetry_OnRetry(t *testing.T) {
	type call struct {
		attempt int
		delay   time.Duration
	}
	var calls []call

	r := NewRetry(RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			calls = append(calls, call{attempt, delay})
		},
	})

	_ = r.Execute(context.Background(), func(ctx context.Context) error {
		return errTransient
	})

	if len(calls) != 2 {
		t.Fatalf("callbacks = %d, want 2", len(calls))
	}
	for i, c := range calls {
		if c.attempt != i+1 {
			t.Errorf("callback %d attempt = %d, want %d", i, c.attempt, i+1)
		}
		base := r.Backoff(c.attempt)
		if c.delay < base || c.delay > base+base/4 {
			t.Errorf("callback %d delay = %v, want in [%v, %v]", i, c.delay, base, base+base/4)
		}
	}
}

func TestRetry_Backoff(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts:    10,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{50, time.Second},
	}

	for _, tt := range tests {
		if got := r.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetry_DelayJitterBounds(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	})

	for n := 1; n <= 4; n++ {
		base := r.Backoff(n)
		sawJitter := false
		for i := 0; i < 200; i++ {
			d := r.Delay(n)
			if d < base || d > base+base/4 {
				t.Fatalf("Delay(%d) = %v, want in [%v, %v]", n, d, base, base+base/4)
			}
			if d != base {
				sawJitter = true
			}
		}
		if !sawJitter {
			t.Errorf("Delay(%d) never added jitter", n)
		}
	}
}

func TestRetry_Config(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 5})

	if got := r.Config().MaxAttempts; got != 5 {
		t.Errorf("Config().MaxAttempts = %d, want 5", got)
	}
}

func TestRetry_WithRetryNotify(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	})

	var attempts []int
	ctx := WithRetryNotify(context.Background(), func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	})

	err := r.Execute(ctx, func(context.Context) error { return errTransient })
	if !errors.Is(err, errTransient) {
		t.Fatalf("Execute() error = %v, want %v", err, errTransient)
	}
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("notified attempts = %v, want [1 2]", attempts)
	}

	// Contexts without a hook are unaffected.
	if got := WithRetryNotify(context.Background(), nil); got != context.Background() {
		t.Error("WithRetryNotify(nil) should return ctx unchanged")
	}
}
