package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/jatpclient/autherr"
	"github.com/jonwraymond/jatpclient/client"
	"github.com/jonwraymond/jatpclient/resilience"
)

type fakePinger struct {
	status client.HealthStatus
	err    error
	delay  time.Duration
	clock  *time.Time
}

func (f *fakePinger) HealthCheck(context.Context, ...client.CallOption) (client.HealthStatus, error) {
	if f.clock != nil {
		*f.clock = f.clock.Add(f.delay)
	}
	return f.status, f.err
}

func TestServiceChecker_Statuses(t *testing.T) {
	tests := []struct {
		status string
		want   Status
	}{
		{client.StatusHealthy, StatusHealthy},
		{client.StatusDegraded, StatusDegraded},
		{client.StatusUnhealthy, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			p := &fakePinger{status: client.HealthStatus{
				Status:  tt.status,
				Version: "0.9.4",
				Uptime:  time.Hour,
				Details: map[string]any{"redis": "ok"},
			}}
			r := NewServiceChecker(p, ServiceCheckerConfig{}).Check(context.Background())

			if r.Status != tt.want {
				t.Errorf("Status = %v, want %v", r.Status, tt.want)
			}
			if r.Details["version"] != "0.9.4" || r.Details["uptime"] != "1h0m0s" || r.Details["redis"] != "ok" {
				t.Errorf("Details = %v", r.Details)
			}
			if tt.want == StatusUnhealthy && !errors.Is(r.Error, ErrServiceUnhealthy) {
				t.Errorf("Error = %v, want ErrServiceUnhealthy", r.Error)
			}
		})
	}
}

func TestServiceChecker_CallFails(t *testing.T) {
	p := &fakePinger{err: autherr.FromWire(autherr.CodeInternal, "boom", nil)}
	r := NewServiceChecker(p, ServiceCheckerConfig{Name: "auth"}).Check(context.Background())

	if r.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want unhealthy", r.Status)
	}
	if r.Details["kind"] != "internal" || r.Details["code"] != autherr.CodeInternal {
		t.Errorf("Details = %v", r.Details)
	}
	if !errors.Is(r.Error, autherr.ErrInternal) {
		t.Errorf("Error = %v", r.Error)
	}
}

func TestServiceChecker_Slow(t *testing.T) {
	now := time.Unix(1000, 0)
	p := &fakePinger{status: client.HealthStatus{Status: client.StatusHealthy}, delay: 300 * time.Millisecond, clock: &now}
	c := NewServiceChecker(p, ServiceCheckerConfig{SlowThreshold: 200 * time.Millisecond})
	c.now = func() time.Time { return now }

	r := c.Check(context.Background())
	if r.Status != StatusDegraded {
		t.Errorf("Status = %v, want degraded", r.Status)
	}
	if r.Details["latency_ms"] != int64(300) {
		t.Errorf("latency_ms = %v, want 300", r.Details["latency_ms"])
	}
}

func TestServiceChecker_Name(t *testing.T) {
	if got := NewServiceChecker(&fakePinger{}, ServiceCheckerConfig{}).Name(); got != "auth_service" {
		t.Errorf("Name() = %q, want auth_service", got)
	}
}

func TestCircuitChecker(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Minute,
		Now:          func() time.Time { return now },
	})
	c := NewCircuitChecker("", cb)
	ctx := context.Background()

	if r := c.Check(ctx); r.Status != StatusHealthy || r.Details["state"] != "closed" {
		t.Errorf("closed: %+v", r)
	}

	_ = cb.Execute(ctx, func(context.Context) error {
		return autherr.New(autherr.KindConnection, "refused")
	})
	r := c.Check(ctx)
	if r.Status != StatusUnhealthy || !errors.Is(r.Error, resilience.ErrCircuitOpen) {
		t.Errorf("open: %+v", r)
	}
	if r.Details["failures"] != 1 || r.Details["last_failure"] == nil || r.Details["retry_at"] == nil {
		t.Errorf("open details = %v", r.Details)
	}

	now = now.Add(time.Minute)
	if r := c.Check(ctx); r.Status != StatusDegraded {
		t.Errorf("half-open: %+v", r)
	}

	if r := NewCircuitChecker("cb", nil).Check(ctx); r.Status != StatusHealthy {
		t.Errorf("nil breaker: %+v", r)
	}
}
