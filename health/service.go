package health

import (
	"context"
	"errors"
	"time"

	"github.com/jonwraymond/jatpclient/autherr"
	"github.com/jonwraymond/jatpclient/client"
	"github.com/jonwraymond/jatpclient/resilience"
)

// Pinger asks the auth service for its health. *client.Client implements
// it.
type Pinger interface {
	HealthCheck(ctx context.Context, opts ...client.CallOption) (client.HealthStatus, error)
}

// ServiceCheckerConfig configures a ServiceChecker.
type ServiceCheckerConfig struct {
	// Name is reported by Name.
	// Default: "auth_service"
	Name string

	// SlowThreshold marks a healthy service degraded when the round trip
	// takes longer. Zero disables the check.
	SlowThreshold time.Duration
}

// ServiceChecker checks the remote auth service through
// JWTService.HealthCheck.
type ServiceChecker struct {
	pinger Pinger
	config ServiceCheckerConfig
	now    func() time.Time
}

// NewServiceChecker creates a checker for the auth service.
func NewServiceChecker(pinger Pinger, config ServiceCheckerConfig) *ServiceChecker {
	if config.Name == "" {
		config.Name = "auth_service"
	}
	return &ServiceChecker{pinger: pinger, config: config, now: time.Now}
}

// Name returns the configured name.
func (c *ServiceChecker) Name() string {
	return c.config.Name
}

// Check calls the service. A failed call is unhealthy; otherwise the
// service's own status is reported.
func (c *ServiceChecker) Check(ctx context.Context) Result {
	start := c.now()
	hs, err := c.pinger.HealthCheck(ctx)
	elapsed := c.now().Sub(start)

	if err != nil {
		details := map[string]any{}
		var ae *autherr.Error
		if errors.As(err, &ae) {
			details["kind"] = ae.Kind.String()
			if ae.Code != "" {
				details["code"] = ae.Code
			}
		}
		return Unhealthy("health check call failed", err).WithDetails(details)
	}

	details := map[string]any{"latency_ms": elapsed.Milliseconds()}
	if hs.Version != "" {
		details["version"] = hs.Version
	}
	if hs.Uptime > 0 {
		details["uptime"] = hs.Uptime.String()
	}
	for k, v := range hs.Details {
		details[k] = v
	}

	var r Result
	switch ParseStatus(hs.Status) {
	case StatusHealthy:
		if c.config.SlowThreshold > 0 && elapsed > c.config.SlowThreshold {
			r = Degraded("auth service responding slowly")
		} else {
			r = Healthy("auth service healthy")
		}
	case StatusDegraded:
		r = Degraded("auth service degraded")
	default:
		r = Unhealthy("auth service unhealthy", ErrServiceUnhealthy)
	}
	if !hs.Timestamp.IsZero() {
		r.Timestamp = hs.Timestamp
	}
	return r.WithDetails(details)
}

// CircuitChecker reports the client's circuit breaker: closed is healthy,
// half-open degraded, open unhealthy.
type CircuitChecker struct {
	name string
	cb   *resilience.CircuitBreaker
}

// NewCircuitChecker creates a checker for cb. A nil breaker always
// reports healthy.
func NewCircuitChecker(name string, cb *resilience.CircuitBreaker) *CircuitChecker {
	if name == "" {
		name = "circuit_breaker"
	}
	return &CircuitChecker{name: name, cb: cb}
}

// Name returns the checker name.
func (c *CircuitChecker) Name() string {
	return c.name
}

// Check reads the breaker state without making a call.
func (c *CircuitChecker) Check(context.Context) Result {
	if c.cb == nil {
		return Healthy("circuit breaker disabled")
	}

	m := c.cb.Metrics()
	details := map[string]any{
		"state":    m.State.String(),
		"failures": m.Failures,
	}
	if !m.LastFailure.IsZero() {
		details["last_failure"] = m.LastFailure.UTC().Format(time.RFC3339)
	}
	if !m.RetryAt.IsZero() {
		details["retry_at"] = m.RetryAt.UTC().Format(time.RFC3339)
	}

	switch m.State {
	case resilience.StateClosed:
		return Healthy("circuit closed").WithDetails(details)
	case resilience.StateHalfOpen:
		return Degraded("circuit half-open").WithDetails(details)
	default:
		return Unhealthy("circuit open", resilience.ErrCircuitOpen).WithDetails(details)
	}
}

// Ensure ServiceChecker implements Checker
var _ Checker = (*ServiceChecker)(nil)

// Ensure CircuitChecker implements Checker
var _ Checker = (*CircuitChecker)(nil)

// Ensure *client.Client implements Pinger
var _ Pinger = (*client.Client)(nil)
