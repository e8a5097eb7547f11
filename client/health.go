package client

import (
	"context"
	"time"
)

// Service health states reported by JWTService.HealthCheck.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus is the data of a JWTService.HealthCheck response.
type HealthStatus struct {
	Status    string
	Timestamp time.Time
	Version   string
	Uptime    time.Duration
	Details   map[string]any
}

// IsHealthy reports whether the service is fully healthy.
func (h HealthStatus) IsHealthy() bool {
	return h.Status == StatusHealthy
}

// IsOperational reports whether the service is serving (healthy or degraded).
func (h HealthStatus) IsOperational() bool {
	return h.Status == StatusHealthy || h.Status == StatusDegraded
}

// ParseHealthStatus reads response data. The legacy boolean "healthy"
// field is accepted when "status" is absent; anything else is unhealthy.
func ParseHealthStatus(data map[string]any) HealthStatus {
	status := stringField(data, "status")
	if status == "" {
		if healthy, ok := data["healthy"].(bool); ok && healthy {
			status = StatusHealthy
		} else {
			status = StatusUnhealthy
		}
	}

	h := HealthStatus{
		Status:    status,
		Timestamp: unixField(data, "timestamp"),
		Version:   stringField(data, "version"),
	}
	if up := intField(data, "uptime"); up > 0 {
		h.Uptime = time.Duration(up) * time.Second
	}
	if details, ok := data["details"].(map[string]any); ok {
		h.Details = details
	}
	return h
}

// HealthCheck asks the service for its health.
func (c *Client) HealthCheck(ctx context.Context, opts ...CallOption) (HealthStatus, error) {
	data, err := c.Call(ctx, MethodHealthCheck, nil, opts...)
	if err != nil {
		return HealthStatus{}, err
	}
	return ParseHealthStatus(data), nil
}
