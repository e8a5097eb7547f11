package observe

import "strings"

// CallMeta describes one JATP call for telemetry purposes.
type CallMeta struct {
	Service   string // Remote service, e.g. "JWTService"
	Method    string // Method name within the service, e.g. "ValidateToken"
	RequestID string // Correlation id of the request (optional)
	Endpoint  string // host:port of the auth service (optional)
}

// NewCallMeta builds metadata from a "Service.Method" string. A name
// without a dot is kept whole as the method.
func NewCallMeta(fullMethod string) CallMeta {
	service, method, ok := strings.Cut(fullMethod, ".")
	if !ok {
		return CallMeta{Method: fullMethod}
	}
	return CallMeta{Service: service, Method: method}
}

// FullMethod returns "Service.Method", or just the method when the
// service is unknown.
func (m CallMeta) FullMethod() string {
	if m.Service == "" {
		return m.Method
	}
	return m.Service + "." + m.Method
}

// SpanName returns the deterministic span name for this call.
// Format: jatp.call.<service>.<method> or jatp.call.<method>
func (m CallMeta) SpanName() string {
	return "jatp.call." + m.FullMethod()
}

// Validate checks that the method is set.
func (m CallMeta) Validate() error {
	if m.Method == "" {
		return ErrMissingMethod
	}
	return nil
}
