// Package observe provides observability for JATP client calls.
//
// An Observer owns the OpenTelemetry tracer and meter providers and a zap
// backed JSON Logger. Middleware wraps a CallFunc so that every call gets a
// client span named jatp.call.<Service>.<Method>, the jatp.client.* counters
// and duration histogram, and one log line. Credential fields are redacted
// from log output.
//
// Providers become the otel globals only when Config.Global is set, so a
// library embedding the client keeps control of its own telemetry.
package observe
