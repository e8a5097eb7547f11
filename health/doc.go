// Package health reports on the auth service and the client's own
// dependencies.
//
// ServiceChecker calls JWTService.HealthCheck and maps the service's
// healthy/degraded/unhealthy status. CircuitChecker exposes the client's
// circuit breaker state and RedisChecker the shared key cache. An
// Aggregator runs checkers concurrently under one timeout and combines them
// into a Report whose status is the worst of its checks:
//
//	agg := health.NewAggregator(health.AggregatorConfig{Timeout: 5 * time.Second})
//	_ = agg.Register(health.NewServiceChecker(c, health.ServiceCheckerConfig{}))
//	_ = agg.Register(health.NewCircuitChecker("", c.Executor().CircuitBreaker()))
//	report := agg.CheckAll(ctx)
//
// RegisterHandlers exposes the aggregator as liveness, readiness and
// detailed JSON endpoints for a sidecar probe.
package health
