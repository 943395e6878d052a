// Package observability provides structured logging, Prometheus metrics
// and health probes for the authority service.
//
// The Logger is a thin wrapper over stdlib slog with JSON output and
// chainable field helpers:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithPrincipal("admin@example.org").Info("assignment resolved")
//
// Metrics covers the decision path (decisions by outcome, resolution
// sources, legacy fallbacks), the cache (hits/misses) and assignment
// mutations, plus standard HTTP request metrics:
//
//	metrics := observability.NewMetrics(nil)
//	mux.Handle("/metrics", metrics.Handler())
//
// HealthChecker exposes liveness and readiness probes over the store
// database and the optional Redis cache. A store outage makes the
// service unready; a cache outage only degrades it, because the engine
// never depends on the cache for correctness.
package observability
