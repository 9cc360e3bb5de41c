// Package health provides health check utilities for sandbox monitoring.
//
// The container itself is health-checked by the engine (see
// engine.Engine.HealthCheck). This package summarizes a Manager snapshot
// and probes the browser companion over the Chrome DevTools Protocol.
//
// # Health Status
//
// Sandbox health is represented by Status:
//
//	StatusHealthy   - Sandbox ready, companion (if any) answering CDP
//	StatusNoBrowser - Sandbox ready but the companion does not answer
//	StatusDegraded  - Sandbox degraded, awaiting Recover
//	StatusStopped   - Sandbox stopped
//	StatusPending   - Sandbox not started yet
//
// # Check Functions
//
//	v, err := health.CheckCDP(ctx, nil, "http://127.0.0.1:9222")
//	uptime := health.GetUptime(mgr.Events(), time.Now())
//
//	result := health.Check(ctx, mgr.Status(), mgr.Events(), nil)
//	status := health.GetSummary(result)
package health
