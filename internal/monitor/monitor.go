// Package monitor provides background health monitoring for a sandbox.
package monitor

import (
	"context"
	"net/http"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/sandbox"
)

// Target is the part of a sandbox.Manager the monitor drives.
type Target interface {
	Name() string
	Probe(ctx context.Context) sandbox.State
	Recover(ctx context.Context) sandbox.State
	Status() sandbox.Status
	Events() []audit.Event
}

// CheckResult holds the result of a single sandbox health check.
type CheckResult struct {
	Sandbox   string
	Status    health.Status
	Health    *health.CheckResult
	Recovered bool
}

// Monitor periodically probes a sandbox and optionally recovers it.
type Monitor struct {
	interval    time.Duration
	target      Target
	autoRecover bool
	client      *http.Client
	onCheck     func(CheckResult)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithAutoRecover enables Recover calls on degraded sandboxes.
func WithAutoRecover(enabled bool) Option {
	return func(m *Monitor) {
		m.autoRecover = enabled
	}
}

// WithHTTPClient sets the client used for browser companion probes.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Monitor) {
		m.client = c
	}
}

// WithCallback registers a function called after every check.
func WithCallback(fn func(CheckResult)) Option {
	return func(m *Monitor) {
		m.onCheck = fn
	}
}

// New creates a new Monitor.
func New(interval time.Duration, target Target, opts ...Option) *Monitor {
	m := &Monitor{
		interval: interval,
		target:   target,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run starts the monitoring loop. It blocks until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	logging.Debug("starting health monitor", "sandbox", m.target.Name(), "interval", m.interval, "autoRecover", m.autoRecover)

	// Run an immediate check, then loop on interval.
	m.check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Debug("health monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// check probes the sandbox once, recovering it when degraded and enabled.
func (m *Monitor) check(ctx context.Context) CheckResult {
	name := m.target.Name()
	state := m.target.Probe(ctx)

	result := CheckResult{Sandbox: name}
	if state == sandbox.StateDegraded && m.autoRecover {
		logging.UserInfo("Auto-recovering sandbox %s", name)
		if m.target.Recover(ctx) == sandbox.StateReady {
			result.Recovered = true
		} else {
			logging.Warn("auto-recover left sandbox degraded", "sandbox", name)
		}
	}

	result.Health = health.Check(ctx, m.target.Status(), m.target.Events(), m.client)
	result.Status = health.GetSummary(result.Health)
	if result.Status == health.StatusNoBrowser {
		logging.Warn("browser companion not answering", "sandbox", name)
	}

	if m.onCheck != nil {
		m.onCheck(result)
	}
	return result
}
