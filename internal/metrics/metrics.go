// Package metrics exposes sandbox manager activity as Prometheus metrics.
//
// A Collector is both a sandbox.Observer (state and exec outcomes) and a
// sandbox.Sink (event counts), so one value wires into a Manager with
// sandbox.WithObserver and sandbox.WithSinks.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/sandbox"
)

const namespace = "forage_sandbox"

var states = []sandbox.State{
	sandbox.StateUninitialized,
	sandbox.StateReady,
	sandbox.StateDegraded,
	sandbox.StateStopped,
}

// Collector records manager metrics in its own registry.
type Collector struct {
	registry     *prometheus.Registry
	state        *prometheus.GaugeVec
	events       *prometheus.CounterVec
	execs        *prometheus.CounterVec
	execDuration *prometheus.HistogramVec
}

// New creates a Collector with a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "1 for the current lifecycle state of the sandbox, 0 otherwise",
		}, []string{"sandbox", "state"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events appended to the sandbox event log",
		}, []string{"sandbox", "type"}),
		execs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execs_total",
			Help:      "Exec requests by outcome",
		}, []string{"sandbox", "outcome"}),
		execDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exec_duration_seconds",
			Help:      "Wall-clock duration of exec requests",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"sandbox"}),
	}
	c.registry.MustRegister(c.state, c.events, c.execs, c.execDuration)
	return c
}

// ObserveState sets the state gauge so exactly one state reads 1.
func (c *Collector) ObserveState(name string, state sandbox.State) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		c.state.With(prometheus.Labels{"sandbox": name, "state": string(s)}).Set(v)
	}
}

// ObserveExec counts an exec and records its duration.
func (c *Collector) ObserveExec(name string, outcome string, d time.Duration) {
	c.execs.With(prometheus.Labels{"sandbox": name, "outcome": outcome}).Inc()
	c.execDuration.With(prometheus.Labels{"sandbox": name}).Observe(d.Seconds())
}

// Log counts an event. It never fails.
func (c *Collector) Log(e audit.Event) error {
	c.events.With(prometheus.Labels{"sandbox": e.Sandbox, "type": string(e.Type)}).Inc()
	return nil
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

var (
	_ sandbox.Observer = (*Collector)(nil)
	_ sandbox.Sink     = (*Collector)(nil)
)
