package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/engine"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/sandbox"
)

func TestCollector_ObserveState(t *testing.T) {
	c := New()

	c.ObserveState("agent", sandbox.StateReady)
	c.ObserveState("agent", sandbox.StateDegraded)

	assert.Equal(t, 0.0, testutil.ToFloat64(c.state.WithLabelValues("agent", "ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.state.WithLabelValues("agent", "degraded")))
	assert.Equal(t, 4, testutil.CollectAndCount(c.state))
}

func TestCollector_ObserveExec(t *testing.T) {
	c := New()

	c.ObserveExec("agent", sandbox.ExecOutcomeSuccess, 20*time.Millisecond)
	c.ObserveExec("agent", sandbox.ExecOutcomeSuccess, 30*time.Millisecond)
	c.ObserveExec("agent", sandbox.ExecOutcomeRefused, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.execs.WithLabelValues("agent", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.execs.WithLabelValues("agent", "refused")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.execDuration))
}

func TestCollector_Log(t *testing.T) {
	c := New()

	require.NoError(t, c.Log(audit.NewEvent(audit.EventError, "agent", "x")))
	require.NoError(t, c.Log(audit.NewEvent(audit.EventError, "agent", "y")))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.events.WithLabelValues("agent", "error")))
}

func TestCollector_WiredIntoManager(t *testing.T) {
	c := New()
	mock := engine.NewMockEngine()
	mock.AddImage(sandbox.DefaultImage)

	mgr, err := sandbox.NewManager(context.Background(), sandbox.Config{Name: "agent"},
		sandbox.WithEngine(mock), sandbox.WithObserver(c), sandbox.WithSinks(c))
	require.NoError(t, err)
	require.NoError(t, mgr.Start(context.Background()))
	mgr.Exec(context.Background(), sandbox.ExecRequest{Command: "true"})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.state.WithLabelValues("agent", "ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues("agent", "container_start")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.execs.WithLabelValues("agent", "success")))
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.ObserveState("agent", sandbox.StateReady)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `forage_sandbox_state{sandbox="agent",state="ready"} 1`)
}
