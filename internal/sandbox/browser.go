package sandbox

import (
	"context"
	"fmt"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/engine"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/logging"
)

// browserContainerPort is the CDP port headless-shell images listen on
const browserContainerPort = 9222

// browserResult is the outcome of starting the browser companion.
type browserResult struct {
	ID       string
	Endpoint string
	Err      error
}

// CDPEndpoint returns the loopback URL for a CDP port.
func CDPEndpoint(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// startBrowserIsolated runs the browser companion and reports the outcome as
// a value. It never returns an error or panics into the caller, and it
// never touches the Manager's state: a failing companion must not affect
// the main sandbox.
func startBrowserIsolated(ctx context.Context, m *Manager) (res browserResult) {
	defer func() {
		if r := recover(); r != nil {
			res = browserResult{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	spec := engine.RunSpec{
		Name:      engine.ContainerName(m.cfg.Name, engine.RoleBrowser),
		Image:     m.cfg.Browser.Image,
		Role:      engine.RoleBrowser,
		Ports:     []engine.PortBinding{{HostPort: m.cfg.Browser.CDPPort, ContainerPort: browserContainerPort}},
		Resources: engine.Resources{Network: m.cfg.Resources.Network},
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeouts.Engine)
	defer cancel()

	id, err := m.eng.RunContainer(ctx, spec)
	if err != nil {
		return browserResult{Err: err}
	}
	return browserResult{ID: id, Endpoint: CDPEndpoint(m.cfg.Browser.CDPPort)}
}

// applyBrowserResult records the companion outcome. Failures are logged and
// recorded as events only.
func (m *Manager) applyBrowserResult(res browserResult) {
	if res.Err != nil {
		logging.Warn("browser companion failed", "sandbox", m.cfg.Name, "error", res.Err)
		m.log.Append(audit.EventError, fmt.Sprintf("Browser container start failed: %v", res.Err))
		return
	}

	m.mu.Lock()
	m.browserID = res.ID
	m.browserEndpoint = res.Endpoint
	m.mu.Unlock()

	m.saveHandles()
	m.log.Append(audit.EventBrowserStart, fmt.Sprintf("%s %s", res.ID, res.Endpoint))
	logging.Info("browser companion started", "sandbox", m.cfg.Name, "container", res.ID, "endpoint", res.Endpoint)
}
