package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/sandbox"
)

// Status represents the health status of a sandbox
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusNoBrowser Status = "no-browser"
	StatusStopped   Status = "stopped"
	StatusPending   Status = "pending"

	// CDPTimeout bounds a single CDP version probe.
	CDPTimeout = 3 * time.Second
)

// CDPVersion is the subset of the /json/version document we use.
type CDPVersion struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// CheckResult contains the results of health checks
type CheckResult struct {
	State            sandbox.State
	BrowserEnabled   bool
	BrowserReachable bool
	BrowserVersion   string
	Uptime           string
}

// CheckCDP queries the DevTools version endpoint of a browser companion.
func CheckCDP(ctx context.Context, client *http.Client, endpoint string) (*CDPVersion, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("no CDP endpoint")
	}
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, CDPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(endpoint, "/")+"/json/version", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CDP endpoint returned %s", resp.Status)
	}

	var v CDPVersion
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode CDP version: %w", err)
	}
	return &v, nil
}

// GetUptime returns how long ago the most recent container_start event was
// recorded, in human-readable format.
func GetUptime(events []audit.Event, now time.Time) string {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == audit.EventContainerStart && strings.HasPrefix(events[i].Detail, "main ") {
			return formatDuration(now.Sub(events[i].Timestamp))
		}
	}
	return "unknown"
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// Check performs all health checks for a sandbox snapshot.
// The browser companion is only probed when the sandbox is ready.
func Check(ctx context.Context, st sandbox.Status, events []audit.Event, client *http.Client) *CheckResult {
	result := &CheckResult{
		State:          st.State,
		BrowserEnabled: st.BrowserEndpoint != "",
	}
	if st.State != sandbox.StateReady {
		return result
	}

	if st.Mode == sandbox.ModeStandard {
		result.Uptime = GetUptime(events, time.Now())
	}

	if result.BrowserEnabled {
		v, err := CheckCDP(ctx, client, st.BrowserEndpoint)
		if err == nil {
			result.BrowserReachable = true
			result.BrowserVersion = v.Browser
		}
	}

	return result
}

// GetSummary returns a summary health status.
func GetSummary(r *CheckResult) Status {
	switch r.State {
	case sandbox.StateUninitialized:
		return StatusPending
	case sandbox.StateStopped:
		return StatusStopped
	case sandbox.StateDegraded:
		return StatusDegraded
	}
	if r.BrowserEnabled && !r.BrowserReachable {
		return StatusNoBrowser
	}
	return StatusHealthy
}
