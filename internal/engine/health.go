package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// healthProbeCommand is executed inside the container to prove exec works
var healthProbeCommand = []string{"true"}

// aggregateHealth runs the checks shared by every adapter: engine reachable,
// container running, trivial exec succeeds. The first failing check stops
// the sequence and is recorded in Detail.
func aggregateHealth(ctx context.Context, e Engine, id string) (*HealthReport, error) {
	if id == "" {
		return nil, fmt.Errorf("health check: empty container id")
	}

	report := &HealthReport{CheckedAt: time.Now()}

	if !e.IsAvailable(ctx) {
		report.Detail = fmt.Sprintf("%s engine is not reachable", e.Type())
		return report, nil
	}
	report.EngineReachable = true

	running, err := e.IsContainerRunning(ctx, id)
	if err != nil {
		report.Detail = fmt.Sprintf("inspect failed: %v", err)
		return report, nil
	}
	if !running {
		report.Detail = "container is not running"
		return report, nil
	}
	report.Running = true

	res, err := e.ExecInContainer(ctx, ExecSpec{ContainerID: id, Command: healthProbeCommand})
	if err != nil {
		report.Detail = fmt.Sprintf("exec failed: %v", err)
		return report, nil
	}
	if res.ExitCode != 0 {
		report.Detail = fmt.Sprintf("probe exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
		return report, nil
	}
	report.ExecResponsive = true
	report.Healthy = true

	return report, nil
}
