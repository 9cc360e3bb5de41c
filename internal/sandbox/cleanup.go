package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/engine"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/logging"
)

// CleanupReport lists the outcome of an orphan sweep.
type CleanupReport struct {
	Removed []string
	Failed  map[string]error
}

// CleanupOrphans stops then removes every container the engine lists for
// its sandbox. Each container is handled independently; a failure to stop
// still attempts the removal. Only a failure to enumerate is returned as
// an error.
func CleanupOrphans(ctx context.Context, eng engine.Engine, timeout time.Duration) (*CleanupReport, error) {
	listCtx, cancel := context.WithTimeout(ctx, timeout)
	ids, err := eng.ListContainers(listCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	return CleanupContainers(ctx, eng, ids, timeout), nil
}

// CleanupContainers stops then removes the given containers, skipping
// duplicate ids.
func CleanupContainers(ctx context.Context, eng engine.Engine, ids []string, timeout time.Duration) *CleanupReport {
	report := &CleanupReport{Failed: make(map[string]error)}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		logging.Debug("removing orphan container", "container", id)
		if err := stopAndRemove(ctx, eng, id, timeout); err != nil {
			report.Failed[id] = err
			continue
		}
		report.Removed = append(report.Removed, id)
	}
	return report
}

// stopAndRemove stops then removes one container, attempting the removal
// even when the stop fails.
func stopAndRemove(ctx context.Context, eng engine.Engine, id string, timeout time.Duration) error {
	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	stopErr := eng.StopContainer(stopCtx, id)
	cancel()

	rmCtx, cancel := context.WithTimeout(ctx, timeout)
	rmErr := eng.RemoveContainer(rmCtx, id)
	cancel()

	switch {
	case rmErr != nil && stopErr != nil:
		return fmt.Errorf("stop: %v; remove: %w", stopErr, rmErr)
	case rmErr != nil:
		return fmt.Errorf("remove: %w", rmErr)
	case stopErr != nil:
		return fmt.Errorf("stop: %w", stopErr)
	}
	return nil
}
