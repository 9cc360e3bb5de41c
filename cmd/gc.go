package cmd

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/control"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/engine"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/sandbox"
)

var gcForce bool

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove containers and state left behind by a crashed sandbox",
	Long: `Finds the containers carrying the sandbox's ownership labels, plus
those recorded in its handle file, for a sandbox no process owns, and
removes them. The handle file is kept until every container is gone.

Without --force, prints what would be cleaned (dry run).
Refuses to run while a process owns the sandbox.`,
	Args: cobra.NoArgs,
	RunE: runGC,
}

func init() {
	gcCmd.Flags().BoolVar(&gcForce, "force", false, "Actually remove orphaned resources (default is dry run)")
	rootCmd.AddCommand(gcCmd)
}

func runGC(cmd *cobra.Command, args []string) error {
	a := currentApp()
	name := sandboxName()
	ctx := cmd.Context()

	owned, err := sandbox.IsOwned(a.Paths.StateDir, name)
	if err != nil {
		return fmt.Errorf("failed to check sandbox owner: %w", err)
	}
	if owned {
		return errors.Locked(name, nil)
	}

	cfg, err := a.Config.SandboxConfig()
	if err != nil {
		return errors.ConfigError("invalid sandbox configuration", err)
	}
	timeout := cfg.Timeouts.Engine

	h, err := a.HandleStore().Load(name)
	if err != nil {
		logging.Warn("ignoring unreadable handle file", "sandbox", name, "error", err)
		h = nil
	}

	eng, err := gcEngine(ctx, a, h)
	if err != nil {
		return err
	}
	if eng != a.Engine {
		defer func() { _ = engine.Close(eng) }()
	}

	// Labelled containers plus the ones the handle file remembers, which
	// covers engines without labels and containers that lost them.
	listCtx, cancel := context.WithTimeout(ctx, timeout)
	ids, err := eng.ListContainers(listCtx)
	cancel()
	if err != nil {
		if h == nil {
			return errors.ContainerFailed("list containers", err)
		}
		logging.Warn("failed to list containers, using handle file only", "error", err)
	}
	if h != nil {
		ids = append(ids, h.IDs()...)
	}
	ids = sortedUnique(ids)

	if !gcForce {
		printGCDryRun(cmd, name, ids)
		return nil
	}

	report := sandbox.CleanupContainers(ctx, eng, ids, timeout)
	for _, id := range report.Removed {
		logSuccess("Removed container %s", id)
	}
	for id, err := range report.Failed {
		logWarning("Failed to remove container %s: %v", id, err)
	}

	if err := control.RemoveAddress(a.Paths.StateDir, name); err != nil {
		logging.Warn("failed to remove control address", "error", err)
	}

	if len(report.Failed) > 0 {
		return errors.ContainerFailed("orphan cleanup", fmt.Errorf("%d container(s) could not be removed", len(report.Failed)))
	}
	if err := a.HandleStore().Remove(name); err != nil {
		logging.Warn("failed to remove handle file", "error", err)
	}
	if len(report.Removed) == 0 {
		logInfo("No orphaned containers found")
	}
	return nil
}

// gcEngine returns the engine that recorded the handle file, falling back
// to the configured one.
func gcEngine(ctx context.Context, a *app.App, h *sandbox.Handles) (engine.Engine, error) {
	eng, err := a.ResolveEngine(ctx)
	if h == nil || h.Engine == "" || (err == nil && eng.Type() == h.Engine) {
		if err != nil {
			return nil, errors.Wrap(errors.ExitEngineUnavailable, "no container engine", err)
		}
		return eng, nil
	}

	logging.Debug("using engine from handle file", "engine", h.Engine)
	recorded, rerr := engine.Resolve(ctx, h.Engine, a.Config.EngineOptions())
	if rerr != nil {
		return nil, errors.Wrap(errors.ExitEngineUnavailable, fmt.Sprintf("engine %s from handle file", h.Engine), rerr)
	}
	return recorded, nil
}

func sortedUnique(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func printGCDryRun(cmd *cobra.Command, name string, ids []string) {
	if len(ids) == 0 {
		logInfo("No orphaned containers found")
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Orphaned containers of %s:\n", name)
	for _, id := range ids {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", id)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "\nRun with --force to remove them.")
}
