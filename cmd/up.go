package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/control"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/monitor"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/sandbox"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start the sandbox and serve it until stopped",
	Long: `Starts the sandbox and keeps it running in the foreground.

The control API listens on a loopback address recorded under the state
directory, so exec, status, recover and down can reach it. A health
monitor probes the main container and recovers it when degraded.
The sandbox is stopped on SIGINT, SIGTERM, or "forage-sandbox down".`,
	Args: cobra.NoArgs,
	RunE: runUp,
}

func init() {
	addSandboxFlags(upCmd.Flags())
	upCmd.Flags().String("listen", "", "Control API listen address (loopback only)")
	upCmd.Flags().Bool("auto-recover", true, "Recover a degraded sandbox from the health monitor")
	rootCmd.AddCommand(upCmd)
}

func runUp(cmd *cobra.Command, args []string) error {
	a := currentApp()
	cfg := a.Config
	name := cfg.Sandbox.Name

	if err := a.Paths.EnsureStateDir(); err != nil {
		return err
	}

	lock, err := sandbox.AcquireOwnerLock(a.Paths.StateDir, name)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	collector := metrics.New()
	mgr, err := a.NewManager(ctx, sandbox.WithSinks(collector), sandbox.WithObserver(collector))
	if err != nil {
		return err
	}

	logInfo("Starting sandbox %s (%s)...", name, mgr.Mode())
	if err := mgr.Start(ctx); err != nil {
		logWarning("Sandbox %s is degraded: %v", name, err)
	}
	if mgr.State() == sandbox.StateStopped {
		logInfo("Sandbox mode is off; nothing to run")
		return nil
	}

	errCh := make(chan error, 1)
	if cfg.Control.Enabled {
		ln, err := control.Listen(cfg.Control.Listen)
		if err != nil {
			mgr.Stop(context.Background())
			return errors.ControlError("failed to open control API", err)
		}
		addr := ln.Addr().String()
		if err := control.WriteAddress(a.Paths.StateDir, name, addr); err != nil {
			_ = ln.Close()
			mgr.Stop(context.Background())
			return errors.ControlError("failed to record control address", err)
		}
		defer func() {
			if err := control.RemoveAddress(a.Paths.StateDir, name); err != nil {
				logging.Warn("failed to remove control address", "error", err)
			}
		}()

		srv := control.NewServer(mgr, control.WithMetrics(collector.Handler()), control.WithStopHook(cancel))
		go func() { errCh <- srv.Serve(ctx, ln) }()
		logInfo("Control API listening on %s", addr)
	}

	if mgr.Mode() == sandbox.ModeStandard {
		mon := monitor.New(cfg.MonitorInterval(), mgr, monitor.WithAutoRecover(cfg.Monitor.AutoRecover))
		go func() { _ = mon.Run(ctx) }()
	}

	logSuccess("Sandbox %s is %s", name, mgr.State())
	if endpoint := mgr.BrowserCDPEndpoint(); endpoint != "" {
		logInfo("Browser DevTools: %s", endpoint)
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logging.Error("control API failed", "error", err)
		}
	}
	cancel()

	logInfo("Stopping sandbox %s...", name)
	mgr.Stop(context.Background())
	if st := mgr.Status(); st.MainContainer != "" || st.BrowserContainer != "" {
		logWarning("Sandbox %s stopped but left containers behind; run \"forage-sandbox gc --force\"", name)
		return nil
	}
	logSuccess("Sandbox %s stopped", name)
	return nil
}
