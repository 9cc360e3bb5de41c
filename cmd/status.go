package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/sandbox"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/tui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state and health of the sandbox",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	Status  *sandbox.Status     `json:"status"`
	Health  *health.CheckResult `json:"health"`
	Summary health.Status       `json:"summary"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, err := connect(ctx)
	if err != nil {
		reportStopped(cmd)
		return err
	}

	st, err := client.Status(ctx)
	if err != nil {
		return err
	}
	events, err := client.Events(ctx, "", 0)
	if err != nil {
		return err
	}
	result := health.Check(ctx, *st, events, &http.Client{Timeout: health.CDPTimeout})

	if jsonMode() {
		return printJSON(cmd.OutOrStdout(), statusOutput{Status: st, Health: result, Summary: health.GetSummary(result)})
	}
	fmt.Fprint(cmd.OutOrStdout(), tui.SimpleStatus(st, result))
	return nil
}

// reportStopped explains a sandbox without a reachable control API,
// pointing at containers a crashed owner left behind.
func reportStopped(cmd *cobra.Command) {
	a := currentApp()
	name := sandboxName()

	h, err := a.HandleStore().Load(name)
	if err != nil || h == nil || len(h.IDs()) == 0 {
		return
	}
	owned, _ := sandbox.IsOwned(a.Paths.StateDir, name)
	if owned {
		logWarning("Sandbox %s is owned by a running process but its control API is unreachable", name)
		return
	}
	logWarning("Sandbox %s is not running but left containers behind (pid %d): %v", name, h.PID, h.IDs())
	logWarning("Run \"forage-sandbox gc --force\" to remove them")
}
