package cmd

import (
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/sandbox"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Re-run the main container of a degraded sandbox",
	Args:  cobra.NoArgs,
	RunE:  runRecover,
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}

func runRecover(cmd *cobra.Command, args []string) error {
	client, err := connect(cmd.Context())
	if err != nil {
		return err
	}

	state, err := client.Recover(cmd.Context())
	if err != nil {
		return err
	}
	if state != sandbox.StateReady {
		return errors.SandboxNotReady(sandboxName(), string(state))
	}
	logSuccess("Sandbox %s is ready", sandboxName())
	return nil
}
