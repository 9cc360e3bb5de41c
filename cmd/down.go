package cmd

import (
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/logging"
)

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop the running sandbox",
	Long: `Asks the process running "forage-sandbox up" to stop the sandbox.
Its containers are stopped and removed, and the process exits.`,
	Args: cobra.NoArgs,
	RunE: runDown,
}

func init() {
	rootCmd.AddCommand(downCmd)
}

func runDown(cmd *cobra.Command, args []string) error {
	name := sandboxName()

	client, err := connect(cmd.Context())
	if err != nil {
		reportStopped(cmd)
		return err
	}

	logging.Debug("stopping sandbox", "name", name)
	logInfo("Stopping sandbox %s...", name)

	if err := client.Stop(cmd.Context()); err != nil {
		return err
	}

	logSuccess("Stopped sandbox %s", name)
	return nil
}
