package cmd

import (
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the running sandbox interactively",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

var watchInterval time.Duration

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "Refresh interval")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return errors.ValidationError("watch requires a terminal; use \"forage-sandbox status\" instead")
	}
	if watchInterval <= 0 {
		return errors.ValidationError("--interval must be positive")
	}

	client, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	return tui.RunWatch(client, watchInterval)
}
