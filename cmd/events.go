package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/logging"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the sandbox event log",
	Long: `Shows the most recent lifecycle events of the sandbox.

Events come from the running sandbox when its control API answers, and
from the persisted event log otherwise.`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

var (
	eventsType  string
	eventsLines int
)

func init() {
	eventsCmd.Flags().StringVarP(&eventsType, "type", "t", "", "Only show events of this type")
	eventsCmd.Flags().IntVarP(&eventsLines, "lines", "n", 50, "Number of events to show (0 for all)")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	events, err := loadEvents(cmd)
	if err != nil {
		return err
	}

	if jsonMode() {
		if events == nil {
			events = []audit.Event{}
		}
		return printJSON(cmd.OutOrStdout(), events)
	}

	if len(events) == 0 {
		logInfo("No events recorded for %s", sandboxName())
		return nil
	}
	printEvents(cmd.OutOrStdout(), events)
	return nil
}

func loadEvents(cmd *cobra.Command) ([]audit.Event, error) {
	client, err := connect(cmd.Context())
	if err == nil {
		return client.Events(cmd.Context(), audit.EventType(eventsType), eventsLines)
	}
	logging.Debug("reading persisted events", "reason", err)

	events, err := currentApp().AuditLogger().Events(sandboxName())
	if err != nil {
		return nil, err
	}
	if eventsType != "" {
		filtered := events[:0]
		for _, e := range events {
			if string(e.Type) == eventsType {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	if eventsLines > 0 && len(events) > eventsLines {
		events = events[len(events)-eventsLines:]
	}
	return events, nil
}

func printEvents(w io.Writer, events []audit.Event) {
	for _, e := range events {
		fmt.Fprintf(w, "%s  %-16s %s\n", e.Timestamp.Local().Format(time.DateTime), e.Type, e.Detail)
	}
}
