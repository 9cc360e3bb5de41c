package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/engine"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/logging"
)

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List the container engines usable on this host",
	Long: `Probes every supported engine in detection order and lists the
ones that answer. With engine = "auto" the first one listed is used.`,
	Args: cobra.NoArgs,
	RunE: runEngines,
}

// engineProbeTimeout bounds the whole probe
const engineProbeTimeout = 30 * time.Second

func init() {
	rootCmd.AddCommand(enginesCmd)
}

type engineOutput struct {
	Type    engine.Type `json:"type"`
	Version string      `json:"version,omitempty"`
	OS      string      `json:"os,omitempty"`
	Arch    string      `json:"arch,omitempty"`
}

func runEngines(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), engineProbeTimeout)
	defer cancel()

	opts := currentApp().Config.EngineOptions()
	available := engine.Available(ctx, opts)

	out := make([]engineOutput, 0, len(available))
	for _, t := range available {
		eo := engineOutput{Type: t}
		e, err := engine.New(t, opts)
		if err == nil {
			if info, err := e.Info(ctx); err == nil {
				eo.Version, eo.OS, eo.Arch = info.Version, info.OS, info.Arch
			} else {
				logging.Debug("engine info failed", "type", t, "error", err)
			}
		}
		out = append(out, eo)
	}

	if jsonMode() {
		return printJSON(cmd.OutOrStdout(), out)
	}
	if len(out) == 0 {
		logWarning("No container engine available (tried: %v)", engine.DetectionOrder)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENGINE\tVERSION\tPLATFORM")
	for _, eo := range out {
		platform := eo.OS
		if eo.Arch != "" {
			platform += "/" + eo.Arch
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", eo.Type, eo.Version, platform)
	}
	return w.Flush()
}
