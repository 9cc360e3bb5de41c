package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/sandbox"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command> [args...]",
	Short: "Start a sandbox, run one command in it, and stop it",
	Long: `Starts a fresh sandbox, runs a single command, then stops the sandbox.

The command's exit code becomes the exit code of forage-sandbox.
Standard input is only forwarded with --interactive.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var runStdin bool

func init() {
	addSandboxFlags(runCmd.Flags())
	runCmd.Flags().BoolVarP(&runStdin, "interactive", "i", false, "Forward standard input to the command")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	a := currentApp()
	ctx := cmd.Context()

	if err := a.Paths.EnsureStateDir(); err != nil {
		return err
	}
	lock, err := sandbox.AcquireOwnerLock(a.Paths.StateDir, sandboxName())
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	mgr, err := a.NewManager(ctx)
	if err != nil {
		return err
	}
	defer mgr.Stop(context.Background())

	if err := mgr.Start(ctx); err != nil {
		return err
	}

	req := sandbox.ExecRequest{Argv: args}
	if runStdin {
		req.Stdin = cmd.InOrStdin()
	}
	res := mgr.Exec(ctx, req)
	return reportExec(cmd, &res)
}

// reportExec writes an exec result and turns a non-zero exit code into
// an error carrying that code.
func reportExec(cmd *cobra.Command, res *sandbox.ExecResult) error {
	if jsonMode() {
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	} else {
		fmt.Fprint(cmd.OutOrStdout(), res.Stdout)
		fmt.Fprint(cmd.ErrOrStderr(), res.Stderr)
	}

	if res.ExitCode != 0 {
		cmd.SilenceErrors = true
		cmd.SilenceUsage = true
		return errors.New(res.ExitCode, fmt.Sprintf("command exited with code %d", res.ExitCode))
	}
	return nil
}
