package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/control"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/errors"
)

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- <command> [args...]",
	Short: "Execute a command in the running sandbox",
	Long: `Runs a command in the sandbox started by "forage-sandbox up".

Arguments are quoted and run with "sh -c". Use --shell to pass a
command line verbatim instead.`,
	RunE: runExec,
}

var (
	execShell   string
	execCwd     string
	execEnv     []string
	execTimeout time.Duration
	execStdin   bool
)

func init() {
	execCmd.Flags().StringVar(&execShell, "shell", "", "Shell command line to run instead of arguments")
	execCmd.Flags().StringVar(&execCwd, "cwd", "", "Working directory inside the sandbox")
	execCmd.Flags().StringArrayVarP(&execEnv, "env", "e", nil, "Environment variable KEY=VALUE (repeatable)")
	execCmd.Flags().DurationVar(&execTimeout, "timeout", 0, "Exec timeout (default from configuration)")
	execCmd.Flags().BoolVarP(&execStdin, "interactive", "i", false, "Forward standard input to the command")
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	if execShell == "" && len(args) == 0 {
		return errors.ValidationError("usage: forage-sandbox exec -- <command> [args...]")
	}

	env, err := parseEnv(execEnv)
	if err != nil {
		return err
	}

	req := control.ExecRequest{
		Command:   execShell,
		Argv:      args,
		Workdir:   execCwd,
		Env:       env,
		TimeoutMs: execTimeout.Milliseconds(),
	}
	if execShell != "" {
		req.Argv = nil
	}
	if execStdin {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		req.Stdin = string(data)
	}

	client, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	res, err := client.Exec(cmd.Context(), req)
	if err != nil {
		return err
	}
	return reportExec(cmd, res)
}

// parseEnv turns KEY=VALUE pairs into a map.
func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, errors.ValidationError(fmt.Sprintf("invalid environment variable %q (want KEY=VALUE)", p))
		}
		env[k] = v
	}
	return env, nil
}
