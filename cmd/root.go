package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/logging"
)

var (
	verbose    bool
	jsonOutput bool
	configPath string
	output     string
)

var rootCmd = &cobra.Command{
	Use:   "forage-sandbox",
	Short: "Firefly Forage sandbox lifecycle manager",
	Long: `forage-sandbox runs an isolated execution sandbox for an AI agent.

A sandbox is a long-lived container on the first available engine
(docker, podman, Apple container, or the Docker Engine API) with an
optional headless-browser companion. Commands execute inside it, and
every lifecycle step is recorded in an append-only event log.

Modes:
  off       no sandbox, every exec is refused
  light     no container; commands run on the host with --host-exec
  standard  commands run inside the container`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Setup(verbose, jsonOutput, os.Stderr)
		logging.SetUserOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())
		return setupApp(cmd)
	},
}

// setupApp loads the configuration into app.Default; replaced in tests
var setupApp = loadApp

func loadApp(cmd *cobra.Command) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return errors.ConfigError("failed to load configuration", err)
	}
	app.SetDefault(app.New(app.WithConfig(cfg)))
	return nil
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	pf.BoolVar(&jsonOutput, "json", false, "Output logs in JSON format")
	pf.StringVarP(&configPath, "config", "c", "", "Configuration file (default "+config.DefaultConfigPath()+")")
	pf.StringVarP(&output, "output", "o", "text", "Output format: text or json")

	pf.String("state-dir", "", "State directory")
	pf.String("name", "", "Sandbox name")
	pf.String("engine", "", "Container engine: auto, docker, podman, apple, docker-api")
	pf.String("docker-host", "", "Docker Engine API host (docker-api engine)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// addSandboxFlags adds the flags that shape a sandbox being started.
// They map onto configuration keys in config.Load.
func addSandboxFlags(fs *pflag.FlagSet) {
	fs.String("mode", "", "Sandbox mode: off, light, standard")
	fs.String("image", "", "Main container image")
	fs.String("workdir", "", "Working directory inside the container")
	fs.Bool("browser", false, "Run the headless-browser companion")
	fs.Int("cdp-port", 0, "Host port for the browser's DevTools protocol")
	fs.String("memory", "", "Memory limit, e.g. 2g")
	fs.Float64("cpus", 0, "CPU limit")
	fs.Int64("pids-limit", 0, "Process limit")
	fs.String("network", "", "Container network mode")
	fs.Bool("host-exec", false, "Allow light mode to run commands on the host")
}
