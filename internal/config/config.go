package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/engine"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/sandbox"
)

const (
	DefaultConfigDir       = "/etc/firefly-forage"
	DefaultStateDir        = "/var/lib/firefly-forage"
	DefaultConfigFile      = "sandbox.toml"
	DefaultControlListen   = "127.0.0.1:0"
	DefaultMonitorInterval = "30s"

	// EnvPrefix prefixes environment overrides. A double underscore
	// separates sections: FORAGE_SANDBOX_BROWSER__CDP_PORT=9333.
	EnvPrefix = "FORAGE_SANDBOX_"
)

// Config is the on-disk configuration of forage-sandbox.
type Config struct {
	StateDir  string            `koanf:"state_dir"`
	Sandbox   SandboxSection    `koanf:"sandbox"`
	Browser   BrowserSection    `koanf:"browser"`
	Resources ResourcesSection  `koanf:"resources"`
	Timeouts  TimeoutsSection   `koanf:"timeouts"`
	Control   ControlSection    `koanf:"control"`
	Monitor   MonitorSection    `koanf:"monitor"`
	Mounts    []engine.Mount    `koanf:"mounts"`
	Env       map[string]string `koanf:"env"`
}

type SandboxSection struct {
	Name       string   `koanf:"name"`
	Mode       string   `koanf:"mode"`
	Engine     string   `koanf:"engine"`
	Image      string   `koanf:"image"`
	Command    []string `koanf:"command"`
	Workdir    string   `koanf:"workdir"`
	DockerHost string   `koanf:"docker_host"` // docker-api engine only
	HostExec   bool     `koanf:"host_exec"`   // light mode only
}

type BrowserSection struct {
	Enabled   bool   `koanf:"enabled"`
	AutoStart bool   `koanf:"auto_start"`
	Image     string `koanf:"image"`
	CDPPort   int    `koanf:"cdp_port"`
}

type ResourcesSection struct {
	Memory    string  `koanf:"memory"`
	CPUs      float64 `koanf:"cpus"`
	PidsLimit int64   `koanf:"pids_limit"`
	Network   string  `koanf:"network"`
}

// TimeoutsSection holds Go duration strings.
type TimeoutsSection struct {
	Engine string `koanf:"engine"`
	Pull   string `koanf:"pull"`
	Exec   string `koanf:"exec"`
	Health string `koanf:"health"`
	Stop   string `koanf:"stop"`
}

type ControlSection struct {
	Enabled bool   `koanf:"enabled"`
	Listen  string `koanf:"listen"`
}

type MonitorSection struct {
	Interval    string `koanf:"interval"`
	AutoRecover bool   `koanf:"auto_recover"`
}

// defaults returns the built-in configuration layer.
func defaults() map[string]interface{} {
	t := sandbox.DefaultTimeouts()
	return map[string]interface{}{
		"state_dir":            DefaultStateDir,
		"sandbox.name":         sandbox.DefaultName,
		"sandbox.mode":         string(sandbox.ModeStandard),
		"sandbox.engine":       string(engine.TypeAuto),
		"sandbox.image":        sandbox.DefaultImage,
		"sandbox.command":      sandbox.DefaultCommand,
		"sandbox.workdir":      sandbox.DefaultWorkdir,
		"sandbox.host_exec":    false,
		"browser.enabled":      false,
		"browser.auto_start":   true,
		"browser.image":        sandbox.DefaultBrowserImage,
		"browser.cdp_port":     sandbox.DefaultCDPPort,
		"timeouts.engine":      t.Engine.String(),
		"timeouts.pull":        t.Pull.String(),
		"timeouts.exec":        t.Exec.String(),
		"timeouts.health":      t.Health.String(),
		"timeouts.stop":        t.Stop.String(),
		"control.enabled":      true,
		"control.listen":       DefaultControlListen,
		"monitor.interval":     DefaultMonitorInterval,
		"monitor.auto_recover": true,
	}
}

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	"state-dir":    "state_dir",
	"name":         "sandbox.name",
	"mode":         "sandbox.mode",
	"engine":       "sandbox.engine",
	"image":        "sandbox.image",
	"workdir":      "sandbox.workdir",
	"docker-host":  "sandbox.docker_host",
	"host-exec":    "sandbox.host_exec",
	"browser":      "browser.enabled",
	"cdp-port":     "browser.cdp_port",
	"memory":       "resources.memory",
	"cpus":         "resources.cpus",
	"pids-limit":   "resources.pids_limit",
	"network":      "resources.network",
	"listen":       "control.listen",
	"auto-recover": "monitor.auto_recover",
}

// DefaultConfigPath returns the system-wide configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir, DefaultConfigFile)
}

// envKey maps FORAGE_SANDBOX_BROWSER__CDP_PORT to browser.cdp_port.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Load layers defaults, the TOML file, FORAGE_SANDBOX_* environment
// variables and changed flags, in that order. An empty path reads the
// default file if it exists; an explicit path must exist.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = DefaultConfigPath()
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			logging.Debug("no config file", "path", path)
			path = ""
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), TOMLParser()); err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		p := posflag.ProviderWithValue(flags, ".", k, func(name, value string) (string, interface{}) {
			key, ok := flagKeys[name]
			if !ok || !flags.Changed(name) {
				return "", nil
			}
			return key, value
		})
		if err := k.Load(p, nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration, ignoring files, environment
// and flags.
func Default() *Config {
	k := koanf.New(".")
	_ = k.Load(confmap.Provider(defaults(), "."), nil)
	var cfg Config
	_ = k.Unmarshal("", &cfg)
	return &cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}
	if !filepath.IsAbs(c.StateDir) {
		return fmt.Errorf("state_dir must be an absolute path (got %q)", c.StateDir)
	}
	for _, m := range c.Mounts {
		if !filepath.IsAbs(m.Target) {
			return fmt.Errorf("mount target must be an absolute path (got %q)", m.Target)
		}
	}
	if _, err := DurationOrDefault(c.Monitor.Interval, DefaultMonitorInterval); err != nil {
		return fmt.Errorf("monitor.interval: %w", err)
	}
	if _, err := c.SandboxConfig(); err != nil {
		return err
	}
	return nil
}

// SandboxConfig converts the file configuration into a sandbox.Config.
func (c *Config) SandboxConfig() (sandbox.Config, error) {
	mode, err := sandbox.ParseMode(c.Sandbox.Mode)
	if err != nil {
		return sandbox.Config{}, err
	}
	engineType, err := engine.ParseType(c.Sandbox.Engine)
	if err != nil {
		return sandbox.Config{}, err
	}

	d := sandbox.DefaultTimeouts()
	var timeouts sandbox.Timeouts
	for _, f := range []struct {
		name  string
		value string
		def   string
		dst   *time.Duration
	}{
		{"timeouts.engine", c.Timeouts.Engine, d.Engine.String(), &timeouts.Engine},
		{"timeouts.pull", c.Timeouts.Pull, d.Pull.String(), &timeouts.Pull},
		{"timeouts.exec", c.Timeouts.Exec, d.Exec.String(), &timeouts.Exec},
		{"timeouts.health", c.Timeouts.Health, d.Health.String(), &timeouts.Health},
		{"timeouts.stop", c.Timeouts.Stop, d.Stop.String(), &timeouts.Stop},
	} {
		v, err := DurationOrDefault(f.value, f.def)
		if err != nil {
			return sandbox.Config{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}

	cfg := sandbox.Config{
		Name:    c.Sandbox.Name,
		Mode:    mode,
		Engine:  engineType,
		Image:   c.Sandbox.Image,
		Command: c.Sandbox.Command,
		Workdir: c.Sandbox.Workdir,
		Mounts:  c.Mounts,
		Env:     c.Env,
		Resources: engine.Resources{
			Memory:    c.Resources.Memory,
			CPUs:      c.Resources.CPUs,
			PidsLimit: c.Resources.PidsLimit,
			Network:   c.Resources.Network,
		},
		Browser: sandbox.BrowserConfig{
			Enabled:   c.Browser.Enabled,
			AutoStart: c.Browser.AutoStart,
			Image:     c.Browser.Image,
			CDPPort:   c.Browser.CDPPort,
		},
		Timeouts: timeouts,
		HostExec: c.Sandbox.HostExec,
	}
	if err := cfg.Validate(); err != nil {
		return sandbox.Config{}, err
	}
	return cfg, nil
}

// EngineOptions returns the engine options for this configuration.
func (c *Config) EngineOptions() engine.Options {
	stop, _ := DurationOrDefault(c.Timeouts.Stop, sandbox.DefaultTimeouts().Stop.String())
	return engine.Options{
		Sandbox:     c.Sandbox.Name,
		DockerHost:  c.Sandbox.DockerHost,
		StopTimeout: stop,
	}
}

// MonitorInterval returns the parsed monitor interval.
func (c *Config) MonitorInterval() time.Duration {
	d, err := DurationOrDefault(c.Monitor.Interval, DefaultMonitorInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Paths holds the configured paths
type Paths struct {
	ConfigDir    string
	StateDir     string
	SandboxesDir string
}

// Paths returns the directories derived from StateDir.
func (c *Config) Paths() *Paths {
	return &Paths{
		ConfigDir:    DefaultConfigDir,
		StateDir:     c.StateDir,
		SandboxesDir: filepath.Join(c.StateDir, "sandboxes"),
	}
}

// EnsureStateDir creates the sandboxes directory under StateDir.
func (p *Paths) EnsureStateDir() error {
	if err := os.MkdirAll(p.SandboxesDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	return nil
}
