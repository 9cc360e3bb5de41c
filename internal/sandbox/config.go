package sandbox

import (
	"fmt"
	"regexp"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/engine"
)

// Mode selects how commands are isolated.
type Mode string

const (
	// ModeOff disables the sandbox; Exec always refuses
	ModeOff Mode = "off"

	// ModeLight runs no container; commands run on the host only when
	// Config.HostExec allows it
	ModeLight Mode = "light"

	// ModeStandard runs commands inside a managed container
	ModeStandard Mode = "standard"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeOff, ModeLight, ModeStandard:
		return m, nil
	default:
		return "", fmt.Errorf("invalid sandbox mode %q: must be off, light, or standard", s)
	}
}

const (
	DefaultName         = "default"
	DefaultImage        = "docker.io/library/debian:bookworm-slim"
	DefaultBrowserImage = "docker.io/chromedp/headless-shell:latest"
	DefaultCDPPort      = 9222
	DefaultWorkdir      = "/workspace"
)

// DefaultCommand keeps the main container alive between execs
var DefaultCommand = []string{"sleep", "infinity"}

// sandboxNameRegex validates sandbox names.
// Names must start with a lowercase letter or digit, followed by lowercase letters, digits, underscores, or hyphens.
// Maximum length is 63 characters (common container name limit).
var sandboxNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// ValidateName checks if a sandbox name is valid.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("sandbox name cannot be empty")
	}

	if !sandboxNameRegex.MatchString(name) {
		return fmt.Errorf("invalid sandbox name %q: must start with a lowercase letter or digit, contain only lowercase letters, digits, underscores, or hyphens, and be at most 63 characters", name)
	}

	return nil
}

// BrowserConfig configures the companion headless-browser container.
type BrowserConfig struct {
	Enabled   bool
	AutoStart bool
	Image     string
	CDPPort   int
}

// Timeouts bounds each engine call made by the Manager.
type Timeouts struct {
	Engine time.Duration // availability, run, stop, remove, list
	Pull   time.Duration
	Exec   time.Duration // default when ExecRequest.Timeout is zero
	Health time.Duration
	Stop   time.Duration // grace period passed to the engine on stop
}

// DefaultTimeouts returns the default engine call deadlines.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Engine: 30 * time.Second,
		Pull:   10 * time.Minute,
		Exec:   5 * time.Minute,
		Health: 15 * time.Second,
		Stop:   10 * time.Second,
	}
}

// Config holds the immutable configuration of a Manager.
type Config struct {
	Name      string
	Mode      Mode
	Engine    engine.Type // empty or "auto" means detect
	Image     string
	Command   []string
	Workdir   string
	Mounts    []engine.Mount
	Env       map[string]string
	Resources engine.Resources
	Browser   BrowserConfig
	Timeouts  Timeouts

	// HostExec lets light mode run commands directly on the host.
	HostExec bool
}

// DefaultConfig returns a standard-mode configuration with defaults filled in.
func DefaultConfig() Config {
	return Config{
		Name:     DefaultName,
		Mode:     ModeStandard,
		Engine:   engine.TypeAuto,
		Image:    DefaultImage,
		Command:  DefaultCommand,
		Workdir:  DefaultWorkdir,
		Browser:  BrowserConfig{Image: DefaultBrowserImage, CDPPort: DefaultCDPPort},
		Timeouts: DefaultTimeouts(),
	}
}

// withDefaults returns a copy with zero values replaced by defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.Engine == "" {
		c.Engine = d.Engine
	}
	if c.Image == "" {
		c.Image = d.Image
	}
	if len(c.Command) == 0 {
		c.Command = d.Command
	}
	if c.Workdir == "" {
		c.Workdir = d.Workdir
	}
	if c.Browser.Image == "" {
		c.Browser.Image = d.Browser.Image
	}
	if c.Browser.CDPPort == 0 {
		c.Browser.CDPPort = d.Browser.CDPPort
	}
	if c.Timeouts.Engine <= 0 {
		c.Timeouts.Engine = d.Timeouts.Engine
	}
	if c.Timeouts.Pull <= 0 {
		c.Timeouts.Pull = d.Timeouts.Pull
	}
	if c.Timeouts.Exec <= 0 {
		c.Timeouts.Exec = d.Timeouts.Exec
	}
	if c.Timeouts.Health <= 0 {
		c.Timeouts.Health = d.Timeouts.Health
	}
	if c.Timeouts.Stop <= 0 {
		c.Timeouts.Stop = d.Timeouts.Stop
	}
	return c
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if err := ValidateName(c.Name); err != nil {
		return err
	}
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if _, err := engine.ParseType(string(c.Engine)); err != nil {
		return err
	}
	if c.Browser.CDPPort < 1 || c.Browser.CDPPort > 65535 {
		return fmt.Errorf("invalid browser CDP port %d", c.Browser.CDPPort)
	}
	for _, m := range c.Mounts {
		if m.Source == "" || m.Target == "" {
			return fmt.Errorf("mount requires both source and target")
		}
	}
	if c.Resources.CPUs < 0 || c.Resources.PidsLimit < 0 {
		return fmt.Errorf("resource limits cannot be negative")
	}
	return nil
}
