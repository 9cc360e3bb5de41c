// Package app provides the application context for forage-sandbox.
// It allows dependency injection for testing.
package app

import (
	"context"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/control"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/engine"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/sandbox"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/system"
)

// App holds the application dependencies
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	// Paths holds the configured paths
	Paths *config.Paths

	// Engine overrides engine resolution when set
	Engine engine.Engine

	// Runner runs host commands for light mode
	Runner system.CommandRunner
}

// Option is a function that configures the App
type Option func(*App)

// WithConfig sets the loaded configuration
func WithConfig(cfg *config.Config) Option {
	return func(a *App) {
		a.Config = cfg
	}
}

// WithPaths sets custom paths
func WithPaths(paths *config.Paths) Option {
	return func(a *App) {
		a.Paths = paths
	}
}

// WithEngine sets a custom container engine
func WithEngine(e engine.Engine) Option {
	return func(a *App) {
		a.Engine = e
	}
}

// WithRunner sets a custom command runner
func WithRunner(r system.CommandRunner) Option {
	return func(a *App) {
		a.Runner = r
	}
}

// New creates a new App with the given options.
// The engine is not probed here; it is resolved on first use.
func New(opts ...Option) *App {
	app := &App{}

	for _, opt := range opts {
		opt(app)
	}

	if app.Config == nil {
		app.Config = config.Default()
	}
	if app.Paths == nil {
		app.Paths = app.Config.Paths()
	}
	if app.Runner == nil {
		app.Runner = system.DefaultRunner()
	}

	return app
}

// ResolveEngine returns the configured engine, detecting one when the
// configuration says auto.
func (a *App) ResolveEngine(ctx context.Context) (engine.Engine, error) {
	if a.Engine != nil {
		return a.Engine, nil
	}
	t, err := engine.ParseType(a.Config.Sandbox.Engine)
	if err != nil {
		return nil, err
	}
	e, err := engine.Resolve(ctx, t, a.Config.EngineOptions())
	if err != nil {
		return nil, err
	}
	a.Engine = e
	return e, nil
}

// AuditLogger returns the persistent event log under the state directory.
func (a *App) AuditLogger() *audit.Logger {
	return audit.NewLogger(a.Paths.StateDir)
}

// HandleStore returns the container handle store under the state directory.
func (a *App) HandleStore() *sandbox.HandleStore {
	return sandbox.NewHandleStore(a.Paths.StateDir)
}

// NewManager builds a Manager from the configuration. Events go to the
// audit log and handles are persisted; extra options are applied last.
func (a *App) NewManager(ctx context.Context, extra ...sandbox.Option) (*sandbox.Manager, error) {
	cfg, err := a.Config.SandboxConfig()
	if err != nil {
		return nil, err
	}

	opts := []sandbox.Option{
		sandbox.WithRunner(a.Runner),
		sandbox.WithSinks(a.AuditLogger()),
		sandbox.WithHandleStore(a.HandleStore()),
	}
	if cfg.Mode == sandbox.ModeStandard {
		if e, err := a.ResolveEngine(ctx); err != nil {
			logging.Debug("engine resolution failed", "engine", cfg.Engine, "error", err)
		} else {
			opts = append(opts, sandbox.WithEngine(e))
		}
	}
	opts = append(opts, extra...)

	return sandbox.NewManager(ctx, cfg, opts...)
}

// Client returns a control client for the configured sandbox.
func (a *App) Client() (*control.Client, error) {
	addr, err := control.ReadAddress(a.Paths.StateDir, a.Config.Sandbox.Name)
	if err != nil {
		return nil, err
	}
	return control.NewClient(addr), nil
}

// Default is the default application instance
var Default = New()

// SetDefault sets the default application instance (used for testing)
func SetDefault(app *App) {
	Default = app
}

// ResetDefault resets to the default application instance
func ResetDefault() {
	Default = New()
}
