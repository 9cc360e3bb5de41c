// Package testutil provides test utilities for packages that drive a sandbox
package testutil

import (
	"context"
	"testing"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/engine"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/sandbox"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/system"
)

// TestEnv holds the test environment
type TestEnv struct {
	T       *testing.T
	TmpDir  string
	Config  *config.Config
	Paths   *config.Paths
	Engine  *engine.MockEngine
	Runner  *system.MockRunner
	App     *app.App
	cleanup func()
}

// NewTestEnv creates a new test environment backed by a mock engine.
// The configured image is present, so a Start succeeds unless the test
// injects failures.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	tmpDir := t.TempDir()

	cfg := config.Default()
	cfg.StateDir = tmpDir
	cfg.Sandbox.Name = "test-sandbox"
	cfg.Sandbox.Engine = string(engine.TypeMock)
	cfg.Timeouts.Stop = "1s"

	paths := cfg.Paths()
	if err := paths.EnsureStateDir(); err != nil {
		t.Fatalf("Failed to create state directory: %v", err)
	}

	mockEngine := engine.NewMockEngine()
	mockEngine.AddImage(cfg.Sandbox.Image)
	mockRunner := system.NewMockRunner()

	testApp := app.New(
		app.WithConfig(cfg),
		app.WithPaths(paths),
		app.WithEngine(mockEngine),
		app.WithRunner(mockRunner),
	)

	// Save original default and set test app
	originalDefault := app.Default
	app.SetDefault(testApp)

	env := &TestEnv{
		T:       t,
		TmpDir:  tmpDir,
		Config:  cfg,
		Paths:   paths,
		Engine:  mockEngine,
		Runner:  mockRunner,
		App:     testApp,
		cleanup: func() {
			app.SetDefault(originalDefault)
		},
	}
	t.Cleanup(env.Cleanup)

	return env
}

// Cleanup restores the original app default
func (e *TestEnv) Cleanup() {
	if e.cleanup != nil {
		e.cleanup()
		e.cleanup = nil
	}
}

// EnableBrowser turns on the browser companion with auto-start.
func (e *TestEnv) EnableBrowser() {
	e.Config.Browser.Enabled = true
	e.Config.Browser.AutoStart = true
}

// AddOrphan adds a running container the mock engine reports as owned by
// the sandbox.
func (e *TestEnv) AddOrphan(id string) {
	e.Engine.AddContainer(id, true)
}

// NewManager builds a Manager through the test app.
func (e *TestEnv) NewManager(opts ...sandbox.Option) *sandbox.Manager {
	e.T.Helper()

	mgr, err := e.App.NewManager(context.Background(), opts...)
	if err != nil {
		e.T.Fatalf("Failed to create manager: %v", err)
	}
	return mgr
}

// StartManager builds a Manager and starts it, stopping it at test end.
func (e *TestEnv) StartManager(opts ...sandbox.Option) *sandbox.Manager {
	e.T.Helper()

	mgr := e.NewManager(opts...)
	if err := mgr.Start(context.Background()); err != nil {
		e.T.Fatalf("Failed to start manager: %v", err)
	}
	e.T.Cleanup(func() { mgr.Stop(context.Background()) })
	return mgr
}

// SaveHandles records container handles as a crashed owner would leave them.
func (e *TestEnv) SaveHandles(main, browser string) {
	e.T.Helper()

	err := e.App.HandleStore().Save(sandbox.Handles{
		Sandbox: e.Config.Sandbox.Name,
		Engine:  engine.TypeMock,
		Main:    main,
		Browser: browser,
	})
	if err != nil {
		e.T.Fatalf("Failed to save handles: %v", err)
	}
}
