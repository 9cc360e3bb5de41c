package app

import (
	"context"
	"testing"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/control"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/engine"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/sandbox"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/system"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.StateDir = t.TempDir()
	cfg.Sandbox.Engine = string(engine.TypeMock)
	return cfg
}

func TestNew(t *testing.T) {
	app := New()

	if app == nil {
		t.Fatal("New() returned nil")
	}

	// Should have default config and paths
	if app.Config == nil {
		t.Error("Config should not be nil")
	}
	if app.Paths == nil {
		t.Error("Paths should not be nil")
	}
	if app.Runner == nil {
		t.Error("Runner should not be nil")
	}

	// Engine is resolved lazily
	if app.Engine != nil {
		t.Error("Engine should be nil until resolved")
	}
}

func TestNew_WithConfig(t *testing.T) {
	cfg := testConfig(t)

	app := New(WithConfig(cfg))

	if app.Config != cfg {
		t.Error("WithConfig did not set config")
	}
	if app.Paths.StateDir != cfg.StateDir {
		t.Errorf("Paths.StateDir = %q, want %q", app.Paths.StateDir, cfg.StateDir)
	}
}

func TestNew_WithPaths(t *testing.T) {
	customPaths := &config.Paths{
		ConfigDir:    "/custom/config",
		StateDir:     "/custom/state",
		SandboxesDir: "/custom/state/sandboxes",
	}

	app := New(WithPaths(customPaths))

	if app.Paths != customPaths {
		t.Error("WithPaths did not set custom paths")
	}
}

func TestNew_WithEngine(t *testing.T) {
	mock := engine.NewMockEngine()

	app := New(WithEngine(mock))

	e, err := app.ResolveEngine(context.Background())
	if err != nil {
		t.Fatalf("ResolveEngine() error: %v", err)
	}
	if e != mock {
		t.Error("ResolveEngine did not return the injected engine")
	}
}

func TestNew_WithRunner(t *testing.T) {
	runner := system.NewMockRunner()

	app := New(WithRunner(runner))

	if app.Runner != runner {
		t.Error("WithRunner did not set runner")
	}
}

func TestResolveEngine_InvalidType(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sandbox.Engine = "vmware"

	app := New(WithConfig(cfg))

	if _, err := app.ResolveEngine(context.Background()); err == nil {
		t.Error("expected error for unknown engine type")
	}
}

func TestNewManager(t *testing.T) {
	cfg := testConfig(t)
	mock := engine.NewMockEngine()
	mock.AddImage(cfg.Sandbox.Image)

	app := New(WithConfig(cfg), WithEngine(mock))

	mgr, err := app.NewManager(context.Background())
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if mgr.State() != sandbox.StateReady {
		t.Fatalf("State() = %s, want ready", mgr.State())
	}

	// Events reach the audit log
	events, err := app.AuditLogger().Events(cfg.Sandbox.Name)
	if err != nil {
		t.Fatalf("Events() error: %v", err)
	}
	if len(events) == 0 {
		t.Error("expected events in the audit log")
	}
	found := false
	for _, e := range events {
		if e.Type == audit.EventContainerStart {
			found = true
		}
	}
	if !found {
		t.Error("expected a container_start event in the audit log")
	}

	// Handles are persisted
	h, err := app.HandleStore().Load(cfg.Sandbox.Name)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if h.Main != mgr.MainContainerID() {
		t.Errorf("persisted main = %q, want %q", h.Main, mgr.MainContainerID())
	}
}

func TestNewManager_LightModeSkipsEngine(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sandbox.Mode = string(sandbox.ModeLight)

	app := New(WithConfig(cfg))

	mgr, err := app.NewManager(context.Background())
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	if app.Engine != nil {
		t.Error("light mode should not resolve an engine")
	}
	if mgr.Mode() != sandbox.ModeLight {
		t.Errorf("Mode() = %s, want light", mgr.Mode())
	}
}

func TestClient(t *testing.T) {
	cfg := testConfig(t)
	app := New(WithConfig(cfg))

	if _, err := app.Client(); err == nil {
		t.Error("expected error without a control address")
	}

	if err := control.WriteAddress(cfg.StateDir, cfg.Sandbox.Name, "127.0.0.1:4242"); err != nil {
		t.Fatalf("WriteAddress() error: %v", err)
	}
	if _, err := app.Client(); err != nil {
		t.Errorf("Client() error: %v", err)
	}
}

func TestSetDefault(t *testing.T) {
	original := Default
	defer func() { Default = original }()

	customApp := New(WithPaths(&config.Paths{ConfigDir: "/test"}))
	SetDefault(customApp)

	if Default != customApp {
		t.Error("SetDefault did not set the default app")
	}
}

func TestResetDefault(t *testing.T) {
	original := Default
	defer func() { Default = original }()

	customApp := New(WithPaths(&config.Paths{ConfigDir: "/test"}))
	SetDefault(customApp)

	ResetDefault()

	if Default == customApp {
		t.Error("ResetDefault did not reset the default app")
	}
}
