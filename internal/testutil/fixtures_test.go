package testutil

import (
	"context"
	"testing"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/sandbox"
)

func TestLoadValidConfig(t *testing.T) {
	cfg, err := ValidConfig(t.TempDir())
	if err != nil {
		t.Fatalf("ValidConfig() error: %v", err)
	}

	if cfg.Sandbox.Name != "test-sandbox" {
		t.Errorf("Name = %q, want %q", cfg.Sandbox.Name, "test-sandbox")
	}
	if cfg.Browser.CDPPort != 9333 {
		t.Errorf("CDPPort = %d, want 9333", cfg.Browser.CDPPort)
	}
	if len(cfg.Mounts) != 1 || cfg.Mounts[0].Target != "/workspace" {
		t.Errorf("Mounts = %+v, want one mount at /workspace", cfg.Mounts)
	}
	if cfg.Env["AGENT"] != "claude" {
		t.Errorf("Env[AGENT] = %q, want %q", cfg.Env["AGENT"], "claude")
	}

	sc, err := cfg.SandboxConfig()
	if err != nil {
		t.Fatalf("SandboxConfig() error: %v", err)
	}
	if sc.Resources.PidsLimit != 256 {
		t.Errorf("PidsLimit = %d, want 256", sc.Resources.PidsLimit)
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	if _, err := InvalidConfig(t.TempDir()); err == nil {
		t.Error("Invalid config should fail validation")
	}
}

func TestLoadFixture_NotFound(t *testing.T) {
	_, err := LoadFixture("nonexistent.toml")
	if err == nil {
		t.Error("LoadFixture should error for nonexistent file")
	}
}

func TestNewTestEnv(t *testing.T) {
	env := NewTestEnv(t)

	if app.Default != env.App {
		t.Error("NewTestEnv should install the test app as default")
	}

	env.AddOrphan("leftover")
	mgr := env.StartManager()

	if mgr.State() != sandbox.StateReady {
		t.Fatalf("State() = %s, want ready", mgr.State())
	}
	if _, ok := env.Engine.Container("leftover"); ok {
		t.Error("orphan should have been removed on start")
	}

	mgr.Stop(context.Background())
	if mgr.State() != sandbox.StateStopped {
		t.Errorf("State() = %s, want stopped", mgr.State())
	}
}

func TestCleanup_RestoresDefault(t *testing.T) {
	original := app.Default

	env := NewTestEnv(t)
	env.Cleanup()

	if app.Default != original {
		t.Error("Cleanup should restore the original default app")
	}
}
