package integration

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/engine"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/sandbox"
)

// TestHarnessConfig checks the harness config is valid for a real engine.
// Skipped unless FORAGE_INTEGRATION_TESTS=1.
func TestHarnessConfig(t *testing.T) {
	h := NewHarness(t)

	cfg := h.Config()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("harness config should be valid: %v", err)
	}
	if !strings.HasPrefix(cfg.Name, "it-") {
		t.Errorf("Name = %q, want it- prefix", cfg.Name)
	}
}

// TestSandbox_Lifecycle starts a sandbox, runs commands in it, and stops it.
func TestSandbox_Lifecycle(t *testing.T) {
	h := NewHarness(t)
	ctx := context.Background()

	mgr := h.NewManager(h.Config())

	t.Log("Starting sandbox...")
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if mgr.State() != sandbox.StateReady {
		t.Fatalf("State = %s, want ready; events: %+v", mgr.State(), mgr.Events())
	}
	if len(h.Containers()) != 1 {
		t.Errorf("expected 1 container, got %v", h.Containers())
	}

	t.Log("Running commands...")
	res := mgr.Exec(ctx, sandbox.ExecRequest{Command: "echo hello"})
	if res.ExitCode != 0 || strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("echo: exit=%d stdout=%q stderr=%q", res.ExitCode, res.Stdout, res.Stderr)
	}
	if !res.ExecutedInSandbox {
		t.Error("exec should run in the sandbox")
	}

	res = mgr.Exec(ctx, sandbox.ExecRequest{Argv: []string{"sh", "-c", "exit 7"}})
	if res.ExitCode != 7 {
		t.Errorf("exit code = %d, want 7", res.ExitCode)
	}

	res = mgr.Exec(ctx, sandbox.ExecRequest{Command: "sleep 5", Timeout: 500 * time.Millisecond})
	if res.ExitCode == 0 {
		t.Error("timed out exec should fail")
	}

	t.Log("Stopping sandbox...")
	mgr.Stop(ctx)
	if mgr.State() != sandbox.StateStopped {
		t.Errorf("State = %s, want stopped", mgr.State())
	}
	if ids := h.Containers(); len(ids) != 0 {
		t.Errorf("containers left after stop: %v", ids)
	}
}

// TestSandbox_OrphanCleanup simulates a crashed owner and checks that the
// next start removes its container.
func TestSandbox_OrphanCleanup(t *testing.T) {
	h := NewHarness(t)
	ctx := context.Background()

	crashed := h.NewManager(h.Config())
	if err := crashed.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	leftover := crashed.MainContainerID()

	// A new owner without stopping the first one
	mgr := h.NewManager(h.Config())
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}

	ids := h.Containers()
	for _, id := range ids {
		if id == leftover {
			t.Errorf("orphan %s should have been removed", leftover)
		}
	}
	if len(ids) != 1 || ids[0] != mgr.MainContainerID() {
		t.Errorf("containers = %v, want only %s", ids, mgr.MainContainerID())
	}

	cleaned := false
	for _, e := range mgr.Events() {
		if e.Type == audit.EventOrphanCleanup {
			cleaned = true
		}
	}
	if !cleaned {
		t.Error("expected an orphan_cleanup event")
	}
}

// TestSandbox_MissingImage checks that an unknown image degrades the sandbox.
func TestSandbox_MissingImage(t *testing.T) {
	h := NewHarness(t)

	cfg := h.Config()
	cfg.Image = "docker.io/library/forage-does-not-exist:never"
	cfg.Timeouts.Pull = 30 * time.Second

	mgr := h.NewManager(cfg)
	err := mgr.Start(context.Background())
	if err == nil {
		t.Fatal("Start should fail for a missing image")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want image not found", err)
	}
	if mgr.State() != sandbox.StateDegraded {
		t.Errorf("State = %s, want degraded", mgr.State())
	}
}

// TestSandbox_Browser starts the headless-browser companion.
// Also requires FORAGE_TEST_BROWSER=1.
func TestSandbox_Browser(t *testing.T) {
	h := NewHarness(t)
	h.RequireBrowser()

	cfg := h.Config()
	cfg.Browser = sandbox.BrowserConfig{Enabled: true, AutoStart: true, CDPPort: 9229}

	mgr := h.NewManager(cfg)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	endpoint := mgr.BrowserCDPEndpoint()
	if endpoint == "" {
		t.Fatalf("browser did not start; events: %+v", mgr.Events())
	}
	v, err := h.WaitForCDP(endpoint, 60*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("Browser: %s", v.Browser)

	mgr.Stop(context.Background())
	for _, id := range h.Containers() {
		if strings.Contains(id, string(engine.RoleBrowser)) {
			t.Errorf("browser container %s left after stop", id)
		}
	}
}
