// Package integration provides a test harness for integration tests
// that require a real container engine.
//
// Integration tests are skipped unless the FORAGE_INTEGRATION_TESTS
// environment variable is set. These tests require:
// - A reachable engine (docker, podman, Apple container or the Docker API)
// - Network access to pull the test image, or the image already present
package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/engine"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/sandbox"
)

// Environment variables read by the harness.
const (
	EnvEnable  = "FORAGE_INTEGRATION_TESTS"
	EnvEngine  = "FORAGE_ENGINE"
	EnvImage   = "FORAGE_TEST_IMAGE"
	EnvBrowser = "FORAGE_TEST_BROWSER"
)

// DefaultImage is small and ships a POSIX shell.
const DefaultImage = "docker.io/library/alpine:3"

// TestHarness provides utilities for integration testing with real containers.
type TestHarness struct {
	t        *testing.T
	stateDir string
	name     string
	eng      engine.Engine
	image    string
	managers []*sandbox.Manager // Track started managers for cleanup
}

// NewHarness creates a new test harness.
// It will skip the test if FORAGE_INTEGRATION_TESTS is not set.
func NewHarness(t *testing.T) *TestHarness {
	t.Helper()

	if os.Getenv(EnvEnable) == "" {
		t.Skip("integration tests disabled (set FORAGE_INTEGRATION_TESTS=1 to enable)")
	}

	name := "it-" + strings.ToLower(ulid.Make().String()[14:])

	engineType, err := engine.ParseType(os.Getenv(EnvEngine))
	if err != nil {
		t.Fatalf("invalid %s: %v", EnvEngine, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	eng, err := engine.Resolve(ctx, engineType, engine.Options{Sandbox: name, StopTimeout: 2 * time.Second})
	if err != nil {
		t.Skipf("no container engine available: %v", err)
	}
	if !eng.IsAvailable(ctx) {
		t.Skipf("engine %s is not available", eng.Type())
	}

	image := os.Getenv(EnvImage)
	if image == "" {
		image = DefaultImage
	}

	h := &TestHarness{
		t:        t,
		stateDir: t.TempDir(),
		name:     name,
		eng:      eng,
		image:    image,
	}

	t.Cleanup(h.Cleanup)

	return h
}

// Name returns the unique sandbox name of this harness.
func (h *TestHarness) Name() string {
	return h.name
}

// Engine returns the container engine.
func (h *TestHarness) Engine() engine.Engine {
	return h.eng
}

// StateDir returns the temporary state directory.
func (h *TestHarness) StateDir() string {
	return h.stateDir
}

// Config returns a standard-mode configuration for the harness sandbox.
func (h *TestHarness) Config() sandbox.Config {
	cfg := sandbox.DefaultConfig()
	cfg.Name = h.name
	cfg.Engine = h.eng.Type()
	cfg.Image = h.image
	cfg.Workdir = "/"
	cfg.Timeouts.Stop = 2 * time.Second
	return cfg
}

// NewManager builds a Manager bound to the harness engine. Events are
// persisted under the state directory. The Manager is stopped on cleanup.
func (h *TestHarness) NewManager(cfg sandbox.Config) *sandbox.Manager {
	h.t.Helper()

	mgr, err := sandbox.NewManager(context.Background(), cfg,
		sandbox.WithEngine(h.eng),
		sandbox.WithSinks(audit.NewLogger(h.stateDir)),
		sandbox.WithHandleStore(sandbox.NewHandleStore(h.stateDir)),
	)
	if err != nil {
		h.t.Fatalf("Failed to create manager: %v", err)
	}
	h.managers = append(h.managers, mgr)
	return mgr
}

// WaitForCDP waits for a browser companion to answer on its DevTools endpoint.
func (h *TestHarness) WaitForCDP(endpoint string, timeout time.Duration) (*health.CDPVersion, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("CDP not ready after %v", timeout)
		case <-ticker.C:
			if v, err := health.CheckCDP(ctx, nil, endpoint); err == nil {
				return v, nil
			}
		}
	}
}

// RequireBrowser skips the test unless browser tests are enabled.
func (h *TestHarness) RequireBrowser() {
	h.t.Helper()

	if os.Getenv(EnvBrowser) == "" {
		h.t.Skip("browser tests disabled (set FORAGE_TEST_BROWSER=1 to enable)")
	}
}

// Cleanup stops every tracked Manager and removes anything still labeled
// with the harness sandbox name.
func (h *TestHarness) Cleanup() {
	ctx := context.Background()

	for _, mgr := range h.managers {
		mgr.Stop(ctx)
	}

	report, err := sandbox.CleanupOrphans(ctx, h.eng, 10*time.Second)
	if err != nil {
		h.t.Logf("Warning: orphan cleanup failed: %v", err)
		return
	}
	for id, err := range report.Failed {
		h.t.Logf("Warning: failed to remove container %s: %v", id, err)
	}
}

// Containers lists the containers the engine reports for the harness sandbox.
func (h *TestHarness) Containers() []string {
	h.t.Helper()

	ids, err := h.eng.ListContainers(context.Background())
	if err != nil {
		h.t.Fatalf("ListContainers failed: %v", err)
	}
	return ids
}
