// Package testutil provides test fixtures and a mock-backed environment.
//
// # Fixtures
//
// TOML fixtures are embedded using go:embed and loaded through
// config.Load, so they are layered over defaults and validated:
//
//	fixtures/valid_sandbox.toml
//	fixtures/invalid_sandbox.toml
//
//	cfg, err := testutil.ValidConfig(t.TempDir())
//
// # Test Environment
//
// NewTestEnv builds an app.App over a temporary state directory, a
// MockEngine that already holds the configured image, and a MockRunner.
// It installs the app as app.Default until the test ends:
//
//	env := testutil.NewTestEnv(t)
//	env.AddOrphan("forage-sbx-test-sandbox-main-old")
//	mgr := env.StartManager()
package testutil
