// Package integration provides a test harness for integration tests
// that require a real container engine.
//
// Integration tests are skipped unless the FORAGE_INTEGRATION_TESTS
// environment variable is set. The engine is detected unless
// FORAGE_ENGINE names one; FORAGE_TEST_IMAGE overrides the test image.
// Browser companion tests also need FORAGE_TEST_BROWSER.
//
// # Test Harness
//
// TestHarness manages test environments:
//
//	func TestMyIntegration(t *testing.T) {
//	    h := integration.NewHarness(t) // Skips if env var not set
//
//	    mgr := h.NewManager(h.Config())
//	    if err := mgr.Start(ctx); err != nil {
//	        t.Fatal(err)
//	    }
//
//	    // Cleanup is automatic via t.Cleanup
//	}
//
// # Harness Features
//
// The harness provides:
//   - A unique sandbox name per test, so labels never collide
//   - A temporary state directory for the event log and handles
//   - CDP readiness waiting (WaitForCDP)
//   - Manager tracking and orphan cleanup on test end
//
// # Running Integration Tests
//
//	FORAGE_INTEGRATION_TESTS=1 go test -v ./internal/integration/...
//	FORAGE_INTEGRATION_TESTS=1 FORAGE_ENGINE=podman go test -v ./internal/integration/...
package integration
