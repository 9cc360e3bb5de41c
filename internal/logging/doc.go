// Package logging provides logging utilities for forage-sandbox.
//
// This package provides two categories of output:
//   - Debug logging: Structured logs for debugging (via slog)
//   - User output: Formatted messages for end users
//
// # Debug Logging
//
// Debug logs are written using slog and controlled by verbosity settings.
// Console output goes through a tint handler; --json switches to slog's
// JSON handler for machine consumption:
//
//	logging.Debug("running container", "sandbox", name, "image", image)
//	logging.Warn("orphan removal failed", "id", id, "error", err)
//
// # User Output
//
// User-facing messages are short status lines with an indicator, colored
// when the destination is a terminal. With --json they become log records:
//
//	logging.UserInfo("Starting sandbox %s...", name)
//	logging.UserSuccess("Sandbox %s is ready", name)
//	logging.UserWarning("Sandbox %s is degraded", name)
//	logging.UserError("Failed to start sandbox: %v", err)
//
// Output destinations (see SetUserOutput):
//   - UserInfo, UserSuccess: the command's stdout
//   - UserWarning, UserError: the command's stderr
//
// # Status Indicators
//
// User functions prepend status indicators:
//   - ℹ (info)
//   - ✓ (success)
//   - ⚠ (warning)
//   - ✗ (error)
package logging
