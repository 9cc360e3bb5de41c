// Package errors provides typed errors with exit codes for forage-sandbox.
//
// # Error Types
//
// ForageError is the base error type that wraps an error with an exit code:
//
//	type ForageError struct {
//	    Code    int    // Exit code
//	    Message string // User-facing message
//	    Cause   error  // Wrapped error
//	}
//
// # Exit Codes
//
//	ExitSuccess           = 0  // Success
//	ExitGeneralError      = 1  // General/unknown errors
//	ExitEngineUnavailable = 2  // No usable container engine
//	ExitImageNotFound     = 3  // Image missing and pull failed
//	ExitSandboxNotReady   = 4  // Sandbox is not in the ready state
//	ExitContainerFailed   = 5  // Container operation failed
//	ExitConfigError       = 6  // Configuration error
//	ExitLocked            = 7  // Sandbox owned by another process
//	ExitControlError      = 8  // Control API request failed
//
// # Extracting Exit Codes
//
//	if err != nil {
//	    os.Exit(errors.GetExitCode(err))
//	}
package errors
