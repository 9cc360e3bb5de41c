package errors

import (
	"errors"
	"fmt"
)

// Exit codes for forage-sandbox
const (
	ExitSuccess           = 0
	ExitGeneralError      = 1
	ExitEngineUnavailable = 2
	ExitImageNotFound     = 3
	ExitSandboxNotReady   = 4
	ExitContainerFailed   = 5
	ExitConfigError       = 6
	ExitLocked            = 7
	ExitControlError      = 8
)

// ForageError is the base error type for forage-sandbox
type ForageError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ForageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ForageError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the exit code for this error
func (e *ForageError) ExitCode() int {
	return e.Code
}

// New creates a new ForageError
func New(code int, message string) *ForageError {
	return &ForageError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a ForageError
func Wrap(code int, message string, cause error) *ForageError {
	return &ForageError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Common error constructors. The message substrings "is not available",
// "not found" and "Sandbox not ready" are matched by callers and must stay
// stable.

// EngineUnavailable returns an error for a container engine that cannot be used
func EngineUnavailable(engineType string) *ForageError {
	if engineType == "" {
		engineType = "auto"
	}
	return New(ExitEngineUnavailable, fmt.Sprintf("container engine %s is not available", engineType))
}

// ImageNotFound returns an error for an image that is missing and could not be pulled
func ImageNotFound(image string, cause error) *ForageError {
	return Wrap(ExitImageNotFound, fmt.Sprintf("image %s not found", image), cause)
}

// SandboxNotReady returns an error for operations that need a ready sandbox
func SandboxNotReady(name, state string) *ForageError {
	return New(ExitSandboxNotReady, fmt.Sprintf("Sandbox not ready: %s is %s", name, state))
}

// ContainerFailed returns an error for container operations
func ContainerFailed(op string, cause error) *ForageError {
	return Wrap(ExitContainerFailed, fmt.Sprintf("container %s failed", op), cause)
}

// ConfigError returns an error for configuration issues
func ConfigError(message string, cause error) *ForageError {
	return Wrap(ExitConfigError, message, cause)
}

// Locked returns an error when another process owns the sandbox
func Locked(name string, cause error) *ForageError {
	return Wrap(ExitLocked, fmt.Sprintf("sandbox %s is owned by another process", name), cause)
}

// ControlError returns an error for control API requests
func ControlError(message string, cause error) *ForageError {
	return Wrap(ExitControlError, message, cause)
}

// ValidationError returns an error for input validation failures
func ValidationError(message string) *ForageError {
	return New(ExitGeneralError, message)
}

// GetExitCode extracts the exit code from an error
func GetExitCode(err error) int {
	var forageErr *ForageError
	if errors.As(err, &forageErr) {
		return forageErr.ExitCode()
	}
	return ExitGeneralError
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
