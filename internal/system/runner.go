// Package system abstracts process execution so container engine adapters
// can be exercised in tests without a container runtime on the host.
package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Command describes a process to run.
type Command struct {
	Name  string
	Args  []string
	Dir   string    // Working directory; empty means the current one
	Env   []string  // Extra KEY=VALUE pairs appended to the parent environment
	Stdin io.Reader // Optional standard input
}

// Output holds the captured result of a finished process.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// CommandRunner runs processes to completion.
//
// Run returns an error only when the process could not be started or was
// cut short by the context. A process that ran and exited non-zero is
// reported through Output.ExitCode with a nil error.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (*Output, error)

	// LookPath searches PATH for an executable, like exec.LookPath.
	LookPath(name string) (string, error)
}

var defaultRunner CommandRunner = &osRunner{}

// DefaultRunner returns the CommandRunner backed by os/exec.
func DefaultRunner() CommandRunner {
	return defaultRunner
}

// SetDefaultRunner replaces the default runner (useful for testing).
func SetDefaultRunner(r CommandRunner) {
	defaultRunner = r
}

// ResetDefaults restores the os/exec runner.
func ResetDefaults() {
	defaultRunner = &osRunner{}
}

type osRunner struct{}

func (r *osRunner) Run(ctx context.Context, c Command) (*Output, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != nil {
		cmd.Stdin = c.Stdin
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := &Output{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			out.ExitCode = -1
			return out, fmt.Errorf("%s: %w", c.Name, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		out.ExitCode = -1
		return out, fmt.Errorf("%s: %w", c.Name, err)
	}

	return out, nil
}

func (r *osRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
