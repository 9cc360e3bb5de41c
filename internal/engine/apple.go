// This file implements the Apple container backend for macOS.
//
// Apple container (github.com/apple/container) runs Linux containers in
// lightweight VMs through Virtualization.framework. It has no label filter
// on "list", so ownership is established by the container name prefix.
//
// Prerequisites:
// - macOS 15+ on Apple Silicon
// - The 'container' CLI installed and its system service started
//   ("container system start")

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	goruntime "runtime"
	"strconv"
	"strings"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/system"
)

// AppleEngine implements Engine using the Apple container CLI.
type AppleEngine struct {
	binary  string
	sandbox string
	runner  system.CommandRunner
	goos    string
}

// NewAppleEngine creates a new Apple container engine.
func NewAppleEngine(opts Options) *AppleEngine {
	binary := opts.Binary
	if binary == "" {
		binary = "container"
	}
	return &AppleEngine{
		binary:  binary,
		sandbox: opts.Sandbox,
		runner:  opts.runner(),
		goos:    goruntime.GOOS,
	}
}

// Type returns the engine identifier
func (e *AppleEngine) Type() Type {
	return TypeApple
}

// runCmd executes an Apple container command
func (e *AppleEngine) runCmd(ctx context.Context, args ...string) (string, error) {
	out, err := e.runner.Run(ctx, system.Command{Name: e.binary, Args: args})
	if err != nil {
		return "", fmt.Errorf("container %s failed: %w", args[0], err)
	}
	if out.ExitCode != 0 {
		return "", fmt.Errorf("container %s failed: %s (exit %d)", args[0],
			strings.TrimSpace(string(out.Stderr)), out.ExitCode)
	}
	return string(out.Stdout), nil
}

// IsAvailable checks for macOS, the CLI, and a running system service
func (e *AppleEngine) IsAvailable(ctx context.Context) bool {
	if e.goos != "darwin" {
		return false
	}
	if _, err := e.runner.LookPath(e.binary); err != nil {
		return false
	}
	if _, err := e.runCmd(ctx, "system", "status"); err != nil {
		logging.Debug("apple container service not running", "error", err)
		return false
	}
	return true
}

// Info returns the CLI version
func (e *AppleEngine) Info(ctx context.Context) (*Info, error) {
	output, err := e.runCmd(ctx, "--version")
	if err != nil {
		return nil, err
	}
	return &Info{
		Type:    TypeApple,
		Version: strings.TrimSpace(output),
		OS:      e.goos,
		Arch:    goruntime.GOARCH,
		Binary:  e.binary,
	}, nil
}

// ImageExists reports whether the image is present locally
func (e *AppleEngine) ImageExists(ctx context.Context, image string) (bool, error) {
	out, err := e.runner.Run(ctx, system.Command{Name: e.binary, Args: []string{"images", "inspect", image}})
	if err != nil {
		return false, fmt.Errorf("container images inspect failed: %w", err)
	}
	return out.ExitCode == 0, nil
}

// PullImage pulls an image from its registry
func (e *AppleEngine) PullImage(ctx context.Context, image string) error {
	logging.Debug("pulling image", "image", image, "engine", TypeApple)
	_, err := e.runCmd(ctx, "images", "pull", image)
	return err
}

// runArgs builds the argument list for "run"
func (e *AppleEngine) runArgs(spec RunSpec) []string {
	name := spec.Name
	if name == "" {
		name = ContainerName(e.sandbox, spec.Role)
	}
	args := []string{"run", "--detach", "--name", name}

	labels := labelsFor(e.sandbox, spec)
	for _, k := range sortedKeys(labels) {
		args = append(args, "--label", k+"="+labels[k])
	}

	for _, env := range envList(spec.Env) {
		args = append(args, "--env", env)
	}

	for _, m := range spec.Mounts {
		mount := fmt.Sprintf("type=bind,source=%s,target=%s", m.Source, m.Target)
		if m.ReadOnly {
			mount += ",readonly"
		}
		args = append(args, "--mount", mount)
	}

	for _, p := range spec.Ports {
		args = append(args, "--publish", fmt.Sprintf("127.0.0.1:%d:%d", p.HostPort, p.ContainerPort))
	}

	if spec.Resources.Memory != "" {
		args = append(args, "--memory", spec.Resources.Memory)
	}
	if spec.Resources.CPUs > 0 {
		// Apple container takes a whole number of CPUs
		cpus := int(spec.Resources.CPUs + 0.5)
		if cpus < 1 {
			cpus = 1
		}
		args = append(args, "--cpus", strconv.Itoa(cpus))
	}
	if spec.Resources.Network != "" {
		args = append(args, "--network", spec.Resources.Network)
	}

	if spec.Workdir != "" {
		args = append(args, "--workdir", spec.Workdir)
	}
	if spec.User != "" {
		args = append(args, "--user", spec.User)
	}

	args = append(args, spec.Image)
	return append(args, spec.Command...)
}

// RunContainer starts a detached container and returns its id.
// Apple container ids are the container names.
func (e *AppleEngine) RunContainer(ctx context.Context, spec RunSpec) (string, error) {
	args := e.runArgs(spec)
	logging.Debug("running container", "name", args[3], "image", spec.Image, "engine", TypeApple)

	output, err := e.runCmd(ctx, args...)
	if err != nil {
		return "", err
	}
	if id := lastLine(output); id != "" {
		return id, nil
	}
	return args[3], nil
}

// ExecInContainer runs a command inside a running container
func (e *AppleEngine) ExecInContainer(ctx context.Context, spec ExecSpec) (*ExecResult, error) {
	args := []string{"exec"}
	if spec.Stdin != nil {
		args = append(args, "--interactive")
	}
	if spec.User != "" {
		args = append(args, "--user", spec.User)
	}
	if spec.Workdir != "" {
		args = append(args, "--workdir", spec.Workdir)
	}
	for _, env := range envList(spec.Env) {
		args = append(args, "--env", env)
	}
	args = append(args, spec.ContainerID)
	args = append(args, spec.Command...)

	start := time.Now()
	out, err := e.runner.Run(ctx, system.Command{Name: e.binary, Args: args, Stdin: spec.Stdin})
	if err != nil {
		return nil, fmt.Errorf("container exec failed: %w", err)
	}

	return &ExecResult{
		ExitCode: out.ExitCode,
		Stdout:   string(out.Stdout),
		Stderr:   string(out.Stderr),
		Duration: time.Since(start),
	}, nil
}

// StopContainer stops a running container
func (e *AppleEngine) StopContainer(ctx context.Context, id string) error {
	logging.Debug("stopping container", "container", id, "engine", TypeApple)

	_, err := e.runCmd(ctx, "stop", id)
	if err != nil && isAppleNotFound(err) {
		return nil
	}
	return err
}

// RemoveContainer force-removes a container
func (e *AppleEngine) RemoveContainer(ctx context.Context, id string) error {
	logging.Debug("removing container", "container", id, "engine", TypeApple)

	_, err := e.runCmd(ctx, "delete", "--force", id)
	if err != nil && isAppleNotFound(err) {
		return nil
	}
	return err
}

// appleInspect holds the relevant fields from "container inspect"
type appleInspect struct {
	Status        string `json:"status"`
	Configuration struct {
		ID     string            `json:"id"`
		Labels map[string]string `json:"labels"`
	} `json:"configuration"`
}

// IsContainerRunning checks if a container is currently running
func (e *AppleEngine) IsContainerRunning(ctx context.Context, id string) (bool, error) {
	out, err := e.runner.Run(ctx, system.Command{Name: e.binary, Args: []string{"inspect", id}})
	if err != nil {
		return false, fmt.Errorf("container inspect failed: %w", err)
	}
	if out.ExitCode != 0 {
		return false, nil
	}

	var inspects []appleInspect
	if err := json.Unmarshal(out.Stdout, &inspects); err != nil {
		return false, fmt.Errorf("failed to parse container inspect output: %w", err)
	}
	if len(inspects) == 0 {
		return false, nil
	}
	return inspects[0].Status == "running", nil
}

// ListContainers returns the ids of all containers owned by the sandbox
func (e *AppleEngine) ListContainers(ctx context.Context) ([]string, error) {
	output, err := e.runCmd(ctx, "list", "--all", "--quiet")
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, id := range splitLines(output) {
		if OwnedBy(id, e.sandbox) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// HealthCheck runs the aggregate health check against a container
func (e *AppleEngine) HealthCheck(ctx context.Context, id string) (*HealthReport, error) {
	return aggregateHealth(ctx, e, id)
}

func isAppleNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "notfound")
}

var _ Engine = (*AppleEngine)(nil)
