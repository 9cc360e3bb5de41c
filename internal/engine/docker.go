package engine

import (
	"context"
	"fmt"
	goruntime "runtime"
	"strconv"
	"strings"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/system"
)

// CLIEngine implements Engine by shelling out to the docker or podman CLI.
// Both tools accept the same subcommands for everything used here.
type CLIEngine struct {
	kind    Type
	command string
	sandbox string
	runner  system.CommandRunner
	stopSec int
}

// NewDockerEngine creates an engine backed by the docker CLI
func NewDockerEngine(opts Options) *CLIEngine {
	return newCLIEngine(TypeDocker, "docker", opts)
}

// NewPodmanEngine creates an engine backed by the podman CLI
func NewPodmanEngine(opts Options) *CLIEngine {
	return newCLIEngine(TypePodman, "podman", opts)
}

func newCLIEngine(kind Type, command string, opts Options) *CLIEngine {
	if opts.Binary != "" {
		command = opts.Binary
	}
	return &CLIEngine{
		kind:    kind,
		command: command,
		sandbox: opts.Sandbox,
		runner:  opts.runner(),
		stopSec: opts.stopSeconds(),
	}
}

// Type returns the engine identifier
func (e *CLIEngine) Type() Type {
	return e.kind
}

// runCmd executes a CLI command and returns its stdout.
// A non-zero exit is returned as an error carrying stderr.
func (e *CLIEngine) runCmd(ctx context.Context, args ...string) (string, error) {
	out, err := e.runner.Run(ctx, system.Command{Name: e.command, Args: args})
	if err != nil {
		return "", fmt.Errorf("%s %s failed: %w", e.command, args[0], err)
	}
	if out.ExitCode != 0 {
		return "", fmt.Errorf("%s %s failed: %s (exit %d)", e.command, args[0],
			strings.TrimSpace(string(out.Stderr)), out.ExitCode)
	}
	return string(out.Stdout), nil
}

// IsAvailable checks that the CLI is installed and its daemon answers
func (e *CLIEngine) IsAvailable(ctx context.Context) bool {
	if _, err := e.runner.LookPath(e.command); err != nil {
		return false
	}
	_, err := e.runCmd(ctx, "info")
	if err != nil {
		logging.Debug("engine not available", "engine", e.kind, "error", err)
		return false
	}
	return true
}

// versionFormat returns the Go template printing the engine version
func (e *CLIEngine) versionFormat() string {
	if e.kind == TypePodman {
		return "{{.Client.Version}}"
	}
	return "{{.Server.Version}}"
}

// Info returns the engine version
func (e *CLIEngine) Info(ctx context.Context) (*Info, error) {
	output, err := e.runCmd(ctx, "version", "--format", e.versionFormat())
	if err != nil {
		return nil, err
	}
	return &Info{
		Type:    e.kind,
		Version: strings.TrimSpace(output),
		OS:      goruntime.GOOS,
		Arch:    goruntime.GOARCH,
		Binary:  e.command,
	}, nil
}

// ImageExists reports whether the image is present locally
func (e *CLIEngine) ImageExists(ctx context.Context, image string) (bool, error) {
	out, err := e.runner.Run(ctx, system.Command{Name: e.command, Args: []string{"image", "inspect", image}})
	if err != nil {
		return false, fmt.Errorf("%s image inspect failed: %w", e.command, err)
	}
	return out.ExitCode == 0, nil
}

// PullImage pulls an image from its registry
func (e *CLIEngine) PullImage(ctx context.Context, image string) error {
	logging.Debug("pulling image", "image", image, "engine", e.kind)
	_, err := e.runCmd(ctx, "pull", image)
	return err
}

// runArgs builds the argument list for "run"
func (e *CLIEngine) runArgs(spec RunSpec) []string {
	args := []string{"run", "-d"}
	if spec.Name != "" {
		args = append(args, "--name", spec.Name)
	}

	labels := labelsFor(e.sandbox, spec)
	for _, k := range sortedKeys(labels) {
		args = append(args, "--label", k+"="+labels[k])
	}

	for _, env := range envList(spec.Env) {
		args = append(args, "-e", env)
	}

	for _, m := range spec.Mounts {
		v := m.Source + ":" + m.Target
		if m.ReadOnly {
			v += ":ro"
		}
		args = append(args, "-v", v)
	}

	for _, p := range spec.Ports {
		args = append(args, "-p", fmt.Sprintf("127.0.0.1:%d:%d", p.HostPort, p.ContainerPort))
	}

	args = append(args, resourceArgs(spec.Resources)...)

	if spec.Workdir != "" {
		args = append(args, "-w", spec.Workdir)
	}
	if spec.User != "" {
		args = append(args, "-u", spec.User)
	}

	args = append(args, spec.Image)
	return append(args, spec.Command...)
}

// resourceArgs renders resource limits as docker/podman flags
func resourceArgs(r Resources) []string {
	var args []string
	if r.Memory != "" {
		args = append(args, "--memory", r.Memory)
	}
	if r.CPUs > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(r.CPUs, 'f', -1, 64))
	}
	if r.PidsLimit > 0 {
		args = append(args, "--pids-limit", strconv.FormatInt(r.PidsLimit, 10))
	}
	if r.Network != "" {
		args = append(args, "--network", r.Network)
	}
	return args
}

// RunContainer starts a detached container and returns its id
func (e *CLIEngine) RunContainer(ctx context.Context, spec RunSpec) (string, error) {
	logging.Debug("running container", "name", spec.Name, "image", spec.Image, "engine", e.kind)

	output, err := e.runCmd(ctx, e.runArgs(spec)...)
	if err != nil {
		return "", err
	}

	id := lastLine(output)
	if id == "" {
		return "", fmt.Errorf("%s run returned no container id", e.command)
	}
	return id, nil
}

// execArgs builds the argument list for "exec"
func (e *CLIEngine) execArgs(spec ExecSpec) []string {
	args := []string{"exec"}
	if spec.Stdin != nil {
		args = append(args, "-i")
	}
	if spec.User != "" {
		args = append(args, "-u", spec.User)
	}
	if spec.Workdir != "" {
		args = append(args, "-w", spec.Workdir)
	}
	for _, env := range envList(spec.Env) {
		args = append(args, "-e", env)
	}
	args = append(args, spec.ContainerID)
	return append(args, spec.Command...)
}

// ExecInContainer runs a command inside a running container
func (e *CLIEngine) ExecInContainer(ctx context.Context, spec ExecSpec) (*ExecResult, error) {
	start := time.Now()
	out, err := e.runner.Run(ctx, system.Command{
		Name:  e.command,
		Args:  e.execArgs(spec),
		Stdin: spec.Stdin,
	})
	if err != nil {
		return nil, fmt.Errorf("%s exec failed: %w", e.command, err)
	}

	return &ExecResult{
		ExitCode: out.ExitCode,
		Stdout:   string(out.Stdout),
		Stderr:   string(out.Stderr),
		Duration: time.Since(start),
	}, nil
}

// StopContainer stops a running container
func (e *CLIEngine) StopContainer(ctx context.Context, id string) error {
	logging.Debug("stopping container", "container", id, "engine", e.kind)

	_, err := e.runCmd(ctx, "stop", "-t", strconv.Itoa(e.stopSec), id)
	if err != nil && isNoSuchContainer(err) {
		return nil
	}
	return err
}

// RemoveContainer force-removes a container
func (e *CLIEngine) RemoveContainer(ctx context.Context, id string) error {
	logging.Debug("removing container", "container", id, "engine", e.kind)

	_, err := e.runCmd(ctx, "rm", "-f", id)
	if err != nil && isNoSuchContainer(err) {
		return nil
	}
	return err
}

// IsContainerRunning checks if a container is currently running
func (e *CLIEngine) IsContainerRunning(ctx context.Context, id string) (bool, error) {
	out, err := e.runner.Run(ctx, system.Command{
		Name: e.command,
		Args: []string{"inspect", "-f", "{{.State.Running}}", id},
	})
	if err != nil {
		return false, fmt.Errorf("%s inspect failed: %w", e.command, err)
	}
	if out.ExitCode != 0 {
		return false, nil // Container doesn't exist
	}
	return strings.TrimSpace(string(out.Stdout)) == "true", nil
}

// ListContainers returns the ids of all containers owned by the sandbox
func (e *CLIEngine) ListContainers(ctx context.Context) ([]string, error) {
	filter := "label=" + LabelSandbox
	if e.sandbox != "" {
		filter += "=" + e.sandbox
	}

	output, err := e.runCmd(ctx, "ps", "-a", "-q", "--no-trunc", "--filter", filter)
	if err != nil {
		return nil, err
	}
	return splitLines(output), nil
}

// HealthCheck runs the aggregate health check against a container
func (e *CLIEngine) HealthCheck(ctx context.Context, id string) (*HealthReport, error) {
	return aggregateHealth(ctx, e, id)
}

func isNoSuchContainer(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such container") || strings.Contains(msg, "no container with name or id")
}

func splitLines(output string) []string {
	var out []string
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// lastLine returns the last non-empty line; "run -d" may print pull
// progress before the id
func lastLine(output string) string {
	lines := splitLines(output)
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

var _ Engine = (*CLIEngine)(nil)
