package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/logging"
)

// DockerAPIEngine implements Engine by talking to the Docker Engine API
// directly through the official SDK, without the docker CLI.
type DockerAPIEngine struct {
	cli     *client.Client
	sandbox string
	stopSec int
}

// NewDockerAPIEngine creates a new Docker Engine API backend.
// Creating the client performs no I/O against the daemon.
func NewDockerAPIEngine(opts Options) (*DockerAPIEngine, error) {
	clientOpts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}
	if opts.DockerHost != "" {
		clientOpts = append(clientOpts, client.WithHost(opts.DockerHost))
	}

	cli, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("docker client init failed: %w", err)
	}

	return &DockerAPIEngine{
		cli:     cli,
		sandbox: opts.Sandbox,
		stopSec: opts.stopSeconds(),
	}, nil
}

// Type returns the engine identifier
func (e *DockerAPIEngine) Type() Type {
	return TypeDockerAPI
}

// Close releases the underlying HTTP client
func (e *DockerAPIEngine) Close() error {
	return e.cli.Close()
}

// IsAvailable pings the daemon
func (e *DockerAPIEngine) IsAvailable(ctx context.Context) bool {
	if _, err := e.cli.Ping(ctx); err != nil {
		logging.Debug("docker daemon unavailable", "error", err)
		return false
	}
	return true
}

// Info returns the daemon version
func (e *DockerAPIEngine) Info(ctx context.Context) (*Info, error) {
	v, err := e.cli.ServerVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("docker version failed: %w", err)
	}
	return &Info{
		Type:    TypeDockerAPI,
		Version: v.Version,
		OS:      v.Os,
		Arch:    v.Arch,
		Binary:  e.cli.DaemonHost(),
	}, nil
}

// ImageExists reports whether the image is present locally
func (e *DockerAPIEngine) ImageExists(ctx context.Context, ref string) (bool, error) {
	if _, err := e.cli.ImageInspect(ctx, ref); err != nil {
		if cerrdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("image inspect failed: %w", err)
	}
	return true, nil
}

// PullImage pulls an image and waits for the pull to finish
func (e *DockerAPIEngine) PullImage(ctx context.Context, ref string) error {
	logging.Debug("pulling image", "image", ref, "engine", TypeDockerAPI)

	rc, err := e.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("image pull failed: %w", err)
	}
	defer rc.Close()

	// The pull only completes once the progress stream is drained
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("image pull failed: %w", err)
	}
	return nil
}

// createConfig translates a RunSpec into SDK container and host configs
func createConfig(sandbox string, spec RunSpec) (*container.Config, *container.HostConfig, error) {
	cfg := &container.Config{
		Image:      spec.Image,
		Cmd:        spec.Command,
		Env:        envList(spec.Env),
		WorkingDir: spec.Workdir,
		User:       spec.User,
		Labels:     labelsFor(sandbox, spec),
	}

	host := &container.HostConfig{}

	for _, m := range spec.Mounts {
		bind := m.Source + ":" + m.Target
		if m.ReadOnly {
			bind += ":ro"
		}
		host.Binds = append(host.Binds, bind)
	}

	if len(spec.Ports) > 0 {
		cfg.ExposedPorts = nat.PortSet{}
		host.PortBindings = nat.PortMap{}
		for _, p := range spec.Ports {
			port := nat.Port(fmt.Sprintf("%d/tcp", p.ContainerPort))
			cfg.ExposedPorts[port] = struct{}{}
			host.PortBindings[port] = append(host.PortBindings[port], nat.PortBinding{
				HostIP:   "127.0.0.1",
				HostPort: fmt.Sprintf("%d", p.HostPort),
			})
		}
	}

	r := spec.Resources
	if r.Memory != "" {
		mem, err := units.RAMInBytes(r.Memory)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid memory limit %q: %w", r.Memory, err)
		}
		host.Resources.Memory = mem
	}
	if r.CPUs > 0 {
		host.Resources.NanoCPUs = int64(r.CPUs * 1e9)
	}
	if r.PidsLimit > 0 {
		pids := r.PidsLimit
		host.Resources.PidsLimit = &pids
	}
	if r.Network != "" {
		host.NetworkMode = container.NetworkMode(r.Network)
	}

	return cfg, host, nil
}

// RunContainer creates and starts a container
func (e *DockerAPIEngine) RunContainer(ctx context.Context, spec RunSpec) (string, error) {
	logging.Debug("running container", "name", spec.Name, "image", spec.Image, "engine", TypeDockerAPI)

	cfg, host, err := createConfig(e.sandbox, spec)
	if err != nil {
		return "", err
	}

	resp, err := e.cli.ContainerCreate(ctx, cfg, host, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("container create failed: %w", err)
	}

	if err := e.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = e.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("container start failed: %w", err)
	}

	return resp.ID, nil
}

// ExecInContainer runs a command through an exec instance and demultiplexes
// its output
func (e *DockerAPIEngine) ExecInContainer(ctx context.Context, spec ExecSpec) (*ExecResult, error) {
	start := time.Now()

	execResp, err := e.cli.ContainerExecCreate(ctx, spec.ContainerID, container.ExecOptions{
		Cmd:          spec.Command,
		Env:          envList(spec.Env),
		WorkingDir:   spec.Workdir,
		User:         spec.User,
		AttachStdin:  spec.Stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attach, err := e.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer attach.Close()

	if spec.Stdin != nil {
		go func() {
			_, _ = io.Copy(attach.Conn, spec.Stdin)
			_ = attach.CloseWrite()
		}()
	}

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("exec interrupted: %w", ctxErr)
		}
		return nil, fmt.Errorf("failed to read exec output: %w", err)
	}

	inspect, err := e.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec: %w", err)
	}

	return &ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}, nil
}

// StopContainer stops a running container
func (e *DockerAPIEngine) StopContainer(ctx context.Context, id string) error {
	logging.Debug("stopping container", "container", id, "engine", TypeDockerAPI)

	timeout := e.stopSec
	err := e.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
	if err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("container stop failed: %w", err)
	}
	return nil
}

// RemoveContainer force-removes a container
func (e *DockerAPIEngine) RemoveContainer(ctx context.Context, id string) error {
	logging.Debug("removing container", "container", id, "engine", TypeDockerAPI)

	err := e.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("container remove failed: %w", err)
	}
	return nil
}

// IsContainerRunning checks if a container is currently running
func (e *DockerAPIEngine) IsContainerRunning(ctx context.Context, id string) (bool, error) {
	inspect, err := e.cli.ContainerInspect(ctx, id)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("container inspect failed: %w", err)
	}
	if inspect.ContainerJSONBase == nil || inspect.State == nil {
		return false, nil
	}
	return inspect.State.Running, nil
}

// listFilter selects the containers owned by the sandbox
func listFilter(sandbox string) filters.Args {
	label := LabelSandbox
	if sandbox != "" {
		label += "=" + sandbox
	}
	return filters.NewArgs(filters.Arg("label", label))
}

// ListContainers returns the ids of all containers owned by the sandbox
func (e *DockerAPIEngine) ListContainers(ctx context.Context) ([]string, error) {
	list, err := e.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: listFilter(e.sandbox),
	})
	if err != nil {
		return nil, fmt.Errorf("container list failed: %w", err)
	}

	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// HealthCheck runs the aggregate health check against a container
func (e *DockerAPIEngine) HealthCheck(ctx context.Context, id string) (*HealthReport, error) {
	return aggregateHealth(ctx, e, id)
}

var _ Engine = (*DockerAPIEngine)(nil)
