// Package engine defines the container engine interface for forage-sandbox.
// Each supported container technology (docker, podman, Apple container, the
// Docker Engine API) is one implementation; the sandbox manager only talks to
// this interface, so a MockEngine can stand in for a real runtime in tests.
package engine

import (
	"context"
	"crypto/rand"
	"io"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/system"
)

// Type identifies a container engine implementation
type Type string

const (
	TypeDocker    Type = "docker"
	TypePodman    Type = "podman"
	TypeApple     Type = "apple"
	TypeDockerAPI Type = "docker-api"
	TypeMock      Type = "mock"
	TypeAuto      Type = "auto"
)

// Role distinguishes the containers a sandbox owns
type Role string

const (
	RoleMain    Role = "main"
	RoleBrowser Role = "browser"
)

// Ownership labels and naming. Every container a sandbox creates carries both
// labels and a name starting with NamePrefix + sandbox + "-".
const (
	LabelSandbox = "dev.forage.sandbox"
	LabelRole    = "dev.forage.role"
	NamePrefix   = "forage-sbx-"
)

// Mount is a host path bound into a container
type Mount struct {
	Source   string `koanf:"source" json:"source"`
	Target   string `koanf:"target" json:"target"`
	ReadOnly bool   `koanf:"read_only" json:"read_only,omitempty"`
}

// PortBinding publishes a container port on the host loopback interface
type PortBinding struct {
	HostPort      int
	ContainerPort int
}

// Resources holds optional container resource limits.
// Zero values mean "engine default".
type Resources struct {
	Memory    string  `koanf:"memory" json:"memory,omitempty"` // e.g. "2g"
	CPUs      float64 `koanf:"cpus" json:"cpus,omitempty"`
	PidsLimit int64   `koanf:"pids_limit" json:"pids_limit,omitempty"`
	Network   string  `koanf:"network" json:"network,omitempty"` // e.g. "none", "bridge"
}

// RunSpec describes a detached container to run
type RunSpec struct {
	Name      string
	Image     string
	Role      Role
	Command   []string
	Env       map[string]string
	Mounts    []Mount
	Ports     []PortBinding
	Workdir   string
	User      string
	Resources Resources
	Labels    map[string]string
}

// ExecSpec describes a command to run inside a running container
type ExecSpec struct {
	ContainerID string
	Command     []string
	Env         map[string]string
	Workdir     string
	User        string
	Stdin       io.Reader
}

// ExecResult holds the result of executing a command in a container
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Info describes the engine the adapter talks to
type Info struct {
	Type    Type   `json:"type"`
	Version string `json:"version"`
	OS      string `json:"os,omitempty"`
	Arch    string `json:"arch,omitempty"`
	Binary  string `json:"binary,omitempty"`
}

// HealthReport is the outcome of an aggregate container health check
type HealthReport struct {
	Healthy         bool      `json:"healthy"`
	EngineReachable bool      `json:"engine_reachable"`
	Running         bool      `json:"running"`
	ExecResponsive  bool      `json:"exec_responsive"`
	Detail          string    `json:"detail,omitempty"`
	CheckedAt       time.Time `json:"checked_at"`
}

// Engine is the interface container backends must implement.
// Implementations hold no container state; all methods are safe for
// concurrent use.
type Engine interface {
	// Type returns the engine identifier
	Type() Type

	// IsAvailable reports whether the engine can be used on this host
	IsAvailable(ctx context.Context) bool

	// Info returns version information about the engine
	Info(ctx context.Context) (*Info, error)

	// ImageExists reports whether the image is present locally
	ImageExists(ctx context.Context, image string) (bool, error)

	// PullImage fetches an image from its registry
	PullImage(ctx context.Context, image string) error

	// RunContainer starts a detached container and returns its id
	RunContainer(ctx context.Context, spec RunSpec) (string, error)

	// ExecInContainer runs a command inside a running container.
	// A command that exits non-zero is not an error.
	ExecInContainer(ctx context.Context, spec ExecSpec) (*ExecResult, error)

	// StopContainer stops a container. Stopping a missing container is not an error.
	StopContainer(ctx context.Context, id string) error

	// RemoveContainer force-removes a container. Removing a missing container is not an error.
	RemoveContainer(ctx context.Context, id string) error

	// IsContainerRunning reports whether the container exists and is running
	IsContainerRunning(ctx context.Context, id string) (bool, error)

	// ListContainers returns the ids of every container, running or not,
	// owned by the sandbox the engine was created for
	ListContainers(ctx context.Context) ([]string, error)

	// HealthCheck verifies the engine is reachable, the container is
	// running, and a trivial command executes inside it
	HealthCheck(ctx context.Context, id string) (*HealthReport, error)
}

// Options configures engine construction
type Options struct {
	// Sandbox scopes ListContainers and the ownership labels. Empty means
	// every forage sandbox on the host.
	Sandbox string

	// Runner executes CLI commands; defaults to system.DefaultRunner()
	Runner system.CommandRunner

	// Binary overrides the CLI executable for CLI-backed engines
	Binary string

	// DockerHost overrides DOCKER_HOST for the docker-api engine
	DockerHost string

	// StopTimeout is the grace period given to a container on stop
	StopTimeout time.Duration
}

func (o Options) runner() system.CommandRunner {
	if o.Runner != nil {
		return o.Runner
	}
	return system.DefaultRunner()
}

func (o Options) stopSeconds() int {
	if o.StopTimeout <= 0 {
		return 10
	}
	return int(o.StopTimeout.Round(time.Second) / time.Second)
}

// ContainerName returns a fresh, unique container name for a sandbox role
func ContainerName(sandbox string, role Role) string {
	id := ulid.MustNew(ulid.Now(), rand.Reader)
	return NamePrefix + sandbox + "-" + string(role) + "-" + strings.ToLower(id.String())
}

// containerNameRe matches names built by ContainerName. The role and the
// 26 character ulid anchor the end, so the captured sandbox is exact even
// when sandbox names contain dashes.
var containerNameRe = regexp.MustCompile(`^` + regexp.QuoteMeta(NamePrefix) + `(.+)-(main|browser)-([0-9a-z]{26})$`)

// SandboxOf returns the sandbox a container name belongs to, or false if the
// name does not follow the naming scheme
func SandboxOf(name string) (string, bool) {
	m := containerNameRe.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// OwnedBy reports whether a container name follows the naming scheme of
// sandbox. An empty sandbox matches any forage container.
func OwnedBy(name, sandbox string) bool {
	owner, ok := SandboxOf(name)
	if !ok {
		return false
	}
	return sandbox == "" || owner == sandbox
}

// labelsFor returns the labels to apply to a container: the ownership
// labels merged over any caller-provided ones
func labelsFor(sandbox string, spec RunSpec) map[string]string {
	labels := make(map[string]string, len(spec.Labels)+2)
	for k, v := range spec.Labels {
		labels[k] = v
	}
	if sandbox != "" {
		labels[LabelSandbox] = sandbox
	}
	role := spec.Role
	if role == "" {
		role = RoleMain
	}
	labels[LabelRole] = string(role)
	return labels
}

// envList renders an environment map as sorted KEY=VALUE pairs
func envList(env map[string]string) []string {
	keys := sortedKeys(env)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
