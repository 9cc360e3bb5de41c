package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/engine"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/system"
)

// ExecRequest is a command to run in the sandbox.
type ExecRequest struct {
	// Command is a shell command line, run with "sh -c"
	Command string `json:"command,omitempty"`

	// Argv, when set, is quoted into the command line instead of Command
	Argv []string `json:"argv,omitempty"`

	Workdir string            `json:"workdir,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Stdin   io.Reader         `json:"-"`

	// Timeout overrides the configured exec timeout when positive
	Timeout time.Duration `json:"timeout,omitempty"`
}

// commandLine returns the shell command line for the request.
func (r ExecRequest) commandLine() string {
	if len(r.Argv) > 0 {
		return shellquote.Join(r.Argv...)
	}
	return r.Command
}

// ExecResult is the outcome of Exec. Failures to run are reported here
// rather than as errors.
type ExecResult struct {
	ExitCode          int           `json:"exit_code"`
	Stdout            string        `json:"stdout"`
	Stderr            string        `json:"stderr"`
	Duration          time.Duration `json:"-"`
	DurationMs        int64         `json:"duration_ms"`
	ExecutedInSandbox bool          `json:"executed_in_sandbox"`
}

// Exec outcomes reported to the Observer.
const (
	ExecOutcomeSuccess = "success"
	ExecOutcomeFailure = "failure"
	ExecOutcomeError   = "error"
	ExecOutcomeRefused = "refused"
)

// Observer is notified of state changes and exec results, e.g. for metrics.
type Observer interface {
	ObserveState(sandbox string, state State)
	ObserveExec(sandbox string, outcome string, d time.Duration)
}

// Status is a point-in-time snapshot of a Manager.
type Status struct {
	Name             string      `json:"name"`
	Mode             Mode        `json:"mode"`
	State            State       `json:"state"`
	Engine           engine.Type `json:"engine,omitempty"`
	MainContainer    string      `json:"main_container,omitempty"`
	BrowserContainer string      `json:"browser_container,omitempty"`
	BrowserEndpoint  string      `json:"browser_endpoint,omitempty"`
	Events           int         `json:"events"`
}

// Manager owns the lifecycle of one sandbox.
//
// Start, Stop, Recover and Probe are serialized. Exec only snapshots the
// state under a read lock, so concurrent execs never wait on each other.
type Manager struct {
	cfg       Config
	eng       engine.Engine
	engineErr error
	runner    system.CommandRunner
	handles   *HandleStore
	observer  Observer
	log       *EventLog

	lifecycle sync.Mutex

	mu              sync.RWMutex
	state           State
	mainID          string
	browserID       string
	browserEndpoint string
}

// Option configures a Manager.
type Option func(*managerOptions)

type managerOptions struct {
	engine   engine.Engine
	runner   system.CommandRunner
	sinks    []Sink
	handles  *HandleStore
	observer Observer
}

// WithEngine binds an engine instead of resolving one from Config.Engine.
func WithEngine(e engine.Engine) Option {
	return func(o *managerOptions) { o.engine = e }
}

// WithRunner sets the runner used for light-mode execs.
func WithRunner(r system.CommandRunner) Option {
	return func(o *managerOptions) { o.runner = r }
}

// WithSinks forwards every event to the given sinks.
func WithSinks(sinks ...Sink) Option {
	return func(o *managerOptions) { o.sinks = append(o.sinks, sinks...) }
}

// WithHandleStore persists container handles after every change.
func WithHandleStore(s *HandleStore) Option {
	return func(o *managerOptions) { o.handles = s }
}

// WithObserver registers an Observer.
func WithObserver(obs Observer) Option {
	return func(o *managerOptions) { o.observer = obs }
}

// NewManager validates cfg and binds the engine. In standard mode without
// WithEngine, the engine is resolved from cfg.Engine (detected when auto).
// A resolution failure is not returned: the Manager is still built and
// Start reports the engine as unavailable. No container is touched.
func NewManager(ctx context.Context, cfg Config, opts ...Option) (*Manager, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigError("invalid sandbox configuration", err)
	}

	var o managerOptions
	for _, opt := range opts {
		opt(&o)
	}

	m := &Manager{
		cfg:      cfg,
		eng:      o.engine,
		runner:   o.runner,
		handles:  o.handles,
		observer: o.observer,
		log:      NewEventLog(cfg.Name, o.sinks...),
		state:    StateUninitialized,
	}
	if m.runner == nil {
		m.runner = system.DefaultRunner()
	}

	if m.eng == nil && cfg.Mode == ModeStandard {
		eng, err := engine.Resolve(ctx, cfg.Engine, engine.Options{
			Sandbox:     cfg.Name,
			StopTimeout: cfg.Timeouts.Stop,
		})
		if err != nil {
			logging.Warn("no container engine bound", "sandbox", cfg.Name, "engine", cfg.Engine, "error", err)
			m.engineErr = err
		} else {
			m.eng = eng
		}
	}

	return m, nil
}

// Name returns the sandbox name.
func (m *Manager) Name() string {
	return m.cfg.Name
}

// Config returns the Manager's configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Mode returns the configured mode.
func (m *Manager) Mode() Mode {
	return m.cfg.Mode
}

// EngineType returns the bound engine type, or "" when none is bound.
func (m *Manager) EngineType() engine.Type {
	if m.eng == nil {
		return ""
	}
	return m.eng.Type()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Events returns a copy of the event log.
func (m *Manager) Events() []Event {
	return m.log.Events()
}

// MainContainerID returns the id of the main container, if any.
func (m *Manager) MainContainerID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mainID
}

// BrowserContainerID returns the id of the browser container, if any.
func (m *Manager) BrowserContainerID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browserID
}

// BrowserCDPEndpoint returns the loopback CDP URL of the browser companion,
// or "" when no companion is running.
func (m *Manager) BrowserCDPEndpoint() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browserEndpoint
}

// Status returns a snapshot of the Manager.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		Name:             m.cfg.Name,
		Mode:             m.cfg.Mode,
		State:            m.state,
		Engine:           m.EngineType(),
		MainContainer:    m.mainID,
		BrowserContainer: m.browserID,
		BrowserEndpoint:  m.browserEndpoint,
		Events:           m.log.Len(),
	}
}

// transition moves the Manager to a new state if the transition table allows
// it. Refused transitions are recorded as error events.
func (m *Manager) transition(to State) error {
	m.mu.Lock()
	from := m.state
	if !canTransition(from, to) {
		m.mu.Unlock()
		err := errIllegalTransition(from, to)
		m.recordError(err.Error())
		return err
	}
	m.state = to
	m.mu.Unlock()

	if from != to {
		m.log.Append(audit.EventStateChange, fmt.Sprintf("%s -> %s", from, to))
		logging.Info("sandbox state changed", "sandbox", m.cfg.Name, "from", from, "to", to)
		if m.observer != nil {
			m.observer.ObserveState(m.cfg.Name, to)
		}
	}
	return nil
}

func (m *Manager) recordError(detail string) {
	logging.Warn("sandbox error", "sandbox", m.cfg.Name, "detail", detail)
	m.log.Append(audit.EventError, detail)
}

// fail records err, moves to degraded, and returns err.
func (m *Manager) fail(err error) error {
	m.recordError(err.Error())
	_ = m.transition(StateDegraded)
	return err
}

func (m *Manager) saveHandles() {
	if m.handles == nil {
		return
	}
	m.mu.RLock()
	h := Handles{
		Sandbox: m.cfg.Name,
		Engine:  m.EngineType(),
		Main:    m.mainID,
		Browser: m.browserID,
		PID:     os.Getpid(),
	}
	m.mu.RUnlock()

	if err := m.handles.Save(h); err != nil {
		logging.Warn("failed to save container handles", "sandbox", m.cfg.Name, "error", err)
	}
}

// Start brings the sandbox up. It is a no-op unless the Manager is
// uninitialized. In standard mode it returns an error only when the engine
// is unavailable or the image cannot be found; the state is then degraded.
func (m *Manager) Start(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if state := m.State(); state != StateUninitialized {
		logging.Debug("start ignored", "sandbox", m.cfg.Name, "state", state)
		return nil
	}

	logging.Info("starting sandbox", "sandbox", m.cfg.Name, "mode", m.cfg.Mode)

	switch m.cfg.Mode {
	case ModeOff:
		return m.transition(StateStopped)
	case ModeLight:
		return m.transition(StateReady)
	}

	if !m.engineAvailable(ctx) {
		if m.engineErr != nil {
			logging.Debug("engine resolution error", "error", m.engineErr)
		}
		return m.fail(errors.EngineUnavailable(string(m.cfg.Engine)))
	}

	if err := m.ensureImage(ctx, m.cfg.Image); err != nil {
		return m.fail(err)
	}

	m.removeOrphans(ctx)
	m.runMain(ctx)

	if m.State() == StateReady && m.cfg.Browser.Enabled && m.cfg.Browser.AutoStart {
		m.applyBrowserResult(startBrowserIsolated(ctx, m))
	}

	return nil
}

func (m *Manager) engineAvailable(ctx context.Context) bool {
	if m.eng == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeouts.Engine)
	defer cancel()
	return m.eng.IsAvailable(ctx)
}

// ensureImage pulls the image when it is not present locally.
func (m *Manager) ensureImage(ctx context.Context, image string) error {
	checkCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeouts.Engine)
	exists, err := m.eng.ImageExists(checkCtx, image)
	cancel()
	if err != nil {
		logging.Debug("image inspect failed, pulling", "image", image, "error", err)
	}
	if exists {
		return nil
	}

	logging.Info("pulling image", "sandbox", m.cfg.Name, "image", image)
	pullCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeouts.Pull)
	defer cancel()
	if err := m.eng.PullImage(pullCtx, image); err != nil {
		return errors.ImageNotFound(image, err)
	}
	m.log.Append(audit.EventImagePull, image)
	return nil
}

// removeOrphans stops then removes every container already labelled for
// this sandbox. Failures are recorded and never abort the start.
func (m *Manager) removeOrphans(ctx context.Context) {
	report, err := CleanupOrphans(ctx, m.eng, m.cfg.Timeouts.Engine)
	if err != nil {
		m.recordError(fmt.Sprintf("Orphan cleanup failed: %v", err))
		return
	}

	for _, id := range report.Removed {
		m.log.Append(audit.EventOrphanCleanup, id)
	}
	failed := make([]string, 0, len(report.Failed))
	for id := range report.Failed {
		failed = append(failed, id)
	}
	sort.Strings(failed)
	for _, id := range failed {
		m.recordError(fmt.Sprintf("Orphan cleanup failed for %s: %v", id, report.Failed[id]))
	}
}

// runMain runs the main container and health-checks it, landing in ready
// or degraded. It never returns an error.
func (m *Manager) runMain(ctx context.Context) {
	spec := engine.RunSpec{
		Name:      engine.ContainerName(m.cfg.Name, engine.RoleMain),
		Image:     m.cfg.Image,
		Role:      engine.RoleMain,
		Command:   m.cfg.Command,
		Env:       m.cfg.Env,
		Mounts:    m.cfg.Mounts,
		Workdir:   m.cfg.Workdir,
		Resources: m.cfg.Resources,
	}

	runCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeouts.Engine)
	id, err := m.eng.RunContainer(runCtx, spec)
	cancel()
	if err != nil {
		m.recordError(fmt.Sprintf("Main container start failed: %v", err))
		_ = m.transition(StateDegraded)
		return
	}

	m.mu.Lock()
	m.mainID = id
	m.mu.Unlock()
	m.saveHandles()
	m.log.Append(audit.EventContainerStart, fmt.Sprintf("main %s", id))
	logging.Info("main container started", "sandbox", m.cfg.Name, "container", id)

	if m.checkHealth(ctx, id) {
		_ = m.transition(StateReady)
	} else {
		_ = m.transition(StateDegraded)
	}
}

// checkHealth runs the engine health check and records its outcome.
func (m *Manager) checkHealth(ctx context.Context, id string) bool {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeouts.Health)
	defer cancel()

	report, err := m.eng.HealthCheck(ctx, id)
	switch {
	case err != nil:
		m.log.Append(audit.EventHealthCheck, "unhealthy")
		m.recordError(fmt.Sprintf("Health check failed: %v", err))
		return false
	case !report.Healthy:
		m.log.Append(audit.EventHealthCheck, "unhealthy")
		m.recordError(fmt.Sprintf("Health check failed: %s", report.Detail))
		return false
	}
	m.log.Append(audit.EventHealthCheck, "healthy")
	return true
}

// releaseContainer stops then removes one container, recording each step.
// It reports whether the container is gone.
func (m *Manager) releaseContainer(ctx context.Context, role engine.Role, id string) bool {
	stopCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeouts.Engine)
	err := m.eng.StopContainer(stopCtx, id)
	cancel()
	if err != nil {
		m.recordError(fmt.Sprintf("Failed to stop %s container %s: %v", role, id, err))
	} else {
		m.log.Append(audit.EventContainerStop, fmt.Sprintf("%s %s", role, id))
	}

	rmCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeouts.Engine)
	err = m.eng.RemoveContainer(rmCtx, id)
	cancel()
	if err != nil {
		m.recordError(fmt.Sprintf("Failed to remove %s container %s: %v", role, id, err))
		return false
	}
	m.log.Append(audit.EventContainerRemove, fmt.Sprintf("%s %s", role, id))
	return true
}

// Stop stops and removes the main then the browser container, best-effort,
// and always ends stopped. A handle is only dropped once its container is
// gone; failed ones stay held and persisted so a later Stop or gc retries.
func (m *Manager) Stop(ctx context.Context) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	mainID, browserID := m.mainID, m.browserID
	m.browserEndpoint = ""
	m.mu.Unlock()

	logging.Info("stopping sandbox", "sandbox", m.cfg.Name)

	if m.eng != nil {
		if mainID != "" && m.releaseContainer(ctx, engine.RoleMain, mainID) {
			m.dropHandle(engine.RoleMain, mainID)
		}
		if browserID != "" && m.releaseContainer(ctx, engine.RoleBrowser, browserID) {
			m.dropHandle(engine.RoleBrowser, browserID)
		}
	}

	m.persistHandles()
	_ = m.transition(StateStopped)
}

// dropHandle forgets a released container if it is still the held one.
func (m *Manager) dropHandle(role engine.Role, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case role == engine.RoleMain && m.mainID == id:
		m.mainID = ""
	case role == engine.RoleBrowser && m.browserID == id:
		m.browserID = ""
	}
}

// persistHandles saves the held handles, or removes the handle file when
// none are left.
func (m *Manager) persistHandles() {
	m.mu.RLock()
	held := m.mainID != "" || m.browserID != ""
	m.mu.RUnlock()

	if held {
		logging.Warn("containers left behind", "sandbox", m.cfg.Name,
			"main", m.MainContainerID(), "browser", m.BrowserContainerID())
		m.saveHandles()
		return
	}
	if m.handles != nil {
		if err := m.handles.Remove(m.cfg.Name); err != nil {
			logging.Warn("failed to remove handle file", "sandbox", m.cfg.Name, "error", err)
		}
	}
}

// Recover re-runs the main container when the sandbox is degraded and
// returns the resulting state. In any other state it does nothing.
// Engine and image availability are not re-validated. If the stale main
// container cannot be removed it stays held and no new one is run.
func (m *Manager) Recover(ctx context.Context) State {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if state := m.State(); state != StateDegraded {
		return state
	}

	m.log.Append(audit.EventRecover, "recovering degraded sandbox")
	logging.Info("recovering sandbox", "sandbox", m.cfg.Name)

	if m.eng == nil {
		m.recordError(errors.EngineUnavailable(string(m.cfg.Engine)).Error())
		return m.State()
	}

	if stale := m.MainContainerID(); stale != "" {
		if !m.releaseContainer(ctx, engine.RoleMain, stale) {
			return m.State()
		}
		m.dropHandle(engine.RoleMain, stale)
		m.saveHandles()
	}

	m.runMain(ctx)

	if m.State() == StateReady && m.cfg.Browser.Enabled && m.cfg.Browser.AutoStart && m.BrowserContainerID() == "" {
		m.applyBrowserResult(startBrowserIsolated(ctx, m))
	}

	return m.State()
}

// Probe re-runs the health check of a ready standard-mode sandbox and
// degrades it on failure. It returns the resulting state.
func (m *Manager) Probe(ctx context.Context) State {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	state := m.State()
	if state != StateReady || m.cfg.Mode != ModeStandard {
		return state
	}

	if !m.checkHealth(ctx, m.MainContainerID()) {
		_ = m.transition(StateDegraded)
	}
	return m.State()
}

// Exec runs a command in the sandbox. It never returns an error: refusals
// and engine failures are reported as ExitCode 1 with a message in Stderr.
func (m *Manager) Exec(ctx context.Context, req ExecRequest) ExecResult {
	start := time.Now()

	m.mu.RLock()
	state, mainID := m.state, m.mainID
	m.mu.RUnlock()

	if m.cfg.Mode == ModeOff {
		return m.finishExec(ExecOutcomeRefused, refused("Sandbox is not available: sandbox mode is off", start))
	}
	if state != StateReady {
		return m.finishExec(ExecOutcomeRefused, refused(fmt.Sprintf("Sandbox not ready: state is %s", state), start))
	}

	command := req.commandLine()
	if strings.TrimSpace(command) == "" {
		return m.finishExec(ExecOutcomeError, refused("Exec error: empty command", start))
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = m.cfg.Timeouts.Exec
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if m.cfg.Mode == ModeLight {
		if !m.cfg.HostExec {
			return m.finishExec(ExecOutcomeError, refused("Exec error: light mode has no container and host execution is disabled", start))
		}
		return m.execOnHost(ctx, req, command, start)
	}

	res, err := m.eng.ExecInContainer(ctx, engine.ExecSpec{
		ContainerID: mainID,
		Command:     []string{"sh", "-c", command},
		Env:         req.Env,
		Workdir:     req.Workdir,
		Stdin:       req.Stdin,
	})
	if err != nil {
		return m.finishExec(ExecOutcomeError, refused("Exec error: "+err.Error(), start))
	}

	return m.finishExec(outcomeFor(res.ExitCode), ExecResult{
		ExitCode:          res.ExitCode,
		Stdout:            res.Stdout,
		Stderr:            res.Stderr,
		Duration:          res.Duration,
		ExecutedInSandbox: true,
	})
}

// execOnHost runs a light-mode command directly on the host.
func (m *Manager) execOnHost(ctx context.Context, req ExecRequest, command string, start time.Time) ExecResult {
	env := make([]string, 0, len(req.Env))
	for k, v := range req.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	out, err := m.runner.Run(ctx, system.Command{
		Name:  "sh",
		Args:  []string{"-c", command},
		Dir:   req.Workdir,
		Env:   env,
		Stdin: req.Stdin,
	})
	if err != nil {
		return m.finishExec(ExecOutcomeError, refused("Exec error: "+err.Error(), start))
	}

	return m.finishExec(outcomeFor(out.ExitCode), ExecResult{
		ExitCode: out.ExitCode,
		Stdout:   string(out.Stdout),
		Stderr:   string(out.Stderr),
		Duration: time.Since(start),
	})
}

func (m *Manager) finishExec(outcome string, res ExecResult) ExecResult {
	res.DurationMs = res.Duration.Milliseconds()
	if m.observer != nil {
		m.observer.ObserveExec(m.cfg.Name, outcome, res.Duration)
	}
	return res
}

// refused builds a synthetic failure result.
func refused(message string, start time.Time) ExecResult {
	return ExecResult{
		ExitCode: 1,
		Stderr:   message,
		Duration: time.Since(start),
	}
}

func outcomeFor(exitCode int) string {
	if exitCode == 0 {
		return ExecOutcomeSuccess
	}
	return ExecOutcomeFailure
}
