package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockEngine is a mock implementation of Engine for testing
type MockEngine struct {
	mu sync.Mutex

	// Available is returned by IsAvailable
	Available bool

	// Images holds the locally present images
	Images map[string]bool

	// Containers tracks mock containers by id
	Containers map[string]*MockContainer

	// Errors allows injecting errors for specific operations, keyed by
	// method name. RunContainer also honours "RunContainer:<role>".
	Errors map[string]error

	// HealthQueue holds the outcomes of the next HealthCheck calls;
	// once drained, health follows the container's running state.
	HealthQueue []bool

	// ExecResult is returned by ExecInContainer when ExecFunc is nil
	ExecResult ExecResult

	// ExecFunc, when set, computes the exec result. It runs without the
	// mock's lock held so concurrent execs can overlap.
	ExecFunc func(ctx context.Context, spec ExecSpec) (*ExecResult, error)

	// CallLog records all method calls for verification
	CallLog []MockCall

	nextID int
}

// MockContainer is the state of a container in the mock
type MockContainer struct {
	ID      string
	Spec    RunSpec
	Running bool

	// Unlisted hides the container from ListContainers, like a container
	// that lost its ownership labels
	Unlisted bool
}

// MockCall represents a recorded method call
type MockCall struct {
	Method string
	Args   []interface{}
}

// NewMockEngine creates an available mock engine with no images or containers
func NewMockEngine() *MockEngine {
	return &MockEngine{
		Available:  true,
		Images:     make(map[string]bool),
		Containers: make(map[string]*MockContainer),
		Errors:     make(map[string]error),
		CallLog:    make([]MockCall, 0),
	}
}

func (m *MockEngine) record(method string, args ...interface{}) {
	m.CallLog = append(m.CallLog, MockCall{Method: method, Args: args})
}

// SetError sets an error to be returned for a specific operation
func (m *MockEngine) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[operation] = err
}

// ClearError removes an injected error
func (m *MockEngine) ClearError(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Errors, operation)
}

// SetAvailable sets the result of IsAvailable
func (m *MockEngine) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Available = available
}

// AddImage marks an image as present locally
func (m *MockEngine) AddImage(image string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Images[image] = true
}

// AddContainer adds a pre-existing container to the mock
func (m *MockEngine) AddContainer(id string, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Containers[id] = &MockContainer{ID: id, Running: running}
}

// AddUnlistedContainer adds a running container that ListContainers does
// not report
func (m *MockEngine) AddUnlistedContainer(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Containers[id] = &MockContainer{ID: id, Running: true, Unlisted: true}
}

// QueueHealth appends outcomes for upcoming HealthCheck calls
func (m *MockEngine) QueueHealth(outcomes ...bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HealthQueue = append(m.HealthQueue, outcomes...)
}

// SetExecResult sets the result returned by ExecInContainer
func (m *MockEngine) SetExecResult(result ExecResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExecResult = result
}

// GetCalls returns all recorded calls
func (m *MockEngine) GetCalls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]MockCall, len(m.CallLog))
	copy(calls, m.CallLog)
	return calls
}

// GetCallsFor returns all calls for a specific method
func (m *MockEngine) GetCallsFor(method string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var calls []MockCall
	for _, call := range m.CallLog {
		if call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}

// CallCount returns how many times a method was called
func (m *MockEngine) CallCount(method string) int {
	return len(m.GetCallsFor(method))
}

// Container returns a copy of a container's state
func (m *MockEngine) Container(id string) (MockContainer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Containers[id]
	if !ok {
		return MockContainer{}, false
	}
	return *c, true
}

// Reset clears all recorded calls and injected errors
func (m *MockEngine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors = make(map[string]error)
	m.CallLog = make([]MockCall, 0)
	m.HealthQueue = nil
}

// Type returns the engine identifier
func (m *MockEngine) Type() Type {
	return TypeMock
}

// IsAvailable returns the configured availability
func (m *MockEngine) IsAvailable(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("IsAvailable")
	return m.Available
}

// Info returns static mock information
func (m *MockEngine) Info(ctx context.Context) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Info")

	if err, ok := m.Errors["Info"]; ok {
		return nil, err
	}
	return &Info{Type: TypeMock, Version: "mock"}, nil
}

// ImageExists reports whether the image was added
func (m *MockEngine) ImageExists(ctx context.Context, image string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ImageExists", image)

	if err, ok := m.Errors["ImageExists"]; ok {
		return false, err
	}
	return m.Images[image], nil
}

// PullImage marks the image present unless an error is injected
func (m *MockEngine) PullImage(ctx context.Context, image string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("PullImage", image)

	if err, ok := m.Errors["PullImage"]; ok {
		return err
	}
	m.Images[image] = true
	return nil
}

// RunContainer creates a running mock container
func (m *MockEngine) RunContainer(ctx context.Context, spec RunSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("RunContainer", spec)

	if err, ok := m.Errors["RunContainer:"+string(spec.Role)]; ok {
		return "", err
	}
	if err, ok := m.Errors["RunContainer"]; ok {
		return "", err
	}

	m.nextID++
	id := fmt.Sprintf("mock-%s-%d", spec.Role, m.nextID)
	m.Containers[id] = &MockContainer{ID: id, Spec: spec, Running: true}
	return id, nil
}

// ExecInContainer returns the configured exec result
func (m *MockEngine) ExecInContainer(ctx context.Context, spec ExecSpec) (*ExecResult, error) {
	m.mu.Lock()
	m.record("ExecInContainer", spec)
	err, hasErr := m.Errors["ExecInContainer"]
	fn := m.ExecFunc
	result := m.ExecResult
	m.mu.Unlock()

	if hasErr {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, spec)
	}
	return &result, nil
}

// StopContainer marks a container stopped. Like a real engine it fails
// once ctx is done.
func (m *MockEngine) StopContainer(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StopContainer", id)

	if err, ok := m.Errors["StopContainer"]; ok {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c, ok := m.Containers[id]; ok {
		c.Running = false
	}
	return nil
}

// RemoveContainer deletes a container, failing once ctx is done
func (m *MockEngine) RemoveContainer(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("RemoveContainer", id)

	if err, ok := m.Errors["RemoveContainer"]; ok {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	delete(m.Containers, id)
	return nil
}

// IsContainerRunning reports the container's running flag
func (m *MockEngine) IsContainerRunning(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("IsContainerRunning", id)

	if err, ok := m.Errors["IsContainerRunning"]; ok {
		return false, err
	}
	c, ok := m.Containers[id]
	return ok && c.Running, nil
}

// ListContainers returns every container id in sorted order
func (m *MockEngine) ListContainers(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ListContainers")

	if err, ok := m.Errors["ListContainers"]; ok {
		return nil, err
	}
	ids := make([]string, 0, len(m.Containers))
	for id, c := range m.Containers {
		if !c.Unlisted {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// HealthCheck pops the next queued outcome, or reports whether the
// container is running
func (m *MockEngine) HealthCheck(ctx context.Context, id string) (*HealthReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("HealthCheck", id)

	if err, ok := m.Errors["HealthCheck"]; ok {
		return nil, err
	}

	var healthy bool
	if len(m.HealthQueue) > 0 {
		healthy = m.HealthQueue[0]
		m.HealthQueue = m.HealthQueue[1:]
	} else {
		c, ok := m.Containers[id]
		healthy = ok && c.Running
	}

	report := &HealthReport{
		Healthy:         healthy,
		EngineReachable: m.Available,
		Running:         healthy,
		ExecResponsive:  healthy,
		CheckedAt:       time.Now(),
	}
	if !healthy {
		report.Detail = "mock health check failed"
	}
	return report, nil
}

// Ensure MockEngine implements Engine
var _ Engine = (*MockEngine)(nil)
