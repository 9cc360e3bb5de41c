package system

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MockRunner implements CommandRunner for testing.
type MockRunner struct {
	mu sync.Mutex

	// Commands records all executed commands for verification.
	Commands []MockCommand

	// Responses maps command patterns to responses.
	// Key format: "command arg1 arg2..."; the longest matching prefix of the
	// actual argv wins.
	Responses map[string]MockResponse

	// DefaultResponse is used when no matching response is found.
	DefaultResponse MockResponse

	// Paths maps executable names to the path LookPath returns.
	// Names missing from the map are reported as not found.
	Paths map[string]string
}

// MockCommand records an executed command.
type MockCommand struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string
	Stdin string
}

// Line returns the command and its arguments joined by spaces.
func (c MockCommand) Line() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// MockResponse defines the response for a command.
type MockResponse struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// NewMockRunner creates a new MockRunner.
func NewMockRunner() *MockRunner {
	return &MockRunner{
		Commands:  make([]MockCommand, 0),
		Responses: make(map[string]MockResponse),
		Paths:     make(map[string]string),
	}
}

// AddResponse adds a response for a command pattern.
func (m *MockRunner) AddResponse(pattern string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[pattern] = resp
}

// AddPath makes LookPath resolve name.
func (m *MockRunner) AddPath(name, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Paths[name] = path
}

func (m *MockRunner) Run(ctx context.Context, c Command) (*Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := MockCommand{Name: c.Name, Args: c.Args, Dir: c.Dir, Env: c.Env}
	if c.Stdin != nil {
		data, _ := io.ReadAll(c.Stdin)
		rec.Stdin = string(data)
	}
	m.Commands = append(m.Commands, rec)

	resp := m.match(c.Name, c.Args)
	if resp.Err != nil {
		return &Output{ExitCode: -1}, resp.Err
	}
	return &Output{
		Stdout:   []byte(resp.Stdout),
		Stderr:   []byte(resp.Stderr),
		ExitCode: resp.ExitCode,
	}, nil
}

// match finds the response with the longest pattern that prefixes the argv.
func (m *MockRunner) match(name string, args []string) MockResponse {
	for n := len(args); n >= 0; n-- {
		key := strings.TrimSpace(name + " " + strings.Join(args[:n], " "))
		if resp, ok := m.Responses[key]; ok {
			return resp
		}
	}
	return m.DefaultResponse
}

func (m *MockRunner) LookPath(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.Paths[name]; ok {
		return p, nil
	}
	return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
}

// LastCommand returns the most recently executed command.
func (m *MockRunner) LastCommand() (MockCommand, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Commands) == 0 {
		return MockCommand{}, false
	}
	return m.Commands[len(m.Commands)-1], true
}

// CommandsMatching returns recorded commands whose line starts with prefix.
func (m *MockRunner) CommandsMatching(prefix string) []MockCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MockCommand
	for _, c := range m.Commands {
		if strings.HasPrefix(c.Line(), prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears all recorded commands.
func (m *MockRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commands = make([]MockCommand, 0)
}

var _ CommandRunner = (*MockRunner)(nil)
