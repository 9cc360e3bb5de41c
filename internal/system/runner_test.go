package system

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestOSRunner_Success(t *testing.T) {
	r := &osRunner{}
	out, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo hello; echo oops >&2"}})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if strings.TrimSpace(string(out.Stdout)) != "hello" {
		t.Errorf("Stdout = %q, want %q", out.Stdout, "hello")
	}
	if strings.TrimSpace(string(out.Stderr)) != "oops" {
		t.Errorf("Stderr = %q, want %q", out.Stderr, "oops")
	}
	if out.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", out.ExitCode)
	}
}

func TestOSRunner_NonZeroExit(t *testing.T) {
	r := &osRunner{}
	out, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "exit 3"}})
	if err != nil {
		t.Fatalf("non-zero exit should not be an error, got %v", err)
	}
	if out.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", out.ExitCode)
	}
}

func TestOSRunner_MissingBinary(t *testing.T) {
	r := &osRunner{}
	_, err := r.Run(context.Background(), Command{Name: "definitely-not-a-real-binary-xyz"})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestOSRunner_Stdin(t *testing.T) {
	r := &osRunner{}
	out, err := r.Run(context.Background(), Command{Name: "cat", Stdin: strings.NewReader("piped")})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if string(out.Stdout) != "piped" {
		t.Errorf("Stdout = %q, want %q", out.Stdout, "piped")
	}
}

func TestOSRunner_CancelledContext(t *testing.T) {
	r := &osRunner{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, Command{Name: "sleep", Args: []string{"5"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestMockRunner_LongestPrefixWins(t *testing.T) {
	m := NewMockRunner()
	m.AddResponse("docker", MockResponse{Stdout: "generic"})
	m.AddResponse("docker image inspect", MockResponse{ExitCode: 1, Stderr: "No such image"})

	out, err := m.Run(context.Background(), Command{Name: "docker", Args: []string{"image", "inspect", "alpine"}})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if out.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", out.ExitCode)
	}

	out, _ = m.Run(context.Background(), Command{Name: "docker", Args: []string{"ps"}})
	if string(out.Stdout) != "generic" {
		t.Errorf("Stdout = %q, want %q", out.Stdout, "generic")
	}
}

func TestMockRunner_RecordsCommands(t *testing.T) {
	m := NewMockRunner()
	_, _ = m.Run(context.Background(), Command{Name: "podman", Args: []string{"stop", "abc"}, Stdin: strings.NewReader("in")})

	last, ok := m.LastCommand()
	if !ok {
		t.Fatal("expected a recorded command")
	}
	if last.Line() != "podman stop abc" {
		t.Errorf("Line() = %q, want %q", last.Line(), "podman stop abc")
	}
	if last.Stdin != "in" {
		t.Errorf("Stdin = %q, want %q", last.Stdin, "in")
	}
	if got := m.CommandsMatching("podman stop"); len(got) != 1 {
		t.Errorf("CommandsMatching = %d, want 1", len(got))
	}

	m.Reset()
	if _, ok := m.LastCommand(); ok {
		t.Error("expected no commands after Reset")
	}
}

func TestMockRunner_Err(t *testing.T) {
	m := NewMockRunner()
	want := errors.New("boom")
	m.AddResponse("docker info", MockResponse{Err: want})

	_, err := m.Run(context.Background(), Command{Name: "docker", Args: []string{"info"}})
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestMockRunner_LookPath(t *testing.T) {
	m := NewMockRunner()
	m.AddPath("docker", "/usr/bin/docker")

	if p, err := m.LookPath("docker"); err != nil || p != "/usr/bin/docker" {
		t.Errorf("LookPath(docker) = %q, %v", p, err)
	}
	if _, err := m.LookPath("podman"); err == nil {
		t.Error("LookPath(podman) should fail")
	}
}
