package engine

import (
	"context"
	"errors"
	"testing"
)

func TestMockEngine_Lifecycle(t *testing.T) {
	m := NewMockEngine()
	ctx := context.Background()

	id, err := m.RunContainer(ctx, RunSpec{Image: "alpine", Role: RoleMain})
	if err != nil {
		t.Fatalf("RunContainer() error = %v", err)
	}

	running, _ := m.IsContainerRunning(ctx, id)
	if !running {
		t.Error("container should be running after RunContainer")
	}

	report, _ := m.HealthCheck(ctx, id)
	if !report.Healthy {
		t.Error("running container should be healthy")
	}

	if err := m.StopContainer(ctx, id); err != nil {
		t.Fatalf("StopContainer() error = %v", err)
	}
	if err := m.RemoveContainer(ctx, id); err != nil {
		t.Fatalf("RemoveContainer() error = %v", err)
	}

	ids, _ := m.ListContainers(ctx)
	if len(ids) != 0 {
		t.Errorf("ListContainers() = %v, want empty", ids)
	}
}

func TestMockEngine_RoleErrors(t *testing.T) {
	m := NewMockEngine()
	m.SetError("RunContainer:browser", errors.New("no chrome"))
	ctx := context.Background()

	if _, err := m.RunContainer(ctx, RunSpec{Role: RoleMain}); err != nil {
		t.Errorf("main RunContainer() error = %v, want nil", err)
	}
	if _, err := m.RunContainer(ctx, RunSpec{Role: RoleBrowser}); err == nil {
		t.Error("browser RunContainer() should fail")
	}
}

func TestMockEngine_HealthQueue(t *testing.T) {
	m := NewMockEngine()
	m.QueueHealth(false, true)
	ctx := context.Background()

	first, _ := m.HealthCheck(ctx, "x")
	second, _ := m.HealthCheck(ctx, "x")
	third, _ := m.HealthCheck(ctx, "x")

	if first.Healthy || !second.Healthy {
		t.Errorf("queued outcomes = %v, %v; want false, true", first.Healthy, second.Healthy)
	}
	if third.Healthy {
		t.Error("drained queue should follow container state (missing container)")
	}
}

func TestMockEngine_CallLog(t *testing.T) {
	m := NewMockEngine()
	ctx := context.Background()

	m.IsAvailable(ctx)
	_, _ = m.ImageExists(ctx, "alpine")
	_ = m.PullImage(ctx, "alpine")

	if got := m.CallCount("PullImage"); got != 1 {
		t.Errorf("CallCount(PullImage) = %d, want 1", got)
	}
	calls := m.GetCalls()
	if len(calls) != 3 || calls[0].Method != "IsAvailable" {
		t.Errorf("calls = %v", calls)
	}
	if ok, _ := m.ImageExists(ctx, "alpine"); !ok {
		t.Error("pulled image should exist")
	}

	m.Reset()
	if len(m.GetCalls()) != 0 {
		t.Error("Reset() should clear the call log")
	}
}

func TestMockEngine_ExecFunc(t *testing.T) {
	m := NewMockEngine()
	m.ExecFunc = func(ctx context.Context, spec ExecSpec) (*ExecResult, error) {
		return &ExecResult{ExitCode: 7, Stdout: spec.ContainerID}, nil
	}

	res, err := m.ExecInContainer(context.Background(), ExecSpec{ContainerID: "abc"})
	if err != nil {
		t.Fatalf("ExecInContainer() error = %v", err)
	}
	if res.ExitCode != 7 || res.Stdout != "abc" {
		t.Errorf("result = %+v", res)
	}
}
