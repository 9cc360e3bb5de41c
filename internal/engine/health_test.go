package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/system"
)

func TestAggregateHealth(t *testing.T) {
	tests := []struct {
		name        string
		responses   map[string]system.MockResponse
		wantHealthy bool
		wantDetail  string
	}{
		{
			name: "healthy",
			responses: map[string]system.MockResponse{
				"docker info":    {},
				"docker inspect": {Stdout: "true"},
				"docker exec":    {},
			},
			wantHealthy: true,
		},
		{
			name: "engine unreachable",
			responses: map[string]system.MockResponse{
				"docker info": {ExitCode: 1},
			},
			wantDetail: "not reachable",
		},
		{
			name: "container stopped",
			responses: map[string]system.MockResponse{
				"docker info":    {},
				"docker inspect": {Stdout: "false"},
			},
			wantDetail: "not running",
		},
		{
			name: "exec fails",
			responses: map[string]system.MockResponse{
				"docker info":    {},
				"docker inspect": {Stdout: "true"},
				"docker exec":    {ExitCode: 126, Stderr: "OCI runtime exec failed"},
			},
			wantDetail: "probe exited 126",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := system.NewMockRunner()
			runner.AddPath("docker", "/usr/bin/docker")
			for k, v := range tt.responses {
				runner.AddResponse(k, v)
			}
			e := NewDockerEngine(Options{Runner: runner})

			report, err := e.HealthCheck(context.Background(), "abc")
			if err != nil {
				t.Fatalf("HealthCheck() error = %v", err)
			}
			if report.Healthy != tt.wantHealthy {
				t.Errorf("Healthy = %v, want %v (detail %q)", report.Healthy, tt.wantHealthy, report.Detail)
			}
			if tt.wantDetail != "" && !strings.Contains(report.Detail, tt.wantDetail) {
				t.Errorf("Detail = %q, want it to contain %q", report.Detail, tt.wantDetail)
			}
			if report.CheckedAt.IsZero() {
				t.Error("CheckedAt should be set")
			}
		})
	}
}

func TestAggregateHealth_EmptyID(t *testing.T) {
	e := NewDockerEngine(Options{Runner: system.NewMockRunner()})
	if _, err := e.HealthCheck(context.Background(), ""); err == nil {
		t.Error("HealthCheck(\"\") should fail")
	}
}
