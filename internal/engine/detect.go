package engine

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/logging"
)

// DetectionOrder is the fixed preference order used by Detect
var DetectionOrder = []Type{TypeDocker, TypePodman, TypeApple, TypeDockerAPI}

// ParseType validates an engine type tag. Empty maps to TypeAuto.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case "":
		return TypeAuto, nil
	case TypeAuto, TypeDocker, TypePodman, TypeApple, TypeDockerAPI, TypeMock:
		return t, nil
	default:
		return "", fmt.Errorf("unknown engine type: %s", s)
	}
}

// New creates an engine adapter for a type tag. It performs no I/O; use
// IsAvailable to find out whether the engine can actually be used.
func New(t Type, opts Options) (Engine, error) {
	logging.Debug("creating engine", "type", t)

	switch t {
	case TypeDocker:
		return NewDockerEngine(opts), nil
	case TypePodman:
		return NewPodmanEngine(opts), nil
	case TypeApple:
		return NewAppleEngine(opts), nil
	case TypeDockerAPI:
		return NewDockerAPIEngine(opts)
	case TypeMock:
		return NewMockEngine(), nil
	default:
		return nil, fmt.Errorf("unknown engine type: %s", t)
	}
}

// factory builds a candidate during detection; replaced in tests
var factory = New

// Detect returns the first engine in DetectionOrder whose IsAvailable
// succeeds.
func Detect(ctx context.Context, opts Options) (Engine, error) {
	for _, t := range DetectionOrder {
		e, err := factory(t, opts)
		if err != nil {
			logging.Debug("engine construction failed", "type", t, "error", err)
			continue
		}
		if e.IsAvailable(ctx) {
			logging.Debug("detected engine", "type", t)
			return e, nil
		}
		closeEngine(e)
	}

	tried := make([]string, len(DetectionOrder))
	for i, t := range DetectionOrder {
		tried[i] = string(t)
	}
	return nil, fmt.Errorf("no supported container engine found (tried: %s)", strings.Join(tried, ", "))
}

// Available returns every engine in DetectionOrder usable on this host
func Available(ctx context.Context, opts Options) []Type {
	var available []Type
	for _, t := range DetectionOrder {
		e, err := factory(t, opts)
		if err != nil {
			continue
		}
		if e.IsAvailable(ctx) {
			available = append(available, t)
		}
		closeEngine(e)
	}
	return available
}

// Close releases the resources of engines that hold any, such as the
// Docker API client. Other engines are left alone.
func Close(e Engine) error {
	if c, ok := e.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func closeEngine(e Engine) {
	if err := Close(e); err != nil {
		logging.Debug("failed to close engine", "type", e.Type(), "error", err)
	}
}

// Resolve returns the engine for a type tag, detecting when the tag is
// empty or "auto"
func Resolve(ctx context.Context, t Type, opts Options) (Engine, error) {
	if t == "" || t == TypeAuto {
		return Detect(ctx, opts)
	}
	return New(t, opts)
}
