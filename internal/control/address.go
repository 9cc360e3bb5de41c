package control

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/natefinch/atomic"
)

// addressPath returns {stateDir}/sandboxes/{name}.control.
func addressPath(stateDir, name string) (string, error) {
	path, err := securejoin.SecureJoin(stateDir, filepath.Join("sandboxes", name+".control"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve control address path: %w", err)
	}
	return path, nil
}

// WriteAddress records where the control API of a sandbox listens.
func WriteAddress(stateDir, name, addr string) error {
	path, err := addressPath(stateDir, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create sandboxes directory: %w", err)
	}
	return atomic.WriteFile(path, strings.NewReader(addr+"\n"))
}

// ReadAddress returns the recorded control address of a sandbox.
func ReadAddress(stateDir, name string) (string, error) {
	path, err := addressPath(stateDir, name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("sandbox %s is not running (no control address)", name)
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// RemoveAddress deletes the recorded control address.
func RemoveAddress(stateDir, name string) error {
	path, err := addressPath(stateDir, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
