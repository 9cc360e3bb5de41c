package sandbox

import (
	"fmt"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/gofrs/flock"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/errors"
)

// OwnerLock guarantees a single owning process per sandbox on a host.
type OwnerLock struct {
	fl *flock.Flock
}

func lockPath(stateDir, name string) (string, error) {
	path, err := securejoin.SecureJoin(stateDir, filepath.Join("sandboxes", name+".lock"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve lock path: %w", err)
	}
	return path, nil
}

// AcquireOwnerLock takes the owner lock of a sandbox without blocking.
// It fails with an ExitLocked error when another process holds it.
func AcquireOwnerLock(stateDir, name string) (*OwnerLock, error) {
	path, err := lockPath(stateDir, name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create sandboxes directory: %w", err)
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.Locked(name, err)
	}
	if !locked {
		return nil, errors.Locked(name, nil)
	}
	return &OwnerLock{fl: fl}, nil
}

// Path returns the lock file path.
func (l *OwnerLock) Path() string {
	return l.fl.Path()
}

// Release drops the lock.
func (l *OwnerLock) Release() error {
	return l.fl.Unlock()
}

// IsOwned reports whether some process currently holds the sandbox's lock.
func IsOwned(stateDir, name string) (bool, error) {
	path, err := lockPath(stateDir, name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return false, err
	}
	if locked {
		_ = fl.Unlock()
		return false, nil
	}
	return true, nil
}
