package sandbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/natefinch/atomic"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/engine"
)

// Handles is the persisted record of the containers a Manager holds.
// It lets a later process find containers left behind by a crash.
type Handles struct {
	Sandbox   string      `json:"sandbox"`
	Engine    engine.Type `json:"engine"`
	Main      string      `json:"main,omitempty"`
	Browser   string      `json:"browser,omitempty"`
	PID       int         `json:"pid"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// IDs returns the non-empty container ids, main first.
func (h *Handles) IDs() []string {
	var ids []string
	if h.Main != "" {
		ids = append(ids, h.Main)
	}
	if h.Browser != "" {
		ids = append(ids, h.Browser)
	}
	return ids
}

// HandleStore persists Handles under {stateDir}/sandboxes/{name}.handles.json.
type HandleStore struct {
	stateDir string
}

// NewHandleStore creates a handle store rooted at stateDir.
func NewHandleStore(stateDir string) *HandleStore {
	return &HandleStore{stateDir: stateDir}
}

func (s *HandleStore) path(name string) (string, error) {
	path, err := securejoin.SecureJoin(s.stateDir, filepath.Join("sandboxes", name+".handles.json"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve handle file path: %w", err)
	}
	return path, nil
}

// Save atomically replaces the handle file.
func (s *HandleStore) Save(h Handles) error {
	path, err := s.path(h.Sandbox)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create sandboxes directory: %w", err)
	}

	if h.UpdatedAt.IsZero() {
		h.UpdatedAt = time.Now()
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal handles: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write handles: %w", err)
	}
	return nil
}

// Load reads the handle file. A missing file returns nil, nil.
func (s *HandleStore) Load(name string) (*Handles, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read handles: %w", err)
	}

	var h Handles
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse handles: %w", err)
	}
	return &h, nil
}

// Remove deletes the handle file.
func (s *HandleStore) Remove(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
