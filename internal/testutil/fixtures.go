package testutil

import (
	"embed"
	"os"
	"path/filepath"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/config"
)

//go:embed fixtures/*.toml
var fixturesFS embed.FS

// LoadFixture loads a fixture file by name.
func LoadFixture(name string) ([]byte, error) {
	return fixturesFS.ReadFile("fixtures/" + name)
}

// WriteFixture copies a fixture into dir and returns its path.
func WriteFixture(dir, name string) (string, error) {
	data, err := LoadFixture(name)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// LoadConfigFixture loads a TOML fixture through config.Load, so the
// result is layered over defaults and validated.
func LoadConfigFixture(dir, name string) (*config.Config, error) {
	path, err := WriteFixture(dir, name)
	if err != nil {
		return nil, err
	}
	return config.Load(path, nil)
}

// ValidConfig loads the valid sandbox fixture.
func ValidConfig(dir string) (*config.Config, error) {
	return LoadConfigFixture(dir, "valid_sandbox.toml")
}

// InvalidConfig loads the invalid sandbox fixture. It always fails.
func InvalidConfig(dir string) (*config.Config, error) {
	return LoadConfigFixture(dir, "invalid_sandbox.toml")
}
