package sandbox

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/engine"
)

func TestParseMode(t *testing.T) {
	for _, s := range []string{"off", "light", "standard"} {
		m, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, Mode(s), m)
	}

	_, err := ParseMode("heavy")
	assert.Error(t, err)
	_, err = ParseMode("")
	assert.Error(t, err)
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"agent", false},
		{"my-sandbox_1", false},
		{"0day", false},
		{strings.Repeat("a", 63), false},
		{"", true},
		{"Agent", true},
		{"-agent", true},
		{"a/b", true},
		{"../etc", true},
		{strings.Repeat("a", 64), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{Name: "agent"}.withDefaults()

	assert.Equal(t, ModeStandard, cfg.Mode)
	assert.Equal(t, engine.TypeAuto, cfg.Engine)
	assert.Equal(t, DefaultImage, cfg.Image)
	assert.Equal(t, DefaultCommand, cfg.Command)
	assert.Equal(t, DefaultWorkdir, cfg.Workdir)
	assert.Equal(t, DefaultBrowserImage, cfg.Browser.Image)
	assert.Equal(t, DefaultCDPPort, cfg.Browser.CDPPort)
	assert.Equal(t, DefaultTimeouts(), cfg.Timeouts)
}

func TestConfig_WithDefaultsKeepsValues(t *testing.T) {
	cfg := Config{
		Name:     "agent",
		Mode:     ModeLight,
		Image:    "alpine:3",
		Command:  []string{"tail", "-f", "/dev/null"},
		Timeouts: Timeouts{Exec: time.Second},
	}.withDefaults()

	assert.Equal(t, ModeLight, cfg.Mode)
	assert.Equal(t, "alpine:3", cfg.Image)
	assert.Equal(t, []string{"tail", "-f", "/dev/null"}, cfg.Command)
	assert.Equal(t, time.Second, cfg.Timeouts.Exec)
	assert.Equal(t, DefaultTimeouts().Pull, cfg.Timeouts.Pull)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown engine", func(c *Config) { c.Engine = "lxc" }, "unknown engine type"},
		{"bad mode", func(c *Config) { c.Mode = "heavy" }, "invalid sandbox mode"},
		{"port zero", func(c *Config) { c.Browser.CDPPort = 0 }, "invalid browser CDP port"},
		{"mount without target", func(c *Config) {
			c.Mounts = []engine.Mount{{Source: "/src"}}
		}, "mount requires"},
		{"negative cpus", func(c *Config) { c.Resources.CPUs = -1 }, "cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
