package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/engine"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/sandbox"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sandbox.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("name", sandbox.DefaultName, "")
	fs.String("mode", "", "")
	fs.String("engine", "", "")
	fs.Int("cdp-port", 0, "")
	fs.Bool("browser", false, "")
	fs.Float64("cpus", 0, "")
	fs.String("unrelated", "x", "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultStateDir, cfg.StateDir)
	assert.Equal(t, sandbox.DefaultName, cfg.Sandbox.Name)
	assert.Equal(t, "standard", cfg.Sandbox.Mode)
	assert.Equal(t, "auto", cfg.Sandbox.Engine)
	assert.Equal(t, sandbox.DefaultCommand, cfg.Sandbox.Command)
	assert.False(t, cfg.Browser.Enabled)
	assert.True(t, cfg.Browser.AutoStart)
	assert.Equal(t, sandbox.DefaultCDPPort, cfg.Browser.CDPPort)
	assert.Equal(t, DefaultControlListen, cfg.Control.Listen)
	assert.Equal(t, 30*time.Second, cfg.MonitorInterval())

	sc, err := cfg.SandboxConfig()
	require.NoError(t, err)
	assert.Equal(t, sandbox.ModeStandard, sc.Mode)
	assert.Equal(t, engine.TypeAuto, sc.Engine)
	assert.Equal(t, sandbox.DefaultTimeouts(), sc.Timeouts)
	assert.False(t, sc.HostExec, "host execution is opt-in")
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
state_dir = "/tmp/forage-state"

[sandbox]
name = "agent"
mode = "light"
host_exec = true
engine = "podman"
image = "docker.io/library/alpine:3"
command = ["tail", "-f", "/dev/null"]

[browser]
enabled = true
cdp_port = 9333

[resources]
memory = "2g"
cpus = 1.5
pids_limit = 256
network = "none"

[timeouts]
exec = "90s"

[monitor]
interval = "5s"
auto_recover = false

[env]
CI = "1"

[[mounts]]
source = "/home/me/project"
target = "/workspace"

[[mounts]]
source = "/home/me/.cache"
target = "/cache"
read_only = true
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/forage-state", cfg.StateDir)
	assert.Equal(t, "/tmp/forage-state/sandboxes", cfg.Paths().SandboxesDir)
	assert.Equal(t, 5*time.Second, cfg.MonitorInterval())
	assert.False(t, cfg.Monitor.AutoRecover)

	sc, err := cfg.SandboxConfig()
	require.NoError(t, err)
	assert.Equal(t, "agent", sc.Name)
	assert.Equal(t, sandbox.ModeLight, sc.Mode)
	assert.True(t, sc.HostExec)
	assert.Equal(t, engine.TypePodman, sc.Engine)
	assert.Equal(t, []string{"tail", "-f", "/dev/null"}, sc.Command)
	assert.True(t, sc.Browser.Enabled)
	assert.Equal(t, 9333, sc.Browser.CDPPort)
	assert.Equal(t, engine.Resources{Memory: "2g", CPUs: 1.5, PidsLimit: 256, Network: "none"}, sc.Resources)
	assert.Equal(t, 90*time.Second, sc.Timeouts.Exec)
	assert.Equal(t, sandbox.DefaultTimeouts().Pull, sc.Timeouts.Pull)
	assert.Equal(t, map[string]string{"CI": "1"}, sc.Env)
	require.Len(t, sc.Mounts, 2)
	assert.Equal(t, engine.Mount{Source: "/home/me/.cache", Target: "/cache", ReadOnly: true}, sc.Mounts[1])
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[sandbox]
name = "agent"

[browser]
cdp_port = 9333
`)
	t.Setenv("FORAGE_SANDBOX_SANDBOX__NAME", "from-env")
	t.Setenv("FORAGE_SANDBOX_BROWSER__CDP_PORT", "9444")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Sandbox.Name)
	assert.Equal(t, 9444, cfg.Browser.CDPPort)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("FORAGE_SANDBOX_SANDBOX__MODE", "light")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--mode", "off", "--cdp-port", "9555", "--browser", "--cpus", "0.5"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, "off", cfg.Sandbox.Mode)
	assert.Equal(t, 9555, cfg.Browser.CDPPort)
	assert.True(t, cfg.Browser.Enabled)
	assert.Equal(t, 0.5, cfg.Resources.CPUs)
	assert.Equal(t, sandbox.DefaultName, cfg.Sandbox.Name, "unchanged flags keep lower layers")
}

func TestLoad_UnchangedFlagsIgnored(t *testing.T) {
	path := writeConfig(t, `
[sandbox]
name = "agent"
`)
	fs := testFlags()
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, "agent", cfg.Sandbox.Name)
	assert.Equal(t, "standard", cfg.Sandbox.Mode)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad toml", "[sandbox\nname=", "invalid TOML"},
		{"bad mode", "[sandbox]\nmode = \"heavy\"", "invalid sandbox mode"},
		{"bad engine", "[sandbox]\nengine = \"lxc\"", "unknown engine type"},
		{"bad name", "[sandbox]\nname = \"Bad Name\"", "invalid sandbox name"},
		{"bad duration", "[timeouts]\nexec = \"soon\"", "timeouts.exec"},
		{"negative duration", "[timeouts]\npull = \"-1s\"", "must be positive"},
		{"relative state dir", "state_dir = \"state\"", "absolute path"},
		{"relative mount", "[[mounts]]\nsource = \"/a\"\ntarget = \"b\"", "mount target"},
		{"bad interval", "[monitor]\ninterval = \"often\"", "monitor.interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"), nil)
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "browser.cdp_port", envKey("FORAGE_SANDBOX_BROWSER__CDP_PORT"))
	assert.Equal(t, "state_dir", envKey("FORAGE_SANDBOX_STATE_DIR"))
}

func TestEngineOptions(t *testing.T) {
	cfg, err := Load(writeConfig(t, "[sandbox]\nname = \"agent\"\ndocker_host = \"unix:///run/docker.sock\"\n[timeouts]\nstop = \"3s\""), nil)
	require.NoError(t, err)

	opts := cfg.EngineOptions()
	assert.Equal(t, "agent", opts.Sandbox)
	assert.Equal(t, "unix:///run/docker.sock", opts.DockerHost)
	assert.Equal(t, 3*time.Second, opts.StopTimeout)
}

func TestTOMLParser_Marshal(t *testing.T) {
	out, err := TOMLParser().Marshal(map[string]interface{}{
		"sandbox": map[string]interface{}{"name": "agent"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(out), `name = "agent"`)
}

func TestPaths_EnsureStateDir(t *testing.T) {
	cfg := &Config{StateDir: t.TempDir()}
	p := cfg.Paths()
	require.NoError(t, p.EnsureStateDir())
	assert.DirExists(t, p.SandboxesDir)
}
