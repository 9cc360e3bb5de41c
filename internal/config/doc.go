// Package config loads forage-sandbox configuration.
//
// # Layers
//
// Configuration is resolved with koanf from four layers, later layers
// overriding earlier ones:
//
//  1. Built-in defaults
//  2. A TOML file, /etc/firefly-forage/sandbox.toml unless --config is given
//  3. FORAGE_SANDBOX_* environment variables (FORAGE_SANDBOX_BROWSER__CDP_PORT)
//  4. Command-line flags that were explicitly set
//
// # File Format
//
//	state_dir = "/var/lib/firefly-forage"
//
//	[sandbox]
//	name   = "agent"
//	mode   = "standard"   # off, light, standard
//	engine = "auto"       # auto, docker, podman, apple, docker-api
//	image  = "docker.io/library/debian:bookworm-slim"
//
//	[browser]
//	enabled  = true
//	cdp_port = 9222
//
//	[resources]
//	memory = "2g"
//	cpus   = 2
//
//	[[mounts]]
//	source    = "/home/me/project"
//	target    = "/workspace"
//	read_only = false
//
// # Conversion
//
// Config.SandboxConfig produces the sandbox.Config handed to
// sandbox.NewManager; Config.EngineOptions the engine.Options used when
// constructing engines directly (detection, gc).
package config
