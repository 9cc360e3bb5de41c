// Package sandbox provides sandbox lifecycle management for forage-sandbox.
//
// A Manager owns one isolated "main" container, plus an optional companion
// headless-browser container, on top of an engine.Engine. It runs commands
// inside the main container, cleans up containers left behind by crashed
// processes, and records every lifecycle step in an append-only event log.
//
// # Manager
//
//	mgr, err := sandbox.NewManager(ctx, sandbox.Config{
//	    Name:  "agent",
//	    Mode:  sandbox.ModeStandard,
//	    Image: "docker.io/library/debian:bookworm-slim",
//	})
//	if err != nil {
//	    return err
//	}
//	if err := mgr.Start(ctx); err != nil {
//	    return err // engine unavailable or image not found
//	}
//	defer mgr.Stop(ctx)
//
//	res := mgr.Exec(ctx, sandbox.ExecRequest{Command: "ls -la"})
//
// # States
//
// A Manager starts uninitialized and moves between ready, degraded and
// stopped through a single transition function checked against a fixed
// table. Only Start returns errors, and only when the engine is unavailable
// or the image cannot be found; every other failure leaves the sandbox
// degraded and is visible through State and the event log. Exec, Stop and
// Recover never return errors.
//
// # Start sequence (standard mode)
//
//  1. Verify the engine is available
//  2. Verify the image exists, pulling it if needed
//  3. Stop then remove every container already carrying this sandbox's labels
//  4. Run the main container
//  5. Health-check it: ready on success, degraded otherwise
//
// When the browser companion is enabled with auto-start and the main
// container is ready, it is started last. Its failure is recorded but never
// changes the main sandbox state.
package sandbox
