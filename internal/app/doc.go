// Package app provides the application context for forage-sandbox.
//
// This package manages application-wide dependencies using the functional
// options pattern, enabling easy testing through dependency injection.
//
// # App Context
//
// The App struct holds core dependencies:
//
//	type App struct {
//	    Config *config.Config        // Loaded configuration
//	    Paths  *config.Paths         // File system paths
//	    Engine engine.Engine         // Container engine, resolved lazily
//	    Runner system.CommandRunner  // Host command runner (light mode)
//	}
//
// # Creating an App
//
//	// Production usage
//	a := app.New(app.WithConfig(cfg))
//
//	// Testing with custom dependencies
//	a := app.New(
//	    app.WithConfig(testConfig),
//	    app.WithEngine(engine.NewMockEngine()),
//	    app.WithRunner(system.NewMockRunner()),
//	)
//
// # Building a Manager
//
// NewManager wires the audit log and the handle store into a
// sandbox.Manager and binds the engine for standard mode:
//
//	mgr, err := a.NewManager(ctx, sandbox.WithObserver(collector))
package app
