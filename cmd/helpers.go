package cmd

import (
	"context"
	"encoding/json"
	"io"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/control"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/logging"
)

// Helper aliases for user-facing output (delegates to logging package)
var (
	logInfo    = logging.UserInfo
	logSuccess = logging.UserSuccess
	logWarning = logging.UserWarning
)

// currentApp returns the application context.
func currentApp() *app.App {
	return app.Default
}

// sandboxName returns the configured sandbox name.
func sandboxName() string {
	return currentApp().Config.Sandbox.Name
}

// connect returns a control client for the running sandbox after checking
// that its API answers.
func connect(ctx context.Context) (*control.Client, error) {
	client, err := currentApp().Client()
	if err != nil {
		return nil, errors.ControlError("cannot reach sandbox", err)
	}
	if err := client.Ping(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// jsonMode reports whether --output json was given.
func jsonMode() bool {
	return output == "json"
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
