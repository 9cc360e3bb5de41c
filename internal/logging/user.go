package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// User-facing status lines for the forage-sandbox CLI, separate from the
// structured debug log. Info and success lines go to the command's stdout,
// warnings and errors to its stderr. In JSON log mode they are emitted as
// log records instead, so every line on stderr stays machine readable.

type userKind struct {
	indicator string
	color     lipgloss.Color
	toErr     bool
}

var (
	kindInfo    = userKind{"ℹ", lipgloss.Color("12"), false}
	kindSuccess = userKind{"✓", lipgloss.Color("10"), false}
	kindWarning = userKind{"⚠", lipgloss.Color("11"), true}
	kindError   = userKind{"✗", lipgloss.Color("9"), true}
)

var (
	userMu  sync.Mutex
	userOut io.Writer = os.Stdout
	userErr io.Writer = os.Stderr
)

// SetUserOutput redirects user messages, typically to a cobra command's
// writers. A nil writer restores the process default.
func SetUserOutput(out, errOut io.Writer) {
	userMu.Lock()
	defer userMu.Unlock()
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	userOut, userErr = out, errOut
}

func userPrint(kind userKind, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	if structured {
		switch kind {
		case kindWarning:
			Logger.Warn(msg, "source", "cli")
		case kindError:
			Logger.Error(msg, "source", "cli")
		default:
			Logger.Info(msg, "source", "cli")
		}
		return
	}

	userMu.Lock()
	defer userMu.Unlock()
	w := userOut
	if kind.toErr {
		w = userErr
	}
	indicator := kind.indicator
	if isTerminal(w) {
		indicator = lipgloss.NewStyle().Foreground(kind.color).Render(indicator)
	}
	fmt.Fprintf(w, "%s %s\n", indicator, msg)
}

// UserInfo prints an informational status line.
func UserInfo(format string, args ...interface{}) {
	userPrint(kindInfo, format, args...)
}

// UserSuccess prints a success status line.
func UserSuccess(format string, args ...interface{}) {
	userPrint(kindSuccess, format, args...)
}

// UserWarning prints a warning to the error stream.
func UserWarning(format string, args ...interface{}) {
	userPrint(kindWarning, format, args...)
}

// UserError prints an error to the error stream.
func UserError(format string, args ...interface{}) {
	userPrint(kindError, format, args...)
}
