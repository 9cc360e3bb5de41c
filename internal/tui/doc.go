// Package tui provides terminal user interface components for forage-sandbox.
//
// This package uses the Bubble Tea framework for the live watch view of a
// running sandbox.
//
// # Watch View
//
// The watch view polls a control API and shows the sandbox state, its
// health summary and the most recent events:
//
//	client := control.NewClient(addr)
//	err := tui.RunWatch(client, 2*time.Second)
//
// Keys: r (recover), / (filter events by type), q (quit). Only the
// periodic refresh re-arms the poll timer.
//
// SimpleStatus renders the same summary without a terminal program, for
// non-interactive output.
//
// # Dependencies
//
// Uses the Charm libraries:
//   - github.com/charmbracelet/bubbletea - TUI framework
//   - github.com/charmbracelet/bubbles - UI components
//   - github.com/charmbracelet/lipgloss - Styling
package tui
