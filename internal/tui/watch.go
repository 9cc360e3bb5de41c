// Package tui provides terminal user interface components for forage-sandbox
package tui

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-sandbox/internal/sandbox"
)

// eventLimit is the number of most recent events shown
const eventLimit = 200

// refreshTimeout bounds one poll of the control API
const refreshTimeout = 5 * time.Second

// Source is the control surface the watch view polls.
// *control.Client implements it.
type Source interface {
	Status(ctx context.Context) (*sandbox.Status, error)
	Events(ctx context.Context, eventType audit.EventType, n int) ([]audit.Event, error)
	Recover(ctx context.Context) (sandbox.State, error)
}

// eventItem implements list.Item for event display
type eventItem struct {
	event audit.Event
}

func (i eventItem) Title() string {
	return fmt.Sprintf("%s %s", i.event.Timestamp.Local().Format(time.TimeOnly), i.event.Type)
}

func (i eventItem) Description() string {
	return i.event.Detail
}

func (i eventItem) FilterValue() string {
	return string(i.event.Type)
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	statusColors = map[health.Status]lipgloss.Color{
		health.StatusHealthy:   lipgloss.Color("42"),
		health.StatusNoBrowser: lipgloss.Color("214"),
		health.StatusDegraded:  lipgloss.Color("196"),
		health.StatusStopped:   lipgloss.Color("241"),
		health.StatusPending:   lipgloss.Color("245"),
	}
)

func statusIcon(s health.Status) string {
	switch s {
	case health.StatusHealthy:
		return "✓"
	case health.StatusDegraded:
		return "⚠"
	case health.StatusNoBrowser:
		return "○"
	}
	return "●"
}

// Messages
type (
	tickMsg struct{}

	snapshotMsg struct {
		status    *sandbox.Status
		health    *health.CheckResult
		events    []audit.Event
		err       error
		scheduled bool
	}

	recoverMsg struct {
		state sandbox.State
		err   error
	}
)

// WatchModel is the bubbletea model for the live sandbox view
type WatchModel struct {
	source     Source
	interval   time.Duration
	httpClient *http.Client

	list     list.Model
	status   *sandbox.Status
	health   *health.CheckResult
	err      error
	message  string
	quitting bool
}

// NewWatch creates a watch view polling source every interval
func NewWatch(source Source, interval time.Duration) WatchModel {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = selectedStyle
	delegate.Styles.SelectedDesc = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	l := list.New(nil, delegate, 80, 20)
	l.Title = "Events"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	return WatchModel{
		source:     source,
		interval:   interval,
		httpClient: &http.Client{Timeout: health.CDPTimeout},
		list:       l,
	}
}

func (m WatchModel) Init() tea.Cmd {
	return m.refresh(true)
}

// refresh polls the source. Only scheduled refreshes arm the next tick,
// so a manual refresh never starts a second polling loop.
func (m WatchModel) refresh(scheduled bool) tea.Cmd {
	source, client := m.source, m.httpClient
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		st, err := source.Status(ctx)
		if err != nil {
			return snapshotMsg{err: err, scheduled: scheduled}
		}
		events, err := source.Events(ctx, "", eventLimit)
		if err != nil {
			return snapshotMsg{status: st, err: err, scheduled: scheduled}
		}
		return snapshotMsg{
			status:    st,
			health:    health.Check(ctx, *st, events, client),
			events:    events,
			scheduled: scheduled,
		}
	}
}

func (m WatchModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m WatchModel) recover() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		state, err := source.Recover(context.Background())
		return recoverMsg{state: state, err: err}
	}
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-6)
		return m, nil

	case tickMsg:
		return m, m.refresh(true)

	case snapshotMsg:
		m.err = msg.err
		if msg.status != nil {
			m.status = msg.status
		}
		if msg.err == nil {
			m.health = msg.health
			m.list.SetItems(eventItems(msg.events))
		}
		if msg.scheduled {
			return m, m.tick()
		}
		return m, nil

	case recoverMsg:
		if msg.err != nil {
			m.message = fmt.Sprintf("recover failed: %v", msg.err)
		} else {
			m.message = fmt.Sprintf("recover: %s", msg.state)
		}
		return m, m.refresh(false)

	case tea.KeyMsg:
		// Don't handle keys if filtering
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch msg.String() {
		case "r":
			m.message = "recovering..."
			return m, m.recover()

		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// eventItems lists events newest first
func eventItems(events []audit.Event) []list.Item {
	items := make([]list.Item, len(events))
	for i, e := range events {
		items[len(events)-1-i] = eventItem{event: e}
	}
	return items
}

func (m WatchModel) header() string {
	if m.status == nil {
		return "waiting for sandbox..."
	}
	summary := health.StatusPending
	if m.health != nil {
		summary = health.GetSummary(m.health)
	}
	style := lipgloss.NewStyle().Bold(true).Foreground(statusColors[summary])

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Firefly Forage - " + m.status.Name))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("%s  mode %s", style.Render(statusIcon(summary)+" "+string(summary)), m.status.Mode))
	if m.status.Engine != "" {
		sb.WriteString(fmt.Sprintf(" | engine %s", m.status.Engine))
	}
	if m.health != nil && m.health.Uptime != "" {
		sb.WriteString(fmt.Sprintf(" | up %s", m.health.Uptime))
	}
	if m.status.BrowserEndpoint != "" {
		sb.WriteString(fmt.Sprintf(" | cdp %s", m.status.BrowserEndpoint))
	}
	return sb.String()
}

func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(m.header())
	sb.WriteString("\n")
	if m.err != nil {
		sb.WriteString(errorStyle.Render(m.err.Error()))
		sb.WriteString("\n")
	}
	if m.message != "" {
		sb.WriteString(m.message)
		sb.WriteString("\n")
	}
	sb.WriteString(m.list.View())
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render("[r] Recover  [/] Filter  [q] Quit"))
	return sb.String()
}

// RunWatch runs the interactive watch view until the user quits
func RunWatch(source Source, interval time.Duration) error {
	p := tea.NewProgram(NewWatch(source, interval), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// SimpleStatus renders a non-interactive status summary
func SimpleStatus(st *sandbox.Status, r *health.CheckResult) string {
	var sb strings.Builder

	summary := health.GetSummary(r)
	sb.WriteString(fmt.Sprintf("Sandbox: %s\n", st.Name))
	sb.WriteString(strings.Repeat("─", 40) + "\n")
	sb.WriteString(fmt.Sprintf("Health:  %s %s\n", statusIcon(summary), summary))
	sb.WriteString(fmt.Sprintf("State:   %s\n", st.State))
	sb.WriteString(fmt.Sprintf("Mode:    %s\n", st.Mode))
	if st.Engine != "" {
		sb.WriteString(fmt.Sprintf("Engine:  %s\n", st.Engine))
	}
	if st.MainContainer != "" {
		sb.WriteString(fmt.Sprintf("Main:    %s\n", st.MainContainer))
	}
	if r.Uptime != "" {
		sb.WriteString(fmt.Sprintf("Uptime:  %s\n", r.Uptime))
	}
	if st.BrowserContainer != "" {
		sb.WriteString(fmt.Sprintf("Browser: %s (%s)\n", st.BrowserContainer, st.BrowserEndpoint))
		if r.BrowserVersion != "" {
			sb.WriteString(fmt.Sprintf("         %s\n", r.BrowserVersion))
		}
	}
	sb.WriteString(fmt.Sprintf("Events:  %d\n", st.Events))
	return sb.String()
}
