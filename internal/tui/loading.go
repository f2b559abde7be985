package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chis/regview/internal/catalog"
)

// RefreshCompleteMsg is sent when a catalog refresh finishes
type RefreshCompleteMsg struct {
	Snapshot catalog.Snapshot
}

// LoadingModel refreshes the catalog and shows log output while it runs
type LoadingModel struct {
	s *session

	// UI state
	logs      []LogMsg
	maxLogs   int
	completed bool
	snapshot  catalog.Snapshot
}

// NewLoadingModel creates the first screen of a browse run
func NewLoadingModel(ctx context.Context, orchestrator *catalog.Orchestrator, registryName string) LoadingModel {
	return newLoadingModel(&session{
		ctx:          ctx,
		orchestrator: orchestrator,
		registryName: registryName,
	})
}

func newLoadingModel(s *session) LoadingModel {
	return LoadingModel{
		s:       s,
		logs:    make([]LogMsg, 0),
		maxLogs: 100,
	}
}

// Init starts the refresh
func (m LoadingModel) Init() tea.Cmd {
	return m.runRefresh()
}

// runRefresh refreshes the catalog in the background
func (m LoadingModel) runRefresh() tea.Cmd {
	return func() tea.Msg {
		return RefreshCompleteMsg{Snapshot: m.s.orchestrator.Refresh(m.s.ctx)}
	}
}

// Update handles messages and updates the model
func (m LoadingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			if m.completed {
				retry := newLoadingModel(m.s)
				return retry, retry.Init()
			}
		}

	case tea.WindowSizeMsg:
		m.s.width = msg.Width
		m.s.height = msg.Height
		return m, nil

	case LogMsg:
		// Keep only the last maxLogs lines
		m.logs = append(m.logs, msg)
		if len(m.logs) > m.maxLogs {
			m.logs = m.logs[len(m.logs)-m.maxLogs:]
		}
		return m, nil

	case RefreshCompleteMsg:
		m.completed = true
		m.snapshot = msg.Snapshot

		// A degraded catalog has nothing to list; stay here and offer a retry
		if msg.Snapshot.State != catalog.StateDegraded {
			return NewRepositoryListModel(m.s, msg.Snapshot), nil
		}
		return m, nil
	}

	return m, nil
}

// View renders the loading screen
func (m LoadingModel) View() string {
	var sections []string

	switch {
	case !m.completed:
		sections = append(sections, TitleStyle.Render(fmt.Sprintf("Loading %s...", m.s.registryName)))
		sections = append(sections, lipgloss.NewStyle().
			Foreground(ColorInfo).
			Render("Fetching the catalog and the tags of every repository...\n"))
	default:
		sections = append(sections, TitleStyle.Render("Refresh Failed"))
	}

	if len(m.logs) > 0 {
		sections = append(sections, m.renderLogs())
	}

	if m.completed && m.snapshot.Error != "" {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true).
			Render(fmt.Sprintf("\nError: %s\n", m.snapshot.Error)))
	}

	if m.completed {
		sections = append(sections, formatHelp([]KeyBinding{{"r", "retry"}, {"q", "quit"}}))
	} else {
		sections = append(sections, formatHelp([]KeyBinding{{"ctrl+c", "cancel"}}))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderLogs shows recent log messages
func (m LoadingModel) renderLogs() string {
	maxVisible := m.s.listHeight()

	startIdx := 0
	if len(m.logs) > maxVisible {
		startIdx = len(m.logs) - maxVisible
	}

	lines := make([]string, 0, len(m.logs)-startIdx)
	for _, log := range m.logs[startIdx:] {
		color := ColorMuted
		if strings.Contains(log.Message, "ERROR") || strings.Contains(log.Message, "WARN") {
			color = ColorError
		}

		lines = append(lines, lipgloss.NewStyle().
			Foreground(color).
			Render(fmt.Sprintf("[%s] %s", log.Timestamp.Format("15:04:05"), log.Message)))
	}

	return strings.Join(lines, "\n") + "\n"
}
