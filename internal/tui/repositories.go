package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chis/regview/internal/api"
	"github.com/chis/regview/internal/catalog"
	"github.com/chis/regview/internal/version"
)

// RepositoryListModel lists the repositories of a snapshot
type RepositoryListModel struct {
	s        *session
	snapshot catalog.Snapshot

	// UI state
	cursor    int
	filter    string
	filtering bool
	visible   []catalog.Repository
}

// NewRepositoryListModel creates the repository screen for a snapshot
func NewRepositoryListModel(s *session, snapshot catalog.Snapshot) RepositoryListModel {
	m := RepositoryListModel{s: s, snapshot: snapshot}
	m.rebuildVisibleList()
	return m
}

// Init initializes the repository list
func (m RepositoryListModel) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model
func (m RepositoryListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.filtering {
			return m.handleFilterKey(msg)
		}
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.s.width = msg.Width
		m.s.height = msg.Height
	}
	return m, nil
}

// handleKey processes keyboard input
func (m RepositoryListModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "r":
		loading := newLoadingModel(m.s)
		return loading, loading.Init()

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.visible)-1 {
			m.cursor++
		}

	case "/":
		m.filtering = true

	case "esc":
		if m.filter != "" {
			m.filter = ""
			m.rebuildVisibleList()
		}

	case "enter":
		if len(m.visible) > 0 {
			return NewTagListModel(m.s, m, m.visible[m.cursor]), nil
		}
	}

	return m, nil
}

// handleFilterKey edits the filter term
func (m RepositoryListModel) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEnter:
		m.filtering = false
		return m, nil
	case tea.KeyEsc:
		m.filtering = false
		m.filter = ""
	case tea.KeyBackspace:
		if m.filter != "" {
			m.filter = m.filter[:len(m.filter)-1]
		}
	case tea.KeyRunes, tea.KeySpace:
		if len(m.filter)+len(msg.Runes) <= api.MaxSearchTermLength {
			m.filter += string(msg.Runes)
		}
	default:
		return m, nil
	}

	m.rebuildVisibleList()
	return m, nil
}

// rebuildVisibleList applies the filter and keeps the cursor in range
func (m *RepositoryListModel) rebuildVisibleList() {
	m.visible = catalog.FilterRepositories(m.snapshot.Repositories, m.filter)

	if m.cursor >= len(m.visible) {
		m.cursor = max(len(m.visible)-1, 0)
	}
}

// replaceRepository swaps in an updated entry, e.g. after a tag was deleted
func (m *RepositoryListModel) replaceRepository(repo catalog.Repository) {
	repos := make([]catalog.Repository, len(m.snapshot.Repositories))
	copy(repos, m.snapshot.Repositories)
	for i := range repos {
		if repos[i].Name == repo.Name {
			repos[i] = repo
		}
	}
	m.snapshot.Repositories = repos
	m.rebuildVisibleList()
}

// View renders the repository list
func (m RepositoryListModel) View() string {
	var sections []string

	sections = append(sections, TitleStyle.Render(
		fmt.Sprintf("%s (%d repositories)", m.s.registryName, len(m.snapshot.Repositories))))

	if !m.snapshot.Connected && m.snapshot.Error != "" {
		sections = append(sections, WarningBadge.Render(m.snapshot.Error))
	}

	if m.filtering || m.filter != "" {
		cursor := ""
		if m.filtering {
			cursor = "_"
		}
		sections = append(sections, lipgloss.NewStyle().
			Foreground(ColorInfo).
			Render(fmt.Sprintf("Filter: %s%s", m.filter, cursor)))
	}

	if len(m.visible) == 0 {
		msg := "No repositories found."
		if m.filter != "" {
			msg = fmt.Sprintf("No repositories match %q.", m.filter)
		}
		sections = append(sections, MutedStyle.Padding(1, 2).Render(msg))
	} else {
		sections = append(sections, m.renderList())
	}

	sections = append(sections, m.renderHelp())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderList renders the visible window of repositories
func (m RepositoryListModel) renderList() string {
	start, end := window(m.cursor, len(m.visible), m.s.listHeight())

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		repo := m.visible[i]
		line := cursorLine(repo.Name, i == m.cursor)

		switch {
		case repo.TagsFailed:
			line += " " + ErrorBadge.Render("TAGS FAILED")
		case len(repo.Tags) == 0:
			line += MutedStyle.Render(" no tags")
		default:
			line += MutedStyle.Render(fmt.Sprintf(" %d tags", len(repo.Tags)))
			if newest := version.Newest(repo.Tags); newest != "" {
				line += " " + SuccessBadge.Render(newest)
			}
		}
		lines = append(lines, line)
	}

	if start > 0 || end < len(m.visible) {
		lines = append(lines, MutedStyle.Render(fmt.Sprintf("  %d-%d of %d", start+1, end, len(m.visible))))
	}
	return strings.Join(lines, "\n")
}

// renderHelp shows keyboard shortcuts
func (m RepositoryListModel) renderHelp() string {
	if m.filtering {
		return formatHelp([]KeyBinding{
			{"enter", "apply filter"},
			{"esc", "clear filter"},
		})
	}
	return formatHelp([]KeyBinding{
		{"↑/k ↓/j", "navigate"},
		{"enter", "show tags"},
		{"/", "filter"},
		{"r", "refresh"},
		{"q", "quit"},
	})
}
