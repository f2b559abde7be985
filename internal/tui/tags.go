package tui

import (
	"fmt"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chis/regview/internal/api"
	"github.com/chis/regview/internal/catalog"
)

// TagsLoadedMsg carries a fresh tag lookup for the open repository
type TagsLoadedMsg struct {
	Result catalog.TagsResult
}

// DeleteCompleteMsg is sent when a tag delete finishes
type DeleteCompleteMsg struct {
	Tag     string
	Deleted bool
	Err     error
}

// TagListModel lists the tags of one repository and deletes them
type TagListModel struct {
	s      *session
	parent RepositoryListModel
	repo   catalog.Repository

	// UI state
	order      string
	view       api.TagsResponse
	cursor     int
	confirming bool
	busy       bool
	status     string
	error      string
}

// NewTagListModel creates the tag screen of repo, returning to parent on esc
func NewTagListModel(s *session, parent RepositoryListModel, repo catalog.Repository) TagListModel {
	m := TagListModel{s: s, parent: parent, repo: repo, order: api.SortRegistry}
	if repo.TagsFailed {
		m.error = "Tag list could not be fetched, press r to retry"
	}
	m.rebuildView()
	return m
}

// Init initializes the tag list
func (m TagListModel) Init() tea.Cmd {
	return nil
}

func (m *TagListModel) rebuildView() {
	res := catalog.TagsResult{Tags: m.repo.Tags}
	m.view = api.NewTagsResponse(m.repo.Name, res, m.order)
	if m.cursor >= len(m.view.Tags) {
		m.cursor = max(len(m.view.Tags)-1, 0)
	}
}

// Update handles messages and updates the model
func (m TagListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.confirming {
			return m.handleConfirmKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.s.width = msg.Width
		m.s.height = msg.Height

	case TagsLoadedMsg:
		m.busy = false
		if !msg.Result.OK() {
			m.error = fmt.Sprintf("Failed to fetch tags: %v", msg.Result.Err)
			return m, nil
		}
		m.error = ""
		m.repo.Tags = msg.Result.Tags
		m.repo.TagsFailed = false
		m.rebuildView()
		m.parent.replaceRepository(m.repo)

	case DeleteCompleteMsg:
		m.busy = false
		switch {
		case msg.Err != nil:
			m.error = msg.Err.Error()
		case !msg.Deleted:
			m.status = fmt.Sprintf("Registry returned no digest for %s, nothing deleted", msg.Tag)
		default:
			m.status = fmt.Sprintf("Deleted %s:%s", m.repo.Name, msg.Tag)
			m.repo.Tags = slices.DeleteFunc(slices.Clone(m.repo.Tags), func(t string) bool { return t == msg.Tag })
			m.rebuildView()
			m.parent.replaceRepository(m.repo)
		}
	}
	return m, nil
}

// handleKey processes keyboard input
func (m TagListModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "esc", "backspace", "left", "h":
		return m.parent, nil

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.view.Tags)-1 {
			m.cursor++
		}

	case "s":
		if m.order == api.SortSemver {
			m.order = api.SortRegistry
		} else {
			m.order = api.SortSemver
		}
		m.cursor = 0
		m.rebuildView()

	case "r":
		if !m.busy {
			m.busy = true
			m.status = ""
			return m, m.lookupTags()
		}

	case "d":
		if len(m.view.Tags) > 0 && !m.busy {
			m.confirming = true
			m.status = ""
			m.error = ""
		}

	case "enter":
		if len(m.view.Tags) > 0 {
			detail := NewDetailModel(m.s, m, m.repo.Name, m.view.Tags[m.cursor])
			return detail, detail.Init()
		}
	}

	return m, nil
}

// handleConfirmKey answers the delete confirmation
func (m TagListModel) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.confirming = false
	switch msg.String() {
	case "y", "Y":
		m.busy = true
		return m, m.deleteTag(m.view.Tags[m.cursor])
	case "ctrl+c":
		return m, tea.Quit
	}
	m.status = "Delete cancelled"
	return m, nil
}

func (m TagListModel) lookupTags() tea.Cmd {
	return func() tea.Msg {
		return TagsLoadedMsg{Result: m.s.orchestrator.LookupTags(m.s.ctx, m.repo.Name)}
	}
}

func (m TagListModel) deleteTag(tag string) tea.Cmd {
	return func() tea.Msg {
		deleted, err := m.s.orchestrator.DeleteTag(m.s.ctx, m.repo.Name, tag)
		return DeleteCompleteMsg{Tag: tag, Deleted: deleted, Err: err}
	}
}

// View renders the tag list
func (m TagListModel) View() string {
	var sections []string

	title := fmt.Sprintf("%s (%d tags)", m.repo.Name, m.view.Count)
	sections = append(sections, TitleStyle.Render(title))

	orderName := "registry order"
	if m.order == api.SortSemver {
		orderName = "newest version first"
	}
	sections = append(sections, lipgloss.NewStyle().Foreground(ColorInfo).Render("Sort: "+orderName))

	if len(m.view.Tags) == 0 {
		sections = append(sections, MutedStyle.Padding(1, 2).Render("No tags."))
	} else {
		sections = append(sections, m.renderList())
	}

	switch {
	case m.confirming:
		sections = append(sections, WarningBadge.Render(
			fmt.Sprintf("Delete %s:%s? Tags sharing its manifest go too. [y/N]", m.repo.Name, m.view.Tags[m.cursor])))
	case m.busy:
		sections = append(sections, InfoBadge.Render("Working..."))
	case m.error != "":
		sections = append(sections, ErrorBadge.Render(m.error))
	case m.status != "":
		sections = append(sections, SuccessBadge.Render(m.status))
	}

	sections = append(sections, formatHelp([]KeyBinding{
		{"↑/k ↓/j", "navigate"},
		{"enter", "inspect"},
		{"s", "toggle sort"},
		{"d", "delete"},
		{"r", "reload tags"},
		{"esc", "back"},
		{"q", "quit"},
	}))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderList renders the visible window of tags
func (m TagListModel) renderList() string {
	start, end := window(m.cursor, len(m.view.Tags), m.s.listHeight())

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		tag := m.view.Tags[i]
		line := cursorLine(tag, i == m.cursor)
		if badge := tagBadge(tag); badge != "" {
			line += " " + badge
		}
		if tag == m.view.Newest {
			line += MutedStyle.Render(" newest")
		}
		lines = append(lines, line)
	}

	if start > 0 || end < len(m.view.Tags) {
		lines = append(lines, MutedStyle.Render(fmt.Sprintf("  %d-%d of %d", start+1, end, len(m.view.Tags))))
	}
	return strings.Join(lines, "\n")
}
