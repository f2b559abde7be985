package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/docker/go-units"

	"github.com/chis/regview/internal/imageinfo"
)

// ImageInfoMsg carries the resolution of the inspected tag
type ImageInfoMsg struct {
	Info *imageinfo.ImageInfo
	Err  error
}

// DetailModel shows the image info of one tag
type DetailModel struct {
	s          *session
	parent     TagListModel
	repository string
	tag        string

	// UI state
	loading     bool
	info        *imageinfo.ImageInfo
	err         error
	showHistory bool
	now         func() time.Time
}

// NewDetailModel creates the detail screen of repository:tag
func NewDetailModel(s *session, parent TagListModel, repository, tag string) DetailModel {
	return DetailModel{
		s:          s,
		parent:     parent,
		repository: repository,
		tag:        tag,
		loading:    true,
		now:        time.Now,
	}
}

// Init starts resolving the tag
func (m DetailModel) Init() tea.Cmd {
	return func() tea.Msg {
		info, err := m.s.orchestrator.ImageInfo(m.s.ctx, m.repository, m.tag)
		return ImageInfoMsg{Info: info, Err: err}
	}
}

// Update handles messages and updates the model
func (m DetailModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "esc", "backspace", "left", "h":
			return m.parent, nil
		case "H":
			m.showHistory = !m.showHistory
		}

	case tea.WindowSizeMsg:
		m.s.width = msg.Width
		m.s.height = msg.Height

	case ImageInfoMsg:
		m.loading = false
		m.info = msg.Info
		m.err = msg.Err
	}
	return m, nil
}

// View renders the image details
func (m DetailModel) View() string {
	var sections []string
	sections = append(sections, TitleStyle.Render(fmt.Sprintf("%s:%s", m.repository, m.tag)))

	switch {
	case m.loading:
		sections = append(sections, lipgloss.NewStyle().Foreground(ColorInfo).Render("Resolving manifest and config..."))
	case m.err != nil:
		sections = append(sections, ErrorBadge.Render(m.err.Error()))
	default:
		sections = append(sections, BoxStyle.Render(m.renderInfo()))
		if m.showHistory {
			sections = append(sections, m.renderHistory())
		}
	}

	sections = append(sections, formatHelp([]KeyBinding{
		{"H", "toggle history"},
		{"esc", "back"},
		{"q", "quit"},
	}))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m DetailModel) renderInfo() string {
	info := m.info
	label := lipgloss.NewStyle().Foreground(ColorInfo).Width(12)
	row := func(name, value string) string {
		return label.Render(name) + value
	}

	digest := info.Digest
	if digest == "" {
		digest = MutedStyle.Render("none (manifest list or schema 1)")
	}

	rows := []string{
		row("Digest", digest),
		row("Size", units.HumanSize(float64(info.Size))),
	}
	if info.Manifest != nil {
		rows = append(rows, row("Layers", fmt.Sprintf("%d", len(info.Manifest.Layers))))
	}

	created := info.LastModified
	if t, err := time.Parse(time.RFC3339Nano, info.LastModified); err == nil {
		created = fmt.Sprintf("%s (%s ago)", t.UTC().Format(time.RFC3339), units.HumanDuration(m.now().Sub(t)))
	}
	if info.LastModifiedEstimated {
		created += " " + WarningBadge.Render("ESTIMATED")
	}
	rows = append(rows, row("Created", created))

	if cfg := info.Config; cfg != nil {
		rows = append(rows, row("Platform", cfg.OS+"/"+cfg.Architecture))
		if len(cfg.Config.Entrypoint) > 0 {
			rows = append(rows, row("Entrypoint", strings.Join(cfg.Config.Entrypoint, " ")))
		}
		if len(cfg.Config.Cmd) > 0 {
			rows = append(rows, row("Cmd", strings.Join(cfg.Config.Cmd, " ")))
		}
		if len(cfg.Config.ExposedPorts) > 0 {
			ports := make([]string, 0, len(cfg.Config.ExposedPorts))
			for port := range cfg.Config.ExposedPorts {
				ports = append(ports, port)
			}
			rows = append(rows, row("Ports", strings.Join(ports, " ")))
		}
	} else {
		rows = append(rows, row("Config", MutedStyle.Render("unavailable")))
	}

	return strings.Join(rows, "\n")
}

func (m DetailModel) renderHistory() string {
	if m.info.Config == nil || len(m.info.Config.History) == 0 {
		return MutedStyle.Render("No build history.")
	}

	lines := []string{lipgloss.NewStyle().Bold(true).Render("History")}
	for _, step := range m.info.Config.History {
		lines = append(lines, "  "+MutedStyle.Render(step.CreatedBy))
	}
	return strings.Join(lines, "\n")
}
