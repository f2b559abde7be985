// Package tui is an interactive terminal browser for the registry catalog:
// repositories, their tags, and the image behind each tag.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/chis/regview/internal/catalog"
	"github.com/chis/regview/internal/version"
)

// Shared color scheme
var (
	// Status colors
	ColorSuccess = lipgloss.Color("42")  // Green
	ColorWarning = lipgloss.Color("226") // Yellow
	ColorError   = lipgloss.Color("196") // Red
	ColorInfo    = lipgloss.Color("39")  // Blue
	ColorMuted   = lipgloss.Color("240") // Gray

	// UI element colors
	ColorSelected   = lipgloss.Color("212") // Pink
	ColorUnselected = lipgloss.Color("250") // Light gray
	ColorBorder     = lipgloss.Color("240") // Gray
	ColorTitle      = lipgloss.Color("212") // Pink
)

// Shared styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorTitle).
			MarginBottom(1)

	BadgeStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true)

	SuccessBadge = BadgeStyle.
			Background(ColorSuccess).
			Foreground(lipgloss.Color("0"))

	WarningBadge = BadgeStyle.
			Background(ColorWarning).
			Foreground(lipgloss.Color("0"))

	ErrorBadge = BadgeStyle.
			Background(ColorError).
			Foreground(lipgloss.Color("255"))

	InfoBadge = BadgeStyle.
			Background(ColorInfo).
			Foreground(lipgloss.Color("255"))

	SelectedItemStyle = lipgloss.NewStyle().
				Foreground(ColorSelected).
				Bold(true)

	UnselectedItemStyle = lipgloss.NewStyle().
				Foreground(ColorUnselected)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(1, 2)

	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorMuted).
			MarginTop(1)
)

// session is shared by every screen of one browse run.
type session struct {
	ctx          context.Context
	orchestrator *catalog.Orchestrator
	registryName string
	width        int
	height       int
}

// listHeight is how many list rows fit on screen; the rest of the screen
// holds the title, status lines and help footer.
func (s *session) listHeight() int {
	if s.height <= 0 {
		return 20
	}
	return max(s.height-12, 3)
}

// window returns the [start, end) slice of a list of n items that keeps
// cursor visible within size rows.
func window(cursor, n, size int) (int, int) {
	if n <= size {
		return 0, n
	}
	start := cursor - size/2
	start = max(start, 0)
	start = min(start, n-size)
	return start, start + size
}

// tagBadge marks the kind of a tag. Tags that are neither "latest" nor a
// version get no badge.
func tagBadge(tag string) string {
	info := version.ParseTag(tag)
	switch info.Kind {
	case version.KindLatest:
		return InfoBadge.Render("LATEST")
	case version.KindSemver:
		if info.IsStable() {
			return SuccessBadge.Render("RELEASE")
		}
		return WarningBadge.Render("PRE-RELEASE")
	default:
		return ""
	}
}

// cursorLine renders a list row with the cursor indicator.
func cursorLine(text string, isCursor bool) string {
	if isCursor {
		return "> " + SelectedItemStyle.Render(text)
	}
	return "  " + UnselectedItemStyle.Render(text)
}

// formatHelpLine formats a help line showing keybindings
func formatHelpLine(keys, description string) string {
	keyStyle := lipgloss.NewStyle().
		Foreground(ColorInfo).
		Bold(true)

	return fmt.Sprintf("%s %s", keyStyle.Render(keys), MutedStyle.Render(description))
}

// KeyBinding represents a keyboard shortcut
type KeyBinding struct {
	Key         string
	Description string
}

// formatHelp formats multiple keybindings as a help footer
func formatHelp(bindings []KeyBinding) string {
	lines := make([]string, len(bindings))
	for i, binding := range bindings {
		lines[i] = formatHelpLine(binding.Key, binding.Description)
	}
	return HelpStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
