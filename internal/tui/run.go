package tui

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/chis/regview/internal/catalog"
	"github.com/chis/regview/internal/logging"
)

// Run starts the browser in the alternate screen and blocks until the user
// quits or ctx is cancelled. Log output is shown on the loading screen while
// the program runs.
func Run(ctx context.Context, orchestrator *catalog.Orchestrator, registryName string, logger *logging.Logger) error {
	model := NewLoadingModel(ctx, orchestrator, registryName)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if logger != nil {
		logger.SetOutput(NewLogWriter(program))
		defer logger.SetOutput(os.Stderr)
	}

	if _, err := program.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
