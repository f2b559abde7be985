package tui

import (
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// LogMsg is sent when a log line is captured
type LogMsg struct {
	Timestamp time.Time
	Message   string
}

// LogWriter is an io.Writer that forwards log lines to the TUI
type LogWriter struct {
	program *tea.Program
	mu      sync.Mutex
}

// NewLogWriter creates a log writer that sends log lines to program
func NewLogWriter(program *tea.Program) *LogWriter {
	return &LogWriter{
		program: program,
	}
}

// Write implements io.Writer
func (w *LogWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, line := range strings.Split(string(p), "\n") {
		msg := strings.TrimSpace(line)
		if msg != "" && w.program != nil {
			w.program.Send(LogMsg{
				Timestamp: time.Now(),
				Message:   msg,
			})
		}
	}

	return len(p), nil
}
