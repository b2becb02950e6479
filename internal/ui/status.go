package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// StatusWriter renders task and connection status lines to a terminal.
type StatusWriter struct {
	out io.Writer

	successStyle lipgloss.Style
	errorStyle   lipgloss.Style
	mutedStyle   lipgloss.Style
	headerStyle  lipgloss.Style
}

// NewStatusWriter creates a StatusWriter that writes to out.
func NewStatusWriter(out io.Writer) *StatusWriter {
	return &StatusWriter{
		out:          out,
		successStyle: lipgloss.NewStyle().Foreground(ColorSuccess),
		errorStyle:   lipgloss.NewStyle().Foreground(ColorError),
		mutedStyle:   lipgloss.NewStyle().Foreground(ColorMuted),
		headerStyle:  lipgloss.NewStyle().Foreground(ColorInfo).Bold(true),
	}
}

// Instance prints a header announcing which instance subsequent tasks run on.
func (w *StatusWriter) Instance(name, alias string) {
	detail := ""
	if alias != "" && alias != name {
		detail = w.mutedStyle.Render(fmt.Sprintf(" (via %s)", alias))
	}
	fmt.Fprintf(w.out, "%s %s%s\n", SymbolArrow, w.headerStyle.Render(name), detail)
}

// TaskSuccess prints a success line for a completed task.
func (w *StatusWriter) TaskSuccess(task string, elapsed time.Duration) {
	fmt.Fprintf(w.out, "%s %s %s\n",
		w.successStyle.Render(SymbolSuccess),
		task,
		w.mutedStyle.Render(fmt.Sprintf("(%.1fs)", elapsed.Seconds())))
}

// TaskFailed prints a failure line for a task with its exit code.
func (w *StatusWriter) TaskFailed(task string, exitCode int) {
	fmt.Fprintf(w.out, "%s %s %s\n",
		w.errorStyle.Render(SymbolFail),
		task,
		w.mutedStyle.Render(fmt.Sprintf("(exit %d)", exitCode)))
}

// TaskSkipped prints a skipped line with a reason.
func (w *StatusWriter) TaskSkipped(task, reason string) {
	fmt.Fprintf(w.out, "%s %s %s\n",
		w.mutedStyle.Render(SymbolSkipped),
		task,
		w.mutedStyle.Render("("+reason+")"))
}
