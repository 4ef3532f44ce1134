// Package output provides consistent CLI message formatting.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Writer provides formatted output for CLI commands.
// Errors from writing are ignored for console output.
type Writer struct {
	out     io.Writer
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	header  lipgloss.Style
	label   lipgloss.Style
}

// New creates a Writer. Colors are applied unless noColor is set.
func New(out io.Writer, noColor bool) *Writer {
	w := &Writer{out: out}
	if noColor {
		plain := lipgloss.NewStyle()
		w.success, w.warning, w.failure, w.header, w.label = plain, plain, plain, plain, plain
		return w
	}
	w.success = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	w.warning = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	w.failure = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	w.header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	w.label = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	return w
}

// Status prints a message with an icon, or indented when icon is empty.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status(w.success.Render("✓"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.warning.Render("!"), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.failure.Render("✗"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Header prints a bold section title.
func (w *Writer) Header(title string) {
	_, _ = fmt.Fprintln(w.out, w.header.Render(title))
}

// KeyValue prints an aligned "label  value" line.
func (w *Writer) KeyValue(key string, value any) {
	_, _ = fmt.Fprintf(w.out, "  %s %v\n", w.label.Render(fmt.Sprintf("%-12s", key+":")), value)
}

// Indent prints each line of content indented by n spaces.
func (w *Writer) Indent(n int, content string) {
	pad := strings.Repeat(" ", n)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "%s%s\n", pad, line)
	}
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
