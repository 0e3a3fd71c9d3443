package cmdutil

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
)

var (
	primaryColor = lipgloss.Color("#A78BFA")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#F87171")
	mutedColor   = lipgloss.Color("#9CA3AF")
	borderColor  = lipgloss.Color("#6B7280")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// Printer writes command output, styled only when the destination is a
// terminal.
type Printer struct {
	w     io.Writer
	color bool
}

// NewPrinter returns a Printer for w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, color: IsTerminal(w)}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of the Printer's writer, or 0.
func (p *Printer) Width() int {
	f, ok := p.w.(*os.File)
	if !ok || !p.color {
		return 0
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return w
}

// Println writes a line.
func (p *Printer) Println(a ...any) {
	_, _ = fmt.Fprintln(p.w, a...)
}

// Printf writes formatted text.
func (p *Printer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(p.w, format, a...)
}

// Title renders s as a heading.
func (p *Printer) Title(s string) string {
	if !p.color {
		return s
	}
	return lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render(s)
}

// Muted renders s de-emphasized.
func (p *Printer) Muted(s string) string {
	if !p.color {
		return s
	}
	return lipgloss.NewStyle().Foreground(mutedColor).Render(s)
}

// Status renders a run or job status word in its color.
func (p *Printer) Status(s string) string {
	if !p.color {
		return s
	}
	var c lipgloss.Color
	switch s {
	case "done", "ok":
		c = successColor
	case "running":
		c = warningColor
	case "failed", "stopped":
		c = errorColor
	default:
		c = mutedColor
	}
	return lipgloss.NewStyle().Foreground(c).Render(s)
}

// Level renders s in the color of a log level.
func (p *Printer) Level(level, s string) string {
	if !p.color {
		return s
	}
	switch strings.ToUpper(level) {
	case "DEBUG":
		return lipgloss.NewStyle().Foreground(mutedColor).Render(s)
	case "WARN":
		return lipgloss.NewStyle().Foreground(warningColor).Render(s)
	case "ERROR":
		return lipgloss.NewStyle().Foreground(errorColor).Render(s)
	}
	return s
}

// Table renders rows under headers. Without a terminal it falls back to
// tab-separated lines so the output stays scriptable.
func (p *Printer) Table(headers []string, rows [][]string) string {
	if !p.color {
		var b strings.Builder
		b.WriteString(strings.Join(headers, "\t"))
		b.WriteByte('\n')
		for _, r := range rows {
			b.WriteString(strings.Join(r, "\t"))
			b.WriteByte('\n')
		}
		return b.String()
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render() + "\n"
}

// Truncate shortens s to width visible columns, leaving ANSI sequences
// intact. A width of 0 or less returns s unchanged.
func Truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "...")
}
