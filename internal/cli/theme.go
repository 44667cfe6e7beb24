package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"media-splitter/internal/domain"
)

const barWidth = 30

// Theme holds the color scheme for terminal output.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Warning    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Warning:    lipgloss.Color("#FFAF00"), // amber
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) warningStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Warning).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// bar renders a fixed-width progress bar.
func (t Theme) bar(completed, total int) string {
	filled := 0
	if total > 0 {
		filled = completed * barWidth / total
	}
	done := lipgloss.NewStyle().Foreground(t.Success).Render(strings.Repeat("█", filled))
	rest := lipgloss.NewStyle().Foreground(t.ProgressBg).Render(strings.Repeat("░", barWidth-filled))
	return done + rest
}

// progressLine redraws one in-place progress line.
func (t Theme) progressLine(w io.Writer, completed, total int) {
	label := t.statusStyle().Render(fmt.Sprintf("%d/%d segments", completed, total))
	fmt.Fprintf(w, "\r%s %s", t.bar(completed, total), label)
	if completed >= total {
		fmt.Fprintln(w)
	}
}

// statusBadge renders a diagnostic status.
func (t Theme) statusBadge(status domain.DiagnosticStatus) string {
	label := strings.ToUpper(string(status))
	switch status {
	case domain.DiagnosticStatusPass:
		return t.completedStyle().Render(label)
	case domain.DiagnosticStatusWarn:
		return t.warningStyle().Render(label)
	default:
		return t.errorStyle().Render(label)
	}
}
