package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/aconv/internal/tui/theme"
)

// ProgressBar renders the overall encode progress with a percentage.
func ProgressBar(pct float64, width int) string {
	t := theme.Active
	if pct < 0 {
		pct = 0
	}
	if pct > 1 {
		pct = 1
	}

	bar := progress.New(
		progress.WithGradient(string(t.Accent), string(t.AccentBright)),
		progress.WithWidth(width),
		progress.WithoutPercentage(),
	)
	bar.EmptyColor = string(t.TextDim)

	pctStyle := lipgloss.NewStyle().Foreground(ColorForPct(pct)).Bold(true)
	return bar.ViewAs(pct) + " " + pctStyle.Render(fmt.Sprintf("%3.0f%%", pct*100))
}

// ColorForPct moves from accent to green as the run nears completion.
func ColorForPct(pct float64) lipgloss.Color {
	t := theme.Active
	switch {
	case pct >= 1:
		return t.Green
	case pct >= 0.5:
		return t.AccentBright
	default:
		return t.Accent
	}
}

// WorkerLine renders one worker row: a marker, the worker number, and the
// file it is encoding. An empty file renders the worker as idle.
func WorkerLine(id int, marker, file string, width int) string {
	t := theme.Active

	idStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	fileStyle := lipgloss.NewStyle().Foreground(t.TextPrimary)
	idleStyle := lipgloss.NewStyle().Foreground(t.TextDim)

	prefix := fmt.Sprintf("%s %s ", marker, idStyle.Render(fmt.Sprintf("#%-2d", id+1)))
	if file == "" {
		return prefix + idleStyle.Render("idle")
	}

	room := width - lipgloss.Width(prefix)
	if room < 8 {
		room = 8
	}
	runes := []rune(file)
	if len(runes) > room {
		file = "…" + string(runes[len(runes)-room+1:])
	}
	return prefix + fileStyle.Render(file)
}

// FailureLines renders failed outputs, newest last, at most limit lines.
func FailureLines(failures []string, limit, width int) string {
	t := theme.Active
	style := lipgloss.NewStyle().Foreground(t.Red)

	if limit > 0 && len(failures) > limit {
		failures = failures[len(failures)-limit:]
	}
	lines := make([]string, 0, len(failures))
	for _, f := range failures {
		r := []rune(f)
		if width > 1 && len(r) > width {
			f = string(r[:width-1]) + "…"
		}
		lines = append(lines, style.Render(f))
	}
	return strings.Join(lines, "\n")
}
