package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/theirongolddev/aconv/internal/model"
)

// Theme colors (Flexoki Dark)
var (
	ColorBorder    = lipgloss.Color("#282726")
	ColorTextDim   = lipgloss.Color("#575653")
	ColorTextMuted = lipgloss.Color("#6F6E69")
	ColorText      = lipgloss.Color("#FFFCF0")
	ColorAccent    = lipgloss.Color("#3AA99F")
	ColorGreen     = lipgloss.Color("#879A39")
	ColorOrange    = lipgloss.Color("#DA702C")
	ColorRed       = lipgloss.Color("#D14D41")
	ColorBlue      = lipgloss.Color("#4385BE")
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText).
			Align(lipgloss.Center)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorAccent)

	mutedStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	okStyle = lipgloss.NewStyle().
		Foreground(ColorGreen)

	warnStyle = lipgloss.NewStyle().
			Foreground(ColorOrange)

	errStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)
)

// Table represents a bordered text table for CLI output.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	// LeftAlign lists extra columns to left-align. The first column always
	// is; the rest are right-aligned.
	LeftAlign []int
}

// RenderTitle renders a centered title bar in a bordered box.
func RenderTitle(title string) string {
	width := 55
	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Width(width).
		Align(lipgloss.Center).
		Padding(0, 1)

	return border.Render(titleStyle.Render(title))
}

// RenderTable renders a bordered table with headers and rows. A row holding
// the single cell "---" renders as a separator.
func RenderTable(t Table) string {
	if len(t.Rows) == 0 && len(t.Headers) == 0 {
		return ""
	}

	numCols := len(t.Headers)
	if numCols == 0 && len(t.Rows) > 0 {
		numCols = len(t.Rows[0])
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault

	if len(t.Headers) > 0 {
		header := make(table.Row, numCols)
		for i, h := range t.Headers {
			header[i] = h
		}
		tw.AppendHeader(header)
	}
	for _, row := range t.Rows {
		if len(row) == 1 && row[0] == "---" {
			tw.AppendSeparator()
			continue
		}
		r := make(table.Row, numCols)
		for i := range numCols {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	left := map[int]bool{0: true}
	for _, i := range t.LeftAlign {
		left[i] = true
	}
	configs := make([]table.ColumnConfig, 0, numCols)
	for i := range numCols {
		align := text.AlignRight
		if left[i] {
			align = text.AlignLeft
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	var b strings.Builder
	if t.Title != "" {
		b.WriteString("  ")
		b.WriteString(headerStyle.Render(t.Title))
		b.WriteString("\n")
	}
	b.WriteString(tw.Render())
	b.WriteString("\n")
	return b.String()
}

// RenderProgressBar renders a simple text progress bar.
func RenderProgressBar(current, total int, width int) string {
	if total <= 0 {
		return ""
	}

	pct := float64(current) / float64(total)
	if pct > 1 {
		pct = 1
	}

	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("[%s] %s/%s",
		mutedStyle.Render(bar),
		FormatNumber(int64(current)),
		FormatNumber(int64(total)),
	)
}

// RenderSummary renders the outcome of a conversion run.
func RenderSummary(s model.RunStats) string {
	n := func(v int) string { return FormatNumber(int64(v)) }
	rows := [][]string{
		{"Discovered", n(s.Discovered)},
		{"Audio files", n(s.Transcode)},
		{"Other files", n(s.Opaque)},
		{"---"},
		{"Already converted", n(s.Skipped())},
	}
	if s.DryRun {
		rows = append(rows,
			[]string{"Would encode", n(s.Pending())},
			[]string{"Would clone", n(s.Opaque - s.SkippedOpaque)},
		)
	} else {
		rows = append(rows,
			[]string{"Encoded", n(s.Encoded)},
			[]string{"Hard-linked", n(s.Linked)},
			[]string{"Copied", n(s.Copied)},
		)
		if s.Existing > 0 {
			rows = append(rows, []string{"Kept existing", n(s.Existing)})
		}
		if s.Abandoned > 0 {
			rows = append(rows, []string{"Not started", n(s.Abandoned)})
		}
	}
	if s.StaleEntries > 0 {
		rows = append(rows, []string{"Invalidated outputs", n(s.StaleEntries)})
	}
	if s.MalformedEntries > 0 {
		rows = append(rows, []string{"Malformed journal lines", n(s.MalformedEntries)})
	}
	rows = append(rows, []string{"---"}, []string{"Elapsed", FormatDuration(s.Duration())})

	var b strings.Builder
	b.WriteString(RenderTable(Table{Headers: []string{"Run", "Files"}, Rows: rows}))
	switch {
	case s.Aborted:
		b.WriteString(errStyle.Render("  aborted: " + s.Err))
	case s.DryRun:
		b.WriteString(warnStyle.Render("  dry run: nothing was written"))
	default:
		b.WriteString(okStyle.Render("  done"))
	}
	b.WriteString("\n")
	return b.String()
}

// RenderError formats an error line for stderr.
func RenderError(err error) string {
	return errStyle.Render("error: ") + err.Error()
}
