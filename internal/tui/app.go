// Package tui provides the Bubble Tea progress view for conversion runs.
package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/aconv/internal/cli"
	"github.com/theirongolddev/aconv/internal/model"
	"github.com/theirongolddev/aconv/internal/pool"
	"github.com/theirongolddev/aconv/internal/tui/components"
	"github.com/theirongolddev/aconv/internal/tui/theme"
)

// Info describes the run shown in the header.
type Info struct {
	Source      string
	Destination string
	Codec       string
}

// WorkFunc performs the run, reporting encode progress to obs.
type WorkFunc func(ctx context.Context, obs pool.Observer) (model.RunStats, error)

// SnapshotMsg carries the latest pool state.
type SnapshotMsg struct {
	Snapshot Snapshot
}

// RunDoneMsg is sent once the work function returns.
type RunDoneMsg struct {
	Stats model.RunStats
	Err   error
}

// App is the root Bubble Tea model.
type App struct {
	info    Info
	snap    Snapshot
	started time.Time
	now     time.Time

	// encodes finished per second, oldest first
	rates    []float64
	rateMark time.Time
	rateDone int

	done     bool
	stopping bool
	stats    model.RunStats
	err      error

	width  int
	height int

	spinner spinner.Model
	sub     chan tea.Msg
	cancel  context.CancelFunc
}

const (
	minContentWidth = 40
	maxContentWidth = 120
	maxFailureLines = 5
	maxRateSamples  = 120
)

// NewApp creates the model. Messages from the run arrive on sub; cancel is
// called when the user asks to stop.
func NewApp(info Info, sub chan tea.Msg, cancel context.CancelFunc) App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent)

	now := time.Now()
	return App{
		info:    info,
		started:  now,
		now:      now,
		rateMark: now,
		spinner: sp,
		sub:     sub,
		cancel:  cancel,
	}
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	return tea.Batch(waitForMsg(a.sub), a.spinner.Tick, tickCmd())
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if a.stopping || a.done {
				return a, tea.Quit
			}
			a.stopping = true
			if a.cancel != nil {
				a.cancel()
			}
		}
		return a, nil

	case SnapshotMsg:
		a.snap = msg.Snapshot
		return a, waitForMsg(a.sub)

	case RunDoneMsg:
		a.done = true
		a.stats = msg.Stats
		a.err = msg.Err
		return a, tea.Quit

	case tickMsg:
		a.now = time.Time(msg)
		a.sampleRate()
		return a, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}
	return a, nil
}

// sampleRate appends one throughput sample per elapsed second.
func (a *App) sampleRate() {
	if a.now.Sub(a.rateMark) < time.Second {
		return
	}
	a.rates = append(a.rates, float64(a.snap.Done-a.rateDone)/a.now.Sub(a.rateMark).Seconds())
	if len(a.rates) > maxRateSamples {
		a.rates = a.rates[len(a.rates)-maxRateSamples:]
	}
	a.rateMark = a.now
	a.rateDone = a.snap.Done
}

func (a App) contentWidth() int {
	cw := a.width
	if cw > maxContentWidth {
		cw = maxContentWidth
	}
	if cw < minContentWidth {
		cw = minContentWidth
	}
	return cw
}

// View implements tea.Model.
func (a App) View() string {
	if a.done {
		return ""
	}
	if a.width == 0 {
		return a.spinner.View() + " starting…\n"
	}

	t := theme.Active
	w := a.contentWidth()

	titleStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Bold(true)
	pathStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	warnStyle := lipgloss.NewStyle().Foreground(t.Orange)

	var b strings.Builder
	b.WriteString(titleStyle.Render("◈ aconv"))
	b.WriteString(pathStyle.Render(fmt.Sprintf(" · %s", a.info.Codec)))
	b.WriteString("\n")
	b.WriteString(pathStyle.Render(cli.TruncatePath(a.info.Source, w-4) + " → " + cli.TruncatePath(a.info.Destination, w-4)))
	b.WriteString("\n\n")

	barW := w - 8
	b.WriteString(components.ProgressBar(a.snap.Fraction(), barW))
	b.WriteString("\n")

	failedColor := lipgloss.Color("")
	if a.snap.Failed > 0 {
		failedColor = t.Red
	}
	b.WriteString(components.MetricCardRow([]components.Metric{
		{Label: "Encoded", Value: cli.FormatNumber(int64(a.snap.Done)), Color: t.Green},
		{Label: "Remaining", Value: cli.FormatNumber(int64(a.snap.Remaining()))},
		{Label: "Failed", Value: cli.FormatNumber(int64(a.snap.Failed)), Color: failedColor},
		{Label: "Elapsed", Value: cli.FormatDuration(a.now.Sub(a.started).Truncate(time.Second))},
	}, w))
	b.WriteString("\n")

	inner := components.CardInnerWidth(w)
	lines := make([]string, 0, len(a.snap.Active))
	for i, file := range a.snap.Active {
		marker := " "
		if file != "" {
			marker = a.spinner.View()
			file = filepath.Base(file)
		}
		lines = append(lines, components.WorkerLine(i, marker, file, inner))
	}
	if len(lines) == 0 {
		lines = append(lines, a.spinner.View()+" preparing")
	}
	b.WriteString(components.ContentCard("Workers", strings.Join(lines, "\n"), w))
	b.WriteString("\n")

	if len(a.rates) > 1 {
		rate := fmt.Sprintf(" %.1f/s", a.rates[len(a.rates)-1])
		spark := components.Sparkline(a.rates, inner-lipgloss.Width(rate), t.Accent)
		b.WriteString(components.ContentCard("Throughput", spark+pathStyle.Render(rate), w))
		b.WriteString("\n")
	}

	if len(a.snap.Failures) > 0 {
		b.WriteString(components.ContentCard("Failures",
			components.FailureLines(a.snap.Failures, maxFailureLines, inner), w))
		b.WriteString("\n")
	}

	hints := "[q] stop"
	if a.stopping {
		hints = warnStyle.Render("stopping, waiting for running jobs… [q] quit now")
	}
	right := fmt.Sprintf("%d/%d · %s", a.snap.Done, a.snap.Total, cli.FormatPercent(a.snap.Fraction()))
	b.WriteString(components.RenderStatusBar(w, hints, right))
	b.WriteString("\n")
	return b.String()
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForMsg blocks until the next message arrives from the run goroutine.
func waitForMsg(sub chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-sub
	}
}

// Run shows the progress view while work runs. Quitting the view cancels
// the work; Run always waits for it to return.
func Run(parent context.Context, info Info, work WorkFunc) (model.RunStats, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sub := make(chan tea.Msg, 16)
	obs := NewObserver(sub)

	type outcome struct {
		stats model.RunStats
		err   error
	}
	res := make(chan outcome, 1)
	stop := make(chan struct{})
	go func() {
		stats, err := work(ctx, obs)
		res <- outcome{stats, err}
		select {
		case sub <- RunDoneMsg{Stats: stats, Err: err}:
		case <-stop:
		}
	}()

	p := tea.NewProgram(NewApp(info, sub, cancel), tea.WithContext(parent))
	_, uiErr := p.Run()
	close(stop)
	cancel()

	o := <-res
	if o.err == nil && uiErr != nil && !isKilled(uiErr) {
		return o.stats, fmt.Errorf("progress view: %w", uiErr)
	}
	return o.stats, o.err
}

func isKilled(err error) bool {
	return errors.Is(err, tea.ErrProgramKilled)
}
