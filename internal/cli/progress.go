package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/aconv/internal/model"
	"github.com/theirongolddev/aconv/internal/pool"
)

var fileStyle = lipgloss.NewStyle().Foreground(ColorBlue)

// Progress draws a single, self-overwriting status line for encode jobs.
// It is used on terminals when the full TUI is not requested.
type Progress struct {
	w     io.Writer
	width int

	mu    sync.Mutex
	total int
	done  int
	last  string
}

var _ pool.Observer = (*Progress)(nil)

// NewProgress writes to w using a bar of the given width.
func NewProgress(w io.Writer, width int) *Progress {
	if width <= 0 {
		width = 30
	}
	return &Progress{w: w, width: width}
}

func (p *Progress) OnStart(total, _ int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
	p.draw()
}

func (p *Progress) OnWorkerState(_ int, state pool.WorkerState, pair model.FilePair) {
	if state != pool.Encoding {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = filepath.Base(pair.Source)
	p.draw()
}

func (p *Progress) OnJobDone(int, model.FilePair) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	p.draw()
}

func (p *Progress) OnJobFailed(int, model.FilePair, error) {}

// Finish ends the status line.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total > 0 {
		fmt.Fprintln(p.w)
	}
}

func (p *Progress) draw() {
	line := RenderProgressBar(p.done, p.total, p.width)
	if p.last != "" {
		line += " " + fileStyle.Render(TruncatePath(p.last, 40))
	}
	fmt.Fprintf(p.w, "\r\033[K%s", line)
}
