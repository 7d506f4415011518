package tui

import (
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/theirongolddev/aconv/internal/model"
	"github.com/theirongolddev/aconv/internal/pool"
)

// Snapshot is a copy of the pool state for rendering.
type Snapshot struct {
	Total    int
	Done     int
	Failed   int
	Active   []string // source path per worker, empty when idle
	Failures []string
}

// Fraction returns the completed share of queued jobs.
func (s Snapshot) Fraction() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Done) / float64(s.Total)
}

// Remaining returns the jobs neither finished nor failed.
func (s Snapshot) Remaining() int {
	return max(s.Total-s.Done-s.Failed, 0)
}

// Observer turns pool callbacks into SnapshotMsgs. Sends never block a
// worker: when the channel is full the update is dropped and the next one
// carries the newer state.
type Observer struct {
	sub chan<- tea.Msg

	mu   sync.Mutex
	snap Snapshot
}

var _ pool.Observer = (*Observer)(nil)

// NewObserver publishes snapshots to sub.
func NewObserver(sub chan<- tea.Msg) *Observer {
	return &Observer{sub: sub}
}

func (o *Observer) OnStart(total, workers int) {
	o.update(func(s *Snapshot) {
		s.Total = total
		s.Active = make([]string, workers)
	})
}

func (o *Observer) OnWorkerState(worker int, state pool.WorkerState, pair model.FilePair) {
	o.update(func(s *Snapshot) {
		if worker < 0 || worker >= len(s.Active) {
			return
		}
		if state == pool.Encoding {
			s.Active[worker] = pair.Source
		} else {
			s.Active[worker] = ""
		}
	})
}

func (o *Observer) OnJobDone(int, model.FilePair) {
	o.update(func(s *Snapshot) { s.Done++ })
}

func (o *Observer) OnJobFailed(_ int, pair model.FilePair, err error) {
	o.update(func(s *Snapshot) {
		s.Failed++
		s.Failures = append(s.Failures, fmt.Sprintf("%s: %v", filepath.Base(pair.Source), err))
	})
}

// Snapshot returns a copy of the current state.
func (o *Observer) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.copyLocked()
}

func (o *Observer) copyLocked() Snapshot {
	s := o.snap
	s.Active = slices.Clone(o.snap.Active)
	s.Failures = slices.Clone(o.snap.Failures)
	return s
}

func (o *Observer) update(fn func(*Snapshot)) {
	o.mu.Lock()
	fn(&o.snap)
	msg := SnapshotMsg{Snapshot: o.copyLocked()}
	o.mu.Unlock()

	select {
	case o.sub <- msg:
	default:
	}
}
