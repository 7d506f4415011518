package pool

import "github.com/theirongolddev/aconv/internal/model"

// WorkerState is where a worker is in its loop.
type WorkerState int

const (
	Idle WorkerState = iota
	Encoding
	Finished
)

func (s WorkerState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Encoding:
		return "encoding"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Observer receives pool progress. Calls arrive from every worker goroutine,
// so implementations must be safe for concurrent use.
type Observer interface {
	// OnStart is called once with the number of queued jobs and workers.
	OnStart(total, workers int)
	// OnWorkerState is called on every worker transition. pair is set while Encoding.
	OnWorkerState(worker int, state WorkerState, pair model.FilePair)
	// OnJobDone is called after a job's output has been committed.
	OnJobDone(worker int, pair model.FilePair)
	// OnJobFailed is called for the job that aborted the pool.
	OnJobFailed(worker int, pair model.FilePair, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OnStart(int, int)                               {}
func (NopObserver) OnWorkerState(int, WorkerState, model.FilePair) {}
func (NopObserver) OnJobDone(int, model.FilePair)                  {}
func (NopObserver) OnJobFailed(int, model.FilePair, error)         {}
