// Package pool drives a bounded number of encode jobs over a shared queue.
// Each queued pair is started at most once; the first failure cancels every
// in-flight job and abandons the rest of the queue.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/theirongolddev/aconv/internal/model"
)

// Event is the terminal notification of a job. Err is nil on success.
type Event struct {
	Pair model.FilePair
	Err  error
}

// Job is one running encode. Start must deliver exactly one Event on the
// returned channel and stop promptly when ctx is cancelled.
type Job interface {
	Start(ctx context.Context) <-chan Event
}

// JobFactory creates the job for a pair.
type JobFactory interface {
	NewJob(pair model.FilePair) (Job, error)
}

// Committer durably records a finished output.
type Committer interface {
	Add(path string) error
}

// JobError is the failure that aborted a run.
type JobError struct {
	Pair model.FilePair
	Err  error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %v", e.Pair.Source, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// ErrNoTerminalEvent is reported when a job closes its channel without an Event.
var ErrNoTerminalEvent = errors.New("job ended without reporting a result")

// Result summarizes a pool run.
type Result struct {
	Completed int
	Abandoned int
}

// Options configure a Pool.
type Options struct {
	Workers    int
	JobTimeout time.Duration
	Observer   Observer
	Logger     *slog.Logger
}

// Pool runs jobs from a Queue with a fixed number of workers.
type Pool struct {
	factory JobFactory
	commit  Committer
	opts    Options
}

// New creates a pool. Workers below 1 are raised to 1.
func New(factory JobFactory, commit Committer, opts Options) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Pool{factory: factory, commit: commit, opts: opts}
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int { return p.opts.Workers }

// run is the shared state of one Run call.
type run struct {
	pool   *Pool
	queue  *Queue
	parent context.Context
	ctx    context.Context
	cancel context.CancelCauseFunc

	mu        sync.Mutex
	aborted   bool
	cause     error
	completed int
	states    []WorkerState
	finished  int

	doneOnce sync.Once
	done     chan struct{}
}

// Run drains q and blocks until every worker has finished. It returns the
// error that aborted the run, if any: a *JobError for a failed job, or the
// cause of ctx's cancellation.
func (p *Pool) Run(ctx context.Context, q *Queue) (Result, error) {
	total := q.Len()
	if total == 0 {
		return Result{}, nil
	}

	workers := p.opts.Workers
	if workers > total {
		workers = total
	}

	r := &run{
		pool:   p,
		queue:  q,
		parent: ctx,
		states: make([]WorkerState, workers),
		done:   make(chan struct{}),
	}
	r.ctx, r.cancel = context.WithCancelCause(ctx)
	defer r.cancel(nil)

	p.opts.Observer.OnStart(total, workers)
	p.opts.Logger.Debug("starting workers", "workers", workers, "jobs", total)

	for i := range workers {
		go r.work(i)
	}
	<-r.done

	r.mu.Lock()
	defer r.mu.Unlock()
	res := Result{Completed: r.completed, Abandoned: total - r.completed}
	if r.cause == nil && ctx.Err() != nil && res.Abandoned > 0 {
		r.cause = context.Cause(ctx)
	}
	return res, r.cause
}

func (r *run) work(id int) {
	obs := r.pool.opts.Observer
	defer func() {
		r.setState(id, Finished, model.FilePair{})
		r.mu.Lock()
		r.finished++
		all := r.finished == len(r.states)
		r.mu.Unlock()
		if all {
			r.doneOnce.Do(func() { close(r.done) })
		}
	}()

	for {
		if r.ctx.Err() != nil {
			return
		}
		pair, ok := r.queue.Pop()
		if !ok {
			return
		}

		r.setState(id, Encoding, pair)
		if err := r.runJob(pair); err != nil {
			if r.abort(pair, err) {
				obs.OnJobFailed(id, pair, err)
				r.pool.opts.Logger.Error("encode failed", "source", pair.Source, "error", err)
			}
			return
		}
		if !r.commit(pair) {
			return
		}
		obs.OnJobDone(id, pair)
		r.setState(id, Idle, model.FilePair{})
	}
}

func (r *run) runJob(pair model.FilePair) error {
	ctx := r.ctx
	if t := r.pool.opts.JobTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	job, err := r.pool.factory.NewJob(pair)
	if err != nil {
		return err
	}
	ev, ok := <-job.Start(ctx)
	if !ok {
		return ErrNoTerminalEvent
	}
	if ev.Err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && r.ctx.Err() == nil {
		return fmt.Errorf("timed out after %s: %w", r.pool.opts.JobTimeout, ev.Err)
	}
	return ev.Err
}

// abort records the first failure and cancels every other job. It reports
// whether this call was the one that aborted the run.
func (r *run) abort(pair model.FilePair, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.aborted {
		return false
	}
	r.aborted = true
	if r.parent.Err() != nil {
		r.cause = context.Cause(r.parent)
	} else {
		r.cause = &JobError{Pair: pair, Err: err}
	}
	r.cancel(r.cause)
	return true
}

// commit journals a finished pair unless the run has been aborted. Holding
// mu across the journal write orders every commit before or after an abort.
func (r *run) commit(pair model.FilePair) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.aborted {
		return false
	}
	if err := r.pool.commit.Add(pair.Destination); err != nil {
		r.aborted = true
		r.cause = &JobError{Pair: pair, Err: fmt.Errorf("journal: %w", err)}
		r.cancel(r.cause)
		return false
	}
	r.completed++
	return true
}

func (r *run) setState(id int, s WorkerState, pair model.FilePair) {
	r.mu.Lock()
	r.states[id] = s
	r.mu.Unlock()
	r.pool.opts.Observer.OnWorkerState(id, s, pair)
}
