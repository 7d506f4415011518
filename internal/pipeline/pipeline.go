// Package pipeline wires the scanner, journal, cloner, and worker pool into
// a single conversion run.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"github.com/theirongolddev/aconv/internal/codec"
	"github.com/theirongolddev/aconv/internal/decisions"
	"github.com/theirongolddev/aconv/internal/engine"
	"github.com/theirongolddev/aconv/internal/fsx"
	"github.com/theirongolddev/aconv/internal/journal"
	"github.com/theirongolddev/aconv/internal/model"
	"github.com/theirongolddev/aconv/internal/pool"
	"github.com/theirongolddev/aconv/internal/source"
	"github.com/theirongolddev/aconv/internal/store"
)

// Plan is the work left after filtering against the journal.
type Plan struct {
	Transcode []model.FilePair
	Opaque    []model.FilePair
}

// Options configure a conversion run.
type Options struct {
	Source      string
	Destination string

	Codec  codec.Codec
	Params model.Params

	Threads    int // 0 means one per CPU
	JobTimeout time.Duration
	NoJournal  bool
	DryRun     bool
	Sniff      bool

	// Interactive limits the run to top-level folders confirmed by Prompter.
	// Files directly under Source are always included.
	Interactive bool
	Prompter    decisions.Prompter

	// Engine encodes transcode jobs. Factory, when set, replaces it.
	Engine  *engine.Engine
	Factory pool.JobFactory

	Observer pool.Observer
	// OnPlan receives the filtered work before anything is written.
	OnPlan func(Plan)

	History *store.History
	Logger  *slog.Logger
}

// Run converts Source into Destination and returns what it did. The
// returned stats are meaningful even when err is non-nil.
func Run(ctx context.Context, opts Options) (model.RunStats, error) {
	stats := model.RunStats{StartedAt: time.Now(), DryRun: opts.DryRun}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Codec == nil {
		return stats, errors.New("no codec selected")
	}

	desc, err := opts.Codec.Descriptor(opts.Params)
	if err != nil {
		return stats, fmt.Errorf("codec %s: %w", opts.Codec.Name(), err)
	}
	factory := opts.Factory
	if factory == nil && !opts.DryRun {
		if opts.Engine == nil {
			return stats, errors.New("no encoding engine")
		}
		factory = engine.Factory{Engine: opts.Engine, Descriptor: desc}
	}

	src, dest, err := checkRoots(opts.Source, opts.Destination)
	if err != nil {
		return stats, err
	}

	fp := codec.Fingerprint(opts.Codec, opts.Params)
	r := &runner{opts: opts, logger: logger, src: src, dest: dest, fp: fp, stats: &stats}
	err = r.run(ctx, factory)
	stats.FinishedAt = time.Now()
	if err != nil {
		stats.Err = err.Error()
		stats.Aborted = true
	}
	r.record(ctx)
	return stats, err
}

func checkRoots(srcPath, destPath string) (string, string, error) {
	src, err := filepath.Abs(srcPath)
	if err != nil {
		return "", "", &source.InvalidSourceError{Path: srcPath, Err: err}
	}
	dest, err := source.CheckDestination(destPath)
	if err != nil {
		return "", "", err
	}
	if src == dest {
		return "", "", &source.InvalidDestinationError{Path: destPath, Err: errors.New("same as source")}
	}
	return src, dest, nil
}

type runner struct {
	opts   Options
	logger *slog.Logger
	src    string
	dest   string
	fp     model.Params
	stats  *model.RunStats
}

func (r *runner) run(ctx context.Context, factory pool.JobFactory) error {
	ext := r.opts.Codec.Extension(r.opts.Params)
	scanner := source.Scanner{Sniff: r.opts.Sniff, Logger: r.logger}
	var found source.Result
	var err error
	if r.opts.Interactive {
		found, err = r.scanSelected(ctx, scanner, ext)
	} else {
		found, err = scanner.Scan(r.src, r.dest, ext)
	}
	if err != nil {
		return err
	}
	r.stats.Discovered = found.Len()
	r.stats.Transcode = len(found.Transcode)
	r.stats.Opaque = len(found.Opaque)

	j, err := r.openJournal()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := j.Close(); cerr != nil {
			r.logger.Warn("closing journal", "error", cerr)
		}
	}()
	r.stats.StaleEntries = j.Stale()
	r.stats.MalformedEntries = j.Malformed()

	plan := Plan{
		Transcode: slices.Collect(j.FilterUnfinished(found.Transcode)),
		Opaque:    slices.Collect(j.FilterUnfinished(found.Opaque)),
	}
	r.stats.SkippedTranscode = len(found.Transcode) - len(plan.Transcode)
	r.stats.SkippedOpaque = len(found.Opaque) - len(plan.Opaque)
	if r.stats.Skipped() > 0 {
		r.logger.Info("skipping finished files", "count", r.stats.Skipped())
	}
	if r.opts.OnPlan != nil {
		r.opts.OnPlan(plan)
	}
	if r.opts.DryRun {
		return nil
	}

	if err := fsx.BuildTree(r.dest, plan.Transcode, plan.Opaque); err != nil {
		return fmt.Errorf("create destination tree: %w", err)
	}
	if err := fsx.CheckWritable(r.dest); err != nil {
		return &source.InvalidDestinationError{Path: r.dest, Err: err}
	}

	cloned, err := fsx.CloneTree(ctx, plan.Opaque, j.AddOpaque)
	r.stats.Linked = cloned.Linked
	r.stats.Copied = cloned.Copied
	r.stats.Existing = cloned.Existing
	if err != nil {
		return fmt.Errorf("clone: %w", err)
	}
	if cloned.Total() > 0 {
		r.logger.Info("cloned files", "linked", cloned.Linked, "copied", cloned.Copied, "existing", cloned.Existing)
	}

	threads := r.opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	p := pool.New(factory, j, pool.Options{
		Workers:    threads,
		JobTimeout: r.opts.JobTimeout,
		Observer:   r.opts.Observer,
		Logger:     r.logger,
	})
	res, err := p.Run(ctx, pool.NewQueue(slices.Values(plan.Transcode)))
	r.stats.Encoded = res.Completed
	r.stats.Abandoned = res.Abandoned
	if err != nil {
		return err
	}
	return nil
}

func (r *runner) openJournal() (journal.Journal, error) {
	if r.opts.NoJournal {
		return journal.Void{}, nil
	}
	j, err := journal.Open(r.dest, r.fp, journal.Options{Logger: r.logger, ReadOnly: r.opts.DryRun})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return j, nil
}

// scanSelected scans the files directly under the source root plus the
// top-level folders the user includes. Excluded folders are never walked.
func (r *runner) scanSelected(ctx context.Context, scanner source.Scanner, ext string) (source.Result, error) {
	if r.opts.Prompter == nil {
		return source.Result{}, errors.New("interactive mode needs a prompter")
	}
	found, err := scanner.ScanTop(r.src, r.dest, ext)
	if err != nil {
		return source.Result{}, err
	}

	load := decisions.Load
	if r.opts.DryRun {
		load = decisions.LoadReadOnly
	}
	cache, err := load(r.dest)
	if err != nil {
		return source.Result{}, err
	}
	included, err := decisions.Select(ctx, r.src, cache, r.opts.Prompter)
	if err != nil {
		return source.Result{}, err
	}

	for _, dir := range included {
		part, err := scanner.ScanFrom(r.src, dir, r.dest, ext)
		if err != nil {
			return source.Result{}, err
		}
		found.Transcode = append(found.Transcode, part.Transcode...)
		found.Opaque = append(found.Opaque, part.Opaque...)
	}
	return found, nil
}

func (r *runner) record(ctx context.Context) {
	if r.opts.History == nil {
		return
	}
	fp, err := json.Marshal(r.fp)
	if err != nil {
		r.logger.Warn("encoding fingerprint for history", "error", err)
	}
	rec := &model.RunRecord{
		Source:      r.src,
		Destination: r.dest,
		Codec:       r.opts.Codec.Name(),
		Fingerprint: string(fp),
		Stats:       *r.stats,
	}
	// A cancelled run is still worth recording.
	if err := r.opts.History.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Warn("recording run history", "error", err)
	}
}
