// Package engine runs the external ffmpeg binary that performs the actual
// decoding and encoding. The engine is opened once per process and hands out
// one Job per output file.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/theirongolddev/aconv/internal/codec"
	"github.com/theirongolddev/aconv/internal/model"
	"github.com/theirongolddev/aconv/internal/pool"
)

// waitDelay bounds how long a killed ffmpeg may hold its stderr pipe open.
const waitDelay = 5 * time.Second

// PartSuffix is appended to a destination while it is being encoded.
const PartSuffix = ".part"

// Options configure Open.
type Options struct {
	// Binary is the ffmpeg executable name or path. Defaults to "ffmpeg".
	Binary string
	// Verbose tees ffmpeg's stderr to the process stderr.
	Verbose bool
	Logger  *slog.Logger
}

// Engine is an initialized handle to ffmpeg.
type Engine struct {
	path    string
	version string
	verbose bool
	logger  *slog.Logger
	closed  atomic.Bool
}

var reVersion = regexp.MustCompile(`version\s+(\S+)`)

// ErrClosed is returned by jobs started after Close.
var ErrClosed = errors.New("engine is closed")

// Open resolves the ffmpeg binary and checks that it runs.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	bin := opts.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("encoding engine not found: %w", err)
	}

	out, err := exec.CommandContext(ctx, path, "-hide_banner", "-version").Output()
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	version := "unknown"
	if m := reVersion.FindSubmatch(out); m != nil {
		version = string(m[1])
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger.Debug("encoding engine ready", "path", path, "version", version)

	return &Engine{path: path, version: version, verbose: opts.Verbose, logger: logger}, nil
}

// Path returns the resolved binary path.
func (e *Engine) Path() string { return e.path }

// Version returns the version string reported by the binary.
func (e *Engine) Version() string { return e.version }

// Close marks the engine unusable. Jobs already running are unaffected.
func (e *Engine) Close() error {
	e.closed.Store(true)
	return nil
}

// Args returns the ffmpeg arguments that encode pair.Source into out.
func Args(desc codec.Descriptor, src, out string) []string {
	args := []string{
		"-hide_banner", "-nostdin", "-loglevel", "error", "-y",
		"-i", src,
		"-vn", "-map_metadata", "0",
		"-c:a", desc.Encoder,
	}
	args = append(args, desc.Args...)
	return append(args, "-f", desc.Format, out)
}

// NewJob prepares the encode of one pair. Nothing runs until Start.
func (e *Engine) NewJob(desc codec.Descriptor, pair model.FilePair) *Job {
	return &Job{engine: e, desc: desc, pair: pair}
}

// Job is a single ffmpeg invocation.
type Job struct {
	engine *Engine
	desc   codec.Descriptor
	pair   model.FilePair
}

// Start launches ffmpeg and returns a channel that receives exactly one
// Event when the output is in place or the encode has failed. Cancelling ctx
// kills the process. A failed job leaves no file at the destination.
func (j *Job) Start(ctx context.Context) <-chan pool.Event {
	ch := make(chan pool.Event, 1)
	go func() {
		defer close(ch)
		ch <- pool.Event{Pair: j.pair, Err: j.run(ctx)}
	}()
	return ch
}

func (j *Job) run(ctx context.Context) error {
	e := j.engine
	if e.closed.Load() {
		return ErrClosed
	}

	part := j.pair.Destination + PartSuffix
	cmd := exec.CommandContext(ctx, e.path, Args(j.desc, j.pair.Source, part)...)
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	if e.verbose {
		cmd.Stderr = &teeWriter{buf: &stderr, out: os.Stderr}
	} else {
		cmd.Stderr = &stderr
	}

	e.logger.Debug("encoding", "source", j.pair.Source, "destination", j.pair.Destination)
	if err := cmd.Run(); err != nil {
		_ = os.Remove(part)
		if ctx.Err() != nil {
			return &Error{Message: "encode interrupted", Err: ctx.Err()}
		}
		return parseError(stderr.String(), err)
	}
	if err := os.Rename(part, j.pair.Destination); err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("finalize %s: %w", j.pair.Destination, err)
	}
	return nil
}

type teeWriter struct {
	buf *bytes.Buffer
	out *os.File
}

func (w *teeWriter) Write(p []byte) (int, error) {
	_, _ = w.out.Write(p)
	return w.buf.Write(p)
}

// Factory builds pool jobs that encode with a fixed descriptor.
type Factory struct {
	Engine     *Engine
	Descriptor codec.Descriptor
}

// NewJob implements pool.JobFactory.
func (f Factory) NewJob(pair model.FilePair) (pool.Job, error) {
	if f.Engine == nil {
		return nil, errors.New("no encoding engine")
	}
	return f.Engine.NewJob(f.Descriptor, pair), nil
}

var _ pool.JobFactory = Factory{}

// Error is an encode failure reported by ffmpeg.
type Error struct {
	// Component is the ffmpeg element that raised the error, e.g. "libopus".
	// Empty when stderr did not name one.
	Component string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("%s: %s", e.Component, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// "[libopus @ 0x5581c2a3c1c0] Invalid bitrate"
var reComponent = regexp.MustCompile(`^\[([^\]@]+?)\s+@\s+0x[0-9a-fA-F]+\]\s*(.*)$`)

func parseError(stderr string, runErr error) *Error {
	var lines []string
	for _, l := range strings.Split(stderr, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	for _, l := range lines {
		if m := reComponent.FindStringSubmatch(l); m != nil && m[2] != "" {
			return &Error{Component: m[1], Message: m[2], Err: runErr}
		}
	}
	if len(lines) > 0 {
		return &Error{Message: lines[len(lines)-1], Err: runErr}
	}
	return &Error{Message: runErr.Error(), Err: runErr}
}
