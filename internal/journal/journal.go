// Package journal records which destination files a run has fully produced,
// so later runs can skip them. Entries are keyed by the encoding fingerprint:
// a run with different parameters discards outputs it did not produce.
package journal

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"golang.org/x/text/unicode/norm"

	"github.com/theirongolddev/aconv/internal/fsx"
	"github.com/theirongolddev/aconv/internal/model"
)

// ErrLocked is returned by Open when another process holds the destination.
var ErrLocked = errors.New("destination is in use by another aconv run")

// Journal is the membership set shared by the cloner and the worker pool.
type Journal interface {
	// Contains reports whether path (absolute or relative to the working
	// directory) is a completed output.
	Contains(path string) bool
	// Add records path as produced under the run fingerprint.
	Add(path string) error
	// AddOpaque records path as valid under every fingerprint.
	AddOpaque(path string) error
	// FilterUnfinished yields the pairs whose destination is not recorded.
	FilterUnfinished(pairs []model.FilePair) iter.Seq[model.FilePair]
	Len() int
	Stale() int
	Malformed() int
	Close() error
}

// Options configure Open.
type Options struct {
	Logger *slog.Logger
	// ReadOnly loads and filters without locking, rewriting, or accepting
	// writes. Used for dry runs.
	ReadOnly bool
}

// File is the on-disk journal.
type File struct {
	root     string
	fp       model.Params
	logger   *slog.Logger
	lock     *flock.Flock
	readOnly bool

	mu      sync.Mutex
	f       *os.File
	entries map[string]Entry

	stale     int
	malformed int
}

// Open locks destRoot, loads its journal, drops entries that do not match fp,
// and rewrites the file to the retained set before returning.
func Open(destRoot string, fp model.Params, opts Options) (*File, error) {
	root, err := filepath.Abs(destRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve destination: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if opts.ReadOnly {
		j := &File{root: root, fp: fp.Clone(), logger: logger, readOnly: true, entries: make(map[string]Entry)}
		if err := j.load(); err != nil {
			return nil, err
		}
		return j, nil
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}

	lock := flock.New(filepath.Join(root, LockName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire journal lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	j := &File{
		root:    root,
		fp:      fp.Clone(),
		logger:  logger,
		lock:    lock,
		entries: make(map[string]Entry),
	}
	if err := j.load(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return j, nil
}

func (j *File) path() string { return filepath.Join(j.root, FileName) }

func (j *File) load() error {
	if f, err := os.Open(j.path()); err == nil {
		stored, rerr := readEntries(f, func(lineNo int, line string, err error) {
			j.malformed++
			j.logger.Warn("skipping malformed journal line",
				"line", lineNo, "content", truncate(line, 120), "error", err)
		})
		_ = f.Close()
		if rerr != nil {
			return fmt.Errorf("read journal: %w", rerr)
		}
		for p, e := range stored {
			if !e.Matches(j.fp) {
				j.stale++
				continue
			}
			j.entries[p] = e
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("open journal: %w", err)
	}

	if j.stale > 0 {
		j.logger.Info("discarded outputs produced with different parameters", "entries", j.stale)
	}
	if j.readOnly {
		return nil
	}

	var buf bytes.Buffer
	for _, e := range sortedEntries(j.entries) {
		line, err := e.marshal()
		if err != nil {
			return fmt.Errorf("encode journal entry %s: %w", e.Path, err)
		}
		buf.Write(line)
	}
	if err := fsx.WriteFileAtomic(j.path(), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("rewrite journal: %w", err)
	}

	f, err := os.OpenFile(j.path(), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal for append: %w", err)
	}
	j.f = f
	return nil
}

// rel maps a destination path onto its journal key.
func (j *File) rel(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	r, err := filepath.Rel(j.root, abs)
	if err != nil {
		return "", err
	}
	return cleanRel(norm.NFC.String(filepath.ToSlash(r)))
}

func (j *File) Contains(p string) bool {
	key, err := j.rel(p)
	if err != nil {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.entries[key]
	return ok
}

func (j *File) Add(p string) error { return j.add(p, j.fp) }

func (j *File) AddOpaque(p string) error { return j.add(p, model.Params{}) }

func (j *File) add(p string, fp model.Params) error {
	key, err := j.rel(p)
	if err != nil {
		return fmt.Errorf("journal %s: %w", p, err)
	}
	e := Entry{Path: key, Fingerprint: fp}
	line, err := e.marshal()
	if err != nil {
		return fmt.Errorf("encode journal entry %s: %w", key, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.readOnly {
		return errors.New("journal is read-only")
	}
	if j.f == nil {
		return errors.New("journal is closed")
	}
	if prev, ok := j.entries[key]; ok && prev.Fingerprint.Equal(fp) {
		return nil
	}
	if _, err := j.f.Write(line); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	if err := j.f.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	j.entries[key] = e
	return nil
}

func (j *File) FilterUnfinished(pairs []model.FilePair) iter.Seq[model.FilePair] {
	return func(yield func(model.FilePair) bool) {
		for _, p := range pairs {
			if j.Contains(p.Destination) {
				j.logger.Info("already converted, skipping", "path", p.Destination)
				continue
			}
			if !yield(p) {
				return
			}
		}
	}
}

func (j *File) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Stale returns the number of entries discarded at load for a fingerprint mismatch.
func (j *File) Stale() int { return j.stale }

// Malformed returns the number of unreadable lines skipped at load.
func (j *File) Malformed() int { return j.malformed }

// Close flushes the journal and releases the destination lock.
func (j *File) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	if uerr := j.lock.Unlock(); uerr != nil && err == nil {
		err = uerr
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// Void is the journal used when incremental behavior is disabled: nothing is
// ever recorded and every pair is unfinished.
type Void struct{}

func (Void) Contains(string) bool   { return false }
func (Void) Add(string) error       { return nil }
func (Void) AddOpaque(string) error { return nil }
func (Void) Len() int               { return 0 }
func (Void) Stale() int             { return 0 }
func (Void) Malformed() int         { return 0 }
func (Void) Close() error           { return nil }

func (Void) FilterUnfinished(pairs []model.FilePair) iter.Seq[model.FilePair] {
	return func(yield func(model.FilePair) bool) {
		for _, p := range pairs {
			if !yield(p) {
				return
			}
		}
	}
}

var (
	_ Journal = (*File)(nil)
	_ Journal = Void{}
)
