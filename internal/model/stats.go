package model

import "time"

// RunStats holds the outcome of a single conversion run.
type RunStats struct {
	Discovered int // transcodable + opaque files found by the walker
	Transcode  int
	Opaque     int

	SkippedTranscode int // already journaled
	SkippedOpaque    int

	Linked   int
	Copied   int
	Existing int // opaque destinations already on disk but not journaled

	Encoded   int
	Abandoned int // transcode jobs left in the queue after an abort

	StaleEntries     int // journal entries pruned for a different fingerprint
	MalformedEntries int

	DryRun  bool
	Aborted bool
	Err     string

	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall time of the run.
func (s RunStats) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Skipped returns the number of files that needed no work.
func (s RunStats) Skipped() int {
	return s.SkippedTranscode + s.SkippedOpaque
}

// Pending returns the number of transcode jobs that were queued.
func (s RunStats) Pending() int {
	return s.Transcode - s.SkippedTranscode
}

// RunRecord is a RunStats persisted to the history store.
type RunRecord struct {
	ID          string
	Source      string
	Destination string
	Codec       string
	Fingerprint string
	Stats       RunStats
}

// Status summarizes a record as ok, aborted, or dry-run.
func (r RunRecord) Status() string {
	switch {
	case r.Stats.Aborted:
		return "aborted"
	case r.Stats.DryRun:
		return "dry-run"
	default:
		return "ok"
	}
}
