// Package store keeps a SQLite history of conversion runs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/theirongolddev/aconv/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// History is the run history database.
type History struct {
	db *sql.DB
}

// Open opens or creates the history database at dbPath.
func Open(dbPath string) (*History, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &History{db: db}, nil
}

// DefaultPath returns $XDG_CACHE_HOME/aconv/history.db.
func DefaultPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = filepath.Join(os.TempDir(), "aconv-cache")
	}
	return filepath.Join(dir, "aconv", "history.db")
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Fixed-width UTC timestamps sort correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SaveRun stores rec, assigning an ID when it has none. Saving the same ID
// again replaces the earlier row.
func (h *History) SaveRun(ctx context.Context, rec *model.RunRecord) error {
	if rec.ID == "" {
		rec.ID = NewRunID()
	}
	s := rec.Stats
	started := formatTime(s.StartedAt)
	if !started.Valid {
		started = formatTime(time.Now())
	}

	_, err := h.db.ExecContext(ctx, `INSERT OR REPLACE INTO runs
		(run_id, source, destination, codec, fingerprint, started_at, finished_at,
		 discovered, transcode, opaque, skipped_transcode, skipped_opaque,
		 linked, copied, existing, encoded, abandoned, stale_entries, malformed_entries,
		 dry_run, aborted, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Source, rec.Destination, rec.Codec, rec.Fingerprint, started, formatTime(s.FinishedAt),
		s.Discovered, s.Transcode, s.Opaque, s.SkippedTranscode, s.SkippedOpaque,
		s.Linked, s.Copied, s.Existing, s.Encoded, s.Abandoned, s.StaleEntries, s.MalformedEntries,
		boolInt(s.DryRun), boolInt(s.Aborted), s.Err,
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", rec.ID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (h *History) RecentRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.QueryContext(ctx, `SELECT
		run_id, source, destination, codec, fingerprint, started_at, finished_at,
		discovered, transcode, opaque, skipped_transcode, skipped_opaque,
		linked, copied, existing, encoded, abandoned, stale_entries, malformed_entries,
		dry_run, aborted, error
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.RunRecord
	for rows.Next() {
		var r model.RunRecord
		var started string
		var finished, errText sql.NullString
		var dryRun, aborted int
		s := &r.Stats

		err := rows.Scan(
			&r.ID, &r.Source, &r.Destination, &r.Codec, &r.Fingerprint, &started, &finished,
			&s.Discovered, &s.Transcode, &s.Opaque, &s.SkippedTranscode, &s.SkippedOpaque,
			&s.Linked, &s.Copied, &s.Existing, &s.Encoded, &s.Abandoned, &s.StaleEntries, &s.MalformedEntries,
			&dryRun, &aborted, &errText,
		)
		if err != nil {
			return nil, err
		}
		s.StartedAt, _ = time.Parse(timeLayout, started)
		if finished.Valid {
			s.FinishedAt, _ = time.Parse(timeLayout, finished.String)
		}
		s.DryRun = dryRun != 0
		s.Aborted = aborted != 0
		s.Err = errText.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunCount returns the number of recorded runs.
func (h *History) RunCount(ctx context.Context) (int, error) {
	var count int
	err := h.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&count)
	return count, err
}
