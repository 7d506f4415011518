package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
    run_id               TEXT PRIMARY KEY,
    source               TEXT NOT NULL,
    destination          TEXT NOT NULL,
    codec                TEXT NOT NULL,
    fingerprint          TEXT NOT NULL,
    started_at           TEXT NOT NULL,
    finished_at          TEXT,
    discovered           INTEGER NOT NULL DEFAULT 0,
    transcode            INTEGER NOT NULL DEFAULT 0,
    opaque               INTEGER NOT NULL DEFAULT 0,
    skipped_transcode    INTEGER NOT NULL DEFAULT 0,
    skipped_opaque       INTEGER NOT NULL DEFAULT 0,
    linked               INTEGER NOT NULL DEFAULT 0,
    copied               INTEGER NOT NULL DEFAULT 0,
    existing             INTEGER NOT NULL DEFAULT 0,
    encoded              INTEGER NOT NULL DEFAULT 0,
    abandoned            INTEGER NOT NULL DEFAULT 0,
    stale_entries        INTEGER NOT NULL DEFAULT 0,
    malformed_entries    INTEGER NOT NULL DEFAULT 0,
    dry_run              INTEGER NOT NULL DEFAULT 0,
    aborted              INTEGER NOT NULL DEFAULT 0,
    error                TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_destination ON runs(destination);
`
