package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/theirongolddev/aconv/internal/model"
)

func openTemp(t *testing.T) *History {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestSaveAndListRuns(t *testing.T) {
	h := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older := model.RunRecord{
		Source: "/music", Destination: "/music.opus", Codec: "opus",
		Fingerprint: `{"$codec":"opus/1"}`,
		Stats: model.RunStats{
			Discovered: 10, Transcode: 8, Opaque: 2, Encoded: 8, Linked: 2,
			StartedAt: base, FinishedAt: base.Add(time.Minute),
		},
	}
	newer := model.RunRecord{
		Source: "/music", Destination: "/music.opus", Codec: "opus",
		Stats: model.RunStats{
			Transcode: 8, Encoded: 3, Abandoned: 5, Aborted: true, Err: "libopus: boom",
			StartedAt: base.Add(time.Hour),
		},
	}
	for _, r := range []*model.RunRecord{&older, &newer} {
		if err := h.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
		if r.ID == "" {
			t.Fatal("SaveRun did not assign an ID")
		}
	}
	if older.ID == newer.ID {
		t.Fatal("run IDs collide")
	}

	n, err := h.RunCount(ctx)
	if err != nil || n != 2 {
		t.Fatalf("RunCount = %d, %v; want 2", n, err)
	}

	runs, err := h.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != newer.ID {
		t.Fatalf("RecentRuns order = %v, want newest first", runs)
	}
	got := runs[0]
	if got.Status() != "aborted" || got.Stats.Err != "libopus: boom" || got.Stats.Abandoned != 5 {
		t.Fatalf("newest run = %+v", got)
	}
	if !got.Stats.FinishedAt.IsZero() {
		t.Fatalf("FinishedAt = %v, want zero", got.Stats.FinishedAt)
	}
	if d := runs[1].Stats.Duration(); d != time.Minute {
		t.Fatalf("older Duration = %v, want 1m", d)
	}
}

func TestSaveRunReplacesSameID(t *testing.T) {
	h := openTemp(t)
	ctx := context.Background()

	rec := model.RunRecord{ID: "fixed", Source: "a", Destination: "b", Codec: "flac"}
	if err := h.SaveRun(ctx, &rec); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	rec.Stats.Encoded = 4
	if err := h.SaveRun(ctx, &rec); err != nil {
		t.Fatalf("SaveRun again: %v", err)
	}

	runs, err := h.RecentRuns(ctx, 0)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Stats.Encoded != 4 {
		t.Fatalf("runs = %+v, want one updated row", runs)
	}
}
