package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/theirongolddev/aconv/internal/model"
	"github.com/theirongolddev/aconv/internal/pool"
)

func TestFormatNumber(t *testing.T) {
	cases := map[int64]string{0: "0", 999: "999", 1000: "1,000", 1234567: "1,234,567", -4200: "-4,200"}
	for in, want := range cases {
		if got := FormatNumber(in); got != want {
			t.Errorf("FormatNumber(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		0:                               "0s",
		250 * time.Millisecond:          "250ms",
		4200 * time.Millisecond:         "4.2s",
		2*time.Minute + 5*time.Second:   "2m 5s",
		time.Hour + 2*time.Minute + 5e9: "1h 2m",
	}
	for in, want := range cases {
		if got := FormatDuration(in); got != want {
			t.Errorf("FormatDuration(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncatePath(t *testing.T) {
	if got := TruncatePath("short.flac", 20); got != "short.flac" {
		t.Fatalf("got %q", got)
	}
	got := TruncatePath("a/very/long/path/to/track.flac", 12)
	if len([]rune(got)) != 12 || !strings.HasSuffix(got, "track.flac") {
		t.Fatalf("got %q", got)
	}
}

func TestRenderTableSeparatorAndAlignment(t *testing.T) {
	out := RenderTable(Table{
		Title:   "Runs",
		Headers: []string{"Codec", "Encoded"},
		Rows:    [][]string{{"opus", "12"}, {"---"}, {"flac", "3"}},
	})
	for _, want := range []string{"Runs", "Codec", "opus", "flac", "├"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "CODEC") {
		t.Fatalf("headers should keep their case:\n%s", out)
	}
}

func TestRenderSummary(t *testing.T) {
	s := model.RunStats{Discovered: 3, Transcode: 2, Opaque: 1, Encoded: 2, Linked: 1}
	out := RenderSummary(s)
	if !strings.Contains(out, "Encoded") || !strings.Contains(out, "done") {
		t.Fatalf("summary:\n%s", out)
	}

	s = model.RunStats{Transcode: 4, Encoded: 1, Abandoned: 2, Aborted: true, Err: "encode failed"}
	out = RenderSummary(s)
	if !strings.Contains(out, "Not started") || !strings.Contains(out, "encode failed") {
		t.Fatalf("aborted summary:\n%s", out)
	}
}

func TestProgressCountsDoneJobs(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, 10)
	pair := model.FilePair{Source: "/music/a.flac", Destination: "/out/a.ogg"}

	p.OnStart(2, 2)
	p.OnWorkerState(0, pool.Encoding, pair)
	p.OnJobDone(0, pair)
	p.OnJobFailed(1, pair, errors.New("boom"))
	p.Finish()

	out := buf.String()
	if !strings.Contains(out, "1/2") || !strings.Contains(out, "a.flac") {
		t.Fatalf("progress output = %q", out)
	}
}
