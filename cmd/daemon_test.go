package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/theirongolddev/aconv/internal/engine"
	"github.com/theirongolddev/aconv/internal/model"
	"github.com/theirongolddev/aconv/internal/pool"
)

func TestPIDFileClaim(t *testing.T) {
	pf := pidFile(filepath.Join(t.TempDir(), "run", "aconvd.pid"))
	if err := pf.checkFree(); err != nil {
		t.Fatalf("checkFree on missing file: %v", err)
	}

	st := daemonRuntimeState{PID: os.Getpid(), Addr: "127.0.0.1:9999", Source: "/music"}
	if err := pf.claim(st); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if pid, err := pf.pid(); err != nil || pid != os.Getpid() {
		t.Fatalf("pid = %d, %v", pid, err)
	}
	if got, err := pf.state(); err != nil || got.Addr != st.Addr || got.Source != "/music" {
		t.Fatalf("state = %+v, %v", got, err)
	}

	// The test process is alive, so the file is owned.
	if err := pf.checkFree(); err == nil {
		t.Fatal("checkFree should fail while the owner is alive")
	}
	if err := pf.claim(st); err == nil {
		t.Fatal("second claim should fail")
	}

	pf.remove()
	if _, err := pf.pid(); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("pid after remove: %v", err)
	}
}

func TestPIDFileRejectsGarbage(t *testing.T) {
	pf := pidFile(filepath.Join(t.TempDir(), "aconvd.pid"))
	if err := os.WriteFile(string(pf), []byte("not a pid\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := pf.checkFree(); err == nil || !strings.Contains(err.Error(), "invalid pid") {
		t.Fatalf("checkFree = %v", err)
	}
}

func TestFilterDetachArg(t *testing.T) {
	got := filterDetachArg([]string{"daemon", "--detach", "/music", "--detach=true", "--interval", "1m"})
	want := []string{"daemon", "/music", "--interval", "1m"}
	if !slices.Equal(got, want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
}

func TestDefaultDestination(t *testing.T) {
	sep := string(filepath.Separator)
	cases := map[string]string{
		"music":                     "music.opus",
		"music" + sep:               "music.opus",
		sep + "srv" + sep + "music": sep + "srv" + sep + "music.opus",
	}
	for src, want := range cases {
		if got := defaultDestination(src, "opus"); got != want {
			t.Errorf("defaultDestination(%q) = %q, want %q", src, got, want)
		}
	}
}

func TestDescribeError(t *testing.T) {
	if describeError(nil) != nil {
		t.Fatal("nil should stay nil")
	}

	jerr := &pool.JobError{
		Pair: model.FilePair{Source: "/music/a.flac"},
		Err:  &engine.Error{Component: "libopus", Message: "invalid sample rate"},
	}
	got := describeError(fmt.Errorf("run: %w", jerr)).Error()
	if got != "/music/a.flac: libopus: invalid sample rate" {
		t.Fatalf("describeError = %q", got)
	}

	if got := describeError(context.Canceled).Error(); got != "interrupted" {
		t.Fatalf("canceled = %q", got)
	}

	plain := errors.New("disk full")
	if describeError(plain) != plain {
		t.Fatal("other errors pass through unchanged")
	}
}
