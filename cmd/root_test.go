package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func useConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	prev := flagConfig
	flagConfig = path
	t.Cleanup(func() { flagConfig = prev })
}

func TestNewSessionReadsJobTimeout(t *testing.T) {
	useConfig(t, "[general]\ncodec = \"flac\"\nhistory = false\njob_timeout = \"90s\"\n")

	s, err := newSession(context.Background(), rootCmd, []string{"/music"}, false)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	defer s.Close()
	if s.timeout != 90*time.Second {
		t.Fatalf("timeout = %s, want 90s", s.timeout)
	}
	if s.codec.Name() != "flac" || s.dest != "/music.flac" {
		t.Fatalf("codec = %s, dest = %s", s.codec.Name(), s.dest)
	}
}

func TestNewSessionRejectsBadJobTimeout(t *testing.T) {
	useConfig(t, "[general]\nhistory = false\njob_timeout = \"soon\"\n")

	if s, err := newSession(context.Background(), rootCmd, []string{"/music"}, false); err == nil {
		s.Close()
		t.Fatal("newSession accepted an invalid job_timeout")
	}
}
