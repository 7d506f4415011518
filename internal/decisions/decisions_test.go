package decisions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type scriptedPrompter struct {
	answers map[string]bool
	abortAt string
	asked   []string
}

func (p *scriptedPrompter) Confirm(_ context.Context, folder string) (bool, error) {
	if folder == p.abortAt {
		return false, ErrAborted
	}
	p.asked = append(p.asked, folder)
	return p.answers[folder], nil
}

func mkdirs(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.MkdirAll(filepath.Join(root, n), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", n, err)
		}
	}
}

func TestCacheWriteThrough(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c.Set("Jazz", true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Set("Podcasts", false); err != nil {
		t.Fatalf("Set: %v", err)
	}

	reloaded, err := Load(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if v, ok := reloaded.Get("Jazz"); !ok || !v {
		t.Fatalf("Jazz = %v, %v; want true, true", v, ok)
	}
	if v, ok := reloaded.Get("Podcasts"); !ok || v {
		t.Fatalf("Podcasts = %v, %v; want false, true", v, ok)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("Len = %d, want 2", reloaded.Len())
	}
}

func TestLoadRejectsCorruptCache(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("{nope"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("Load succeeded on corrupt cache")
	}
}

func TestSelectAsksOnlyUndecided(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	mkdirs(t, src, "Classical", "Jazz", "Podcasts")
	if err := os.WriteFile(filepath.Join(src, "loose.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, _ := Load(dst)
	if err := c.Set("Classical", true); err != nil {
		t.Fatalf("Set: %v", err)
	}

	p := &scriptedPrompter{answers: map[string]bool{"Jazz": true, "Podcasts": false}}
	got, err := Select(context.Background(), src, c, p)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	want := []string{filepath.Join(src, "Classical"), filepath.Join(src, "Jazz")}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Select = %v, want %v", got, want)
	}
	if len(p.asked) != 2 {
		t.Fatalf("asked %v, want Jazz and Podcasts only", p.asked)
	}

	p2 := &scriptedPrompter{}
	if _, err := Select(context.Background(), src, c, p2); err != nil {
		t.Fatalf("second Select: %v", err)
	}
	if len(p2.asked) != 0 {
		t.Fatalf("second run asked %v, want nothing", p2.asked)
	}
}

func TestSelectAbortKeepsEarlierDecisions(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	mkdirs(t, src, "A", "B", "C")

	c, _ := Load(dst)
	p := &scriptedPrompter{answers: map[string]bool{"A": true}, abortAt: "B"}
	if _, err := Select(context.Background(), src, c, p); !errors.Is(err, ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", err)
	}

	reloaded, _ := Load(dst)
	if v, ok := reloaded.Get("A"); !ok || !v {
		t.Fatal("decision made before abort was not persisted")
	}
	if _, ok := reloaded.Get("B"); ok {
		t.Fatal("aborted folder has a recorded decision")
	}
}

func TestReadOnlyCacheNeverWrites(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out")
	c, err := LoadReadOnly(dest)
	if err != nil {
		t.Fatalf("LoadReadOnly: %v", err)
	}
	if err := c.Set("Jazz", true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok := c.Get("Jazz"); !ok || !v {
		t.Fatalf("Jazz = %v, %v; want true, true", v, ok)
	}
	if _, err := os.Stat(dest); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read-only cache touched the destination: %v", err)
	}
}
