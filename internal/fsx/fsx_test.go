package fsx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/theirongolddev/aconv/internal/model"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func assertNoTemp(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %q", e.Name())
		}
	}
}

func TestWriteFileAtomic_ReplacesAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := WriteFileAtomic(path, []byte("one"), 0o644); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("two"), 0o644); err != nil {
		t.Fatalf("second write: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(b) != "two" {
		t.Fatalf("content = %q, want two", b)
	}
	assertNoTemp(t, dir)
}

func TestWriteFileAtomic_RenameFailureKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	writeFile(t, path, "original")

	old := renameFunc
	renameFunc = func(string, string) error { return os.ErrPermission }
	defer func() { renameFunc = old }()

	if err := WriteFileAtomic(path, []byte("new"), 0o644); err == nil {
		t.Fatal("WriteFileAtomic succeeded, want error")
	}
	b, _ := os.ReadFile(path)
	if string(b) != "original" {
		t.Fatalf("content = %q, want original", b)
	}
	assertNoTemp(t, dir)
}

func TestBuildTree(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out")
	pairs := []model.FilePair{
		{Source: "/src/a/b/one.mp3", Destination: filepath.Join(root, "a", "b", "one.ogg")},
		{Source: "/src/c/two.txt", Destination: filepath.Join(root, "c", "two.txt")},
	}
	for i := 0; i < 2; i++ {
		if err := BuildTree(root, pairs[:1], pairs[1:]); err != nil {
			t.Fatalf("BuildTree pass %d: %v", i, err)
		}
	}
	for _, d := range []string{root, filepath.Join(root, "a", "b"), filepath.Join(root, "c")} {
		if fi, err := os.Stat(d); err != nil || !fi.IsDir() {
			t.Fatalf("%s not created: %v", d, err)
		}
	}
}

func TestCloneTree_LinksAndCommits(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "readme.txt"), "hello")
	pair := model.FilePair{Source: filepath.Join(src, "readme.txt"), Destination: filepath.Join(dst, "readme.txt")}

	var committed []string
	stats, err := CloneTree(context.Background(), []model.FilePair{pair}, func(dest string) error {
		committed = append(committed, dest)
		return nil
	})
	if err != nil {
		t.Fatalf("CloneTree: %v", err)
	}
	if stats.Linked != 1 || stats.Total() != 1 {
		t.Fatalf("stats = %+v, want one link", stats)
	}
	if len(committed) != 1 || committed[0] != pair.Destination {
		t.Fatalf("committed = %v", committed)
	}

	si, _ := os.Stat(pair.Source)
	di, _ := os.Stat(pair.Destination)
	if !os.SameFile(si, di) {
		t.Fatal("destination is not a hardlink of the source")
	}
}

func TestCloneTree_NeverOverwrites(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "new")
	writeFile(t, filepath.Join(dst, "a.txt"), "old")
	pair := model.FilePair{Source: filepath.Join(src, "a.txt"), Destination: filepath.Join(dst, "a.txt")}

	stats, err := CloneTree(context.Background(), []model.FilePair{pair}, func(string) error { return nil })
	if err != nil {
		t.Fatalf("CloneTree: %v", err)
	}
	if stats.Existing != 1 {
		t.Fatalf("stats = %+v, want one existing", stats)
	}
	b, _ := os.ReadFile(pair.Destination)
	if string(b) != "old" {
		t.Fatalf("destination overwritten: %q", b)
	}
}

func TestCloneTree_LinkErrorAborts(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "x")

	old := linkFunc
	linkFunc = func(string, string) error { return os.ErrPermission }
	defer func() { linkFunc = old }()

	calls := 0
	_, err := CloneTree(context.Background(), []model.FilePair{
		{Source: filepath.Join(src, "a.txt"), Destination: filepath.Join(dst, "a.txt")},
	}, func(string) error { calls++; return nil })
	if !errors.Is(err, os.ErrPermission) {
		t.Fatalf("err = %v, want permission error", err)
	}
	if calls != 0 {
		t.Fatalf("commit called %d times after failure", calls)
	}
}

func TestCloneTree_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CloneTree(ctx, []model.FilePair{{Source: "/nope", Destination: "/nope2"}}, func(string) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
