//go:build unix

package fsx

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/theirongolddev/aconv/internal/model"
)

func TestCloneTree_CrossDeviceFallsBackToCopy(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "cover.jpg"), "jpeg bytes")

	old := linkFunc
	linkFunc = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "link", Old: oldpath, New: newpath, Err: unix.EXDEV}
	}
	defer func() { linkFunc = old }()

	pair := model.FilePair{Source: filepath.Join(src, "cover.jpg"), Destination: filepath.Join(dst, "cover.jpg")}
	var committed int
	stats, err := CloneTree(context.Background(), []model.FilePair{pair}, func(string) error {
		committed++
		return nil
	})
	if err != nil {
		t.Fatalf("CloneTree: %v", err)
	}
	if stats.Copied != 1 || stats.Linked != 0 {
		t.Fatalf("stats = %+v, want one copy", stats)
	}
	if committed != 1 {
		t.Fatalf("committed = %d, want 1", committed)
	}

	b, err := os.ReadFile(pair.Destination)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(b) != "jpeg bytes" {
		t.Fatalf("content = %q", b)
	}
	si, _ := os.Stat(pair.Source)
	di, _ := os.Stat(pair.Destination)
	if os.SameFile(si, di) {
		t.Fatal("destination should be an independent copy")
	}
	assertNoTemp(t, dst)
}

func TestCloneTree_FollowsSymlinkedSource(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	target := filepath.Join(src, "real.txt")
	writeFile(t, target, "data")
	link := filepath.Join(src, "alias.txt")
	if err := os.Symlink("real.txt", link); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	pair := model.FilePair{Source: link, Destination: filepath.Join(dst, "alias.txt")}
	if _, err := CloneTree(context.Background(), []model.FilePair{pair}, func(string) error { return nil }); err != nil {
		t.Fatalf("CloneTree: %v", err)
	}
	fi, err := os.Lstat(pair.Destination)
	if err != nil {
		t.Fatalf("Lstat: %v", err)
	}
	if !fi.Mode().IsRegular() {
		t.Fatalf("destination mode = %v, want regular file", fi.Mode())
	}
}

func TestCheckWritable(t *testing.T) {
	dir := t.TempDir()
	if err := CheckWritable(dir); err != nil {
		t.Fatalf("CheckWritable(%s): %v", dir, err)
	}
	if err := CheckWritable(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("CheckWritable on missing dir succeeded")
	}
}
