package fsx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/theirongolddev/aconv/internal/model"
)

// CloneStats counts how each opaque file reached the destination.
type CloneStats struct {
	Linked   int
	Copied   int
	Existing int
}

// Total returns the number of committed clones.
func (s CloneStats) Total() int { return s.Linked + s.Copied + s.Existing }

// BuildTree creates root and the parent directory of every destination in
// the given pair lists. It is idempotent.
func BuildTree(root string, lists ...[]model.FilePair) error {
	dirs := map[string]struct{}{filepath.Clean(root): {}}
	for _, pairs := range lists {
		for _, p := range pairs {
			dirs[filepath.Dir(p.Destination)] = struct{}{}
		}
	}

	ordered := make([]string, 0, len(dirs))
	for d := range dirs {
		ordered = append(ordered, d)
	}
	sort.Strings(ordered)

	for _, d := range ordered {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}
	return nil
}

// CloneTree hardlinks each source onto its destination, falling back to a
// byte copy when the link crosses filesystems. Destinations that already
// exist are never overwritten; they are committed as-is. commit is called
// once per destination after it is in place; a commit error aborts.
func CloneTree(ctx context.Context, pairs []model.FilePair, commit func(dest string) error) (CloneStats, error) {
	var stats CloneStats
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		how, err := clone(p)
		if err != nil {
			return stats, fmt.Errorf("clone %s: %w", p.Source, err)
		}
		if err := commit(p.Destination); err != nil {
			return stats, fmt.Errorf("journal %s: %w", p.Destination, err)
		}
		switch how {
		case cloneLinked:
			stats.Linked++
		case cloneCopied:
			stats.Copied++
		case cloneExisting:
			stats.Existing++
		}
	}
	return stats, nil
}

type cloneResult int

const (
	cloneLinked cloneResult = iota
	cloneCopied
	cloneExisting
)

func clone(p model.FilePair) (cloneResult, error) {
	exists, err := Exists(p.Destination)
	if err != nil {
		return 0, err
	}
	if exists {
		return cloneExisting, nil
	}

	// link(2) does not follow symlinks; clone the file they point at.
	src, err := filepath.EvalSymlinks(p.Source)
	if err != nil {
		return 0, err
	}

	err = linkFunc(src, p.Destination)
	if err == nil {
		return cloneLinked, nil
	}
	if !isEXDEV(err) {
		return 0, err
	}
	if err := copyFile(src, p.Destination); err != nil {
		return 0, err
	}
	return cloneCopied, nil
}
