// Package decisions remembers which top-level source folders the user chose
// to include in interactive mode, so a later run only asks about new ones.
package decisions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charmbracelet/huh"
	"golang.org/x/text/unicode/norm"

	"github.com/theirongolddev/aconv/internal/fsx"
)

// FileName is the decision cache kept at the destination root.
const FileName = ".aconv-folders.json"

// ErrAborted is returned when the user cancels the prompt.
var ErrAborted = errors.New("folder selection aborted")

// Cache maps a folder path relative to the source root onto an include flag.
// Every Set is written through to disk.
type Cache struct {
	path     string
	readOnly bool

	mu sync.Mutex
	m  map[string]bool
}

// Load reads the cache under destRoot. A missing file yields an empty cache.
func Load(destRoot string) (*Cache, error) {
	c := &Cache{path: filepath.Join(destRoot, FileName), m: make(map[string]bool)}
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read folder decisions: %w", err)
	}
	if err := json.Unmarshal(data, &c.m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", c.path, err)
	}
	if c.m == nil {
		c.m = make(map[string]bool)
	}
	return c, nil
}

// LoadReadOnly reads the cache under destRoot like Load, but Set only
// updates memory. Nothing is written under destRoot.
func LoadReadOnly(destRoot string) (*Cache, error) {
	c, err := Load(destRoot)
	if err != nil {
		return nil, err
	}
	c.readOnly = true
	return c, nil
}

func key(rel string) string {
	return norm.NFC.String(filepath.ToSlash(filepath.Clean(rel)))
}

// Get returns the recorded decision for rel.
func (c *Cache) Get(rel string) (include, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	include, ok = c.m[key(rel)]
	return include, ok
}

// Set records a decision and, unless the cache is read-only, persists the
// whole cache atomically.
func (c *Cache) Set(rel string, include bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key(rel)] = include
	if c.readOnly {
		return nil
	}

	data, err := json.MarshalIndent(c.m, "", "  ")
	if err != nil {
		return err
	}
	if err := fsx.WriteFileAtomic(c.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("save folder decisions: %w", err)
	}
	return nil
}

// Len returns the number of recorded decisions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

// Prompter asks whether a folder should be converted.
type Prompter interface {
	Confirm(ctx context.Context, folder string) (bool, error)
}

// HuhPrompter asks on the terminal with a huh confirm field.
type HuhPrompter struct {
	Theme *huh.Theme
}

func (p HuhPrompter) Confirm(ctx context.Context, folder string) (bool, error) {
	include := true
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Convert %s?", folder)).
			Affirmative("Include").
			Negative("Skip").
			Value(&include),
	))
	if p.Theme != nil {
		form = form.WithTheme(p.Theme)
	}
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, ErrAborted
		}
		return false, err
	}
	return include, nil
}

// Select lists the top-level folders of srcRoot, prompts for the ones
// without a recorded decision, and returns the absolute paths of the
// included folders in name order. Decisions are saved as they are made, so
// an aborted selection resumes where it stopped.
func Select(ctx context.Context, srcRoot string, cache *Cache, prompter Prompter) ([]string, error) {
	entries, err := os.ReadDir(srcRoot)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", srcRoot, err)
	}
	var folders []string
	for _, e := range entries {
		if e.IsDir() {
			folders = append(folders, e.Name())
		}
	}
	sort.Strings(folders)

	var included []string
	for _, name := range folders {
		include, ok := cache.Get(name)
		if !ok {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			include, err = prompter.Confirm(ctx, name)
			if err != nil {
				return nil, err
			}
			if err := cache.Set(name, include); err != nil {
				return nil, err
			}
		}
		if include {
			included = append(included, filepath.Join(srcRoot, name))
		}
	}
	return included, nil
}
