// Package source walks a music library and decides, for every regular file,
// whether it is encoded or cloned into the destination tree.
package source

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/theirongolddev/aconv/internal/model"
)

// Scanner classifies files under a source root.
type Scanner struct {
	// Sniff enables content detection for files without a known audio extension.
	Sniff  bool
	Logger *slog.Logger
}

// Scan classifies every regular file under src, mirroring paths into dest
// and giving encoded outputs the extension ext.
func Scan(src, dest, ext string) (Result, error) {
	return Scanner{Sniff: true}.Scan(src, dest, ext)
}

// ScanFrom walks walkRoot but mirrors paths relative to base.
func ScanFrom(base, walkRoot, dest, ext string) (Result, error) {
	return Scanner{Sniff: true}.ScanFrom(base, walkRoot, dest, ext)
}

func (s Scanner) Scan(src, dest, ext string) (Result, error) {
	return s.ScanFrom(src, src, dest, ext)
}

func (s Scanner) ScanFrom(base, walkRoot, dest, ext string) (Result, error) {
	return s.scan(base, walkRoot, dest, ext, false)
}

// ScanTop classifies only the files directly under src.
func (s Scanner) ScanTop(src, dest, ext string) (Result, error) {
	return s.scan(src, src, dest, ext, true)
}

func (s Scanner) scan(base, walkRoot, dest, ext string, shallow bool) (Result, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	base, err := checkSource(base)
	if err != nil {
		return Result{}, err
	}
	root, err := checkSource(walkRoot)
	if err != nil {
		return Result{}, err
	}
	if rel, err := filepath.Rel(base, root); err != nil || escapes(rel) {
		return Result{}, &InvalidSourceError{Path: walkRoot, Err: fmt.Errorf("not inside %s", base)}
	}
	dest, err = CheckDestination(dest)
	if err != nil {
		return Result{}, err
	}
	ext = strings.TrimPrefix(ext, ".")

	var res Result
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == dest {
				logger.Debug("not descending into destination", "path", path)
				return filepath.SkipDir
			}
			if shallow && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if IsReserved(d.Name()) {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			fi, err := os.Stat(path)
			if err != nil {
				logger.Warn("skipping broken symlink", "path", path, "error", err)
				return nil
			}
			if !fi.Mode().IsRegular() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		audio, err := IsAudio(path, s.Sniff)
		if err != nil {
			return fmt.Errorf("classify %s: %w", path, err)
		}
		if audio {
			out := strings.TrimSuffix(rel, filepath.Ext(rel)) + "." + ext
			res.Transcode = append(res.Transcode, model.FilePair{Source: path, Destination: filepath.Join(dest, out)})
			return nil
		}
		res.Opaque = append(res.Opaque, model.FilePair{Source: path, Destination: filepath.Join(dest, rel)})
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("scan %s: %w", root, err)
	}

	res.Transcode = dropCollisions(res.Transcode, logger)
	logger.Debug("scanned source", "root", root, "transcode", len(res.Transcode), "opaque", len(res.Opaque))
	return res, nil
}

// dropCollisions keeps one source per destination. Sources that differ only
// in their audio extension (a.flac, a.mp3) would otherwise be encoded onto
// the same output; the first by source path wins.
func dropCollisions(pairs []model.FilePair, logger *slog.Logger) []model.FilePair {
	slices.SortFunc(pairs, func(a, b model.FilePair) int { return strings.Compare(a.Source, b.Source) })
	owner := make(map[string]string, len(pairs))
	return slices.DeleteFunc(pairs, func(p model.FilePair) bool {
		if first, ok := owner[p.Destination]; ok {
			logger.Warn("skipping source with the same output as another file",
				"source", p.Source, "kept", first, "destination", p.Destination)
			return true
		}
		owner[p.Destination] = p.Source
		return false
	})
}

func checkSource(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &InvalidSourceError{Path: path, Err: err}
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", &InvalidSourceError{Path: path, Err: err}
	}
	if !fi.IsDir() {
		return "", &InvalidSourceError{Path: path, Err: errors.New("not a directory")}
	}
	return abs, nil
}

// CheckDestination returns the absolute destination root. A destination that
// does not exist yet is valid.
func CheckDestination(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &InvalidDestinationError{Path: path, Err: err}
	}
	fi, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return abs, nil
	}
	if err != nil {
		return "", &InvalidDestinationError{Path: path, Err: err}
	}
	if !fi.IsDir() {
		return "", &InvalidDestinationError{Path: path, Err: errors.New("not a directory")}
	}
	return abs, nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel)
}
