package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/theirongolddev/aconv/internal/model"
)

const (
	// FileName is the journal file kept at the destination root.
	FileName = ".aconv"
	// LockName guards the journal against concurrent runs.
	LockName = ".aconv.lock"

	pathKey = "$path"
)

// Entry is one journaled output. A zero-length Fingerprint marks an entry that
// is valid under every fingerprint (legacy lines and cloned files).
type Entry struct {
	Path        string
	Fingerprint model.Params
}

// Independent reports whether the entry survives fingerprint changes.
func (e Entry) Independent() bool { return e.Fingerprint.Len() == 0 }

// Matches reports whether the entry is valid for a run using fp.
func (e Entry) Matches(fp model.Params) bool {
	return e.Independent() || e.Fingerprint.Equal(fp)
}

func (e Entry) marshal() ([]byte, error) {
	rec := e.Fingerprint.Clone()
	rec.Set(pathKey, e.Path)
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// parseLine decodes one journal line. Bare lines are legacy entries holding
// only a relative path.
func parseLine(line string) (Entry, error) {
	if !strings.HasPrefix(line, "{") {
		p, err := cleanRel(line)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Path: p}, nil
	}

	var rec model.Params
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return Entry{}, fmt.Errorf("decode record: %w", err)
	}
	raw, ok := rec.Get(pathKey)
	if !ok {
		return Entry{}, errors.New("record has no " + pathKey)
	}
	s, ok := raw.(string)
	if !ok {
		return Entry{}, errors.New(pathKey + " is not a string")
	}
	p, err := cleanRel(s)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Path: p, Fingerprint: rec.Without(pathKey)}, nil
}

// cleanRel validates a stored path and puts it in canonical form: slash
// separated, NFC normalized, relative, and inside the destination root.
func cleanRel(p string) (string, error) {
	p = norm.NFC.String(strings.TrimSpace(p))
	if p == "" {
		return "", errors.New("empty path")
	}
	if path.IsAbs(p) || filepath.IsAbs(p) {
		return "", fmt.Errorf("absolute path %q", p)
	}
	p = path.Clean(p)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("path %q escapes the destination", p)
	}
	return p, nil
}

// readEntries parses a journal stream. Later lines for the same path replace
// earlier ones. Unparseable lines are reported through bad and skipped.
func readEntries(r io.Reader, bad func(lineNo int, line string, err error)) (map[string]Entry, error) {
	entries := make(map[string]Entry)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			bad(lineNo, line, err)
			continue
		}
		entries[e.Path] = e
	}
	return entries, sc.Err()
}

func sortedEntries(m map[string]Entry) []Entry {
	out := make([]Entry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Read returns the entries recorded under destRoot without locking or pruning,
// plus the number of malformed lines. A missing journal yields no entries.
func Read(destRoot string) ([]Entry, int, error) {
	f, err := os.Open(filepath.Join(destRoot, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	malformed := 0
	entries, err := readEntries(f, func(int, string, error) { malformed++ })
	if err != nil {
		return nil, malformed, fmt.Errorf("read journal: %w", err)
	}
	return sortedEntries(entries), malformed, nil
}
