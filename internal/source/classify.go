package source

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Extensions that are always treated as audio without reading the file.
var audioExts = map[string]bool{
	".aac": true, ".ac3": true, ".aif": true, ".aiff": true, ".alac": true,
	".amr": true, ".ape": true, ".au": true, ".dff": true, ".dsf": true,
	".flac": true, ".m4a": true, ".m4b": true, ".mka": true, ".mp2": true,
	".mp3": true, ".mpc": true, ".oga": true, ".ogg": true, ".opus": true,
	".spx": true, ".tta": true, ".wav": true, ".wma": true, ".wv": true,
}

// Files aconv writes into a destination tree. They are never source material.
var reserved = map[string]bool{
	".aconv":              true,
	".aconv.lock":         true,
	".aconv-folders.json": true,
}

// IsReserved reports whether name is one of aconv's own bookkeeping files.
func IsReserved(name string) bool { return reserved[name] }

// HasAudioExt reports whether path carries a known audio extension.
func HasAudioExt(path string) bool {
	return audioExts[strings.ToLower(filepath.Ext(path))]
}

// IsAudio classifies path by extension and, when sniff is set, by content.
func IsAudio(path string, sniff bool) (bool, error) {
	if HasAudioExt(path) {
		return true, nil
	}
	if !sniff {
		return false, nil
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return false, err
	}
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") {
			return true, nil
		}
	}
	return false, nil
}
