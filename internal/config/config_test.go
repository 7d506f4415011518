package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.General.Codec != "opus" || !cfg.General.Journal {
		t.Fatalf("defaults = %+v", cfg.General)
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFileOverridesAndCodecDefaults(t *testing.T) {
	path := writeConfig(t, `
[general]
codec = "mp3"
threads = 6
job_timeout = "90s"

[log]
level = "debug"
format = "json"

[codecs.mp3]
quality = 2
mono = true
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.General.Codec != "mp3" || cfg.General.Threads != 6 {
		t.Fatalf("general = %+v", cfg.General)
	}
	if d, _ := cfg.General.Timeout(); d != 90*time.Second {
		t.Fatalf("Timeout = %v, want 90s", d)
	}
	if !cfg.General.SniffContent {
		t.Fatal("unset key lost its default")
	}
	defaults := cfg.CodecDefaults("MP3")
	if defaults["quality"] != int64(2) || defaults["mono"] != true {
		t.Fatalf("codec defaults = %v", defaults)
	}
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown codec":     "[general]\ncodec = \"vorbis\"\n",
		"negative threads":  "[general]\nthreads = -1\n",
		"bad level":         "[log]\nlevel = \"loud\"\n",
		"bad timeout":       "[general]\njob_timeout = \"soon\"\n",
		"bad codec section": "[codecs.opus]\nbitrate-type = \"abr\"\n",
		"unknown section":   "[codecs.vorbis]\nquality = 3\n",
		"bad listen":        "[daemon]\nlisten = \"nowhere\"\n",
		"short interval":    "[daemon]\ninterval = \"10ms\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadFile(writeConfig(t, body)); err == nil {
				t.Fatalf("LoadFile accepted %q", body)
			}
		})
	}
}

func TestSaveFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	cfg := DefaultConfig()
	cfg.General.Codec = "flac"
	cfg.Codecs = map[string]map[string]any{"flac": {"bit-depth": int64(24)}}

	if err := SaveFile(path, cfg); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "[codecs.flac]") {
		t.Fatalf("saved config missing codec section:\n%s", data)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.General.Codec != "flac" || loaded.CodecDefaults("flac")["bit-depth"] != int64(24) {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestConfigDirHonorsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")
	if got := ConfigPath(); got != filepath.Join("/tmp/xdg-test", "aconv", "config.toml") {
		t.Fatalf("ConfigPath = %q", got)
	}
}
