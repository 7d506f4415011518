// Package config loads and saves the aconv TOML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/theirongolddev/aconv/internal/codec"
	"github.com/theirongolddev/aconv/internal/fsx"
)

// Config holds all aconv configuration.
type Config struct {
	General    GeneralConfig             `toml:"general"`
	Log        LogConfig                 `toml:"log"`
	Appearance AppearanceConfig          `toml:"appearance"`
	Daemon     DaemonConfig              `toml:"daemon"`
	Codecs     map[string]map[string]any `toml:"codecs,omitempty"`
}

// GeneralConfig holds conversion defaults.
type GeneralConfig struct {
	Codec        string `toml:"codec" validate:"required"`
	Threads      int    `toml:"threads" validate:"gte=0,lte=512"` // 0 means one per CPU
	Journal      bool   `toml:"journal"`
	SniffContent bool   `toml:"sniff_content"`
	JobTimeout   string `toml:"job_timeout,omitempty"`
	FFmpeg       string `toml:"ffmpeg,omitempty"`
	History      bool   `toml:"history"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=text json"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// DaemonConfig holds watch mode settings.
type DaemonConfig struct {
	Interval     string `toml:"interval"`
	Listen       string `toml:"listen" validate:"required,hostname_port"`
	EventsBuffer int    `toml:"events_buffer" validate:"gte=1,lte=10000"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			Codec:        codec.Default,
			Journal:      true,
			SniffContent: true,
			History:      true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
		Daemon: DaemonConfig{
			Interval:     "15m",
			Listen:       "127.0.0.1:8765",
			EventsBuffer: 200,
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "aconv")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "aconv")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	return LoadFile(ConfigPath())
}

// LoadFile reads and validates the config at path.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to the default location.
func Save(cfg Config) error {
	return SaveFile(ConfigPath(), cfg)
}

// SaveFile writes cfg to path atomically.
func SaveFile(path string, cfg Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := fsx.WriteFileAtomic(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}

var validate = validator.New()

// Validate checks field constraints and that every codec section names a
// known codec with valid parameter values.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if _, err := codec.Lookup(c.General.Codec); err != nil {
		return fmt.Errorf("general.codec: %w", err)
	}
	if _, err := c.General.Timeout(); err != nil {
		return err
	}
	if _, err := c.Daemon.Every(); err != nil {
		return err
	}

	names := make([]string, 0, len(c.Codecs))
	for name := range c.Codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cd, err := codec.Lookup(name)
		if err != nil {
			return fmt.Errorf("codecs.%s: %w", name, err)
		}
		if _, err := cd.Schema().Resolve(c.Codecs[name]); err != nil {
			return fmt.Errorf("codecs.%s: %w", name, err)
		}
	}
	return nil
}

// Timeout parses job_timeout. Zero means no timeout.
func (g GeneralConfig) Timeout() (time.Duration, error) {
	if g.JobTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(g.JobTimeout)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("general.job_timeout: invalid duration %q", g.JobTimeout)
	}
	return d, nil
}

// Every parses the daemon interval.
func (d DaemonConfig) Every() (time.Duration, error) {
	iv, err := time.ParseDuration(d.Interval)
	if err != nil || iv < time.Second {
		return 0, fmt.Errorf("daemon.interval: invalid duration %q (minimum 1s)", d.Interval)
	}
	return iv, nil
}

// CodecDefaults returns the configured parameter defaults for a codec.
func (c Config) CodecDefaults(name string) map[string]any {
	return c.Codecs[strings.ToLower(name)]
}
