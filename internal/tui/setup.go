package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/theirongolddev/aconv/internal/codec"
	"github.com/theirongolddev/aconv/internal/config"
	"github.com/theirongolddev/aconv/internal/tui/theme"
)

// SetupValues holds the answers of the setup wizard.
type SetupValues struct {
	Codec   string
	Threads string
	Journal bool
	Sniff   bool
	Theme   string
}

// NewSetupValues seeds the wizard from cfg.
func NewSetupValues(cfg config.Config) *SetupValues {
	return &SetupValues{
		Codec:   cfg.General.Codec,
		Threads: strconv.Itoa(cfg.General.Threads),
		Journal: cfg.General.Journal,
		Sniff:   cfg.General.SniffContent,
		Theme:   cfg.Appearance.Theme,
	}
}

// Apply copies the answers into cfg.
func (v *SetupValues) Apply(cfg *config.Config) error {
	threads, err := parseThreads(v.Threads)
	if err != nil {
		return err
	}
	cfg.General.Codec = v.Codec
	cfg.General.Threads = threads
	cfg.General.Journal = v.Journal
	cfg.General.SniffContent = v.Sniff
	cfg.Appearance.Theme = v.Theme
	return nil
}

func parseThreads(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "auto" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 512 {
		return 0, fmt.Errorf("threads must be a number from 0 to 512")
	}
	return n, nil
}

// NewSetupForm builds the first-run wizard bound to v.
func NewSetupForm(v *SetupValues) *huh.Form {
	codecOpts := make([]huh.Option[string], 0, len(codec.Names()))
	for _, name := range codec.Names() {
		codecOpts = append(codecOpts, huh.NewOption(name, name))
	}
	themeOpts := make([]huh.Option[string], 0, len(theme.All))
	for _, name := range theme.Names() {
		themeOpts = append(themeOpts, huh.NewOption(name, name))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to aconv").
				Description("Pick the defaults used when flags are not given.\nEvery answer can be changed later in the config file."),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default codec").
				Options(codecOpts...).
				Value(&v.Codec),
			huh.NewInput().
				Title("Parallel encoders").
				Description("0 or auto uses one per CPU.").
				Value(&v.Threads).
				Validate(func(s string) error {
					_, err := parseThreads(s)
					return err
				}),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Keep a journal in the destination?").
				Description("Needed to skip files that were already converted.").
				Value(&v.Journal),
			huh.NewConfirm().
				Title("Detect audio by content?").
				Description("Reads the header of files without a known audio extension.").
				Value(&v.Sniff),
			huh.NewSelect[string]().
				Title("Color theme").
				Options(themeOpts...).
				Value(&v.Theme),
		),
	).WithTheme(theme.Huh(theme.Active))
}
