package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/aconv/internal/config"
	"github.com/theirongolddev/aconv/internal/tui"
	"github.com/theirongolddev/aconv/internal/tui/theme"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	Args:  cobra.NoArgs,
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	if !isTerminal(os.Stdin) {
		return errors.New("setup needs a terminal")
	}

	// A broken config file is replaced rather than blocking the wizard.
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "  Ignoring current config: %v\n", err)
		cfg = config.DefaultConfig()
	}
	theme.SetActive(cfg.Appearance.Theme)

	v := tui.NewSetupValues(cfg)
	if err := tui.NewSetupForm(v).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("  Setup canceled, nothing saved.")
			return nil
		}
		return err
	}
	if err := v.Apply(&cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	path := configFile()
	if err := config.SaveFile(path, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", path)
	fmt.Println("  Run `aconv setup` anytime to reconfigure.")
	fmt.Println()
	return nil
}
