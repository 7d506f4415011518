package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/aconv/internal/cli"
	"github.com/theirongolddev/aconv/internal/codec"
	"github.com/theirongolddev/aconv/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func configFile() string {
	if flagConfig != "" {
		return flagConfig
	}
	return config.ConfigPath()
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println(cli.RenderTitle("aconv configuration"))
	fmt.Println()
	fmt.Printf("  Config file: %s\n", configFile())
	if flagConfig != "" || config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	threads := "one per CPU"
	if cfg.General.Threads > 0 {
		threads = fmt.Sprint(cfg.General.Threads)
	}
	timeout := "none"
	if cfg.General.JobTimeout != "" {
		timeout = cfg.General.JobTimeout
	}
	ffmpeg := "ffmpeg (from PATH)"
	if cfg.General.FFmpeg != "" {
		ffmpeg = cfg.General.FFmpeg
	}

	fmt.Println("  [General]")
	fmt.Printf("    Codec:         %s\n", cfg.General.Codec)
	fmt.Printf("    Threads:       %s\n", threads)
	fmt.Printf("    Journal:       %v\n", cfg.General.Journal)
	fmt.Printf("    Sniff content: %v\n", cfg.General.SniffContent)
	fmt.Printf("    Job timeout:   %s\n", timeout)
	fmt.Printf("    Encoder:       %s\n", ffmpeg)
	fmt.Printf("    History:       %v\n", cfg.General.History)
	fmt.Println()

	fmt.Println("  [Log]")
	fmt.Printf("    Level:  %s\n", cfg.Log.Level)
	fmt.Printf("    Format: %s\n", cfg.Log.Format)
	fmt.Println()

	fmt.Println("  [Appearance]")
	fmt.Printf("    Theme: %s\n", cfg.Appearance.Theme)
	fmt.Println()

	fmt.Println("  [Daemon]")
	fmt.Printf("    Interval:      %s\n", cfg.Daemon.Interval)
	fmt.Printf("    Listen:        %s\n", cfg.Daemon.Listen)
	fmt.Printf("    Events buffer: %d\n", cfg.Daemon.EventsBuffer)

	for _, name := range codec.Names() {
		defaults := cfg.CodecDefaults(name)
		if len(defaults) == 0 {
			continue
		}
		keys := make([]string, 0, len(defaults))
		for k := range defaults {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = fmt.Sprintf("%s=%v", k, defaults[k])
		}
		fmt.Println()
		fmt.Printf("  [codecs.%s]\n", name)
		fmt.Printf("    %s\n", strings.Join(pairs, " "))
	}
	fmt.Println()

	fmt.Println("  Run `aconv setup` to reconfigure.")
	return nil
}
