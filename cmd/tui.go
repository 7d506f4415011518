package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/aconv/internal/model"
	"github.com/theirongolddev/aconv/internal/pipeline"
	"github.com/theirongolddev/aconv/internal/pool"
	"github.com/theirongolddev/aconv/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui SRC [DEST]",
	Short: "Convert with the full-screen progress view",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	if !isTerminal(os.Stdout) {
		return errors.New("tui needs a terminal")
	}
	flagTUI = true
	return runConvert(cmd, args)
}

func runTUIView(ctx context.Context, s *session, opts pipeline.Options) (model.RunStats, error) {
	// Force TrueColor so card backgrounds render even when detection falls
	// back to the Ascii profile.
	lipgloss.SetColorProfile(termenv.TrueColor)

	info := tui.Info{Source: s.src, Destination: s.dest, Codec: s.codec.Name()}
	return tui.Run(ctx, info, func(ctx context.Context, obs pool.Observer) (model.RunStats, error) {
		opts.Observer = obs
		return pipeline.Run(ctx, opts)
	})
}
