package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/aconv/internal/cli"
	"github.com/theirongolddev/aconv/internal/store"
)

var flagHistoryLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent conversion runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&flagHistoryLimit, "limit", "l", 20, "Number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(_ *cobra.Command, _ []string) error {
	h, err := store.Open(store.DefaultPath())
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	ctx := context.Background()
	runs, err := h.RecentRuns(ctx, flagHistoryLimit)
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("  No runs recorded yet.")
		return nil
	}
	total, err := h.RunCount(ctx)
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		s := r.Stats
		rows = append(rows, []string{
			cli.FormatTime(s.StartedAt),
			r.Codec,
			r.Status(),
			cli.FormatNumber(int64(s.Encoded)),
			cli.FormatNumber(int64(s.Linked + s.Copied)),
			cli.FormatNumber(int64(s.Skipped())),
			cli.FormatDuration(s.Duration()),
			cli.TruncatePath(r.Destination, 40),
		})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:     fmt.Sprintf("Recent runs (%d of %d)", len(runs), total),
		Headers:   []string{"Started", "Codec", "Status", "Encoded", "Cloned", "Skipped", "Time", "Destination"},
		Rows:      rows,
		LeftAlign: []int{1, 2, 7},
	}))
	return nil
}
