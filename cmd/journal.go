package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/aconv/internal/cli"
	"github.com/theirongolddev/aconv/internal/journal"
)

var flagJournalFilter string

var journalCmd = &cobra.Command{
	Use:   "journal DEST",
	Short: "List the files recorded as finished in a destination",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournal,
}

func init() {
	journalCmd.Flags().StringVar(&flagJournalFilter, "filter", "", "Only paths containing this text")
	rootCmd.AddCommand(journalCmd)
}

func runJournal(_ *cobra.Command, args []string) error {
	entries, malformed, err := journal.Read(args[0])
	if err != nil {
		return err
	}
	if flagJournalFilter != "" {
		entries = slices.DeleteFunc(entries, func(e journal.Entry) bool {
			return !strings.Contains(e.Path, flagJournalFilter)
		})
	}

	var encoded, cloned int
	fingerprints := make(map[string]int)
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		kind, fp := "clone", "any"
		if !e.Independent() {
			kind, fp = "encode", e.Fingerprint.String()
			encoded++
			fingerprints[fp]++
		} else {
			cloned++
		}
		rows = append(rows, []string{e.Path, kind, fp})
	}

	if !flagQuiet {
		fmt.Print(cli.RenderTable(cli.Table{
			Title:     "Journal " + args[0],
			Headers:   []string{"Path", "Kind", "Parameters"},
			Rows:      rows,
			LeftAlign: []int{1, 2},
		}))
	}
	fmt.Printf("  %s encoded, %s cloned", cli.FormatNumber(int64(encoded)), cli.FormatNumber(int64(cloned)))
	if len(fingerprints) > 1 {
		fmt.Printf(", %d parameter sets", len(fingerprints))
	}
	if malformed > 0 {
		fmt.Printf(", %d malformed lines", malformed)
	}
	fmt.Println()
	return nil
}
