package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/aconv/internal/cli"
	"github.com/theirongolddev/aconv/internal/codec"
)

var codecsCmd = &cobra.Command{
	Use:   "codecs [NAME]",
	Short: "List codecs and their parameters",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCodecs,
}

func init() {
	rootCmd.AddCommand(codecsCmd)
}

func runCodecs(_ *cobra.Command, args []string) error {
	names := codec.Names()
	if len(args) == 1 {
		c, err := codec.Lookup(args[0])
		if err != nil {
			return err
		}
		names = []string{c.Name()}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	for _, name := range names {
		c, _ := codec.Lookup(name)
		schema := c.Schema()
		_, params, err := codec.Resolve(name, cfg.CodecDefaults(name), nil)
		if err != nil {
			return err
		}

		rows := make([][]string, 0, len(schema.Properties))
		for _, p := range schema.Properties {
			current := "auto"
			if v, ok := params.Get(p.Name); ok {
				current = fmt.Sprint(v)
			}
			rows = append(rows, []string{p.Name, p.Describe(), p.DefaultString(), current, p.Help})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:     fmt.Sprintf("%s (.%s, schema %s)", name, c.Extension(params), schema.ID()),
			Headers:   []string{"Parameter", "Values", "Default", "Configured", "Description"},
			Rows:      rows,
			LeftAlign: []int{1, 2, 3, 4},
		}))
		fmt.Println()
	}
	fmt.Println("  Set parameters with --set name=value or in [codecs.<name>] of the config file.")
	return nil
}
