package commands

import (
	"context"
	"fmt"

	"tckvault/pkg/exporter"

	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <component>",
	Short: "Find every stored leaf of a component (sql storage only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		if TCK.Index == nil {
			return fmt.Errorf("search needs storage.type=sql")
		}
		rows, err := TCK.Index.FindLeaves(context.Background(), args[0], searchLimit)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "no leaves named %q\n", args[0])
			return nil
		}
		return exporter.PrintIndexedLeaves(rows, cmd.OutOrStdout())
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "maximum rows")
	rootCmd.AddCommand(searchCmd)
}
