package commands

import (
	"context"
	"fmt"

	"tckvault/pkg/core"
	"tckvault/pkg/exporter"

	"github.com/spf13/cobra"
)

var catFormat string

var catCmd = &cobra.Command{
	Use:   "cat <digest|alias>",
	Short: "Show an object",
	Long:  `Print a leaf or node in its canonical text form, or as json, xml or cbor.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		f, err := core.ParseFormat(catFormat)
		if err != nil {
			return err
		}
		ctx := context.Background()
		d, err := TCK.Store.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		exp := exporter.NewExporter(TCK.Store, TCK.Cache)
		if err := exp.PrintObject(ctx, d, f, cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("cat failed: %w", err)
		}
		return nil
	},
}

func init() {
	catCmd.Flags().StringVar(&catFormat, "format", "text", "text|json|xml|cbor")
	rootCmd.AddCommand(catCmd)
}
