package commands

import (
	"context"
	"fmt"

	"tckvault/pkg/exporter"

	"github.com/spf13/cobra"
)

var treeCmd = &cobra.Command{
	Use:   "tree <digest|alias>",
	Short: "Show the configuration tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		ctx := context.Background()
		root, err := TCK.Cache.Root(ctx, args[0])
		if err != nil {
			return err
		}
		return exporter.NewExporter(TCK.Store, TCK.Cache).PrintTree(ctx, root, cmd.OutOrStdout())
	},
}

var leavesCmd = &cobra.Command{
	Use:   "leaves <digest|alias>",
	Short: "List every leaf of the tree in traversal order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		ctx := context.Background()
		root, err := TCK.Cache.Root(ctx, args[0])
		if err != nil {
			return err
		}
		leaves, err := TCK.Cache.LeavesInTree(ctx, root)
		if err != nil {
			return err
		}
		return exporter.NewExporter(TCK.Store, TCK.Cache).PrintLeaves(ctx, leaves, cmd.OutOrStdout())
	},
}

var findCmd = &cobra.Command{
	Use:   "find <digest|alias> <component>",
	Short: "Find the first leaf named <component> in the tree",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		ctx := context.Background()
		root, err := TCK.Cache.Root(ctx, args[0])
		if err != nil {
			return err
		}
		d, err := TCK.Cache.FindInTree(ctx, root, args[1])
		if err != nil {
			return err
		}
		if !d.IsValid() {
			return fmt.Errorf("component %q not found in %s", args[1], root)
		}
		fmt.Fprintln(cmd.OutOrStdout(), d)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(treeCmd, leavesCmd, findCmd)
}
