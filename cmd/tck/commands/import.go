package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"tckvault/pkg/core"
	"tckvault/pkg/treebuilder"

	"github.com/spf13/cobra"
)

var (
	importTCK string
	importTag string
)

var importCmd = &cobra.Command{
	Use:   "import <manifest>",
	Short: "Build a configuration tree from a YAML/JSON manifest",
	Long:  `Write every leaf and node of the manifest bottom-up and print the root digest. Optionally publish a TCK or TAG alias for the root.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		ctx := context.Background()
		out := cmd.OutOrStdout()
		start := time.Now()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		m, err := treebuilder.Decode(f)
		if err != nil {
			return err
		}

		fmt.Fprint(out, "🔨 Building tree... ")
		res, err := treebuilder.NewBuilder(TCK.Store).Build(ctx, m)
		if err != nil {
			return fmt.Errorf("failed to build tree: %w", err)
		}
		fmt.Fprintf(out, "Done (%d leaves, %d nodes in %s)\n", res.Leaves, res.Nodes, time.Since(start).Round(time.Millisecond))
		fmt.Fprintf(out, "🌳 Root: %s\n", res.Root)

		if importTCK != "" {
			tck, err := core.ParseTCK(importTCK)
			if err != nil {
				return err
			}
			a, err := core.NewTCKAlias(res.Root, tck)
			if err != nil {
				return err
			}
			if err := publish(ctx, out, a); err != nil {
				return err
			}
		}
		if importTag != "" {
			a, err := core.NewTagAlias(res.Root, importTag)
			if err != nil {
				return err
			}
			if err := publish(ctx, out, a); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importTCK, "tck", "", "publish TCK alias (0x... or decimal)")
	importCmd.Flags().StringVar(&importTag, "tag", "", "publish TAG alias")
	rootCmd.AddCommand(importCmd)
}
