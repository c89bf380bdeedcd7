package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"tckvault/pkg/core"
	"tckvault/pkg/exporter"
	"tckvault/pkg/store"

	"github.com/spf13/cobra"
)

// publish 写入 alias 并报告结果；只写一次的 alias 被拒绝时返回错误
func publish(ctx context.Context, out io.Writer, a core.Alias) error {
	w, err := TCK.Store.WriteAlias(ctx, a)
	if errors.Is(err, store.ErrAliasRebind) {
		fmt.Fprintf(out, "⛔ %s is write-once and already bound\n", a.Name)
		return err
	}
	if err != nil {
		return err
	}
	switch w {
	case store.AliasCreated:
		fmt.Fprintf(out, "🏷️  %s -> %s\n", a.Name, a.Ref)
	case store.AliasUnchanged:
		fmt.Fprintf(out, "✔️  %s already points at %s\n", a.Name, a.Ref)
	case store.AliasRebound:
		fmt.Fprintf(out, "🔁 %s rebound to %s\n", a.Name, a.Ref)
	}
	return nil
}

var aliasCmd = &cobra.Command{
	Use:   "alias",
	Short: "Publish an alias for a configuration node",
}

var aliasTCKCmd = &cobra.Command{
	Use:   "tck <digest|alias> <key>",
	Short: "Publish TCK/0xHHHHHHHH",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		ctx := context.Background()
		ref, err := TCK.Store.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		tck, err := core.ParseTCK(args[1])
		if err != nil {
			return err
		}
		a, err := core.NewTCKAlias(ref, tck)
		if err != nil {
			return err
		}
		return publish(ctx, cmd.OutOrStdout(), a)
	},
}

var aliasTopLevelCmd = &cobra.Command{
	Use:   "toplevel <digest|alias> <release> <runtype>",
	Short: "Publish TOPLEVEL/<release>/<runtype>/<digest>",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		ctx := context.Background()
		ref, err := TCK.Store.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		a, err := core.NewTopLevelAlias(ref, args[1], args[2])
		if err != nil {
			return err
		}
		return publish(ctx, cmd.OutOrStdout(), a)
	},
}

var aliasTagCmd = &cobra.Command{
	Use:   "tag <digest|alias> <tag>",
	Short: "Publish TAG/<tag>",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		ctx := context.Background()
		ref, err := TCK.Store.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		a, err := core.NewTagAlias(ref, args[1])
		if err != nil {
			return err
		}
		return publish(ctx, cmd.OutOrStdout(), a)
	},
}

var aliasesCmd = &cobra.Command{
	Use:   "aliases [prefix]",
	Short: "List aliases",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		aliases, err := TCK.Store.ListAliases(context.Background(), prefix)
		if err != nil {
			return err
		}
		if len(aliases) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no aliases")
			return nil
		}
		return exporter.PrintAliases(aliases, cmd.OutOrStdout())
	},
}

func init() {
	aliasCmd.AddCommand(aliasTCKCmd, aliasTopLevelCmd, aliasTagCmd)
	rootCmd.AddCommand(aliasCmd, aliasesCmd)
}
