package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"tckvault/pkg/apply"
	"tckvault/pkg/core"
	"tckvault/pkg/types"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	liveFile    string
	applyNow    bool
	applyRules  []string
	applyDryRun bool
	applyReinit bool
	applyTop    string
	captureTCK  string
)

func loadLive() (*apply.MemoryDirectory, error) {
	if liveFile == "" {
		return nil, fmt.Errorf("--live is required")
	}
	f, err := os.Open(liveFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return apply.LoadDirectory(f)
}

func saveLive(dir *apply.MemoryDirectory) error {
	tmp := liveFile + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := dir.Save(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, liveFile)
}

// parseRule: component=property=value-regex=replacement
func parseRule(s string) (apply.Rule, error) {
	parts := strings.SplitN(s, "=", 4)
	if len(parts) != 4 {
		return apply.Rule{}, fmt.Errorf("invalid rule %q (want component=property=regex=replacement)", s)
	}
	return apply.NewRule(parts[0], parts[1], parts[2], parts[3])
}

var applyCmd = &cobra.Command{
	Use:   "apply <digest|alias>",
	Short: "Apply a configuration tree to a live directory snapshot",
	Long:  `Resolve @Component.key[@default] references against the live snapshot, push every property and write the snapshot back. Lifecycle hook calls are counted per component in the snapshot (applied, reinitialized).`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		ctx := context.Background()
		out := cmd.OutOrStdout()

		dir, err := loadLive()
		if err != nil {
			return err
		}
		var rules []apply.Rule
		for _, s := range applyRules {
			r, err := parseRule(s)
			if err != nil {
				return err
			}
			rules = append(rules, r)
		}

		root, err := TCK.Cache.Root(ctx, args[0])
		if err != nil {
			return err
		}

		if applyReinit && applyNow {
			return fmt.Errorf("--set-properties and --reconfigure are mutually exclusive")
		}
		opts := []apply.Option{apply.WithRules(rules...), apply.WithLifecycle(dir)}
		if applyTop != "" {
			opts = append(opts, apply.WithTopLevel(applyTop))
		}
		applier := TCK.NewApplier(dir, opts...)

		var rep *apply.Report
		var applyErr error
		if applyReinit {
			rep, applyErr = applier.Reconfigure(ctx, root)
		} else {
			rep, applyErr = applier.Configure(ctx, root, applyNow)
		}
		if rep == nil {
			return applyErr
		}
		for _, c := range rep.Components {
			switch {
			case c.Skipped:
				fmt.Fprintf(out, "⏭️  %s skipped\n", c.Name)
			case c.Err != nil:
				fmt.Fprintf(out, "❌ %s: %v\n", c.Name, c.Err)
			case len(c.Changed) == 0:
				fmt.Fprintf(out, "✔️  %s unchanged\n", c.Name)
			default:
				fmt.Fprintf(out, "✅ %s: %s\n", c.Name, strings.Join(c.Changed, ", "))
			}
		}
		if applyNow {
			fmt.Fprintf(out, "🔔 SetProperties called on %d components\n", hooked(rep))
		}
		if applyReinit && applyErr == nil {
			fmt.Fprintf(out, "🔄 %s reinitialized\n", topLevelName(applyTop))
		}
		fmt.Fprintf(out, "run %s\n", rep.RunID)

		if !applyDryRun {
			if err := saveLive(dir); err != nil {
				return fmt.Errorf("failed to save live snapshot: %w", err)
			}
		}
		return applyErr
	},
}

// hooked 统计真正触发了 SetProperties 的组件
func hooked(rep *apply.Report) int {
	n := 0
	for _, c := range rep.Components {
		if !c.Skipped && c.Err == nil {
			n++
		}
	}
	return n
}

func topLevelName(flag string) string {
	if flag != "" {
		return flag
	}
	return viper.GetString("apply.toplevel")
}

var captureCmd = &cobra.Command{
	Use:   "capture <component>...",
	Short: "Store the current configuration of live components",
	Long:  `Write each component's live properties as a leaf, group them under one top-level node and print its digest.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		ctx := context.Background()
		out := cmd.OutOrStdout()

		dir, err := loadLive()
		if err != nil {
			return err
		}
		leaves, err := TCK.NewApplier(dir).Capture(ctx, TCK.Store, args...)
		if err != nil {
			return err
		}

		children := make([]types.Digest, 0, len(leaves))
		// 组件名可能含 ':' (例如 Gaudi 的 "Seq::Hlt1")，标签留空
		for _, ld := range leaves {
			n, err := core.NewGraphNode("", ld, nil)
			if err != nil {
				return err
			}
			nd, err := TCK.Store.WriteNode(ctx, n)
			if err != nil {
				return err
			}
			children = append(children, nd)
		}
		top, err := core.NewGraphNode("", types.Invalid(), children)
		if err != nil {
			return err
		}
		root, err := TCK.Store.WriteNode(ctx, top)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "🌳 Root: %s\n", root)

		if captureTCK != "" {
			tck, err := core.ParseTCK(captureTCK)
			if err != nil {
				return err
			}
			a, err := core.NewTCKAlias(root, tck)
			if err != nil {
				return err
			}
			return publish(ctx, out, a)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{applyCmd, captureCmd} {
		c.Flags().StringVar(&liveFile, "live", "", "live directory snapshot (YAML)")
	}
	applyCmd.Flags().BoolVar(&applyNow, "set-properties", false, "trigger each component's apply hook")
	applyCmd.Flags().StringArrayVar(&applyRules, "rule", nil, "transform rule component=property=regex=replacement (repeatable)")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "do not write the snapshot back")
	applyCmd.Flags().BoolVar(&applyReinit, "reconfigure", false, "configure without hooks, then reinitialize the top-level component")
	applyCmd.Flags().StringVar(&applyTop, "toplevel", "", "top-level component for --reconfigure (default apply.toplevel)")
	captureCmd.Flags().StringVar(&captureTCK, "tck", "", "publish TCK alias for the captured root")
	rootCmd.AddCommand(applyCmd, captureCmd)
}
