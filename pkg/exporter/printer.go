package exporter

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"tckvault/pkg/core"
	"tckvault/pkg/meta"
	"tckvault/pkg/types"
)

func shortDigest(d types.Digest) string {
	return d.String()[:8]
}

// PrintAliases 输出 alias 列表 (像 git show-ref)
func PrintAliases(aliases []core.Alias, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "DIGEST\tALIAS\n")
	for _, a := range aliases {
		fmt.Fprintf(tw, "%s\t%s\n", a.Ref, a.Name)
	}
	return tw.Flush()
}

// PrintLeaves 按顺序输出叶子的摘要
func (e *Exporter) PrintLeaves(ctx context.Context, leaves []types.Digest, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "HASH\tKIND\tTYPE\tNAME\tPROPS\n")
	for _, d := range leaves {
		l, err := e.graph.Leaf(ctx, d)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", shortDigest(d), l.Kind(), l.TypeName(), l.Name(), l.Len())
	}
	return tw.Flush()
}

// PrintIndexedLeaves 输出 SQL 叶子索引的查询结果
func PrintIndexedLeaves(rows []meta.LeafIndex, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "DIGEST\tKIND\tTYPE\tNAME\tINDEXED\n")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Digest, r.Kind, r.TypeName, r.Name, r.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
