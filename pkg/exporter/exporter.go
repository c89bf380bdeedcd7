package exporter

import (
	"context"
	"fmt"
	"io"

	"tckvault/pkg/core"
	"tckvault/pkg/types"
)

// Objects 按 digest 读取任意对象，*store.GraphStore 实现了它
type Objects interface {
	ReadObject(ctx context.Context, d types.Digest) (core.Object, error)
}

// Graph 提供解码后的节点和叶子，*resolve.Cache 实现了它
type Graph interface {
	Node(ctx context.Context, d types.Digest) (*core.GraphNode, error)
	Leaf(ctx context.Context, d types.Digest) (*core.PropertyLeaf, error)
}

type Exporter struct {
	objects Objects
	graph   Graph
}

func NewExporter(objects Objects, graph Graph) *Exporter {
	return &Exporter{objects: objects, graph: graph}
}

// PrintObject 以指定格式输出一个对象；text 就是规范化文本本身
func (e *Exporter) PrintObject(ctx context.Context, d types.Digest, f core.Format, w io.Writer) error {
	obj, err := e.objects.ReadObject(ctx, d)
	if err != nil {
		return err
	}

	var data []byte
	switch o := obj.(type) {
	case *core.PropertyLeaf:
		data, err = core.EncodeLeaf(o, f)
	case *core.GraphNode:
		data, err = core.EncodeNode(o, f)
	default:
		return fmt.Errorf("unknown object type: %s", obj.Type())
	}
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return err
	}
	// 文本格式自带换行，JSON/XML 补一个
	if f == core.FormatJSON || f == core.FormatXML {
		_, err = io.WriteString(w, "\n")
	}
	return err
}

// PrintTree 按遍历顺序缩进输出整棵树，已经展开过的节点标记 '*' 且不再展开
func (e *Exporter) PrintTree(ctx context.Context, root types.Digest, w io.Writer) error {
	seen := make(map[types.Digest]bool)
	return e.printNode(ctx, root, 0, seen, w)
}

func (e *Exporter) printNode(ctx context.Context, d types.Digest, depth int, seen map[types.Digest]bool, w io.Writer) error {
	n, err := e.graph.Node(ctx, d)
	if err != nil {
		return err
	}

	line := shortDigest(d)
	if n.Label() != "" {
		line += " [" + n.Label() + "]"
	}
	if n.HasLeaf() {
		l, err := e.graph.Leaf(ctx, n.Leaf())
		if err != nil {
			return err
		}
		line += fmt.Sprintf(" %s/%s (%s, %d props)", l.TypeName(), l.Name(), l.Kind(), l.Len())
	}
	if seen[d] {
		line += " *"
	}
	fmt.Fprintf(w, "%*s%s\n", depth*2, "", line)

	if seen[d] {
		return nil
	}
	seen[d] = true
	for _, child := range n.Children() {
		if err := e.printNode(ctx, child, depth+1, seen, w); err != nil {
			return err
		}
	}
	return nil
}
