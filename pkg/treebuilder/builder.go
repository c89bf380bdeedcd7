// Package treebuilder 把清单转换成 GraphNode DAG 并写入存储。
package treebuilder

import (
	"context"
	"fmt"

	"tckvault/pkg/core"
	"tckvault/pkg/types"
)

// Store 是 Builder 需要的写入能力，*store.GraphStore 实现了它
type Store interface {
	WriteLeaf(ctx context.Context, leaf *core.PropertyLeaf) (types.Digest, error)
	WriteNode(ctx context.Context, node *core.GraphNode) (types.Digest, error)
	ReadNode(ctx context.Context, d types.Digest) (*core.GraphNode, error)
	Resolve(ctx context.Context, ref string) (types.Digest, error)
}

// Result 是一次构建的统计
type Result struct {
	Root   types.Digest
	Leaves int
	Nodes  int
}

// Builder 负责将清单转换为配置 DAG
type Builder struct {
	store Store
}

func NewBuilder(store Store) *Builder {
	return &Builder{store: store}
}

// Build 自底向上写入：先叶子，再子节点，最后是节点本身。子节点保持清单中的顺序。
func (b *Builder) Build(ctx context.Context, m *Manifest) (Result, error) {
	var res Result
	root, err := b.writeNode(ctx, m, "root", &res)
	if err != nil {
		return Result{}, err
	}
	res.Root = root
	return res, nil
}

func (b *Builder) writeNode(ctx context.Context, m *Manifest, path string, res *Result) (types.Digest, error) {
	if err := m.validate(path); err != nil {
		return types.Invalid(), err
	}

	// 引用已有的子树，不重写；被引用的节点必须已经存在
	if m.Ref != "" {
		d, err := b.store.Resolve(ctx, m.Ref)
		if err != nil {
			return types.Invalid(), fmt.Errorf("%s: %w", path, err)
		}
		if _, err := b.store.ReadNode(ctx, d); err != nil {
			return types.Invalid(), fmt.Errorf("%s: ref %s: %w", path, m.Ref, err)
		}
		return d, nil
	}

	leaf := types.Invalid()
	if m.Leaf != nil {
		l, err := m.Leaf.build()
		if err != nil {
			return types.Invalid(), fmt.Errorf("%s: %w", path, err)
		}
		if leaf, err = b.store.WriteLeaf(ctx, l); err != nil {
			return types.Invalid(), fmt.Errorf("%s: %w", path, err)
		}
		res.Leaves++
	}

	children := make([]types.Digest, 0, len(m.Children))
	for i, child := range m.Children {
		d, err := b.writeNode(ctx, child, fmt.Sprintf("%s.children[%d]", path, i), res)
		if err != nil {
			return types.Invalid(), err
		}
		children = append(children, d)
	}

	node, err := core.NewGraphNode(m.Label, leaf, children)
	if err != nil {
		return types.Invalid(), fmt.Errorf("%s: %w", path, err)
	}
	d, err := b.store.WriteNode(ctx, node)
	if err != nil {
		return types.Invalid(), fmt.Errorf("%s: %w", path, err)
	}
	res.Nodes++
	return d, nil
}

func (s *LeafSpec) build() (*core.PropertyLeaf, error) {
	kind := core.KindUnknown
	if s.Kind != "" {
		k, err := core.ParseKind(s.Kind)
		if err != nil {
			return nil, err
		}
		kind = k
	}
	props := make([]core.Property, 0, len(s.Properties))
	for _, p := range s.Properties {
		props = append(props, core.Property{Key: p.Key, Value: p.Value})
	}
	return core.NewPropertyLeaf(s.Type, s.Name, kind, props)
}
