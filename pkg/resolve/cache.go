// Package resolve 把以某个 digest 为根的 DAG 展开成节点序列和叶子序列，并永久缓存。
//
// 内容寻址保证同一个根的子树永远不变，所以缓存不需要淘汰。
// 冷缓存的填充经 singleflight 合并，每个 key 同时只有一次 backend 读取；
// 失败不缓存，调用者永远不会看到半成品。
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"tckvault/pkg/core"
	"tckvault/pkg/types"

	"golang.org/x/sync/singleflight"
)

// ErrDangling: 树中引用的 digest 无法读取
var ErrDangling = errors.New("dangling reference")

// Source 是缓存背后的对象来源，*store.GraphStore 实现了它
type Source interface {
	ReadLeaf(ctx context.Context, d types.Digest) (*core.PropertyLeaf, error)
	ReadNode(ctx context.Context, d types.Digest) (*core.GraphNode, error)
	Resolve(ctx context.Context, ref string) (types.Digest, error)
}

// tree 是一次展开的结果，写入 memo 之后只读
type tree struct {
	nodes  []types.Digest
	leaves []types.Digest
}

type findKey struct {
	root types.Digest
	name string
}

type Cache struct {
	src   Source
	group singleflight.Group

	trees  *memo[types.Digest, *tree]
	nodes  *memo[types.Digest, *core.GraphNode]
	leaves *memo[types.Digest, *core.PropertyLeaf]
	found  *memo[findKey, types.Digest]
}

func New(src Source) *Cache {
	return &Cache{
		src:    src,
		trees:  newMemo[types.Digest, *tree](),
		nodes:  newMemo[types.Digest, *core.GraphNode](),
		leaves: newMemo[types.Digest, *core.PropertyLeaf](),
		found:  newMemo[findKey, types.Digest](),
	}
}

// Root 把 digest 文本或 alias 名解析为根 digest
func (c *Cache) Root(ctx context.Context, ref string) (types.Digest, error) {
	return c.src.Resolve(ctx, ref)
}

// Node 返回解码后的节点 (缓存)
func (c *Cache) Node(ctx context.Context, d types.Digest) (*core.GraphNode, error) {
	if n, ok := c.nodes.get(d); ok {
		return n, nil
	}
	v, err, _ := c.group.Do("node:"+d.String(), func() (any, error) {
		if n, ok := c.nodes.get(d); ok {
			return n, nil
		}
		n, err := c.src.ReadNode(ctx, d)
		if err != nil {
			return nil, err
		}
		return c.nodes.put(d, n), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*core.GraphNode), nil
}

// Leaf 返回解码后的叶子 (缓存)
func (c *Cache) Leaf(ctx context.Context, d types.Digest) (*core.PropertyLeaf, error) {
	if l, ok := c.leaves.get(d); ok {
		return l, nil
	}
	v, err, _ := c.group.Do("leaf:"+d.String(), func() (any, error) {
		if l, ok := c.leaves.get(d); ok {
			return l, nil
		}
		l, err := c.src.ReadLeaf(ctx, d)
		if err != nil {
			return nil, err
		}
		return c.leaves.put(d, l), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*core.PropertyLeaf), nil
}

// NodesInTree 返回从 root 可达的全部节点：深度优先前序，子节点按存储顺序，每个节点只出现一次
func (c *Cache) NodesInTree(ctx context.Context, root types.Digest) ([]types.Digest, error) {
	t, err := c.tree(ctx, root)
	if err != nil {
		return nil, err
	}
	return slices.Clone(t.nodes), nil
}

// LeavesInTree 按 NodesInTree 的顺序返回每个节点的叶子；不同节点引用同一叶子时会重复出现
func (c *Cache) LeavesInTree(ctx context.Context, root types.Digest) ([]types.Digest, error) {
	t, err := c.tree(ctx, root)
	if err != nil {
		return nil, err
	}
	return slices.Clone(t.leaves), nil
}

// FindInTree 返回遍历顺序中第一个名字为 name 的叶子，找不到时返回 Invalid
func (c *Cache) FindInTree(ctx context.Context, root types.Digest, name string) (types.Digest, error) {
	key := findKey{root: root, name: name}
	if d, ok := c.found.get(key); ok {
		return d, nil
	}
	t, err := c.tree(ctx, root)
	if err != nil {
		return types.Invalid(), err
	}

	result := types.Invalid()
	for _, nd := range t.nodes {
		n, err := c.Node(ctx, nd)
		if err != nil {
			return types.Invalid(), err
		}
		if !n.HasLeaf() {
			continue
		}
		l, err := c.Leaf(ctx, n.Leaf())
		if err != nil {
			return types.Invalid(), err
		}
		if l.Name() == name {
			result = n.Leaf()
			break
		}
	}
	return c.found.put(key, result), nil
}

// LeafByName 返回树内 名字 -> 第一个匹配的叶子
func (c *Cache) LeafByName(ctx context.Context, root types.Digest) (map[string]types.Digest, error) {
	leaves, err := c.LeavesInTree(ctx, root)
	if err != nil {
		return nil, err
	}
	out := make(map[string]types.Digest, len(leaves))
	for _, d := range leaves {
		l, err := c.Leaf(ctx, d)
		if err != nil {
			return nil, err
		}
		if _, ok := out[l.Name()]; !ok {
			out[l.Name()] = d
		}
	}
	return out, nil
}

// Trees 返回已缓存的根数量
func (c *Cache) Trees() int { return c.trees.len() }

func (c *Cache) tree(ctx context.Context, root types.Digest) (*tree, error) {
	if t, ok := c.trees.get(root); ok {
		return t, nil
	}
	v, err, _ := c.group.Do("tree:"+root.String(), func() (any, error) {
		if t, ok := c.trees.get(root); ok {
			return t, nil
		}
		t, err := c.expand(ctx, root)
		if err != nil {
			return nil, err
		}
		return c.trees.put(root, t), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*tree), nil
}

type frame struct {
	digest types.Digest
	parent types.Digest
}

// expand 用显式栈做前序遍历。
// 已缓存的子树直接拼接：过滤掉已访问节点后，它的顺序与继续向下遍历得到的顺序相同。
func (c *Cache) expand(ctx context.Context, root types.Digest) (*tree, error) {
	rootNode, err := c.Node(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("root %s: %w", root, err)
	}

	var nodes []types.Digest
	visited := make(map[types.Digest]bool)
	visit := func(d types.Digest, n *core.GraphNode, stack []frame) []frame {
		visited[d] = true
		nodes = append(nodes, d)
		children := n.Children()
		for i := len(children) - 1; i >= 0; i-- {
			if !visited[children[i]] {
				stack = append(stack, frame{digest: children[i], parent: d})
			}
		}
		return stack
	}

	stack := visit(root, rootNode, nil)
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[f.digest] {
			continue
		}

		if sub, ok := c.trees.get(f.digest); ok {
			for _, d := range sub.nodes {
				if !visited[d] {
					visited[d] = true
					nodes = append(nodes, d)
				}
			}
			continue
		}

		n, err := c.Node(ctx, f.digest)
		if err != nil {
			return nil, c.dangling(root, f.parent, f.digest, err)
		}
		stack = visit(f.digest, n, stack)
	}

	leaves := make([]types.Digest, 0, len(nodes))
	for _, d := range nodes {
		n, err := c.Node(ctx, d)
		if err != nil {
			return nil, c.dangling(root, d, d, err)
		}
		if !n.HasLeaf() {
			continue
		}
		if _, err := c.Leaf(ctx, n.Leaf()); err != nil {
			return nil, c.dangling(root, d, n.Leaf(), err)
		}
		leaves = append(leaves, n.Leaf())
	}
	return &tree{nodes: nodes, leaves: leaves}, nil
}

func (c *Cache) dangling(root, parent, d types.Digest, cause error) error {
	slog.Error("configuration tree references an unreadable object",
		"root", root.String(), "parent", parent.String(), "digest", d.String(), "error", cause)
	return fmt.Errorf("%w: %s (from %s): %w", ErrDangling, d, parent, cause)
}
