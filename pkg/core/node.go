package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"tckvault/pkg/types"
)

var ErrInvalidLabel = errors.New("invalid node label")

// GraphNode 是 DAG 中的一个不可变节点
// leaf 为 Invalid 时表示纯分组节点 (通常是顶层节点)
type GraphNode struct {
	label    string
	leaf     types.Digest
	children []types.Digest

	once     sync.Once
	rawBytes []byte
	digest   types.Digest
}

// NewGraphNode 创建一个新的节点
// children 的顺序参与 Digest 计算
func NewGraphNode(label string, leaf types.Digest, children []types.Digest) (*GraphNode, error) {
	if strings.ContainsRune(label, ':') {
		return nil, fmt.Errorf("%w: %q must not contain ':'", ErrInvalidLabel, label)
	}
	if reason := checkText(label); reason != "" {
		return nil, fmt.Errorf("%w: %q %s", ErrInvalidLabel, label, reason)
	}
	for i, c := range children {
		if !c.IsValid() {
			return nil, fmt.Errorf("invalid child digest at position %d", i)
		}
	}
	return &GraphNode{
		label:    label,
		leaf:     leaf,
		children: slices.Clone(children),
	}, nil
}

// MustNewGraphNode 仅用于测试或常量
func MustNewGraphNode(label string, leaf types.Digest, children ...types.Digest) *GraphNode {
	n, err := NewGraphNode(label, leaf, children)
	if err != nil {
		panic(err)
	}
	return n
}

func (n *GraphNode) Type() ObjectType { return TypeNode }

func (n *GraphNode) ID() types.Digest {
	n.seal()
	return n.digest
}

func (n *GraphNode) Bytes() []byte {
	n.seal()
	return n.rawBytes
}

func (n *GraphNode) seal() {
	n.once.Do(func() {
		n.rawBytes = encodeNodeText(n)
		n.digest = types.Sum(n.rawBytes)
	})
}

func (n *GraphNode) Label() string            { return n.label }
func (n *GraphNode) Leaf() types.Digest       { return n.leaf }
func (n *GraphNode) HasLeaf() bool            { return n.leaf.IsValid() }
func (n *GraphNode) Children() []types.Digest { return slices.Clone(n.children) }

// EachChild 按存储顺序遍历子节点，不复制切片
func (n *GraphNode) EachChild(fn func(types.Digest) bool) {
	for _, c := range n.children {
		if !fn(c) {
			return
		}
	}
}
