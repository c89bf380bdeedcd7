package treebuilder

import (
	"context"
	"strings"
	"testing"

	"tckvault/pkg/core"
	"tckvault/pkg/resolve"
	"tckvault/pkg/storage/memory"
	"tckvault/pkg/store"
	"tckvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestYAML = `
label: top
children:
  - label: hlt1
    leaf:
      type: Filter
      name: Foo
      kind: Algorithm
      properties:
        - {key: Cut, value: "1"}
    children:
      - leaf: {type: Sink, name: S1, properties: [{key: Rate, value: "10"}]}
  - label: hlt2
    leaf: {type: Filter, name: Foo, kind: Algorithm, properties: [{key: Cut, value: "2"}]}
`

func TestBuilder_Build(t *testing.T) {
	ctx := context.Background()
	s := store.New(memory.New())

	m, err := Decode(strings.NewReader(manifestYAML))
	require.NoError(t, err)

	res, err := NewBuilder(s).Build(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Leaves)
	assert.Equal(t, 4, res.Nodes)

	top, err := s.ReadNode(ctx, res.Root)
	require.NoError(t, err)
	assert.Equal(t, "top", top.Label())
	assert.False(t, top.HasLeaf())
	require.Len(t, top.Children(), 2)

	// 遍历顺序与清单顺序一致
	c := resolve.New(s)
	foo, err := c.FindInTree(ctx, res.Root, "Foo")
	require.NoError(t, err)
	leaf, err := c.Leaf(ctx, foo)
	require.NoError(t, err)
	v, _ := leaf.Lookup("Cut")
	assert.Equal(t, "1", v)

	leaves, err := c.LeavesInTree(ctx, res.Root)
	require.NoError(t, err)
	assert.Len(t, leaves, 3)
}

func TestBuilder_Deterministic(t *testing.T) {
	ctx := context.Background()
	build := func() types.Digest {
		m, err := Decode(strings.NewReader(manifestYAML))
		require.NoError(t, err)
		res, err := NewBuilder(store.New(memory.New())).Build(ctx, m)
		require.NoError(t, err)
		return res.Root
	}
	assert.Equal(t, build(), build(), "same manifest, same digest")
}

func TestBuilder_JSONManifest(t *testing.T) {
	ctx := context.Background()
	s := store.New(memory.New())

	m, err := Decode(strings.NewReader(`{"label": "j", "leaf": {"type": "Sink", "name": "S1", "kind": "Tool"}}`))
	require.NoError(t, err)
	res, err := NewBuilder(s).Build(ctx, m)
	require.NoError(t, err)

	n, err := s.ReadNode(ctx, res.Root)
	require.NoError(t, err)
	l, err := s.ReadLeaf(ctx, n.Leaf())
	require.NoError(t, err)
	assert.Equal(t, core.KindTool, l.Kind())
}

func TestBuilder_Ref(t *testing.T) {
	ctx := context.Background()
	s := store.New(memory.New())

	sub, err := NewBuilder(s).Build(ctx, &Manifest{Label: "sub", Leaf: &LeafSpec{Type: "Sink", Name: "S1"}})
	require.NoError(t, err)
	a, err := core.NewTCKAlias(sub.Root, 7)
	require.NoError(t, err)
	_, err = s.WriteAlias(ctx, a)
	require.NoError(t, err)

	m := &Manifest{Label: "top", Children: []*Manifest{
		{Ref: "TCK/0x00000007"},
		{Ref: sub.Root.String()},
	}}
	res, err := NewBuilder(s).Build(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Nodes, "referenced subtrees are not rewritten")

	top, err := s.ReadNode(ctx, res.Root)
	require.NoError(t, err)
	assert.Equal(t, []types.Digest{sub.Root, sub.Root}, top.Children())
}

func TestBuilder_Rejects(t *testing.T) {
	ctx := context.Background()
	s := store.New(memory.New())

	tests := map[string]*Manifest{
		"label with colon": {Label: "a:b"},
		"bad kind":         {Leaf: &LeafSpec{Type: "T", Name: "N", Kind: "Robot"}},
		"newline value":    {Leaf: &LeafSpec{Type: "T", Name: "N", Properties: []PropertySpec{{Key: "k", Value: "a\nb"}}}},
		"unknown ref":      {Children: []*Manifest{{Ref: "TAG/missing"}}},
		"ref with leaf":    {Children: []*Manifest{{Ref: "TAG/x", Leaf: &LeafSpec{Type: "T", Name: "N"}}}},
		"nil child":        {Children: []*Manifest{nil}},
	}
	for name, m := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewBuilder(s).Build(ctx, m)
			assert.Error(t, err)
		})
	}

	_, err := Decode(strings.NewReader(""))
	assert.Error(t, err)
}

func TestBuilder_RefMustExist(t *testing.T) {
	ctx := context.Background()
	s := store.New(memory.New())

	sub, err := NewBuilder(s).Build(ctx, &Manifest{Label: "sub", Leaf: &LeafSpec{Type: "Sink", Name: "S1"}})
	require.NoError(t, err)
	top, err := s.ReadNode(ctx, sub.Root)
	require.NoError(t, err)

	tests := []struct {
		name    string
		ref     string
		wantErr error
	}{
		{"digest never written", types.Sum([]byte("nope")).String(), store.ErrNotFound},
		{"digest of a leaf", top.Leaf().String(), store.ErrWrongType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Manifest{Label: "top", Children: []*Manifest{{Ref: tt.ref}}}
			_, err := NewBuilder(s).Build(ctx, m)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
