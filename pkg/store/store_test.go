package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"tckvault/pkg/core"
	"tckvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphStore_LeafRoundTrip(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()

	leaf := mustLeaf(t, "Sink", "S1", "Rate", "10")
	d := mustWriteLeaf(t, s, leaf)
	assert.Equal(t, leaf.ID(), d)

	got, err := s.ReadLeaf(ctx, d)
	require.NoError(t, err)
	assert.True(t, leaf.Equal(got))

	raw, err := b.Get(ctx, d.String())
	require.NoError(t, err)
	assert.Equal(t, leaf.Bytes(), raw, "backend stores the canonical text")
}

func TestGraphStore_IdempotentWrite(t *testing.T) {
	s, b := newTestStore(t)

	leaf := mustLeaf(t, "Sink", "S1", "Rate", "10")
	d1 := mustWriteLeaf(t, s, leaf)
	d2 := mustWriteLeaf(t, s, mustLeaf(t, "Sink", "S1", "Rate", "10"))
	assert.Equal(t, d1, d2)

	n1 := mustWriteNode(t, s, "", d1)
	n2 := mustWriteNode(t, s, "", d1)
	assert.Equal(t, n1, n2)

	assert.Equal(t, 2, b.Len(), "one leaf and one node")
}

func TestGraphStore_HashCollision(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()

	leaf := mustLeaf(t, "Sink", "S1", "Rate", "10")
	// 在同一个 key 下预先放入不同的内容
	require.NoError(t, b.Put(ctx, leaf.ID().String(), []byte("something else")))

	_, err := s.WriteLeaf(ctx, leaf)
	assert.ErrorIs(t, err, ErrHashCollision)

	raw, err := b.Get(ctx, leaf.ID().String())
	require.NoError(t, err)
	assert.Equal(t, []byte("something else"), raw, "must never overwrite")
}

func TestGraphStore_ReadErrors(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()

	missing := types.Sum([]byte("missing"))
	_, err := s.ReadLeaf(ctx, missing)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.ReadNode(ctx, types.Invalid())
	assert.ErrorIs(t, err, ErrNotFound)

	garbage := types.Sum([]byte("garbage"))
	require.NoError(t, b.Put(ctx, garbage.String(), []byte("not a leaf")))
	_, err = s.ReadLeaf(ctx, garbage)
	assert.ErrorIs(t, err, ErrCorrupt)

	// 合法内容放在错误的 key 下
	leaf := mustLeaf(t, "Sink", "S1")
	wrong := types.Sum([]byte("wrong key"))
	require.NoError(t, b.Put(ctx, wrong.String(), leaf.Bytes()))
	_, err = s.ReadLeaf(ctx, wrong)
	assert.ErrorIs(t, err, ErrCorrupt)

}

func TestGraphStore_WrongType(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	// 类型不对是调用错误，不是存储损坏，也不应该打 Error 日志
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelError})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ld := mustWriteLeaf(t, s, mustLeaf(t, "Sink", "S2"))
	nd := mustWriteNode(t, s, "top", ld)

	_, err := s.ReadNode(ctx, ld)
	assert.ErrorIs(t, err, ErrWrongType)
	assert.NotErrorIs(t, err, ErrCorrupt)

	_, err = s.ReadLeaf(ctx, nd)
	assert.ErrorIs(t, err, ErrWrongType)
	assert.NotErrorIs(t, err, ErrCorrupt)

	// alias 不能指向叶子
	a, err := core.NewTCKAlias(ld, 1)
	require.NoError(t, err)
	_, err = s.WriteAlias(ctx, a)
	assert.ErrorIs(t, err, ErrWrongType)

	assert.Empty(t, logs.String())
}

func TestGraphStore_ReadObject(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ld := mustWriteLeaf(t, s, mustLeaf(t, "Sink", "S1"))
	nd := mustWriteNode(t, s, "top", ld)

	obj, err := s.ReadObject(ctx, ld)
	require.NoError(t, err)
	assert.Equal(t, core.TypeLeaf, obj.Type())

	obj, err = s.ReadObject(ctx, nd)
	require.NoError(t, err)
	assert.Equal(t, core.TypeNode, obj.Type())
	assert.Equal(t, "top", obj.(*core.GraphNode).Label())
}

func TestGraphStore_AliasPolicy(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		policy      AliasPolicy
		alias       func(n1, n2 types.Digest) (core.Alias, core.Alias)
		wantRebind  AliasWrite
		wantErr     error
		wantBinding func(n1, n2 types.Digest) types.Digest
	}{
		{
			name:   "TCK is write-once by default",
			policy: DefaultAliasPolicy(),
			alias: func(n1, n2 types.Digest) (core.Alias, core.Alias) {
				return core.Alias{Ref: n1, Name: "TCK/0x00000001"}, core.Alias{Ref: n2, Name: "TCK/0x00000001"}
			},
			wantRebind:  AliasRebound,
			wantErr:     ErrAliasRebind,
			wantBinding: func(n1, _ types.Digest) types.Digest { return n1 },
		},
		{
			name:   "TAG is rebindable",
			policy: DefaultAliasPolicy(),
			alias: func(n1, n2 types.Digest) (core.Alias, core.Alias) {
				return core.Alias{Ref: n1, Name: "TAG/nightly"}, core.Alias{Ref: n2, Name: "TAG/nightly"}
			},
			wantRebind:  AliasRebound,
			wantBinding: func(_, n2 types.Digest) types.Digest { return n2 },
		},
		{
			name:   "empty policy allows TCK rebind",
			policy: NewAliasPolicy(),
			alias: func(n1, n2 types.Digest) (core.Alias, core.Alias) {
				return core.Alias{Ref: n1, Name: "TCK/0x00000002"}, core.Alias{Ref: n2, Name: "TCK/0x00000002"}
			},
			wantRebind:  AliasRebound,
			wantBinding: func(_, n2 types.Digest) types.Digest { return n2 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t, WithAliasPolicy(tt.policy))
			ld := mustWriteLeaf(t, s, mustLeaf(t, "Sink", "S1"))
			n1 := mustWriteNode(t, s, "one", ld)
			n2 := mustWriteNode(t, s, "two", ld)
			first, second := tt.alias(n1, n2)

			w, err := s.WriteAlias(ctx, first)
			require.NoError(t, err)
			assert.Equal(t, AliasCreated, w)

			w, err = s.WriteAlias(ctx, first)
			require.NoError(t, err)
			assert.Equal(t, AliasUnchanged, w)

			w, err = s.WriteAlias(ctx, second)
			assert.Equal(t, tt.wantRebind, w)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			got, err := s.ResolveAlias(ctx, first.Name)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBinding(n1, n2), got)
		})
	}
}

func TestGraphStore_AliasRejects(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()

	ld := mustWriteLeaf(t, s, mustLeaf(t, "Sink", "S1"))
	nd := mustWriteNode(t, s, "", ld)

	_, err := s.WriteAlias(ctx, core.Alias{Ref: nd, Name: "TCK/0x1"})
	assert.ErrorIs(t, err, ErrInvalidAlias)

	_, err = s.WriteAlias(ctx, core.Alias{Ref: types.Invalid(), Name: "TAG/x"})
	assert.ErrorIs(t, err, ErrInvalidAlias)

	// 目标节点不存在
	_, err = s.WriteAlias(ctx, core.Alias{Ref: types.Sum([]byte("nope")), Name: "TAG/x"})
	assert.ErrorIs(t, err, ErrNotFound)

	names, err := b.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names, "nothing published after rejects")

	_, err = s.ReadAlias(ctx, "TAG/missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.PutAlias(ctx, "TAG/broken", "zz"))
	_, err = s.ReadAlias(ctx, "TAG/broken")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestGraphStore_ListAliases(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ld := mustWriteLeaf(t, s, mustLeaf(t, "Sink", "S1"))
	nd := mustWriteNode(t, s, "", ld)

	for _, tck := range []uint32{3, 1, 2} {
		a, err := core.NewTCKAlias(nd, tck)
		require.NoError(t, err)
		_, err = s.WriteAlias(ctx, a)
		require.NoError(t, err)
	}
	tl, err := core.NewTopLevelAlias(nd, "v1", "physics")
	require.NoError(t, err)
	_, err = s.WriteAlias(ctx, tl)
	require.NoError(t, err)

	got, err := s.ListAliases(ctx, "TCK/")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, a := range got {
		assert.Equal(t, fmt.Sprintf("TCK/0x%08x", i+1), a.Name)
		assert.Equal(t, nd, a.Ref)
	}

	all, err := s.ListAliases(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestGraphStore_Resolve(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ld := mustWriteLeaf(t, s, mustLeaf(t, "Sink", "S1"))
	nd := mustWriteNode(t, s, "", ld)
	a, err := core.NewTagAlias(nd, "current")
	require.NoError(t, err)
	_, err = s.WriteAlias(ctx, a)
	require.NoError(t, err)

	tests := []struct {
		ref     string
		want    types.Digest
		wantErr error
	}{
		{nd.String(), nd, nil},
		{"TAG/current", nd, nil},
		{"TAG/other", types.Invalid(), ErrNotFound},
		{"TCK/0x1", types.Invalid(), ErrInvalidAlias},
		{"hello", types.Invalid(), ErrInvalidReference},
		{"00000000000000000000000000000000", types.Invalid(), ErrInvalidReference},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := s.Resolve(ctx, tt.ref)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGraphStore_LeafIndexer(t *testing.T) {
	spy := &spyIndexer{}
	s, _ := newTestStore(t, WithLeafIndexer(spy))

	leaf := mustLeaf(t, "Sink", "S1")
	mustWriteLeaf(t, s, leaf)
	mustWriteLeaf(t, s, leaf)
	mustWriteLeaf(t, s, mustLeaf(t, "Sink", "S2"))

	assert.Equal(t, []string{"S1", "S2"}, spy.leaves, "only newly stored leaves are indexed")
}

func TestGraphStore_ConcurrentAliasWrites(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ld := mustWriteLeaf(t, s, mustLeaf(t, "Sink", "S1"))
	nodes := make([]types.Digest, 16)
	for i := range nodes {
		nodes[i] = mustWriteNode(t, s, fmt.Sprintf("n%d", i), ld)
	}

	var wg sync.WaitGroup
	created := make(chan struct{}, len(nodes))
	for _, n := range nodes {
		wg.Add(1)
		go func(n types.Digest) {
			defer wg.Done()
			w, err := s.WriteAlias(ctx, core.Alias{Ref: n, Name: "TAG/race"})
			assert.NoError(t, err)
			if w == AliasCreated {
				created <- struct{}{}
			}
		}(n)
	}
	wg.Wait()
	close(created)

	assert.Len(t, created, 1, "exactly one writer creates the alias")
	got, err := s.ResolveAlias(ctx, "TAG/race")
	require.NoError(t, err)
	assert.Contains(t, nodes, got)
}

func TestGraphStore_EndToEnd(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	l1 := mustLeaf(t, "Sink", "S1", "Rate", "10")
	d1 := mustWriteLeaf(t, s, l1)
	n1 := mustWriteNode(t, s, "", d1)

	a, err := core.NewTCKAlias(n1, 1)
	require.NoError(t, err)
	w, err := s.WriteAlias(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, AliasCreated, w)

	node, err := s.ReadAlias(ctx, "TCK/0x00000001")
	require.NoError(t, err)
	assert.Equal(t, n1, node.ID())
	assert.Equal(t, d1, node.Leaf())

	leaf, err := s.ReadLeaf(ctx, node.Leaf())
	require.NoError(t, err)
	v, ok := leaf.Lookup("Rate")
	assert.True(t, ok)
	assert.Equal(t, "10", v)
}
