package resolve

import (
	"context"
	"sync"
	"testing"

	"tckvault/pkg/core"
	"tckvault/pkg/storage/memory"
	"tckvault/pkg/store"
	"tckvault/pkg/types"

	"github.com/stretchr/testify/require"
)

// countingSource 统计每个 digest 被读取的次数
type countingSource struct {
	*store.GraphStore

	mu    sync.Mutex
	reads map[types.Digest]int
}

func newCountingSource() *countingSource {
	return &countingSource{
		GraphStore: store.New(memory.New()),
		reads:      make(map[types.Digest]int),
	}
}

func (s *countingSource) count(d types.Digest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads[d]++
}

func (s *countingSource) readsOf(d types.Digest) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[d]
}

func (s *countingSource) ReadNode(ctx context.Context, d types.Digest) (*core.GraphNode, error) {
	s.count(d)
	return s.GraphStore.ReadNode(ctx, d)
}

func (s *countingSource) ReadLeaf(ctx context.Context, d types.Digest) (*core.PropertyLeaf, error) {
	s.count(d)
	return s.GraphStore.ReadLeaf(ctx, d)
}

func mustLeaf(t testing.TB, src *countingSource, typeName, name string, kv ...string) types.Digest {
	t.Helper()
	var props []core.Property
	for i := 0; i+1 < len(kv); i += 2 {
		props = append(props, core.Property{Key: kv[i], Value: kv[i+1]})
	}
	leaf, err := core.NewPropertyLeaf(typeName, name, core.KindAlgorithm, props)
	require.NoError(t, err)
	d, err := src.WriteLeaf(context.Background(), leaf)
	require.NoError(t, err)
	return d
}

func mustNode(t testing.TB, src *countingSource, label string, leaf types.Digest, children ...types.Digest) types.Digest {
	t.Helper()
	n, err := core.NewGraphNode(label, leaf, children)
	require.NoError(t, err)
	d, err := src.WriteNode(context.Background(), n)
	require.NoError(t, err)
	return d
}

// diamond 构建下面这棵树，两个 Foo 叶子分别挂在 A 和 D 上：
//
//	top -> [A, B]
//	A   -> [C]
//	B   -> [C, D]
type diamond struct {
	top, a, b, c, d         types.Digest
	fooA, fooD, shared, bar types.Digest
}

func buildDiamond(t *testing.T, src *countingSource) diamond {
	t.Helper()
	var g diamond
	g.fooA = mustLeaf(t, src, "Filter", "Foo", "Cut", "1")
	g.fooD = mustLeaf(t, src, "Filter", "Foo", "Cut", "2")
	g.shared = mustLeaf(t, src, "Service", "Shared")
	g.bar = mustLeaf(t, src, "Sink", "Bar")

	g.c = mustNode(t, src, "C", g.shared)
	g.d = mustNode(t, src, "D", g.fooD)
	g.a = mustNode(t, src, "A", g.fooA, g.c)
	g.b = mustNode(t, src, "B", g.shared, g.c, g.d)
	g.top = mustNode(t, src, "top", types.Invalid(), g.a, g.b)
	return g
}
