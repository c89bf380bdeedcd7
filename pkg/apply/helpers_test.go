package apply

import (
	"context"
	"sync"
	"testing"

	"tckvault/pkg/core"
	"tckvault/pkg/resolve"
	"tckvault/pkg/storage/memory"
	"tckvault/pkg/store"
	"tckvault/pkg/types"

	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *store.GraphStore
	cache *resolve.Cache
	dir   *MemoryDirectory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.New(memory.New())
	return &fixture{store: s, cache: resolve.New(s), dir: NewMemoryDirectory()}
}

func (f *fixture) applier(opts ...Option) *Applier {
	return New(f.cache, f.dir, opts...)
}

func props(kv ...string) []core.Property {
	var out []core.Property
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, core.Property{Key: kv[i], Value: kv[i+1]})
	}
	return out
}

// tree 写入若干叶子 (每个挂在自己的节点下)，返回顶层节点
func (f *fixture) tree(t *testing.T, leaves ...*core.PropertyLeaf) types.Digest {
	t.Helper()
	ctx := context.Background()
	var children []types.Digest
	for _, l := range leaves {
		ld, err := f.store.WriteLeaf(ctx, l)
		require.NoError(t, err)
		n, err := core.NewGraphNode("", ld, nil)
		require.NoError(t, err)
		nd, err := f.store.WriteNode(ctx, n)
		require.NoError(t, err)
		children = append(children, nd)
	}
	top, err := core.NewGraphNode("top", types.Invalid(), children)
	require.NoError(t, err)
	d, err := f.store.WriteNode(ctx, top)
	require.NoError(t, err)
	return d
}

func mustLeaf(t *testing.T, name string, kv ...string) *core.PropertyLeaf {
	t.Helper()
	l, err := core.NewPropertyLeaf("Alg", name, core.KindAlgorithm, props(kv...))
	require.NoError(t, err)
	return l
}

func mustGet(t *testing.T, d Directory, component, key string) string {
	t.Helper()
	v, ok := d.Get(component, key)
	require.True(t, ok, "%s.%s is unset", component, key)
	return v
}

// recorder 记录 Lifecycle 调用
type recorder struct {
	mu     sync.Mutex
	set    []string
	reinit []string
	err    error
}

func (r *recorder) SetProperties(_ context.Context, component string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.set = append(r.set, component)
	return r.err
}

func (r *recorder) Reinitialize(_ context.Context, component string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reinit = append(r.reinit, component)
	return nil
}
