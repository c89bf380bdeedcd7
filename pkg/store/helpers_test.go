package store

import (
	"context"
	"sync"
	"testing"

	"tckvault/pkg/core"
	"tckvault/pkg/storage/memory"
	"tckvault/pkg/types"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) (*GraphStore, *memory.Backend) {
	t.Helper()
	b := memory.New()
	return New(b, opts...), b
}

func mustLeaf(t *testing.T, typeName, name string, kv ...string) *core.PropertyLeaf {
	t.Helper()
	var props []core.Property
	for i := 0; i+1 < len(kv); i += 2 {
		props = append(props, core.Property{Key: kv[i], Value: kv[i+1]})
	}
	leaf, err := core.NewPropertyLeaf(typeName, name, core.KindAlgorithm, props)
	require.NoError(t, err)
	return leaf
}

func mustWriteLeaf(t *testing.T, s *GraphStore, leaf *core.PropertyLeaf) types.Digest {
	t.Helper()
	d, err := s.WriteLeaf(context.Background(), leaf)
	require.NoError(t, err)
	return d
}

func mustWriteNode(t *testing.T, s *GraphStore, label string, leaf types.Digest, children ...types.Digest) types.Digest {
	t.Helper()
	n, err := core.NewGraphNode(label, leaf, children)
	require.NoError(t, err)
	d, err := s.WriteNode(context.Background(), n)
	require.NoError(t, err)
	return d
}

// spyIndexer 记录被索引的叶子
type spyIndexer struct {
	mu     sync.Mutex
	leaves []string
}

func (s *spyIndexer) IndexLeaf(_ context.Context, leaf *core.PropertyLeaf) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves = append(s.leaves, leaf.Name())
	return nil
}
