package core

import (
	"testing"

	"tckvault/pkg/types"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 辅助工具
// -----------------------------------------------------------------------------

// mockDigest 生成一个合法的 Digest，用于填充子节点引用
func mockDigest(input string) types.Digest {
	return types.Sum([]byte(input))
}

// mustLeaf 创建叶子，如果失败直接终止测试
func mustLeaf(t *testing.T, typeName, name string, kind Kind, kv ...string) *PropertyLeaf {
	t.Helper()
	require.Zero(t, len(kv)%2, "kv must be key/value pairs")
	props := make([]Property, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		props = append(props, Property{Key: kv[i], Value: kv[i+1]})
	}
	l, err := NewPropertyLeaf(typeName, name, kind, props)
	require.NoError(t, err)
	return l
}

func mustNode(t *testing.T, label string, leaf types.Digest, children ...types.Digest) *GraphNode {
	t.Helper()
	n, err := NewGraphNode(label, leaf, children)
	require.NoError(t, err)
	return n
}

// sampleLeaf 与 testdata/leaf_canonical.golden 对应
func sampleLeaf(t *testing.T) *PropertyLeaf {
	t.Helper()
	return mustLeaf(t, "Sink", "S1", KindAlgorithm, "Rate", "10", "OutputLevel", "3", "Rate", "20")
}
