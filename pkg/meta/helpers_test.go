package meta

import (
	"context"
	"testing"

	"tckvault/pkg/core"
	"tckvault/pkg/types"

	"github.com/stretchr/testify/require"
)

// mockDigest 生成合法的测试用 Digest 文本
func mockDigest(input string) string {
	return types.Sum([]byte(input)).String()
}

// mustLeaf 创建 PropertyLeaf，kv 是交替的 key/value
func mustLeaf(t *testing.T, typeName, name string, kv ...string) *core.PropertyLeaf {
	t.Helper()
	require.Zero(t, len(kv)%2, "kv must be pairs")
	var props []core.Property
	for i := 0; i < len(kv); i += 2 {
		props = append(props, core.Property{Key: kv[i], Value: kv[i+1]})
	}
	leaf, err := core.NewPropertyLeaf(typeName, name, core.KindAlgorithm, props)
	require.NoError(t, err)
	return leaf
}

// mustIndexLeaf 强制索引叶子，失败则终止
func mustIndexLeaf(t *testing.T, repo *Repository, leaf *core.PropertyLeaf, msgAndArgs ...any) {
	t.Helper()
	err := repo.IndexLeaf(context.Background(), leaf)
	require.NoError(t, err, msgAndArgs...)
}

// mustUpdateAlias 强制 CAS 更新，适用于预期成功的场景
func mustUpdateAlias(t *testing.T, repo *Repository, name, digest string, oldVersion int64, msgAndArgs ...any) {
	t.Helper()
	err := repo.UpdateAlias(context.Background(), name, digest, oldVersion)
	require.NoError(t, err, msgAndArgs...)
}
