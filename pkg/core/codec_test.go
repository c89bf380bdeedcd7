package core

import (
	"testing"

	"tckvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allFormats = []Format{FormatText, FormatJSON, FormatXML, FormatCBOR}

// 任意编码解码后必须得到同一个 Digest
func TestLeaf_RoundTrip_AllFormats(t *testing.T) {
	leaves := []*PropertyLeaf{
		sampleLeaf(t),
		mustLeaf(t, "Svc", "EmptySvc", KindService),
		mustLeaf(t, "Tool<T>", "ToolSvc.MyTool", KindTool,
			"Xml", `<a href="x">&amp;</a>`,
			"Tab", "a\tb",
			"Ref", "@Other.value@default",
		),
		mustLeaf(t, "Aud", "A", KindAuditor, "Unicode", "µs ≥ 0"),
		// 构造器允许的边界字符：tab、非 BMP 字符、U+FFFD 本身、首尾空白
		mustLeaf(t, "Edge", "E", KindUnknown,
			"Tabs", "\ta\t",
			"Astral", "🚀 \U0001F600",
			"Replacement", "\uFFFD",
			"Padded", "  x  ",
			"Del", "a\x7fb",
		),
	}

	for _, leaf := range leaves {
		for _, f := range allFormats {
			t.Run(leaf.Name()+"/"+string(f), func(t *testing.T) {
				data, err := EncodeLeaf(leaf, f)
				require.NoError(t, err)

				back, err := DecodeLeaf(data, f)
				require.NoError(t, err)

				assert.Equal(t, leaf.ID(), back.ID(), "Digest 必须在所有编码间保持一致")
				assert.Equal(t, leaf.TypeName(), back.TypeName())
				assert.Equal(t, leaf.Kind(), back.Kind())
				assert.Equal(t, leaf.Len(), back.Len())
			})
		}
	}
}

func TestNode_RoundTrip_AllFormats(t *testing.T) {
	nodes := []*GraphNode{
		mustNode(t, "top", types.Invalid(), mockDigest("a"), mockDigest("b")),
		mustNode(t, "", mockDigest("leaf")),
	}

	for _, node := range nodes {
		for _, f := range allFormats {
			t.Run(node.Label()+"/"+string(f), func(t *testing.T) {
				data, err := EncodeNode(node, f)
				require.NoError(t, err)

				back, err := DecodeNode(data, f)
				require.NoError(t, err)
				assert.Equal(t, node.ID(), back.ID())
				assert.Equal(t, node.HasLeaf(), back.HasLeaf())
			})
		}
	}
}

func TestCodec_JSONShape(t *testing.T) {
	data, err := EncodeLeaf(mustLeaf(t, "Sink", "S1", KindAlgorithm, "Rate", "10"), FormatJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "S1",
		"kind": "Algorithm",
		"type": "Sink",
		"properties": [{"key": "Rate", "value": "10"}]
	}`, string(data))
}

func TestCodec_DecodeRejects(t *testing.T) {
	_, err := DecodeLeaf([]byte(`{"name":"x","kind":"Nope","type":"t"}`), FormatJSON)
	assert.ErrorIs(t, err, ErrInvalidKind)

	_, err = DecodeLeaf([]byte(`{"name":"x","kind":"Tool","type":"t","properties":[{"key":"k","value":"a\nb"}]}`), FormatJSON)
	assert.ErrorIs(t, err, ErrInvalidValue, "换行值在任何编码下都必须被拒绝")

	_, err = DecodeNode([]byte(`<ConfigTreeNode label="x"><node>zz</node></ConfigTreeNode>`), FormatXML)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeNode([]byte{0xff}, FormatCBOR)
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	_, err = ParseFormat("yaml")
	assert.Error(t, err)
}
