package core

import (
	"fmt"

	"tckvault/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// CBOR 是一种紧凑的归档编码 (例如 Redis/S3 导出)，不参与 Digest 计算。
// 解码后必须得到与规范化文本完全相同的对象。

var encOptions = cbor.EncOptions{
	// 强制 Map Key 排序，同一对象只有一种字节表示
	Sort: cbor.SortCanonical,
	// 禁止不定长编码
	IndefLength: cbor.IndefLengthForbidden,
}

var em, _ = encOptions.EncMode()

var decOptions = cbor.DecOptions{
	// 限制容器规模，防止恶意构造的巨大头部耗尽内存
	MaxArrayElements: 100000,
	MaxMapPairs:      1000,
	MaxNestedLevels:  16,

	IndefLength: cbor.IndefLengthForbidden,
	DupMapKey:   cbor.DupMapKeyEnforcedAPF,
}

var dm, _ = decOptions.DecMode()

type leafCBOR struct {
	Name  string      `cbor:"n"`
	Kind  string      `cbor:"k"`
	Type  string      `cbor:"t"`
	Props [][2]string `cbor:"p"`
}

type nodeCBOR struct {
	Label string   `cbor:"l"`
	Leaf  []byte   `cbor:"f"` // 空表示 Invalid
	Nodes [][]byte `cbor:"c"`
}

func encodeLeafCBOR(l *PropertyLeaf) ([]byte, error) {
	v := leafCBOR{Name: l.name, Kind: l.kind.String(), Type: l.typeName, Props: make([][2]string, len(l.props))}
	for i, p := range l.props {
		v.Props[i] = [2]string{p.Key, p.Value}
	}
	data, err := em.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal leaf: %w", err)
	}
	return data, nil
}

func decodeLeafCBOR(data []byte) (*PropertyLeaf, error) {
	var v leafCBOR
	if err := dm.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	kind, err := ParseKind(v.Kind)
	if err != nil {
		return nil, err
	}
	props := make([]Property, len(v.Props))
	for i, p := range v.Props {
		props[i] = Property{Key: p[0], Value: p[1]}
	}
	return NewPropertyLeaf(v.Type, v.Name, kind, props)
}

func encodeNodeCBOR(n *GraphNode) ([]byte, error) {
	v := nodeCBOR{Label: n.label, Nodes: make([][]byte, len(n.children))}
	if n.leaf.IsValid() {
		v.Leaf = n.leaf[:]
	}
	for i, c := range n.children {
		v.Nodes[i] = c[:]
	}
	data, err := em.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal node: %w", err)
	}
	return data, nil
}

func decodeNodeCBOR(data []byte) (*GraphNode, error) {
	var v nodeCBOR
	if err := dm.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	leaf, err := digestFromBytes(v.Leaf, true)
	if err != nil {
		return nil, err
	}
	children := make([]types.Digest, len(v.Nodes))
	for i, b := range v.Nodes {
		if children[i], err = digestFromBytes(b, false); err != nil {
			return nil, err
		}
	}
	return NewGraphNode(v.Label, leaf, children)
}

func digestFromBytes(b []byte, allowEmpty bool) (types.Digest, error) {
	var d types.Digest
	if len(b) == 0 && allowEmpty {
		return d, nil
	}
	if len(b) != types.DigestSize {
		return d, fmt.Errorf("%w: digest must be %d bytes, got %d", ErrMalformed, types.DigestSize, len(b))
	}
	copy(d[:], b)
	return d, nil
}
