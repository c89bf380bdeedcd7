package core

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"tckvault/pkg/types"
)

// Format 是对象的外部编码
// FormatText 即规范化文本；其余编码只是同一数据的另一种表示
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
	FormatCBOR Format = "cbor"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatXML, FormatCBOR:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

// --- JSON ---

type propertyJSON struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type leafJSON struct {
	Name       string         `json:"name"`
	Kind       string         `json:"kind"`
	Type       string         `json:"type"`
	Properties []propertyJSON `json:"properties"`
}

type nodeJSON struct {
	Label string   `json:"label"`
	Leaf  string   `json:"leaf,omitempty"` // 空表示 Invalid
	Nodes []string `json:"nodes"`
}

// --- XML ---

type propertyXML struct {
	Key   string `xml:"key,attr"`
	Value string `xml:"value,attr"`
}

type leafXML struct {
	XMLName    xml.Name      `xml:"PropertyConfig"`
	Name       string        `xml:"name,attr"`
	Kind       string        `xml:"kind,attr"`
	Type       string        `xml:"type,attr"`
	Properties []propertyXML `xml:"property"`
}

type nodeXML struct {
	XMLName xml.Name `xml:"ConfigTreeNode"`
	Label   string   `xml:"label,attr"`
	Leaf    string   `xml:"leaf,attr,omitempty"`
	Nodes   []string `xml:"node"`
}

// EncodeLeaf 以指定格式编码叶子
func EncodeLeaf(l *PropertyLeaf, f Format) ([]byte, error) {
	switch f {
	case FormatText:
		return l.Bytes(), nil
	case FormatCBOR:
		return encodeLeafCBOR(l)
	case FormatJSON:
		v := leafJSON{Name: l.name, Kind: l.kind.String(), Type: l.typeName, Properties: make([]propertyJSON, len(l.props))}
		for i, p := range l.props {
			v.Properties[i] = propertyJSON{Key: p.Key, Value: p.Value}
		}
		return json.MarshalIndent(v, "", "  ")
	case FormatXML:
		v := leafXML{Name: l.name, Kind: l.kind.String(), Type: l.typeName, Properties: make([]propertyXML, len(l.props))}
		for i, p := range l.props {
			v.Properties[i] = propertyXML{Key: p.Key, Value: p.Value}
		}
		return xml.MarshalIndent(v, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}
}

// DecodeLeaf 解码任意格式的叶子，结果与规范化文本解码完全一致
func DecodeLeaf(data []byte, f Format) (*PropertyLeaf, error) {
	switch f {
	case FormatText:
		return ParseLeafText(data)
	case FormatCBOR:
		return decodeLeafCBOR(data)
	case FormatJSON:
		var v leafJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		props := make([]Property, len(v.Properties))
		for i, p := range v.Properties {
			props[i] = Property{Key: p.Key, Value: p.Value}
		}
		return newLeafFromText(v.Type, v.Name, v.Kind, props)
	case FormatXML:
		var v leafXML
		if err := xml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		props := make([]Property, len(v.Properties))
		for i, p := range v.Properties {
			props[i] = Property{Key: p.Key, Value: p.Value}
		}
		return newLeafFromText(v.Type, v.Name, v.Kind, props)
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}
}

func newLeafFromText(typeName, name, kindText string, props []Property) (*PropertyLeaf, error) {
	kind, err := ParseKind(kindText)
	if err != nil {
		return nil, err
	}
	return NewPropertyLeaf(typeName, name, kind, props)
}

// EncodeNode 以指定格式编码节点
func EncodeNode(n *GraphNode, f Format) ([]byte, error) {
	leaf := ""
	if n.leaf.IsValid() {
		leaf = n.leaf.String()
	}
	kids := make([]string, len(n.children))
	for i, c := range n.children {
		kids[i] = c.String()
	}

	switch f {
	case FormatText:
		return n.Bytes(), nil
	case FormatCBOR:
		return encodeNodeCBOR(n)
	case FormatJSON:
		return json.MarshalIndent(nodeJSON{Label: n.label, Leaf: leaf, Nodes: kids}, "", "  ")
	case FormatXML:
		return xml.MarshalIndent(nodeXML{Label: n.label, Leaf: leaf, Nodes: kids}, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}
}

// DecodeNode 解码任意格式的节点
func DecodeNode(data []byte, f Format) (*GraphNode, error) {
	var label, leaf string
	var kids []string

	switch f {
	case FormatText:
		return ParseNodeText(data)
	case FormatCBOR:
		return decodeNodeCBOR(data)
	case FormatJSON:
		var v nodeJSON
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		label, leaf, kids = v.Label, v.Leaf, v.Nodes
	case FormatXML:
		var v nodeXML
		if err := xml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		label, leaf, kids = v.Label, v.Leaf, v.Nodes
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}

	var leafDigest types.Digest
	if leaf != "" {
		d, err := types.ParseDigest(leaf)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		leafDigest = d
	}
	children := make([]types.Digest, len(kids))
	for i, k := range kids {
		d, err := types.ParseDigest(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		children[i] = d
	}
	return NewGraphNode(label, leafDigest, children)
}
