package core

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"tckvault/pkg/types"
)

// 规范化文本 (Canonical Text)
// 它既是 Digest 的输入，也是存储和日志里的归档格式。
// 任何一个字节的变化都会改变 Digest，所以这里的格式不能随意调整。

var ErrMalformed = errors.New("malformed canonical text")

const (
	leafNameTag  = "Name: "
	leafKindTag  = "Kind: "
	leafTypeTag  = "Type: "
	leafPropsTag = "Properties: ["
	nodeLabelTag = "Label: "
	nodeLeafTag  = "Leaf: "
	nodeKidsTag  = "Nodes: ["
	listEnd      = "]"
)

func encodeLeafText(l *PropertyLeaf) []byte {
	var buf bytes.Buffer
	buf.WriteString(leafNameTag + l.name + "\n")
	buf.WriteString(leafKindTag + l.kind.String() + "\n")
	buf.WriteString(leafTypeTag + l.typeName + "\n")
	buf.WriteString(leafPropsTag + "\n")
	for _, p := range l.props {
		buf.WriteString(" '")
		buf.WriteString(p.Key)
		buf.WriteString("':")
		// 构造时已拒绝换行，这里保持与归档格式一致的剥离规则
		buf.WriteString(strings.ReplaceAll(p.Value, "\n", ""))
		buf.WriteByte('\n')
	}
	buf.WriteString(listEnd + "\n")
	return buf.Bytes()
}

func encodeNodeText(n *GraphNode) []byte {
	var buf bytes.Buffer
	buf.WriteString(nodeLabelTag + n.label + "\n")
	buf.WriteString(nodeLeafTag + n.leaf.String() + "\n")
	buf.WriteString(nodeKidsTag + "\n")
	for _, c := range n.children {
		buf.WriteByte(' ')
		buf.WriteString(c.String())
		buf.WriteByte('\n')
	}
	buf.WriteString(listEnd + "\n")
	return buf.Bytes()
}

// lineReader 按 '\n' 切分，最后必须以换行结束
type lineReader struct {
	lines []string
	pos   int
}

func newLineReader(data []byte) (*lineReader, error) {
	s := string(data)
	if !strings.HasSuffix(s, "\n") {
		return nil, fmt.Errorf("%w: missing trailing newline", ErrMalformed)
	}
	return &lineReader{lines: strings.Split(strings.TrimSuffix(s, "\n"), "\n")}, nil
}

func (r *lineReader) next() (string, bool) {
	if r.pos >= len(r.lines) {
		return "", false
	}
	l := r.lines[r.pos]
	r.pos++
	return l, true
}

func (r *lineReader) field(tag string) (string, error) {
	l, ok := r.next()
	if !ok {
		return "", fmt.Errorf("%w: unexpected end, want %q", ErrMalformed, tag)
	}
	if !strings.HasPrefix(l, tag) {
		return "", fmt.Errorf("%w: line %d: want prefix %q, got %q", ErrMalformed, r.pos, tag, l)
	}
	return l[len(tag):], nil
}

func (r *lineReader) done() error {
	if r.pos != len(r.lines) {
		return fmt.Errorf("%w: trailing data after line %d", ErrMalformed, r.pos)
	}
	return nil
}

// ParseLeafText 从规范化文本还原叶子
func ParseLeafText(data []byte) (*PropertyLeaf, error) {
	r, err := newLineReader(data)
	if err != nil {
		return nil, err
	}
	name, err := r.field(leafNameTag)
	if err != nil {
		return nil, err
	}
	kindText, err := r.field(leafKindTag)
	if err != nil {
		return nil, err
	}
	kind, err := ParseKind(kindText)
	if err != nil {
		return nil, err
	}
	typeName, err := r.field(leafTypeTag)
	if err != nil {
		return nil, err
	}
	if rest, err := r.field(leafPropsTag); err != nil {
		return nil, err
	} else if rest != "" {
		return nil, fmt.Errorf("%w: garbage after %q", ErrMalformed, leafPropsTag)
	}

	var props []Property
	for {
		l, ok := r.next()
		if !ok {
			return nil, fmt.Errorf("%w: unterminated property list", ErrMalformed)
		}
		if l == listEnd {
			break
		}
		if !strings.HasPrefix(l, " '") {
			return nil, fmt.Errorf("%w: line %d: bad property %q", ErrMalformed, r.pos, l)
		}
		sep := strings.Index(l[2:], "':")
		if sep < 0 {
			return nil, fmt.Errorf("%w: line %d: property without separator", ErrMalformed, r.pos)
		}
		props = append(props, Property{Key: l[2 : 2+sep], Value: l[2+sep+2:]})
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return NewPropertyLeaf(typeName, name, kind, props)
}

// ParseNodeText 从规范化文本还原节点
func ParseNodeText(data []byte) (*GraphNode, error) {
	r, err := newLineReader(data)
	if err != nil {
		return nil, err
	}
	label, err := r.field(nodeLabelTag)
	if err != nil {
		return nil, err
	}
	leafText, err := r.field(nodeLeafTag)
	if err != nil {
		return nil, err
	}
	leaf, err := types.ParseDigest(leafText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if rest, err := r.field(nodeKidsTag); err != nil {
		return nil, err
	} else if rest != "" {
		return nil, fmt.Errorf("%w: garbage after %q", ErrMalformed, nodeKidsTag)
	}

	var children []types.Digest
	for {
		l, ok := r.next()
		if !ok {
			return nil, fmt.Errorf("%w: unterminated node list", ErrMalformed)
		}
		if l == listEnd {
			break
		}
		if !strings.HasPrefix(l, " ") {
			return nil, fmt.Errorf("%w: line %d: bad child %q", ErrMalformed, r.pos, l)
		}
		d, err := types.ParseDigest(l[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		children = append(children, d)
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return NewGraphNode(label, leaf, children)
}

// SniffType 根据首行判断规范化文本的对象类型
func SniffType(data []byte) (ObjectType, bool) {
	switch {
	case bytes.HasPrefix(data, []byte(leafNameTag)):
		return TypeLeaf, true
	case bytes.HasPrefix(data, []byte(nodeLabelTag)):
		return TypeNode, true
	default:
		return "", false
	}
}

// DecodeObject 解码任意一种规范化文本
func DecodeObject(data []byte) (Object, error) {
	t, ok := SniffType(data)
	if !ok {
		return nil, fmt.Errorf("%w: unknown object header", ErrMalformed)
	}
	if t == TypeLeaf {
		l, err := ParseLeafText(data)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	n, err := ParseNodeText(data)
	if err != nil {
		return nil, err
	}
	return n, nil
}
