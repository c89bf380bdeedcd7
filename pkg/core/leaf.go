package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"tckvault/pkg/types"
)

var (
	ErrInvalidValue = errors.New("invalid property leaf")
	ErrInvalidKind  = errors.New("invalid component kind")
)

// Kind 是组件的声明类别
type Kind int

const (
	KindUnknown Kind = iota
	KindAlgorithm
	KindService
	KindTool
	KindAuditor
)

var kindNames = [...]string{
	KindUnknown:   "Unknown",
	KindAlgorithm: "Algorithm",
	KindService:   "Service",
	KindTool:      "Tool",
	KindAuditor:   "Auditor",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// ParseKind 解析规范化文本中的 Kind
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Property 是一条有序的 (key, value) 记录，允许重复 key
type Property struct {
	Key   string
	Value string
}

// PropertyLeaf 是单个组件 (type/name/kind) 的不可变属性集
type PropertyLeaf struct {
	typeName string
	name     string
	kind     Kind
	props    []Property

	once     sync.Once
	rawBytes []byte
	digest   types.Digest
}

// NewPropertyLeaf 校验并创建叶子
// 每个字段都必须能在 text/json/xml/cbor 之间无损往返，否则直接拒绝
func NewPropertyLeaf(typeName, name string, kind Kind, props []Property) (*PropertyLeaf, error) {
	if kind < 0 || int(kind) >= len(kindNames) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, int(kind))
	}
	if reason := checkText(typeName); reason != "" {
		return nil, fmt.Errorf("%w: type %q %s", ErrInvalidValue, typeName, reason)
	}
	if reason := checkText(name); reason != "" {
		return nil, fmt.Errorf("%w: name %q %s", ErrInvalidValue, name, reason)
	}
	for _, p := range props {
		if strings.ContainsRune(p.Key, '\'') {
			return nil, fmt.Errorf("%w: key %q of %s contains quote", ErrInvalidValue, p.Key, name)
		}
		if reason := checkText(p.Key); reason != "" {
			return nil, fmt.Errorf("%w: key %q of %s %s", ErrInvalidValue, p.Key, name, reason)
		}
		if reason := checkText(p.Value); reason != "" {
			return nil, fmt.Errorf("%w: value of %s.%s %s", ErrInvalidValue, name, p.Key, reason)
		}
	}
	return &PropertyLeaf{
		typeName: typeName,
		name:     name,
		kind:     kind,
		props:    slices.Clone(props),
	}, nil
}

// MustNewPropertyLeaf 仅用于测试或常量
func MustNewPropertyLeaf(typeName, name string, kind Kind, props ...Property) *PropertyLeaf {
	l, err := NewPropertyLeaf(typeName, name, kind, props)
	if err != nil {
		panic(err)
	}
	return l
}

func (l *PropertyLeaf) Type() ObjectType { return TypeLeaf }

func (l *PropertyLeaf) ID() types.Digest {
	l.seal()
	return l.digest
}

func (l *PropertyLeaf) Bytes() []byte {
	l.seal()
	return l.rawBytes
}

func (l *PropertyLeaf) seal() {
	l.once.Do(func() {
		l.rawBytes = encodeLeafText(l)
		l.digest = types.Sum(l.rawBytes)
	})
}

func (l *PropertyLeaf) TypeName() string { return l.typeName }
func (l *PropertyLeaf) Name() string     { return l.name }
func (l *PropertyLeaf) Kind() Kind       { return l.kind }
func (l *PropertyLeaf) Len() int         { return len(l.props) }

// Properties 返回副本，调用者修改不会影响 Digest
func (l *PropertyLeaf) Properties() []Property { return slices.Clone(l.props) }

// Lookup 返回第一个匹配 key 的值
func (l *PropertyLeaf) Lookup(key string) (string, bool) {
	for _, p := range l.props {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// With 返回一个修改了 (或追加了) key 的新叶子；原对象不变
func (l *PropertyLeaf) With(key, value string) (*PropertyLeaf, error) {
	props := l.Properties()
	replaced := false
	for i := range props {
		if props[i].Key == key {
			props[i].Value = value
			replaced = true
			break
		}
	}
	if !replaced {
		props = append(props, Property{Key: key, Value: value})
	}
	return NewPropertyLeaf(l.typeName, l.name, l.kind, props)
}

// Equal 比较规范化内容
func (l *PropertyLeaf) Equal(o *PropertyLeaf) bool {
	if l == nil || o == nil {
		return l == o
	}
	return l.ID() == o.ID()
}

// checkText 返回 s 不能被所有编码无损表示的原因，合法时返回 ""
// 换行是规范化文本的行分隔符；非法 UTF-8 会被 json/xml 替换成 U+FFFD，cbor 则拒绝解码；
// 除 tab 以外的控制字符以及 U+FFFE/U+FFFF 不是合法的 XML 字符
func checkText(s string) string {
	if !utf8.ValidString(s) {
		return "is not valid UTF-8"
	}
	for _, r := range s {
		switch {
		case r == '\n':
			return "contains newline"
		case r < 0x20 && r != '\t', r == 0xFFFE, r == 0xFFFF:
			return fmt.Sprintf("contains control character %U", r)
		}
	}
	return ""
}
