package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tckvault/pkg/types"
)

var ErrInvalidAlias = errors.New("invalid alias")

// Alias 的第一段 ("major") 决定校验规则
const (
	MajorTCK      = "TCK"
	MajorTopLevel = "TOPLEVEL"
	MajorTag      = "TAG"
)

// AliasError 描述一次校验失败
type AliasError struct {
	Name   string
	Reason string
}

func (e *AliasError) Error() string {
	return fmt.Sprintf("invalid alias %q: %s", e.Name, e.Reason)
}

func (e *AliasError) Unwrap() error { return ErrInvalidAlias }

// Alias 是指向一个 GraphNode Digest 的可变命名指针
type Alias struct {
	Ref  types.Digest
	Name string
}

// Major 返回第一段
func (a Alias) Major() string { return AliasMajor(a.Name) }

func (a Alias) String() string { return a.Name + " -> " + a.Ref.String() }

// Validate 校验 Name 语法以及与 Ref 的一致性
func (a Alias) Validate() error { return ValidateAlias(a.Name, a.Ref) }

// TCK 返回 TCK 别名中的数值
func (a Alias) TCK() (uint32, bool) {
	rest, ok := strings.CutPrefix(a.Name, MajorTCK+"/")
	if !ok {
		return 0, false
	}
	v, err := ParseTCK(rest)
	if err != nil {
		return 0, false
	}
	return v, true
}

// AliasMajor 返回 name 的第一段
func AliasMajor(name string) string {
	major, _, _ := strings.Cut(name, "/")
	return major
}

// ValidateAlias 在发布前校验 alias
//
//	TCK/0xHHHHHHHH                     8 位小写 hex
//	TOPLEVEL/<release>/<runtype>/<md5> 最后一段必须是 ref 自身
//	TAG/<anything>                     非空即可
func ValidateAlias(name string, ref types.Digest) error {
	if !ref.IsValid() {
		return &AliasError{Name: name, Reason: "reference is invalid"}
	}
	return validateAlias(name, ref, true)
}

// ValidateAliasName 只校验语法，用于读取路径
func ValidateAliasName(name string) error {
	return validateAlias(name, types.Invalid(), false)
}

func validateAlias(name string, ref types.Digest, checkRef bool) error {
	major, rest, ok := strings.Cut(name, "/")
	if !ok {
		return &AliasError{Name: name, Reason: "missing '/' after major"}
	}

	switch major {
	case MajorTCK:
		if !isTCKText(rest) {
			return &AliasError{Name: name, Reason: "want TCK/0x followed by 8 lowercase hex digits"}
		}
	case MajorTopLevel:
		parts := strings.Split(rest, "/")
		if len(parts) != 3 {
			return &AliasError{Name: name, Reason: "want TOPLEVEL/<release>/<runtype>/<digest>"}
		}
		if parts[0] == "" || parts[1] == "" {
			return &AliasError{Name: name, Reason: "release and runtype must be non-empty"}
		}
		if !types.IsDigestText(parts[2]) || strings.ToLower(parts[2]) != parts[2] {
			return &AliasError{Name: name, Reason: "last segment must be a 32 char lowercase hex digest"}
		}
		if checkRef && parts[2] != ref.String() {
			return &AliasError{Name: name, Reason: "digest segment does not match reference " + ref.String()}
		}
	case MajorTag:
		if rest == "" {
			return &AliasError{Name: name, Reason: "empty tag"}
		}
	default:
		return &AliasError{Name: name, Reason: fmt.Sprintf("unknown major %q", major)}
	}
	return nil
}

func isTCKText(s string) bool {
	hex, ok := strings.CutPrefix(s, "0x")
	if !ok || len(hex) != 8 {
		return false
	}
	for i := 0; i < len(hex); i++ {
		c := hex[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

// NewAlias 创建并校验 alias
func NewAlias(ref types.Digest, name string) (Alias, error) {
	a := Alias{Ref: ref, Name: name}
	if err := a.Validate(); err != nil {
		return Alias{}, err
	}
	return a, nil
}

// FormatTCK 返回 "0x%08x"
func FormatTCK(tck uint32) string { return fmt.Sprintf("0x%08x", tck) }

// ParseTCK 接受 "0x0a0b0c0d" 或十进制
func ParseTCK(s string) (uint32, error) {
	var v uint64
	var err error
	if hex, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		v, err = strconv.ParseUint(hex, 16, 32)
	} else {
		v, err = strconv.ParseUint(s, 10, 32)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid TCK %q: %w", s, err)
	}
	return uint32(v), nil
}

func NewTCKAlias(ref types.Digest, tck uint32) (Alias, error) {
	return NewAlias(ref, MajorTCK+"/"+FormatTCK(tck))
}

func NewTopLevelAlias(ref types.Digest, release, runtype string) (Alias, error) {
	return NewAlias(ref, strings.Join([]string{MajorTopLevel, release, runtype, ref.String()}, "/"))
}

func NewTagAlias(ref types.Digest, tag string) (Alias, error) {
	return NewAlias(ref, MajorTag+"/"+tag)
}
