package store

import (
	"slices"

	"tckvault/pkg/core"
)

// AliasWrite 描述一次 alias 写入的结果
type AliasWrite int

const (
	AliasCreated AliasWrite = iota
	AliasUnchanged
	AliasRebound
)

func (w AliasWrite) String() string {
	switch w {
	case AliasCreated:
		return "created"
	case AliasUnchanged:
		return "unchanged"
	case AliasRebound:
		return "rebound"
	default:
		return "unknown"
	}
}

// AliasPolicy 决定哪些 major 是只写一次的
type AliasPolicy struct {
	immutable []string
}

// DefaultAliasPolicy: TCK 和 TOPLEVEL 只写一次，TAG 可以重新绑定
func DefaultAliasPolicy() AliasPolicy {
	return NewAliasPolicy(core.MajorTCK, core.MajorTopLevel)
}

// NewAliasPolicy 不传参数时所有 alias 都可以重新绑定
func NewAliasPolicy(immutable ...string) AliasPolicy {
	return AliasPolicy{immutable: slices.Clone(immutable)}
}

func (p AliasPolicy) IsImmutable(major string) bool {
	return slices.Contains(p.immutable, major)
}

func (p AliasPolicy) Immutable() []string {
	return slices.Clone(p.immutable)
}
