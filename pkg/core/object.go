package core

import "tckvault/pkg/types"

// ObjectType 定义了图存储中的对象类型
type ObjectType string

const (
	TypeLeaf ObjectType = "leaf" // 单个组件的属性集 (叶子)
	TypeNode ObjectType = "node" // DAG 节点 (可选 leaf + 子节点)
)

// Object 是所有可寻址对象的通用接口
type Object interface {
	// Type 返回对象类型
	Type() ObjectType

	// ID 返回对象的 Digest，首次调用时计算并缓存
	ID() types.Digest

	// Bytes 返回规范化文本 (即 Digest 的输入，也是存储格式)
	Bytes() []byte
}
