package meta

import (
	"time"

	"gorm.io/datatypes"
)

// ObjectModel 存储规范化文本，主键就是 digest
type ObjectModel struct {
	Digest    string `gorm:"primaryKey;type:char(32)"`
	Data      []byte `gorm:"not null"`
	CreatedAt time.Time
}

func (ObjectModel) TableName() string {
	return "objects"
}

// AliasModel 存储 alias 指针 (例如 "TCK/0x00000001")
type AliasModel struct {
	// Name 是主键
	Name string `gorm:"primaryKey;type:varchar(255)"`

	// Digest 指向一个 GraphNode
	Digest string `gorm:"type:char(32);not null"`

	// Version 用于乐观锁并发控制 (CAS)
	// 每次更新时 +1，防止并发覆盖
	Version int64 `gorm:"default:1"`

	UpdatedAt time.Time
}

func (AliasModel) TableName() string {
	return "aliases"
}

// LeafIndex 是 PropertyLeaf 在关系型数据库中的投影
// 用于按组件名/类型查找叶子，而不需要展开任何一棵树
type LeafIndex struct {
	Digest   string `gorm:"primaryKey;type:char(32)"`
	Name     string `gorm:"index;type:varchar(255)"`
	TypeName string `gorm:"index;type:varchar(255)"`
	Kind     string `gorm:"type:varchar(16)"`

	// Properties: 有序的 [[key, value], ...]
	Properties datatypes.JSON

	CreatedAt time.Time
}

func (LeafIndex) TableName() string {
	return "leaf_index"
}
