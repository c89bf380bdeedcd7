package store

import (
	"errors"

	"tckvault/pkg/core"
)

var (
	// ErrNotFound: digest 或 alias 不存在，可恢复
	ErrNotFound = errors.New("object not found")
	// ErrCorrupt: 字节存在但无法解码，或者解码后 digest 对不上
	ErrCorrupt = errors.New("corrupt object")
	// ErrHashCollision: 同一个 digest 已存在不同的内容，永远是致命的
	ErrHashCollision = errors.New("hash collision")
	// ErrWrongType: digest 存在，但对象类型不是调用者要的 (例如把叶子当节点读)，属于调用错误
	ErrWrongType = errors.New("object has wrong type")
	// ErrInvalidAlias 与 core 共用同一个哨兵，errors.Is 两边都成立
	ErrInvalidAlias = core.ErrInvalidAlias
	// ErrAliasRebind: 策略禁止重新绑定的 alias
	ErrAliasRebind = errors.New("alias is write-once")
	// ErrInvalidReference: 既不是 digest 也不是 alias
	ErrInvalidReference = errors.New("invalid reference")
)
