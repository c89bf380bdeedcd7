package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("object not found")
	// ErrConflict 表示同一个 key 已经存在不同的内容
	ErrConflict = errors.New("object exists with different content")
	// ErrReadOnly 由只读层 (例如归档快照) 在写入时返回
	ErrReadOnly = errors.New("backend is read-only")
)

// Backend 是物理存储的最小契约
// 实现可以是本地磁盘、S3、SQL 或内存。
// 所有方法都可能阻塞 (网络/磁盘 I/O)，调用方需要传入 ctx。
type Backend interface {
	// Get 根据 digest 文本读取原始字节，不存在时返回 ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Put 幂等写入：已存在且内容相同视为成功，内容不同返回 ErrConflict
	Put(ctx context.Context, key string, data []byte) error

	// GetAlias 返回 alias 指向的 digest 文本，不存在时返回 ErrNotFound
	GetAlias(ctx context.Context, name string) (string, error)

	// PutAlias 重新绑定 alias (可变指针)
	PutAlias(ctx context.Context, name, digest string) error

	// List 返回所有以 prefix 开头的 alias 名称，按字典序排列
	List(ctx context.Context, prefix string) ([]string, error)
}

// Closer 由持有连接的 Backend (SQL/Redis) 实现
type Closer interface {
	Close() error
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
