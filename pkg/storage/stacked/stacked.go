// Package stacked 把多个 Backend 按顺序叠加：读按顺序穿透，写只落到栈顶。
package stacked

import (
	"context"
	"errors"
	"slices"

	"tckvault/pkg/storage"

	"github.com/hashicorp/go-multierror"
)

var _ storage.Backend = (*Backend)(nil)

// Backend 的读取顺序就是 Layers 的切片顺序，Layers[0] 是栈顶
type Backend struct {
	Layers []storage.Backend
}

func New(top storage.Backend, lower ...storage.Backend) *Backend {
	return &Backend{Layers: append([]storage.Backend{top}, lower...)}
}

var errEmpty = errors.New("stacked: no layers")

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	for _, l := range b.Layers {
		data, err := l.Get(ctx, key)
		if err == nil {
			return data, nil
		}
		if !storage.IsNotFound(err) {
			return nil, err
		}
	}
	return nil, storage.ErrNotFound
}

func (b *Backend) Put(ctx context.Context, key string, data []byte) error {
	if len(b.Layers) == 0 {
		return errEmpty
	}
	return b.Layers[0].Put(ctx, key, data)
}

func (b *Backend) GetAlias(ctx context.Context, name string) (string, error) {
	for _, l := range b.Layers {
		d, err := l.GetAlias(ctx, name)
		if err == nil {
			return d, nil
		}
		if !storage.IsNotFound(err) {
			return "", err
		}
	}
	return "", storage.ErrNotFound
}

func (b *Backend) PutAlias(ctx context.Context, name, digest string) error {
	if len(b.Layers) == 0 {
		return errEmpty
	}
	return b.Layers[0].PutAlias(ctx, name, digest)
}

// List 合并所有层的结果并去重
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	var all []string
	for _, l := range b.Layers {
		names, err := l.List(ctx, prefix)
		if err != nil {
			return nil, err
		}
		all = append(all, names...)
	}
	slices.Sort(all)
	return slices.Compact(all), nil
}

func (b *Backend) Close() error {
	var result *multierror.Error
	for _, l := range b.Layers {
		if c, ok := l.(storage.Closer); ok {
			if err := c.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}

// readOnly 拒绝所有写入，用于栈下方的归档层
type readOnly struct {
	storage.Backend
}

// ReadOnly 包装一个 Backend，使写操作返回 storage.ErrReadOnly
func ReadOnly(b storage.Backend) storage.Backend { return readOnly{b} }

func (readOnly) Put(context.Context, string, []byte) error      { return storage.ErrReadOnly }
func (readOnly) PutAlias(context.Context, string, string) error { return storage.ErrReadOnly }
