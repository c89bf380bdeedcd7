// Package memory 提供进程内的 Backend，用于测试和临时环境
package memory

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"sync"

	"tckvault/pkg/storage"
)

var _ storage.Backend = (*Backend)(nil)

type Backend struct {
	mu      sync.RWMutex
	objects map[string][]byte
	aliases map[string]string
}

func New() *Backend {
	return &Backend{
		objects: make(map[string][]byte),
		aliases: make(map[string]string),
	}
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return bytes.Clone(data), nil
}

func (b *Backend) Put(ctx context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.objects[key]; ok {
		if !bytes.Equal(existing, data) {
			return storage.ErrConflict
		}
		return nil
	}
	b.objects[key] = bytes.Clone(data)
	return nil
}

func (b *Backend) GetAlias(ctx context.Context, name string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.aliases[name]
	if !ok {
		return "", storage.ErrNotFound
	}
	return d, nil
}

func (b *Backend) PutAlias(ctx context.Context, name, digest string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aliases[name] = digest
	return nil
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []string
	for name := range b.aliases {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Len 返回对象数量 (测试用)
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
