package disk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"tckvault/pkg/storage"
)

var _ storage.Backend = (*Adapter)(nil)

// Adapter 实现了 storage.Backend 接口
// 布局:
//
//	root/objects/aa/bbcc...   规范化文本
//	root/aliases/TCK%2F0x...  文件内容为 digest 文本
type Adapter struct {
	rootPath string // 比如: /home/user/.tck
}

// NewAdapter 创建一个新的磁盘存储适配器
func NewAdapter(root string) (*Adapter, error) {
	// 确保根目录存在
	for _, dir := range []string{filepath.Join(root, "objects"), filepath.Join(root, "aliases")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create root storage dir: %w", err)
		}
	}
	return &Adapter{rootPath: root}, nil
}

// layout 返回 digest 对应的物理路径
// 策略：使用前 2 个字符作为子目录 (Sharding)
// Example: "aabbcc..." -> root/objects/aa/bbcc...
func (s *Adapter) layout(key string) string {
	objects := filepath.Join(s.rootPath, "objects")
	if len(key) < 2 {
		return filepath.Join(objects, key)
	}
	return filepath.Join(objects, key[:2], key[2:])
}

// aliasPath 把整个 alias 名称编码成一个文件名，'/' 也会被转义
func (s *Adapter) aliasPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid alias name %q", name)
	}
	return filepath.Join(s.rootPath, "aliases", url.PathEscape(name)), nil
}

func (s *Adapter) Put(ctx context.Context, key string, data []byte) error {
	if strings.ContainsAny(key, `/\.`) || key == "" {
		return fmt.Errorf("invalid object key %q", key)
	}
	targetPath := s.layout(key)

	// 1. 检查是否存在 (幂等性)
	if existing, err := os.ReadFile(targetPath); err == nil {
		if !bytes.Equal(existing, data) {
			return storage.ErrConflict
		}
		return nil // 已经存在，直接跳过 (CAS 的好处)
	} else if !os.IsNotExist(err) {
		return err
	}

	return atomicWrite(targetPath, data)
}

// atomicWrite 先写到临时文件，然后 Rename
// 这样保证要么文件不存在，要么文件是完整的。
func atomicWrite(targetPath string, data []byte) error {
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, "temp-*")
	if err != nil {
		return err
	}
	// 如果成功 Rename 了，这个删除会失败，无害
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil { // 必须先关闭才能 Rename
		return err
	}

	return os.Rename(tempFile.Name(), targetPath)
}

func (s *Adapter) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.layout(key))
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Adapter) GetAlias(ctx context.Context, name string) (string, error) {
	p, err := s.aliasPath(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read alias %s: %w", name, err)
	}
	// 清理换行符 (手工编辑时可能会自动加 \n)
	return strings.TrimSpace(string(data)), nil
}

func (s *Adapter) PutAlias(ctx context.Context, name, digest string) error {
	p, err := s.aliasPath(name)
	if err != nil {
		return err
	}
	return atomicWrite(p, []byte(digest))
}

func (s *Adapter) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.rootPath, "aliases"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "temp-") {
			continue
		}
		name, err := url.PathUnescape(e.Name())
		if err != nil {
			continue
		}
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}
