// Package store 是 Backend 之上的类型化门面：按 digest 读写 PropertyLeaf / GraphNode，
// 按名字读写 Alias。除了 Backend 句柄和 alias 写锁之外不持有任何状态。
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"tckvault/pkg/core"
	"tckvault/pkg/storage"
	"tckvault/pkg/types"
)

const aliasLockStripes = 64

// LeafIndexer 接收每一个新写入的叶子 (meta.Repository 实现了它)
type LeafIndexer interface {
	IndexLeaf(ctx context.Context, leaf *core.PropertyLeaf) error
}

type GraphStore struct {
	backend storage.Backend
	policy  AliasPolicy
	indexer LeafIndexer

	// 同一个 alias 的写入串行化
	aliasLocks [aliasLockStripes]sync.Mutex
}

type Option func(*GraphStore)

func WithAliasPolicy(p AliasPolicy) Option {
	return func(s *GraphStore) { s.policy = p }
}

// WithLeafIndexer 显式指定索引器，backend 被装饰器包住时需要它
func WithLeafIndexer(ix LeafIndexer) Option {
	return func(s *GraphStore) { s.indexer = ix }
}

func New(backend storage.Backend, opts ...Option) *GraphStore {
	s := &GraphStore{
		backend: backend,
		policy:  DefaultAliasPolicy(),
	}
	if ix, ok := backend.(LeafIndexer); ok {
		s.indexer = ix
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GraphStore) Backend() storage.Backend { return s.backend }

func (s *GraphStore) Policy() AliasPolicy { return s.policy }

// -----------------------------------------------------------------------------
// 对象读写
// -----------------------------------------------------------------------------

// WriteLeaf 幂等写入，返回叶子的 digest
func (s *GraphStore) WriteLeaf(ctx context.Context, leaf *core.PropertyLeaf) (types.Digest, error) {
	created, err := s.writeObject(ctx, leaf)
	if err != nil {
		return types.Invalid(), err
	}
	if created && s.indexer != nil {
		if err := s.indexer.IndexLeaf(ctx, leaf); err != nil {
			slog.Warn("leaf index failed", "digest", leaf.ID().String(), "error", err)
		}
	}
	return leaf.ID(), nil
}

// WriteNode 幂等写入，返回节点的 digest
func (s *GraphStore) WriteNode(ctx context.Context, node *core.GraphNode) (types.Digest, error) {
	if _, err := s.writeObject(ctx, node); err != nil {
		return types.Invalid(), err
	}
	return node.ID(), nil
}

// writeObject 已存在且字节相同时什么都不做；字节不同是 ErrHashCollision
func (s *GraphStore) writeObject(ctx context.Context, obj core.Object) (bool, error) {
	key := obj.ID().String()
	data := obj.Bytes()

	existing, err := s.backend.Get(ctx, key)
	switch {
	case err == nil:
		if bytes.Equal(existing, data) {
			return false, nil
		}
		return false, s.collision(key, obj.Type())
	case !errors.Is(err, storage.ErrNotFound):
		return false, fmt.Errorf("failed to check object %s: %w", key, err)
	}

	if err := s.backend.Put(ctx, key, data); err != nil {
		// 并发写入者用不同的内容抢先了
		if errors.Is(err, storage.ErrConflict) {
			return false, s.collision(key, obj.Type())
		}
		return false, fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return true, nil
}

func (s *GraphStore) collision(key string, typ core.ObjectType) error {
	slog.Error("content addressing violated: digest already stored with different bytes",
		"digest", key, "type", string(typ))
	return fmt.Errorf("%w: %s", ErrHashCollision, key)
}

// ReadRaw 返回 digest 对应的原始规范化字节
func (s *GraphStore) ReadRaw(ctx context.Context, d types.Digest) ([]byte, error) {
	if !d.IsValid() {
		return nil, fmt.Errorf("%w: invalid digest", ErrNotFound)
	}
	data, err := s.backend.Get(ctx, d.String())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, d)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", d, err)
	}
	return data, nil
}

func (s *GraphStore) ReadLeaf(ctx context.Context, d types.Digest) (*core.PropertyLeaf, error) {
	data, err := s.ReadRaw(ctx, d)
	if err != nil {
		return nil, err
	}
	if err := checkType(d, data, core.TypeLeaf); err != nil {
		return nil, err
	}
	leaf, err := core.ParseLeafText(data)
	if err != nil {
		return nil, s.corrupt(d, core.TypeLeaf, err)
	}
	if leaf.ID() != d {
		return nil, s.corrupt(d, core.TypeLeaf, fmt.Errorf("content hashes to %s", leaf.ID()))
	}
	return leaf, nil
}

func (s *GraphStore) ReadNode(ctx context.Context, d types.Digest) (*core.GraphNode, error) {
	data, err := s.ReadRaw(ctx, d)
	if err != nil {
		return nil, err
	}
	if err := checkType(d, data, core.TypeNode); err != nil {
		return nil, err
	}
	node, err := core.ParseNodeText(data)
	if err != nil {
		return nil, s.corrupt(d, core.TypeNode, err)
	}
	if node.ID() != d {
		return nil, s.corrupt(d, core.TypeNode, fmt.Errorf("content hashes to %s", node.ID()))
	}
	return node, nil
}

// checkType 只拒绝可识别的其它类型；无法识别的头部交给解码器报告 ErrCorrupt
func checkType(d types.Digest, data []byte, want core.ObjectType) error {
	if got, ok := core.SniffType(data); ok && got != want {
		return fmt.Errorf("%w: %s is a %s, not a %s", ErrWrongType, d, got, want)
	}
	return nil
}

// ReadObject 按内容嗅探类型
func (s *GraphStore) ReadObject(ctx context.Context, d types.Digest) (core.Object, error) {
	data, err := s.ReadRaw(ctx, d)
	if err != nil {
		return nil, err
	}
	obj, err := core.DecodeObject(data)
	if err != nil {
		return nil, s.corrupt(d, "", err)
	}
	if obj.ID() != d {
		return nil, s.corrupt(d, obj.Type(), fmt.Errorf("content hashes to %s", obj.ID()))
	}
	return obj, nil
}

func (s *GraphStore) corrupt(d types.Digest, typ core.ObjectType, cause error) error {
	slog.Error("stored object is corrupt", "digest", d.String(), "type", string(typ), "error", cause)
	return fmt.Errorf("%w: %s: %v", ErrCorrupt, d, cause)
}

// -----------------------------------------------------------------------------
// Alias
// -----------------------------------------------------------------------------

func (s *GraphStore) aliasLock(name string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(name))
	return &s.aliasLocks[h.Sum32()%aliasLockStripes]
}

// WriteAlias 校验后发布 alias。目标节点必须已经存在。
// 重新绑定只写一次的 major 返回 ErrAliasRebind，原绑定保持不变。
func (s *GraphStore) WriteAlias(ctx context.Context, a core.Alias) (AliasWrite, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if _, err := s.ReadNode(ctx, a.Ref); err != nil {
		return 0, fmt.Errorf("alias %s: target: %w", a.Name, err)
	}

	mu := s.aliasLock(a.Name)
	mu.Lock()
	defer mu.Unlock()

	current, err := s.resolveAlias(ctx, a.Name)
	outcome := AliasCreated
	switch {
	case err == nil:
		if current == a.Ref {
			return AliasUnchanged, nil
		}
		if s.policy.IsImmutable(a.Major()) {
			slog.Warn("refusing to rebind write-once alias",
				"alias", a.Name, "current", current.String(), "requested", a.Ref.String())
			return AliasRebound, fmt.Errorf("%w: %s is bound to %s", ErrAliasRebind, a.Name, current)
		}
		outcome = AliasRebound
	case errors.Is(err, ErrNotFound):
	default:
		return 0, err
	}

	if err := s.backend.PutAlias(ctx, a.Name, a.Ref.String()); err != nil {
		return 0, fmt.Errorf("failed to put alias %s: %w", a.Name, err)
	}
	return outcome, nil
}

// ResolveAlias 只返回 alias 指向的 digest
func (s *GraphStore) ResolveAlias(ctx context.Context, name string) (types.Digest, error) {
	if err := core.ValidateAliasName(name); err != nil {
		return types.Invalid(), err
	}
	return s.resolveAlias(ctx, name)
}

func (s *GraphStore) resolveAlias(ctx context.Context, name string) (types.Digest, error) {
	raw, err := s.backend.GetAlias(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return types.Invalid(), fmt.Errorf("%w: alias %s", ErrNotFound, name)
	}
	if err != nil {
		return types.Invalid(), fmt.Errorf("failed to read alias %s: %w", name, err)
	}
	d, err := types.ParseDigest(raw)
	if err != nil || !d.IsValid() {
		slog.Error("alias points at a malformed digest", "alias", name, "value", raw)
		return types.Invalid(), fmt.Errorf("%w: alias %s -> %q", ErrCorrupt, name, raw)
	}
	return d, nil
}

// ReadAlias 解析 alias 并读取它指向的节点
func (s *GraphStore) ReadAlias(ctx context.Context, name string) (*core.GraphNode, error) {
	d, err := s.ResolveAlias(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.ReadNode(ctx, d)
}

// ListAliases 返回以 prefix 开头的 alias，按名字排序
func (s *GraphStore) ListAliases(ctx context.Context, prefix string) ([]core.Alias, error) {
	names, err := s.backend.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}
	out := make([]core.Alias, 0, len(names))
	for _, name := range names {
		d, err := s.resolveAlias(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, core.Alias{Ref: d, Name: name})
	}
	return out, nil
}

// Resolve 接受 32 位 hex digest 或 alias 名
func (s *GraphStore) Resolve(ctx context.Context, ref string) (types.Digest, error) {
	if types.IsDigestText(ref) {
		d, err := types.ParseDigest(ref)
		if err != nil || !d.IsValid() {
			return types.Invalid(), fmt.Errorf("%w: %q", ErrInvalidReference, ref)
		}
		return d, nil
	}
	switch core.AliasMajor(ref) {
	case core.MajorTCK, core.MajorTopLevel, core.MajorTag:
		return s.ResolveAlias(ctx, ref)
	}
	return types.Invalid(), fmt.Errorf("%w: %q is neither a digest nor an alias", ErrInvalidReference, ref)
}
