// Package apply 把解析后的配置推送到运行中的组件上。
package apply

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"slices"
	"sync"

	"tckvault/pkg/core"
	"tckvault/pkg/types"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

const componentLockStripes = 64

var ErrNoTopLevel = errors.New("no top-level component or lifecycle configured")

// Resolver 提供树的叶子序列，*resolve.Cache 实现了它
type Resolver interface {
	LeavesInTree(ctx context.Context, root types.Digest) ([]types.Digest, error)
	Leaf(ctx context.Context, d types.Digest) (*core.PropertyLeaf, error)
}

// LeafWriter 用于 Capture，*store.GraphStore 实现了它
type LeafWriter interface {
	WriteLeaf(ctx context.Context, leaf *core.PropertyLeaf) (types.Digest, error)
}

type Applier struct {
	resolver Resolver
	dir      Directory
	hooks    Lifecycle
	rules    []Rule
	skip     map[string]bool
	topLevel string

	// 同一个组件的属性推送串行化
	locks [componentLockStripes]sync.Mutex
}

type Option func(*Applier)

// WithRules 追加改写规则，按注册顺序生效
func WithRules(rules ...Rule) Option {
	return func(a *Applier) { a.rules = append(a.rules, rules...) }
}

// WithSkip 这些组件永远不被配置
func WithSkip(names ...string) Option {
	return func(a *Applier) {
		for _, n := range names {
			a.skip[n] = true
		}
	}
}

func WithLifecycle(l Lifecycle) Option {
	return func(a *Applier) { a.hooks = l }
}

// WithTopLevel 指定 Reconfigure 重新初始化的组件
func WithTopLevel(name string) Option {
	return func(a *Applier) { a.topLevel = name }
}

func New(resolver Resolver, dir Directory, opts ...Option) *Applier {
	a := &Applier{
		resolver: resolver,
		dir:      dir,
		skip:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AddRule 在已有规则之后追加
func (a *Applier) AddRule(r Rule) { a.rules = append(a.rules, r) }

func (a *Applier) lock(component string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(component))
	return &a.locks[h.Sum32()%componentLockStripes]
}

// Configure 把 root 下每个叶子推送到同名组件。
// 解析失败是致命的，直接返回；单个组件的失败记录在 Report 中，不影响其它组件。
func (a *Applier) Configure(ctx context.Context, root types.Digest, callSetProperties bool) (*Report, error) {
	leaves, err := a.resolver.LeavesInTree(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}

	rep := &Report{RunID: uuid.New(), Root: root}
	log := slog.With("run", rep.RunID.String(), "root", root.String())

	seen := make(map[types.Digest]bool, len(leaves))
	for _, d := range leaves {
		if seen[d] {
			continue
		}
		seen[d] = true

		leaf, err := a.resolver.Leaf(ctx, d)
		if err != nil {
			return rep, fmt.Errorf("resolve leaf %s: %w", d, err)
		}
		res := a.configureComponent(ctx, leaf, callSetProperties)
		res.Leaf = d
		if res.Err != nil {
			log.Warn("component configuration failed", "component", res.Name, "error", res.Err)
		}
		rep.Components = append(rep.Components, res)
	}

	log.Info("configuration applied", "components", len(rep.Components), "failed", len(rep.Failed()))
	return rep, rep.Err()
}

func (a *Applier) configureComponent(ctx context.Context, leaf *core.PropertyLeaf, callSetProperties bool) ComponentResult {
	name := leaf.Name()
	res := ComponentResult{Name: name}
	if a.skip[name] {
		res.Skipped = true
		return res
	}
	if !a.dir.Has(name) {
		res.Err = fmt.Errorf("%w: %s", ErrComponentNotFound, name)
		return res
	}

	mu := a.lock(name)
	mu.Lock()
	defer mu.Unlock()

	var errs *multierror.Error
	for _, p := range leaf.Properties() {
		value := transform(a.rules, name, p.Key, p.Value)
		if isReference(value) {
			resolved, err := a.resolveReference(name, p.Key, value)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			value = resolved
		}

		if current, ok := a.dir.Get(name, p.Key); ok && current == value {
			continue
		}
		if err := a.dir.Set(name, p.Key, value); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("set %s.%s: %w", name, p.Key, err))
			continue
		}
		if !slices.Contains(res.Changed, p.Key) {
			res.Changed = append(res.Changed, p.Key)
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		res.Err = err
		return res
	}
	if callSetProperties && a.hooks != nil {
		if err := a.hooks.SetProperties(ctx, name); err != nil {
			res.Err = fmt.Errorf("set properties hook: %w", err)
		}
	}
	return res
}

func (a *Applier) resolveReference(component, key, value string) (string, error) {
	ref, err := parseReference(value)
	if err != nil {
		return "", &ReferenceError{Component: component, Property: key, Reference: value, Err: err}
	}
	v, ok := ref.resolve(a.dir)
	if !ok {
		return "", &ReferenceError{Component: component, Property: key, Reference: value, Err: ErrUnresolvedReference}
	}
	return v, nil
}

// Reconfigure 用于已经初始化过的流水线：先 Configure，再重新初始化顶层组件
func (a *Applier) Reconfigure(ctx context.Context, root types.Digest) (*Report, error) {
	if a.topLevel == "" || a.hooks == nil {
		return nil, ErrNoTopLevel
	}
	rep, err := a.Configure(ctx, root, false)
	if err != nil {
		return rep, err
	}
	if err := a.hooks.Reinitialize(ctx, a.topLevel); err != nil {
		return rep, fmt.Errorf("reinitialize %s: %w", a.topLevel, err)
	}
	return rep, nil
}

// CurrentConfiguration 把组件当前的属性打包成叶子
func (a *Applier) CurrentConfiguration(component string) (*core.PropertyLeaf, error) {
	desc, ok := a.dir.Describe(component)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrComponentNotFound, component)
	}
	return core.NewPropertyLeaf(desc.Type, component, desc.Kind, desc.Properties)
}

// Capture 把组件的当前配置写入存储，返回与 names 一一对应的 digest
func (a *Applier) Capture(ctx context.Context, w LeafWriter, names ...string) ([]types.Digest, error) {
	out := make([]types.Digest, 0, len(names))
	for _, name := range names {
		leaf, err := a.CurrentConfiguration(name)
		if err != nil {
			return nil, err
		}
		d, err := w.WriteLeaf(ctx, leaf)
		if err != nil {
			return nil, fmt.Errorf("capture %s: %w", name, err)
		}
		out = append(out, d)
	}
	return out, nil
}
