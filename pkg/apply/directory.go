package apply

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"sync"

	"tckvault/pkg/core"

	"gopkg.in/yaml.v3"
)

var ErrComponentNotFound = errors.New("component not found")

// Descriptor 是运行中组件的类型信息和当前属性
type Descriptor struct {
	Type       string
	Kind       core.Kind
	Properties []core.Property
}

// Directory 是运行中组件的属性目录
type Directory interface {
	Has(component string) bool
	Get(component, key string) (string, bool)
	Set(component, key, value string) error
	Describe(component string) (Descriptor, bool)
}

// Lifecycle 是宿主应用的钩子
type Lifecycle interface {
	// SetProperties 让组件立即应用已推送的属性
	SetProperties(ctx context.Context, component string) error
	// Reinitialize 重新触发组件的初始化链
	Reinitialize(ctx context.Context, component string) error
}

type liveComponent struct {
	typeName string
	kind     core.Kind
	props    []core.Property

	// 生命周期钩子被调用的次数，随快照一起保存
	applied int
	reinit  int
}

func (c *liveComponent) lookup(key string) (int, bool) {
	for i, p := range c.props {
		if p.Key == key {
			return i, true
		}
	}
	return -1, false
}

// MemoryDirectory 是进程内的 Directory，可以从 YAML 加载和保存。
// 它同时实现 Lifecycle：钩子只记录调用次数，宿主进程读取快照后自行生效。
type MemoryDirectory struct {
	mu   sync.RWMutex
	comp map[string]*liveComponent
	sets int
}

var (
	_ Directory = (*MemoryDirectory)(nil)
	_ Lifecycle = (*MemoryDirectory)(nil)
)

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{comp: make(map[string]*liveComponent)}
}

// Register 添加 (或替换) 一个组件
func (d *MemoryDirectory) Register(name, typeName string, kind core.Kind, props ...core.Property) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.comp[name] = &liveComponent{typeName: typeName, kind: kind, props: slices.Clone(props)}
}

func (d *MemoryDirectory) Has(component string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.comp[component]
	return ok
}

func (d *MemoryDirectory) Get(component, key string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.comp[component]
	if !ok {
		return "", false
	}
	i, ok := c.lookup(key)
	if !ok {
		return "", false
	}
	return c.props[i].Value, true
}

func (d *MemoryDirectory) Set(component, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.comp[component]
	if !ok {
		return fmt.Errorf("%w: %s", ErrComponentNotFound, component)
	}
	if i, ok := c.lookup(key); ok {
		c.props[i].Value = value
	} else {
		c.props = append(c.props, core.Property{Key: key, Value: value})
	}
	d.sets++
	return nil
}

func (d *MemoryDirectory) Describe(component string) (Descriptor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.comp[component]
	if !ok {
		return Descriptor{}, false
	}
	return Descriptor{Type: c.typeName, Kind: c.kind, Properties: slices.Clone(c.props)}, true
}

func (d *MemoryDirectory) SetProperties(_ context.Context, component string) error {
	return d.record(component, func(c *liveComponent) { c.applied++ })
}

func (d *MemoryDirectory) Reinitialize(_ context.Context, component string) error {
	return d.record(component, func(c *liveComponent) { c.reinit++ })
}

func (d *MemoryDirectory) record(component string, fn func(*liveComponent)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.comp[component]
	if !ok {
		return fmt.Errorf("%w: %s", ErrComponentNotFound, component)
	}
	fn(c)
	return nil
}

// Applied 返回 SetProperties 对该组件的累计调用次数
func (d *MemoryDirectory) Applied(component string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if c, ok := d.comp[component]; ok {
		return c.applied
	}
	return 0
}

// Reinitialized 返回 Reinitialize 对该组件的累计调用次数
func (d *MemoryDirectory) Reinitialized(component string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if c, ok := d.comp[component]; ok {
		return c.reinit
	}
	return 0
}

// Names 返回排序后的组件名
func (d *MemoryDirectory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.comp))
	for n := range d.comp {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Sets 返回 Set 被调用的次数
func (d *MemoryDirectory) Sets() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sets
}

// -----------------------------------------------------------------------------
// YAML 快照
// -----------------------------------------------------------------------------

type propertyYAML struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type componentYAML struct {
	Name          string         `yaml:"name"`
	Type          string         `yaml:"type"`
	Kind          string         `yaml:"kind,omitempty"`
	Properties    []propertyYAML `yaml:"properties,omitempty"`
	Applied       int            `yaml:"applied,omitempty"`
	Reinitialized int            `yaml:"reinitialized,omitempty"`
}

type directoryYAML struct {
	Components []componentYAML `yaml:"components"`
}

// LoadDirectory 从 YAML 快照构建目录
func LoadDirectory(r io.Reader) (*MemoryDirectory, error) {
	var doc directoryYAML
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode live directory: %w", err)
	}
	d := NewMemoryDirectory()
	for _, c := range doc.Components {
		if c.Name == "" {
			return nil, fmt.Errorf("live directory: component without a name")
		}
		kind := core.KindUnknown
		if c.Kind != "" {
			k, err := core.ParseKind(c.Kind)
			if err != nil {
				return nil, fmt.Errorf("component %s: %w", c.Name, err)
			}
			kind = k
		}
		props := make([]core.Property, 0, len(c.Properties))
		for _, p := range c.Properties {
			props = append(props, core.Property{Key: p.Key, Value: p.Value})
		}
		d.Register(c.Name, c.Type, kind, props...)
		d.comp[c.Name].applied = c.Applied
		d.comp[c.Name].reinit = c.Reinitialized
	}
	return d, nil
}

// Save 把目录写成 YAML 快照，组件按名字排序
func (d *MemoryDirectory) Save(w io.Writer) error {
	var doc directoryYAML
	for _, name := range d.Names() {
		desc, ok := d.Describe(name)
		if !ok {
			continue
		}
		c := componentYAML{
			Name:          name,
			Type:          desc.Type,
			Kind:          desc.Kind.String(),
			Applied:       d.Applied(name),
			Reinitialized: d.Reinitialized(name),
		}
		for _, p := range desc.Properties {
			c.Properties = append(c.Properties, propertyYAML{Key: p.Key, Value: p.Value})
		}
		doc.Components = append(doc.Components, c)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
