package treebuilder

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Manifest 描述一棵配置树，YAML 和 JSON 都可以
//
//	label: top
//	children:
//	  - leaf: {type: Sink, name: S1, kind: Algorithm, properties: [{key: Rate, value: "10"}]}
//	  - ref: TCK/0x00000001
type Manifest struct {
	Label    string      `yaml:"label,omitempty" json:"label,omitempty"`
	Leaf     *LeafSpec   `yaml:"leaf,omitempty" json:"leaf,omitempty"`
	Ref      string      `yaml:"ref,omitempty" json:"ref,omitempty"`
	Children []*Manifest `yaml:"children,omitempty" json:"children,omitempty"`
}

type LeafSpec struct {
	Type       string         `yaml:"type" json:"type"`
	Name       string         `yaml:"name" json:"name"`
	Kind       string         `yaml:"kind,omitempty" json:"kind,omitempty"`
	Properties []PropertySpec `yaml:"properties,omitempty" json:"properties,omitempty"`
}

type PropertySpec struct {
	Key   string `yaml:"key" json:"key"`
	Value string `yaml:"value" json:"value"`
}

// Decode 读取一个清单；JSON 是 YAML 的子集，同一个解码器即可
func Decode(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty manifest")
		}
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}

func (m *Manifest) validate(path string) error {
	if m == nil {
		return fmt.Errorf("%s: empty entry", path)
	}
	if m.Ref != "" && (m.Leaf != nil || len(m.Children) > 0 || m.Label != "") {
		return fmt.Errorf("%s: ref entries cannot carry label, leaf or children", path)
	}
	return nil
}
