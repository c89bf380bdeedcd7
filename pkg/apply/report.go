package apply

import (
	"fmt"

	"tckvault/pkg/types"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// ComponentResult 是一个组件在一次运行中的结果，彼此独立
type ComponentResult struct {
	Name    string
	Leaf    types.Digest
	Skipped bool
	// Changed 是实际写入目录的 key
	Changed []string
	Err     error
}

type Report struct {
	RunID      uuid.UUID
	Root       types.Digest
	Components []ComponentResult
}

// Err 汇总所有组件的失败，没有失败时返回 nil
func (r *Report) Err() error {
	var result *multierror.Error
	for _, c := range r.Components {
		if c.Err != nil {
			result = multierror.Append(result, fmt.Errorf("component %s: %w", c.Name, c.Err))
		}
	}
	return result.ErrorOrNil()
}

// Failed 返回失败的组件名
func (r *Report) Failed() []string {
	var names []string
	for _, c := range r.Components {
		if c.Err != nil {
			names = append(names, c.Name)
		}
	}
	return names
}

func (r *Report) Result(name string) (ComponentResult, bool) {
	for _, c := range r.Components {
		if c.Name == name {
			return c, true
		}
	}
	return ComponentResult{}, false
}
