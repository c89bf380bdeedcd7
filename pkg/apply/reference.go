package apply

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnresolvedReference = errors.New("unresolved reference")
	ErrMalformedReference  = errors.New("malformed reference")
)

// ReferenceError 指出哪个组件的哪个属性引用失败
type ReferenceError struct {
	Component string
	Property  string
	Reference string
	Err       error
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s.%s: %v %q", e.Component, e.Property, e.Err, e.Reference)
}

func (e *ReferenceError) Unwrap() error { return e.Err }

// reference 是 "@Component.key[@default]" 的解析结果
type reference struct {
	component  string
	key        string
	def        string
	hasDefault bool
}

func isReference(value string) bool {
	return strings.HasPrefix(value, "@")
}

// parseReference 组件与 key 在最后一个 '.' 处分开，组件名本身可以含 '.'
func parseReference(value string) (reference, error) {
	body, ok := strings.CutPrefix(value, "@")
	if !ok {
		return reference{}, ErrMalformedReference
	}
	target, def, hasDefault := strings.Cut(body, "@")
	i := strings.LastIndex(target, ".")
	if i <= 0 || i == len(target)-1 {
		return reference{}, ErrMalformedReference
	}
	return reference{
		component:  target[:i],
		key:        target[i+1:],
		def:        def,
		hasDefault: hasDefault,
	}, nil
}

// resolve 只做一跳：被引用的值即使本身是引用也原样返回
func (r reference) resolve(dir Directory) (string, bool) {
	if v, ok := dir.Get(r.component, r.key); ok {
		return v, true
	}
	if r.hasDefault {
		return r.def, true
	}
	return "", false
}
