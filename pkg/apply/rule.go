package apply

import (
	"fmt"
	"regexp"
)

// Rule 在应用前改写 (组件, 属性) 上的值。
// Component 和 Property 是整名匹配，Value 是普通的查找替换。
type Rule struct {
	Component   *regexp.Regexp
	Property    *regexp.Regexp
	Value       *regexp.Regexp
	Replacement string
}

func NewRule(component, property, value, replacement string) (Rule, error) {
	c, err := regexp.Compile("^(?:" + component + ")$")
	if err != nil {
		return Rule{}, fmt.Errorf("rule component pattern: %w", err)
	}
	p, err := regexp.Compile("^(?:" + property + ")$")
	if err != nil {
		return Rule{}, fmt.Errorf("rule property pattern: %w", err)
	}
	v, err := regexp.Compile(value)
	if err != nil {
		return Rule{}, fmt.Errorf("rule value pattern: %w", err)
	}
	return Rule{Component: c, Property: p, Value: v, Replacement: replacement}, nil
}

func MustNewRule(component, property, value, replacement string) Rule {
	r, err := NewRule(component, property, value, replacement)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Rule) matches(component, key, value string) bool {
	return r.Component.MatchString(component) &&
		r.Property.MatchString(key) &&
		r.Value.MatchString(value)
}

// transform 按注册顺序尝试，第一个匹配的规则生效
func transform(rules []Rule, component, key, value string) string {
	for _, r := range rules {
		if r.matches(component, key, value) {
			return r.Value.ReplaceAllString(value, r.Replacement)
		}
	}
	return value
}
