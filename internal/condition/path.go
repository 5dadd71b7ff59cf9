package condition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Attributed values expose named attributes to path resolution.
type Attributed interface {
	Attr(name string) (any, bool)
}

// Sequence values expose positional elements to path resolution.
type Sequence interface {
	Len() int
	At(i int) (any, bool)
}

// Container values answer membership tests for IN and NOT_IN.
type Container interface {
	Contains(v any) bool
}

// Instance values report their class lineage for ISINSTANCE.
type Instance interface {
	IsInstance(class string) bool
}

var segment = regexp.MustCompile(`^(\w+)((?:\[-?\d+\])*)$`)
var subscript = regexp.MustCompile(`\[(-?\d+)\]`)

// Resolve looks up path in vars. An exact key match wins; otherwise the path
// is split on dots and each segment may carry [i] subscripts, as in
// "args[0]" or "self.inventory[1].name". Any miss resolves to nil.
func Resolve(vars Vars, path string) any {
	if v, ok := vars[path]; ok {
		return v
	}
	var cur any = map[string]any(vars)
	for _, part := range strings.Split(path, ".") {
		m := segment.FindStringSubmatch(part)
		if m == nil {
			return nil
		}
		next, ok := field(cur, m[1])
		if !ok {
			return nil
		}
		cur = next
		for _, idx := range subscript.FindAllStringSubmatch(m[2], -1) {
			i, _ := strconv.Atoi(idx[1])
			next, ok := element(cur, i)
			if !ok {
				return nil
			}
			cur = next
		}
	}
	return cur
}

func field(cur any, name string) (any, bool) {
	switch c := cur.(type) {
	case nil:
		return nil, false
	case Vars:
		v, ok := c[name]
		return v, ok
	case map[string]any:
		v, ok := c[name]
		return v, ok
	case Attributed:
		return c.Attr(name)
	}
	return nil, false
}

func element(cur any, i int) (any, bool) {
	switch c := cur.(type) {
	case []any:
		if i < 0 {
			i += len(c)
		}
		if i < 0 || i >= len(c) {
			return nil, false
		}
		return c[i], true
	case Sequence:
		if i < 0 {
			i += c.Len()
		}
		return c.At(i)
	case string:
		r := []rune(c)
		if i < 0 {
			i += len(r)
		}
		if i < 0 || i >= len(r) {
			return nil, false
		}
		return string(r[i]), true
	}
	return nil, false
}

func contains(container, v any) (bool, error) {
	switch c := container.(type) {
	case []any:
		for _, x := range c {
			if Equal(x, v) {
				return true, nil
			}
		}
		return false, nil
	case []string:
		for _, x := range c {
			if Equal(x, v) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := v.(string)
		if !ok {
			return false, fmt.Errorf("'in <string>' requires a string, got %T", v)
		}
		return strings.Contains(c, s), nil
	case map[string]any:
		s, ok := v.(string)
		if !ok {
			return false, nil
		}
		_, found := c[s]
		return found, nil
	case Container:
		return c.Contains(v), nil
	}
	return false, fmt.Errorf("%T is not a container", container)
}

func length(v any) (int, bool) {
	switch x := v.(type) {
	case string:
		return len([]rune(x)), true
	case []any:
		return len(x), true
	case map[string]any:
		return len(x), true
	case Sequence:
		return x.Len(), true
	}
	return 0, false
}

func isInstance(v any, class any) bool {
	switch c := class.(type) {
	case string:
		if inst, ok := v.(Instance); ok {
			return inst.IsInstance(c)
		}
		return builtinType(v) == c
	case []any:
		for _, one := range c {
			if isInstance(v, one) {
				return true
			}
		}
	}
	return false
}

func builtinType(v any) string {
	switch v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int, int32, int64:
		return "int"
	case float32, float64:
		return "float"
	case string:
		return "str"
	case []any:
		return "list"
	case map[string]any:
		return "dict"
	}
	return ""
}
