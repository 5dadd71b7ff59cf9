package interp

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

func builtinClasses() map[string]*Class {
	out := map[string]*Class{}
	def := func(name string, bases ...string) {
		var bs []*Class
		for _, b := range bases {
			bs = append(bs, out[b])
		}
		c := newClass(name, bs...)
		if name == "BaseException" {
			c.isError = true
		}
		out[name] = c
	}
	def("BaseException")
	def("Exception", "BaseException")
	def("ArithmeticError", "Exception")
	def("ZeroDivisionError", "ArithmeticError")
	def("LookupError", "Exception")
	def("KeyError", "LookupError")
	def("IndexError", "LookupError")
	def("ValueError", "Exception")
	def("TypeError", "Exception")
	def("NameError", "Exception")
	def("AttributeError", "Exception")
	def("AssertionError", "Exception")
	def("RuntimeError", "Exception")
	def("RecursionError", "RuntimeError")
	def("NotImplementedError", "RuntimeError")
	def("SyntaxError", "Exception")
	def("StopIteration", "Exception")
	return out
}

type builtinFn func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

func (m *Module) builtins() map[string]any {
	out := map[string]any{
		"None":  nil,
		"True":  true,
		"False": false,
	}
	for name, c := range m.classes {
		out[name] = c
	}
	reg := func(name string, fn builtinFn) { out[name] = &Builtin{Name: name, Fn: fn} }

	reg("print", func(_ context.Context, args []any, kwargs map[string]any) (any, error) {
		sep, end := " ", "\n"
		if s, ok := kwargs["sep"].(string); ok {
			sep = s
		}
		if e, ok := kwargs["end"].(string); ok {
			end = e
		}
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = Str(a)
		}
		_, err := fmt.Fprint(m.stdout, strings.Join(parts, sep)+end)
		return nil, err
	})
	reg("len", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		if err := m.arity("len", args, 1, 1); err != nil {
			return nil, err
		}
		switch x := args[0].(type) {
		case string:
			return int64(len([]rune(x))), nil
		case *List:
			return int64(len(x.Items)), nil
		case *Dict:
			return int64(x.Len()), nil
		}
		return nil, m.raise("TypeError", "object of type '%s' has no len()", TypeName(args[0]))
	})
	reg("str", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		if len(args) == 0 {
			return "", nil
		}
		return Str(args[0]), nil
	})
	reg("repr", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		if err := m.arity("repr", args, 1, 1); err != nil {
			return nil, err
		}
		return Repr(args[0]), nil
	})
	reg("int", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		if len(args) == 0 {
			return int64(0), nil
		}
		switch x := args[0].(type) {
		case bool:
			if x {
				return int64(1), nil
			}
			return int64(0), nil
		case int64:
			return x, nil
		case float64:
			return int64(math.Trunc(x)), nil
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
			if err != nil {
				return nil, m.raise("ValueError", "invalid literal for int(): %s", Repr(x))
			}
			return i, nil
		}
		return nil, m.raise("TypeError", "int() argument must be a string or a number, not '%s'", TypeName(args[0]))
	})
	reg("float", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		if len(args) == 0 {
			return 0.0, nil
		}
		if s, ok := args[0].(string); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, m.raise("ValueError", "could not convert string to float: %s", Repr(s))
			}
			return f, nil
		}
		_, f, _, ok := num(args[0])
		if !ok {
			return nil, m.raise("TypeError", "float() argument must be a string or a number, not '%s'", TypeName(args[0]))
		}
		return f, nil
	})
	reg("bool", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		return len(args) > 0 && Truthy(args[0]), nil
	})
	reg("list", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		if len(args) == 0 {
			return NewList(), nil
		}
		items, err := m.iterate(args[0])
		if err != nil {
			return nil, err
		}
		return NewList(items...), nil
	})
	reg("dict", func(_ context.Context, args []any, kwargs map[string]any) (any, error) {
		d := NewDict()
		if len(args) > 0 {
			src, ok := args[0].(*Dict)
			if !ok {
				return nil, m.raise("TypeError", "dict() argument must be a dict")
			}
			for _, k := range src.keys {
				d.Set(k, src.m[k])
			}
		}
		keys := make([]string, 0, len(kwargs))
		for k := range kwargs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			d.Set(k, kwargs[k])
		}
		return d, nil
	})
	reg("range", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		if err := m.arity("range", args, 1, 3); err != nil {
			return nil, err
		}
		bounds := make([]int64, len(args))
		for i, a := range args {
			v, ok := a.(int64)
			if !ok {
				return nil, m.raise("TypeError", "range() arguments must be integers")
			}
			bounds[i] = v
		}
		start, stop, step := int64(0), bounds[0], int64(1)
		if len(bounds) > 1 {
			start, stop = bounds[0], bounds[1]
		}
		if len(bounds) > 2 {
			step = bounds[2]
		}
		if step == 0 {
			return nil, m.raise("ValueError", "range() arg 3 must not be zero")
		}
		var items []any
		for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
			items = append(items, i)
		}
		return NewList(items...), nil
	})
	reg("abs", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		if err := m.arity("abs", args, 1, 1); err != nil {
			return nil, err
		}
		i, f, isFloat, ok := num(args[0])
		switch {
		case !ok:
			return nil, m.raise("TypeError", "bad operand type for abs(): '%s'", TypeName(args[0]))
		case isFloat:
			return math.Abs(f), nil
		case i < 0:
			return -i, nil
		}
		return i, nil
	})
	reg("min", func(_ context.Context, args []any, _ map[string]any) (any, error) { return m.extreme("min", args, -1) })
	reg("max", func(_ context.Context, args []any, _ map[string]any) (any, error) { return m.extreme("max", args, 1) })
	reg("sum", func(_ context.Context, args []any, kwargs map[string]any) (any, error) {
		if err := m.arity("sum", args, 1, 2); err != nil {
			return nil, err
		}
		items, err := m.iterate(args[0])
		if err != nil {
			return nil, err
		}
		var total any = int64(0)
		if len(args) > 1 {
			total = args[1]
		} else if s, ok := kwargs["start"]; ok {
			total = s
		}
		for _, it := range items {
			if total, err = m.binary("+", total, it); err != nil {
				return nil, err
			}
		}
		return total, nil
	})
	reg("sorted", func(_ context.Context, args []any, kwargs map[string]any) (any, error) {
		if err := m.arity("sorted", args, 1, 1); err != nil {
			return nil, err
		}
		items, err := m.iterate(args[0])
		if err != nil {
			return nil, err
		}
		var serr error
		sort.SliceStable(items, func(i, j int) bool {
			c, err := m.order(items[i], items[j])
			if err != nil && serr == nil {
				serr = m.raise("TypeError", "%v", err)
			}
			return c < 0
		})
		if serr != nil {
			return nil, serr
		}
		if Truthy(kwargs["reverse"]) {
			for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
				items[i], items[j] = items[j], items[i]
			}
		}
		return NewList(items...), nil
	})
	reg("enumerate", func(_ context.Context, args []any, kwargs map[string]any) (any, error) {
		if err := m.arity("enumerate", args, 1, 2); err != nil {
			return nil, err
		}
		items, err := m.iterate(args[0])
		if err != nil {
			return nil, err
		}
		start := int64(0)
		if len(args) > 1 {
			start, _ = args[1].(int64)
		} else if s, ok := kwargs["start"].(int64); ok {
			start = s
		}
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = NewList(start+int64(i), it)
		}
		return NewList(out...), nil
	})
	reg("zip", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		var cols [][]any
		n := -1
		for _, a := range args {
			items, err := m.iterate(a)
			if err != nil {
				return nil, err
			}
			cols = append(cols, items)
			if n < 0 || len(items) < n {
				n = len(items)
			}
		}
		var out []any
		for i := 0; i < n; i++ {
			row := make([]any, len(cols))
			for j, c := range cols {
				row[j] = c[i]
			}
			out = append(out, NewList(row...))
		}
		return NewList(out...), nil
	})
	reg("isinstance", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		if err := m.arity("isinstance", args, 2, 2); err != nil {
			return nil, err
		}
		return m.isinstance(args[0], args[1])
	})
	return out
}

func (m *Module) arity(name string, args []any, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		if lo == hi {
			return m.raise("TypeError", "%s() takes exactly %d argument(s) (%d given)", name, lo, len(args))
		}
		return m.raise("TypeError", "%s() takes %d to %d arguments (%d given)", name, lo, hi, len(args))
	}
	return nil
}

func (m *Module) extreme(name string, args []any, sign int) (any, error) {
	items := args
	if len(args) == 1 {
		var err error
		if items, err = m.iterate(args[0]); err != nil {
			return nil, err
		}
	}
	if len(items) == 0 {
		return nil, m.raise("ValueError", "%s() arg is an empty sequence", name)
	}
	best := items[0]
	for _, it := range items[1:] {
		c, err := m.order(it, best)
		if err != nil {
			return nil, m.raise("TypeError", "%v", err)
		}
		if c*sign > 0 {
			best = it
		}
	}
	return best, nil
}

func (m *Module) isinstance(v, cls any) (bool, error) {
	switch c := cls.(type) {
	case *Class:
		switch x := v.(type) {
		case *Object:
			return x.Class.derives(c), nil
		case *Exception:
			return x.Class.derives(c), nil
		}
		return false, nil
	case *Builtin:
		got := TypeName(v)
		return got == c.Name || (c.Name == "int" && got == "bool"), nil
	case *List:
		for _, one := range c.Items {
			ok, err := m.isinstance(v, one)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	return false, m.raise("TypeError", "isinstance() arg 2 must be a type or tuple of types")
}

// method returns the bound builtin method name of a list, dict or str.
func (m *Module) method(recv any, name string) *Builtin {
	var fn builtinFn
	switch x := recv.(type) {
	case *List:
		fn = m.listMethod(x, name)
	case *Dict:
		fn = m.dictMethod(x, name)
	case string:
		fn = m.strMethod(x, name)
	}
	if fn == nil {
		return nil
	}
	return &Builtin{Name: name, Fn: fn}
}

func (m *Module) listMethod(l *List, name string) builtinFn {
	switch name {
	case "append":
		return func(_ context.Context, args []any, _ map[string]any) (any, error) {
			if err := m.arity("append", args, 1, 1); err != nil {
				return nil, err
			}
			l.Items = append(l.Items, args[0])
			return nil, nil
		}
	case "extend":
		return func(_ context.Context, args []any, _ map[string]any) (any, error) {
			if err := m.arity("extend", args, 1, 1); err != nil {
				return nil, err
			}
			items, err := m.iterate(args[0])
			if err != nil {
				return nil, err
			}
			l.Items = append(l.Items, items...)
			return nil, nil
		}
	case "insert":
		return func(_ context.Context, args []any, _ map[string]any) (any, error) {
			if err := m.arity("insert", args, 2, 2); err != nil {
				return nil, err
			}
			i, _ := args[0].(int64)
			if i < 0 {
				i += int64(len(l.Items))
			}
			i = max(0, min(i, int64(len(l.Items))))
			l.Items = append(l.Items, nil)
			copy(l.Items[i+1:], l.Items[i:])
			l.Items[i] = args[1]
			return nil, nil
		}
	case "pop":
		return func(_ context.Context, args []any, _ map[string]any) (any, error) {
			if len(l.Items) == 0 {
				return nil, m.raise("IndexError", "pop from empty list")
			}
			var at any = int64(-1)
			if len(args) > 0 {
				at = args[0]
			}
			i, err := m.index(at, len(l.Items))
			if err != nil {
				return nil, err
			}
			v := l.Items[i]
			l.Items = append(l.Items[:i], l.Items[i+1:]...)
			return v, nil
		}
	case "index":
		return func(_ context.Context, args []any, _ map[string]any) (any, error) {
			if err := m.arity("index", args, 1, 1); err != nil {
				return nil, err
			}
			for i, x := range l.Items {
				if Equal(x, args[0]) {
					return int64(i), nil
				}
			}
			return nil, m.raise("ValueError", "%s is not in list", Repr(args[0]))
		}
	case "count":
		return func(_ context.Context, args []any, _ map[string]any) (any, error) {
			if err := m.arity("count", args, 1, 1); err != nil {
				return nil, err
			}
			n := int64(0)
			for _, x := range l.Items {
				if Equal(x, args[0]) {
					n++
				}
			}
			return n, nil
		}
	}
	return nil
}

func (m *Module) dictMethod(d *Dict, name string) builtinFn {
	switch name {
	case "get":
		return func(_ context.Context, args []any, _ map[string]any) (any, error) {
			if err := m.arity("get", args, 1, 2); err != nil {
				return nil, err
			}
			if v, ok := d.Get(args[0]); ok {
				return v, nil
			}
			if len(args) > 1 {
				return args[1], nil
			}
			return nil, nil
		}
	case "keys":
		return func(context.Context, []any, map[string]any) (any, error) { return NewList(d.Keys()...), nil }
	case "values":
		return func(context.Context, []any, map[string]any) (any, error) {
			out := make([]any, 0, d.Len())
			for _, k := range d.keys {
				out = append(out, d.m[k])
			}
			return NewList(out...), nil
		}
	case "items":
		return func(context.Context, []any, map[string]any) (any, error) {
			out := make([]any, 0, d.Len())
			for _, k := range d.keys {
				out = append(out, NewList(k, d.m[k]))
			}
			return NewList(out...), nil
		}
	case "pop":
		return func(_ context.Context, args []any, _ map[string]any) (any, error) {
			if err := m.arity("pop", args, 1, 2); err != nil {
				return nil, err
			}
			if v, ok := d.Get(args[0]); ok {
				d.Delete(args[0])
				return v, nil
			}
			if len(args) > 1 {
				return args[1], nil
			}
			return nil, m.raise("KeyError", "%s", Repr(args[0]))
		}
	case "update":
		return func(_ context.Context, args []any, kwargs map[string]any) (any, error) {
			if len(args) > 0 {
				src, ok := args[0].(*Dict)
				if !ok {
					return nil, m.raise("TypeError", "update() argument must be a dict")
				}
				for _, k := range src.keys {
					d.Set(k, src.m[k])
				}
			}
			for k, v := range kwargs {
				d.Set(k, v)
			}
			return nil, nil
		}
	}
	return nil
}

func (m *Module) strMethod(s, name string) builtinFn {
	str1 := func(fn func(string) any) builtinFn {
		return func(_ context.Context, args []any, _ map[string]any) (any, error) {
			if err := m.arity(name, args, 1, 1); err != nil {
				return nil, err
			}
			a, ok := args[0].(string)
			if !ok {
				return nil, m.raise("TypeError", "%s() argument must be str, not %s", name, TypeName(args[0]))
			}
			return fn(a), nil
		}
	}
	switch name {
	case "upper":
		return func(context.Context, []any, map[string]any) (any, error) { return strings.ToUpper(s), nil }
	case "lower":
		return func(context.Context, []any, map[string]any) (any, error) { return strings.ToLower(s), nil }
	case "strip":
		return func(context.Context, []any, map[string]any) (any, error) { return strings.TrimSpace(s), nil }
	case "startswith":
		return str1(func(p string) any { return strings.HasPrefix(s, p) })
	case "endswith":
		return str1(func(p string) any { return strings.HasSuffix(s, p) })
	case "split":
		return func(_ context.Context, args []any, _ map[string]any) (any, error) {
			var parts []string
			if len(args) > 0 {
				sep, _ := args[0].(string)
				parts = strings.Split(s, sep)
			} else {
				parts = strings.Fields(s)
			}
			out := make([]any, len(parts))
			for i, p := range parts {
				out[i] = p
			}
			return NewList(out...), nil
		}
	case "join":
		return func(_ context.Context, args []any, _ map[string]any) (any, error) {
			if err := m.arity("join", args, 1, 1); err != nil {
				return nil, err
			}
			items, err := m.iterate(args[0])
			if err != nil {
				return nil, err
			}
			parts := make([]string, len(items))
			for i, it := range items {
				p, ok := it.(string)
				if !ok {
					return nil, m.raise("TypeError", "sequence item %d: expected str instance, %s found", i, TypeName(it))
				}
				parts[i] = p
			}
			return strings.Join(parts, s), nil
		}
	case "replace":
		return func(_ context.Context, args []any, _ map[string]any) (any, error) {
			if err := m.arity("replace", args, 2, 2); err != nil {
				return nil, err
			}
			return strings.ReplaceAll(s, Str(args[0]), Str(args[1])), nil
		}
	case "format":
		return func(_ context.Context, args []any, kwargs map[string]any) (any, error) {
			return m.format(s, args, kwargs)
		}
	}
	return nil
}

// format implements str.format for {}, {0} and {name} fields.
func (m *Module) format(s string, args []any, kwargs map[string]any) (any, error) {
	var b strings.Builder
	next := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '{' && i+1 < len(s) && s[i+1] == '{' {
			b.WriteByte('{')
			i++
			continue
		}
		if c == '}' && i+1 < len(s) && s[i+1] == '}' {
			b.WriteByte('}')
			i++
			continue
		}
		if c != '{' {
			b.WriteByte(c)
			continue
		}
		end := strings.IndexByte(s[i:], '}')
		if end < 0 {
			return nil, m.raise("ValueError", "single '{' encountered in format string")
		}
		field := s[i+1 : i+end]
		i += end
		var v any
		switch n, err := strconv.Atoi(field); {
		case field == "":
			if next >= len(args) {
				return nil, m.raise("IndexError", "replacement index %d out of range", next)
			}
			v = args[next]
			next++
		case err == nil:
			if n >= len(args) {
				return nil, m.raise("IndexError", "replacement index %d out of range", n)
			}
			v = args[n]
		default:
			got, ok := kwargs[field]
			if !ok {
				return nil, m.raise("KeyError", "%s", Repr(field))
			}
			v = got
		}
		b.WriteString(Str(v))
	}
	return b.String(), nil
}
