package interp

import (
	"context"
	"errors"
	"sort"

	"github.com/jward/mixweave/internal/dispatch"
	"github.com/jward/mixweave/internal/tree"
)

func (m *Module) eval(ctx context.Context, f *frame, id tree.NodeID) (any, error) {
	t := m.tree
	n := t.Node(id)
	switch n.Kind {
	case tree.Const:
		return FromGo(n.Value), nil

	case tree.Name:
		if v, ok := f.lookup(n.Name); ok {
			return v, nil
		}
		return nil, m.raise("NameError", "name '%s' is not defined", n.Name)

	case tree.Attr:
		obj, err := m.eval(ctx, f, t.Child(id, 0))
		if err != nil {
			return nil, err
		}
		return m.getattr(obj, n.Name)

	case tree.Call:
		callee, args, kwargs, err := m.callParts(ctx, f, id)
		if err != nil {
			return nil, err
		}
		return m.call(ctx, callee, args, kwargs)

	case tree.BinOp:
		l, err := m.eval(ctx, f, t.Child(id, 0))
		if err != nil {
			return nil, err
		}
		r, err := m.eval(ctx, f, t.Child(id, 1))
		if err != nil {
			return nil, err
		}
		return m.binary(n.Name, l, r)

	case tree.BoolOp:
		l, err := m.eval(ctx, f, t.Child(id, 0))
		if err != nil {
			return nil, err
		}
		if (n.Name == "and") != Truthy(l) {
			return l, nil
		}
		return m.eval(ctx, f, t.Child(id, 1))

	case tree.Compare:
		l, err := m.eval(ctx, f, t.Child(id, 0))
		if err != nil {
			return nil, err
		}
		r, err := m.eval(ctx, f, t.Child(id, 1))
		if err != nil {
			return nil, err
		}
		return m.compare(n.Name, l, r)

	case tree.UnaryOp:
		x, err := m.eval(ctx, f, t.Child(id, 0))
		if err != nil {
			return nil, err
		}
		return m.unary(n.Name, x)

	case tree.CondExpr:
		c, err := m.eval(ctx, f, t.Child(id, 0))
		if err != nil {
			return nil, err
		}
		if Truthy(c) {
			return m.eval(ctx, f, t.Child(id, 1))
		}
		return m.eval(ctx, f, t.Child(id, 2))

	case tree.ListLit:
		items := make([]any, 0, len(n.Children))
		for _, e := range t.Children(id) {
			if t.Kind(e) == tree.Starred {
				v, err := m.eval(ctx, f, t.Child(e, 0))
				if err != nil {
					return nil, err
				}
				more, err := m.iterate(v)
				if err != nil {
					return nil, err
				}
				items = append(items, more...)
				continue
			}
			v, err := m.eval(ctx, f, e)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return NewList(items...), nil

	case tree.DictLit:
		d := NewDict()
		kids := t.Children(id)
		for i := 0; i+1 < len(kids); i += 2 {
			k, err := m.eval(ctx, f, kids[i])
			if err != nil {
				return nil, err
			}
			v, err := m.eval(ctx, f, kids[i+1])
			if err != nil {
				return nil, err
			}
			d.Set(k, v)
		}
		return d, nil

	case tree.Subscript:
		obj, err := m.eval(ctx, f, t.Child(id, 0))
		if err != nil {
			return nil, err
		}
		key, err := m.eval(ctx, f, t.Child(id, 1))
		if err != nil {
			return nil, err
		}
		return m.getitem(obj, key)

	case tree.Yield:
		if f.gen == nil {
			return nil, m.raise("SyntaxError", "'yield' outside function")
		}
		var v any
		if val := t.Child(id, 0); val != tree.None {
			var err error
			if v, err = m.eval(ctx, f, val); err != nil {
				return nil, err
			}
		}
		f.gen.Items = append(f.gen.Items, v)
		return nil, nil

	case tree.Hook:
		return m.evalHook(ctx, f, id)
	}
	return nil, m.raise("SyntaxError", "cannot evaluate %s", n.Kind)
}

// callParts evaluates the callee and arguments of a Call node, expanding
// starred arguments. Keyword collisions fail with dispatch.ErrDuplicateKeyword.
func (m *Module) callParts(ctx context.Context, f *frame, call tree.NodeID) (any, []any, map[string]any, error) {
	t := m.tree
	kids := t.Children(call)
	callee, err := m.eval(ctx, f, kids[0])
	if err != nil {
		return nil, nil, nil, err
	}
	var args []any
	var kwargs map[string]any
	for _, a := range kids[1:] {
		switch t.Kind(a) {
		case tree.Starred:
			v, err := m.eval(ctx, f, t.Child(a, 0))
			if err != nil {
				return nil, nil, nil, err
			}
			more, err := m.iterate(v)
			if err != nil {
				return nil, nil, nil, err
			}
			args = append(args, more...)
		case tree.Keyword:
			v, err := m.eval(ctx, f, t.Child(a, 0))
			if err != nil {
				return nil, nil, nil, err
			}
			if kwargs, err = dispatch.MergeKwargs(kwargs, map[string]any{t.Node(a).Name: v}); err != nil {
				return nil, nil, nil, err
			}
		case tree.DoubleStarred:
			v, err := m.eval(ctx, f, t.Child(a, 0))
			if err != nil {
				return nil, nil, nil, err
			}
			spread, err := m.kwargsOf(v)
			if err != nil {
				return nil, nil, nil, err
			}
			if kwargs, err = dispatch.MergeKwargs(kwargs, spread); err != nil {
				return nil, nil, nil, err
			}
		default:
			v, err := m.eval(ctx, f, a)
			if err != nil {
				return nil, nil, nil, err
			}
			args = append(args, v)
		}
	}
	return callee, args, kwargs, nil
}

func (m *Module) kwargsOf(v any) (map[string]any, error) {
	d, ok := v.(*Dict)
	if !ok {
		return nil, m.raise("TypeError", "argument after ** must be a mapping, not %s", TypeName(v))
	}
	out := make(map[string]any, d.Len())
	for _, k := range d.keys {
		s, ok := k.(string)
		if !ok {
			return nil, m.raise("TypeError", "keywords must be strings")
		}
		out[s] = d.m[k]
	}
	return out, nil
}

func (m *Module) call(ctx context.Context, callee any, args []any, kwargs map[string]any) (any, error) {
	switch c := callee.(type) {
	case *Function:
		return m.callFunction(ctx, c, args, kwargs)
	case *BoundMethod:
		return m.callFunction(ctx, c.Fn, append([]any{c.Self}, args...), kwargs)
	case *Builtin:
		return c.Fn(ctx, args, kwargs)
	case *HostMethod:
		if len(args) == 0 {
			return nil, m.raise("TypeError", "%s() missing self", c.Name)
		}
		return c.invoke(ctx, args[0], args[1:], kwargs)
	case *Class:
		return m.instantiate(ctx, c, args, kwargs)
	}
	return nil, m.raise("TypeError", "'%s' object is not callable", TypeName(callee))
}

func (m *Module) callFunction(ctx context.Context, fn *Function, args []any, kwargs map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.depth >= MaxDepth {
		return nil, m.raise("RecursionError", "maximum recursion depth exceeded")
	}
	m.depth++
	defer func() { m.depth-- }()

	t := m.tree
	f := &frame{module: m, vars: map[string]any{}, parent: fn.closure, fn: fn}
	if err := m.bind(fn, f, args, kwargs); err != nil {
		return nil, err
	}
	if fn.Class != nil {
		if params := t.Params(fn.Node); len(params) > 0 {
			f.self = f.vars[t.Node(params[0]).Name]
		}
	}
	if t.Node(fn.Node).Has(tree.FlagGenerator) {
		f.gen = NewList()
	}

	fl, err := m.execBlock(ctx, f, t.Body(fn.Node))
	if f.gen != nil {
		if err != nil && !errors.Is(err, errStopGenerator) {
			return nil, err
		}
		return f.gen, nil
	}
	if err != nil {
		return nil, err
	}
	if fl == flowReturn {
		return f.ret, nil
	}
	return nil, nil
}

// bind assigns call arguments to the parameters of fn in f.
func (m *Module) bind(fn *Function, f *frame, args []any, kwargs map[string]any) error {
	t := m.tree
	var positional, kwonly []string
	var star, starstar string
	for _, p := range t.Params(fn.Node) {
		n := t.Node(p)
		switch {
		case n.Has(tree.FlagVarArgs):
			star = n.Name
		case n.Has(tree.FlagKwArgs):
			starstar = n.Name
		case star != "":
			kwonly = append(kwonly, n.Name)
		default:
			positional = append(positional, n.Name)
		}
	}

	for i, name := range positional {
		if i < len(args) {
			f.vars[name] = args[i]
		}
	}
	if len(args) > len(positional) {
		if star == "" {
			return m.raise("TypeError", "%s() takes %d positional arguments but %d were given", fn.Name, len(positional), len(args))
		}
		f.vars[star] = NewList(append([]any(nil), args[len(positional):]...)...)
	} else if star != "" {
		f.vars[star] = NewList()
	}

	named := map[string]bool{}
	for _, name := range append(append([]string(nil), positional...), kwonly...) {
		named[name] = true
	}
	var rest *Dict
	if starstar != "" {
		rest = NewDict()
	}
	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch {
		case named[k]:
			if _, dup := f.vars[k]; dup {
				return m.raise("TypeError", "%s() got multiple values for argument '%s'", fn.Name, k)
			}
			f.vars[k] = kwargs[k]
		case rest != nil:
			rest.Set(k, kwargs[k])
		default:
			return m.raise("TypeError", "%s() got an unexpected keyword argument '%s'", fn.Name, k)
		}
	}
	if rest != nil {
		f.vars[starstar] = rest
	}

	for _, name := range append(append([]string(nil), positional...), kwonly...) {
		if _, ok := f.vars[name]; ok {
			continue
		}
		def, ok := fn.Defaults[name]
		if !ok {
			return m.raise("TypeError", "%s() missing required argument: '%s'", fn.Name, name)
		}
		f.vars[name] = def
	}
	return nil
}

func (m *Module) instantiate(ctx context.Context, c *Class, args []any, kwargs map[string]any) (any, error) {
	var self any
	if c.isError {
		self = &Exception{Class: c, Args: args, Attrs: map[string]any{}}
	} else {
		self = &Object{Class: c, Attrs: map[string]any{}}
	}
	init, ok := c.Lookup("__init__")
	if fn, isFn := init.(*Function); ok && isFn {
		if _, err := m.callFunction(ctx, fn, append([]any{self}, args...), kwargs); err != nil {
			return nil, err
		}
		return self, nil
	}
	if !c.isError && (len(args) > 0 || len(kwargs) > 0) {
		return nil, m.raise("TypeError", "%s() takes no arguments", c.Name)
	}
	return self, nil
}

func (m *Module) getattr(v any, name string) (any, error) {
	var got any
	var ok bool
	switch x := v.(type) {
	case *Object:
		got, ok = x.Attr(name)
	case *Exception:
		got, ok = x.Attr(name)
		if fn, isFn := got.(*Function); isFn {
			got = &BoundMethod{Self: x, Fn: fn}
		}
	case *Class:
		got, ok = x.Attr(name)
	case *List, *Dict, string:
		if b := m.method(x, name); b != nil {
			return b, nil
		}
	}
	if ok {
		return got, nil
	}
	return nil, m.raise("AttributeError", "'%s' object has no attribute '%s'", TypeName(v), name)
}

func (m *Module) setattr(v any, name string, val any) error {
	switch x := v.(type) {
	case *Object:
		x.Attrs[name] = val
		return nil
	case *Exception:
		x.Attrs[name] = val
		return nil
	case *Class:
		x.Attrs[name] = val
		return nil
	}
	return m.raise("AttributeError", "'%s' object attribute '%s' is read-only", TypeName(v), name)
}

func (m *Module) index(i any, n int) (int, error) {
	var k int64
	switch x := i.(type) {
	case int64:
		k = x
	case bool:
		if x {
			k = 1
		}
	default:
		return 0, m.raise("TypeError", "indices must be integers, not %s", TypeName(i))
	}
	if k < 0 {
		k += int64(n)
	}
	if k < 0 || k >= int64(n) {
		return 0, m.raise("IndexError", "index out of range")
	}
	return int(k), nil
}

func (m *Module) getitem(obj, key any) (any, error) {
	switch x := obj.(type) {
	case *List:
		i, err := m.index(key, len(x.Items))
		if err != nil {
			return nil, err
		}
		return x.Items[i], nil
	case string:
		r := []rune(x)
		i, err := m.index(key, len(r))
		if err != nil {
			return nil, err
		}
		return string(r[i]), nil
	case *Dict:
		if v, ok := x.Get(key); ok {
			return v, nil
		}
		return nil, m.raise("KeyError", "%s", Repr(key))
	}
	return nil, m.raise("TypeError", "'%s' object is not subscriptable", TypeName(obj))
}

func (m *Module) setitem(obj, key, v any) error {
	switch x := obj.(type) {
	case *List:
		i, err := m.index(key, len(x.Items))
		if err != nil {
			return err
		}
		x.Items[i] = v
		return nil
	case *Dict:
		x.Set(key, v)
		return nil
	}
	return m.raise("TypeError", "'%s' object does not support item assignment", TypeName(obj))
}

// iterate returns the elements a for loop over v visits.
func (m *Module) iterate(v any) ([]any, error) {
	switch x := v.(type) {
	case *List:
		return append([]any(nil), x.Items...), nil
	case *Dict:
		return x.Keys(), nil
	case string:
		out := make([]any, 0, len(x))
		for _, r := range x {
			out = append(out, string(r))
		}
		return out, nil
	}
	return nil, m.raise("TypeError", "'%s' object is not iterable", TypeName(v))
}
