package interp

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/jward/mixweave/internal/model"
	"github.com/jward/mixweave/internal/tree"
)

func (m *Module) execBlock(ctx context.Context, f *frame, block tree.NodeID) (flow, error) {
	if block == tree.None {
		return flowNormal, nil
	}
	for _, st := range m.tree.Children(block) {
		fl, err := m.execStmt(ctx, f, st)
		if err != nil || fl != flowNormal {
			return fl, err
		}
	}
	return flowNormal, nil
}

func (m *Module) execStmt(ctx context.Context, f *frame, id tree.NodeID) (flow, error) {
	t := m.tree
	n := t.Node(id)
	switch n.Kind {
	case tree.ExprStmt:
		expr := t.Child(id, 0)
		if t.Kind(expr) == tree.Hook {
			switch model.Kind(t.Node(expr).Name) {
			case model.Head, model.Parameter, model.Exception:
				return m.stmtHook(ctx, f, expr)
			}
		}
		_, err := m.eval(ctx, f, expr)
		return flowNormal, err

	case tree.Assign:
		v, err := m.eval(ctx, f, t.Child(id, 1))
		if err != nil {
			return flowNormal, err
		}
		return flowNormal, m.assign(ctx, f, t.Child(id, 0), v)

	case tree.AugAssign:
		target := t.Child(id, 0)
		cur, err := m.eval(ctx, f, target)
		if err != nil {
			return flowNormal, err
		}
		rhs, err := m.eval(ctx, f, t.Child(id, 1))
		if err != nil {
			return flowNormal, err
		}
		v, err := m.binary(n.Name, cur, rhs)
		if err != nil {
			return flowNormal, err
		}
		return flowNormal, m.assign(ctx, f, target, v)

	case tree.Return:
		var v any
		if val := t.Child(id, 0); val != tree.None {
			var err error
			if v, err = m.eval(ctx, f, val); err != nil {
				return flowNormal, err
			}
		}
		f.ret = v
		return flowReturn, nil

	case tree.If:
		cond, err := m.eval(ctx, f, t.Child(id, 0))
		if err != nil {
			return flowNormal, err
		}
		if Truthy(cond) {
			return m.execBlock(ctx, f, t.Child(id, 1))
		}
		return m.execBlock(ctx, f, t.Child(id, 2))

	case tree.While:
		for {
			if err := ctx.Err(); err != nil {
				return flowNormal, err
			}
			cond, err := m.eval(ctx, f, t.Child(id, 0))
			if err != nil {
				return flowNormal, err
			}
			if !Truthy(cond) {
				return flowNormal, nil
			}
			fl, err := m.execBlock(ctx, f, t.Child(id, 1))
			if err != nil {
				return flowNormal, err
			}
			switch fl {
			case flowReturn:
				return fl, nil
			case flowBreak:
				return flowNormal, nil
			}
		}

	case tree.For:
		iter, err := m.eval(ctx, f, t.Child(id, 1))
		if err != nil {
			return flowNormal, err
		}
		items, err := m.iterate(iter)
		if err != nil {
			return flowNormal, err
		}
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return flowNormal, err
			}
			if err := m.assign(ctx, f, t.Child(id, 0), item); err != nil {
				return flowNormal, err
			}
			fl, err := m.execBlock(ctx, f, t.Child(id, 2))
			if err != nil {
				return flowNormal, err
			}
			if fl == flowReturn {
				return fl, nil
			}
			if fl == flowBreak {
				break
			}
		}
		return flowNormal, nil

	case tree.Try:
		return m.execTry(ctx, f, id)

	case tree.Raise:
		return flowNormal, m.execRaise(ctx, f, id)

	case tree.Pass:
		return flowNormal, nil
	case tree.Break:
		return flowBreak, nil
	case tree.Continue:
		return flowContinue, nil

	case tree.FuncDef:
		fn, err := m.define(ctx, f, id)
		if err != nil {
			return flowNormal, err
		}
		f.vars[n.Name] = fn
		return flowNormal, nil

	case tree.ClassDef:
		c, err := m.defineClass(ctx, f, id)
		if err != nil {
			return flowNormal, err
		}
		if f == m.globals {
			m.addMembers(c)
		}
		f.vars[c.Name] = c
		return flowNormal, nil
	}
	return flowNormal, m.raise("RuntimeError", "unsupported statement %s", n.Kind)
}

func (m *Module) execTry(ctx context.Context, f *frame, id tree.NodeID) (flow, error) {
	t := m.tree
	fl, err := m.execBlock(ctx, f, t.Child(id, 0))

	var exc *Exception
	if errors.As(err, &exc) {
		for _, h := range t.Children(id)[3:] {
			ok, herr := m.catches(ctx, f, h, exc)
			if herr != nil {
				fl, err = flowNormal, herr
				break
			}
			if !ok {
				continue
			}
			if name := t.Node(h).Name; name != "" {
				f.vars[name] = exc
			}
			prev := f.curExc
			f.curExc = exc
			fl, err = m.execBlock(ctx, f, t.Child(h, 0))
			f.curExc = prev
			break
		}
	} else if err == nil && fl == flowNormal {
		fl, err = m.execBlock(ctx, f, t.Child(id, 1))
	}

	if fin := t.Child(id, 2); fin != tree.None && len(t.Children(fin)) > 0 {
		ffl, ferr := m.execBlock(ctx, f, fin)
		if ferr != nil || ffl != flowNormal {
			return ffl, ferr
		}
	}
	return fl, err
}

// catches reports whether handler h takes exc.
func (m *Module) catches(ctx context.Context, f *frame, h tree.NodeID, exc *Exception) (bool, error) {
	typ := m.tree.Child(h, 1)
	if typ == tree.None {
		return true, nil
	}
	v, err := m.eval(ctx, f, typ)
	if err != nil {
		return false, err
	}
	return excMatches(exc, v), nil
}

func excMatches(exc *Exception, v any) bool {
	switch c := v.(type) {
	case *Class:
		return exc.Class.derives(c)
	case *List:
		for _, one := range c.Items {
			if excMatches(exc, one) {
				return true
			}
		}
	}
	return false
}

func (m *Module) execRaise(ctx context.Context, f *frame, id tree.NodeID) error {
	val := m.tree.Child(id, 0)
	if val == tree.None {
		for cur := f; cur != nil; cur = cur.parent {
			if cur.curExc != nil {
				return cur.curExc
			}
		}
		return m.raise("RuntimeError", "No active exception to reraise")
	}
	v, err := m.eval(ctx, f, val)
	if err != nil {
		return err
	}
	switch x := v.(type) {
	case *Exception:
		return x
	case *Class:
		if x.isError {
			inst, err := m.call(ctx, x, nil, nil)
			if err != nil {
				return err
			}
			if e, ok := inst.(*Exception); ok {
				return e
			}
		}
	}
	return m.raise("TypeError", "exceptions must derive from BaseException")
}

// assign binds v to a Name, Attr, Subscript or ListLit target.
func (m *Module) assign(ctx context.Context, f *frame, target tree.NodeID, v any) error {
	t := m.tree
	n := t.Node(target)
	switch n.Kind {
	case tree.Name:
		f.vars[n.Name] = v
		return nil
	case tree.Attr:
		obj, err := m.eval(ctx, f, t.Child(target, 0))
		if err != nil {
			return err
		}
		return m.setattr(obj, n.Name, v)
	case tree.Subscript:
		obj, err := m.eval(ctx, f, t.Child(target, 0))
		if err != nil {
			return err
		}
		key, err := m.eval(ctx, f, t.Child(target, 1))
		if err != nil {
			return err
		}
		return m.setitem(obj, key, v)
	case tree.ListLit:
		items, err := m.iterate(v)
		if err != nil {
			return err
		}
		kids := t.Children(target)
		if len(items) != len(kids) {
			return m.raise("ValueError", "expected %d values to unpack, got %d", len(kids), len(items))
		}
		for i, k := range kids {
			if err := m.assign(ctx, f, k, items[i]); err != nil {
				return err
			}
		}
		return nil
	}
	return m.raise("SyntaxError", "cannot assign to %s", n.Kind)
}

// define builds a function object, evaluating defaults now.
func (m *Module) define(ctx context.Context, f *frame, id tree.NodeID) (*Function, error) {
	t := m.tree
	fn := &Function{Name: t.Node(id).Name, Node: id, Defaults: map[string]any{}, module: m}
	closure := f
	if f.classBody {
		closure = f.parent
	}
	if closure != m.globals {
		fn.closure = closure
	}
	for _, p := range t.Params(id) {
		if def := t.Child(p, 0); def != tree.None {
			v, err := m.eval(ctx, f, def)
			if err != nil {
				return nil, err
			}
			fn.Defaults[t.Node(p).Name] = v
		}
	}
	return fn, nil
}

func (m *Module) defineClass(ctx context.Context, f *frame, id tree.NodeID) (*Class, error) {
	t := m.tree
	var bases []*Class
	for _, b := range t.Children(id)[1:] {
		v, err := m.eval(ctx, f, b)
		if err != nil {
			return nil, err
		}
		c, ok := v.(*Class)
		if !ok {
			return nil, m.raise("TypeError", "base %s is not a class", Repr(v))
		}
		bases = append(bases, c)
	}
	c := newClass(t.Node(id).Name, bases...)
	body := &frame{module: m, vars: map[string]any{}, parent: f, classBody: true}
	if f == m.globals {
		body.parent = nil
	}
	if _, err := m.execBlock(ctx, body, t.Child(id, 0)); err != nil {
		return nil, err
	}
	for k, v := range body.vars {
		if fn, ok := v.(*Function); ok {
			fn.Class = c
		}
		c.Attrs[k] = v
	}
	return c, nil
}

// addMembers binds the module's declared members of class c.
func (m *Module) addMembers(c *Class) {
	for _, mem := range m.members {
		if mem.Class != c.Name {
			continue
		}
		if mem.Method != nil {
			c.Attrs[mem.Name] = &HostMethod{Name: mem.Name, Fn: mem.Method}
		} else {
			c.Attrs[mem.Name] = FromGo(mem.Value)
		}
		m.logger.Debug("class member added", zap.String("module", m.Name), zap.String("class", c.Name), zap.String("member", mem.Name))
	}
}
