package interp

import (
	"context"
	"fmt"

	"github.com/jward/mixweave/internal/dispatch"
	"github.com/jward/mixweave/internal/model"
	"github.com/jward/mixweave/internal/tree"
)

func (m *Module) site(id string) (*dispatch.Site, error) {
	s, ok := m.table[id]
	if !ok {
		return nil, fmt.Errorf("interp: %s: unknown site %s", m.Name, id)
	}
	return s, nil
}

// request snapshots the enclosing call for a dispatch.
func (m *Module) request(f *frame) dispatch.Request {
	req := dispatch.Request{Self: f.self, Locals: make(map[string]any, len(f.vars))}
	for k, v := range f.vars {
		req.Locals[k] = v
	}
	if f.fn == nil {
		return req
	}
	t := m.tree
	params := t.Params(f.fn.Node)
	if f.fn.Class != nil && len(params) > 0 {
		params = params[1:]
	}
	star := false
	for _, p := range params {
		n := t.Node(p)
		v := f.vars[n.Name]
		switch {
		case n.Has(tree.FlagVarArgs):
			star = true
			if l, ok := v.(*List); ok {
				req.Args = append(req.Args, l.Items...)
			}
		case n.Has(tree.FlagKwArgs):
			if d, ok := v.(*Dict); ok {
				if req.Kwargs == nil {
					req.Kwargs = map[string]any{}
				}
				for _, k := range d.keys {
					req.Kwargs[Str(k)] = d.m[k]
				}
			}
		case star:
			if req.Kwargs == nil {
				req.Kwargs = map[string]any{}
			}
			req.Kwargs[n.Name] = v
		default:
			req.Args = append(req.Args, v)
		}
	}
	return req
}

// stmtHook runs a HEAD, PARAMETER or EXCEPTION hook. A cancel returns from
// the enclosing function with the cancel value; generators ignore it.
func (m *Module) stmtHook(ctx context.Context, f *frame, id tree.NodeID) (flow, error) {
	n := m.tree.Node(id)
	site, err := m.site(n.Site)
	if err != nil {
		return flowNormal, err
	}
	aux, _ := n.Value.(string)
	kind := model.Kind(n.Name)

	req := m.request(f)
	switch kind {
	case model.Parameter:
		req.Param = aux
		req.Value = f.vars[aux]
	case model.Exception:
		if f.curExc != nil {
			req.Exception = f.curExc
			req.Value = f.curExc
		}
	}

	out, err := m.rt.Dispatch(ctx, site, req)
	if err != nil {
		return flowNormal, err
	}
	if out.Cancelled {
		f.ret = FromGo(out.Value)
		return flowReturn, nil
	}
	if kind == model.Parameter {
		f.vars[aux] = FromGo(out.Value)
	}
	return flowNormal, nil
}

// evalHook runs an expression hook and yields the value that replaces the
// wrapped expression.
func (m *Module) evalHook(ctx context.Context, f *frame, id tree.NodeID) (any, error) {
	t := m.tree
	n := t.Node(id)
	kind := model.Kind(n.Name)
	site, err := m.site(n.Site)
	if err != nil {
		return nil, err
	}
	aux, _ := n.Value.(string)
	operand := t.Child(id, 0)
	req := m.request(f)

	switch kind {
	case model.Invoke:
		return m.invokeHook(ctx, f, site, operand, req)
	case model.Head, model.Parameter, model.Exception:
		return nil, fmt.Errorf("interp: %s hook %s outside statement position", kind, site.ID)
	}

	var v any
	if operand != tree.None {
		if v, err = m.eval(ctx, f, operand); err != nil {
			return nil, err
		}
	}
	req.Value = v
	if kind == model.Attribute {
		req.Attr = aux
	}
	if kind == model.Yield && f.gen == nil {
		return nil, m.raise("SyntaxError", "'yield' outside function")
	}

	out, err := m.rt.Dispatch(ctx, site, req)
	if err != nil {
		return nil, err
	}
	if kind == model.Yield {
		f.gen.Items = append(f.gen.Items, FromGo(out.Value))
		if out.Cancelled {
			return nil, errStopGenerator
		}
		return nil, nil
	}
	return FromGo(out.Value), nil
}

// invokeHook dispatches a wrapped call. The callee and arguments are
// evaluated once; the original runs the call with whatever arguments the
// callbacks left in place.
func (m *Module) invokeHook(ctx context.Context, f *frame, site *dispatch.Site, call tree.NodeID, req dispatch.Request) (any, error) {
	if m.tree.Kind(call) != tree.Call {
		// The call is already wrapped by another discriminator's hook.
		req.Original = func(ctx context.Context, _ []any, _ map[string]any) (any, error) {
			return m.eval(ctx, f, call)
		}
	} else {
		callee, args, kwargs, err := m.callParts(ctx, f, call)
		if err != nil {
			return nil, err
		}
		req.CallArgs = args
		req.CallKwargs = kwargs
		req.Original = func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
			return m.call(ctx, callee, convertArgs(args), convertKwargs(kwargs))
		}
	}
	out, err := m.rt.Dispatch(ctx, site, req)
	if err != nil {
		return nil, err
	}
	return FromGo(out.Value), nil
}
