package handlers

import (
	"fmt"
	"strings"

	"github.com/jward/mixweave/internal/dispatch"
	"github.com/jward/mixweave/internal/location"
	"github.com/jward/mixweave/internal/model"
	"github.com/jward/mixweave/internal/tree"
)

// HEAD: one synthetic candidate before the first statement.
type headHandler struct{}

func (headHandler) Kind() model.Kind { return model.Head }

func (headHandler) Find(s *Scope, _ model.At) ([]location.Candidate, error) {
	if !s.IsFunction() {
		return nil, nil
	}
	return []location.Candidate{{Node: s.Node, Pos: tree.Pos{Stmt: -1}, Line: s.T.Node(s.Node).Line}}, nil
}

func (headHandler) Instrument(s *Scope, c location.Candidate, site *dispatch.Site) error {
	s.prepend(s.Body, stmtHook(s, site, "", c.Line))
	return nil
}

// PARAMETER: the named parameter, positioned at entry in parameter order.
type parameterHandler struct{}

func (parameterHandler) Kind() model.Kind { return model.Parameter }

func (parameterHandler) Find(s *Scope, at model.At) ([]location.Candidate, error) {
	if !s.IsFunction() {
		return nil, nil
	}
	want := at.Path()
	var out []location.Candidate
	for i, p := range s.T.Params(s.Node) {
		if s.T.Node(p).Name == want {
			out = append(out, location.Candidate{Node: p, Pos: tree.Pos{Stmt: -1, Sub: i + 1}, Line: s.T.Node(p).Line})
		}
	}
	return out, nil
}

func (parameterHandler) Instrument(s *Scope, c location.Candidate, site *dispatch.Site) error {
	s.prepend(s.Body, stmtHook(s, site, s.T.Node(c.Node).Name, c.Line))
	return nil
}

// TAIL: every return statement plus the implicit return at the end of a body
// control can fall off. The implicit candidate is the body block itself.
type tailHandler struct{}

func (tailHandler) Kind() model.Kind { return model.Tail }

func (tailHandler) Find(s *Scope, _ model.At) ([]location.Candidate, error) {
	if !s.IsFunction() {
		return nil, nil
	}
	var out []location.Candidate
	for _, st := range s.stmts {
		if s.T.Kind(st) == tree.Return {
			out = append(out, s.candidate(st))
		}
	}
	if !s.T.Terminates(s.Body) {
		line := s.T.Node(s.Node).Line
		if n := len(s.T.Children(s.Body)); n > 0 {
			line = s.T.Node(s.T.Children(s.Body)[n-1]).Line
		}
		out = append(out, location.Candidate{Node: s.Body, Pos: tree.Pos{Stmt: len(s.stmts)}, Line: line})
	}
	return out, nil
}

func (tailHandler) Instrument(s *Scope, c location.Candidate, site *dispatch.Site) error {
	if c.Node == s.Body {
		h := hook(s, site, "", c.Line)
		ret := s.add(tree.Node{Kind: tree.Return, Line: c.Line, Flags: tree.FlagSynthetic, Children: []tree.NodeID{h}})
		s.T.AppendChild(s.Body, ret)
		s.parents[ret] = s.Body
		return nil
	}
	value := s.T.Child(c.Node, 0)
	if value == tree.None {
		h := hook(s, site, "", c.Line)
		s.T.AppendChild(c.Node, h)
		s.parents[h] = c.Node
		return nil
	}
	return s.wrap(value, func() tree.NodeID { return hook(s, site, "", c.Line, value) })
}

// CONST: literals equal to the discriminator, compared by value and type
// family.
type constHandler struct{}

func (constHandler) Kind() model.Kind { return model.Const }

func (constHandler) Find(s *Scope, at model.At) ([]location.Candidate, error) {
	want := model.ConstKey(at.Name)
	var out []location.Candidate
	s.inline(func(id tree.NodeID) {
		n := s.T.Node(id)
		if n.Kind == tree.Const && model.ConstKey(n.Value) == want {
			out = append(out, s.candidate(id))
		}
	})
	return out, nil
}

func (constHandler) Instrument(s *Scope, c location.Candidate, site *dispatch.Site) error {
	return s.wrap(c.Node, func() tree.NodeID { return hook(s, site, "", c.Line, c.Node) })
}

// INVOKE: calls whose resolved path equals the discriminator and, when
// present, satisfy the structural selector.
type invokeHandler struct{}

func (invokeHandler) Kind() model.Kind { return model.Invoke }

func (invokeHandler) Find(s *Scope, at model.At) ([]location.Candidate, error) {
	path := at.Path()
	var out []location.Candidate
	var firstErr error
	s.inline(func(id tree.NodeID) {
		if firstErr != nil || s.T.Kind(id) != tree.Call {
			return
		}
		if path != "" && s.T.DottedString(s.T.Child(id, 0)) != path {
			return
		}
		if at.Selector != nil {
			ok, err := at.Selector.Match(s.T, id)
			if err != nil {
				firstErr = err
				return
			}
			if !ok {
				return
			}
		}
		out = append(out, s.candidate(id))
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (invokeHandler) Instrument(s *Scope, c location.Candidate, site *dispatch.Site) error {
	return s.wrap(c.Node, func() tree.NodeID {
		return hook(s, site, s.T.DottedString(s.T.Child(c.Node, 0)), c.Line, c.Node)
	})
}

// ATTRIBUTE: assignments and augmented assignments whose target is the
// discriminator path.
type attributeHandler struct{}

func (attributeHandler) Kind() model.Kind { return model.Attribute }

func (attributeHandler) Find(s *Scope, at model.At) ([]location.Candidate, error) {
	want := at.Path()
	var out []location.Candidate
	for _, st := range s.stmts {
		switch s.T.Kind(st) {
		case tree.Assign, tree.AugAssign:
			target := s.T.Child(st, 0)
			if s.T.Kind(target) == tree.Attr && s.T.DottedString(target) == want {
				out = append(out, s.candidate(st))
			}
		}
	}
	return out, nil
}

// Instrument routes the written value through the hook. An augmented
// assignment becomes a plain one whose value recomputes target op value.
func (attributeHandler) Instrument(s *Scope, c location.Candidate, site *dispatch.Site) error {
	st := c.Node
	target := s.T.Child(st, 0)
	value := s.T.Child(st, 1)
	path := s.T.DottedString(target)
	if s.T.Kind(st) == tree.AugAssign {
		op := s.T.Node(st).Name
		read := s.T.CopySubtree(target)
		bin := s.add(tree.Node{Kind: tree.BinOp, Name: op, Line: c.Line, Flags: tree.FlagSynthetic,
			Children: []tree.NodeID{read, value}})
		h := hook(s, site, path, c.Line, bin)
		n := s.T.Node(st)
		n.Kind = tree.Assign
		n.Name = ""
		s.T.SetChild(st, 1, h)
		s.parents[h] = st
		return nil
	}
	return s.wrap(value, func() tree.NodeID { return hook(s, site, path, c.Line, value) })
}

// EXCEPTION: except clauses catching the discriminator (every clause when it
// is empty), plus, for an empty discriminator, the function boundary. The
// boundary candidate is the function node itself.
type exceptionHandler struct{}

func (exceptionHandler) Kind() model.Kind { return model.Exception }

func (exceptionHandler) Find(s *Scope, at model.At) ([]location.Candidate, error) {
	want := at.Path()
	var out []location.Candidate
	for _, st := range s.stmts {
		if s.T.Kind(st) == tree.Handler && handlerCatches(s.T, st, want) {
			out = append(out, s.candidate(st))
		}
	}
	if want == "" && s.IsFunction() {
		out = append(out, location.Candidate{Node: s.Node, Pos: tree.Pos{Stmt: len(s.stmts), Sub: 1}, Line: s.T.Node(s.Node).Line})
	}
	return out, nil
}

func handlerCatches(t *tree.Tree, h tree.NodeID, want string) bool {
	if want == "" {
		return true
	}
	typ := t.Child(h, 1)
	if typ == tree.None {
		return false
	}
	if t.Kind(typ) == tree.ListLit {
		for _, e := range t.Children(typ) {
			if classMatches(t.DottedString(e), want) {
				return true
			}
		}
		return false
	}
	return classMatches(t.DottedString(typ), want)
}

func classMatches(got, want string) bool {
	if got == "" {
		return false
	}
	return got == want || strings.HasSuffix(got, "."+want) || strings.HasSuffix(want, "."+got)
}

func (exceptionHandler) Instrument(s *Scope, c location.Candidate, site *dispatch.Site) error {
	if c.Node != s.Node {
		body := s.T.Child(c.Node, 0)
		s.prepend(body, stmtHook(s, site, s.T.Node(c.Node).Name, c.Line))
		return nil
	}
	if !s.IsFunction() {
		return fmt.Errorf("handlers: EXCEPTION boundary needs a function, got %s", s.T.Kind(s.Node))
	}
	// def f(): body  becomes  def f(): try: body / except: <hook>; raise
	old := append([]tree.NodeID(nil), s.T.Children(s.Body)...)
	inner := s.add(tree.Node{Kind: tree.Block, Flags: tree.FlagSynthetic, Children: old})
	reraise := s.add(tree.Node{Kind: tree.Raise, Line: c.Line, Flags: tree.FlagSynthetic})
	hbody := s.add(tree.Node{Kind: tree.Block, Flags: tree.FlagSynthetic,
		Children: []tree.NodeID{stmtHook(s, site, "", c.Line), reraise}})
	handler := s.add(tree.Node{Kind: tree.Handler, Line: c.Line, Flags: tree.FlagSynthetic, Children: []tree.NodeID{hbody}})
	orelse := s.add(tree.Node{Kind: tree.Block, Flags: tree.FlagSynthetic})
	finally := s.add(tree.Node{Kind: tree.Block, Flags: tree.FlagSynthetic})
	try := s.add(tree.Node{Kind: tree.Try, Line: c.Line, Flags: tree.FlagSynthetic,
		Children: []tree.NodeID{inner, orelse, finally, handler}})
	s.T.Node(s.Body).Children = []tree.NodeID{try}
	s.parents[try] = s.Body
	return nil
}

// YIELD: every yield expression of the body.
type yieldHandler struct{}

func (yieldHandler) Kind() model.Kind { return model.Yield }

func (yieldHandler) Find(s *Scope, _ model.At) ([]location.Candidate, error) {
	var out []location.Candidate
	s.inline(func(id tree.NodeID) {
		if s.T.Kind(id) == tree.Yield {
			out = append(out, s.candidate(id))
		}
	})
	return out, nil
}

func (yieldHandler) Instrument(s *Scope, c location.Candidate, site *dispatch.Site) error {
	value := s.T.Child(c.Node, 0)
	return s.wrap(c.Node, func() tree.NodeID {
		if value == tree.None {
			return hook(s, site, "", c.Line)
		}
		return hook(s, site, "", c.Line, value)
	})
}
