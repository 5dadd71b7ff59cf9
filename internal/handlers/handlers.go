// Package handlers finds injection candidates inside one member body and
// rewrites the tree at a chosen candidate so it calls into the dispatch
// layer. There is one Handler per injection kind.
package handlers

import (
	"fmt"

	"github.com/jward/mixweave/internal/dispatch"
	"github.com/jward/mixweave/internal/location"
	"github.com/jward/mixweave/internal/model"
	"github.com/jward/mixweave/internal/tree"
)

// Handler locates and instruments the sites of one kind.
type Handler interface {
	Kind() model.Kind
	// Find returns the candidates in s matching at, unsorted. Location
	// constraints are applied by the caller.
	Find(s *Scope, at model.At) ([]location.Candidate, error)
	// Instrument rewrites the tree at c so it dispatches site.
	Instrument(s *Scope, c location.Candidate, site *dispatch.Site) error
}

var byKind = map[model.Kind]Handler{
	model.Head:      headHandler{},
	model.Tail:      tailHandler{},
	model.Parameter: parameterHandler{},
	model.Const:     constHandler{},
	model.Invoke:    invokeHandler{},
	model.Attribute: attributeHandler{},
	model.Exception: exceptionHandler{},
	model.Yield:     yieldHandler{},
}

// For returns the handler of kind.
func For(kind model.Kind) (Handler, error) {
	h, ok := byKind[kind]
	if !ok {
		return nil, fmt.Errorf("handlers: no handler for kind %q", kind)
	}
	return h, nil
}

// Order is the instrumentation order inside one member. Statement hooks
// prepended later run earlier, so HEAD goes last.
var Order = []model.Kind{
	model.Const, model.Invoke, model.Attribute, model.Yield,
	model.Tail, model.Exception, model.Parameter, model.Head,
}

// Scope is one member body under weaving: a function definition, or the
// module itself for whole-module injectors.
type Scope struct {
	T    *tree.Tree
	Node tree.NodeID
	Body tree.NodeID

	stmts   []tree.NodeID
	pos     map[tree.NodeID]tree.Pos
	parents map[tree.NodeID]tree.NodeID
}

// NewScope indexes the member node for finding and rewriting. Positions are
// computed once; they describe the tree as it was before any rewrite.
func NewScope(t *tree.Tree, node tree.NodeID) *Scope {
	body := t.Body(node)
	return &Scope{
		T:       t,
		Node:    node,
		Body:    body,
		stmts:   t.Statements(body),
		pos:     t.Positions(body),
		parents: t.Parents(node),
	}
}

// IsFunction reports whether the scope is a function body.
func (s *Scope) IsFunction() bool { return s.T.Kind(s.Node) == tree.FuncDef }

// Statements lists the statements of the body in source order.
func (s *Scope) Statements() []tree.NodeID { return s.stmts }

func (s *Scope) candidate(id tree.NodeID) location.Candidate {
	return location.Candidate{Node: id, Pos: s.pos[id], Line: s.T.Node(id).Line}
}

// inline visits every positioned node of the body in order.
func (s *Scope) inline(fn func(id tree.NodeID)) {
	for _, st := range s.stmts {
		for _, id := range s.T.Inline(st) {
			fn(id)
		}
	}
}

// wrap replaces the reference to old in its parent with a hook node built
// around it and keeps the parent index current.
func (s *Scope) wrap(old tree.NodeID, build func() tree.NodeID) error {
	parent, ok := s.parents[old]
	if !ok {
		return fmt.Errorf("handlers: node %d has no parent in scope", old)
	}
	hook := build()
	if !s.T.Replace(parent, old, hook) {
		return fmt.Errorf("handlers: node %d not found under %d", old, parent)
	}
	s.parents[hook] = parent
	for _, c := range s.T.Children(hook) {
		s.parents[c] = hook
	}
	return nil
}

// prepend inserts stmt at the start of block.
func (s *Scope) prepend(block, stmt tree.NodeID) {
	s.T.InsertChild(block, 0, stmt)
	s.parents[stmt] = block
}

func (s *Scope) add(n tree.Node) tree.NodeID {
	id := s.T.Add(n)
	for _, c := range n.Children {
		if c != tree.None {
			s.parents[c] = id
		}
	}
	return id
}

func hook(s *Scope, site *dispatch.Site, aux string, line int, operands ...tree.NodeID) tree.NodeID {
	id := s.T.NewHook(string(site.Kind), site.ID, aux, line, operands...)
	for _, c := range operands {
		s.parents[c] = id
	}
	return id
}

func stmtHook(s *Scope, site *dispatch.Site, aux string, line int) tree.NodeID {
	return s.add(tree.Node{Kind: tree.ExprStmt, Line: line, Flags: tree.FlagSynthetic,
		Children: []tree.NodeID{hook(s, site, aux, line)}})
}
