package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/mixweave/internal/dispatch"
	"github.com/jward/mixweave/internal/model"
	"github.com/jward/mixweave/internal/tree"
)

// sample builds:
//
//	def heal(value, bonus):
//	    send(value)
//	    self.hp += 5
//	    if value > 5:
//	        return value
//	    try:
//	        risky()
//	    except ValueError as e:
//	        pass
//	    except KeyError:
//	        pass
//	    yield 5
func sample(t *testing.T) (*tree.Tree, tree.NodeID) {
	t.Helper()
	b := tree.NewBuilder()
	params := b.At(1).Params("value", "bonus")
	send := b.At(2).Expr(b.Call(b.Name("send"), b.Name("value")))
	aug := b.At(3).AugAssign("+", b.Dotted("self.hp"), b.Const(5))
	ret := b.At(5).Return(b.Name("value"))
	cond := b.At(4).If(b.Cmp(">", b.Name("value"), b.Const(5)), []tree.NodeID{ret}, nil)
	risky := b.At(7).Expr(b.Call(b.Name("risky")))
	pass1 := b.At(9).Pass()
	h1 := b.At(8).Handler(b.Name("ValueError"), "e", pass1)
	pass2 := b.At(11).Pass()
	h2 := b.At(10).Handler(b.Name("KeyError"), "", pass2)
	try := b.At(6).Try([]tree.NodeID{risky}, []tree.NodeID{h1, h2}, nil, nil)
	yield := b.At(12).Expr(b.Yield(b.Const(5)))
	fn := b.At(1).Func("heal", params, send, aug, cond, try, yield)
	b.Module(fn)
	return b.T, fn
}

func find(t *testing.T, at model.At) (*Scope, []int) {
	t.Helper()
	tr, fn := sample(t)
	s := NewScope(tr, fn)
	h, err := For(at.Kind)
	require.NoError(t, err)
	cands, err := h.Find(s, at)
	require.NoError(t, err)
	lines := make([]int, len(cands))
	for i, c := range cands {
		lines[i] = c.Line
	}
	return s, lines
}

func TestFind(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		at   model.At
		want []int
	}{
		{"head", model.At{Kind: model.Head}, []int{1}},
		{"parameter", model.At{Kind: model.Parameter, Name: "bonus"}, []int{1}},
		{"missing parameter", model.At{Kind: model.Parameter, Name: "nope"}, []int{}},
		{"tail includes implicit return", model.At{Kind: model.Tail}, []int{5, 12}},
		{"const by value", model.At{Kind: model.Const, Name: 5}, []int{3, 4, 12}},
		{"const keeps type family", model.At{Kind: model.Const, Name: "5"}, []int{}},
		{"invoke by path", model.At{Kind: model.Invoke, Name: "risky"}, []int{7}},
		{"attribute", model.At{Kind: model.Attribute, Name: "self.hp"}, []int{3}},
		{"exception by class", model.At{Kind: model.Exception, Name: "KeyError"}, []int{10}},
		{"exception any adds boundary", model.At{Kind: model.Exception}, []int{8, 10, 1}},
		{"yield", model.At{Kind: model.Yield}, []int{12}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, got := find(t, tt.at)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFor_UnknownKind(t *testing.T) {
	t.Parallel()
	_, err := For(model.Kind("BOGUS"))
	assert.Error(t, err)
}

func TestOrder_HeadLast(t *testing.T) {
	t.Parallel()
	require.Len(t, Order, 8)
	assert.Equal(t, model.Head, Order[len(Order)-1])
}

func hooks(tr *tree.Tree, root tree.NodeID) []*tree.Node {
	var out []*tree.Node
	tr.Walk(root, func(id tree.NodeID) bool {
		if tr.Kind(id) == tree.Hook {
			out = append(out, tr.Node(id))
		}
		return true
	})
	return out
}

func instrumentAll(t *testing.T, at model.At, siteID string) (*Scope, []*tree.Node) {
	t.Helper()
	tr, fn := sample(t)
	s := NewScope(tr, fn)
	h, err := For(at.Kind)
	require.NoError(t, err)
	cands, err := h.Find(s, at)
	require.NoError(t, err)
	site := &dispatch.Site{ID: siteID, Kind: at.Kind}
	for _, c := range cands {
		require.NoError(t, h.Instrument(s, c, site))
	}
	return s, hooks(tr, fn)
}

func TestInstrument_HeadPrependsStatement(t *testing.T) {
	t.Parallel()
	s, hs := instrumentAll(t, model.At{Kind: model.Head}, "h1")
	require.Len(t, hs, 1)
	assert.Equal(t, "h1", hs[0].Site)

	first := s.T.Children(s.Body)[0]
	assert.Equal(t, tree.ExprStmt, s.T.Kind(first))
	assert.Equal(t, tree.Hook, s.T.Kind(s.T.Child(first, 0)))
}

func TestInstrument_ParameterCarriesName(t *testing.T) {
	t.Parallel()
	_, hs := instrumentAll(t, model.At{Kind: model.Parameter, Name: "value"}, "p1")
	require.Len(t, hs, 1)
	assert.Equal(t, "value", hs[0].Value)
}

func TestInstrument_TailWrapsReturnsAndAppendsImplicit(t *testing.T) {
	t.Parallel()
	s, hs := instrumentAll(t, model.At{Kind: model.Tail}, "t1")
	require.Len(t, hs, 2)

	kids := s.T.Children(s.Body)
	last := kids[len(kids)-1]
	assert.Equal(t, tree.Return, s.T.Kind(last))
	assert.True(t, s.T.Node(last).Flags&tree.FlagSynthetic != 0)
	assert.Equal(t, tree.Hook, s.T.Kind(s.T.Child(last, 0)))
}

func TestInstrument_AugAssignBecomesAssign(t *testing.T) {
	t.Parallel()
	s, hs := instrumentAll(t, model.At{Kind: model.Attribute, Name: "self.hp"}, "a1")
	require.Len(t, hs, 1)
	assert.Equal(t, "self.hp", hs[0].Value)

	var assign tree.NodeID = tree.None
	for _, st := range s.T.Statements(s.Body) {
		if s.T.Node(st).Line == 3 {
			assign = st
		}
	}
	require.NotEqual(t, tree.None, assign)
	assert.Equal(t, tree.Assign, s.T.Kind(assign))
	h := s.T.Child(assign, 1)
	assert.Equal(t, tree.Hook, s.T.Kind(h))
	bin := s.T.Child(h, 0)
	assert.Equal(t, tree.BinOp, s.T.Kind(bin))
	assert.Equal(t, "+", s.T.Node(bin).Name)
}

func TestInstrument_InvokeKeepsCallAsOperand(t *testing.T) {
	t.Parallel()
	s, hs := instrumentAll(t, model.At{Kind: model.Invoke, Name: "send"}, "i1")
	require.Len(t, hs, 1)
	assert.Equal(t, "send", hs[0].Value)
	require.Len(t, hs[0].Children, 1)
	assert.Equal(t, tree.Call, s.T.Kind(hs[0].Children[0]))
}

func TestInstrument_ExceptionBoundaryWrapsBody(t *testing.T) {
	t.Parallel()
	s, hs := instrumentAll(t, model.At{Kind: model.Exception}, "e1")
	assert.Len(t, hs, 3)

	kids := s.T.Children(s.Body)
	require.Len(t, kids, 1)
	assert.Equal(t, tree.Try, s.T.Kind(kids[0]))
}

func TestInstrument_YieldWrapsValue(t *testing.T) {
	t.Parallel()
	s, hs := instrumentAll(t, model.At{Kind: model.Yield}, "y1")
	require.Len(t, hs, 1)
	require.Len(t, hs[0].Children, 1)
	assert.Equal(t, tree.Const, s.T.Kind(hs[0].Children[0]))
}

func TestModuleScope_SkipsFunctionOnlyKinds(t *testing.T) {
	t.Parallel()
	tr, _ := sample(t)
	s := NewScope(tr, tr.Root)
	assert.False(t, s.IsFunction())
	for _, k := range []model.Kind{model.Head, model.Tail, model.Parameter} {
		h, err := For(k)
		require.NoError(t, err)
		got, err := h.Find(s, model.At{Kind: k, Name: "value"})
		require.NoError(t, err)
		assert.Empty(t, got, k)
	}
}
