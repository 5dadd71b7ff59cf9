package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDotted(t *testing.T) {
	b := NewBuilder()
	chain := b.Dotted("self.stats.hp")
	parts, ok := b.T.Dotted(chain)
	require.True(t, ok)
	assert.Equal(t, []string{"self", "stats", "hp"}, parts)
	assert.Equal(t, "self.stats.hp", b.T.DottedString(chain))

	call := b.Call(b.Name("f"))
	_, ok = b.T.Dotted(b.Attr(call, "x"))
	assert.False(t, ok, "attribute on a call result is not a static path")
}

func TestStatementsOrder(t *testing.T) {
	b := NewBuilder()
	s1 := b.Expr(b.Call(b.Name("a")))
	inner := b.Expr(b.Call(b.Name("b")))
	ifs := b.If(b.Name("c"), []NodeID{inner}, nil)
	h := b.Handler(b.Name("ValueError"), "e", b.Pass())
	try := b.Try([]NodeID{b.Pass()}, []NodeID{h}, nil, nil)
	ret := b.Return(b.Const(1))
	fn := b.Func("f", nil, s1, ifs, try, ret)

	stmts := b.T.Statements(b.T.Body(fn))
	require.Len(t, stmts, 8)
	assert.Equal(t, s1, stmts[0])
	assert.Equal(t, ifs, stmts[1])
	assert.Equal(t, inner, stmts[2])
	assert.Equal(t, try, stmts[3])
	assert.Equal(t, Pass, b.T.Kind(stmts[4]))
	assert.Equal(t, h, stmts[5])
	assert.Equal(t, Pass, b.T.Kind(stmts[6]))
	assert.Equal(t, ret, stmts[7])
}

func TestPositions(t *testing.T) {
	b := NewBuilder()
	inner := b.Call(b.Name("g"))
	outer := b.Call(b.Name("f"), inner)
	s := b.Expr(outer)
	fn := b.Func("h", nil, b.Pass(), s)

	pos := b.T.Positions(b.T.Body(fn))
	assert.Equal(t, Pos{Stmt: 1, Sub: 0}, pos[s])
	assert.True(t, pos[outer].Less(pos[inner]))
	assert.Equal(t, 1, pos[inner].Stmt)
}

func TestTerminates(t *testing.T) {
	b := NewBuilder()
	assert.True(t, b.T.Terminates(b.Block(b.Pass(), b.Return(None))))
	assert.False(t, b.T.Terminates(b.Block(b.Pass())))
	assert.False(t, b.T.Terminates(b.Block()))

	both := b.If(b.Name("x"), []NodeID{b.Return(b.Const(1))}, []NodeID{b.Raise(b.Name("E"))})
	assert.True(t, b.T.Terminates(b.Block(both)))

	oneSided := b.If(b.Name("x"), []NodeID{b.Return(b.Const(1))}, nil)
	assert.False(t, b.T.Terminates(b.Block(oneSided)))
}

func TestTerminates_WhileTrue(t *testing.T) {
	b := NewBuilder()
	forever := b.While(b.Const(true), b.Return(b.Name("n")))
	assert.True(t, b.T.Terminates(b.Block(forever)))

	guarded := b.While(b.Const(true), b.If(b.Name("done"), []NodeID{b.Break()}, nil), b.Pass())
	assert.False(t, b.T.Terminates(b.Block(guarded)))

	inTry := b.While(b.Const(true), b.Try([]NodeID{b.Pass()}, []NodeID{b.Handler(None, "", b.Break())}, nil, nil))
	assert.False(t, b.T.Terminates(b.Block(inTry)))

	nested := b.While(b.Const(true), b.While(b.Name("x"), b.Break()), b.Pass())
	assert.True(t, b.T.Terminates(b.Block(nested)), "a break in an inner loop leaves only that loop")

	conditional := b.While(b.Name("x"), b.Return(b.Name("n")))
	assert.False(t, b.T.Terminates(b.Block(conditional)))
}

func TestCloneIsIndependent(t *testing.T) {
	b := NewBuilder()
	fn := b.Func("f", nil, b.Pass())
	b.Module(fn)

	c := b.T.Clone()
	c.AppendChild(c.Body(fn), c.Add(Node{Kind: Pass}))
	assert.Len(t, b.T.Children(b.T.Body(fn)), 1)
	assert.Len(t, c.Children(c.Body(fn)), 2)
}

func TestMembers(t *testing.T) {
	b := NewBuilder()
	m := b.Module(
		b.Func("top", nil, b.Pass()),
		b.Class("Player", b.Func("hit", b.Params("self"), b.Pass())),
	)
	members := b.T.Members(m)
	require.Len(t, members, 2)
	assert.Equal(t, Member{Name: "top", Node: members[0].Node}, members[0])
	assert.Equal(t, "Player", members[1].Class)
	assert.Equal(t, "hit", members[1].Name)
	assert.Equal(t, []string{"Player"}, b.T.Classes(m))
}

func TestGeneratorFlag(t *testing.T) {
	b := NewBuilder()
	gen := b.Func("g", nil, b.Expr(b.Yield(b.Const(1))))
	plain := b.Func("p", nil, b.Return(None))
	assert.True(t, b.T.Node(gen).Has(FlagGenerator))
	assert.False(t, b.T.Node(plain).Has(FlagGenerator))
}
