package tree

import "strings"

// Builder constructs trees bottom-up. The front-end and tests both use it.
type Builder struct {
	T    *Tree
	line int
}

// NewBuilder returns a Builder over an empty tree.
func NewBuilder() *Builder {
	return &Builder{T: New()}
}

// At sets the source line stamped on subsequently built nodes.
func (b *Builder) At(line int) *Builder {
	b.line = line
	return b
}

func (b *Builder) add(k Kind, name string, value any, kids ...NodeID) NodeID {
	return b.T.Add(Node{Kind: k, Name: name, Value: value, Children: kids, Line: b.line})
}

// Module builds the module node and makes it the root.
func (b *Builder) Module(stmts ...NodeID) NodeID {
	id := b.add(Module, "", nil, b.Block(stmts...))
	b.T.Root = id
	return id
}

// Block builds a statement block.
func (b *Builder) Block(stmts ...NodeID) NodeID {
	return b.add(Block, "", nil, append([]NodeID{}, stmts...)...)
}

// Class builds a class definition without bases.
func (b *Builder) Class(name string, members ...NodeID) NodeID {
	return b.add(ClassDef, name, nil, b.Block(members...))
}

// ClassBases builds a class definition deriving from bases.
func (b *Builder) ClassBases(name string, bases []NodeID, members ...NodeID) NodeID {
	return b.add(ClassDef, name, nil, append([]NodeID{b.Block(members...)}, bases...)...)
}

// Func builds a function definition and flags it as a generator when its
// body yields.
func (b *Builder) Func(name string, params []NodeID, body ...NodeID) NodeID {
	blk := b.Block(body...)
	id := b.add(FuncDef, name, nil, b.Block(params...), blk)
	if b.T.ContainsYield(blk) {
		b.T.Node(id).Flags |= FlagGenerator
	}
	return id
}

// Params builds plain positional parameters.
func (b *Builder) Params(names ...string) []NodeID {
	out := make([]NodeID, len(names))
	for i, n := range names {
		out[i] = b.Param(n)
	}
	return out
}

// Param builds a positional parameter.
func (b *Builder) Param(name string) NodeID { return b.add(Param, name, nil) }

// ParamDefault builds a parameter with a default value.
func (b *Builder) ParamDefault(name string, def NodeID) NodeID {
	return b.add(Param, name, nil, def)
}

// VarArgs builds a *name parameter.
func (b *Builder) VarArgs(name string) NodeID {
	id := b.add(Param, name, nil)
	b.T.Node(id).Flags |= FlagVarArgs
	return id
}

// KwArgs builds a **name parameter.
func (b *Builder) KwArgs(name string) NodeID {
	id := b.add(Param, name, nil)
	b.T.Node(id).Flags |= FlagKwArgs
	return id
}

func (b *Builder) Expr(e NodeID) NodeID { return b.add(ExprStmt, "", nil, e) }

func (b *Builder) Assign(target, value NodeID) NodeID { return b.add(Assign, "", nil, target, value) }

func (b *Builder) AugAssign(op string, target, value NodeID) NodeID {
	return b.add(AugAssign, op, nil, target, value)
}

// Return builds a return statement; value may be None.
func (b *Builder) Return(value NodeID) NodeID {
	if value == None {
		return b.add(Return, "", nil)
	}
	return b.add(Return, "", nil, value)
}

// If builds an if statement. An empty else slice still produces an empty
// else block.
func (b *Builder) If(cond NodeID, then []NodeID, els []NodeID) NodeID {
	return b.add(If, "", nil, cond, b.Block(then...), b.Block(els...))
}

func (b *Builder) While(cond NodeID, body ...NodeID) NodeID {
	return b.add(While, "", nil, cond, b.Block(body...))
}

func (b *Builder) For(target, iter NodeID, body ...NodeID) NodeID {
	return b.add(For, "", nil, target, iter, b.Block(body...))
}

// Try builds a try statement from already-built Handler nodes.
func (b *Builder) Try(body []NodeID, handlers []NodeID, orelse []NodeID, finally []NodeID) NodeID {
	kids := []NodeID{b.Block(body...), b.Block(orelse...), b.Block(finally...)}
	kids = append(kids, handlers...)
	return b.add(Try, "", nil, kids...)
}

// Handler builds an except clause. typ may be None for a bare except.
func (b *Builder) Handler(typ NodeID, name string, body ...NodeID) NodeID {
	if typ == None {
		return b.add(Handler, name, nil, b.Block(body...))
	}
	return b.add(Handler, name, nil, b.Block(body...), typ)
}

// Raise builds a raise statement; value None re-raises.
func (b *Builder) Raise(value NodeID) NodeID {
	if value == None {
		return b.add(Raise, "", nil)
	}
	return b.add(Raise, "", nil, value)
}

func (b *Builder) Pass() NodeID     { return b.add(Pass, "", nil) }
func (b *Builder) Break() NodeID    { return b.add(Break, "", nil) }
func (b *Builder) Continue() NodeID { return b.add(Continue, "", nil) }

func (b *Builder) Name(name string) NodeID { return b.add(Name, name, nil) }

func (b *Builder) Attr(obj NodeID, name string) NodeID { return b.add(Attr, name, nil, obj) }

// Dotted builds a Name/Attr chain from "a.b.c".
func (b *Builder) Dotted(path string) NodeID {
	parts := strings.Split(path, ".")
	id := b.Name(parts[0])
	for _, p := range parts[1:] {
		id = b.Attr(id, p)
	}
	return id
}

// Const builds a literal. Integers are stored as int64.
func (b *Builder) Const(v any) NodeID {
	if i, ok := v.(int); ok {
		v = int64(i)
	}
	return b.add(Const, "", v)
}

func (b *Builder) None() NodeID { return b.add(Const, "", nil) }

// Call builds a call; args may include Kw, Star and StarStar nodes.
func (b *Builder) Call(fn NodeID, args ...NodeID) NodeID {
	return b.add(Call, "", nil, append([]NodeID{fn}, args...)...)
}

func (b *Builder) Kw(name string, value NodeID) NodeID { return b.add(Keyword, name, nil, value) }

func (b *Builder) Star(value NodeID) NodeID { return b.add(Starred, "", nil, value) }

func (b *Builder) StarStar(value NodeID) NodeID { return b.add(DoubleStarred, "", nil, value) }

func (b *Builder) Bin(op string, l, r NodeID) NodeID { return b.add(BinOp, op, nil, l, r) }

func (b *Builder) Bool(op string, l, r NodeID) NodeID { return b.add(BoolOp, op, nil, l, r) }

func (b *Builder) Cmp(op string, l, r NodeID) NodeID { return b.add(Compare, op, nil, l, r) }

func (b *Builder) Unary(op string, x NodeID) NodeID { return b.add(UnaryOp, op, nil, x) }

// Cond builds a conditional expression: then if cond else els.
func (b *Builder) Cond(cond, then, els NodeID) NodeID {
	return b.add(CondExpr, "", nil, cond, then, els)
}

func (b *Builder) List(elts ...NodeID) NodeID { return b.add(ListLit, "", nil, elts...) }

// Dict builds a dict literal from alternating keys and values.
func (b *Builder) Dict(kv ...NodeID) NodeID { return b.add(DictLit, "", nil, kv...) }

func (b *Builder) Index(value, index NodeID) NodeID { return b.add(Subscript, "", nil, value, index) }

// Yield builds a yield expression; value may be None.
func (b *Builder) Yield(value NodeID) NodeID {
	if value == None {
		return b.add(Yield, "", nil)
	}
	return b.add(Yield, "", nil, value)
}

// NewHook adds a dispatch hook node. Weaving is the only producer.
func (t *Tree) NewHook(kind, site, aux string, line int, operands ...NodeID) NodeID {
	return t.Add(Node{
		Kind:     Hook,
		Name:     kind,
		Site:     site,
		Value:    aux,
		Children: append([]NodeID{}, operands...),
		Line:     line,
		Flags:    FlagSynthetic,
	})
}
