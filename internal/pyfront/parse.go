// Package pyfront turns Python source into the arena tree the weaver and
// the interpreter work on. Parsing is done by tree-sitter; this package
// lowers the concrete syntax tree into tree nodes and renders woven trees
// back into readable source.
package pyfront

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/jward/mixweave/internal/tree"
)

// ErrSyntax is matched by every error Parse returns for bad or unsupported
// source.
var ErrSyntax = errors.New("pyfront: syntax error")

// SyntaxError locates a parse or lowering failure.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string { return fmt.Sprintf("pyfront: line %d: %s", e.Line, e.Msg) }

func (e *SyntaxError) Is(target error) bool { return target == ErrSyntax }

// Parse parses src as a Python module.
func Parse(ctx context.Context, src []byte) (*tree.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	st, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("pyfront: tree-sitter parse failed: %w", err)
	}
	defer st.Close()

	root := st.RootNode()
	if root.HasError() {
		if bad := firstError(root); bad != nil {
			return nil, &SyntaxError{Line: line(bad), Msg: "invalid syntax near " + strconv.Quote(clip(bad.Content(src)))}
		}
		return nil, &SyntaxError{Line: 1, Msg: "invalid syntax"}
	}

	l := &lowerer{src: src, b: tree.NewBuilder()}
	stmts, err := l.stmts(root)
	if err != nil {
		return nil, err
	}
	l.b.At(1).Module(stmts...)
	return l.b.T, nil
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if bad := firstError(n.Child(i)); bad != nil {
			return bad
		}
	}
	return nil
}

func clip(s string) string {
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}

func line(n *sitter.Node) int { return int(n.StartPoint().Row) + 1 }

// named returns the named children of n without comments.
func named(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() != "comment" {
			out = append(out, c)
		}
	}
	return out
}

type lowerer struct {
	src []byte
	b   *tree.Builder
}

func (l *lowerer) text(n *sitter.Node) string { return n.Content(l.src) }

func (l *lowerer) unsupported(n *sitter.Node, what string) error {
	return &SyntaxError{Line: line(n), Msg: "unsupported " + what}
}

// stmts lowers the statements of a module or block.
func (l *lowerer) stmts(n *sitter.Node) ([]tree.NodeID, error) {
	var out []tree.NodeID
	for _, c := range named(n) {
		ids, err := l.stmt(c)
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
	}
	return out, nil
}

func (l *lowerer) block(n *sitter.Node) ([]tree.NodeID, error) {
	if n == nil {
		return nil, nil
	}
	return l.stmts(n)
}

// stmt lowers one statement; simple statements separated by semicolons
// may produce several.
func (l *lowerer) stmt(n *sitter.Node) ([]tree.NodeID, error) {
	b := l.b
	one := func(id tree.NodeID, err error) ([]tree.NodeID, error) {
		if err != nil {
			return nil, err
		}
		return []tree.NodeID{id}, nil
	}
	switch n.Type() {
	case "expression_statement":
		var out []tree.NodeID
		for _, c := range named(n) {
			id, err := l.exprStmt(c)
			if err != nil {
				return nil, err
			}
			out = append(out, id)
		}
		return out, nil

	case "return_statement":
		value := tree.None
		if kids := named(n); len(kids) > 0 {
			v, err := l.expr(kids[0])
			if err != nil {
				return nil, err
			}
			value = v
		}
		return one(b.At(line(n)).Return(value), nil)

	case "pass_statement":
		return one(b.At(line(n)).Pass(), nil)
	case "break_statement":
		return one(b.At(line(n)).Break(), nil)
	case "continue_statement":
		return one(b.At(line(n)).Continue(), nil)

	case "if_statement":
		return one(l.ifStmt(n))
	case "while_statement":
		return one(l.whileStmt(n))
	case "for_statement":
		return one(l.forStmt(n))
	case "try_statement":
		return one(l.tryStmt(n))
	case "raise_statement":
		return one(l.raiseStmt(n))
	case "assert_statement":
		return one(l.assertStmt(n))
	case "function_definition":
		return one(l.funcDef(n))
	case "class_definition":
		return one(l.classDef(n))
	case "decorated_definition":
		return nil, l.unsupported(n, "decorator")
	case "import_statement", "import_from_statement", "future_import_statement":
		return nil, l.unsupported(n, "import")
	}
	return nil, l.unsupported(n, strings.ReplaceAll(n.Type(), "_", " "))
}

func (l *lowerer) exprStmt(n *sitter.Node) (tree.NodeID, error) {
	b := l.b
	switch n.Type() {
	case "assignment":
		right := n.ChildByFieldName("right")
		if right == nil {
			// Bare annotation.
			return b.At(line(n)).Pass(), nil
		}
		if right.Type() == "assignment" {
			return tree.None, l.unsupported(n, "chained assignment")
		}
		target, err := l.target(n.ChildByFieldName("left"))
		if err != nil {
			return tree.None, err
		}
		value, err := l.expr(right)
		if err != nil {
			return tree.None, err
		}
		return b.At(line(n)).Assign(target, value), nil

	case "augmented_assignment":
		target, err := l.target(n.ChildByFieldName("left"))
		if err != nil {
			return tree.None, err
		}
		value, err := l.expr(n.ChildByFieldName("right"))
		if err != nil {
			return tree.None, err
		}
		op := strings.TrimSuffix(l.text(n.ChildByFieldName("operator")), "=")
		return b.At(line(n)).AugAssign(op, target, value), nil
	}
	e, err := l.expr(n)
	if err != nil {
		return tree.None, err
	}
	return b.At(line(n)).Expr(e), nil
}

// target lowers an assignment target.
func (l *lowerer) target(n *sitter.Node) (tree.NodeID, error) {
	switch n.Type() {
	case "identifier", "attribute", "subscript":
		return l.expr(n)
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list", "expression_list":
		var elts []tree.NodeID
		for _, c := range named(n) {
			e, err := l.target(c)
			if err != nil {
				return tree.None, err
			}
			elts = append(elts, e)
		}
		return l.b.At(line(n)).List(elts...), nil
	case "parenthesized_expression":
		if kids := named(n); len(kids) == 1 {
			return l.target(kids[0])
		}
	}
	return tree.None, l.unsupported(n, "assignment target "+n.Type())
}

func (l *lowerer) ifStmt(n *sitter.Node) (tree.NodeID, error) {
	cond, err := l.expr(n.ChildByFieldName("condition"))
	if err != nil {
		return tree.None, err
	}
	then, err := l.block(n.ChildByFieldName("consequence"))
	if err != nil {
		return tree.None, err
	}
	var clauses []*sitter.Node
	for _, c := range named(n) {
		if c.Type() == "elif_clause" || c.Type() == "else_clause" {
			clauses = append(clauses, c)
		}
	}
	els, err := l.elseChain(clauses)
	if err != nil {
		return tree.None, err
	}
	return l.b.At(line(n)).If(cond, then, els), nil
}

// elseChain folds elif clauses into nested ifs.
func (l *lowerer) elseChain(clauses []*sitter.Node) ([]tree.NodeID, error) {
	if len(clauses) == 0 {
		return nil, nil
	}
	c := clauses[0]
	if c.Type() == "else_clause" {
		return l.block(c.ChildByFieldName("body"))
	}
	cond, err := l.expr(c.ChildByFieldName("condition"))
	if err != nil {
		return nil, err
	}
	then, err := l.block(c.ChildByFieldName("consequence"))
	if err != nil {
		return nil, err
	}
	rest, err := l.elseChain(clauses[1:])
	if err != nil {
		return nil, err
	}
	return []tree.NodeID{l.b.At(line(c)).If(cond, then, rest)}, nil
}

func (l *lowerer) whileStmt(n *sitter.Node) (tree.NodeID, error) {
	if n.ChildByFieldName("alternative") != nil {
		return tree.None, l.unsupported(n, "while-else")
	}
	cond, err := l.expr(n.ChildByFieldName("condition"))
	if err != nil {
		return tree.None, err
	}
	body, err := l.block(n.ChildByFieldName("body"))
	if err != nil {
		return tree.None, err
	}
	return l.b.At(line(n)).While(cond, body...), nil
}

func (l *lowerer) forStmt(n *sitter.Node) (tree.NodeID, error) {
	if n.ChildByFieldName("alternative") != nil {
		return tree.None, l.unsupported(n, "for-else")
	}
	target, err := l.target(n.ChildByFieldName("left"))
	if err != nil {
		return tree.None, err
	}
	iter, err := l.expr(n.ChildByFieldName("right"))
	if err != nil {
		return tree.None, err
	}
	body, err := l.block(n.ChildByFieldName("body"))
	if err != nil {
		return tree.None, err
	}
	return l.b.At(line(n)).For(target, iter, body...), nil
}

func (l *lowerer) tryStmt(n *sitter.Node) (tree.NodeID, error) {
	body, err := l.block(n.ChildByFieldName("body"))
	if err != nil {
		return tree.None, err
	}
	var handlers, orelse, finally []tree.NodeID
	for _, c := range named(n) {
		switch c.Type() {
		case "except_clause":
			h, err := l.exceptClause(c)
			if err != nil {
				return tree.None, err
			}
			handlers = append(handlers, h)
		case "except_group_clause":
			return tree.None, l.unsupported(c, "except*")
		case "else_clause":
			if orelse, err = l.block(c.ChildByFieldName("body")); err != nil {
				return tree.None, err
			}
		case "finally_clause":
			for _, k := range named(c) {
				if k.Type() == "block" {
					if finally, err = l.block(k); err != nil {
						return tree.None, err
					}
				}
			}
		}
	}
	return l.b.At(line(n)).Try(body, handlers, orelse, finally), nil
}

// exceptClause handles both the "except T as e" layout with two
// expressions and the one that wraps them in an as_pattern.
func (l *lowerer) exceptClause(n *sitter.Node) (tree.NodeID, error) {
	var exprs []*sitter.Node
	var body *sitter.Node
	for _, c := range named(n) {
		if c.Type() == "block" {
			body = c
			continue
		}
		exprs = append(exprs, c)
	}
	typ, name := tree.None, ""
	if len(exprs) > 0 {
		first := exprs[0]
		if first.Type() == "as_pattern" {
			parts := named(first)
			if len(parts) == 0 {
				return tree.None, l.unsupported(first, "except clause")
			}
			first = parts[0]
			if len(parts) > 1 {
				name = l.text(parts[len(parts)-1])
			}
		} else if len(exprs) > 1 {
			name = l.text(exprs[1])
		}
		var err error
		if typ, err = l.expr(first); err != nil {
			return tree.None, err
		}
	}
	stmts, err := l.block(body)
	if err != nil {
		return tree.None, err
	}
	return l.b.At(line(n)).Handler(typ, name, stmts...), nil
}

func (l *lowerer) raiseStmt(n *sitter.Node) (tree.NodeID, error) {
	kids := named(n)
	if len(kids) == 0 {
		return l.b.At(line(n)).Raise(tree.None), nil
	}
	v, err := l.expr(kids[0])
	if err != nil {
		return tree.None, err
	}
	return l.b.At(line(n)).Raise(v), nil
}

// assertStmt lowers assert c, msg into if not c: raise AssertionError(msg).
func (l *lowerer) assertStmt(n *sitter.Node) (tree.NodeID, error) {
	kids := named(n)
	if len(kids) == 0 {
		return tree.None, l.unsupported(n, "empty assert")
	}
	cond, err := l.expr(kids[0])
	if err != nil {
		return tree.None, err
	}
	var args []tree.NodeID
	if len(kids) > 1 {
		msg, err := l.expr(kids[1])
		if err != nil {
			return tree.None, err
		}
		args = append(args, msg)
	}
	b := l.b.At(line(n))
	raise := b.Raise(b.Call(b.Name("AssertionError"), args...))
	return b.If(b.Unary("not", cond), []tree.NodeID{raise}, nil), nil
}

func (l *lowerer) funcDef(n *sitter.Node) (tree.NodeID, error) {
	if n.Child(0) != nil && n.Child(0).Type() == "async" {
		return tree.None, l.unsupported(n, "async function")
	}
	name := l.text(n.ChildByFieldName("name"))
	params, err := l.params(n.ChildByFieldName("parameters"))
	if err != nil {
		return tree.None, err
	}
	body, err := l.block(n.ChildByFieldName("body"))
	if err != nil {
		return tree.None, err
	}
	return l.b.At(line(n)).Func(name, params, body...), nil
}

func (l *lowerer) params(n *sitter.Node) ([]tree.NodeID, error) {
	if n == nil {
		return nil, nil
	}
	b := l.b
	var out []tree.NodeID
	for _, p := range named(n) {
		b.At(line(p))
		switch p.Type() {
		case "identifier":
			out = append(out, b.Param(l.text(p)))
		case "typed_parameter":
			inner := named(p)[0]
			switch inner.Type() {
			case "list_splat_pattern":
				out = append(out, b.VarArgs(l.text(named(inner)[0])))
			case "dictionary_splat_pattern":
				out = append(out, b.KwArgs(l.text(named(inner)[0])))
			default:
				out = append(out, b.Param(l.text(inner)))
			}
		case "default_parameter", "typed_default_parameter":
			def, err := l.expr(p.ChildByFieldName("value"))
			if err != nil {
				return nil, err
			}
			out = append(out, b.At(line(p)).ParamDefault(l.text(p.ChildByFieldName("name")), def))
		case "list_splat_pattern":
			out = append(out, b.VarArgs(l.text(named(p)[0])))
		case "dictionary_splat_pattern":
			out = append(out, b.KwArgs(l.text(named(p)[0])))
		case "keyword_separator", "positional_separator":
			return nil, l.unsupported(p, "parameter separator")
		default:
			return nil, l.unsupported(p, "parameter "+p.Type())
		}
	}
	return out, nil
}

func (l *lowerer) classDef(n *sitter.Node) (tree.NodeID, error) {
	name := l.text(n.ChildByFieldName("name"))
	var bases []tree.NodeID
	if sup := n.ChildByFieldName("superclasses"); sup != nil {
		for _, c := range named(sup) {
			if c.Type() == "keyword_argument" {
				return tree.None, l.unsupported(c, "class keyword")
			}
			e, err := l.expr(c)
			if err != nil {
				return tree.None, err
			}
			bases = append(bases, e)
		}
	}
	body, err := l.block(n.ChildByFieldName("body"))
	if err != nil {
		return tree.None, err
	}
	return l.b.At(line(n)).ClassBases(name, bases, body...), nil
}
