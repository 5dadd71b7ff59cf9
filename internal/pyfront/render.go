package pyfront

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jward/mixweave/internal/tree"
)

// Render prints t as Python-like source. Hooks print as
// __hook__("KIND", "site", operands...) so woven modules can be inspected.
func Render(t *tree.Tree) string {
	r := &renderer{t: t}
	if t.Root != tree.None {
		r.block(t.Body(t.Root), 0)
	}
	return r.sb.String()
}

type renderer struct {
	t  *tree.Tree
	sb strings.Builder
}

func (r *renderer) line(depth int, s string) {
	r.sb.WriteString(strings.Repeat("    ", depth))
	r.sb.WriteString(s)
	r.sb.WriteByte('\n')
}

func (r *renderer) block(id tree.NodeID, depth int) {
	kids := r.t.Children(id)
	if len(kids) == 0 {
		r.line(depth, "pass")
		return
	}
	for _, s := range kids {
		r.stmt(s, depth)
	}
}

func (r *renderer) stmt(id tree.NodeID, depth int) {
	t := r.t
	n := t.Node(id)
	switch n.Kind {
	case tree.FuncDef:
		var ps []string
		for _, p := range t.Params(id) {
			pn := t.Node(p)
			switch {
			case pn.Has(tree.FlagVarArgs):
				ps = append(ps, "*"+pn.Name)
			case pn.Has(tree.FlagKwArgs):
				ps = append(ps, "**"+pn.Name)
			case t.Child(p, 0) != tree.None:
				ps = append(ps, pn.Name+"="+r.expr(t.Child(p, 0)))
			default:
				ps = append(ps, pn.Name)
			}
		}
		r.line(depth, fmt.Sprintf("def %s(%s):", n.Name, strings.Join(ps, ", ")))
		r.block(t.Child(id, 1), depth+1)
	case tree.ClassDef:
		head := "class " + n.Name
		if bases := t.Children(id)[1:]; len(bases) > 0 {
			head += "(" + r.list(bases) + ")"
		}
		r.line(depth, head+":")
		r.block(t.Child(id, 0), depth+1)
	case tree.ExprStmt:
		r.line(depth, r.expr(t.Child(id, 0)))
	case tree.Assign:
		r.line(depth, r.expr(t.Child(id, 0))+" = "+r.expr(t.Child(id, 1)))
	case tree.AugAssign:
		r.line(depth, r.expr(t.Child(id, 0))+" "+n.Name+"= "+r.expr(t.Child(id, 1)))
	case tree.Return:
		if v := t.Child(id, 0); v != tree.None {
			r.line(depth, "return "+r.expr(v))
		} else {
			r.line(depth, "return")
		}
	case tree.If:
		r.line(depth, "if "+r.expr(t.Child(id, 0))+":")
		r.block(t.Child(id, 1), depth+1)
		if els := t.Child(id, 2); len(t.Children(els)) > 0 {
			r.line(depth, "else:")
			r.block(els, depth+1)
		}
	case tree.While:
		r.line(depth, "while "+r.expr(t.Child(id, 0))+":")
		r.block(t.Child(id, 1), depth+1)
	case tree.For:
		r.line(depth, "for "+r.target(t.Child(id, 0))+" in "+r.expr(t.Child(id, 1))+":")
		r.block(t.Child(id, 2), depth+1)
	case tree.Try:
		r.line(depth, "try:")
		r.block(t.Child(id, 0), depth+1)
		for _, h := range t.Children(id)[3:] {
			head := "except"
			if typ := t.Child(h, 1); typ != tree.None {
				head += " " + r.expr(typ)
			}
			if name := t.Node(h).Name; name != "" {
				head += " as " + name
			}
			r.line(depth, head+":")
			r.block(t.Child(h, 0), depth+1)
		}
		if els := t.Child(id, 1); len(t.Children(els)) > 0 {
			r.line(depth, "else:")
			r.block(els, depth+1)
		}
		if fin := t.Child(id, 2); len(t.Children(fin)) > 0 {
			r.line(depth, "finally:")
			r.block(fin, depth+1)
		}
	case tree.Raise:
		if v := t.Child(id, 0); v != tree.None {
			r.line(depth, "raise "+r.expr(v))
		} else {
			r.line(depth, "raise")
		}
	case tree.Pass:
		r.line(depth, "pass")
	case tree.Break:
		r.line(depth, "break")
	case tree.Continue:
		r.line(depth, "continue")
	default:
		r.line(depth, "# <"+n.Kind.String()+">")
	}
}

func (r *renderer) target(id tree.NodeID) string {
	if r.t.Kind(id) == tree.ListLit {
		return r.list(r.t.Children(id))
	}
	return r.expr(id)
}

func (r *renderer) list(ids []tree.NodeID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = r.expr(id)
	}
	return strings.Join(parts, ", ")
}

func (r *renderer) expr(id tree.NodeID) string {
	if id == tree.None {
		return ""
	}
	t := r.t
	n := t.Node(id)
	switch n.Kind {
	case tree.Name:
		return n.Name
	case tree.Attr:
		return r.expr(t.Child(id, 0)) + "." + n.Name
	case tree.Const:
		return constText(n.Value)
	case tree.Call:
		kids := t.Children(id)
		return r.expr(kids[0]) + "(" + r.list(kids[1:]) + ")"
	case tree.Keyword:
		return n.Name + "=" + r.expr(t.Child(id, 0))
	case tree.Starred:
		return "*" + r.expr(t.Child(id, 0))
	case tree.DoubleStarred:
		return "**" + r.expr(t.Child(id, 0))
	case tree.BinOp, tree.BoolOp, tree.Compare:
		return "(" + r.expr(t.Child(id, 0)) + " " + n.Name + " " + r.expr(t.Child(id, 1)) + ")"
	case tree.UnaryOp:
		if n.Name == "not" {
			return "(not " + r.expr(t.Child(id, 0)) + ")"
		}
		return n.Name + r.expr(t.Child(id, 0))
	case tree.CondExpr:
		return "(" + r.expr(t.Child(id, 1)) + " if " + r.expr(t.Child(id, 0)) + " else " + r.expr(t.Child(id, 2)) + ")"
	case tree.ListLit:
		return "[" + r.list(t.Children(id)) + "]"
	case tree.DictLit:
		kids := t.Children(id)
		parts := make([]string, 0, len(kids)/2)
		for i := 0; i+1 < len(kids); i += 2 {
			parts = append(parts, r.expr(kids[i])+": "+r.expr(kids[i+1]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case tree.Subscript:
		return r.expr(t.Child(id, 0)) + "[" + r.expr(t.Child(id, 1)) + "]"
	case tree.Yield:
		if v := t.Child(id, 0); v != tree.None {
			return "(yield " + r.expr(v) + ")"
		}
		return "(yield)"
	case tree.Hook:
		args := []string{strconv.Quote(n.Name), strconv.Quote(n.Site)}
		if aux, _ := n.Value.(string); aux != "" {
			args = append(args, "aux="+strconv.Quote(aux))
		}
		for _, c := range n.Children {
			args = append(args, r.expr(c))
		}
		return "__hook__(" + strings.Join(args, ", ") + ")"
	}
	return "<" + n.Kind.String() + ">"
}

func constText(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case string:
		return strconv.Quote(x)
	case float64:
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		return s
	}
	return fmt.Sprint(v)
}
