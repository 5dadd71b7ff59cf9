package pyfront

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/mixweave/internal/tree"
)

func (l *lowerer) expr(n *sitter.Node) (tree.NodeID, error) {
	b := l.b
	switch n.Type() {
	case "identifier":
		return b.At(line(n)).Name(l.text(n)), nil
	case "true":
		return b.At(line(n)).Const(true), nil
	case "false":
		return b.At(line(n)).Const(false), nil
	case "none":
		return b.At(line(n)).None(), nil
	case "integer":
		v, err := parseInt(l.text(n))
		if err != nil {
			return tree.None, &SyntaxError{Line: line(n), Msg: "bad integer " + l.text(n)}
		}
		return b.At(line(n)).Const(v), nil
	case "float":
		v, err := strconv.ParseFloat(strings.ReplaceAll(l.text(n), "_", ""), 64)
		if err != nil {
			return tree.None, &SyntaxError{Line: line(n), Msg: "bad float " + l.text(n)}
		}
		return b.At(line(n)).Const(v), nil
	case "string":
		return l.str(n)
	case "concatenated_string":
		var out tree.NodeID = tree.None
		for _, part := range named(n) {
			s, err := l.str(part)
			if err != nil {
				return tree.None, err
			}
			if out == tree.None {
				out = s
				continue
			}
			out = l.concat(out, s)
		}
		return out, nil

	case "parenthesized_expression":
		kids := named(n)
		if len(kids) != 1 {
			return tree.None, l.unsupported(n, "parenthesized expression")
		}
		return l.expr(kids[0])

	case "attribute":
		obj, err := l.expr(n.ChildByFieldName("object"))
		if err != nil {
			return tree.None, err
		}
		return b.At(line(n)).Attr(obj, l.text(n.ChildByFieldName("attribute"))), nil

	case "call":
		return l.call(n)

	case "subscript":
		value, err := l.expr(n.ChildByFieldName("value"))
		if err != nil {
			return tree.None, err
		}
		idx := n.ChildByFieldName("subscript")
		if idx == nil || idx.Type() == "slice" {
			return tree.None, l.unsupported(n, "slice")
		}
		key, err := l.expr(idx)
		if err != nil {
			return tree.None, err
		}
		return b.At(line(n)).Index(value, key), nil

	case "list", "tuple", "expression_list":
		elts, err := l.elements(n)
		if err != nil {
			return tree.None, err
		}
		return b.At(line(n)).List(elts...), nil

	case "dictionary":
		var kv []tree.NodeID
		for _, p := range named(n) {
			if p.Type() != "pair" {
				return tree.None, l.unsupported(p, "dictionary entry "+p.Type())
			}
			k, err := l.expr(p.ChildByFieldName("key"))
			if err != nil {
				return tree.None, err
			}
			v, err := l.expr(p.ChildByFieldName("value"))
			if err != nil {
				return tree.None, err
			}
			kv = append(kv, k, v)
		}
		return b.At(line(n)).Dict(kv...), nil

	case "binary_operator":
		left, err := l.expr(n.ChildByFieldName("left"))
		if err != nil {
			return tree.None, err
		}
		right, err := l.expr(n.ChildByFieldName("right"))
		if err != nil {
			return tree.None, err
		}
		return b.At(line(n)).Bin(l.text(n.ChildByFieldName("operator")), left, right), nil

	case "boolean_operator":
		left, err := l.expr(n.ChildByFieldName("left"))
		if err != nil {
			return tree.None, err
		}
		right, err := l.expr(n.ChildByFieldName("right"))
		if err != nil {
			return tree.None, err
		}
		return b.At(line(n)).Bool(l.text(n.ChildByFieldName("operator")), left, right), nil

	case "not_operator":
		x, err := l.expr(n.ChildByFieldName("argument"))
		if err != nil {
			return tree.None, err
		}
		return b.At(line(n)).Unary("not", x), nil

	case "unary_operator":
		x, err := l.expr(n.ChildByFieldName("argument"))
		if err != nil {
			return tree.None, err
		}
		op := l.text(n.ChildByFieldName("operator"))
		// Negative literals stay literals so CONST points can match them.
		if c := b.T.Node(x); op == "-" && c.Kind == tree.Const {
			switch v := c.Value.(type) {
			case int64:
				c.Value = -v
				return x, nil
			case float64:
				c.Value = -v
				return x, nil
			}
		}
		return b.At(line(n)).Unary(op, x), nil

	case "comparison_operator":
		return l.comparison(n)

	case "conditional_expression":
		kids := named(n)
		if len(kids) != 3 {
			return tree.None, l.unsupported(n, "conditional expression")
		}
		then, err := l.expr(kids[0])
		if err != nil {
			return tree.None, err
		}
		cond, err := l.expr(kids[1])
		if err != nil {
			return tree.None, err
		}
		els, err := l.expr(kids[2])
		if err != nil {
			return tree.None, err
		}
		return b.At(line(n)).Cond(cond, then, els), nil

	case "yield":
		for i := 0; i < int(n.ChildCount()); i++ {
			if n.Child(i).Type() == "from" {
				return tree.None, l.unsupported(n, "yield from")
			}
		}
		value := tree.None
		if kids := named(n); len(kids) > 0 {
			v, err := l.expr(kids[0])
			if err != nil {
				return tree.None, err
			}
			value = v
		}
		return b.At(line(n)).Yield(value), nil
	}
	return tree.None, l.unsupported(n, strings.ReplaceAll(n.Type(), "_", " "))
}

func (l *lowerer) elements(n *sitter.Node) ([]tree.NodeID, error) {
	var out []tree.NodeID
	for _, c := range named(n) {
		if c.Type() == "list_splat" {
			v, err := l.expr(named(c)[0])
			if err != nil {
				return nil, err
			}
			out = append(out, l.b.At(line(c)).Star(v))
			continue
		}
		e, err := l.expr(c)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *lowerer) call(n *sitter.Node) (tree.NodeID, error) {
	b := l.b
	fn, err := l.expr(n.ChildByFieldName("function"))
	if err != nil {
		return tree.None, err
	}
	argList := n.ChildByFieldName("arguments")
	if argList != nil && argList.Type() != "argument_list" {
		return tree.None, l.unsupported(argList, "generator argument")
	}
	var args []tree.NodeID
	if argList != nil {
		for _, a := range named(argList) {
			switch a.Type() {
			case "keyword_argument":
				v, err := l.expr(a.ChildByFieldName("value"))
				if err != nil {
					return tree.None, err
				}
				args = append(args, b.At(line(a)).Kw(l.text(a.ChildByFieldName("name")), v))
			case "list_splat":
				v, err := l.expr(named(a)[0])
				if err != nil {
					return tree.None, err
				}
				args = append(args, b.At(line(a)).Star(v))
			case "dictionary_splat":
				v, err := l.expr(named(a)[0])
				if err != nil {
					return tree.None, err
				}
				args = append(args, b.At(line(a)).StarStar(v))
			default:
				v, err := l.expr(a)
				if err != nil {
					return tree.None, err
				}
				args = append(args, v)
			}
		}
	}
	return b.At(line(n)).Call(fn, args...), nil
}

// comparison lowers a chain a < b < c into (a < b) and (b < c). The middle
// operand is evaluated twice.
func (l *lowerer) comparison(n *sitter.Node) (tree.NodeID, error) {
	var operands []*sitter.Node
	var ops []string
	pendingNot := false
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.IsNamed() {
			if c.Type() != "comment" {
				operands = append(operands, c)
			}
			continue
		}
		op := c.Type()
		switch {
		case op == "not" && len(ops) == len(operands)-1:
			pendingNot = true
			continue
		case op == "in" && pendingNot:
			op = "not in"
		case op == "not" && len(ops) > 0 && ops[len(ops)-1] == "is":
			ops[len(ops)-1] = "is not"
			continue
		}
		pendingNot = false
		ops = append(ops, op)
	}
	if len(operands) != len(ops)+1 || len(ops) == 0 {
		return tree.None, l.unsupported(n, "comparison")
	}

	var out tree.NodeID = tree.None
	for i, op := range ops {
		left, err := l.expr(operands[i])
		if err != nil {
			return tree.None, err
		}
		right, err := l.expr(operands[i+1])
		if err != nil {
			return tree.None, err
		}
		cmp := l.b.At(line(n)).Cmp(op, left, right)
		if out == tree.None {
			out = cmp
		} else {
			out = l.b.Bool("and", out, cmp)
		}
	}
	return out, nil
}

func (l *lowerer) concat(a, b tree.NodeID) tree.NodeID { return l.b.Bin("+", a, b) }

// str lowers a string literal. f-strings become concatenations of literal
// parts and str() calls.
func (l *lowerer) str(n *sitter.Node) (tree.NodeID, error) {
	raw := l.text(n)
	start := int(n.StartByte())
	prefixLen := 0
	for prefixLen < len(raw) && raw[prefixLen] != '\'' && raw[prefixLen] != '"' {
		prefixLen++
	}
	prefix := strings.ToLower(raw[:prefixLen])
	if strings.Contains(prefix, "b") {
		return tree.None, l.unsupported(n, "bytes literal")
	}
	isRaw := strings.Contains(prefix, "r")
	isF := strings.Contains(prefix, "f")

	rest := raw[prefixLen:]
	q := 1
	if strings.HasPrefix(rest, `"""`) || strings.HasPrefix(rest, "'''") {
		q = 3
	}
	if len(rest) < 2*q {
		return tree.None, &SyntaxError{Line: line(n), Msg: "unterminated string"}
	}
	bodyStart := start + prefixLen + q
	bodyEnd := int(n.EndByte()) - q

	b := l.b.At(line(n))
	var parts []tree.NodeID
	literal := func(from, to int) {
		if from >= to {
			return
		}
		s := string(l.src[from:to])
		if isF {
			s = strings.ReplaceAll(strings.ReplaceAll(s, "{{", "{"), "}}", "}")
		}
		if !isRaw {
			s = unescape(s)
		}
		parts = append(parts, b.Const(s))
	}

	pos := bodyStart
	if isF {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.Type() != "interpolation" {
				continue
			}
			literal(pos, int(c.StartByte()))
			inner := c.ChildByFieldName("expression")
			if inner == nil {
				kids := named(c)
				if len(kids) == 0 {
					return tree.None, l.unsupported(c, "empty interpolation")
				}
				inner = kids[0]
			}
			e, err := l.expr(inner)
			if err != nil {
				return tree.None, err
			}
			parts = append(parts, l.b.At(line(c)).Call(l.b.Name("str"), e))
			pos = int(c.EndByte())
		}
	}
	literal(pos, bodyEnd)

	if len(parts) == 0 {
		return b.Const(""), nil
	}
	out := parts[0]
	if isF && l.b.T.Kind(out) != tree.Const {
		out = l.concat(b.Const(""), out)
	}
	for _, p := range parts[1:] {
		out = l.concat(out, p)
	}
	return out, nil
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			out.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			out.WriteByte('\n')
		case 't':
			out.WriteByte('\t')
		case 'r':
			out.WriteByte('\r')
		case '0':
			out.WriteByte(0)
		case '\\', '\'', '"':
			out.WriteByte(s[i])
		case '\n':
		case 'x':
			if i+2 < len(s) {
				if v, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
					out.WriteRune(rune(v))
					i += 2
					continue
				}
			}
			out.WriteString(`\x`)
		case 'u':
			if i+4 < len(s) {
				if v, err := strconv.ParseUint(s[i+1:i+5], 16, 32); err == nil {
					out.WriteRune(rune(v))
					i += 4
					continue
				}
			}
			out.WriteString(`\u`)
		default:
			out.WriteByte('\\')
			out.WriteByte(s[i])
		}
	}
	return out.String()
}

func parseInt(s string) (int64, error) {
	s = strings.ReplaceAll(strings.ToLower(s), "_", "")
	base := 10
	switch {
	case strings.HasPrefix(s, "0x"):
		base, s = 16, s[2:]
	case strings.HasPrefix(s, "0o"):
		base, s = 8, s[2:]
	case strings.HasPrefix(s, "0b"):
		base, s = 2, s[2:]
	}
	return strconv.ParseInt(s, base, 64)
}
