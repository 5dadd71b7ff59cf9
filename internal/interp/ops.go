package interp

import (
	"fmt"
	"math"
	"strings"
)

// raise builds a program exception of a builtin class.
func (m *Module) raise(class, format string, args ...any) error {
	c, ok := m.classes[class]
	if !ok {
		c = m.classes["RuntimeError"]
	}
	return &Exception{Class: c, Args: []any{fmt.Sprintf(format, args...)}, Attrs: map[string]any{}}
}

// num widens a numeric operand. bool counts as int in arithmetic.
func num(v any) (i int64, f float64, isFloat, ok bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return 1, 1, false, true
		}
		return 0, 0, false, true
	case int64:
		return x, float64(x), false, true
	case float64:
		return 0, x, true, true
	}
	return 0, 0, false, false
}

func (m *Module) binary(op string, a, b any) (any, error) {
	switch op {
	case "+":
		switch x := a.(type) {
		case string:
			if y, ok := b.(string); ok {
				return x + y, nil
			}
		case *List:
			if y, ok := b.(*List); ok {
				items := append(append([]any(nil), x.Items...), y.Items...)
				return NewList(items...), nil
			}
		}
	case "*":
		if v, ok := repeat(a, b); ok {
			return v, nil
		}
		if v, ok := repeat(b, a); ok {
			return v, nil
		}
	}

	ai, af, aflt, aok := num(a)
	bi, bf, bflt, bok := num(b)
	if !aok || !bok {
		return nil, m.raise("TypeError", "unsupported operand type(s) for %s: '%s' and '%s'", op, TypeName(a), TypeName(b))
	}
	if !aflt && !bflt {
		return m.intOp(op, ai, bi)
	}
	return m.floatOp(op, af, bf)
}

func repeat(seq, n any) (any, bool) {
	k, ok := n.(int64)
	if !ok {
		return nil, false
	}
	if k < 0 {
		k = 0
	}
	switch x := seq.(type) {
	case string:
		return strings.Repeat(x, int(k)), true
	case *List:
		var items []any
		for i := int64(0); i < k; i++ {
			items = append(items, x.Items...)
		}
		return NewList(items...), true
	}
	return nil, false
}

func (m *Module) intOp(op string, a, b int64) (any, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return nil, m.raise("ZeroDivisionError", "division by zero")
		}
		return float64(a) / float64(b), nil
	case "//":
		if b == 0 {
			return nil, m.raise("ZeroDivisionError", "integer division or modulo by zero")
		}
		q := a / b
		if (a%b != 0) && ((a < 0) != (b < 0)) {
			q--
		}
		return q, nil
	case "%":
		if b == 0 {
			return nil, m.raise("ZeroDivisionError", "integer division or modulo by zero")
		}
		r := a % b
		if r != 0 && (r < 0) != (b < 0) {
			r += b
		}
		return r, nil
	case "**":
		if b < 0 {
			return math.Pow(float64(a), float64(b)), nil
		}
		out := int64(1)
		for i := int64(0); i < b; i++ {
			out *= a
		}
		return out, nil
	case "&":
		return a & b, nil
	case "|":
		return a | b, nil
	case "^":
		return a ^ b, nil
	case "<<":
		return a << uint64(b), nil
	case ">>":
		return a >> uint64(b), nil
	}
	return nil, m.raise("TypeError", "unsupported operator %s for int", op)
}

func (m *Module) floatOp(op string, a, b float64) (any, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return nil, m.raise("ZeroDivisionError", "float division by zero")
		}
		return a / b, nil
	case "//":
		if b == 0 {
			return nil, m.raise("ZeroDivisionError", "float floor division by zero")
		}
		return math.Floor(a / b), nil
	case "%":
		if b == 0 {
			return nil, m.raise("ZeroDivisionError", "float modulo")
		}
		r := math.Mod(a, b)
		if r != 0 && (r < 0) != (b < 0) {
			r += b
		}
		return r, nil
	case "**":
		return math.Pow(a, b), nil
	}
	return nil, m.raise("TypeError", "unsupported operator %s for float", op)
}

func (m *Module) unary(op string, x any) (any, error) {
	if op == "not" {
		return !Truthy(x), nil
	}
	i, f, isFloat, ok := num(x)
	if !ok {
		return nil, m.raise("TypeError", "bad operand type for unary %s: '%s'", op, TypeName(x))
	}
	switch op {
	case "-":
		if isFloat {
			return -f, nil
		}
		return -i, nil
	case "+":
		if isFloat {
			return f, nil
		}
		return i, nil
	case "~":
		if !isFloat {
			return ^i, nil
		}
	}
	return nil, m.raise("TypeError", "bad operand type for unary %s: '%s'", op, TypeName(x))
}

func (m *Module) compare(op string, a, b any) (any, error) {
	switch op {
	case "==":
		return Equal(a, b), nil
	case "!=":
		return !Equal(a, b), nil
	case "is":
		return identical(a, b), nil
	case "is not":
		return !identical(a, b), nil
	case "in":
		return m.contains(b, a)
	case "not in":
		in, err := m.contains(b, a)
		if err != nil {
			return nil, err
		}
		return !in, nil
	}
	c, err := m.order(a, b)
	if err != nil {
		return nil, m.raise("TypeError", "'%s' not supported between instances of '%s' and '%s'", op, TypeName(a), TypeName(b))
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return nil, m.raise("SyntaxError", "unknown comparison %s", op)
}

func identical(a, b any) bool {
	if isRef(a) || isRef(b) {
		return a == b
	}
	switch x := a.(type) {
	case *List:
		y, ok := b.(*List)
		return ok && x == y
	case *Dict:
		y, ok := b.(*Dict)
		return ok && x == y
	}
	return TypeName(a) == TypeName(b) && Equal(a, b)
}

func (m *Module) contains(container, v any) (bool, error) {
	switch x := container.(type) {
	case *List:
		return x.Contains(v), nil
	case *Dict:
		return x.Contains(v), nil
	case string:
		s, ok := v.(string)
		if !ok {
			return false, m.raise("TypeError", "'in <string>' requires string as left operand, not %s", TypeName(v))
		}
		return strings.Contains(x, s), nil
	}
	return false, m.raise("TypeError", "argument of type '%s' is not iterable", TypeName(container))
}

// order compares numbers, strings and lists.
func (m *Module) order(a, b any) (int, error) {
	if _, af, _, aok := num(a); aok {
		if _, bf, _, bok := num(b); bok {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			}
			return 0, nil
		}
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case *List:
		if y, ok := b.(*List); ok {
			for i := 0; i < len(x.Items) && i < len(y.Items); i++ {
				c, err := m.order(x.Items[i], y.Items[i])
				if err != nil {
					return 0, err
				}
				if c != 0 {
					return c, nil
				}
			}
			return len(x.Items) - len(y.Items), nil
		}
	}
	return 0, fmt.Errorf("unorderable %s and %s", TypeName(a), TypeName(b))
}
