// Package condition evaluates runtime guards attached to injectors. A guard
// reads values out of the dispatch context by dotted/indexed path and
// compares them with a small, closed operator set.
package condition

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Vars is the view of a dispatch context a condition evaluates against.
// Conventional keys: kind, target, member, self, args, kwargs, locals, value.
type Vars map[string]any

// Condition decides whether a callback runs for one dispatch.
type Condition interface {
	Eval(ctx context.Context, vars Vars) (bool, error)
}

// Op is a When operator.
type Op string

const (
	EQ         Op = "EQ"
	NE         Op = "NE"
	GT         Op = "GT"
	LT         Op = "LT"
	GE         Op = "GE"
	LE         Op = "LE"
	IN         Op = "IN"
	NotIn      Op = "NOT_IN"
	IsNone     Op = "IS_NONE"
	NotNone    Op = "NOT_NONE"
	Match      Op = "MATCH"
	LenEQ      Op = "LEN_EQ"
	LenGT      Op = "LEN_GT"
	LenLT      Op = "LEN_LT"
	IsInstance Op = "ISINSTANCE"
	AndOp      Op = "AND"
	OrOp       Op = "OR"
	NotOp      Op = "NOT"
)

// ParseOp converts a case-insensitive operator name.
func ParseOp(s string) (Op, error) {
	op := Op(strings.ToUpper(strings.TrimSpace(s)))
	switch op {
	case EQ, NE, GT, LT, GE, LE, IN, NotIn, IsNone, NotNone, Match,
		LenEQ, LenGT, LenLT, IsInstance, AndOp, OrOp, NotOp:
		return op, nil
	}
	return "", fmt.Errorf("condition: unknown operator %q", s)
}

// When is a declarative condition: Path Op Right, or a boolean combination
// of Terms for AND, OR and NOT.
type When struct {
	Path  string
	Op    Op
	Right any
	Terms []*When
}

// Compare builds a leaf condition.
func Compare(path string, op Op, right any) *When {
	return &When{Path: path, Op: op, Right: right}
}

// And is true when every term is true. An empty And is true.
func And(terms ...*When) *When { return &When{Op: AndOp, Terms: terms} }

// Or is true when any term is true.
func Or(terms ...*When) *When { return &When{Op: OrOp, Terms: terms} }

// Not negates term.
func Not(term *When) *When { return &When{Op: NotOp, Terms: []*When{term}} }

// Eval implements Condition. A nil *When is true.
func (w *When) Eval(ctx context.Context, vars Vars) (bool, error) {
	if w == nil {
		return true, nil
	}
	switch w.Op {
	case AndOp:
		for _, t := range w.Terms {
			ok, err := t.Eval(ctx, vars)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case OrOp:
		for _, t := range w.Terms {
			ok, err := t.Eval(ctx, vars)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case NotOp:
		if len(w.Terms) != 1 {
			return false, fmt.Errorf("condition: NOT takes exactly one term, got %d", len(w.Terms))
		}
		ok, err := w.Terms[0].Eval(ctx, vars)
		return !ok, err
	}

	left := Resolve(vars, w.Path)
	switch w.Op {
	case EQ:
		return Equal(left, w.Right), nil
	case NE:
		return !Equal(left, w.Right), nil
	case GT, LT, GE, LE:
		c, err := order(left, w.Right)
		if err != nil {
			return false, fmt.Errorf("condition: %s %s: %w", w.Path, w.Op, err)
		}
		switch w.Op {
		case GT:
			return c > 0, nil
		case LT:
			return c < 0, nil
		case GE:
			return c >= 0, nil
		}
		return c <= 0, nil
	case IN, NotIn:
		in, err := contains(w.Right, left)
		if err != nil {
			return false, fmt.Errorf("condition: %s %s: %w", w.Path, w.Op, err)
		}
		return in == (w.Op == IN), nil
	case IsNone:
		return left == nil, nil
	case NotNone:
		return left != nil, nil
	case Match:
		re, err := regexp.Compile(fmt.Sprint(w.Right))
		if err != nil {
			return false, fmt.Errorf("condition: %s MATCH: %w", w.Path, err)
		}
		return re.MatchString(display(left)), nil
	case LenEQ, LenGT, LenLT:
		n, ok := length(left)
		if !ok {
			return false, fmt.Errorf("condition: %s has no length", w.Path)
		}
		want, ok := number(w.Right)
		if !ok {
			return false, fmt.Errorf("condition: %s %s needs a number, got %T", w.Path, w.Op, w.Right)
		}
		switch w.Op {
		case LenEQ:
			return float64(n) == want, nil
		case LenGT:
			return float64(n) > want, nil
		}
		return float64(n) < want, nil
	case IsInstance:
		return isInstance(left, w.Right), nil
	}
	return false, fmt.Errorf("condition: unsupported operator %q", w.Op)
}

func (w *When) String() string {
	if w == nil {
		return "true"
	}
	switch w.Op {
	case AndOp, OrOp:
		parts := make([]string, len(w.Terms))
		for i, t := range w.Terms {
			parts[i] = t.String()
		}
		return "(" + strings.Join(parts, " "+string(w.Op)+" ") + ")"
	case NotOp:
		if len(w.Terms) == 1 {
			return "NOT " + w.Terms[0].String()
		}
	}
	return fmt.Sprintf("%s %s %v", w.Path, w.Op, w.Right)
}

// Equaler lets host values define equality with plain Go values.
type Equaler interface {
	Equal(other any) bool
}

// Equal compares with numeric cross-type equality.
func Equal(a, b any) bool {
	if af, ok := number(a); ok {
		bf, ok := number(b)
		return ok && af == bf
	}
	if e, ok := a.(Equaler); ok {
		return e.Equal(b)
	}
	if e, ok := b.(Equaler); ok {
		return e.Equal(a)
	}
	return reflect.DeepEqual(a, b)
}

func order(a, b any) (int, error) {
	if af, ok := number(a); ok {
		if bf, ok := number(b); ok {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			}
			return 0, nil
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), nil
	}
	return 0, fmt.Errorf("cannot order %T and %T", a, b)
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func display(v any) string {
	if v == nil {
		return "None"
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
