// Package selector matches call expressions structurally: the called path,
// positional argument shapes and keyword argument shapes, with an explicit
// policy for keyword spreads that cannot be resolved before run time.
package selector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jward/mixweave/internal/tree"
)

// ArgsMode controls how positional patterns cover the call's arguments.
type ArgsMode string

const (
	// Prefix allows extra trailing positional arguments.
	Prefix ArgsMode = "PREFIX"
	// ExactArgs requires equal counts.
	ExactArgs ArgsMode = "EXACT"
)

// KwMode controls how keyword patterns cover the call's keywords.
type KwMode string

const (
	// Subset requires the pattern keys; extra call keys are ignored.
	Subset KwMode = "SUBSET"
	// ExactKw requires the resolved key set to equal the pattern key set.
	ExactKw KwMode = "EXACT"
)

// StarStarPolicy governs calls carrying a keyword spread that cannot be
// resolved statically.
type StarStarPolicy string

const (
	Fail        StarStarPolicy = "FAIL"
	Ignore      StarStarPolicy = "IGNORE"
	AssumeMatch StarStarPolicy = "ASSUME_MATCH"
)

// ErrAmbiguous is matched by *AmbiguityError.
var ErrAmbiguous = errors.New("selector: resolution ambiguity")

// AmbiguityError reports a call whose spread arguments could not be resolved
// under the FAIL policy with escalation enabled.
type AmbiguityError struct {
	Call   string
	Reason string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("selector: cannot resolve call %s: %s", e.Call, e.Reason)
}

func (e *AmbiguityError) Is(target error) bool { return target == ErrAmbiguous }

// ArgKind enumerates argument pattern shapes.
type ArgKind string

const (
	ArgAny   ArgKind = "ANY"
	ArgConst ArgKind = "CONST"
	ArgName  ArgKind = "NAME"
	ArgAttr  ArgKind = "ATTR"
)

// Arg is one positional or keyword argument pattern.
type Arg struct {
	Kind  ArgKind
	Value any      // ArgConst
	Name  string   // ArgName
	Path  []string // ArgAttr
}

// Any matches every argument expression.
func Any() Arg { return Arg{Kind: ArgAny} }

// Const matches a literal equal to v.
func Const(v any) Arg {
	if i, ok := v.(int); ok {
		v = int64(i)
	}
	return Arg{Kind: ArgConst, Value: v}
}

// Name matches a bare reference to name.
func Name(name string) Arg { return Arg{Kind: ArgName, Name: name} }

// Attr matches an attribute access with the given dotted path.
func Attr(path string) Arg { return Arg{Kind: ArgAttr, Path: strings.Split(path, ".")} }

// Match reports whether the expression id satisfies the pattern.
func (a Arg) Match(t *tree.Tree, id tree.NodeID) bool {
	n := t.Node(id)
	switch a.Kind {
	case ArgAny:
		return true
	case ArgConst:
		return n.Kind == tree.Const && ConstEqual(n.Value, a.Value)
	case ArgName:
		return n.Kind == tree.Name && n.Name == a.Name
	case ArgAttr:
		if n.Kind != tree.Attr && n.Kind != tree.Name {
			return false
		}
		parts, ok := t.Dotted(id)
		return ok && equalParts(parts, a.Path)
	}
	return false
}

func (a Arg) String() string {
	switch a.Kind {
	case ArgConst:
		return fmt.Sprintf("const(%v)", a.Value)
	case ArgName:
		return "name(" + a.Name + ")"
	case ArgAttr:
		return "attr(" + strings.Join(a.Path, ".") + ")"
	}
	return "any"
}

// ConstEqual compares literal values. Integers and floats compare by numeric
// value; booleans only equal booleans.
func ConstEqual(a, b any) bool {
	if af, ok := number(a); ok {
		bf, ok := number(b)
		return ok && af == bf
	}
	return a == b
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// Keywords is a keyword pattern set.
type Keywords struct {
	Mode  KwMode
	Items map[string]Arg
}

// CallSelector is a structural predicate over one call expression.
type CallSelector struct {
	// Func, when set, must equal the call's resolved target path segment for
	// segment.
	Func     []string
	Args     []Arg
	ArgsMode ArgsMode
	Kwargs   *Keywords
	StarStar StarStarPolicy
	// Escalate turns an unresolvable spread under FAIL into an AmbiguityError
	// instead of a plain non-match.
	Escalate bool
}

// Func is a convenience for setting CallSelector.Func from a dotted path.
func Func(path string) []string { return strings.Split(path, ".") }

// Match evaluates the selector against the Call node call. A failed stage is a
// non-match; only escalated ambiguity returns an error.
func (s *CallSelector) Match(t *tree.Tree, call tree.NodeID) (bool, error) {
	if len(s.Func) > 0 {
		target := ResolveTarget(t, call)
		if target.State != Resolved || !equalParts(target.Value, s.Func) {
			return false, nil
		}
	}

	pos, kws := SplitArgs(t, call)
	if s.ArgsMode == ExactArgs && len(pos) != len(s.Args) {
		return false, nil
	}
	if len(pos) < len(s.Args) {
		return false, nil
	}
	for i, pat := range s.Args {
		arg := pos[i]
		if t.Kind(arg) == tree.Starred {
			if pat.Kind != ArgAny {
				return false, nil
			}
			continue
		}
		if !pat.Match(t, arg) {
			return false, nil
		}
	}

	resolved := ResolveKeywords(t, kws)
	unresolved := resolved.State == Unresolved
	policy := s.StarStar
	if policy == "" {
		policy = Fail
	}
	if unresolved && policy == Fail {
		if s.Escalate {
			return false, &AmbiguityError{Call: t.DottedString(t.Child(call, 0)), Reason: "unresolved keyword spread"}
		}
		return false, nil
	}
	if s.Kwargs == nil {
		return true, nil
	}

	known := resolved.Value
	mode := s.Kwargs.Mode
	if mode == "" {
		mode = Subset
	}
	for key := range s.Kwargs.Items {
		if _, ok := known[key]; ok {
			continue
		}
		if unresolved && policy == AssumeMatch && mode == Subset {
			continue
		}
		return false, nil
	}
	for key, pat := range s.Kwargs.Items {
		if v, ok := known[key]; ok && !pat.Match(t, v) {
			return false, nil
		}
	}
	if mode == ExactKw && len(known) != len(s.Kwargs.Items) {
		return false, nil
	}
	return true, nil
}

func (s *CallSelector) String() string {
	var sb strings.Builder
	sb.WriteString("call(")
	sb.WriteString(strings.Join(s.Func, "."))
	for _, a := range s.Args {
		sb.WriteString(", ")
		sb.WriteString(a.String())
	}
	sb.WriteString(")")
	return sb.String()
}

func equalParts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
