// Package model holds the declarative vocabulary shared by the registry, the
// weaver and the dispatch layer: injection kinds, injection points and their
// location constraints, and mismatch policies.
package model

import (
	"fmt"
	"strings"

	"github.com/jward/mixweave/internal/selector"
)

// Kind is the category of structural site an injector targets.
type Kind string

const (
	Head      Kind = "HEAD"
	Tail      Kind = "TAIL"
	Parameter Kind = "PARAMETER"
	Const     Kind = "CONST"
	Invoke    Kind = "INVOKE"
	Attribute Kind = "ATTRIBUTE"
	Exception Kind = "EXCEPTION"
	Yield     Kind = "YIELD"
)

// Kinds lists every kind in declaration order.
var Kinds = []Kind{Head, Tail, Parameter, Const, Invoke, Attribute, Exception, Yield}

// ParseKind converts a case-insensitive name into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("model: unknown injection kind %q", s)
}

// Policy decides how a require/expect count mismatch is reported.
type Policy string

const (
	// PolicyError fails on require mismatches and warns on expect mismatches.
	PolicyError Policy = "ERROR"
	// PolicyWarn warns on both.
	PolicyWarn Policy = "WARN"
	// PolicyIgnore is silent on expect and require mismatches alike.
	PolicyIgnore Policy = "IGNORE"
	// PolicyStrict fails on both.
	PolicyStrict Policy = "STRICT"
)

// ParsePolicy converts a case-insensitive name into a Policy; empty means
// PolicyError.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToUpper(strings.TrimSpace(s))); p {
	case "":
		return PolicyError, nil
	case PolicyError, PolicyWarn, PolicyIgnore, PolicyStrict:
		return p, nil
	}
	return "", fmt.Errorf("model: unknown policy %q", s)
}

// Occurrence keeps all, the first, or the last candidate.
type Occurrence string

const (
	All   Occurrence = "ALL"
	First Occurrence = "FIRST"
	Last  Occurrence = "LAST"
)

// At identifies an injection point inside a member body.
//
// Name is the kind-specific discriminator: the parameter name for PARAMETER,
// the literal for CONST, the dotted call path for INVOKE, the dotted
// attribute path for ATTRIBUTE and the exception class name for EXCEPTION.
// HEAD, TAIL and YIELD ignore it.
type At struct {
	Kind     Kind
	Name     any
	Selector *selector.CallSelector
	Location *Location
}

// Path returns Name as a dotted path, or "" when Name is not a string.
func (a At) Path() string {
	s, _ := a.Name.(string)
	return s
}

// Discriminator renders the kind-specific discriminator in a stable textual
// form used for registry keys and site identifiers.
func (a At) Discriminator() string {
	switch a.Kind {
	case Head, Tail, Yield:
		return ""
	case Const:
		return ConstKey(a.Name)
	case Invoke:
		if p := a.Path(); p != "" {
			return p
		}
		if a.Selector != nil {
			return strings.Join(a.Selector.Func, ".")
		}
		return ""
	}
	return a.Path()
}

// ConstKey renders a literal with its type so 1, 1.5, "1" and True stay
// distinct while 1 and 1.0 collapse.
func ConstKey(v any) string {
	switch x := v.(type) {
	case nil:
		return "none"
	case bool:
		return fmt.Sprintf("bool:%t", x)
	case int:
		return fmt.Sprintf("num:%d", x)
	case int64:
		return fmt.Sprintf("num:%d", x)
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("num:%d", int64(x))
		}
		return fmt.Sprintf("num:%g", x)
	case string:
		return "str:" + x
	}
	return fmt.Sprintf("%T:%v", v, v)
}

func (a At) String() string {
	d := a.Discriminator()
	if d == "" {
		return string(a.Kind)
	}
	return string(a.Kind) + "(" + d + ")"
}

// Location narrows an ordered candidate list. Stages run in the order
// Slice, Near, Anchor, Line, Occurrence, Ordinal; nil stages are skipped.
type Location struct {
	Slice      *Slice
	Near       *Near
	Anchor     *Anchor
	Line       *Line
	Occurrence Occurrence
	Ordinal    *int
}

// Slice keeps candidates between two anchors. A nil bound is open.
type Slice struct {
	From        *At
	To          *At
	IncludeFrom bool
	IncludeTo   bool
}

// Near keeps candidates within MaxDistance statements of an anchor.
type Near struct {
	Anchor      At
	MaxDistance int
}

// Anchor picks the candidate Offset steps from an anchor. Offset 0 with
// Inclusive set may pick a candidate at the anchor itself.
type Anchor struct {
	Anchor    At
	Offset    int
	Inclusive bool
}

// Line keeps candidates on Line, or within [Line, EndLine] when EndLine is
// non-zero.
type Line struct {
	Line    int
	EndLine int
}

// Ordinal is a convenience for Location.Ordinal.
func Ordinal(i int) *int { return &i }
