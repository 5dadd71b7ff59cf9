package mixweave

import (
	"github.com/jward/mixweave/internal/condition"
	"github.com/jward/mixweave/internal/dispatch"
	"github.com/jward/mixweave/internal/interp"
	"github.com/jward/mixweave/internal/model"
	"github.com/jward/mixweave/internal/registry"
	"github.com/jward/mixweave/internal/selector"
	"github.com/jward/mixweave/internal/store"
)

// Public type aliases for internal types used in the Engine API. These are
// Go type aliases (=): external consumers use these names and no
// conversion is needed.

type Injector = registry.Spec
type Group = registry.Group
type Member = registry.Member

type Kind = model.Kind
type At = model.At
type Policy = model.Policy
type Location = model.Location
type Slice = model.Slice
type Near = model.Near
type Anchor = model.Anchor
type Line = model.Line
type Occurrence = model.Occurrence

type CallSelector = selector.CallSelector
type Arg = selector.Arg
type Keywords = selector.Keywords

type When = condition.When
type Condition = condition.Condition
type Vars = condition.Vars

type Callback = dispatch.Callback
type MethodFunc = dispatch.MethodFunc
type CallbackInfo = dispatch.Info
type Site = dispatch.Site
type Trace = dispatch.Trace

type Store = store.Store
type StoredModule = store.Module
type StoredSite = store.Site
type StoredTrace = store.Trace
type TraceFilter = store.TraceFilter

// Injection kinds.
const (
	Head      = model.Head
	Tail      = model.Tail
	Parameter = model.Parameter
	Const     = model.Const
	Invoke    = model.Invoke
	Attribute = model.Attribute
	Exception = model.Exception
	Yield     = model.Yield
)

// Count mismatch policies.
const (
	PolicyError  = model.PolicyError
	PolicyWarn   = model.PolicyWarn
	PolicyIgnore = model.PolicyIgnore
	PolicyStrict = model.PolicyStrict
)

// Callback constructors, one per injection kind.
var (
	HeadCallback      = dispatch.Head
	TailCallback      = dispatch.Tail
	ParameterCallback = dispatch.Parameter
	ConstCallback     = dispatch.Const
	InvokeCallback    = dispatch.Invoke
	AttributeCallback = dispatch.Attribute
	ExceptionCallback = dispatch.Exception
	YieldCallback     = dispatch.Yield
)

// Condition builders.
var (
	Compare = condition.Compare
	And     = condition.And
	Or      = condition.Or
	Not     = condition.Not
)

// Count returns a pointer for Injector.Require and Injector.Expect.
func Count(n int) *int { return registry.Count(n) }

// ToGo converts containers returned by a Module into plain Go values:
// lists become []any and dicts map[string]any.
func ToGo(v any) any { return interp.ToGo(v) }

// Repr renders a value returned by a Module the way the program would.
func Repr(v any) string { return interp.Repr(v) }
