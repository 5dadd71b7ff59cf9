package dispatch

import (
	"context"

	"github.com/jward/mixweave/internal/condition"
	"github.com/jward/mixweave/internal/model"
)

// Per-kind callback signatures. Each receives the control object plus the
// arguments its kind guarantees.
type (
	HeadFunc      func(ctx context.Context, ci *Info) error
	TailFunc      func(ctx context.Context, ci *Info, ret any) error
	ParameterFunc func(ctx context.Context, ci *Info, value any) error
	ConstFunc     func(ctx context.Context, ci *Info, value any) error
	InvokeFunc    func(ctx context.Context, ci *Info, args []any, kwargs map[string]any) error
	AttributeFunc func(ctx context.Context, ci *Info, value any) error
	ExceptionFunc func(ctx context.Context, ci *Info, exc error) error
	YieldFunc     func(ctx context.Context, ci *Info, value any) error
)

// MethodFunc implements a method added to a class. self is the receiver;
// the result becomes the value of the call.
type MethodFunc func(ctx context.Context, self any, args []any, kwargs map[string]any) (any, error)

// Callback is a named callback bound to exactly one injection kind. Build
// one with the constructor matching the kind.
type Callback struct {
	Name string
	Kind model.Kind
	call func(ctx context.Context, ci *Info) error
}

// Valid reports whether the callback was built by a constructor.
func (c Callback) Valid() bool { return c.call != nil }

func Head(name string, fn HeadFunc) Callback {
	return Callback{Name: name, Kind: model.Head, call: func(ctx context.Context, ci *Info) error {
		return fn(ctx, ci)
	}}
}

func Tail(name string, fn TailFunc) Callback {
	return Callback{Name: name, Kind: model.Tail, call: func(ctx context.Context, ci *Info) error {
		return fn(ctx, ci, ci.value)
	}}
}

func Parameter(name string, fn ParameterFunc) Callback {
	return Callback{Name: name, Kind: model.Parameter, call: func(ctx context.Context, ci *Info) error {
		return fn(ctx, ci, ci.value)
	}}
}

func Const(name string, fn ConstFunc) Callback {
	return Callback{Name: name, Kind: model.Const, call: func(ctx context.Context, ci *Info) error {
		return fn(ctx, ci, ci.value)
	}}
}

func Invoke(name string, fn InvokeFunc) Callback {
	return Callback{Name: name, Kind: model.Invoke, call: func(ctx context.Context, ci *Info) error {
		args, kwargs := ci.callSnapshot()
		return fn(ctx, ci, args, kwargs)
	}}
}

func Attribute(name string, fn AttributeFunc) Callback {
	return Callback{Name: name, Kind: model.Attribute, call: func(ctx context.Context, ci *Info) error {
		return fn(ctx, ci, ci.value)
	}}
}

func Exception(name string, fn ExceptionFunc) Callback {
	return Callback{Name: name, Kind: model.Exception, call: func(ctx context.Context, ci *Info) error {
		return fn(ctx, ci, ci.Exception)
	}}
}

func Yield(name string, fn YieldFunc) Callback {
	return Callback{Name: name, Kind: model.Yield, call: func(ctx context.Context, ci *Info) error {
		return fn(ctx, ci, ci.value)
	}}
}

// Generic binds a kind-agnostic callback, such as a script, to kind. The
// callback reads kind-specific values from ci.
func Generic(name string, kind model.Kind, fn HeadFunc) Callback {
	return Callback{Name: name, Kind: kind, call: func(ctx context.Context, ci *Info) error {
		return fn(ctx, ci)
	}}
}

// Entry is one callback in a site's ordered list.
type Entry struct {
	Group    string
	Callback Callback
	When     condition.Condition
}

// Site is one woven point and its ordered callbacks.
type Site struct {
	ID            string
	Kind          model.Kind
	Target        string
	Member        string
	Discriminator string
	Ordinal       int
	Line          int
	Entries       []Entry
}

// Table maps site ids to sites for one woven target.
type Table map[string]*Site

// Merge copies every site of other into t.
func (t Table) Merge(other Table) {
	for id, s := range other {
		t[id] = s
	}
}
