package dispatch

import (
	"context"

	"github.com/jward/mixweave/internal/condition"
	"github.com/jward/mixweave/internal/model"
)

// State is the lifecycle of one dispatch.
type State uint8

const (
	Pending State = iota
	Running
	Completed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	}
	return "pending"
}

type signalKind uint8

const (
	sigContinue signalKind = iota
	sigMutate
	sigCancel
)

// signal is what one callback asked for. The dispatch loop takes it after
// every callback.
type signal struct {
	kind  signalKind
	value any
}

// Original performs the wrapped call of an INVOKE site.
type Original func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// Info is the control object handed to callbacks. It lives for exactly one
// dispatch and is never shared between dispatches.
type Info struct {
	Kind    model.Kind
	Target  string
	Member  string
	Site    string
	TraceID string

	// Snapshot of the enclosing call.
	Self   any
	Args   []any
	Kwargs map[string]any
	Locals map[string]any

	// Kind-specific context.
	Param     string
	Attr      string
	Exception error

	value any
	set   bool
	state State
	sig   signal

	// Control misuse recorded by the current callback.
	misuse error

	original       Original
	callArgs       []any
	callKwargs     map[string]any
	originalCalled bool
	originalResult any
}

// Value is the live value: the return value for TAIL, the parameter value,
// the literal, the value being written, the yielded element, or the call
// result for INVOKE once the original ran.
func (ci *Info) Value() any { return ci.value }

// State reports where the dispatch is in its lifecycle.
func (ci *Info) State() State { return ci.state }

func (ci *Info) fail(method, reason string) error {
	err := &ControlMisuseError{Kind: ci.Kind, Method: method, Reason: reason}
	if ci.misuse == nil {
		ci.misuse = err
	}
	return err
}

// Cancel stops the dispatch after the current callback and makes result the
// outcome of the injection point.
func (ci *Info) Cancel(result any) error {
	switch ci.sig.kind {
	case sigCancel:
		return ci.fail("Cancel", "already cancelled")
	case sigMutate:
		return ci.fail("Cancel", "value already set by this callback")
	}
	ci.sig = signal{kind: sigCancel, value: result}
	return nil
}

// SetValue replaces the live value; later callbacks see the new value.
// Setting twice keeps the last value.
func (ci *Info) SetValue(v any) error {
	switch ci.Kind {
	case model.Head, model.Exception:
		return ci.fail("SetValue", "no value at this injection point")
	case model.Invoke:
		return ci.fail("SetValue", "replace a call result with Cancel")
	}
	return ci.mutate("SetValue", v)
}

// SetReturnValue replaces the value a TAIL point returns without stopping
// the remaining callbacks.
func (ci *Info) SetReturnValue(v any) error {
	if ci.Kind != model.Tail {
		return ci.fail("SetReturnValue", "only available at TAIL")
	}
	return ci.mutate("SetReturnValue", v)
}

func (ci *Info) mutate(method string, v any) error {
	if ci.sig.kind == sigCancel {
		return ci.fail(method, "already cancelled by this callback")
	}
	ci.sig = signal{kind: sigMutate, value: v}
	return nil
}

// CallArgs returns a copy of the arguments the original call will receive.
func (ci *Info) CallArgs() ([]any, map[string]any, error) {
	if ci.Kind != model.Invoke {
		return nil, nil, ci.fail("CallArgs", "only available at INVOKE")
	}
	args, kwargs := ci.callSnapshot()
	return args, kwargs, nil
}

// SetCallArgs replaces the arguments of the original call.
func (ci *Info) SetCallArgs(args []any, kwargs map[string]any) error {
	if ci.Kind != model.Invoke {
		return ci.fail("SetCallArgs", "only available at INVOKE")
	}
	if ci.originalCalled {
		return ci.fail("SetCallArgs", "original call already executed")
	}
	ci.callArgs = append([]any(nil), args...)
	ci.callKwargs = copyMap(kwargs)
	return nil
}

// CallOriginal runs the wrapped call and returns its result. Non-nil args
// or kwargs replace the call arguments first. The original runs at most once
// per dispatch; later calls return the captured result.
func (ci *Info) CallOriginal(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
	if ci.Kind != model.Invoke || ci.original == nil {
		return nil, ci.fail("CallOriginal", "only available at INVOKE")
	}
	if ci.originalCalled {
		return ci.originalResult, nil
	}
	if args != nil || kwargs != nil {
		if err := ci.SetCallArgs(args, kwargs); err != nil {
			return nil, err
		}
	}
	return ci.runOriginal(ctx)
}

// OriginalCalled reports whether the original call already ran.
func (ci *Info) OriginalCalled() bool { return ci.originalCalled }

func (ci *Info) runOriginal(ctx context.Context) (any, error) {
	res, err := ci.original(ctx, ci.callArgs, ci.callKwargs)
	if err != nil {
		return nil, err
	}
	ci.originalCalled = true
	ci.originalResult = res
	ci.value = res
	return res, nil
}

func (ci *Info) callSnapshot() ([]any, map[string]any) {
	return append([]any(nil), ci.callArgs...), copyMap(ci.callKwargs)
}

func (ci *Info) take() signal {
	s := ci.sig
	ci.sig = signal{}
	return s
}

// Vars exposes the context to conditions and scripts.
func (ci *Info) Vars() condition.Vars {
	v := condition.Vars{
		"kind":     string(ci.Kind),
		"target":   ci.Target,
		"member":   ci.Member,
		"site":     ci.Site,
		"trace_id": ci.TraceID,
		"self":     ci.Self,
		"args":     ci.Args,
		"kwargs":   ci.Kwargs,
		"locals":   ci.Locals,
		"value":    ci.value,
	}
	switch ci.Kind {
	case model.Tail:
		v["return_value"] = ci.value
	case model.Parameter:
		v["param"] = ci.Param
	case model.Const:
		v["const_value"] = ci.value
	case model.Attribute:
		v["attr"] = ci.Attr
	case model.Exception:
		v["exception"] = ci.Exception
	case model.Yield:
		v["yield_value"] = ci.value
	case model.Invoke:
		args, kwargs := ci.callSnapshot()
		v["args"] = args
		v["kwargs"] = kwargs
		v["call_args"] = args
		v["call_kwargs"] = kwargs
	}
	return v
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
