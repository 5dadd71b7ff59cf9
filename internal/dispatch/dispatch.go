// Package dispatch runs the callbacks registered at a woven site. Each
// dispatch builds its own control object, runs the site's callbacks in
// order and folds their control signals into one outcome.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jward/mixweave/internal/model"
)

// Trace is one callback invocation, recorded when tracing is enabled.
type Trace struct {
	ID        string
	Target    string
	Member    string
	Kind      model.Kind
	Site      string
	Callback  string
	Cancelled bool
	At        time.Time
}

// TraceSink persists traces. Sink failures are logged and never fail the
// dispatch.
type TraceSink interface {
	RecordTrace(ctx context.Context, t Trace) error
}

// Request carries what an instrumented point knows when it dispatches.
type Request struct {
	Self   any
	Args   []any
	Kwargs map[string]any
	Locals map[string]any

	// Value is the kind-specific live value.
	Value     any
	Param     string
	Attr      string
	Exception error

	// INVOKE only.
	Original   Original
	CallArgs   []any
	CallKwargs map[string]any
}

// Outcome is the folded result of a dispatch. Set reports whether any
// callback mutated the value.
type Outcome struct {
	Value     any
	Cancelled bool
	Set       bool
}

// Runtime dispatches sites. It is safe for concurrent use.
type Runtime struct {
	logger *zap.Logger
	trace  bool
	sink   TraceSink
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger used for trace lines.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

// WithTrace enables one log line per callback invocation.
func WithTrace(on bool) Option {
	return func(r *Runtime) { r.trace = on }
}

// WithSink records a Trace per callback invocation.
func WithSink(s TraceSink) Option {
	return func(r *Runtime) { r.sink = s }
}

// NewRuntime creates a Runtime.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{logger: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Dispatch runs the callbacks of site for one execution of the woven point.
// Callback errors are returned unchanged.
func (r *Runtime) Dispatch(ctx context.Context, site *Site, req Request) (Outcome, error) {
	ci := &Info{
		Kind:       site.Kind,
		Target:     site.Target,
		Member:     site.Member,
		Site:       site.ID,
		TraceID:    uuid.NewString(),
		Self:       req.Self,
		Args:       req.Args,
		Kwargs:     req.Kwargs,
		Locals:     req.Locals,
		Param:      req.Param,
		Attr:       req.Attr,
		Exception:  req.Exception,
		value:      req.Value,
		original:   req.Original,
		callArgs:   append([]any(nil), req.CallArgs...),
		callKwargs: copyMap(req.CallKwargs),
	}
	if site.Kind == model.Invoke && ci.original == nil {
		return Outcome{}, fmt.Errorf("dispatch: INVOKE site %s has no original call", site.ID)
	}
	ci.state = Running

	for _, e := range site.Entries {
		if e.When != nil {
			ok, err := e.When.Eval(ctx, ci.Vars())
			if err != nil {
				return Outcome{}, fmt.Errorf("dispatch: condition of %s: %w", e.Callback.Name, err)
			}
			if !ok {
				continue
			}
		}
		if err := e.Callback.call(ctx, ci); err != nil {
			return Outcome{}, err
		}
		if ci.misuse != nil {
			return Outcome{}, ci.misuse
		}
		sig := ci.take()
		r.record(ctx, ci, e.Callback.Name, sig.kind == sigCancel)
		switch sig.kind {
		case sigCancel:
			ci.state = Cancelled
			if r.trace {
				r.logger.Debug("dispatch cancelled",
					zap.String("trace_id", ci.TraceID),
					zap.String("site", ci.Site),
					zap.Any("result", sig.value))
			}
			return Outcome{Value: sig.value, Cancelled: true}, nil
		case sigMutate:
			ci.value = sig.value
			ci.set = true
		}
	}

	if site.Kind == model.Invoke && !ci.originalCalled {
		if _, err := ci.runOriginal(ctx); err != nil {
			return Outcome{}, err
		}
	}
	ci.state = Completed
	return Outcome{Value: ci.value, Set: ci.set}, nil
}

func (r *Runtime) record(ctx context.Context, ci *Info, callback string, cancelled bool) {
	if r.trace {
		r.logger.Debug("dispatch",
			zap.String("trace_id", ci.TraceID),
			zap.String("target", ci.Target),
			zap.String("member", ci.Member),
			zap.String("kind", string(ci.Kind)),
			zap.String("site", ci.Site),
			zap.String("callback", callback))
	}
	if r.sink == nil {
		return
	}
	t := Trace{
		ID:        ci.TraceID,
		Target:    ci.Target,
		Member:    ci.Member,
		Kind:      ci.Kind,
		Site:      ci.Site,
		Callback:  callback,
		Cancelled: cancelled,
		At:        time.Now().UTC(),
	}
	if err := r.sink.RecordTrace(ctx, t); err != nil {
		r.logger.Warn("trace sink failed", zap.String("site", ci.Site), zap.Error(err))
	}
}
