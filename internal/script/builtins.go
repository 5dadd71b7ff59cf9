package script

import (
	"context"

	"github.com/risor-io/risor/object"
	"go.uber.org/zap"

	"github.com/jward/mixweave/internal/condition"
	"github.com/jward/mixweave/internal/dispatch"
)

// control binds the dispatch control methods of one Info to Risor
// builtins. The first control error wins and is returned to the dispatch
// loop unchanged, whatever the script does with the Risor error.
type control struct {
	ci  *dispatch.Info
	err error
}

func (c *control) fail(name string, err error) object.Object {
	if c.err == nil {
		c.err = err
	}
	return object.Errorf("%s: %v", name, err)
}

func (c *control) builtins() map[string]any {
	return map[string]any{
		"cancel":           c.cancelFn(),
		"set_value":        c.setFn("set_value", c.ci.SetValue),
		"set_return_value": c.setFn("set_return_value", c.ci.SetReturnValue),
		"call_args":        c.callArgsFn(),
		"set_call_args":    c.setCallArgsFn(),
		"call_original":    c.callOriginalFn(),
	}
}

// cancel(result=nil)
func (c *control) cancelFn() *object.Builtin {
	return object.NewBuiltin("cancel", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) > 1 {
			return object.NewArgsError("cancel", 1, len(args))
		}
		var result any
		if len(args) == 1 {
			result = fromObject(args[0])
		}
		if err := c.ci.Cancel(result); err != nil {
			return c.fail("cancel", err)
		}
		return object.Nil
	})
}

// set_value(v) and set_return_value(v)
func (c *control) setFn(name string, set func(any) error) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(name, 1, len(args))
		}
		if err := set(fromObject(args[0])); err != nil {
			return c.fail(name, err)
		}
		return object.Nil
	})
}

// call_args() → [args, kwargs]
func (c *control) callArgsFn() *object.Builtin {
	return object.NewBuiltin("call_args", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("call_args", 0, len(args))
		}
		a, kw, err := c.ci.CallArgs()
		if err != nil {
			return c.fail("call_args", err)
		}
		return object.NewList([]object.Object{toObject(a), toObject(kw)})
	})
}

// set_call_args(args, kwargs=nil)
func (c *control) setCallArgsFn() *object.Builtin {
	return object.NewBuiltin("set_call_args", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 2 {
			return object.NewArgsError("set_call_args", 2, len(args))
		}
		a, err := argsFrom(args[0])
		if err != nil {
			return object.Errorf("set_call_args: %v", err)
		}
		var kw map[string]any
		if len(args) == 2 {
			if kw, err = kwargsFrom(args[1]); err != nil {
				return object.Errorf("set_call_args: %v", err)
			}
		}
		if err := c.ci.SetCallArgs(a, kw); err != nil {
			return c.fail("set_call_args", err)
		}
		return object.Nil
	})
}

// call_original(args=nil, kwargs=nil) → result
func (c *control) callOriginalFn() *object.Builtin {
	return object.NewBuiltin("call_original", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) > 2 {
			return object.NewArgsError("call_original", 2, len(args))
		}
		var (
			a   []any
			kw  map[string]any
			err error
		)
		if len(args) >= 1 {
			if a, err = argsFrom(args[0]); err != nil {
				return object.Errorf("call_original: %v", err)
			}
		}
		if len(args) == 2 {
			if kw, err = kwargsFrom(args[1]); err != nil {
				return object.Errorf("call_original: %v", err)
			}
		}
		res, err := c.ci.CallOriginal(ctx, a, kw)
		if err != nil {
			return c.fail("call_original", err)
		}
		return toObject(res)
	})
}

// logBuiltins returns log, log_debug and log_warn. Each takes a message and
// an optional map of fields; the dispatch site and member are always
// attached.
func (e *Engine) logBuiltins(vars condition.Vars) map[string]any {
	base := []zap.Field{
		zap.Any("target", vars["target"]),
		zap.Any("member", vars["member"]),
		zap.Any("site", vars["site"]),
	}
	mk := func(name string, emit func(string, ...zap.Field)) *object.Builtin {
		return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) < 1 || len(args) > 2 {
				return object.NewArgsError(name, 2, len(args))
			}
			msg, ok := args[0].(*object.String)
			if !ok {
				return object.Errorf("%s: message must be a string, got %s", name, args[0].Type())
			}
			fields := append([]zap.Field(nil), base...)
			if len(args) == 2 {
				keys, vals := fieldsFrom(args[1])
				for _, k := range keys {
					fields = append(fields, zap.Any(k, vals[k]))
				}
			}
			emit(msg.Value(), fields...)
			return object.Nil
		})
	}
	return map[string]any{
		"log":       mk("log", e.logger.Info),
		"log_debug": mk("log_debug", e.logger.Debug),
		"log_warn":  mk("log_warn", e.logger.Warn),
	}
}
