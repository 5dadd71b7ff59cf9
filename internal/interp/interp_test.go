package interp_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/mixweave/internal/dispatch"
	"github.com/jward/mixweave/internal/interp"
	"github.com/jward/mixweave/internal/model"
	"github.com/jward/mixweave/internal/registry"
	"github.com/jward/mixweave/internal/tree"
	"github.com/jward/mixweave/internal/weaver"
)

func load(t *testing.T, src *tree.Tree, specs ...registry.Spec) *interp.Module {
	t.Helper()
	r := registry.New()
	for _, s := range specs {
		_, err := r.Register(s)
		require.NoError(t, err)
	}
	res, err := weaver.New(r).Weave("game", src)
	require.NoError(t, err)
	return interp.New("game", res.Tree, res.Table, dispatch.NewRuntime())
}

// plainModule builds:
//
//	log = []
//	def fib(n):
//	    if n < 2:
//	        return n
//	    return fib(n - 1) + fib(n - 2)
//	def make_adder(k):
//	    def add(x):
//	        return x + k
//	    return add
//	add3 = make_adder(3)
//	def gen(n):
//	    for i in range(n):
//	        yield i * 2
//	def safe_div(a, b):
//	    try:
//	        return a // b
//	    except ZeroDivisionError as e:
//	        return str(e)
//	    finally:
//	        log.append("done")
//	def fail(msg):
//	    raise ValueError(msg)
//	class Counter:
//	    def __init__(self, start):
//	        self.count = start
//	    def incr(self, by=1):
//	        self.count += by
//	        return self.count
func plainModule() *tree.Tree {
	b := tree.NewBuilder()
	fib := b.Func("fib", b.Params("n"),
		b.If(b.Cmp("<", b.Name("n"), b.Const(2)), []tree.NodeID{b.Return(b.Name("n"))}, nil),
		b.Return(b.Bin("+",
			b.Call(b.Name("fib"), b.Bin("-", b.Name("n"), b.Const(1))),
			b.Call(b.Name("fib"), b.Bin("-", b.Name("n"), b.Const(2))))),
	)
	adder := b.Func("make_adder", b.Params("k"),
		b.Func("add", b.Params("x"), b.Return(b.Bin("+", b.Name("x"), b.Name("k")))),
		b.Return(b.Name("add")),
	)
	gen := b.Func("gen", b.Params("n"),
		b.For(b.Name("i"), b.Call(b.Name("range"), b.Name("n")),
			b.Expr(b.Yield(b.Bin("*", b.Name("i"), b.Const(2))))),
	)
	div := b.Func("safe_div", b.Params("a", "b"),
		b.Try(
			[]tree.NodeID{b.Return(b.Bin("//", b.Name("a"), b.Name("b")))},
			[]tree.NodeID{b.Handler(b.Name("ZeroDivisionError"), "e", b.Return(b.Call(b.Name("str"), b.Name("e"))))},
			nil,
			[]tree.NodeID{b.Expr(b.Call(b.Attr(b.Name("log"), "append"), b.Const("done")))},
		),
	)
	fail := b.Func("fail", b.Params("msg"), b.Raise(b.Call(b.Name("ValueError"), b.Name("msg"))))
	counter := b.Class("Counter",
		b.Func("__init__", b.Params("self", "start"), b.Assign(b.Dotted("self.count"), b.Name("start"))),
		b.Func("incr", []tree.NodeID{b.Param("self"), b.ParamDefault("by", b.Const(1))},
			b.AugAssign("+", b.Dotted("self.count"), b.Name("by")),
			b.Return(b.Dotted("self.count"))),
	)
	b.Module(
		b.Assign(b.Name("log"), b.List()),
		fib, adder,
		b.Assign(b.Name("add3"), b.Call(b.Name("make_adder"), b.Const(3))),
		gen, div, fail, counter,
	)
	return b.T
}

func TestModule_PlainExecution(t *testing.T) {
	ctx := context.Background()
	m := load(t, plainModule())

	got, err := m.Call(ctx, "fib", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(55), got)

	got, err = m.Call(ctx, "add3", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)

	got, err = m.Call(ctx, "gen", 3)
	require.NoError(t, err)
	assert.Equal(t, interp.NewList(int64(0), int64(2), int64(4)), got)
}

func TestModule_TryExceptFinally(t *testing.T) {
	ctx := context.Background()
	m := load(t, plainModule())

	got, err := m.Call(ctx, "safe_div", 7, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)

	got, err = m.Call(ctx, "safe_div", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "integer division or modulo by zero", got)

	log, ok := m.Global("log")
	require.True(t, ok)
	assert.Equal(t, interp.NewList("done", "done"), log)
}

func TestModule_UncaughtException(t *testing.T) {
	m := load(t, plainModule())
	_, err := m.Call(context.Background(), "fail", "bad")
	require.Error(t, err)
	var exc *interp.Exception
	require.True(t, errors.As(err, &exc))
	assert.Equal(t, "ValueError", exc.Class.Name)
	assert.Equal(t, "bad", exc.Message())
	assert.EqualError(t, err, "ValueError: bad")
}

func TestModule_Classes(t *testing.T) {
	ctx := context.Background()
	m := load(t, plainModule())

	obj, err := m.Call(ctx, "Counter", 5)
	require.NoError(t, err)
	require.IsType(t, &interp.Object{}, obj)

	got, err := m.CallMethod(ctx, obj, "incr")
	require.NoError(t, err)
	assert.Equal(t, int64(6), got)
	got, err = m.CallMethod(ctx, obj, "incr", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)

	_, err = m.CallMethod(ctx, obj, "missing")
	var exc *interp.Exception
	require.True(t, errors.As(err, &exc))
	assert.Equal(t, "AttributeError", exc.Class.Name)
}

func TestModule_Print(t *testing.T) {
	b := tree.NewBuilder()
	b.Module(b.Expr(b.Call(b.Name("print"), b.Const("hp"), b.Const(1.0), b.List(b.Const(1), b.Const("a")), b.None())))
	var out bytes.Buffer
	m := interp.New("game", b.T, nil, nil, interp.WithStdout(&out))
	require.NoError(t, m.Exec(context.Background()))
	assert.Equal(t, "hp 1.0 [1, 'a'] None\n", out.String())
}

// gameModule builds:
//
//	def heal(value):
//	    return value
//	def score():
//	    bonus = 5
//	    return 10
//	def send(x, retries=0):
//	    return x * 10 + retries
//	def fetch(x):
//	    return send(x, retries=1)
//	def risky(x):
//	    if x < 0:
//	        raise ValueError("negative")
//	    return x
//	def evens(n):
//	    for i in range(n):
//	        yield i
//	class Player:
//	    def __init__(self):
//	        self.hp = 10
//	    def hit(self, dmg):
//	        self.hp -= dmg
//	        return self.hp
func gameModule() *tree.Tree {
	b := tree.NewBuilder()
	b.Module(
		b.Func("heal", b.Params("value"), b.Return(b.Name("value"))),
		b.Func("score", nil, b.Assign(b.Name("bonus"), b.Const(5)), b.Return(b.Const(10))),
		b.Func("send", []tree.NodeID{b.Param("x"), b.ParamDefault("retries", b.Const(0))},
			b.Return(b.Bin("+", b.Bin("*", b.Name("x"), b.Const(10)), b.Name("retries")))),
		b.Func("fetch", b.Params("x"),
			b.Return(b.Call(b.Name("send"), b.Name("x"), b.Kw("retries", b.Const(1))))),
		b.Func("risky", b.Params("x"),
			b.If(b.Cmp("<", b.Name("x"), b.Const(0)),
				[]tree.NodeID{b.Raise(b.Call(b.Name("ValueError"), b.Const("negative")))}, nil),
			b.Return(b.Name("x"))),
		b.Func("evens", b.Params("n"),
			b.For(b.Name("i"), b.Call(b.Name("range"), b.Name("n")), b.Expr(b.Yield(b.Name("i"))))),
		b.Class("Player",
			b.Func("__init__", b.Params("self"), b.Assign(b.Dotted("self.hp"), b.Const(10))),
			b.Func("hit", b.Params("self", "dmg"),
				b.AugAssign("-", b.Dotted("self.hp"), b.Name("dmg")),
				b.Return(b.Dotted("self.hp"))),
		),
	)
	return b.T
}

func TestHook_ParameterClamp(t *testing.T) {
	ctx := context.Background()
	m := load(t, gameModule(), registry.Spec{
		Target: "game", Member: "heal",
		At: model.At{Kind: model.Parameter, Name: "value"},
		Callback: dispatch.Parameter("clamp", func(_ context.Context, ci *dispatch.Info, v any) error {
			if n, ok := v.(int64); ok && n < 0 {
				return ci.SetValue(0)
			}
			return nil
		}),
	})

	got, err := m.Call(ctx, "heal", -5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	got, err = m.Call(ctx, "heal", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)
}

func TestHook_TailAndHeadCancel(t *testing.T) {
	ctx := context.Background()
	var seen []any
	m := load(t, gameModule(),
		registry.Spec{
			Target: "game", Member: "score", At: model.At{Kind: model.Tail}, Priority: 10,
			Callback: dispatch.Tail("double", func(_ context.Context, ci *dispatch.Info, ret any) error {
				seen = append(seen, ret)
				return ci.SetReturnValue(20)
			}),
		},
		registry.Spec{
			Target: "game", Member: "score", At: model.At{Kind: model.Tail}, Priority: 20,
			Callback: dispatch.Tail("observe", func(_ context.Context, ci *dispatch.Info, ret any) error {
				seen = append(seen, ret)
				assert.Equal(t, int64(5), ci.Locals["bonus"])
				return nil
			}),
		},
		registry.Spec{
			Target: "game", Member: "heal", At: model.At{Kind: model.Head},
			Callback: dispatch.Head("guard", func(_ context.Context, ci *dispatch.Info) error {
				if ci.Args[0] == int64(99) {
					return ci.Cancel("refused")
				}
				return nil
			}),
		},
	)

	got, err := m.Call(ctx, "score")
	require.NoError(t, err)
	assert.Equal(t, int64(20), got)
	assert.Equal(t, []any{int64(10), 20}, seen, "second callback sees the first mutation")

	got, err = m.Call(ctx, "heal", 99)
	require.NoError(t, err)
	assert.Equal(t, "refused", got)
	got, err = m.Call(ctx, "heal", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestHook_InvokeRewritesArguments(t *testing.T) {
	ctx := context.Background()
	m := load(t, gameModule(), registry.Spec{
		Target: "game", Member: "fetch",
		At: model.At{Kind: model.Invoke, Name: "send"},
		Callback: dispatch.Invoke("boost", func(ctx context.Context, ci *dispatch.Info, args []any, kwargs map[string]any) error {
			assert.Equal(t, []any{int64(4)}, args)
			assert.Equal(t, map[string]any{"retries": int64(1)}, kwargs)
			kwargs["retries"] = 5
			_, err := ci.CallOriginal(ctx, args, kwargs)
			return err
		}),
	})
	got, err := m.Call(ctx, "fetch", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(45), got)
}

func TestHook_InvokeCancelSkipsCall(t *testing.T) {
	ctx := context.Background()
	m := load(t, gameModule(), registry.Spec{
		Target: "game", Member: "fetch",
		At: model.At{Kind: model.Invoke, Name: "send"},
		Callback: dispatch.Invoke("block", func(_ context.Context, ci *dispatch.Info, _ []any, _ map[string]any) error {
			return ci.Cancel(-1)
		}),
	})
	got, err := m.Call(ctx, "fetch", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), got)
}

func TestHook_ExceptionBoundary(t *testing.T) {
	ctx := context.Background()
	var caught []string
	m := load(t, gameModule(), registry.Spec{
		Target: "game", Member: "risky",
		At: model.At{Kind: model.Exception},
		Callback: dispatch.Exception("recover", func(_ context.Context, ci *dispatch.Info, exc error) error {
			caught = append(caught, exc.Error())
			return ci.Cancel(0)
		}),
	})
	got, err := m.Call(ctx, "risky", -3)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
	assert.Equal(t, []string{"ValueError: negative"}, caught)

	got, err = m.Call(ctx, "risky", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)
	assert.Len(t, caught, 1)
}

func TestHook_ExceptionObserveReraises(t *testing.T) {
	m := load(t, gameModule(), registry.Spec{
		Target: "game", Member: "risky",
		At:       model.At{Kind: model.Exception},
		Callback: dispatch.Exception("observe", func(context.Context, *dispatch.Info, error) error { return nil }),
	})
	_, err := m.Call(context.Background(), "risky", -1)
	var exc *interp.Exception
	require.True(t, errors.As(err, &exc))
	assert.Equal(t, "ValueError", exc.Class.Name)
}

func TestHook_YieldMutateAndCancel(t *testing.T) {
	ctx := context.Background()
	m := load(t, gameModule(), registry.Spec{
		Target: "game", Member: "evens",
		At: model.At{Kind: model.Yield},
		Callback: dispatch.Yield("scale", func(_ context.Context, ci *dispatch.Info, v any) error {
			n := v.(int64)
			if n == 3 {
				return ci.Cancel(-1)
			}
			return ci.SetValue(n * 100)
		}),
	})
	got, err := m.Call(ctx, "evens", 10)
	require.NoError(t, err)
	assert.Equal(t, interp.NewList(int64(0), int64(100), int64(200), int64(-1)), got)
}

func TestHook_AttributeAugmentedAssignment(t *testing.T) {
	ctx := context.Background()
	m := load(t, gameModule(), registry.Spec{
		Target: "game.Player", Member: "hit",
		At: model.At{Kind: model.Attribute, Name: "self.hp"},
		Callback: dispatch.Attribute("floor", func(_ context.Context, ci *dispatch.Info, v any) error {
			assert.Equal(t, "self.hp", ci.Attr)
			if v.(int64) < 0 {
				return ci.SetValue(0)
			}
			return nil
		}),
	})
	p, err := m.Call(ctx, "Player")
	require.NoError(t, err)

	got, err := m.CallMethod(ctx, p, "hit", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got)
	got, err = m.CallMethod(ctx, p, "hit", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestHook_ConstReplacement(t *testing.T) {
	m := load(t, gameModule(), registry.Spec{
		Target: "game", Member: "score",
		At: model.At{Kind: model.Const, Name: 10},
		Callback: dispatch.Const("raise", func(_ context.Context, ci *dispatch.Info, v any) error {
			return ci.SetValue(v.(int64) + 1)
		}),
	})
	got, err := m.Call(context.Background(), "score")
	require.NoError(t, err)
	assert.Equal(t, int64(11), got)
}

func TestHook_CallbackErrorIsNotCatchable(t *testing.T) {
	boom := errors.New("boom")
	b := tree.NewBuilder()
	b.Module(b.Func("guarded", nil,
		b.Try(
			[]tree.NodeID{b.Return(b.Call(b.Name("len"), b.List()))},
			[]tree.NodeID{b.Handler(tree.None, "", b.Return(b.Const("swallowed")))},
			nil, nil,
		)))
	m := load(t, b.T, registry.Spec{
		Target: "game", Member: "guarded",
		At: model.At{Kind: model.Invoke, Name: "len"},
		Callback: dispatch.Invoke("fail", func(context.Context, *dispatch.Info, []any, map[string]any) error {
			return boom
		}),
	})
	_, err := m.Call(context.Background(), "guarded")
	assert.Same(t, boom, err)
}

func TestHook_UnknownSite(t *testing.T) {
	b := tree.NewBuilder()
	body := b.Expr(b.T.NewHook(string(model.Const), "deadbeef", "", 1, b.Const(1)))
	b.Module(body)
	m := interp.New("game", b.T, dispatch.Table{}, nil)
	err := m.Exec(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown site deadbeef")
}

type ctxKey struct{}

func TestHook_CallbacksSeeCallerContextAndFrame(t *testing.T) {
	b := tree.NewBuilder()
	b.Module(b.Func("heal", b.Params("value"),
		b.Assign(b.Name("bonus"), b.Const(3)),
		b.Return(b.Bin("+", b.Name("value"), b.Name("bonus"))),
	))
	var gotCtx any
	var gotLocals map[string]any
	m := load(t, b.T, registry.Spec{
		Target: "game", Member: "heal",
		At: model.At{Kind: model.Tail},
		Callback: dispatch.Tail("see", func(ctx context.Context, ci *dispatch.Info, _ any) error {
			gotCtx = ctx.Value(ctxKey{})
			gotLocals = ci.Locals
			return nil
		}),
	})
	ctx := context.WithValue(context.Background(), ctxKey{}, "request-7")
	v, err := m.Call(ctx, "heal", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
	assert.Equal(t, "request-7", gotCtx)
	assert.Equal(t, int64(4), gotLocals["value"])
	assert.Equal(t, int64(3), gotLocals["bonus"])
}

// playerModule builds:
//
//	class Player:
//	    def __init__(self, health):
//	        self.health = health
//	greeting = Player(7).mixin_greet()
func playerModule() *tree.Tree {
	b := tree.NewBuilder()
	b.Module(
		b.Class("Player",
			b.Func("__init__", b.Params("self", "health"), b.Assign(b.Dotted("self.health"), b.Name("health"))),
		),
		b.Assign(b.Name("greeting"), b.Call(b.Attr(b.Call(b.Name("Player"), b.Const(7)), "mixin_greet"))),
	)
	return b.T
}

func health(self any) int64 {
	o := self.(*interp.Object)
	return o.Attrs["health"].(int64)
}

func TestModule_ClassMembers(t *testing.T) {
	ctx := context.Background()
	m := interp.New("game", playerModule(), nil, nil, interp.WithMembers(
		interp.ClassMember{Class: "Player", Name: "mixin_greet", Method: func(_ context.Context, self any, _ []any, _ map[string]any) (any, error) {
			return "Hello from mixin! health=" + interp.Str(health(self)), nil
		}},
		interp.ClassMember{Class: "Player", Name: "mixin_double_health", Method: func(_ context.Context, self any, _ []any, _ map[string]any) (any, error) {
			return health(self) * 2, nil
		}},
		interp.ClassMember{Class: "Player", Name: "species", Value: "human"},
		interp.ClassMember{Class: "Enemy", Name: "species", Value: "orc"},
	))
	require.NoError(t, m.Exec(ctx))

	greeting, ok := m.Global("greeting")
	require.True(t, ok)
	assert.Equal(t, "Hello from mixin! health=7", greeting)

	p, err := m.Call(ctx, "Player", 7)
	require.NoError(t, err)
	got, err := m.CallMethod(ctx, p, "mixin_double_health")
	require.NoError(t, err)
	assert.Equal(t, int64(14), got)

	species, err := m.GetAttr(p, "species")
	require.NoError(t, err)
	assert.Equal(t, "human", species)

	cls, ok := m.Global("Player")
	require.True(t, ok)
	unbound, err := m.GetAttr(cls, "mixin_double_health")
	require.NoError(t, err)
	assert.Equal(t, "function", interp.TypeName(unbound))
}

func TestModule_ClassMemberErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	m := interp.New("game", playerModule(), nil, nil, interp.WithMembers(
		interp.ClassMember{Class: "Player", Name: "mixin_greet", Method: func(context.Context, any, []any, map[string]any) (any, error) {
			return nil, boom
		}},
	))
	err := m.Exec(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestModule_ConditionalExpressionAndExceptionInstance(t *testing.T) {
	ctx := context.Background()
	b := tree.NewBuilder()
	b.Module(b.Func("size", b.Params("n"),
		b.Return(b.Cond(b.Cmp(">", b.Name("n"), b.Const(5)), b.Const("big"), b.Const("small")))))
	m := interp.New("game", b.T, nil, nil)

	got, err := m.Call(ctx, "size", 9)
	require.NoError(t, err)
	assert.Equal(t, "big", got)
	got, err = m.Call(ctx, "size", 2)
	require.NoError(t, err)
	assert.Equal(t, "small", got)

	_, err = load(t, plainModule()).Call(ctx, "fail", "bad")
	var exc *interp.Exception
	require.True(t, errors.As(err, &exc))
	assert.True(t, exc.IsInstance("ValueError"))
	assert.True(t, exc.IsInstance("object"))
	assert.False(t, exc.IsInstance("KeyError"))
}
