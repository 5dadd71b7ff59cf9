package condition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type player struct {
	name   string
	health int64
	bag    []any
}

func (p *player) Attr(name string) (any, bool) {
	switch name {
	case "name":
		return p.name, true
	case "health":
		return p.health, true
	case "bag":
		return p.bag, true
	}
	return nil, false
}

func (p *player) IsInstance(class string) bool { return class == "Player" || class == "object" }

func vars() Vars {
	return Vars{
		"value":  int64(-5),
		"args":   []any{int64(3), "sword"},
		"kwargs": map[string]any{"retries": int64(2), "tag": "npc-guard"},
		"self":   &player{name: "hero", health: 80, bag: []any{"potion", "map"}},
	}
}

func TestResolve(t *testing.T) {
	v := vars()
	tests := []struct {
		path string
		want any
	}{
		{"value", int64(-5)},
		{"args[0]", int64(3)},
		{"args[-1]", "sword"},
		{"kwargs.retries", int64(2)},
		{"self.name", "hero"},
		{"self.bag[1]", "map"},
		{"self.bag[9]", nil},
		{"self.missing", nil},
		{"nope.deeper", nil},
		{"bad path!", nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(v, tt.path))
		})
	}
}

func TestWhen_Leaves(t *testing.T) {
	ctx := context.Background()
	v := vars()
	tests := []struct {
		name string
		cond *When
		want bool
	}{
		{"lt", Compare("value", LT, 0), true},
		{"ge", Compare("value", GE, 0), false},
		{"eq cross numeric", Compare("args[0]", EQ, 3.0), true},
		{"ne", Compare("self.name", NE, "villain"), true},
		{"string order", Compare("self.name", GT, "alpha"), true},
		{"in list", Compare("args[1]", IN, []any{"sword", "bow"}), true},
		{"not in list", Compare("args[1]", NotIn, []any{"axe"}), true},
		{"in string", Compare("self.name", IN, "superhero"), true},
		{"is none", Compare("self.missing", IsNone, nil), true},
		{"not none", Compare("self.health", NotNone, nil), true},
		{"match", Compare("kwargs.tag", Match, `^npc`), true},
		{"match miss", Compare("self.name", Match, `npc`), false},
		{"len eq", Compare("self.bag", LenEQ, 2), true},
		{"len gt", Compare("args", LenGT, 1), true},
		{"len lt", Compare("self.name", LenLT, 4), false},
		{"isinstance host", Compare("self", IsInstance, "Player"), true},
		{"isinstance builtin", Compare("args[1]", IsInstance, "str"), true},
		{"isinstance tuple", Compare("value", IsInstance, []any{"str", "int"}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cond.Eval(ctx, v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWhen_Combinators(t *testing.T) {
	ctx := context.Background()
	v := vars()

	ok, err := And(Compare("value", LT, 0), Compare("self.health", GT, 50)).Eval(ctx, v)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Or(Compare("value", GT, 0), Compare("self.name", EQ, "hero")).Eval(ctx, v)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Not(Compare("kwargs.tag", Match, "npc")).Eval(ctx, v)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = And().Eval(ctx, v)
	require.NoError(t, err)
	assert.True(t, ok)

	var nilWhen *When
	ok, err = nilWhen.Eval(ctx, v)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWhen_Errors(t *testing.T) {
	ctx := context.Background()
	v := vars()

	_, err := Compare("self.missing", GT, 0).Eval(ctx, v)
	assert.Error(t, err, "None cannot be ordered")

	_, err = Compare("value", LenEQ, 1).Eval(ctx, v)
	assert.Error(t, err)

	_, err = Compare("value", IN, 5).Eval(ctx, v)
	assert.Error(t, err)

	_, err = (&When{Op: NotOp}).Eval(ctx, v)
	assert.Error(t, err)
}

func TestParseOp(t *testing.T) {
	op, err := ParseOp("not_in")
	require.NoError(t, err)
	assert.Equal(t, NotIn, op)

	_, err = ParseOp("between")
	assert.Error(t, err)
}
