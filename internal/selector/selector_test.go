package selector

import (
	"errors"
	"testing"

	"github.com/jward/mixweave/internal/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sendCall builds net.send(packet, 3, retries=2, **opts-or-literal).
func sendCall(b *tree.Builder, spread tree.NodeID) tree.NodeID {
	args := []tree.NodeID{b.Name("packet"), b.Const(3), b.Kw("retries", b.Const(2))}
	if spread != tree.None {
		args = append(args, b.StarStar(spread))
	}
	return b.Call(b.Dotted("self.net.send"), args...)
}

func TestMatch_Func(t *testing.T) {
	b := tree.NewBuilder()
	call := sendCall(b, tree.None)

	tests := []struct {
		name string
		fn   string
		want bool
	}{
		{"exact path", "self.net.send", true},
		{"suffix only", "net.send", false},
		{"different leaf", "self.net.recv", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &CallSelector{Func: Func(tt.fn)}
			ok, err := s.Match(b.T, call)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestMatch_DynamicTargetNeverMatches(t *testing.T) {
	b := tree.NewBuilder()
	call := b.Call(b.Attr(b.Call(b.Name("factory")), "send"))
	s := &CallSelector{Func: Func("factory.send")}
	ok, err := s.Match(b.T, call)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatch_Args(t *testing.T) {
	b := tree.NewBuilder()
	call := sendCall(b, tree.None)

	tests := []struct {
		name string
		sel  CallSelector
		want bool
	}{
		{"prefix any", CallSelector{Args: []Arg{Any()}}, true},
		{"prefix name+const", CallSelector{Args: []Arg{Name("packet"), Const(3)}}, true},
		{"const float equals int", CallSelector{Args: []Arg{Any(), Const(3.0)}}, true},
		{"wrong const", CallSelector{Args: []Arg{Any(), Const(4)}}, false},
		{"exact count ok", CallSelector{Args: []Arg{Any(), Any()}, ArgsMode: ExactArgs}, true},
		{"exact count short", CallSelector{Args: []Arg{Any()}, ArgsMode: ExactArgs}, false},
		{"too many patterns", CallSelector{Args: []Arg{Any(), Any(), Any()}}, false},
		{"attr on a name", CallSelector{Args: []Arg{Attr("packet")}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := tt.sel.Match(b.T, call)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestMatch_AttrArgument(t *testing.T) {
	b := tree.NewBuilder()
	call := b.Call(b.Name("log"), b.Dotted("self.stats.hp"))
	ok, err := (&CallSelector{Args: []Arg{Attr("self.stats.hp")}}).Match(b.T, call)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = (&CallSelector{Args: []Arg{Attr("self.stats")}}).Match(b.T, call)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatch_Keywords(t *testing.T) {
	b := tree.NewBuilder()
	literal := b.Dict(b.Const("timeout"), b.Const(5))
	call := sendCall(b, literal)

	subset := &CallSelector{Kwargs: &Keywords{Mode: Subset, Items: map[string]Arg{"timeout": Const(5)}}}
	ok, err := subset.Match(b.T, call)
	require.NoError(t, err)
	assert.True(t, ok, "dict-literal spread keys are resolved")

	exact := &CallSelector{Kwargs: &Keywords{Mode: ExactKw, Items: map[string]Arg{"timeout": Any(), "retries": Const(2)}}}
	ok, err = exact.Match(b.T, call)
	require.NoError(t, err)
	assert.True(t, ok)

	exactShort := &CallSelector{Kwargs: &Keywords{Mode: ExactKw, Items: map[string]Arg{"retries": Const(2)}}}
	ok, err = exactShort.Match(b.T, call)
	require.NoError(t, err)
	assert.False(t, ok)

	wrongValue := &CallSelector{Kwargs: &Keywords{Mode: Subset, Items: map[string]Arg{"retries": Const(9)}}}
	ok, err = wrongValue.Match(b.T, call)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatch_StarStarPolicies(t *testing.T) {
	b := tree.NewBuilder()
	call := sendCall(b, b.Name("opts"))
	required := map[string]Arg{"timeout": Any()}

	tests := []struct {
		name   string
		policy StarStarPolicy
		mode   KwMode
		want   bool
	}{
		{"fail", Fail, Subset, false},
		{"ignore does not satisfy missing key", Ignore, Subset, false},
		{"assume match satisfies missing key", AssumeMatch, Subset, true},
		{"assume match under exact behaves like ignore", AssumeMatch, ExactKw, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &CallSelector{StarStar: tt.policy, Kwargs: &Keywords{Mode: tt.mode, Items: required}}
			ok, err := s.Match(b.T, call)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	present := &CallSelector{StarStar: Ignore, Kwargs: &Keywords{Mode: Subset, Items: map[string]Arg{"retries": Any()}}}
	ok, err := present.Match(b.T, call)
	require.NoError(t, err)
	assert.True(t, ok, "IGNORE matches when required keys are explicit")

	noKw := &CallSelector{}
	ok, err = noKw.Match(b.T, call)
	require.NoError(t, err)
	assert.False(t, ok, "default policy is FAIL")
}

func TestMatch_EscalatedAmbiguity(t *testing.T) {
	b := tree.NewBuilder()
	call := sendCall(b, b.Name("opts"))
	s := &CallSelector{StarStar: Fail, Escalate: true}
	ok, err := s.Match(b.T, call)
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAmbiguous))
}

func TestResolveTarget(t *testing.T) {
	b := tree.NewBuilder()
	r := ResolveTarget(b.T, b.Call(b.Dotted("a.b")))
	assert.Equal(t, Resolved, r.State)
	assert.Equal(t, []string{"a", "b"}, r.Value)

	r = ResolveTarget(b.T, b.Call(b.Index(b.Name("fns"), b.Const(0))))
	assert.Equal(t, Unresolved, r.State)
}

func TestResolveKeywords_States(t *testing.T) {
	b := tree.NewBuilder()
	assert.Equal(t, NotApplicable, ResolveKeywords(b.T, nil).State)

	kws := []tree.NodeID{b.Kw("a", b.Const(1)), b.StarStar(b.Name("rest"))}
	r := ResolveKeywords(b.T, kws)
	assert.Equal(t, Unresolved, r.State)
	assert.Contains(t, r.Value, "a", "known keys survive an unresolved spread")
}

func TestConstEqual(t *testing.T) {
	assert.True(t, ConstEqual(int64(1), 1.0))
	assert.True(t, ConstEqual("hp", "hp"))
	assert.True(t, ConstEqual(nil, nil))
	assert.False(t, ConstEqual(true, int64(1)), "booleans only equal booleans")
	assert.False(t, ConstEqual(int64(0), false))
	assert.False(t, ConstEqual("1", int64(1)))
}
