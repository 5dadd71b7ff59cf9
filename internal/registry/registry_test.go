package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/mixweave/internal/dispatch"
	"github.com/jward/mixweave/internal/model"
	"github.com/jward/mixweave/internal/selector"
)

func head(name string) dispatch.Callback {
	return dispatch.Head(name, func(context.Context, *dispatch.Info) error { return nil })
}

func headSpec(target, member, cb string, prio int) Spec {
	return Spec{Target: target, Member: member, At: model.At{Kind: model.Head}, Callback: head(cb), Priority: prio}
}

func names(specs []*Spec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Callback.Name
	}
	return out
}

func TestFreeze_OrdersByFivePartKey(t *testing.T) {
	r := New()
	regs := []Spec{
		{Group: "b", GroupPriority: 0, Target: "m", Member: "f", At: model.At{Kind: model.Head}, Callback: head("late-group"), Priority: 10},
		{Group: "a", GroupPriority: 1, Target: "m", Member: "f", At: model.At{Kind: model.Head}, Callback: head("high-group-prio"), Priority: 0},
		{Group: "a", GroupPriority: 0, Target: "m", Member: "f", At: model.At{Kind: model.Head}, Callback: head("zeta"), Priority: 10},
		{Group: "a", GroupPriority: 0, Target: "m", Member: "f", At: model.At{Kind: model.Head}, Callback: head("alpha"), Priority: 10},
		{Group: "a", GroupPriority: 0, Target: "m", Member: "f", At: model.At{Kind: model.Head}, Callback: head("first"), Priority: 5},
		{Group: "a", GroupPriority: 0, Target: "m", Member: "f", At: model.At{Kind: model.Head}, Callback: head("alpha"), Priority: 10},
	}
	var dupes []*Spec
	for _, s := range regs {
		got, err := r.Register(s)
		require.NoError(t, err)
		if got.Callback.Name == "alpha" {
			dupes = append(dupes, got)
		}
	}
	r.Freeze()

	got := r.Query("m", "f", model.Head)
	assert.Equal(t, []string{"first", "alpha", "alpha", "zeta", "late-group", "high-group-prio"}, names(got))
	assert.Less(t, got[1].Index(), got[2].Index(), "registration index breaks the last tie")
	assert.Equal(t, dupes[0].Index(), got[1].Index())

	again := r.Query("m", "f", model.Head)
	assert.Equal(t, names(got), names(again))
}

func TestPriorityBeatsRegistrationOrder(t *testing.T) {
	r := New()
	_, err := r.Register(headSpec("m", "f", "twenty", 20))
	require.NoError(t, err)
	_, err = r.Register(headSpec("m", "f", "ten", 10))
	require.NoError(t, err)
	r.Freeze()
	assert.Equal(t, []string{"ten", "twenty"}, names(r.Query("m", "f", model.Head)))
}

func TestRegisterAfterFreeze(t *testing.T) {
	r := New()
	r.Freeze()
	r.Freeze()
	assert.True(t, r.Frozen())
	_, err := r.Register(headSpec("m", "f", "cb", 0))
	assert.True(t, errors.Is(err, ErrRegistrationAfterFreeze))
	assert.Zero(t, r.Len())
}

func TestRegister_Validation(t *testing.T) {
	tail := dispatch.Tail("t", func(context.Context, *dispatch.Info, any) error { return nil })
	tests := []struct {
		name string
		spec Spec
	}{
		{"no target", Spec{At: model.At{Kind: model.Head}, Callback: head("cb")}},
		{"unknown kind", Spec{Target: "m", At: model.At{Kind: "AROUND"}, Callback: head("cb")}},
		{"missing callback", Spec{Target: "m", At: model.At{Kind: model.Head}}},
		{"kind mismatch", Spec{Target: "m", At: model.At{Kind: model.Head}, Callback: tail}},
		{"selector off invoke", Spec{Target: "m", At: model.At{Kind: model.Head, Selector: &selector.CallSelector{}}, Callback: head("cb")}},
		{"parameter without name", Spec{Target: "m", At: model.At{Kind: model.Parameter},
			Callback: dispatch.Parameter("p", func(context.Context, *dispatch.Info, any) error { return nil })}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			_, err := r.Register(tt.spec)
			assert.Error(t, err)
		})
	}
}

func TestRegisterGroup(t *testing.T) {
	r := New()
	err := r.RegisterGroup(Group{Name: "healing", Priority: -5},
		headSpec("m", "f", "a", 0),
		headSpec("m", "g", "b", 0),
	)
	require.NoError(t, err)
	for _, s := range r.ForTarget("m") {
		assert.Equal(t, "healing", s.Group)
		assert.Equal(t, -5, s.GroupPriority)
		assert.Equal(t, model.PolicyError, s.Policy)
	}
	assert.Equal(t, []string{"f", "g"}, r.Members("m"))

	r.Freeze()
	err = r.RegisterGroup(Group{Name: "late"}, headSpec("m", "f", "c", 0))
	assert.True(t, errors.Is(err, ErrRegistrationAfterFreeze))
}

func TestTargetsAndKeys(t *testing.T) {
	r := New()
	_, err := r.Register(headSpec("b", "f", "x", 0))
	require.NoError(t, err)
	s, err := r.Register(Spec{
		Target: "a.Player", Member: "hit",
		At:       model.At{Kind: model.Const, Name: 5},
		Callback: dispatch.Const("c", func(context.Context, *dispatch.Info, any) error { return nil }),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a.Player"}, r.Targets())
	assert.Equal(t, Key{Target: "a.Player", Member: "hit", Kind: model.Const, Discriminator: "num:5"}, s.Key())
}
