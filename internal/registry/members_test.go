package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memberNames(ms []*Member) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Name
	}
	return out
}

func TestAddMember_Validation(t *testing.T) {
	r := New()
	for _, target := range []string{"", "game", ".Player", "game.", "game.Player.Inner"} {
		_, err := r.AddMember(Member{Target: target, Name: "greet"})
		assert.Error(t, err, target)
	}
	_, err := r.AddMember(Member{Target: "game.Player"})
	assert.Error(t, err)

	m, err := r.AddMember(Member{Target: "game.Player", Name: "greet", Value: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "game", m.Module())
	assert.Equal(t, "Player", m.Class())
	assert.Equal(t, 1, r.MemberCount())
}

func TestAddMember_AfterFreeze(t *testing.T) {
	r := New()
	r.Freeze()
	_, err := r.AddMember(Member{Target: "game.Player", Name: "greet"})
	assert.ErrorIs(t, err, ErrRegistrationAfterFreeze)
	err = r.AddGroupMembers(Group{Name: "g"}, Member{Target: "game.Player", Name: "greet"})
	assert.ErrorIs(t, err, ErrRegistrationAfterFreeze)
}

func TestClassMembers_OrderAndModuleFilter(t *testing.T) {
	r := New()
	require.NoError(t, r.AddGroupMembers(Group{Name: "late", Priority: 1},
		Member{Target: "game.Player", Name: "a_late"},
	))
	require.NoError(t, r.AddGroupMembers(Group{Name: "early"},
		Member{Target: "game.Player", Name: "zeta", Priority: 5},
		Member{Target: "game.Player", Name: "alpha", Priority: 5},
		Member{Target: "game.Player", Name: "first", Priority: 1},
		Member{Target: "shop.Item", Name: "other"},
	))
	_, err := r.Register(headSpec("game", "f", "cb", 0))
	require.NoError(t, err)

	assert.Equal(t, []string{"a_late", "zeta", "alpha", "first"}, memberNames(r.ClassMembers("game")))

	r.Freeze()
	assert.Equal(t, []string{"first", "alpha", "zeta", "a_late"}, memberNames(r.ClassMembers("game")))
	assert.Equal(t, []string{"other"}, memberNames(r.ClassMembers("shop")))
	assert.Empty(t, r.ClassMembers("gam"))

	got := r.ClassMembers("game")
	assert.Equal(t, "early", got[0].Group)
	assert.Equal(t, 1, got[3].GroupPriority)
	assert.Equal(t, 1, r.Len())
}
