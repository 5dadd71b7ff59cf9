package location

import (
	"testing"

	"github.com/jward/mixweave/internal/model"
	"github.com/jward/mixweave/internal/tree"
	"github.com/stretchr/testify/assert"
)

// cands returns one candidate per statement index in stmts, node id equal to
// the index, line = index+10.
func cands(stmts ...int) []Candidate {
	out := make([]Candidate, len(stmts))
	for i, s := range stmts {
		out[i] = Candidate{Node: tree.NodeID(s), Pos: tree.Pos{Stmt: s}, Line: s + 10}
	}
	return out
}

func nodes(cs []Candidate) []tree.NodeID {
	out := make([]tree.NodeID, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Node)
	}
	return out
}

var anchorAt = model.At{Kind: model.Invoke, Name: "anchor"}

// anchorAtStmt resolves every anchor to statement s.
func anchorAtStmt(s int) AnchorFunc {
	return func(model.At) (tree.Pos, bool) { return tree.Pos{Stmt: s}, true }
}

func missingAnchor(model.At) (tree.Pos, bool) { return tree.Pos{}, false }

func TestApply_EmptyInputNeverFails(t *testing.T) {
	locs := []*model.Location{
		nil,
		{Slice: &model.Slice{From: &anchorAt}},
		{Near: &model.Near{Anchor: anchorAt, MaxDistance: 1}},
		{Anchor: &model.Anchor{Anchor: anchorAt, Offset: -1}},
		{Line: &model.Line{Line: 3}},
		{Occurrence: model.Last, Ordinal: model.Ordinal(2)},
	}
	for _, loc := range locs {
		assert.Empty(t, Apply(nil, loc, missingAnchor))
	}
}

func TestApply_SortsByPosition(t *testing.T) {
	in := []Candidate{
		{Node: 3, Pos: tree.Pos{Stmt: 1, Sub: 2}},
		{Node: 1, Pos: tree.Pos{Stmt: 0, Sub: 5}},
		{Node: 2, Pos: tree.Pos{Stmt: 1, Sub: 0}},
	}
	assert.Equal(t, []tree.NodeID{1, 2, 3}, nodes(Apply(in, nil, nil)))
}

func TestApply_Slice(t *testing.T) {
	in := cands(0, 1, 2, 3, 4, 5)
	tests := []struct {
		name  string
		slice model.Slice
		want  []tree.NodeID
	}{
		{"from exclusive", model.Slice{From: &anchorAt}, []tree.NodeID{3, 4, 5}},
		{"from inclusive", model.Slice{From: &anchorAt, IncludeFrom: true}, []tree.NodeID{2, 3, 4, 5}},
		{"to exclusive", model.Slice{To: &anchorAt}, []tree.NodeID{0, 1}},
		{"to inclusive", model.Slice{To: &anchorAt, IncludeTo: true}, []tree.NodeID{0, 1, 2}},
		{"open", model.Slice{}, []tree.NodeID{0, 1, 2, 3, 4, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.slice
			got := Apply(in, &model.Location{Slice: &s}, anchorAtStmt(2))
			assert.Equal(t, tt.want, nodes(got))
		})
	}
}

func TestApply_SliceBothBounds(t *testing.T) {
	from := model.At{Kind: model.Invoke, Name: "start"}
	to := model.At{Kind: model.Invoke, Name: "stop"}
	resolve := func(at model.At) (tree.Pos, bool) {
		if at.Path() == "start" {
			return tree.Pos{Stmt: 1}, true
		}
		return tree.Pos{Stmt: 4}, true
	}
	got := Apply(cands(0, 1, 2, 3, 4, 5), &model.Location{Slice: &model.Slice{From: &from, To: &to}}, resolve)
	assert.Equal(t, []tree.NodeID{2, 3}, nodes(got))
}

func TestApply_SliceMissingAnchorIsOpen(t *testing.T) {
	got := Apply(cands(0, 1), &model.Location{Slice: &model.Slice{From: &anchorAt}}, missingAnchor)
	assert.Equal(t, []tree.NodeID{0, 1}, nodes(got))

	got = Apply(cands(0, 1, 2), &model.Location{Slice: &model.Slice{From: &anchorAt, To: &anchorAt, IncludeTo: true}}, missingAnchor)
	assert.Equal(t, []tree.NodeID{0, 1, 2}, nodes(got))

	got = Apply(cands(0, 1, 2), &model.Location{Slice: &model.Slice{To: &anchorAt}}, nil)
	assert.Equal(t, []tree.NodeID{0, 1, 2}, nodes(got))
}

func TestApply_NearUsesStatementDistance(t *testing.T) {
	in := []Candidate{
		{Node: 1, Pos: tree.Pos{Stmt: 1, Sub: 9}},
		{Node: 2, Pos: tree.Pos{Stmt: 3, Sub: 0}},
		{Node: 3, Pos: tree.Pos{Stmt: 5, Sub: 4}},
		{Node: 4, Pos: tree.Pos{Stmt: 6}},
	}
	got := Apply(in, &model.Location{Near: &model.Near{Anchor: anchorAt, MaxDistance: 2}}, anchorAtStmt(3))
	assert.Equal(t, []tree.NodeID{1, 2, 3}, nodes(got))

	assert.Empty(t, Apply(in, &model.Location{Near: &model.Near{Anchor: anchorAt}}, missingAnchor))
}

func TestApply_AnchorOffsets(t *testing.T) {
	in := cands(0, 1, 2, 3, 4)
	tests := []struct {
		name      string
		offset    int
		inclusive bool
		want      []tree.NodeID
	}{
		{"zero exclusive is next", 0, false, []tree.NodeID{3}},
		{"zero inclusive is anchor", 0, true, []tree.NodeID{2}},
		{"forward one", 1, false, []tree.NodeID{4}},
		{"back one", -1, false, []tree.NodeID{1}},
		{"back one inclusive", -1, true, []tree.NodeID{2}},
		{"back two", -2, false, []tree.NodeID{0}},
		{"out of range", 5, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := &model.Location{Anchor: &model.Anchor{Anchor: anchorAt, Offset: tt.offset, Inclusive: tt.inclusive}}
			got := Apply(in, loc, anchorAtStmt(2))
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, nodes(got))
		})
	}
}

func TestApply_Line(t *testing.T) {
	in := cands(0, 1, 2, 3)
	assert.Equal(t, []tree.NodeID{2}, nodes(Apply(in, &model.Location{Line: &model.Line{Line: 12}}, nil)))
	assert.Equal(t, []tree.NodeID{1, 2, 3}, nodes(Apply(in, &model.Location{Line: &model.Line{Line: 11, EndLine: 20}}, nil)))
}

func TestApply_OccurrenceAndOrdinal(t *testing.T) {
	in := cands(0, 1, 2)
	assert.Equal(t, []tree.NodeID{0}, nodes(Apply(in, &model.Location{Occurrence: model.First}, nil)))
	assert.Equal(t, []tree.NodeID{2}, nodes(Apply(in, &model.Location{Occurrence: model.Last}, nil)))
	assert.Equal(t, []tree.NodeID{1}, nodes(Apply(in, &model.Location{Ordinal: model.Ordinal(1)}, nil)))
	assert.Empty(t, Apply(in, &model.Location{Ordinal: model.Ordinal(3)}, nil))
	assert.Empty(t, Apply(in, &model.Location{Ordinal: model.Ordinal(-1)}, nil))
}

func TestApply_FirstThenOrdinalZeroIsFirst(t *testing.T) {
	in := cands(4, 2, 7)
	first := Apply(in, &model.Location{Occurrence: model.First}, nil)
	both := Apply(in, &model.Location{Occurrence: model.First, Ordinal: model.Ordinal(0)}, nil)
	assert.Equal(t, first, both)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	in := cands(3, 1, 2)
	Apply(in, &model.Location{Occurrence: model.First}, nil)
	assert.Equal(t, []tree.NodeID{3, 1, 2}, nodes(in))
}
