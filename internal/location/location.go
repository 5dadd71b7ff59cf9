// Package location narrows ordered candidate lists with slice, near, anchor,
// line, occurrence and ordinal constraints.
package location

import (
	"sort"

	"github.com/jward/mixweave/internal/model"
	"github.com/jward/mixweave/internal/tree"
)

// Candidate is one injectable node with its ordering key.
type Candidate struct {
	Node tree.NodeID
	Pos  tree.Pos
	Line int
}

// AnchorFunc resolves an anchor injection point to the position of its first
// surviving match. It reports false when the anchor matches nothing.
type AnchorFunc func(at model.At) (tree.Pos, bool)

// Sort orders candidates by position, keeping the input order for ties.
func Sort(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Pos.Less(cands[j].Pos) })
}

// Apply runs the filter pipeline over cands. The input is copied and sorted
// first; loc == nil returns the sorted copy. Apply never fails: unresolvable
// near and anchor anchors and out-of-range ordinals produce an empty result.
func Apply(cands []Candidate, loc *model.Location, anchor AnchorFunc) []Candidate {
	out := append([]Candidate(nil), cands...)
	Sort(out)
	if loc == nil || len(out) == 0 {
		return out
	}
	if loc.Slice != nil {
		out = slice(out, loc.Slice, anchor)
	}
	if loc.Near != nil {
		out = near(out, loc.Near, anchor)
	}
	if loc.Anchor != nil {
		out = relative(out, loc.Anchor, anchor)
	}
	if loc.Line != nil {
		out = lines(out, loc.Line)
	}
	switch loc.Occurrence {
	case model.First:
		if len(out) > 1 {
			out = out[:1]
		}
	case model.Last:
		if len(out) > 1 {
			out = out[len(out)-1:]
		}
	}
	if loc.Ordinal != nil {
		i := *loc.Ordinal
		if i < 0 || i >= len(out) {
			return nil
		}
		out = out[i : i+1]
	}
	return out
}

// slice keeps candidates between its bounds. A bound whose anchor matches
// nothing is open, like an absent one.
func slice(in []Candidate, s *model.Slice, anchor AnchorFunc) []Candidate {
	var from, to tree.Pos
	hasFrom, hasTo := false, false
	if s.From != nil {
		from, hasFrom = resolve(anchor, *s.From)
	}
	if s.To != nil {
		to, hasTo = resolve(anchor, *s.To)
	}
	return keep(in, func(c Candidate) bool {
		if hasFrom {
			cmp := c.Pos.Compare(from)
			if cmp < 0 || (cmp == 0 && !s.IncludeFrom) {
				return false
			}
		}
		if hasTo {
			cmp := c.Pos.Compare(to)
			if cmp > 0 || (cmp == 0 && !s.IncludeTo) {
				return false
			}
		}
		return true
	})
}

func near(in []Candidate, n *model.Near, anchor AnchorFunc) []Candidate {
	a, ok := resolve(anchor, n.Anchor)
	if !ok {
		return nil
	}
	return keep(in, func(c Candidate) bool {
		d := c.Pos.Stmt - a.Stmt
		if d < 0 {
			d = -d
		}
		return d <= n.MaxDistance
	})
}

func relative(in []Candidate, spec *model.Anchor, anchor AnchorFunc) []Candidate {
	a, ok := resolve(anchor, spec.Anchor)
	if !ok {
		return nil
	}
	var pool []Candidate
	pick := spec.Offset
	if spec.Offset >= 0 {
		pool = keep(in, func(c Candidate) bool {
			cmp := c.Pos.Compare(a)
			return cmp > 0 || (cmp == 0 && spec.Inclusive)
		})
	} else {
		before := keep(in, func(c Candidate) bool {
			cmp := c.Pos.Compare(a)
			return cmp < 0 || (cmp == 0 && spec.Inclusive)
		})
		for i := len(before) - 1; i >= 0; i-- {
			pool = append(pool, before[i])
		}
		pick = -spec.Offset - 1
	}
	if pick < 0 || pick >= len(pool) {
		return nil
	}
	return pool[pick : pick+1]
}

func lines(in []Candidate, l *model.Line) []Candidate {
	return keep(in, func(c Candidate) bool {
		if c.Line == 0 {
			return false
		}
		if l.EndLine == 0 {
			return c.Line == l.Line
		}
		return c.Line >= l.Line && c.Line <= l.EndLine
	})
}

func resolve(anchor AnchorFunc, at model.At) (tree.Pos, bool) {
	if anchor == nil {
		return tree.Pos{}, false
	}
	return anchor(at)
}

func keep(in []Candidate, fn func(Candidate) bool) []Candidate {
	var out []Candidate
	for _, c := range in {
		if fn(c) {
			out = append(out, c)
		}
	}
	return out
}
