package selector

import "github.com/jward/mixweave/internal/tree"

// State is the outcome of a static resolution attempt.
type State uint8

const (
	// NotApplicable means there was nothing to resolve.
	NotApplicable State = iota
	// Resolved means the value is fully known.
	Resolved
	// Unresolved means part of the value depends on run time.
	Unresolved
)

func (s State) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case Unresolved:
		return "unresolved"
	}
	return "not-applicable"
}

// Resolution carries a value together with how much of it is known. An
// Unresolved resolution may still carry the statically known part.
type Resolution[T any] struct {
	State State
	Value T
}

// ResolveTarget resolves the dotted path of the called expression.
func ResolveTarget(t *tree.Tree, call tree.NodeID) Resolution[[]string] {
	fn := t.Child(call, 0)
	if fn == tree.None {
		return Resolution[[]string]{State: NotApplicable}
	}
	parts, ok := t.Dotted(fn)
	if !ok {
		return Resolution[[]string]{State: Unresolved}
	}
	return Resolution[[]string]{State: Resolved, Value: parts}
}

// SplitArgs separates a call's positional arguments from its keyword-ish
// arguments (Keyword and DoubleStarred nodes).
func SplitArgs(t *tree.Tree, call tree.NodeID) (positional, keywords []tree.NodeID) {
	for _, a := range t.Children(call)[1:] {
		switch t.Kind(a) {
		case tree.Keyword, tree.DoubleStarred:
			keywords = append(keywords, a)
		default:
			positional = append(positional, a)
		}
	}
	return positional, keywords
}

// ResolveKeywords maps keyword names to value expressions. Spreads of dict
// literals with constant string keys are folded in; any other spread makes
// the result Unresolved while keeping the known keys.
func ResolveKeywords(t *tree.Tree, kws []tree.NodeID) Resolution[map[string]tree.NodeID] {
	known := make(map[string]tree.NodeID)
	state := Resolved
	if len(kws) == 0 {
		state = NotApplicable
	}
	for _, k := range kws {
		n := t.Node(k)
		if n.Kind == tree.Keyword {
			known[n.Name] = t.Child(k, 0)
			continue
		}
		extra, ok := resolveSpread(t, t.Child(k, 0))
		if !ok {
			state = Unresolved
			continue
		}
		for key, v := range extra {
			known[key] = v
		}
	}
	return Resolution[map[string]tree.NodeID]{State: state, Value: known}
}

func resolveSpread(t *tree.Tree, value tree.NodeID) (map[string]tree.NodeID, bool) {
	if t.Kind(value) != tree.DictLit {
		return nil, false
	}
	kids := t.Children(value)
	out := make(map[string]tree.NodeID, len(kids)/2)
	for i := 0; i+1 < len(kids); i += 2 {
		kn := t.Node(kids[i])
		key, ok := kn.Value.(string)
		if kn.Kind != tree.Const || !ok {
			return nil, false
		}
		out[key] = kids[i+1]
	}
	return out, true
}
