// Package tree is the arena representation of a program that the weaver reads
// and rewrites. Nodes live in one slice and are addressed by stable integer
// ids. Rewriting a site replaces a child reference inside its parent; nodes are
// never moved, so ids stay valid across every rewrite.
package tree

import "strings"

// NodeID addresses a node inside a Tree.
type NodeID int32

// None is the absent node.
const None NodeID = -1

// Kind is the syntactic category of a node.
type Kind uint8

// Child layout per kind:
//
//	Module    [body Block]
//	Block     statements...
//	FuncDef   Name; [params Block of Param, body Block]
//	ClassDef  Name; [body Block, base...]
//	Param     Name; [default] (optional)
//	ExprStmt  [expr]
//	Assign    [target, value]
//	AugAssign Name=operator; [target, value]
//	Return    [value] (optional)
//	If        [cond, then Block, else Block]
//	While     [cond, body Block]
//	For       [target, iter, body Block]
//	Try       [body Block, else Block, finally Block, Handler...]
//	Handler   Name=bound name; [body Block, type] (type optional)
//	Raise     [expr] (optional, bare raise re-raises)
//	Name      Name
//	Attr      Name=attribute; [object]
//	Const     Value
//	Call      [func, arg...]; args are expressions, Keyword, Starred or DoubleStarred
//	Keyword   Name=key; [value]
//	BinOp, BoolOp, Compare  Name=operator; [left, right]
//	UnaryOp   Name=operator; [operand]
//	CondExpr  [cond, then, else]
//	ListLit   elements...
//	DictLit   key, value, key, value...
//	Subscript [value, index]
//	Yield     [value] (optional)
//	Hook      Name=injection kind; Site=site id; Value=aux name; operands...
const (
	Module Kind = iota
	Block
	FuncDef
	ClassDef
	Param
	ExprStmt
	Assign
	AugAssign
	Return
	If
	While
	For
	Try
	Handler
	Raise
	Pass
	Break
	Continue
	Name
	Attr
	Const
	Call
	Keyword
	Starred
	DoubleStarred
	BinOp
	BoolOp
	UnaryOp
	Compare
	CondExpr
	ListLit
	DictLit
	Subscript
	Yield
	Hook
)

var kindNames = [...]string{
	Module:        "Module",
	Block:         "Block",
	FuncDef:       "FuncDef",
	ClassDef:      "ClassDef",
	Param:         "Param",
	ExprStmt:      "ExprStmt",
	Assign:        "Assign",
	AugAssign:     "AugAssign",
	Return:        "Return",
	If:            "If",
	While:         "While",
	For:           "For",
	Try:           "Try",
	Handler:       "Handler",
	Raise:         "Raise",
	Pass:          "Pass",
	Break:         "Break",
	Continue:      "Continue",
	Name:          "Name",
	Attr:          "Attr",
	Const:         "Const",
	Call:          "Call",
	Keyword:       "Keyword",
	Starred:       "Starred",
	DoubleStarred: "DoubleStarred",
	BinOp:         "BinOp",
	BoolOp:        "BoolOp",
	UnaryOp:       "UnaryOp",
	Compare:       "Compare",
	CondExpr:      "CondExpr",
	ListLit:       "ListLit",
	DictLit:       "DictLit",
	Subscript:     "Subscript",
	Yield:         "Yield",
	Hook:          "Hook",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Flag carries per-node boolean properties.
type Flag uint8

const (
	// FlagGenerator marks a FuncDef whose own body contains a yield.
	FlagGenerator Flag = 1 << iota
	// FlagVarArgs marks a *args Param.
	FlagVarArgs
	// FlagKwArgs marks a **kwargs Param.
	FlagKwArgs
	// FlagSynthetic marks nodes created by weaving.
	FlagSynthetic
)

// Node is one arena entry. See the Kind constants for child layouts.
type Node struct {
	Kind     Kind
	Name     string
	Value    any
	Children []NodeID
	Line     int
	Flags    Flag
	Site     string
}

// Has reports whether f is set on the node.
func (n *Node) Has(f Flag) bool { return n.Flags&f != 0 }

// Tree is an arena of nodes with a designated root.
type Tree struct {
	nodes []Node
	Root  NodeID
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{Root: None}
}

// Add appends n and returns its id. Pointers obtained from Node before an Add
// may be invalidated by it.
func (t *Tree) Add(n Node) NodeID {
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

// Len is the number of nodes in the arena, reachable or not.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns the node for id. The pointer is valid until the next Add.
func (t *Tree) Node(id NodeID) *Node {
	return &t.nodes[id]
}

// Kind returns the kind of id.
func (t *Tree) Kind(id NodeID) Kind { return t.nodes[id].Kind }

// Child returns the i-th child of id, or None.
func (t *Tree) Child(id NodeID, i int) NodeID {
	ch := t.nodes[id].Children
	if i < 0 || i >= len(ch) {
		return None
	}
	return ch[i]
}

// Children returns the children of id. The slice aliases the arena.
func (t *Tree) Children(id NodeID) []NodeID {
	return t.nodes[id].Children
}

// SetChild replaces the i-th child of id.
func (t *Tree) SetChild(id NodeID, i int, c NodeID) {
	t.nodes[id].Children[i] = c
}

// InsertChild inserts c before position i in id's children.
func (t *Tree) InsertChild(id NodeID, i int, c NodeID) {
	ch := t.nodes[id].Children
	ch = append(ch, None)
	copy(ch[i+1:], ch[i:])
	ch[i] = c
	t.nodes[id].Children = ch
}

// AppendChild appends c to id's children.
func (t *Tree) AppendChild(id NodeID, c NodeID) {
	t.nodes[id].Children = append(t.nodes[id].Children, c)
}

// Replace swaps the child reference old for repl in parent. It reports whether
// old was found.
func (t *Tree) Replace(parent, old, repl NodeID) bool {
	for i, c := range t.nodes[parent].Children {
		if c == old {
			t.nodes[parent].Children[i] = repl
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Node ids are preserved.
func (t *Tree) Clone() *Tree {
	out := &Tree{nodes: make([]Node, len(t.nodes)), Root: t.Root}
	for i, n := range t.nodes {
		n.Children = append([]NodeID(nil), n.Children...)
		out.nodes[i] = n
	}
	return out
}

// CopySubtree duplicates the subtree rooted at id and returns the new root.
func (t *Tree) CopySubtree(id NodeID) NodeID {
	if id == None {
		return None
	}
	n := t.nodes[id]
	kids := make([]NodeID, len(n.Children))
	for i, c := range n.Children {
		kids[i] = t.CopySubtree(c)
	}
	n.Children = kids
	return t.Add(n)
}

// Walk visits id and its descendants in preorder. Returning false from fn
// skips the node's children.
func (t *Tree) Walk(id NodeID, fn func(NodeID) bool) {
	if id == None {
		return
	}
	if !fn(id) {
		return
	}
	for _, c := range t.nodes[id].Children {
		t.Walk(c, fn)
	}
}

// Parents maps every node reachable from root to its parent.
func (t *Tree) Parents(root NodeID) map[NodeID]NodeID {
	out := make(map[NodeID]NodeID)
	t.Walk(root, func(id NodeID) bool {
		for _, c := range t.nodes[id].Children {
			if c != None {
				out[c] = id
			}
		}
		return true
	})
	return out
}

// Dotted returns the segments of a Name/Attr chain such as a.b.c. It reports
// false for any other expression shape.
func (t *Tree) Dotted(id NodeID) ([]string, bool) {
	var parts []string
	cur := id
	for cur != None {
		n := &t.nodes[cur]
		switch n.Kind {
		case Attr:
			parts = append(parts, n.Name)
			cur = t.Child(cur, 0)
		case Name:
			parts = append(parts, n.Name)
			for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
				parts[i], parts[j] = parts[j], parts[i]
			}
			return parts, true
		default:
			return nil, false
		}
	}
	return nil, false
}

// DottedString is Dotted joined with ".", or "" when unresolvable.
func (t *Tree) DottedString(id NodeID) string {
	parts, ok := t.Dotted(id)
	if !ok {
		return ""
	}
	return strings.Join(parts, ".")
}

// Body returns the statement block of a Module, FuncDef or ClassDef.
func (t *Tree) Body(id NodeID) NodeID {
	switch t.nodes[id].Kind {
	case Module, ClassDef:
		return t.Child(id, 0)
	case FuncDef:
		return t.Child(id, 1)
	}
	return None
}

// Params returns the Param nodes of a FuncDef.
func (t *Tree) Params(fn NodeID) []NodeID {
	if t.nodes[fn].Kind != FuncDef {
		return nil
	}
	return t.Children(t.Child(fn, 0))
}

// Member locates one weavable body inside a module.
type Member struct {
	Class string // empty for module-level functions
	Name  string
	Node  NodeID // FuncDef, or the Module itself for the whole-module member
}

// Members lists the module-level functions and the methods of module-level
// classes, in source order.
func (t *Tree) Members(module NodeID) []Member {
	var out []Member
	for _, s := range t.Children(t.Body(module)) {
		n := &t.nodes[s]
		switch n.Kind {
		case FuncDef:
			out = append(out, Member{Name: n.Name, Node: s})
		case ClassDef:
			for _, m := range t.Children(t.Body(s)) {
				if t.nodes[m].Kind == FuncDef {
					out = append(out, Member{Class: n.Name, Name: t.nodes[m].Name, Node: m})
				}
			}
		}
	}
	return out
}

// Classes lists the names of module-level classes in source order.
func (t *Tree) Classes(module NodeID) []string {
	var out []string
	for _, s := range t.Children(t.Body(module)) {
		if t.nodes[s].Kind == ClassDef {
			out = append(out, t.nodes[s].Name)
		}
	}
	return out
}

// ContainsYield reports whether body yields, without looking into nested
// function definitions.
func (t *Tree) ContainsYield(body NodeID) bool {
	found := false
	t.Walk(body, func(id NodeID) bool {
		switch t.nodes[id].Kind {
		case FuncDef, ClassDef:
			return id == body
		case Yield:
			found = true
		case Hook:
			if t.nodes[id].Name == "YIELD" {
				found = true
			}
		}
		return !found
	})
	return found
}
