package tree

// Pos orders nodes inside one body: the index of the enclosing statement in
// source order, then the preorder index of the node inside that statement.
type Pos struct {
	Stmt int
	Sub  int
}

// Less reports whether p sorts before q.
func (p Pos) Less(q Pos) bool {
	if p.Stmt != q.Stmt {
		return p.Stmt < q.Stmt
	}
	return p.Sub < q.Sub
}

// Compare returns -1, 0 or 1.
func (p Pos) Compare(q Pos) int {
	switch {
	case p.Less(q):
		return -1
	case q.Less(p):
		return 1
	}
	return 0
}

// IsStatement reports whether k occupies a statement slot. Handler counts as a
// statement so except clauses get their own position.
func IsStatement(k Kind) bool {
	switch k {
	case FuncDef, ClassDef, ExprStmt, Assign, AugAssign, Return, If, While, For,
		Try, Handler, Raise, Pass, Break, Continue:
		return true
	}
	return false
}

// Statements lists every statement under block in source order, descending
// into nested blocks but not into nested function or class bodies.
func (t *Tree) Statements(block NodeID) []NodeID {
	var out []NodeID
	t.statements(block, &out)
	return out
}

func (t *Tree) statements(block NodeID, out *[]NodeID) {
	if block == None {
		return
	}
	for _, s := range t.Children(block) {
		*out = append(*out, s)
		n := &t.nodes[s]
		switch n.Kind {
		case If:
			t.statements(t.Child(s, 1), out)
			t.statements(t.Child(s, 2), out)
		case While:
			t.statements(t.Child(s, 1), out)
		case For:
			t.statements(t.Child(s, 2), out)
		case Try:
			t.statements(t.Child(s, 0), out)
			for _, h := range n.Children[3:] {
				*out = append(*out, h)
				t.statements(t.Child(h, 0), out)
			}
			t.statements(t.Child(s, 1), out)
			t.statements(t.Child(s, 2), out)
		}
	}
}

// Inline returns the nodes that belong to stmt itself in preorder: the
// statement and its expressions, excluding nested blocks and clauses.
func (t *Tree) Inline(stmt NodeID) []NodeID {
	var out []NodeID
	var walk func(id NodeID)
	walk = func(id NodeID) {
		if id == None {
			return
		}
		out = append(out, id)
		for _, c := range t.nodes[id].Children {
			if c == None {
				continue
			}
			k := t.nodes[c].Kind
			if k == Block || IsStatement(k) {
				continue
			}
			walk(c)
		}
	}
	walk(stmt)
	return out
}

// Positions assigns a Pos to every statement and inline expression under
// block.
func (t *Tree) Positions(block NodeID) map[NodeID]Pos {
	out := make(map[NodeID]Pos)
	for i, s := range t.Statements(block) {
		for j, id := range t.Inline(s) {
			out[id] = Pos{Stmt: i, Sub: j}
		}
	}
	return out
}

// Terminates reports whether control can never fall off the end of block:
// its last statement returns or raises, is an if whose branches both
// terminate, or is a while True loop without a break.
func (t *Tree) Terminates(block NodeID) bool {
	ch := t.Children(block)
	if len(ch) == 0 {
		return false
	}
	last := ch[len(ch)-1]
	switch t.nodes[last].Kind {
	case Return, Raise:
		return true
	case If:
		els := t.Child(last, 2)
		return els != None && t.Terminates(t.Child(last, 1)) && t.Terminates(els)
	case While:
		cond := t.Child(last, 0)
		return t.nodes[cond].Kind == Const && t.nodes[cond].Value == true && !t.breaks(t.Child(last, 1))
	case Try:
		fin := t.Child(last, 2)
		if fin != None && t.Terminates(fin) {
			return true
		}
		if !t.Terminates(t.Child(last, 0)) && !t.Terminates(t.Child(last, 1)) {
			return false
		}
		for _, h := range t.Children(last)[3:] {
			if !t.Terminates(t.Child(h, 0)) {
				return false
			}
		}
		return true
	}
	return false
}

// breaks reports whether block holds a break that leaves the enclosing loop.
// Breaks inside nested loops belong to those loops.
func (t *Tree) breaks(block NodeID) bool {
	if block == None {
		return false
	}
	for _, s := range t.Children(block) {
		switch t.nodes[s].Kind {
		case Break:
			return true
		case If:
			if t.breaks(t.Child(s, 1)) || t.breaks(t.Child(s, 2)) {
				return true
			}
		case Try:
			for _, c := range t.Children(s) {
				if c == None {
					continue
				}
				blk := c
				if t.nodes[c].Kind == Handler {
					blk = t.Child(c, 0)
				}
				if blk != None && t.nodes[blk].Kind == Block && t.breaks(blk) {
					return true
				}
			}
		}
	}
	return false
}
