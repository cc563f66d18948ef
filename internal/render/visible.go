package render

// View is the open/closed state for one render pass. ExpandAll is the global
// toggle; Overrides holds per-group choices made since the last toggle.
type View struct {
	ExpandAll bool
	Overrides map[string]bool
}

// Toggled flips the global toggle and drops every per-group override, so all
// non-root groups end up in the same state.
func (v View) Toggled() View {
	return View{ExpandAll: !v.ExpandAll}
}

// WithToggle flips a single group.
func (v View) WithToggle(n *Node) View {
	if n == nil || n.Leaf {
		return v
	}
	next := View{ExpandAll: v.ExpandAll, Overrides: make(map[string]bool, len(v.Overrides)+1)}
	for k, open := range v.Overrides {
		next.Overrides[k] = open
	}
	next.Overrides[n.Key] = !v.Open(n)
	return next
}

// Open reports whether n shows its children. Root call groups are open
// unless the user closed that one group explicitly.
func (v View) Open(n *Node) bool {
	if n.Leaf {
		return true
	}
	if open, ok := v.Overrides[n.Key]; ok {
		return open
	}
	if n.Root {
		return true
	}
	return v.ExpandAll
}

type Row struct {
	Node  *Node
	Level int
	Open  bool
}

// Rows flattens the document into the lines currently visible.
func (v View) Rows(doc Document) []Row {
	var rows []Row
	var walk func(n *Node, level int)
	walk = func(n *Node, level int) {
		open := v.Open(n)
		rows = append(rows, Row{Node: n, Level: level, Open: open})
		if n.Leaf || !open {
			return
		}
		for _, child := range n.Children {
			walk(child, level+1)
		}
	}
	for _, root := range doc.Roots {
		walk(root, 0)
	}
	return rows
}

// Groups lists every collapsible node in document order.
func Groups(doc Document) []*Node {
	var out []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.Leaf {
			return
		}
		out = append(out, n)
		for _, child := range n.Children {
			walk(child)
		}
	}
	for _, root := range doc.Roots {
		walk(root)
	}
	return out
}
