// Package dom models the small element tree the runtime manipulates:
// tags, attributes, classes, child lists and layout rects. Nodes are
// confined to their owning session and are not safe for concurrent use.
package dom

// Rect is a layout box. Width and height may be negative while a
// measurement is in flight; the edge accessors normalize that.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func (r Rect) Top() float64 {
	if r.Height < 0 {
		return r.Y + r.Height
	}
	return r.Y
}

func (r Rect) Bottom() float64 {
	if r.Height < 0 {
		return r.Y
	}
	return r.Y + r.Height
}

func (r Rect) Left() float64 {
	if r.Width < 0 {
		return r.X + r.Width
	}
	return r.X
}

func (r Rect) Right() float64 {
	if r.Width < 0 {
		return r.X
	}
	return r.X + r.Width
}

// IsEmpty reports whether the rect encloses no area.
func (r Rect) IsEmpty() bool {
	return r.Width == 0 || r.Height == 0
}

// Node is one element in the tree.
type Node struct {
	tag     string
	attrs   map[string]string
	classes []string
	parent  *Node
	kids    []*Node
	rect    Rect
}

func NewNode(tag string) *Node {
	return &Node{
		tag:   tag,
		attrs: make(map[string]string),
	}
}

func (n *Node) Tag() string { return n.tag }

func (n *Node) SetAttribute(name, value string) {
	n.attrs[name] = value
}

func (n *Node) Attribute(name string) (string, bool) {
	v, ok := n.attrs[name]
	return v, ok
}

func (n *Node) HasAttribute(name string) bool {
	_, ok := n.attrs[name]
	return ok
}

func (n *Node) RemoveAttribute(name string) {
	delete(n.attrs, name)
}

// Attributes returns a copy of the attribute map.
func (n *Node) Attributes() map[string]string {
	out := make(map[string]string, len(n.attrs))
	for k, v := range n.attrs {
		out[k] = v
	}
	return out
}

// AddClass appends classes not already present, keeping insertion order.
func (n *Node) AddClass(names ...string) {
	for _, name := range names {
		if name == "" || n.HasClass(name) {
			continue
		}
		n.classes = append(n.classes, name)
	}
}

func (n *Node) RemoveClass(name string) {
	for i, c := range n.classes {
		if c == name {
			n.classes = append(n.classes[:i], n.classes[i+1:]...)
			return
		}
	}
}

func (n *Node) HasClass(name string) bool {
	for _, c := range n.classes {
		if c == name {
			return true
		}
	}
	return false
}

// Classes returns a copy of the class list in insertion order.
func (n *Node) Classes() []string {
	out := make([]string, len(n.classes))
	copy(out, n.classes)
	return out
}

// AppendChild attaches child to n, detaching it from any prior parent.
func (n *Node) AppendChild(child *Node) {
	if child == nil || child == n {
		return
	}
	if child.parent != nil {
		child.parent.RemoveChild(child)
	}
	child.parent = n
	n.kids = append(n.kids, child)
}

func (n *Node) RemoveChild(child *Node) {
	for i, c := range n.kids {
		if c == child {
			n.kids = append(n.kids[:i], n.kids[i+1:]...)
			child.parent = nil
			return
		}
	}
}

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.kids))
	copy(out, n.kids)
	return out
}

func (n *Node) Parent() *Node { return n.parent }

// FirstChildByTag returns the first direct child with the given tag.
func (n *Node) FirstChildByTag(tag string) *Node {
	for _, c := range n.kids {
		if c.tag == tag {
			return c
		}
	}
	return nil
}

// FirstChildWithAttribute returns the first direct child carrying the
// named attribute.
func (n *Node) FirstChildWithAttribute(name string) *Node {
	for _, c := range n.kids {
		if c.HasAttribute(name) {
			return c
		}
	}
	return nil
}

// ClosestWithAttribute walks from n up through its ancestors and
// returns the first node carrying the named attribute, or nil.
func (n *Node) ClosestWithAttribute(name string) *Node {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.HasAttribute(name) {
			return cur
		}
	}
	return nil
}

func (n *Node) SetRect(r Rect) { n.rect = r }

func (n *Node) Rect() Rect { return n.rect }
