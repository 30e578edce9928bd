package dag

import (
	"fmt"
	"iter"
	"maps"
	"slices"
)

// #region graph
// Graph owns every node of one model. Nodes refer to each other only by
// NodeID; the arena decides node lifetime.
type Graph struct {
	nodes []Node
	names map[string]NodeID

	// updating counts collaborator calls in flight. Mutations are refused
	// while it is non-zero.
	updating int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{names: make(map[string]NodeID)}
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node with the given ID.
func (g *Graph) Node(id NodeID) (Node, error) {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil, fmt.Errorf("node %d: %w", id, ErrUnknownNode)
	}
	return g.nodes[id], nil
}

// Lookup finds a node by name.
func (g *Graph) Lookup(name string) (Node, error) {
	id, ok := g.names[name]
	if !ok {
		return nil, fmt.Errorf("node %q: %w", name, ErrUnknownNode)
	}
	return g.nodes[id], nil
}

// Lookup finds a node by name and checks its value type.
func Lookup[T any](g *Graph, name string) (TypedNode[T], error) {
	n, err := g.Lookup(name)
	if err != nil {
		return nil, err
	}
	tn, ok := n.(TypedNode[T])
	if !ok {
		return nil, fmt.Errorf("node %q (%T) has another value type: %w", name, n, ErrUnknownNode)
	}
	return tn, nil
}

// All yields every node in ID order.
func (g *Graph) All() iter.Seq2[NodeID, Node] {
	return func(yield func(NodeID, Node) bool) {
		for i, n := range g.nodes {
			if !yield(NodeID(i), n) {
				return
			}
		}
	}
}

// Edges lists every dependency in parent-major order.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, n := range g.nodes {
		for _, c := range n.base().children {
			out = append(out, Edge{Parent: n.ID(), Child: c})
		}
	}
	return out
}

// #endregion graph

// #region construction
func (g *Graph) guard(op string) error {
	if g.updating > 0 {
		return fmt.Errorf("%s: %w", op, ErrReentrant)
	}
	return nil
}

// evaluating runs f with mutations locked out.
func (g *Graph) evaluating(f func() error) error {
	g.updating++
	defer func() { g.updating-- }()
	return f()
}

// add registers n with the given parameters as its parents.
func (g *Graph) add(n Node, name string, kind Kind, params []Node) error {
	if err := g.guard("add node"); err != nil {
		return err
	}
	id := NodeID(len(g.nodes))
	if name == "" {
		name = fmt.Sprintf("%s#%d", kind, id)
	}
	if _, dup := g.names[name]; dup {
		return &ConstructionError{Node: name, Reason: "duplicate name"}
	}

	var parents []NodeID
	for i, p := range params {
		if p == nil {
			return &ConstructionError{Node: name, Reason: fmt.Sprintf("parameter %d is nil", i)}
		}
		if p.Graph() != g {
			return &ConstructionError{Node: name, Reason: fmt.Sprintf("parameter %s belongs to another graph", p.Name())}
		}
		if !slices.Contains(parents, p.ID()) {
			parents = append(parents, p.ID())
		}
	}

	b := n.base()
	b.g = g
	b.id = id
	b.name = name
	b.kind = kind
	b.parents = parents
	g.nodes = append(g.nodes, n)
	g.names[name] = id
	for _, p := range parents {
		pb := g.nodes[p].base()
		pb.children = append(pb.children, id)
	}
	return nil
}

// #endregion construction

// #region propagation
// propagate touches every child of n that is not already touched and stale.
// A touched, stale node has every descendant touched and stale, so the
// recursion stops at the old frontier.
func (g *Graph) propagate(n Node) {
	for _, c := range n.base().children {
		child := g.nodes[c]
		if child.base().touched && child.dirty() {
			continue
		}
		child.touchMe(true)
	}
}

func (g *Graph) keep(n Node) {
	n.keepMe()
	for _, c := range n.base().children {
		if child := g.nodes[c]; child.base().touched {
			g.keep(child)
		}
	}
}

func (g *Graph) restore(n Node) {
	n.restoreMe()
	for _, c := range n.base().children {
		if child := g.nodes[c]; child.base().touched {
			g.restore(child)
		}
	}
}

// Touched lists the nodes currently holding a snapshot.
func (g *Graph) Touched() []NodeID {
	var out []NodeID
	for i, n := range g.nodes {
		if n.base().touched {
			out = append(out, NodeID(i))
		}
	}
	return out
}

// KeepAll commits every touched node. Builders call it once the initial
// values and observations are in place.
func (g *Graph) KeepAll() error {
	if err := g.guard("keep all"); err != nil {
		return err
	}
	for _, n := range g.nodes {
		n.keepMe()
	}
	return nil
}

// #endregion propagation

// #region traversal
// Descendants returns every node reachable from id through child edges,
// in ID order, excluding id itself.
func (g *Graph) Descendants(id NodeID) ([]NodeID, error) {
	if _, err := g.Node(id); err != nil {
		return nil, err
	}
	seen := map[NodeID]bool{}
	stack := slices.Clone(g.nodes[id].base().children)
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[c] {
			continue
		}
		seen[c] = true
		stack = append(stack, g.nodes[c].base().children...)
	}
	out := slices.Collect(maps.Keys(seen))
	slices.Sort(out)
	return out, nil
}

// AffectedStochastic returns the stochastic nodes whose log probability can
// change when the targets change: stochastic targets themselves and the
// first stochastic node on every downstream path. Deterministic nodes are
// walked through.
func (g *Graph) AffectedStochastic(targets ...Node) []Scorer {
	seen := map[NodeID]bool{}
	var found []NodeID
	var walk func(id NodeID)
	walk = func(id NodeID) {
		for _, c := range g.nodes[id].base().children {
			if seen[c] {
				continue
			}
			seen[c] = true
			if g.nodes[c].Kind() == KindStochastic {
				found = append(found, c)
				continue
			}
			walk(c)
		}
	}
	for _, t := range targets {
		if t == nil || t.Graph() != g {
			continue
		}
		if t.Kind() == KindStochastic && !seen[t.ID()] {
			seen[t.ID()] = true
			found = append(found, t.ID())
		}
		walk(t.ID())
	}
	slices.Sort(found)
	out := make([]Scorer, 0, len(found))
	for _, id := range found {
		if s, ok := g.nodes[id].(Scorer); ok {
			out = append(out, s)
		}
	}
	return out
}

// Scorers returns every stochastic node in ID order.
func (g *Graph) Scorers() []Scorer {
	var out []Scorer
	for _, n := range g.nodes {
		if s, ok := n.(Scorer); ok {
			out = append(out, s)
		}
	}
	return out
}

// reaches reports whether to is from or one of its descendants.
func (g *Graph) reaches(from, to NodeID) bool {
	if from == to {
		return true
	}
	seen := map[NodeID]bool{}
	stack := []NodeID{from}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, k := range g.nodes[c].base().children {
			if k == to {
				return true
			}
			if !seen[k] {
				seen[k] = true
				stack = append(stack, k)
			}
		}
	}
	return false
}

// #endregion traversal

// #region edit
// SwapParent replaces parent old of child with new. The edge lists of all
// three nodes and child's Function or Distribution are updated together, and
// child is touched so the change reaches its descendants. The swap is
// refused if it would close a cycle.
func (g *Graph) SwapParent(child, old, new Node) error {
	if err := g.guard("swap parent"); err != nil {
		return err
	}
	for _, n := range []Node{child, old, new} {
		if n == nil || n.Graph() != g {
			return &ConstructionError{Node: nodeName(child), Reason: "swap involves a node from another graph"}
		}
	}
	cb := child.base()
	if !slices.Contains(cb.parents, old.ID()) {
		return &ConstructionError{Node: cb.name, Reason: fmt.Sprintf("%s is not a parent", old.Name())}
	}
	if old.ID() == new.ID() {
		return nil
	}
	if g.reaches(child.ID(), new.ID()) {
		return &ConstructionError{Node: cb.name, Reason: fmt.Sprintf("parent %s would create a cycle", new.Name())}
	}
	if err := child.rebindParameter(old, new); err != nil {
		return err
	}

	i := slices.Index(cb.parents, old.ID())
	if slices.Contains(cb.parents, new.ID()) {
		cb.parents = slices.Delete(cb.parents, i, i+1)
	} else {
		cb.parents[i] = new.ID()
	}
	ob := old.base()
	if j := slices.Index(ob.children, child.ID()); j >= 0 {
		ob.children = slices.Delete(ob.children, j, j+1)
	}
	nb := new.base()
	if !slices.Contains(nb.children, child.ID()) {
		nb.children = append(nb.children, child.ID())
	}

	child.touchMe(true)
	return nil
}

func nodeName(n Node) string {
	if n == nil {
		return "<nil>"
	}
	return n.Name()
}

// #endregion edit

// #region clone
// Clone returns a graph with the same topology and IDs whose values are
// independent copies and whose collaborators point at the clone's nodes.
func (g *Graph) Clone() (*Graph, error) {
	if err := g.guard("clone"); err != nil {
		return nil, err
	}
	c := &Graph{
		nodes: make([]Node, len(g.nodes)),
		names: maps.Clone(g.names),
	}
	for i, n := range g.nodes {
		c.nodes[i] = n.cloneInto(c)
	}
	for i, n := range c.nodes {
		for _, p := range n.base().parents {
			if err := n.rebindParameter(g.nodes[p], c.nodes[p]); err != nil {
				return nil, fmt.Errorf("clone node %d: %w", i, err)
			}
		}
	}
	return c, nil
}

// #endregion clone
