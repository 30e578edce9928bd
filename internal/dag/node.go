package dag

import "slices"

// #region base
// nodeBase carries identity and edges. Every node kind embeds it.
type nodeBase struct {
	g        *Graph
	id       NodeID
	name     string
	kind     Kind
	parents  []NodeID
	children []NodeID

	// touched is set while the node holds a pre-touch snapshot.
	touched bool
}

func (b *nodeBase) base() *nodeBase { return b }

func (b *nodeBase) ID() NodeID    { return b.id }
func (b *nodeBase) Name() string  { return b.name }
func (b *nodeBase) Kind() Kind    { return b.kind }
func (b *nodeBase) Graph() *Graph { return b.g }

// Parents returns the IDs of the nodes this node reads, in declaration order.
func (b *nodeBase) Parents() []NodeID { return slices.Clone(b.parents) }

// Children returns the IDs of the nodes that read this node.
func (b *nodeBase) Children() []NodeID { return slices.Clone(b.children) }

func (b *nodeBase) cloneBase(g *Graph) nodeBase {
	return nodeBase{
		g:        g,
		id:       b.id,
		name:     b.name,
		kind:     b.kind,
		parents:  slices.Clone(b.parents),
		children: slices.Clone(b.children),
		touched:  b.touched,
	}
}

// #endregion base

// #region protocol
// The public Touch/Keep/Restore entry points are identical for every kind
// apart from which internal hooks run, so they are written once here
// against the Node interface.

func touchNode(n Node) error {
	if err := n.Graph().guard("touch " + n.Name()); err != nil {
		return err
	}
	n.touchMe(false)
	return nil
}

func keepNode(n Node) error {
	g := n.Graph()
	if err := g.guard("keep " + n.Name()); err != nil {
		return err
	}
	g.keep(n)
	return nil
}

func restoreNode(n Node) error {
	g := n.Graph()
	if err := g.guard("restore " + n.Name()); err != nil {
		return err
	}
	g.restore(n)
	return nil
}

// #endregion protocol
