package dag

import "fmt"

// #region param
// Param is a typed reference from a Function or Distribution to one of the
// nodes it reads. Collaborators hold Params rather than raw nodes so that
// SwapParameter can be implemented with Swap.
type Param[T any] struct {
	node TypedNode[T]
}

// NewParam wraps n.
func NewParam[T any](n TypedNode[T]) Param[T] { return Param[T]{node: n} }

// Node returns the referenced node.
func (p Param[T]) Node() Node {
	if p.node == nil {
		return nil
	}
	return p.node
}

// Value reads the referenced node, recomputing it if needed.
func (p Param[T]) Value() (T, error) {
	if p.node == nil {
		var zero T
		return zero, fmt.Errorf("unbound parameter: %w", ErrUnknownNode)
	}
	return p.node.Value()
}

// Swap replaces the reference if it points at old. A replacement with a
// different value type is a construction error.
func (p *Param[T]) Swap(old, new Node) error {
	if p.node == nil || Node(p.node) != old {
		return nil
	}
	tn, ok := new.(TypedNode[T])
	if !ok {
		var zero T
		return &ConstructionError{
			Node:   nodeName(new),
			Reason: fmt.Sprintf("cannot replace %s: value type is not %T", old.Name(), zero),
		}
	}
	p.node = tn
	return nil
}

// #endregion param

// #region params
// Params is an ordered list of same-typed parameters.
type Params[T any] []Param[T]

// ParamsOf wraps each node.
func ParamsOf[T any](nodes ...TypedNode[T]) Params[T] {
	out := make(Params[T], len(nodes))
	for i, n := range nodes {
		out[i] = NewParam(n)
	}
	return out
}

// Nodes returns the referenced nodes in order.
func (ps Params[T]) Nodes() []Node {
	out := make([]Node, len(ps))
	for i, p := range ps {
		out[i] = p.Node()
	}
	return out
}

// Values reads every parameter in order.
func (ps Params[T]) Values() ([]T, error) {
	out := make([]T, len(ps))
	for i, p := range ps {
		v, err := p.Value()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Swap applies Param.Swap to every element.
func (ps Params[T]) Swap(old, new Node) error {
	for i := range ps {
		if err := ps[i].Swap(old, new); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a copy of the list that can be swapped independently.
func (ps Params[T]) Clone() Params[T] {
	return append(Params[T](nil), ps...)
}

// #endregion params
