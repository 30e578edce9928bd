package dag

import (
	"github.com/danielpatrickdp/bayesgraph/internal/value"
)

// #region constant
// ConstantNode holds a value with no parents. Its state is always clean:
// nothing upstream can make it stale. The builder may still reassign it
// with SetValue, in which case the previous value is held until Keep so
// that Restore can put it back.
type ConstantNode[T any] struct {
	nodeBase
	traits value.Traits[T]
	value  T

	held   bool
	stored T
}

// NewConstant adds a constant to g. The node stores its own copy of v.
func NewConstant[T any](g *Graph, name string, traits value.Traits[T], v T) (*ConstantNode[T], error) {
	n := &ConstantNode[T]{traits: traits, value: traits.Duplicate(v)}
	if err := g.add(n, name, KindConstant, nil); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *ConstantNode[T]) State() State { return StateClean }

// Value returns the stored value. Callers must not mutate it.
func (n *ConstantNode[T]) Value() (T, error) { return n.value, nil }

// SetValue replaces the value without notifying children; call Touch to
// propagate.
func (n *ConstantNode[T]) SetValue(v T) error {
	if err := n.g.guard("set " + n.name); err != nil {
		return err
	}
	if !n.held {
		n.stored = n.value
		n.held = true
	}
	n.value = n.traits.Duplicate(v)
	return nil
}

func (n *ConstantNode[T]) Touch() error   { return touchNode(n) }
func (n *ConstantNode[T]) Keep() error    { return keepNode(n) }
func (n *ConstantNode[T]) Restore() error { return restoreNode(n) }

func (n *ConstantNode[T]) SerializeValue() (string, error) {
	return n.traits.Serialize(n.value)
}

// ResurrectValue parses text and assigns it like SetValue.
func (n *ConstantNode[T]) ResurrectValue(text string) error {
	v, err := n.traits.Resurrect(text)
	if err != nil {
		return err
	}
	return n.SetValue(v)
}

// #endregion constant

// #region hooks
func (n *ConstantNode[T]) dirty() bool { return false }

func (n *ConstantNode[T]) touchMe(bool) {
	n.g.propagate(n)
}

func (n *ConstantNode[T]) keepMe() {
	var zero T
	n.held = false
	n.stored = zero
}

func (n *ConstantNode[T]) restoreMe() {
	if n.held {
		n.value = n.stored
	}
	n.keepMe()
}

func (n *ConstantNode[T]) cloneInto(g *Graph) Node {
	c := &ConstantNode[T]{
		nodeBase: n.cloneBase(g),
		traits:   n.traits,
		value:    n.traits.Duplicate(n.value),
		held:     n.held,
	}
	if n.held {
		c.stored = n.traits.Duplicate(n.stored)
	}
	return c
}

func (n *ConstantNode[T]) rebindParameter(old, _ Node) error {
	return &ConstructionError{Node: n.name, Reason: "constant has no parameter " + old.Name()}
}

// #endregion hooks
