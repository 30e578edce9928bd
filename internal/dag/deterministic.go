package dag

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/bayesgraph/internal/value"
)

// #region deterministic
// DeterministicNode caches the result of a Function of its parents.
type DeterministicNode[T any] struct {
	nodeBase
	fn     Function[T]
	traits value.Traits[T]
	value  T

	// stale is set when value no longer matches the parents.
	stale bool

	// stored is the snapshot taken on first touch; snapshotValid is false
	// when the node was already stale at that point.
	stored        T
	snapshotValid bool

	updates int
}

// NewDeterministic adds a node computing fn to g. The value is computed on
// first read.
func NewDeterministic[T any](g *Graph, name string, traits value.Traits[T], fn Function[T]) (*DeterministicNode[T], error) {
	if fn == nil {
		return nil, &ConstructionError{Node: name, Reason: "nil function"}
	}
	n := &DeterministicNode[T]{fn: fn, traits: traits, stale: true}
	if err := g.add(n, name, KindDeterministic, fn.Parameters()); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *DeterministicNode[T]) State() State {
	switch {
	case n.stale:
		return StateTouched
	case n.touched:
		return StateRecomputed
	}
	return StateClean
}

// Value returns the cached value, recomputing it first if stale. Only this
// node is cleared; stale children stay stale until read.
func (n *DeterministicNode[T]) Value() (T, error) {
	if n.stale {
		if err := n.update(); err != nil {
			var zero T
			return zero, err
		}
	}
	return n.value, nil
}

// Updates returns how many times the function has been evaluated into the
// cache.
func (n *DeterministicNode[T]) Updates() int { return n.updates }

// Function returns the node's function.
func (n *DeterministicNode[T]) Function() Function[T] { return n.fn }

func (n *DeterministicNode[T]) update() error {
	var v T
	err := n.g.evaluating(func() error {
		var err error
		v, err = n.fn.Evaluate()
		return err
	})
	if err != nil {
		return &EvaluationError{Node: n.name, Err: err}
	}
	n.value = v
	n.stale = false
	n.updates++
	return nil
}

func (n *DeterministicNode[T]) Touch() error   { return touchNode(n) }
func (n *DeterministicNode[T]) Keep() error    { return keepNode(n) }
func (n *DeterministicNode[T]) Restore() error { return restoreNode(n) }

// SerializeValue writes the current value, recomputing it if needed.
func (n *DeterministicNode[T]) SerializeValue() (string, error) {
	v, err := n.Value()
	if err != nil {
		return "", err
	}
	return n.traits.Serialize(v)
}

// Verify evaluates the function afresh and compares it with the cache
// through the text form. Values with no text form are not compared.
func (n *DeterministicNode[T]) Verify() error {
	cached, err := n.Value()
	if err != nil {
		return err
	}
	var fresh T
	err = n.g.evaluating(func() error {
		var err error
		fresh, err = n.fn.Evaluate()
		return err
	})
	if err != nil {
		return &EvaluationError{Node: n.name, Err: err}
	}
	a, err := n.traits.Serialize(cached)
	if errors.Is(err, value.ErrNotSerializable) {
		return nil
	}
	if err != nil {
		return err
	}
	b, err := n.traits.Serialize(fresh)
	if err != nil {
		return err
	}
	if a != b {
		return fmt.Errorf("%s: cached %s, fresh %s: %w", n.name, a, b, ErrInconsistent)
	}
	return nil
}

// #endregion deterministic

// #region hooks
func (n *DeterministicNode[T]) dirty() bool { return n.stale }

func (n *DeterministicNode[T]) touchMe(bool) {
	if !n.touched {
		n.touched = true
		n.snapshotValid = !n.stale
		if n.snapshotValid {
			n.stored = n.traits.Duplicate(n.value)
		}
	}
	n.stale = true
	n.g.propagate(n)
}

func (n *DeterministicNode[T]) keepMe() {
	var zero T
	n.touched = false
	n.stored = zero
	n.snapshotValid = false
}

func (n *DeterministicNode[T]) restoreMe() {
	if n.touched {
		if n.snapshotValid {
			n.value = n.stored
			n.stale = false
		} else {
			n.stale = true
		}
	}
	n.keepMe()
}

func (n *DeterministicNode[T]) cloneInto(g *Graph) Node {
	c := &DeterministicNode[T]{
		nodeBase:      n.cloneBase(g),
		fn:            n.fn.Clone(),
		traits:        n.traits,
		value:         n.traits.Duplicate(n.value),
		stale:         n.stale,
		snapshotValid: n.snapshotValid,
	}
	if n.snapshotValid {
		c.stored = n.traits.Duplicate(n.stored)
	}
	return c
}

func (n *DeterministicNode[T]) rebindParameter(old, new Node) error {
	return n.fn.SwapParameter(old, new)
}

// #endregion hooks
