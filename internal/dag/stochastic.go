package dag

import (
	"math/rand/v2"

	"github.com/danielpatrickdp/bayesgraph/internal/value"
)

// #region stochastic
// StochasticNode holds a random variable scored by a Distribution whose
// parameters are the node's parents.
type StochasticNode[T any] struct {
	nodeBase
	dist    Distribution[T]
	traits  value.Traits[T]
	value   T
	clamped bool

	lnProb    float64
	probStale bool

	// snapshot taken on the first change since the last keep or restore
	stored          T
	storedLnProb    float64
	storedProbStale bool

	densityEvals int
}

// NewStochastic adds a random variable with initial value init to g.
func NewStochastic[T any](g *Graph, name string, traits value.Traits[T], dist Distribution[T], init T) (*StochasticNode[T], error) {
	if dist == nil {
		return nil, &ConstructionError{Node: name, Reason: "nil distribution"}
	}
	n := &StochasticNode[T]{dist: dist, traits: traits, value: traits.Duplicate(init), probStale: true}
	if err := g.add(n, name, KindStochastic, dist.Parameters()); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *StochasticNode[T]) State() State {
	switch {
	case n.probStale:
		return StateTouched
	case n.touched:
		return StateRecomputed
	}
	return StateClean
}

// Value returns the current value. It is never recomputed.
func (n *StochasticNode[T]) Value() (T, error) { return n.value, nil }

// Distribution returns the node's distribution.
func (n *StochasticNode[T]) Distribution() Distribution[T] { return n.dist }

func (n *StochasticNode[T]) IsClamped() bool { return n.clamped }

// DensityEvaluations counts calls into the distribution's density.
func (n *StochasticNode[T]) DensityEvaluations() int { return n.densityEvals }

// SetValue replaces the value and holds the previous one for Restore.
// Children are not notified until Touch.
func (n *StochasticNode[T]) SetValue(v T) error {
	if err := n.g.guard("set " + n.name); err != nil {
		return err
	}
	n.hold()
	n.value = n.traits.Duplicate(v)
	n.probStale = true
	return nil
}

// MutableValue returns the value slot for in-place changes by a proposal.
// The previous value is held first, so Restore still works.
func (n *StochasticNode[T]) MutableValue() (*T, error) {
	if err := n.g.guard("mutate " + n.name); err != nil {
		return nil, err
	}
	n.hold()
	n.probStale = true
	return &n.value, nil
}

// Clamp binds the node to observed data and touches it.
func (n *StochasticNode[T]) Clamp(observed T) error {
	if err := n.SetValue(observed); err != nil {
		return err
	}
	n.clamped = true
	n.touchMe(false)
	return nil
}

// Unclamp releases the node from its observation. The value is unchanged.
func (n *StochasticNode[T]) Unclamp() { n.clamped = false }

// Redraw replaces the value with a draw from the distribution and touches
// the node.
func (n *StochasticNode[T]) Redraw(rng *rand.Rand) error {
	if err := n.g.guard("redraw " + n.name); err != nil {
		return err
	}
	if n.clamped {
		return ErrClamped
	}
	var v T
	err := n.g.evaluating(func() error {
		var err error
		v, err = n.dist.Draw(rng)
		return err
	})
	if err != nil {
		return &EvaluationError{Node: n.name, Err: err}
	}
	n.hold()
	n.value = v
	n.probStale = true
	n.touchMe(false)
	return nil
}

// LogProbability returns the log density of the current value under the
// current parameter values. The result is cached until the node or one of
// its parents is touched. A density of zero is -Inf, not an error.
func (n *StochasticNode[T]) LogProbability() (float64, error) {
	if !n.probStale {
		return n.lnProb, nil
	}
	var lp float64
	err := n.g.evaluating(func() error {
		var err error
		lp, err = n.dist.LogDensity(n.value)
		return err
	})
	n.densityEvals++
	if err != nil {
		return 0, &EvaluationError{Node: n.name, Err: err}
	}
	n.lnProb = lp
	n.probStale = false
	return lp, nil
}

func (n *StochasticNode[T]) Touch() error   { return touchNode(n) }
func (n *StochasticNode[T]) Keep() error    { return keepNode(n) }
func (n *StochasticNode[T]) Restore() error { return restoreNode(n) }

func (n *StochasticNode[T]) SerializeValue() (string, error) {
	return n.traits.Serialize(n.value)
}

// ResurrectValue parses text and assigns it like SetValue.
func (n *StochasticNode[T]) ResurrectValue(text string) error {
	v, err := n.traits.Resurrect(text)
	if err != nil {
		return err
	}
	return n.SetValue(v)
}

// #endregion stochastic

// #region hooks
func (n *StochasticNode[T]) hold() {
	if n.touched {
		return
	}
	n.touched = true
	n.stored = n.traits.Duplicate(n.value)
	n.storedLnProb = n.lnProb
	n.storedProbStale = n.probStale
}

func (n *StochasticNode[T]) dirty() bool { return n.probStale }

// touchMe from a parent only invalidates the log probability: the value
// itself did not change, so children are left alone.
func (n *StochasticNode[T]) touchMe(fromParent bool) {
	n.hold()
	n.probStale = true
	if !fromParent {
		n.g.propagate(n)
	}
}

func (n *StochasticNode[T]) keepMe() {
	var zero T
	n.touched = false
	n.stored = zero
}

func (n *StochasticNode[T]) restoreMe() {
	if n.touched {
		n.value = n.stored
		n.lnProb = n.storedLnProb
		n.probStale = n.storedProbStale
	}
	n.keepMe()
}

func (n *StochasticNode[T]) cloneInto(g *Graph) Node {
	c := &StochasticNode[T]{
		nodeBase:        n.cloneBase(g),
		dist:            n.dist.Clone(),
		traits:          n.traits,
		value:           n.traits.Duplicate(n.value),
		clamped:         n.clamped,
		lnProb:          n.lnProb,
		probStale:       n.probStale,
		storedLnProb:    n.storedLnProb,
		storedProbStale: n.storedProbStale,
	}
	if n.touched {
		c.stored = n.traits.Duplicate(n.stored)
	}
	return c
}

func (n *StochasticNode[T]) rebindParameter(old, new Node) error {
	return n.dist.SwapParameter(old, new)
}

// #endregion hooks
