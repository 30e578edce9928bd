// Package dag is the computational graph that holds a model: constant,
// deterministic and stochastic nodes stored in an arena and addressed by
// integer handles.
//
// Values are cached. Touch marks a node and everything downstream of it as
// stale, Value recomputes lazily, and Keep or Restore ends the proposal by
// committing the new values or putting back the snapshot each node took
// when it was first touched.
//
// A Graph is not safe for concurrent use. Independent chains work on
// independent clones.
package dag

import (
	"math/rand/v2"
)

// #region ids
// NodeID addresses a node inside its graph's arena.
type NodeID int

// Kind identifies the concrete node specialization.
type Kind int

const (
	KindConstant Kind = iota
	KindDeterministic
	KindStochastic
)

func (k Kind) String() string {
	switch k {
	case KindConstant:
		return "constant"
	case KindDeterministic:
		return "deterministic"
	case KindStochastic:
		return "stochastic"
	}
	return "unknown"
}

// #endregion ids

// #region state
// State reports where a node is in the touch/keep/restore cycle.
type State int

const (
	// StateClean: no snapshot held, cached value authoritative.
	StateClean State = iota
	// StateTouched: cached value stale, recomputed on next read.
	StateTouched
	// StateRecomputed: touched during the current proposal and already
	// recomputed; the pre-touch snapshot is still held.
	StateRecomputed
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateTouched:
		return "touched"
	case StateRecomputed:
		return "recomputed"
	}
	return "unknown"
}

// #endregion state

// #region node
// Node is the type-independent surface shared by every node kind.
type Node interface {
	ID() NodeID
	Name() string
	Kind() Kind
	State() State
	Graph() *Graph
	Parents() []NodeID
	Children() []NodeID

	// Touch marks the node as changed and propagates staleness downstream.
	Touch() error
	// Keep commits the node and every touched descendant.
	Keep() error
	// Restore reverts the node and every touched descendant.
	Restore() error

	base() *nodeBase
	// dirty reports whether a cached quantity is waiting for recomputation.
	dirty() bool
	// touchMe enters the touched state. fromParent is set when the touch
	// arrives through an edge rather than from the node's own value changing.
	touchMe(fromParent bool)
	keepMe()
	restoreMe()
	cloneInto(g *Graph) Node
	rebindParameter(old, new Node) error
}

// TypedNode is a node whose value has static type T.
type TypedNode[T any] interface {
	Node
	Value() (T, error)
}

// Scorer is a node that contributes a log probability term.
type Scorer interface {
	Node
	LogProbability() (float64, error)
	IsClamped() bool
}

// Serializable nodes can write their value as text and read it back.
type Serializable interface {
	Node
	SerializeValue() (string, error)
	ResurrectValue(text string) error
}

// Verifier compares a cached value against a fresh evaluation.
type Verifier interface {
	Node
	Verify() error
}

// #endregion node

// #region collaborators
// Function computes a deterministic node's value from the nodes it declares
// as parameters.
type Function[T any] interface {
	Parameters() []Node
	Evaluate() (T, error)
	// SwapParameter replaces every reference to old with new. References to
	// other nodes are left alone.
	SwapParameter(old, new Node) error
	Clone() Function[T]
}

// Distribution scores and draws a stochastic node's value.
type Distribution[T any] interface {
	Parameters() []Node
	LogDensity(x T) (float64, error)
	Draw(rng *rand.Rand) (T, error)
	SwapParameter(old, new Node) error
	Clone() Distribution[T]
}

// #endregion collaborators

// #region edge
// Edge is one parent → child dependency.
type Edge struct {
	Parent NodeID
	Child  NodeID
}

// #endregion edge
