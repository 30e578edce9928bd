package dag

import (
	"errors"
	"fmt"
)

// #region sentinels
var (
	ErrConstruction = errors.New("malformed graph")
	ErrEvaluation   = errors.New("evaluation failed")
	ErrReentrant    = errors.New("graph mutated while a value is being computed")
	ErrClamped      = errors.New("node is clamped")
	ErrUnknownNode  = errors.New("unknown node")
	ErrInconsistent = errors.New("cached value differs from fresh evaluation")
)

// #endregion sentinels

// #region typed
// ConstructionError reports a node that could not be wired into a graph.
type ConstructionError struct {
	Node   string
	Reason string
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("construct %s: %s", e.Node, e.Reason)
}

func (e *ConstructionError) Unwrap() error { return ErrConstruction }

// EvaluationError reports a domain violation while computing a value or a
// log probability. Err is the collaborator's error.
type EvaluationError struct {
	Node string
	Err  error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate %s: %v", e.Node, e.Err)
}

func (e *EvaluationError) Unwrap() []error {
	return []error{ErrEvaluation, e.Err}
}

// #endregion typed
