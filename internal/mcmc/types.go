// Package mcmc drives a model graph with Metropolis-Hastings moves: propose,
// touch, score, then keep or restore. Chains own their graph and random
// stream; MC3 couples several heated chains.
package mcmc

import (
	"errors"
	"math/rand/v2"

	"github.com/danielpatrickdp/bayesgraph/internal/dag"
)

// #region errors
var (
	// ErrOutOfSupport is returned by a proposal whose new value would have
	// zero prior mass. The move counts it as a rejection.
	ErrOutOfSupport = errors.New("proposed value outside support")

	ErrNoMoves    = errors.New("chain has no moves")
	ErrBadTarget  = errors.New("move target not in chain graph")
	ErrBadWeight  = errors.New("move weight must be positive")
	ErrFewChains  = errors.New("mc3 needs at least two chains")
	ErrGraphDirty = errors.New("graph has touched nodes between generations")
)

// #endregion errors

// #region proposal
// Proposal mutates the values (or structure) of its targets.
//
// Propose changes target values through the node setters so each target
// holds its pre-proposal snapshot; the move does the touching. Undo
// reverses structural edits only; value changes are reverted by Restore.
type Proposal interface {
	Name() string
	Targets() []dag.Node
	Propose(rng *rand.Rand) (lnHastings float64, err error)
	Undo() error
	// Tune adapts the tuning parameter given the acceptance rate observed
	// since the last call.
	Tune(acceptanceRate float64)
	TuningParameter() float64
	SetTuningParameter(v float64)
	// Clone returns the same proposal bound to the node with the same ID in
	// g.
	Clone(g *dag.Graph) (Proposal, error)
}

// #endregion proposal

// #region decision
// Action is the outcome of one move.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

// VetoType names why a move was rejected without a Metropolis draw.
type VetoType string

const (
	VetoEvaluation   VetoType = "evaluation_error"
	VetoOutOfSupport VetoType = "out_of_support"
	VetoNonFinite    VetoType = "non_finite"
)

// Decision is the gate's verdict for one move.
type Decision struct {
	Action  Action
	Reason  string
	Vetoed  bool
	Veto    VetoType // empty unless Vetoed
	LnRatio float64  // NaN when vetoed before scoring
}

// Terms are the inputs of one acceptance decision.
type Terms struct {
	OldPrior, OldLikelihood float64
	NewPrior, NewLikelihood float64
	LnHastings              float64
	Heat                    float64
}

// #endregion decision

// #region results
// StepResult records one move attempt.
type StepResult struct {
	Generation int
	Move       string
	Decision   Decision
	Tuning     float64
}

// MoveStats are a move's counters.
type MoveStats struct {
	Name     string
	Tried    int
	Accepted int
	Vetoed   int
	Tuning   float64
}

// AcceptanceRate returns Accepted/Tried, or 0 before any attempt.
func (s MoveStats) AcceptanceRate() float64 {
	if s.Tried == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(s.Tried)
}

// #endregion results

// #region collaborators
// DecisionRecord is one move outcome as sent to a DecisionSink.
type DecisionRecord struct {
	ChainID    string
	Generation int
	Heat       float64
	Result     StepResult
}

// DecisionSink receives every move outcome.
type DecisionSink interface {
	RecordDecision(rec DecisionRecord) error
}

// ChainState is everything needed to resume a chain.
type ChainState struct {
	ChainID      string
	Generation   int
	Seed         uint64
	Heat         float64
	RNGState     []byte
	Values       map[string]string
	Tuning       map[string]float64
	LogPosterior float64
}

// Checkpointer persists chain states.
type Checkpointer interface {
	Checkpoint(state ChainState) error
}

// Validator checks a graph between generations.
type Validator interface {
	Validate(g *dag.Graph) error
}

// #endregion collaborators
