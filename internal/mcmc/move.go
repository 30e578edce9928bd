package mcmc

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/danielpatrickdp/bayesgraph/internal/dag"
)

// #region move
// Move runs one Proposal under the Metropolis-Hastings rule.
type Move struct {
	proposal Proposal
	weight   float64
	gate     *Gate
	autoTune bool

	tried, accepted, vetoed     int
	periodTried, periodAccepted int
}

// NewMove wraps p. weight is the move's relative selection frequency and
// must be positive.
func NewMove(p Proposal, weight float64, gate *Gate, autoTune bool) (*Move, error) {
	if !(weight > 0) {
		return nil, fmt.Errorf("move %s: %w", p.Name(), ErrBadWeight)
	}
	if len(p.Targets()) == 0 {
		return nil, fmt.Errorf("move %s has no targets: %w", p.Name(), ErrBadTarget)
	}
	if gate == nil {
		gate = NewGate(DefaultGateConfig())
	}
	return &Move{proposal: p, weight: weight, gate: gate, autoTune: autoTune}, nil
}

func (m *Move) Name() string        { return m.proposal.Name() }
func (m *Move) Weight() float64     { return m.weight }
func (m *Move) Proposal() Proposal  { return m.proposal }
func (m *Move) Graph() *dag.Graph   { return m.proposal.Targets()[0].Graph() }
func (m *Move) Tuning() float64     { return m.proposal.TuningParameter() }
func (m *Move) SetTuning(v float64) { m.proposal.SetTuningParameter(v) }

// Stats returns the move's lifetime counters.
func (m *Move) Stats() MoveStats {
	return MoveStats{
		Name:     m.Name(),
		Tried:    m.tried,
		Accepted: m.accepted,
		Vetoed:   m.vetoed,
		Tuning:   m.proposal.TuningParameter(),
	}
}

// AutoTune feeds the acceptance rate since the previous call to the
// proposal and resets the period counters. It is a no-op for moves built
// without auto-tuning or with no attempts in the period.
func (m *Move) AutoTune() {
	if !m.autoTune || m.periodTried == 0 {
		return
	}
	m.proposal.Tune(float64(m.periodAccepted) / float64(m.periodTried))
	m.periodTried, m.periodAccepted = 0, 0
}

// Clone returns the move bound to g, with counters reset.
func (m *Move) Clone(g *dag.Graph) (*Move, error) {
	p, err := m.proposal.Clone(g)
	if err != nil {
		return nil, fmt.Errorf("clone move %s: %w", m.Name(), err)
	}
	return &Move{proposal: p, weight: m.weight, gate: m.gate, autoTune: m.autoTune}, nil
}

// #endregion move

// #region perform
// Perform runs one iteration: score the affected nodes, propose, touch the
// targets, rescore, decide, then keep or restore. Evaluation errors while
// rescoring and ErrOutOfSupport from the proposal are rejections; any other
// error is returned after the graph has been restored.
func (m *Move) Perform(rng *rand.Rand, heat float64) (Decision, error) {
	targets := m.proposal.Targets()
	g := targets[0].Graph()
	affected := g.AffectedStochastic(targets...)

	oldPrior, oldLik, err := score(affected)
	if err != nil {
		return Decision{}, fmt.Errorf("score before %s: %w", m.Name(), err)
	}

	lnH, err := m.proposal.Propose(rng)
	if err != nil {
		if rerr := m.reject(targets); rerr != nil {
			return Decision{}, errors.Join(err, rerr)
		}
		if errors.Is(err, ErrOutOfSupport) {
			return m.record(m.gate.Veto(VetoOutOfSupport, err.Error())), nil
		}
		return Decision{}, fmt.Errorf("propose %s: %w", m.Name(), err)
	}

	for _, t := range targets {
		if err := t.Touch(); err != nil {
			return Decision{}, errors.Join(fmt.Errorf("touch %s: %w", t.Name(), err), m.reject(targets))
		}
	}

	newPrior, newLik, err := score(affected)
	if err != nil {
		if rerr := m.reject(targets); rerr != nil {
			return Decision{}, errors.Join(err, rerr)
		}
		if errors.Is(err, dag.ErrEvaluation) {
			return m.record(m.gate.Veto(VetoEvaluation, err.Error())), nil
		}
		return Decision{}, fmt.Errorf("score after %s: %w", m.Name(), err)
	}

	d := m.gate.Decide(Terms{
		OldPrior:      oldPrior,
		OldLikelihood: oldLik,
		NewPrior:      newPrior,
		NewLikelihood: newLik,
		LnHastings:    lnH,
		Heat:          heat,
	}, math.Log(rng.Float64()))

	if d.Action == ActionAccept {
		for _, t := range targets {
			if err := t.Keep(); err != nil {
				return Decision{}, fmt.Errorf("keep %s: %w", t.Name(), err)
			}
		}
		return m.record(d), nil
	}
	if err := m.reject(targets); err != nil {
		return Decision{}, err
	}
	return m.record(d), nil
}

// reject undoes structural edits, then restores every target. Undo runs
// first because relinking touches nodes that Restore must then revert.
func (m *Move) reject(targets []dag.Node) error {
	var errs []error
	if err := m.proposal.Undo(); err != nil {
		errs = append(errs, fmt.Errorf("undo %s: %w", m.Name(), err))
	}
	for _, t := range targets {
		if err := t.Restore(); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", t.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Move) record(d Decision) Decision {
	m.tried++
	m.periodTried++
	switch {
	case d.Action == ActionAccept:
		m.accepted++
		m.periodAccepted++
	case d.Vetoed:
		m.vetoed++
	}
	return d
}

// score sums log probabilities, split into prior (free) and likelihood
// (clamped) terms.
func score(nodes []dag.Scorer) (prior, likelihood float64, err error) {
	for _, n := range nodes {
		lp, err := n.LogProbability()
		if err != nil {
			return 0, 0, err
		}
		if n.IsClamped() {
			likelihood += lp
		} else {
			prior += lp
		}
	}
	return prior, likelihood, nil
}

// #endregion perform
