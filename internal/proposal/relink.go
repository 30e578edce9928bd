package proposal

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/danielpatrickdp/bayesgraph/internal/dag"
	"github.com/danielpatrickdp/bayesgraph/internal/mcmc"
)

// #region relink
// Relink is a structural proposal: it moves one parameter edge of child to
// a different node drawn uniformly from a fixed candidate set. The choice
// is symmetric, so the Hastings ratio is zero. Undo relinks the edge back.
type Relink struct {
	child      dag.Node
	candidates []dag.Node

	from, to dag.Node // last proposed edit; nil after Undo
}

// NewRelink creates a relink proposal. Exactly one candidate must currently
// be a parent of child.
func NewRelink(child dag.Node, candidates ...dag.Node) (*Relink, error) {
	if len(candidates) < 2 {
		return nil, fmt.Errorf("relink %s: need at least two candidates", child.Name())
	}
	p := &Relink{child: child, candidates: candidates}
	if _, err := p.current(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Relink) current() (dag.Node, error) {
	parents := p.child.Parents()
	var cur dag.Node
	for _, c := range p.candidates {
		if slices.Contains(parents, c.ID()) {
			if cur != nil {
				return nil, fmt.Errorf("relink %s: candidates %s and %s are both parents", p.child.Name(), cur.Name(), c.Name())
			}
			cur = c
		}
	}
	if cur == nil {
		return nil, fmt.Errorf("relink %s: no candidate is a parent: %w", p.child.Name(), mcmc.ErrBadTarget)
	}
	return cur, nil
}

func (p *Relink) Name() string        { return "relink(" + p.child.Name() + ")" }
func (p *Relink) Targets() []dag.Node { return []dag.Node{p.child} }

func (p *Relink) Propose(rng *rand.Rand) (float64, error) {
	p.from, p.to = nil, nil
	cur, err := p.current()
	if err != nil {
		return 0, err
	}
	i := rng.IntN(len(p.candidates) - 1)
	if p.candidates[i].ID() == cur.ID() {
		i = len(p.candidates) - 1
	}
	next := p.candidates[i]
	if err := p.child.Graph().SwapParent(p.child, cur, next); err != nil {
		return 0, fmt.Errorf("%s to %s: %v: %w", p.Name(), next.Name(), err, mcmc.ErrOutOfSupport)
	}
	p.from, p.to = cur, next
	return 0, nil
}

func (p *Relink) Undo() error {
	if p.to == nil {
		return nil
	}
	from, to := p.from, p.to
	p.from, p.to = nil, nil
	return p.child.Graph().SwapParent(p.child, to, from)
}

func (p *Relink) Tune(float64)               {}
func (p *Relink) TuningParameter() float64   { return 0 }
func (p *Relink) SetTuningParameter(float64) {}

func (p *Relink) Clone(g *dag.Graph) (mcmc.Proposal, error) {
	child, err := g.Node(p.child.ID())
	if err != nil {
		return nil, err
	}
	cands := make([]dag.Node, len(p.candidates))
	for i, c := range p.candidates {
		if cands[i], err = g.Node(c.ID()); err != nil {
			return nil, err
		}
	}
	return &Relink{child: child, candidates: cands}, nil
}

// #endregion relink
