package proposal

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/danielpatrickdp/bayesgraph/internal/dag"
	"github.com/danielpatrickdp/bayesgraph/internal/mcmc"
)

// #region tuning
// tune widens the step when acceptance runs above target and narrows it
// when below. The result stays positive and under limit when limit > 0.
func tune(step, rate, target, limit float64) float64 {
	if rate > target {
		step *= 1 + (rate-target)/(1-target)
	} else {
		step /= 2 - rate/target
	}
	if limit > 0 && step > limit {
		step = limit
	}
	return step
}

func rebind(g *dag.Graph, n *dag.StochasticNode[float64]) (*dag.StochasticNode[float64], error) {
	c, err := g.Node(n.ID())
	if err != nil {
		return nil, err
	}
	s, ok := c.(*dag.StochasticNode[float64])
	if !ok {
		return nil, fmt.Errorf("node %s is %s in target graph: %w", n.Name(), c.Kind(), mcmc.ErrBadTarget)
	}
	return s, nil
}

// #endregion tuning

// #region sliding
// Sliding proposes x' = x + w(u - 0.5) with u ~ U(0,1). It is symmetric, so
// the Hastings ratio is zero.
type Sliding struct {
	node   *dag.StochasticNode[float64]
	config SlidingConfig
}

// NewSliding creates a sliding proposal on a free scalar node.
func NewSliding(n *dag.StochasticNode[float64], config SlidingConfig) (*Sliding, error) {
	if n.IsClamped() {
		return nil, fmt.Errorf("sliding on %s: %w", n.Name(), dag.ErrClamped)
	}
	if !(config.Window > 0) {
		return nil, fmt.Errorf("sliding on %s: window must be positive, got %v", n.Name(), config.Window)
	}
	return &Sliding{node: n, config: config}, nil
}

func (p *Sliding) Name() string        { return "sliding(" + p.node.Name() + ")" }
func (p *Sliding) Targets() []dag.Node { return []dag.Node{p.node} }
func (p *Sliding) Undo() error         { return nil }

func (p *Sliding) Propose(rng *rand.Rand) (float64, error) {
	x, err := p.node.Value()
	if err != nil {
		return 0, err
	}
	next := x + p.config.Window*(rng.Float64()-0.5)
	if next < p.config.Min || next > p.config.Max {
		return 0, fmt.Errorf("%s: %v outside [%v, %v]: %w", p.node.Name(), next, p.config.Min, p.config.Max, mcmc.ErrOutOfSupport)
	}
	if err := p.node.SetValue(next); err != nil {
		return 0, err
	}
	return 0, nil
}

func (p *Sliding) Tune(rate float64) {
	p.config.Window = tune(p.config.Window, rate, p.config.TargetAcceptance, p.config.MaxWindow)
}

func (p *Sliding) TuningParameter() float64 { return p.config.Window }

func (p *Sliding) SetTuningParameter(v float64) {
	if v > 0 {
		p.config.Window = v
	}
}

func (p *Sliding) Clone(g *dag.Graph) (mcmc.Proposal, error) {
	n, err := rebind(g, p.node)
	if err != nil {
		return nil, err
	}
	return &Sliding{node: n, config: p.config}, nil
}

// #endregion sliding

// #region scale
// Scale proposes x' = x*m with m = exp(lambda(u - 0.5)). The Hastings ratio
// is ln m. It suits strictly positive parameters.
type Scale struct {
	node   *dag.StochasticNode[float64]
	config ScaleConfig
}

// NewScale creates a scale proposal on a free scalar node.
func NewScale(n *dag.StochasticNode[float64], config ScaleConfig) (*Scale, error) {
	if n.IsClamped() {
		return nil, fmt.Errorf("scale on %s: %w", n.Name(), dag.ErrClamped)
	}
	if !(config.Lambda > 0) {
		return nil, fmt.Errorf("scale on %s: lambda must be positive, got %v", n.Name(), config.Lambda)
	}
	return &Scale{node: n, config: config}, nil
}

func (p *Scale) Name() string        { return "scale(" + p.node.Name() + ")" }
func (p *Scale) Targets() []dag.Node { return []dag.Node{p.node} }
func (p *Scale) Undo() error         { return nil }

func (p *Scale) Propose(rng *rand.Rand) (float64, error) {
	x, err := p.node.Value()
	if err != nil {
		return 0, err
	}
	lnM := p.config.Lambda * (rng.Float64() - 0.5)
	next := x * math.Exp(lnM)
	if math.IsInf(next, 0) || (next == 0 && x != 0) {
		return 0, fmt.Errorf("%s: scaled value %v: %w", p.node.Name(), next, mcmc.ErrOutOfSupport)
	}
	if err := p.node.SetValue(next); err != nil {
		return 0, err
	}
	return lnM, nil
}

func (p *Scale) Tune(rate float64) {
	p.config.Lambda = tune(p.config.Lambda, rate, p.config.TargetAcceptance, p.config.MaxLambda)
}

func (p *Scale) TuningParameter() float64 { return p.config.Lambda }

func (p *Scale) SetTuningParameter(v float64) {
	if v > 0 {
		p.config.Lambda = v
	}
}

func (p *Scale) Clone(g *dag.Graph) (mcmc.Proposal, error) {
	n, err := rebind(g, p.node)
	if err != nil {
		return nil, err
	}
	return &Scale{node: n, config: p.config}, nil
}

// #endregion scale
