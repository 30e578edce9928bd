package mcmc

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/bayesgraph/internal/metrics"
)

// #region mc3-config
// MC3Config configures Metropolis-coupled MCMC.
type MC3Config struct {
	Chains       int     // total chains, including the cold one
	DeltaHeat    float64 // chain i runs at heat 1/(1+DeltaHeat*i)
	SwapInterval int     // generations between swap attempts
	Seed         uint64  // seeds the swap stream; chain i uses stream i
	Gate         GateConfig
}

// DefaultMC3Config returns four chains with incremental heating.
func DefaultMC3Config() MC3Config {
	return MC3Config{
		Chains:       4,
		DeltaHeat:    0.2,
		SwapInterval: 10,
		Gate:         DefaultGateConfig(),
	}
}

// #endregion mc3-config

// #region mc3
// MC3 runs heated copies of a chain in parallel and proposes heat swaps
// between them at fixed intervals. Chains never share graph state; a swap
// exchanges heats only.
type MC3 struct {
	chains       []*Chain
	config       MC3Config
	gate         *Gate
	rng          *rand.Rand
	checkpointer Checkpointer
	round        int

	swapsTried, swapsAccepted int
}

// NewMC3 clones base into config.Chains chains. base becomes chain 0 and
// keeps heat 1. Checkpoints are taken for every chain after each swap
// round rather than from inside the parallel segments.
func NewMC3(base *Chain, config MC3Config) (*MC3, error) {
	if config.Chains < 2 {
		return nil, ErrFewChains
	}
	if config.SwapInterval <= 0 {
		config.SwapInterval = 1
	}
	cp := base.checkpointer
	base.checkpointer = nil
	base.SetHeat(1)

	m := &MC3{
		chains:       []*Chain{base},
		config:       config,
		gate:         NewGate(config.Gate),
		rng:          rand.New(rand.NewPCG(config.Seed, uint64(config.Chains))),
		checkpointer: cp,
	}
	for i := 1; i < config.Chains; i++ {
		c, err := base.Clone(fmt.Sprintf("%s-h%d", base.ID(), i), base.seed, base.stream+uint64(i))
		if err != nil {
			return nil, fmt.Errorf("mc3 chain %d: %w", i, err)
		}
		c.SetHeat(1 / (1 + config.DeltaHeat*float64(i)))
		m.chains = append(m.chains, c)
	}
	return m, nil
}

// Chains returns every chain, cold one first at construction.
func (m *MC3) Chains() []*Chain { return m.chains }

// ColdChain returns the chain currently at heat 1.
func (m *MC3) ColdChain() *Chain {
	for _, c := range m.chains {
		if c.Heat() == 1 {
			return c
		}
	}
	return m.chains[0]
}

// SwapStats returns attempted and accepted heat swaps.
func (m *MC3) SwapStats() (tried, accepted int) { return m.swapsTried, m.swapsAccepted }

// Run advances every chain by generations, pausing every SwapInterval
// generations for one swap attempt.
func (m *MC3) Run(ctx context.Context, generations int) error {
	for done := 0; done < generations; {
		seg := min(m.config.SwapInterval, generations-done)
		if err := m.runRound(ctx, seg); err != nil {
			return err
		}
		done += seg
	}
	return nil
}

func (m *MC3) runRound(ctx context.Context, seg int) (err error) {
	m.round++
	ctx, span := startSwapSpan(ctx, m.round, len(m.chains))
	defer func() { endSpan(span, err) }()

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range m.chains {
		g.Go(func() error {
			_, err := c.Run(gctx, seg)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if _, err := m.Swap(); err != nil {
		return err
	}
	if m.checkpointer != nil {
		for _, c := range m.chains {
			st, err := c.Snapshot()
			if err != nil {
				return err
			}
			if err := m.checkpointer.Checkpoint(st); err != nil {
				return fmt.Errorf("checkpoint %s: %w", c.ID(), err)
			}
		}
	}
	return nil
}

// Swap proposes exchanging the heats of two distinct random chains.
// With tempered densities p_i, p_j and heats b_i, b_j the log ratio is
// (b_i - b_j)(p_j - p_i).
func (m *MC3) Swap() (bool, error) {
	n := len(m.chains)
	i := m.rng.IntN(n)
	j := m.rng.IntN(n - 1)
	if j >= i {
		j++
	}
	a, b := m.chains[i], m.chains[j]

	pa, err := m.tempered(a)
	if err != nil {
		return false, err
	}
	pb, err := m.tempered(b)
	if err != nil {
		return false, err
	}
	lnR := (a.Heat() - b.Heat()) * (pb - pa)
	m.swapsTried++

	accept := !math.IsNaN(lnR) && math.Log(m.rng.Float64()) < lnR
	action := ActionReject
	if accept {
		ha, hb := a.Heat(), b.Heat()
		a.SetHeat(hb)
		b.SetHeat(ha)
		m.swapsAccepted++
		action = ActionAccept
	}
	metrics.SwapsTotal.WithLabelValues(string(action)).Inc()
	m.chains[0].logger.Debug("heat swap", "a", a.ID(), "b", b.ID(), "ln_ratio", lnR, "action", action)
	return accept, nil
}

func (m *MC3) tempered(c *Chain) (float64, error) {
	prior, lik, err := c.LogTerms()
	if err != nil {
		return 0, fmt.Errorf("score chain %s: %w", c.ID(), err)
	}
	return m.gate.Tempered(prior, lik), nil
}

// #endregion mc3
