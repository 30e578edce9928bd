package mcmc

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/bayesgraph/internal/dag"
	"github.com/danielpatrickdp/bayesgraph/internal/metrics"
)

// #region chain-config
// ChainConfig holds per-chain cadences. Zero disables a cadence.
type ChainConfig struct {
	Schedule        string // "random" | "sequential"
	TuneEvery       int    // generations between auto-tune calls
	CheckpointEvery int    // generations between checkpoints
	ValidateEvery   int    // generations between validator runs
	LogEvery        int    // generations between progress log lines
}

// DefaultChainConfig returns the cadences used by the sampler CLI.
func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		Schedule:        "random",
		TuneEvery:       100,
		CheckpointEvery: 1000,
		ValidateEvery:   0,
		LogEvery:        1000,
	}
}

// ChainOptions configures NewChain. Zero values select defaults: a random
// ID, heat 1 and slog.Default.
type ChainOptions struct {
	ID           string
	Seed         uint64
	Stream       uint64
	Heat         float64
	Config       ChainConfig
	Sink         DecisionSink
	Checkpointer Checkpointer
	Validator    Validator
	Logger       *slog.Logger
}

// #endregion chain-config

// #region chain
// Chain is one Markov chain: a graph, the moves acting on it and a private
// random stream.
type Chain struct {
	id       string
	graph    *dag.Graph
	moves    []*Move
	schedule Schedule

	src    *rand.PCG
	rng    *rand.Rand
	seed   uint64
	stream uint64

	heat       float64
	generation int

	config       ChainConfig
	sink         DecisionSink
	checkpointer Checkpointer
	validator    Validator
	base         *slog.Logger
	logger       *slog.Logger
}

// NewChain creates a chain over g. Every move must target nodes of g, and
// g must have no touched nodes.
func NewChain(g *dag.Graph, moves []*Move, opts ChainOptions) (*Chain, error) {
	if len(moves) == 0 {
		return nil, ErrNoMoves
	}
	for _, m := range moves {
		if m.Graph() != g {
			return nil, fmt.Errorf("move %s: %w", m.Name(), ErrBadTarget)
		}
	}
	if len(g.Touched()) > 0 {
		return nil, ErrGraphDirty
	}
	schedule, err := newSchedule(opts.Config.Schedule, moves)
	if err != nil {
		return nil, err
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	heat := opts.Heat
	if heat == 0 {
		heat = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	src := rand.NewPCG(opts.Seed, opts.Stream)

	return &Chain{
		id:           id,
		graph:        g,
		moves:        moves,
		schedule:     schedule,
		src:          src,
		rng:          rand.New(src),
		seed:         opts.Seed,
		stream:       opts.Stream,
		heat:         heat,
		config:       opts.Config,
		sink:         opts.Sink,
		checkpointer: opts.Checkpointer,
		validator:    opts.Validator,
		base:         logger,
		logger:       logger.With("component", "chain", "chain", id),
	}, nil
}

func newSchedule(kind string, moves []*Move) (Schedule, error) {
	switch kind {
	case "", "random":
		return NewRandomSchedule(moves)
	case "sequential":
		return NewSequentialSchedule(moves)
	}
	return nil, fmt.Errorf("unknown schedule %q", kind)
}

func (c *Chain) ID() string           { return c.id }
func (c *Chain) Graph() *dag.Graph    { return c.graph }
func (c *Chain) Moves() []*Move       { return c.moves }
func (c *Chain) Heat() float64        { return c.heat }
func (c *Chain) SetHeat(h float64)    { c.heat = h }
func (c *Chain) Generation() int      { return c.generation }
func (c *Chain) Rand() *rand.Rand     { return c.rng }
func (c *Chain) Logger() *slog.Logger { return c.logger }

// LogPosterior sums the log probability of every stochastic node.
func (c *Chain) LogPosterior() (float64, error) {
	prior, lik, err := score(c.graph.Scorers())
	return prior + lik, err
}

// LogTerms returns the prior and likelihood sums separately.
func (c *Chain) LogTerms() (prior, likelihood float64, err error) {
	return score(c.graph.Scorers())
}

// #endregion chain

// #region step
// Step runs one generation.
func (c *Chain) Step() ([]StepResult, error) {
	n := c.schedule.PerGeneration()
	results := make([]StepResult, 0, n)
	for range n {
		m := c.schedule.Next(c.rng)
		d, err := m.Perform(c.rng, c.heat)
		if err != nil {
			return results, fmt.Errorf("generation %d: %w", c.generation, err)
		}
		res := StepResult{Generation: c.generation, Move: m.Name(), Decision: d, Tuning: m.Tuning()}
		metrics.ObserveMove(res.Move, string(d.Action), string(d.Veto), d.LnRatio)
		if c.sink != nil {
			rec := DecisionRecord{ChainID: c.id, Generation: c.generation, Heat: c.heat, Result: res}
			if err := c.sink.RecordDecision(rec); err != nil {
				c.logger.Warn("record decision", "move", res.Move, "err", err)
			}
		}
		results = append(results, res)
	}
	c.generation++

	if every(c.config.TuneEvery, c.generation) {
		for _, m := range c.moves {
			m.AutoTune()
			metrics.TuningParameter.WithLabelValues(m.Name()).Set(m.Tuning())
		}
	}

	lnP, err := c.LogPosterior()
	if err != nil {
		return results, fmt.Errorf("generation %d: %w", c.generation, err)
	}
	metrics.ObserveGeneration(c.id, c.heat, lnP)

	if c.validator != nil && every(c.config.ValidateEvery, c.generation) {
		if err := c.validator.Validate(c.graph); err != nil {
			return results, fmt.Errorf("validate generation %d: %w", c.generation, err)
		}
	}
	if c.checkpointer != nil && every(c.config.CheckpointEvery, c.generation) {
		if err := c.Checkpoint(); err != nil {
			return results, err
		}
	}
	if every(c.config.LogEvery, c.generation) {
		c.logger.Info("generation", "gen", c.generation, "heat", c.heat, "ln_posterior", lnP)
	}
	return results, nil
}

// Run performs n generations. ctx is checked between generations only.
func (c *Chain) Run(ctx context.Context, n int) (results []StepResult, err error) {
	ctx, span := startRunSpan(ctx, c, n)
	defer func() { endSpan(span, err) }()

	for range n {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := c.Step()
		results = append(results, res...)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func every(n, gen int) bool { return n > 0 && gen%n == 0 }

// #endregion step

// #region state
// Snapshot captures the chain's resumable state. The graph must be between
// generations.
func (c *Chain) Snapshot() (ChainState, error) {
	if len(c.graph.Touched()) > 0 {
		return ChainState{}, ErrGraphDirty
	}
	values := map[string]string{}
	for _, n := range c.graph.All() {
		s, ok := n.(dag.Scorer)
		if !ok || s.IsClamped() {
			continue
		}
		ser, ok := n.(dag.Serializable)
		if !ok {
			continue
		}
		text, err := ser.SerializeValue()
		if err != nil {
			return ChainState{}, fmt.Errorf("snapshot %s: %w", n.Name(), err)
		}
		values[n.Name()] = text
	}
	rngState, err := c.src.MarshalBinary()
	if err != nil {
		return ChainState{}, fmt.Errorf("snapshot rng: %w", err)
	}
	tuning := map[string]float64{}
	for i, m := range c.moves {
		tuning[tuningKey(i, m)] = m.Tuning()
	}
	lnP, err := c.LogPosterior()
	if err != nil {
		return ChainState{}, err
	}
	return ChainState{
		ChainID:      c.id,
		Generation:   c.generation,
		Seed:         c.seed,
		Heat:         c.heat,
		RNGState:     rngState,
		Values:       values,
		Tuning:       tuning,
		LogPosterior: lnP,
	}, nil
}

// Checkpoint sends a snapshot to the checkpointer.
func (c *Chain) Checkpoint() error {
	if c.checkpointer == nil {
		return nil
	}
	st, err := c.Snapshot()
	if err != nil {
		return err
	}
	if err := c.checkpointer.Checkpoint(st); err != nil {
		return fmt.Errorf("checkpoint generation %d: %w", c.generation, err)
	}
	c.logger.Debug("checkpoint", "gen", c.generation)
	return nil
}

// Resume loads st into the chain: node values, generation, heat, tuning
// and the random stream position.
func (c *Chain) Resume(st ChainState) error {
	for name, text := range st.Values {
		n, err := c.graph.Lookup(name)
		if err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		ser, ok := n.(dag.Serializable)
		if !ok {
			return fmt.Errorf("resume %s: node is not serializable", name)
		}
		if err := ser.ResurrectValue(text); err != nil {
			return fmt.Errorf("resume %s: %w", name, err)
		}
		if err := n.Touch(); err != nil {
			return fmt.Errorf("resume %s: %w", name, err)
		}
	}
	if err := c.graph.KeepAll(); err != nil {
		return err
	}
	if len(st.RNGState) > 0 {
		if err := c.src.UnmarshalBinary(st.RNGState); err != nil {
			return fmt.Errorf("resume rng: %w", err)
		}
	}
	for i, m := range c.moves {
		if v, ok := st.Tuning[tuningKey(i, m)]; ok {
			m.SetTuning(v)
		}
	}
	if st.ChainID != "" {
		c.id = st.ChainID
		c.logger = c.base.With("component", "chain", "chain", c.id)
	}
	c.generation = st.Generation
	c.seed = st.Seed
	if st.Heat > 0 {
		c.heat = st.Heat
	}
	return nil
}

func tuningKey(i int, m *Move) string { return fmt.Sprintf("%s#%d", m.Name(), i) }

// Clone returns an independent chain on a deep copy of the graph with its
// own random stream.
func (c *Chain) Clone(id string, seed, stream uint64) (*Chain, error) {
	g, err := c.graph.Clone()
	if err != nil {
		return nil, err
	}
	moves := make([]*Move, len(c.moves))
	for i, m := range c.moves {
		if moves[i], err = m.Clone(g); err != nil {
			return nil, err
		}
	}
	return NewChain(g, moves, ChainOptions{
		ID:           id,
		Seed:         seed,
		Stream:       stream,
		Heat:         c.heat,
		Config:       c.config,
		Sink:         c.sink,
		Checkpointer: c.checkpointer,
		Validator:    c.validator,
		Logger:       c.base,
	})
}

// #endregion state
