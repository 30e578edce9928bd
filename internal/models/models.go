// Package models builds ready-to-sample graphs with their moves.
package models

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/bayesgraph/internal/config"
	"github.com/danielpatrickdp/bayesgraph/internal/dag"
	"github.com/danielpatrickdp/bayesgraph/internal/dist"
	"github.com/danielpatrickdp/bayesgraph/internal/fn"
	"github.com/danielpatrickdp/bayesgraph/internal/mcmc"
	"github.com/danielpatrickdp/bayesgraph/internal/proposal"
	"github.com/danielpatrickdp/bayesgraph/internal/value"
	"github.com/danielpatrickdp/bayesgraph/internal/vector"
)

// ErrNoData is returned when a model is built without observations.
var ErrNoData = errors.New("model needs at least one observation")

// #region model
// Model is a clean graph plus the moves that sample it.
type Model struct {
	Graph *dag.Graph
	Moves []*mcmc.Move
}

// FromConfig builds the model named in cfg.Model.
func FromConfig(cfg config.RunConfig) (*Model, error) {
	switch cfg.Model.Name {
	case "normal-mean":
		mc := DefaultNormalMeanConfig()
		mc.Data = cfg.Model.Data
		mc.PriorMean = cfg.Model.PriorMean
		mc.PriorSD = cfg.Model.PriorSD
		mc.Window = cfg.Chain.Window
		mc.AutoTune = cfg.Chain.AutoTune
		mc.Gate = cfg.Chain.Gate()
		return NormalMean(mc)
	default:
		return nil, fmt.Errorf("unknown model %q", cfg.Model.Name)
	}
}

// #endregion model

// #region normal-mean
// NormalMeanConfig parameterizes NormalMean.
type NormalMeanConfig struct {
	Data      []float64
	PriorMean float64
	PriorSD   float64
	Window    float64 // initial sliding window of both moves
	AutoTune  bool
	Gate      mcmc.GateConfig
}

// DefaultNormalMeanConfig returns a vague prior with auto-tuned moves.
func DefaultNormalMeanConfig() NormalMeanConfig {
	return NormalMeanConfig{
		PriorMean: 0,
		PriorSD:   10,
		Window:    1,
		AutoTune:  true,
		Gate:      mcmc.DefaultGateConfig(),
	}
}

// NormalMean builds
//
//	mu       ~ Normal(prior_mean, prior_sd)
//	logsigma ~ Normal(0, 1)
//	sigma    = exp(logsigma)
//	obs      ~ IID Normal(mu, sigma), clamped to Data
//
// with one sliding move on mu and one on logsigma.
func NormalMean(cfg NormalMeanConfig) (*Model, error) {
	if len(cfg.Data) == 0 {
		return nil, ErrNoData
	}
	floats := value.Float[float64]{}
	g := dag.NewGraph()

	mu0, err := dag.NewConstant[float64](g, "prior_mean", floats, cfg.PriorMean)
	if err != nil {
		return nil, err
	}
	s0, err := dag.NewConstant[float64](g, "prior_sd", floats, cfg.PriorSD)
	if err != nil {
		return nil, err
	}
	zero, err := dag.NewConstant[float64](g, "zero", floats, 0)
	if err != nil {
		return nil, err
	}
	one, err := dag.NewConstant[float64](g, "one", floats, 1)
	if err != nil {
		return nil, err
	}
	mu, err := dag.NewStochastic[float64](g, "mu", floats, dist.Normal(mu0, s0), cfg.PriorMean)
	if err != nil {
		return nil, err
	}
	logSigma, err := dag.NewStochastic[float64](g, "logsigma", floats, dist.Normal(zero, one), 0)
	if err != nil {
		return nil, err
	}
	sigma, err := dag.NewDeterministic[float64](g, "sigma", floats, fn.Exp(logSigma))
	if err != nil {
		return nil, err
	}
	obsTraits := value.ClonedText[vector.Vector[float64]]{Prototype: vector.NewFloats()}
	obs, err := dag.NewStochastic[vector.Vector[float64]](g, "obs", obsTraits,
		dist.NewIIDNormal(mu, sigma, len(cfg.Data)), vector.NewFloats())
	if err != nil {
		return nil, err
	}
	if err := obs.Clamp(vector.NewFloats(cfg.Data...)); err != nil {
		return nil, fmt.Errorf("clamp obs: %w", err)
	}
	if err := g.KeepAll(); err != nil {
		return nil, err
	}

	gate := mcmc.NewGate(cfg.Gate)
	var moves []*mcmc.Move
	for _, n := range []*dag.StochasticNode[float64]{mu, logSigma} {
		sc := proposal.DefaultSlidingConfig()
		sc.Window = cfg.Window
		p, err := proposal.NewSliding(n, sc)
		if err != nil {
			return nil, err
		}
		m, err := mcmc.NewMove(p, 1, gate, cfg.AutoTune)
		if err != nil {
			return nil, err
		}
		moves = append(moves, m)
	}
	return &Model{Graph: g, Moves: moves}, nil
}

// #endregion normal-mean
