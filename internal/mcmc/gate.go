package mcmc

import (
	"fmt"
	"math"
)

// #region gate-config
// GateConfig controls how heat enters the acceptance ratio.
type GateConfig struct {
	// HeatLikelihoodOnly tempers only clamped (observed) terms; otherwise
	// heat multiplies the whole posterior ratio.
	HeatLikelihoodOnly bool
}

// DefaultGateConfig heats the full posterior.
func DefaultGateConfig() GateConfig {
	return GateConfig{HeatLikelihoodOnly: false}
}

// #endregion gate-config

// #region gate
// Gate decides whether a proposed state is accepted.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Config returns the gate's configuration.
func (g *Gate) Config() GateConfig { return g.config }

// Tempered returns the part of a state's log density that heat multiplies.
func (g *Gate) Tempered(prior, likelihood float64) float64 {
	if g.config.HeatLikelihoodOnly {
		return likelihood
	}
	return prior + likelihood
}

// Decide runs the hard veto pass on the new terms, then the Metropolis
// test ln u < ln R with lnU supplied by the caller.
func (g *Gate) Decide(t Terms, lnU float64) Decision {
	newTotal := t.NewPrior + t.NewLikelihood
	if math.IsNaN(newTotal) || math.IsInf(newTotal, -1) {
		return g.Veto(VetoNonFinite, fmt.Sprintf("new log density %v", newTotal))
	}
	if math.IsNaN(t.LnHastings) {
		return g.Veto(VetoNonFinite, "hastings ratio is NaN")
	}

	var lnR float64
	if g.config.HeatLikelihoodOnly {
		lnR = (t.NewPrior - t.OldPrior) + t.Heat*(t.NewLikelihood-t.OldLikelihood) + t.LnHastings
	} else {
		lnR = t.Heat*(newTotal-(t.OldPrior+t.OldLikelihood)) + t.LnHastings
	}
	if math.IsNaN(lnR) {
		return g.Veto(VetoNonFinite, "acceptance ratio is NaN")
	}

	if lnU < lnR {
		return Decision{
			Action:  ActionAccept,
			Reason:  fmt.Sprintf("ln u %.4f < ln R %.4f", lnU, lnR),
			LnRatio: lnR,
		}
	}
	return Decision{
		Action:  ActionReject,
		Reason:  fmt.Sprintf("ln u %.4f >= ln R %.4f", lnU, lnR),
		LnRatio: lnR,
	}
}

// Veto builds a rejection that skipped the Metropolis test.
func (g *Gate) Veto(kind VetoType, reason string) Decision {
	return Decision{
		Action:  ActionReject,
		Reason:  fmt.Sprintf("hard veto: %s", reason),
		Vetoed:  true,
		Veto:    kind,
		LnRatio: math.NaN(),
	}
}

// #endregion gate
