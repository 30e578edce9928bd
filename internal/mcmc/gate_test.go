package mcmc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGateAcceptsWhenLogUniformBelowRatio(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	terms := Terms{OldPrior: -2, OldLikelihood: -3, NewPrior: -1.5, NewLikelihood: -3, Heat: 1}

	d := g.Decide(terms, -0.1)
	assert.Equal(t, ActionAccept, d.Action)
	assert.InDelta(t, 0.5, d.LnRatio, 1e-12)
	assert.False(t, d.Vetoed)

	d = g.Decide(Terms{OldPrior: -1, NewPrior: -3, Heat: 1}, -1.5)
	assert.Equal(t, ActionReject, d.Action)
	assert.InDelta(t, -2, d.LnRatio, 1e-12)
}

func TestGateHeatScalesRatio(t *testing.T) {
	terms := Terms{OldPrior: 0, OldLikelihood: -4, NewPrior: -1, NewLikelihood: -2, LnHastings: 0.25, Heat: 0.5}

	full := NewGate(GateConfig{HeatLikelihoodOnly: false}).Decide(terms, math.Inf(-1))
	assert.InDelta(t, 0.5*(-3+4)+0.25, full.LnRatio, 1e-12)

	likOnly := NewGate(GateConfig{HeatLikelihoodOnly: true}).Decide(terms, math.Inf(-1))
	assert.InDelta(t, -1+0.5*2+0.25, likOnly.LnRatio, 1e-12)
}

func TestGateVetoes(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	cases := []struct {
		name  string
		terms Terms
	}{
		{"nan prior", Terms{NewPrior: math.NaN(), Heat: 1}},
		{"impossible likelihood", Terms{NewLikelihood: math.Inf(-1), Heat: 1}},
		{"nan hastings", Terms{LnHastings: math.NaN(), Heat: 1}},
		{"inf minus inf", Terms{OldPrior: math.Inf(1), NewPrior: math.Inf(1), Heat: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := g.Decide(tc.terms, math.Inf(-1))
			assert.Equal(t, ActionReject, d.Action)
			assert.True(t, d.Vetoed)
			assert.Equal(t, VetoNonFinite, d.Veto)
			assert.True(t, math.IsNaN(d.LnRatio))
		})
	}
}

func TestTempered(t *testing.T) {
	assert.Equal(t, -5.0, NewGate(DefaultGateConfig()).Tempered(-2, -3))
	assert.Equal(t, -3.0, NewGate(GateConfig{HeatLikelihoodOnly: true}).Tempered(-2, -3))
}

func TestSummarize(t *testing.T) {
	results := []StepResult{
		{Generation: 0, Move: "b", Decision: Decision{Action: ActionAccept}, Tuning: 1},
		{Generation: 0, Move: "a", Decision: Decision{Action: ActionReject}, Tuning: 2},
		{Generation: 1, Move: "a", Decision: Decision{Action: ActionReject, Vetoed: true, Veto: VetoOutOfSupport}, Tuning: 3},
		{Generation: 1, Move: "b", Decision: Decision{Action: ActionAccept}, Tuning: 4},
	}
	s := Summarize(results)

	assert.Equal(t, 2, s.Generations)
	assert.Equal(t, 4, s.Tried)
	assert.Equal(t, 2, s.Accepted)
	assert.Equal(t, 2, s.Rejected)
	assert.Equal(t, 1, s.Vetoed)
	assert.Equal(t, 1, s.ByVeto[VetoOutOfSupport])
	assert.InDelta(t, 0.5, s.AcceptanceRate(), 1e-12)
	assert.Equal(t, []MoveStats{
		{Name: "a", Tried: 2, Vetoed: 1, Tuning: 3},
		{Name: "b", Tried: 2, Accepted: 2, Tuning: 4},
	}, s.PerMove)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Tried)
	assert.Zero(t, s.AcceptanceRate())
	assert.Empty(t, s.PerMove)
}
