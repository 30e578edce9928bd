// Package metrics holds the Prometheus collectors for sampler runs. They
// register on the default registry; cmd/sampler serves it when a metrics
// address is configured.
package metrics

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// #region collectors
var (
	// MovesTotal counts move outcomes by move name and action.
	MovesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bayesgraph_moves_total",
		Help: "Move attempts by move and outcome",
	}, []string{"move", "action"})

	// VetoesTotal counts rejections that skipped the Metropolis test.
	VetoesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bayesgraph_move_vetoes_total",
		Help: "Move rejections by veto type",
	}, []string{"move", "veto"})

	// LnRatio tracks the log acceptance ratio of scored moves.
	LnRatio = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bayesgraph_move_ln_ratio",
		Help:    "Log acceptance ratio of scored moves",
		Buckets: []float64{-50, -20, -10, -5, -2, -1, -0.5, 0, 0.5, 1, 2, 5},
	}, []string{"move"})

	// TuningParameter is the current tuning value of each move.
	TuningParameter = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bayesgraph_move_tuning",
		Help: "Current tuning parameter per move",
	}, []string{"move"})

	// Generations counts completed generations per chain.
	Generations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bayesgraph_generations_total",
		Help: "Completed generations by chain",
	}, []string{"chain"})

	// ChainHeat is the current heat of each chain.
	ChainHeat = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bayesgraph_chain_heat",
		Help: "Current heat by chain",
	}, []string{"chain"})

	// LogPosterior is the log posterior of each chain after its last generation.
	LogPosterior = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bayesgraph_chain_log_posterior",
		Help: "Log posterior after the last generation",
	}, []string{"chain"})

	// SwapsTotal counts MC3 heat swap attempts by outcome.
	SwapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bayesgraph_mc3_swaps_total",
		Help: "Heat swap attempts by outcome",
	}, []string{"action"})
)

// #endregion collectors

// #region helpers
// ObserveMove records one move outcome. Non-finite ratios are counted but
// not observed in the histogram.
func ObserveMove(move, action, veto string, lnRatio float64) {
	MovesTotal.WithLabelValues(move, action).Inc()
	if veto != "" {
		VetoesTotal.WithLabelValues(move, veto).Inc()
		return
	}
	if !math.IsNaN(lnRatio) && !math.IsInf(lnRatio, 0) {
		LnRatio.WithLabelValues(move).Observe(lnRatio)
	}
}

// ObserveGeneration records the end of a generation.
func ObserveGeneration(chain string, heat, lnPosterior float64) {
	Generations.WithLabelValues(chain).Inc()
	ChainHeat.WithLabelValues(chain).Set(heat)
	if !math.IsNaN(lnPosterior) {
		LogPosterior.WithLabelValues(chain).Set(lnPosterior)
	}
}

// #endregion helpers
