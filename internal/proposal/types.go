// Package proposal holds the scalar Metropolis-Hastings proposals used by
// sampler moves.
package proposal

import "math"

// #region sliding-config
// SlidingConfig holds the window and support of a sliding proposal.
type SlidingConfig struct {
	Window           float64 // full width of the uniform window (default 1.0)
	TargetAcceptance float64 // auto-tune target rate (default 0.44)
	MaxWindow        float64 // tuning cap (0 = uncapped)
	Min, Max         float64 // support; proposals outside it are vetoed
}

// DefaultSlidingConfig returns an unbounded sliding window of width 1.
func DefaultSlidingConfig() SlidingConfig {
	return SlidingConfig{
		Window:           1.0,
		TargetAcceptance: 0.44,
		MaxWindow:        0,
		Min:              math.Inf(-1),
		Max:              math.Inf(1),
	}
}

// #endregion sliding-config

// #region scale-config
// ScaleConfig holds the log-scale width of a multiplier proposal.
type ScaleConfig struct {
	Lambda           float64 // multiplier is exp(Lambda*(u-0.5)) (default 1.0)
	TargetAcceptance float64 // auto-tune target rate (default 0.44)
	MaxLambda        float64 // tuning cap (0 = uncapped)
}

// DefaultScaleConfig returns the scale move defaults.
func DefaultScaleConfig() ScaleConfig {
	return ScaleConfig{
		Lambda:           1.0,
		TargetAcceptance: 0.44,
		MaxLambda:        10,
	}
}

// #endregion scale-config
