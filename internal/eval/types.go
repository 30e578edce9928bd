package eval

import (
	"errors"
	"math"
)

// ErrFailed is returned by Validate when any blocking check fails.
var ErrFailed = errors.New("graph validation failed")

// #region eval-config
// EvalConfig holds thresholds for between-generation validation.
type EvalConfig struct {
	MaxTouched        int     // reject if more nodes than this hold a snapshot
	VerifyCaches      bool    // recompute deterministic nodes and compare with their cache
	MinLogPosterior   float64 // warn if the log posterior falls below this
	AllowNegativeInfs bool    // accept -Inf node densities instead of failing
}

// DefaultEvalConfig returns the checks run by the sampler's validator.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MaxTouched:        0,
		VerifyCaches:      true,
		MinLogPosterior:   math.Inf(-1),
		AllowNegativeInfs: false,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of one validation run.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// #endregion eval-result
