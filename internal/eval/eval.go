package eval

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/bayesgraph/internal/dag"
)

// #region eval-harness
// EvalHarness checks that a graph between generations is consistent:
// nothing left touched, caches equal to fresh evaluation, densities finite.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run validates g. It may evaluate stale nodes but never touches any.
func (h *EvalHarness) Run(g *dag.Graph) EvalResult {
	var metrics []EvalMetric
	var failReasons []string

	// 1. Protocol: every proposal ended with keep or restore
	touched := g.Touched()
	touchedPass := len(touched) <= h.config.MaxTouched
	metrics = append(metrics, EvalMetric{
		Name:  "touched_nodes",
		Value: float64(len(touched)),
		Pass:  touchedPass,
	})
	if !touchedPass {
		failReasons = append(failReasons, fmt.Sprintf("%d nodes still touched", len(touched)))
	}

	// 2. Cache consistency of deterministic nodes
	if h.config.VerifyCaches {
		var bad []string
		for _, n := range g.All() {
			v, ok := n.(dag.Verifier)
			if !ok {
				continue
			}
			if err := v.Verify(); err != nil {
				bad = append(bad, err.Error())
			}
		}
		metrics = append(metrics, EvalMetric{
			Name:  "inconsistent_nodes",
			Value: float64(len(bad)),
			Pass:  len(bad) == 0,
		})
		if len(bad) > 0 {
			failReasons = append(failReasons, fmt.Sprintf("cache check: %s", bad[0]))
		}
	}

	// 3. Densities
	var nonFinite []string
	total := 0.0
	for _, s := range g.Scorers() {
		lp, err := s.LogProbability()
		switch {
		case err != nil:
			nonFinite = append(nonFinite, err.Error())
		case math.IsNaN(lp), math.IsInf(lp, 1):
			nonFinite = append(nonFinite, fmt.Sprintf("%s density %v", s.Name(), lp))
		case math.IsInf(lp, -1) && !h.config.AllowNegativeInfs:
			nonFinite = append(nonFinite, fmt.Sprintf("%s has zero density", s.Name()))
		}
		total += lp
	}
	metrics = append(metrics, EvalMetric{
		Name:  "nonfinite_densities",
		Value: float64(len(nonFinite)),
		Pass:  len(nonFinite) == 0,
	})
	if len(nonFinite) > 0 {
		failReasons = append(failReasons, nonFinite[0])
	}

	// 4. Log posterior floor: informational only
	metrics = append(metrics, EvalMetric{
		Name:  "log_posterior",
		Value: total,
		Pass:  total >= h.config.MinLogPosterior,
	})

	reason := "all checks passed"
	if len(failReasons) == 1 {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
	} else if len(failReasons) > 1 {
		reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
	}

	return EvalResult{
		Passed:  len(failReasons) == 0,
		Metrics: metrics,
		Reason:  reason,
	}
}

// Validate runs the harness and reports a failed run as an error wrapping
// ErrFailed. It satisfies the chain's validator hook.
func (h *EvalHarness) Validate(g *dag.Graph) error {
	res := h.Run(g)
	if res.Passed {
		return nil
	}
	return fmt.Errorf("%s: %w", res.Reason, ErrFailed)
}

// #endregion eval-harness
