package eval

import (
	"errors"
	"testing"

	"github.com/danielpatrickdp/bayesgraph/internal/dag"
	"github.com/danielpatrickdp/bayesgraph/internal/dist"
	"github.com/danielpatrickdp/bayesgraph/internal/fn"
	"github.com/danielpatrickdp/bayesgraph/internal/value"
)

var floats = value.Float[float64]{}

// drifting returns a different value on every evaluation.
type drifting struct {
	x     dag.Param[float64]
	calls int
}

func (f *drifting) Parameters() []dag.Node { return []dag.Node{f.x.Node()} }
func (f *drifting) Evaluate() (float64, error) {
	v, err := f.x.Value()
	f.calls++
	return v + float64(f.calls), err
}
func (f *drifting) SwapParameter(old, new dag.Node) error { return f.x.Swap(old, new) }
func (f *drifting) Clone() dag.Function[float64]          { return &drifting{x: f.x} }

// helper: lo, hi constants, x ~ Uniform(lo, hi), y = exp(x).
func makeGraph(t *testing.T, x0 float64) (*dag.Graph, *dag.StochasticNode[float64]) {
	t.Helper()
	g := dag.NewGraph()
	lo, err := dag.NewConstant[float64](g, "lo", floats, 0)
	if err != nil {
		t.Fatalf("constant: %v", err)
	}
	hi, _ := dag.NewConstant[float64](g, "hi", floats, 1)
	x, err := dag.NewStochastic[float64](g, "x", floats, dist.Uniform(lo, hi), x0)
	if err != nil {
		t.Fatalf("stochastic: %v", err)
	}
	if _, err := dag.NewDeterministic[float64](g, "y", floats, fn.Exp(x)); err != nil {
		t.Fatalf("deterministic: %v", err)
	}
	if err := g.KeepAll(); err != nil {
		t.Fatalf("keep all: %v", err)
	}
	return g, x
}

func metric(t *testing.T, res EvalResult, name string) EvalMetric {
	t.Helper()
	for _, m := range res.Metrics {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("metric %s missing from %+v", name, res.Metrics)
	return EvalMetric{}
}

func TestEvalPassesOnCleanGraph(t *testing.T) {
	g, _ := makeGraph(t, 0.5)
	h := NewEvalHarness(DefaultEvalConfig())

	result := h.Run(g)

	if !result.Passed {
		t.Fatalf("expected pass on clean graph, got fail: %s", result.Reason)
	}
	// touched + inconsistent + nonfinite + log posterior
	if len(result.Metrics) != 4 {
		t.Fatalf("expected 4 metrics, got %d", len(result.Metrics))
	}
	if err := h.Validate(g); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestEvalFailsOnTouchedNode(t *testing.T) {
	g, x := makeGraph(t, 0.5)
	if err := x.SetValue(0.25); err != nil {
		t.Fatalf("set value: %v", err)
	}
	h := NewEvalHarness(DefaultEvalConfig())

	result := h.Run(g)

	if result.Passed {
		t.Fatal("expected fail with a node left touched")
	}
	if m := metric(t, result, "touched_nodes"); m.Pass || m.Value != 1 {
		t.Fatalf("touched_nodes = %+v, want 1 failing", m)
	}
	if err := h.Validate(g); !errors.Is(err, ErrFailed) {
		t.Fatalf("validate: got %v, want ErrFailed", err)
	}
}

func TestEvalDetectsCacheDrift(t *testing.T) {
	g, x := makeGraph(t, 0.5)
	if _, err := dag.NewDeterministic[float64](g, "d", floats, &drifting{x: dag.NewParam[float64](x)}); err != nil {
		t.Fatalf("deterministic: %v", err)
	}
	h := NewEvalHarness(DefaultEvalConfig())

	result := h.Run(g)

	if result.Passed {
		t.Fatal("expected fail on drifting cache")
	}
	if m := metric(t, result, "inconsistent_nodes"); m.Pass || m.Value != 1 {
		t.Fatalf("inconsistent_nodes = %+v, want 1 failing", m)
	}

	config := DefaultEvalConfig()
	config.VerifyCaches = false
	if res := NewEvalHarness(config).Run(g); !res.Passed {
		t.Fatalf("cache check disabled should pass: %s", res.Reason)
	}
}

func TestEvalZeroDensity(t *testing.T) {
	g, _ := makeGraph(t, 2)

	result := NewEvalHarness(DefaultEvalConfig()).Run(g)
	if result.Passed {
		t.Fatal("expected fail on value outside uniform support")
	}
	if m := metric(t, result, "nonfinite_densities"); m.Pass {
		t.Fatalf("nonfinite_densities should fail: %+v", m)
	}

	config := DefaultEvalConfig()
	config.AllowNegativeInfs = true
	if res := NewEvalHarness(config).Run(g); !res.Passed {
		t.Fatalf("zero density allowed should pass: %s", res.Reason)
	}
}

func TestEvalLogPosteriorInformationalOnly(t *testing.T) {
	g, _ := makeGraph(t, 0.5)
	config := DefaultEvalConfig()
	config.MinLogPosterior = 1

	result := NewEvalHarness(config).Run(g)

	if !result.Passed {
		t.Fatalf("log posterior floor should be informational, not blocking: %s", result.Reason)
	}
	if m := metric(t, result, "log_posterior"); m.Pass || m.Value != 0 {
		t.Fatalf("log_posterior = %+v, want 0 below floor 1", m)
	}
}

func TestEvalMultipleFailuresReason(t *testing.T) {
	g, x := makeGraph(t, 2)
	if err := x.SetValue(3); err != nil {
		t.Fatalf("set value: %v", err)
	}

	result := NewEvalHarness(DefaultEvalConfig()).Run(g)

	if result.Passed {
		t.Fatal("expected fail")
	}
	want := "eval failed: 2 checks: 1 nodes still touched"
	if result.Reason != want {
		t.Fatalf("reason = %q, want %q", result.Reason, want)
	}
}
