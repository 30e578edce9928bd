package dag_test

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/bayesgraph/internal/dag"
	"github.com/danielpatrickdp/bayesgraph/internal/dist"
	"github.com/danielpatrickdp/bayesgraph/internal/fn"
	"github.com/danielpatrickdp/bayesgraph/internal/value"
	"github.com/danielpatrickdp/bayesgraph/internal/vector"
)

var floats = value.Float[float64]{}

func constant(t *testing.T, g *dag.Graph, name string, v float64) *dag.ConstantNode[float64] {
	t.Helper()
	n, err := dag.NewConstant[float64](g, name, floats, v)
	require.NoError(t, err)
	return n
}

func stochastic(t *testing.T, g *dag.Graph, name string, d dag.Distribution[float64], v float64) *dag.StochasticNode[float64] {
	t.Helper()
	n, err := dag.NewStochastic[float64](g, name, floats, d, v)
	require.NoError(t, err)
	return n
}

func deterministic(t *testing.T, g *dag.Graph, name string, f dag.Function[float64]) *dag.DeterministicNode[float64] {
	t.Helper()
	n, err := dag.NewDeterministic[float64](g, name, floats, f)
	require.NoError(t, err)
	return n
}

func mustValue[T any](t *testing.T, n dag.TypedNode[T]) T {
	t.Helper()
	v, err := n.Value()
	require.NoError(t, err)
	return v
}

// standardNormal builds N(0,1) on shared constants "zero" and "one".
func standardNormal(t *testing.T, g *dag.Graph) dag.Distribution[float64] {
	t.Helper()
	zero, err := dag.Lookup[float64](g, "zero")
	if err != nil {
		zero = constant(t, g, "zero", 0)
	}
	one, err := dag.Lookup[float64](g, "one")
	if err != nil {
		one = constant(t, g, "one", 1)
	}
	return dist.Normal(zero, one)
}

// #region scenarios
func TestConstantSetTouchRestoreWithoutRead(t *testing.T) {
	g := dag.NewGraph()
	a := constant(t, g, "A", 2)
	b := constant(t, g, "B", 3)
	c := deterministic(t, g, "C", fn.NewSum[float64](a, b))

	assert.Equal(t, 5.0, mustValue[float64](t, c))

	require.NoError(t, a.SetValue(10))
	require.NoError(t, a.Touch())
	assert.Equal(t, dag.StateTouched, c.State())
	require.NoError(t, a.Restore())

	assert.Equal(t, 2.0, mustValue[float64](t, a))
	assert.Equal(t, 5.0, mustValue[float64](t, c))
	assert.Equal(t, dag.StateClean, c.State())
	assert.Equal(t, 1, c.Updates(), "restore must not force a recompute")
}

func TestConstantKeepMovesRestorePoint(t *testing.T) {
	g := dag.NewGraph()
	a := constant(t, g, "A", 2)
	b := constant(t, g, "B", 3)
	c := deterministic(t, g, "C", fn.NewSum[float64](a, b))
	_ = mustValue[float64](t, c)

	require.NoError(t, a.SetValue(10))
	require.NoError(t, a.Touch())
	assert.Equal(t, 13.0, mustValue[float64](t, c))
	assert.Equal(t, dag.StateRecomputed, c.State())

	require.NoError(t, a.Keep())
	assert.Equal(t, dag.StateClean, c.State())
	assert.Equal(t, 13.0, mustValue[float64](t, c))

	require.NoError(t, a.Touch())
	require.NoError(t, a.Restore())
	assert.Equal(t, 10.0, mustValue[float64](t, a))
	assert.Equal(t, 13.0, mustValue[float64](t, c))
}

func TestClampedStandardNormal(t *testing.T) {
	g := dag.NewGraph()
	x := stochastic(t, g, "X", standardNormal(t, g), 0)

	require.NoError(t, x.Clamp(1.5))
	assert.True(t, x.IsClamped())

	lp, err := x.LogProbability()
	require.NoError(t, err)
	// ln φ(1.5) = -ln(2π)/2 - 1.5²/2
	assert.InDelta(t, -2.0439385332, lp, 1e-9)

	rng := rand.New(rand.NewPCG(7, 11))
	assert.ErrorIs(t, x.Redraw(rng), dag.ErrClamped)

	x.Unclamp()
	assert.False(t, x.IsClamped())
	differs := false
	for range 5 {
		require.NoError(t, x.Redraw(rng))
		if mustValue[float64](t, x) != 1.5 {
			differs = true
		}
	}
	assert.True(t, differs, "redraw never moved the value")
}

// #endregion scenarios

// #region protocol
func TestRecomputeMatchesFreshEvaluation(t *testing.T) {
	g := dag.NewGraph()
	n01 := standardNormal(t, g)
	a := stochastic(t, g, "a", n01, 0.5)
	b := stochastic(t, g, "b", n01.Clone(), -1)
	ab := deterministic(t, g, "ab", fn.NewSum[float64](a, b))
	prod := deterministic(t, g, "prod", fn.NewProduct[float64](ab, b))

	rng := rand.New(rand.NewPCG(1, 2))
	for i := range 200 {
		targets := []*dag.StochasticNode[float64]{a, b}
		if rng.IntN(2) == 0 {
			targets[0], targets[1] = b, a
		}
		targets = targets[:1+rng.IntN(2)]

		for _, x := range targets {
			require.NoError(t, x.SetValue(rng.NormFloat64()))
			require.NoError(t, x.Touch())
			if rng.IntN(3) == 0 {
				_ = mustValue[float64](t, ab)
			}
		}
		accept := rng.IntN(2) == 0
		for _, x := range targets {
			if accept {
				require.NoError(t, x.Keep())
			} else {
				require.NoError(t, x.Restore())
			}
		}

		av, bv := mustValue[float64](t, a), mustValue[float64](t, b)
		require.Equal(t, (av+bv)*bv, mustValue[float64](t, prod), "iteration %d", i)
		require.Empty(t, g.Touched(), "iteration %d", i)
	}
}

func TestRepeatedTouchUpdatesOnce(t *testing.T) {
	g := dag.NewGraph()
	a := constant(t, g, "a", 1)
	c := deterministic(t, g, "c", fn.Exp(a))
	d := deterministic(t, g, "d", fn.Exp(c))
	_ = mustValue[float64](t, d)
	require.Equal(t, 1, c.Updates())

	require.NoError(t, a.SetValue(0))
	require.NoError(t, a.Touch())
	require.NoError(t, a.Touch())
	require.NoError(t, c.Touch())

	assert.InDelta(t, math.E, mustValue[float64](t, d), 1e-15)
	assert.Equal(t, 2, c.Updates())
	assert.Equal(t, 2, d.Updates())
	assert.ElementsMatch(t, []dag.NodeID{c.ID(), d.ID()}, g.Touched())
}

func TestRestoreIsBitIdentical(t *testing.T) {
	g := dag.NewGraph()
	x := stochastic(t, g, "x", standardNormal(t, g), 0.1+0.2)
	y := deterministic(t, g, "y", fn.Exp(x))
	z := deterministic(t, g, "z", fn.Sqrt(y))

	x0 := mustValue[float64](t, x)
	z0 := mustValue[float64](t, z)
	lp0, err := x.LogProbability()
	require.NoError(t, err)

	require.NoError(t, x.SetValue(3.7))
	require.NoError(t, x.Touch())
	_ = mustValue[float64](t, z)
	_, err = x.LogProbability()
	require.NoError(t, err)
	require.NoError(t, x.Restore())

	assert.Equal(t, math.Float64bits(x0), math.Float64bits(mustValue[float64](t, x)))
	assert.Equal(t, math.Float64bits(z0), math.Float64bits(mustValue[float64](t, z)))
	lp, err := x.LogProbability()
	require.NoError(t, err)
	assert.Equal(t, lp0, lp)
	assert.Empty(t, g.Touched())
}

func TestKeepDiscardsSnapshot(t *testing.T) {
	g := dag.NewGraph()
	x := stochastic(t, g, "x", standardNormal(t, g), 1)
	y := deterministic(t, g, "y", fn.Exp(x))
	_ = mustValue[float64](t, y)

	require.NoError(t, x.SetValue(2))
	require.NoError(t, x.Touch())
	_ = mustValue[float64](t, y)
	require.NoError(t, x.Keep())

	require.NoError(t, x.Touch())
	require.NoError(t, x.Restore())
	assert.Equal(t, 2.0, mustValue[float64](t, x))
	assert.Equal(t, math.Exp(2), mustValue[float64](t, y))
}

func TestDiamondKeepRestoreVisitOnce(t *testing.T) {
	g := dag.NewGraph()
	k := constant(t, g, "k", 2)
	x := stochastic(t, g, "x", standardNormal(t, g), 1)
	left := deterministic(t, g, "left", fn.NewSum[float64](x, k))
	right := deterministic(t, g, "right", fn.NewProduct[float64](x, k))
	join := deterministic(t, g, "join", fn.NewSum[float64](left, right))
	require.Equal(t, 5.0, mustValue[float64](t, join))

	require.NoError(t, x.SetValue(3))
	require.NoError(t, x.Touch())
	require.Equal(t, 11.0, mustValue[float64](t, join))
	require.NoError(t, x.Restore())

	assert.Equal(t, 5.0, mustValue[float64](t, join))
	assert.Equal(t, 2, join.Updates())
	for _, n := range []dag.Node{left, right, join} {
		assert.Equal(t, dag.StateClean, n.State(), n.Name())
	}

	require.NoError(t, x.SetValue(4))
	require.NoError(t, x.Touch())
	require.NoError(t, x.Keep())
	assert.Empty(t, g.Touched())
	assert.Equal(t, 14.0, mustValue[float64](t, join))
}

func TestStochasticChildCachesLogProbability(t *testing.T) {
	g := dag.NewGraph()
	mu := stochastic(t, g, "mu", standardNormal(t, g), 0)
	x := stochastic(t, g, "x", dist.Normal(mu, constant(t, g, "sd", 1)), 1)

	lp0, err := x.LogProbability()
	require.NoError(t, err)
	_, _ = x.LogProbability()
	require.Equal(t, 1, x.DensityEvaluations())

	require.NoError(t, mu.SetValue(1))
	require.NoError(t, mu.Touch())
	assert.Equal(t, dag.StateTouched, x.State())
	lp1, err := x.LogProbability()
	require.NoError(t, err)
	assert.Greater(t, lp1, lp0)
	assert.Equal(t, 2, x.DensityEvaluations())

	require.NoError(t, mu.Restore())
	lp, err := x.LogProbability()
	require.NoError(t, err)
	assert.Equal(t, lp0, lp)
	assert.Equal(t, 2, x.DensityEvaluations(), "restore must reinstate the cached density")
}

func TestFailedUpdateLeavesNodeRestorable(t *testing.T) {
	g := dag.NewGraph()
	x := stochastic(t, g, "x", standardNormal(t, g), 1)
	l := deterministic(t, g, "logx", fn.Log(x))
	require.Equal(t, 0.0, mustValue[float64](t, l))

	require.NoError(t, x.SetValue(-1))
	require.NoError(t, x.Touch())
	_, err := l.Value()
	require.Error(t, err)
	assert.ErrorIs(t, err, dag.ErrEvaluation)
	assert.ErrorIs(t, err, fn.ErrDomain)
	var ee *dag.EvaluationError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "logx", ee.Node)
	assert.Equal(t, dag.StateTouched, l.State())

	require.NoError(t, x.Restore())
	assert.Equal(t, 0.0, mustValue[float64](t, l))
	assert.Equal(t, 1.0, mustValue[float64](t, x))
}

func TestRestoreWithoutPriorEvaluationRecomputes(t *testing.T) {
	g := dag.NewGraph()
	x := stochastic(t, g, "x", standardNormal(t, g), 0)
	y := deterministic(t, g, "y", fn.Exp(x))

	require.NoError(t, x.SetValue(1))
	require.NoError(t, x.Touch())
	_ = mustValue[float64](t, y)
	require.NoError(t, x.Restore())

	assert.Equal(t, dag.StateTouched, y.State())
	assert.Equal(t, 1.0, mustValue[float64](t, y))
}

// #endregion protocol

// #region reentrancy
// touchingFn touches victim from inside Evaluate and records the outcome.
type touchingFn struct {
	x      dag.Param[float64]
	victim dag.Node
	got    *error
}

func (f *touchingFn) Parameters() []dag.Node { return []dag.Node{f.x.Node()} }
func (f *touchingFn) Evaluate() (float64, error) {
	*f.got = f.victim.Touch()
	return f.x.Value()
}
func (f *touchingFn) SwapParameter(old, new dag.Node) error { return f.x.Swap(old, new) }
func (f *touchingFn) Clone() dag.Function[float64] {
	c := *f
	return &c
}

func TestTouchDuringUpdateIsRefused(t *testing.T) {
	g := dag.NewGraph()
	x := stochastic(t, g, "x", standardNormal(t, g), 4)
	var got error
	y := deterministic(t, g, "y", &touchingFn{x: dag.NewParam[float64](x), victim: x, got: &got})

	assert.Equal(t, 4.0, mustValue[float64](t, y))
	assert.ErrorIs(t, got, dag.ErrReentrant)
	assert.Empty(t, g.Touched())

	require.NoError(t, x.Touch(), "guard must be released after the update")
}

// #endregion reentrancy

// #region structure
func TestConstructionErrors(t *testing.T) {
	g := dag.NewGraph()
	a := constant(t, g, "a", 1)

	_, err := dag.NewConstant[float64](g, "a", floats, 2)
	assert.ErrorIs(t, err, dag.ErrConstruction)

	other := dag.NewGraph()
	_, err = dag.NewDeterministic[float64](other, "y", floats, fn.Exp(a))
	var ce *dag.ConstructionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "y", ce.Node)

	_, err = dag.NewDeterministic[float64](g, "nil", floats, nil)
	assert.ErrorIs(t, err, dag.ErrConstruction)

	auto := constant(t, g, "", 3)
	assert.Equal(t, "constant#1", auto.Name())
}

func TestEdgesAreSymmetric(t *testing.T) {
	g := dag.NewGraph()
	a := constant(t, g, "a", 1)
	b := constant(t, g, "b", 2)
	s := deterministic(t, g, "s", fn.NewSum[float64](a, a, b))

	assert.Equal(t, []dag.NodeID{a.ID(), b.ID()}, s.Parents())
	assert.Equal(t, []dag.NodeID{s.ID()}, a.Children())
	assert.Equal(t, []dag.Edge{{Parent: a.ID(), Child: s.ID()}, {Parent: b.ID(), Child: s.ID()}}, g.Edges())
	assert.Equal(t, 4.0, mustValue[float64](t, s))
}

func TestSwapParentRelinks(t *testing.T) {
	g := dag.NewGraph()
	a := constant(t, g, "a", 1)
	b := constant(t, g, "b", 2)
	k := constant(t, g, "k", 10)
	s := deterministic(t, g, "s", fn.NewSum[float64](a, b))
	e := deterministic(t, g, "e", fn.Exp(s))
	require.Equal(t, 3.0, mustValue[float64](t, s))
	_ = mustValue[float64](t, e)

	require.NoError(t, g.SwapParent(s, a, k))
	assert.Equal(t, []dag.NodeID{k.ID(), b.ID()}, s.Parents())
	assert.Empty(t, a.Children())
	assert.Equal(t, []dag.NodeID{s.ID()}, k.Children())
	assert.Equal(t, 12.0, mustValue[float64](t, s))
	assert.Equal(t, math.Exp(12), mustValue[float64](t, e))

	err := g.SwapParent(s, b, e)
	assert.ErrorIs(t, err, dag.ErrConstruction, "e depends on s")

	err = g.SwapParent(s, a, b)
	assert.ErrorIs(t, err, dag.ErrConstruction, "a is no longer a parent")

	l, err := dag.NewConstant[string](g, "label", value.String{}, "x")
	require.NoError(t, err)
	err = g.SwapParent(s, b, l)
	assert.ErrorIs(t, err, dag.ErrConstruction, "value type mismatch")
}

func TestAffectedStochasticStopsAtStochastic(t *testing.T) {
	g := dag.NewGraph()
	mu := stochastic(t, g, "mu", standardNormal(t, g), 0)
	ls := stochastic(t, g, "logsigma", standardNormal(t, g), 0)
	sigma := deterministic(t, g, "sigma", fn.Exp(ls))
	obs, err := dag.NewStochastic[vector.Vector[float64]](g, "obs", value.ClonedText[vector.Vector[float64]]{Prototype: vector.NewFloats()},
		dist.NewIIDNormal(mu, sigma, 3), vector.NewFloats(0.1, 0.2, 0.3))
	require.NoError(t, err)
	y := stochastic(t, g, "y", dist.Normal(mu, constant(t, g, "ysd", 1)), 0)

	names := func(ss []dag.Scorer) []string {
		var out []string
		for _, s := range ss {
			out = append(out, s.Name())
		}
		return out
	}
	assert.Equal(t, []string{"logsigma", "obs"}, names(g.AffectedStochastic(ls)))
	assert.Equal(t, []string{"mu", "obs", "y"}, names(g.AffectedStochastic(mu)))
	assert.Equal(t, []string{"obs"}, names(g.AffectedStochastic(sigma)))
	assert.Equal(t, []string{"mu", "logsigma", "obs", "y"}, names(g.AffectedStochastic(mu, ls)))

	desc, err := g.Descendants(ls.ID())
	require.NoError(t, err)
	assert.Equal(t, []dag.NodeID{sigma.ID(), obs.ID()}, desc)
	_ = y
}

func TestCloneIsIndependent(t *testing.T) {
	g := dag.NewGraph()
	mu := stochastic(t, g, "mu", standardNormal(t, g), 0.5)
	e := deterministic(t, g, "e", fn.Exp(mu))
	obs, err := dag.NewStochastic[vector.Vector[float64]](g, "obs", value.ClonedText[vector.Vector[float64]]{Prototype: vector.NewFloats()},
		dist.NewIIDNormal(mu, constant(t, g, "sd", 1), 2), vector.NewFloats(1, 2))
	require.NoError(t, err)
	_ = mustValue[float64](t, e)

	c, err := g.Clone()
	require.NoError(t, err)
	cmu, err := dag.Lookup[float64](c, "mu")
	require.NoError(t, err)
	ce, err := dag.Lookup[float64](c, "e")
	require.NoError(t, err)
	cobs, err := dag.Lookup[vector.Vector[float64]](c, "obs")
	require.NoError(t, err)

	require.NoError(t, cmu.(*dag.StochasticNode[float64]).SetValue(2))
	require.NoError(t, cmu.Touch())
	assert.Equal(t, math.Exp(2), mustValue(t, ce))
	assert.Equal(t, 0.5, mustValue[float64](t, mu))
	assert.Equal(t, math.Exp(0.5), mustValue[float64](t, e))

	slot, err := cobs.(*dag.StochasticNode[vector.Vector[float64]]).MutableValue()
	require.NoError(t, err)
	require.NoError(t, (*slot).Set(0, 99))
	orig := mustValue[vector.Vector[float64]](t, obs)
	first, _ := orig.Get(0)
	assert.Equal(t, 1.0, first)

	assert.Empty(t, g.Touched())
	assert.NotEmpty(t, c.Touched())
	assert.Equal(t, g.Edges(), c.Edges())
}

// #endregion structure

// #region persistence
func TestSerializeResurrect(t *testing.T) {
	g := dag.NewGraph()
	x := stochastic(t, g, "x", standardNormal(t, g), 0.25)
	y := deterministic(t, g, "y", fn.Exp(x))

	text, err := x.SerializeValue()
	require.NoError(t, err)
	assert.Equal(t, "0.25", text)

	require.NoError(t, x.ResurrectValue("1.5"))
	require.NoError(t, x.Touch())
	assert.Equal(t, math.Exp(1.5), mustValue[float64](t, y))

	err = x.ResurrectValue("one")
	assert.ErrorIs(t, err, value.ErrParse)

	var s dag.Serializable = x
	_ = s
}

// driftFn returns x plus an offset the graph cannot see.
type driftFn struct {
	x      dag.Param[float64]
	offset *float64
}

func (f *driftFn) Parameters() []dag.Node { return []dag.Node{f.x.Node()} }
func (f *driftFn) Evaluate() (float64, error) {
	v, err := f.x.Value()
	return v + *f.offset, err
}
func (f *driftFn) SwapParameter(old, new dag.Node) error { return f.x.Swap(old, new) }
func (f *driftFn) Clone() dag.Function[float64] {
	c := *f
	return &c
}

func TestVerifyDetectsStaleCache(t *testing.T) {
	g := dag.NewGraph()
	x := constant(t, g, "x", 1)
	offset := 0.0
	y := deterministic(t, g, "y", &driftFn{x: dag.NewParam[float64](x), offset: &offset})

	require.NoError(t, y.Verify())
	offset = 1
	err := y.Verify()
	assert.True(t, errors.Is(err, dag.ErrInconsistent), "got %v", err)
}

// #endregion persistence
