// Package dist adapts gonum's univariate distributions to dag.Distribution.
// Parameters are graph nodes read at evaluation time, so a density always
// reflects the current, possibly recomputed, parent values.
package dist

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/danielpatrickdp/bayesgraph/internal/dag"
	"github.com/danielpatrickdp/bayesgraph/internal/vector"
)

// ErrParameter is returned when a parameter value makes the distribution
// undefined, such as a non-positive scale.
var ErrParameter = errors.New("invalid distribution parameter")

var errNoRNG = errors.New("draw without random source")

// #region scalar
// univariate is the part of distuv.* this package uses.
type univariate interface {
	LogProb(x float64) float64
	Rand() float64
}

// scalar is a float64 distribution built from parameter values by build.
// build receives the rng to seed Src, or nil when only the density is
// needed.
type scalar struct {
	name   string
	params dag.Params[float64]
	build  func(p []float64, src rand.Source) (univariate, error)
}

func (d *scalar) Parameters() []dag.Node { return d.params.Nodes() }

func (d *scalar) instance(src rand.Source) (univariate, error) {
	p, err := d.params.Values()
	if err != nil {
		return nil, err
	}
	u, err := d.build(p, src)
	if err != nil {
		return nil, fmt.Errorf("%s%v: %w", d.name, p, err)
	}
	return u, nil
}

func (d *scalar) LogDensity(x float64) (float64, error) {
	u, err := d.instance(nil)
	if err != nil {
		return 0, err
	}
	return u.LogProb(x), nil
}

func (d *scalar) Draw(rng *rand.Rand) (float64, error) {
	if rng == nil {
		return 0, errNoRNG
	}
	u, err := d.instance(rng)
	if err != nil {
		return 0, err
	}
	return u.Rand(), nil
}

func (d *scalar) SwapParameter(old, new dag.Node) error { return d.params.Swap(old, new) }

func (d *scalar) Clone() dag.Distribution[float64] {
	return &scalar{name: d.name, params: d.params.Clone(), build: d.build}
}

func positive(name string, v float64) error {
	if !(v > 0) {
		return fmt.Errorf("%s=%g must be positive: %w", name, v, ErrParameter)
	}
	return nil
}

// #endregion scalar

// #region constructors
// Normal is the normal distribution with the given mean and standard
// deviation.
func Normal(mean, sd dag.TypedNode[float64]) dag.Distribution[float64] {
	return &scalar{
		name:   "normal",
		params: dag.ParamsOf(mean, sd),
		build: func(p []float64, src rand.Source) (univariate, error) {
			if err := positive("sd", p[1]); err != nil {
				return nil, err
			}
			return distuv.Normal{Mu: p[0], Sigma: p[1], Src: src}, nil
		},
	}
}

// LogNormal is the distribution of e^X for X normal with mu and sigma.
func LogNormal(mu, sigma dag.TypedNode[float64]) dag.Distribution[float64] {
	return &scalar{
		name:   "lognormal",
		params: dag.ParamsOf(mu, sigma),
		build: func(p []float64, src rand.Source) (univariate, error) {
			if err := positive("sigma", p[1]); err != nil {
				return nil, err
			}
			return distuv.LogNormal{Mu: p[0], Sigma: p[1], Src: src}, nil
		},
	}
}

// Exponential is parameterized by rate.
func Exponential(rate dag.TypedNode[float64]) dag.Distribution[float64] {
	return &scalar{
		name:   "exponential",
		params: dag.ParamsOf(rate),
		build: func(p []float64, src rand.Source) (univariate, error) {
			if err := positive("rate", p[0]); err != nil {
				return nil, err
			}
			return distuv.Exponential{Rate: p[0], Src: src}, nil
		},
	}
}

// Gamma is parameterized by shape and rate.
func Gamma(shape, rate dag.TypedNode[float64]) dag.Distribution[float64] {
	return &scalar{
		name:   "gamma",
		params: dag.ParamsOf(shape, rate),
		build: func(p []float64, src rand.Source) (univariate, error) {
			if err := positive("shape", p[0]); err != nil {
				return nil, err
			}
			if err := positive("rate", p[1]); err != nil {
				return nil, err
			}
			return distuv.Gamma{Alpha: p[0], Beta: p[1], Src: src}, nil
		},
	}
}

// Uniform is flat on [min, max].
func Uniform(lo, hi dag.TypedNode[float64]) dag.Distribution[float64] {
	return &scalar{
		name:   "uniform",
		params: dag.ParamsOf(lo, hi),
		build: func(p []float64, src rand.Source) (univariate, error) {
			if !(p[0] < p[1]) {
				return nil, fmt.Errorf("min=%g not below max=%g: %w", p[0], p[1], ErrParameter)
			}
			return distuv.Uniform{Min: p[0], Max: p[1], Src: src}, nil
		},
	}
}

// #endregion constructors

// #region iid
// IIDNormal scores a vector of independent draws sharing one mean and
// standard deviation.
type IIDNormal struct {
	mean, sd dag.Param[float64]
	n        int
}

// NewIIDNormal creates the distribution; Draw produces n elements.
func NewIIDNormal(mean, sd dag.TypedNode[float64], n int) *IIDNormal {
	return &IIDNormal{mean: dag.NewParam(mean), sd: dag.NewParam(sd), n: n}
}

func (d *IIDNormal) Parameters() []dag.Node {
	return []dag.Node{d.mean.Node(), d.sd.Node()}
}

func (d *IIDNormal) normal(src rand.Source) (distuv.Normal, error) {
	mu, err := d.mean.Value()
	if err != nil {
		return distuv.Normal{}, err
	}
	sd, err := d.sd.Value()
	if err != nil {
		return distuv.Normal{}, err
	}
	if err := positive("sd", sd); err != nil {
		return distuv.Normal{}, fmt.Errorf("iid normal: %w", err)
	}
	return distuv.Normal{Mu: mu, Sigma: sd, Src: src}, nil
}

func (d *IIDNormal) LogDensity(x vector.Vector[float64]) (float64, error) {
	nd, err := d.normal(nil)
	if err != nil {
		return 0, err
	}
	var lp float64
	for _, v := range x.All() {
		lp += nd.LogProb(v)
	}
	return lp, nil
}

func (d *IIDNormal) Draw(rng *rand.Rand) (vector.Vector[float64], error) {
	if rng == nil {
		return nil, errNoRNG
	}
	nd, err := d.normal(rng)
	if err != nil {
		return nil, err
	}
	out := vector.NewFloats()
	for range d.n {
		out.Push(nd.Rand())
	}
	return out, nil
}

func (d *IIDNormal) SwapParameter(old, new dag.Node) error {
	if err := d.mean.Swap(old, new); err != nil {
		return err
	}
	return d.sd.Swap(old, new)
}

func (d *IIDNormal) Clone() dag.Distribution[vector.Vector[float64]] {
	c := *d
	return &c
}

// #endregion iid
