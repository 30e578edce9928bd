// Package fn provides deterministic functions for dag.DeterministicNode.
package fn

import (
	"errors"
	"fmt"
	"math"

	"github.com/danielpatrickdp/bayesgraph/internal/dag"
)

// ErrDomain is returned when an argument is outside a function's domain.
var ErrDomain = errors.New("argument outside domain")

// Number is the set of element types Sum and Product accept.
type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// #region sum
// Sum adds its terms.
type Sum[T Number] struct {
	terms dag.Params[T]
}

func NewSum[T Number](terms ...dag.TypedNode[T]) *Sum[T] {
	return &Sum[T]{terms: dag.ParamsOf(terms...)}
}

func (f *Sum[T]) Parameters() []dag.Node { return f.terms.Nodes() }

func (f *Sum[T]) Evaluate() (T, error) {
	vals, err := f.terms.Values()
	if err != nil {
		return 0, err
	}
	var s T
	for _, v := range vals {
		s += v
	}
	return s, nil
}

func (f *Sum[T]) SwapParameter(old, new dag.Node) error { return f.terms.Swap(old, new) }

func (f *Sum[T]) Clone() dag.Function[T] { return &Sum[T]{terms: f.terms.Clone()} }

// #endregion sum

// #region product
// Product multiplies its factors.
type Product[T Number] struct {
	factors dag.Params[T]
}

func NewProduct[T Number](factors ...dag.TypedNode[T]) *Product[T] {
	return &Product[T]{factors: dag.ParamsOf(factors...)}
}

func (f *Product[T]) Parameters() []dag.Node { return f.factors.Nodes() }

func (f *Product[T]) Evaluate() (T, error) {
	vals, err := f.factors.Values()
	if err != nil {
		return 0, err
	}
	p := T(1)
	for _, v := range vals {
		p *= v
	}
	return p, nil
}

func (f *Product[T]) SwapParameter(old, new dag.Node) error { return f.factors.Swap(old, new) }

func (f *Product[T]) Clone() dag.Function[T] { return &Product[T]{factors: f.factors.Clone()} }

// #endregion product

// #region unary
// Unary applies op to one parameter.
type Unary[In, Out any] struct {
	name string
	x    dag.Param[In]
	op   func(In) (Out, error)
}

// NewUnary wraps op. name is used in error messages.
func NewUnary[In, Out any](name string, x dag.TypedNode[In], op func(In) (Out, error)) *Unary[In, Out] {
	return &Unary[In, Out]{name: name, x: dag.NewParam(x), op: op}
}

func (f *Unary[In, Out]) Parameters() []dag.Node { return []dag.Node{f.x.Node()} }

func (f *Unary[In, Out]) Evaluate() (Out, error) {
	v, err := f.x.Value()
	if err != nil {
		var zero Out
		return zero, err
	}
	out, err := f.op(v)
	if err != nil {
		return out, fmt.Errorf("%s: %w", f.name, err)
	}
	return out, nil
}

func (f *Unary[In, Out]) SwapParameter(old, new dag.Node) error { return f.x.Swap(old, new) }

func (f *Unary[In, Out]) Clone() dag.Function[Out] {
	c := *f
	return &c
}

// Exp is e^x.
func Exp(x dag.TypedNode[float64]) *Unary[float64, float64] {
	return NewUnary("exp", x, func(v float64) (float64, error) { return math.Exp(v), nil })
}

// Log is the natural logarithm; x must be positive.
func Log(x dag.TypedNode[float64]) *Unary[float64, float64] {
	return NewUnary("log", x, func(v float64) (float64, error) {
		if v <= 0 {
			return 0, fmt.Errorf("log(%g): %w", v, ErrDomain)
		}
		return math.Log(v), nil
	})
}

// Sqrt is the square root; x must not be negative.
func Sqrt(x dag.TypedNode[float64]) *Unary[float64, float64] {
	return NewUnary("sqrt", x, func(v float64) (float64, error) {
		if v < 0 {
			return 0, fmt.Errorf("sqrt(%g): %w", v, ErrDomain)
		}
		return math.Sqrt(v), nil
	})
}

// #endregion unary

// #region binary
// Binary applies op to two parameters.
type Binary[A, B, Out any] struct {
	name string
	a    dag.Param[A]
	b    dag.Param[B]
	op   func(A, B) (Out, error)
}

func NewBinary[A, B, Out any](name string, a dag.TypedNode[A], b dag.TypedNode[B], op func(A, B) (Out, error)) *Binary[A, B, Out] {
	return &Binary[A, B, Out]{name: name, a: dag.NewParam(a), b: dag.NewParam(b), op: op}
}

func (f *Binary[A, B, Out]) Parameters() []dag.Node {
	return []dag.Node{f.a.Node(), f.b.Node()}
}

func (f *Binary[A, B, Out]) Evaluate() (Out, error) {
	var zero Out
	a, err := f.a.Value()
	if err != nil {
		return zero, err
	}
	b, err := f.b.Value()
	if err != nil {
		return zero, err
	}
	out, err := f.op(a, b)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", f.name, err)
	}
	return out, nil
}

func (f *Binary[A, B, Out]) SwapParameter(old, new dag.Node) error {
	if err := f.a.Swap(old, new); err != nil {
		return err
	}
	return f.b.Swap(old, new)
}

func (f *Binary[A, B, Out]) Clone() dag.Function[Out] {
	c := *f
	return &c
}

// Divide is a / b; b must not be zero.
func Divide(a, b dag.TypedNode[float64]) *Binary[float64, float64, float64] {
	return NewBinary("divide", a, b, func(x, y float64) (float64, error) {
		if y == 0 {
			return 0, fmt.Errorf("%g/0: %w", x, ErrDomain)
		}
		return x / y, nil
	})
}

// #endregion binary
