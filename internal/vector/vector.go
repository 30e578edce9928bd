// Package vector provides an indexable container that behaves the same
// whether its elements are plain values stored in place or polymorphic
// values held as owned clones.
package vector

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/danielpatrickdp/bayesgraph/internal/value"
)

// #region errors

// ErrIndexOutOfRange is returned by every bounds-checked accessor.
var ErrIndexOutOfRange = errors.New("index out of range")

// IndexError carries the offending index and the container size.
type IndexError struct {
	Index int
	Size  int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d out of range [0,%d)", e.Index, e.Size)
}

func (e *IndexError) Unwrap() error { return ErrIndexOutOfRange }

// #endregion errors

// #region interface

// Vector is the shared surface of Inline and Owned.
//
// Get returns the stored element itself; for Owned vectors this is the
// container's clone and must not be retained past the next mutation.
// Push, Set and Insert never keep the caller's instance.
type Vector[T any] interface {
	Size() int
	Get(i int) (T, error)
	At(i int) (*T, error)
	Set(i int, v T) error
	Push(v T)
	Insert(i int, v T) error
	Erase(i int) error
	Sort(less func(a, b T) bool)
	All() iter.Seq2[int, T]
	Slots() iter.Seq2[int, *T]
	Values() []T
	Clone() Vector[T]
	MarshalText() ([]byte, error)
	ParseText(text string) (Vector[T], error)
}

// #endregion interface

// #region variants

// Inline stores elements by value.
type Inline[T any] struct {
	core[T]
}

// NewInline creates an inline vector whose elements have no text form.
func NewInline[T any](vals ...T) *Inline[T] {
	return NewInlineWith[T](value.Plain[T]{}, vals...)
}

// NewInlineWith creates an inline vector using traits for copies and text.
func NewInlineWith[T any](traits value.Traits[T], vals ...T) *Inline[T] {
	v := &Inline[T]{core: core[T]{traits: traits}}
	v.pushAll(vals)
	return v
}

// NewFloats creates a serializable inline vector of float64.
func NewFloats(vals ...float64) *Inline[float64] {
	return NewInlineWith[float64](value.Float[float64]{}, vals...)
}

func (v *Inline[T]) Clone() Vector[T] {
	return &Inline[T]{core: v.core.clone()}
}

func (v *Inline[T]) ParseText(text string) (Vector[T], error) {
	c, err := v.core.parse(text)
	if err != nil {
		return nil, err
	}
	return &Inline[T]{core: c}, nil
}

// Owned stores an independent clone of every element it receives.
type Owned[T value.Cloner[T]] struct {
	core[T]
}

// NewOwned creates an owned vector whose elements have no text form.
func NewOwned[T value.Cloner[T]](vals ...T) *Owned[T] {
	v := &Owned[T]{core: core[T]{traits: value.Cloned[T]{}}}
	v.pushAll(vals)
	return v
}

// NewOwnedText creates an owned vector of serializable polymorphic values.
// prototype decides the dynamic type ParseText starts from.
func NewOwnedText[T value.ClonerText[T]](prototype T, vals ...T) *Owned[T] {
	v := &Owned[T]{core: core[T]{traits: value.ClonedText[T]{Prototype: prototype}}}
	v.pushAll(vals)
	return v
}

func (v *Owned[T]) Clone() Vector[T] {
	return &Owned[T]{core: v.core.clone()}
}

func (v *Owned[T]) ParseText(text string) (Vector[T], error) {
	c, err := v.core.parse(text)
	if err != nil {
		return nil, err
	}
	return &Owned[T]{core: c}, nil
}

// #endregion variants

// #region core

type core[T any] struct {
	elems  []T
	traits value.Traits[T]
}

func (c *core[T]) check(i, size int) error {
	if i < 0 || i >= size {
		return &IndexError{Index: i, Size: size}
	}
	return nil
}

func (c *core[T]) pushAll(vals []T) {
	for _, x := range vals {
		c.Push(x)
	}
}

// Size returns the number of elements.
func (c *core[T]) Size() int { return len(c.elems) }

// Get returns element i.
func (c *core[T]) Get(i int) (T, error) {
	if err := c.check(i, len(c.elems)); err != nil {
		var zero T
		return zero, err
	}
	return c.elems[i], nil
}

// At returns the slot holding element i for in-place mutation.
func (c *core[T]) At(i int) (*T, error) {
	if err := c.check(i, len(c.elems)); err != nil {
		return nil, err
	}
	return &c.elems[i], nil
}

// Set replaces element i with a copy of v.
func (c *core[T]) Set(i int, v T) error {
	if err := c.check(i, len(c.elems)); err != nil {
		return err
	}
	c.elems[i] = c.traits.Duplicate(v)
	return nil
}

// Push appends a copy of v.
func (c *core[T]) Push(v T) {
	c.elems = append(c.elems, c.traits.Duplicate(v))
}

// Insert places a copy of v at position i, shifting later elements. i may
// equal Size.
func (c *core[T]) Insert(i int, v T) error {
	if err := c.check(i, len(c.elems)+1); err != nil {
		return err
	}
	var zero T
	c.elems = append(c.elems, zero)
	copy(c.elems[i+1:], c.elems[i:])
	c.elems[i] = c.traits.Duplicate(v)
	return nil
}

// Erase removes element i.
func (c *core[T]) Erase(i int) error {
	if err := c.check(i, len(c.elems)); err != nil {
		return err
	}
	copy(c.elems[i:], c.elems[i+1:])
	var zero T
	c.elems[len(c.elems)-1] = zero
	c.elems = c.elems[:len(c.elems)-1]
	return nil
}

// Sort orders the elements by less using quicksort with the first element of
// each range as pivot. Elements are moved by exchanging slots, never copied,
// and the order of equal elements is not preserved.
func (c *core[T]) Sort(less func(a, b T) bool) {
	c.sortRange(0, len(c.elems)-1, less)
}

func (c *core[T]) sortRange(lo, hi int, less func(a, b T) bool) {
	for lo < hi {
		p := c.partition(lo, hi, less)
		if p-lo < hi-p {
			c.sortRange(lo, p-1, less)
			lo = p + 1
		} else {
			c.sortRange(p+1, hi, less)
			hi = p - 1
		}
	}
}

// partition leaves elems[lo] as pivot until the scan ends, then moves it to
// its final index and returns that index.
func (c *core[T]) partition(lo, hi int, less func(a, b T) bool) int {
	e := c.elems
	i, j := lo+1, hi
	for {
		for i <= j && !less(e[lo], e[i]) {
			i++
		}
		for i <= j && less(e[lo], e[j]) {
			j--
		}
		if i >= j {
			break
		}
		e[i], e[j] = e[j], e[i]
		i++
		j--
	}
	e[lo], e[j] = e[j], e[lo]
	return j
}

// All yields every index and element.
func (c *core[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i, x := range c.elems {
			if !yield(i, x) {
				return
			}
		}
	}
}

// Slots yields every index and a pointer to its slot.
func (c *core[T]) Slots() iter.Seq2[int, *T] {
	return func(yield func(int, *T) bool) {
		for i := range c.elems {
			if !yield(i, &c.elems[i]) {
				return
			}
		}
	}
}

// Values returns independent copies of all elements.
func (c *core[T]) Values() []T {
	out := make([]T, len(c.elems))
	for i, x := range c.elems {
		out[i] = c.traits.Duplicate(x)
	}
	return out
}

// MarshalText encodes the elements as a JSON array of their text forms.
func (c *core[T]) MarshalText() ([]byte, error) {
	parts := make([]string, len(c.elems))
	for i, x := range c.elems {
		s, err := c.traits.Serialize(x)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		parts[i] = s
	}
	return json.Marshal(parts)
}

func (c *core[T]) clone() core[T] {
	return core[T]{elems: c.Values(), traits: c.traits}
}

func (c *core[T]) parse(text string) (core[T], error) {
	var parts []string
	if err := json.Unmarshal([]byte(text), &parts); err != nil {
		return core[T]{}, &value.ParseError{Text: text, Err: err}
	}
	out := core[T]{elems: make([]T, 0, len(parts)), traits: c.traits}
	for i, p := range parts {
		x, err := c.traits.Resurrect(p)
		if err != nil {
			return core[T]{}, fmt.Errorf("element %d: %w", i, err)
		}
		out.elems = append(out.elems, x)
	}
	return out, nil
}

// #endregion core
