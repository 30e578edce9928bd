// Package value decides how node values are copied and how they are rebuilt
// from text.
//
// Plain numeric and struct values are copied by assignment. Polymorphic
// values (usually interface types whose dynamic type is not known to the
// holder) are copied through their own Clone method so derived state is
// never lost. The strategy is picked by the caller through the Traits
// implementation it instantiates, which the compiler checks against the
// value type's constraints; no runtime type inspection is involved.
package value

import (
	"encoding"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// #region errors

var (
	// ErrNotSerializable is returned when a value type has no text form.
	ErrNotSerializable = errors.New("value not serializable")

	// ErrParse is returned when text does not encode a value of the target type.
	ErrParse = errors.New("malformed value text")
)

// ParseError reports text that could not be turned back into a value.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %v", e.Text, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}

// #endregion errors

// #region capabilities

// Cloner is implemented by values that must be copied through their own
// dynamic type.
type Cloner[T any] interface {
	Clone() T
}

// TextParser is implemented by values that can rebuild a value of their
// family from text. The receiver acts as a prototype and is not modified.
type TextParser[T any] interface {
	ParseText(text string) (T, error)
}

// ClonerText combines cloning with both text directions.
type ClonerText[T any] interface {
	Cloner[T]
	TextParser[T]
	encoding.TextMarshaler
}

// #endregion capabilities

// #region traits

// Traits bundles the ownership operations a container or node needs for T.
type Traits[T any] interface {
	// Duplicate returns an independent copy of v.
	Duplicate(v T) T
	// Resurrect rebuilds a value from its text form.
	Resurrect(text string) (T, error)
	// Serialize renders v as text accepted by Resurrect.
	Serialize(v T) (string, error)
}

// Float copies and parses floating point values.
type Float[T ~float32 | ~float64] struct{}

func (Float[T]) Duplicate(v T) T { return v }

func (Float[T]) Resurrect(text string) (T, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, &ParseError{Text: text, Err: err}
	}
	return T(f), nil
}

func (Float[T]) Serialize(v T) (string, error) {
	return strconv.FormatFloat(float64(v), 'g', -1, 64), nil
}

// Int copies and parses signed integers, rejecting values that do not fit T.
type Int[T ~int | ~int8 | ~int16 | ~int32 | ~int64] struct{}

func (Int[T]) Duplicate(v T) T { return v }

func (Int[T]) Resurrect(text string) (T, error) {
	i, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return 0, &ParseError{Text: text, Err: err}
	}
	if int64(T(i)) != i {
		return 0, &ParseError{Text: text, Err: strconv.ErrRange}
	}
	return T(i), nil
}

func (Int[T]) Serialize(v T) (string, error) {
	return strconv.FormatInt(int64(v), 10), nil
}

// Uint copies and parses unsigned integers.
type Uint[T ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64] struct{}

func (Uint[T]) Duplicate(v T) T { return v }

func (Uint[T]) Resurrect(text string) (T, error) {
	u, err := strconv.ParseUint(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return 0, &ParseError{Text: text, Err: err}
	}
	if uint64(T(u)) != u {
		return 0, &ParseError{Text: text, Err: strconv.ErrRange}
	}
	return T(u), nil
}

func (Uint[T]) Serialize(v T) (string, error) {
	return strconv.FormatUint(uint64(v), 10), nil
}

// Bool copies and parses booleans.
type Bool struct{}

func (Bool) Duplicate(v bool) bool { return v }

func (Bool) Resurrect(text string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(text))
	if err != nil {
		return false, &ParseError{Text: text, Err: err}
	}
	return b, nil
}

func (Bool) Serialize(v bool) (string, error) { return strconv.FormatBool(v), nil }

// String copies strings; the text form is the string itself.
type String struct{}

func (String) Duplicate(v string) string             { return v }
func (String) Resurrect(text string) (string, error) { return text, nil }
func (String) Serialize(v string) (string, error)    { return v, nil }

// Plain copies by assignment and has no text form.
type Plain[T any] struct{}

func (Plain[T]) Duplicate(v T) T { return v }

func (Plain[T]) Resurrect(string) (T, error) {
	var zero T
	return zero, ErrNotSerializable
}

func (Plain[T]) Serialize(T) (string, error) { return "", ErrNotSerializable }

// Cloned copies through Clone and has no text form.
type Cloned[T Cloner[T]] struct{}

func (Cloned[T]) Duplicate(v T) T {
	if any(v) == nil {
		return v
	}
	return v.Clone()
}

func (Cloned[T]) Resurrect(string) (T, error) {
	var zero T
	return zero, ErrNotSerializable
}

func (Cloned[T]) Serialize(T) (string, error) { return "", ErrNotSerializable }

// ClonedText copies through Clone and converts to and from text through the
// value's own methods. Prototype supplies the dynamic type to rebuild; it is
// required because T is usually an interface with no usable zero value.
type ClonedText[T ClonerText[T]] struct {
	Prototype T
}

func (ClonedText[T]) Duplicate(v T) T {
	if any(v) == nil {
		return v
	}
	return v.Clone()
}

func (c ClonedText[T]) Resurrect(text string) (T, error) {
	if any(c.Prototype) == nil {
		var zero T
		return zero, fmt.Errorf("resurrect without prototype: %w", ErrNotSerializable)
	}
	v, err := c.Prototype.ParseText(text)
	if err != nil {
		var zero T
		if errors.Is(err, ErrParse) {
			return zero, err
		}
		return zero, &ParseError{Text: text, Err: err}
	}
	return v, nil
}

func (ClonedText[T]) Serialize(v T) (string, error) {
	if any(v) == nil {
		return "", fmt.Errorf("serialize nil value: %w", ErrNotSerializable)
	}
	b, err := v.MarshalText()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// #endregion traits
