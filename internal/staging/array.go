package staging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Array is a dense row-major n-dimensional array of float64 values.
// It encodes to JSON as nested lists; NaN and infinities encode as null.
type Array struct {
	Shape  []int
	Values []float64
}

// NewArray builds an Array, checking that values fills shape exactly.
func NewArray(shape []int, values []float64) (*Array, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("negative dimension in shape %v", shape)
		}
		n *= d
	}
	if n != len(values) {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", shape, n, len(values))
	}
	return &Array{Shape: append([]int(nil), shape...), Values: values}, nil
}

// Dims returns the number of dimensions.
func (a *Array) Dims() int { return len(a.Shape) }

// At returns the value at the given index.
func (a *Array) At(idx ...int) float64 {
	off := 0
	for i, v := range idx {
		off = off*a.Shape[i] + v
	}
	return a.Values[off]
}

// Slice0 returns the sub-array at index 0 along the first dimension.
func (a *Array) Slice0() *Array {
	if len(a.Shape) == 0 {
		return a
	}
	n := 1
	for _, d := range a.Shape[1:] {
		n *= d
	}
	if a.Shape[0] == 0 {
		n = 0
	}
	return &Array{Shape: append([]int(nil), a.Shape[1:]...), Values: a.Values[:n:n]}
}

// Max returns the largest value, ignoring NaN. ok is false
// when the array holds no comparable values.
func (a *Array) Max() (m float64, ok bool) {
	for _, v := range a.Values {
		if math.IsNaN(v) {
			continue
		}
		if !ok || v > m {
			m, ok = v, true
		}
	}
	return m, ok
}

// Scale divides every value by d in place.
func (a *Array) Scale(d float64) {
	for i := range a.Values {
		a.Values[i] /= d
	}
}

func (a *Array) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.Grow(len(a.Values) * 8)
	if len(a.Shape) == 0 {
		if len(a.Values) == 0 {
			return []byte("null"), nil
		}
		appendNumber(&buf, a.Values[0])
		return buf.Bytes(), nil
	}
	off := 0
	writeNested(&buf, a.Shape, a.Values, &off)
	return buf.Bytes(), nil
}

func writeNested(buf *bytes.Buffer, shape []int, values []float64, off *int) {
	buf.WriteByte('[')
	for i := 0; i < shape[0]; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		if len(shape) == 1 {
			appendNumber(buf, values[*off])
			*off++
			continue
		}
		writeNested(buf, shape[1:], values, off)
	}
	buf.WriteByte(']')
}

func appendNumber(buf *bytes.Buffer, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		buf.WriteString("null")
		return
	}
	var tmp [32]byte
	buf.Write(strconv.AppendFloat(tmp[:0], v, 'g', -1, 64))
}

// UnmarshalJSON accepts nested lists of numbers or nulls. Nulls decode as NaN.
// Ragged input is rejected.
func (a *Array) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		*a = Array{}
		return nil
	}

	var shape []int
	for v := raw; ; {
		l, ok := v.([]any)
		if !ok {
			break
		}
		shape = append(shape, len(l))
		if len(l) == 0 {
			break
		}
		v = l[0]
	}

	var values []float64
	var walk func(v any, depth int) error
	walk = func(v any, depth int) error {
		if depth == len(shape) {
			switch n := v.(type) {
			case nil:
				values = append(values, math.NaN())
			case json.Number:
				f, err := n.Float64()
				if err != nil {
					return err
				}
				values = append(values, f)
			default:
				return fmt.Errorf("array element must be a number, got %T", v)
			}
			return nil
		}
		l, ok := v.([]any)
		if !ok || len(l) != shape[depth] {
			return fmt.Errorf("ragged array at depth %d", depth)
		}
		for _, e := range l {
			if err := walk(e, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(raw, 0); err != nil {
		return err
	}
	if values == nil {
		values = []float64{}
	}
	a.Shape, a.Values = shape, values
	return nil
}
