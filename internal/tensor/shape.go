package tensor

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Shape is a row-major list of dimension sizes. The empty shape is a scalar.
type Shape []int

// NumElements returns the product of the dimensions, 1 for a scalar.
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Validate reports the first dimension that is not positive, or an element
// count that does not fit in an int.
func (s Shape) Validate() error {
	if i := slices.IndexFunc(s, func(d int) bool { return d <= 0 }); i >= 0 {
		return fmt.Errorf("dimension %d is %d, must be positive", i, s[i])
	}
	n := 1
	for _, d := range s {
		if n > math.MaxInt/d {
			return fmt.Errorf("shape %v overflows the element count", s)
		}
		n *= d
	}
	return nil
}

// Equal reports whether both shapes have the same dimensions.
func (s Shape) Equal(other Shape) bool { return slices.Equal(s, other) }

// Clone returns a copy that does not alias s.
func (s Shape) Clone() Shape { return append(Shape(make([]int, 0, len(s))), s...) }

// Int64s returns the dimensions as int64, the form ONNX stores them in.
func (s Shape) Int64s() []int64 {
	dims := make([]int64, len(s))
	for i, d := range s {
		dims[i] = int64(d)
	}
	return dims
}

// ShapeFromInt64s converts ONNX dimensions back into a Shape.
func ShapeFromInt64s(dims []int64) Shape {
	s := make(Shape, len(dims))
	for i, d := range dims {
		s[i] = int(d)
	}
	return s
}

// String formats the shape as "(1, 3, 224, 224)".
func (s Shape) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, d := range s {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Itoa(d))
	}
	b.WriteByte(')')
	return b.String()
}

// ComputeStrides returns contiguous row-major strides in elements.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	step := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = step
		step *= s[i]
	}
	return strides
}

// BroadcastShapes aligns a and b from the right and returns the NumPy
// broadcast of the two, and whether either operand must be expanded. Each
// aligned pair must match or contain a 1; a missing dimension counts as 1.
//
//	(3, 1) + (3, 5) -> (3, 5), true
//	(3, 5) + (3, 5) -> (3, 5), false
//	(3, 4) + (3, 5) -> error
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	rank := max(len(a), len(b))
	out := make(Shape, rank)
	expand := len(a) != len(b)
	dim := func(s Shape, i int) int {
		if j := len(s) - rank + i; j >= 0 {
			return s[j]
		}
		return 1
	}
	for i := range rank {
		x, y := dim(a, i), dim(b, i)
		switch {
		case x == y:
			out[i] = x
		case x == 1:
			out[i], expand = y, true
		case y == 1:
			out[i], expand = x, true
		default:
			return nil, false, fmt.Errorf("cannot broadcast %v with %v: dimension %d is %d vs %d", a, b, i, x, y)
		}
	}
	return out, expand, nil
}
