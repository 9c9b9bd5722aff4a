package tensor

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Shape represents the dimensions of a tensor.
type Shape []int

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return len(s)
}

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that no dimension is negative.
// Zero-sized dimensions are allowed and describe empty tensors.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim < 0 {
			return errors.Wrapf(ErrInvalidShape, "dimension %d is %d", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// IndexToLoc decodes a row-major linear index into coordinates, most-significant axis first.
// loc must have len(s) entries.
func (s Shape) IndexToLoc(index int, strides []int, loc []int) {
	for dim := 0; dim < len(s); dim++ {
		loc[dim] = index / strides[dim]
		index %= strides[dim]
	}
}

// LocToIndex encodes coordinates into a row-major linear index.
func (s Shape) LocToIndex(loc []int, strides []int) int {
	idx := 0
	for dim := range loc {
		idx += loc[dim] * strides[dim]
	}
	return idx
}

// CheckInt32 reports ErrInvalidShape when a dimension or the element count does not fit
// the int32 extents used at kernel boundaries.
func (s Shape) CheckInt32() error {
	if err := s.Validate(); err != nil {
		return err
	}
	n := 1
	for i, dim := range s {
		if dim > math.MaxInt32 {
			return errors.Wrapf(ErrInvalidShape, "dimension %d is %d, above the int32 range", i, dim)
		}
		if dim != 0 && n > math.MaxInt32/dim {
			return errors.Wrapf(ErrInvalidShape, "shape %v has more than %d elements", s, math.MaxInt32)
		}
		n *= dim
	}
	return nil
}

// Int32s converts the shape to the fixed-width form used at kernel boundaries.
// Callers check the range with CheckInt32 first.
func (s Shape) Int32s() []int32 {
	out := make([]int32, len(s))
	for i, dim := range s {
		out[i] = int32(dim) //nolint:gosec // G115: dimensions are validated non-negative
	}
	return out
}

// String renders the shape as "[2,3,4]".
func (s Shape) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, dim := range s {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(dim))
	}
	sb.WriteByte(']')
	return sb.String()
}

// ParseShape parses a comma-separated list such as "1,5,5,3".
func ParseShape(text string) (Shape, error) {
	text = strings.Trim(strings.TrimSpace(text), "[]")
	if text == "" {
		return Shape{}, nil
	}
	parts := strings.Split(text, ",")
	shape := make(Shape, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidShape, "element %d %q", i, p)
		}
		shape[i] = v
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	return shape, nil
}
