// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/kernels/internal/tensor"
)

// Type aliases for public API

// DType is a constraint for tensor data types.
// Supported types: float32, float64, int32, int64, uint8, bool.
type DType = tensor.DType

// DataType represents the underlying data type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
	Bool    DataType = tensor.Bool
)

// Shape represents tensor dimensions.
type Shape = tensor.Shape

// View is a shaped, typed window onto a reference-counted buffer.
//
// Example:
//
//	x, _ := tensor.FromSlice(store, tensor.Shape{2, 3}, data)
//	alias := x.Alias(tensor.Shape{3, 2}) // shares x's buffer
//	defer alias.Release()
type View = tensor.View

// Store allocates buffers and resolves buffer identifiers.
type Store = tensor.Store

// DataID identifies a buffer within its store.
type DataID = tensor.DataID

// Convolution parameters.
type (
	Conv2DParams = tensor.Conv2DParams
	Padding      = tensor.Padding
	PadMode      = tensor.PadMode
	DataFormat   = tensor.DataFormat
)

// Padding modes.
const (
	PadValid    PadMode = tensor.PadValid
	PadSame     PadMode = tensor.PadSame
	PadExplicit PadMode = tensor.PadExplicit
)

// Data formats.
const (
	ChannelsLast  DataFormat = tensor.ChannelsLast
	ChannelsFirst DataFormat = tensor.ChannelsFirst
)

// Errors returned by the kernels. Match them with errors.Is.
var (
	ErrNotImplemented       = tensor.ErrNotImplemented
	ErrInvalidShape         = tensor.ErrInvalidShape
	ErrInvalidPermutation   = tensor.ErrInvalidPermutation
	ErrUnsupportedDataType  = tensor.ErrUnsupportedDataType
	ErrIncompatibleOperands = tensor.ErrIncompatibleOperands
)

// NewStore creates an empty buffer store.
func NewStore() *Store {
	return tensor.NewStore()
}

// FromSlice allocates a view of shape in s and copies data into it.
func FromSlice[T DType](s *Store, shape Shape, data []T) (*View, error) {
	return tensor.FromSlice(s, shape, data)
}

// Elements returns a typed, zero-copy slice over v's data.
// Panics if T does not match v's dtype.
func Elements[T DType](v *View) []T {
	return tensor.Elements[T](v)
}

// ParseShape parses a comma-separated shape such as "1,5,5,3".
func ParseShape(text string) (Shape, error) {
	return tensor.ParseShape(text)
}

// ExplicitPadding returns a symmetric explicit padding of p on every side.
func ExplicitPadding(p int) Padding {
	return tensor.ExplicitPadding(p)
}

// DefaultConv2DParams returns stride 1, dilation 1, valid padding, channels-last.
func DefaultConv2DParams() Conv2DParams {
	return tensor.DefaultConv2DParams()
}
