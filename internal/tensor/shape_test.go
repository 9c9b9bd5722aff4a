package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestShape_NumElements(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1},
		{Shape{5}, 5},
		{Shape{2, 3, 4}, 24},
		{Shape{3, 0, 2}, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.shape.NumElements(), tt.shape.String())
	}
}

func TestShape_Validate(t *testing.T) {
	assert.NoError(t, Shape{2, 0, 3}.Validate())
	assert.ErrorIs(t, Shape{2, -1}.Validate(), ErrInvalidShape)
}

func TestShape_Strides(t *testing.T) {
	assert.Equal(t, []int{12, 4, 1}, Shape{2, 3, 4}.ComputeStrides())
	assert.Empty(t, Shape{}.ComputeStrides())
}

func TestShape_IndexRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		shape := Shape(rapid.SliceOfN(rapid.IntRange(1, 5), 1, 5).Draw(t, "shape"))
		index := rapid.IntRange(0, shape.NumElements()-1).Draw(t, "index")
		strides := shape.ComputeStrides()
		loc := make([]int, len(shape))
		shape.IndexToLoc(index, strides, loc)
		for i, c := range loc {
			if c < 0 || c >= shape[i] {
				t.Fatalf("coordinate %d out of range: %v in %v", i, loc, shape)
			}
		}
		if got := shape.LocToIndex(loc, strides); got != index {
			t.Fatalf("LocToIndex(%v) = %d, want %d", loc, got, index)
		}
	})
}

func TestShape_CloneAndEqual(t *testing.T) {
	s := Shape{1, 2, 3}
	c := s.Clone()
	assert.True(t, s.Equal(c))
	c[0] = 9
	assert.False(t, s.Equal(c))
	assert.False(t, s.Equal(Shape{1, 2}))
	assert.Equal(t, []int32{1, 2, 3}, s.Int32s())
}

func TestParseShape(t *testing.T) {
	tests := []struct {
		in      string
		want    Shape
		wantErr bool
	}{
		{"1,5,5,3", Shape{1, 5, 5, 3}, false},
		{" [2, 3] ", Shape{2, 3}, false},
		{"[2,3]", Shape{2, 3}, false},
		{"", Shape{}, false},
		{"2,a", nil, true},
		{"2,-3", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseShape(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidShape)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.String(), got.String())
		})
	}
	assert.Equal(t, "[1,5,5,3]", Shape{1, 5, 5, 3}.String())
}

func TestDataType(t *testing.T) {
	assert.Equal(t, 4, Float32.Size())
	assert.Equal(t, 8, Int64.Size())
	assert.Equal(t, 1, Bool.Size())
	assert.Equal(t, "uint8", Uint8.String())
	assert.Equal(t, Float64, DataTypeOf[float64]())
	assert.Equal(t, Bool, DataTypeOf[bool]())
	assert.Panics(t, func() { DataType(42).Size() })
}

func TestConv2DParams(t *testing.T) {
	p := DefaultConv2DParams()
	assert.Equal(t, [2]int{1, 1}, p.Strides)
	assert.Equal(t, PadValid, p.Pad.Mode)
	assert.Equal(t, "NHWC", p.DataFormat.String())
	assert.Equal(t, "NCHW", ChannelsFirst.String())
	assert.Equal(t, Padding{Mode: PadExplicit, Top: 2, Bottom: 2, Left: 2, Right: 2}, ExplicitPadding(2))
}

func TestShape_CheckInt32(t *testing.T) {
	big := int64(math.MaxInt32) + 1
	assert.NoError(t, Shape{}.CheckInt32())
	assert.ErrorIs(t, Shape{0, int(big)}.CheckInt32(), ErrInvalidShape, "empty shapes still bound each dimension")
	assert.NoError(t, Shape{0, 1 << 20, 1 << 20}.CheckInt32())
	assert.NoError(t, Shape{math.MaxInt32}.CheckInt32())
	assert.ErrorIs(t, Shape{int(big)}.CheckInt32(), ErrInvalidShape)
	assert.ErrorIs(t, Shape{1 << 16, 1 << 15}.CheckInt32(), ErrInvalidShape)
	assert.ErrorIs(t, Shape{-1}.CheckInt32(), ErrInvalidShape)
}
