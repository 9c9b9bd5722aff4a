package transpose

import (
	"encoding/binary"
	"testing"

	"github.com/born-ml/kernels/internal/parallel"
	"github.com/born-ml/kernels/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCall_Marshal(t *testing.T) {
	store := tensor.NewStore()
	x, err := tensor.FromSlice(store, tensor.Shape{2, 3}, iota32(6))
	require.NoError(t, err)
	out, err := store.MakeOutput(tensor.Shape{3, 2}, tensor.Float32)
	require.NoError(t, err)

	call := NewCall(x, out, []int{1, 0})
	require.NoError(t, call.Validate())
	args := call.Marshal()

	assert.Equal(t, int32(x.DataID()), args.XID)
	assert.Equal(t, int32(out.DataID()), args.OutID)
	assert.Equal(t, 2, args.XShapeLength)
	assert.Len(t, args.XShape, 2*4)
	assert.Len(t, args.Perm, 2*4)
	assert.Equal(t, uint32(3), binary.NativeEndian.Uint32(args.XShape[4:]))
	assert.Equal(t, uint32(0), binary.NativeEndian.Uint32(args.Perm[4:]))

	args.Invoke(NewNativeKernel(store, parallel.Sequential()))
	assert.Equal(t, []float32{0, 3, 1, 4, 2, 5}, tensor.Elements[float32](out))
}

func TestCall_Validate(t *testing.T) {
	tests := []struct {
		name string
		call Call
	}{
		{"length mismatch", Call{XShape: []int32{2, 3}, OutShape: []int32{3}, Perm: []int32{1, 0}}},
		{"rank too high", Call{XShape: []int32{2, 2, 2, 2}, OutShape: []int32{2, 2, 2, 2}, Perm: []int32{3, 2, 1, 0}}},
		{"bad perm", Call{XShape: []int32{2, 3}, OutShape: []int32{3, 2}, Perm: []int32{1, 1}}},
		{"wrong out shape", Call{XShape: []int32{2, 3}, OutShape: []int32{2, 3}, Perm: []int32{1, 0}}},
		{"wrapped extent", Call{XShape: []int32{2, -2147483648}, OutShape: []int32{-2147483648, 2}, Perm: []int32{1, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.call.Validate())
		})
	}
}

func TestNativeKernel_PanicsOnABIMismatch(t *testing.T) {
	store := tensor.NewStore()
	x, err := tensor.FromSlice(store, tensor.Shape{2, 3}, iota32(6))
	require.NoError(t, err)
	out, err := store.MakeOutput(tensor.Shape{3, 2}, tensor.Float32)
	require.NoError(t, err)
	k := NewNativeKernel(store, parallel.Sequential())
	good := NewCall(x, out, []int{1, 0}).Marshal()

	t.Run("byte count", func(t *testing.T) {
		args := good
		args.Perm = args.Perm[:6]
		assert.Panics(t, func() { args.Invoke(k) })
	})
	t.Run("declared length", func(t *testing.T) {
		args := good
		args.XShapeLength = 3
		assert.Panics(t, func() { args.Invoke(k) })
	})
	t.Run("unknown buffer", func(t *testing.T) {
		args := good
		args.OutID = 999
		assert.Panics(t, func() { args.Invoke(k) })
	})
	t.Run("dtype mismatch", func(t *testing.T) {
		i32, err := store.MakeOutput(tensor.Shape{3, 2}, tensor.Int32)
		require.NoError(t, err)
		args := good
		args.OutID = int32(i32.DataID())
		assert.Panics(t, func() { args.Invoke(k) })
	})
	t.Run("shape not permuted", func(t *testing.T) {
		args := NewCall(x, out, []int{1, 0})
		args.OutShape = []int32{2, 3}
		assert.Panics(t, func() { args.Marshal().Invoke(k) })
	})
}
