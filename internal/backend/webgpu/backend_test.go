//go:build windows

package webgpu

import (
	"context"
	"testing"

	"github.com/born-ml/kernels/internal/depthwise"
	"github.com/born-ml/kernels/internal/parallel"
	"github.com/born-ml/kernels/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	backend, err := New()
	if err != nil {
		t.Logf("WebGPU not available: %v", err)
		t.Skip("WebGPU not available on this system")
	}
	t.Cleanup(backend.Release)
	return backend
}

func iota32(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i%32) * 0.25
	}
	return out
}

func TestIsAvailable(t *testing.T) {
	t.Logf("WebGPU available: %v", IsAvailable())
}

func TestNew(t *testing.T) {
	backend := newTestBackend(t)
	assert.NotEmpty(t, backend.Name())
	assert.NotNil(t, backend.Store())
	if info := backend.AdapterInfo(); info != nil {
		t.Logf("Using GPU: %s (%s)", info.Device, info.Vendor)
	}
}

func TestTranspose(t *testing.T) {
	backend := newTestBackend(t)
	store := backend.Store()

	tests := []struct {
		shape tensor.Shape
		perm  []int
	}{
		{tensor.Shape{37, 53}, []int{1, 0}},
		{tensor.Shape{2, 3, 4}, []int{2, 0, 1}},
		{tensor.Shape{3, 1, 4, 2, 5}, []int{4, 2, 0, 3, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.shape.String(), func(t *testing.T) {
			x, err := tensor.FromSlice(store, tt.shape, iota32(tt.shape.NumElements()))
			require.NoError(t, err)
			want, err := backend.host.Transpose(x, tt.perm)
			require.NoError(t, err)
			got, err := backend.Transpose(x, tt.perm)
			require.NoError(t, err)
			assert.Equal(t, want.Shape(), got.Shape())
			assert.Equal(t, want.AsFloat32(), got.AsFloat32())
		})
	}
	assert.Positive(t, backend.CachedPipelines())
}

func TestTranspose_AliasAndHostFallback(t *testing.T) {
	backend := newTestBackend(t)
	store := backend.Store()

	x, err := tensor.FromSlice(store, tensor.Shape{1, 4}, iota32(4))
	require.NoError(t, err)
	alias, err := backend.Transpose(x, []int{1, 0})
	require.NoError(t, err)
	assert.True(t, alias.SharesData(x))

	copied, err := backend.TransposeProgram(context.Background(), x, []int{1, 0})
	require.NoError(t, err)
	assert.False(t, copied.SharesData(x))
	assert.Equal(t, x.AsFloat32(), copied.AsFloat32())

	ints, err := tensor.FromSlice(store, tensor.Shape{2, 3}, []int32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	out, err := backend.Transpose(ints, []int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 4, 2, 5, 3, 6}, out.AsInt32())
}

func TestDepthwiseConv2D(t *testing.T) {
	backend := newTestBackend(t)
	store := backend.Store()
	params := tensor.Conv2DParams{Strides: [2]int{2, 2}, Pad: tensor.Padding{Mode: tensor.PadSame}}
	inShape, filterShape := tensor.Shape{2, 7, 6, 3}, tensor.Shape{3, 3, 3, 2}

	xData, wData := iota32(inShape.NumElements()), iota32(filterShape.NumElements())
	x, err := tensor.FromSlice(store, inShape, xData)
	require.NoError(t, err)
	w, err := tensor.FromSlice(store, filterShape, wData)
	require.NoError(t, err)

	info, err := depthwise.ComputeConv2DInfo(inShape, filterShape, params)
	require.NoError(t, err)
	want := depthwise.Reference(info, xData, wData, parallel.DefaultConfig())

	for _, a := range depthwise.Addressings {
		got, err := backend.DepthwiseConv2DWith(context.Background(), x, w, params, a)
		require.NoError(t, err, a)
		assert.Equal(t, info.OutShape, got.Shape())
		assert.InDeltaSlice(t, want, got.AsFloat32(), 1e-2, a)
	}
}
