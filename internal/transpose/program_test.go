package transpose

import (
	"testing"

	"github.com/born-ml/kernels/internal/program"
	"github.com/born-ml/kernels/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProgram_SelectsShared(t *testing.T) {
	p, err := NewProgram(tensor.Shape{100, 40}, []int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, "transposeShared", p.Name)
	assert.Equal(t, tensor.Shape{40, 100}, p.OutputShape)
	assert.Equal(t, program.WorkgroupSize{16, 16, 1}, p.Workgroup)
	assert.Equal(t, [3]int{3, 7, 1}, p.Dispatch)
	assert.Contains(t, p.Source(), "workgroupBarrier()")
	assert.Contains(t, p.Source(), "var<workgroup> tile")
}

func TestNewProgram_Generic(t *testing.T) {
	p, err := NewProgram(tensor.Shape{2, 3, 4}, []int{2, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, "transpose", p.Name)
	assert.Equal(t, tensor.Shape{4, 2, 3}, p.OutputShape)
	assert.Equal(t, program.WorkgroupSize{64, 1, 1}, p.Workgroup)
	assert.Equal(t, [3]int{1, 1, 1}, p.Dispatch)
	assert.Equal(t, "transpose_3_p201_wg64x1x1", p.ShaderKey)

	strides, ok := p.Uniform("xStrides")
	require.True(t, ok)
	assert.Equal(t, []int32{12, 4, 1}, strides)

	// 2-D identity is not a swap and stays on the generic program.
	p, err = NewProgram(tensor.Shape{2, 3}, []int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, "transpose", p.Name)
}

func TestNewProgram_KeysDifferByPerm(t *testing.T) {
	a, err := NewProgram(tensor.Shape{2, 3, 4}, []int{2, 0, 1})
	require.NoError(t, err)
	b, err := NewProgram(tensor.Shape{2, 3, 4}, []int{1, 2, 0})
	require.NoError(t, err)
	assert.NotEqual(t, a.ShaderKey, b.ShaderKey)
}

func TestNewProgram_Errors(t *testing.T) {
	_, err := NewProgram(tensor.Shape{2, 3}, []int{1})
	require.ErrorIs(t, err, tensor.ErrInvalidPermutation)
	_, err = NewSharedProgram(tensor.Shape{2, 3, 4})
	require.ErrorIs(t, err, tensor.ErrInvalidShape)
}
