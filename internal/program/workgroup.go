package program

import (
	"github.com/born-ml/kernels/internal/tensor"
)

// Tensor is a float32 buffer with the shape a kernel addresses it by.
type Tensor struct {
	Shape   tensor.Shape
	Strides []int
	Data    []float32
}

// NewTensor wraps data with row-major strides for shape.
func NewTensor(shape tensor.Shape, data []float32) Tensor {
	return Tensor{Shape: shape, Strides: shape.ComputeStrides(), Data: data}
}

// InBounds reports whether every coordinate lies inside the shape.
func (t Tensor) InBounds(coord ...int) bool {
	if len(coord) != len(t.Shape) {
		return false
	}
	for i, c := range coord {
		if c < 0 || c >= t.Shape[i] {
			return false
		}
	}
	return true
}

// FlatIndex returns the row-major offset of coord.
func (t Tensor) FlatIndex(coord ...int) int {
	idx := 0
	for i, c := range coord {
		idx += c * t.Strides[i]
	}
	return idx
}

// Read returns the element at coord, or 0 when coord falls outside the shape.
// This is the implicit zero padding of every program input.
func (t Tensor) Read(coord ...int) float32 {
	if !t.InBounds(coord...) {
		return 0
	}
	return t.Data[t.FlatIndex(coord...)]
}

// Write stores value at coord and discards writes outside the shape.
func (t Tensor) Write(value float32, coord ...int) {
	if !t.InBounds(coord...) {
		return
	}
	t.Data[t.FlatIndex(coord...)] = value
}

// Invocation identifies one work-item.
type Invocation struct {
	Local  [3]int
	Global [3]int
}

// Workgroup is one tile of invocations executing on the host.
//
// ForEach runs a phase: every invocation of the workgroup completes the phase before
// ForEach returns. Consecutive ForEach calls are therefore separated by a barrier, and
// memory from Shared is visible to every invocation of the next phase.
type Workgroup struct {
	ID     [3]int
	Size   WorkgroupSize
	Grid   [3]int // workgroups per dimension of the dispatch
	Inputs []Tensor
	Output Tensor
}

// FlatGlobal returns the row-major index of inv in the whole grid, x fastest. Without a
// Grid it is the global x coordinate.
func (wg *Workgroup) FlatGlobal(inv Invocation) int {
	if wg.Grid[0] == 0 {
		return inv.Global[0]
	}
	sx := wg.Grid[0] * wg.Size[0]
	sy := wg.Grid[1] * wg.Size[1]
	return (inv.Global[2]*sy+inv.Global[1])*sx + inv.Global[0]
}

// ForEach runs f for every invocation of the workgroup.
func (wg *Workgroup) ForEach(f func(inv Invocation)) {
	var inv Invocation
	for z := 0; z < wg.Size[2]; z++ {
		for y := 0; y < wg.Size[1]; y++ {
			for x := 0; x < wg.Size[0]; x++ {
				inv.Local = [3]int{x, y, z}
				inv.Global = [3]int{
					wg.ID[0]*wg.Size[0] + x,
					wg.ID[1]*wg.Size[1] + y,
					wg.ID[2]*wg.Size[2] + z,
				}
				f(inv)
			}
		}
	}
}

// Shared allocates workgroup-local memory of n elements.
func (wg *Workgroup) Shared(n int) []float32 {
	return make([]float32, n)
}

// Input returns the input bound at position i.
func (wg *Workgroup) Input(i int) Tensor {
	return wg.Inputs[i]
}

// Phases runs each phase with ForEach in order, with a barrier between consecutive phases.
func (wg *Workgroup) Phases(phases ...func(inv Invocation)) {
	for _, phase := range phases {
		wg.ForEach(phase)
	}
}
