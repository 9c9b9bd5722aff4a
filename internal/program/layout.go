package program

import (
	"fmt"

	"github.com/born-ml/kernels/internal/tensor"
	"github.com/pkg/errors"
)

// DispatchLayout assigns every output axis to one of the three grid dimensions.
// Axes listed together in one dimension are merged by multiplying their extents.
type DispatchLayout struct {
	X []int
	Y []int
	Z []int
}

// FlatDispatchLayout puts every axis of a rank-n output on the x dimension.
func FlatDispatchLayout(rank int) DispatchLayout {
	x := make([]int, rank)
	for i := range x {
		x[i] = i
	}
	return DispatchLayout{X: x}
}

// Dims returns the axis groups in x, y, z order.
func (l DispatchLayout) Dims() [3][]int {
	return [3][]int{l.X, l.Y, l.Z}
}

// Validate checks that every axis of a rank-n output is mapped exactly once.
func (l DispatchLayout) Validate(rank int) error {
	seen := make([]bool, rank)
	for _, dim := range l.Dims() {
		for _, ax := range dim {
			if ax < 0 || ax >= rank {
				return errors.Errorf("program: layout axis %d out of range for rank %d", ax, rank)
			}
			if seen[ax] {
				return errors.Errorf("program: layout maps axis %d twice", ax)
			}
			seen[ax] = true
		}
	}
	for ax, ok := range seen {
		if !ok {
			return errors.Errorf("program: layout does not map axis %d", ax)
		}
	}
	return nil
}

// Extents returns the merged output extent covered by each grid dimension.
// An empty dimension has extent 1.
func (l DispatchLayout) Extents(outShape tensor.Shape) [3]int {
	var ext [3]int
	for i, dim := range l.Dims() {
		ext[i] = 1
		for _, ax := range dim {
			ext[i] *= outShape[ax]
		}
	}
	return ext
}

// String renders the layout as "x=[3] y=[1 2] z=[0]".
func (l DispatchLayout) String() string {
	return fmt.Sprintf("x=%v y=%v z=%v", l.X, l.Y, l.Z)
}

// WorkgroupSize is the shape of one tile of invocations.
type WorkgroupSize [3]int

// Validate checks that every extent is positive.
func (w WorkgroupSize) Validate() error {
	for i, v := range w {
		if v <= 0 {
			return errors.Errorf("program: workgroup size %v has non-positive extent at %d", w, i)
		}
	}
	return nil
}

// Invocations returns the number of invocations in one workgroup.
func (w WorkgroupSize) Invocations() int {
	return w[0] * w[1] * w[2]
}

// ComputeDispatch returns the number of workgroups per grid dimension: the ceiling of each
// merged extent divided by the workgroup extent. The grid covers the whole output and may
// overshoot it, so kernels bounds-check their writes.
func ComputeDispatch(layout DispatchLayout, outShape tensor.Shape, wg WorkgroupSize) [3]int {
	ext := layout.Extents(outShape)
	var dispatch [3]int
	for i := range dispatch {
		dispatch[i] = (ext[i] + wg[i] - 1) / wg[i]
	}
	return dispatch
}

// MaxWorkgroupsPerDimension is the WebGPU default limit on workgroups per grid dimension.
const MaxWorkgroupsPerDimension = 65535

// IsFlat reports whether every axis is on the x dimension.
func (l DispatchLayout) IsFlat() bool {
	return len(l.Y) == 0 && len(l.Z) == 0
}

// FoldDispatch redistributes the workgroups of d so no dimension exceeds limit: x is filled
// first, then y, then z. The folded grid holds at least as many workgroups as d, so flat
// kernels index it with Workgroup.FlatGlobal and bounds-check the result.
func FoldDispatch(d [3]int, limit int) [3]int {
	n := d[0] * d[1] * d[2]
	if n == 0 || (d[0] <= limit && d[1] <= limit && d[2] <= limit) {
		return d
	}
	x := min(n, limit)
	y := (n + x - 1) / x
	z := 1
	if y > limit {
		z = (y + limit - 1) / limit
		y = limit
	}
	return [3]int{x, y, z}
}

// ComputeWorkgroupSizeForConv2d picks a 2-D workgroup from the output extents on x and y.
// A dimension with four or fewer elements gets a narrow side so invocations are not wasted.
func ComputeWorkgroupSizeForConv2d(layout DispatchLayout, outShape tensor.Shape) WorkgroupSize {
	ext := layout.Extents(outShape)
	switch {
	case ext[0] <= 4:
		return WorkgroupSize{4, 16, 1}
	case ext[1] <= 4:
		return WorkgroupSize{16, 4, 1}
	default:
		return WorkgroupSize{16, 16, 1}
	}
}
