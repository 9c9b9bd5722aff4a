package transpose

import (
	"fmt"
	"strings"

	"github.com/born-ml/kernels/internal/program"
	"github.com/born-ml/kernels/internal/tensor"
	"github.com/pkg/errors"
)

// Workgroup sizes of the device programs.
var (
	genericWorkgroup = program.WorkgroupSize{64, 1, 1}
	sharedWorkgroup  = program.WorkgroupSize{16, 16, 1}
)

// NewProgram returns the device program for transposing a tensor of shape by perm.
// A pure 2-D axis swap gets the shared-tile program; everything else the generic
// coordinate-permutation program.
func NewProgram(shape tensor.Shape, perm []int) (*program.Program, error) {
	if err := ValidatePerm(len(shape), perm); err != nil {
		return nil, err
	}
	if len(shape) == 2 && perm[0] == 1 && perm[1] == 0 {
		return NewSharedProgram(shape)
	}
	return NewGenericProgram(shape, perm)
}

// NewGenericProgram builds the rank-agnostic program: one invocation per output element,
// reading the input element whose coordinates are the permuted output coordinates. Large
// outputs spill the flat grid onto y and z.
func NewGenericProgram(shape tensor.Shape, perm []int) (*program.Program, error) {
	if err := ValidatePerm(len(shape), perm); err != nil {
		return nil, err
	}
	outShape := OutShape(shape, perm)
	return program.NewBuilder("transpose").
		Input("x", shape).
		Output(outShape).
		Uniform("xStrides", shape.ComputeStrides()...).
		Uniform("outStrides", outShape.ComputeStrides()...).
		Uniform("size", outShape.NumElements()).
		Layout(program.FlatDispatchLayout(len(outShape))).
		Workgroup(genericWorkgroup).
		Key(len(shape), permKey(perm)).
		Kernel(&genericKernel{perm: append([]int(nil), perm...)}).
		Build()
}

// NewSharedProgram builds the 2-D transpose that stages a square tile in workgroup
// memory so both the read and the write side are contiguous.
func NewSharedProgram(shape tensor.Shape) (*program.Program, error) {
	if len(shape) != 2 {
		return nil, errors.Wrapf(tensor.ErrInvalidShape, "transpose: shared program needs a 2D tensor, got %v", shape)
	}
	return program.NewBuilder("transposeShared").
		Input("x", shape).
		Output(tensor.Shape{shape[1], shape[0]}).
		Layout(program.DispatchLayout{X: []int{0}, Y: []int{1}}).
		Workgroup(sharedWorkgroup).
		Kernel(&sharedKernel{tile: sharedWorkgroup[0]}).
		Build()
}

func permKey(perm []int) string {
	parts := make([]string, len(perm))
	for i, ax := range perm {
		parts[i] = fmt.Sprint(ax)
	}
	return "p" + strings.Join(parts, "")
}

type genericKernel struct {
	perm []int
}

func (k *genericKernel) Run(wg *program.Workgroup) {
	x := wg.Input(0)
	out := wg.Output
	size := out.Shape.NumElements()
	rank := len(out.Shape)

	outLoc := make([]int, rank)
	inLoc := make([]int, rank)
	wg.ForEach(func(inv program.Invocation) {
		index := wg.FlatGlobal(inv)
		if index >= size {
			return
		}
		out.Shape.IndexToLoc(index, out.Strides, outLoc)
		for i, ax := range k.perm {
			inLoc[ax] = outLoc[i]
		}
		out.Data[index] = x.Data[x.FlatIndex(inLoc...)]
	})
}

func (k *genericKernel) Source(_ *program.Program) string {
	var sb strings.Builder
	sb.WriteString(`
fn kernelMain(globalId: vec3<i32>, localId: vec3<i32>, workgroupId: vec3<i32>) {
    let index = flatGlobalIndex(globalId);
    if (index < 0 || index >= ` + program.UniformAt("size", 0) + `) {
        return;
    }
    var rem = index;
    var xIndex = 0;
`)
	for i, ax := range k.perm {
		fmt.Fprintf(&sb, "    let c%d = rem / %s;\n", i, program.UniformAt("outStrides", i))
		fmt.Fprintf(&sb, "    rem = rem - c%d * %s;\n", i, program.UniformAt("outStrides", i))
		fmt.Fprintf(&sb, "    xIndex = xIndex + c%d * %s;\n", i, program.UniformAt("xStrides", ax))
	}
	sb.WriteString(`    ` + program.OutputName + `[index] = x[xIndex];
}
`)
	return sb.String()
}

type sharedKernel struct {
	tile int
}

func (k *sharedKernel) Run(wg *program.Workgroup) {
	x := wg.Input(0)
	out := wg.Output
	t := k.tile
	width := out.Shape[0]  // input columns
	height := out.Shape[1] // input rows
	tile := wg.Shared(t * (t + 1))

	wg.Phases(
		func(inv program.Invocation) {
			col := wg.ID[0]*t + inv.Local[0]
			row := wg.ID[1]*t + inv.Local[1]
			if col < width && row < height {
				tile[inv.Local[1]*(t+1)+inv.Local[0]] = x.Data[row*width+col]
			}
		},
		func(inv program.Invocation) {
			col := wg.ID[1]*t + inv.Local[0]
			row := wg.ID[0]*t + inv.Local[1]
			if col < height && row < width {
				out.Data[row*height+col] = tile[inv.Local[0]*(t+1)+inv.Local[1]]
			}
		},
	)
}

func (k *sharedKernel) Source(_ *program.Program) string {
	return `
const TileSize: i32 = WorkgroupSizeX;
var<workgroup> tile: array<array<f32, TileSize + 1>, TileSize>;

fn kernelMain(globalId: vec3<i32>, localId: vec3<i32>, workgroupId: vec3<i32>) {
    let width = ` + program.UniformAt("outShape", 0) + `;
    let height = ` + program.UniformAt("outShape", 1) + `;

    var col = workgroupId.x * TileSize + localId.x;
    var row = workgroupId.y * TileSize + localId.y;
    if (col < width && row < height) {
        tile[localId.y][localId.x] = x[row * width + col];
    }

    workgroupBarrier();

    col = workgroupId.y * TileSize + localId.x;
    row = workgroupId.x * TileSize + localId.y;
    if (col < height && row < width) {
        ` + program.OutputName + `[row * height + col] = tile[localId.x][localId.y];
    }
}
`
}
