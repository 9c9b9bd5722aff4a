package depthwise

import (
	"fmt"
	"strings"

	"github.com/born-ml/kernels/internal/program"
	"github.com/born-ml/kernels/internal/tensor"
	"github.com/pkg/errors"
)

// Addressing selects how the reduction axis of the matmul is addressed.
type Addressing int

// Addressing modes. MaskedLoad is the default: it is correct for every workgroup shape.
const (
	MaskedLoad Addressing = iota
	Folded
	Batched
)

// Addressings lists every mode, default first.
var Addressings = []Addressing{MaskedLoad, Folded, Batched}

func (a Addressing) String() string {
	switch a {
	case MaskedLoad:
		return "masked"
	case Folded:
		return "folded"
	case Batched:
		return "batched"
	default:
		return fmt.Sprintf("Addressing(%d)", int(a))
	}
}

// ParseAddressing parses the name returned by String.
func ParseAddressing(s string) (Addressing, error) {
	for _, a := range Addressings {
		if a.String() == s {
			return a, nil
		}
	}
	return 0, errors.Errorf("depthwise: unknown addressing %q", s)
}

// Options tune program construction.
type Options struct {
	Addressing Addressing

	// Workgroup overrides the per-mode default workgroup size.
	Workgroup *program.WorkgroupSize
}

// Layout maps the channel axis to x, both spatial axes to y and the batch to z.
var Layout = program.DispatchLayout{X: []int{3}, Y: []int{1, 2}, Z: []int{0}}

// DefaultWorkgroup returns the workgroup size a mode uses when Options.Workgroup is nil.
// Batched narrows x so that every column of a workgroup reads the same input channel.
func DefaultWorkgroup(a Addressing, info *Conv2DInfo) program.WorkgroupSize {
	switch a {
	case Batched:
		x := 4
		for info.ChannelMultiplier%x != 0 {
			x /= 2
		}
		return program.WorkgroupSize{x, 4, 1}
	case Folded:
		return program.WorkgroupSize{4, 16, 1}
	default:
		return program.ComputeWorkgroupSizeForConv2d(Layout, info.OutShape)
	}
}

// NewProgram builds the tiled-matmul program for info.
func NewProgram(info *Conv2DInfo, opts Options) (*program.Program, error) {
	if info.DataFormat != tensor.ChannelsLast {
		return nil, errors.Wrapf(tensor.ErrNotImplemented,
			"depthwise: %s data format is not implemented", info.DataFormat)
	}
	mul, err := ChannelMultiplier(info.InChannels, info.OutChannels)
	if err != nil {
		return nil, err
	}
	wg := DefaultWorkgroup(opts.Addressing, info)
	if opts.Workgroup != nil {
		wg = *opts.Workgroup
	}
	if opts.Addressing == Batched && wg[0] > 0 && mul%wg[0] != 0 {
		return nil, errors.Errorf("depthwise: batched addressing needs workgroup x %d to divide channel multiplier %d",
			wg[0], mul)
	}
	switch opts.Addressing {
	case MaskedLoad, Folded, Batched:
	default:
		return nil, errors.Errorf("depthwise: unknown addressing %d", int(opts.Addressing))
	}

	return program.NewBuilder("depthwiseMM").
		Input("x", info.InShape).
		Input("W", info.FilterShape).
		Output(info.OutShape).
		Uniform("filterDims", info.FilterHeight, info.FilterWidth).
		Uniform("pad", info.PadTop, info.PadLeft).
		Uniform("stride", info.StrideHeight, info.StrideWidth).
		Uniform("dilation", info.DilationHeight, info.DilationWidth).
		Layout(Layout).
		Workgroup(wg).
		Key(opts.Addressing, fmt.Sprintf("mul%d", mul)).
		Kernel(&kernel{addressing: opts.Addressing, info: *info}).
		Build()
}

// kernel is the shared tiling skeleton; addressing only changes readA, loadB and useK.
type kernel struct {
	addressing Addressing
	info       Conv2DInfo
}

func (k *kernel) dimInner() int {
	d := k.info.FilterHeight * k.info.FilterWidth
	if k.addressing != Batched {
		d *= k.info.InChannels
	}
	return d
}

// filterPos splits a reduction index into filter row, filter column and input channel.
func (k *kernel) filterPos(col int) (kh, kw, ci int) {
	fw := k.info.FilterWidth
	if k.addressing == Batched {
		return col / fw, col % fw, -1
	}
	inC := k.info.InChannels
	return col / (fw * inC), (col / inC) % fw, col % inC
}

// readA returns A[row, col]: the input element under filter tap col for output position row.
// ci is the channel of the reading column and is used by Batched only.
func (k *kernel) readA(x program.Tensor, batch, row, col, ci int) float32 {
	if col >= k.dimInner() {
		return 0
	}
	info := &k.info
	outRow, outCol := row/info.OutWidth, row%info.OutWidth
	kh, kw, c := k.filterPos(col)
	if k.addressing == Batched {
		c = ci
	}
	return x.Read(batch,
		outRow*info.StrideHeight+kh*info.DilationHeight-info.PadTop,
		outCol*info.StrideWidth+kw*info.DilationWidth-info.PadLeft,
		c)
}

// loadB returns the B-tile entry for reduction index row and output channel col.
func (k *kernel) loadB(w program.Tensor, row, col int) float32 {
	info := &k.info
	if row >= k.dimInner() || col >= info.OutChannels {
		return 0
	}
	if k.addressing == Batched {
		return w.Data[row*info.OutChannels+col]
	}
	kh, kw, ci := k.filterPos(row)
	if ci != col/info.ChannelMultiplier {
		return 0
	}
	return w.Read(kh, kw, ci, col%info.ChannelMultiplier)
}

// useK reports whether reduction index kIndex contributes to output channel col.
func (k *kernel) useK(kIndex, col int) bool {
	if k.addressing != MaskedLoad {
		return true
	}
	return kIndex%k.info.InChannels == col/k.info.ChannelMultiplier
}

func (k *kernel) Run(wg *program.Workgroup) {
	x, w, out := wg.Input(0), wg.Input(1), wg.Output
	info := &k.info
	tx, ty := wg.Size[0], wg.Size[1]
	dimAOuter := info.OutHeight * info.OutWidth
	dimInner := k.dimInner()
	numTiles := (dimInner-1)/tx + 1

	aSub := wg.Shared(ty * tx)
	bSub := wg.Shared(tx * tx)
	acc := make([]float32, wg.Size.Invocations())
	local := func(inv program.Invocation) int {
		return (inv.Local[2]*ty+inv.Local[1])*tx + inv.Local[0]
	}

	for t := 0; t < numTiles; t++ {
		wg.Phases(
			func(inv program.Invocation) {
				lx, ly := inv.Local[0], inv.Local[1]
				gRow, gCol, batch := inv.Global[1], inv.Global[0], inv.Global[2]
				aSub[ly*tx+lx] = k.readA(x, batch, gRow, t*tx+lx, gCol/info.ChannelMultiplier)
				for r := ly; r < tx; r += ty {
					bSub[r*tx+lx] = k.loadB(w, t*tx+r, gCol)
				}
			},
			func(inv program.Invocation) {
				lx, ly := inv.Local[0], inv.Local[1]
				sum := acc[local(inv)]
				for kk := 0; kk < tx; kk++ {
					if k.useK(t*tx+kk, inv.Global[0]) {
						sum += aSub[ly*tx+kk] * bSub[kk*tx+lx]
					}
				}
				acc[local(inv)] = sum
			},
		)
	}

	wg.ForEach(func(inv program.Invocation) {
		gRow, gCol, batch := inv.Global[1], inv.Global[0], inv.Global[2]
		if gCol < info.OutChannels && gRow < dimAOuter {
			out.Write(acc[local(inv)], batch, gRow/info.OutWidth, gRow%info.OutWidth, gCol)
		}
	})
}

func (k *kernel) Source(_ *program.Program) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `
const TileInner: i32 = WorkgroupSizeX;
const TileRows: i32 = WorkgroupSizeY;
const ChannelMul: i32 = %d;

var<workgroup> mm_Asub: array<array<f32, TileInner>, TileRows>;
var<workgroup> mm_Bsub: array<array<f32, TileInner>, TileInner>;
`, k.info.ChannelMultiplier)

	dimInner := "filterDims.x * filterDims.y"
	if k.addressing != Batched {
		dimInner += " * xShape.w"
	}
	fmt.Fprintf(&sb, `
fn mm_dimInner() -> i32 {
    let filterDims = %s;
    let xShape = %s;
    return %s;
}
`, program.UniformVec2("filterDims"), program.UniformVec4("xShape"), dimInner)

	filterPos := `    let WRow = col / (filterDims.y * xShape.w);
    let WCol = (col / xShape.w) % filterDims.y;
    let Ci = col % xShape.w;`
	channel := "Ci"
	if k.addressing == Batched {
		filterPos = `    let WRow = col / filterDims.y;
    let WCol = col % filterDims.y;`
		channel = "ci"
	}
	fmt.Fprintf(&sb, `
fn mm_readA(batch: i32, row: i32, col: i32, ci: i32) -> f32 {
    if (col >= mm_dimInner()) {
        return 0.0;
    }
    let filterDims = %s;
    let xShape = %s;
    let outShape = %s;
    let outRow = row / outShape.z;
    let outCol = row %% outShape.z;
%s
    let coord = vec4<i32>(
        batch,
        outRow * %s + WRow * %s - %s,
        outCol * %s + WCol * %s - %s,
        %s);
    if (coordsInBounds4(coord, xShape)) {
        return x[getFlatIndex4(coord, xShape)];
    }
    return 0.0;
}
`,
		program.UniformVec2("filterDims"), program.UniformVec4("xShape"), program.UniformVec4("outShape"),
		filterPos,
		program.UniformAt("stride", 0), program.UniformAt("dilation", 0), program.UniformAt("pad", 0),
		program.UniformAt("stride", 1), program.UniformAt("dilation", 1), program.UniformAt("pad", 1),
		channel)

	if k.addressing == Batched {
		sb.WriteString(`
fn mm_loadB(row: i32, col: i32, ci: i32) -> f32 {
    let dimBOuter = ` + program.UniformAt("outShape", 3) + `;
    if (coordsInBounds2(vec2<i32>(row, col), vec2<i32>(mm_dimInner(), dimBOuter))) {
        return W[row * dimBOuter + col];
    }
    return 0.0;
}
`)
	} else {
		sb.WriteString(`
fn mm_loadB(row: i32, col: i32, ci: i32) -> f32 {
    let filterDims = ` + program.UniformVec2("filterDims") + `;
    let xShape = ` + program.UniformVec4("xShape") + `;
    let wShape = ` + program.UniformVec4("WShape") + `;
    if (row >= mm_dimInner() || row % xShape.w != ci) {
        return 0.0;
    }
    let WRow = row / (filterDims.y * xShape.w);
    let WCol = (row / xShape.w) % filterDims.y;
    let coord = vec4<i32>(WRow, WCol, ci, col % ChannelMul);
    if (coordsInBounds4(coord, wShape)) {
        return W[getFlatIndex4(coord, wShape)];
    }
    return 0.0;
}
`)
	}

	useK := "true"
	if k.addressing == MaskedLoad {
		useK = "kIndex % " + program.UniformAt("xShape", 3) + " == ci"
	}
	fmt.Fprintf(&sb, `
fn mm_useK(kIndex: i32, ci: i32) -> bool {
    return %s;
}

fn mm_write(batch: i32, row: i32, col: i32, value: f32) {
    let outShape = %s;
    let coord = vec4<i32>(batch, row / outShape.z, row %% outShape.z, col);
    if (coordsInBounds4(coord, outShape)) {
        %s[getFlatIndex4(coord, outShape)] = value;
    }
}
`, useK, program.UniformVec4("outShape"), program.OutputName)

	sb.WriteString(`
fn kernelMain(globalId: vec3<i32>, localId: vec3<i32>, workgroupId: vec3<i32>) {
    let batch = globalId.z;
    let localRow = localId.y;
    let localCol = localId.x;
    let globalRow = globalId.y;
    let globalCol = globalId.x;
    let dimAOuter = ` + program.UniformAt("outShape", 1) + ` * ` + program.UniformAt("outShape", 2) + `;
    let dimBOuter = ` + program.UniformAt("outShape", 3) + `;
    let dimInner = mm_dimInner();
    let ci = globalCol / ChannelMul;

    var acc = 0.0;
    let numTiles = (dimInner - 1) / TileInner + 1;
    for (var t = 0; t < numTiles; t = t + 1) {
        mm_Asub[localRow][localCol] = mm_readA(batch, globalRow, t * TileInner + localCol, ci);
        for (var r = localRow; r < TileInner; r = r + TileRows) {
            mm_Bsub[r][localCol] = mm_loadB(t * TileInner + r, globalCol, ci);
        }
        workgroupBarrier();

        for (var k = 0; k < TileInner; k = k + 1) {
            if (mm_useK(t * TileInner + k, ci)) {
                acc = acc + mm_Asub[localRow][k] * mm_Bsub[k][localCol];
            }
        }
        workgroupBarrier();
    }

    if (globalCol < dimBOuter && globalRow < dimAOuter) {
        mm_write(batch, globalRow, globalCol, acc);
    }
}
`)
	return sb.String()
}
