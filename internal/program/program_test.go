package program

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/born-ml/kernels/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copyKernel writes its flat global index into the output; enough to exercise the model.
type copyKernel struct{}

func (copyKernel) Source(_ *Program) string {
	return `
fn kernelMain(globalId: vec3<i32>, localId: vec3<i32>, workgroupId: vec3<i32>) {
    result[globalId.x] = x[globalId.x];
}
`
}

func (copyKernel) Run(wg *Workgroup) {
	x := wg.Input(0)
	wg.ForEach(func(inv Invocation) {
		if i := inv.Global[0]; i < len(wg.Output.Data) {
			wg.Output.Data[i] = x.Data[i]
		}
	})
}

func TestComputeDispatch(t *testing.T) {
	tests := []struct {
		name   string
		layout DispatchLayout
		shape  tensor.Shape
		wg     WorkgroupSize
		want   [3]int
	}{
		{"flat", FlatDispatchLayout(3), tensor.Shape{2, 3, 4}, WorkgroupSize{64, 1, 1}, [3]int{1, 1, 1}},
		{"flat overshoot", FlatDispatchLayout(1), tensor.Shape{129}, WorkgroupSize{64, 1, 1}, [3]int{3, 1, 1}},
		{"conv", DispatchLayout{X: []int{3}, Y: []int{1, 2}, Z: []int{0}}, tensor.Shape{2, 3, 3, 6},
			WorkgroupSize{4, 4, 1}, [3]int{2, 3, 2}},
		{"exact", DispatchLayout{X: []int{0}, Y: []int{1}}, tensor.Shape{32, 16}, WorkgroupSize{16, 16, 1}, [3]int{2, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeDispatch(tt.layout, tt.shape, tt.wg))
		})
	}
}

func TestFoldDispatch(t *testing.T) {
	const limit = MaxWorkgroupsPerDimension
	tests := []struct {
		name string
		in   [3]int
		want [3]int
	}{
		{"within limit", [3]int{limit, 3, 2}, [3]int{limit, 3, 2}},
		{"empty", [3]int{0, 1, 1}, [3]int{0, 1, 1}},
		{"spill to y", [3]int{limit + 1, 1, 1}, [3]int{limit, 2, 1}},
		{"spill to z", [3]int{limit*limit + 1, 1, 1}, [3]int{limit, limit, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FoldDispatch(tt.in, limit)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got[0]*got[1]*got[2], tt.in[0]*tt.in[1]*tt.in[2])
		})
	}
}

func TestBuilder_FoldsLargeFlatDispatch(t *testing.T) {
	n := MaxWorkgroupsPerDimension*64 + 1
	p, err := NewBuilder("big").
		Output(tensor.Shape{n}).
		Layout(FlatDispatchLayout(1)).
		Workgroup(WorkgroupSize{64, 1, 1}).
		Kernel(copyKernel{}).
		Build()
	require.NoError(t, err)
	assert.Equal(t, [3]int{MaxWorkgroupsPerDimension, 2, 1}, p.Dispatch)
	assert.NoError(t, p.CheckDispatchLimit(MaxWorkgroupsPerDimension))

	// Non-flat layouts keep their axis mapping, so they are rejected instead of folded.
	p, err = NewBuilder("wide").
		Output(tensor.Shape{2, n}).
		Layout(DispatchLayout{X: []int{1}, Y: []int{0}}).
		Workgroup(WorkgroupSize{32, 1, 1}).
		Kernel(copyKernel{}).
		Build()
	require.NoError(t, err)
	assert.Equal(t, [3]int{(n + 31) / 32, 2, 1}, p.Dispatch)
	assert.ErrorIs(t, p.CheckDispatchLimit(MaxWorkgroupsPerDimension), tensor.ErrInvalidShape)
}

func TestWorkgroup_FlatGlobal(t *testing.T) {
	wg := &Workgroup{ID: [3]int{1, 1, 1}, Size: WorkgroupSize{4, 1, 1}, Grid: [3]int{3, 2, 2}}
	var got []int
	wg.ForEach(func(inv Invocation) {
		got = append(got, wg.FlatGlobal(inv))
	})
	// Workgroup (1,1,1) of a 3x2x2 grid is the 1*6+1*3+1 = 10th, 4 invocations each.
	assert.Equal(t, []int{40, 41, 42, 43}, got)

	wg.Grid = [3]int{}
	wg.ForEach(func(inv Invocation) {
		assert.Equal(t, inv.Global[0], wg.FlatGlobal(inv))
	})
}

func TestComputeWorkgroupSizeForConv2d(t *testing.T) {
	layout := DispatchLayout{X: []int{3}, Y: []int{1, 2}, Z: []int{0}}
	assert.Equal(t, WorkgroupSize{4, 16, 1}, ComputeWorkgroupSizeForConv2d(layout, tensor.Shape{1, 8, 8, 4}))
	assert.Equal(t, WorkgroupSize{16, 4, 1}, ComputeWorkgroupSizeForConv2d(layout, tensor.Shape{1, 2, 2, 32}))
	assert.Equal(t, WorkgroupSize{16, 16, 1}, ComputeWorkgroupSizeForConv2d(layout, tensor.Shape{1, 8, 8, 32}))
}

func TestDispatchLayout_Validate(t *testing.T) {
	assert.NoError(t, DispatchLayout{X: []int{3}, Y: []int{1, 2}, Z: []int{0}}.Validate(4))
	assert.Error(t, DispatchLayout{X: []int{3}, Y: []int{1}, Z: []int{0}}.Validate(4))
	assert.Error(t, DispatchLayout{X: []int{0, 0}}.Validate(1))
	assert.Error(t, DispatchLayout{X: []int{1}}.Validate(1))
	assert.Equal(t, "x=[3] y=[1 2] z=[0]", DispatchLayout{X: []int{3}, Y: []int{1, 2}, Z: []int{0}}.String())
}

func buildCopy(t *testing.T, shape tensor.Shape) *Program {
	t.Helper()
	p, err := NewBuilder("copy").
		Input("x", shape).
		Output(shape).
		Uniform("size", shape.NumElements()).
		Uniform("pad", 1, 2, 3, 4, 5).
		Layout(FlatDispatchLayout(len(shape))).
		Workgroup(WorkgroupSize{8, 1, 1}).
		Key("f32").
		Kernel(copyKernel{}).
		Build()
	require.NoError(t, err)
	return p
}

func TestBuilder(t *testing.T) {
	p := buildCopy(t, tensor.Shape{3, 5})
	assert.Equal(t, "copy_f32_wg8x1x1", p.ShaderKey)
	assert.Equal(t, [3]int{2, 1, 1}, p.Dispatch)

	names := make([]string, len(p.Uniforms))
	for i, u := range p.Uniforms {
		names[i] = u.Name
	}
	assert.Equal(t, []string{"xShape", "outShape", "size", "pad"}, names)
	shape, ok := p.Uniform("xShape")
	require.True(t, ok)
	assert.Equal(t, []int32{3, 5}, shape)
	_, ok = p.Uniform("missing")
	assert.False(t, ok)
	assert.Contains(t, p.String(), "copy_f32_wg8x1x1")
}

func TestBuilder_Errors(t *testing.T) {
	_, err := NewBuilder("none").Output(tensor.Shape{2}).Layout(FlatDispatchLayout(1)).
		Workgroup(WorkgroupSize{1, 1, 1}).Build()
	assert.Error(t, err, "missing kernel")

	_, err = NewBuilder("wg").Output(tensor.Shape{2}).Layout(FlatDispatchLayout(1)).
		Workgroup(WorkgroupSize{0, 1, 1}).Kernel(copyKernel{}).Build()
	assert.Error(t, err, "zero workgroup")

	_, err = NewBuilder("layout").Output(tensor.Shape{2, 2}).Layout(FlatDispatchLayout(1)).
		Workgroup(WorkgroupSize{1, 1, 1}).Kernel(copyKernel{}).Build()
	assert.Error(t, err, "unmapped axis")

	_, err = NewBuilder("shape").Output(tensor.Shape{-1}).Layout(FlatDispatchLayout(1)).
		Workgroup(WorkgroupSize{1, 1, 1}).Kernel(copyKernel{}).Build()
	assert.ErrorIs(t, err, tensor.ErrInvalidShape)

	_, err = NewBuilder("fail").Fail(tensor.ErrNotImplemented).Build()
	assert.ErrorIs(t, err, tensor.ErrNotImplemented)
}

func TestBuilder_RejectsValuesAboveInt32(t *testing.T) {
	big := int(int64(math.MaxInt32) + 1)
	build := func(b *Builder) error {
		_, err := b.Layout(FlatDispatchLayout(1)).Workgroup(WorkgroupSize{64, 1, 1}).Kernel(copyKernel{}).Build()
		return err
	}

	err := build(NewBuilder("uniform").Output(tensor.Shape{4}).Uniform("size", 4, big))
	assert.ErrorContains(t, err, "uniform size[1]")
	err = build(NewBuilder("negative").Output(tensor.Shape{4}).Uniform("pad", math.MinInt32-1))
	assert.Error(t, err)
	assert.NoError(t, build(NewBuilder("edge").Output(tensor.Shape{4}).Uniform("pad", math.MinInt32, math.MaxInt32)))

	err = build(NewBuilder("output").Output(tensor.Shape{big}))
	assert.ErrorIs(t, err, tensor.ErrInvalidShape)
	err = build(NewBuilder("input").Input("x", tensor.Shape{2, 1 << 30}).Output(tensor.Shape{4}))
	assert.ErrorIs(t, err, tensor.ErrInvalidShape)
}

func TestPackUniforms(t *testing.T) {
	p := buildCopy(t, tensor.Shape{3, 5})
	buf := p.PackUniforms()
	// xShape, outShape and size take one vec4 each; pad has 5 values and takes two.
	require.Len(t, buf, 5*16)
	word := func(slot, lane int) int32 {
		return int32(binary.LittleEndian.Uint32(buf[slot*16+lane*4:])) //nolint:gosec // test
	}
	assert.Equal(t, int32(3), word(0, 0))
	assert.Equal(t, int32(5), word(1, 1))
	assert.Equal(t, int32(15), word(2, 0))
	assert.Equal(t, int32(0), word(2, 1))
	assert.Equal(t, int32(1), word(3, 0))
	assert.Equal(t, int32(4), word(3, 3))
	assert.Equal(t, int32(5), word(4, 0))
}

func TestSource(t *testing.T) {
	p := buildCopy(t, tensor.Shape{3, 5})
	src := p.Source()
	for _, want := range []string{
		"// copy_f32_wg8x1x1",
		"@group(0) @binding(0) var<storage, read> x: array<f32>;",
		"@group(0) @binding(1) var<storage, read_write> result: array<f32>;",
		"pad: array<vec4<i32>, 2>,",
		"@group(0) @binding(2) var<uniform> uniforms: Uniforms;",
		"@compute @workgroup_size(8, 1, 1)",
		"fn coordsInBounds4",
		"kernelMain(vec3<i32>(globalId)",
		"fn flatGlobalIndex(globalId: vec3<i32>) -> i32",
		"gridSize = vec3<i32>(numWorkgroups);",
	} {
		assert.Contains(t, src, want)
	}
	assert.Equal(t, 1, strings.Count(src, "fn kernelMain("))
	assert.Equal(t, "uniforms.pad[1][0]", UniformAt("pad", 4))
}

func TestWorkgroup_PhasesAreBarriers(t *testing.T) {
	wg := &Workgroup{ID: [3]int{1, 0, 0}, Size: WorkgroupSize{4, 2, 1}}
	shared := wg.Shared(8)
	seen := make([]float32, 8)
	wg.Phases(
		func(inv Invocation) {
			shared[inv.Local[1]*4+inv.Local[0]] = float32(inv.Global[0])
		},
		func(inv Invocation) {
			// Every slot written in the first phase is visible here, including ones
			// written by invocations that run later in iteration order.
			i := inv.Local[1]*4 + inv.Local[0]
			seen[i] = shared[7-i]
		},
	)
	assert.Equal(t, []float32{7, 6, 5, 4, 7, 6, 5, 4}, seen)
}

func TestTensor_BoundsChecked(t *testing.T) {
	x := NewTensor(tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
	assert.Equal(t, float32(4), x.Read(1, 1))
	assert.Equal(t, float32(0), x.Read(-1, 0))
	assert.Equal(t, float32(0), x.Read(0, 2))
	x.Write(9, 2, 0)
	x.Write(8, 0, 1)
	assert.Equal(t, []float32{1, 8, 3, 4}, x.Data)
}

func TestManifest_RoundTrip(t *testing.T) {
	p := buildCopy(t, tensor.Shape{3, 5})
	data, err := p.MarshalManifest()
	require.NoError(t, err)
	again, err := p.MarshalManifest()
	require.NoError(t, err)
	assert.Equal(t, data, again, "manifest encoding is deterministic")

	m, err := UnmarshalManifest(data)
	require.NoError(t, err)
	fields := m.AsMap()
	assert.Equal(t, "copy_f32_wg8x1x1", fields["shaderKey"])
	assert.Equal(t, []any{2.0, 1.0, 1.0}, fields["dispatch"])
	assert.Equal(t, p.Source(), fields["source"])
	uniforms := fields["uniforms"].(map[string]any)
	assert.Equal(t, []any{15.0}, uniforms["size"])

	_, err = UnmarshalManifest([]byte{0xff, 0xff})
	assert.Error(t, err)
}
