package program

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Binding slots: inputs take 0..n-1, the output n, the uniform block n+1.

// OutputBinding returns the binding slot of the output.
func (p *Program) OutputBinding() int {
	return len(p.Inputs)
}

// UniformBinding returns the binding slot of the uniform block.
func (p *Program) UniformBinding() int {
	return len(p.Inputs) + 1
}

// uniformSlots is the number of vec4<i32> a uniform occupies.
func uniformSlots(u Uniform) int {
	return max(1, (len(u.Values)+3)/4)
}

// PackUniforms lays the uniforms out as the WGSL Uniforms struct expects: each field is an
// array<vec4<i32>, n>, little-endian, zero padded.
func (p *Program) PackUniforms() []byte {
	size := 0
	for _, u := range p.Uniforms {
		size += uniformSlots(u) * 16
	}
	buf := make([]byte, size)
	off := 0
	for _, u := range p.Uniforms {
		for i, v := range u.Values {
			binary.LittleEndian.PutUint32(buf[off+i*4:], uint32(v)) //nolint:gosec // G115: bit pattern of an int32
		}
		off += uniformSlots(u) * 16
	}
	return buf
}

// UniformAt returns the WGSL expression for element i of a uniform.
func UniformAt(name string, i int) string {
	return fmt.Sprintf("uniforms.%s[%d][%d]", name, i/4, i%4)
}

// UniformVec4 returns the first four elements of a uniform as a vec4<i32> expression.
func UniformVec4(name string) string {
	return fmt.Sprintf("uniforms.%s[0]", name)
}

// UniformVec2 returns the first two elements of a uniform as a vec2<i32> expression.
func UniformVec2(name string) string {
	return fmt.Sprintf("uniforms.%s[0].xy", name)
}

const wgslHelpers = `
fn coordsInBounds2(coord: vec2<i32>, shape: vec2<i32>) -> bool {
    return all(coord >= vec2<i32>(0)) && all(coord < shape);
}

fn coordsInBounds4(coord: vec4<i32>, shape: vec4<i32>) -> bool {
    return all(coord >= vec4<i32>(0)) && all(coord < shape);
}

fn getFlatIndex4(coord: vec4<i32>, shape: vec4<i32>) -> i32 {
    return dot(coord, vec4<i32>(shape.y * shape.z * shape.w, shape.z * shape.w, shape.w, 1));
}

var<private> gridSize: vec3<i32>;

fn flatGlobalIndex(globalId: vec3<i32>) -> i32 {
    let sx = gridSize.x * WorkgroupSizeX;
    let sy = gridSize.y * WorkgroupSizeY;
    return (globalId.z * sy + globalId.y) * sx + globalId.x;
}
`

// emit renders the bindings, uniform block, shared helpers and entry point around the
// kernel's own source.
func emit(p *Program) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "// %s\n", p.ShaderKey)

	for i, in := range p.Inputs {
		fmt.Fprintf(&sb, "@group(0) @binding(%d) var<storage, read> %s: array<f32>;\n", i, in.Name)
	}
	fmt.Fprintf(&sb, "@group(0) @binding(%d) var<storage, read_write> %s: array<f32>;\n",
		p.OutputBinding(), OutputName)

	sb.WriteString("\nstruct Uniforms {\n")
	for _, u := range p.Uniforms {
		fmt.Fprintf(&sb, "    %s: array<vec4<i32>, %d>,\n", u.Name, uniformSlots(u))
	}
	sb.WriteString("}\n")
	fmt.Fprintf(&sb, "@group(0) @binding(%d) var<uniform> uniforms: Uniforms;\n", p.UniformBinding())

	fmt.Fprintf(&sb, "\nconst WorkgroupSizeX: i32 = %d;\nconst WorkgroupSizeY: i32 = %d;\nconst WorkgroupSizeZ: i32 = %d;\n",
		p.Workgroup[0], p.Workgroup[1], p.Workgroup[2])
	sb.WriteString(wgslHelpers)

	sb.WriteString(p.Kernel.Source(p))

	fmt.Fprintf(&sb, `
@compute @workgroup_size(%d, %d, %d)
fn main(@builtin(global_invocation_id) globalId: vec3<u32>,
        @builtin(local_invocation_id) localId: vec3<u32>,
        @builtin(workgroup_id) workgroupId: vec3<u32>,
        @builtin(num_workgroups) numWorkgroups: vec3<u32>) {
    gridSize = vec3<i32>(numWorkgroups);
    kernelMain(vec3<i32>(globalId), vec3<i32>(localId), vec3<i32>(workgroupId));
}
`, p.Workgroup[0], p.Workgroup[1], p.Workgroup[2])
	return sb.String()
}
