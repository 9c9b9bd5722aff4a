// Package program describes tensor operations as programs for a 3-D grid of workgroups.
//
// A Program is a typed description: which output axes map to which grid dimension, the
// workgroup shape, the dispatch size, the uniforms and a Kernel. The Kernel renders
// itself as WGSL for device backends and runs itself on the host one workgroup at a
// time, so the addressing logic is testable without a GPU or text formatting.
package program

import (
	"fmt"
	"math"
	"strings"

	"github.com/born-ml/kernels/internal/tensor"
	"github.com/pkg/errors"
)

// OutputName is the binding name of every program's output.
const OutputName = "result"

// Kernel is the body of a program.
type Kernel interface {
	// Source returns the WGSL declarations of the kernel, including a
	// fn kernelMain(globalId: vec3<i32>, localId: vec3<i32>, workgroupId: vec3<i32>).
	Source(p *Program) string

	// Run executes every invocation of one workgroup on the host.
	Run(wg *Workgroup)
}

// Binding is a named read-only input of a program.
type Binding struct {
	Name  string
	Shape tensor.Shape
}

// Uniform is a named integer vector passed to the kernel at dispatch time.
type Uniform struct {
	Name   string
	Values []int32
}

// Program is a compiled-once, cacheable description of one tensor operation.
type Program struct {
	Name        string
	ShaderKey   string
	Inputs      []Binding
	OutputShape tensor.Shape
	Uniforms    []Uniform
	Layout      DispatchLayout
	Workgroup   WorkgroupSize
	Dispatch    [3]int
	Kernel      Kernel
}

// Source renders the complete WGSL module for the program.
func (p *Program) Source() string {
	return emit(p)
}

// Uniform returns the values of the named uniform.
func (p *Program) Uniform(name string) ([]int32, bool) {
	for _, u := range p.Uniforms {
		if u.Name == name {
			return u.Values, true
		}
	}
	return nil, false
}

// String summarizes the program for logs.
func (p *Program) String() string {
	return fmt.Sprintf("%s{key=%s out=%v layout=%s wg=%v dispatch=%v}",
		p.Name, p.ShaderKey, p.OutputShape, p.Layout, p.Workgroup, p.Dispatch)
}

// Builder assembles a Program. Shapes of inputs and output become uniforms named
// "<name>Shape" and "outShape"; the workgroup size is always part of the shader key
// because it is baked into the generated code.
type Builder struct {
	p       Program
	keyPart []string
	err     error
}

// NewBuilder starts a program with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{p: Program{Name: name}}
}

// Input declares a read-only input.
func (b *Builder) Input(name string, shape tensor.Shape) *Builder {
	b.p.Inputs = append(b.p.Inputs, Binding{Name: name, Shape: shape.Clone()})
	return b
}

// Output sets the output shape.
func (b *Builder) Output(shape tensor.Shape) *Builder {
	b.p.OutputShape = shape.Clone()
	return b
}

// Uniform adds a named integer uniform. Values outside the int32 range fail the build.
func (b *Builder) Uniform(name string, values ...int) *Builder {
	v := make([]int32, len(values))
	for i, x := range values {
		if x < math.MinInt32 || x > math.MaxInt32 {
			b.Fail(errors.Errorf("program %s: uniform %s[%d] = %d does not fit int32", b.p.Name, name, i, x))
			continue
		}
		v[i] = int32(x)
	}
	b.p.Uniforms = append(b.p.Uniforms, Uniform{Name: name, Values: v})
	return b
}

// Layout sets the dispatch layout.
func (b *Builder) Layout(l DispatchLayout) *Builder {
	b.p.Layout = l
	return b
}

// Workgroup sets the workgroup size.
func (b *Builder) Workgroup(wg WorkgroupSize) *Builder {
	b.p.Workgroup = wg
	return b
}

// Key appends code-changing constants to the shader key.
func (b *Builder) Key(parts ...any) *Builder {
	for _, part := range parts {
		b.keyPart = append(b.keyPart, fmt.Sprint(part))
	}
	return b
}

// Kernel sets the program body.
func (b *Builder) Kernel(k Kernel) *Builder {
	b.p.Kernel = k
	return b
}

// Fail records a construction error returned by Build.
func (b *Builder) Fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Build validates the description and computes the dispatch size. A flat layout whose
// dispatch exceeds MaxWorkgroupsPerDimension is folded onto y and z.
func (b *Builder) Build() (*Program, error) {
	if b.err != nil {
		return nil, b.err
	}
	p := b.p
	if p.Kernel == nil {
		return nil, errors.Errorf("program %s: no kernel", p.Name)
	}
	if err := p.OutputShape.CheckInt32(); err != nil {
		return nil, errors.Wrapf(err, "program %s output", p.Name)
	}
	for _, in := range p.Inputs {
		if err := in.Shape.CheckInt32(); err != nil {
			return nil, errors.Wrapf(err, "program %s input %s", p.Name, in.Name)
		}
	}
	if err := p.Workgroup.Validate(); err != nil {
		return nil, errors.Wrapf(err, "program %s", p.Name)
	}
	if err := p.Layout.Validate(len(p.OutputShape)); err != nil {
		return nil, errors.Wrapf(err, "program %s", p.Name)
	}

	shapes := make([]Uniform, 0, len(p.Inputs)+1)
	for _, in := range p.Inputs {
		shapes = append(shapes, Uniform{Name: in.Name + "Shape", Values: in.Shape.Int32s()})
	}
	shapes = append(shapes, Uniform{Name: "outShape", Values: p.OutputShape.Int32s()})
	p.Uniforms = append(shapes, p.Uniforms...)

	key := append([]string{p.Name}, b.keyPart...)
	key = append(key, fmt.Sprintf("wg%dx%dx%d", p.Workgroup[0], p.Workgroup[1], p.Workgroup[2]))
	p.ShaderKey = strings.Join(key, "_")
	p.Dispatch = ComputeDispatch(p.Layout, p.OutputShape, p.Workgroup)
	if p.Layout.IsFlat() {
		p.Dispatch = FoldDispatch(p.Dispatch, MaxWorkgroupsPerDimension)
	}
	return &p, nil
}

// CheckDispatchLimit reports an error when a grid dimension has more than limit workgroups.
func (p *Program) CheckDispatchLimit(limit int) error {
	for i, n := range p.Dispatch {
		if n > limit {
			return errors.Wrapf(tensor.ErrInvalidShape, "program %s: dispatch %v has %d workgroups on dimension %d, limit is %d",
				p.Name, p.Dispatch, n, i, limit)
		}
	}
	return nil
}
