// Package cpu implements the host backend: native and generic transpose kernels, and a
// grid executor that runs device programs on goroutines.
package cpu

import (
	"context"

	"github.com/born-ml/kernels/internal/depthwise"
	"github.com/born-ml/kernels/internal/parallel"
	"github.com/born-ml/kernels/internal/program"
	"github.com/born-ml/kernels/internal/tensor"
	"github.com/born-ml/kernels/internal/transpose"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Config controls the CPU backend.
type Config struct {
	Parallel parallel.Config // Element loops of the transpose kernels.

	// MaxConcurrentWorkgroups bounds the goroutines of the grid executor. <= 0 is unbounded.
	MaxConcurrentWorkgroups int

	// Addressing is the depthwise addressing mode used by DepthwiseConv2D.
	Addressing depthwise.Addressing
}

// DefaultConfig returns the parallel defaults, a grid bounded by the worker count and
// masked-load depthwise addressing.
func DefaultConfig() Config {
	p := parallel.DefaultConfig()
	return Config{
		Parallel:                p,
		MaxConcurrentWorkgroups: max(p.NumWorkers, 1),
		Addressing:              depthwise.MaskedLoad,
	}
}

// CPUBackend implements tensor.Backend on host memory.
type CPUBackend struct {
	cfg        Config
	store      *tensor.Store
	transposer *transpose.Transposer
	grid       *Grid
}

var _ tensor.Backend = (*CPUBackend)(nil)

// New creates a CPU backend with DefaultConfig and a fresh store.
func New() *CPUBackend {
	return NewWithConfig(DefaultConfig(), tensor.NewStore())
}

// NewWithConfig creates a CPU backend allocating from store.
func NewWithConfig(cfg Config, store *tensor.Store) *CPUBackend {
	return &CPUBackend{
		cfg:        cfg,
		store:      store,
		transposer: transpose.New(store, cfg.Parallel),
		grid:       NewGrid(cfg.MaxConcurrentWorkgroups),
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Store returns the buffer allocator.
func (cpu *CPUBackend) Store() *tensor.Store {
	return cpu.store
}

// Grid returns the executor used for programs.
func (cpu *CPUBackend) Grid() *Grid {
	return cpu.grid
}

// Transpose permutes x with the native kernel (reduced rank <= 3), the generic kernel,
// or by aliasing x when the permutation moves no data.
func (cpu *CPUBackend) Transpose(x *tensor.View, perm []int) (*tensor.View, error) {
	return cpu.transposer.Transpose(x, perm)
}

// TransposeProgram permutes a float32 x by executing the device transpose program on the
// host grid. It never aliases.
func (cpu *CPUBackend) TransposeProgram(ctx context.Context, x *tensor.View, perm []int) (*tensor.View, error) {
	p, err := transpose.NewProgram(x.Shape(), perm)
	if err != nil {
		return nil, err
	}
	return cpu.RunProgram(ctx, p, x)
}

// DepthwiseConv2D convolves x [N,H,W,C] with filter [FH,FW,C,M] using the configured
// addressing mode.
func (cpu *CPUBackend) DepthwiseConv2D(x, filter *tensor.View, params tensor.Conv2DParams) (*tensor.View, error) {
	return cpu.DepthwiseConv2DWith(context.Background(), x, filter, params, cpu.cfg.Addressing)
}

// DepthwiseConv2DWith is DepthwiseConv2D with an explicit addressing mode.
func (cpu *CPUBackend) DepthwiseConv2DWith(ctx context.Context, x, filter *tensor.View,
	params tensor.Conv2DParams, addressing depthwise.Addressing,
) (*tensor.View, error) {
	info, err := depthwise.ComputeConv2DInfo(x.Shape(), filter.Shape(), params)
	if err != nil {
		return nil, err
	}
	p, err := depthwise.NewProgram(info, depthwise.Options{Addressing: addressing})
	if err != nil {
		return nil, err
	}
	return cpu.RunProgram(ctx, p, x, filter)
}

// RunProgram allocates the output of p, executes p over inputs on the grid and waits for
// completion. Inputs must be float32 and match the program's bindings.
func (cpu *CPUBackend) RunProgram(ctx context.Context, p *program.Program, inputs ...*tensor.View) (*tensor.View, error) {
	if len(inputs) != len(p.Inputs) {
		return nil, errors.Wrapf(tensor.ErrIncompatibleOperands,
			"cpu: program %s expects %d inputs, got %d", p.Name, len(p.Inputs), len(inputs))
	}
	tensors := make([]program.Tensor, len(inputs))
	for i, in := range inputs {
		if in.DType() != tensor.Float32 {
			return nil, errors.Wrapf(tensor.ErrUnsupportedDataType,
				"cpu: program %s input %s is %s", p.Name, p.Inputs[i].Name, in.DType())
		}
		if !in.Shape().Equal(p.Inputs[i].Shape) {
			return nil, errors.Wrapf(tensor.ErrIncompatibleOperands,
				"cpu: program %s input %s has shape %v, want %v", p.Name, p.Inputs[i].Name, in.Shape(), p.Inputs[i].Shape)
		}
		tensors[i] = program.NewTensor(in.Shape(), in.AsFloat32())
	}

	out, err := cpu.store.MakeOutput(p.OutputShape, tensor.Float32)
	if err != nil {
		return nil, err
	}
	klog.V(2).Infof("cpu: run %s", p)
	if err := cpu.grid.Run(ctx, p, tensors, program.NewTensor(out.Shape(), out.AsFloat32())); err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}
