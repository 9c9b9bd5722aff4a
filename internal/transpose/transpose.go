package transpose

import (
	"github.com/born-ml/kernels/internal/parallel"
	"github.com/born-ml/kernels/internal/tensor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Path names the execution route chosen for a transpose.
type Path int

// Transpose execution paths.
const (
	PathAlias   Path = iota // no-op permutation, output aliases the input buffer
	PathNative              // reduced rank <= MaxNativeRank, native kernel via the ABI
	PathGeneric             // strided fallback for higher reduced ranks
)

// String returns the path name used in logs.
func (p Path) String() string {
	switch p {
	case PathAlias:
		return "alias"
	case PathNative:
		return "native"
	case PathGeneric:
		return "generic"
	default:
		return "unknown"
	}
}

// Plan is the normalized form of a transpose request.
type Plan struct {
	InShape      tensor.Shape
	OutShape     tensor.Shape
	ReducedShape tensor.Shape
	ReducedPerm  []int
	Path         Path
}

// NewPlan validates perm against shape, reduces both and picks the execution path.
// Shapes whose extents do not fit int32 are rejected, since every kernel path takes them
// in that width.
func NewPlan(shape tensor.Shape, perm []int) (*Plan, error) {
	if err := shape.CheckInt32(); err != nil {
		return nil, errors.Wrap(err, "transpose")
	}
	if err := ValidatePerm(len(shape), perm); err != nil {
		return nil, err
	}
	reducedShape, reducedPerm := RemoveOneSizeDims(shape, perm)
	plan := &Plan{
		InShape:      shape.Clone(),
		OutShape:     OutShape(shape, perm),
		ReducedShape: reducedShape,
		ReducedPerm:  reducedPerm,
	}
	switch {
	case IsIdentity(reducedPerm):
		plan.Path = PathAlias
	case len(reducedShape) <= MaxNativeRank:
		plan.Path = PathNative
	default:
		plan.Path = PathGeneric
	}
	return plan, nil
}

// Transposer runs transposes on host memory owned by a store.
type Transposer struct {
	store  *tensor.Store
	native *NativeKernel
	cfg    parallel.Config
}

// New creates a Transposer allocating outputs from store.
func New(store *tensor.Store, cfg parallel.Config) *Transposer {
	return &Transposer{
		store:  store,
		native: NewNativeKernel(store, cfg),
		cfg:    cfg,
	}
}

// Transpose permutes the axes of x. A permutation that is the identity once size-1 axes
// are dropped returns an alias of x with the permuted shape and copies nothing. Any other
// permutation requires x to belong to the transposer's store.
func (t *Transposer) Transpose(x *tensor.View, perm []int) (*tensor.View, error) {
	plan, err := NewPlan(x.Shape(), perm)
	if err != nil {
		return nil, err
	}
	klog.V(4).Infof("transpose %v perm %v -> %v via %s (reduced %v %v)",
		plan.InShape, perm, plan.OutShape, plan.Path, plan.ReducedShape, plan.ReducedPerm)

	if plan.Path == PathAlias {
		return x.Alias(plan.OutShape), nil
	}
	if !t.store.Owns(x) {
		return nil, errors.Wrapf(tensor.ErrIncompatibleOperands,
			"transpose: view %d does not belong to this store", x.DataID())
	}

	out, err := t.store.MakeOutput(plan.OutShape, x.DType())
	if err != nil {
		return nil, err
	}

	// Both sides are addressed through their reduced shapes; size-1 axes do not move data.
	reducedOut := OutShape(plan.ReducedShape, plan.ReducedPerm)
	switch plan.Path {
	case PathNative:
		xr := x.Alias(plan.ReducedShape)
		outr := out.Alias(reducedOut)
		call := NewCall(xr, outr, plan.ReducedPerm)
		if err := call.Validate(); err != nil {
			xr.Release()
			outr.Release()
			out.Release()
			return nil, err
		}
		call.Marshal().Invoke(t.native)
		xr.Release()
		outr.Release()
	default:
		genericView(out, x, plan.ReducedShape, plan.ReducedPerm, t.cfg)
	}
	return out, nil
}
