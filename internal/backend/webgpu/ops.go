//go:build windows

package webgpu

import (
	"context"

	"github.com/born-ml/kernels/internal/depthwise"
	"github.com/born-ml/kernels/internal/tensor"
	"github.com/born-ml/kernels/internal/transpose"
	"k8s.io/klog/v2"
)

// Transpose permutes the axes of x on the GPU. No-op permutations alias x, and dtypes
// other than float32 are transposed on the host.
func (b *Backend) Transpose(x *tensor.View, perm []int) (*tensor.View, error) {
	plan, err := transpose.NewPlan(x.Shape(), perm)
	if err != nil {
		return nil, err
	}
	if plan.Path == transpose.PathAlias {
		return x.Alias(plan.OutShape), nil
	}
	if x.DType() != tensor.Float32 {
		klog.V(4).Infof("webgpu: transpose of %s runs on host", x.DType())
		return b.host.Transpose(x, perm)
	}
	return b.TransposeProgram(context.Background(), x, perm)
}

// TransposeProgram runs the device transpose program for a float32 x. It always writes a
// new output, even for no-op permutations.
func (b *Backend) TransposeProgram(ctx context.Context, x *tensor.View, perm []int) (*tensor.View, error) {
	p, err := transpose.NewProgram(x.Shape(), perm)
	if err != nil {
		return nil, err
	}
	return b.RunProgram(ctx, p, x)
}

// DepthwiseConv2D convolves x [N,H,W,C] with filter [FH,FW,C,M] using b.Addressing.
func (b *Backend) DepthwiseConv2D(x, filter *tensor.View, params tensor.Conv2DParams) (*tensor.View, error) {
	return b.DepthwiseConv2DWith(context.Background(), x, filter, params, b.Addressing)
}

// DepthwiseConv2DWith is DepthwiseConv2D with an explicit addressing mode.
func (b *Backend) DepthwiseConv2DWith(ctx context.Context, x, filter *tensor.View,
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
	return b.RunProgram(ctx, p, x, filter)
}
