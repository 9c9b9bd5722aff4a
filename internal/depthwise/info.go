// Package depthwise generates depthwise 2-D convolution as a tiled matrix multiply.
//
// The output is viewed as C = A·B where rows of A are flattened output positions
// (oh, ow), columns of B are output channels c = ci*multiplier + m, and the reduction
// axis walks the filter window. Three addressing modes share one tiling skeleton and
// differ only in how the reduction axis relates to the input channel:
//
//   - Batched: the reduction axis is the filter window (fh*fw), the channel is fixed
//     per output column.
//   - Folded: the input channel is folded into the reduction axis (fh*fw*inC) and B
//     reads return 0 for mismatched channels.
//   - MaskedLoad: like Folded, but the channel test moves into the B-tile load and the
//     accumulation loop.
//
// Only channels-last (NHWC) tensors are supported.
package depthwise

import (
	"fmt"

	"github.com/born-ml/kernels/internal/tensor"
	"github.com/pkg/errors"
)

// ErrChannelMultiplier reports an output channel count that is not a positive integer
// multiple of the input channel count.
var ErrChannelMultiplier = errors.New("channel multiplier must be a positive integer")

// Conv2DInfo is a fully resolved depthwise convolution: extents, hyper-parameters and pads.
type Conv2DInfo struct {
	BatchSize int

	InHeight, InWidth, InChannels    int
	OutHeight, OutWidth, OutChannels int
	ChannelMultiplier                int

	FilterHeight, FilterWidth       int
	EffFilterHeight, EffFilterWidth int

	StrideHeight, StrideWidth     int
	DilationHeight, DilationWidth int

	PadTop, PadBottom, PadLeft, PadRight int

	InShape     tensor.Shape // [b, h, w, inC]
	FilterShape tensor.Shape // [fh, fw, inC, mul]
	OutShape    tensor.Shape // [b, oh, ow, inC*mul]
	DataFormat  tensor.DataFormat
}

// ChannelMultiplier returns outChannels / inChannels, or ErrChannelMultiplier when the
// ratio is not a positive integer.
func ChannelMultiplier(inChannels, outChannels int) (int, error) {
	if inChannels <= 0 || outChannels <= 0 || outChannels%inChannels != 0 {
		return 0, errors.Wrapf(ErrChannelMultiplier,
			"depthwise: %d output channels for %d input channels", outChannels, inChannels)
	}
	return outChannels / inChannels, nil
}

// ComputeConv2DInfo validates an input of shape [b, h, w, inC] and a filter of shape
// [fh, fw, inC, mul] and resolves the output shape and padding.
func ComputeConv2DInfo(inShape, filterShape tensor.Shape, params tensor.Conv2DParams) (*Conv2DInfo, error) {
	if params.DataFormat != tensor.ChannelsLast {
		return nil, errors.Wrapf(tensor.ErrNotImplemented,
			"depthwise: %s data format is not implemented", params.DataFormat)
	}
	if len(inShape) != 4 {
		return nil, errors.Wrapf(tensor.ErrInvalidShape,
			"depthwise: input must be 4D [N,H,W,C], got %v", inShape)
	}
	if len(filterShape) != 4 {
		return nil, errors.Wrapf(tensor.ErrInvalidShape,
			"depthwise: filter must be 4D [FH,FW,C,M], got %v", filterShape)
	}
	if err := inShape.Validate(); err != nil {
		return nil, errors.Wrap(err, "depthwise: input")
	}
	if err := filterShape.Validate(); err != nil {
		return nil, errors.Wrap(err, "depthwise: filter")
	}
	if filterShape[2] != inShape[3] {
		return nil, errors.Wrapf(ErrChannelMultiplier,
			"depthwise: filter has %d input channels, input has %d", filterShape[2], inShape[3])
	}

	info := &Conv2DInfo{
		BatchSize:      inShape[0],
		InHeight:       inShape[1],
		InWidth:        inShape[2],
		InChannels:     inShape[3],
		FilterHeight:   filterShape[0],
		FilterWidth:    filterShape[1],
		StrideHeight:   orOne(params.Strides[0]),
		StrideWidth:    orOne(params.Strides[1]),
		DilationHeight: orOne(params.Dilations[0]),
		DilationWidth:  orOne(params.Dilations[1]),
		InShape:        inShape.Clone(),
		FilterShape:    filterShape.Clone(),
		DataFormat:     params.DataFormat,
	}
	mul, err := ChannelMultiplier(info.InChannels, info.InChannels*filterShape[3])
	if err != nil {
		return nil, err
	}
	info.ChannelMultiplier = mul
	info.OutChannels = info.InChannels * mul

	if info.StrideHeight < 0 || info.StrideWidth < 0 || info.DilationHeight < 0 || info.DilationWidth < 0 {
		return nil, errors.Errorf("depthwise: negative stride %v or dilation %v", params.Strides, params.Dilations)
	}
	if (info.StrideHeight > 1 || info.StrideWidth > 1) && (info.DilationHeight > 1 || info.DilationWidth > 1) {
		return nil, errors.Errorf("depthwise: strides %v and dilations %v cannot both be greater than 1",
			params.Strides, params.Dilations)
	}

	info.EffFilterHeight = info.FilterHeight + (info.FilterHeight-1)*(info.DilationHeight-1)
	info.EffFilterWidth = info.FilterWidth + (info.FilterWidth-1)*(info.DilationWidth-1)

	if err := info.resolvePadding(params.Pad); err != nil {
		return nil, err
	}
	if info.OutHeight <= 0 || info.OutWidth <= 0 {
		return nil, errors.Wrapf(tensor.ErrInvalidShape,
			"depthwise: filter %dx%d does not fit input %dx%d", info.EffFilterHeight, info.EffFilterWidth,
			info.InHeight, info.InWidth)
	}
	info.OutShape = tensor.Shape{info.BatchSize, info.OutHeight, info.OutWidth, info.OutChannels}
	return info, nil
}

func (info *Conv2DInfo) resolvePadding(pad tensor.Padding) error {
	switch pad.Mode {
	case tensor.PadValid:
		info.OutHeight = ceilDiv(info.InHeight-info.EffFilterHeight+1, info.StrideHeight)
		info.OutWidth = ceilDiv(info.InWidth-info.EffFilterWidth+1, info.StrideWidth)
	case tensor.PadSame:
		info.OutHeight = ceilDiv(info.InHeight, info.StrideHeight)
		info.OutWidth = ceilDiv(info.InWidth, info.StrideWidth)
		padH := max(0, (info.OutHeight-1)*info.StrideHeight+info.EffFilterHeight-info.InHeight)
		padW := max(0, (info.OutWidth-1)*info.StrideWidth+info.EffFilterWidth-info.InWidth)
		info.PadTop = padH / 2
		info.PadBottom = padH - info.PadTop
		info.PadLeft = padW / 2
		info.PadRight = padW - info.PadLeft
	case tensor.PadExplicit:
		if pad.Top < 0 || pad.Bottom < 0 || pad.Left < 0 || pad.Right < 0 {
			return errors.Errorf("depthwise: negative padding %+v", pad)
		}
		info.PadTop, info.PadBottom, info.PadLeft, info.PadRight = pad.Top, pad.Bottom, pad.Left, pad.Right
		info.OutHeight = floorDiv(info.InHeight+pad.Top+pad.Bottom-info.EffFilterHeight, info.StrideHeight) + 1
		info.OutWidth = floorDiv(info.InWidth+pad.Left+pad.Right-info.EffFilterWidth, info.StrideWidth) + 1
	default:
		return errors.Errorf("depthwise: unknown padding mode %d", pad.Mode)
	}
	return nil
}

// String summarizes the convolution for logs and the CLI.
func (info *Conv2DInfo) String() string {
	return fmt.Sprintf("depthwise{in=%v filter=%v out=%v stride=%dx%d dilation=%dx%d pad=[%d,%d,%d,%d]}",
		info.InShape, info.FilterShape, info.OutShape,
		info.StrideHeight, info.StrideWidth, info.DilationHeight, info.DilationWidth,
		info.PadTop, info.PadBottom, info.PadLeft, info.PadRight)
}

func orOne(v int) int {
	if v == 0 {
		return 1
	}
	return v
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func floorDiv(a, b int) int {
	if a < 0 {
		return -((-a + b - 1) / b)
	}
	return a / b
}
