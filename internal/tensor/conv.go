package tensor

// DataFormat is the axis order of a 4-D image tensor.
type DataFormat int

// Supported data formats. Only ChannelsLast has kernels.
const (
	ChannelsLast  DataFormat = iota // NHWC
	ChannelsFirst                   // NCHW
)

// String returns the conventional layout tag.
func (f DataFormat) String() string {
	switch f {
	case ChannelsLast:
		return "NHWC"
	case ChannelsFirst:
		return "NCHW"
	default:
		return "unknown"
	}
}

// PadMode selects how convolution padding is resolved.
type PadMode int

// Padding modes.
const (
	PadValid    PadMode = iota // no padding
	PadSame                    // output extent = ceil(input / stride)
	PadExplicit                // per-side pads from Padding
)

// Padding describes the implicit zero border around the input.
type Padding struct {
	Mode                     PadMode
	Top, Bottom, Left, Right int
}

// ExplicitPadding returns a symmetric explicit padding of p on every side.
func ExplicitPadding(p int) Padding {
	return Padding{Mode: PadExplicit, Top: p, Bottom: p, Left: p, Right: p}
}

// Conv2DParams are the spatial hyper-parameters of a 2-D convolution.
// Zero strides or dilations are read as 1.
type Conv2DParams struct {
	Strides    [2]int
	Dilations  [2]int
	Pad        Padding
	DataFormat DataFormat
}

// DefaultConv2DParams returns stride 1, dilation 1, valid padding, channels-last.
func DefaultConv2DParams() Conv2DParams {
	return Conv2DParams{
		Strides:    [2]int{1, 1},
		Dilations:  [2]int{1, 1},
		Pad:        Padding{Mode: PadValid},
		DataFormat: ChannelsLast,
	}
}
