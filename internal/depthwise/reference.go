package depthwise

import (
	"github.com/born-ml/kernels/internal/parallel"
)

// Reference computes the convolution directly from its definition, in NHWC, with
// out-of-range input taps contributing 0. x and filter are row-major in info.InShape and
// info.FilterShape; the result has info.OutShape.
func Reference(info *Conv2DInfo, x, filter []float32, cfg parallel.Config) []float32 {
	out := make([]float32, info.OutShape.NumElements())
	mul := info.ChannelMultiplier
	rows := info.BatchSize * info.OutHeight

	parallel.For(rows, func(r int) {
		b, oh := r/info.OutHeight, r%info.OutHeight
		for ow := 0; ow < info.OutWidth; ow++ {
			base := ((b*info.OutHeight+oh)*info.OutWidth + ow) * info.OutChannels
			for kh := 0; kh < info.FilterHeight; kh++ {
				ih := oh*info.StrideHeight + kh*info.DilationHeight - info.PadTop
				if ih < 0 || ih >= info.InHeight {
					continue
				}
				for kw := 0; kw < info.FilterWidth; kw++ {
					iw := ow*info.StrideWidth + kw*info.DilationWidth - info.PadLeft
					if iw < 0 || iw >= info.InWidth {
						continue
					}
					xBase := ((b*info.InHeight+ih)*info.InWidth + iw) * info.InChannels
					wBase := (kh*info.FilterWidth + kw) * info.InChannels * mul
					for ci := 0; ci < info.InChannels; ci++ {
						xv := x[xBase+ci]
						for m := 0; m < mul; m++ {
							out[base+ci*mul+m] += xv * filter[wBase+ci*mul+m]
						}
					}
				}
			}
		}
	}, cfg)
	return out
}
