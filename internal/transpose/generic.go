package transpose

import (
	"fmt"

	"github.com/born-ml/kernels/internal/parallel"
	"github.com/born-ml/kernels/internal/tensor"
)

// Generic copies the row-major tensor src of the given shape into dst with its axes
// permuted by perm. It works for any rank and is the reference every fast path must
// agree with. Each chunk of input indices uses O(rank) scratch.
func Generic[T any](dst, src []T, shape tensor.Shape, perm []int, cfg parallel.Config) {
	rank := len(shape)
	outShape := OutShape(shape, perm)
	inStrides := shape.ComputeStrides()
	outStrides := outShape.ComputeStrides()

	parallel.ForRange(shape.NumElements(), func(start, end int) {
		loc := make([]int, rank)
		newLoc := make([]int, rank)
		for i := start; i < end; i++ {
			shape.IndexToLoc(i, inStrides, loc)
			for j := range newLoc {
				newLoc[j] = loc[perm[j]]
			}
			dst[outShape.LocToIndex(newLoc, outStrides)] = src[i]
		}
	}, cfg)
}

// genericView runs Generic on views by element width, so every dtype moves bit-exactly.
func genericView(out, x *tensor.View, shape tensor.Shape, perm []int, cfg parallel.Config) {
	n := shape.NumElements()
	switch width := x.DType().Size(); width {
	case 1:
		Generic(tensor.Words[uint8](out.Data(), n), tensor.Words[uint8](x.Data(), n), shape, perm, cfg)
	case 4:
		Generic(tensor.Words[uint32](out.Data(), n), tensor.Words[uint32](x.Data(), n), shape, perm, cfg)
	case 8:
		Generic(tensor.Words[uint64](out.Data(), n), tensor.Words[uint64](x.Data(), n), shape, perm, cfg)
	default:
		panic(fmt.Sprintf("transpose: unsupported element width %d", width))
	}
}
