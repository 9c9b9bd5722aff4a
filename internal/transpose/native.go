package transpose

import (
	"fmt"

	"github.com/born-ml/kernels/internal/parallel"
	"github.com/born-ml/kernels/internal/tensor"
)

// MaxNativeRank is the highest reduced rank the native kernel specializes.
const MaxNativeRank = 3

// blockSize is the square block edge used by the 2-D kernel to keep both the read
// and the write side cache resident.
const blockSize = 32

// NativeKernel is the fast-path transpose module. Like a compiled kernel module it sees
// buffers only through identifiers resolved against its store.
type NativeKernel struct {
	store *tensor.Store
	cfg   parallel.Config
}

// NewNativeKernel binds the kernel to the store holding its buffers.
func NewNativeKernel(store *tensor.Store, cfg parallel.Config) *NativeKernel {
	return &NativeKernel{store: store, cfg: cfg}
}

// Transpose is the native entry point. Integer arrays are raw native-endian int32 bytes
// with explicit element counts. Any disagreement in widths, lengths, ranks or buffer ids
// panics: the caller and kernel are built together and a mismatch is a programming error.
func (k *NativeKernel) Transpose(xID int32, xShape []byte, xShapeLength int,
	outID int32, outShape []byte, outShapeLength int, perm []byte, permLength int,
) {
	shape := decodeInt32s("xShape", xShape, xShapeLength)
	dstShape := decodeInt32s("outShape", outShape, outShapeLength)
	axes := decodeInt32s("perm", perm, permLength)

	rank := len(shape)
	if len(dstShape) != rank || len(axes) != rank {
		panic(fmt.Sprintf("transpose: native ABI: rank mismatch xShape=%d outShape=%d perm=%d",
			rank, len(dstShape), len(axes)))
	}
	if rank > MaxNativeRank {
		panic(fmt.Sprintf("transpose: native kernel supports rank <= %d, got %d", MaxNativeRank, rank))
	}
	if err := ValidatePerm(rank, axes); err != nil {
		panic(err.Error())
	}
	if !OutShape(shape, axes).Equal(dstShape) {
		panic(fmt.Sprintf("transpose: native ABI: outShape %v is not %v permuted by %v", dstShape, shape, axes))
	}

	src := k.lookup(xID)
	dst := k.lookup(outID)
	if src.DType() != dst.DType() {
		panic(fmt.Sprintf("transpose: native ABI: dtype mismatch %s -> %s", src.DType(), dst.DType()))
	}
	n := tensor.Shape(shape).NumElements()
	width := src.DType().Size()
	if len(src.Bytes()) < n*width || len(dst.Bytes()) < n*width {
		panic(fmt.Sprintf("transpose: native ABI: buffers too small for %d elements", n))
	}

	switch width {
	case 1:
		nativeTranspose(tensor.Words[uint8](dst.Bytes(), n), tensor.Words[uint8](src.Bytes(), n), shape, axes, k.cfg)
	case 4:
		nativeTranspose(tensor.Words[uint32](dst.Bytes(), n), tensor.Words[uint32](src.Bytes(), n), shape, axes, k.cfg)
	case 8:
		nativeTranspose(tensor.Words[uint64](dst.Bytes(), n), tensor.Words[uint64](src.Bytes(), n), shape, axes, k.cfg)
	default:
		panic(fmt.Sprintf("transpose: unsupported element width %d", width))
	}
}

func (k *NativeKernel) lookup(id int32) *tensor.Buffer {
	buf, ok := k.store.Lookup(tensor.DataID(id))
	if !ok {
		panic(fmt.Sprintf("transpose: native ABI: unknown buffer id %d", id))
	}
	return buf
}

func nativeTranspose[T tensor.Word](dst, src []T, shape, perm []int, cfg parallel.Config) {
	switch {
	case len(src) == 0:
		return
	case IsIdentity(perm):
		copy(dst, src)
	case len(shape) == 2:
		transpose2D(dst, src, shape[0], shape[1], cfg)
	default:
		transpose3D(dst, src, shape, perm, cfg)
	}
}

// transpose2D swaps the axes of a rows x cols matrix block by block.
func transpose2D[T tensor.Word](dst, src []T, rows, cols int, cfg parallel.Config) {
	rowBlocks := (rows + blockSize - 1) / blockSize
	parallel.For(rowBlocks, func(rb int) {
		r0 := rb * blockSize
		r1 := min(r0+blockSize, rows)
		for c0 := 0; c0 < cols; c0 += blockSize {
			c1 := min(c0+blockSize, cols)
			for r := r0; r < r1; r++ {
				row := src[r*cols : r*cols+cols]
				for c := c0; c < c1; c++ {
					dst[c*rows+r] = row[c]
				}
			}
		}
	}, blockConfig(cfg, len(src)))
}

// transpose3D walks the input in order and scatters with the output stride of each
// input axis. When the innermost axis stays innermost whole rows move with copy.
func transpose3D[T tensor.Word](dst, src []T, shape, perm []int, cfg parallel.Config) {
	d0, d1, d2 := shape[0], shape[1], shape[2]
	outStrides := OutShape(shape, perm).ComputeStrides()

	var stride [3]int
	for j, ax := range perm {
		stride[ax] = outStrides[j]
	}
	s0, s1, s2 := stride[0], stride[1], stride[2]

	if perm[2] == 2 {
		parallel.For(d0, func(i0 int) {
			for i1 := 0; i1 < d1; i1++ {
				in := (i0*d1 + i1) * d2
				out := i0*s0 + i1*s1
				copy(dst[out:out+d2], src[in:in+d2])
			}
		}, blockConfig(cfg, len(src)))
		return
	}

	parallel.For(d0, func(i0 int) {
		in := i0 * d1 * d2
		for i1 := 0; i1 < d1; i1++ {
			out := i0*s0 + i1*s1
			for i2 := 0; i2 < d2; i2++ {
				dst[out] = src[in]
				in++
				out += s2
			}
		}
	}, blockConfig(cfg, len(src)))
}

// blockConfig adapts the element-level chunk size to loops whose iterations are whole
// rows or blocks: small tensors stay on the calling goroutine.
func blockConfig(cfg parallel.Config, elements int) parallel.Config {
	if elements < cfg.MinChunkSize {
		cfg.Enabled = false
	}
	cfg.MinChunkSize = 1
	return cfg
}
