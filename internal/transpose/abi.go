package transpose

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/born-ml/kernels/internal/tensor"
	"github.com/pkg/errors"
)

// int32Size is the element width of every integer array crossing the native boundary.
const int32Size = 4

// Call is the typed form of a native transpose invocation.
type Call struct {
	XID      tensor.DataID
	XShape   []int32
	OutID    tensor.DataID
	OutShape []int32
	Perm     []int32
}

// Args is the marshalled form of a Call: raw native-endian int32 byte buffers with their
// element counts, in the order the native entry point takes them.
type Args struct {
	XID            int32
	XShape         []byte
	XShapeLength   int
	OutID          int32
	OutShape       []byte
	OutShapeLength int
	Perm           []byte
	PermLength     int
}

// NewCall builds the native call for transposing x (already reduced) into out.
func NewCall(x, out *tensor.View, perm []int) Call {
	p := make([]int32, len(perm))
	for i, ax := range perm {
		p[i] = int32(ax) //nolint:gosec // G115: axes are validated against the rank
	}
	return Call{
		XID:      x.DataID(),
		XShape:   x.Shape().Int32s(),
		OutID:    out.DataID(),
		OutShape: out.Shape().Int32s(),
		Perm:     p,
	}
}

// Validate checks the call against the native kernel contract.
func (c Call) Validate() error {
	rank := len(c.XShape)
	if len(c.OutShape) != rank || len(c.Perm) != rank {
		return errors.Errorf("transpose: native call arrays disagree: xShape %d, outShape %d, perm %d",
			rank, len(c.OutShape), len(c.Perm))
	}
	if rank > MaxNativeRank {
		return errors.Errorf("transpose: native kernel supports rank <= %d, got %d", MaxNativeRank, rank)
	}
	for i := range rank {
		if c.XShape[i] < 0 || c.OutShape[i] < 0 {
			return errors.Wrapf(tensor.ErrInvalidShape, "transpose: native call has negative extent: xShape %v, outShape %v",
				c.XShape, c.OutShape)
		}
	}
	perm := make([]int, rank)
	for i, ax := range c.Perm {
		perm[i] = int(ax)
	}
	if err := ValidatePerm(rank, perm); err != nil {
		return err
	}
	for i, ax := range c.Perm {
		if c.OutShape[i] != c.XShape[ax] {
			return errors.Errorf("transpose: native outShape %v is not xShape %v permuted by %v",
				c.OutShape, c.XShape, c.Perm)
		}
	}
	return nil
}

// Marshal encodes the call. The integer arrays are reinterpreted in place, so the
// bytes are in platform-native order and no element is copied.
func (c Call) Marshal() Args {
	return Args{
		XID:            int32(c.XID),
		XShape:         int32Bytes(c.XShape),
		XShapeLength:   len(c.XShape),
		OutID:          int32(c.OutID),
		OutShape:       int32Bytes(c.OutShape),
		OutShapeLength: len(c.OutShape),
		Perm:           int32Bytes(c.Perm),
		PermLength:     len(c.Perm),
	}
}

// Invoke calls the native entry point with the marshalled arguments.
func (a Args) Invoke(k *NativeKernel) {
	k.Transpose(a.XID, a.XShape, a.XShapeLength, a.OutID, a.OutShape, a.OutShapeLength, a.Perm, a.PermLength)
}

func int32Bytes(v []int32) []byte {
	if len(v) == 0 {
		return []byte{}
	}
	//nolint:gosec // unsafe.Slice for zero-copy view of the int32 array
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*int32Size)
}

// decodeInt32s reads n native-endian int32 values. A byte count that does not match n
// is a broken caller, not a recoverable condition.
func decodeInt32s(name string, b []byte, n int) []int {
	if n < 0 || len(b) != n*int32Size {
		panic(fmt.Sprintf("transpose: native ABI: %s has %d bytes, want %d int32 values", name, len(b), n))
	}
	out := make([]int, n)
	for i := range out {
		out[i] = int(int32(binary.NativeEndian.Uint32(b[i*int32Size:]))) //nolint:gosec // G115: round-trip of int32 bits
	}
	return out
}
