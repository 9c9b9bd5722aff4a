package tensor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

// DataID identifies a backing buffer. It is the handle passed across kernel call boundaries.
type DataID int32

// Buffer is a reference-counted backing store shared by every view aliasing it.
type Buffer struct {
	id       DataID
	data     []byte
	dtype    DataType
	refCount atomic.Int32
	mu       sync.Mutex    // For safe deallocation
	onFree   func(DataID) // Store hook, nil for detached buffers
}

func newBuffer(id DataID, size int, dtype DataType, onFree func(DataID)) *Buffer {
	buf := &Buffer{
		id:     id,
		data:   make([]byte, size),
		dtype:  dtype,
		onFree: onFree,
	}
	buf.refCount.Store(1)
	return buf
}

// ID returns the buffer identifier.
func (b *Buffer) ID() DataID {
	return b.id
}

// DType returns the element type stored in the buffer.
func (b *Buffer) DType() DataType {
	return b.dtype
}

// Bytes returns the raw storage.
// WARNING: Direct access to underlying memory. Use with caution.
func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) addRef() {
	b.refCount.Add(1)
}

func (b *Buffer) release() {
	if b.refCount.Add(-1) == 0 {
		b.mu.Lock()
		b.data = nil
		b.mu.Unlock()
		if b.onFree != nil {
			b.onFree(b.id)
		}
	}
}

// View is a shaped, typed window onto a Buffer. A view never owns a copy of its data:
// aliases created with Alias share the same buffer.
type View struct {
	buffer *Buffer
	shape  Shape
	dtype  DataType
}

// Shape returns the view's shape.
func (v *View) Shape() Shape {
	return v.shape
}

// DType returns the view's data type.
func (v *View) DType() DataType {
	return v.dtype
}

// DataID returns the identifier of the backing buffer.
func (v *View) DataID() DataID {
	return v.buffer.id
}

// Buffer returns the backing buffer.
func (v *View) Buffer() *Buffer {
	return v.buffer
}

// NumElements returns the total number of elements.
func (v *View) NumElements() int {
	return v.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (v *View) ByteSize() int {
	return v.NumElements() * v.dtype.Size()
}

// Data returns the raw byte slice covering this view.
func (v *View) Data() []byte {
	return v.buffer.data[:v.ByteSize()]
}

// Alias returns a new view of the same buffer with another shape. No data is copied.
func (v *View) Alias(shape Shape) *View {
	if shape.NumElements() != v.NumElements() {
		panic(fmt.Sprintf("tensor: alias %v has %d elements, buffer view %v has %d",
			shape, shape.NumElements(), v.shape, v.NumElements()))
	}
	v.buffer.addRef()
	return &View{
		buffer: v.buffer,
		shape:  shape.Clone(),
		dtype:  v.dtype,
	}
}

// SharesData reports whether both views are backed by the same buffer.
func (v *View) SharesData(other *View) bool {
	return v.buffer == other.buffer
}

// Release drops this view's reference to the buffer.
func (v *View) Release() {
	v.buffer.release()
}

// AsFloat32 interprets the data as []float32.
// Panics if the view's dtype is not Float32.
func (v *View) AsFloat32() []float32 {
	if v.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", v.dtype))
	}
	return Words[float32](v.buffer.data, v.NumElements())
}

// AsInt32 interprets the data as []int32.
// Panics if the view's dtype is not Int32.
func (v *View) AsInt32() []int32 {
	if v.dtype != Int32 {
		panic(fmt.Sprintf("tensor dtype is %s, not int32", v.dtype))
	}
	return Words[int32](v.buffer.data, v.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the view's dtype is not Float64.
func (v *View) AsFloat64() []float64 {
	if v.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", v.dtype))
	}
	return Words[float64](v.buffer.data, v.NumElements())
}

// Words reinterprets the first n elements of data as []T without copying.
func Words[T any](data []byte, n int) []T {
	if n == 0 {
		return nil
	}
	var zero T
	if len(data) < n*int(unsafe.Sizeof(zero)) {
		panic(fmt.Sprintf("tensor: %d bytes cannot hold %d elements of size %d", len(data), n, unsafe.Sizeof(zero)))
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked above
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), n)
}
