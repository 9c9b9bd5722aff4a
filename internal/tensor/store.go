package tensor

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

// Store allocates backing buffers and resolves DataIDs back to them.
// Kernels that receive buffer identifiers instead of views look them up here.
type Store struct {
	mu      sync.RWMutex
	next    DataID
	buffers map[DataID]*Buffer
}

// NewStore creates an empty buffer store.
func NewStore() *Store {
	return &Store{
		next:    1,
		buffers: make(map[DataID]*Buffer),
	}
}

// MakeOutput allocates a zero-filled buffer for shape and returns the only view of it.
func (s *Store) MakeOutput(shape Shape, dtype DataType) (*View, error) {
	if err := shape.Validate(); err != nil {
		return nil, errors.Wrap(err, "tensor: make output")
	}

	s.mu.Lock()
	id := s.next
	s.next++
	buf := newBuffer(id, shape.NumElements()*dtype.Size(), dtype, s.forget)
	s.buffers[id] = buf
	s.mu.Unlock()

	return &View{buffer: buf, shape: shape.Clone(), dtype: dtype}, nil
}

// Lookup returns the live buffer registered under id.
func (s *Store) Lookup(id DataID) (*Buffer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf, ok := s.buffers[id]
	return buf, ok
}

// Owns reports whether v is backed by a live buffer of this store. Stores number their
// buffers independently, so a DataID alone does not identify a buffer across stores.
func (s *Store) Owns(v *View) bool {
	buf, ok := s.Lookup(v.DataID())
	return ok && buf == v.buffer
}

// Bytes is the readback accessor: the raw bytes of a view in row-major order.
func (s *Store) Bytes(v *View) []byte {
	return v.Data()
}

// Len returns the number of live buffers.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buffers)
}

func (s *Store) forget(id DataID) {
	s.mu.Lock()
	delete(s.buffers, id)
	s.mu.Unlock()
}

// FromSlice allocates a view of shape and copies data into it.
func FromSlice[T DType](s *Store, shape Shape, data []T) (*View, error) {
	if shape.NumElements() != len(data) {
		return nil, errors.Wrapf(ErrInvalidShape, "tensor: shape %v needs %d elements, got %d",
			shape, shape.NumElements(), len(data))
	}
	v, err := s.MakeOutput(shape, DataTypeOf[T]())
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		var zero T
		//nolint:gosec // unsafe.Slice for zero-copy conversion of the source slice
		src := unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*int(unsafe.Sizeof(zero)))
		copy(v.buffer.data, src)
	}
	return v, nil
}

// Elements returns a typed, zero-copy slice over the view's data.
func Elements[T DType](v *View) []T {
	if dt := DataTypeOf[T](); dt != v.dtype {
		panic("tensor: view dtype is " + v.dtype.String() + ", not " + dt.String())
	}
	return Words[T](v.buffer.data, v.NumElements())
}
