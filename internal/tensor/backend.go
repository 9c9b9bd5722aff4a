package tensor

// Backend defines the operations every kernel backend provides.
//
// Implementations:
//   - CPU: native/generic transpose kernels and a host grid executor for device programs
//   - WebGPU: WGSL programs compiled and dispatched on a GPU adapter (windows)
type Backend interface {
	// Name identifies the backend in logs and errors.
	Name() string

	// Store returns the buffer allocator that owns every view the backend returns.
	Store() *Store

	// Transpose permutes the axes of x: out.Shape()[i] == x.Shape()[perm[i]].
	// When the permutation is a no-op after dropping size-1 axes the result aliases x.
	Transpose(x *View, perm []int) (*View, error)

	// DepthwiseConv2D convolves each input channel of a channels-last x with its own
	// filters. filter is [filterH, filterW, inChannels, channelMultiplier].
	DepthwiseConv2D(x, filter *View, params Conv2DParams) (*View, error)
}
