//go:build windows

// Package webgpu compiles kernel programs to WGSL and runs them on a GPU adapter.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
package webgpu

import (
	"sync"

	"github.com/born-ml/kernels/internal/depthwise"
	"github.com/born-ml/kernels/internal/parallel"
	"github.com/born-ml/kernels/internal/tensor"
	"github.com/born-ml/kernels/internal/transpose"
	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Backend runs kernel programs on GPU using WebGPU.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// Shader and pipeline cache, keyed by program shader key
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	// Device info
	adapterInfo *wgpu.AdapterInfo

	store *tensor.Store
	// host transposes for dtypes the device programs do not cover
	host *transpose.Transposer

	// Addressing is the depthwise addressing mode used by DepthwiseConv2D.
	Addressing depthwise.Addressing
}

var _ tensor.Backend = (*Backend)(nil)

// New creates a new WebGPU backend allocating outputs from a fresh store.
// Returns an error if WebGPU is not available or initialization fails.
func New() (*Backend, error) {
	return NewWithStore(tensor.NewStore())
}

// NewWithStore creates a WebGPU backend allocating outputs from store.
func NewWithStore(store *tensor.Store) (backend *Backend, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			klog.Warningf("webgpu: recovered during initialization: %v", r)
			backend = nil
			err = errors.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, errors.Wrap(adapterErr, "webgpu: failed to request adapter")
	}

	// Adapter info is optional.
	adapterInfo := adapter.GetInfo()

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrap(deviceErr, "webgpu: failed to request device")
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, errors.New("webgpu: failed to get queue")
	}

	klog.V(2).Infof("webgpu: using adapter %s (%s)", adapterInfo.Device, adapterInfo.Vendor)
	return &Backend{
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       queue,
		shaders:     make(map[string]*wgpu.ShaderModule),
		pipelines:   make(map[string]*wgpu.ComputePipeline),
		adapterInfo: &adapterInfo,
		store:       store,
		host:        transpose.New(store, parallel.DefaultConfig()),
		Addressing:  depthwise.MaskedLoad,
	}, nil
}

// Release releases all WebGPU resources.
// Must be called when the backend is no longer needed.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range b.pipelines {
		p.Release()
	}
	b.pipelines = nil

	for _, s := range b.shaders {
		s.Release()
	}
	b.shaders = nil

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	if b.adapterInfo != nil && b.adapterInfo.Device != "" {
		return "WebGPU (" + b.adapterInfo.Device + ")"
	}
	return "WebGPU"
}

// Store returns the buffer allocator.
func (b *Backend) Store() *tensor.Store {
	return b.store
}

// AdapterInfo returns information about the GPU adapter.
func (b *Backend) AdapterInfo() *wgpu.AdapterInfo {
	return b.adapterInfo
}

// CachedPipelines returns the number of compiled pipelines.
func (b *Backend) CachedPipelines() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pipelines)
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			klog.V(2).Infof("webgpu: unavailable: %v", r)
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}
