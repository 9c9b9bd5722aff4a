//go:build windows

package webgpu

import (
	"context"
	"unsafe"

	"github.com/born-ml/kernels/internal/program"
	"github.com/born-ml/kernels/internal/tensor"
	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// compileShader compiles WGSL shader code into a ShaderModule.
// Results are cached by shader key.
func (b *Backend) compileShader(key, code string) *wgpu.ShaderModule {
	b.mu.RLock()
	if shader, exists := b.shaders[key]; exists {
		b.mu.RUnlock()
		return shader
	}
	b.mu.RUnlock()

	klog.V(2).Infof("webgpu: compiling %s", key)
	shader := b.device.CreateShaderModuleWGSL(code)

	b.mu.Lock()
	b.shaders[key] = shader
	b.mu.Unlock()

	return shader
}

// getOrCreatePipeline returns a cached ComputePipeline or creates a new one.
func (b *Backend) getOrCreatePipeline(key string, shader *wgpu.ShaderModule) *wgpu.ComputePipeline {
	b.mu.RLock()
	if pipeline, exists := b.pipelines[key]; exists {
		b.mu.RUnlock()
		return pipeline
	}
	b.mu.RUnlock()

	// Auto layout (nil layout)
	pipeline := b.device.CreateComputePipelineSimple(nil, shader, "main")

	b.mu.Lock()
	b.pipelines[key] = pipeline
	b.mu.Unlock()

	return pipeline
}

// createBuffer creates a storage buffer holding data.
func (b *Backend) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := alignedSize(len(data))

	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// createUniformBuffer creates a uniform buffer. The program packs its uniforms in
// vec4 slots, so the data is already 16-byte aligned.
func (b *Backend) createUniformBuffer(data []byte) *wgpu.Buffer {
	return b.createBuffer(data, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
}

// readBuffer reads data back from a GPU buffer to CPU memory.
// Uses a staging buffer since storage buffers can't be mapped directly.
func (b *Backend) readBuffer(srcBuffer *wgpu.Buffer, size uint64) ([]byte, error) {
	stagingBuffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer stagingBuffer.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(srcBuffer, 0, stagingBuffer, 0, size)
	cmdBuffer := encoder.Finish(nil)
	b.queue.Submit(cmdBuffer)

	if err := stagingBuffer.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, errors.Wrap(err, "webgpu: failed to map staging buffer")
	}

	mappedPtr := stagingBuffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)
	stagingBuffer.Unmap()

	return result, nil
}

// RunProgram compiles p (once per shader key), dispatches its grid over the float32
// inputs and reads the output back into a new view. It returns after readback.
func (b *Backend) RunProgram(ctx context.Context, p *program.Program, inputs ...*tensor.View) (*tensor.View, error) {
	if len(inputs) != len(p.Inputs) {
		return nil, errors.Wrapf(tensor.ErrIncompatibleOperands,
			"webgpu: program %s expects %d inputs, got %d", p.Name, len(p.Inputs), len(inputs))
	}
	for i, in := range inputs {
		if in.DType() != tensor.Float32 {
			return nil, errors.Wrapf(tensor.ErrUnsupportedDataType,
				"webgpu: only float32 is supported, input %s is %s", p.Inputs[i].Name, in.DType())
		}
		if !in.Shape().Equal(p.Inputs[i].Shape) {
			return nil, errors.Wrapf(tensor.ErrIncompatibleOperands,
				"webgpu: program %s input %s has shape %v, want %v", p.Name, p.Inputs[i].Name, in.Shape(), p.Inputs[i].Shape)
		}
	}
	if err := p.CheckDispatchLimit(program.MaxWorkgroupsPerDimension); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := b.store.MakeOutput(p.OutputShape, tensor.Float32)
	if err != nil {
		return nil, err
	}
	if out.NumElements() == 0 {
		return out, nil
	}

	shader := b.compileShader(p.ShaderKey, p.Source())
	pipeline := b.getOrCreatePipeline(p.ShaderKey, shader)

	entries := make([]wgpu.BindGroupEntry, 0, len(inputs)+2)
	for i, in := range inputs {
		buf := b.createBuffer(in.Data(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
		defer buf.Release()
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), buf, 0, alignedSize(in.ByteSize()))) //nolint:gosec // G115: binding index
	}

	//nolint:gosec // G115: Safe conversion, ByteSize() returns non-negative int
	resultSize := uint64(out.ByteSize())
	bufferResult := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  alignedSize(out.ByteSize()),
	})
	defer bufferResult.Release()
	entries = append(entries, wgpu.BufferBindingEntry(uint32(p.OutputBinding()), bufferResult, 0, alignedSize(out.ByteSize()))) //nolint:gosec // G115: binding index

	uniforms := p.PackUniforms()
	bufferUniforms := b.createUniformBuffer(uniforms)
	defer bufferUniforms.Release()
	entries = append(entries, wgpu.BufferBindingEntry(uint32(p.UniformBinding()), bufferUniforms, 0, alignedSize(len(uniforms)))) //nolint:gosec // G115: binding index

	bindGroupLayout := pipeline.GetBindGroupLayout(0)
	bindGroup := b.device.CreateBindGroupSimple(bindGroupLayout, entries)
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	//nolint:gosec // G115: dispatch sizes are checked against MaxWorkgroupsPerDimension
	computePass.DispatchWorkgroups(uint32(p.Dispatch[0]), uint32(p.Dispatch[1]), uint32(p.Dispatch[2]))
	computePass.End()

	cmdBuffer := encoder.Finish(nil)
	b.queue.Submit(cmdBuffer)
	klog.V(2).Infof("webgpu: dispatched %s", p)

	resultData, err := b.readBuffer(bufferResult, resultSize)
	if err != nil {
		out.Release()
		return nil, err
	}
	copy(out.Data(), resultData)
	return out, nil
}

// alignedSize rounds n bytes up to a 16-byte boundary, with a 16-byte minimum so empty
// bindings are still valid.
func alignedSize(n int) uint64 {
	//nolint:gosec // G115: byte sizes are non-negative
	size := uint64(max(n, 1))
	return (size + 15) &^ 15
}
