//go:build windows

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU backend for the kernels.
//
// Transpose and depthwise convolution programs are compiled to WGSL once per shader
// key and dispatched on the selected adapter.
//
// Example:
//
//	gpu, err := webgpu.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer gpu.Release()
//
//	y, err := gpu.DepthwiseConv2D(x, w, tensor.DefaultConv2DParams())
package webgpu

import (
	internalwebgpu "github.com/born-ml/kernels/internal/backend/webgpu"
	"github.com/born-ml/kernels/tensor"
)

// Backend represents the WebGPU backend implementation.
type Backend = internalwebgpu.Backend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new WebGPU backend.
//
// Call Release() when done to free GPU resources.
// Returns an error if WebGPU initialization fails (e.g., no compatible GPU).
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// IsAvailable checks if WebGPU is available on the current system.
//
// Example:
//
//	var backend tensor.Backend = cpu.New()
//	if webgpu.IsAvailable() {
//	    if gpu, err := webgpu.New(); err == nil {
//	        backend = gpu
//	    }
//	}
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
