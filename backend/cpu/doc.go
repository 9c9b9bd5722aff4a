// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for the kernels.
//
// # Overview
//
// This package implements:
//   - Transpose with a native kernel for permutations of reduced rank 3 or less
//   - A strided generic transpose for higher ranks
//   - Aliasing for permutations that only move size-1 axes
//   - Depthwise 2-D convolution executed as a tiled matrix multiply
//
// Depthwise convolution runs the same program the WebGPU backend compiles to WGSL.
// Workgroups execute concurrently on goroutines, with barriers between phases.
//
// # Basic Usage
//
//	backend := cpu.New()
//	x, _ := tensor.FromSlice(backend.Store(), tensor.Shape{1, 5, 5, 3}, input)
//	w, _ := tensor.FromSlice(backend.Store(), tensor.Shape{3, 3, 3, 2}, filter)
//	y, _ := backend.DepthwiseConv2D(x, w, tensor.DefaultConv2DParams())
//
// # Thread Safety
//
// The CPU backend is safe for concurrent use. Each operation allocates its own output.
package cpu
