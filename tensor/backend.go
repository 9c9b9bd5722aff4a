// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/born-ml/kernels/internal/tensor"

// Backend defines the interface that all compute backends implement.
//
// Implementations:
//   - backend/cpu: native and generic host kernels, plus a grid executor for device programs
//   - backend/webgpu: WGSL programs dispatched on a GPU adapter (Windows)
//
// Example:
//
//	backend := cpu.New()
//	x, _ := tensor.FromSlice(backend.Store(), tensor.Shape{1, 5, 5, 3}, input)
//	w, _ := tensor.FromSlice(backend.Store(), tensor.Shape{3, 3, 3, 2}, filter)
//	y, _ := backend.DepthwiseConv2D(x, w, tensor.DefaultConv2DParams()) // [1,3,3,6]
type Backend = tensor.Backend
