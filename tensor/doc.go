// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the shapes, views and buffer store the kernels operate on.
//
// # Overview
//
// A View is a shaped, typed window onto a reference-counted buffer owned by a Store.
// Kernels allocate their outputs from the store of the backend that runs them, and
// zero-cost results such as no-op transposes return an alias of the input buffer.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/kernels/backend/cpu"
//	    "github.com/born-ml/kernels/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    x, _ := tensor.FromSlice(backend.Store(), tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
//	    y, _ := backend.Transpose(x, []int{1, 0})
//	    fmt.Println(y.Shape(), y.AsFloat32()) // [3,2] [1 4 2 5 3 6]
//	}
//
// # Supported Data Types
//
// Transposes move float32, float64, int32, int64, uint8 and bool data bit-exactly.
// Depthwise convolution and the device programs are float32 only.
//
// # Memory Management
//
// Every view returned by a kernel holds one reference to its buffer. Call Release when
// done; the buffer is dropped from its store once the last alias is released.
package tensor
