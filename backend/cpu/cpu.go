// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/kernels/internal/backend/cpu"
	"github.com/born-ml/kernels/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Config controls worker counts and the default depthwise addressing mode.
type Config = internalcpu.Config

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend with DefaultConfig.
//
// Example:
//
//	backend := cpu.New()
//	x, _ := tensor.FromSlice(backend.Store(), tensor.Shape{2, 3}, data)
//	y, _ := backend.Transpose(x, []int{1, 0})
func New() *Backend {
	return internalcpu.New()
}

// NewWithConfig creates a CPU backend allocating from store.
func NewWithConfig(cfg Config, store *tensor.Store) *Backend {
	return internalcpu.NewWithConfig(cfg, store)
}

// DefaultConfig returns one worker per CPU and masked-load depthwise addressing.
func DefaultConfig() Config {
	return internalcpu.DefaultConfig()
}
