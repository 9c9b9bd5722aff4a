// Package transpose implements N-dimensional axis permutation: shape normalization,
// a rank-bounded native kernel behind a fixed-width ABI, a rank-agnostic strided
// fallback, and the device programs used by GPU backends.
package transpose

import (
	"github.com/born-ml/kernels/internal/tensor"
	"github.com/pkg/errors"
)

// ValidatePerm checks that perm is a bijection over [0, rank).
func ValidatePerm(rank int, perm []int) error {
	if len(perm) != rank {
		return errors.Wrapf(tensor.ErrInvalidPermutation,
			"transpose: permutation length %d != rank %d", len(perm), rank)
	}
	seen := make([]bool, rank)
	for _, ax := range perm {
		if ax < 0 || ax >= rank {
			return errors.Wrapf(tensor.ErrInvalidPermutation,
				"transpose: invalid axis %d for %dD tensor", ax, rank)
		}
		if seen[ax] {
			return errors.Wrapf(tensor.ErrInvalidPermutation, "transpose: duplicate axis %d", ax)
		}
		seen[ax] = true
	}
	return nil
}

// OutShape returns the permuted shape: out[i] = shape[perm[i]].
func OutShape(shape tensor.Shape, perm []int) tensor.Shape {
	out := make(tensor.Shape, len(shape))
	for i := range out {
		out[i] = shape[perm[i]]
	}
	return out
}

// RemoveOneSizeDims drops every extent-1 axis from shape and from perm, then renumbers the
// surviving permutation values so they form a bijection over the reduced rank while keeping
// their relative order.
func RemoveOneSizeDims(shape tensor.Shape, perm []int) (tensor.Shape, []int) {
	newShape := make(tensor.Shape, 0, len(shape))
	newPerm := make([]int, 0, len(perm))
	for i := range shape {
		if shape[i] != 1 {
			newShape = append(newShape, shape[i])
		}
		if shape[perm[i]] != 1 {
			newPerm = append(newPerm, perm[i])
		}
	}

	// Stable rank transform: ordinal i goes to the smallest value not yet renumbered.
	for i := range newPerm {
		minIdx := -1
		for j, v := range newPerm {
			if v >= i && (minIdx == -1 || newPerm[minIdx] > v) {
				minIdx = j
			}
		}
		newPerm[minIdx] = i
	}
	return newShape, newPerm
}

// IsIdentity reports whether perm maps every axis to itself.
func IsIdentity(perm []int) bool {
	for i, ax := range perm {
		if ax != i {
			return false
		}
	}
	return true
}

// Inverse returns the permutation that undoes perm.
func Inverse(perm []int) []int {
	inv := make([]int, len(perm))
	for i, ax := range perm {
		inv[ax] = i
	}
	return inv
}
