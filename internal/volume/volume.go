// Package volume holds the in-memory representation of calibrated image
// volumes and labeled masks, plus the exact array algebra (transpose, flip,
// rotate) used to move them between orientations.
package volume

import (
	"fmt"
	"math"
)

// Array is a dense 3D array stored row-major: the last axis varies fastest.
type Array struct {
	Shape [3]int
	Data  []float64
}

// NewArray allocates a zero-filled array of the given shape.
func NewArray(d0, d1, d2 int) Array {
	return Array{Shape: [3]int{d0, d1, d2}, Data: make([]float64, d0*d1*d2)}
}

// FromValues wraps data in an array, checking that the shape matches its length.
func FromValues(shape [3]int, data []float64) (Array, error) {
	if shape[0]*shape[1]*shape[2] != len(data) {
		return Array{}, fmt.Errorf("shape %v needs %d values, got %d", shape, shape[0]*shape[1]*shape[2], len(data))
	}
	return Array{Shape: shape, Data: data}, nil
}

// Len returns the number of voxels.
func (a Array) Len() int {
	return a.Shape[0] * a.Shape[1] * a.Shape[2]
}

// Index returns the flat offset of (i, j, k).
func (a Array) Index(i, j, k int) int {
	return (i*a.Shape[1]+j)*a.Shape[2] + k
}

// At returns the value at (i, j, k).
func (a Array) At(i, j, k int) float64 {
	return a.Data[a.Index(i, j, k)]
}

// Set stores v at (i, j, k).
func (a Array) Set(i, j, k int, v float64) {
	a.Data[a.Index(i, j, k)] = v
}

// Clone returns a deep copy.
func (a Array) Clone() Array {
	out := Array{Shape: a.Shape, Data: make([]float64, len(a.Data))}
	copy(out.Data, a.Data)
	return out
}

// Equal reports whether both arrays have the same shape and identical values.
func (a Array) Equal(b Array) bool {
	if a.Shape != b.Shape || len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return false
		}
	}
	return true
}

// Transpose permutes the axes: output axis n is input axis perm[n].
func (a Array) Transpose(perm [3]int) Array {
	seen := [3]bool{}
	for _, p := range perm {
		if p < 0 || p > 2 || seen[p] {
			panic(fmt.Sprintf("volume: invalid axis permutation %v", perm))
		}
		seen[p] = true
	}
	out := NewArray(a.Shape[perm[0]], a.Shape[perm[1]], a.Shape[perm[2]])
	var src [3]int
	for i := 0; i < out.Shape[0]; i++ {
		src[perm[0]] = i
		for j := 0; j < out.Shape[1]; j++ {
			src[perm[1]] = j
			for k := 0; k < out.Shape[2]; k++ {
				src[perm[2]] = k
				out.Data[out.Index(i, j, k)] = a.At(src[0], src[1], src[2])
			}
		}
	}
	return out
}

// SwapAxes exchanges two axes.
func (a Array) SwapAxes(x, y int) Array {
	perm := [3]int{0, 1, 2}
	perm[x], perm[y] = perm[y], perm[x]
	return a.Transpose(perm)
}

// Flip reverses the order of elements along axis.
func (a Array) Flip(axis int) Array {
	out := NewArray(a.Shape[0], a.Shape[1], a.Shape[2])
	n := a.Shape[axis]
	for i := 0; i < a.Shape[0]; i++ {
		for j := 0; j < a.Shape[1]; j++ {
			for k := 0; k < a.Shape[2]; k++ {
				src := [3]int{i, j, k}
				src[axis] = n - 1 - src[axis]
				out.Data[out.Index(i, j, k)] = a.At(src[0], src[1], src[2])
			}
		}
	}
	return out
}

// Reverse flips the leading axis.
func (a Array) Reverse() Array {
	return a.Flip(0)
}

// Rot90 rotates by 90 degrees k times in the plane of axes (1, 2), turning
// from axis 1 towards axis 2. Negative k rotates the other way.
func (a Array) Rot90(k int) Array {
	k = ((k % 4) + 4) % 4
	switch k {
	case 0:
		return a.Clone()
	case 2:
		return a.Flip(1).Flip(2)
	case 1:
		return a.Flip(2).SwapAxes(1, 2)
	default:
		return a.SwapAxes(1, 2).Flip(2)
	}
}

// Map returns a new array with fn applied to every value.
func (a Array) Map(fn func(float64) float64) Array {
	out := Array{Shape: a.Shape, Data: make([]float64, len(a.Data))}
	for i, v := range a.Data {
		out.Data[i] = fn(v)
	}
	return out
}

// Round rounds every value to the nearest integer.
func (a Array) Round() Array {
	return a.Map(math.Round)
}

// Sub returns the half-open block [lo, hi) along every axis.
func (a Array) Sub(lo, hi [3]int) Array {
	out := NewArray(hi[0]-lo[0], hi[1]-lo[1], hi[2]-lo[2])
	for i := 0; i < out.Shape[0]; i++ {
		for j := 0; j < out.Shape[1]; j++ {
			start := a.Index(lo[0]+i, lo[1]+j, lo[2])
			copy(out.Data[out.Index(i, j, 0):out.Index(i, j, 0)+out.Shape[2]], a.Data[start:start+out.Shape[2]])
		}
	}
	return out
}
