// Package region crops PET and mask arrays to the vertebrae and masks out
// everything else.
package region

import (
	"fmt"
	"math"

	"github.com/mrsinham/spinesuv/internal/volume"
)

// ThresholdOutOfRangeError is returned when a crop threshold does not leave
// at least one slice.
type ThresholdOutOfRangeError struct {
	Threshold int
	Size      int
}

func (e *ThresholdOutOfRangeError) Error() string {
	return fmt.Sprintf("threshold %d out of range for %d slices", e.Threshold, e.Size)
}

// BoundingBox returns the half-open box around every voxel labeled above 1,
// grown by padding and clamped to the array. Label 1 never drives the box.
func BoundingBox(mask volume.Mask, padding int) (lo, hi [3]int, ok bool) {
	lo = mask.Shape
	for i := 0; i < mask.Shape[0]; i++ {
		for j := 0; j < mask.Shape[1]; j++ {
			for k := 0; k < mask.Shape[2]; k++ {
				if mask.At(i, j, k) <= 1 {
					continue
				}
				ok = true
				at := [3]int{i, j, k}
				for ax := 0; ax < 3; ax++ {
					lo[ax] = min(lo[ax], at[ax])
					hi[ax] = max(hi[ax], at[ax]+1)
				}
			}
		}
	}
	if !ok {
		return [3]int{}, mask.Shape, false
	}
	for ax := 0; ax < 3; ax++ {
		lo[ax] = max(lo[ax]-padding, 0)
		hi[ax] = min(hi[ax]+padding, mask.Shape[ax])
	}
	return lo, hi, true
}

// Crop slices mask and image to the padded bounding box of labels above 1.
// When no such label exists both are returned unchanged.
func Crop(mask volume.Mask, image volume.Array, padding int) (volume.Mask, volume.Array, error) {
	if mask.Shape != image.Shape {
		return volume.Mask{}, volume.Array{}, fmt.Errorf("mask shape %v does not match image shape %v", mask.Shape, image.Shape)
	}
	lo, hi, ok := BoundingBox(mask, padding)
	if !ok {
		return mask.Clone(), image.Clone(), nil
	}
	return volume.MaskFromArray(mask.Array().Sub(lo, hi)), image.Sub(lo, hi), nil
}

// Binarize collapses every label above 1 to 1. Background and label 1 are
// left as they are.
func Binarize(mask volume.Mask) volume.Mask {
	out := mask.Clone()
	for i, l := range out.Labels {
		if l > 1 {
			out.Labels[i] = 1
		}
	}
	return out
}

// Multiply scales every voxel of image by the mask value at the same place.
func Multiply(image volume.Array, mask volume.Mask) (volume.Array, error) {
	if mask.Shape != image.Shape {
		return volume.Array{}, fmt.Errorf("mask shape %v does not match image shape %v", mask.Shape, image.Shape)
	}
	out := image.Clone()
	for i, l := range mask.Labels {
		out.Data[i] *= float64(l)
	}
	return out, nil
}

// FirstNonzeroSlice returns the first index along axis 0 whose plane at the
// middle of axis 2 holds a non-zero value.
func FirstNonzeroSlice(a volume.Array) (int, bool) {
	if a.Len() == 0 {
		return 0, false
	}
	mid := a.Shape[2] / 2
	for i := 0; i < a.Shape[0]; i++ {
		for j := 0; j < a.Shape[1]; j++ {
			if a.At(i, j, mid) != 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// CropAndResize drops the first threshold entries of axis 0 and stretches
// each axis-2 plane back to its original size with bilinear interpolation.
func CropAndResize(a volume.Array, threshold int) (volume.Array, error) {
	if threshold < 0 || threshold >= a.Shape[0] {
		return volume.Array{}, &ThresholdOutOfRangeError{Threshold: threshold, Size: a.Shape[0]}
	}
	srcRows := a.Shape[0] - threshold
	out := volume.NewArray(a.Shape[0], a.Shape[1], a.Shape[2])
	for i := 0; i < a.Shape[0]; i++ {
		i0, i1, wi := linearTaps(srcRows, a.Shape[0], i)
		for j := 0; j < a.Shape[1]; j++ {
			j0, j1, wj := linearTaps(a.Shape[1], a.Shape[1], j)
			for k := 0; k < a.Shape[2]; k++ {
				top := (1-wj)*a.At(threshold+i0, j0, k) + wj*a.At(threshold+i0, j1, k)
				bottom := (1-wj)*a.At(threshold+i1, j0, k) + wj*a.At(threshold+i1, j1, k)
				out.Set(i, j, k, (1-wi)*top+wi*bottom)
			}
		}
	}
	return out, nil
}

// linearTaps maps destination index d of an n-long axis resized from src
// samples onto its two source neighbours and the weight of the second. Pixel
// centres are aligned; positions beyond the edges clamp.
func linearTaps(src, n, d int) (int, int, float64) {
	pos := (float64(d)+0.5)*float64(src)/float64(n) - 0.5
	f := math.Floor(pos)
	w := pos - f
	i0 := int(f)
	if i0 < 0 {
		return 0, 0, 0
	}
	if i0 >= src-1 {
		return src - 1, src - 1, 0
	}
	return i0, i0 + 1, w
}
