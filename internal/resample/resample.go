// Package resample maps one calibrated volume onto another's voxel grid.
package resample

import (
	"fmt"
	"math"

	"github.com/mrsinham/spinesuv/internal/volume"
	"gonum.org/v1/gonum/mat"
)

// snap is how close a continuous index must be to an integer to be treated
// as that integer.
const snap = 1e-6

// grid maps voxel indices to patient coordinates and back.
type grid struct {
	origin  [3]float64
	spacing [3]float64
	dir     *mat.Dense // column c is the patient-space direction of index axis c
	inv     *mat.Dense
}

func newGrid(v *volume.Volume) (*grid, error) {
	// Row r of the stored matrix is the direction of index axis r.
	var dir mat.Dense
	dir.CloneFrom(mat.NewDense(3, 3, v.Direction[:]).T())
	var inv mat.Dense
	if err := inv.Inverse(&dir); err != nil {
		return nil, fmt.Errorf("direction matrix is singular: %w", err)
	}
	return &grid{origin: v.Origin, spacing: v.Spacing, dir: &dir, inv: &inv}, nil
}

// physical returns the patient coordinates of index (x, y, z), where x is the
// column, y the row and z the slice.
func (g *grid) physical(x, y, z float64) [3]float64 {
	s := [3]float64{x * g.spacing[0], y * g.spacing[1], z * g.spacing[2]}
	var p [3]float64
	for r := 0; r < 3; r++ {
		p[r] = g.origin[r] + g.dir.At(r, 0)*s[0] + g.dir.At(r, 1)*s[1] + g.dir.At(r, 2)*s[2]
	}
	return p
}

// index returns the continuous (x, y, z) index of a patient coordinate.
func (g *grid) index(p [3]float64) [3]float64 {
	d := [3]float64{p[0] - g.origin[0], p[1] - g.origin[1], p[2] - g.origin[2]}
	var idx [3]float64
	for r := 0; r < 3; r++ {
		v := g.inv.At(r, 0)*d[0] + g.inv.At(r, 1)*d[1] + g.inv.At(r, 2)*d[2]
		v /= g.spacing[r]
		if n := math.Round(v); math.Abs(v-n) < snap {
			v = n
		}
		idx[r] = v
	}
	return idx
}

// ToReference resamples moving onto the grid of reference with trilinear
// interpolation. Points outside the moving volume are 0. The reference is
// not modified; the result carries its geometry.
func ToReference(moving, reference *volume.Volume) (*volume.Volume, error) {
	if moving.SameGrid(reference) {
		return reference.WithArray(moving.Array.Clone()), nil
	}
	fixed, err := newGrid(reference)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	src, err := newGrid(moving)
	if err != nil {
		return nil, fmt.Errorf("moving: %w", err)
	}

	out := volume.NewArray(reference.Shape[0], reference.Shape[1], reference.Shape[2])
	for z := 0; z < out.Shape[0]; z++ {
		for y := 0; y < out.Shape[1]; y++ {
			for x := 0; x < out.Shape[2]; x++ {
				idx := src.index(fixed.physical(float64(x), float64(y), float64(z)))
				out.Set(z, y, x, Trilinear(moving.Array, idx[2], idx[1], idx[0]))
			}
		}
	}
	return reference.WithArray(out), nil
}

// Trilinear samples a at the continuous index (i, j, k) in array axis order.
// Indices in [-0.5, n-0.5) on every axis are inside; neighbours beyond the
// edge are clamped. Anything outside returns 0.
func Trilinear(a volume.Array, i, j, k float64) float64 {
	c := [3]float64{i, j, k}
	var lo [3]int
	var hi [3]int
	var w [3]float64
	for ax := 0; ax < 3; ax++ {
		n := a.Shape[ax]
		if c[ax] < -0.5 || c[ax] >= float64(n)-0.5 {
			return 0
		}
		f := math.Floor(c[ax])
		w[ax] = c[ax] - f
		lo[ax] = clamp(int(f), n)
		hi[ax] = clamp(int(f)+1, n)
	}

	var sum float64
	for corner := 0; corner < 8; corner++ {
		weight := 1.0
		var at [3]int
		for ax := 0; ax < 3; ax++ {
			if corner&(1<<ax) != 0 {
				weight *= w[ax]
				at[ax] = hi[ax]
			} else {
				weight *= 1 - w[ax]
				at[ax] = lo[ax]
			}
		}
		if weight == 0 {
			continue
		}
		sum += weight * a.At(at[0], at[1], at[2])
	}
	return sum
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
