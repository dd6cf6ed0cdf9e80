package volume

import (
	"fmt"
	"math"
)

// Volume is an Array in (slice, row, column) order placed in patient space.
//
// Spacing and Origin are in millimetres, x/y/z order. Direction is row-major:
// row 0 holds the row direction cosines, row 1 the column cosines and row 2
// their cross product.
type Volume struct {
	Array
	Spacing   [3]float64
	Origin    [3]float64
	Direction [9]float64
}

// Identity is the axis-aligned direction matrix.
var Identity = [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}

// Validate checks the invariants a loaded volume must hold.
func (v *Volume) Validate() error {
	if v.Len() != len(v.Data) {
		return fmt.Errorf("volume shape %v does not match %d values", v.Shape, len(v.Data))
	}
	for i, s := range v.Spacing {
		if !(s > 0) {
			return fmt.Errorf("volume spacing[%d] must be positive, got %g", i, s)
		}
	}
	for r := 0; r < 3; r++ {
		row := v.Direction[r*3 : r*3+3]
		norm := math.Sqrt(row[0]*row[0] + row[1]*row[1] + row[2]*row[2])
		if math.Abs(norm-1) > 1e-3 {
			return fmt.Errorf("direction row %d is not unit length (%g)", r, norm)
		}
	}
	return nil
}

// SameGrid reports whether two volumes share shape and geometry exactly.
func (v *Volume) SameGrid(o *Volume) bool {
	return v.Shape == o.Shape && v.Spacing == o.Spacing && v.Origin == o.Origin && v.Direction == o.Direction
}

// WithArray returns a copy of the geometry carrying a different array.
func (v *Volume) WithArray(a Array) *Volume {
	return &Volume{Array: a, Spacing: v.Spacing, Origin: v.Origin, Direction: v.Direction}
}
