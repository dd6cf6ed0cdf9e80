// Package orient moves CT volumes and vertebra masks into the canonical
// analysis frame. Every operation is an exact permutation of voxels, so each
// has an exact inverse.
package orient

import "github.com/mrsinham/spinesuv/internal/volume"

// ReorientAndRotate brings a loaded CT array (slice, row, column) and the
// engine's combined mask (NIfTI x, y, z) into the same frame. The two
// sequences differ and must stay in lockstep.
func ReorientAndRotate(ct volume.Array, mask volume.Mask) (volume.Array, volume.Mask) {
	return ReorientCT(ct), ReorientMask(mask)
}

// ReorientCT: transpose (2,1,0), flip axis 0, rot90 over (1,2), rotate each
// slice by 180 degrees, flip axis 2 then axis 1.
func ReorientCT(a volume.Array) volume.Array {
	return a.Transpose([3]int{2, 1, 0}).
		Flip(0).
		Rot90(1).
		Rot90(2).
		Flip(2).
		Flip(1)
}

// ReorientMask: flip axis 1, rot90 over (1,2), flip axis 1, reverse the
// leading axis, rotate each slice by 180 degrees, flip axis 2 then axis 1,
// round back to labels.
func ReorientMask(m volume.Mask) volume.Mask {
	a := m.Array().
		Flip(1).
		Rot90(1).
		Flip(1).
		Reverse().
		Rot90(2).
		Flip(2).
		Flip(1)
	return volume.MaskFromArray(a.Round())
}

// InverseReorientCT undoes ReorientCT.
func InverseReorientCT(a volume.Array) volume.Array {
	return a.Flip(1).
		Flip(2).
		Rot90(2).
		Rot90(-1).
		Flip(0).
		Transpose([3]int{2, 1, 0})
}

// InverseReorientMask undoes ReorientMask.
func InverseReorientMask(m volume.Mask) volume.Mask {
	a := m.Array().
		Flip(1).
		Flip(2).
		Rot90(2).
		Reverse().
		Flip(1).
		Rot90(-1).
		Flip(1)
	return volume.MaskFromArray(a)
}

// CustomTransform is the canonicalization applied when CT-derived arrays meet
// PET data: transpose (1,2,0), flip axis 2, reverse the leading axis.
func CustomTransform(a volume.Array) volume.Array {
	return a.Transpose([3]int{1, 2, 0}).Flip(2).Reverse()
}

// CustomTransformMask applies CustomTransform to a mask.
func CustomTransformMask(m volume.Mask) volume.Mask {
	return volume.MaskFromArray(CustomTransform(m.Array()))
}

// InverseCustomTransform undoes CustomTransform.
func InverseCustomTransform(a volume.Array) volume.Array {
	return a.Reverse().Flip(2).Transpose([3]int{2, 0, 1})
}

// ToEngineLayout lays out an array given in CT (slice, row, column) order the
// way the segmentation engine writes its volumes: (x, y, z) with the row axis
// reversed. Reoriented and canonicalized, such a mask runs along the slice
// axis in the order of the registered PET.
func ToEngineLayout(a volume.Array) volume.Array {
	return a.Transpose([3]int{2, 1, 0}).Flip(1)
}
