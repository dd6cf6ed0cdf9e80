package phantom

import (
	"github.com/mrsinham/spinesuv/internal/segmentation"
	"github.com/mrsinham/spinesuv/internal/suv"
)

// geometry lays out the phantom. The vertebrae form a column in the middle
// of every slice, one band of slices per label starting at slice 1. The PET
// is bright inside a slightly wider column and grows linearly along the slice
// axis, so trilinear resampling reproduces it exactly on the CT grid.
type geometry struct {
	ct         [3]int // slices, rows, columns
	pet        [3]int
	spacing    float64
	petSpacing float64
	origin     [3]float64

	band         int
	rowLo, rowHi int
	colLo, colHi int
}

func newGeometry(o Options) geometry {
	g := geometry{
		ct:         [3]int{o.Slices, o.Rows, o.Cols},
		pet:        [3]int{o.Slices/2 + 1, o.Rows/2 + 1, o.Cols/2 + 1},
		spacing:    o.Spacing,
		petSpacing: 2 * o.Spacing,
		band:       (o.Slices - 2) / len(segmentation.Labels),
		rowLo:      o.Rows / 3,
		rowHi:      o.Rows - o.Rows/3,
		colLo:      o.Cols / 3,
		colHi:      o.Cols - o.Cols/3,
	}
	g.origin = [3]float64{
		-float64(o.Cols) * o.Spacing / 2,
		-float64(o.Rows) * o.Spacing / 2,
		100,
	}
	return g
}

// label returns the vertebra label of a CT voxel, 0 for background.
func (g geometry) label(s, r, c int) int32 {
	if r < g.rowLo || r >= g.rowHi || c < g.colLo || c >= g.colHi || s < 1 {
		return 0
	}
	l := (s-1)/g.band + 1
	if l > len(segmentation.Labels) {
		return 0
	}
	return int32(l)
}

// slices returns the CT slices of a label.
func (g geometry) slices(label int32) []int {
	var out []int
	for s := 0; s < g.ct[0]; s++ {
		if g.label(s, g.rowLo, g.colLo) == label {
			out = append(out, s)
		}
	}
	return out
}

func (g geometry) ctValue(s, r, c int) float64 {
	if l := g.label(s, r, c); l > 0 {
		return vertebraBase + vertebraStep*float64(l)
	}
	return softTissueHU
}

// petValue is indexed on the PET grid.
func (g geometry) petValue(s, r, c int) float64 {
	const eps = 1e-9
	x, y := float64(c)*g.petSpacing, float64(r)*g.petSpacing
	inCols := x >= float64(g.colLo)*g.spacing-g.petSpacing-eps && x <= float64(g.colHi-1)*g.spacing+g.petSpacing+eps
	inRows := y >= float64(g.rowLo)*g.spacing-g.petSpacing-eps && y <= float64(g.rowHi-1)*g.spacing+g.petSpacing+eps
	if !inCols || !inRows {
		return petBackground
	}
	return petBase + petGradient*float64(s)*g.petSpacing
}

// petAtCTSlice is the activity inside the column at a CT slice.
func (g geometry) petAtCTSlice(s int) float64 {
	return petBase + petGradient*float64(s)*g.spacing
}

func (g geometry) expectedHU() map[int32]float64 {
	out := make(map[int32]float64, len(segmentation.Labels))
	for i := range segmentation.Labels {
		l := int32(i + 1)
		out[l] = vertebraBase + vertebraStep*float64(l)
	}
	return out
}

func (g geometry) expectedSUV(meta suv.Metadata) map[int32]float64 {
	out := make(map[int32]float64, len(segmentation.Labels))
	for i := range segmentation.Labels {
		l := int32(i + 1)
		slices := g.slices(l)
		var sum float64
		for _, s := range slices {
			sum += g.petAtCTSlice(s)
		}
		activity := sum / float64(len(slices))
		out[l] = activity * meta.PatientWeightG / meta.DecayedDoseBq
	}
	return out
}
