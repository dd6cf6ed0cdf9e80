package segmentation

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/henghuang/nifti"
	"github.com/mrsinham/spinesuv/internal/volume"
)

// Labels is the fixed vertebra order. A label's value in the combined mask is
// its 1-based position in this list.
var Labels = []string{"T12", "L1", "L2", "L3", "L4", "L5", "S1"}

// LabelValue returns the combined-mask value of a vertebra name, or 0.
func LabelValue(name string) int32 {
	for i, l := range Labels {
		if l == name {
			return int32(i + 1)
		}
	}
	return 0
}

// LabelName returns the vertebra name of a combined-mask value.
func LabelName(value int32) string {
	if value < 1 || int(value) > len(Labels) {
		return fmt.Sprintf("label%d", value)
	}
	return Labels[value-1]
}

// LabelPath is where the engine writes the volume of one label.
func LabelPath(prefix, label string) string {
	return filepath.Join(prefix, fmt.Sprintf("vertebrae_%s.nii.gz", label))
}

// Combine merges per-label volumes into one mask shaped like the first.
// Voxels > 0 in volume i get value i+1; later volumes overwrite earlier ones.
func Combine(perLabel []volume.Array) (volume.Mask, error) {
	if len(perLabel) == 0 {
		return volume.Mask{}, fmt.Errorf("no label volumes to combine")
	}
	combined := volume.NewMask(perLabel[0].Shape)
	for i, a := range perLabel {
		if a.Shape != combined.Shape {
			return volume.Mask{}, fmt.Errorf("label volume %d has shape %v, want %v", i+1, a.Shape, combined.Shape)
		}
		for idx, v := range a.Data {
			if v > 0 {
				combined.Labels[idx] = int32(i + 1)
			}
		}
	}
	return combined, nil
}

// LoadCombined reads the volume of every label under prefix and combines
// them. Any missing file fails the whole mask.
func LoadCombined(prefix string, labels []string) (volume.Mask, error) {
	perLabel := make([]volume.Array, 0, len(labels))
	for _, label := range labels {
		path := LabelPath(prefix, label)
		if _, err := os.Stat(path); err != nil {
			return volume.Mask{}, &UnavailableError{Path: path, Reason: "label volume missing", Err: err}
		}
		a, err := ReadLabelVolume(path)
		if err != nil {
			return volume.Mask{}, &UnavailableError{Path: path, Reason: "unreadable label volume", Err: err}
		}
		perLabel = append(perLabel, a)
	}
	return Combine(perLabel)
}

// ReadLabelVolume loads a NIfTI volume as an array indexed (x, y, z), the
// file's own axis order. Only the first time point is read.
func ReadLabelVolume(path string) (volume.Array, error) {
	img, err := safelyNiftiParse(path)
	if err != nil {
		return volume.Array{}, err
	}
	dims := img.GetDims()
	nx, ny, nz := dims[0], dims[1], dims[2]
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return volume.Array{}, fmt.Errorf("%s: invalid dimensions %v", path, dims)
	}
	a := volume.NewArray(nx, ny, nz)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			for z := 0; z < nz; z++ {
				a.Set(x, y, z, float64(img.GetAt(x, y, z, 0)))
			}
		}
	}
	return a, nil
}

// safelyNiftiParse turns the panics the nifti reader raises on bad input
// into errors.
func safelyNiftiParse(path string) (img nifti.Nifti1Image, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("parse %s: %v", path, panicErr)
		}
	}()

	img.LoadImage(path, true)
	return
}
