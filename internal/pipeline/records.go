package pipeline

import (
	"github.com/mrsinham/spinesuv/internal/suv"
	"github.com/mrsinham/spinesuv/internal/volume"
)

// Stage names, also used as checkpoint names.
const (
	StageSegmentation = "segmentation"
	StageRegistration = "registration"
	StageMerge        = "merge"
	StageMetadata     = "metadata"
	StageSUV          = "suv"
	StageDensity      = "density"
)

// Stages lists every stage in execution order.
var Stages = []string{StageSegmentation, StageRegistration, StageMerge, StageMetadata, StageSUV, StageDensity}

// SegmentationRecord is the reoriented CT and combined mask of one patient.
type SegmentationRecord struct {
	CT           volume.Array
	Mask         volume.Mask
	SeriesNumber int
	Spacing      [3]float64
}

// RegistrationRecord is the PET resampled onto the CT grid, reversed along
// the slice axis and stretched past its first empty slices.
type RegistrationRecord struct {
	PET                  volume.Array
	Threshold            int
	CTSeriesNumber       int
	PETSeriesDescription string
}

// MergeRecord holds the canonical CT and the cropped mask and PET.
type MergeRecord struct {
	CT        volume.Array
	Mask      volume.Mask // multi-label, cropped
	MaskedPET volume.Array
}

// SUVRecord is the SUV volume of one patient and its per-vertebra means.
type SUVRecord struct {
	SUV   volume.Array
	Means map[int32]float64
}

// DensityRecord is the per-vertebra mean CT value of one patient.
type DensityRecord struct {
	Flipped bool
	Means   map[int32]float64
}

// PatientResult gathers everything computed for one patient.
type PatientResult struct {
	CT        volume.Array
	PET       volume.Array
	Mask      volume.Mask
	MaskedPET volume.Array
	SUV       volume.Array
	Metadata  suv.Metadata
	MeanSUV   map[int32]float64
	MeanHU    map[int32]float64
}

// Results maps patient id to its result. Only patients that reached the SUV
// stage are present.
type Results map[string]PatientResult
