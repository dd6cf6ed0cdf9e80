// Package modalities provides the modality-specific elements of the
// synthetic PET/CT series.
package modalities

import (
	"github.com/suyashkumar/dicom"
)

// Modality represents a DICOM imaging modality type.
type Modality string

const (
	CT Modality = "CT" // Computed Tomography
	PT Modality = "PT" // Positron Emission Tomography
)

// AllModalities returns all supported modalities.
func AllModalities() []Modality {
	return []Modality{CT, PT}
}

// IsValid checks if a modality string is valid.
func IsValid(m string) bool {
	for _, valid := range AllModalities() {
		if string(valid) == m {
			return true
		}
	}
	return false
}

// Scanner represents a hybrid PET/CT system.
type Scanner struct {
	Manufacturer string
	Model        string
}

// Scanners lists the PET/CT systems the synthetic cohorts are attributed to.
func Scanners() []Scanner {
	return []Scanner{
		{Manufacturer: "SIEMENS", Model: "Biograph Vision 600"},
		{Manufacturer: "SIEMENS", Model: "Biograph mCT"},
		{Manufacturer: "GE MEDICAL SYSTEMS", Model: "Discovery MI"},
		{Manufacturer: "PHILIPS", Model: "Vereos PET/CT"},
	}
}

// SeriesParams holds modality-specific parameters for a series.
type SeriesParams struct {
	Modality     Modality
	Scanner      Scanner
	WindowCenter float64
	WindowWidth  float64

	RescaleIntercept float64
	RescaleSlope     float64

	// CT-specific
	KVP               float64 // Tube voltage (kV)
	XRayTubeCurrent   int     // Tube current (mA)
	ConvolutionKernel string

	// PT-specific. Empty strings and zero values leave the element out.
	Units               string  // BQML for activity concentration
	PatientWeightKg     float64 // kg
	Radiopharmaceutical string
	InjectedDoseBq      float64
	HalfLifeSeconds     float64
	InjectionTime       string // HHMMSS[.ffffff]
	AcquisitionTime     string // HHMMSS[.ffffff]
}

// PixelConfig holds pixel data configuration for a modality.
type PixelConfig struct {
	BitsAllocated       uint16
	BitsStored          uint16
	HighBit             uint16
	PixelRepresentation uint16 // 0 = unsigned, 1 = signed
}

// Generator defines the interface for modality-specific generators.
type Generator interface {
	// Modality returns the modality type.
	Modality() Modality

	// SOPClassUID returns the SOP Class UID for this modality.
	SOPClassUID() string

	// DefaultParams returns typical acquisition parameters.
	DefaultParams(scanner Scanner) SeriesParams

	// PixelConfig returns pixel data configuration.
	PixelConfig() PixelConfig

	// AppendModalityElements appends modality-specific DICOM elements to a dataset.
	AppendModalityElements(ds *dicom.Dataset, params SeriesParams) error
}

// GetGenerator returns the generator for the specified modality.
func GetGenerator(m Modality) Generator {
	switch m {
	case PT:
		return &PTGenerator{}
	case CT:
		fallthrough
	default:
		return &CTGenerator{}
	}
}
