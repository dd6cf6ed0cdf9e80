package suv

import (
	"fmt"
	"math"
	"strings"

	"github.com/mrsinham/spinesuv/internal/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// RequiredUnits is the only PET unit SUV is computed from.
const RequiredUnits = "BQML"

// UnsupportedUnitsError rejects PET series not stored as activity
// concentration.
type UnsupportedUnitsError struct {
	Units string
}

func (e *UnsupportedUnitsError) Error() string {
	return fmt.Sprintf("PET units are %q, %s is required for SUV", e.Units, RequiredUnits)
}

// Metadata is what SUV computation needs from one PET series.
type Metadata struct {
	PatientWeightG   float64
	InjectedDoseBq   float64
	HalfLifeSeconds  float64
	InjectionTime    string
	AcquisitionTime  string
	RescaleSlope     float64
	RescaleIntercept float64
	Units            string

	TimeDiffSeconds float64
	DecayConstant   float64
	DecayedDoseBq   float64
}

// NewMetadata validates the raw fields and fills the derived ones.
func NewMetadata(m Metadata) (Metadata, error) {
	if strings.TrimSpace(m.Units) != RequiredUnits {
		return Metadata{}, &UnsupportedUnitsError{Units: m.Units}
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"PatientWeight", m.PatientWeightG},
		{"RadionuclideTotalDose", m.InjectedDoseBq},
		{"RadionuclideHalfLife", m.HalfLifeSeconds},
	} {
		if !(f.value > 0) || math.IsInf(f.value, 0) {
			return Metadata{}, &dicom.MalformedDicomError{Tag: f.name, Reason: fmt.Sprintf("must be positive, got %g", f.value)}
		}
	}
	inj, err := ParseTime(m.InjectionTime)
	if err != nil {
		return Metadata{}, err
	}
	acq, err := ParseTime(m.AcquisitionTime)
	if err != nil {
		return Metadata{}, err
	}

	m.TimeDiffSeconds = TimeDifference(inj, acq)
	m.DecayConstant = DecayConstant(m.HalfLifeSeconds)
	m.DecayedDoseBq = DecayedDose(m.InjectedDoseBq, m.DecayConstant, m.TimeDiffSeconds)
	return m, nil
}

// ExtractMetadata reads the SUV metadata of a PET slice. Nothing but the
// rescale pair has a default.
func ExtractMetadata(o *dicom.Object) (Metadata, error) {
	weightKg, err := o.Float(tag.PatientWeight)
	if err != nil {
		return Metadata{}, err
	}
	radio, err := o.SequenceItem(tag.RadiopharmaceuticalInformationSequence, 0)
	if err != nil {
		return Metadata{}, err
	}
	dose, err := radio.Float(tag.RadionuclideTotalDose)
	if err != nil {
		return Metadata{}, err
	}
	halfLife, err := radio.Float(tag.RadionuclideHalfLife)
	if err != nil {
		return Metadata{}, err
	}
	injection, ok := radio.String(tag.RadiopharmaceuticalStartTime)
	if !ok {
		return Metadata{}, &dicom.MalformedDicomError{Path: o.Path, Tag: "RadiopharmaceuticalStartTime", Reason: "tag absent"}
	}
	acquisition, ok := o.String(tag.AcquisitionTime)
	if !ok {
		return Metadata{}, &dicom.MalformedDicomError{Path: o.Path, Tag: "AcquisitionTime", Reason: "tag absent"}
	}
	units, _ := o.String(tag.Units)
	slope, intercept := dicom.Rescale(o)

	return NewMetadata(Metadata{
		PatientWeightG:   weightKg * 1000,
		InjectedDoseBq:   dose,
		HalfLifeSeconds:  halfLife,
		InjectionTime:    injection,
		AcquisitionTime:  acquisition,
		RescaleSlope:     slope,
		RescaleIntercept: intercept,
		Units:            units,
	})
}

// Representative returns the slice with the lowest InstanceNumber. Slices
// without one are ignored.
func Representative(objects []*dicom.Object) (*dicom.Object, error) {
	var best *dicom.Object
	bestN := 0
	for _, o := range objects {
		n, err := o.Int(tag.InstanceNumber)
		if err != nil {
			continue
		}
		if best == nil || n < bestN {
			best, bestN = o, n
		}
	}
	if best == nil {
		return nil, &dicom.MalformedDicomError{Tag: "InstanceNumber", Reason: "no slice carries an instance number"}
	}
	return best, nil
}
