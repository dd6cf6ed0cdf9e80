package modalities

import (
	"fmt"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// PTGenerator generates the attenuation-corrected PET of a PET/CT study.
type PTGenerator struct{}

// Modality returns the PT modality type.
func (g *PTGenerator) Modality() Modality {
	return PT
}

// SOPClassUID returns the Positron Emission Tomography Image Storage SOP Class UID.
func (g *PTGenerator) SOPClassUID() string {
	return "1.2.840.10008.5.1.4.1.1.128"
}

// DefaultParams returns an 18F-FDG whole-body protocol.
func (g *PTGenerator) DefaultParams(scanner Scanner) SeriesParams {
	return SeriesParams{
		Modality:            PT,
		Scanner:             scanner,
		Units:               "BQML",
		PatientWeightKg:     70,
		Radiopharmaceutical: "Fluorodeoxyglucose",
		InjectedDoseBq:      3.7e8,
		HalfLifeSeconds:     6586.2,
		InjectionTime:       "080000",
		AcquisitionTime:     "093000",
		RescaleIntercept:    0,
		RescaleSlope:        1,
		WindowCenter:        5000,
		WindowWidth:         10000,
	}
}

// PixelConfig returns PET pixel data configuration.
func (g *PTGenerator) PixelConfig() PixelConfig {
	return PixelConfig{
		BitsAllocated:       16,
		BitsStored:          16,
		HighBit:             15,
		PixelRepresentation: 0,
	}
}

// AppendModalityElements appends the activity and radiopharmaceutical
// elements SUV computation reads.
func (g *PTGenerator) AppendModalityElements(ds *dicom.Dataset, params SeriesParams) error {
	elements := []*dicom.Element{
		mustNewElement(tag.RescaleIntercept, []string{floatToDS(params.RescaleIntercept)}),
		mustNewElement(tag.RescaleSlope, []string{floatToDS(params.RescaleSlope)}),
		mustNewElement(tag.DecayCorrection, []string{"START"}),
		mustNewElement(tag.CorrectedImage, []string{"DECY", "ATTN"}),
	}
	if params.Units != "" {
		elements = append(elements, mustNewElement(tag.Units, []string{params.Units}))
	}
	if params.PatientWeightKg > 0 {
		elements = append(elements, mustNewElement(tag.PatientWeight, []string{floatToDS(params.PatientWeightKg)}))
	}
	if params.AcquisitionTime != "" {
		elements = append(elements, mustNewElement(tag.AcquisitionTime, []string{params.AcquisitionTime}))
	}

	var item []*dicom.Element
	if params.Radiopharmaceutical != "" {
		item = append(item, mustNewElement(tag.Radiopharmaceutical, []string{params.Radiopharmaceutical}))
	}
	if params.InjectionTime != "" {
		item = append(item, mustNewElement(tag.RadiopharmaceuticalStartTime, []string{params.InjectionTime}))
	}
	if params.InjectedDoseBq > 0 {
		item = append(item, mustNewElement(tag.RadionuclideTotalDose, []string{floatToDS(params.InjectedDoseBq)}))
	}
	if params.HalfLifeSeconds > 0 {
		item = append(item, mustNewElement(tag.RadionuclideHalfLife, []string{floatToDS(params.HalfLifeSeconds)}))
	}
	if len(item) > 0 {
		seq, err := dicom.NewElement(tag.RadiopharmaceuticalInformationSequence, [][]*dicom.Element{item})
		if err != nil {
			return fmt.Errorf("build radiopharmaceutical sequence: %w", err)
		}
		elements = append(elements, seq)
	}

	ds.Elements = append(ds.Elements, elements...)
	return nil
}
