package modalities

import (
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// CTGenerator generates the attenuation CT of a PET/CT study.
type CTGenerator struct{}

// Modality returns the CT modality type.
func (g *CTGenerator) Modality() Modality {
	return CT
}

// SOPClassUID returns the CT Image Storage SOP Class UID.
func (g *CTGenerator) SOPClassUID() string {
	return "1.2.840.10008.5.1.4.1.1.2"
}

// DefaultParams returns a low-dose attenuation CT protocol.
func (g *CTGenerator) DefaultParams(scanner Scanner) SeriesParams {
	return SeriesParams{
		Modality:          CT,
		Scanner:           scanner,
		KVP:               120,
		XRayTubeCurrent:   80,
		ConvolutionKernel: "B30f",
		RescaleIntercept:  -1024, // stored 1024 is water
		RescaleSlope:      1,
		WindowCenter:      400,
		WindowWidth:       1800,
	}
}

// PixelConfig returns CT pixel data configuration.
func (g *CTGenerator) PixelConfig() PixelConfig {
	return PixelConfig{
		BitsAllocated:       16,
		BitsStored:          16,
		HighBit:             15,
		PixelRepresentation: 0,
	}
}

// AppendModalityElements appends CT-specific DICOM elements to a dataset.
func (g *CTGenerator) AppendModalityElements(ds *dicom.Dataset, params SeriesParams) error {
	elements := []*dicom.Element{
		mustNewElement(tag.KVP, []string{floatToDS(params.KVP)}),
		mustNewElement(tag.XRayTubeCurrent, []string{intToIS(params.XRayTubeCurrent)}),
		mustNewElement(tag.ConvolutionKernel, []string{params.ConvolutionKernel}),
		mustNewElement(tag.RescaleIntercept, []string{floatToDS(params.RescaleIntercept)}),
		mustNewElement(tag.RescaleSlope, []string{floatToDS(params.RescaleSlope)}),
		mustNewElement(tag.RescaleType, []string{"HU"}),
	}

	ds.Elements = append(ds.Elements, elements...)
	return nil
}
