package modalities

import (
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func TestGetGenerator_CT(t *testing.T) {
	gen := GetGenerator(CT)
	if gen.Modality() != CT {
		t.Errorf("Expected CT modality, got %v", gen.Modality())
	}
	if gen.SOPClassUID() != "1.2.840.10008.5.1.4.1.1.2" {
		t.Errorf("Unexpected CT SOP Class UID: %s", gen.SOPClassUID())
	}
}

func TestGetGenerator_PT(t *testing.T) {
	gen := GetGenerator(PT)
	if gen.Modality() != PT {
		t.Errorf("Expected PT modality, got %v", gen.Modality())
	}
	if gen.SOPClassUID() != "1.2.840.10008.5.1.4.1.1.128" {
		t.Errorf("Unexpected PT SOP Class UID: %s", gen.SOPClassUID())
	}
}

func TestGetGenerator_Default(t *testing.T) {
	gen := GetGenerator(Modality("UNKNOWN"))
	if gen.Modality() != CT {
		t.Errorf("Unknown modality should default to CT, got %v", gen.Modality())
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"CT", true},
		{"PT", true},
		{"pt", false}, // case sensitive
		{"MR", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := IsValid(tt.input)
			if got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func findString(t *testing.T, elems []*dicom.Element, want tag.Tag) string {
	t.Helper()
	for _, e := range elems {
		if e.Tag == want {
			values, ok := e.Value.GetValue().([]string)
			if !ok || len(values) == 0 {
				t.Fatalf("tag %v has no string value", want)
			}
			return values[0]
		}
	}
	t.Fatalf("tag %v not found", want)
	return ""
}

func TestPTGenerator_AppendModalityElements(t *testing.T) {
	gen := &PTGenerator{}
	params := gen.DefaultParams(Scanners()[0])

	ds := &dicom.Dataset{}
	if err := gen.AppendModalityElements(ds, params); err != nil {
		t.Fatalf("AppendModalityElements: %v", err)
	}

	if got := findString(t, ds.Elements, tag.Units); got != "BQML" {
		t.Errorf("Units = %q, want BQML", got)
	}
	if got := findString(t, ds.Elements, tag.PatientWeight); got != "70" {
		t.Errorf("PatientWeight = %q, want 70", got)
	}

	var seq *dicom.Element
	for _, e := range ds.Elements {
		if e.Tag == tag.RadiopharmaceuticalInformationSequence {
			seq = e
		}
	}
	if seq == nil {
		t.Fatal("RadiopharmaceuticalInformationSequence not found")
	}
	items, ok := seq.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok || len(items) != 1 {
		t.Fatalf("expected one sequence item, got %v", seq.Value.GetValue())
	}
	inner, ok := items[0].GetValue().([]*dicom.Element)
	if !ok {
		t.Fatal("sequence item has no elements")
	}
	if got := findString(t, inner, tag.RadionuclideHalfLife); got != "6586.2" {
		t.Errorf("RadionuclideHalfLife = %q, want 6586.2", got)
	}
	if got := findString(t, inner, tag.RadiopharmaceuticalStartTime); got != "080000" {
		t.Errorf("RadiopharmaceuticalStartTime = %q, want 080000", got)
	}
	t.Logf("✓ PT elements carry units, weight and the radiopharmaceutical sequence")
}

func TestPTGenerator_OmitsEmptyValues(t *testing.T) {
	gen := &PTGenerator{}
	params := gen.DefaultParams(Scanners()[0])
	params.Units = ""
	params.PatientWeightKg = 0
	params.InjectionTime = ""
	params.InjectedDoseBq = 0
	params.HalfLifeSeconds = 0
	params.Radiopharmaceutical = ""

	ds := &dicom.Dataset{}
	if err := gen.AppendModalityElements(ds, params); err != nil {
		t.Fatalf("AppendModalityElements: %v", err)
	}
	for _, e := range ds.Elements {
		switch e.Tag {
		case tag.Units, tag.PatientWeight, tag.RadiopharmaceuticalInformationSequence:
			t.Errorf("tag %v should have been left out", e.Tag)
		}
	}
}

func TestCTGenerator_PixelConfig(t *testing.T) {
	cfg := (&CTGenerator{}).PixelConfig()
	if cfg.BitsAllocated != 16 || cfg.PixelRepresentation != 0 {
		t.Errorf("CT pixel config = %+v, want 16-bit unsigned", cfg)
	}
	params := (&CTGenerator{}).DefaultParams(Scanners()[0])
	if params.RescaleIntercept != -1024 {
		t.Errorf("CT RescaleIntercept = %g, want -1024", params.RescaleIntercept)
	}
}
