package dicom

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/mrsinham/spinesuv/internal/dicom/modalities"
)

func ctSpec(dir string) SeriesSpec {
	gen := modalities.GetGenerator(modalities.CT)
	return SeriesSpec{
		OutputDir:           dir,
		Modality:            modalities.CT,
		Params:              gen.DefaultParams(modalities.Scanners()[0]),
		Patient:             Patient{ID: "P001", Name: "Test^Patient", BirthDate: "19600101", Sex: "F"},
		StudyUID:            DeterministicUID("loader_test_study"),
		FrameOfReferenceUID: DeterministicUID("loader_test_for"),
		StudyDescription:    "PET-CT WB",
		StudyDate:           "20240101",
		StudyTime:           "080000",
		SeriesNumber:        3,
		SeriesDescription:   "CT WB 3.0 B30f",
		NumSlices:           4,
		Rows:                3,
		Cols:                5,
		PixelSpacing:        [2]float64{0.8, 0.9},
		SliceThickness:      2.5,
		Origin:              [3]float64{-10, -20, -300},
		Orientation:         [6]float64{1, 0, 0, 0, 1, 0},
		// HU encodes the voxel position so ordering mistakes are visible.
		Values:  func(s, r, c int) float64 { return float64(100*s + 10*r + c) },
		Workers: 2,
	}
}

func TestWriteAndLoadSeries(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteSeries(ctSpec(dir)); err != nil {
		t.Fatalf("WriteSeries: %v", err)
	}

	objects, err := ReadSeries(dir, Filter{StudyDescription: "PET-CT", SeriesNumber: 3, DCMOnly: true, RequirePixelData: true})
	if err != nil {
		t.Fatalf("ReadSeries: %v", err)
	}
	if len(objects) != 4 {
		t.Fatalf("ReadSeries returned %d objects, want 4", len(objects))
	}

	// Feed the loader in reverse order; it must restore the z order.
	reversed := make([]*Object, len(objects))
	for i, o := range objects {
		reversed[len(objects)-1-i] = o
	}
	v, err := LoadSeries(reversed)
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}

	if v.Shape != [3]int{4, 3, 5} {
		t.Fatalf("shape = %v, want [4 3 5]", v.Shape)
	}
	for s := 0; s < 4; s++ {
		for r := 0; r < 3; r++ {
			for c := 0; c < 5; c++ {
				want := float64(100*s + 10*r + c)
				if got := v.At(s, r, c); got != want {
					t.Fatalf("voxel (%d,%d,%d) = %g, want %g", s, r, c, got, want)
				}
			}
		}
	}
	if v.Spacing != [3]float64{0.8, 0.9, 2.5} {
		t.Errorf("spacing = %v, want [0.8 0.9 2.5]", v.Spacing)
	}
	if v.Origin != [3]float64{-10, -20, -300} {
		t.Errorf("origin = %v, want [-10 -20 -300]", v.Origin)
	}
	for i, want := range []float64{1, 0, 0, 0, 1, 0, 0, 0, 1} {
		if math.Abs(v.Direction[i]-want) > 1e-12 {
			t.Errorf("direction = %v, want identity", v.Direction)
			break
		}
	}
	t.Logf("✓ Loaded %v volume with rescale and z ordering applied", v.Shape)
}

func TestLoadSeriesRequiresOrientation(t *testing.T) {
	dir := t.TempDir()
	spec := ctSpec(dir)
	spec.Omit = []tag.Tag{tag.ImageOrientationPatient}
	if _, err := WriteSeries(spec); err != nil {
		t.Fatalf("WriteSeries: %v", err)
	}
	objects, err := ReadSeries(dir, Filter{SeriesNumber: 3})
	if err != nil {
		t.Fatalf("ReadSeries: %v", err)
	}
	_, err = LoadSeries(objects)
	var malformed *MalformedDicomError
	if !errors.As(err, &malformed) {
		t.Fatalf("LoadSeries error = %v, want MalformedDicomError", err)
	}
	if malformed.Tag != "ImageOrientationPatient" {
		t.Errorf("malformed tag = %q, want ImageOrientationPatient", malformed.Tag)
	}
}

func TestSortSlicesFallsBackToInstanceNumber(t *testing.T) {
	dir := t.TempDir()
	spec := ctSpec(dir)
	spec.Omit = []tag.Tag{tag.ImagePositionPatient}
	if _, err := WriteSeries(spec); err != nil {
		t.Fatalf("WriteSeries: %v", err)
	}
	objects, err := ReadSeries(dir, Filter{SeriesNumber: 3})
	if err != nil {
		t.Fatalf("ReadSeries: %v", err)
	}
	reversed := []*Object{objects[3], objects[1], objects[2], objects[0]}
	sorted := SortSlices(reversed)
	for i, o := range sorted {
		n, err := o.Int(tag.InstanceNumber)
		if err != nil {
			t.Fatal(err)
		}
		if n != i+1 {
			t.Errorf("sorted[%d] has InstanceNumber %d, want %d", i, n, i+1)
		}
	}

	// Position is still required for the origin.
	_, err = LoadSeries(objects)
	var malformed *MalformedDicomError
	if !errors.As(err, &malformed) {
		t.Errorf("LoadSeries error = %v, want MalformedDicomError", err)
	}
}

func TestReadSeriesMissing(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteSeries(ctSpec(dir)); err != nil {
		t.Fatalf("WriteSeries: %v", err)
	}
	tests := []struct {
		name   string
		filter Filter
	}{
		{"wrong series number", Filter{SeriesNumber: 5}},
		{"wrong study", Filter{StudyDescription: "BRAIN"}},
		{"wrong description", Filter{SeriesDescription: "[WB_CTAC]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadSeries(dir, tt.filter)
			var missing *MissingSeriesError
			if !errors.As(err, &missing) {
				t.Errorf("ReadSeries error = %v, want MissingSeriesError", err)
			}
		})
	}
}

func TestCopySeriesAndMarker(t *testing.T) {
	src := t.TempDir()
	if _, err := WriteSeries(ctSpec(src)); err != nil {
		t.Fatalf("WriteSeries: %v", err)
	}
	// Non-DICOM files are ignored, extensionless DICOM files are copied.
	if err := os.WriteFile(filepath.Join(src, "notes.txt"), []byte("not dicom"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(filepath.Join(src, "CT0001.dcm"), filepath.Join(src, "CT0001")); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(t.TempDir(), "staging")
	n, err := CopySeries(src, dst, Filter{StudyDescription: "PET", SeriesNumber: 3})
	if err != nil {
		t.Fatalf("CopySeries: %v", err)
	}
	if n != 4 {
		t.Errorf("CopySeries copied %d files, want 4", n)
	}
	if _, err := os.Stat(filepath.Join(dst, "CT0001")); err != nil {
		t.Errorf("extensionless file not copied: %v", err)
	}

	has, err := HasSeriesDescription(src, "B30f")
	if err != nil || !has {
		t.Errorf("HasSeriesDescription(B30f) = %v, %v; want true", has, err)
	}
	has, err = HasSeriesDescription(src, "iMAR")
	if err != nil || has {
		t.Errorf("HasSeriesDescription(iMAR) = %v, %v; want false", has, err)
	}
}

func TestDirectionCrossProduct(t *testing.T) {
	// Sagittal: rows along y, columns along -z.
	d := Direction([]float64{0, 1, 0, 0, 0, -1})
	want := [9]float64{0, 1, 0, 0, 0, -1, -1, 0, 0}
	for i := range want {
		if math.Abs(d[i]-want[i]) > 1e-12 {
			t.Fatalf("Direction = %v, want %v", d, want)
		}
	}
}

func TestDeterministicUID(t *testing.T) {
	a := DeterministicUID("study-1")
	if a != DeterministicUID("study-1") {
		t.Error("DeterministicUID is not stable")
	}
	if a == DeterministicUID("study-2") {
		t.Error("different keys produced the same UID")
	}
	if len(a) > 64 {
		t.Errorf("UID %q longer than 64 characters", a)
	}
}

func TestRescaleNeedsBothTags(t *testing.T) {
	slope := mustNewElement(tag.RescaleSlope, []string{"2.5"})
	intercept := mustNewElement(tag.RescaleIntercept, []string{"-1024"})
	tests := []struct {
		name          string
		elements      []*dicom.Element
		wantSlope     float64
		wantIntercept float64
	}{
		{"both", []*dicom.Element{slope, intercept}, 2.5, -1024},
		{"slope only", []*dicom.Element{slope}, 1, 0},
		{"intercept only", []*dicom.Element{intercept}, 1, 0},
		{"neither", nil, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Object{Dataset: dicom.Dataset{Elements: tt.elements}}
			s, b := Rescale(o)
			if s != tt.wantSlope || b != tt.wantIntercept {
				t.Errorf("Rescale() = (%g, %g), want (%g, %g)", s, b, tt.wantSlope, tt.wantIntercept)
			}
		})
	}
}

func TestTagNameUsesKeyword(t *testing.T) {
	tests := map[tag.Tag]string{
		tag.ImageOrientationPatient: "ImageOrientationPatient",
		tag.PatientWeight:           "PatientWeight",
		tag.RadionuclideHalfLife:    "RadionuclideHalfLife",
	}
	for tg, want := range tests {
		if got := TagName(tg); got != want {
			t.Errorf("TagName(%v) = %q, want %q", tg, got, want)
		}
	}
}
