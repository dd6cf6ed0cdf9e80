package phantom

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mrsinham/spinesuv/internal/dicom"
	"github.com/mrsinham/spinesuv/internal/dicom/edgecases"
	"github.com/mrsinham/spinesuv/internal/orient"
	"github.com/mrsinham/spinesuv/internal/segmentation"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	return Options{
		OutputDir: filepath.Join(dir, "data"),
		MaskDir:   filepath.Join(dir, "work"),
		Seed:      42,
		Quiet:     true,
	}
}

func TestGenerate(t *testing.T) {
	opts := testOptions(t)
	opts.NumPatients = 2

	cohort, err := Generate(opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(cohort.Patients) != 2 {
		t.Fatalf("patients = %d, want 2", len(cohort.Patients))
	}
	// 16 CT slices and 9 PET slices per patient with the default grid.
	if cohort.Files != 2*(16+9) {
		t.Errorf("files = %d, want %d", cohort.Files, 2*(16+9))
	}

	for _, p := range cohort.Patients {
		entries, err := os.ReadDir(p.Dir)
		if err != nil {
			t.Fatalf("read %s: %v", p.Dir, err)
		}
		var ct, pt int
		for _, e := range entries {
			switch {
			case strings.HasPrefix(e.Name(), "CT3_"):
				ct++
			case strings.HasPrefix(e.Name(), "PT_"):
				pt++
			}
		}
		if ct != 16 || pt != 9 {
			t.Errorf("%s: %d CT and %d PT files, want 16 and 9", p.ID, ct, pt)
		}
		for _, name := range segmentation.Labels {
			if _, err := os.Stat(segmentation.LabelPath(p.MaskPrefix, name)); err != nil {
				t.Errorf("%s: missing mask %s: %v", p.ID, name, err)
			}
		}
		if len(p.ExpectedSUV) != len(segmentation.Labels) || len(p.ExpectedHU) != len(segmentation.Labels) {
			t.Fatalf("%s: expected means for %d/%d labels", p.ID, len(p.ExpectedSUV), len(p.ExpectedHU))
		}
		// Activity grows along the slice axis, so does SUV per label.
		for l := int32(2); l <= int32(len(segmentation.Labels)); l++ {
			if !(p.ExpectedSUV[l] > p.ExpectedSUV[l-1]) {
				t.Errorf("%s: SUV[%d]=%g not above SUV[%d]=%g", p.ID, l, p.ExpectedSUV[l], l-1, p.ExpectedSUV[l-1])
			}
		}
	}
	t.Logf("✓ Generated %d files, SUV[T12]=%.3f", cohort.Files, cohort.Patients[0].ExpectedSUV[1])
}

func TestGenerateDeterministic(t *testing.T) {
	a, err := Generate(testOptions(t))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate(testOptions(t))
	if err != nil {
		t.Fatal(err)
	}
	if a.Patients[0].Demographics != b.Patients[0].Demographics {
		t.Errorf("demographics differ: %+v vs %+v", a.Patients[0].Demographics, b.Patients[0].Demographics)
	}
	for l, v := range a.Patients[0].ExpectedSUV {
		if b.Patients[0].ExpectedSUV[l] != v {
			t.Errorf("SUV[%d] differs: %g vs %g", l, v, b.Patients[0].ExpectedSUV[l])
		}
	}
}

func TestGeneratedCTValues(t *testing.T) {
	opts := testOptions(t)
	cohort, err := Generate(opts)
	if err != nil {
		t.Fatal(err)
	}
	p := cohort.Patients[0]

	objects, err := dicom.ReadSeries(p.Dir, dicom.Filter{SeriesNumber: CTSeriesNumber, RequirePixelData: true})
	if err != nil {
		t.Fatalf("ReadSeries: %v", err)
	}
	ct, err := dicom.LoadSeries(objects)
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	opts.setDefaults()
	geo := newGeometry(opts)
	if ct.Shape != geo.ct {
		t.Fatalf("CT shape = %v, want %v", ct.Shape, geo.ct)
	}
	for s := 0; s < ct.Shape[0]; s++ {
		for r := 0; r < ct.Shape[1]; r++ {
			for c := 0; c < ct.Shape[2]; c++ {
				if got, want := ct.At(s, r, c), geo.ctValue(s, r, c); got != want {
					t.Fatalf("CT(%d,%d,%d) = %g, want %g", s, r, c, got, want)
				}
			}
		}
	}

	mask, err := segmentation.LoadCombined(p.MaskPrefix, segmentation.Labels)
	if err != nil {
		t.Fatalf("LoadCombined: %v", err)
	}
	if got := mask.Present(); len(got) != len(segmentation.Labels) {
		t.Errorf("labels present = %v", got)
	}
	// In the analysis frame the mask is the drawn layout reversed along the
	// slice axis, the same way the registered PET is.
	_, rmask := orient.ReorientAndRotate(ct.Array, mask)
	canonical := orient.CustomTransformMask(rmask)
	if canonical.Shape != geo.ct {
		t.Fatalf("canonical mask shape = %v, want %v", canonical.Shape, geo.ct)
	}
	n := geo.ct[0]
	for s := 0; s < n; s++ {
		for r := 0; r < geo.ct[1]; r++ {
			for c := 0; c < geo.ct[2]; c++ {
				if got, want := canonical.At(n-1-s, r, c), geo.label(s, r, c); got != want {
					t.Fatalf("mask(%d,%d,%d) = %d, want %d", n-1-s, r, c, got, want)
				}
			}
		}
	}
	t.Logf("✓ CT and masks agree on a %v grid", geo.ct)
}

func TestGeometryPETIsLinearInsideColumn(t *testing.T) {
	opts := Options{Slices: 16, Rows: 24, Cols: 24, Spacing: 2}
	geo := newGeometry(opts)

	// A PET voxel above the mask column.
	r, c := geo.rowLo/2, geo.colLo/2
	for s := 1; s < geo.pet[0]; s++ {
		step := geo.petValue(s, r, c) - geo.petValue(s-1, r, c)
		if math.Abs(step-petGradient*geo.petSpacing) > 1e-9 {
			t.Fatalf("PET step at slice %d = %g", s, step)
		}
	}
	if v := geo.petValue(0, 0, 0); v != petBackground {
		t.Errorf("corner PET = %g, want background", v)
	}
	if got := geo.slices(1); len(got) != geo.band || got[0] != 1 {
		t.Errorf("label 1 slices = %v", got)
	}
}

func TestGenerateEdgeCases(t *testing.T) {
	tests := []struct {
		kind     edgecases.EdgeCaseType
		series   int
		wantSUV  bool
		ctPrefix string
	}{
		{edgecases.NonBQML, CTSeriesNumber, false, "CT3_"},
		{edgecases.MissingTags, CTSeriesNumber, false, "CT3_"},
		{edgecases.MidnightCrossing, CTSeriesNumber, true, "CT3_"},
		{edgecases.TruncatedTimes, CTSeriesNumber, true, "CT3_"},
		{edgecases.IMARSeries, CTMarkerSeriesNumber, true, "CT4_"},
		{edgecases.FallbackSeries, CTFallbackSeries, true, "CT5_"},
		{edgecases.E2TSeries, CTSeriesNumber, true, "CT3_"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			opts := testOptions(t)
			opts.EdgeCases = edgecases.Config{Percentage: 100, Types: []edgecases.EdgeCaseType{tt.kind}}
			cohort, err := Generate(opts)
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			p := cohort.Patients[0]
			if p.EdgeCase != tt.kind {
				t.Fatalf("edge case = %q, want %q", p.EdgeCase, tt.kind)
			}
			if p.CTSeries != tt.series {
				t.Errorf("CT series = %d, want %d", p.CTSeries, tt.series)
			}
			if (p.ExpectedSUV != nil) != tt.wantSUV {
				t.Errorf("expected SUV present = %v, want %v", p.ExpectedSUV != nil, tt.wantSUV)
			}
			if _, err := os.Stat(filepath.Join(p.Dir, tt.ctPrefix+"0001.dcm")); err != nil {
				t.Errorf("first CT slice: %v", err)
			}
		})
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
		want   string
	}{
		{"no output", func(o *Options) { o.OutputDir = "" }, "output directory"},
		{"no masks", func(o *Options) { o.MaskDir = "" }, "mask directory"},
		{"too few slices", func(o *Options) { o.Slices = 5 }, "slices"},
		{"tiny plane", func(o *Options) { o.Rows = 4 }, "rows and columns"},
		{"bad percentage", func(o *Options) { o.EdgeCases.Percentage = 120 }, "percentage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{OutputDir: "out", MaskDir: "masks"}
			opts.setDefaults()
			tt.modify(&opts)
			err := opts.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}
