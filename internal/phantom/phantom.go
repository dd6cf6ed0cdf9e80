// Package phantom writes synthetic PET/CT cohorts: per patient a CT series,
// a PET series on a coarser grid and the vertebra label volumes a
// segmentation engine would have produced. The voxel values are chosen so the
// per-vertebra means are known in closed form.
package phantom

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/mrsinham/spinesuv/internal/dicom"
	"github.com/mrsinham/spinesuv/internal/dicom/edgecases"
	"github.com/mrsinham/spinesuv/internal/dicom/modalities"
	"github.com/mrsinham/spinesuv/internal/orient"
	"github.com/mrsinham/spinesuv/internal/segmentation"
	"github.com/mrsinham/spinesuv/internal/suv"
	"github.com/mrsinham/spinesuv/internal/util"
	"github.com/mrsinham/spinesuv/internal/volume"
)

// Series numbers and descriptions of the synthetic studies.
const (
	StudyDescription     = "PET-CT WB"
	CTSeriesNumber       = 3
	CTMarkerSeriesNumber = 4
	CTFallbackSeries     = 5
	PETSeriesNumber      = 600

	ctDescription       = "CT WB 3.0 B30f"
	ctMarkerDescription = "CT iMAR WB 3.0"
	petDescription      = "PET WB [WB_CTAC]"
	petE2TDescription   = "PET AC Sag E2T"
)

// Voxel values.
const (
	softTissueHU  = 40.0
	vertebraBase  = 300.0
	vertebraStep  = 50.0
	petBackground = 200.0
	petBase       = 1000.0
	petGradient   = 100.0 // Bq/mL per mm along the slice axis
)

// Options configures a cohort.
type Options struct {
	OutputDir string // one directory per patient
	// MaskDir receives <MaskPrefix><patient>/vertebrae_<LABEL>.nii.gz.
	MaskDir    string
	MaskPrefix string

	NumPatients int
	Seed        uint64

	Slices, Rows, Cols int
	Spacing            float64 // CT mm, isotropic; the PET grid is twice as coarse

	EdgeCases edgecases.Config
	Tags      util.ParsedTags
	Overlay   bool
	Workers   int
	Quiet     bool
}

// PatientInfo describes one generated patient.
type PatientInfo struct {
	ID           string
	Dir          string
	MaskPrefix   string
	Demographics util.Demographics
	EdgeCase     edgecases.EdgeCaseType
	CTSeries     int

	// ExpectedSUV is the mean SUV per label, nil when the patient is
	// expected to fail SUV extraction.
	ExpectedSUV map[int32]float64
	// ExpectedHU is the mean CT value per label measured in CT order.
	ExpectedHU map[int32]float64
}

// Cohort is the result of Generate.
type Cohort struct {
	Patients []PatientInfo
	Files    int
}

func (o *Options) setDefaults() {
	if o.NumPatients <= 0 {
		o.NumPatients = 1
	}
	if o.Slices == 0 {
		o.Slices = 16
	}
	if o.Rows == 0 {
		o.Rows = 24
	}
	if o.Cols == 0 {
		o.Cols = 24
	}
	if o.Spacing == 0 {
		o.Spacing = 2
	}
	if o.MaskPrefix == "" {
		o.MaskPrefix = "segmentations_totalsegmentator_"
	}
}

// Validate checks the options before anything is written.
func (o *Options) Validate() error {
	if o.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if o.MaskDir == "" {
		return fmt.Errorf("mask directory is required")
	}
	if o.Slices < len(segmentation.Labels)+2 {
		return fmt.Errorf("at least %d slices are needed, got %d", len(segmentation.Labels)+2, o.Slices)
	}
	if o.Rows < 6 || o.Cols < 6 {
		return fmt.Errorf("rows and columns must be >= 6, got %dx%d", o.Rows, o.Cols)
	}
	if o.Spacing <= 0 {
		return fmt.Errorf("spacing must be > 0")
	}
	return o.EdgeCases.Validate()
}

// Generate writes the cohort.
func Generate(opts Options) (*Cohort, error) {
	opts.setDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x5eed))
	applicator := edgecases.NewApplicator(opts.EdgeCases, rng)
	geo := newGeometry(opts)

	cohort := &Cohort{}
	for i := 0; i < opts.NumPatients; i++ {
		id := fmt.Sprintf("patient-%03d", i+1)
		info, files, err := generatePatient(opts, geo, rng, applicator, id)
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", id, err)
		}
		cohort.Patients = append(cohort.Patients, info)
		cohort.Files += files
		if !opts.Quiet {
			suffix := ""
			if info.EdgeCase != "" {
				suffix = fmt.Sprintf(" [%s]", info.EdgeCase)
			}
			fmt.Printf("  %s: %d files%s\n", id, files, suffix)
		}
	}
	return cohort, nil
}

func generatePatient(opts Options, geo geometry, rng *rand.Rand, applicator *edgecases.Applicator, id string) (PatientInfo, int, error) {
	demo := util.GenerateDemographics(rng)
	info := PatientInfo{
		ID:           id,
		Dir:          filepath.Join(opts.OutputDir, id),
		MaskPrefix:   filepath.Join(opts.MaskDir, opts.MaskPrefix+id),
		Demographics: demo,
		EdgeCase:     applicator.Pick(),
		CTSeries:     CTSeriesNumber,
	}

	scanner := modalities.Scanners()[rng.IntN(len(modalities.Scanners()))]
	ctParams := modalities.GetGenerator(modalities.CT).DefaultParams(scanner)
	ptParams := modalities.GetGenerator(modalities.PT).DefaultParams(scanner)
	ptParams.PatientWeightKg = demo.WeightKg

	ctDesc, ptDesc := ctDescription, petDescription
	suvExpected := true
	switch info.EdgeCase {
	case edgecases.MidnightCrossing:
		ptParams.InjectionTime, ptParams.AcquisitionTime = applicator.MidnightTimes()
	case edgecases.TruncatedTimes:
		ptParams.InjectionTime = edgecases.TruncateTime(ptParams.InjectionTime)
		ptParams.AcquisitionTime = edgecases.TruncateTime(ptParams.AcquisitionTime)
	case edgecases.NonBQML:
		ptParams.Units = applicator.UnsupportedUnits()
		suvExpected = false
	case edgecases.MissingTags:
		for _, name := range applicator.GetTagsToOmit() {
			omitPTParam(&ptParams, name)
		}
		suvExpected = false
	case edgecases.IMARSeries:
		info.CTSeries = CTMarkerSeriesNumber
		ctDesc = ctMarkerDescription
	case edgecases.FallbackSeries:
		info.CTSeries = CTFallbackSeries
	case edgecases.E2TSeries:
		ptDesc = petE2TDescription
	}

	studyUID := dicom.DeterministicUID(fmt.Sprintf("%d_%s_study", opts.Seed, id))
	base := dicom.SeriesSpec{
		OutputDir:           info.Dir,
		Patient:             dicom.Patient{ID: id, Name: demo.Name, BirthDate: demo.BirthDate, Sex: demo.Sex},
		StudyUID:            studyUID,
		FrameOfReferenceUID: dicom.DeterministicUID(studyUID + "_for"),
		StudyDescription:    StudyDescription,
		StudyDate:           "20240102",
		StudyTime:           "080000",
		Orientation:         [6]float64{1, 0, 0, 0, 1, 0},
		Origin:              geo.origin,
		Workers:             opts.Workers,
	}

	ct := base
	ct.FilePrefix = fmt.Sprintf("CT%d_", info.CTSeries)
	ct.Modality = modalities.CT
	ct.Params = ctParams
	ct.SeriesNumber = info.CTSeries
	ct.SeriesDescription = ctDesc
	ct.NumSlices, ct.Rows, ct.Cols = opts.Slices, opts.Rows, opts.Cols
	ct.PixelSpacing = [2]float64{opts.Spacing, opts.Spacing}
	ct.SliceThickness = opts.Spacing
	ct.Values = geo.ctValue
	ct.Overrides = opts.Tags.ForModality(string(modalities.CT))
	ct.Overlay = opts.Overlay

	pt := base
	pt.FilePrefix = "PT_"
	pt.Modality = modalities.PT
	pt.Params = ptParams
	pt.SeriesNumber = PETSeriesNumber
	pt.SeriesDescription = ptDesc
	pt.NumSlices, pt.Rows, pt.Cols = geo.pet[0], geo.pet[1], geo.pet[2]
	pt.PixelSpacing = [2]float64{geo.petSpacing, geo.petSpacing}
	pt.SliceThickness = geo.petSpacing
	pt.Values = geo.petValue
	pt.Overrides = opts.Tags.ForModality(string(modalities.PT))

	ctFiles, err := dicom.WriteSeries(ct)
	if err != nil {
		return info, 0, fmt.Errorf("write CT: %w", err)
	}
	ptFiles, err := dicom.WriteSeries(pt)
	if err != nil {
		return info, 0, fmt.Errorf("write PET: %w", err)
	}
	if err := writeMasks(info.MaskPrefix, geo, opts.Spacing); err != nil {
		return info, 0, err
	}

	info.ExpectedHU = geo.expectedHU()
	if suvExpected {
		meta, err := suv.NewMetadata(suv.Metadata{
			PatientWeightG:  ptParams.PatientWeightKg * 1000,
			InjectedDoseBq:  ptParams.InjectedDoseBq,
			HalfLifeSeconds: ptParams.HalfLifeSeconds,
			InjectionTime:   ptParams.InjectionTime,
			AcquisitionTime: ptParams.AcquisitionTime,
			RescaleSlope:    1,
			Units:           ptParams.Units,
		})
		if err != nil {
			return info, 0, fmt.Errorf("expected metadata: %w", err)
		}
		info.ExpectedSUV = geo.expectedSUV(meta)
	}
	return info, len(ctFiles) + len(ptFiles), nil
}

// omitPTParam zeroes the parameter behind a PET tag; zero values are not
// written.
func omitPTParam(p *modalities.SeriesParams, name string) {
	switch name {
	case "PatientWeight":
		p.PatientWeightKg = 0
	case "RadiopharmaceuticalStartTime":
		p.InjectionTime = ""
	case "RadionuclideTotalDose":
		p.InjectedDoseBq = 0
	case "RadionuclideHalfLife":
		p.HalfLifeSeconds = 0
	case "AcquisitionTime":
		p.AcquisitionTime = ""
	}
}

// writeMasks writes one binary volume per vertebra in the engine layout.
func writeMasks(prefix string, geo geometry, spacing float64) error {
	if err := os.MkdirAll(prefix, 0755); err != nil {
		return fmt.Errorf("create mask dir: %w", err)
	}
	for i, name := range segmentation.Labels {
		label := int32(i + 1)
		a := volume.NewArray(geo.ct[0], geo.ct[1], geo.ct[2])
		for s := 0; s < geo.ct[0]; s++ {
			for r := 0; r < geo.ct[1]; r++ {
				for c := 0; c < geo.ct[2]; c++ {
					if geo.label(s, r, c) == label {
						a.Set(s, r, c, 1)
					}
				}
			}
		}
		path := segmentation.LabelPath(prefix, name)
		if err := segmentation.WriteLabelVolume(path, orient.ToEngineLayout(a), [3]float64{spacing, spacing, spacing}); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}
