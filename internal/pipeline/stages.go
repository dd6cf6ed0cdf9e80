package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/mrsinham/spinesuv/internal/dicom"
	"github.com/mrsinham/spinesuv/internal/orient"
	"github.com/mrsinham/spinesuv/internal/region"
	"github.com/mrsinham/spinesuv/internal/resample"
	"github.com/mrsinham/spinesuv/internal/segmentation"
	"github.com/mrsinham/spinesuv/internal/suv"
)

// StagingDir is the engine input folder of a patient.
func (p *Pipeline) StagingDir(id string) string {
	return filepath.Join(p.cfg.WorkDir, "input_ts", id)
}

// OutputPrefix is where the engine writes the label volumes of a patient.
func (p *Pipeline) OutputPrefix(id string) string {
	return filepath.Join(p.cfg.WorkDir, p.cfg.Segmentation.OutputPrefix+id)
}

// segment stages the CT, runs the engine and brings CT and mask into the
// canonical frame.
func (p *Pipeline) segment(ctx context.Context, id string) (SegmentationRecord, error) {
	log := p.logger.WithFields(logrus.Fields{"stage": StageSegmentation, "patient": id})
	stager := &segmentation.Stager{
		StudyDescription:     p.cfg.CT.StudyDescription,
		SeriesNumber:         p.cfg.CT.SeriesNumber,
		FallbackSeriesNumber: p.cfg.CT.FallbackSeriesNumber,
		Marker:               p.cfg.CT.Marker,
		MarkerSeriesNumber:   p.cfg.CT.MarkerSeriesNumber,
		Logger:               log,
	}
	staging := p.StagingDir(id)
	staged, err := stager.Stage(p.patientDir(id), staging)
	if err != nil {
		return SegmentationRecord{}, fmt.Errorf("stage CT: %w", err)
	}
	log.WithFields(logrus.Fields{"series": staged.SeriesNumber, "files": staged.Files}).Debug("CT staged")

	prefix := p.OutputPrefix(id)
	if err := p.engine.Run(ctx, staging, prefix); err != nil {
		return SegmentationRecord{}, err
	}
	mask, err := segmentation.LoadCombined(prefix, segmentation.Labels)
	if err != nil {
		return SegmentationRecord{}, err
	}

	objects, err := dicom.ReadSeries(staging, dicom.Filter{RequirePixelData: true})
	if err != nil {
		return SegmentationRecord{}, fmt.Errorf("read staged CT: %w", err)
	}
	ct, err := dicom.LoadSeries(objects)
	if err != nil {
		return SegmentationRecord{}, fmt.Errorf("load staged CT: %w", err)
	}

	rct, rmask := orient.ReorientAndRotate(ct.Array, mask)
	if rct.Shape != rmask.Shape {
		return SegmentationRecord{}, fmt.Errorf("mask shape %v does not match CT shape %v", rmask.Shape, rct.Shape)
	}
	return SegmentationRecord{
		CT:           rct,
		Mask:         rmask,
		SeriesNumber: staged.SeriesNumber,
		Spacing:      ct.Spacing,
	}, nil
}

// petFilter selects the attenuation-corrected whole-body PET, or the
// alternate protocol series when the folder carries its marker.
func (p *Pipeline) petFilter(dir string) (dicom.Filter, error) {
	desc := p.cfg.PET.SeriesDescription
	if p.cfg.PET.Marker != "" {
		found, err := dicom.HasSeriesDescription(dir, p.cfg.PET.Marker)
		if err != nil {
			return dicom.Filter{}, err
		}
		if found {
			desc = p.cfg.PET.MarkerSeriesDescription
		}
	}
	return dicom.Filter{
		SeriesDescription: desc,
		RequirePixelData:  true,
		RequirePosition:   true,
		DCMOnly:           true,
	}, nil
}

// register resamples the PET onto the CT grid and aligns it with the
// canonical mask.
func (p *Pipeline) register(ctx context.Context, id string, ctSeries int) (RegistrationRecord, error) {
	dir := p.patientDir(id)
	filter, err := p.petFilter(dir)
	if err != nil {
		return RegistrationRecord{}, err
	}
	petObjects, err := dicom.ReadSeries(dir, filter)
	if err != nil {
		return RegistrationRecord{}, fmt.Errorf("read PET: %w", err)
	}
	ctObjects, err := dicom.ReadSeries(dir, dicom.Filter{SeriesNumber: ctSeries, RequirePixelData: true})
	if err != nil {
		return RegistrationRecord{}, fmt.Errorf("read CT: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return RegistrationRecord{}, err
	}

	pet, err := dicom.LoadSeries(petObjects)
	if err != nil {
		return RegistrationRecord{}, fmt.Errorf("load PET: %w", err)
	}
	ct, err := dicom.LoadSeries(ctObjects)
	if err != nil {
		return RegistrationRecord{}, fmt.Errorf("load CT: %w", err)
	}

	resampled, err := resample.ToReference(pet, ct)
	if err != nil {
		return RegistrationRecord{}, fmt.Errorf("resample PET: %w", err)
	}
	reversed := resampled.Array.Reverse()
	threshold, ok := region.FirstNonzeroSlice(reversed)
	if !ok {
		return RegistrationRecord{}, fmt.Errorf("PET is empty after resampling onto the CT grid")
	}
	final, err := region.CropAndResize(reversed, threshold)
	if err != nil {
		return RegistrationRecord{}, err
	}
	return RegistrationRecord{
		PET:                  final,
		Threshold:            threshold,
		CTSeriesNumber:       ctSeries,
		PETSeriesDescription: filter.SeriesDescription,
	}, nil
}

// merge canonicalizes the mask, crops it with the PET and masks the PET.
func (p *Pipeline) merge(seg SegmentationRecord, reg RegistrationRecord) (MergeRecord, error) {
	ct := orient.CustomTransform(seg.CT)
	if p.cfg.CTMasksFlipped {
		ct = ct.Reverse()
	}
	mask := orient.CustomTransformMask(seg.Mask)

	cropped, pet, err := region.Crop(mask, reg.PET, p.cfg.Padding)
	if err != nil {
		return MergeRecord{}, err
	}
	masked, err := region.Multiply(pet, region.Binarize(cropped))
	if err != nil {
		return MergeRecord{}, err
	}
	return MergeRecord{CT: ct, Mask: cropped, MaskedPET: masked}, nil
}

// metadata reads the SUV metadata of the lowest-numbered PET slice.
func (p *Pipeline) metadata(ctx context.Context, id string) (suv.Metadata, error) {
	dir := p.patientDir(id)
	filter, err := p.petFilter(dir)
	if err != nil {
		return suv.Metadata{}, err
	}
	paths, err := dicom.Scan(dir, filter)
	if err != nil {
		return suv.Metadata{}, err
	}
	objects := make([]*dicom.Object, 0, len(paths))
	for _, path := range paths {
		o, err := dicom.ReadHeader(path)
		if err != nil {
			continue
		}
		objects = append(objects, o)
	}
	if len(objects) == 0 {
		return suv.Metadata{}, &dicom.MissingSeriesError{Dir: dir, Filter: filter}
	}
	rep, err := suv.Representative(objects)
	if err != nil {
		return suv.Metadata{}, err
	}
	return suv.ExtractMetadata(rep)
}

// computeSUV converts the masked PET to SUV and averages it per vertebra.
func computeSUV(m MergeRecord, meta suv.Metadata) (SUVRecord, error) {
	values, err := suv.Compute(m.MaskedPET, meta)
	if err != nil {
		return SUVRecord{}, err
	}
	means, err := suv.MeanByLabel(values, m.Mask)
	if err != nil {
		return SUVRecord{}, err
	}
	return SUVRecord{SUV: values, Means: means}, nil
}

// density averages the canonical CT per vertebra. Patients in the flip set
// have their CT reversed along the slice axis first.
func (p *Pipeline) density(id string, seg SegmentationRecord) (DensityRecord, error) {
	ct := orient.CustomTransform(seg.CT)
	mask := orient.CustomTransformMask(seg.Mask)
	flipped := contains(p.cfg.Density.FlipSet, id)
	if flipped {
		ct = ct.Reverse()
	}
	means, err := suv.MeanByLabel(ct, mask)
	if err != nil {
		return DensityRecord{}, err
	}
	return DensityRecord{Flipped: flipped, Means: means}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
