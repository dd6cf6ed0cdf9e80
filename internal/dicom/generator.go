package dicom

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/big"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mrsinham/spinesuv/internal/dicom/modalities"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Patient identifies the subject of a synthetic series.
type Patient struct {
	ID        string
	Name      string
	BirthDate string
	Sex       string
}

// SeriesSpec describes one synthetic series. Values returns the physical
// value (HU for CT, Bq/mL for PET) of a voxel; stored values are derived
// through the rescale slope and intercept of Params.
type SeriesSpec struct {
	OutputDir  string
	FilePrefix string

	Modality modalities.Modality
	Params   modalities.SeriesParams
	Patient  Patient

	StudyUID            string
	FrameOfReferenceUID string
	StudyDescription    string
	StudyDate           string
	StudyTime           string
	SeriesNumber        int
	SeriesDescription   string

	NumSlices      int
	Rows, Cols     int
	PixelSpacing   [2]float64
	SliceThickness float64
	Origin         [3]float64 // ImagePositionPatient of the first slice
	Orientation    [6]float64
	Values         func(slice, row, col int) float64

	// Overrides replaces string element values by tag on every slice.
	Overrides map[tag.Tag]string
	// Omit drops these tags from every slice.
	Omit []tag.Tag
	// Overlay burns "<patient> <slice>/<n>" into the image corner.
	Overlay bool
	Workers int
}

// GeneratedFile contains information about a generated DICOM file
type GeneratedFile struct {
	Path           string
	SeriesUID      string
	SOPInstanceUID string
	InstanceNumber int
}

// imageTask contains all data needed to write a single slice
type imageTask struct {
	index    int
	filePath string
	metadata []*dicom.Element
	pixels   *frame.NativeFrame[uint16]
}

// DeterministicUID derives a stable DICOM UID from a key (UUID-derived
// "2.25." form).
func DeterministicUID(key string) string {
	u := uuid.NewSHA1(uuid.NameSpaceOID, []byte(key))
	n := new(big.Int).SetBytes(u[:])
	return "2.25." + n.String()
}

// writeDatasetToFile writes a DICOM dataset to a file
func writeDatasetToFile(filename string, ds dicom.Dataset, opts ...dicom.WriteOption) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return dicom.Write(f, ds, opts...)
}

// mustNewElement creates a new DICOM element, panicking on error.
func mustNewElement(t tag.Tag, value interface{}) *dicom.Element {
	elem, err := dicom.NewElement(t, value)
	if err != nil {
		panic(fmt.Sprintf("failed to create element %v: %v", t, err))
	}
	return elem
}

func ds6(v float64) string {
	return fmt.Sprintf("%.6f", v)
}

// storedValue converts a physical value to its clamped uint16 storage.
func storedValue(v, slope, intercept float64) uint16 {
	if slope == 0 {
		slope = 1
	}
	s := math.Round((v - intercept) / slope)
	return uint16(math.Max(0, math.Min(math.MaxUint16, s)))
}

// drawTextOnFrame16 burns text into the top-left corner of a uint16 frame
// at the given stored intensity.
func drawTextOnFrame16(nativeFrame *frame.NativeFrame[uint16], width, height int, text string, intensity uint16) {
	face := basicfont.Face7x13
	baseTextWidth := font.MeasureString(face, text).Ceil()
	baseTextHeight := 13
	if baseTextWidth == 0 {
		return
	}

	textImg := image.NewRGBA(image.Rect(0, 0, baseTextWidth, baseTextHeight))
	drawer := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(color.RGBA{255, 255, 255, 255}),
		Face: face,
		Dot:  fixed.Point26_6{Y: fixed.I(11)},
	}
	drawer.DrawString(text)

	// Text spans a quarter of the image width, never shrinks below 1x.
	scale := math.Max(1, float64(width)/4/float64(baseTextWidth))
	scaledWidth := int(float64(baseTextWidth) * scale)
	scaledHeight := int(float64(baseTextHeight) * scale)
	scaled := image.NewRGBA(image.Rect(0, 0, scaledWidth, scaledHeight))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), textImg, textImg.Bounds(), draw.Over, nil)

	margin := 2
	for sy := 0; sy < scaledHeight; sy++ {
		for sx := 0; sx < scaledWidth; sx++ {
			_, _, _, a := scaled.At(sx, sy).RGBA()
			if a < 0x8000 {
				continue
			}
			x, y := margin+sx, margin+sy
			if x < width && y < height {
				nativeFrame.RawData[y*width+x] = intensity
			}
		}
	}
}

// generateImageFromTask writes a single slice from a pre-computed task
func generateImageFromTask(task imageTask) error {
	pixelDataInfo := dicom.PixelDataInfo{
		Frames: []*frame.Frame{
			{
				Encapsulated: false,
				NativeData:   task.pixels,
			},
		},
	}

	elements := make([]*dicom.Element, len(task.metadata)+1)
	copy(elements, task.metadata)
	elements[len(task.metadata)] = mustNewElement(tag.PixelData, pixelDataInfo)

	return writeDatasetToFile(task.filePath, dicom.Dataset{Elements: elements})
}

// Validate checks the spec before any file is written.
func (s *SeriesSpec) Validate() error {
	if s.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if s.NumSlices <= 0 || s.Rows <= 0 || s.Cols <= 0 {
		return fmt.Errorf("series dimensions must be > 0, got %dx%dx%d", s.NumSlices, s.Rows, s.Cols)
	}
	if s.PixelSpacing[0] <= 0 || s.PixelSpacing[1] <= 0 || s.SliceThickness <= 0 {
		return fmt.Errorf("spacing must be > 0")
	}
	if s.Values == nil {
		return fmt.Errorf("voxel value function is required")
	}
	return nil
}

// WriteSeries writes every slice of a synthetic series, one file per slice.
func WriteSeries(spec SeriesSpec) ([]GeneratedFile, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(spec.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if spec.FilePrefix == "" {
		spec.FilePrefix = string(spec.Modality)
	}

	gen := modalities.GetGenerator(spec.Modality)
	pixelConfig := gen.PixelConfig()
	params := spec.Params
	seriesUID := DeterministicUID(fmt.Sprintf("%s_series_%d", spec.StudyUID, spec.SeriesNumber))

	omit := make(map[tag.Tag]bool, len(spec.Omit))
	for _, t := range spec.Omit {
		omit[t] = true
	}

	// Slice direction is the normal of the in-plane cosines.
	dir := Direction(spec.Orientation[:])
	normal := dir[6:9]
	orientation := make([]string, 6)
	for i, v := range spec.Orientation {
		orientation[i] = ds6(v)
	}

	pixelsPerFrame := spec.Rows * spec.Cols
	tasks := make([]imageTask, 0, spec.NumSlices)
	files := make([]GeneratedFile, 0, spec.NumSlices)

	for i := 0; i < spec.NumSlices; i++ {
		instance := i + 1
		sopInstanceUID := DeterministicUID(fmt.Sprintf("%s_instance_%d", seriesUID, instance))

		offset := float64(i) * spec.SliceThickness
		position := []string{
			ds6(spec.Origin[0] + offset*normal[0]),
			ds6(spec.Origin[1] + offset*normal[1]),
			ds6(spec.Origin[2] + offset*normal[2]),
		}
		sliceLocation := spec.Origin[2] + offset*normal[2]

		metadata := []*dicom.Element{
			mustNewElement(tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}),
			mustNewElement(tag.MediaStorageSOPClassUID, []string{gen.SOPClassUID()}),
			mustNewElement(tag.MediaStorageSOPInstanceUID, []string{sopInstanceUID}),
			mustNewElement(tag.PatientName, []string{spec.Patient.Name}),
			mustNewElement(tag.PatientID, []string{spec.Patient.ID}),
			mustNewElement(tag.PatientBirthDate, []string{spec.Patient.BirthDate}),
			mustNewElement(tag.PatientSex, []string{spec.Patient.Sex}),
			mustNewElement(tag.StudyInstanceUID, []string{spec.StudyUID}),
			mustNewElement(tag.StudyDate, []string{spec.StudyDate}),
			mustNewElement(tag.StudyTime, []string{spec.StudyTime}),
			mustNewElement(tag.StudyDescription, []string{spec.StudyDescription}),
			mustNewElement(tag.SeriesInstanceUID, []string{seriesUID}),
			mustNewElement(tag.SeriesNumber, []string{fmt.Sprintf("%d", spec.SeriesNumber)}),
			mustNewElement(tag.SeriesDescription, []string{spec.SeriesDescription}),
			mustNewElement(tag.Modality, []string{string(gen.Modality())}),
			mustNewElement(tag.SOPInstanceUID, []string{sopInstanceUID}),
			mustNewElement(tag.SOPClassUID, []string{gen.SOPClassUID()}),
			mustNewElement(tag.InstanceNumber, []string{fmt.Sprintf("%d", instance)}),
			mustNewElement(tag.PixelSpacing, []string{ds6(spec.PixelSpacing[0]), ds6(spec.PixelSpacing[1])}),
			mustNewElement(tag.SliceThickness, []string{ds6(spec.SliceThickness)}),
			mustNewElement(tag.Manufacturer, []string{params.Scanner.Manufacturer}),
			mustNewElement(tag.ManufacturerModelName, []string{params.Scanner.Model}),
			mustNewElement(tag.WindowCenter, []string{fmt.Sprintf("%.1f", params.WindowCenter)}),
			mustNewElement(tag.WindowWidth, []string{fmt.Sprintf("%.1f", params.WindowWidth)}),
			mustNewElement(tag.ImagePositionPatient, position),
			mustNewElement(tag.ImageOrientationPatient, orientation),
			mustNewElement(tag.SliceLocation, []string{ds6(sliceLocation)}),
			mustNewElement(tag.FrameOfReferenceUID, []string{spec.FrameOfReferenceUID}),
			mustNewElement(tag.Rows, []int{spec.Rows}),
			mustNewElement(tag.Columns, []int{spec.Cols}),
			mustNewElement(tag.BitsAllocated, []int{int(pixelConfig.BitsAllocated)}),
			mustNewElement(tag.BitsStored, []int{int(pixelConfig.BitsStored)}),
			mustNewElement(tag.HighBit, []int{int(pixelConfig.HighBit)}),
			mustNewElement(tag.PixelRepresentation, []int{int(pixelConfig.PixelRepresentation)}),
			mustNewElement(tag.SamplesPerPixel, []int{1}),
			mustNewElement(tag.PhotometricInterpretation, []string{"MONOCHROME2"}),
			mustNewElement(tag.BodyPartExamined, []string{"WHOLEBODY"}),
		}

		ds := &dicom.Dataset{Elements: metadata}
		if err := gen.AppendModalityElements(ds, params); err != nil {
			return nil, fmt.Errorf("add modality elements for instance %d: %w", instance, err)
		}
		metadata = applyOverrides(ds.Elements, spec.Overrides, omit)

		nativeFrame := frame.NewNativeFrame[uint16](16, spec.Rows, spec.Cols, pixelsPerFrame, 1)
		var peak uint16
		for r := 0; r < spec.Rows; r++ {
			for c := 0; c < spec.Cols; c++ {
				v := storedValue(spec.Values(i, r, c), params.RescaleSlope, params.RescaleIntercept)
				nativeFrame.RawData[r*spec.Cols+c] = v
				peak = max(peak, v)
			}
		}
		if spec.Overlay {
			text := fmt.Sprintf("%s %d/%d", spec.Patient.ID, instance, spec.NumSlices)
			drawTextOnFrame16(nativeFrame, spec.Cols, spec.Rows, text, max(peak, 1))
		}

		filePath := filepath.Join(spec.OutputDir, fmt.Sprintf("%s%04d.dcm", spec.FilePrefix, instance))
		tasks = append(tasks, imageTask{
			index:    instance,
			filePath: filePath,
			metadata: metadata,
			pixels:   nativeFrame,
		})
		files = append(files, GeneratedFile{
			Path:           filePath,
			SeriesUID:      seriesUID,
			SOPInstanceUID: sopInstanceUID,
			InstanceNumber: instance,
		})
	}

	numWorkers := spec.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(tasks) {
		numWorkers = len(tasks)
	}

	taskChan := make(chan imageTask, len(tasks))
	resultChan := make(chan struct {
		index int
		err   error
	}, len(tasks))

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskChan {
				err := generateImageFromTask(task)
				resultChan <- struct {
					index int
					err   error
				}{task.index, err}
			}
		}()
	}

	for _, task := range tasks {
		taskChan <- task
	}
	close(taskChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var firstErr error
	for result := range resultChan {
		if result.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("write slice %d: %w", result.index, result.err)
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return files, nil
}

// applyOverrides replaces or drops elements by tag. Overrides for tags not in
// the list are appended.
func applyOverrides(elements []*dicom.Element, overrides map[tag.Tag]string, omit map[tag.Tag]bool) []*dicom.Element {
	out := make([]*dicom.Element, 0, len(elements)+len(overrides))
	seen := make(map[tag.Tag]bool)
	for _, e := range elements {
		if omit[e.Tag] {
			continue
		}
		if v, ok := overrides[e.Tag]; ok {
			seen[e.Tag] = true
			out = append(out, mustNewElement(e.Tag, strings.Split(v, `\`)))
			continue
		}
		out = append(out, e)
	}
	for t, v := range overrides {
		if !seen[t] && !omit[t] {
			out = append(out, mustNewElement(t, strings.Split(v, `\`)))
		}
	}
	return out
}
