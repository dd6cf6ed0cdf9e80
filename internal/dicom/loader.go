package dicom

import (
	"fmt"
	"math"
	"sort"

	"github.com/mrsinham/spinesuv/internal/volume"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"gonum.org/v1/gonum/spatial/r3"
)

// slice is one decoded image of a series.
type slice struct {
	obj      *Object
	position []float64 // nil when ImagePositionPatient is absent
	instance float64
	location float64
}

// SortSlices orders the objects of one series along the acquisition axis:
// by ImagePositionPatient z when every slice has one, otherwise by
// InstanceNumber then SliceLocation. The order is deterministic.
func SortSlices(objects []*Object) []*Object {
	slices := make([]slice, len(objects))
	allPositioned := true
	for i, o := range objects {
		s := slice{obj: o, instance: math.Inf(1), location: math.Inf(1)}
		if pos, err := o.FloatN(tag.ImagePositionPatient, 3); err == nil {
			s.position = pos
		} else {
			allPositioned = false
		}
		if n, err := o.Float(tag.InstanceNumber); err == nil {
			s.instance = n
		}
		if loc, err := o.Float(tag.SliceLocation); err == nil {
			s.location = loc
		}
		slices[i] = s
	}

	sort.SliceStable(slices, func(i, j int) bool {
		a, b := slices[i], slices[j]
		if allPositioned && a.position[2] != b.position[2] {
			return a.position[2] < b.position[2]
		}
		if a.instance != b.instance {
			return a.instance < b.instance
		}
		if a.location != b.location {
			return a.location < b.location
		}
		return a.obj.Path < b.obj.Path
	})

	out := make([]*Object, len(slices))
	for i, s := range slices {
		out[i] = s.obj
	}
	return out
}

// LoadSeries stacks the objects of one series into a calibrated volume in
// (slice, row, column) order.
func LoadSeries(objects []*Object) (*volume.Volume, error) {
	if len(objects) == 0 {
		return nil, &MissingSeriesError{}
	}
	sorted := SortSlices(objects)
	first := sorted[0]

	pixelSpacing, err := first.FloatN(tag.PixelSpacing, 2)
	if err != nil {
		return nil, err
	}
	thickness, err := first.Float(tag.SliceThickness)
	if err != nil {
		return nil, err
	}
	origin, err := first.FloatN(tag.ImagePositionPatient, 3)
	if err != nil {
		return nil, err
	}
	orientation, err := first.FloatN(tag.ImageOrientationPatient, 6)
	if err != nil {
		return nil, err
	}

	var data []float64
	rows, cols := 0, 0
	for i, o := range sorted {
		pixels, r, c, err := Pixels(o)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			rows, cols = r, c
			data = make([]float64, 0, len(sorted)*r*c)
		} else if r != rows || c != cols {
			return nil, &MalformedDicomError{Path: o.Path, Tag: "Rows/Columns",
				Reason: fmt.Sprintf("slice is %dx%d, series is %dx%d", r, c, rows, cols)}
		}
		slope, intercept := Rescale(o)
		for _, p := range pixels {
			data = append(data, p*slope+intercept)
		}
	}

	v := &volume.Volume{
		Array:     volume.Array{Shape: [3]int{len(sorted), rows, cols}, Data: data},
		Spacing:   [3]float64{pixelSpacing[0], pixelSpacing[1], thickness},
		Origin:    [3]float64{origin[0], origin[1], origin[2]},
		Direction: Direction(orientation),
	}
	if err := v.Validate(); err != nil {
		return nil, &MalformedDicomError{Path: first.Path, Tag: "geometry", Reason: err.Error()}
	}
	return v, nil
}

// Direction builds the row-major direction matrix from the six
// ImageOrientationPatient cosines; the third row is their cross product.
func Direction(iop []float64) [9]float64 {
	row := r3.Unit(r3.Vec{X: iop[0], Y: iop[1], Z: iop[2]})
	col := r3.Unit(r3.Vec{X: iop[3], Y: iop[4], Z: iop[5]})
	normal := r3.Cross(row, col)
	return [9]float64{
		row.X, row.Y, row.Z,
		col.X, col.Y, col.Z,
		normal.X, normal.Y, normal.Z,
	}
}

// Rescale returns the slope and intercept of a slice. Both tags must be
// readable, otherwise the identity 1 and 0 applies.
func Rescale(o *Object) (slope, intercept float64) {
	s, errS := o.Float(tag.RescaleSlope)
	b, errB := o.Float(tag.RescaleIntercept)
	if errS != nil || errB != nil {
		return 1, 0
	}
	return s, b
}

// Pixels decodes the first frame of a slice as stored values, row-major.
func Pixels(o *Object) ([]float64, int, int, error) {
	elem, err := o.Dataset.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, 0, 0, &MalformedDicomError{Path: o.Path, Tag: "PixelData", Reason: "tag absent"}
	}
	info := dicom.MustGetPixelDataInfo(elem.Value)
	if info.IntentionallySkipped || len(info.Frames) == 0 {
		return nil, 0, 0, &MalformedDicomError{Path: o.Path, Tag: "PixelData", Reason: "no frames"}
	}
	fr := info.Frames[0]
	if fr.Encapsulated || fr.NativeData == nil {
		return nil, 0, 0, &MalformedDicomError{Path: o.Path, Tag: "PixelData", Reason: "encapsulated pixel data is not supported"}
	}
	nf := fr.NativeData
	rows, cols := nf.Rows(), nf.Cols()

	signed := false
	if rep, err := o.Int(tag.PixelRepresentation); err == nil && rep == 1 {
		signed = true
	}

	out := make([]float64, rows*cols)
	var decodeErr error
	switch raw := nf.RawDataSlice().(type) {
	case []uint8:
		decodeErr = decode(raw, out, func(v uint8) float64 {
			if signed {
				return float64(int8(v))
			}
			return float64(v)
		})
	case []uint16:
		decodeErr = decode(raw, out, func(v uint16) float64 {
			if signed {
				return float64(int16(v))
			}
			return float64(v)
		})
	case []uint32:
		decodeErr = decode(raw, out, func(v uint32) float64 {
			if signed {
				return float64(int32(v))
			}
			return float64(v)
		})
	case []int8:
		decodeErr = decode(raw, out, func(v int8) float64 { return float64(v) })
	case []int16:
		decodeErr = decode(raw, out, func(v int16) float64 { return float64(v) })
	case []int32:
		decodeErr = decode(raw, out, func(v int32) float64 { return float64(v) })
	default:
		for y := 0; y < rows && decodeErr == nil; y++ {
			for x := 0; x < cols; x++ {
				px, err := nf.GetPixel(x, y)
				if err != nil {
					decodeErr = err
					break
				}
				out[y*cols+x] = float64(px[0])
			}
		}
	}
	if decodeErr != nil {
		return nil, 0, 0, &MalformedDicomError{Path: o.Path, Tag: "PixelData", Reason: decodeErr.Error()}
	}
	return out, rows, cols, nil
}

func decode[T uint8 | uint16 | uint32 | int8 | int16 | int32](raw []T, out []float64, conv func(T) float64) error {
	if len(raw) < len(out) {
		return fmt.Errorf("frame holds %d samples, want %d", len(raw), len(out))
	}
	for i := range out {
		out[i] = conv(raw[i])
	}
	return nil
}
