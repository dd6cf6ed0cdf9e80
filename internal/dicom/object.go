// Package dicom reads PET/CT series into calibrated volumes and writes
// synthetic series for fixtures and demo cohorts.
package dicom

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Object is one parsed DICOM file.
type Object struct {
	Path    string
	Dataset dicom.Dataset
}

// Has reports whether the tag is present.
func (o *Object) Has(t tag.Tag) bool {
	_, err := o.Dataset.FindElementByTag(t)
	return err == nil
}

// String returns the first string value of a tag, trimmed.
func (o *Object) String(t tag.Tag) (string, bool) {
	values, ok := o.Strings(t)
	if !ok || len(values) == 0 {
		return "", false
	}
	return strings.TrimSpace(values[0]), true
}

// Strings returns all values of a tag rendered as strings.
func (o *Object) Strings(t tag.Tag) ([]string, bool) {
	elem, err := o.Dataset.FindElementByTag(t)
	if err != nil || elem.Value == nil {
		return nil, false
	}
	switch v := elem.Value.GetValue().(type) {
	case []string:
		return v, true
	case []int:
		out := make([]string, len(v))
		for i, n := range v {
			out[i] = strconv.Itoa(n)
		}
		return out, true
	case []float64:
		out := make([]string, len(v))
		for i, f := range v {
			out[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return out, true
	default:
		return nil, false
	}
}

// Floats parses every value of a numeric tag (DS, IS, US, FD...).
func (o *Object) Floats(t tag.Tag) ([]float64, error) {
	elem, err := o.Dataset.FindElementByTag(t)
	if err != nil || elem.Value == nil {
		return nil, o.malformed(t, "tag absent")
	}
	switch v := elem.Value.GetValue().(type) {
	case []float64:
		return v, nil
	case []int:
		out := make([]float64, len(v))
		for i, n := range v {
			out[i] = float64(n)
		}
		return out, nil
	case []string:
		out := make([]float64, 0, len(v))
		for _, s := range v {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, o.malformed(t, fmt.Sprintf("parse %q: %v", s, err))
			}
			out = append(out, f)
		}
		if len(out) == 0 {
			return nil, o.malformed(t, "empty value")
		}
		return out, nil
	default:
		return nil, o.malformed(t, fmt.Sprintf("unexpected value type %v", elem.Value.ValueType()))
	}
}

// Float returns the first numeric value of a tag.
func (o *Object) Float(t tag.Tag) (float64, error) {
	values, err := o.Floats(t)
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// FloatN returns exactly n numeric values of a tag.
func (o *Object) FloatN(t tag.Tag, n int) ([]float64, error) {
	values, err := o.Floats(t)
	if err != nil {
		return nil, err
	}
	if len(values) < n {
		return nil, o.malformed(t, fmt.Sprintf("want %d values, got %d", n, len(values)))
	}
	return values[:n], nil
}

// Int returns the first value of an integer tag.
func (o *Object) Int(t tag.Tag) (int, error) {
	f, err := o.Float(t)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// SequenceItem returns item idx of a sequence tag as its own Object.
func (o *Object) SequenceItem(t tag.Tag, idx int) (*Object, error) {
	elem, err := o.Dataset.FindElementByTag(t)
	if err != nil || elem.Value == nil {
		return nil, o.malformed(t, "sequence absent")
	}
	items, ok := elem.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok {
		return nil, o.malformed(t, "not a sequence")
	}
	if idx >= len(items) {
		return nil, o.malformed(t, fmt.Sprintf("sequence has %d items, want item %d", len(items), idx))
	}
	elems, ok := items[idx].GetValue().([]*dicom.Element)
	if !ok {
		return nil, o.malformed(t, "sequence item has no elements")
	}
	return &Object{Path: o.Path, Dataset: dicom.Dataset{Elements: elems}}, nil
}

func (o *Object) malformed(t tag.Tag, reason string) error {
	return &MalformedDicomError{Path: o.Path, Tag: TagName(t), Reason: reason}
}

// TagName returns the dictionary keyword of a tag, or its (gggg,eeee) form.
func TagName(t tag.Tag) string {
	if info, err := tag.Find(t); err == nil {
		return info.Keyword
	}
	return t.String()
}
