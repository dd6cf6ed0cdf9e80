package dicom

import "fmt"

// MissingSeriesError is returned when no DICOM object in a folder matches
// the series selection.
type MissingSeriesError struct {
	Dir    string
	Filter Filter
}

func (e *MissingSeriesError) Error() string {
	return fmt.Sprintf("no DICOM series matching %s in %s", e.Filter, e.Dir)
}

// MalformedDicomError is returned when a required tag is absent or cannot be
// parsed.
type MalformedDicomError struct {
	Path   string
	Tag    string
	Reason string
}

func (e *MalformedDicomError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed DICOM: %s: %s", e.Tag, e.Reason)
	}
	return fmt.Sprintf("malformed DICOM %s: %s: %s", e.Path, e.Tag, e.Reason)
}
