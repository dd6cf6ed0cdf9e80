package dicom

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Filter selects the files of one series inside a patient folder.
// Zero-valued fields match everything.
type Filter struct {
	StudyDescription  string // substring of StudyDescription
	SeriesDescription string // substring of SeriesDescription
	SeriesNumber      int    // exact SeriesNumber, 0 = any
	RequirePixelData  bool
	RequirePosition   bool
	DCMOnly           bool // only consider *.dcm files
}

func (f Filter) String() string {
	var parts []string
	if f.StudyDescription != "" {
		parts = append(parts, fmt.Sprintf("study~%q", f.StudyDescription))
	}
	if f.SeriesDescription != "" {
		parts = append(parts, fmt.Sprintf("series~%q", f.SeriesDescription))
	}
	if f.SeriesNumber != 0 {
		parts = append(parts, fmt.Sprintf("series#%d", f.SeriesNumber))
	}
	if len(parts) == 0 {
		return "any series"
	}
	return strings.Join(parts, " ")
}

// Match reports whether a header satisfies the filter. Pixel data presence is
// checked separately once the file is fully parsed.
func (f Filter) Match(o *Object) bool {
	if f.StudyDescription != "" {
		desc, _ := o.String(tag.StudyDescription)
		if !strings.Contains(desc, f.StudyDescription) {
			return false
		}
	}
	if f.SeriesDescription != "" {
		desc, _ := o.String(tag.SeriesDescription)
		if !strings.Contains(desc, f.SeriesDescription) {
			return false
		}
	}
	if f.SeriesNumber != 0 {
		n, ok := o.String(tag.SeriesNumber)
		if !ok {
			return false
		}
		num, err := strconv.Atoi(n)
		if err != nil || num != f.SeriesNumber {
			return false
		}
	}
	if f.RequirePosition && !o.Has(tag.ImagePositionPatient) {
		return false
	}
	return true
}

// ListFiles returns the regular files of dir in name order.
func ListFiles(dir string, dcmOnly bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if dcmOnly && !strings.EqualFold(filepath.Ext(e.Name()), ".dcm") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ReadHeader parses a file without its pixel data.
func ReadHeader(path string) (*Object, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, err
	}
	return &Object{Path: path, Dataset: ds}, nil
}

// ReadFile parses a file including its pixel data.
func ReadFile(path string) (*Object, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Object{Path: path, Dataset: ds}, nil
}

// Scan returns the paths in dir whose header matches the filter. Files that
// are not DICOM are ignored.
func Scan(dir string, f Filter) ([]string, error) {
	files, err := ListFiles(dir, f.DCMOnly)
	if err != nil {
		return nil, err
	}
	var matched []string
	for _, path := range files {
		o, err := ReadHeader(path)
		if err != nil {
			continue
		}
		if f.Match(o) {
			matched = append(matched, path)
		}
	}
	return matched, nil
}

// ReadSeries fully parses the files of dir selected by the filter.
func ReadSeries(dir string, f Filter) ([]*Object, error) {
	paths, err := Scan(dir, f)
	if err != nil {
		return nil, err
	}
	objects := make([]*Object, 0, len(paths))
	for _, path := range paths {
		o, err := ReadFile(path)
		if err != nil {
			return nil, &MalformedDicomError{Path: path, Tag: "PixelData", Reason: err.Error()}
		}
		if f.RequirePixelData && !o.Has(tag.PixelData) {
			continue
		}
		objects = append(objects, o)
	}
	if len(objects) == 0 {
		return nil, &MissingSeriesError{Dir: dir, Filter: f}
	}
	return objects, nil
}

// HasSeriesDescription reports whether any DICOM file in dir carries marker
// in its SeriesDescription.
func HasSeriesDescription(dir, marker string) (bool, error) {
	files, err := ListFiles(dir, false)
	if err != nil {
		return false, err
	}
	for _, path := range files {
		o, err := ReadHeader(path)
		if err != nil {
			continue
		}
		if desc, ok := o.String(tag.SeriesDescription); ok && strings.Contains(desc, marker) {
			return true, nil
		}
	}
	return false, nil
}

// CopySeries copies every file of src matching the filter into dst, whatever
// its extension, and returns how many files were copied.
func CopySeries(src, dst string, f Filter) (int, error) {
	f.DCMOnly = false
	paths, err := Scan(src, f)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return 0, fmt.Errorf("create staging dir: %w", err)
	}
	for _, path := range paths {
		if err := copyFile(path, filepath.Join(dst, filepath.Base(path))); err != nil {
			return 0, fmt.Errorf("copy %s: %w", path, err)
		}
	}
	return len(paths), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
