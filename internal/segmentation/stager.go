package segmentation

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mrsinham/spinesuv/internal/dicom"
	"github.com/sirupsen/logrus"
)

// Stager copies the CT series of a patient folder into the engine's input
// folder, applying the intake fallbacks.
type Stager struct {
	StudyDescription     string
	SeriesNumber         int
	FallbackSeriesNumber int
	// A folder holding a series whose description contains Marker is staged
	// from MarkerSeriesNumber instead.
	Marker             string
	MarkerSeriesNumber int
	Logger             *logrus.Entry
}

// Staged describes what ended up in the staging folder.
type Staged struct {
	SeriesNumber int
	Files        int
}

// Stage fills staging from src and returns the series number actually used.
func (s *Stager) Stage(src, staging string) (Staged, error) {
	if err := ClearDir(staging); err != nil {
		return Staged{}, err
	}
	series := s.SeriesNumber
	n, err := s.copy(src, staging, series)
	if err != nil {
		return Staged{}, err
	}

	if n == 0 && s.FallbackSeriesNumber != 0 {
		s.log().WithFields(logrus.Fields{"series": series, "fallback": s.FallbackSeriesNumber}).
			Info("No CT files staged, trying fallback series")
		series = s.FallbackSeriesNumber
		if n, err = s.copy(src, staging, series); err != nil {
			return Staged{}, err
		}
	}

	if s.Marker != "" {
		found, err := dicom.HasSeriesDescription(src, s.Marker)
		if err != nil {
			return Staged{}, err
		}
		if found {
			s.log().WithFields(logrus.Fields{"marker": s.Marker, "series": s.MarkerSeriesNumber}).
				Info("Marker series present, restaging")
			if err := ClearDir(staging); err != nil {
				return Staged{}, err
			}
			series = s.MarkerSeriesNumber
			if n, err = s.copy(src, staging, series); err != nil {
				return Staged{}, err
			}
		}
	}

	if n == 0 {
		return Staged{SeriesNumber: series}, &dicom.MissingSeriesError{
			Dir:    src,
			Filter: dicom.Filter{StudyDescription: s.StudyDescription, SeriesNumber: series},
		}
	}
	return Staged{SeriesNumber: series, Files: n}, nil
}

func (s *Stager) copy(src, staging string, series int) (int, error) {
	return dicom.CopySeries(src, staging, dicom.Filter{StudyDescription: s.StudyDescription, SeriesNumber: series})
}

func (s *Stager) log() *logrus.Entry {
	if s.Logger == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return s.Logger
}

// ClearDir empties dir, creating it when absent.
func ClearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	if err != nil {
		return fmt.Errorf("read staging dir: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("clear staging dir: %w", err)
		}
	}
	return nil
}
