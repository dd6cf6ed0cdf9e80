// Package results records the outcome of a batch run: per-patient, per-vertebra
// mean SUV values. Runs can be written to PostgreSQL and rendered as a
// terminal table.
package results

import (
	"context"
	"sort"
	"time"

	"github.com/mrsinham/spinesuv/internal/segmentation"
	"github.com/mrsinham/spinesuv/internal/suv"
)

// Run is one batch execution.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	// Means maps patient id to label to mean SUV.
	Means map[string]map[int32]float64
	// Density maps patient id to label to mean CT value, when computed.
	Density map[string]map[int32]float64
}

// Sink receives finished runs.
type Sink interface {
	WriteRun(ctx context.Context, run Run) error
	Close() error
}

// Row is one stored measurement.
type Row struct {
	Patient  string
	Label    int32
	Vertebra string
	MeanSUV  float64
}

// Rows flattens the run in patient then label order.
func (r Run) Rows() []Row {
	patients := make([]string, 0, len(r.Means))
	for id := range r.Means {
		patients = append(patients, id)
	}
	sort.Strings(patients)

	var rows []Row
	for _, id := range patients {
		means := r.Means[id]
		for _, label := range suv.SortedLabels(means) {
			rows = append(rows, Row{
				Patient:  id,
				Label:    label,
				Vertebra: segmentation.LabelName(label),
				MeanSUV:  means[label],
			})
		}
	}
	return rows
}

// Patients returns the sorted ids of the patients with results.
func (r Run) Patients() []string {
	ids := make([]string, 0, len(r.Means))
	for id := range r.Means {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
