package suv

import (
	"fmt"
	"math"
	"sort"

	"github.com/mrsinham/spinesuv/internal/volume"
	"gonum.org/v1/gonum/stat"
)

// Compute converts masked PET activity (Bq/mL) into SUV:
// activity * body weight (g) / decayed dose (Bq).
func Compute(pet volume.Array, meta Metadata) (volume.Array, error) {
	if !(meta.DecayedDoseBq > 0) {
		return volume.Array{}, fmt.Errorf("decayed dose must be positive, got %g", meta.DecayedDoseBq)
	}
	return pet.Map(func(v float64) float64 {
		return v * meta.PatientWeightG / meta.DecayedDoseBq
	}), nil
}

// MeanByLabel averages the SUV of every non-zero label present in mask.
// A label without voxels has no entry.
func MeanByLabel(suv volume.Array, mask volume.Mask) (map[int32]float64, error) {
	if suv.Shape != mask.Shape {
		return nil, fmt.Errorf("SUV shape %v does not match mask shape %v", suv.Shape, mask.Shape)
	}
	sums := make(map[int32]float64)
	counts := make(map[int32]int)
	for i, l := range mask.Labels {
		if l == 0 {
			continue
		}
		sums[l] += suv.Data[i]
		counts[l]++
	}
	means := make(map[int32]float64, len(sums))
	for l, n := range counts {
		if n > 0 {
			means[l] = sums[l] / float64(n)
		}
	}
	return means, nil
}

// Aggregate collects, per label, one mean per patient that has it. Patients
// are visited in id order so the collections are deterministic.
func Aggregate(perPatient map[string]map[int32]float64) map[int32][]float64 {
	ids := make([]string, 0, len(perPatient))
	for id := range perPatient {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make(map[int32][]float64)
	for _, id := range ids {
		for l, mean := range perPatient[id] {
			if math.IsNaN(mean) {
				continue
			}
			out[l] = append(out[l], mean)
		}
	}
	return out
}

// Summary is the box-plot description of one label's patient means.
type Summary struct {
	N      int
	Mean   float64
	StdDev float64
	Min    float64
	Q1     float64
	Median float64
	Q3     float64
	Max    float64
}

// Summarize describes values; ok is false when there are none.
func Summarize(values []float64) (s Summary, ok bool) {
	if len(values) == 0 {
		return Summary{}, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	s.N = len(sorted)
	s.Mean, s.StdDev = stat.MeanStdDev(sorted, nil)
	if s.N < 2 {
		s.StdDev = 0
	}
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Q1 = stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	s.Median = stat.Quantile(0.5, stat.LinInterp, sorted, nil)
	s.Q3 = stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	return s, true
}

// SortedLabels returns the keys of a per-label map in ascending order.
func SortedLabels[V any](m map[int32]V) []int32 {
	labels := make([]int32, 0, len(m))
	for l := range m {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}
