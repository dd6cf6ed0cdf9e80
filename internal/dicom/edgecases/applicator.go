package edgecases

import (
	"fmt"
	"math/rand/v2"
)

// Applicator decides which patients of a synthetic cohort get an edge case
type Applicator struct {
	config Config
	rng    *rand.Rand
}

// NewApplicator creates a new edge case applicator
func NewApplicator(config Config, rng *rand.Rand) *Applicator {
	return &Applicator{config: config, rng: rng}
}

// ShouldApply returns true if edge cases should apply to this patient
func (a *Applicator) ShouldApply() bool {
	return a.rng.IntN(100) < a.config.Percentage
}

// SelectEdgeCaseType randomly selects which edge case type to apply
func (a *Applicator) SelectEdgeCaseType() EdgeCaseType {
	return a.config.Types[a.rng.IntN(len(a.config.Types))]
}

// Pick returns the edge case for the next patient, or "" for none.
func (a *Applicator) Pick() EdgeCaseType {
	if !a.config.IsEnabled() || !a.ShouldApply() {
		return ""
	}
	return a.SelectEdgeCaseType()
}

// MidnightTimes returns an injection shortly before midnight and an
// acquisition shortly after it.
func (a *Applicator) MidnightTimes() (injection, acquisition string) {
	injMinute := 30 + a.rng.IntN(30)
	acqMinute := a.rng.IntN(30)
	return fmt.Sprintf("23%02d00", injMinute), fmt.Sprintf("00%02d00.000000", acqMinute)
}

// UnsupportedUnits returns a PET unit that SUV computation must reject.
func (a *Applicator) UnsupportedUnits() string {
	units := []string{"CNTS", "PROPCNTS", "GML", "NONE"}
	return units[a.rng.IntN(len(units))]
}
