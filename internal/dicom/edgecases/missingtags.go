package edgecases

import "math/rand/v2"

// OptionalTags lists PET tags whose absence must fail SUV extraction
var OptionalTags = []string{
	"PatientWeight",
	"RadiopharmaceuticalStartTime",
	"RadionuclideTotalDose",
	"RadionuclideHalfLife",
	"AcquisitionTime",
}

// SelectTagsToOmit randomly selects which tags to omit
func SelectTagsToOmit(rng *rand.Rand, count int) []string {
	if count >= len(OptionalTags) {
		return OptionalTags
	}
	// Fisher-Yates shuffle and take first count
	indices := make([]int, len(OptionalTags))
	for i := range indices {
		indices[i] = i
	}
	for i := len(indices) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		indices[i], indices[j] = indices[j], indices[i]
	}
	result := make([]string, count)
	for i := 0; i < count; i++ {
		result[i] = OptionalTags[indices[i]]
	}
	return result
}

// GetTagsToOmit returns the tags to drop for a patient with missing tags
func (a *Applicator) GetTagsToOmit() []string {
	if !a.config.HasType(MissingTags) {
		return nil
	}
	return SelectTagsToOmit(a.rng, 1+a.rng.IntN(2))
}
