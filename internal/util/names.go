package util

import (
	"fmt"
	"math/rand/v2"
)

var (
	maleFirstNames = []string{
		"James", "Robert", "Michael", "David", "Thomas", "Daniel", "Paul", "Mark",
		"Pierre", "Michel", "Philippe", "Laurent", "Nicolas", "Olivier",
	}

	femaleFirstNames = []string{
		"Mary", "Linda", "Susan", "Karen", "Nancy", "Sarah", "Emma", "Claire",
		"Marie", "Nathalie", "Isabelle", "Sophie", "Camille", "Julie",
	}

	lastNames = []string{
		"Smith", "Johnson", "Brown", "Taylor", "Wilson", "Davies", "Evans", "Walker",
		"Martin", "Bernard", "Dubois", "Durand", "Moreau", "Lefebvre",
	}
)

// Demographics is the identity of a synthetic PET/CT patient.
type Demographics struct {
	Name      string // DICOM PN, "LASTNAME^FIRSTNAME"
	Sex       string // "M" or "F"
	BirthDate string // YYYYMMDD
	WeightKg  float64
}

// GenerateDemographics draws a patient. Weights fall between 50 and 110 kg in
// whole kilograms so they survive the DS encoding exactly.
func GenerateDemographics(rng *rand.Rand) Demographics {
	sex := "F"
	first := femaleFirstNames[rng.IntN(len(femaleFirstNames))]
	if rng.IntN(2) == 0 {
		sex = "M"
		first = maleFirstNames[rng.IntN(len(maleFirstNames))]
	}
	last := lastNames[rng.IntN(len(lastNames))]

	return Demographics{
		Name:      last + "^" + first,
		Sex:       sex,
		BirthDate: fmt.Sprintf("%04d%02d%02d", 1940+rng.IntN(50), 1+rng.IntN(12), 1+rng.IntN(28)),
		WeightKg:  float64(50 + rng.IntN(61)),
	}
}
