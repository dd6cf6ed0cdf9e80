// Package suv extracts the radiopharmaceutical metadata of a PET series,
// models tracer decay and turns PET activity into Standardized Uptake Values.
package suv

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mrsinham/spinesuv/internal/dicom"
)

const secondsPerDay = 24 * 60 * 60

// ParseTime parses a DICOM TM value (HHMMSS or HHMMSS.ffffff) into the
// offset from midnight. A short integer part is left-padded with zeros to
// six digits first.
func ParseTime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	bad := func(reason string) error {
		return &dicom.MalformedDicomError{Tag: "time", Reason: fmt.Sprintf("%q: %s", s, reason)}
	}

	intPart, frac, hasFrac := strings.Cut(s, ".")
	if intPart == "" || len(intPart) > 6 || !digits(intPart) {
		return 0, bad("want HHMMSS[.ffffff]")
	}
	if hasFrac && (frac == "" || len(frac) > 6 || !digits(frac)) {
		return 0, bad("fractional seconds must be 1 to 6 digits")
	}
	intPart = strings.Repeat("0", 6-len(intPart)) + intPart

	hh, _ := strconv.Atoi(intPart[0:2])
	mm, _ := strconv.Atoi(intPart[2:4])
	ss, _ := strconv.Atoi(intPart[4:6])
	if hh > 23 || mm > 59 || ss > 59 {
		return 0, bad("out of range")
	}

	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute + time.Duration(ss)*time.Second
	if hasFrac {
		us, _ := strconv.Atoi(frac + strings.Repeat("0", 6-len(frac)))
		d += time.Duration(us) * time.Microsecond
	}
	return d, nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// TimeDifference returns acquisition minus injection in seconds, adding one
// day when the acquisition happened after midnight.
func TimeDifference(injection, acquisition time.Duration) float64 {
	diff := (acquisition - injection).Seconds()
	if diff < 0 {
		diff += secondsPerDay
	}
	return diff
}

// DecayConstant is ln 2 over the half-life.
func DecayConstant(halfLifeSeconds float64) float64 {
	return math.Ln2 / halfLifeSeconds
}

// DecayedDose is the activity left from dose after t seconds.
func DecayedDose(dose, decayConstant, t float64) float64 {
	return dose * math.Exp(-decayConstant*t)
}
