// Package util resolves DICOM tag names given on the command line.
package util

import (
	"fmt"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// TagScope represents the DICOM hierarchy level at which a tag should be consistent.
type TagScope int

const (
	// ScopePatient indicates tags that should be consistent across all images for a patient.
	ScopePatient TagScope = iota
	// ScopeStudy indicates tags that should be consistent within a study.
	ScopeStudy
	// ScopeSeries indicates tags that should be consistent within a series.
	ScopeSeries
	// ScopeImage indicates tags that can vary per image.
	ScopeImage
)

// String returns the string representation of a TagScope.
func (s TagScope) String() string {
	switch s {
	case ScopePatient:
		return "Patient"
	case ScopeStudy:
		return "Study"
	case ScopeSeries:
		return "Series"
	case ScopeImage:
		return "Image"
	default:
		return "Unknown"
	}
}

// TagInfo contains information about a DICOM tag, including its scope.
type TagInfo struct {
	Name  string
	Tag   tag.Tag
	Scope TagScope
}

// tagRegistry maps lowercase tag names to their TagInfo. Only string-valued
// tags that a PET/CT intake reads or a reviewer would want to vary are listed.
var tagRegistry = map[string]TagInfo{
	// Patient level tags
	"patientname":      {Name: "PatientName", Tag: tag.PatientName, Scope: ScopePatient},
	"patientid":        {Name: "PatientID", Tag: tag.PatientID, Scope: ScopePatient},
	"patientbirthdate": {Name: "PatientBirthDate", Tag: tag.PatientBirthDate, Scope: ScopePatient},
	"patientsex":       {Name: "PatientSex", Tag: tag.PatientSex, Scope: ScopePatient},
	"patientweight":    {Name: "PatientWeight", Tag: tag.PatientWeight, Scope: ScopePatient},

	// Study level tags
	"studydescription": {Name: "StudyDescription", Tag: tag.StudyDescription, Scope: ScopeStudy},
	"institutionname":  {Name: "InstitutionName", Tag: tag.InstitutionName, Scope: ScopeStudy},
	"accessionnumber":  {Name: "AccessionNumber", Tag: tag.AccessionNumber, Scope: ScopeStudy},
	"studydate":        {Name: "StudyDate", Tag: tag.StudyDate, Scope: ScopeStudy},

	// Series level tags
	"seriesdescription":     {Name: "SeriesDescription", Tag: tag.SeriesDescription, Scope: ScopeSeries},
	"seriesnumber":          {Name: "SeriesNumber", Tag: tag.SeriesNumber, Scope: ScopeSeries},
	"protocolname":          {Name: "ProtocolName", Tag: tag.ProtocolName, Scope: ScopeSeries},
	"bodypartexamined":      {Name: "BodyPartExamined", Tag: tag.BodyPartExamined, Scope: ScopeSeries},
	"manufacturer":          {Name: "Manufacturer", Tag: tag.Manufacturer, Scope: ScopeSeries},
	"manufacturermodelname": {Name: "ManufacturerModelName", Tag: tag.ManufacturerModelName, Scope: ScopeSeries},
	"convolutionkernel":     {Name: "ConvolutionKernel", Tag: tag.ConvolutionKernel, Scope: ScopeSeries},
	"units":                 {Name: "Units", Tag: tag.Units, Scope: ScopeSeries},

	// Image level tags
	"acquisitiontime": {Name: "AcquisitionTime", Tag: tag.AcquisitionTime, Scope: ScopeImage},
	"windowcenter":    {Name: "WindowCenter", Tag: tag.WindowCenter, Scope: ScopeImage},
	"windowwidth":     {Name: "WindowWidth", Tag: tag.WindowWidth, Scope: ScopeImage},
}

// TagOverride is one parsed --tag flag. An empty Modality applies the
// override to every series.
type TagOverride struct {
	Modality string
	Info     TagInfo
	Value    string
}

// ParsedTags is the set of overrides given on the command line.
type ParsedTags []TagOverride

// ParseTagFlag parses "Name=Value" or "MOD:Name=Value" (e.g. "PT:Units=CNTS").
func ParseTagFlag(flag string) (TagOverride, error) {
	key, value, ok := strings.Cut(flag, "=")
	if !ok {
		return TagOverride{}, fmt.Errorf("invalid tag %q, want Name=Value", flag)
	}
	var modality string
	if mod, name, found := strings.Cut(key, ":"); found {
		modality = strings.ToUpper(strings.TrimSpace(mod))
		key = name
	}
	info, err := GetTagByName(key)
	if err != nil {
		return TagOverride{}, err
	}
	return TagOverride{Modality: modality, Info: info, Value: strings.TrimSpace(value)}, nil
}

// ParseTagFlags parses every --tag flag, failing on the first invalid one.
func ParseTagFlags(flags []string) (ParsedTags, error) {
	out := make(ParsedTags, 0, len(flags))
	for _, f := range flags {
		o, err := ParseTagFlag(f)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// Get returns the value of the last override for name that applies to
// every modality.
func (p ParsedTags) Get(name string) (string, bool) {
	value, found := "", false
	for _, o := range p {
		if o.Modality == "" && strings.EqualFold(o.Info.Name, name) {
			value, found = o.Value, true
		}
	}
	return value, found
}

// ForModality returns the overrides that apply to a series of modality m.
func (p ParsedTags) ForModality(m string) map[tag.Tag]string {
	out := make(map[tag.Tag]string)
	for _, o := range p {
		if o.Modality == "" || o.Modality == m {
			out[o.Info.Tag] = o.Value
		}
	}
	return out
}

// GetTagByName returns TagInfo for a given tag name.
// The lookup is case-insensitive. If the tag is not found, an error is returned
// with a suggestion for the closest matching tag name (using Levenshtein distance).
func GetTagByName(name string) (TagInfo, error) {
	// Normalize the input name to lowercase
	normalizedName := strings.ToLower(strings.TrimSpace(name))

	// Direct lookup
	if info, ok := tagRegistry[normalizedName]; ok {
		return info, nil
	}

	// Tag not found, try to find a suggestion
	suggestion := findClosestTagName(normalizedName)
	if suggestion != "" {
		return TagInfo{}, fmt.Errorf("unknown tag %q, did you mean %q?", name, suggestion)
	}

	return TagInfo{}, fmt.Errorf("unknown tag %q", name)
}

// findClosestTagName finds the closest matching tag name using Levenshtein distance.
// Returns empty string if no close match is found (distance > 5).
func findClosestTagName(input string) string {
	const maxDistance = 5
	bestDistance := maxDistance + 1
	var bestMatch string

	for key, info := range tagRegistry {
		distance := levenshteinDistance(input, key)
		if distance < bestDistance {
			bestDistance = distance
			bestMatch = info.Name
		}
	}

	if bestDistance <= maxDistance {
		return bestMatch
	}
	return ""
}

// levenshteinDistance calculates the Levenshtein distance between two strings.
// This is the minimum number of single-character edits (insertions, deletions,
// or substitutions) required to change one string into the other.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Create a matrix to store distances
	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
	}

	// Initialize the first row and column
	for i := 0; i <= len(a); i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len(b); j++ {
		matrix[0][j] = j
	}

	// Fill in the rest of the matrix
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}

			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(a)][len(b)]
}
