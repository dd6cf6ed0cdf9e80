package edgecases

import (
	"fmt"
	"strings"
)

// EdgeCaseType represents a category of intake edge case
type EdgeCaseType string

const (
	MidnightCrossing EdgeCaseType = "midnight-crossing" // acquisition after midnight, injection before
	TruncatedTimes   EdgeCaseType = "truncated-times"   // time strings missing their leading zero
	NonBQML          EdgeCaseType = "non-bqml"          // PET units other than BQML
	MissingTags      EdgeCaseType = "missing-tags"      // radiopharmaceutical or weight tags absent
	IMARSeries       EdgeCaseType = "imar-series"       // metal-artifact-reduced CT in its own series
	E2TSeries        EdgeCaseType = "e2t-series"        // alternate PET protocol naming
	FallbackSeries   EdgeCaseType = "fallback-series"   // CT stored under the fallback series number
)

// AllEdgeCaseTypes returns all valid edge case types
func AllEdgeCaseTypes() []EdgeCaseType {
	return []EdgeCaseType{MidnightCrossing, TruncatedTimes, NonBQML, MissingTags, IMARSeries, E2TSeries, FallbackSeries}
}

// Config holds edge case generation settings
type Config struct {
	Percentage int            // 0-100, percentage of patients to apply edge cases to
	Types      []EdgeCaseType // Which edge case types to enable
}

// ParseTypes parses comma-separated edge case types
func ParseTypes(input string) ([]EdgeCaseType, error) {
	if input == "" {
		return nil, nil
	}
	parts := strings.Split(input, ",")
	result := make([]EdgeCaseType, 0, len(parts))
	valid := make(map[EdgeCaseType]bool)
	for _, t := range AllEdgeCaseTypes() {
		valid[t] = true
	}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		t := EdgeCaseType(p)
		if !valid[t] {
			return nil, fmt.Errorf("unknown edge case type %q, valid types: %v", p, AllEdgeCaseTypes())
		}
		result = append(result, t)
	}
	return result, nil
}

// Validate checks if config is valid
func (c *Config) Validate() error {
	if c.Percentage < 0 || c.Percentage > 100 {
		return fmt.Errorf("edge-cases percentage must be 0-100, got %d", c.Percentage)
	}
	if c.Percentage > 0 && len(c.Types) == 0 {
		return fmt.Errorf("edge-cases enabled but no types specified")
	}
	return nil
}

// IsEnabled returns true if edge cases are enabled
func (c *Config) IsEnabled() bool {
	return c.Percentage > 0 && len(c.Types) > 0
}

// HasType checks if a specific edge case type is enabled
func (c *Config) HasType(t EdgeCaseType) bool {
	for _, ct := range c.Types {
		if ct == t {
			return true
		}
	}
	return false
}
