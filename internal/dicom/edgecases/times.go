package edgecases

import "strings"

// TruncateTime drops the leading zeros of a DICOM TM value the way some
// exporters do ("080000" -> "80000").
func TruncateTime(tm string) string {
	intPart, frac, hasFrac := strings.Cut(tm, ".")
	trimmed := strings.TrimLeft(intPart, "0")
	if trimmed == "" {
		trimmed = "0"
	}
	if hasFrac {
		return trimmed + "." + frac
	}
	return trimmed
}
