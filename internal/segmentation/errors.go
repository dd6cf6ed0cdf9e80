package segmentation

import "fmt"

// UnavailableError is returned when the engine fails or leaves any expected
// label volume missing. No partial mask is ever built.
type UnavailableError struct {
	Path   string
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	msg := "segmentation unavailable"
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
