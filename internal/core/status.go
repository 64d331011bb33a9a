package core

import "fmt"

// Status is the article lifecycle state. The happy path is monotonic:
// extracted -> summarized -> notified. Reprocessing resets to extracted.
type Status string

const (
	StatusExtracted  Status = "extracted"
	StatusSummarized Status = "summarized"
	StatusNotified   Status = "notified"
)

var statusOrder = map[Status]int{
	StatusExtracted:  0,
	StatusSummarized: 1,
	StatusNotified:   2,
}

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	_, ok := statusOrder[s]
	return ok
}

// Less reports whether s precedes other in the lifecycle ordering.
// Unknown states sort before all known ones.
func (s Status) Less(other Status) bool {
	return statusOrder[s] < statusOrder[other]
}

// Advance returns the next state, or an error when s is terminal or unknown.
func (s Status) Advance() (Status, error) {
	switch s {
	case StatusExtracted:
		return StatusSummarized, nil
	case StatusSummarized:
		return StatusNotified, nil
	case StatusNotified:
		return "", fmt.Errorf("status %q is terminal", s)
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// Reset returns the reprocessing state. Resetting is always allowed and
// always lands on extracted.
func (s Status) Reset() Status {
	return StatusExtracted
}

func (s Status) String() string {
	return string(s)
}
