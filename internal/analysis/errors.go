package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record exists for the requested key.
	ErrNotFound = errors.New("analysis record not found")

	// ErrUnknownType is returned for analysis types outside the enumerated
	// taxonomy.
	ErrUnknownType = errors.New("unknown analysis type")
)

// CooldownError is returned when an analysis run is requested before the
// minimum interval since the last completed run has elapsed.
type CooldownError struct {
	RetryAfterSeconds int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("analysis ran recently, retry after %ds", e.RetryAfterSeconds)
}
