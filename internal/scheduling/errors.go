package scheduling

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProviderConflict and ErrPatientConflict identify which party is
	// double-booked so the caller can pick a different slot or provider.
	ErrProviderConflict = errors.New("provider already has an overlapping appointment")
	ErrPatientConflict  = errors.New("patient already has an overlapping appointment")

	// ErrBookingContended means another booking for the same provider and day
	// holds the lock. Retryable.
	ErrBookingContended = errors.New("slot is currently being booked, please retry")

	ErrScheduleOverlap         = errors.New("time range overlaps an existing weekly schedule for this provider and weekday")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// ValidationError rejects malformed input before any write happens.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func invalidf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// MissingEntitiesError reports every referenced entity that does not exist,
// so a booking with a bad patient, provider and attention type surfaces all
// three at once.
type MissingEntitiesError struct {
	Missing []string
}

func (e *MissingEntitiesError) Error() string {
	return "not found: " + strings.Join(e.Missing, ", ")
}
