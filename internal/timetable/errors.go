package timetable

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for invalid engine configuration. Typed errors below wrap
// them so callers can use either errors.Is or errors.As.
var (
	ErrInvalidWindow     = errors.New("invalid window")
	ErrInvalidStep       = errors.New("invalid time step")
	ErrInvalidDayBounds  = errors.New("invalid day bounds")
	ErrUnknownViewType   = errors.New("unknown view type")
	ErrUnknownRounding   = errors.New("unknown rounding")
	ErrInvalidEntryRange = errors.New("invalid entry range")
)

// InvalidWindowError is returned when a window does not satisfy start < end.
type InvalidWindowError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidWindowError) Error() string {
	return fmt.Sprintf("timetable: window end %s is not after start %s",
		e.End.Format(time.RFC3339), e.Start.Format(time.RFC3339))
}

func (e *InvalidWindowError) Unwrap() error { return ErrInvalidWindow }

// InvalidStepError is returned for a non-positive timeStepMinutes in hours view.
type InvalidStepError struct {
	Minutes int
}

func (e *InvalidStepError) Error() string {
	return fmt.Sprintf("timetable: time step must be positive, got %d minutes", e.Minutes)
}

func (e *InvalidStepError) Unwrap() error { return ErrInvalidStep }
