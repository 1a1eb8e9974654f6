package timetable

import (
	"fmt"
	"strings"
	"time"
)

// ViewType is the axis granularity.
type ViewType string

const (
	ViewHours  ViewType = "hours"
	ViewDays   ViewType = "days"
	ViewWeeks  ViewType = "weeks"
	ViewMonths ViewType = "months"
	ViewYears  ViewType = "years"
)

// ParseViewType accepts the view type names case-insensitively.
func ParseViewType(s string) (ViewType, error) {
	v := ViewType(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case ViewHours, ViewDays, ViewWeeks, ViewMonths, ViewYears:
		return v, nil
	}
	return "", fmt.Errorf("timetable: %q: %w", s, ErrUnknownViewType)
}

// Rounding selects how a dragged selection snaps to the time step.
type Rounding string

const (
	RoundNearest Rounding = "round"
	RoundCeil    Rounding = "ceil"
	RoundFloor   Rounding = "floor"
)

func ParseRounding(s string) (Rounding, error) {
	r := Rounding(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoundNearest, RoundCeil, RoundFloor:
		return r, nil
	case "":
		return RoundNearest, nil
	}
	return "", fmt.Errorf("timetable: %q: %w", s, ErrUnknownRounding)
}

// ParseWeekday maps "monday".."sunday" to a time.Weekday.
func ParseWeekday(s string) (time.Weekday, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday":
		return time.Sunday, true
	case "monday":
		return time.Monday, true
	case "tuesday":
		return time.Tuesday, true
	case "wednesday":
		return time.Wednesday, true
	case "thursday":
		return time.Thursday, true
	case "friday":
		return time.Friday, true
	case "saturday":
		return time.Saturday, true
	}
	return time.Monday, false
}

// Window is the loaded/visible half-open range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewWindow validates start < end.
func NewWindow(start, end time.Time) (Window, error) {
	if !end.After(start) {
		return Window{}, &InvalidWindowError{Start: start, End: end}
	}
	return Window{Start: start, End: end}, nil
}

func (w Window) Span() time.Duration { return w.End.Sub(w.Start) }

func (w Window) Equal(o Window) bool {
	return w.Start.Equal(o.Start) && w.End.Equal(o.End)
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
