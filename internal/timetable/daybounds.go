package timetable

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DayBounds restricts the visible hours of every day to [Start, End),
// expressed as offsets from local midnight.
type DayBounds struct {
	Start time.Duration
	End   time.Duration
}

// ParseDayBounds parses "HH:mm" strings. Both empty means no bounds and
// returns nil. "24:00" is accepted as an end of day.
func ParseDayBounds(dayStart, dayEnd string) (*DayBounds, error) {
	dayStart, dayEnd = strings.TrimSpace(dayStart), strings.TrimSpace(dayEnd)
	if dayStart == "" && dayEnd == "" {
		return nil, nil
	}
	if dayStart == "" {
		dayStart = "00:00"
	}
	if dayEnd == "" {
		dayEnd = "24:00"
	}
	s, err := parseClock(dayStart, false)
	if err != nil {
		return nil, err
	}
	e, err := parseClock(dayEnd, true)
	if err != nil {
		return nil, err
	}
	if e <= s {
		return nil, fmt.Errorf("timetable: day end %s not after day start %s: %w", dayEnd, dayStart, ErrInvalidDayBounds)
	}
	return &DayBounds{Start: s, End: e}, nil
}

func parseClock(v string, allowEndOfDay bool) (time.Duration, error) {
	hh, mm, ok := strings.Cut(v, ":")
	if !ok {
		return 0, fmt.Errorf("timetable: %q is not HH:mm: %w", v, ErrInvalidDayBounds)
	}
	h, herr := strconv.Atoi(hh)
	m, merr := strconv.Atoi(mm)
	if herr != nil || merr != nil || len(mm) != 2 || m < 0 || m > 59 || h < 0 {
		return 0, fmt.Errorf("timetable: %q is not HH:mm: %w", v, ErrInvalidDayBounds)
	}
	if h > 23 && !(allowEndOfDay && h == 24 && m == 0) {
		return 0, fmt.Errorf("timetable: %q is out of range: %w", v, ErrInvalidDayBounds)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// On returns the visible range of the day containing t, in t's location.
func (b DayBounds) On(t time.Time) (time.Time, time.Time) {
	day := startOfDay(t)
	return clockOn(day, b.Start), clockOn(day, b.End)
}

// Contains reports whether the slot [start, end) lies inside the visible
// hours of start's day.
func (b DayBounds) Contains(start, end time.Time) bool {
	from, to := b.On(start)
	return !start.Before(from) && !end.After(to)
}

func (b DayBounds) String() string {
	return formatClock(b.Start) + "-" + formatClock(b.End)
}

func formatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

// clockOn builds the wall-clock time d after midnight of day. Using
// time.Date keeps the result correct across DST transitions.
func clockOn(day time.Time, d time.Duration) time.Time {
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
