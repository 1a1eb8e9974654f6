package timetable

import (
	"fmt"
	"sort"
	"time"
)

// AxisOptions carries the optional inputs of BuildAxis.
type AxisOptions struct {
	// WeekStart is the first day of a week column. The zero value is Sunday,
	// so callers normally set it from config.
	WeekStart time.Weekday
	// Day trims hour slots to the visible hours of each day. Ignored by the
	// calendar view types.
	Day *DayBounds
}

// Axis is the ordered sequence of slot boundaries for a window.
type Axis struct {
	ViewType    ViewType    `json:"view_type"`
	StepMinutes int         `json:"step_minutes,omitempty"`
	Ticks       []time.Time `json:"ticks"`
	// Start is the first tick; End is the end of the last slot. Both are zero
	// for an axis without ticks.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// BuildAxis generates the tick boundaries covering [start, end) at the given
// granularity.
//
//   - hours: start + n*step while < end, optionally trimmed to day bounds.
//     With day bounds every day restarts its grid at the day start.
//   - days/weeks/months/years: unit starts from startOf(start) while < end.
func BuildAxis(start, end time.Time, view ViewType, stepMinutes int, opts AxisOptions) (Axis, error) {
	if !end.After(start) {
		return Axis{}, &InvalidWindowError{Start: start, End: end}
	}

	ax := Axis{ViewType: view}

	switch view {
	case ViewHours:
		if stepMinutes <= 0 {
			return Axis{}, &InvalidStepError{Minutes: stepMinutes}
		}
		ax.StepMinutes = stepMinutes
		ax.Ticks = hourTicks(start, end, time.Duration(stepMinutes)*time.Minute, opts.Day)
	case ViewDays, ViewWeeks, ViewMonths, ViewYears:
		for t := startOf(start, view, opts.WeekStart); t.Before(end); t = advance(t, view) {
			ax.Ticks = append(ax.Ticks, t)
		}
	default:
		return Axis{}, fmt.Errorf("timetable: build axis %q: %w", view, ErrUnknownViewType)
	}

	if n := len(ax.Ticks); n > 0 {
		ax.Start = ax.Ticks[0]
		ax.End = ax.SlotEnd(n - 1)
	}
	return ax, nil
}

func hourTicks(start, end time.Time, step time.Duration, day *DayBounds) []time.Time {
	var ticks []time.Time
	if day == nil {
		for t := start; t.Before(end); t = t.Add(step) {
			ticks = append(ticks, t)
		}
		return ticks
	}

	for d := startOfDay(start); d.Before(end); d = d.AddDate(0, 0, 1) {
		from, to := day.On(d)
		t := from
		if t.Before(start) {
			t = start
		}
		// A trailing partial slot keeps a column so items in it stay visible.
		for ; t.Before(to) && t.Before(end); t = t.Add(step) {
			ticks = append(ticks, t)
		}
	}
	return ticks
}

// Len returns the number of slots.
func (a Axis) Len() int { return len(a.Ticks) }

// SlotEnd returns the exclusive end of slot i.
func (a Axis) SlotEnd(i int) time.Time {
	t := a.Ticks[i]
	if a.ViewType == ViewHours {
		return t.Add(time.Duration(a.StepMinutes) * time.Minute)
	}
	return advance(t, a.ViewType)
}

// SlotIndex returns the slot containing t.
func (a Axis) SlotIndex(t time.Time) (int, bool) {
	i := sort.Search(len(a.Ticks), func(i int) bool { return a.Ticks[i].After(t) }) - 1
	if i < 0 || !t.Before(a.SlotEnd(i)) {
		return 0, false
	}
	return i, true
}

func startOf(t time.Time, view ViewType, weekStart time.Weekday) time.Time {
	switch view {
	case ViewWeeks:
		d := startOfDay(t)
		back := (int(d.Weekday()) - int(weekStart) + 7) % 7
		return d.AddDate(0, 0, -back)
	case ViewMonths:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	case ViewYears:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	default:
		return startOfDay(t)
	}
}

func advance(t time.Time, view ViewType) time.Time {
	switch view {
	case ViewWeeks:
		return t.AddDate(0, 0, 7)
	case ViewMonths:
		return t.AddDate(0, 1, 0)
	case ViewYears:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}
