package timetable

import (
	"sort"
	"time"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// FixedClock always reports the same instant. It backs the nowOverwrite
// option used for deterministic rendering.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// NowPosition places now on the axis as a fraction of its width, measured in
// slot columns so months of different lengths and trimmed hours keep equal
// column widths. Inside a hidden gap between days the marker sits on the
// boundary of the next visible slot. It returns false outside the axis.
func NowPosition(now time.Time, ax Axis) (float64, bool) {
	if ax.Len() == 0 || now.Before(ax.Start) || !now.Before(ax.End) {
		return 0, false
	}
	i, ok := ax.SlotIndex(now)
	if !ok {
		next := sort.Search(ax.Len(), func(i int) bool { return ax.Ticks[i].After(now) })
		return float64(next) / float64(ax.Len()), true
	}
	slotStart, slotEnd := ax.Ticks[i], ax.SlotEnd(i)
	within := float64(now.Sub(slotStart)) / float64(slotEnd.Sub(slotStart))
	return (float64(i) + within) / float64(ax.Len()), true
}
