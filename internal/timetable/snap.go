package timetable

import "time"

// Snap aligns t to the grid origin + n*step using the rounding policy.
// Points already on the grid are returned unchanged by every policy;
// RoundNearest breaks ties upward.
func Snap(t, origin time.Time, step time.Duration, r Rounding) time.Time {
	if step <= 0 {
		return t
	}
	off := t.Sub(origin)
	q, rem := off/step, off%step
	if rem < 0 {
		q--
		rem += step
	}
	switch r {
	case RoundCeil:
		if rem > 0 {
			q++
		}
	case RoundFloor:
	default:
		if 2*rem >= step {
			q++
		}
	}
	return origin.Add(q * step)
}

// SnapRange snaps both ends of a dragged range. A range that collapses is
// widened to a single step.
func SnapRange(start, end, origin time.Time, step time.Duration, r Rounding) (time.Time, time.Time) {
	if end.Before(start) {
		start, end = end, start
	}
	s, e := Snap(start, origin, step, r), Snap(end, origin, step, r)
	if !e.After(s) {
		e = s.Add(step)
	}
	return s, e
}
