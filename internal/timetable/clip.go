package timetable

import (
	"time"

	"timetable/internal/model"
)

// Segment is the visible part of an item inside one day (or inside the
// whole window when no day bounds apply).
type Segment struct {
	VisibleStart  time.Time `json:"visible_start"`
	VisibleEnd    time.Time `json:"visible_end"`
	ClippedBefore bool      `json:"clipped_before"`
	ClippedAfter  bool      `json:"clipped_after"`
}

// Geometry is the derived display view of an item. The item's own dates are
// never modified.
type Geometry struct {
	VisibleStart  time.Time `json:"visible_start"`
	VisibleEnd    time.Time `json:"visible_end"`
	ClippedBefore bool      `json:"clipped_before"`
	ClippedAfter  bool      `json:"clipped_after"`
	Segments      []Segment `json:"segments"`
}

// Clip trims item to the window and, when day is set, to the visible hours
// of every day it touches. It returns false when nothing remains visible.
func Clip(item model.Booking, w Window, day *DayBounds) (Geometry, bool) {
	start, end, ok := intersect(item.Start, item.End, w.Start, w.End)
	if !ok {
		return Geometry{}, false
	}

	var segs []Segment
	if day == nil {
		segs = []Segment{segment(item, start, end)}
	} else {
		for d := startOfDay(start); d.Before(end); d = d.AddDate(0, 0, 1) {
			from, to := day.On(d)
			if s, e, ok := intersect(start, end, from, to); ok {
				segs = append(segs, segment(item, s, e))
			}
		}
	}
	if len(segs) == 0 {
		return Geometry{}, false
	}

	first, last := segs[0], segs[len(segs)-1]
	return Geometry{
		VisibleStart:  first.VisibleStart,
		VisibleEnd:    last.VisibleEnd,
		ClippedBefore: first.ClippedBefore,
		ClippedAfter:  last.ClippedAfter,
		Segments:      segs,
	}, true
}

func segment(item model.Booking, start, end time.Time) Segment {
	return Segment{
		VisibleStart:  start,
		VisibleEnd:    end,
		ClippedBefore: item.Start.Before(start),
		ClippedAfter:  item.End.After(end),
	}
}

// intersect returns the intersection of [aStart, aEnd) and [bStart, bEnd).
func intersect(aStart, aEnd, bStart, bEnd time.Time) (time.Time, time.Time, bool) {
	start, end := aStart, aEnd
	if bStart.After(start) {
		start = bStart
	}
	if bEnd.Before(end) {
		end = bEnd
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
