package ics

import (
	"errors"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	appLog "timetable/internal/log"
	"timetable/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// ExpandOptions bounds recurrence expansion.
type ExpandOptions struct {
	// Location is the zone bookings are converted to. Nil means UTC.
	Location *time.Location

	// Start / End is the half-open window bookings must intersect.
	Start time.Time
	End   time.Time

	// MaxOccurrencesPerEvent caps each RRULE. Zero uses the default.
	MaxOccurrencesPerEvent int
}

// ExpandResult holds the bookings of one or more sources.
type ExpandResult struct {
	Bookings []model.Booking
	// Truncated lists UIDs whose expansion hit the cap.
	Truncated []string
}

// Expand turns parsed events into concrete bookings intersecting the
// window. RRULE, EXDATE and RECURRENCE-ID overrides are honored; the result
// is sorted by start then UID.
func Expand(events []ParsedEvent, opts ExpandOptions) (ExpandResult, error) {
	var res ExpandResult
	if !opts.End.After(opts.Start) {
		return res, errors.New("expand: window end must be after start")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxOccurrencesPerEvent <= 0 {
		opts.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	overrides := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		}
	}

	for _, ev := range events {
		if ev.IsOverride() {
			continue
		}
		var (
			bookings []model.Booking
			capped   bool
		)
		if ev.RawRRule == "" {
			bookings = expandSingle(ev, opts)
		} else {
			bookings, capped = expandRecurring(ev, overrides[ev.UID], opts)
		}
		res.Bookings = append(res.Bookings, bookings...)
		if capped {
			res.Truncated = append(res.Truncated, ev.UID)
			appLog.Error("expand: occurrences truncated", errors.New("max occurrences reached"),
				"uid", ev.UID, "cap", opts.MaxOccurrencesPerEvent)
		}
	}

	slices.SortStableFunc(res.Bookings, func(a, b model.Booking) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		if a.UID < b.UID {
			return -1
		}
		if a.UID > b.UID {
			return 1
		}
		return 0
	})
	return res, nil
}

func expandSingle(ev ParsedEvent, opts ExpandOptions) []model.Booking {
	b := toBooking(ev, ev.Start, ev.Start, ev.End, opts.Location)
	if !intersects(b, opts) {
		return nil
	}
	return []model.Booking{b}
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, opts ExpandOptions) ([]model.Booking, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: bad RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	loc := ev.Start.Location()
	dur := ev.End.Sub(ev.Start)
	// Instances starting up to one duration before the window still reach into it.
	starts := set.Between(opts.Start.Add(-dur).In(loc), opts.End.In(loc), true)

	capped := false
	if len(starts) > opts.MaxOccurrencesPerEvent {
		starts = starts[:opts.MaxOccurrencesPerEvent]
		capped = true
	}

	out := make([]model.Booking, 0, len(starts))
	for _, s := range starts {
		b := toBooking(ev, s, s, s.Add(dur), opts.Location)
		if o, ok := overrideFor(overrides, s); ok {
			b = toBooking(o, s, o.Start, o.End, opts.Location)
		}
		if intersects(b, opts) {
			out = append(out, b)
		}
	}
	return out, capped
}

func overrideFor(overrides []ParsedEvent, instance time.Time) (ParsedEvent, bool) {
	for _, o := range overrides {
		if o.RecurrenceID.Equal(instance) {
			return o, true
		}
	}
	return ParsedEvent{}, false
}

// toBooking converts one instance. original is the unmodified instance
// start and keys the booking so an override keeps its identity.
func toBooking(ev ParsedEvent, original, start, end time.Time, loc *time.Location) model.Booking {
	b := model.Booking{
		Key:      ev.UID + "@" + original.UTC().Format(time.RFC3339Nano),
		Title:    ev.Summary,
		Location: ev.Location,
		SourceID: ev.Source.ID(),
		UID:      ev.UID,
		AllDay:   ev.AllDay,
		Start:    start.In(loc),
		End:      end.In(loc),
	}
	if ev.AllDay {
		// Dates are floating; pin them to midnight in the display zone.
		days := int(end.Sub(start).Round(24*time.Hour) / (24 * time.Hour))
		if days < 1 {
			days = 1
		}
		b.Start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
		b.End = b.Start.AddDate(0, 0, days)
	}
	return b
}

func intersects(b model.Booking, opts ExpandOptions) bool {
	if !b.Valid() {
		// Zero-length bookings are kept when they sit inside the window so
		// the layout can report them as invalid.
		return !b.Start.Before(opts.Start) && b.Start.Before(opts.End)
	}
	return b.Start.Before(opts.End) && b.End.After(opts.Start)
}
