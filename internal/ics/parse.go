package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "timetable/internal/log"
)

// ParsedEvent is a VEVENT reduced to what booking expansion needs.
type ParsedEvent struct {
	Source Source

	UID      string
	Summary  string
	Location string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule string
	ExDates  []time.Time
	// RecurrenceID is set on VEVENTs that override one instance of a
	// recurring event.
	RecurrenceID *time.Time
}

// IsOverride reports whether the event replaces one recurring instance.
func (e ParsedEvent) IsOverride() bool { return e.RecurrenceID != nil }

// ParseICS parses one ICS payload. Malformed VEVENTs are logged and
// skipped; only an unreadable calendar fails the whole source.
func ParseICS(src Source, body []byte) ([]ParsedEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("ics: empty body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse %s: %w", src.Group.Title, err)
	}

	vevents := cal.Events()
	events := make([]ParsedEvent, 0, len(vevents))
	for _, ve := range vevents {
		ev, err := parseVEvent(src, ve)
		if err != nil {
			appLog.Error("ics vevent skipped", err, "group", src.Group.Title)
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "group", src.Group.Title, "events", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (ParsedEvent, error) {
	ev := ParsedEvent{Source: src}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, errors.New("missing UID")
	}
	ev.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		ev.Location = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, errors.New("missing DTSTART")
	}
	start, err := ve.GetStartAt()
	if err != nil {
		return ev, fmt.Errorf("DTSTART: %w", err)
	}
	ev.Start = start
	ev.AllDay = isDateValue(dtStart)

	end, err := ve.GetEndAt()
	switch {
	case err == nil:
		ev.End = end
	case ev.AllDay:
		// A date DTSTART without DTEND spans one day.
		ev.End = start.AddDate(0, 0, 1)
	default:
		ev.End = start
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(strings.TrimSpace(part), propLocation(p, start.Location())); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		t, err := parseICSTime(p.Value, propLocation(p, start.Location()))
		if err != nil {
			return ev, fmt.Errorf("RECURRENCE-ID: %w", err)
		}
		ev.RecurrenceID = &t
	}

	return ev, nil
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs := p.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// propLocation resolves the TZID parameter of p, or fallback.
func propLocation(p *ical.IANAProperty, fallback *time.Location) *time.Location {
	if tz := p.ICalParameters["TZID"]; len(tz) > 0 {
		if loc, err := time.LoadLocation(tz[0]); err == nil {
			return loc
		}
	}
	return fallback
}

// parseICSTime parses DATE, floating DATE-TIME and UTC DATE-TIME values.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
