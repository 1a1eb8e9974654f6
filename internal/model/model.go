package model

import (
	"time"

	"github.com/google/uuid"
)

// groupNamespace scopes the name-based UUIDs derived for groups without an ID.
var groupNamespace = uuid.MustParse("5b0e1c52-7a43-4c8e-9f5e-2f6d3c1a9b10")

// Group is a named lane (typically a resource such as a room or a person)
// that owns zero or more bookings.
type Group struct {
	ID       string `json:"id,omitempty" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	Subtitle string `json:"subtitle,omitempty" yaml:"subtitle"`
}

// Key returns the group's identity. Groups with an ID are keyed by it;
// otherwise two groups with the same title and subtitle share a key.
func (g Group) Key() string {
	if g.ID != "" {
		return g.ID
	}
	return uuid.NewSHA1(groupNamespace, []byte(g.Title+"\x00"+g.Subtitle)).String()
}

// Booking represents a single concrete time interval belonging to a group
// (after recurrence expansion and timezone normalization).
type Booking struct {
	// Key is an optional host-supplied stable identifier.
	Key string `json:"key,omitempty" yaml:"key"`

	Title    string `json:"title" yaml:"title"`
	Location string `json:"location,omitempty" yaml:"location"`

	SourceID string `json:"source_id,omitempty" yaml:"source_id"` // calendar source ID
	UID      string `json:"uid,omitempty" yaml:"uid"`             // iCalendar UID

	AllDay bool `json:"all_day,omitempty" yaml:"all_day"`

	// Start / End bound the half-open interval [Start, End).
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// Valid reports whether the booking has a positive duration.
func (b Booking) Valid() bool {
	return b.End.After(b.Start)
}

func (b Booking) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// ItemKey returns Key when set, otherwise a key built from the booking's
// true interval and title so that re-fetched copies of the same booking
// compare equal.
func (b Booking) ItemKey() string {
	if b.Key != "" {
		return b.Key
	}
	return b.Start.UTC().Format(time.RFC3339Nano) + "/" + b.End.UTC().Format(time.RFC3339Nano) + "/" + b.Title
}

// Overlaps reports whether the half-open intervals of a and b intersect.
// A booking ending exactly when another starts does not overlap it.
func (b Booking) Overlaps(o Booking) bool {
	return b.Start.Before(o.End) && o.Start.Before(b.End)
}

// Entry is one group with its bookings. Items are unordered on input.
type Entry struct {
	Group Group     `json:"group" yaml:"group"`
	Items []Booking `json:"items" yaml:"items"`
}
