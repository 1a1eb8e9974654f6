package timetable

import (
	"time"

	"timetable/internal/model"
)

// SelectedTimeSlot identifies one cell: a group and the start of its slot.
type SelectedTimeSlot struct {
	Group         model.Group `json:"group"`
	TimeSlotStart time.Time   `json:"time_slot_start"`
}

func (s SelectedTimeSlot) same(o SelectedTimeSlot) bool {
	return s.Group.Key() == o.Group.Key() && s.TimeSlotStart.Equal(o.TimeSlotStart)
}

// SelectedRange is the rectangle drawn by a drag selection.
type SelectedRange struct {
	Group model.Group `json:"group"`
	Start time.Time   `json:"start"`
	End   time.Time   `json:"end"`
}

// ItemRef identifies a selected item by value so that re-fetched copies of
// the same booking stay selected.
type ItemRef struct {
	GroupKey string `json:"group_key"`
	ItemKey  string `json:"item_key"`
}

func RefOf(g model.Group, b model.Booking) ItemRef {
	return ItemRef{GroupKey: g.Key(), ItemKey: b.ItemKey()}
}

// Selection holds selected time slots, the drag range and the selected item.
// Slots and the range are mutually exclusive.
type Selection struct {
	slots []SelectedTimeSlot
	rng   *SelectedRange
	item  *ItemRef
}

// ToggleTimeSlot applies a slot click and returns the resulting selection.
//
// Without multi-select a click replaces the selection, or clears it when the
// slot was the only one selected. With multi-select the slot is added, or
// removed when already selected.
func (s *Selection) ToggleTimeSlot(slot SelectedTimeSlot, multi bool) []SelectedTimeSlot {
	s.rng = nil
	if !multi {
		if len(s.slots) == 1 && s.slots[0].same(slot) {
			s.slots = nil
		} else {
			s.slots = []SelectedTimeSlot{slot}
		}
		return s.Slots()
	}

	for i, cur := range s.slots {
		if cur.same(slot) {
			s.slots = append(s.slots[:i:i], s.slots[i+1:]...)
			return s.Slots()
		}
	}
	s.slots = append(s.slots, slot)
	return s.Slots()
}

// ToggleItem selects the item, or deselects it when it is the selected one.
// It reports whether the item is selected afterwards.
func (s *Selection) ToggleItem(g model.Group, b model.Booking) bool {
	ref := RefOf(g, b)
	if s.item != nil && *s.item == ref {
		s.item = nil
		return false
	}
	s.item = &ref
	return true
}

// SetRange replaces any slot selection with r. A nil r clears the range.
func (s *Selection) SetRange(r *SelectedRange) {
	s.slots = nil
	if r == nil {
		s.rng = nil
		return
	}
	cp := *r
	s.rng = &cp
}

// ClearOnAxisChange drops everything tied to slot identities. The selected
// item goes too since the layout it referred to is rebuilt.
func (s *Selection) ClearOnAxisChange() {
	s.slots = nil
	s.rng = nil
	s.item = nil
}

func (s *Selection) ClearItem() { s.item = nil }

func (s *Selection) Slots() []SelectedTimeSlot {
	out := make([]SelectedTimeSlot, len(s.slots))
	copy(out, s.slots)
	return out
}

func (s *Selection) Range() *SelectedRange {
	if s.rng == nil {
		return nil
	}
	cp := *s.rng
	return &cp
}

func (s *Selection) Item() *ItemRef {
	if s.item == nil {
		return nil
	}
	cp := *s.item
	return &cp
}

func (s *Selection) IsSlotSelected(slot SelectedTimeSlot) bool {
	for _, cur := range s.slots {
		if cur.same(slot) {
			return true
		}
	}
	return false
}

func (s *Selection) IsItemSelected(g model.Group, b model.Booking) bool {
	return s.item != nil && *s.item == RefOf(g, b)
}

// Empty reports whether no slot, range or item is selected.
func (s *Selection) Empty() bool {
	return len(s.slots) == 0 && s.rng == nil && s.item == nil
}
