package timetable

import (
	"timetable/internal/model"
)

// LayoutOptions configures a layout recompute.
type LayoutOptions struct {
	Window Window
	// Day bounds apply per day; nil shows whole days.
	Day *DayBounds
	// Memo is optional.
	Memo *PackMemo
}

// PlacedItem is an item assigned to a row together with its clipped geometry.
type PlacedItem struct {
	Item     model.Booking `json:"item"`
	Geometry Geometry      `json:"geometry"`
}

// GroupLayout is the row assignment of one group.
type GroupLayout struct {
	Group model.Group    `json:"group"`
	Rows  [][]PlacedItem `json:"rows"`
}

// GroupItem pairs an item with the group it came from.
type GroupItem struct {
	Group model.Group   `json:"group"`
	Item  model.Booking `json:"item"`
}

// Layout is the result of one recompute over all entries.
type Layout struct {
	Groups []GroupLayout `json:"groups"`
	// OutOfRange lists items with nothing visible in the window or day bounds.
	OutOfRange []GroupItem `json:"out_of_range,omitempty"`
	// Invalid lists items with End <= Start.
	Invalid []GroupItem `json:"invalid,omitempty"`
}

// Compute clips and packs every entry. Groups keep their input order; items
// within each row are ordered by start.
func Compute(entries []model.Entry, opts LayoutOptions) Layout {
	out := Layout{Groups: make([]GroupLayout, 0, len(entries))}

	for _, e := range entries {
		visible := make([]model.Booking, 0, len(e.Items))
		for _, it := range e.Items {
			if !it.Valid() {
				out.Invalid = append(out.Invalid, GroupItem{Group: e.Group, Item: it})
				continue
			}
			if _, ok := Clip(it, opts.Window, opts.Day); !ok {
				out.OutOfRange = append(out.OutOfRange, GroupItem{Group: e.Group, Item: it})
				continue
			}
			visible = append(visible, it)
		}

		packed := opts.Memo.Pack(visible)
		gl := GroupLayout{Group: e.Group, Rows: make([][]PlacedItem, len(packed.Rows))}
		for r, row := range packed.Rows {
			placed := make([]PlacedItem, 0, len(row.Items))
			for _, it := range row.Items {
				geom, _ := Clip(it, opts.Window, opts.Day)
				placed = append(placed, PlacedItem{Item: it, Geometry: geom})
			}
			gl.Rows[r] = placed
		}
		out.Groups = append(out.Groups, gl)
	}
	return out
}

// Items flattens a GroupItem list.
func Items(gi []GroupItem) []model.Booking {
	out := make([]model.Booking, len(gi))
	for i, g := range gi {
		out[i] = g.Item
	}
	return out
}
