package timetable

import (
	"sort"
	"time"

	"timetable/internal/model"
)

// Row is one visual lane inside a group. Items are ordered by start and no
// two of them overlap.
type Row struct {
	Items []model.Booking `json:"items"`
}

func (r Row) lastEnd() time.Time {
	return r.Items[len(r.Items)-1].End
}

// fits reports whether b overlaps none of the row's items. Items are kept
// sorted by start, so only the neighbours around b's insertion point matter.
func (r Row) fits(b model.Booking) (int, bool) {
	i := sort.Search(len(r.Items), func(i int) bool { return !r.Items[i].Start.Before(b.Start) })
	if i > 0 && r.Items[i-1].Overlaps(b) {
		return i, false
	}
	if i < len(r.Items) && r.Items[i].Overlaps(b) {
		return i, false
	}
	return i, true
}

func (r *Row) insert(i int, b model.Booking) {
	r.Items = append(r.Items, model.Booking{})
	copy(r.Items[i+1:], r.Items[i:])
	r.Items[i] = b
}

// PackResult is the outcome of packing one group.
type PackResult struct {
	Rows []Row
	// Invalid holds items with End <= Start. They are never placed.
	Invalid []model.Booking
}

// Pack assigns the items of one group to the minimum number of rows.
//
// Items are first placed in host order, each into the first row it does not
// overlap, which keeps the host's visual ordering. When that uses more rows
// than the maximum overlap depth the group is re-packed greedily in start
// order, which is optimal for interval graphs.
func Pack(items []model.Booking) PackResult {
	var res PackResult
	valid := make([]model.Booking, 0, len(items))
	for _, it := range items {
		if !it.Valid() {
			res.Invalid = append(res.Invalid, it)
			continue
		}
		valid = append(valid, it)
	}
	if len(valid) == 0 {
		return res
	}

	rows := packFirstFit(valid)
	if len(rows) > MaxOverlap(valid) {
		rows = packGreedy(valid)
	}
	res.Rows = rows
	return res
}

func packFirstFit(items []model.Booking) []Row {
	var rows []Row
	for _, it := range items {
		placed := false
		for r := range rows {
			if i, ok := rows[r].fits(it); ok {
				rows[r].insert(i, it)
				placed = true
				break
			}
		}
		if !placed {
			rows = append(rows, Row{Items: []model.Booking{it}})
		}
	}
	return rows
}

// packGreedy sorts by start (longer first on ties, then input order) and
// places each item in the first row whose last item has ended.
func packGreedy(items []model.Booking) []Row {
	sorted := make([]model.Booking, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.Duration() > b.Duration()
	})

	var rows []Row
	for _, it := range sorted {
		placed := false
		for r := range rows {
			if !rows[r].lastEnd().After(it.Start) {
				rows[r].Items = append(rows[r].Items, it)
				placed = true
				break
			}
		}
		if !placed {
			rows = append(rows, Row{Items: []model.Booking{it}})
		}
	}
	return rows
}

// MaxOverlap returns the largest number of valid items active at a single
// instant. An end and a start at the same instant do not count as overlap.
func MaxOverlap(items []model.Booking) int {
	type event struct {
		at    time.Time
		delta int
	}
	events := make([]event, 0, 2*len(items))
	for _, it := range items {
		if !it.Valid() {
			continue
		}
		events = append(events, event{it.Start, 1}, event{it.End, -1})
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].at.Equal(events[j].at) {
			return events[i].at.Before(events[j].at)
		}
		return events[i].delta < events[j].delta
	})

	depth, best := 0, 0
	for _, e := range events {
		depth += e.delta
		if depth > best {
			best = depth
		}
	}
	return best
}
