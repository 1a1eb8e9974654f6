package timetable

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timetable/internal/model"
)

// recorder collects callback invocations.
type recorder struct {
	mu          sync.Mutex
	timeFrames  []TimeFrameRequest
	entryRanges []EntryRangeRequest
	slotClicks  []SelectedTimeSlot
	itemClicks  []model.Booking
	groupClicks []model.Group
	ranges      []*SelectedRange
	outOfRange  [][]model.Booking
	invalid     [][]GroupItem
	layouts     []Snapshot
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		RequestTimeFrame: func(req TimeFrameRequest) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.timeFrames = append(r.timeFrames, req)
		},
		RequestEntryRange: func(req EntryRangeRequest) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.entryRanges = append(r.entryRanges, req)
		},
		OnTimeSlotClick: func(s SelectedTimeSlot, _ bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.slotClicks = append(r.slotClicks, s)
		},
		OnTimeSlotItemClick: func(_ model.Group, item model.Booking) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.itemClicks = append(r.itemClicks, item)
		},
		OnGroupClick: func(g model.Group) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.groupClicks = append(r.groupClicks, g)
		},
		OnTimeRangeSelected: func(sr *SelectedRange) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.ranges = append(r.ranges, sr)
		},
		ItemsOutsideOfDayRangeFound: func(items []model.Booking) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.outOfRange = append(r.outOfRange, items)
		},
		InvalidItemsFound: func(items []GroupItem) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.invalid = append(r.invalid, items)
		},
		OnLayoutChange: func(s Snapshot) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.layouts = append(r.layouts, s)
		},
	}
}

func newTable(t *testing.T, opts Options, r *recorder) *Table {
	t.Helper()
	if opts.Window.End.IsZero() {
		opts.Window = window(t, 0, 5)
	}
	if opts.ViewType == "" {
		opts.ViewType = ViewHours
	}
	if opts.TimeStepMinutes == 0 {
		opts.TimeStepMinutes = 60
	}
	if opts.Debounce == 0 {
		opts.Debounce = -1
	}
	tbl, err := New(opts, r.callbacks())
	require.NoError(t, err)
	t.Cleanup(tbl.Close)
	return tbl
}

func sampleEntries() []model.Entry {
	return []model.Entry{
		{
			Group: groupA,
			Items: []model.Booking{
				booking("short-1", at(0, 9, 10), at(0, 12, 10)),
				booking("short-2", at(0, 13, 0), at(0, 15, 0)),
				booking("short-3", at(0, 15, 10), at(0, 16, 0)),
				booking("long-1", at(0, 9, 0), at(0, 15, 0)),
				booking("long-2", at(0, 9, 10), at(0, 15, 10)),
			},
		},
		{
			Group: groupB,
			Items: []model.Booking{
				booking("dawn", at(1, 5, 0), at(1, 6, 0)),
				booking("broken", at(1, 9, 0), at(1, 8, 0)),
				booking("day", at(1, 9, 0), at(1, 10, 0)),
			},
		},
	}
}

func TestTable_LayoutAndBatchedReports(t *testing.T) {
	r := &recorder{}
	tbl := newTable(t, Options{DayStart: "08:00", DayEnd: "18:00"}, r)

	require.True(t, tbl.SetEntries(0, sampleEntries()))
	snap := tbl.Snapshot()

	require.Len(t, snap.Layout.Groups, 2)
	assert.Len(t, snap.Layout.Groups[0].Rows, 3)
	assert.Len(t, snap.Layout.Groups[1].Rows, 1)

	require.Len(t, r.outOfRange, 1, "out-of-range items are reported once per recompute")
	require.Len(t, r.outOfRange[0], 1)
	assert.Equal(t, "dawn", r.outOfRange[0][0].Title)

	require.Len(t, r.invalid, 1)
	assert.Equal(t, "broken", r.invalid[0][0].Item.Title)
	assert.Equal(t, groupB, r.invalid[0][0].Group)

	assert.Equal(t, 50, snap.Axis.Len())
}

func TestTable_DayBoundsOnlyInHoursView(t *testing.T) {
	r := &recorder{}
	tbl := newTable(t, Options{DayStart: "08:00", DayEnd: "18:00"}, r)
	require.NoError(t, tbl.SetViewType(ViewDays))

	tbl.SetEntries(0, sampleEntries())
	snap := tbl.Snapshot()
	assert.Len(t, snap.Layout.OutOfRange, 0)
	assert.Equal(t, 5, snap.Axis.Len())
}

func TestTable_ItemInPartialLastSlotIsShown(t *testing.T) {
	r := &recorder{}
	tbl := newTable(t, Options{DayStart: "08:00", DayEnd: "17:30"}, r)

	late := booking("late", at(0, 17, 5), at(0, 17, 25))
	tbl.SetEntries(0, []model.Entry{{Group: groupA, Items: []model.Booking{late}}})
	snap := tbl.Snapshot()

	require.Len(t, snap.Layout.Groups, 1)
	assert.Len(t, snap.Layout.Groups[0].Rows, 1)
	assert.Empty(t, snap.Layout.OutOfRange)
	assert.Empty(t, r.outOfRange)

	i, ok := snap.Axis.SlotIndex(late.Start)
	require.True(t, ok)
	assert.Equal(t, at(0, 17, 0), snap.Axis.Ticks[i])
	assert.True(t, snap.Axis.SlotEnd(i).After(late.End))
}

func TestTable_SelectRangeSnapsToEachDaysGrid(t *testing.T) {
	r := &recorder{}
	tbl := newTable(t, Options{DayStart: "08:00", DayEnd: "18:00", TimeStepMinutes: 50}, r)

	// 50 minutes does not divide a day, so day 1 ticks are off the day 0 grid.
	sr, ok := tbl.SelectRange(groupA, at(1, 8, 0), at(1, 8, 50))
	require.True(t, ok)
	assert.Equal(t, at(1, 8, 0), sr.Start)
	assert.Equal(t, at(1, 8, 50), sr.End)

	sr, ok = tbl.SelectRange(groupA, at(2, 8, 10), at(2, 9, 35))
	require.True(t, ok)
	assert.Equal(t, at(2, 8, 0), sr.Start)
	assert.Equal(t, at(2, 9, 40), sr.End)

	ticks := tbl.Snapshot().Axis.Ticks
	assert.Contains(t, ticks, sr.Start)
	assert.Contains(t, ticks, sr.End)
}

func TestTable_TimeStepClearsRange(t *testing.T) {
	r := &recorder{}
	tbl := newTable(t, Options{}, r)

	_, ok := tbl.SelectRange(groupA, at(0, 9, 0), at(0, 11, 0))
	require.True(t, ok)
	require.NoError(t, tbl.SetTimeStep(30))

	assert.Nil(t, tbl.Snapshot().Range)
	require.Len(t, r.ranges, 2)
	assert.NotNil(t, r.ranges[0])
	assert.Nil(t, r.ranges[1], "host is told the range is gone")

	// No range left, so a second step change reports nothing.
	require.NoError(t, tbl.SetTimeStep(15))
	assert.Len(t, r.ranges, 2)
}

func TestTable_SlotClickToggle(t *testing.T) {
	r := &recorder{}
	tbl := newTable(t, Options{}, r)

	assert.True(t, tbl.ClickTimeSlot(groupA, at(0, 10, 0), false))
	require.Len(t, tbl.Snapshot().Slots, 1)
	assert.True(t, tbl.ClickTimeSlot(groupA, at(0, 10, 0), false))
	assert.Empty(t, tbl.Snapshot().Slots)
	assert.Len(t, r.slotClicks, 2)
}

func TestTable_SlotClickSnapsToTick(t *testing.T) {
	r := &recorder{}
	tbl := newTable(t, Options{}, r)

	require.True(t, tbl.ClickTimeSlot(groupA, at(0, 10, 25), false))
	assert.Equal(t, at(0, 10, 0), tbl.Snapshot().Slots[0].TimeSlotStart)

	assert.False(t, tbl.ClickTimeSlot(groupA, at(9, 0, 0), false), "outside the axis")
}

func TestTable_DisabledCellsSwallowClicks(t *testing.T) {
	r := &recorder{}
	cbDisabled := func(g model.Group, slot time.Time) bool { return slot.Hour() == 12 }
	opts := Options{DisableWeekendInteractions: true, Window: window(t, 0, 7)}
	rec := r.callbacks()
	rec.IsCellDisabled = cbDisabled
	opts.ViewType = ViewHours
	opts.TimeStepMinutes = 60
	opts.Debounce = -1
	tbl, err := New(opts, rec)
	require.NoError(t, err)
	defer tbl.Close()

	assert.False(t, tbl.ClickTimeSlot(groupA, at(5, 10, 0), false), "saturday")
	assert.False(t, tbl.ClickTimeSlot(groupA, at(1, 12, 0), false), "predicate")
	assert.True(t, tbl.ClickTimeSlot(groupA, at(1, 13, 0), false))
	assert.Len(t, r.slotClicks, 1)

	_, ok := tbl.SelectRange(groupA, at(1, 10, 0), at(1, 14, 0))
	assert.False(t, ok, "range crossing a disabled cell")
	assert.Empty(t, r.ranges)
}

func TestTable_ViewTypeChangeClearsSelection(t *testing.T) {
	r := &recorder{}
	tbl := newTable(t, Options{}, r)

	tbl.ClickTimeSlot(groupA, at(0, 10, 0), true)
	tbl.ClickTimeSlot(groupA, at(0, 11, 0), true)
	tbl.ClickItem(groupA, booking("x", at(0, 9, 0), at(0, 10, 0)))
	require.Len(t, tbl.Snapshot().Slots, 2)

	require.NoError(t, tbl.SetViewType(ViewWeeks))
	snap := tbl.Snapshot()
	assert.Empty(t, snap.Slots)
	assert.Nil(t, snap.Range)
	assert.Nil(t, snap.Item)

	_, ok := tbl.SelectRange(groupA, at(0, 0, 0), at(3, 0, 0))
	require.True(t, ok)
	require.NoError(t, tbl.SetViewType(ViewDays))
	assert.Nil(t, tbl.Snapshot().Range)
	require.Len(t, r.ranges, 2)
	assert.Nil(t, r.ranges[1], "range clear is reported")

	assert.ErrorIs(t, tbl.SetViewType("fortnights"), ErrUnknownViewType)
}

func TestTable_SelectRangeSnaps(t *testing.T) {
	r := &recorder{}
	tbl := newTable(t, Options{Rounding: RoundCeil}, r)

	sr, ok := tbl.SelectRange(groupA, at(0, 9, 10), at(0, 11, 40))
	require.True(t, ok)
	assert.Equal(t, at(0, 10, 0), sr.Start)
	assert.Equal(t, at(0, 12, 0), sr.End)
	require.Len(t, r.ranges, 1)

	require.NoError(t, tbl.SetViewType(ViewDays))
	sr, ok = tbl.SelectRange(groupA, at(1, 3, 0), at(1, 4, 0))
	require.True(t, ok)
	assert.Equal(t, at(2, 0, 0), sr.Start)
	assert.Equal(t, at(3, 0, 0), sr.End)

	tbl.ClearRange()
	assert.Nil(t, tbl.Snapshot().Range)
}

func TestTable_PaginationAndStaleResponses(t *testing.T) {
	r := &recorder{}
	tbl := newTable(t, Options{}, r)
	tbl.SetEntries(0, sampleEntries())
	tbl.ClickItem(groupA, booking("short-1", at(0, 9, 10), at(0, 12, 10)))

	ok, err := tbl.Next()
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = tbl.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, r.timeFrames, 2)

	// Old entries stay displayed while the request is outstanding.
	snap := tbl.Snapshot()
	assert.Equal(t, at(0, 0, 0), snap.Window.Start)
	require.NotNil(t, snap.Pending)
	assert.Equal(t, r.timeFrames[1].Generation, snap.Pending.Generation)
	assert.Len(t, snap.Layout.Groups, 2)

	stale := []model.Entry{{Group: groupA, Items: []model.Booking{booking("stale", at(5, 9, 0), at(5, 10, 0))}}}
	assert.False(t, tbl.SetEntries(r.timeFrames[0].Generation, stale))

	fresh := []model.Entry{{Group: groupA, Items: []model.Booking{booking("fresh", at(10, 9, 0), at(10, 10, 0))}}}
	assert.True(t, tbl.SetEntries(r.timeFrames[1].Generation, fresh))

	snap = tbl.Snapshot()
	assert.Equal(t, at(10, 0, 0), snap.Window.Start)
	assert.Equal(t, at(10, 0, 0), snap.Axis.Start)
	assert.Nil(t, snap.Pending)
	assert.Nil(t, snap.Item, "window change clears the selected item")
	require.Len(t, snap.Layout.Groups, 1)
	assert.Equal(t, "fresh", snap.Layout.Groups[0].Rows[0][0].Item.Title)

	ok, err = tbl.RequestTimeFrame(at(10, 0, 0), at(15, 0, 0))
	require.NoError(t, err)
	assert.False(t, ok, "loaded window is not requested again")
}

func TestTable_EntryRangeRequests(t *testing.T) {
	r := &recorder{}
	tbl := newTable(t, Options{Groups: EntryRange{Start: 0, End: 10}}, r)

	ok, err := tbl.RequestEntryRange(0, 20)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, r.entryRanges, 1)
	assert.Equal(t, ModeRegenerate, r.entryRanges[0].Mode)

	assert.True(t, tbl.SetEntries(r.entryRanges[0].Generation, sampleEntries()))
	assert.Equal(t, EntryRange{Start: 0, End: 20}, tbl.Snapshot().Groups)
}

func TestTable_ItemClickTogglesAcrossReloads(t *testing.T) {
	r := &recorder{}
	tbl := newTable(t, Options{}, r)
	item := model.Booking{Key: "k1", Title: "Sync", Start: at(0, 9, 0), End: at(0, 10, 0)}

	assert.True(t, tbl.ClickItem(groupA, item))
	tbl.SetEntries(0, []model.Entry{{Group: groupA, Items: []model.Booking{item}}})

	reloaded := item
	assert.False(t, tbl.ClickItem(groupA, reloaded))
	assert.Len(t, r.itemClicks, 2)

	tbl.ClickGroup(groupB)
	assert.Equal(t, []model.Group{groupB}, r.groupClicks)
}

func TestTable_TimeStepDebounced(t *testing.T) {
	r := &recorder{}
	tbl := newTable(t, Options{Debounce: 20 * time.Millisecond}, r)
	tbl.ClickTimeSlot(groupA, at(0, 10, 0), false)

	require.NoError(t, tbl.SetTimeStep(15))
	require.NoError(t, tbl.SetTimeStep(30))
	assert.Equal(t, 60, tbl.Snapshot().StepMinutes, "not applied before the delay")

	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.layouts) == 1
	}, time.Second, 5*time.Millisecond)

	snap := tbl.Snapshot()
	assert.Equal(t, 30, snap.StepMinutes)
	assert.Equal(t, 2*5*24, snap.Axis.Len())
	assert.Empty(t, snap.Slots)

	var serr *InvalidStepError
	assert.ErrorAs(t, tbl.SetTimeStep(0), &serr)
}

func TestTable_NowMarker(t *testing.T) {
	r := &recorder{}
	tbl := newTable(t, Options{Clock: FixedClock(at(2, 12, 0))}, r)

	snap := tbl.Snapshot()
	require.NotNil(t, snap.NowPosition)
	assert.InDelta(t, 0.5, *snap.NowPosition, 1e-9)

	late := newTable(t, Options{Clock: FixedClock(at(9, 0, 0))}, r)
	assert.Nil(t, late.Snapshot().NowPosition)
}

func TestNew_ValidatesOptions(t *testing.T) {
	base := Options{Window: Window{Start: at(0, 0, 0), End: at(1, 0, 0)}, ViewType: ViewHours, TimeStepMinutes: 60}

	bad := base
	bad.Window.End = bad.Window.Start
	_, err := New(bad, Callbacks{})
	assert.ErrorIs(t, err, ErrInvalidWindow)

	bad = base
	bad.TimeStepMinutes = -5
	_, err = New(bad, Callbacks{})
	assert.ErrorIs(t, err, ErrInvalidStep)

	bad = base
	bad.DayStart, bad.DayEnd = "19:00", "07:00"
	_, err = New(bad, Callbacks{})
	assert.ErrorIs(t, err, ErrInvalidDayBounds)

	bad = base
	bad.Rounding = "sideways"
	_, err = New(bad, Callbacks{})
	assert.ErrorIs(t, err, ErrUnknownRounding)

	bad = base
	bad.ViewType = ""
	_, err = New(bad, Callbacks{})
	assert.ErrorIs(t, err, ErrUnknownViewType)
}
