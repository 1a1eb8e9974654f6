package timetable

import (
	"fmt"
	"sort"
	"sync"
	"time"

	appLog "timetable/internal/log"
	"timetable/internal/model"
)

// Callbacks connects a Table to its host. Every field is optional.
type Callbacks struct {
	// RequestTimeFrame asks the host for entries of a new window. The host
	// answers with SetEntries(req.Generation, ...).
	RequestTimeFrame func(req TimeFrameRequest)
	// RequestEntryRange asks the host for another range of groups.
	RequestEntryRange func(req EntryRangeRequest)

	OnTimeSlotClick     func(slot SelectedTimeSlot, isMultiSelect bool)
	OnTimeSlotItemClick func(g model.Group, item model.Booking)
	OnGroupClick        func(g model.Group)
	// OnTimeRangeSelected receives nil when the range is cleared.
	OnTimeRangeSelected func(r *SelectedRange)

	// IsCellDisabled must be pure.
	IsCellDisabled func(g model.Group, slotStart time.Time) bool

	// ItemsOutsideOfDayRangeFound is called once per recompute with every
	// item that has nothing visible.
	ItemsOutsideOfDayRangeFound func(items []model.Booking)
	// InvalidItemsFound is called once per recompute with items whose end is
	// not after their start.
	InvalidItemsFound func(items []GroupItem)
	// OnLayoutChange is called after recomputes the host did not trigger
	// synchronously, such as a debounced time step edit.
	OnLayoutChange func(s Snapshot)
}

// Options configures a Table.
type Options struct {
	Window          Window
	ViewType        ViewType
	TimeStepMinutes int
	// DayStart / DayEnd are "HH:mm" and bound the hours view.
	DayStart string
	DayEnd   string
	// WeekStart defaults to Monday.
	WeekStart                  *time.Weekday
	DisableWeekendInteractions bool
	Rounding                   Rounding
	// Groups is the initially loaded group range.
	Groups EntryRange
	// Debounce delays time step edits. Zero uses DefaultDebounce and a
	// negative value applies edits synchronously.
	Debounce time.Duration
	// Clock overrides the wall clock for the now marker.
	Clock Clock
}

// Snapshot is a consistent copy of the table state.
type Snapshot struct {
	Window      Window             `json:"window"`
	ViewType    ViewType           `json:"view_type"`
	StepMinutes int                `json:"step_minutes"`
	Axis        Axis               `json:"axis"`
	Layout      Layout             `json:"layout"`
	Slots       []SelectedTimeSlot `json:"selected_slots"`
	Range       *SelectedRange     `json:"selected_range,omitempty"`
	Item        *ItemRef           `json:"selected_item,omitempty"`
	// NowPosition is the now marker as a fraction of the axis width; nil
	// when now is outside the axis.
	NowPosition *float64          `json:"now_position,omitempty"`
	Pending     *TimeFrameRequest `json:"pending,omitempty"`
	Groups      EntryRange        `json:"groups"`
}

// Table is the timetable state machine. It owns the axis, the layout, the
// selection and pagination state. Transitions are serialized by a mutex and
// callbacks run after it is released, so a callback may call back into the
// table.
type Table struct {
	mu sync.Mutex

	view      ViewType
	step      int
	day       *DayBounds
	weekStart time.Weekday
	rounding  Rounding
	clock     Clock

	cb   Callbacks
	wm   *WindowManager
	sel  Selection
	eval CellEvaluator
	memo *PackMemo

	entries []model.Entry
	axis    Axis
	layout  Layout
}

func New(opts Options, cb Callbacks) (*Table, error) {
	if _, err := NewWindow(opts.Window.Start, opts.Window.End); err != nil {
		return nil, err
	}
	if _, err := ParseViewType(string(opts.ViewType)); err != nil {
		return nil, err
	}
	rounding, err := ParseRounding(string(opts.Rounding))
	if err != nil {
		return nil, err
	}
	day, err := ParseDayBounds(opts.DayStart, opts.DayEnd)
	if err != nil {
		return nil, err
	}

	t := &Table{
		view:      opts.ViewType,
		step:      opts.TimeStepMinutes,
		day:       day,
		weekStart: time.Monday,
		rounding:  rounding,
		clock:     opts.Clock,
		cb:        cb,
		eval: CellEvaluator{
			DisableWeekends: opts.DisableWeekendInteractions,
			IsCellDisabled:  cb.IsCellDisabled,
		},
		memo: NewPackMemo(0),
	}
	if opts.WeekStart != nil {
		t.weekStart = *opts.WeekStart
	}
	if t.clock == nil {
		t.clock = SystemClock
	}
	debounce := opts.Debounce
	if debounce == 0 {
		debounce = DefaultDebounce
	}
	t.wm = NewWindowManager(opts.Window, opts.Groups, debounce)

	if err := t.rebuildAxis(); err != nil {
		return nil, err
	}
	return t, nil
}

// Close cancels pending debounced work.
func (t *Table) Close() { t.wm.Stop() }

type effect func()

func run(effects []effect) {
	for _, e := range effects {
		e()
	}
}

func (t *Table) rebuildAxis() error {
	ax, err := BuildAxis(t.wm.Window().Start, t.wm.Window().End, t.view, t.step, AxisOptions{
		WeekStart: t.weekStart,
		Day:       t.dayBounds(),
	})
	if err != nil {
		return err
	}
	t.axis = ax
	return nil
}

// dayBounds applies only to the hours view; calendar columns show whole days.
func (t *Table) dayBounds() *DayBounds {
	if t.view != ViewHours {
		return nil
	}
	return t.day
}

// recompute rebuilds the layout and returns the batched callbacks.
func (t *Table) recompute() []effect {
	t.layout = Compute(t.entries, LayoutOptions{
		Window: t.wm.Window(),
		Day:    t.dayBounds(),
		Memo:   t.memo,
	})
	appLog.Debug("timetable layout recomputed",
		"groups", len(t.layout.Groups),
		"out_of_range", len(t.layout.OutOfRange),
		"invalid", len(t.layout.Invalid),
		"view", string(t.view),
	)

	var effects []effect
	if n := len(t.layout.OutOfRange); n > 0 && t.cb.ItemsOutsideOfDayRangeFound != nil {
		items := Items(t.layout.OutOfRange)
		effects = append(effects, func() { t.cb.ItemsOutsideOfDayRangeFound(items) })
	}
	if n := len(t.layout.Invalid); n > 0 {
		invalid := append([]GroupItem(nil), t.layout.Invalid...)
		appLog.Error("timetable: rejected items with end not after start",
			fmt.Errorf("%d invalid items", n), "count", n)
		if t.cb.InvalidItemsFound != nil {
			effects = append(effects, func() { t.cb.InvalidItemsFound(invalid) })
		}
	}
	return effects
}

// SetEntries supplies entries. gen is the generation of the request being
// answered; 0 means unsolicited data for the loaded window. Responses to
// superseded requests are discarded and SetEntries returns false.
func (t *Table) SetEntries(gen uint64, entries []model.Entry) bool {
	t.mu.Lock()
	if gen != 0 {
		switch {
		case t.wm.AcceptTimeFrame(gen):
			t.sel.ClearItem()
			if err := t.rebuildAxis(); err != nil {
				// Requests are validated when issued, so this is unreachable
				// with a valid step.
				t.mu.Unlock()
				appLog.Error("timetable: rebuild axis failed", err, "generation", gen)
				return false
			}
		case t.wm.AcceptEntryRange(gen):
		default:
			t.mu.Unlock()
			appLog.Debug("timetable: discarded stale response", "generation", gen)
			return false
		}
	}
	t.entries = entries
	effects := t.recompute()
	t.mu.Unlock()

	run(effects)
	return true
}

// SetViewType switches the axis granularity and clears the selection.
func (t *Table) SetViewType(v ViewType) error {
	if _, err := ParseViewType(string(v)); err != nil {
		return err
	}
	t.mu.Lock()
	if v == t.view {
		t.mu.Unlock()
		return nil
	}
	prev := t.view
	t.view = v
	if err := t.rebuildAxis(); err != nil {
		t.view = prev
		t.mu.Unlock()
		return err
	}
	hadRange := t.sel.Range() != nil
	t.sel.ClearOnAxisChange()
	effects := t.recompute()
	if hadRange && t.cb.OnTimeRangeSelected != nil {
		effects = append(effects, func() { t.cb.OnTimeRangeSelected(nil) })
	}
	t.mu.Unlock()

	run(effects)
	return nil
}

// SetTimeStep changes timeStepMinutes. The change is applied after the
// debounce delay; OnLayoutChange reports the result.
func (t *Table) SetTimeStep(minutes int) error {
	if minutes <= 0 {
		return &InvalidStepError{Minutes: minutes}
	}
	t.wm.Debounce(func() { t.applyTimeStep(minutes) })
	return nil
}

func (t *Table) applyTimeStep(minutes int) {
	t.mu.Lock()
	if minutes == t.step {
		t.mu.Unlock()
		return
	}
	t.step = minutes
	if err := t.rebuildAxis(); err != nil {
		t.mu.Unlock()
		appLog.Error("timetable: apply time step failed", err, "minutes", minutes)
		return
	}
	// Slot identities depend on the step in hours view.
	hadRange := false
	if t.view == ViewHours {
		hadRange = t.sel.Range() != nil
		t.sel.SetRange(nil)
	}
	effects := t.recompute()
	if hadRange && t.cb.OnTimeRangeSelected != nil {
		effects = append(effects, func() { t.cb.OnTimeRangeSelected(nil) })
	}
	snap := t.snapshot()
	t.mu.Unlock()

	run(effects)
	if t.cb.OnLayoutChange != nil {
		t.cb.OnLayoutChange(snap)
	}
}

// RequestTimeFrame asks the host for a new window.
func (t *Table) RequestTimeFrame(start, end time.Time) (bool, error) {
	return t.timeFrame(func() (TimeFrameRequest, bool, error) { return t.wm.RequestTimeFrame(start, end) })
}

// Next moves the window forward by its own span.
func (t *Table) Next() (bool, error) { return t.timeFrame(t.wm.Next) }

// Previous moves the window back by its own span.
func (t *Table) Previous() (bool, error) { return t.timeFrame(t.wm.Previous) }

func (t *Table) timeFrame(issue func() (TimeFrameRequest, bool, error)) (bool, error) {
	t.mu.Lock()
	req, ok, err := issue()
	t.mu.Unlock()
	if err != nil || !ok {
		return false, err
	}
	appLog.Debug("timetable: request time frame",
		"generation", req.Generation,
		"start", req.Start.Format(time.RFC3339),
		"end", req.End.Format(time.RFC3339),
	)
	if t.cb.RequestTimeFrame != nil {
		t.cb.RequestTimeFrame(req)
	}
	return true, nil
}

// RequestEntryRange asks the host for groups [start, end).
func (t *Table) RequestEntryRange(start, end int) (bool, error) {
	t.mu.Lock()
	req, ok, err := t.wm.RequestEntryRange(start, end)
	t.mu.Unlock()
	if err != nil || !ok {
		return false, err
	}
	appLog.Debug("timetable: request entry range",
		"generation", req.Generation, "start", req.Start, "end", req.End, "mode", string(req.Mode))
	if t.cb.RequestEntryRange != nil {
		t.cb.RequestEntryRange(req)
	}
	return true, nil
}

// ClickTimeSlot toggles the slot containing slotStart. Clicks on disabled
// cells or outside the axis are swallowed and return false.
func (t *Table) ClickTimeSlot(g model.Group, slotStart time.Time, multi bool) bool {
	t.mu.Lock()
	i, ok := t.axis.SlotIndex(slotStart)
	if !ok {
		t.mu.Unlock()
		return false
	}
	slot := SelectedTimeSlot{Group: g, TimeSlotStart: t.axis.Ticks[i]}
	if t.eval.IsDisabled(g, slot.TimeSlotStart) {
		t.mu.Unlock()
		return false
	}
	t.sel.ToggleTimeSlot(slot, multi)
	t.mu.Unlock()

	if t.cb.OnTimeSlotClick != nil {
		t.cb.OnTimeSlotClick(slot, multi)
	}
	return true
}

// ClickItem toggles the selected item and reports whether it is selected.
func (t *Table) ClickItem(g model.Group, item model.Booking) bool {
	t.mu.Lock()
	selected := t.sel.ToggleItem(g, item)
	t.mu.Unlock()

	if t.cb.OnTimeSlotItemClick != nil {
		t.cb.OnTimeSlotItemClick(g, item)
	}
	return selected
}

func (t *Table) ClickGroup(g model.Group) {
	if t.cb.OnGroupClick != nil {
		t.cb.OnGroupClick(g)
	}
}

// SelectRange records a drag selection over [start, end) in group g. The
// ends are snapped with the configured rounding. Ranges touching a
// disabled cell are rejected.
func (t *Table) SelectRange(g model.Group, start, end time.Time) (*SelectedRange, bool) {
	t.mu.Lock()
	s, e, ok := t.snapRange(start, end)
	if !ok {
		t.mu.Unlock()
		return nil, false
	}
	for i, tick := range t.axis.Ticks {
		if !tick.Before(e) {
			break
		}
		if t.axis.SlotEnd(i).After(s) && t.eval.IsDisabled(g, tick) {
			t.mu.Unlock()
			return nil, false
		}
	}
	r := SelectedRange{Group: g, Start: s, End: e}
	t.sel.SetRange(&r)
	t.mu.Unlock()

	if t.cb.OnTimeRangeSelected != nil {
		t.cb.OnTimeRangeSelected(&r)
	}
	return &r, true
}

// ClearRange drops the drag selection.
func (t *Table) ClearRange() {
	t.mu.Lock()
	had := t.sel.Range() != nil
	t.sel.SetRange(nil)
	t.mu.Unlock()

	if had && t.cb.OnTimeRangeSelected != nil {
		t.cb.OnTimeRangeSelected(nil)
	}
}

// snapRange aligns a dragged range. The hours view snaps to the step grid of
// the day each end falls in; calendar views snap to slot boundaries.
func (t *Table) snapRange(start, end time.Time) (time.Time, time.Time, bool) {
	if t.axis.Len() == 0 {
		return time.Time{}, time.Time{}, false
	}
	if end.Before(start) {
		start, end = end, start
	}
	if t.view == ViewHours {
		step := time.Duration(t.step) * time.Minute
		s := Snap(start, t.gridOrigin(start), step, t.rounding)
		e := Snap(end, t.gridOrigin(end), step, t.rounding)
		if !e.After(s) {
			e = s.Add(step)
		}
		return s, e, true
	}

	s, sok := t.snapToSlot(start)
	e, eok := t.snapToSlot(end)
	if !sok || !eok {
		return time.Time{}, time.Time{}, false
	}
	if !e.After(s) {
		i, _ := t.axis.SlotIndex(s)
		e = t.axis.SlotEnd(i)
	}
	return s, e, true
}

// gridOrigin returns the last tick at or before at. Day bounds restart the
// step grid every day, so a single origin for the whole axis drifts.
func (t *Table) gridOrigin(at time.Time) time.Time {
	i := sort.Search(len(t.axis.Ticks), func(i int) bool { return t.axis.Ticks[i].After(at) }) - 1
	if i < 0 {
		return t.axis.Ticks[0]
	}
	return t.axis.Ticks[i]
}

func (t *Table) snapToSlot(at time.Time) (time.Time, bool) {
	if !at.Before(t.axis.End) {
		return t.axis.End, at.Equal(t.axis.End)
	}
	i, ok := t.axis.SlotIndex(at)
	if !ok {
		return time.Time{}, false
	}
	lo, hi := t.axis.Ticks[i], t.axis.SlotEnd(i)
	if at.Equal(lo) {
		return lo, true
	}
	switch t.rounding {
	case RoundFloor:
		return lo, true
	case RoundCeil:
		return hi, true
	default:
		if 2*at.Sub(lo) >= hi.Sub(lo) {
			return hi, true
		}
		return lo, true
	}
}

// Snapshot returns a copy of the current state.
func (t *Table) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

func (t *Table) snapshot() Snapshot {
	s := Snapshot{
		Window:      t.wm.Window(),
		ViewType:    t.view,
		StepMinutes: t.step,
		Axis:        t.axis,
		Layout:      t.layout,
		Slots:       t.sel.Slots(),
		Range:       t.sel.Range(),
		Item:        t.sel.Item(),
		Groups:      t.wm.EntryRange(),
	}
	if pos, ok := NowPosition(t.clock.Now(), t.axis); ok {
		s.NowPosition = &pos
	}
	if req, ok := t.wm.PendingTimeFrame(); ok {
		s.Pending = &req
	}
	return s
}

// IsDisabled reports whether a cell rejects interaction.
func (t *Table) IsDisabled(g model.Group, slotStart time.Time) bool {
	return t.eval.IsDisabled(g, slotStart)
}
