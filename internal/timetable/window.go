package timetable

import (
	"fmt"
	"time"
)

// RangeMode tells the host how to treat an entry range request.
type RangeMode string

const (
	// ModeReplace is a request for the initial load window.
	ModeReplace RangeMode = "replace"
	// ModeRegenerate is any later navigation over the group axis.
	ModeRegenerate RangeMode = "regenerate"
)

// TimeFrameRequest asks the host for entries covering [Start, End).
type TimeFrameRequest struct {
	Generation uint64    `json:"generation"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// EntryRange is a half-open range of group indices.
type EntryRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// EntryRangeRequest asks the host for the groups [Start, End).
type EntryRangeRequest struct {
	Generation uint64    `json:"generation"`
	Start      int       `json:"start"`
	End        int       `json:"end"`
	Mode       RangeMode `json:"mode"`
}

// WindowManager tracks the loaded time window and group range and issues
// generation-stamped pagination requests. It is not safe for concurrent use.
type WindowManager struct {
	loaded    Window
	pendingTF *TimeFrameRequest

	initialRange EntryRange
	loadedRange  EntryRange
	pendingER    *EntryRangeRequest

	gen       uint64
	debouncer *Debouncer
}

func NewWindowManager(w Window, groups EntryRange, debounce time.Duration) *WindowManager {
	return &WindowManager{
		loaded:       w,
		initialRange: groups,
		loadedRange:  groups,
		debouncer:    NewDebouncer(debounce),
	}
}

// Window returns the loaded window.
func (m *WindowManager) Window() Window { return m.loaded }

// EntryRange returns the loaded group range.
func (m *WindowManager) EntryRange() EntryRange { return m.loadedRange }

// target is the window the table is heading to: the pending one if any.
func (m *WindowManager) target() Window {
	if m.pendingTF != nil {
		return Window{Start: m.pendingTF.Start, End: m.pendingTF.End}
	}
	return m.loaded
}

// RequestTimeFrame issues a request for a new window. It returns false when
// the window equals the one loaded or already requested.
func (m *WindowManager) RequestTimeFrame(start, end time.Time) (TimeFrameRequest, bool, error) {
	w, err := NewWindow(start, end)
	if err != nil {
		return TimeFrameRequest{}, false, err
	}
	if w.Equal(m.target()) {
		return TimeFrameRequest{}, false, nil
	}
	m.gen++
	req := TimeFrameRequest{Generation: m.gen, Start: w.Start, End: w.End}
	m.pendingTF = &req
	return req, true, nil
}

// Next shifts the target window forward by its own span.
func (m *WindowManager) Next() (TimeFrameRequest, bool, error) {
	w := shiftWindow(m.target(), 1)
	return m.RequestTimeFrame(w.Start, w.End)
}

// Previous shifts the target window back by its own span.
func (m *WindowManager) Previous() (TimeFrameRequest, bool, error) {
	w := shiftWindow(m.target(), -1)
	return m.RequestTimeFrame(w.Start, w.End)
}

// AcceptTimeFrame commits the pending window when gen is its generation.
// Responses to superseded requests return false and must be discarded.
func (m *WindowManager) AcceptTimeFrame(gen uint64) bool {
	if m.pendingTF == nil || m.pendingTF.Generation != gen {
		return false
	}
	m.loaded = Window{Start: m.pendingTF.Start, End: m.pendingTF.End}
	m.pendingTF = nil
	return true
}

// PendingTimeFrame returns the outstanding time frame request, if any.
func (m *WindowManager) PendingTimeFrame() (TimeFrameRequest, bool) {
	if m.pendingTF == nil {
		return TimeFrameRequest{}, false
	}
	return *m.pendingTF, true
}

// RequestEntryRange issues a request for the groups [start, end).
func (m *WindowManager) RequestEntryRange(start, end int) (EntryRangeRequest, bool, error) {
	if start < 0 || end <= start {
		return EntryRangeRequest{}, false, fmt.Errorf("timetable: entry range [%d, %d): %w", start, end, ErrInvalidEntryRange)
	}
	want := EntryRange{Start: start, End: end}
	cur := m.loadedRange
	if m.pendingER != nil {
		cur = EntryRange{Start: m.pendingER.Start, End: m.pendingER.End}
	}
	if want == cur {
		return EntryRangeRequest{}, false, nil
	}

	mode := ModeRegenerate
	if want == m.initialRange {
		mode = ModeReplace
	}
	m.gen++
	req := EntryRangeRequest{Generation: m.gen, Start: start, End: end, Mode: mode}
	m.pendingER = &req
	return req, true, nil
}

// AcceptEntryRange commits the pending group range when gen matches.
func (m *WindowManager) AcceptEntryRange(gen uint64) bool {
	if m.pendingER == nil || m.pendingER.Generation != gen {
		return false
	}
	m.loadedRange = EntryRange{Start: m.pendingER.Start, End: m.pendingER.End}
	m.pendingER = nil
	return true
}

// Debounce schedules fn on this manager's debouncer.
func (m *WindowManager) Debounce(fn func()) { m.debouncer.Do(fn) }

// Stop cancels pending debounced work.
func (m *WindowManager) Stop() { m.debouncer.Stop() }

// shiftWindow moves w by its own span. Windows aligned to whole months or
// whole local days move by calendar units so DST and month lengths do not
// drift the alignment.
func shiftWindow(w Window, dir int) Window {
	if months, ok := wholeMonths(w); ok {
		return Window{Start: w.Start.AddDate(0, dir*months, 0), End: w.End.AddDate(0, dir*months, 0)}
	}
	if days, ok := wholeDays(w); ok {
		return Window{Start: w.Start.AddDate(0, 0, dir*days), End: w.End.AddDate(0, 0, dir*days)}
	}
	span := w.Span() * time.Duration(dir)
	return Window{Start: w.Start.Add(span), End: w.End.Add(span)}
}

func wholeMonths(w Window) (int, bool) {
	s, e := w.Start, w.End.In(w.Start.Location())
	if !isMidnight(s) || !isMidnight(e) || s.Day() != 1 || e.Day() != 1 {
		return 0, false
	}
	n := (e.Year()-s.Year())*12 + int(e.Month()-s.Month())
	return n, n > 0
}

func wholeDays(w Window) (int, bool) {
	s, e := w.Start, w.End.In(w.Start.Location())
	if !isMidnight(s) || !isMidnight(e) {
		return 0, false
	}
	n := 0
	for d := s; d.Before(e); d = d.AddDate(0, 0, 1) {
		n++
	}
	return n, n > 0 && s.AddDate(0, 0, n).Equal(e)
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}
