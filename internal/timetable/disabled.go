package timetable

import (
	"time"

	"timetable/internal/model"
)

// CellEvaluator decides whether a cell accepts interaction.
type CellEvaluator struct {
	DisableWeekends bool
	// IsCellDisabled is an optional host predicate. It must be pure.
	IsCellDisabled func(g model.Group, slotStart time.Time) bool
}

// IsDisabled reports whether the cell (g, slotStart) is disabled, either
// because it falls on a weekend or because the host predicate says so.
func (e CellEvaluator) IsDisabled(g model.Group, slotStart time.Time) bool {
	if e.DisableWeekends {
		switch slotStart.Weekday() {
		case time.Saturday, time.Sunday:
			return true
		}
	}
	return e.IsCellDisabled != nil && e.IsCellDisabled(g, slotStart)
}
