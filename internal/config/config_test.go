package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timetable/internal/timetable"
)

func TestLoad_FirstRunWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.ViewType, again.ViewType)
	assert.Equal(t, cfg.DayStart, again.DayStart)
}

func TestLoad_PartialConfigNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
view_type: days
week_start: Sunday
day_start: ""
day_end: ""
groups:
  - id: room-a
    title: Room A
    ics: ./room-a.ics
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "days", cfg.ViewType)
	assert.Equal(t, "sunday", cfg.WeekStart)
	assert.Equal(t, 60, cfg.TimeStepMinutes)
	assert.Equal(t, "round", cfg.Rounding)
	assert.Equal(t, 5, cfg.WindowDays)
	require.Len(t, cfg.Groups, 1)
	assert.Equal(t, "Room A", cfg.Groups[0].Title)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
view_type: fortnights
rounding: sideways
day_start: "18:00"
day_end: "08:00"
groups:
  - id: a
    title: A
  - id: a
`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, timetable.ErrUnknownViewType)
	assert.ErrorIs(t, err, timetable.ErrUnknownRounding)
	assert.ErrorIs(t, err, timetable.ErrInvalidDayBounds)
	assert.Contains(t, err.Error(), "duplicate id")
	assert.Contains(t, err.Error(), "title is required")
}

func TestSave_EmptyPath(t *testing.T) {
	assert.Error(t, Save("", DefaultConfig()))
	assert.Error(t, Save(filepath.Join(t.TempDir(), "c.yaml"), nil))
}

func TestOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WeekStart = "sunday"
	cfg.DebounceMs = 0
	cfg.Groups = []GroupConfig{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}}

	w := timetable.Window{Start: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)}
	opts := cfg.Options(w)

	assert.Equal(t, timetable.ViewHours, opts.ViewType)
	require.NotNil(t, opts.WeekStart)
	assert.Equal(t, time.Sunday, *opts.WeekStart)
	assert.Equal(t, timetable.EntryRange{Start: 0, End: 2}, opts.Groups)
	assert.Less(t, opts.Debounce, time.Duration(0), "zero debounce applies edits synchronously")

	tbl, err := timetable.New(opts, timetable.Callbacks{})
	require.NoError(t, err)
	tbl.Close()
}
