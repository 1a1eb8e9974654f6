package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"timetable/internal/timetable"
)

// GroupConfig describes a single timetable lane and the ICS feed that
// supplies its bookings.
type GroupConfig struct {
	// ID is an internal identifier used for de-dup, selection keys and logging.
	ID string `yaml:"id" json:"id"`
	// Title / Subtitle are shown in the group column.
	Title    string `yaml:"title" json:"title"`
	Subtitle string `yaml:"subtitle,omitempty" json:"subtitle,omitempty"`
	// ICS is a subscription URL or a local file path.
	ICS string `yaml:"ics" json:"ics"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as canonical display zone (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday starts a week column:
	//   - "monday" (default)
	//   - "sunday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for periodic feed refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheDir holds the per-feed HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// ViewType is the initial axis granularity: hours, days, weeks, months or years.
	ViewType string `yaml:"view_type" json:"view_type"`

	// TimeStepMinutes is the slot width of the hours view.
	TimeStepMinutes int `yaml:"time_step_minutes" json:"time_step_minutes"`

	// DayStart / DayEnd ("HH:mm") bound the visible hours of each day in
	// the hours view. Both empty shows whole days.
	DayStart string `yaml:"day_start" json:"day_start"`
	DayEnd   string `yaml:"day_end" json:"day_end"`

	DisableWeekendInteractions bool `yaml:"disable_weekend_interactions" json:"disable_weekend_interactions"`

	// Rounding snaps drag selections: round, ceil or floor.
	Rounding string `yaml:"rounding" json:"rounding"`

	// DebounceMs delays time step edits before recomputing.
	DebounceMs int `yaml:"debounce_ms" json:"debounce_ms"`

	// WindowDays is the default window length when a request names none.
	WindowDays int `yaml:"window_days" json:"window_days"`

	// MaxOccurrencesPerEvent caps recurrence expansion per event.
	MaxOccurrencesPerEvent int `yaml:"max_occurrences_per_event" json:"max_occurrences_per_event"`

	// Groups is the ordered list of lanes.
	Groups []GroupConfig `yaml:"groups" json:"groups"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:                 "127.0.0.1:8080",
		Timezone:               "UTC",
		WeekStart:              "monday",
		RefreshCron:            "*/15 * * * *",
		CacheDir:               "./cache/ics-cache",
		ViewType:               "hours",
		TimeStepMinutes:        60,
		DayStart:               "08:00",
		DayEnd:                 "18:00",
		Rounding:               "round",
		DebounceMs:             500,
		WindowDays:             5,
		MaxOccurrencesPerEvent: 5000,
		Groups:                 []GroupConfig{},
		BasicAuth:              nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	switch strings.ToLower(c.WeekStart) {
	case "monday", "sunday":
		c.WeekStart = strings.ToLower(c.WeekStart)
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = "monday"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if c.CacheDir == "" {
		c.CacheDir = d.CacheDir
	}
	if c.ViewType == "" {
		c.ViewType = d.ViewType
	}
	if c.TimeStepMinutes <= 0 {
		c.TimeStepMinutes = d.TimeStepMinutes
	}
	if c.Rounding == "" {
		c.Rounding = d.Rounding
	}
	if c.DebounceMs < 0 {
		c.DebounceMs = 0
	}
	if c.WindowDays <= 0 {
		c.WindowDays = d.WindowDays
	}
	if c.MaxOccurrencesPerEvent <= 0 {
		c.MaxOccurrencesPerEvent = d.MaxOccurrencesPerEvent
	}
	if c.Groups == nil {
		c.Groups = []GroupConfig{}
	}
}

// Validate checks the fields the engine would reject at runtime.
func (c *Config) Validate() error {
	var errs []error
	if _, err := timetable.ParseViewType(c.ViewType); err != nil {
		errs = append(errs, err)
	}
	if _, err := timetable.ParseRounding(c.Rounding); err != nil {
		errs = append(errs, err)
	}
	if _, err := timetable.ParseDayBounds(c.DayStart, c.DayEnd); err != nil {
		errs = append(errs, err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("config: timezone %q: %w", c.Timezone, err))
	}
	seen := make(map[string]bool, len(c.Groups))
	for i, g := range c.Groups {
		if g.Title == "" {
			errs = append(errs, fmt.Errorf("config: groups[%d]: title is required", i))
		}
		if g.ID != "" && seen[g.ID] {
			errs = append(errs, fmt.Errorf("config: groups[%d]: duplicate id %q", i, g.ID))
		}
		seen[g.ID] = true
	}
	return errors.Join(errs...)
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Options converts the config into timetable options for the window.
func (c *Config) Options(w timetable.Window) timetable.Options {
	ws, _ := timetable.ParseWeekday(c.WeekStart)
	debounce := time.Duration(c.DebounceMs) * time.Millisecond
	if debounce == 0 {
		debounce = -1
	}
	return timetable.Options{
		Window:                     w,
		ViewType:                   timetable.ViewType(c.ViewType),
		TimeStepMinutes:            c.TimeStepMinutes,
		DayStart:                   c.DayStart,
		DayEnd:                     c.DayEnd,
		WeekStart:                  &ws,
		DisableWeekendInteractions: c.DisableWeekendInteractions,
		Rounding:                   timetable.Rounding(c.Rounding),
		Groups:                     timetable.EntryRange{Start: 0, End: len(c.Groups)},
		Debounce:                   debounce,
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".timetable-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
