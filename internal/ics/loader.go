package ics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appLog "timetable/internal/log"
	"timetable/internal/model"
)

// Loader answers time frame requests with entries built from ICS feeds.
// Parsed events are cached per group until the next Refresh.
type Loader struct {
	fetcher *Fetcher
	loc     *time.Location
	maxOcc  int

	mu     sync.RWMutex
	parsed map[string][]ParsedEvent
}

func NewLoader(fetcher *Fetcher, loc *time.Location, maxOccurrencesPerEvent int) *Loader {
	if loc == nil {
		loc = time.UTC
	}
	return &Loader{
		fetcher: fetcher,
		loc:     loc,
		maxOcc:  maxOccurrencesPerEvent,
		parsed:  make(map[string][]ParsedEvent),
	}
}

// Refresh fetches and parses every source, replacing the cached events of
// the sources that succeed.
func (l *Loader) Refresh(ctx context.Context, sources []Source) error {
	var errs []error
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := l.load(ctx, src); err != nil {
			errs = append(errs, err)
		}
	}
	appLog.Info("ics refresh completed", "sources", len(sources), "failed", len(errs))
	return errors.Join(errs...)
}

// Entries returns one entry per source, in source order, holding the
// bookings that intersect [start, end). A source that cannot be loaded
// keeps its entry with no items; its error is joined into the result.
func (l *Loader) Entries(ctx context.Context, sources []Source, start, end time.Time) ([]model.Entry, error) {
	var errs []error
	entries := make([]model.Entry, 0, len(sources))
	for _, src := range sources {
		entry := model.Entry{Group: src.Group, Items: []model.Booking{}}

		events, err := l.events(ctx, src)
		if err != nil {
			errs = append(errs, err)
			entries = append(entries, entry)
			continue
		}

		res, err := Expand(events, ExpandOptions{
			Location:               l.loc,
			Start:                  start,
			End:                    end,
			MaxOccurrencesPerEvent: l.maxOcc,
		})
		if err != nil {
			return nil, err
		}
		if res.Bookings != nil {
			entry.Items = res.Bookings
		}
		entries = append(entries, entry)
	}
	return entries, errors.Join(errs...)
}

func (l *Loader) events(ctx context.Context, src Source) ([]ParsedEvent, error) {
	l.mu.RLock()
	events, ok := l.parsed[src.ID()]
	l.mu.RUnlock()
	if ok {
		return events, nil
	}
	return l.load(ctx, src)
}

func (l *Loader) load(ctx context.Context, src Source) ([]ParsedEvent, error) {
	res, err := l.fetcher.FetchOne(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("group %q: %w", src.Group.Title, err)
	}
	events, err := ParseICS(src, res.Body)
	if err != nil {
		return nil, fmt.Errorf("group %q: %w", src.Group.Title, err)
	}
	l.mu.Lock()
	l.parsed[src.ID()] = events
	l.mu.Unlock()
	return events, nil
}
