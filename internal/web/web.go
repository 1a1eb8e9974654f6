package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"timetable/internal/config"
	"timetable/internal/ics"
	appLog "timetable/internal/log"
	"timetable/internal/model"
	"timetable/internal/timetable"
)

const (
	layoutCacheTTL   = 30 * time.Second
	layoutCacheLimit = 128
)

// EntrySource answers a time frame request for a set of groups.
type EntrySource interface {
	Entries(ctx context.Context, sources []ics.Source, start, end time.Time) ([]model.Entry, error)
}

// Server exposes the timetable engine as a JSON API.
type Server struct {
	cfg     *config.Config
	loc     *time.Location
	entries EntrySource
	sources []ics.Source
	now     func() time.Time

	mu     sync.RWMutex
	layout map[layoutKey]layoutCacheEntry
}

type layoutKey struct {
	start, end  int64
	view        timetable.ViewType
	step        int
	first, last int
}

type layoutCacheEntry struct {
	resp      LayoutResponse
	updatedAt time.Time
}

// Sources maps the configured groups to feed sources, in config order.
func Sources(cfg *config.Config) []ics.Source {
	out := make([]ics.Source, 0, len(cfg.Groups))
	for _, g := range cfg.Groups {
		out = append(out, ics.Source{
			Group:    model.Group{ID: g.ID, Title: g.Title, Subtitle: g.Subtitle},
			Location: g.ICS,
		})
	}
	return out
}

func NewServer(cfg *config.Config, entries EntrySource) *Server {
	return &Server{
		cfg:     cfg,
		loc:     cfg.Location(),
		entries: entries,
		sources: Sources(cfg),
		now:     time.Now,
		layout:  make(map[layoutKey]layoutCacheEntry),
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)
	r.Group(func(r chi.Router) {
		if s.basicAuthEnabled() {
			appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
			r.Use(s.basicAuth)
		}
		r.Route("/api", func(r chi.Router) {
			r.Get("/axis", s.handleAxis)
			r.Get("/layout", s.handleLayout)
			r.Get("/groups", s.handleGroups)
		})
	})
	return r
}

// Serve runs the API on cfg.Listen until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) basicAuthEnabled() bool {
	ba := s.cfg.BasicAuth
	return ba != nil && ba.Username != "" && ba.Password != ""
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="timetable", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Query selects the window and granularity of a layout.
type Query struct {
	Window timetable.Window
	View   timetable.ViewType
	Step   int
}

// NewQuery parses the view parameters shared by the API and the CLI.
//
//   - start / end: RFC 3339 or YYYY-MM-DD in the configured timezone.
//     start defaults to today, end to start + window_days.
//   - view: hours, days, weeks, months or years (default from config).
//   - step: slot minutes of the hours view (default from config).
func (s *Server) NewQuery(start, end, view, step string) (Query, error) {
	var q Query

	now := s.now().In(s.loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	if start != "" {
		t, err := parseTime(start, s.loc)
		if err != nil {
			return q, fmt.Errorf("start: %w", err)
		}
		from = t
	}
	to := from.AddDate(0, 0, s.cfg.WindowDays)
	if end != "" {
		t, err := parseTime(end, s.loc)
		if err != nil {
			return q, fmt.Errorf("end: %w", err)
		}
		to = t
	}
	w, err := timetable.NewWindow(from, to)
	if err != nil {
		return q, err
	}
	q.Window = w

	v, err := timetable.ParseViewType(stringDefault(view, s.cfg.ViewType))
	if err != nil {
		return q, err
	}
	q.View = v

	q.Step = s.cfg.TimeStepMinutes
	if step != "" {
		n, err := strconv.Atoi(step)
		if err != nil || n <= 0 {
			return q, &timetable.InvalidStepError{Minutes: n}
		}
		q.Step = n
	}
	return q, nil
}

func (s *Server) parseQuery(r *http.Request) (Query, error) {
	v := r.URL.Query()
	return s.NewQuery(v.Get("start"), v.Get("end"), v.Get("view"), v.Get("step"))
}

// Axis builds the axis of q. Day bounds apply to the hours view only.
func (s *Server) Axis(q Query) (timetable.Axis, error) {
	opts := s.cfg.Options(q.Window)
	var day *timetable.DayBounds
	if q.View == timetable.ViewHours {
		var err error
		if day, err = timetable.ParseDayBounds(opts.DayStart, opts.DayEnd); err != nil {
			return timetable.Axis{}, err
		}
	}
	return timetable.BuildAxis(q.Window.Start, q.Window.End, q.View, q.Step, timetable.AxisOptions{
		WeekStart: *opts.WeekStart,
		Day:       day,
	})
}

func (s *Server) handleAxis(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ax, err := s.Axis(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ax)
}

// LayoutResponse is a table snapshot plus the paging and feed status of
// the request.
type LayoutResponse struct {
	timetable.Snapshot
	Total    int      `json:"total_groups"`
	Warnings []string `json:"warnings,omitempty"`
}

// handleLayout computes the layout of a window from the configured feeds.
//
// GET /api/layout?start=&end=&view=&step=&offset=&limit=
//
// offset / limit select the loaded group range. Responses are cached for a
// short time per window and range.
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	groups, err := s.groupRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := layoutKey{
		start: q.Window.Start.UnixNano(),
		end:   q.Window.End.UnixNano(),
		view:  q.View,
		step:  q.Step,
		first: groups.Start,
		last:  groups.End,
	}
	s.mu.RLock()
	cached, ok := s.layout[key]
	s.mu.RUnlock()
	if ok && s.now().Sub(cached.updatedAt) < layoutCacheTTL {
		writeJSON(w, http.StatusOK, cached.resp)
		return
	}

	resp, err := s.Layout(r.Context(), q, groups)
	if err != nil {
		appLog.Error("api layout failed", err)
		writeError(w, http.StatusInternalServerError, "failed to compute layout")
		return
	}

	s.storeLayout(key, resp)
	writeJSON(w, http.StatusOK, resp)
}

// storeLayout caches resp, dropping expired entries first. When the cache is
// still full the oldest entry makes room.
func (s *Server) storeLayout(key layoutKey, resp LayoutResponse) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest layoutKey
	var oldestAt time.Time
	for k, e := range s.layout {
		if now.Sub(e.updatedAt) >= layoutCacheTTL {
			delete(s.layout, k)
			continue
		}
		if oldestAt.IsZero() || e.updatedAt.Before(oldestAt) {
			oldest, oldestAt = k, e.updatedAt
		}
	}
	if _, ok := s.layout[key]; !ok && len(s.layout) >= layoutCacheLimit {
		delete(s.layout, oldest)
	}
	s.layout[key] = layoutCacheEntry{resp: resp, updatedAt: now}
}

// Layout loads the entries of groups for q and runs them through a table.
func (s *Server) Layout(ctx context.Context, q Query, groups timetable.EntryRange) (LayoutResponse, error) {
	resp := LayoutResponse{Total: len(s.sources)}
	if groups.Start < 0 || groups.Start > groups.End || groups.End > len(s.sources) {
		return resp, fmt.Errorf("%w: [%d, %d) of %d", timetable.ErrInvalidEntryRange, groups.Start, groups.End, len(s.sources))
	}

	opts := s.cfg.Options(q.Window)
	opts.ViewType = q.View
	opts.TimeStepMinutes = q.Step
	opts.Groups = groups
	opts.Clock = clockFunc(s.now)

	tbl, err := timetable.New(opts, timetable.Callbacks{
		ItemsOutsideOfDayRangeFound: func(items []model.Booking) {
			appLog.Debug("bookings outside visible hours", "count", len(items))
		},
		InvalidItemsFound: func(items []timetable.GroupItem) {
			for _, gi := range items {
				appLog.Info("invalid booking skipped", "group", gi.Group.Title, "uid", gi.Item.UID, "start", gi.Item.Start.Format(time.RFC3339))
			}
		},
	})
	if err != nil {
		return resp, err
	}
	defer tbl.Close()

	entries, err := s.entries.Entries(ctx, s.sources[groups.Start:groups.End], q.Window.Start, q.Window.End)
	if entries == nil {
		return resp, err
	}
	if err != nil {
		// Failed feeds keep their group with no bookings.
		appLog.Error("api layout: one or more feeds failed", err)
		resp.Warnings = append(resp.Warnings, err.Error())
	}
	tbl.SetEntries(0, entries)
	resp.Snapshot = tbl.Snapshot()
	return resp, nil
}

// groupRange reads offset / limit into a range of the configured groups.
// limit 0 or absent means all remaining groups.
func (s *Server) groupRange(r *http.Request) (timetable.EntryRange, error) {
	v := r.URL.Query()
	offset := parseIntDefault(v.Get("offset"), 0)
	limit := parseIntDefault(v.Get("limit"), 0)
	total := len(s.sources)
	if offset < 0 || limit < 0 || offset > total {
		return timetable.EntryRange{}, fmt.Errorf("%w: offset %d limit %d of %d", timetable.ErrInvalidEntryRange, offset, limit, total)
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return timetable.EntryRange{Start: offset, End: end}, nil
}

type groupsResponse struct {
	Groups []model.Group `json:"groups"`
	Offset int           `json:"offset"`
	Total  int           `json:"total"`
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	rng, err := s.groupRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := groupsResponse{Groups: []model.Group{}, Offset: rng.Start, Total: len(s.sources)}
	for _, src := range s.sources[rng.Start:rng.End] {
		resp.Groups = append(resp.Groups, src.Group)
	}
	writeJSON(w, http.StatusOK, resp)
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

func parseTime(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc), nil
	}
	return time.ParseInLocation(time.DateOnly, raw, loc)
}

func stringDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
