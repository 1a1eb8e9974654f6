package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "timetable/internal/log"
	"timetable/internal/model"
)

// Source is one ICS feed backing one timetable group.
type Source struct {
	Group model.Group
	// Location is an http(s) URL or a local file path.
	Location string
}

// ID returns the group key, used as the booking SourceID.
func (s Source) ID() string { return s.Group.Key() }

func (s Source) remote() bool {
	u, err := url.Parse(s.Location)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// FetchResult contains the outcome of fetching a single source.
type FetchResult struct {
	Source    Source
	Body      []byte
	FromCache bool // true if the cached body was reused (304 or network failure)
}

// cacheEntry holds HTTP cache metadata for a single feed URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher loads ICS feeds. Remote feeds use conditional requests
// (ETag / Last-Modified) backed by a disk cache; local files are read as is.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./cache/ics-cache"
	}
	return &Fetcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		cacheDir: cacheDir,
	}
}

// FetchOne loads a single source.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.Location == "" {
		return FetchResult{}, fmt.Errorf("ics: source %q has no location", src.Group.Title)
	}
	if !src.remote() {
		body, err := os.ReadFile(strings.TrimPrefix(src.Location, "file://"))
		if err != nil {
			return FetchResult{}, fmt.Errorf("ics: read %s: %w", src.Location, err)
		}
		return FetchResult{Source: src, Body: body}, nil
	}
	return f.fetchRemote(ctx, src)
}

func (f *Fetcher) fetchRemote(ctx context.Context, src Source) (FetchResult, error) {
	cachePath := f.cachePathForURL(src.Location)
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return FetchResult{}, err
	}

	meta, _ := loadCacheMeta(cachePath)
	cachedBody, _ := os.ReadFile(filepath.Join(cachePath, "body.ics"))
	fallback := func(cause error) (FetchResult, error) {
		if len(cachedBody) == 0 {
			return FetchResult{}, cause
		}
		appLog.Error("ics fetch failed, using cached body", cause, "group", src.Group.Title, "url", redactURL(src.Location))
		return FetchResult{Source: src, Body: cachedBody, FromCache: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Location, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Debug("ics fetch start", "group", src.Group.Title, "url", redactURL(src.Location))

	resp, err := f.client.Do(req)
	if err != nil {
		return fallback(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fallback(err)
		}
		newMeta := cacheEntry{
			URL:          src.Location,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := saveCache(cachePath, newMeta, body); err != nil {
			// Log but still return the freshly fetched body.
			appLog.Error("ics cache save failed", err, "group", src.Group.Title)
		}
		appLog.Info("ics fetch success", "group", src.Group.Title, "url", redactURL(src.Location), "bytes", len(body))
		return FetchResult{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return FetchResult{}, errors.New("ics: 304 Not Modified but no cached body available")
		}
		appLog.Debug("ics fetch not modified; using cache", "group", src.Group.Title)
		return FetchResult{Source: src, Body: cachedBody, FromCache: true}, nil

	default:
		return fallback(fmt.Errorf("ics: %s: %s", redactURL(src.Location), resp.Status))
	}
}

func (f *Fetcher) cachePathForURL(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.ics"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL keeps only scheme and host of a feed URL; private calendar URLs
// usually carry a token in the path or query.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
