package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/prdash/internal/cache"
	"github.com/roach88/prdash/internal/crawl"
	"github.com/roach88/prdash/internal/dashboard"
	"github.com/roach88/prdash/internal/query"
)

// maxPerPage bounds the per_page query parameter.
const maxPerPage = 100

// Service is the dashboard surface the handlers need.
// *dashboard.Service implements it.
type Service interface {
	Org() string
	Load(ctx context.Context, force bool) (dashboard.Snapshot, error)
	RefreshIfStale(ctx context.Context) bool
	Age(ctx context.Context) time.Duration
	Stats(ctx context.Context) (cache.Stats, error)
	ClearCache(ctx context.Context) error
}

// PullsResponse is the body of GET /api/pulls.
type PullsResponse struct {
	query.Page
	Counts    query.Counts `json:"counts"`
	FetchedAt time.Time    `json:"fetched_at"`
	FromCache bool         `json:"from_cache"`
	Stale     bool         `json:"stale"`

	// Warning describes a partial crawl whose records are still served.
	Warning string `json:"warning,omitempty"`
}

// RefreshResponse is the body of POST /api/refresh.
type RefreshResponse struct {
	Org       string    `json:"org"`
	Count     int       `json:"count"`
	FetchedAt time.Time `json:"fetched_at"`
	RunID     string    `json:"run_id,omitempty"`
	Warning   string    `json:"warning,omitempty"`
}

// StatsResponse is the body of GET /api/cache/stats.
type StatsResponse struct {
	cache.Stats
	Org string `json:"org"`
	// AgeMillis is -1 when nothing is cached for the org.
	AgeMillis int64 `json:"age_ms"`
}

// loadSnapshot returns the snapshot to serve. A partial crawl still serves
// its records and reports the failure as a warning.
func loadSnapshot(ctx context.Context, svc Service, force bool) (dashboard.Snapshot, string, error) {
	snap, err := svc.Load(ctx, force)
	if err == nil {
		return snap, "", nil
	}
	if crawl.IsPartial(err) && len(snap.PullRequests) > 0 {
		return snap, dashboard.Describe(err), nil
	}
	return dashboard.Snapshot{}, "", err
}

func parseFilter(r *http.Request) (query.Filter, int, int, error) {
	q := r.URL.Query()
	f := query.Filter{
		Users:    splitList(q.Get("users")),
		Projects: splitList(q.Get("projects")),
	}

	var err error
	if f.Statuses, err = query.ParseStatuses(splitList(q.Get("statuses"))); err != nil {
		return f, 0, 0, err
	}
	if f.ShowClosed, err = parseBool(q, "closed", false); err != nil {
		return f, 0, 0, err
	}
	if f.HideBots, err = parseBool(q, "hide_bots", true); err != nil {
		return f, 0, 0, err
	}

	page, err := parseInt(q, "page", 1)
	if err != nil {
		return f, 0, 0, err
	}
	perPage, err := parseInt(q, "per_page", query.DefaultPerPage)
	if err != nil {
		return f, 0, 0, err
	}
	if perPage < 1 || perPage > maxPerPage {
		return f, 0, 0, fmt.Errorf("per_page must be between 1 and %d", maxPerPage)
	}
	return f, page, perPage, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(q url.Values, name string, def bool) (bool, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: not a boolean: %q", name, v)
	}
	return b, nil
}

func parseInt(q url.Values, name string, def int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: not an integer: %q", name, v)
	}
	return n, nil
}

// listPulls serves the filtered, paginated pull-request set. Cached data
// past half its max age triggers a background refresh.
func listPulls(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := log.With(slog.String("op", "httpapi.listPulls"))

		filter, page, perPage, err := parseFilter(r)
		if err != nil {
			writeError(log, w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
			return
		}

		snap, warning, err := loadSnapshot(r.Context(), svc, false)
		if err != nil {
			writeServiceError(log, w, err)
			return
		}
		if snap.FromCache && snap.Stale && svc.RefreshIfStale(r.Context()) {
			log.Debug("background refresh started", slog.Duration("age", snap.Age))
		}

		filtered := query.Apply(snap.PullRequests, filter)
		writeJSON(log, w, http.StatusOK, PullsResponse{
			Page:      query.Paginate(filtered, page, perPage),
			Counts:    query.Count(snap.PullRequests, filtered),
			FetchedAt: snap.FetchedAt,
			FromCache: snap.FromCache,
			Stale:     snap.Stale,
			Warning:   warning,
		})
	}
}

func refresh(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := log.With(slog.String("op", "httpapi.refresh"))

		snap, warning, err := loadSnapshot(r.Context(), svc, true)
		if err != nil {
			writeServiceError(log, w, err)
			return
		}
		writeJSON(log, w, http.StatusOK, RefreshResponse{
			Org:       snap.Org,
			Count:     len(snap.PullRequests),
			FetchedAt: snap.FetchedAt,
			RunID:     snap.RunID,
			Warning:   warning,
		})
	}
}

func cacheStats(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := log.With(slog.String("op", "httpapi.cacheStats"))

		st, err := svc.Stats(r.Context())
		if err != nil {
			writeServiceError(log, w, err)
			return
		}
		age := int64(-1)
		if d := svc.Age(r.Context()); d != cache.Infinite {
			age = d.Milliseconds()
		}
		writeJSON(log, w, http.StatusOK, StatsResponse{Stats: st, Org: svc.Org(), AgeMillis: age})
	}
}

func clearCache(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := log.With(slog.String("op", "httpapi.clearCache"))

		if err := svc.ClearCache(r.Context()); err != nil {
			writeServiceError(log, w, err)
			return
		}
		log.Info("cache cleared", slog.String("org", svc.Org()))
		w.WriteHeader(http.StatusNoContent)
	}
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

var _ Service = (*dashboard.Service)(nil)
