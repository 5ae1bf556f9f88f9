// Package dashboard serves the crawled pull-request set to readers: cached
// data when it is fresh, a live crawl otherwise, written through to the
// cache on success.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/prdash/internal/cache"
	"github.com/roach88/prdash/internal/clock"
	"github.com/roach88/prdash/internal/crawl"
	"github.com/roach88/prdash/internal/pr"
)

// ErrEmptyResult is returned when a crawl succeeds but finds nothing.
var ErrEmptyResult = errors.New("no pull requests found")

// Crawler runs a full crawl. *crawl.Crawler implements it.
type Crawler interface {
	CrawlAll(ctx context.Context, org string) (crawl.Result, error)
}

// Snapshot is what a reader gets back from Load.
type Snapshot struct {
	Org          string           `json:"org"`
	PullRequests []pr.PullRequest `json:"pull_requests"`
	FetchedAt    time.Time        `json:"fetched_at"`
	FromCache    bool             `json:"from_cache"`
	Age          time.Duration    `json:"age"`

	// Stale is set when cached data is past half its max age and a
	// background refresh is worthwhile.
	Stale bool `json:"stale"`

	// RunID identifies the crawl that produced live data.
	RunID string `json:"run_id,omitempty"`
}

// Service loads one organization's pull requests.
//
// Thread-safety: all methods are safe for concurrent use. Concurrent
// refreshes share a single crawl.
type Service struct {
	org     string
	crawler Crawler
	store   *cache.Store
	clock   clock.Clock
	log     *slog.Logger

	refreshes singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// New creates a Service for org.
func New(org string, c Crawler, store *cache.Store, opts ...Option) *Service {
	s := &Service{
		org:     org,
		crawler: c,
		store:   store,
		clock:   clock.Real{},
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("org", org)
	return s
}

// Org returns the organization this service loads.
func (s *Service) Org() string {
	return s.org
}

// DataKey is the cache key holding the essential projection.
func (s *Service) DataKey() string {
	return s.store.Key("prs-data:" + s.org)
}

// TimestampKey is the cache key holding the fetch time in unix milliseconds.
func (s *Service) TimestampKey() string {
	return s.store.Key("prs-timestamp:" + s.org)
}

// Load returns cached data when present and fresh, unless force is set;
// otherwise it crawls.
//
// When the crawl is partial, the collected records are returned together
// with the *crawl.PartialError and nothing is cached.
func (s *Service) Load(ctx context.Context, force bool) (Snapshot, error) {
	if !force {
		if snap, ok := s.CachedOnly(ctx); ok {
			s.log.Debug("serving cached pull requests", "count", len(snap.PullRequests), "age", snap.Age)
			return snap, nil
		}
	}
	return s.Refresh(ctx)
}

// Refresh crawls and writes the result through to the cache. Concurrent
// calls share one crawl and all receive its outcome. The shared crawl is
// detached from any single caller's cancellation; a caller whose ctx ends
// first returns ctx.Err() while the crawl carries on for the others.
func (s *Service) Refresh(ctx context.Context) (Snapshot, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.refreshes.DoChan(s.org, func() (any, error) {
		return s.refresh(shared)
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.log.Debug("joined in-flight refresh")
		}
		return res.Val.(Snapshot), res.Err
	case <-ctx.Done():
		return Snapshot{Org: s.org, PullRequests: []pr.PullRequest{}}, ctx.Err()
	}
}

// RefreshIfStale starts a background refresh when cached data is past half
// its max age. The refresh outlives ctx cancellation. It reports whether a
// refresh was started.
func (s *Service) RefreshIfStale(ctx context.Context) bool {
	if !s.store.NeedsRefresh(ctx, s.DataKey()) {
		return false
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		if _, err := s.Refresh(bg); err != nil {
			s.log.Warn("background refresh failed", "error", err)
		}
	}()
	return true
}

func (s *Service) refresh(ctx context.Context) (Snapshot, error) {
	res, err := s.crawler.CrawlAll(ctx, s.org)
	snap := Snapshot{
		Org:          s.org,
		PullRequests: res.Records,
		FetchedAt:    s.clock.Now(),
		RunID:        res.RunID,
	}
	if snap.PullRequests == nil {
		snap.PullRequests = []pr.PullRequest{}
	}
	if err != nil {
		s.log.Error("crawl failed", "run_id", res.RunID, "records", len(res.Records), "error", err)
		return snap, err
	}
	if len(res.Records) == 0 {
		return snap, fmt.Errorf("%w for %s", ErrEmptyResult, s.org)
	}

	if !s.store.Set(ctx, s.DataKey(), pr.ProjectAll(res.Records)) {
		s.log.Warn("pull requests not cached", "count", len(res.Records))
		return snap, nil
	}
	if !s.store.Set(ctx, s.TimestampKey(), snap.FetchedAt.UnixMilli()) {
		s.log.Warn("fetch timestamp not cached")
	}
	if s.store.Age(ctx, s.DataKey()) == cache.Infinite {
		s.log.Warn("pull requests not cached", "count", len(res.Records), "reason", "evicted to fit the size budget")
	}

	s.log.Info("pull requests refreshed",
		"run_id", res.RunID,
		"count", len(res.Records),
		"pages", res.Pages,
		"duration", res.Duration)
	return snap, nil
}

// CachedOnly returns the cached snapshot without touching the network.
// Both the data and the timestamp entry must be present and fresh.
func (s *Service) CachedOnly(ctx context.Context) (Snapshot, bool) {
	var data pr.Snapshot
	if !s.store.Get(ctx, s.DataKey(), &data) {
		return Snapshot{}, false
	}
	var ts int64
	if !s.store.Get(ctx, s.TimestampKey(), &ts) {
		return Snapshot{}, false
	}

	return Snapshot{
		Org:          s.org,
		PullRequests: data.Records(),
		FetchedAt:    time.UnixMilli(ts).UTC(),
		FromCache:    true,
		Age:          s.store.Age(ctx, s.DataKey()),
		Stale:        s.store.NeedsRefresh(ctx, s.DataKey()),
	}, true
}

// IsStale reports whether the cached data is absent or expired.
func (s *Service) IsStale(ctx context.Context) bool {
	return s.store.IsStale(ctx, s.DataKey())
}

// Age returns the cached data's age, or cache.Infinite when there is none.
func (s *Service) Age(ctx context.Context) time.Duration {
	return s.store.Age(ctx, s.DataKey())
}

// Stats summarizes the cache namespace.
func (s *Service) Stats(ctx context.Context) (cache.Stats, error) {
	return s.store.Stats(ctx)
}

// ClearCache removes every cached entry in the namespace.
func (s *Service) ClearCache(ctx context.Context) error {
	return s.store.Clear(ctx)
}
