package crawl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/roach88/prdash/internal/clock"
	"github.com/roach88/prdash/internal/github"
	"github.com/roach88/prdash/internal/pr"
)

const (
	// MaxConcurrency is the hard ceiling on in-flight page requests.
	MaxConcurrency = 10

	DefaultPageSize       = 100
	DefaultConcurrency    = MaxConcurrency
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 10 * time.Second
	DefaultMinInterval    = 100 * time.Millisecond
	DefaultMaxRetryWait   = time.Minute
)

// Fetcher fetches one page of search results. *github.Client implements it.
type Fetcher interface {
	FetchPage(ctx context.Context, org, cursor string, pageSize int) (pr.Page, error)
}

// Options tunes a Crawler. Zero values take the defaults above.
type Options struct {
	PageSize    int
	Concurrency int

	// MaxRetries bounds retries per token after the first attempt.
	// Use a negative value to disable retries.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// MaxRetryWait caps how long a server-requested Retry-After is honored.
	MaxRetryWait time.Duration

	// MinInterval is the minimum spacing between request starts. Use a
	// negative value to disable pacing.
	MinInterval time.Duration

	Logger *slog.Logger
	RunIDs RunIDGenerator
	Clock  clock.Clock
}

func (o Options) withDefaults() Options {
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
	if o.Concurrency == 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	} else if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialBackoff == 0 {
		o.InitialBackoff = DefaultInitialBackoff
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.MaxRetryWait == 0 {
		o.MaxRetryWait = DefaultMaxRetryWait
	}
	if o.MinInterval == 0 {
		o.MinInterval = DefaultMinInterval
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.RunIDs == nil {
		o.RunIDs = UUIDv7Generator{}
	}
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	return o
}

func (o Options) validate() error {
	if o.Concurrency > MaxConcurrency {
		return fmt.Errorf("%w: %d > %d", ErrConcurrencyTooHigh, o.Concurrency, MaxConcurrency)
	}
	if o.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be positive", ErrInvalidOptions)
	}
	if o.PageSize < 1 || o.PageSize > github.MaxPageSize {
		return fmt.Errorf("%w: page size must be between 1 and %d", ErrInvalidOptions, github.MaxPageSize)
	}
	if o.InitialBackoff < 0 || o.MaxBackoff < 0 || o.MaxRetryWait < 0 {
		return fmt.Errorf("%w: backoff durations must not be negative", ErrInvalidOptions)
	}
	return nil
}

// Result is the outcome of one crawl.
type Result struct {
	RunID   string
	Org     string
	Records []pr.PullRequest

	// Pages is the number of pages fetched successfully, including the first.
	Pages int

	// Waves is the number of concurrent batches after the first page.
	Waves int

	// Duplicates counts records dropped because an earlier page had the
	// same repository and number.
	Duplicates int

	Failures  []PageFailure
	StartedAt time.Time
	Duration  time.Duration
}

// Crawler fetches every page of an organization's pull requests.
//
// Thread-safety: a Crawler may run several crawls concurrently; the request
// pacer is shared between them.
type Crawler struct {
	fetcher Fetcher
	opts    Options
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates a Crawler over f.
func New(f Fetcher, opts Options) (*Crawler, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	return &Crawler{
		fetcher: f,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		log:     opts.Logger,
	}, nil
}

// Options returns the effective options after defaults.
func (c *Crawler) Options() Options {
	return c.opts
}

type fetchResult struct {
	cursor string
	page   pr.Page
	err    error
}

// CrawlAll fetches every page for org.
//
// The first page is fetched alone; if it fails the crawl fails. After that,
// pending continuation tokens are fetched in waves of at most Concurrency.
// A token that still fails after its retries is recorded in
// Result.Failures and the pages behind it are skipped; in that case the
// returned error is a *PartialError and the Result holds everything else.
// On cancellation the partial Result is returned with the context error.
func (c *Crawler) CrawlAll(ctx context.Context, org string) (Result, error) {
	res := Result{
		RunID:     c.opts.RunIDs.Generate(),
		Org:       org,
		Records:   []pr.PullRequest{},
		StartedAt: c.opts.Clock.Now(),
	}
	err := c.crawl(ctx, &res)
	res.Duration = clock.Since(c.opts.Clock, res.StartedAt)
	return res, err
}

func (c *Crawler) crawl(ctx context.Context, res *Result) error {
	org := res.Org
	log := c.log.With("run_id", res.RunID, "org", org)
	log.Info("crawl started", "page_size", c.opts.PageSize, "concurrency", c.opts.Concurrency)

	first, err := c.fetch(ctx, log, org, "")
	if err != nil {
		log.Error("first page failed", "error", err)
		return fmt.Errorf("crawl %s: first page: %w", org, err)
	}

	seen := make(map[string]struct{})
	res.merge(first, seen)

	if !first.HasNextPage {
		log.Info("crawl finished", "records", len(res.Records), "pages", res.Pages)
		return nil
	}

	tokens := newTokenSet("")
	tokens.Add(first.EndCursor)

	for tokens.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("crawl %s: %w", org, err)
		}

		batch := tokens.Drain(c.opts.Concurrency)
		res.Waves++
		log.Debug("wave started", "wave", res.Waves, "tokens", len(batch))

		results := c.wave(ctx, log, org, batch)

		if err := ctx.Err(); err != nil {
			// Pages that completed before cancellation are kept.
			for _, r := range results {
				if r.err == nil {
					res.merge(r.page, seen)
				}
			}
			return fmt.Errorf("crawl %s: %w", org, err)
		}

		for _, r := range results {
			if r.err != nil {
				log.Warn("page failed", "cursor", r.cursor, "error", r.err)
				res.Failures = append(res.Failures, PageFailure{Cursor: r.cursor, Err: r.err})
				continue
			}
			res.merge(r.page, seen)
			if r.page.HasNextPage && !tokens.Add(r.page.EndCursor) {
				log.Debug("ignoring revisited cursor", "cursor", r.page.EndCursor)
			}
		}
	}

	log.Info("crawl finished",
		"records", len(res.Records),
		"pages", res.Pages,
		"waves", res.Waves,
		"failures", len(res.Failures),
		"duplicates", res.Duplicates)

	if len(res.Failures) > 0 {
		return &PartialError{Org: org, Failures: res.Failures}
	}
	return nil
}

// wave fetches every token in batch concurrently. Each goroutine writes only
// its own slot, so the results need no locking.
func (c *Crawler) wave(ctx context.Context, log *slog.Logger, org string, batch []string) []fetchResult {
	results := make([]fetchResult, len(batch))

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for i, cursor := range batch {
		i, cursor := i, cursor
		g.Go(func() error {
			page, err := c.fetch(ctx, log, org, cursor)
			results[i] = fetchResult{cursor: cursor, page: page, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// merge appends page records, dropping ones already seen in this crawl.
func (r *Result) merge(page pr.Page, seen map[string]struct{}) {
	r.Pages++
	for _, rec := range page.Records {
		key := rec.Key()
		if _, dup := seen[key]; dup {
			r.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		r.Records = append(r.Records, rec)
	}
}

// fetch requests one page, pacing through the shared limiter and retrying
// transport failures with exponential backoff.
func (c *Crawler) fetch(ctx context.Context, log *slog.Logger, org, cursor string) (pr.Page, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.opts.InitialBackoff
	exp.MaxInterval = c.opts.MaxBackoff
	exp.MaxElapsedTime = 0

	hint := &retryAfterBackOff{BackOff: exp, max: c.opts.MaxRetryWait}
	policy := backoff.WithContext(backoff.WithMaxRetries(hint, uint64(c.opts.MaxRetries)), ctx)

	op := func() (pr.Page, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return pr.Page{}, backoff.Permanent(err)
		}
		page, err := c.fetcher.FetchPage(ctx, org, cursor, c.opts.PageSize)
		if err == nil {
			return page, nil
		}
		if !github.IsRetryable(err) {
			return pr.Page{}, backoff.Permanent(err)
		}
		hint.wait = github.RetryAfter(err)
		return pr.Page{}, err
	}

	notify := func(err error, next time.Duration) {
		log.Debug("retrying page", "cursor", cursor, "in", next, "error", err)
	}

	return backoff.RetryNotifyWithData(op, policy, notify)
}

// retryAfterBackOff stretches the next interval to a server-requested wait.
// The hint is set by the operation and consumed by the following
// NextBackOff call; both run on the retrying goroutine.
type retryAfterBackOff struct {
	backoff.BackOff
	wait time.Duration
	max  time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	wait := b.wait
	b.wait = 0
	if wait > b.max {
		wait = b.max
	}
	if wait > next {
		return wait
	}
	return next
}
