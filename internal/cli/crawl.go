package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/prdash/internal/crawl"
	"github.com/roach88/prdash/internal/dashboard"
)

// CrawlSummary is the result of the crawl command.
type CrawlSummary struct {
	Org       string    `json:"org"`
	Count     int       `json:"count"`
	RunID     string    `json:"run_id,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
	Cached    bool      `json:"cached"`
	Warning   string    `json:"warning,omitempty"`
}

func (s CrawlSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Crawled %d pull request(s) from %s", s.Count, s.Org)
	if s.RunID != "" {
		fmt.Fprintf(&b, " (run %s)", s.RunID)
	}
	if !s.Cached {
		b.WriteString("\n  result was not cached")
	}
	return b.String()
}

// NewCrawlCommand creates the crawl command.
func NewCrawlCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Crawl every pull request and refresh the cache",
		Long: `Run a live crawl of the organization's pull requests and write the result
through to the cache. A partial crawl is reported but never cached.

Example:
  prdash crawl --org acme
  prdash crawl --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(rootOpts, cmd)
		},
	}
}

func runCrawl(opts *RootOptions, cmd *cobra.Command) error {
	a, err := newApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext(cmd)
	defer stop()

	a.out.VerboseLog("crawling %s", a.cfg.Org)
	snap, err := a.svc.Refresh(ctx)

	summary := CrawlSummary{
		Org:       a.cfg.Org,
		Count:     len(snap.PullRequests),
		RunID:     snap.RunID,
		FetchedAt: snap.FetchedAt,
	}
	if err == nil {
		_, summary.Cached = a.svc.CachedOnly(ctx)
		return a.out.Success(summary)
	}

	if crawl.IsPartial(err) && summary.Count > 0 {
		summary.Warning = dashboard.Describe(err)
		a.out.Warn(summary.Warning)
		_ = a.out.Success(summary)
		return WrapExitError(ExitFailure, "partial crawl", err)
	}

	code := CodeCrawl
	if crawl.IsPartial(err) {
		code = CodePartial
	}
	_ = a.out.Error(code, dashboard.Describe(err), nil)
	return WrapExitError(ExitFailure, "crawl failed", err)
}
