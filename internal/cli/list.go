package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/prdash/internal/crawl"
	"github.com/roach88/prdash/internal/dashboard"
	"github.com/roach88/prdash/internal/pr"
	"github.com/roach88/prdash/internal/query"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Users    []string
	Projects []string
	Statuses []string
	Closed   bool
	HideBots bool
	Page     int
	PerPage  int
	Refresh  bool
}

// ListResult is the JSON payload of the list command.
type ListResult struct {
	query.Page
	FromCache bool      `json:"from_cache"`
	FetchedAt time.Time `json:"fetched_at"`
	Warning   string    `json:"warning,omitempty"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pull requests, cache first",
		Long: `List the organization's pull requests. Cached data is used while fresh;
otherwise a crawl runs first.

Example:
  prdash list --user alice --status draft,ready
  prdash list --project api --closed --page 2
  prdash list --hide-bots=false --refresh --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Users, "user", "u", nil, "author or assignee login (repeatable)")
	cmd.Flags().StringSliceVarP(&opts.Projects, "project", "p", nil, "repository name (repeatable)")
	cmd.Flags().StringSliceVarP(&opts.Statuses, "status", "s", nil, "draft|approved|changes|ready (repeatable)")
	cmd.Flags().BoolVar(&opts.Closed, "closed", false, "include closed pull requests")
	cmd.Flags().BoolVar(&opts.HideBots, "hide-bots", true, "hide bot authors when no user is selected")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&opts.PerPage, "per-page", query.DefaultPerPage, "pull requests per page")
	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "crawl even when the cache is fresh")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	statuses, err := query.ParseStatuses(opts.Statuses)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}
	if opts.PerPage < 1 {
		return NewExitError(ExitCommandError, "invalid flags: --per-page must be positive")
	}

	a, err := newApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext(cmd)
	defer stop()

	snap, err := a.svc.Load(ctx, opts.Refresh)
	var warning string
	if err != nil {
		if !crawl.IsPartial(err) || len(snap.PullRequests) == 0 {
			_ = a.out.Error(CodeCrawl, dashboard.Describe(err), nil)
			return WrapExitError(ExitFailure, "failed to load pull requests", err)
		}
		warning = dashboard.Describe(err)
		a.out.Warn(warning)
	}
	a.out.VerboseLog("loaded %d pull request(s), from cache: %t", len(snap.PullRequests), snap.FromCache)

	filtered := query.Apply(snap.PullRequests, query.Filter{
		Users:      opts.Users,
		Projects:   opts.Projects,
		Statuses:   statuses,
		ShowClosed: opts.Closed,
		HideBots:   opts.HideBots,
	})
	page := query.Paginate(filtered, opts.Page, opts.PerPage)

	if a.out.IsJSON() {
		return a.out.Success(ListResult{
			Page:      page,
			FromCache: snap.FromCache,
			FetchedAt: snap.FetchedAt,
			Warning:   warning,
		})
	}

	printPage(a.out, page, snap)
	return nil
}

func printPage(out *OutputFormatter, page query.Page, snap dashboard.Snapshot) {
	if page.Total == 0 {
		fmt.Fprintln(out.Writer, "No pull requests match.")
		return
	}

	tw := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PR\tREPO\tSTATUS\tAUTHOR\tTITLE")
	for _, p := range page.Items {
		author := "-"
		if p.User != nil {
			author = p.User.Login
		}
		status := string(pr.StatusOf(p))
		if p.State == pr.StateClosed {
			status = "closed"
		}
		fmt.Fprintf(tw, "#%d\t%s\t%s\t%s\t%s\n", p.Number, p.Repository.Name, status, author, p.Title)
	}
	_ = tw.Flush()

	source := "live"
	if snap.FromCache {
		source = "cached " + snap.Age.Round(time.Second).String() + " ago"
	}
	fmt.Fprintf(out.Writer, "\nPage %d/%d (%d total, %s)\n", page.Page, page.TotalPages, page.Total, source)
}
