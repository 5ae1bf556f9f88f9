package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/prdash/internal/cache"
)

// CacheStatsResult is the payload of cache stats.
type CacheStatsResult struct {
	cache.Stats
	Path string `json:"path"`
}

func (r CacheStatsResult) String() string {
	oldest := "-"
	if r.EntryCount > 0 {
		oldest = r.OldestEntryAge.Round(time.Second).String()
	}
	return fmt.Sprintf("Cache: %s\nEntries: %d\nTotal size: %s\nOldest entry: %s",
		r.Path, r.EntryCount, humanBytes(r.TotalSize), oldest)
}

// CacheAgeResult is the payload of cache age.
type CacheAgeResult struct {
	Org    string `json:"org"`
	Cached bool   `json:"cached"`
	// AgeMillis is -1 when nothing is cached.
	AgeMillis int64 `json:"age_ms"`
	Stale     bool  `json:"stale"`
}

func (r CacheAgeResult) String() string {
	if !r.Cached {
		return r.Org + ": not cached"
	}
	age := (time.Duration(r.AgeMillis) * time.Millisecond).Round(time.Second)
	if r.Stale {
		return fmt.Sprintf("%s: %s (stale)", r.Org, age)
	}
	return fmt.Sprintf("%s: %s", r.Org, age)
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the pull request cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "stats",
		Short:         "Show cache size and entry count",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheStats(rootOpts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "clear",
		Short:         "Remove every cached entry",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheClear(rootOpts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "age",
		Short:         "Show how old the cached pull requests are",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheAge(rootOpts, cmd)
		},
	})

	return cmd
}

func runCacheStats(opts *RootOptions, cmd *cobra.Command) error {
	a, err := newApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.svc.Stats(cmd.Context())
	if err != nil {
		_ = a.out.Error(CodeCache, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to read cache", err)
	}
	return a.out.Success(CacheStatsResult{Stats: st, Path: a.cfg.Cache.Path})
}

func runCacheClear(opts *RootOptions, cmd *cobra.Command) error {
	a, err := newApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.svc.ClearCache(cmd.Context()); err != nil {
		_ = a.out.Error(CodeCache, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to clear cache", err)
	}
	if a.out.IsJSON() {
		return a.out.Success(map[string]bool{"cleared": true})
	}
	return a.out.Success("✓ Cache cleared")
}

func runCacheAge(opts *RootOptions, cmd *cobra.Command) error {
	a, err := newApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	res := CacheAgeResult{Org: a.cfg.Org, AgeMillis: -1}
	if age := a.svc.Age(ctx); age != cache.Infinite {
		res.Cached = true
		res.AgeMillis = age.Milliseconds()
		res.Stale = a.svc.IsStale(ctx)
	}
	return a.out.Success(res)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
