package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/prdash/internal/cache"
	"github.com/roach88/prdash/internal/clock"
	"github.com/roach88/prdash/internal/config"
	"github.com/roach88/prdash/internal/crawl"
	"github.com/roach88/prdash/internal/dashboard"
	"github.com/roach88/prdash/internal/github"
)

// app is the wired dependency graph shared by every command.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	out    *OutputFormatter
	medium *cache.SQLiteMedium
	svc    *dashboard.Service
}

// newApp loads and validates config, opens the cache, and wires the
// GitHub client, crawler, and dashboard service. Failures are command
// errors.
func newApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(opts.ConfigPath, opts.DotEnv...)
	if err != nil {
		_ = out.Error(CodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Org != "" {
		cfg.Org = opts.Org
	}
	if err := cfg.Validate(); err != nil {
		_ = out.Error(CodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	log := config.NewLogger(cfg.Env, opts.Verbose, cmd.ErrOrStderr())

	var clk clock.Clock = clock.Real{}
	if opts.Clock != nil {
		clk = opts.Clock
	}

	out.VerboseLog("opening cache %s", cfg.Cache.Path)
	medium, err := cache.OpenSQLite(cfg.Cache.Path, cfg.Cache.Quota)
	if err != nil {
		_ = out.Error(CodeCache, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open cache", err)
	}

	store := cache.New(medium,
		cache.WithMaxAge(cfg.Cache.MaxAge),
		cache.WithMaxSize(cfg.Cache.MaxSize),
		cache.WithClock(clk),
		cache.WithLogger(log.With("component", "cache")))

	client := github.NewClient(cfg.GitHub.Token,
		github.WithEndpoint(cfg.GitHub.Endpoint),
		github.WithListLimit(cfg.GitHub.ListLimit),
		github.WithHTTPClient(&http.Client{Timeout: cfg.GitHub.Timeout}),
		github.WithClock(clk))

	crawler, err := crawl.New(client, crawlOptions(cfg, log, opts.RunIDs, clk))
	if err != nil {
		_ = medium.Close()
		_ = out.Error(CodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "invalid crawl options", err)
	}

	svc := dashboard.New(cfg.Org, crawler, store,
		dashboard.WithClock(clk),
		dashboard.WithLogger(log))

	return &app{cfg: cfg, log: log, out: out, medium: medium, svc: svc}, nil
}

// crawlOptions maps config onto crawler options. Zero retries and a zero
// interval in config mean "none", not "default".
func crawlOptions(cfg *config.Config, log *slog.Logger, ids crawl.RunIDGenerator, clk clock.Clock) crawl.Options {
	o := crawl.Options{
		PageSize:    cfg.Crawl.PageSize,
		Concurrency: cfg.Crawl.Concurrency,
		MaxRetries:  cfg.Crawl.MaxRetries,
		MinInterval: cfg.Crawl.MinInterval,
		Logger:      log.With("component", "crawl"),
		RunIDs:      ids,
		Clock:       clk,
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = -1
	}
	if o.MinInterval == 0 {
		o.MinInterval = -1
	}
	return o
}

func (a *app) close() {
	if err := a.medium.Close(); err != nil {
		a.log.Error("error closing cache", "error", err)
	}
}

// signalContext derives a context cancelled on SIGINT or SIGTERM. The
// command's own context (set by tests) is honored as the parent.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
