package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/prdash/internal/httpapi"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Address string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API over HTTP",
		Long: `Start the HTTP API. Requests are answered from the cache while it is
fresh; stale data triggers a background refresh. SIGINT or SIGTERM stops the
server after in-flight requests finish.

Example:
  prdash serve --addr :8080
  prdash serve --config ./prdash.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Address, "addr", "", "listen address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	a, err := newApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	addr := a.cfg.HTTP.Address
	if opts.Address != "" {
		addr = opts.Address
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	srv := httpapi.NewServer(httpapi.Config{
		Address:     addr,
		Timeout:     a.cfg.HTTP.Timeout,
		IdleTimeout: a.cfg.HTTP.IdleTimeout,
	}, a.log, a.svc)

	a.log.Info("starting application", "env", a.cfg.Env, "org", a.cfg.Org)
	if !a.out.IsJSON() {
		fmt.Fprintf(a.out.Writer, "Serving %s on %s. Press Ctrl-C to stop.\n", a.cfg.Org, addr)
	}

	if err := srv.Run(ctx); err != nil {
		_ = a.out.Error(CodeServer, err.Error(), nil)
		return WrapExitError(ExitFailure, "server error", err)
	}
	return nil
}
