package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/prdash/internal/clock"
	"github.com/roach88/prdash/internal/crawl"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Org        string

	// DotEnv overrides the dotenv files read before the config (tests).
	DotEnv []string

	// RunIDs and Clock override crawl run IDs and time (tests). Nil means
	// UUIDv7 and the wall clock.
	RunIDs crawl.RunIDGenerator
	Clock  clock.Clock
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the prdash CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prdash",
		Short: "prdash - GitHub pull request dashboard",
		Long: `Crawl every open pull request in a GitHub organization, cache the result,
and browse it from the terminal or over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return WrapExitError(ExitCommandError, "invalid flags",
					fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config (default $PRDASH_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.Org, "org", "", "GitHub organization (overrides config)")

	cmd.AddCommand(NewCrawlCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewCacheCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
