package dashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/prdash/internal/crawl"
	"github.com/roach88/prdash/internal/github"
)

// Describe turns a Load or Refresh error into a message for end users.
// It returns "" for a nil error.
func Describe(err error) string {
	var partial *crawl.PartialError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, github.ErrMissingCredential):
		return "GITHUB_TOKEN environment variable is required. Set GITHUB_TOKEN (or VITE_GITHUB_TOKEN) in your environment or .env file"
	case errors.Is(err, ErrEmptyResult):
		return err.Error()
	case errors.As(err, &partial):
		return fmt.Sprintf("Showing partial data: %d page(s) could not be fetched (%v)",
			len(partial.Failures), partial.Failures[0].Err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Request cancelled before GitHub responded"
	case github.IsTransport(err), github.IsProtocol(err):
		return "GitHub request failed: " + rootMessage(err)
	default:
		return "Failed to fetch data: " + err.Error()
	}
}

// rootMessage strips crawl wrapping so the upstream message comes first.
func rootMessage(err error) string {
	var te *github.TransportError
	if errors.As(err, &te) {
		if te.Err != nil {
			return te.Err.Error()
		}
		return te.Status
	}
	var pe *github.ProtocolError
	if errors.As(err, &pe) {
		return pe.Error()
	}
	return err.Error()
}
