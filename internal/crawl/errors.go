package crawl

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConcurrencyTooHigh is returned when Options.Concurrency exceeds MaxConcurrency.
	ErrConcurrencyTooHigh = errors.New("crawl: concurrency exceeds maximum")

	// ErrInvalidOptions is returned for negative or out-of-range options.
	ErrInvalidOptions = errors.New("crawl: invalid options")
)

// PageFailure records a continuation token whose page could not be fetched.
// Pages reachable only through that token were not visited.
type PageFailure struct {
	Cursor string
	Err    error
}

// PartialError is returned alongside a Result that is missing pages.
type PartialError struct {
	Org      string
	Failures []PageFailure
}

// Error implements the error interface.
func (e *PartialError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "partial crawl of %s: %d page(s) failed", e.Org, len(e.Failures))
	if len(e.Failures) > 0 {
		fmt.Fprintf(&b, " (first: cursor %q: %v)", e.Failures[0].Cursor, e.Failures[0].Err)
	}
	return b.String()
}

// Unwrap exposes every page error to errors.Is and errors.As.
func (e *PartialError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// IsPartial returns true if err wraps a *PartialError.
func IsPartial(err error) bool {
	var pe *PartialError
	return errors.As(err, &pe)
}
