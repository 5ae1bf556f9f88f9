// Package crawl fetches every search page for an organization.
//
// The first page is fetched serially to discover the first continuation
// token. Remaining tokens live in a set that rejects anything seen before
// and are drained in waves of at most Options.Concurrency concurrent
// requests. All requests, including retries, pass through one rate limiter
// so a crawl never starts requests closer together than MinInterval.
//
// # Failure Policy
//
// Transport failures that GitHub marks as transient (5xx, 403/429 rate
// limits, network errors) are retried per token with exponential backoff,
// stretched to any Retry-After the server sent. Protocol errors and a
// missing credential are permanent. A failing first page fails the crawl;
// any later failing token is reported in Result.Failures and the call
// returns a *PartialError next to the records that were collected.
package crawl
