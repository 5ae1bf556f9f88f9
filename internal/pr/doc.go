// Package pr defines the canonical pull-request model shared by the crawler,
// the cache, and the query layer.
//
// A PullRequest is produced by the normalizer from a raw GraphQL node and is
// never mutated afterwards. Crawl results are plain slices of PullRequest; the
// cache persists the reduced Essential projection to keep entries small.
//
// # Status Derivation
//
// The review outcome is decided upstream (GitHub's reviewDecision). Locally
// only the display status is derived, with fixed precedence:
//
//	draft > approved > changes-requested > ready
//
// See StatusOf.
package pr
