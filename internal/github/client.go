package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/roach88/prdash/internal/clock"
	"github.com/roach88/prdash/internal/normalize"
	"github.com/roach88/prdash/internal/pr"
)

// DefaultEndpoint is the public GitHub GraphQL API.
const DefaultEndpoint = "https://api.github.com/graphql"

// MaxPageSize is the largest page the search connection serves.
const MaxPageSize = 100

// Client fetches pull-request search pages from the GraphQL API.
//
// A Client performs exactly one request per FetchPage call and never
// retries; retry policy belongs to the caller. It is safe for concurrent
// use.
type Client struct {
	http      *http.Client
	endpoint  string
	token     string
	listLimit int
	userAgent string
	clock     clock.Clock
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithEndpoint points the client at another GraphQL URL (tests, GHES).
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// WithListLimit sets how many assignees and review requests are selected
// per pull request. Values below 1 are ignored.
func WithListLimit(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.listLimit = n
		}
	}
}

// WithClock overrides the time source used to interpret rate-limit resets.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// NewClient returns a client authenticating with token. An empty token is
// accepted here and reported by FetchPage.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		endpoint:  DefaultEndpoint,
		token:     token,
		listLimit: DefaultListLimit,
		userAgent: "prdash",
		clock:     clock.Real{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type searchResponse struct {
	Data *struct {
		Search *struct {
			PageInfo struct {
				HasNextPage bool    `json:"hasNextPage"`
				EndCursor   *string `json:"endCursor"`
			} `json:"pageInfo"`
			Nodes []normalize.RawNode `json:"nodes"`
		} `json:"search"`
	} `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

// FetchPage requests one page of pull requests for org, starting after
// cursor ("" for the first page).
//
// Errors:
//   - ErrMissingCredential, ErrInvalidPageSize, ErrInvalidOrg: before any I/O
//   - *TransportError: network failure or non-2xx status
//   - *ProtocolError: GraphQL errors array, malformed payload, or a node
//     that fails normalization
func (c *Client) FetchPage(ctx context.Context, org, cursor string, pageSize int) (pr.Page, error) {
	if c.token == "" {
		return pr.Page{}, ErrMissingCredential
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return pr.Page{}, fmt.Errorf("%w: got %d", ErrInvalidPageSize, pageSize)
	}
	if !ValidOrg(org) {
		return pr.Page{}, fmt.Errorf("%w: %q", ErrInvalidOrg, org)
	}

	vars := map[string]any{"perPage": pageSize, "cursor": nil}
	if cursor != "" {
		vars["cursor"] = cursor
	}
	body, err := json.Marshal(graphQLRequest{
		Query:     BuildQuery(org, c.listLimit),
		Variables: vars,
	})
	if err != nil {
		return pr.Page{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return pr.Page{}, fmt.Errorf("build request: %w", err)
	}
	c.addHeaders(req)

	var resp searchResponse
	if err := c.do(req, &resp); err != nil {
		return pr.Page{}, err
	}

	if len(resp.Errors) > 0 && string(resp.Errors) != "null" {
		return pr.Page{}, &ProtocolError{Raw: resp.Errors}
	}
	if resp.Data == nil || resp.Data.Search == nil {
		return pr.Page{}, &ProtocolError{Err: fmt.Errorf("missing data.search")}
	}

	search := resp.Data.Search
	if len(search.Nodes) > pageSize {
		return pr.Page{}, &ProtocolError{Err: fmt.Errorf("%d nodes exceed page size %d", len(search.Nodes), pageSize)}
	}

	records, err := normalize.Nodes(search.Nodes)
	if err != nil {
		return pr.Page{}, &ProtocolError{Err: err}
	}

	page := pr.Page{
		Records:     records,
		HasNextPage: search.PageInfo.HasNextPage,
	}
	if search.PageInfo.EndCursor != nil {
		page.EndCursor = *search.PageInfo.EndCursor
	}
	if page.HasNextPage && page.EndCursor == "" {
		return pr.Page{}, &ProtocolError{Err: fmt.Errorf("hasNextPage without endCursor")}
	}
	return page, nil
}

// addHeaders sets authentication and content headers.
func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("Authorization", "bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
}

// do executes the request and decodes the JSON body into v.
func (c *Client) do(req *http.Request, v any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &TransportError{
			StatusCode: resp.StatusCode,
			Status:     statusText(resp),
			RetryAfter: c.retryAfter(resp.Header),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &ProtocolError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}

// retryAfter reads Retry-After (seconds) or, when the primary rate limit is
// exhausted, the X-RateLimit-Reset epoch.
func (c *Client) retryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if h.Get("X-RateLimit-Remaining") == "0" {
		if reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			if d := time.Unix(reset, 0).Sub(c.clock.Now()); d > 0 {
				return d
			}
		}
	}
	return 0
}
