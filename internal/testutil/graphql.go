package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// TestToken is the credential NewGraphQLServer accepts by default.
const TestToken = "test-token"

// Fixture scripts a fake GraphQL search upstream.
//
// Each page answers one request cursor; the first page answers "". Faults
// inject failures for a cursor before (or instead of) its page.
type Fixture struct {
	// Name identifies the fixture in failure messages.
	Name string `yaml:"name"`

	// Pages are the search result pages keyed by the cursor they answer.
	Pages []FixturePage `yaml:"pages"`

	// Faults are scripted failures.
	Faults []Fault `yaml:"faults,omitempty"`
}

// FixturePage is one page of search results.
type FixturePage struct {
	// Cursor is the request cursor this page answers ("" = first page).
	Cursor string `yaml:"cursor"`

	EndCursor   string `yaml:"end_cursor"`
	HasNextPage bool   `yaml:"has_next_page"`

	PRs []FixturePR `yaml:"prs"`

	// NonPRNodes appends that many empty objects, as search returns for
	// issues matched by the query.
	NonPRNodes int `yaml:"non_pr_nodes,omitempty"`
}

// FixturePR describes one pull request node. Unset fields get defaults.
type FixturePR struct {
	Number     int      `yaml:"number"`
	Repo       string   `yaml:"repo"` // owner/name
	Title      string   `yaml:"title,omitempty"`
	State      string   `yaml:"state,omitempty"` // OPEN by default
	Draft      bool     `yaml:"draft,omitempty"`
	Decision   string   `yaml:"decision,omitempty"`
	Author     string   `yaml:"author,omitempty"`
	Assignees  []string `yaml:"assignees,omitempty"`
	Reviewers  []string `yaml:"reviewers,omitempty"`
	UpdatedAt  string   `yaml:"updated_at,omitempty"`
	DatabaseID int      `yaml:"database_id,omitempty"` // derived from Repo and Number when zero
}

// Fault makes the server fail requests for Cursor.
type Fault struct {
	Cursor string `yaml:"cursor"`

	// Status is the HTTP status to return. Zero with GraphQLErrors set
	// returns 200 with an errors array.
	Status int `yaml:"status,omitempty"`

	// RetryAfter is sent as the Retry-After header, in seconds.
	RetryAfter int `yaml:"retry_after,omitempty"`

	GraphQLErrors bool `yaml:"graphql_errors,omitempty"`

	// Times limits the fault to the first N requests; 0 means every request.
	Times int `yaml:"times,omitempty"`
}

// LoadFixture reads a fixture YAML file. Unknown fields are rejected.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}

	var f Fixture
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateFixture(&f); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}
	return &f, nil
}

// MustLoadFixture is LoadFixture for tests.
func MustLoadFixture(t testing.TB, path string) *Fixture {
	t.Helper()
	f, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("load fixture %s: %v", path, err)
	}
	return f
}

func validateFixture(f *Fixture) error {
	if f.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(f.Pages) == 0 {
		return fmt.Errorf("pages list is required and must be non-empty")
	}
	seen := make(map[string]bool, len(f.Pages))
	for i, p := range f.Pages {
		if seen[p.Cursor] {
			return fmt.Errorf("pages[%d]: duplicate cursor %q", i, p.Cursor)
		}
		seen[p.Cursor] = true
		if p.HasNextPage && p.EndCursor == "" {
			return fmt.Errorf("pages[%d]: has_next_page requires end_cursor", i)
		}
		for j, pr := range p.PRs {
			if pr.Number == 0 || !strings.Contains(pr.Repo, "/") {
				return fmt.Errorf("pages[%d].prs[%d]: number and owner/name repo are required", i, j)
			}
		}
	}
	return nil
}

// ChainFixture builds a linear fixture: page i answers cursor "c<i>" (the
// first answers "") and links to the next. sizes gives the PR count of
// each page; PR numbers are unique across pages.
func ChainFixture(repo string, sizes ...int) *Fixture {
	f := &Fixture{Name: "chain"}
	n := 1
	for i, size := range sizes {
		page := FixturePage{}
		if i > 0 {
			page.Cursor = "c" + strconv.Itoa(i)
		}
		if i < len(sizes)-1 {
			page.EndCursor = "c" + strconv.Itoa(i+1)
			page.HasNextPage = true
		}
		for j := 0; j < size; j++ {
			page.PRs = append(page.PRs, FixturePR{Number: n, Repo: repo, Author: "alice"})
			n++
		}
		f.Pages = append(f.Pages, page)
	}
	return f
}

// RecordedRequest is what the server saw for one call.
type RecordedRequest struct {
	Authorization string
	Query         string
	PerPage       int
	Cursor        string
}

// GraphQLServer is an httptest server replaying a Fixture.
//
// Thread-safety: all methods are safe for concurrent use.
type GraphQLServer struct {
	*httptest.Server

	fixture *Fixture
	token   string

	mu          sync.Mutex
	calls       map[string]int
	requests    []RecordedRequest
	inFlight    int
	maxInFlight int
	delay       time.Duration
}

// NewGraphQLServer starts a server for f, closed on test cleanup.
func NewGraphQLServer(t testing.TB, f *Fixture) *GraphQLServer {
	t.Helper()
	s := &GraphQLServer{
		fixture: f,
		token:   TestToken,
		calls:   make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// SetDelay makes every request wait d before answering.
func (s *GraphQLServer) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Calls returns how many requests asked for cursor.
func (s *GraphQLServer) Calls(cursor string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[cursor]
}

// TotalCalls returns the number of requests served.
func (s *GraphQLServer) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// MaxInFlight returns the highest number of concurrent requests observed.
func (s *GraphQLServer) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

// Requests returns a copy of every recorded request in arrival order.
func (s *GraphQLServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

type wireRequest struct {
	Query     string `json:"query"`
	Variables struct {
		PerPage int     `json:"perPage"`
		Cursor  *string `json:"cursor"`
	} `json:"variables"`
}

func (s *GraphQLServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req wireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	cursor := ""
	if req.Variables.Cursor != nil {
		cursor = *req.Variables.Cursor
	}

	s.mu.Lock()
	s.calls[cursor]++
	n := s.calls[cursor]
	s.requests = append(s.requests, RecordedRequest{
		Authorization: r.Header.Get("Authorization"),
		Query:         req.Query,
		PerPage:       req.Variables.PerPage,
		Cursor:        cursor,
	})
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	delay := s.delay
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if r.Header.Get("Authorization") != "bearer "+s.token {
		http.Error(w, "Bad credentials", http.StatusUnauthorized)
		return
	}

	for _, f := range s.fixture.Faults {
		if f.Cursor != cursor || (f.Times > 0 && n > f.Times) {
			continue
		}
		if f.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(f.RetryAfter))
		}
		if f.Status != 0 {
			http.Error(w, http.StatusText(f.Status), f.Status)
			return
		}
		if f.GraphQLErrors {
			writeJSON(w, map[string]any{
				"data":   nil,
				"errors": []any{map[string]any{"message": "Something went wrong while executing your query."}},
			})
			return
		}
	}

	for _, p := range s.fixture.Pages {
		if p.Cursor == cursor {
			writeJSON(w, pageResponse(p))
			return
		}
	}

	writeJSON(w, map[string]any{
		"data":   nil,
		"errors": []any{map[string]any{"message": fmt.Sprintf("`%s` does not appear to be a valid cursor.", cursor)}},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func pageResponse(p FixturePage) map[string]any {
	nodes := make([]any, 0, len(p.PRs)+p.NonPRNodes)
	for _, pr := range p.PRs {
		nodes = append(nodes, prNode(pr))
	}
	for i := 0; i < p.NonPRNodes; i++ {
		nodes = append(nodes, map[string]any{})
	}

	var endCursor any
	if p.EndCursor != "" {
		endCursor = p.EndCursor
	}

	return map[string]any{
		"data": map[string]any{
			"search": map[string]any{
				"pageInfo": map[string]any{
					"hasNextPage": p.HasNextPage,
					"endCursor":   endCursor,
				},
				"nodes": nodes,
			},
		},
	}
}

func prNode(p FixturePR) map[string]any {
	owner, name, _ := strings.Cut(p.Repo, "/")

	title := p.Title
	if title == "" {
		title = fmt.Sprintf("PR %d", p.Number)
	}
	state := p.State
	if state == "" {
		state = "OPEN"
	}
	updated := p.UpdatedAt
	if updated == "" {
		updated = Epoch.Add(time.Duration(p.Number) * time.Minute).Format(time.RFC3339)
	}

	var author any
	if p.Author != "" {
		author = actor(p.Author)
	}
	var decision any
	if p.Decision != "" {
		decision = p.Decision
	}

	assignees := make([]any, 0, len(p.Assignees))
	for _, a := range p.Assignees {
		assignees = append(assignees, actor(a))
	}
	reviewers := make([]any, 0, len(p.Reviewers))
	for _, r := range p.Reviewers {
		reviewers = append(reviewers, map[string]any{"requestedReviewer": actor(r)})
	}

	return map[string]any{
		"id":             fmt.Sprintf("PR_%s_%d", strings.ReplaceAll(p.Repo, "/", "_"), p.Number),
		"databaseId":     databaseID(p),
		"number":         p.Number,
		"title":          title,
		"state":          state,
		"isDraft":        p.Draft,
		"createdAt":      Epoch.Format(time.RFC3339),
		"updatedAt":      updated,
		"url":            fmt.Sprintf("https://github.com/%s/pull/%d", p.Repo, p.Number),
		"author":         author,
		"assignees":      map[string]any{"totalCount": len(assignees), "nodes": assignees},
		"reviewRequests": map[string]any{"totalCount": len(reviewers), "nodes": reviewers},
		"reviewDecision": decision,
		"repository":     map[string]any{"name": name, "nameWithOwner": p.Repo},
		"headRef": map[string]any{
			"repository": map[string]any{
				"name":          name,
				"nameWithOwner": p.Repo,
				"owner":         map[string]any{"login": owner},
			},
		},
	}
}

func databaseID(p FixturePR) int {
	if p.DatabaseID != 0 {
		return p.DatabaseID
	}
	h := fnv.New32a()
	h.Write([]byte(p.Repo))
	return int(h.Sum32()%100_000)*100_000 + p.Number
}

func actor(login string) map[string]any {
	return map[string]any{
		"login":     login,
		"avatarUrl": "https://avatars.example.com/" + login,
	}
}
