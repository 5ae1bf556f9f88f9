package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/roach88/prdash/internal/cache"
	"github.com/roach88/prdash/internal/crawl"
	"github.com/roach88/prdash/internal/dashboard"
	"github.com/roach88/prdash/internal/github"
	"github.com/roach88/prdash/internal/pr"
)

var fetched = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pull(n int, author, repo string, draft bool) pr.PullRequest {
	return pr.PullRequest{
		ID:         n,
		Number:     n,
		Title:      fmt.Sprintf("PR %d", n),
		State:      pr.StateOpen,
		Draft:      draft,
		User:       &pr.Person{Login: author},
		Repository: pr.Repository{Name: repo, FullName: "acme/" + repo},
		UpdatedAt:  fetched.Add(time.Duration(n) * time.Minute),
	}
}

func snapshot(fromCache, stale bool, prs ...pr.PullRequest) dashboard.Snapshot {
	return dashboard.Snapshot{
		Org:          "acme",
		PullRequests: prs,
		FetchedAt:    fetched,
		FromCache:    fromCache,
		Stale:        stale,
		RunID:        "run-1",
	}
}

func serve(t *testing.T, svc Service, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	NewRouter(discardLogger(), svc).ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	rr := serve(t, newServiceMock(t), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok\n", rr.Body.String())
}

func TestListPulls(t *testing.T) {
	svc := newServiceMock(t)
	svc.On("Load", mock.Anything, false).Return(snapshot(true, false,
		pull(1, "alice", "api", true),
		pull(2, "bob", "web", false),
		pull(3, "alice", "web", false),
	), nil).Once()

	rr := serve(t, svc, http.MethodGet, "/api/pulls?users=alice&per_page=1&page=2")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	body := decode[PullsResponse](t, rr)
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, 2, body.Page.Page)
	assert.Equal(t, 2, body.TotalPages)
	require.Len(t, body.Items, 1)
	assert.Equal(t, 1, body.Items[0].Number, "newest first, so #1 is on page 2")
	assert.True(t, body.FromCache)
	assert.Equal(t, fetched, body.FetchedAt)
	assert.Equal(t, 1, body.Counts.Statuses[pr.StatusDraft])
	assert.Empty(t, body.Warning)
}

func TestListPulls_HidesBotsByDefault(t *testing.T) {
	prs := []pr.PullRequest{
		pull(1, "alice", "api", false),
		pull(2, "dependabot[bot]", "api", false),
		pull(3, "github-actions", "web", false),
	}
	tests := []struct {
		target string
		want   int
	}{
		{"/api/pulls", 1},
		{"/api/pulls?hide_bots=true", 1},
		{"/api/pulls?hide_bots=false", 3},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			svc := newServiceMock(t)
			svc.On("Load", mock.Anything, false).Return(snapshot(true, false, prs...), nil).Once()

			rr := serve(t, svc, http.MethodGet, tt.target)
			require.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tt.want, decode[PullsResponse](t, rr).Total)
		})
	}
}

func TestListPulls_StaleCacheTriggersRefresh(t *testing.T) {
	svc := newServiceMock(t)
	svc.On("Load", mock.Anything, false).Return(snapshot(true, true, pull(1, "alice", "api", false)), nil).Once()
	svc.On("RefreshIfStale", mock.Anything).Return(true).Once()

	rr := serve(t, svc, http.MethodGet, "/api/pulls")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[PullsResponse](t, rr).Stale)
}

func TestListPulls_PartialCrawlServesWithWarning(t *testing.T) {
	partial := &crawl.PartialError{Org: "acme", Failures: []crawl.PageFailure{
		{Cursor: "A", Err: &github.TransportError{StatusCode: http.StatusBadGateway, Status: "Bad Gateway"}},
	}}
	svc := newServiceMock(t)
	svc.On("Load", mock.Anything, false).Return(snapshot(false, false, pull(1, "alice", "api", false)), partial).Once()

	rr := serve(t, svc, http.MethodGet, "/api/pulls")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decode[PullsResponse](t, rr)
	assert.Equal(t, 1, body.Total)
	assert.Contains(t, body.Warning, "Showing partial data: 1 page(s)")
}

func TestListPulls_InvalidRequest(t *testing.T) {
	targets := []string{
		"/api/pulls?statuses=merged",
		"/api/pulls?closed=maybe",
		"/api/pulls?hide_bots=2x",
		"/api/pulls?page=two",
		"/api/pulls?per_page=0",
		"/api/pulls?per_page=101",
	}
	for _, target := range targets {
		t.Run(target, func(t *testing.T) {
			rr := serve(t, newServiceMock(t), http.MethodGet, target)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, CodeInvalidRequest, decode[ErrorResponse](t, rr).Error.Code)
		})
	}
}

func TestListPulls_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
	}{
		{
			name:   "missing credential",
			err:    fmt.Errorf("crawl acme: first page: %w", github.ErrMissingCredential),
			status: http.StatusServiceUnavailable,
			code:   CodeMissingCredential,
			msg:    "GITHUB_TOKEN environment variable is required",
		},
		{
			name:   "empty result",
			err:    fmt.Errorf("%w for acme", dashboard.ErrEmptyResult),
			status: http.StatusNotFound,
			code:   CodeEmptyResult,
			msg:    "no pull requests found for acme",
		},
		{
			name:   "upstream",
			err:    &github.TransportError{StatusCode: http.StatusBadGateway, Status: "Bad Gateway"},
			status: http.StatusBadGateway,
			code:   CodeUpstream,
			msg:    "GitHub request failed: Bad Gateway",
		},
		{
			name:   "deadline",
			err:    fmt.Errorf("crawl acme: %w", context.DeadlineExceeded),
			status: http.StatusGatewayTimeout,
			code:   CodeUpstream,
			msg:    "Request cancelled",
		},
		{
			name:   "partial without records",
			err:    &crawl.PartialError{Org: "acme", Failures: []crawl.PageFailure{{Cursor: "A", Err: errors.New("boom")}}},
			status: http.StatusInternalServerError,
			code:   CodeInternal,
			msg:    "Showing partial data",
		},
		{
			name:   "other",
			err:    errors.New("disk on fire"),
			status: http.StatusInternalServerError,
			code:   CodeInternal,
			msg:    "Failed to fetch data: disk on fire",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newServiceMock(t)
			svc.On("Load", mock.Anything, false).Return(dashboard.Snapshot{}, tt.err).Once()

			rr := serve(t, svc, http.MethodGet, "/api/pulls")
			require.Equal(t, tt.status, rr.Code)

			body := decode[ErrorResponse](t, rr)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Contains(t, body.Error.Message, tt.msg)
		})
	}
}

func TestRefresh(t *testing.T) {
	svc := newServiceMock(t)
	svc.On("Load", mock.Anything, true).Return(snapshot(false, false,
		pull(1, "alice", "api", false),
		pull(2, "bob", "api", false),
	), nil).Once()

	rr := serve(t, svc, http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decode[RefreshResponse](t, rr)
	assert.Equal(t, RefreshResponse{Org: "acme", Count: 2, FetchedAt: fetched, RunID: "run-1"}, body)
}

func TestRefresh_MethodNotAllowed(t *testing.T) {
	rr := serve(t, newServiceMock(t), http.MethodGet, "/api/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestCacheStats(t *testing.T) {
	t.Run("cached", func(t *testing.T) {
		svc := newServiceMock(t)
		svc.On("Stats", mock.Anything).Return(cache.Stats{TotalSize: 120, EntryCount: 2}, nil).Once()
		svc.On("Age", mock.Anything).Return(90*time.Second).Once()

		rr := serve(t, svc, http.MethodGet, "/api/cache/stats")
		require.Equal(t, http.StatusOK, rr.Code)

		body := decode[StatsResponse](t, rr)
		assert.Equal(t, "acme", body.Org)
		assert.EqualValues(t, 120, body.TotalSize)
		assert.Equal(t, 2, body.EntryCount)
		assert.EqualValues(t, 90_000, body.AgeMillis)
	})

	t.Run("empty", func(t *testing.T) {
		svc := newServiceMock(t)
		svc.On("Stats", mock.Anything).Return(cache.Stats{}, nil).Once()
		svc.On("Age", mock.Anything).Return(cache.Infinite).Once()

		rr := serve(t, svc, http.MethodGet, "/api/cache/stats")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.EqualValues(t, -1, decode[StatsResponse](t, rr).AgeMillis)
	})

	t.Run("medium failure", func(t *testing.T) {
		svc := newServiceMock(t)
		svc.On("Stats", mock.Anything).Return(cache.Stats{}, errors.New("disk I/O error")).Once()

		rr := serve(t, svc, http.MethodGet, "/api/cache/stats")
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestClearCache(t *testing.T) {
	svc := newServiceMock(t)
	svc.On("ClearCache", mock.Anything).Return(nil).Once()

	rr := serve(t, svc, http.MethodDelete, "/api/cache")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
}

// panicService blows up on every call to exercise the recoverer.
type panicService struct{ serviceMock }

func (p *panicService) Load(context.Context, bool) (dashboard.Snapshot, error) {
	panic("boom")
}

func TestRouter_RecoversPanics(t *testing.T) {
	rr := serve(t, &panicService{}, http.MethodGet, "/api/pulls")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestServer_GracefulShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(Config{Timeout: time.Second, IdleTimeout: time.Second}, discardLogger(), newServiceMock(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}
