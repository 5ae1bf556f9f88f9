package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/prdash/internal/pr"
)

var base = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

type prOpt func(*pr.PullRequest)

func by(login string) prOpt {
	return func(p *pr.PullRequest) { p.User = &pr.Person{Login: login} }
}

func assigned(logins ...string) prOpt {
	return func(p *pr.PullRequest) {
		for _, l := range logins {
			p.Assignees = append(p.Assignees, pr.Person{Login: l})
		}
	}
}

func in(repo string) prOpt {
	return func(p *pr.PullRequest) { p.Repository = pr.Repository{Name: repo, FullName: "acme/" + repo} }
}

func closed(p *pr.PullRequest) { p.State = pr.StateClosed }
func draft(p *pr.PullRequest)  { p.Draft = true }

func decided(d pr.ReviewDecision) prOpt {
	return func(p *pr.PullRequest) { p.ReviewDecision = d }
}

func mk(n int, opts ...prOpt) pr.PullRequest {
	p := pr.PullRequest{
		ID:         n,
		Number:     n,
		State:      pr.StateOpen,
		Repository: pr.Repository{Name: "api", FullName: "acme/api"},
		UpdatedAt:  base.Add(time.Duration(n) * time.Hour),
	}
	for _, o := range opts {
		o(&p)
	}
	return p
}

func nums(prs []pr.PullRequest) []int {
	out := make([]int, len(prs))
	for i, p := range prs {
		out[i] = p.Number
	}
	return out
}

func TestApply_HidesClosedByDefault(t *testing.T) {
	prs := []pr.PullRequest{mk(1), mk(2, closed), mk(3)}

	assert.Equal(t, []int{3, 1}, nums(Apply(prs, Filter{})))
	assert.Equal(t, []int{3, 2, 1}, nums(Apply(prs, Filter{ShowClosed: true})))
}

func TestApply_SortsByUpdatedDesc(t *testing.T) {
	prs := []pr.PullRequest{mk(2), mk(9), mk(5)}
	assert.Equal(t, []int{9, 5, 2}, nums(Apply(prs, Filter{})))
	assert.Equal(t, []int{2, 9, 5}, nums(prs), "input is not reordered")
}

func TestApply_UserMatchesAuthorOrAssignee(t *testing.T) {
	prs := []pr.PullRequest{
		mk(1, by("alice")),
		mk(2, by("bob"), assigned("alice")),
		mk(3, by("carol"), assigned("dave")),
		mk(4),
	}

	got := Apply(prs, Filter{Users: []string{"alice"}})
	assert.Equal(t, []int{2, 1}, nums(got))

	got = Apply(prs, Filter{Users: []string{"alice", "dave"}})
	assert.Equal(t, []int{3, 2, 1}, nums(got))
}

func TestApply_Projects(t *testing.T) {
	prs := []pr.PullRequest{mk(1, in("api")), mk(2, in("web")), mk(3, in("docs"))}

	got := Apply(prs, Filter{Projects: []string{"web", "docs"}})
	assert.Equal(t, []int{3, 2}, nums(got))
}

func TestApply_StatusesOverlap(t *testing.T) {
	prs := []pr.PullRequest{
		mk(1, draft),
		mk(2, draft, decided(pr.DecisionApproved)),
		mk(3, decided(pr.DecisionApproved)),
		mk(4, decided(pr.DecisionChangesRequested)),
		mk(5, decided(pr.DecisionReviewRequired)),
		mk(6),
	}

	tests := []struct {
		statuses []pr.Status
		want     []int
	}{
		{[]pr.Status{pr.StatusDraft}, []int{2, 1}},
		{[]pr.Status{pr.StatusApproved}, []int{3, 2}},
		{[]pr.Status{pr.StatusChanges}, []int{4}},
		{[]pr.Status{pr.StatusReady}, []int{6, 5}},
		{[]pr.Status{pr.StatusDraft, pr.StatusChanges}, []int{4, 2, 1}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nums(Apply(prs, Filter{Statuses: tt.statuses})), "%v", tt.statuses)
	}
}

func TestApply_HideBots(t *testing.T) {
	prs := []pr.PullRequest{
		mk(1, by("alice")),
		mk(2, by("dependabot[bot]")),
		mk(3, by("github-actions")),
		mk(4, by("Dependabot-Preview"), assigned("bob")),
		mk(5),
	}

	got := Apply(prs, Filter{HideBots: true})
	assert.Equal(t, []int{4, 1}, nums(got), "bot PRs with a human assignee stay")

	got = Apply(prs, Filter{HideBots: true, Users: []string{"github-actions"}})
	assert.Equal(t, []int{3}, nums(got), "an explicit user selection wins")
}

func TestApply_CombinedFilters(t *testing.T) {
	prs := []pr.PullRequest{
		mk(1, by("alice"), in("api"), draft),
		mk(2, by("alice"), in("web"), draft),
		mk(3, by("alice"), in("api")),
		mk(4, by("bob"), in("api"), draft),
		mk(5, by("alice"), in("api"), draft, closed),
	}

	got := Apply(prs, Filter{
		Users:    []string{"alice"},
		Projects: []string{"api"},
		Statuses: []pr.Status{pr.StatusDraft},
	})
	assert.Equal(t, []int{1}, nums(got))
}

func TestIsBot(t *testing.T) {
	assert.True(t, IsBot("github-actions"))
	assert.True(t, IsBot("GitHub-Actions"))
	assert.True(t, IsBot("dependabot[bot]"))
	assert.False(t, IsBot("github-actions-fan"))
	assert.False(t, IsBot("alice"))
}

func TestUsersAndProjects(t *testing.T) {
	prs := []pr.PullRequest{
		mk(1, by("alice"), assigned("alice", "bob"), in("api")),
		mk(2, by("bob"), in("web")),
		mk(3, by("carol"), in("api")),
	}

	assert.Equal(t, []Option{{"bob", 2}, {"alice", 1}, {"carol", 1}}, Users(prs))
	assert.Equal(t, []Option{{"api", 2}, {"web", 1}}, Projects(prs))
}

func TestCount(t *testing.T) {
	all := []pr.PullRequest{
		mk(1, by("alice"), in("api"), draft),
		mk(2, by("bob"), in("web"), decided(pr.DecisionApproved)),
		mk(3, by("alice"), in("api"), draft, decided(pr.DecisionApproved)),
	}
	filtered := Apply(all, Filter{Users: []string{"alice"}})

	c := Count(all, filtered)
	assert.Equal(t, []Option{{"alice", 2}, {"bob", 0}}, c.Users)
	assert.Equal(t, []Option{{"api", 2}, {"web", 0}}, c.Projects)
	assert.Equal(t, map[pr.Status]int{
		pr.StatusDraft:    2,
		pr.StatusApproved: 1,
		pr.StatusChanges:  0,
		pr.StatusReady:    0,
	}, c.Statuses)
}

func TestPaginate(t *testing.T) {
	items := make([]pr.PullRequest, 60)
	for i := range items {
		items[i] = mk(i + 1)
	}

	p := Paginate(items, 1, 0)
	assert.Equal(t, DefaultPerPage, p.PerPage)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 60, p.Total)
	require.Len(t, p.Items, 25)
	assert.Equal(t, 1, p.Items[0].Number)

	p = Paginate(items, 3, 25)
	require.Len(t, p.Items, 10)
	assert.Equal(t, 51, p.Items[0].Number)

	p = Paginate(items, 99, 25)
	assert.Equal(t, 3, p.Page, "page is clamped to the last page")

	p = Paginate(items, -4, 25)
	assert.Equal(t, 1, p.Page)
}

func TestPaginate_Empty(t *testing.T) {
	p := Paginate(nil, 3, 25)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 0, p.TotalPages)
	assert.NotNil(t, p.Items)
	assert.Empty(t, p.Items)
}

func TestPaginate_DoesNotAliasInput(t *testing.T) {
	items := []pr.PullRequest{mk(1), mk(2)}
	p := Paginate(items, 1, 1)
	p.Items[0].Title = "changed"
	assert.Empty(t, items[0].Title)
}

func TestParseStatuses(t *testing.T) {
	got, err := ParseStatuses([]string{"draft", " Ready ", ""})
	require.NoError(t, err)
	assert.Equal(t, []pr.Status{pr.StatusDraft, pr.StatusReady}, got)

	_, err = ParseStatuses([]string{"merged"})
	assert.ErrorContains(t, err, `unknown status "merged"`)
}
