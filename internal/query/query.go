// Package query filters, counts, and paginates a crawled pull-request set
// for display.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/prdash/internal/pr"
)

// DefaultPerPage is the page size used when none is requested.
const DefaultPerPage = 25

// Filter selects pull requests. Empty lists do not filter.
type Filter struct {
	// Users matches the author or any assignee.
	Users []string

	// Projects matches the repository short name.
	Projects []string

	// Statuses matches any selected status; see pr.Matches.
	Statuses []pr.Status

	// ShowClosed includes closed pull requests.
	ShowClosed bool

	// HideBots, when Users is empty, restricts the user filter to every
	// non-bot author or assignee in the input set.
	HideBots bool
}

// IsBot reports whether login belongs to automation that should be hidden.
func IsBot(login string) bool {
	l := strings.ToLower(login)
	return l == "github-actions" || strings.Contains(l, "dependabot")
}

// Apply returns the pull requests in prs matching f, most recently updated
// first. prs is not modified.
func Apply(prs []pr.PullRequest, f Filter) []pr.PullRequest {
	users := f.Users
	if len(users) == 0 && f.HideBots {
		for _, u := range Users(prs) {
			if !IsBot(u.Name) {
				users = append(users, u.Name)
			}
		}
	}
	userSet := toSet(users)
	projectSet := toSet(f.Projects)

	out := make([]pr.PullRequest, 0, len(prs))
	for _, p := range prs {
		if !f.ShowClosed && p.State != pr.StateOpen {
			continue
		}
		if len(userSet) > 0 && !involves(p, userSet) {
			continue
		}
		if len(projectSet) > 0 {
			if _, ok := projectSet[p.Repository.Name]; !ok {
				continue
			}
		}
		if len(f.Statuses) > 0 && !matchesAny(p, f.Statuses) {
			continue
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Involves reports whether login authored or is assigned to p.
func Involves(p pr.PullRequest, login string) bool {
	return involves(p, map[string]struct{}{login: {}})
}

func involves(p pr.PullRequest, users map[string]struct{}) bool {
	if p.User != nil {
		if _, ok := users[p.User.Login]; ok {
			return true
		}
	}
	for _, a := range p.Assignees {
		if _, ok := users[a.Login]; ok {
			return true
		}
	}
	return false
}

func matchesAny(p pr.PullRequest, statuses []pr.Status) bool {
	for _, s := range statuses {
		if pr.Matches(p, s) {
			return true
		}
	}
	return false
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it != "" {
			set[it] = struct{}{}
		}
	}
	return set
}

// ParseStatuses converts filter strings into statuses. Blank entries are
// skipped; an unknown name is an error.
func ParseStatuses(names []string) ([]pr.Status, error) {
	out := make([]pr.Status, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		st, ok := pr.ParseStatus(n)
		if !ok {
			return nil, fmt.Errorf("unknown status %q (want draft, approved, changes or ready)", n)
		}
		out = append(out, st)
	}
	return out, nil
}
