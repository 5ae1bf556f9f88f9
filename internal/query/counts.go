package query

import (
	"sort"

	"github.com/roach88/prdash/internal/pr"
)

// Option is a filter choice with the number of matching pull requests.
type Option struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Counts are the per-choice totals shown next to filter options.
type Counts struct {
	Users    []Option          `json:"users"`
	Projects []Option          `json:"projects"`
	Statuses map[pr.Status]int `json:"statuses"`
}

// Users lists every author and assignee login in prs with how many pull
// requests involve them, busiest first.
func Users(prs []pr.PullRequest) []Option {
	counts := make(map[string]int)
	for _, p := range prs {
		seen := make(map[string]bool, 1+len(p.Assignees))
		if p.User != nil && p.User.Login != "" {
			seen[p.User.Login] = true
		}
		for _, a := range p.Assignees {
			if a.Login != "" {
				seen[a.Login] = true
			}
		}
		for login := range seen {
			counts[login]++
		}
	}
	return sortedOptions(counts)
}

// Projects lists every repository short name in prs with its pull-request
// count, busiest first.
func Projects(prs []pr.PullRequest) []Option {
	counts := make(map[string]int)
	for _, p := range prs {
		if p.Repository.Name != "" {
			counts[p.Repository.Name]++
		}
	}
	return sortedOptions(counts)
}

// Count computes the totals over filtered for every user and project that
// appears in all. Choices with no match in filtered are listed with zero.
func Count(all, filtered []pr.PullRequest) Counts {
	users := Users(filtered)
	projects := Projects(filtered)

	c := Counts{
		Users:    withZeros(Users(all), users),
		Projects: withZeros(Projects(all), projects),
		Statuses: make(map[pr.Status]int, len(pr.AllStatuses)),
	}
	for _, s := range pr.AllStatuses {
		c.Statuses[s] = 0
	}
	for _, p := range filtered {
		for _, s := range pr.AllStatuses {
			if pr.Matches(p, s) {
				c.Statuses[s]++
			}
		}
	}
	return c
}

func withZeros(universe, counted []Option) []Option {
	byName := make(map[string]int, len(counted))
	for _, o := range counted {
		byName[o.Name] = o.Count
	}
	m := make(map[string]int, len(universe))
	for _, o := range universe {
		m[o.Name] = byName[o.Name]
	}
	return sortedOptions(m)
}

func sortedOptions(counts map[string]int) []Option {
	out := make([]Option, 0, len(counts))
	for name, n := range counts {
		out = append(out, Option{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
