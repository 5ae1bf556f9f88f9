package query

import "github.com/roach88/prdash/internal/pr"

// Page is one display page of a filtered result.
type Page struct {
	Items      []pr.PullRequest `json:"pull_requests"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalPages int              `json:"total_pages"`
}

// Paginate slices items into pages of perPage (DefaultPerPage when < 1) and
// returns page number page, clamped to [1, TotalPages]. An empty input
// yields page 1 of 0.
func Paginate(items []pr.PullRequest, page, perPage int) Page {
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	total := len(items)
	totalPages := (total + perPage - 1) / perPage

	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}

	start := (page - 1) * perPage
	end := start + perPage
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	pageItems := make([]pr.PullRequest, end-start)
	copy(pageItems, items[start:end])

	return Page{
		Items:      pageItems,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}
}
