package pr

import "time"

// Essential is the reduced projection persisted to the cache.
// Head repository and truncation flags are dropped.
type Essential struct {
	ID                 int            `json:"id"`
	Number             int            `json:"number"`
	Title              string         `json:"title"`
	State              State          `json:"state"`
	Draft              bool           `json:"draft"`
	User               *Person        `json:"user"`
	Assignees          []Person       `json:"assignees"`
	RequestedReviewers []Person       `json:"requested_reviewers"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	URL                string         `json:"html_url"`
	Repository         Repository     `json:"repository"`
	ReviewDecision     ReviewDecision `json:"review_decision,omitempty"`
}

// Snapshot is the cached payload shape: {"prs": [...]}.
type Snapshot struct {
	PRs []Essential `json:"prs"`
}

// Project reduces p to its essential fields.
func Project(p PullRequest) Essential {
	return Essential{
		ID:                 p.ID,
		Number:             p.Number,
		Title:              p.Title,
		State:              p.State,
		Draft:              p.Draft,
		User:               p.User,
		Assignees:          p.Assignees,
		RequestedReviewers: p.RequestedReviewers,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
		URL:                p.URL,
		Repository:         p.Repository,
		ReviewDecision:     p.ReviewDecision,
	}
}

// ProjectAll projects every record.
func ProjectAll(prs []PullRequest) Snapshot {
	out := make([]Essential, len(prs))
	for i, p := range prs {
		out[i] = Project(p)
	}
	return Snapshot{PRs: out}
}

// Expand converts a cached projection back into a PullRequest.
func (e Essential) Expand() PullRequest {
	return PullRequest{
		ID:                 e.ID,
		Number:             e.Number,
		Title:              e.Title,
		State:              e.State,
		Draft:              e.Draft,
		User:               e.User,
		Assignees:          e.Assignees,
		RequestedReviewers: e.RequestedReviewers,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
		URL:                e.URL,
		Repository:         e.Repository,
		ReviewDecision:     e.ReviewDecision,
	}
}

// Records expands every cached entry.
func (s Snapshot) Records() []PullRequest {
	out := make([]PullRequest, len(s.PRs))
	for i, e := range s.PRs {
		out[i] = e.Expand()
	}
	return out
}
