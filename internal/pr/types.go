package pr

import (
	"strconv"
	"time"
)

// State is the lower-cased open/closed tag of a pull request.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// ReviewDecision mirrors GitHub's server-side reviewDecision field.
// The zero value means the field was absent (null).
type ReviewDecision string

const (
	DecisionNone             ReviewDecision = ""
	DecisionApproved         ReviewDecision = "APPROVED"
	DecisionChangesRequested ReviewDecision = "CHANGES_REQUESTED"
	DecisionReviewRequired   ReviewDecision = "REVIEW_REQUIRED"
)

// Valid reports whether d is one of the known decisions or absent.
func (d ReviewDecision) Valid() bool {
	switch d {
	case DecisionNone, DecisionApproved, DecisionChangesRequested, DecisionReviewRequired:
		return true
	}
	return false
}

// Person is a GitHub account reference.
type Person struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// Repository identifies the repository a pull request belongs to.
type Repository struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

// HeadRepository is the repository the head branch lives in (forks differ
// from the base repository).
type HeadRepository struct {
	Name       string `json:"name"`
	FullName   string `json:"full_name"`
	OwnerLogin string `json:"owner_login"`
}

// PullRequest is the canonical record produced by a crawl.
type PullRequest struct {
	// ID is GitHub's database id, unique across repositories.
	ID                 int             `json:"id"`
	Number             int             `json:"number"`
	Title              string          `json:"title"`
	State              State           `json:"state"`
	Draft              bool            `json:"draft"`
	User               *Person         `json:"user"`
	Assignees          []Person        `json:"assignees"`
	RequestedReviewers []Person        `json:"requested_reviewers"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	URL                string          `json:"html_url"`
	Repository         Repository      `json:"repository"`
	ReviewDecision     ReviewDecision  `json:"review_decision,omitempty"`
	Head               *HeadRepository `json:"head,omitempty"`

	// Set when the upstream list was longer than the requested limit.
	AssigneesTruncated bool `json:"assignees_truncated,omitempty"`
	ReviewersTruncated bool `json:"reviewers_truncated,omitempty"`
}

// Key identifies a pull request by repository and number.
func (p PullRequest) Key() string {
	return p.Repository.FullName + "#" + strconv.Itoa(p.Number)
}

// Page is one result page returned by a fetch. Records keep upstream order.
type Page struct {
	Records     []PullRequest
	EndCursor   string // "" when upstream returned null
	HasNextPage bool
}
