// Package normalize converts raw GraphQL search nodes into pr.PullRequest
// records.
//
// Conversion is pure. Optional upstream fields (author, review decision,
// head ref, individual reviewers) are tolerated as null; required ones
// (number, state, timestamps, repository) fail with a *StructuralError
// naming the offending field. Text fields are NFC normalized so equal
// logins and titles compare equal regardless of upstream composition.
package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/prdash/internal/pr"
)

// StructuralError reports a node that cannot be converted.
type StructuralError struct {
	// Field is the JSON path of the offending field, e.g. "repository.nameWithOwner".
	Field string

	// Reason is a human-readable description.
	Reason string
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	return fmt.Sprintf("malformed node: %s: %s", e.Field, e.Reason)
}

// IsStructural returns true if err wraps a *StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

func structural(field, reason string) error {
	return &StructuralError{Field: field, Reason: reason}
}

// Node converts one raw node into a PullRequest.
func Node(raw RawNode) (pr.PullRequest, error) {
	if raw.DatabaseID == nil {
		return pr.PullRequest{}, structural("databaseId", "missing")
	}
	if raw.Number == nil {
		return pr.PullRequest{}, structural("number", "missing")
	}

	state, err := parseState(raw.State)
	if err != nil {
		return pr.PullRequest{}, err
	}

	createdAt, err := parseTime("createdAt", raw.CreatedAt)
	if err != nil {
		return pr.PullRequest{}, err
	}
	updatedAt, err := parseTime("updatedAt", raw.UpdatedAt)
	if err != nil {
		return pr.PullRequest{}, err
	}

	if raw.Repository == nil {
		return pr.PullRequest{}, structural("repository", "missing")
	}
	if raw.Repository.NameWithOwner == "" {
		return pr.PullRequest{}, structural("repository.nameWithOwner", "empty")
	}

	decision := pr.DecisionNone
	if raw.ReviewDecision != nil {
		decision = pr.ReviewDecision(*raw.ReviewDecision)
		if !decision.Valid() {
			return pr.PullRequest{}, structural("reviewDecision", fmt.Sprintf("unknown value %q", *raw.ReviewDecision))
		}
	}

	out := pr.PullRequest{
		ID:             *raw.DatabaseID,
		Number:         *raw.Number,
		Title:          nfc(raw.Title),
		State:          state,
		Draft:          raw.IsDraft,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		URL:            raw.URL,
		ReviewDecision: decision,
		Repository: pr.Repository{
			Name:     nfc(raw.Repository.Name),
			FullName: nfc(raw.Repository.NameWithOwner),
		},
		Assignees:          people(raw.Assignees.Nodes),
		RequestedReviewers: reviewers(raw.ReviewRequests.Nodes),
	}

	if raw.Author != nil && raw.Author.Login != "" {
		out.User = person(raw.Author)
	}

	if raw.HeadRef != nil && raw.HeadRef.Repository != nil {
		h := raw.HeadRef.Repository
		head := &pr.HeadRepository{
			Name:     nfc(h.Name),
			FullName: nfc(h.NameWithOwner),
		}
		if h.Owner != nil {
			head.OwnerLogin = nfc(h.Owner.Login)
		}
		out.Head = head
	}

	out.AssigneesTruncated = raw.Assignees.TotalCount > len(raw.Assignees.Nodes)
	out.ReviewersTruncated = raw.ReviewRequests.TotalCount > len(raw.ReviewRequests.Nodes)

	return out, nil
}

// Nodes converts every pull-request node, skipping empty (non-PR) nodes.
// The first failure aborts conversion and reports the node's index.
func Nodes(raw []RawNode) ([]pr.PullRequest, error) {
	out := make([]pr.PullRequest, 0, len(raw))
	for i, n := range raw {
		if !n.IsPullRequest() {
			continue
		}
		p, err := Node(n)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func parseState(s string) (pr.State, error) {
	switch strings.ToUpper(s) {
	case "OPEN":
		return pr.StateOpen, nil
	case "CLOSED", "MERGED":
		return pr.StateClosed, nil
	case "":
		return "", structural("state", "missing")
	default:
		return "", structural("state", fmt.Sprintf("unknown value %q", s))
	}
}

func parseTime(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, structural(field, "missing")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, structural(field, err.Error())
	}
	return t.UTC(), nil
}

func person(a *RawActor) *pr.Person {
	return &pr.Person{Login: nfc(a.Login), AvatarURL: a.AvatarURL}
}

func people(nodes []*RawActor) []pr.Person {
	out := make([]pr.Person, 0, len(nodes))
	for _, a := range nodes {
		if a == nil || a.Login == "" {
			continue
		}
		out = append(out, *person(a))
	}
	return out
}

func reviewers(nodes []RawReviewRequest) []pr.Person {
	out := make([]pr.Person, 0, len(nodes))
	for _, r := range nodes {
		// Teams and bots decode as null or as an object without a login.
		if r.RequestedReviewer == nil || r.RequestedReviewer.Login == "" {
			continue
		}
		out = append(out, *person(r.RequestedReviewer))
	}
	return out
}

func nfc(s string) string {
	return norm.NFC.String(s)
}
