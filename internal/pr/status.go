package pr

// Status is the derived display status of a pull request.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
	StatusChanges  Status = "changes"
	StatusReady    Status = "ready"
)

// AllStatuses lists statuses in precedence order.
var AllStatuses = []Status{StatusDraft, StatusApproved, StatusChanges, StatusReady}

// ParseStatus converts a filter string into a Status.
func ParseStatus(s string) (Status, bool) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// StatusOf classifies p with precedence draft > approved > changes > ready.
func StatusOf(p PullRequest) Status {
	switch {
	case p.Draft:
		return StatusDraft
	case p.ReviewDecision == DecisionApproved:
		return StatusApproved
	case p.ReviewDecision == DecisionChangesRequested:
		return StatusChanges
	default:
		return StatusReady
	}
}

// Matches reports whether p satisfies the filter predicate for s.
//
// Unlike StatusOf these predicates overlap: a draft that was approved
// matches both draft and approved. This is what status filters and counters
// use.
func Matches(p PullRequest, s Status) bool {
	switch s {
	case StatusDraft:
		return p.Draft
	case StatusApproved:
		return p.ReviewDecision == DecisionApproved
	case StatusChanges:
		return p.ReviewDecision == DecisionChangesRequested
	case StatusReady:
		return !p.Draft &&
			p.ReviewDecision != DecisionApproved &&
			p.ReviewDecision != DecisionChangesRequested
	}
	return false
}
