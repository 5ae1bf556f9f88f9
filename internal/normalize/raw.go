package normalize

// RawNode is one search result node as decoded from the GraphQL response.
// Nodes that are not pull requests arrive as empty objects.
type RawNode struct {
	ID             string             `json:"id"`
	DatabaseID     *int               `json:"databaseId"`
	Number         *int               `json:"number"`
	Title          string             `json:"title"`
	State          string             `json:"state"`
	IsDraft        bool               `json:"isDraft"`
	CreatedAt      string             `json:"createdAt"`
	UpdatedAt      string             `json:"updatedAt"`
	URL            string             `json:"url"`
	Author         *RawActor          `json:"author"`
	Assignees      RawActorConnection `json:"assignees"`
	ReviewRequests RawReviewRequests  `json:"reviewRequests"`
	ReviewDecision *string            `json:"reviewDecision"`
	Repository     *RawRepository     `json:"repository"`
	HeadRef        *RawHeadRef        `json:"headRef"`
}

// IsPullRequest reports whether the node carries pull-request fields.
func (n RawNode) IsPullRequest() bool {
	return n.ID != "" || n.DatabaseID != nil || n.Number != nil || n.Repository != nil
}

// RawActor is a user reference. Team or bot reviewers selected through a
// User fragment decode with an empty Login.
type RawActor struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatarUrl"`
}

type RawActorConnection struct {
	TotalCount int         `json:"totalCount"`
	Nodes      []*RawActor `json:"nodes"`
}

type RawReviewRequests struct {
	TotalCount int                `json:"totalCount"`
	Nodes      []RawReviewRequest `json:"nodes"`
}

type RawReviewRequest struct {
	RequestedReviewer *RawActor `json:"requestedReviewer"`
}

type RawRepository struct {
	Name          string `json:"name"`
	NameWithOwner string `json:"nameWithOwner"`
}

type RawHeadRef struct {
	Repository *RawHeadRepository `json:"repository"`
}

type RawHeadRepository struct {
	Name          string    `json:"name"`
	NameWithOwner string    `json:"nameWithOwner"`
	Owner         *RawActor `json:"owner"`
}
