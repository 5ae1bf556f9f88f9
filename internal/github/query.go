package github

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultListLimit is how many assignees and review requests are selected
// per pull request.
const DefaultListLimit = 10

// GitHub logins: alphanumerics and single inner hyphens, at most 39 chars.
var loginPattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,37}[A-Za-z0-9])?$`)

// ValidOrg reports whether org is a well-formed GitHub login. Only valid
// logins are interpolated into the search string.
func ValidOrg(org string) bool {
	return loginPattern.MatchString(org) && !strings.Contains(org, "--")
}

// SearchString is the search qualifier for every pull request owned by org
// outside archived repositories.
func SearchString(org string) string {
	return "is:pr user:" + org + " archived:false"
}

// searchQuery is the GraphQL document. The search string cannot be a
// variable, so it is formatted in along with the list limits.
const searchQuery = `query($perPage: Int!, $cursor: String) {
  search(query: %q, type: ISSUE, first: $perPage, after: $cursor) {
    pageInfo {
      hasNextPage
      endCursor
    }
    nodes {
      ... on PullRequest {
        id
        databaseId
        number
        title
        state
        isDraft
        createdAt
        updatedAt
        url
        author {
          login
          avatarUrl
        }
        assignees(first: %d) {
          totalCount
          nodes {
            login
            avatarUrl
          }
        }
        reviewRequests(first: %d) {
          totalCount
          nodes {
            requestedReviewer {
              ... on User {
                login
                avatarUrl
              }
            }
          }
        }
        reviewDecision
        repository {
          name
          nameWithOwner
        }
        headRef {
          repository {
            name
            nameWithOwner
            owner {
              login
            }
          }
        }
      }
    }
  }
}
`

// BuildQuery renders the search document for org. The caller must have
// checked org with ValidOrg.
func BuildQuery(org string, listLimit int) string {
	return fmt.Sprintf(searchQuery, SearchString(org), listLimit, listLimit)
}
