package domain

import "strings"

type ReviewSortField string

const (
	SortByCreatedAt ReviewSortField = "created_at"
	SortByRiskScore ReviewSortField = "risk_score"
	SortByPriority  ReviewSortField = "priority"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// ReviewFilter selects a page of reviews. Zero values mean "any".
type ReviewFilter struct {
	Status      ReviewStatus
	Priority    Priority
	RequesterID string
	ReviewerID  string
	Query       string
	Skip        int
	Limit       int
	SortBy      ReviewSortField
	SortOrder   SortOrder
}

// Normalize fills defaults and rejects out-of-range paging and sort values.
func (f ReviewFilter) Normalize() (ReviewFilter, error) {
	if f.Skip < 0 {
		return f, NewValidationError("skip must be non-negative")
	}
	if f.Limit == 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit < 1 || f.Limit > MaxPageLimit {
		return f, NewValidationError("limit must be between 1 and %d", MaxPageLimit)
	}
	switch f.SortBy {
	case "":
		f.SortBy = SortByCreatedAt
	case SortByCreatedAt, SortByRiskScore, SortByPriority:
	default:
		return f, NewValidationError("unsupported sort field %q", f.SortBy)
	}
	switch f.SortOrder {
	case "":
		f.SortOrder = SortDesc
	case SortAsc, SortDesc:
	default:
		return f, NewValidationError("sort order must be asc or desc")
	}
	f.Query = strings.TrimSpace(f.Query)
	return f, nil
}

// Matches reports whether r passes the non-paging criteria of f.
func (f ReviewFilter) Matches(r Review) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Priority != "" && r.Priority != f.Priority {
		return false
	}
	if f.RequesterID != "" && r.Requester.ID != f.RequesterID {
		return false
	}
	if f.ReviewerID != "" && !r.IsReviewer(f.ReviewerID) {
		return false
	}
	if f.Query != "" && !r.MatchesText(f.Query) {
		return false
	}
	return true
}

// MatchesText is a case-insensitive substring match over title,
// description and both branch names.
func (r Review) MatchesText(query string) bool {
	q := strings.ToLower(query)
	for _, field := range []string{r.Title, r.Description, r.SourceBranch, r.TargetBranch} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
