// Package memory holds mutex-guarded in-process repositories. They back the
// service in development and in tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

type ReviewRepo struct {
	mu      sync.RWMutex
	reviews map[string]domain.Review
}

func NewReviewRepo() *ReviewRepo {
	return &ReviewRepo{reviews: make(map[string]domain.Review)}
}

func (r *ReviewRepo) Save(ctx context.Context, review domain.Review) (domain.Review, error) {
	if err := review.Validate(); err != nil {
		return domain.Review{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.reviews[review.ID]
	switch {
	case !exists && review.Version != 0:
		return domain.Review{}, domain.NewNotFoundError("review", review.ID)
	case exists && stored.Version != review.Version:
		return domain.Review{}, domain.NewConflictError("review %s was modified concurrently", review.ID)
	}

	review = review.Clone()
	review.Version++
	r.reviews[review.ID] = review
	return review.Clone(), nil
}

// Update holds the write lock across fn, so concurrent updates of any
// review are serialized.
func (r *ReviewRepo) Update(ctx context.Context, id string, fn func(domain.Review) (domain.Review, error)) (domain.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.reviews[id]
	if !ok {
		return domain.Review{}, domain.NewNotFoundError("review", id)
	}
	next, err := fn(stored.Clone())
	if err != nil {
		return domain.Review{}, err
	}
	next = next.Clone()
	next.ID = id
	if err := next.Validate(); err != nil {
		return domain.Review{}, err
	}
	next.Version = stored.Version + 1
	r.reviews[id] = next
	return next.Clone(), nil
}

func (r *ReviewRepo) FindByID(ctx context.Context, id string) (domain.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	review, ok := r.reviews[id]
	if !ok {
		return domain.Review{}, domain.NewNotFoundError("review", id)
	}
	return review.Clone(), nil
}

func (r *ReviewRepo) FindByRequester(ctx context.Context, userID string) ([]domain.Review, error) {
	return r.filter(func(rv domain.Review) bool { return rv.Requester.ID == userID }), nil
}

func (r *ReviewRepo) FindByReviewer(ctx context.Context, userID string) ([]domain.Review, error) {
	return r.filter(func(rv domain.Review) bool { return rv.IsReviewer(userID) }), nil
}

func (r *ReviewRepo) FindAllOpen(ctx context.Context) ([]domain.Review, error) {
	return r.filter(func(rv domain.Review) bool { return rv.Status.IsActive() }), nil
}

func (r *ReviewRepo) FindAll(ctx context.Context) ([]domain.Review, error) {
	return r.filter(func(domain.Review) bool { return true }), nil
}

func (r *ReviewRepo) SearchByText(ctx context.Context, query string) ([]domain.Review, error) {
	q := strings.TrimSpace(query)
	return r.filter(func(rv domain.Review) bool { return rv.MatchesText(q) }), nil
}

// FindWithFilters returns one page of matching reviews together with the
// total number of matches.
func (r *ReviewRepo) FindWithFilters(ctx context.Context, f domain.ReviewFilter) ([]domain.Review, int, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, 0, err
	}

	matched := r.filter(f.Matches)
	SortReviews(matched, f.SortBy, f.SortOrder)

	total := len(matched)
	start := min(f.Skip, total)
	end := min(start+f.Limit, total)
	return matched[start:end], total, nil
}

func (r *ReviewRepo) CountAssignmentsByReviewer(ctx context.Context) (map[string]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int64)
	for _, rv := range r.reviews {
		for _, id := range rv.Reviewers {
			counts[id]++
		}
	}
	return counts, nil
}

func (r *ReviewRepo) CountReviewsByStatus(ctx context.Context) (map[string]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int64)
	for _, rv := range r.reviews {
		counts[string(rv.Status)]++
	}
	return counts, nil
}

// filter returns clones of the matching reviews ordered by creation time,
// oldest first.
func (r *ReviewRepo) filter(keep func(domain.Review) bool) []domain.Review {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Review, 0)
	for _, rv := range r.reviews {
		if keep(rv) {
			out = append(out, rv.Clone())
		}
	}
	SortReviews(out, domain.SortByCreatedAt, domain.SortAsc)
	return out
}

// SortReviews orders reviews in place. Reviews without a risk score sort
// below any scored review. Ties fall back to the review id.
func SortReviews(reviews []domain.Review, by domain.ReviewSortField, order domain.SortOrder) {
	key := func(a, b domain.Review) int {
		switch by {
		case domain.SortByRiskScore:
			return cmp.Compare(riskKey(a), riskKey(b))
		case domain.SortByPriority:
			return cmp.Compare(a.Priority.Rank(), b.Priority.Rank())
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	slices.SortStableFunc(reviews, func(a, b domain.Review) int {
		c := key(a, b)
		if order == domain.SortDesc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func riskKey(r domain.Review) float64 {
	if r.RiskScore == nil {
		return -1
	}
	return *r.RiskScore
}
