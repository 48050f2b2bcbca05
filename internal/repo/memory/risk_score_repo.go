package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

// RiskScoreRepo keeps every score ever calculated, grouped by review.
type RiskScoreRepo struct {
	mu       sync.RWMutex
	byReview map[string][]domain.RiskScore
}

func NewRiskScoreRepo() *RiskScoreRepo {
	return &RiskScoreRepo{byReview: make(map[string][]domain.RiskScore)}
}

func (r *RiskScoreRepo) Save(ctx context.Context, s domain.RiskScore) (domain.RiskScore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.AnalysisDetails = maps.Clone(s.AnalysisDetails)
	r.byReview[s.ReviewID] = append(r.byReview[s.ReviewID], s)
	return s, nil
}

func (r *RiskScoreRepo) FindByReviewID(ctx context.Context, reviewID string) (domain.RiskScore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	scores := r.byReview[reviewID]
	if len(scores) == 0 {
		return domain.RiskScore{}, domain.NewNotFoundError("risk score", reviewID)
	}
	return scores[len(scores)-1], nil
}

// FindAllByReviewID returns the review's scores oldest first.
func (r *RiskScoreRepo) FindAllByReviewID(ctx context.Context, reviewID string) ([]domain.RiskScore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := slices.Clone(r.byReview[reviewID])
	if out == nil {
		out = []domain.RiskScore{}
	}
	return out, nil
}
