package mocks

import (
	"context"
)

type MockReviewStatsRepo struct {
	CountByReviewerResult map[string]int64
	CountByReviewerErr    error
	CountByStatusResult   map[string]int64
	CountByStatusErr      error
}

func (m *MockReviewStatsRepo) CountAssignmentsByReviewer(ctx context.Context) (map[string]int64, error) {
	return m.CountByReviewerResult, m.CountByReviewerErr
}

func (m *MockReviewStatsRepo) CountReviewsByStatus(ctx context.Context) (map[string]int64, error) {
	return m.CountByStatusResult, m.CountByStatusErr
}
