package mocks

import (
	"context"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

type MockRiskAnalyzer struct {
	ScoreResult domain.RiskScore
	ScoreErr    error
	Files       int
	Additions   int
	Deletions   int
	StatsErr    error
}

func (m *MockRiskAnalyzer) CalculateRiskScore(ctx context.Context, reviewID, diff string) (domain.RiskScore, error) {
	if m.ScoreErr != nil {
		return domain.RiskScore{}, m.ScoreErr
	}
	s := m.ScoreResult
	s.ReviewID = reviewID
	return s, nil
}

func (m *MockRiskAnalyzer) DiffStats(diff string) (int, int, int, error) {
	return m.Files, m.Additions, m.Deletions, m.StatsErr
}
