package service

import (
	"context"
	"fmt"
)

type ReviewStatsRepo interface {
	CountAssignmentsByReviewer(ctx context.Context) (map[string]int64, error)
	CountReviewsByStatus(ctx context.Context) (map[string]int64, error)
}

type Stats struct {
	AssignmentsByReviewer map[string]int64 `json:"assignments_by_reviewer"`
	ReviewsByStatus       map[string]int64 `json:"reviews_by_status"`
	SLA                   SLASummary       `json:"sla"`
}

type StatsService struct {
	repo    ReviewStatsRepo
	reviews ReviewRepository
	sla     *SLAService
}

func NewStatsService(repo ReviewStatsRepo, reviews ReviewRepository, sla *SLAService) *StatsService {
	return &StatsService{repo: repo, reviews: reviews, sla: sla}
}

func (s *StatsService) GetStats(ctx context.Context) (Stats, error) {
	byReviewer, err := s.repo.CountAssignmentsByReviewer(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count assignments: %w", err)
	}

	byStatus, err := s.repo.CountReviewsByStatus(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count reviews by status: %w", err)
	}

	all, err := s.reviews.FindAll(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list reviews: %w", err)
	}

	return Stats{
		AssignmentsByReviewer: byReviewer,
		ReviewsByStatus:       byStatus,
		SLA:                   s.sla.Summary(all),
	}, nil
}
