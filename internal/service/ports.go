package service

import (
	"context"
	"time"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

// Repositories return *domain.DomainError with ErrorCodeNotFound for
// missing entities and ErrorCodeConflict for stale writes.

type UserRepository interface {
	Save(ctx context.Context, u domain.User) (domain.User, error)
	FindByID(ctx context.Context, id string) (domain.User, error)
	FindByUsername(ctx context.Context, username string) (domain.User, error)
	FindAll(ctx context.Context) ([]domain.User, error)
	FindByRole(ctx context.Context, role domain.Role) ([]domain.User, error)
}

// ReviewUpdateFunc derives the next state of a review from its current
// stored state. Returning an error aborts the update.
type ReviewUpdateFunc = func(current domain.Review) (domain.Review, error)

type ReviewRepository interface {
	// Save inserts a review with Version 0 or overwrites one whose Version
	// matches the stored copy.
	Save(ctx context.Context, r domain.Review) (domain.Review, error)
	// Update applies fn to the stored review atomically with respect to
	// other writers of the same id.
	Update(ctx context.Context, id string, fn ReviewUpdateFunc) (domain.Review, error)
	FindByID(ctx context.Context, id string) (domain.Review, error)
	FindByRequester(ctx context.Context, userID string) ([]domain.Review, error)
	FindByReviewer(ctx context.Context, userID string) ([]domain.Review, error)
	FindAllOpen(ctx context.Context) ([]domain.Review, error)
	FindAll(ctx context.Context) ([]domain.Review, error)
	FindWithFilters(ctx context.Context, f domain.ReviewFilter) ([]domain.Review, int, error)
	SearchByText(ctx context.Context, query string) ([]domain.Review, error)
}

type CommentRepository interface {
	Save(ctx context.Context, c domain.Comment) (domain.Comment, error)
	FindByID(ctx context.Context, id string) (domain.Comment, error)
	FindByReview(ctx context.Context, reviewID string) ([]domain.Comment, error)
	FindByAuthor(ctx context.Context, authorID string) ([]domain.Comment, error)
	FindByParent(ctx context.Context, parentID string) ([]domain.Comment, error)
}

type RiskScoreRepository interface {
	Save(ctx context.Context, s domain.RiskScore) (domain.RiskScore, error)
	// FindByReviewID returns the most recent score for the review.
	FindByReviewID(ctx context.Context, reviewID string) (domain.RiskScore, error)
	FindAllByReviewID(ctx context.Context, reviewID string) ([]domain.RiskScore, error)
}

type EnvironmentRepository interface {
	Save(ctx context.Context, e domain.Environment) (domain.Environment, error)
	FindByID(ctx context.Context, id string) (domain.Environment, error)
	// FindByReviewID returns the most recently created environment.
	FindByReviewID(ctx context.Context, reviewID string) (domain.Environment, error)
	FindAllRunning(ctx context.Context) ([]domain.Environment, error)
	// FindExpired returns environments past ExpiresAt that are not destroyed.
	FindExpired(ctx context.Context, now time.Time) ([]domain.Environment, error)
}

type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLog) error
	FindByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditLog, error)
	FindByActor(ctx context.Context, actorID string) ([]domain.AuditLog, error)
}

type RiskAnalyzer interface {
	CalculateRiskScore(ctx context.Context, reviewID, diff string) (domain.RiskScore, error)
	DiffStats(diff string) (files, additions, deletions int, err error)
}

type GitProvider interface {
	CreatePullRequest(ctx context.Context, title, description, sourceBranch, targetBranch string) (string, error)
	UpdatePullRequest(ctx context.Context, prID, title, description string) error
	GetPullRequestDiff(ctx context.Context, prID string) (string, error)
	AddCommentToPullRequest(ctx context.Context, prID, body, filePath string, line *int) error
	SetPullRequestStatus(ctx context.Context, prID, state, description, targetURL string) error
	GetPullRequestStatus(ctx context.Context, prID string) (string, error)
}

type EnvironmentProvisioner interface {
	// Create provisions env and returns the URL it is reachable at.
	Create(ctx context.Context, env domain.Environment) (string, error)
	Start(ctx context.Context, envID string) error
	Stop(ctx context.Context, envID string) error
	Destroy(ctx context.Context, envID string) error
	Status(ctx context.Context, envID string) (domain.EnvironmentStatus, error)
	URL(ctx context.Context, envID string) (string, error)
}

type Notifier interface {
	ReviewAssigned(ctx context.Context, r domain.Review, recipients []string) error
	ReviewReminder(ctx context.Context, r domain.Review, recipients []string) error
	ReviewEscalation(ctx context.Context, r domain.Review, recipients []string) error
	ReviewCompleted(ctx context.Context, r domain.Review, recipients []string) error
}

// Metrics receives workflow events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ReviewTransition(action domain.AuditAction)
	EscalationRaised(level int)
	NotificationSent(kind string, err error)
	SLASnapshot(onTime, atRisk, overdue, escalated int)
}

type noopMetrics struct{}

func (noopMetrics) ReviewTransition(domain.AuditAction) {}
func (noopMetrics) EscalationRaised(int) {}
func (noopMetrics) NotificationSent(string, error) {}
func (noopMetrics) SLASnapshot(int, int, int, int) {}
