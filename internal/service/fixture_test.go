package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/forsitet/review-workflow-service/internal/domain"
	"github.com/forsitet/review-workflow-service/internal/repo/memory"
	"github.com/forsitet/review-workflow-service/internal/service/mocks"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture wires the services over in-memory storage and mocked ports.
// Users: alice (developer), bob (reviewer), carol (security engineer),
// dave (qa engineer) and erin (admin).
type fixture struct {
	clock *testClock

	reviews   *memory.ReviewRepo
	users     *memory.UserRepo
	comments  *memory.CommentRepo
	scores    *memory.RiskScoreRepo
	envRepo   *memory.EnvironmentRepo
	auditRepo AuditLogRepository

	git      *mocks.MockGitProvider
	risk     *mocks.MockRiskAnalyzer
	notifier *mocks.MockNotifier
	prov     *mocks.MockProvisioner
	metrics  *mocks.MockMetrics

	sla    *SLAService
	policy *ReviewPolicy
	audit  *AuditService
	envs   *EnvironmentService
	svc    *ReviewService
	esc    *EscalationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:     &testClock{now: testNow},
		reviews:   memory.NewReviewRepo(),
		users:     memory.NewUserRepo(),
		comments:  memory.NewCommentRepo(),
		scores:    memory.NewRiskScoreRepo(),
		envRepo:   memory.NewEnvironmentRepo(),
		auditRepo: memory.NewAuditLogRepo(),
		git:       &mocks.MockGitProvider{CreateResult: "pr-1"},
		risk:      &mocks.MockRiskAnalyzer{Files: 3, Additions: 40, Deletions: 5},
		notifier:  &mocks.MockNotifier{},
		prov:      &mocks.MockProvisioner{CreateURL: "https://review.preview.local"},
		metrics:   &mocks.MockMetrics{},
	}
	f.setRisk(t, domain.RiskFactors{})

	ctx := context.Background()
	for _, u := range []domain.User{
		testUser(t, "alice", domain.RoleDeveloper),
		testUser(t, "bob", domain.RoleReviewer),
		testUser(t, "carol", domain.RoleSecurityEngineer),
		testUser(t, "dave", domain.RoleQAEngineer),
		testUser(t, "erin", domain.RoleAdmin),
	} {
		_, err := f.users.Save(ctx, u)
		require.NoError(t, err)
	}

	f.build()
	return f
}

// build constructs the services from the current fields.
func (f *fixture) build() {
	logger := discardLogger()
	now := f.clock.Now

	f.sla = NewSLAService(SLAConfig{}, now)
	f.policy = NewReviewPolicy(now)
	f.audit = NewAuditService(f.auditRepo, logger, now)
	f.envs = NewEnvironmentService(f.envRepo, f.reviews, f.prov, f.audit, EnvironmentConfig{}, logger, now)
	f.svc = NewReviewService(ReviewServiceDeps{
		Reviews:      f.reviews,
		Users:        f.users,
		Comments:     f.comments,
		RiskScores:   f.scores,
		Risk:         f.risk,
		Git:          f.git,
		Notifier:     f.notifier,
		Environments: f.envs,
		SLA:          f.sla,
		Policy:       f.policy,
		Audit:        f.audit,
		Metrics:      f.metrics,
		Logger:       logger,
		NowFunc:      now,
	})
	f.esc = NewEscalationService(EscalationServiceDeps{
		Reviews:      f.reviews,
		Users:        f.users,
		Notifier:     f.notifier,
		Environments: f.envs,
		SLA:          f.sla,
		Policy:       f.policy,
		Audit:        f.audit,
		Metrics:      f.metrics,
		Config:       EscalationConfig{Concurrency: 2},
		Logger:       logger,
		NowFunc:      now,
	})
}

// setRisk makes the analyzer return a score built from factors.
func (f *fixture) setRisk(t *testing.T, factors domain.RiskFactors) {
	t.Helper()
	score, err := domain.NewRiskScore("score-1", "pending", factors, domain.DefaultRiskWeights(), testNow)
	require.NoError(t, err)
	f.risk.ScoreResult = score
}

func (f *fixture) create(t *testing.T, title string, priority domain.Priority) domain.Review {
	t.Helper()
	r, err := f.svc.Create(context.Background(), CreateReviewInput{
		Title:        title,
		SourceBranch: "feature/work",
		TargetBranch: "main",
		RequesterID:  "alice",
		Priority:     priority,
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) stored(t *testing.T, id string) domain.Review {
	t.Helper()
	r, err := f.reviews.FindByID(context.Background(), id)
	require.NoError(t, err)
	return r
}

func (f *fixture) trailActions(t *testing.T, entityType, entityID string) []domain.AuditAction {
	t.Helper()
	entries, err := f.audit.Trail(context.Background(), entityType, entityID)
	require.NoError(t, err)
	actions := make([]domain.AuditAction, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	return actions
}
