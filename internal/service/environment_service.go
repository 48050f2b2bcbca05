package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

type EnvironmentConfig struct {
	TTLMinutes int
}

// EnvironmentReviewRepository is the slice of review storage the
// environment lifecycle needs to keep the review's URL in sync.
type EnvironmentReviewRepository interface {
	FindByID(ctx context.Context, id string) (domain.Review, error)
	Update(ctx context.Context, id string, fn ReviewUpdateFunc) (domain.Review, error)
}

type EnvironmentService struct {
	envs        EnvironmentRepository
	reviews     EnvironmentReviewRepository
	provisioner EnvironmentProvisioner
	audit       *AuditService
	cfg         EnvironmentConfig
	logger      *slog.Logger
	nowFunc     func() time.Time
	newID       func() string
}

func NewEnvironmentService(
	envs EnvironmentRepository,
	reviews EnvironmentReviewRepository,
	provisioner EnvironmentProvisioner,
	audit *AuditService,
	cfg EnvironmentConfig,
	logger *slog.Logger,
	nowFunc func() time.Time,
) *EnvironmentService {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = domain.DefaultEnvironmentTTLMinutes
	}
	return &EnvironmentService{
		envs:        envs,
		reviews:     reviews,
		provisioner: provisioner,
		audit:       audit,
		cfg:         cfg,
		logger:      logger,
		nowFunc:     nowFunc,
		newID:       uuid.NewString,
	}
}

func environmentName(reviewID string) string {
	short := reviewID
	if len(short) > 8 {
		short = short[:8]
	}
	return "review-" + short
}

// Provision creates and starts an environment for r without touching the
// stored review. A provisioner failure leaves a failed environment behind.
func (s *EnvironmentService) Provision(ctx context.Context, r domain.Review, actorID string) (domain.Environment, error) {
	env, err := domain.NewEnvironment(s.newID(), r.ID, environmentName(r.ID), r.SourceBranch, s.cfg.TTLMinutes, s.nowFunc())
	if err != nil {
		return domain.Environment{}, err
	}
	env, err = env.MarkCreating(s.nowFunc())
	if err != nil {
		return domain.Environment{}, err
	}

	url, provErr := s.provisioner.Create(ctx, env)
	if provErr != nil {
		failed, err := env.Fail(s.nowFunc())
		if err == nil {
			if _, err := s.envs.Save(ctx, failed); err != nil {
				s.logger.Error("save failed environment", "error", err, "environment_id", env.ID)
			}
		}
		return domain.Environment{}, fmt.Errorf("provision environment: %w", provErr)
	}

	env, err = env.Start(url, s.nowFunc())
	if err != nil {
		return domain.Environment{}, err
	}
	saved, err := s.envs.Save(ctx, env)
	if err != nil {
		return domain.Environment{}, fmt.Errorf("save environment: %w", err)
	}

	s.audit.Record(ctx, domain.EntityTypeEnvironment, saved.ID, domain.AuditActionEnvironmentCreate, actorID, domain.AuditLogParams{
		NewState: map[string]any{"review_id": r.ID, "url": saved.URL, "status": string(saved.Status)},
	})
	return saved, nil
}

// ProvisionForReview replaces any live environment of the review with a
// fresh one and stores its URL on the review.
func (s *EnvironmentService) ProvisionForReview(ctx context.Context, reviewID, actorID string) (domain.Environment, error) {
	r, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return domain.Environment{}, fmt.Errorf("get review: %w", err)
	}
	if r.Status.IsTerminal() {
		return domain.Environment{}, domain.NewIllegalStateError("cannot provision environment for review with status %s", r.Status)
	}

	current, err := s.envs.FindByReviewID(ctx, reviewID)
	switch {
	case err == nil && current.Status != domain.EnvironmentStatusDestroyed && current.Status != domain.EnvironmentStatusFailed:
		if _, err := s.destroy(ctx, current, actorID); err != nil {
			return domain.Environment{}, err
		}
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return domain.Environment{}, fmt.Errorf("get environment: %w", err)
	}

	env, err := s.Provision(ctx, r, actorID)
	if err != nil {
		return domain.Environment{}, err
	}
	if err := s.setReviewURL(ctx, reviewID, env.URL); err != nil {
		return domain.Environment{}, err
	}
	return env, nil
}

// Get returns the review's latest environment and records the access.
func (s *EnvironmentService) Get(ctx context.Context, reviewID string) (domain.Environment, error) {
	env, err := s.envs.FindByReviewID(ctx, reviewID)
	if err != nil {
		return domain.Environment{}, fmt.Errorf("get environment: %w", err)
	}
	if !env.IsAccessible(s.nowFunc()) {
		return env, nil
	}
	env, err = s.envs.Save(ctx, env.MarkAccessed(s.nowFunc()))
	if err != nil {
		return domain.Environment{}, fmt.Errorf("save environment: %w", err)
	}
	return env, nil
}

func (s *EnvironmentService) Stop(ctx context.Context, reviewID string) (domain.Environment, error) {
	env, err := s.envs.FindByReviewID(ctx, reviewID)
	if err != nil {
		return domain.Environment{}, fmt.Errorf("get environment: %w", err)
	}
	stopped, err := env.Stop(s.nowFunc())
	if err != nil {
		return domain.Environment{}, err
	}
	if err := s.provisioner.Stop(ctx, env.ID); err != nil {
		return domain.Environment{}, fmt.Errorf("stop environment: %w", err)
	}
	saved, err := s.envs.Save(ctx, stopped)
	if err != nil {
		return domain.Environment{}, fmt.Errorf("save environment: %w", err)
	}
	return saved, nil
}

func (s *EnvironmentService) Destroy(ctx context.Context, reviewID, actorID string) (domain.Environment, error) {
	env, err := s.envs.FindByReviewID(ctx, reviewID)
	if err != nil {
		return domain.Environment{}, fmt.Errorf("get environment: %w", err)
	}
	destroyed, err := s.destroy(ctx, env, actorID)
	if err != nil {
		return domain.Environment{}, err
	}
	if err := s.setReviewURL(ctx, reviewID, ""); err != nil {
		return domain.Environment{}, err
	}
	return destroyed, nil
}

// DestroyQuietly tears down the review's environment if it has one. It is
// used when a review reaches a terminal status and never fails the caller.
func (s *EnvironmentService) DestroyQuietly(ctx context.Context, reviewID, actorID string) {
	env, err := s.envs.FindByReviewID(ctx, reviewID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("lookup environment for teardown", "error", err, "review_id", reviewID)
		}
		return
	}
	if env.Status == domain.EnvironmentStatusDestroyed {
		return
	}
	if _, err := s.destroy(ctx, env, actorID); err != nil {
		s.logger.Warn("teardown environment", "error", err, "review_id", reviewID)
	}
}

// ReapExpired destroys every expired environment and returns how many were
// removed.
func (s *EnvironmentService) ReapExpired(ctx context.Context) (int, error) {
	expired, err := s.envs.FindExpired(ctx, s.nowFunc())
	if err != nil {
		return 0, fmt.Errorf("find expired environments: %w", err)
	}

	reaped := 0
	for _, env := range expired {
		if _, err := s.destroy(ctx, env, SystemActor); err != nil {
			s.logger.Warn("reap environment", "error", err, "environment_id", env.ID)
			continue
		}
		if err := s.setReviewURL(ctx, env.ReviewID, ""); err != nil {
			s.logger.Warn("clear review environment url", "error", err, "review_id", env.ReviewID)
		}
		reaped++
	}
	return reaped, nil
}

func (s *EnvironmentService) destroy(ctx context.Context, env domain.Environment, actorID string) (domain.Environment, error) {
	destroyed, err := env.Destroy(s.nowFunc())
	if err != nil {
		return domain.Environment{}, err
	}
	if err := s.provisioner.Destroy(ctx, env.ID); err != nil {
		s.logger.Warn("provisioner destroy failed", "error", err, "environment_id", env.ID)
	}
	saved, err := s.envs.Save(ctx, destroyed)
	if err != nil {
		return domain.Environment{}, fmt.Errorf("save environment: %w", err)
	}
	s.audit.Record(ctx, domain.EntityTypeEnvironment, env.ID, domain.AuditActionEnvironmentDestroy, actorID, domain.AuditLogParams{
		OldState: map[string]any{"status": string(env.Status)},
		NewState: map[string]any{"review_id": env.ReviewID, "status": string(saved.Status)},
	})
	return saved, nil
}

func (s *EnvironmentService) setReviewURL(ctx context.Context, reviewID, url string) error {
	_, err := s.reviews.Update(ctx, reviewID, func(cur domain.Review) (domain.Review, error) {
		if cur.EphemeralEnvironmentURL == url {
			return cur, nil
		}
		return cur.SetEnvironmentURL(url, s.nowFunc()), nil
	})
	if err != nil {
		return fmt.Errorf("update review environment url: %w", err)
	}
	return nil
}
