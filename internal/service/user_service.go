package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

// UserReviewRepository is the read side of review storage needed to list a
// user's reviews.
type UserReviewRepository interface {
	FindByRequester(ctx context.Context, userID string) ([]domain.Review, error)
	FindByReviewer(ctx context.Context, userID string) ([]domain.Review, error)
}

type UserService struct {
	users   UserRepository
	reviews UserReviewRepository
	audit   *AuditService
	logger  *slog.Logger
	nowFunc func() time.Time
	newID   func() string
}

func NewUserService(users UserRepository, reviews UserReviewRepository, audit *AuditService, logger *slog.Logger, nowFunc func() time.Time) *UserService {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &UserService{
		users:   users,
		reviews: reviews,
		audit:   audit,
		logger:  logger,
		nowFunc: nowFunc,
		newID:   uuid.NewString,
	}
}

type CreateUserInput struct {
	ID       string
	Username string
	Email    string
	FullName string
	Roles    []domain.Role
}

func (s *UserService) Create(ctx context.Context, in CreateUserInput) (domain.User, error) {
	_, err := s.users.FindByUsername(ctx, in.Username)
	switch {
	case err == nil:
		return domain.User{}, domain.NewConflictError("username %s already taken", in.Username)
	case !errors.Is(err, domain.ErrNotFound):
		return domain.User{}, fmt.Errorf("check username: %w", err)
	}

	id := in.ID
	if id == "" {
		id = s.newID()
	}
	user, err := domain.NewUser(id, in.Username, in.Email, in.FullName, in.Roles, s.nowFunc())
	if err != nil {
		return domain.User{}, err
	}
	user, err = s.users.Save(ctx, user)
	if err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}

	s.audit.Record(ctx, domain.EntityTypeUser, user.ID, domain.AuditActionCreate, SystemActor, domain.AuditLogParams{
		NewState: userSnapshot(user),
	})
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id string) (domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// List returns all users, or only those holding role when it is set.
func (s *UserService) List(ctx context.Context, role domain.Role) ([]domain.User, error) {
	var (
		users []domain.User
		err   error
	)
	if role == "" {
		users, err = s.users.FindAll(ctx)
	} else {
		users, err = s.users.FindByRole(ctx, role)
	}
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *UserService) AddRole(ctx context.Context, userID string, role domain.Role, actorID string) (domain.User, error) {
	return s.changeRoles(ctx, userID, actorID, func(u domain.User) domain.User { return u.WithRole(role) })
}

func (s *UserService) RemoveRole(ctx context.Context, userID string, role domain.Role, actorID string) (domain.User, error) {
	return s.changeRoles(ctx, userID, actorID, func(u domain.User) domain.User { return u.WithoutRole(role) })
}

func (s *UserService) changeRoles(ctx context.Context, userID, actorID string, change func(domain.User) domain.User) (domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	updated := change(user)
	if err := updated.Validate(); err != nil {
		return domain.User{}, err
	}
	updated, err = s.users.Save(ctx, updated)
	if err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}

	oldState, newState := userSnapshot(user), userSnapshot(updated)
	s.audit.Record(ctx, domain.EntityTypeUser, userID, domain.AuditActionUpdate, actorID, domain.AuditLogParams{
		OldState: oldState,
		NewState: newState,
		Changes:  diffSnapshots(oldState, newState),
	})
	return updated, nil
}

// ListReviews returns the reviews the user requested or was assigned to,
// newest first.
func (s *UserService) ListReviews(ctx context.Context, userID string) ([]domain.Review, error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	requested, err := s.reviews.FindByRequester(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list reviews by requester: %w", err)
	}
	assigned, err := s.reviews.FindByReviewer(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list reviews by reviewer: %w", err)
	}

	seen := make(map[string]struct{}, len(requested)+len(assigned))
	out := make([]domain.Review, 0, len(requested)+len(assigned))
	for _, r := range append(requested, assigned...) {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Seed inserts users that do not exist yet. Existing ids are left alone.
func (s *UserService) Seed(ctx context.Context, users []CreateUserInput) (int, error) {
	created := 0
	for _, in := range users {
		_, err := s.users.FindByID(ctx, in.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return created, fmt.Errorf("get user %s: %w", in.ID, err)
		}
		if _, err := s.Create(ctx, in); err != nil {
			return created, fmt.Errorf("seed user %s: %w", in.ID, err)
		}
		created++
	}
	if created > 0 {
		s.logger.Info("seeded users", "count", created)
	}
	return created, nil
}

func userSnapshot(u domain.User) map[string]any {
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, string(r))
	}
	return map[string]any{
		"username": u.Username,
		"email":    u.Email,
		"roles":    roles,
	}
}
