package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

type UserRepo struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[string]domain.User)}
}

// Save inserts or replaces the user. Usernames stay unique.
func (r *UserRepo) Save(ctx context.Context, u domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, other := range r.users {
		if id != u.ID && other.Username == u.Username {
			return domain.User{}, domain.NewConflictError("username %s already taken", u.Username)
		}
	}
	u.Roles = slices.Clone(u.Roles)
	r.users[u.ID] = u
	return cloneUser(u), nil
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.NewNotFoundError("user", id)
	}
	return cloneUser(u), nil
}

func (r *UserRepo) FindByUsername(ctx context.Context, username string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return domain.User{}, domain.NewNotFoundError("user", username)
}

func (r *UserRepo) FindAll(ctx context.Context) ([]domain.User, error) {
	return r.filter(func(domain.User) bool { return true }), nil
}

func (r *UserRepo) FindByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	return r.filter(func(u domain.User) bool { return u.HasRole(role) }), nil
}

// filter returns matching users ordered by id.
func (r *UserRepo) filter(keep func(domain.User) bool) []domain.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.User, 0)
	for _, u := range r.users {
		if keep(u) {
			out = append(out, cloneUser(u))
		}
	}
	slices.SortFunc(out, func(a, b domain.User) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func cloneUser(u domain.User) domain.User {
	u.Roles = slices.Clone(u.Roles)
	return u
}
