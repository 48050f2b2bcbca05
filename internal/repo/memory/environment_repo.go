package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

type envEntry struct {
	env domain.Environment
	seq int
}

// EnvironmentRepo orders environments by insertion, so the latest one of a
// review is well defined even when creation timestamps collide.
type EnvironmentRepo struct {
	mu   sync.RWMutex
	envs map[string]envEntry
	seq  int
}

func NewEnvironmentRepo() *EnvironmentRepo {
	return &EnvironmentRepo{envs: make(map[string]envEntry)}
}

func (r *EnvironmentRepo) Save(ctx context.Context, e domain.Environment) (domain.Environment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.envs[e.ID]
	if !ok {
		r.seq++
		entry.seq = r.seq
	}
	entry.env = cloneEnvironment(e)
	r.envs[e.ID] = entry
	return cloneEnvironment(e), nil
}

func (r *EnvironmentRepo) FindByID(ctx context.Context, id string) (domain.Environment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.envs[id]
	if !ok {
		return domain.Environment{}, domain.NewNotFoundError("environment", id)
	}
	return cloneEnvironment(entry.env), nil
}

func (r *EnvironmentRepo) FindByReviewID(ctx context.Context, reviewID string) (domain.Environment, error) {
	envs := r.filter(func(e domain.Environment) bool { return e.ReviewID == reviewID })
	if len(envs) == 0 {
		return domain.Environment{}, domain.NewNotFoundError("environment for review", reviewID)
	}
	return envs[len(envs)-1], nil
}

func (r *EnvironmentRepo) FindAllRunning(ctx context.Context) ([]domain.Environment, error) {
	return r.filter(func(e domain.Environment) bool { return e.Status == domain.EnvironmentStatusRunning }), nil
}

func (r *EnvironmentRepo) FindExpired(ctx context.Context, now time.Time) ([]domain.Environment, error) {
	return r.filter(func(e domain.Environment) bool {
		return e.Status != domain.EnvironmentStatusDestroyed && e.IsExpired(now)
	}), nil
}

// filter returns matching environments in insertion order.
func (r *EnvironmentRepo) filter(keep func(domain.Environment) bool) []domain.Environment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]envEntry, 0)
	for _, entry := range r.envs {
		if keep(entry.env) {
			entries = append(entries, entry)
		}
	}
	slices.SortFunc(entries, func(a, b envEntry) int { return a.seq - b.seq })

	out := make([]domain.Environment, 0, len(entries))
	for _, entry := range entries {
		out = append(out, cloneEnvironment(entry.env))
	}
	return out
}

func cloneEnvironment(e domain.Environment) domain.Environment {
	if e.LastAccessedAt != nil {
		v := *e.LastAccessedAt
		e.LastAccessedAt = &v
	}
	return e
}
