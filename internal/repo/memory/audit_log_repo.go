package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

// AuditLogRepo is append-only. Entries come back in append order.
type AuditLogRepo struct {
	mu      sync.RWMutex
	entries []domain.AuditLog
}

func NewAuditLogRepo() *AuditLogRepo {
	return &AuditLogRepo{}
}

func (r *AuditLogRepo) Append(ctx context.Context, entry domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, cloneAuditLog(entry))
	return nil
}

func (r *AuditLogRepo) FindByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditLog, error) {
	return r.filter(func(e domain.AuditLog) bool {
		return e.EntityType == entityType && e.EntityID == entityID
	}), nil
}

func (r *AuditLogRepo) FindByActor(ctx context.Context, actorID string) ([]domain.AuditLog, error) {
	return r.filter(func(e domain.AuditLog) bool { return e.ActorID == actorID }), nil
}

func (r *AuditLogRepo) filter(keep func(domain.AuditLog) bool) []domain.AuditLog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.AuditLog, 0)
	for _, e := range r.entries {
		if keep(e) {
			out = append(out, cloneAuditLog(e))
		}
	}
	return out
}

// cloneAuditLog copies the top-level state maps. Nested values are shared;
// entries are never mutated after Append.
func cloneAuditLog(e domain.AuditLog) domain.AuditLog {
	e.OldState = maps.Clone(e.OldState)
	e.NewState = maps.Clone(e.NewState)
	e.Changes = maps.Clone(e.Changes)
	return e
}
