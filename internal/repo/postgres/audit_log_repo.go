package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

// AuditLogRepo is append-only; nothing here updates or deletes rows.
type AuditLogRepo struct {
	db *sqlx.DB
}

func NewAuditLogRepo(db *sqlx.DB) *AuditLogRepo {
	return &AuditLogRepo{db: db}
}

type auditLogRow struct {
	ID          string    `db:"id"`
	EntityType  string    `db:"entity_type"`
	EntityID    string    `db:"entity_id"`
	Action      string    `db:"action"`
	ActorID     string    `db:"actor_id"`
	CreatedAt   time.Time `db:"created_at"`
	OldState    []byte    `db:"old_state"`
	NewState    []byte    `db:"new_state"`
	Changes     []byte    `db:"changes"`
	Description string    `db:"description"`
}

func (row auditLogRow) toDomain() (domain.AuditLog, error) {
	e := domain.AuditLog{
		ID:          row.ID,
		EntityType:  row.EntityType,
		EntityID:    row.EntityID,
		Action:      domain.AuditAction(row.Action),
		ActorID:     row.ActorID,
		CreatedAt:   row.CreatedAt.UTC(),
		Description: row.Description,
	}
	for _, f := range []struct {
		raw []byte
		dst *map[string]any
	}{
		{row.OldState, &e.OldState},
		{row.NewState, &e.NewState},
		{row.Changes, &e.Changes},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return domain.AuditLog{}, fmt.Errorf("decode audit entry %s: %w", row.ID, err)
		}
	}
	return e, nil
}

func encodeState(m map[string]any) (*string, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

const auditLogColumns = `id, entity_type, entity_id, action, actor_id, created_at, old_state, new_state, changes, description`

func (r *AuditLogRepo) Append(ctx context.Context, entry domain.AuditLog) error {
	oldState, err := encodeState(entry.OldState)
	if err != nil {
		return fmt.Errorf("encode old state: %w", err)
	}
	newState, err := encodeState(entry.NewState)
	if err != nil {
		return fmt.Errorf("encode new state: %w", err)
	}
	changes, err := encodeState(entry.Changes)
	if err != nil {
		return fmt.Errorf("encode changes: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO audit_logs (id, entity_type, entity_id, action, actor_id, created_at, old_state, new_state, changes, description)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.EntityType, entry.EntityID, string(entry.Action), entry.ActorID, entry.CreatedAt,
		oldState, newState, changes, entry.Description,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewConflictError("audit entry %s already exists", entry.ID)
		}
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *AuditLogRepo) FindByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditLog, error) {
	return r.query(ctx, `SELECT `+auditLogColumns+` FROM audit_logs WHERE entity_type = $1 AND entity_id = $2 ORDER BY seq`,
		entityType, entityID)
}

func (r *AuditLogRepo) FindByActor(ctx context.Context, actorID string) ([]domain.AuditLog, error) {
	return r.query(ctx, `SELECT `+auditLogColumns+` FROM audit_logs WHERE actor_id = $1 ORDER BY seq`, actorID)
}

func (r *AuditLogRepo) query(ctx context.Context, q string, args ...any) ([]domain.AuditLog, error) {
	var rows []auditLogRow
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	out := make([]domain.AuditLog, 0, len(rows))
	for _, row := range rows {
		e, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
