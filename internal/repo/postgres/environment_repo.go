package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

type EnvironmentRepo struct {
	db *sqlx.DB
}

func NewEnvironmentRepo(db *sqlx.DB) *EnvironmentRepo {
	return &EnvironmentRepo{db: db}
}

type environmentRow struct {
	ID             string       `db:"id"`
	ReviewID       string       `db:"review_id"`
	Name           string       `db:"name"`
	Branch         string       `db:"branch"`
	Status         string       `db:"status"`
	TTLMinutes     int          `db:"ttl_minutes"`
	URL            string       `db:"url"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at"`
	ExpiresAt      time.Time    `db:"expires_at"`
	LastAccessedAt sql.NullTime `db:"last_accessed_at"`
}

func (row environmentRow) toDomain() domain.Environment {
	e := domain.Environment{
		ID:         row.ID,
		ReviewID:   row.ReviewID,
		Name:       row.Name,
		Branch:     row.Branch,
		Status:     domain.EnvironmentStatus(row.Status),
		TTLMinutes: row.TTLMinutes,
		URL:        row.URL,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
		ExpiresAt:  row.ExpiresAt.UTC(),
	}
	if row.LastAccessedAt.Valid {
		t := row.LastAccessedAt.Time.UTC()
		e.LastAccessedAt = &t
	}
	return e
}

const environmentColumns = `id, review_id, name, branch, status, ttl_minutes, url,
created_at, updated_at, expires_at, last_accessed_at`

func (r *EnvironmentRepo) Save(ctx context.Context, e domain.Environment) (domain.Environment, error) {
	var lastAccessed sql.NullTime
	if e.LastAccessedAt != nil {
		lastAccessed = sql.NullTime{Time: *e.LastAccessedAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO environments (id, review_id, name, branch, status, ttl_minutes, url,
                          created_at, updated_at, expires_at, last_accessed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE
SET status           = EXCLUDED.status,
    url              = EXCLUDED.url,
    updated_at       = EXCLUDED.updated_at,
    last_accessed_at = EXCLUDED.last_accessed_at
`,
		e.ID, e.ReviewID, e.Name, e.Branch, string(e.Status), e.TTLMinutes, e.URL,
		e.CreatedAt, e.UpdatedAt, e.ExpiresAt, lastAccessed,
	)
	if err != nil {
		return domain.Environment{}, fmt.Errorf("upsert environment %s: %w", e.ID, err)
	}
	return e, nil
}

func (r *EnvironmentRepo) FindByID(ctx context.Context, id string) (domain.Environment, error) {
	var row environmentRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+environmentColumns+` FROM environments WHERE id = $1`, id); err != nil {
		return domain.Environment{}, notFound(err, "environment", id, "get environment")
	}
	return row.toDomain(), nil
}

func (r *EnvironmentRepo) FindByReviewID(ctx context.Context, reviewID string) (domain.Environment, error) {
	var row environmentRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+environmentColumns+` FROM environments WHERE review_id = $1 ORDER BY seq DESC LIMIT 1`, reviewID)
	if err != nil {
		return domain.Environment{}, notFound(err, "environment for review", reviewID, "get environment by review")
	}
	return row.toDomain(), nil
}

func (r *EnvironmentRepo) FindAllRunning(ctx context.Context) ([]domain.Environment, error) {
	return r.query(ctx, `SELECT `+environmentColumns+` FROM environments WHERE status = $1 ORDER BY seq`,
		string(domain.EnvironmentStatusRunning))
}

func (r *EnvironmentRepo) FindExpired(ctx context.Context, now time.Time) ([]domain.Environment, error) {
	return r.query(ctx, `SELECT `+environmentColumns+` FROM environments WHERE status <> $1 AND expires_at < $2 ORDER BY seq`,
		string(domain.EnvironmentStatusDestroyed), now)
}

func (r *EnvironmentRepo) query(ctx context.Context, q string, args ...any) ([]domain.Environment, error) {
	var rows []environmentRow
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list environments: %w", err)
	}
	out := make([]domain.Environment, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
