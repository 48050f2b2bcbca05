package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

type userRow struct {
	ID        string    `db:"id"`
	Username  string    `db:"username"`
	Email     string    `db:"email"`
	FullName  string    `db:"full_name"`
	Roles     []byte    `db:"roles"`
	CreatedAt time.Time `db:"created_at"`
}

func (row userRow) toDomain() (domain.User, error) {
	var roles []domain.Role
	if err := json.Unmarshal(row.Roles, &roles); err != nil {
		return domain.User{}, fmt.Errorf("decode roles of user %s: %w", row.ID, err)
	}
	return domain.User{
		ID:        row.ID,
		Username:  row.Username,
		Email:     row.Email,
		FullName:  row.FullName,
		Roles:     roles,
		CreatedAt: row.CreatedAt.UTC(),
	}, nil
}

const userColumns = `id, username, email, full_name, roles, created_at`

// Save inserts the user or replaces the stored copy with the same id.
func (r *UserRepo) Save(ctx context.Context, u domain.User) (domain.User, error) {
	roles := u.Roles
	if roles == nil {
		roles = []domain.Role{}
	}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return domain.User{}, fmt.Errorf("encode roles: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO users (id, username, email, full_name, roles, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET username  = EXCLUDED.username,
    email     = EXCLUDED.email,
    full_name = EXCLUDED.full_name,
    roles     = EXCLUDED.roles
`,
		u.ID, u.Username, u.Email, u.FullName, string(rolesJSON), u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.NewConflictError("username %s already taken", u.Username)
		}
		return domain.User{}, fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return u, nil
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (domain.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return domain.User{}, notFound(err, "user", id, "get user by id")
	}
	return row.toDomain()
}

func (r *UserRepo) FindByUsername(ctx context.Context, username string) (domain.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE username = $1`, username); err != nil {
		return domain.User{}, notFound(err, "user", username, "get user by username")
	}
	return row.toDomain()
}

func (r *UserRepo) FindAll(ctx context.Context) ([]domain.User, error) {
	return r.query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
}

func (r *UserRepo) FindByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	return r.query(ctx, `SELECT `+userColumns+` FROM users WHERE roles @> jsonb_build_array($1::text) ORDER BY id`, string(role))
}

func (r *UserRepo) query(ctx context.Context, q string, args ...any) ([]domain.User, error) {
	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		u, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}
