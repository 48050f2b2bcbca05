package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

type CommentRepo struct {
	db *sqlx.DB
}

func NewCommentRepo(db *sqlx.DB) *CommentRepo {
	return &CommentRepo{db: db}
}

type commentRow struct {
	ID         string        `db:"id"`
	ReviewID   string        `db:"review_id"`
	AuthorID   string        `db:"author_id"`
	ParentID   string        `db:"parent_id"`
	Content    string        `db:"content"`
	FilePath   string        `db:"file_path"`
	LineNumber sql.NullInt64 `db:"line_number"`
	Type       string        `db:"comment_type"`
	IsResolved bool          `db:"is_resolved"`
	IsDeleted  bool          `db:"is_deleted"`
	CreatedAt  time.Time     `db:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at"`
}

func (row commentRow) toDomain() domain.Comment {
	c := domain.Comment{
		ID:         row.ID,
		ReviewID:   row.ReviewID,
		AuthorID:   row.AuthorID,
		Content:    row.Content,
		ParentID:   row.ParentID,
		FilePath:   row.FilePath,
		Type:       domain.CommentType(row.Type),
		IsResolved: row.IsResolved,
		IsDeleted:  row.IsDeleted,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
	if row.LineNumber.Valid {
		n := int(row.LineNumber.Int64)
		c.LineNumber = &n
	}
	return c
}

const commentColumns = `id, review_id, author_id, parent_id, content, file_path, line_number,
comment_type, is_resolved, is_deleted, created_at, updated_at`

func (r *CommentRepo) Save(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	var line sql.NullInt64
	if c.LineNumber != nil {
		line = sql.NullInt64{Int64: int64(*c.LineNumber), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO comments (id, review_id, author_id, parent_id, content, file_path, line_number,
                      comment_type, is_resolved, is_deleted, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE
SET content     = EXCLUDED.content,
    is_resolved = EXCLUDED.is_resolved,
    is_deleted  = EXCLUDED.is_deleted,
    updated_at  = EXCLUDED.updated_at
`,
		c.ID, c.ReviewID, c.AuthorID, c.ParentID, c.Content, c.FilePath, line,
		string(c.Type), c.IsResolved, c.IsDeleted, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("upsert comment %s: %w", c.ID, err)
	}
	return c, nil
}

func (r *CommentRepo) FindByID(ctx context.Context, id string) (domain.Comment, error) {
	var row commentRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, id); err != nil {
		return domain.Comment{}, notFound(err, "comment", id, "get comment")
	}
	return row.toDomain(), nil
}

func (r *CommentRepo) FindByReview(ctx context.Context, reviewID string) ([]domain.Comment, error) {
	return r.query(ctx, "review_id", reviewID)
}

func (r *CommentRepo) FindByAuthor(ctx context.Context, authorID string) ([]domain.Comment, error) {
	return r.query(ctx, "author_id", authorID)
}

func (r *CommentRepo) FindByParent(ctx context.Context, parentID string) ([]domain.Comment, error) {
	return r.query(ctx, "parent_id", parentID)
}

// query lists non-deleted comments matching column in insertion order.
// column is always a constant from this file.
func (r *CommentRepo) query(ctx context.Context, column, value string) ([]domain.Comment, error) {
	var rows []commentRow
	q := `SELECT ` + commentColumns + ` FROM comments WHERE ` + column + ` = $1 AND NOT is_deleted ORDER BY seq`
	if err := r.db.SelectContext(ctx, &rows, q, value); err != nil {
		return nil, fmt.Errorf("list comments by %s: %w", column, err)
	}
	out := make([]domain.Comment, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
