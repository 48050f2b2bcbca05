package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

// ReviewRepo stores each review as a JSON document next to the columns it
// is filtered and sorted by. Reviewer assignments are mirrored into
// review_reviewers for the reviewer queries and assignment stats.
type ReviewRepo struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewReviewRepo(db *sqlx.DB, logger *slog.Logger) *ReviewRepo {
	return &ReviewRepo{db: db, logger: logger}
}

type reviewRow struct {
	Version int64  `db:"version"`
	Doc     []byte `db:"doc"`
}

func (row reviewRow) toDomain() (domain.Review, error) {
	var r domain.Review
	if err := json.Unmarshal(row.Doc, &r); err != nil {
		return domain.Review{}, fmt.Errorf("decode review: %w", err)
	}
	r.Version = row.Version
	return r, nil
}

func (r *ReviewRepo) Save(ctx context.Context, review domain.Review) (domain.Review, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Review{}, fmt.Errorf("begin save review tx: %w", err)
	}
	defer rollback(tx, r.logger)

	saved, err := writeReview(ctx, tx, review)
	if err != nil {
		return domain.Review{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Review{}, fmt.Errorf("commit save review tx: %w", err)
	}
	return saved, nil
}

// Update locks the row for the duration of fn.
func (r *ReviewRepo) Update(ctx context.Context, id string, fn func(domain.Review) (domain.Review, error)) (domain.Review, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Review{}, fmt.Errorf("begin update review tx: %w", err)
	}
	defer rollback(tx, r.logger)

	var row reviewRow
	if err := tx.GetContext(ctx, &row, `SELECT version, doc FROM reviews WHERE id = $1 FOR UPDATE`, id); err != nil {
		return domain.Review{}, notFound(err, "review", id, "lock review")
	}
	current, err := row.toDomain()
	if err != nil {
		return domain.Review{}, err
	}

	next, err := fn(current.Clone())
	if err != nil {
		return domain.Review{}, err
	}
	next.ID = current.ID
	next.Version = current.Version

	saved, err := writeReview(ctx, tx, next)
	if err != nil {
		return domain.Review{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Review{}, fmt.Errorf("commit update review tx: %w", err)
	}
	return saved, nil
}

// writeReview inserts a review with Version 0 or overwrites the row whose
// version matches, then replaces its reviewer rows.
func writeReview(ctx context.Context, tx *sqlx.Tx, review domain.Review) (domain.Review, error) {
	if err := review.Validate(); err != nil {
		return domain.Review{}, err
	}

	next := review.Clone()
	next.Version = review.Version + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return domain.Review{}, fmt.Errorf("encode review: %w", err)
	}

	var res sql.Result
	if review.Version == 0 {
		res, err = tx.ExecContext(ctx, `
INSERT INTO reviews (id, title, description, source_branch, target_branch, requester_id,
                     status, priority, risk_score, created_at, updated_at, version, doc)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO NOTHING`,
			next.ID, next.Title, next.Description, next.SourceBranch, next.TargetBranch, next.Requester.ID,
			string(next.Status), string(next.Priority), next.RiskScore, next.CreatedAt, next.UpdatedAt, next.Version, string(doc),
		)
	} else {
		res, err = tx.ExecContext(ctx, `
UPDATE reviews
SET title = $2, description = $3, source_branch = $4, target_branch = $5,
    status = $6, priority = $7, risk_score = $8, updated_at = $9,
    version = $10, doc = $11
WHERE id = $1 AND version = $12`,
			next.ID, next.Title, next.Description, next.SourceBranch, next.TargetBranch,
			string(next.Status), string(next.Priority), next.RiskScore, next.UpdatedAt,
			next.Version, string(doc), review.Version,
		)
	}
	if err != nil {
		return domain.Review{}, fmt.Errorf("write review %s: %w", review.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Review{}, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if review.Version == 0 {
			return domain.Review{}, domain.NewConflictError("review %s already exists", review.ID)
		}
		return domain.Review{}, versionConflict(ctx, tx, review)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM review_reviewers WHERE review_id = $1`, next.ID); err != nil {
		return domain.Review{}, fmt.Errorf("clear reviewers: %w", err)
	}
	for _, reviewerID := range next.Reviewers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO review_reviewers (review_id, reviewer_id) VALUES ($1, $2)`,
			next.ID, reviewerID,
		); err != nil {
			return domain.Review{}, fmt.Errorf("insert reviewer %s: %w", reviewerID, err)
		}
	}
	return next, nil
}

func versionConflict(ctx context.Context, tx *sqlx.Tx, review domain.Review) error {
	var stored int64
	err := tx.GetContext(ctx, &stored, `SELECT version FROM reviews WHERE id = $1`, review.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewNotFoundError("review", review.ID)
	}
	if err != nil {
		return fmt.Errorf("get review version: %w", err)
	}
	return domain.NewConflictError("review %s was modified concurrently (version %d, stored %d)", review.ID, review.Version, stored)
}

func (r *ReviewRepo) FindByID(ctx context.Context, id string) (domain.Review, error) {
	var row reviewRow
	if err := r.db.GetContext(ctx, &row, `SELECT version, doc FROM reviews WHERE id = $1`, id); err != nil {
		return domain.Review{}, notFound(err, "review", id, "get review")
	}
	return row.toDomain()
}

func (r *ReviewRepo) FindByRequester(ctx context.Context, userID string) ([]domain.Review, error) {
	return r.query(ctx, `SELECT version, doc FROM reviews WHERE requester_id = $1 ORDER BY created_at, id`, userID)
}

func (r *ReviewRepo) FindByReviewer(ctx context.Context, userID string) ([]domain.Review, error) {
	return r.query(ctx, `
SELECT rv.version, rv.doc
FROM reviews rv
JOIN review_reviewers rr ON rr.review_id = rv.id
WHERE rr.reviewer_id = $1
ORDER BY rv.created_at, rv.id`, userID)
}

func (r *ReviewRepo) FindAllOpen(ctx context.Context) ([]domain.Review, error) {
	return r.query(ctx, `SELECT version, doc FROM reviews WHERE status IN ($1, $2) ORDER BY created_at, id`,
		string(domain.ReviewStatusOpen), string(domain.ReviewStatusUnderReview))
}

func (r *ReviewRepo) FindAll(ctx context.Context) ([]domain.Review, error) {
	return r.query(ctx, `SELECT version, doc FROM reviews ORDER BY created_at, id`)
}

func (r *ReviewRepo) SearchByText(ctx context.Context, query string) ([]domain.Review, error) {
	return r.query(ctx, `SELECT version, doc FROM reviews WHERE `+textMatch(1)+` ORDER BY created_at, id`,
		likePattern(query))
}

func (r *ReviewRepo) FindWithFilters(ctx context.Context, f domain.ReviewFilter) ([]domain.Review, int, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, 0, err
	}

	var (
		where []string
		args  []any
	)
	arg := func(v any) int {
		args = append(args, v)
		return len(args)
	}
	if f.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", arg(string(f.Status))))
	}
	if f.Priority != "" {
		where = append(where, fmt.Sprintf("priority = $%d", arg(string(f.Priority))))
	}
	if f.RequesterID != "" {
		where = append(where, fmt.Sprintf("requester_id = $%d", arg(f.RequesterID)))
	}
	if f.ReviewerID != "" {
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM review_reviewers rr WHERE rr.review_id = reviews.id AND rr.reviewer_id = $%d)",
			arg(f.ReviewerID)))
	}
	if f.Query != "" {
		where = append(where, textMatch(arg(likePattern(f.Query))))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM reviews`+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count reviews: %w", err)
	}

	dir := "DESC"
	if f.SortOrder == domain.SortAsc {
		dir = "ASC"
	}
	q := fmt.Sprintf(`SELECT version, doc FROM reviews%s ORDER BY %s %s, id LIMIT $%d OFFSET $%d`,
		clause, sortExpr(f.SortBy), dir, arg(f.Limit), arg(f.Skip))

	page, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	return page, total, nil
}

func (r *ReviewRepo) CountAssignmentsByReviewer(ctx context.Context) (map[string]int64, error) {
	return r.countBy(ctx, `
SELECT reviewer_id AS key, COUNT(*) AS cnt
FROM review_reviewers
GROUP BY reviewer_id`, "count assignments by reviewer")
}

func (r *ReviewRepo) CountReviewsByStatus(ctx context.Context) (map[string]int64, error) {
	return r.countBy(ctx, `
SELECT status AS key, COUNT(*) AS cnt
FROM reviews
GROUP BY status`, "count reviews by status")
}

func (r *ReviewRepo) countBy(ctx context.Context, q, op string) (map[string]int64, error) {
	var rows []struct {
		Key string `db:"key"`
		Cnt int64  `db:"cnt"`
	}
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result := make(map[string]int64, len(rows))
	for _, row := range rows {
		result[row.Key] = row.Cnt
	}
	return result, nil
}

func (r *ReviewRepo) query(ctx context.Context, q string, args ...any) ([]domain.Review, error) {
	var rows []reviewRow
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	reviews := make([]domain.Review, 0, len(rows))
	for _, row := range rows {
		rv, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, rv)
	}
	return reviews, nil
}

// sortExpr mirrors memory.SortReviews: unscored reviews rank below any
// score and priorities compare by rank.
func sortExpr(by domain.ReviewSortField) string {
	switch by {
	case domain.SortByRiskScore:
		return "COALESCE(risk_score, -1)"
	case domain.SortByPriority:
		return "CASE priority WHEN 'low' THEN 0 WHEN 'medium' THEN 1 WHEN 'high' THEN 2 WHEN 'critical' THEN 3 ELSE -1 END"
	default:
		return "created_at"
	}
}

func textMatch(n int) string {
	return fmt.Sprintf(
		"(title ILIKE $%[1]d OR description ILIKE $%[1]d OR source_branch ILIKE $%[1]d OR target_branch ILIKE $%[1]d)", n)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(q string) string {
	return "%" + likeEscaper.Replace(strings.TrimSpace(q)) + "%"
}
