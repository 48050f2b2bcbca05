package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

type RiskScoreRepo struct {
	db *sqlx.DB
}

func NewRiskScoreRepo(db *sqlx.DB) *RiskScoreRepo {
	return &RiskScoreRepo{db: db}
}

type riskScoreRow struct {
	ID           string    `db:"id"`
	ReviewID     string    `db:"review_id"`
	Overall      float64   `db:"overall_score"`
	Level        string    `db:"risk_level"`
	Factors      []byte    `db:"factors"`
	Weights      []byte    `db:"weights"`
	Details      []byte    `db:"analysis_details"`
	CalculatedAt time.Time `db:"calculated_at"`
}

func (row riskScoreRow) toDomain() (domain.RiskScore, error) {
	s := domain.RiskScore{
		ID:           row.ID,
		ReviewID:     row.ReviewID,
		Overall:      row.Overall,
		Level:        domain.RiskLevel(row.Level),
		CalculatedAt: row.CalculatedAt.UTC(),
	}
	if err := json.Unmarshal(row.Factors, &s.Factors); err != nil {
		return domain.RiskScore{}, fmt.Errorf("decode factors of score %s: %w", row.ID, err)
	}
	if err := json.Unmarshal(row.Weights, &s.Weights); err != nil {
		return domain.RiskScore{}, fmt.Errorf("decode weights of score %s: %w", row.ID, err)
	}
	if err := json.Unmarshal(row.Details, &s.AnalysisDetails); err != nil {
		return domain.RiskScore{}, fmt.Errorf("decode details of score %s: %w", row.ID, err)
	}
	return s, nil
}

const riskScoreColumns = `id, review_id, overall_score, risk_level, factors, weights, analysis_details, calculated_at`

func (r *RiskScoreRepo) Save(ctx context.Context, s domain.RiskScore) (domain.RiskScore, error) {
	factors, err := json.Marshal(s.Factors)
	if err != nil {
		return domain.RiskScore{}, fmt.Errorf("encode factors: %w", err)
	}
	weights, err := json.Marshal(s.Weights)
	if err != nil {
		return domain.RiskScore{}, fmt.Errorf("encode weights: %w", err)
	}
	details := s.AnalysisDetails
	if details == nil {
		details = map[string]string{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return domain.RiskScore{}, fmt.Errorf("encode details: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO risk_scores (id, review_id, overall_score, risk_level, factors, weights, analysis_details, calculated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE
SET overall_score    = EXCLUDED.overall_score,
    risk_level       = EXCLUDED.risk_level,
    factors          = EXCLUDED.factors,
    analysis_details = EXCLUDED.analysis_details,
    calculated_at    = EXCLUDED.calculated_at
`,
		s.ID, s.ReviewID, s.Overall, string(s.Level), string(factors), string(weights), string(detailsJSON), s.CalculatedAt,
	)
	if err != nil {
		return domain.RiskScore{}, fmt.Errorf("insert risk score %s: %w", s.ID, err)
	}
	return s, nil
}

func (r *RiskScoreRepo) FindByReviewID(ctx context.Context, reviewID string) (domain.RiskScore, error) {
	var row riskScoreRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+riskScoreColumns+` FROM risk_scores WHERE review_id = $1 ORDER BY seq DESC LIMIT 1`, reviewID)
	if err != nil {
		return domain.RiskScore{}, notFound(err, "risk score", reviewID, "get risk score")
	}
	return row.toDomain()
}

func (r *RiskScoreRepo) FindAllByReviewID(ctx context.Context, reviewID string) ([]domain.RiskScore, error) {
	var rows []riskScoreRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT `+riskScoreColumns+` FROM risk_scores WHERE review_id = $1 ORDER BY seq`, reviewID); err != nil {
		return nil, fmt.Errorf("list risk scores: %w", err)
	}
	out := make([]domain.RiskScore, 0, len(rows))
	for _, row := range rows {
		s, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
