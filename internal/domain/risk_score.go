package domain

import (
	"math"
	"time"
)

type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "Low"
	RiskLevelMedium   RiskLevel = "Medium"
	RiskLevelHigh     RiskLevel = "High"
	RiskLevelCritical RiskLevel = "Critical"
)

const weightSumTolerance = 0.001

// RiskFactors are the five factor scores, each in [0, 100].
type RiskFactors struct {
	CodeComplexity     float64 `json:"code_complexity"`
	SecurityImpact     float64 `json:"security_impact"`
	CriticalFiles      float64 `json:"critical_files"`
	DataflowConfidence float64 `json:"dataflow_confidence"`
	TestCoverageDelta  float64 `json:"test_coverage_delta"`
}

// RiskWeights must be non-negative and sum to 1.
type RiskWeights struct {
	CodeComplexity     float64 `json:"code_complexity" yaml:"code_complexity"`
	SecurityImpact     float64 `json:"security_impact" yaml:"security_impact"`
	CriticalFiles      float64 `json:"critical_files" yaml:"critical_files"`
	DataflowConfidence float64 `json:"dataflow_confidence" yaml:"dataflow_confidence"`
	TestCoverageDelta  float64 `json:"test_coverage_delta" yaml:"test_coverage_delta"`
}

func DefaultRiskWeights() RiskWeights {
	return RiskWeights{
		CodeComplexity:     0.2,
		SecurityImpact:     0.3,
		CriticalFiles:      0.2,
		DataflowConfidence: 0.2,
		TestCoverageDelta:  0.1,
	}
}

func (w RiskWeights) Validate() error {
	for name, v := range map[string]float64{
		"code_complexity":     w.CodeComplexity,
		"security_impact":     w.SecurityImpact,
		"critical_files":      w.CriticalFiles,
		"dataflow_confidence": w.DataflowConfidence,
		"test_coverage_delta": w.TestCoverageDelta,
	} {
		if !finite(v) || v < 0 {
			return NewValidationError("%s weight must be a non-negative number, got %v", name, v)
		}
	}
	sum := w.CodeComplexity + w.SecurityImpact + w.CriticalFiles + w.DataflowConfidence + w.TestCoverageDelta
	if math.Abs(sum-1.0) > weightSumTolerance {
		return NewValidationError("weights must sum to 1.0, got %v", sum)
	}
	return nil
}

func (f RiskFactors) Validate() error {
	for name, v := range map[string]float64{
		"code_complexity":     f.CodeComplexity,
		"security_impact":     f.SecurityImpact,
		"critical_files":      f.CriticalFiles,
		"dataflow_confidence": f.DataflowConfidence,
		"test_coverage_delta": f.TestCoverageDelta,
	} {
		if !inScoreRange(v) {
			return NewValidationError("%s score must be between 0 and 100, got %v", name, v)
		}
	}
	return nil
}

func (f RiskFactors) weighted(w RiskWeights) float64 {
	return f.CodeComplexity*w.CodeComplexity +
		f.SecurityImpact*w.SecurityImpact +
		f.CriticalFiles*w.CriticalFiles +
		f.DataflowConfidence*w.DataflowConfidence +
		f.TestCoverageDelta*w.TestCoverageDelta
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// inScoreRange reports whether v is a number in [0, 100]. NaN is rejected.
func inScoreRange(v float64) bool {
	return finite(v) && v >= 0 && v <= 100
}

// RiskLevelFor maps an overall score to its level.
func RiskLevelFor(score float64) RiskLevel {
	switch {
	case score < 20:
		return RiskLevelLow
	case score < 40:
		return RiskLevelMedium
	case score < 70:
		return RiskLevelHigh
	default:
		return RiskLevelCritical
	}
}

type RiskScore struct {
	ID              string            `json:"id"`
	ReviewID        string            `json:"review_id"`
	CalculatedAt    time.Time         `json:"calculated_at"`
	Factors         RiskFactors       `json:"factors"`
	Weights         RiskWeights       `json:"weights"`
	Overall         float64           `json:"overall_score"`
	Level           RiskLevel         `json:"risk_level"`
	AnalysisDetails map[string]string `json:"analysis_details,omitempty"`
}

// NewRiskScore computes the overall score from factors and weights.
func NewRiskScore(id, reviewID string, factors RiskFactors, weights RiskWeights, calculatedAt time.Time) (RiskScore, error) {
	return newRiskScore(id, reviewID, factors, weights, nil, calculatedAt)
}

// NewRiskScoreWithOverall keeps a precomputed overall score instead of
// deriving it. It is used when loading persisted scores.
func NewRiskScoreWithOverall(id, reviewID string, factors RiskFactors, weights RiskWeights, overall float64, calculatedAt time.Time) (RiskScore, error) {
	return newRiskScore(id, reviewID, factors, weights, &overall, calculatedAt)
}

func newRiskScore(id, reviewID string, factors RiskFactors, weights RiskWeights, overall *float64, calculatedAt time.Time) (RiskScore, error) {
	if id == "" {
		return RiskScore{}, NewValidationError("risk score id cannot be empty")
	}
	if reviewID == "" {
		return RiskScore{}, NewValidationError("review id cannot be empty")
	}
	if err := factors.Validate(); err != nil {
		return RiskScore{}, err
	}
	if err := weights.Validate(); err != nil {
		return RiskScore{}, err
	}

	total := factors.weighted(weights)
	if overall != nil {
		total = *overall
	}
	if !inScoreRange(total) {
		return RiskScore{}, NewValidationError("overall score must be between 0 and 100, got %v", total)
	}

	return RiskScore{
		ID:           id,
		ReviewID:     reviewID,
		CalculatedAt: calculatedAt,
		Factors:      factors,
		Weights:      weights,
		Overall:      total,
		Level:        RiskLevelFor(total),
	}, nil
}

// FactorUpdate carries optional replacements for individual factors.
type FactorUpdate struct {
	CodeComplexity     *float64
	SecurityImpact     *float64
	CriticalFiles      *float64
	DataflowConfidence *float64
	TestCoverageDelta  *float64
}

// UpdateFactors returns a recomputed score keeping id, review and weights.
func (s RiskScore) UpdateFactors(u FactorUpdate, at time.Time) (RiskScore, error) {
	f := s.Factors
	if u.CodeComplexity != nil {
		f.CodeComplexity = *u.CodeComplexity
	}
	if u.SecurityImpact != nil {
		f.SecurityImpact = *u.SecurityImpact
	}
	if u.CriticalFiles != nil {
		f.CriticalFiles = *u.CriticalFiles
	}
	if u.DataflowConfidence != nil {
		f.DataflowConfidence = *u.DataflowConfidence
	}
	if u.TestCoverageDelta != nil {
		f.TestCoverageDelta = *u.TestCoverageDelta
	}
	out, err := NewRiskScore(s.ID, s.ReviewID, f, s.Weights, at)
	if err != nil {
		return s, err
	}
	out.AnalysisDetails = s.AnalysisDetails
	return out, nil
}

func (s RiskScore) NeedsSecurityReview() bool {
	return s.Factors.SecurityImpact > 50 || s.Overall > 70
}

func (s RiskScore) NeedsQAReview() bool {
	return s.Factors.TestCoverageDelta > 40 || s.Overall > 60
}

func (s RiskScore) WithDetails(details map[string]string) RiskScore {
	s.AnalysisDetails = make(map[string]string, len(details))
	for k, v := range details {
		s.AnalysisDetails[k] = v
	}
	return s
}
