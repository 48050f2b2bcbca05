package service

import (
	"math"
	"sort"
	"time"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

const (
	DefaultEscalationThreshold  = 4 * time.Hour
	DefaultNotificationDebounce = time.Hour
)

type SLAConfig struct {
	HoursByPriority      map[domain.Priority]int
	DefaultHours         int
	EscalationThreshold  time.Duration
	NotificationDebounce time.Duration
}

func DefaultSLAConfig() SLAConfig {
	return SLAConfig{
		HoursByPriority: map[domain.Priority]int{
			domain.PriorityCritical: 4,
			domain.PriorityHigh:     24,
			domain.PriorityMedium:   48,
			domain.PriorityLow:      72,
		},
		DefaultHours:         domain.DefaultSLAHours,
		EscalationThreshold:  DefaultEscalationThreshold,
		NotificationDebounce: DefaultNotificationDebounce,
	}
}

// SLAStatus is the per-review report returned by CheckStatus.
type SLAStatus struct {
	ReviewID        string     `json:"review_id"`
	Deadline        *time.Time `json:"sla_deadline,omitempty"`
	IsOverdue       bool       `json:"is_overdue"`
	HoursRemaining  *float64   `json:"hours_remaining,omitempty"`
	NeedsEscalation bool       `json:"needs_escalation"`
	EscalationLevel int        `json:"escalation_level"`
}

type SLASummary struct {
	TotalActive          int     `json:"total_active"`
	OnTime               int     `json:"on_time"`
	AtRisk               int     `json:"at_risk"`
	Overdue              int     `json:"overdue"`
	Escalated            int     `json:"escalated"`
	EscalationPercentage float64 `json:"escalation_percentage"`
}

// SLAService computes deadlines and escalation signals. It never writes;
// callers persist the reviews it returns.
type SLAService struct {
	cfg     SLAConfig
	nowFunc func() time.Time
}

func NewSLAService(cfg SLAConfig, nowFunc func() time.Time) *SLAService {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	def := DefaultSLAConfig()
	if cfg.HoursByPriority == nil {
		cfg.HoursByPriority = def.HoursByPriority
	}
	if cfg.DefaultHours <= 0 {
		cfg.DefaultHours = def.DefaultHours
	}
	if cfg.EscalationThreshold <= 0 {
		cfg.EscalationThreshold = def.EscalationThreshold
	}
	if cfg.NotificationDebounce <= 0 {
		cfg.NotificationDebounce = def.NotificationDebounce
	}
	return &SLAService{
		cfg:     cfg,
		nowFunc: nowFunc,
	}
}

func (s *SLAService) SLAHours(p domain.Priority) int {
	if h, ok := s.cfg.HoursByPriority[p]; ok && h > 0 {
		return h
	}
	return s.cfg.DefaultHours
}

// SetDeadline sets the SLA limit for the review's priority. The deadline is
// anchored to the review's creation time.
func (s *SLAService) SetDeadline(r domain.Review) domain.Review {
	return r.WithSLADeadline(s.SLAHours(r.Priority), s.nowFunc())
}

func (s *SLAService) IsOverdue(r domain.Review) bool {
	if r.SLADeadline == nil {
		return false
	}
	return s.nowFunc().After(*r.SLADeadline)
}

// HoursRemaining is +Inf when no deadline is set and negative once overdue.
func (s *SLAService) HoursRemaining(r domain.Review) float64 {
	if r.SLADeadline == nil {
		return math.Inf(1)
	}
	return r.SLADeadline.Sub(s.nowFunc()).Hours()
}

func (s *SLAService) NeedsEscalation(r domain.Review) bool {
	return s.needsEscalation(r, s.cfg.EscalationThreshold)
}

func (s *SLAService) needsEscalation(r domain.Review, threshold time.Duration) bool {
	if r.Status.IsTerminal() {
		return false
	}
	return s.HoursRemaining(r) <= threshold.Hours()
}

func (s *SLAService) Escalate(r domain.Review) domain.Review {
	return r.Escalate(s.nowFunc())
}

func (s *SLAService) EscalateFrom(r domain.Review, level int) domain.Review {
	return r.EscalateFrom(level, s.nowFunc())
}

func (s *SLAService) ShouldSendEscalationNotification(r domain.Review) bool {
	if !s.NeedsEscalation(r) {
		return false
	}
	if r.EscalationNotifiedAt != nil && s.nowFunc().Sub(*r.EscalationNotifiedAt) < s.cfg.NotificationDebounce {
		return false
	}
	return true
}

func (s *SLAService) MarkEscalationNotified(r domain.Review) domain.Review {
	return r.MarkEscalationNotified(s.nowFunc())
}

func (s *SLAService) CheckStatus(r domain.Review) SLAStatus {
	st := SLAStatus{
		ReviewID:        r.ID,
		Deadline:        r.SLADeadline,
		IsOverdue:       s.IsOverdue(r),
		NeedsEscalation: s.NeedsEscalation(r),
		EscalationLevel: r.EscalationLevel,
	}
	if hours := s.HoursRemaining(r); !math.IsInf(hours, 1) {
		st.HoursRemaining = &hours
	}
	return st
}

// FindOverdue returns active overdue reviews ordered by deadline.
func (s *SLAService) FindOverdue(reviews []domain.Review) []domain.Review {
	now := s.nowFunc()
	out := make([]domain.Review, 0)
	for _, r := range reviews {
		if r.Status.IsTerminal() {
			continue
		}
		if s.IsOverdue(r) {
			out = append(out, r)
		}
	}

	deadline := func(r domain.Review) time.Time {
		if r.SLADeadline == nil {
			return now
		}
		return *r.SLADeadline
	}
	sort.SliceStable(out, func(i, j int) bool {
		return deadline(out[i]).Before(deadline(out[j]))
	})
	return out
}

// FindNeedingEscalation returns reviews at exactly level that need escalation.
func (s *SLAService) FindNeedingEscalation(reviews []domain.Review, level int) []domain.Review {
	out := make([]domain.Review, 0)
	for _, r := range reviews {
		if r.EscalationLevel == level && s.NeedsEscalation(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s *SLAService) Summary(reviews []domain.Review) SLASummary {
	var sum SLASummary
	for _, r := range reviews {
		if r.Status.IsTerminal() {
			continue
		}
		switch {
		case s.IsOverdue(r):
			sum.Overdue++
		case s.NeedsEscalation(r):
			sum.AtRisk++
		default:
			sum.OnTime++
		}
		if r.IsEscalated {
			sum.Escalated++
		}
	}
	sum.TotalActive = sum.OnTime + sum.AtRisk + sum.Overdue
	if sum.TotalActive > 0 {
		sum.EscalationPercentage = float64(sum.Escalated) / float64(sum.TotalActive) * 100
	}
	return sum
}
