package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

// SystemActor is the actor recorded for changes made by background sweeps.
const SystemActor = "system"

type AuditService struct {
	logs    AuditLogRepository
	logger  *slog.Logger
	nowFunc func() time.Time
	newID   func() string
}

func NewAuditService(logs AuditLogRepository, logger *slog.Logger, nowFunc func() time.Time) *AuditService {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &AuditService{
		logs:    logs,
		logger:  logger,
		nowFunc: nowFunc,
		newID:   uuid.NewString,
	}
}

// Record appends an audit entry. Failures are logged and swallowed so an
// audit outage never rolls back a committed workflow change.
func (s *AuditService) Record(
	ctx context.Context,
	entityType string,
	entityID string,
	action domain.AuditAction,
	actorID string,
	params domain.AuditLogParams,
) {
	entry, err := domain.NewAuditLog(s.newID(), entityType, entityID, action, actorID, params, s.nowFunc())
	if err != nil {
		s.logger.Error("build audit entry", "error", err, "entity_type", entityType, "entity_id", entityID)
		return
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		s.logger.Error("append audit entry", "error", err, "entity_type", entityType, "entity_id", entityID)
		return
	}
	s.logger.Info("audit", "summary", entry.Summary(), "action", string(action), "actor_id", actorID)
}

func (s *AuditService) Trail(ctx context.Context, entityType, entityID string) ([]domain.AuditLog, error) {
	entries, err := s.logs.FindByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("find audit entries: %w", err)
	}
	return entries, nil
}

func (s *AuditService) ByActor(ctx context.Context, actorID string) ([]domain.AuditLog, error) {
	entries, err := s.logs.FindByActor(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("find audit entries by actor: %w", err)
	}
	return entries, nil
}

// reviewSnapshot is the state captured in audit entries for reviews.
func reviewSnapshot(r domain.Review) map[string]any {
	snap := map[string]any{
		"status":             string(r.Status),
		"priority":           string(r.Priority),
		"title":              r.Title,
		"reviewers":          r.Reviewers,
		"approvers":          r.Approvers,
		"rejectors":          r.Rejectors,
		"required_approvals": r.RequiredApprovals,
		"current_approvals":  r.CurrentApprovals,
		"escalation_level":   r.EscalationLevel,
	}
	if r.RiskScore != nil {
		snap["risk_score"] = *r.RiskScore
	}
	return snap
}

// diffSnapshots lists the keys whose values differ between two snapshots.
func diffSnapshots(oldState, newState map[string]any) map[string]any {
	changes := make(map[string]any)
	for k, nv := range newState {
		ov, ok := oldState[k]
		if !ok || fmt.Sprint(ov) != fmt.Sprint(nv) {
			changes[k] = map[string]any{"from": ov, "to": nv}
		}
	}
	return changes
}
