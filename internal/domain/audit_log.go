package domain

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

type AuditAction string

const (
	AuditActionCreate             AuditAction = "create"
	AuditActionUpdate             AuditAction = "update"
	AuditActionDelete             AuditAction = "delete"
	AuditActionApprove            AuditAction = "approve"
	AuditActionReject             AuditAction = "reject"
	AuditActionRequestChanges     AuditAction = "request_changes"
	AuditActionMerge              AuditAction = "merge"
	AuditActionClose              AuditAction = "close"
	AuditActionComment            AuditAction = "comment"
	AuditActionResolveComment     AuditAction = "resolve_comment"
	AuditActionEnvironmentCreate  AuditAction = "environment_create"
	AuditActionEnvironmentDestroy AuditAction = "environment_destroy"
	AuditActionAssignReviewer     AuditAction = "assign_reviewer"
	AuditActionEscalate           AuditAction = "escalate"
)

var auditActions = []AuditAction{
	AuditActionCreate,
	AuditActionUpdate,
	AuditActionDelete,
	AuditActionApprove,
	AuditActionReject,
	AuditActionRequestChanges,
	AuditActionMerge,
	AuditActionClose,
	AuditActionComment,
	AuditActionResolveComment,
	AuditActionEnvironmentCreate,
	AuditActionEnvironmentDestroy,
	AuditActionAssignReviewer,
	AuditActionEscalate,
}

const (
	EntityTypeReview      = "CodeReview"
	EntityTypeComment     = "Comment"
	EntityTypeEnvironment = "Environment"
	EntityTypeUser        = "User"
)

// AuditLog is an append-only record of a change.
type AuditLog struct {
	ID          string         `json:"id"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	Action      AuditAction    `json:"action"`
	ActorID     string         `json:"actor_id"`
	CreatedAt   time.Time      `json:"created_at"`
	OldState    map[string]any `json:"old_state,omitempty"`
	NewState    map[string]any `json:"new_state,omitempty"`
	Changes     map[string]any `json:"changes,omitempty"`
	Description string         `json:"description,omitempty"`
}

type AuditLogParams struct {
	OldState    map[string]any
	NewState    map[string]any
	Changes     map[string]any
	Description string
}

func NewAuditLog(id, entityType, entityID string, action AuditAction, actorID string, p AuditLogParams, createdAt time.Time) (AuditLog, error) {
	if id == "" {
		return AuditLog{}, NewValidationError("audit log id cannot be empty")
	}
	if entityType == "" {
		return AuditLog{}, NewValidationError("entity type cannot be empty")
	}
	if entityID == "" {
		return AuditLog{}, NewValidationError("entity id cannot be empty")
	}
	if actorID == "" {
		return AuditLog{}, NewValidationError("actor id cannot be empty")
	}
	if !slices.Contains(auditActions, action) {
		return AuditLog{}, NewValidationError("unknown audit action %q", action)
	}
	return AuditLog{
		ID:          id,
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		ActorID:     actorID,
		CreatedAt:   createdAt,
		OldState:    maps.Clone(p.OldState),
		NewState:    maps.Clone(p.NewState),
		Changes:     maps.Clone(p.Changes),
		Description: p.Description,
	}, nil
}

func (a AuditLog) IsStateChange() bool {
	switch a.Action {
	case AuditActionUpdate, AuditActionApprove, AuditActionReject:
		return true
	}
	return false
}

func (a AuditLog) Summary() string {
	if a.Description != "" {
		return a.Description
	}
	return fmt.Sprintf("%s %s %s %s", a.ActorID, a.Action, a.EntityType, a.EntityID)
}
