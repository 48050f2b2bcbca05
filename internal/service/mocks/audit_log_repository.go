package mocks

import (
	"context"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

// MockAuditLogRepository fails every call with the configured errors.
type MockAuditLogRepository struct {
	AppendErr error
	FindErr   error
}

func (m *MockAuditLogRepository) Append(ctx context.Context, entry domain.AuditLog) error {
	return m.AppendErr
}

func (m *MockAuditLogRepository) FindByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditLog, error) {
	return nil, m.FindErr
}

func (m *MockAuditLogRepository) FindByActor(ctx context.Context, actorID string) ([]domain.AuditLog, error) {
	return nil, m.FindErr
}
