package mocks

import (
	"context"
	"sync"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

type MockProvisioner struct {
	CreateURL  string
	CreateErr  error
	StopErr    error
	DestroyErr error

	mu        sync.Mutex
	Created   []string
	Destroyed []string
}

func (m *MockProvisioner) Create(ctx context.Context, env domain.Environment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Created = append(m.Created, env.ID)
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	return m.CreateURL, nil
}

func (m *MockProvisioner) Start(ctx context.Context, envID string) error {
	return nil
}

func (m *MockProvisioner) Stop(ctx context.Context, envID string) error {
	return m.StopErr
}

func (m *MockProvisioner) Destroy(ctx context.Context, envID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Destroyed = append(m.Destroyed, envID)
	return m.DestroyErr
}

func (m *MockProvisioner) Status(ctx context.Context, envID string) (domain.EnvironmentStatus, error) {
	return domain.EnvironmentStatusRunning, nil
}

func (m *MockProvisioner) URL(ctx context.Context, envID string) (string, error) {
	return m.CreateURL, nil
}
