package mocks

import (
	"sync"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

type MockMetrics struct {
	mu            sync.Mutex
	Transitions   map[domain.AuditAction]int
	Escalations   []int
	Notifications map[string]int
	Snapshots     int
}

func (m *MockMetrics) ReviewTransition(action domain.AuditAction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Transitions == nil {
		m.Transitions = make(map[domain.AuditAction]int)
	}
	m.Transitions[action]++
}

func (m *MockMetrics) EscalationRaised(level int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Escalations = append(m.Escalations, level)
}

func (m *MockMetrics) NotificationSent(kind string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Notifications == nil {
		m.Notifications = make(map[string]int)
	}
	m.Notifications[kind]++
}

func (m *MockMetrics) SLASnapshot(onTime, atRisk, overdue, escalated int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Snapshots++
}
