package mocks

import (
	"context"
	"slices"
	"sync"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

type Notification struct {
	Kind       string
	ReviewID   string
	Recipients []string
}

type MockNotifier struct {
	Err error

	mu   sync.Mutex
	sent []Notification
}

func (m *MockNotifier) ReviewAssigned(ctx context.Context, r domain.Review, recipients []string) error {
	return m.record("assigned", r, recipients)
}

func (m *MockNotifier) ReviewReminder(ctx context.Context, r domain.Review, recipients []string) error {
	return m.record("reminder", r, recipients)
}

func (m *MockNotifier) ReviewEscalation(ctx context.Context, r domain.Review, recipients []string) error {
	return m.record("escalation", r, recipients)
}

func (m *MockNotifier) ReviewCompleted(ctx context.Context, r domain.Review, recipients []string) error {
	return m.record("completed", r, recipients)
}

// Sent returns the notifications attempted so far, including failed ones.
func (m *MockNotifier) Sent() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sent)
}

// SentOfKind filters Sent by kind.
func (m *MockNotifier) SentOfKind(kind string) []Notification {
	var out []Notification
	for _, n := range m.Sent() {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (m *MockNotifier) record(kind string, r domain.Review, recipients []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, Notification{Kind: kind, ReviewID: r.ID, Recipients: slices.Clone(recipients)})
	return m.Err
}
