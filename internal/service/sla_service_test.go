package service

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testUser(t *testing.T, id string, roles ...domain.Role) domain.User {
	t.Helper()
	u, err := domain.NewUser(id, id, id+"@example.com", "", roles, testNow)
	require.NoError(t, err)
	return u
}

func testReview(t *testing.T, id string, createdAt time.Time) domain.Review {
	t.Helper()
	r, err := domain.NewReview(id, "Review "+id, "", "feature/"+id, "main", testUser(t, "alice", domain.RoleDeveloper), createdAt)
	require.NoError(t, err)
	return r
}

func withDeadline(r domain.Review, deadline time.Time) domain.Review {
	r.SLADeadline = &deadline
	return r
}

func TestSLAService_SLAHours(t *testing.T) {
	sla := NewSLAService(SLAConfig{}, fixedNow(testNow))

	tests := []struct {
		priority domain.Priority
		want     int
	}{
		{domain.PriorityCritical, 4},
		{domain.PriorityHigh, 24},
		{domain.PriorityMedium, 48},
		{domain.PriorityLow, 72},
		{domain.Priority("unknown"), 48},
	}
	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			assert.Equal(t, tt.want, sla.SLAHours(tt.priority))
		})
	}
}

func TestSLAService_SetDeadlineAnchorsToCreation(t *testing.T) {
	created := testNow.Add(-10 * time.Hour)
	sla := NewSLAService(SLAConfig{}, fixedNow(testNow))

	r := testReview(t, "r1", created).SetPriority(domain.PriorityHigh, created)
	r = sla.SetDeadline(r)

	require.NotNil(t, r.SLADeadline)
	assert.Equal(t, 24, r.SLAHoursLimit)
	assert.Equal(t, created.Add(24*time.Hour), *r.SLADeadline)
}

func TestSLAService_IsOverdueBoundary(t *testing.T) {
	deadline := testNow
	r := withDeadline(testReview(t, "r1", testNow.Add(-time.Hour)), deadline)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "before deadline", now: deadline.Add(-time.Nanosecond), want: false},
		{name: "at deadline", now: deadline, want: false},
		{name: "after deadline", now: deadline.Add(time.Nanosecond), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sla := NewSLAService(SLAConfig{}, fixedNow(tt.now))
			assert.Equal(t, tt.want, sla.IsOverdue(r))
		})
	}

	noDeadline := testReview(t, "r2", testNow)
	sla := NewSLAService(SLAConfig{}, fixedNow(testNow.Add(1000*time.Hour)))
	assert.False(t, sla.IsOverdue(noDeadline))
	assert.True(t, math.IsInf(sla.HoursRemaining(noDeadline), 1))
}

func TestSLAService_NeedsEscalation(t *testing.T) {
	sla := NewSLAService(SLAConfig{}, fixedNow(testNow))

	tests := []struct {
		name   string
		review domain.Review
		want   bool
	}{
		{
			name:   "plenty of time",
			review: withDeadline(testReview(t, "r1", testNow), testNow.Add(10*time.Hour)),
			want:   false,
		},
		{
			name:   "inside threshold",
			review: withDeadline(testReview(t, "r2", testNow), testNow.Add(2*time.Hour)),
			want:   true,
		},
		{
			name:   "exactly at threshold",
			review: withDeadline(testReview(t, "r3", testNow), testNow.Add(4*time.Hour)),
			want:   true,
		},
		{
			name:   "terminal review",
			review: withDeadline(testReview(t, "r4", testNow), testNow.Add(-time.Hour)).Close(testNow),
			want:   false,
		},
		{
			name:   "no deadline",
			review: testReview(t, "r5", testNow),
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sla.NeedsEscalation(tt.review))
		})
	}
}

func TestSLAService_NotificationDebounce(t *testing.T) {
	r := withDeadline(testReview(t, "r1", testNow), testNow.Add(time.Hour))

	tests := []struct {
		name       string
		notifiedAt *time.Time
		want       bool
	}{
		{name: "never notified", want: true},
		{name: "notified 30 minutes ago", notifiedAt: ptr(testNow.Add(-30 * time.Minute)), want: false},
		{name: "notified two hours ago", notifiedAt: ptr(testNow.Add(-2 * time.Hour)), want: true},
	}
	sla := NewSLAService(SLAConfig{}, fixedNow(testNow))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			review := r
			review.EscalationNotifiedAt = tt.notifiedAt
			assert.Equal(t, tt.want, sla.ShouldSendEscalationNotification(review))
		})
	}

	onTime := withDeadline(testReview(t, "r2", testNow), testNow.Add(20*time.Hour))
	assert.False(t, sla.ShouldSendEscalationNotification(onTime))
}

func TestSLAService_Escalate(t *testing.T) {
	sla := NewSLAService(SLAConfig{}, fixedNow(testNow))
	r := testReview(t, "r1", testNow)

	once := sla.Escalate(r)
	twice := sla.Escalate(once)
	assert.Equal(t, 1, once.EscalationLevel)
	assert.Equal(t, 2, twice.EscalationLevel)
	assert.True(t, twice.IsEscalated)
	require.NotNil(t, twice.EscalationNotifiedAt)
	assert.Equal(t, testNow, *twice.EscalationNotifiedAt)
	assert.Zero(t, r.EscalationLevel)

	assert.Equal(t, 4, sla.EscalateFrom(r, 3).EscalationLevel)
}

func TestSLAService_CheckStatus(t *testing.T) {
	sla := NewSLAService(SLAConfig{}, fixedNow(testNow))
	r := withDeadline(testReview(t, "r1", testNow), testNow.Add(-90*time.Minute))

	st := sla.CheckStatus(r)
	assert.Equal(t, "r1", st.ReviewID)
	assert.True(t, st.IsOverdue)
	assert.True(t, st.NeedsEscalation)
	require.NotNil(t, st.HoursRemaining)
	assert.InDelta(t, -1.5, *st.HoursRemaining, 0.0001)

	assert.Nil(t, sla.CheckStatus(testReview(t, "r2", testNow)).HoursRemaining)
}

func TestSLAService_FindOverdue(t *testing.T) {
	sla := NewSLAService(SLAConfig{}, fixedNow(testNow))
	reviews := []domain.Review{
		withDeadline(testReview(t, "late", testNow), testNow.Add(-time.Hour)),
		withDeadline(testReview(t, "later", testNow), testNow.Add(-5*time.Hour)),
		withDeadline(testReview(t, "fine", testNow), testNow.Add(time.Hour)),
		withDeadline(testReview(t, "done", testNow), testNow.Add(-9*time.Hour)).Close(testNow),
	}

	got := sla.FindOverdue(reviews)
	require.Len(t, got, 2)
	assert.Equal(t, "later", got[0].ID)
	assert.Equal(t, "late", got[1].ID)
}

func TestSLAService_FindNeedingEscalation(t *testing.T) {
	sla := NewSLAService(SLAConfig{}, fixedNow(testNow))
	atZero := withDeadline(testReview(t, "a", testNow), testNow.Add(time.Hour))
	atOne := withDeadline(testReview(t, "b", testNow), testNow.Add(time.Hour))
	atOne.EscalationLevel = 1
	calm := withDeadline(testReview(t, "c", testNow), testNow.Add(20*time.Hour))

	got := sla.FindNeedingEscalation([]domain.Review{atZero, atOne, calm}, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestSLAService_Summary(t *testing.T) {
	sla := NewSLAService(SLAConfig{}, fixedNow(testNow))
	overdue := withDeadline(testReview(t, "r1", testNow), testNow.Add(-time.Hour))
	overdue.IsEscalated = true
	reviews := []domain.Review{
		overdue,
		withDeadline(testReview(t, "r2", testNow), testNow.Add(2*time.Hour)),
		withDeadline(testReview(t, "r3", testNow), testNow.Add(10*time.Hour)),
		withDeadline(testReview(t, "r4", testNow), testNow.Add(-time.Hour)).Close(testNow),
	}

	sum := sla.Summary(reviews)
	assert.Equal(t, 3, sum.TotalActive)
	assert.Equal(t, 1, sum.Overdue)
	assert.Equal(t, 1, sum.AtRisk)
	assert.Equal(t, 1, sum.OnTime)
	assert.Equal(t, 1, sum.Escalated)
	assert.InDelta(t, 100.0/3, sum.EscalationPercentage, 0.0001)

	assert.Zero(t, sla.Summary(nil).EscalationPercentage)
}

func ptr[T any](v T) *T { return &v }
