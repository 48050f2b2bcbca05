package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

func assigned(t *testing.T, r domain.Review, ids ...string) domain.Review {
	t.Helper()
	for _, id := range ids {
		var err error
		r, err = r.AssignReviewer(id, testNow)
		require.NoError(t, err)
	}
	return r
}

func TestReviewPolicy_CanUserApprove(t *testing.T) {
	p := NewReviewPolicy(fixedNow(testNow))
	base := assigned(t, testReview(t, "r1", testNow), "bob", "sec", "qa")

	bob := testUser(t, "bob", domain.RoleReviewer)
	sec := testUser(t, "sec", domain.RoleSecurityEngineer)
	qa := testUser(t, "qa", domain.RoleQAEngineer)
	stranger := testUser(t, "zed", domain.RoleReviewer)

	tests := []struct {
		name   string
		user   domain.User
		review domain.Review
		want   bool
	}{
		{name: "assigned reviewer", user: bob, review: base, want: true},
		{name: "not assigned", user: stranger, review: base, want: false},
		{name: "requester", user: testUser(t, "alice"), review: assigned(t, base, "alice"), want: false},
		{name: "security required without role", user: bob, review: base.SetRiskFlags(true, false, testNow), want: false},
		{name: "security required with role", user: sec, review: base.SetRiskFlags(true, false, testNow), want: true},
		{name: "qa required with role", user: qa, review: base.SetRiskFlags(false, true, testNow), want: true},
		{name: "both required needs both roles", user: sec, review: base.SetRiskFlags(true, true, testNow), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.CanUserApprove(tt.user, tt.review))
		})
	}
}

func TestReviewPolicy_ViewAndMerge(t *testing.T) {
	p := NewReviewPolicy(fixedNow(testNow))
	r := assigned(t, testReview(t, "r1", testNow), "bob")

	alice := testUser(t, "alice")
	bob := testUser(t, "bob", domain.RoleReviewer)
	admin := testUser(t, "root", domain.RoleAdmin)
	other := testUser(t, "zed")

	assert.True(t, p.CanUserView(alice, r))
	assert.True(t, p.CanUserView(bob, r))
	assert.True(t, p.CanUserView(admin, r))
	assert.False(t, p.CanUserView(other, r))

	assert.True(t, p.CanUserMerge(alice, r))
	assert.True(t, p.CanUserMerge(admin, r))
	assert.False(t, p.CanUserMerge(bob, r))
}

func TestReviewPolicy_CalculateRequiredReviewers(t *testing.T) {
	p := NewReviewPolicy(fixedNow(testNow))
	r := testReview(t, "r1", testNow)

	users := []domain.User{
		testUser(t, "zz-rev", domain.RoleReviewer),
		testUser(t, "alice", domain.RoleReviewer, domain.RoleSecurityEngineer),
		testUser(t, "sec-2", domain.RoleSecurityEngineer),
		testUser(t, "sec-1", domain.RoleSecurityEngineer, domain.RoleQAEngineer),
		testUser(t, "ty-qa", domain.RoleQAEngineer),
		testUser(t, "rev-1", domain.RoleReviewer),
	}

	score := func(f domain.RiskFactors) domain.RiskScore {
		s, err := domain.NewRiskScore("s", "r1", f, domain.DefaultRiskWeights(), testNow)
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name  string
		score domain.RiskScore
		want  []string
	}{
		{name: "low risk picks lowest-id reviewer", score: score(domain.RiskFactors{}), want: []string{"rev-1"}},
		{name: "security only", score: score(domain.RiskFactors{SecurityImpact: 80}), want: []string{"sec-1"}},
		{name: "qa only", score: score(domain.RiskFactors{TestCoverageDelta: 90}), want: []string{"sec-1"}},
		{
			name:  "user holding security and qa roles is picked once",
			score: score(domain.RiskFactors{SecurityImpact: 100, TestCoverageDelta: 100}),
			want:  []string{"sec-1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.CalculateRequiredReviewers(r, tt.score, users)
			ids := make([]string, 0, len(got))
			for _, u := range got {
				ids = append(ids, u.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	assert.Empty(t, p.CalculateRequiredReviewers(r, score(domain.RiskFactors{}), []domain.User{testUser(t, "alice", domain.RoleReviewer)}))
}

func TestReviewPolicy_EstimateReviewTime(t *testing.T) {
	p := NewReviewPolicy(fixedNow(testNow))

	build := func(files, additions, deletions int, risk *float64, pr domain.Priority) domain.Review {
		r := testReview(t, "r1", testNow).SetPriority(pr, testNow)
		r, err := r.UpdateStats(files, additions, deletions, testNow)
		require.NoError(t, err)
		if risk != nil {
			r, err = r.SetRiskScore(*risk, testNow)
			require.NoError(t, err)
		}
		return r
	}

	tests := []struct {
		name   string
		review domain.Review
		want   int
	}{
		{name: "empty change", review: build(0, 0, 0, nil, domain.PriorityMedium), want: 15},
		{name: "small change", review: build(2, 30, 10, nil, domain.PriorityMedium), want: 25},
		{name: "medium change", review: build(4, 40, 20, nil, domain.PriorityLow), want: 50},
		{name: "large change", review: build(10, 150, 100, nil, domain.PriorityMedium), want: 95},
		{name: "huge risky change", review: build(10, 400, 200, ptr(75.0), domain.PriorityMedium), want: 250},
		{name: "high priority", review: build(1, 0, 0, nil, domain.PriorityHigh), want: 15},
		{name: "critical priority halves", review: build(1, 0, 0, nil, domain.PriorityCritical), want: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.EstimateReviewTime(tt.review))
		})
	}
}

func TestReviewPolicy_ShouldEscalate(t *testing.T) {
	created := testNow.Add(-2 * time.Hour)
	p := NewReviewPolicy(fixedNow(testNow))

	risky, err := testReview(t, "r1", created).SetRiskScore(80, created)
	require.NoError(t, err)
	urgent := testReview(t, "r2", created).SetPriority(domain.PriorityHigh, created)
	calm := testReview(t, "r3", created)
	fresh, err := testReview(t, "r4", testNow).SetRiskScore(80, testNow)
	require.NoError(t, err)
	approved := assigned(t, urgent, "bob")
	approved, err = approved.Approve("bob", testNow)
	require.NoError(t, err)

	assert.True(t, p.ShouldEscalate(risky))
	assert.True(t, p.ShouldEscalate(urgent))
	assert.False(t, p.ShouldEscalate(calm))
	assert.False(t, p.ShouldEscalate(fresh))
	assert.False(t, p.ShouldEscalate(approved))
}

func TestReviewPolicy_MissingRoleApprovals(t *testing.T) {
	p := NewReviewPolicy(fixedNow(testNow))
	r := assigned(t, testReview(t, "r1", testNow), "bob", "sec").SetRiskFlags(true, true, testNow)
	r, err := r.SetRequiredApprovals(2, testNow)
	require.NoError(t, err)
	r, err = r.Approve("sec", testNow)
	require.NoError(t, err)

	approvers := []domain.User{testUser(t, "sec", domain.RoleSecurityEngineer)}
	assert.Equal(t, []domain.Role{domain.RoleQAEngineer}, p.MissingRoleApprovals(r, approvers))

	approvers = append(approvers, testUser(t, "bob", domain.RoleQAEngineer))
	assert.Equal(t, []domain.Role{domain.RoleQAEngineer}, p.MissingRoleApprovals(r, approvers), "bob has not approved")

	r, err = r.Approve("bob", testNow)
	require.NoError(t, err)
	assert.Empty(t, p.MissingRoleApprovals(r, approvers))
}
