package domain

import (
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestReview(t *testing.T) Review {
	t.Helper()
	requester, err := NewUser("u-req", "requester", "req@example.com", "", []Role{RoleDeveloper}, testNow)
	require.NoError(t, err)
	r, err := NewReview("rev-1", "Add feature", "Adds a new feature", "feature/x", "main", requester, testNow)
	require.NoError(t, err)
	return r
}

func TestNewReview(t *testing.T) {
	requester, err := NewUser("u-req", "requester", "req@example.com", "", nil, testNow)
	require.NoError(t, err)

	tests := []struct {
		name    string
		id      string
		source  string
		target  string
		wantErr bool
	}{
		{name: "valid review", id: "r1", source: "feature", target: "main"},
		{name: "empty id", id: "", source: "feature", target: "main", wantErr: true},
		{name: "empty source branch", id: "r1", source: "", target: "main", wantErr: true},
		{name: "empty target branch", id: "r1", source: "feature", target: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReview(tt.id, "title", "description", tt.source, tt.target, requester, testNow)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ReviewStatusOpen, r.Status)
			assert.Equal(t, PriorityMedium, r.Priority)
			assert.Equal(t, 1, r.RequiredApprovals)
			assert.Equal(t, 0, r.CurrentApprovals)
			assert.Equal(t, DefaultSLAHours, r.SLAHoursLimit)
			assert.Nil(t, r.SLADeadline)
		})
	}
}

func TestReview_Approve(t *testing.T) {
	later := testNow.Add(time.Hour)

	tests := []struct {
		name           string
		setup          func(r Review) Review
		userID         string
		wantErr        bool
		validateResult func(t *testing.T, r Review)
	}{
		{
			name:   "single approval reaches requirement",
			setup:  func(r Review) Review { return r },
			userID: "u1",
			validateResult: func(t *testing.T, r Review) {
				assert.Equal(t, ReviewStatusApproved, r.Status)
				assert.Equal(t, []string{"u1"}, r.Approvers)
				assert.Equal(t, 1, r.CurrentApprovals)
				assert.Equal(t, later, r.UpdatedAt)
			},
		},
		{
			name: "approval below requirement keeps status",
			setup: func(r Review) Review {
				r, _ = r.SetRequiredApprovals(2, testNow)
				return r
			},
			userID: "u1",
			validateResult: func(t *testing.T, r Review) {
				assert.Equal(t, ReviewStatusOpen, r.Status)
				assert.Equal(t, 1, r.CurrentApprovals)
			},
		},
		{
			name: "approval removes the user from rejectors",
			setup: func(r Review) Review {
				r, _ = r.SetRequiredApprovals(2, testNow)
				r, _ = r.StartReview(testNow)
				r.Rejectors = []string{"u1"}
				return r
			},
			userID: "u1",
			validateResult: func(t *testing.T, r Review) {
				assert.Empty(t, r.Rejectors)
				assert.Equal(t, []string{"u1"}, r.Approvers)
				assert.Equal(t, ReviewStatusUnderReview, r.Status)
			},
		},
		{
			name:    "cannot approve merged review",
			setup:   func(r Review) Review { r.Status = ReviewStatusMerged; return r },
			userID:  "u1",
			wantErr: true,
		},
		{
			name:    "cannot approve needs_work review",
			setup:   func(r Review) Review { return r.RequestChanges("u2", testNow) },
			userID:  "u1",
			wantErr: true,
		},
		{
			name:    "cannot approve draft review",
			setup:   func(r Review) Review { r.Status = ReviewStatusDraft; return r },
			userID:  "u1",
			wantErr: true,
		},
		{
			name: "cannot approve already approved review",
			setup: func(r Review) Review {
				r, _ = r.Approve("u2", testNow)
				return r
			},
			userID:  "u1",
			wantErr: true,
		},
		{
			name: "cannot approve rejected review",
			setup: func(r Review) Review {
				r, _ = r.Reject("u2", testNow)
				return r
			},
			userID:  "u1",
			wantErr: true,
		},
		{
			name:    "cannot approve closed review",
			setup:   func(r Review) Review { return r.Close(testNow) },
			userID:  "u1",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.setup(newTestReview(t))
			out, err := r.Approve(tt.userID, later)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrIllegalState))
				assert.Equal(t, r, out)
				return
			}
			require.NoError(t, err)
			tt.validateResult(t, out)
		})
	}
}

func TestReview_ApproveDoesNotMutateReceiver(t *testing.T) {
	r := newTestReview(t)
	_, err := r.Approve("u1", testNow)
	require.NoError(t, err)

	assert.Empty(t, r.Approvers)
	assert.Equal(t, ReviewStatusOpen, r.Status)
}

func TestReview_ApproveIsIdempotentPerUser(t *testing.T) {
	r := newTestReview(t)
	r, err := r.SetRequiredApprovals(3, testNow)
	require.NoError(t, err)

	r, err = r.Approve("u1", testNow)
	require.NoError(t, err)
	r, err = r.Approve("u1", testNow)
	require.NoError(t, err)

	assert.Equal(t, 1, r.CurrentApprovals)
	assert.Equal(t, ReviewStatusOpen, r.Status)
}

func TestReview_Reject(t *testing.T) {
	r := newTestReview(t)
	r, err := r.SetRequiredApprovals(2, testNow)
	require.NoError(t, err)
	r, err = r.Approve("u1", testNow)
	require.NoError(t, err)

	out, err := r.Reject("u1", testNow)
	require.NoError(t, err)
	assert.Equal(t, ReviewStatusRejected, out.Status)
	assert.Equal(t, []string{"u1"}, out.Rejectors)
	assert.Empty(t, out.Approvers)
	assert.Equal(t, 0, out.CurrentApprovals)

	_, err = out.Reject("u2", testNow)
	assert.True(t, errors.Is(err, ErrIllegalState))
}

func TestReview_RejectRequiresActiveStatus(t *testing.T) {
	for _, st := range []ReviewStatus{
		ReviewStatusDraft,
		ReviewStatusNeedsWork,
		ReviewStatusApproved,
		ReviewStatusRejected,
		ReviewStatusMerged,
		ReviewStatusClosed,
	} {
		t.Run(string(st), func(t *testing.T) {
			r := newTestReview(t)
			r.Status = st
			out, err := r.Reject("u1", testNow.Add(time.Hour))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrIllegalState))
			assert.Equal(t, r, out)
		})
	}
}

func TestReview_MixedDecisionsKeepCountsConsistent(t *testing.T) {
	r := newTestReview(t)
	r, err := r.SetRequiredApprovals(5, testNow)
	require.NoError(t, err)

	steps := []struct {
		action string
		userID string
	}{
		{action: "approve", userID: "u1"},
		{action: "approve", userID: "u2"},
		{action: "changes", userID: "u1"},
		{action: "reopen"},
		{action: "approve", userID: "u1"},
		{action: "approve", userID: "u3"},
		{action: "changes", userID: "u3"},
		{action: "reopen"},
		{action: "approve", userID: "u3"},
		{action: "reject", userID: "u2"},
	}

	for i, step := range steps {
		switch step.action {
		case "approve":
			r, err = r.Approve(step.userID, testNow)
			require.NoError(t, err, "step %d", i)
		case "reject":
			r, err = r.Reject(step.userID, testNow)
			require.NoError(t, err, "step %d", i)
		case "changes":
			r = r.RequestChanges(step.userID, testNow)
		case "reopen":
			r.Status = ReviewStatusUnderReview
		}

		if r.CurrentApprovals != len(r.Approvers) {
			t.Fatalf("step %d: current approvals %d, approvers %v", i, r.CurrentApprovals, r.Approvers)
		}
		for _, id := range r.Approvers {
			if slices.Contains(r.Rejectors, id) {
				t.Fatalf("step %d: %s is both approver and rejector", i, id)
			}
		}
	}

	assert.Equal(t, ReviewStatusRejected, r.Status)
	assert.ElementsMatch(t, []string{"u1", "u3"}, r.Approvers)
	assert.Equal(t, []string{"u2"}, r.Rejectors)
	assert.NoError(t, r.Validate())
}

func TestReview_RequestChanges(t *testing.T) {
	r := newTestReview(t)
	r, err := r.Approve("u1", testNow)
	require.NoError(t, err)
	require.Equal(t, ReviewStatusApproved, r.Status)

	out := r.RequestChanges("u1", testNow)
	assert.Equal(t, ReviewStatusNeedsWork, out.Status)
	assert.Empty(t, out.Approvers)
	assert.Equal(t, []string{"u1"}, out.Rejectors)
	assert.Equal(t, 0, out.CurrentApprovals)
}

func TestReview_Merge(t *testing.T) {
	r := newTestReview(t)
	assert.False(t, r.CanMerge())

	_, err := r.Merge(testNow)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIllegalState))

	r, err = r.Approve("u1", testNow)
	require.NoError(t, err)
	assert.True(t, r.CanMerge())

	merged, err := r.Merge(testNow)
	require.NoError(t, err)
	assert.Equal(t, ReviewStatusMerged, merged.Status)
	assert.True(t, merged.Status.IsTerminal())
}

func TestReview_CloseFromAnyStatus(t *testing.T) {
	for _, st := range reviewStatuses {
		t.Run(string(st), func(t *testing.T) {
			r := newTestReview(t)
			r.Status = st
			assert.Equal(t, ReviewStatusClosed, r.Close(testNow).Status)
		})
	}
}

func TestReview_AssignReviewer(t *testing.T) {
	r := newTestReview(t)
	r, err := r.AssignReviewer("u2", testNow)
	require.NoError(t, err)
	r, err = r.AssignReviewer("u1", testNow)
	require.NoError(t, err)
	r, err = r.AssignReviewer("u2", testNow)
	require.NoError(t, err)

	assert.Equal(t, []string{"u1", "u2"}, r.Reviewers)
	assert.True(t, r.IsReviewer("u1"))
	assert.False(t, r.IsReviewer("u3"))

	_, err = r.AssignReviewer("", testNow)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestReview_UpdateStats(t *testing.T) {
	r := newTestReview(t)

	out, err := r.UpdateStats(3, 40, 10, testNow)
	require.NoError(t, err)
	assert.Equal(t, 3, out.FilesChanged)
	assert.Equal(t, 40, out.Additions)
	assert.Equal(t, 10, out.Deletions)

	_, err = r.UpdateStats(-1, 0, 0, testNow)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestReview_SetRiskScore(t *testing.T) {
	r := newTestReview(t)

	out, err := r.SetRiskScore(42.5, testNow)
	require.NoError(t, err)
	require.NotNil(t, out.RiskScore)
	assert.InDelta(t, 42.5, *out.RiskScore, 1e-9)
	assert.Nil(t, r.RiskScore)

	_, err = r.SetRiskScore(101, testNow)
	assert.True(t, errors.Is(err, ErrValidation))

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		out, err := r.SetRiskScore(bad, testNow)
		assert.True(t, errors.Is(err, ErrValidation), "score %v", bad)
		assert.Nil(t, out.RiskScore)
	}
}

func TestReview_WithSLADeadlineAnchorsToCreatedAt(t *testing.T) {
	r := newTestReview(t)
	out := r.WithSLADeadline(4, testNow.Add(30*time.Minute))

	require.NotNil(t, out.SLADeadline)
	assert.Equal(t, testNow.Add(4*time.Hour), *out.SLADeadline)
	assert.Equal(t, 4, out.SLAHoursLimit)
}

func TestReview_AddComment(t *testing.T) {
	r := newTestReview(t)
	out := r.AddComment(testNow).AddComment(testNow)
	assert.Equal(t, 2, out.CommentsCount)
	assert.Equal(t, 0, r.CommentsCount)
}

func TestReview_UpdateDetails(t *testing.T) {
	r := newTestReview(t)
	out, err := r.UpdateDetails("New title", "", testNow)
	require.NoError(t, err)
	assert.Equal(t, "New title", out.Title)
	assert.Equal(t, r.Description, out.Description)

	closed := r.Close(testNow)
	_, err = closed.UpdateDetails("x", "y", testNow)
	assert.True(t, errors.Is(err, ErrIllegalState))
}

func TestReview_ValidateApproversAndRejectorsDisjoint(t *testing.T) {
	r := newTestReview(t)
	r.Approvers = []string{"u1"}
	r.Rejectors = []string{"u1"}
	assert.True(t, errors.Is(r.Validate(), ErrValidation))
}

func TestPriority_Rank(t *testing.T) {
	assert.Less(t, PriorityLow.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityMedium.Rank(), PriorityHigh.Rank())
	assert.Less(t, PriorityHigh.Rank(), PriorityCritical.Rank())

	p, err := ParsePriority(" HIGH ")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, p)

	_, err = ParsePriority("urgent")
	assert.Error(t, err)
}

func TestReview_Escalate(t *testing.T) {
	r := newTestReview(t)
	at := testNow.Add(time.Hour)

	once := r.Escalate(at)
	assert.True(t, once.IsEscalated)
	assert.Equal(t, 1, once.EscalationLevel)
	require.NotNil(t, once.EscalationNotifiedAt)
	assert.Equal(t, at, *once.EscalationNotifiedAt)

	twice := once.Escalate(at)
	assert.Equal(t, 2, twice.EscalationLevel)

	jumped := once.EscalateFrom(5, at)
	assert.Equal(t, 6, jumped.EscalationLevel)

	fromCurrent := twice.EscalateFrom(0, at)
	assert.Equal(t, 3, fromCurrent.EscalationLevel)
	assert.Equal(t, 3, twice.EscalateFrom(-1, at).EscalationLevel)
	assert.False(t, r.IsEscalated)
}
