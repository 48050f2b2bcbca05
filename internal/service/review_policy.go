package service

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

const highRiskThreshold = 70.0

// ReviewPolicy holds the cross-entity rules: who may act on a review, who
// must review it and how long it should take.
type ReviewPolicy struct {
	nowFunc func() time.Time
}

func NewReviewPolicy(nowFunc func() time.Time) *ReviewPolicy {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &ReviewPolicy{nowFunc: nowFunc}
}

func (p *ReviewPolicy) CanUserApprove(user domain.User, r domain.Review) bool {
	if !r.IsReviewer(user.ID) {
		return false
	}
	if r.SecurityApprovalRequired && !user.HasRole(domain.RoleSecurityEngineer) {
		return false
	}
	if r.QAApprovalRequired && !user.HasRole(domain.RoleQAEngineer) {
		return false
	}
	return user.ID != r.Requester.ID
}

func (p *ReviewPolicy) CanUserView(user domain.User, r domain.Review) bool {
	return user.ID == r.Requester.ID || r.IsReviewer(user.ID) || user.IsAdmin()
}

func (p *ReviewPolicy) CanUserMerge(user domain.User, r domain.Review) bool {
	return p.CanUserManage(user, r)
}

// CanUserManage covers editing, closing and assigning reviewers.
func (p *ReviewPolicy) CanUserManage(user domain.User, r domain.Review) bool {
	return user.ID == r.Requester.ID || user.IsAdmin()
}

// CalculateRequiredReviewers picks the first matching user per needed role.
// Candidates are scanned in user id order, so the result is stable for the
// same input. The requester is never picked, and a user matching several
// roles appears once.
func (p *ReviewPolicy) CalculateRequiredReviewers(r domain.Review, score domain.RiskScore, available []domain.User) []domain.User {
	candidates := slices.Clone(available)
	slices.SortFunc(candidates, func(a, b domain.User) int {
		return strings.Compare(a.ID, b.ID)
	})

	picked := make([]domain.User, 0, 2)
	pick := func(role domain.Role) {
		for _, u := range candidates {
			if u.ID == r.Requester.ID || !u.HasRole(role) {
				continue
			}
			if !slices.ContainsFunc(picked, func(x domain.User) bool { return x.ID == u.ID }) {
				picked = append(picked, u)
			}
			return
		}
	}

	if score.NeedsSecurityReview() {
		pick(domain.RoleSecurityEngineer)
	}
	if score.NeedsQAReview() {
		pick(domain.RoleQAEngineer)
	}
	if len(picked) == 0 {
		pick(domain.RoleReviewer)
	}
	return picked
}

// EstimateReviewTime returns the expected review effort in whole minutes.
func (p *ReviewPolicy) EstimateReviewTime(r domain.Review) int {
	minutes := 15.0 + 5.0*float64(r.FilesChanged)

	switch changed := r.Additions + r.Deletions; {
	case changed > 500:
		minutes += 60
	case changed > 200:
		minutes += 30
	case changed > 50:
		minutes += 15
	}

	if r.RiskScore != nil && *r.RiskScore > highRiskThreshold {
		minutes *= 2
	}

	switch r.Priority {
	case domain.PriorityHigh:
		minutes *= 0.75
	case domain.PriorityCritical:
		minutes *= 0.5
	}

	return int(math.Floor(minutes))
}

// ShouldEscalate is the aging heuristic: the review has waited more than
// twice its estimate and is either risky or urgent. It is independent of
// SLA deadlines.
func (p *ReviewPolicy) ShouldEscalate(r domain.Review) bool {
	if r.Status == domain.ReviewStatusApproved || r.Status == domain.ReviewStatusMerged {
		return false
	}
	age := p.nowFunc().Sub(r.CreatedAt)
	limit := time.Duration(2*p.EstimateReviewTime(r)) * time.Minute
	if age <= limit {
		return false
	}
	highRisk := r.RiskScore != nil && *r.RiskScore > highRiskThreshold
	return highRisk || r.Priority.IsUrgent()
}

// MissingRoleApprovals lists the roles the review requires that no approver
// holds. approvers must be the resolved users of r.Approvers.
func (p *ReviewPolicy) MissingRoleApprovals(r domain.Review, approvers []domain.User) []domain.Role {
	hasApproverWith := func(role domain.Role) bool {
		return slices.ContainsFunc(approvers, func(u domain.User) bool {
			return r.HasApproved(u.ID) && u.HasRole(role)
		})
	}

	var missing []domain.Role
	if r.SecurityApprovalRequired && !hasApproverWith(domain.RoleSecurityEngineer) {
		missing = append(missing, domain.RoleSecurityEngineer)
	}
	if r.QAApprovalRequired && !hasApproverWith(domain.RoleQAEngineer) {
		missing = append(missing, domain.RoleQAEngineer)
	}
	return missing
}
