package domain

import (
	"slices"
	"strings"
	"time"
)

type ReviewStatus string

const (
	ReviewStatusDraft       ReviewStatus = "draft"
	ReviewStatusOpen        ReviewStatus = "open"
	ReviewStatusUnderReview ReviewStatus = "under_review"
	ReviewStatusNeedsWork   ReviewStatus = "needs_work"
	ReviewStatusApproved    ReviewStatus = "approved"
	ReviewStatusRejected    ReviewStatus = "rejected"
	ReviewStatusMerged      ReviewStatus = "merged"
	ReviewStatusClosed      ReviewStatus = "closed"
)

var reviewStatuses = []ReviewStatus{
	ReviewStatusDraft,
	ReviewStatusOpen,
	ReviewStatusUnderReview,
	ReviewStatusNeedsWork,
	ReviewStatusApproved,
	ReviewStatusRejected,
	ReviewStatusMerged,
	ReviewStatusClosed,
}

func ParseReviewStatus(s string) (ReviewStatus, error) {
	st := ReviewStatus(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(reviewStatuses, st) {
		return "", NewValidationError("unknown review status %q", s)
	}
	return st, nil
}

// IsTerminal reports whether no further workflow transitions are expected.
func (s ReviewStatus) IsTerminal() bool {
	switch s {
	case ReviewStatusMerged, ReviewStatusClosed, ReviewStatusRejected:
		return true
	}
	return false
}

// IsActive reports whether the review is waiting on reviewers.
func (s ReviewStatus) IsActive() bool {
	return s == ReviewStatusOpen || s == ReviewStatusUnderReview
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(priorities, p) {
		return "", NewValidationError("unknown priority %q", s)
	}
	return p, nil
}

// Rank orders priorities from low (0) to critical (3).
func (p Priority) Rank() int {
	return slices.Index(priorities, p)
}

func (p Priority) IsUrgent() bool {
	return p == PriorityHigh || p == PriorityCritical
}

const DefaultSLAHours = 48

// Review is a code review request. It is a value: every operation returns
// a modified copy and leaves the receiver untouched.
type Review struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	SourceBranch string `json:"source_branch"`
	TargetBranch string `json:"target_branch"`
	Requester    User   `json:"requester"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Status   ReviewStatus `json:"status"`
	Priority Priority     `json:"priority"`

	Reviewers         []string `json:"reviewers"`
	Approvers         []string `json:"approvers"`
	Rejectors         []string `json:"rejectors"`
	RequiredApprovals int      `json:"required_approvals"`
	CurrentApprovals  int      `json:"current_approvals"`

	RiskScore                *float64 `json:"risk_score,omitempty"`
	SecurityApprovalRequired bool     `json:"security_approval_required"`
	QAApprovalRequired       bool     `json:"qa_approval_required"`

	Labels        []string `json:"labels"`
	CommentsCount int      `json:"comments_count"`
	FilesChanged  int      `json:"files_changed"`
	Additions     int      `json:"additions"`
	Deletions     int      `json:"deletions"`

	SLAHoursLimit        int        `json:"sla_hours_limit"`
	SLADeadline          *time.Time `json:"sla_deadline,omitempty"`
	IsEscalated          bool       `json:"is_escalated"`
	EscalationLevel      int        `json:"escalation_level"`
	EscalationNotifiedAt *time.Time `json:"escalation_notified_at,omitempty"`

	EphemeralEnvironmentURL string `json:"ephemeral_environment_url,omitempty"`
	ExternalPRID            string `json:"external_pr_id,omitempty"`

	// Version is bumped by the repository on every successful save.
	Version int64 `json:"version"`
}

// NewReview returns an open, medium-priority review with no approvals.
func NewReview(id, title, description, sourceBranch, targetBranch string, requester User, createdAt time.Time) (Review, error) {
	r := Review{
		ID:                id,
		Title:             title,
		Description:       description,
		SourceBranch:      sourceBranch,
		TargetBranch:      targetBranch,
		Requester:         requester,
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
		Status:            ReviewStatusOpen,
		Priority:          PriorityMedium,
		Reviewers:         []string{},
		Approvers:         []string{},
		Rejectors:         []string{},
		Labels:            []string{},
		RequiredApprovals: 1,
		SLAHoursLimit:     DefaultSLAHours,
	}
	if err := r.Validate(); err != nil {
		return Review{}, err
	}
	return r, nil
}

func (r Review) Validate() error {
	if r.ID == "" {
		return NewValidationError("review id cannot be empty")
	}
	if r.SourceBranch == "" {
		return NewValidationError("source branch cannot be empty")
	}
	if r.TargetBranch == "" {
		return NewValidationError("target branch cannot be empty")
	}
	if r.RequiredApprovals < 1 {
		return NewValidationError("required approvals must be at least 1")
	}
	if r.CurrentApprovals < 0 {
		return NewValidationError("current approvals cannot be negative")
	}
	if r.FilesChanged < 0 || r.Additions < 0 || r.Deletions < 0 || r.CommentsCount < 0 {
		return NewValidationError("review counters cannot be negative")
	}
	if r.EscalationLevel < 0 {
		return NewValidationError("escalation level cannot be negative")
	}
	for _, id := range r.Approvers {
		if hasID(r.Rejectors, id) {
			return NewValidationError("user %q cannot both approve and reject", id)
		}
	}
	return nil
}

// clone copies every reference field so the result shares nothing with r.
func (r Review) clone() Review {
	r.Reviewers = slices.Clone(r.Reviewers)
	r.Approvers = slices.Clone(r.Approvers)
	r.Rejectors = slices.Clone(r.Rejectors)
	r.Labels = slices.Clone(r.Labels)
	r.Requester.Roles = slices.Clone(r.Requester.Roles)
	if r.RiskScore != nil {
		v := *r.RiskScore
		r.RiskScore = &v
	}
	if r.SLADeadline != nil {
		v := *r.SLADeadline
		r.SLADeadline = &v
	}
	if r.EscalationNotifiedAt != nil {
		v := *r.EscalationNotifiedAt
		r.EscalationNotifiedAt = &v
	}
	return r
}

// Clone returns a deep copy of r.
func (r Review) Clone() Review {
	return r.clone()
}

func (r Review) touched(at time.Time) Review {
	r = r.clone()
	r.UpdatedAt = at
	return r
}

func (r Review) IsReviewer(userID string) bool {
	return hasID(r.Reviewers, userID)
}

func (r Review) HasApproved(userID string) bool {
	return hasID(r.Approvers, userID)
}

func (r Review) AssignReviewer(userID string, at time.Time) (Review, error) {
	if userID == "" {
		return r, NewValidationError("reviewer id cannot be empty")
	}
	out := r.touched(at)
	out.Reviewers = addID(out.Reviewers, userID)
	return out, nil
}

// StartReview moves an open review to under_review.
func (r Review) StartReview(at time.Time) (Review, error) {
	switch r.Status {
	case ReviewStatusUnderReview:
		return r, nil
	case ReviewStatusOpen:
		out := r.touched(at)
		out.Status = ReviewStatusUnderReview
		return out, nil
	}
	return r, NewIllegalStateError("cannot start review with status %s", r.Status)
}

func (r Review) Approve(userID string, at time.Time) (Review, error) {
	if !r.Status.IsActive() {
		return r, NewIllegalStateError("cannot approve review with status %s", r.Status)
	}
	out := r.touched(at)
	out.Approvers = addID(out.Approvers, userID)
	out.Rejectors = removeID(out.Rejectors, userID)
	out.CurrentApprovals = len(out.Approvers)
	if out.CurrentApprovals >= out.RequiredApprovals {
		out.Status = ReviewStatusApproved
	}
	return out, nil
}

func (r Review) Reject(userID string, at time.Time) (Review, error) {
	if !r.Status.IsActive() {
		return r, NewIllegalStateError("cannot reject review with status %s", r.Status)
	}
	out := r.touched(at)
	out.Rejectors = addID(out.Rejectors, userID)
	out.Approvers = removeID(out.Approvers, userID)
	out.CurrentApprovals = len(out.Approvers)
	out.Status = ReviewStatusRejected
	return out, nil
}

// RequestChanges records userID as a rejector and sends the review back to
// the author. It is allowed from any status.
func (r Review) RequestChanges(userID string, at time.Time) Review {
	out := r.touched(at)
	out.Rejectors = addID(out.Rejectors, userID)
	out.Approvers = removeID(out.Approvers, userID)
	out.CurrentApprovals = len(out.Approvers)
	out.Status = ReviewStatusNeedsWork
	return out
}

func (r Review) CanMerge() bool {
	return r.Status == ReviewStatusApproved && r.CurrentApprovals >= r.RequiredApprovals
}

func (r Review) Merge(at time.Time) (Review, error) {
	if !r.CanMerge() {
		return r, NewIllegalStateError("cannot merge review that does not meet all requirements")
	}
	out := r.touched(at)
	out.Status = ReviewStatusMerged
	return out, nil
}

func (r Review) Close(at time.Time) Review {
	out := r.touched(at)
	out.Status = ReviewStatusClosed
	return out
}

func (r Review) AddComment(at time.Time) Review {
	out := r.touched(at)
	out.CommentsCount++
	return out
}

func (r Review) SetRiskScore(score float64, at time.Time) (Review, error) {
	if !inScoreRange(score) {
		return r, NewValidationError("risk score must be between 0 and 100, got %.2f", score)
	}
	out := r.touched(at)
	out.RiskScore = &score
	return out, nil
}

func (r Review) UpdateStats(filesChanged, additions, deletions int, at time.Time) (Review, error) {
	if filesChanged < 0 || additions < 0 || deletions < 0 {
		return r, NewValidationError("diff statistics cannot be negative")
	}
	out := r.touched(at)
	out.FilesChanged = filesChanged
	out.Additions = additions
	out.Deletions = deletions
	return out, nil
}

func (r Review) SetRiskFlags(securityRequired, qaRequired bool, at time.Time) Review {
	out := r.touched(at)
	out.SecurityApprovalRequired = securityRequired
	out.QAApprovalRequired = qaRequired
	return out
}

func (r Review) SetRequiredApprovals(n int, at time.Time) (Review, error) {
	if n < 1 {
		return r, NewValidationError("required approvals must be at least 1")
	}
	out := r.touched(at)
	out.RequiredApprovals = n
	return out, nil
}

func (r Review) SetPriority(p Priority, at time.Time) Review {
	out := r.touched(at)
	out.Priority = p
	return out
}

func (r Review) UpdateDetails(title, description string, at time.Time) (Review, error) {
	if r.Status.IsTerminal() {
		return r, NewIllegalStateError("cannot edit review with status %s", r.Status)
	}
	out := r.touched(at)
	if title != "" {
		out.Title = title
	}
	if description != "" {
		out.Description = description
	}
	return out, nil
}

func (r Review) AddLabel(label string, at time.Time) Review {
	out := r.touched(at)
	out.Labels = addID(out.Labels, label)
	return out
}

func (r Review) SetEnvironmentURL(url string, at time.Time) Review {
	out := r.touched(at)
	out.EphemeralEnvironmentURL = url
	return out
}

func (r Review) SetExternalPRID(id string, at time.Time) Review {
	out := r.touched(at)
	out.ExternalPRID = id
	return out
}

// WithSLADeadline sets the SLA limit and anchors the deadline to CreatedAt.
func (r Review) WithSLADeadline(hours int, at time.Time) Review {
	out := r.touched(at)
	deadline := out.CreatedAt.Add(time.Duration(hours) * time.Hour)
	out.SLAHoursLimit = hours
	out.SLADeadline = &deadline
	return out
}

// EscalateFrom raises the escalation level to fromLevel+1 and records at
// as the notification time. A fromLevel of zero or less means the current
// level.
func (r Review) EscalateFrom(fromLevel int, at time.Time) Review {
	if fromLevel <= 0 {
		fromLevel = r.EscalationLevel
	}
	out := r.touched(at)
	out.IsEscalated = true
	out.EscalationLevel = fromLevel + 1
	out.EscalationNotifiedAt = &at
	return out
}

// Escalate raises the escalation level by one.
func (r Review) Escalate(at time.Time) Review {
	return r.EscalateFrom(r.EscalationLevel, at)
}

func (r Review) MarkEscalationNotified(at time.Time) Review {
	out := r.touched(at)
	out.EscalationNotifiedAt = &at
	return out
}
