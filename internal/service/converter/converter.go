// Package converter maps domain values to the JSON shapes served by the
// HTTP API.
package converter

import (
	"time"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

type UserShort struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type User struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	Roles     []string  `json:"roles"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

type ReviewShort struct {
	ReviewID    string     `json:"review_id"`
	Title       string     `json:"title"`
	RequesterID string     `json:"requester_id"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	RiskScore   *float64   `json:"risk_score,omitempty"`
	SLADeadline *time.Time `json:"sla_deadline,omitempty"`
}

type Review struct {
	ReviewID     string    `json:"review_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	SourceBranch string    `json:"source_branch"`
	TargetBranch string    `json:"target_branch"`
	Requester    UserShort `json:"requester"`
	Status       string    `json:"status"`
	Priority     string    `json:"priority"`
	Labels       []string  `json:"labels"`

	Reviewers         []string `json:"reviewers"`
	Approvers         []string `json:"approvers"`
	Rejectors         []string `json:"rejectors"`
	RequiredApprovals int      `json:"required_approvals"`
	CurrentApprovals  int      `json:"current_approvals"`

	RiskScore                *float64 `json:"risk_score,omitempty"`
	SecurityApprovalRequired bool     `json:"security_approval_required"`
	QAApprovalRequired       bool     `json:"qa_approval_required"`

	CommentsCount int `json:"comments_count"`
	FilesChanged  int `json:"files_changed"`
	Additions     int `json:"additions"`
	Deletions     int `json:"deletions"`

	SLAHoursLimit   int        `json:"sla_hours_limit"`
	SLADeadline     *time.Time `json:"sla_deadline,omitempty"`
	IsEscalated     bool       `json:"is_escalated"`
	EscalationLevel int        `json:"escalation_level"`

	EnvironmentURL string `json:"ephemeral_environment_url,omitempty"`
	ExternalPRID   string `json:"external_pr_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

type Comment struct {
	CommentID  string    `json:"comment_id"`
	ReviewID   string    `json:"review_id"`
	AuthorID   string    `json:"author_id"`
	ParentID   string    `json:"parent_id,omitempty"`
	Content    string    `json:"content"`
	FilePath   string    `json:"file_path,omitempty"`
	LineNumber *int      `json:"line_number,omitempty"`
	Type       string    `json:"comment_type"`
	IsResolved bool      `json:"is_resolved"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Environment struct {
	EnvironmentID  string     `json:"environment_id"`
	ReviewID       string     `json:"review_id"`
	Name           string     `json:"name"`
	Branch         string     `json:"branch"`
	Status         string     `json:"status"`
	URL            string     `json:"url,omitempty"`
	TTLMinutes     int        `json:"ttl_minutes"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

type RiskScore struct {
	ReviewID        string             `json:"review_id"`
	OverallScore    float64            `json:"overall_score"`
	RiskLevel       string             `json:"risk_level"`
	Factors         domain.RiskFactors `json:"factors"`
	Weights         domain.RiskWeights `json:"weights"`
	NeedsSecurity   bool               `json:"needs_security_review"`
	NeedsQA         bool               `json:"needs_qa_review"`
	AnalysisDetails map[string]string  `json:"analysis_details,omitempty"`
	CalculatedAt    time.Time          `json:"calculated_at"`
}

type AuditLog struct {
	AuditID     string         `json:"audit_id"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	Action      string         `json:"action"`
	ActorID     string         `json:"actor_id"`
	OldState    map[string]any `json:"old_state,omitempty"`
	NewState    map[string]any `json:"new_state,omitempty"`
	Changes     map[string]any `json:"changes,omitempty"`
	Description string         `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func UserToAPI(u *domain.User) User {
	if u == nil {
		return User{}
	}

	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, string(r))
	}

	return User{
		UserID:    u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName,
		Roles:     roles,
		IsAdmin:   u.IsAdmin(),
		CreatedAt: u.CreatedAt,
	}
}

func UsersToAPI(users []domain.User) []User {
	out := make([]User, 0, len(users))
	for i := range users {
		out = append(out, UserToAPI(&users[i]))
	}
	return out
}

func ReviewToAPI(r *domain.Review) Review {
	if r == nil {
		return Review{}
	}

	return Review{
		ReviewID:     r.ID,
		Title:        r.Title,
		Description:  r.Description,
		SourceBranch: r.SourceBranch,
		TargetBranch: r.TargetBranch,
		Requester: UserShort{
			UserID:   r.Requester.ID,
			Username: r.Requester.Username,
		},
		Status:   string(r.Status),
		Priority: string(r.Priority),
		Labels:   nonNil(r.Labels),

		Reviewers:         nonNil(r.Reviewers),
		Approvers:         nonNil(r.Approvers),
		Rejectors:         nonNil(r.Rejectors),
		RequiredApprovals: r.RequiredApprovals,
		CurrentApprovals:  r.CurrentApprovals,

		RiskScore:                copyFloat(r.RiskScore),
		SecurityApprovalRequired: r.SecurityApprovalRequired,
		QAApprovalRequired:       r.QAApprovalRequired,

		CommentsCount: r.CommentsCount,
		FilesChanged:  r.FilesChanged,
		Additions:     r.Additions,
		Deletions:     r.Deletions,

		SLAHoursLimit:   r.SLAHoursLimit,
		SLADeadline:     copyTime(r.SLADeadline),
		IsEscalated:     r.IsEscalated,
		EscalationLevel: r.EscalationLevel,

		EnvironmentURL: r.EphemeralEnvironmentURL,
		ExternalPRID:   r.ExternalPRID,

		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Version:   r.Version,
	}
}

func ReviewsToAPI(reviews []domain.Review) []Review {
	out := make([]Review, 0, len(reviews))
	for i := range reviews {
		out = append(out, ReviewToAPI(&reviews[i]))
	}
	return out
}

func ReviewShortFromDomain(r *domain.Review) ReviewShort {
	if r == nil {
		return ReviewShort{}
	}

	return ReviewShort{
		ReviewID:    r.ID,
		Title:       r.Title,
		RequesterID: r.Requester.ID,
		Status:      string(r.Status),
		Priority:    string(r.Priority),
		RiskScore:   copyFloat(r.RiskScore),
		SLADeadline: copyTime(r.SLADeadline),
	}
}

func ReviewShortsFromDomain(reviews []domain.Review) []ReviewShort {
	out := make([]ReviewShort, 0, len(reviews))
	for i := range reviews {
		out = append(out, ReviewShortFromDomain(&reviews[i]))
	}
	return out
}

func CommentToAPI(c *domain.Comment) Comment {
	if c == nil {
		return Comment{}
	}

	var line *int
	if c.LineNumber != nil {
		n := *c.LineNumber
		line = &n
	}

	return Comment{
		CommentID:  c.ID,
		ReviewID:   c.ReviewID,
		AuthorID:   c.AuthorID,
		ParentID:   c.ParentID,
		Content:    c.Content,
		FilePath:   c.FilePath,
		LineNumber: line,
		Type:       string(c.Type),
		IsResolved: c.IsResolved,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func CommentsToAPI(comments []domain.Comment) []Comment {
	out := make([]Comment, 0, len(comments))
	for i := range comments {
		out = append(out, CommentToAPI(&comments[i]))
	}
	return out
}

func EnvironmentToAPI(e *domain.Environment) Environment {
	if e == nil {
		return Environment{}
	}

	return Environment{
		EnvironmentID:  e.ID,
		ReviewID:       e.ReviewID,
		Name:           e.Name,
		Branch:         e.Branch,
		Status:         string(e.Status),
		URL:            e.URL,
		TTLMinutes:     e.TTLMinutes,
		CreatedAt:      e.CreatedAt,
		ExpiresAt:      e.ExpiresAt,
		LastAccessedAt: copyTime(e.LastAccessedAt),
	}
}

func RiskScoreToAPI(s *domain.RiskScore) RiskScore {
	if s == nil {
		return RiskScore{}
	}

	return RiskScore{
		ReviewID:        s.ReviewID,
		OverallScore:    s.Overall,
		RiskLevel:       string(s.Level),
		Factors:         s.Factors,
		Weights:         s.Weights,
		NeedsSecurity:   s.NeedsSecurityReview(),
		NeedsQA:         s.NeedsQAReview(),
		AnalysisDetails: s.AnalysisDetails,
		CalculatedAt:    s.CalculatedAt,
	}
}

func AuditLogsToAPI(entries []domain.AuditLog) []AuditLog {
	out := make([]AuditLog, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditLog{
			AuditID:     e.ID,
			EntityType:  e.EntityType,
			EntityID:    e.EntityID,
			Action:      string(e.Action),
			ActorID:     e.ActorID,
			OldState:    e.OldState,
			NewState:    e.NewState,
			Changes:     e.Changes,
			Description: e.Description,
			CreatedAt:   e.CreatedAt,
		})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string(nil), s...)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
