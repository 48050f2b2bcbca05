package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

type ReviewServiceDeps struct {
	Reviews      ReviewRepository
	Users        UserRepository
	Comments     CommentRepository
	RiskScores   RiskScoreRepository
	Risk         RiskAnalyzer
	Git          GitProvider
	Notifier     Notifier
	Environments *EnvironmentService
	SLA          *SLAService
	Policy       *ReviewPolicy
	Audit        *AuditService
	Metrics      Metrics
	Logger       *slog.Logger
	NowFunc      func() time.Time
}

type ReviewService struct {
	reviews    ReviewRepository
	users      UserRepository
	comments   CommentRepository
	riskScores RiskScoreRepository
	risk       RiskAnalyzer
	git        GitProvider
	notifier   Notifier
	envs       *EnvironmentService
	sla        *SLAService
	policy     *ReviewPolicy
	audit      *AuditService
	metrics    Metrics
	logger     *slog.Logger
	nowFunc    func() time.Time
	newID      func() string
}

func NewReviewService(d ReviewServiceDeps) *ReviewService {
	if d.NowFunc == nil {
		d.NowFunc = time.Now
	}
	if d.Metrics == nil {
		d.Metrics = noopMetrics{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &ReviewService{
		reviews:    d.Reviews,
		users:      d.Users,
		comments:   d.Comments,
		riskScores: d.RiskScores,
		risk:       d.Risk,
		git:        d.Git,
		notifier:   d.Notifier,
		envs:       d.Environments,
		sla:        d.SLA,
		policy:     d.Policy,
		audit:      d.Audit,
		metrics:    d.Metrics,
		logger:     d.Logger,
		nowFunc:    d.NowFunc,
		newID:      uuid.NewString,
	}
}

type CreateReviewInput struct {
	Title        string
	Description  string
	SourceBranch string
	TargetBranch string
	RequesterID  string
	Priority     domain.Priority
	Labels       []string
}

// Create opens a review, scores its diff, assigns the required reviewers
// and provisions a preview environment. Failures of the Git host, the risk
// analyzer or the provisioner degrade the result but do not abort it.
func (s *ReviewService) Create(ctx context.Context, in CreateReviewInput) (domain.Review, error) {
	requester, err := s.users.FindByID(ctx, in.RequesterID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("get requester: %w", err)
	}

	now := s.nowFunc()
	review, err := domain.NewReview(s.newID(), in.Title, in.Description, in.SourceBranch, in.TargetBranch, requester, now)
	if err != nil {
		return domain.Review{}, err
	}
	if in.Priority != "" {
		review = review.SetPriority(in.Priority, now)
	}
	for _, l := range in.Labels {
		if l != "" {
			review = review.AddLabel(l, now)
		}
	}
	review = s.sla.SetDeadline(review)

	prID, err := s.git.CreatePullRequest(ctx, review.Title, review.Description, review.SourceBranch, review.TargetBranch)
	if err != nil {
		s.logger.Warn("create pull request at git provider", "error", err, "review_id", review.ID)
	} else {
		review = review.SetExternalPRID(prID, now)
	}

	review, err = s.reviews.Save(ctx, review)
	if err != nil {
		return domain.Review{}, fmt.Errorf("save review: %w", err)
	}

	diff, err := s.git.GetPullRequestDiff(ctx, gitKey(review))
	if err != nil {
		s.logger.Warn("get pull request diff", "error", err, "review_id", review.ID)
	}

	if files, additions, deletions, err := s.risk.DiffStats(diff); err != nil {
		s.logger.Warn("compute diff stats", "error", err, "review_id", review.ID)
	} else if review, err = review.UpdateStats(files, additions, deletions, s.nowFunc()); err != nil {
		return domain.Review{}, err
	}

	var score domain.RiskScore
	if scored, err := s.risk.CalculateRiskScore(ctx, review.ID, diff); err != nil {
		s.logger.Warn("calculate risk score", "error", err, "review_id", review.ID)
	} else {
		score = scored
		if _, err := s.riskScores.Save(ctx, score); err != nil {
			return domain.Review{}, fmt.Errorf("save risk score: %w", err)
		}
		if review, err = review.SetRiskScore(score.Overall, s.nowFunc()); err != nil {
			return domain.Review{}, err
		}
		review = review.SetRiskFlags(score.NeedsSecurityReview(), score.NeedsQAReview(), s.nowFunc())
	}

	available, err := s.users.FindAll(ctx)
	if err != nil {
		return domain.Review{}, fmt.Errorf("list users: %w", err)
	}
	required := s.policy.CalculateRequiredReviewers(review, score, available)
	for _, u := range required {
		if review, err = review.AssignReviewer(u.ID, s.nowFunc()); err != nil {
			return domain.Review{}, err
		}
	}
	if review, err = review.SetRequiredApprovals(max(1, len(required)), s.nowFunc()); err != nil {
		return domain.Review{}, err
	}

	if s.envs != nil {
		env, err := s.envs.Provision(ctx, review, requester.ID)
		if err != nil {
			s.logger.Warn("provision environment", "error", err, "review_id", review.ID)
		} else {
			review = review.SetEnvironmentURL(env.URL, s.nowFunc())
		}
	}

	review, err = s.reviews.Save(ctx, review)
	if err != nil {
		return domain.Review{}, fmt.Errorf("save review: %w", err)
	}

	s.notify(ctx, "assigned", s.notifier.ReviewAssigned, review, review.Reviewers)
	s.audit.Record(ctx, domain.EntityTypeReview, review.ID, domain.AuditActionCreate, requester.ID, domain.AuditLogParams{
		NewState: reviewSnapshot(review),
	})
	s.metrics.ReviewTransition(domain.AuditActionCreate)

	s.logger.Info("review created",
		"review_id", review.ID,
		"requester_id", requester.ID,
		"reviewers", review.Reviewers,
		"risk_level", string(score.Level),
	)
	return review, nil
}

// Get loads a review. A non-empty viewerID must be allowed to see it.
func (s *ReviewService) Get(ctx context.Context, id, viewerID string) (domain.Review, error) {
	review, err := s.reviews.FindByID(ctx, id)
	if err != nil {
		return domain.Review{}, fmt.Errorf("get review: %w", err)
	}
	if viewerID == "" {
		return review, nil
	}
	viewer, err := s.users.FindByID(ctx, viewerID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("get viewer: %w", err)
	}
	if !s.policy.CanUserView(viewer, review) {
		return domain.Review{}, domain.NewPermissionError("user %s cannot view review %s", viewerID, id)
	}
	return review, nil
}

func (s *ReviewService) List(ctx context.Context, f domain.ReviewFilter) ([]domain.Review, int, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, 0, err
	}
	page, total, err := s.reviews.FindWithFilters(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	return page, total, nil
}

func (s *ReviewService) Search(ctx context.Context, query string) ([]domain.Review, error) {
	if query == "" {
		return nil, domain.NewValidationError("search query cannot be empty")
	}
	reviews, err := s.reviews.SearchByText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search reviews: %w", err)
	}
	return reviews, nil
}

func (s *ReviewService) UpdateDetails(ctx context.Context, id, actorID, title, description string) (domain.Review, error) {
	actor, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("get actor: %w", err)
	}

	var before domain.Review
	updated, err := s.reviews.Update(ctx, id, func(cur domain.Review) (domain.Review, error) {
		if !s.policy.CanUserManage(actor, cur) {
			return cur, domain.NewPermissionError("user %s cannot edit review %s", actorID, id)
		}
		before = cur
		return cur.UpdateDetails(title, description, s.nowFunc())
	})
	if err != nil {
		return domain.Review{}, fmt.Errorf("update review: %w", err)
	}

	if err := s.git.UpdatePullRequest(ctx, gitKey(updated), updated.Title, updated.Description); err != nil {
		s.logger.Warn("update pull request at git provider", "error", err, "review_id", id)
	}
	s.recordChange(ctx, before, updated, domain.AuditActionUpdate, actorID)
	return updated, nil
}

func (s *ReviewService) AssignReviewer(ctx context.Context, id, actorID, reviewerID string) (domain.Review, error) {
	actor, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("get actor: %w", err)
	}
	if _, err := s.users.FindByID(ctx, reviewerID); err != nil {
		return domain.Review{}, fmt.Errorf("get reviewer: %w", err)
	}

	var before domain.Review
	updated, err := s.reviews.Update(ctx, id, func(cur domain.Review) (domain.Review, error) {
		if !s.policy.CanUserManage(actor, cur) {
			return cur, domain.NewPermissionError("user %s cannot assign reviewers to review %s", actorID, id)
		}
		if cur.Status.IsTerminal() {
			return cur, domain.NewIllegalStateError("cannot assign reviewers to review with status %s", cur.Status)
		}
		if reviewerID == cur.Requester.ID {
			return cur, domain.NewValidationError("requester cannot review their own change")
		}
		before = cur
		return cur.AssignReviewer(reviewerID, s.nowFunc())
	})
	if err != nil {
		return domain.Review{}, fmt.Errorf("assign reviewer: %w", err)
	}

	if !before.IsReviewer(reviewerID) {
		s.notify(ctx, "assigned", s.notifier.ReviewAssigned, updated, []string{reviewerID})
	}
	s.recordChange(ctx, before, updated, domain.AuditActionAssignReviewer, actorID)
	return updated, nil
}

func (s *ReviewService) Approve(ctx context.Context, id, reviewerID string) (domain.Review, error) {
	reviewer, err := s.users.FindByID(ctx, reviewerID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("get reviewer: %w", err)
	}

	var before domain.Review
	updated, err := s.reviews.Update(ctx, id, func(cur domain.Review) (domain.Review, error) {
		if !s.policy.CanUserApprove(reviewer, cur) {
			return cur, domain.NewPermissionError("user %s is not authorized to approve review %s", reviewerID, id)
		}
		before = cur
		return cur.Approve(reviewerID, s.nowFunc())
	})
	if err != nil {
		return domain.Review{}, fmt.Errorf("approve review: %w", err)
	}

	s.recordChange(ctx, before, updated, domain.AuditActionApprove, reviewerID)
	return updated, nil
}

func (s *ReviewService) RequestChanges(ctx context.Context, id, reviewerID string) (domain.Review, error) {
	reviewer, err := s.users.FindByID(ctx, reviewerID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("get reviewer: %w", err)
	}

	var before domain.Review
	updated, err := s.reviews.Update(ctx, id, func(cur domain.Review) (domain.Review, error) {
		if !s.policy.CanUserApprove(reviewer, cur) {
			return cur, domain.NewPermissionError("user %s is not authorized to request changes for review %s", reviewerID, id)
		}
		if cur.Status.IsTerminal() {
			return cur, domain.NewIllegalStateError("cannot request changes on review with status %s", cur.Status)
		}
		before = cur
		return cur.RequestChanges(reviewerID, s.nowFunc()), nil
	})
	if err != nil {
		return domain.Review{}, fmt.Errorf("request changes: %w", err)
	}

	s.notify(ctx, "reminder", s.notifier.ReviewReminder, updated, []string{updated.Requester.ID})
	s.recordChange(ctx, before, updated, domain.AuditActionRequestChanges, reviewerID)
	return updated, nil
}

func (s *ReviewService) Reject(ctx context.Context, id, reviewerID string) (domain.Review, error) {
	reviewer, err := s.users.FindByID(ctx, reviewerID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("get reviewer: %w", err)
	}

	var before domain.Review
	updated, err := s.reviews.Update(ctx, id, func(cur domain.Review) (domain.Review, error) {
		if !s.policy.CanUserApprove(reviewer, cur) {
			return cur, domain.NewPermissionError("user %s is not authorized to reject review %s", reviewerID, id)
		}
		before = cur
		return cur.Reject(reviewerID, s.nowFunc())
	})
	if err != nil {
		return domain.Review{}, fmt.Errorf("reject review: %w", err)
	}

	s.finish(ctx, updated, reviewerID)
	s.recordChange(ctx, before, updated, domain.AuditActionReject, reviewerID)
	return updated, nil
}

// Merge commits the merge locally even when the Git provider status call
// fails; the failure is only logged.
func (s *ReviewService) Merge(ctx context.Context, id, mergerID string) (domain.Review, error) {
	merger, err := s.users.FindByID(ctx, mergerID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("get merger: %w", err)
	}

	var before domain.Review
	updated, err := s.reviews.Update(ctx, id, func(cur domain.Review) (domain.Review, error) {
		if !cur.CanMerge() {
			return cur, domain.NewIllegalStateError("review %s does not meet requirements for merging", id)
		}
		if !s.policy.CanUserMerge(merger, cur) {
			return cur, domain.NewPermissionError("user %s does not have permission to merge review %s", mergerID, id)
		}
		approvers, err := s.resolveUsers(ctx, cur.Approvers)
		if err != nil {
			return cur, err
		}
		if missing := s.policy.MissingRoleApprovals(cur, approvers); len(missing) > 0 {
			return cur, domain.NewIllegalStateError("required approval missing from role %s", missing[0])
		}
		before = cur
		return cur.Merge(s.nowFunc())
	})
	if err != nil {
		return domain.Review{}, fmt.Errorf("merge review: %w", err)
	}

	if err := s.git.SetPullRequestStatus(ctx, gitKey(updated), "success", "merged", updated.EphemeralEnvironmentURL); err != nil {
		s.logger.Warn("set pull request status", "error", err, "review_id", id)
	}
	s.finish(ctx, updated, mergerID)
	s.recordChange(ctx, before, updated, domain.AuditActionMerge, mergerID)
	return updated, nil
}

func (s *ReviewService) Close(ctx context.Context, id, actorID string) (domain.Review, error) {
	actor, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("get actor: %w", err)
	}

	var before domain.Review
	updated, err := s.reviews.Update(ctx, id, func(cur domain.Review) (domain.Review, error) {
		if !s.policy.CanUserManage(actor, cur) {
			return cur, domain.NewPermissionError("user %s cannot close review %s", actorID, id)
		}
		before = cur
		return cur.Close(s.nowFunc()), nil
	})
	if err != nil {
		return domain.Review{}, fmt.Errorf("close review: %w", err)
	}

	if err := s.git.SetPullRequestStatus(ctx, gitKey(updated), "closed", "closed without merge", ""); err != nil {
		s.logger.Warn("set pull request status", "error", err, "review_id", id)
	}
	s.finish(ctx, updated, actorID)
	s.recordChange(ctx, before, updated, domain.AuditActionClose, actorID)
	return updated, nil
}

type AddCommentInput struct {
	AuthorID   string
	Content    string
	ParentID   string
	FilePath   string
	LineNumber *int
}

func (s *ReviewService) AddComment(ctx context.Context, reviewID string, in AddCommentInput) (domain.Comment, error) {
	if _, err := s.users.FindByID(ctx, in.AuthorID); err != nil {
		return domain.Comment{}, fmt.Errorf("get author: %w", err)
	}
	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("get review: %w", err)
	}
	if in.ParentID != "" {
		parent, err := s.comments.FindByID(ctx, in.ParentID)
		if err != nil {
			return domain.Comment{}, fmt.Errorf("get parent comment: %w", err)
		}
		if parent.ReviewID != reviewID {
			return domain.Comment{}, domain.NewValidationError("parent comment belongs to another review")
		}
	}

	comment, err := domain.NewComment(s.newID(), in.AuthorID, in.Content, domain.NewCommentParams{
		ReviewID:   reviewID,
		ParentID:   in.ParentID,
		FilePath:   in.FilePath,
		LineNumber: in.LineNumber,
	}, s.nowFunc())
	if err != nil {
		return domain.Comment{}, err
	}

	comment, err = s.comments.Save(ctx, comment)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("save comment: %w", err)
	}
	if _, err := s.reviews.Update(ctx, reviewID, func(cur domain.Review) (domain.Review, error) {
		return cur.AddComment(s.nowFunc()), nil
	}); err != nil {
		return domain.Comment{}, fmt.Errorf("increment comment count: %w", err)
	}

	if err := s.git.AddCommentToPullRequest(ctx, gitKey(review), comment.Content, comment.FilePath, comment.LineNumber); err != nil {
		s.logger.Warn("mirror comment to git provider", "error", err, "review_id", reviewID)
	}
	s.audit.Record(ctx, domain.EntityTypeComment, comment.ID, domain.AuditActionComment, in.AuthorID, domain.AuditLogParams{
		NewState: map[string]any{"review_id": reviewID, "comment_type": string(comment.Type)},
	})
	s.metrics.ReviewTransition(domain.AuditActionComment)
	return comment, nil
}

func (s *ReviewService) ListComments(ctx context.Context, reviewID string) ([]domain.Comment, error) {
	if _, err := s.reviews.FindByID(ctx, reviewID); err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	comments, err := s.comments.FindByReview(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// ResolveComment marks a comment resolved. The comment author, the review
// requester and admins may resolve.
func (s *ReviewService) ResolveComment(ctx context.Context, reviewID, commentID, actorID string) (domain.Comment, error) {
	actor, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("get actor: %w", err)
	}
	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("get review: %w", err)
	}
	comment, err := s.comments.FindByID(ctx, commentID)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("get comment: %w", err)
	}
	if comment.ReviewID != reviewID {
		return domain.Comment{}, domain.NewNotFoundError("comment", commentID)
	}
	if comment.AuthorID != actorID && !s.policy.CanUserManage(actor, review) {
		return domain.Comment{}, domain.NewPermissionError("user %s cannot resolve comment %s", actorID, commentID)
	}

	resolved, err := s.comments.Save(ctx, comment.Resolve(s.nowFunc()))
	if err != nil {
		return domain.Comment{}, fmt.Errorf("save comment: %w", err)
	}
	s.audit.Record(ctx, domain.EntityTypeComment, commentID, domain.AuditActionResolveComment, actorID, domain.AuditLogParams{
		NewState: map[string]any{"review_id": reviewID, "is_resolved": true},
	})
	return resolved, nil
}

func (s *ReviewService) RiskScore(ctx context.Context, reviewID string) (domain.RiskScore, error) {
	if _, err := s.reviews.FindByID(ctx, reviewID); err != nil {
		return domain.RiskScore{}, fmt.Errorf("get review: %w", err)
	}
	score, err := s.riskScores.FindByReviewID(ctx, reviewID)
	if err != nil {
		return domain.RiskScore{}, fmt.Errorf("get risk score: %w", err)
	}
	return score, nil
}

// SLAReport combines the deadline signal with the aging heuristic. The two
// are reported side by side and never merged.
type SLAReport struct {
	SLAStatus
	EstimatedReviewMinutes int  `json:"estimated_review_minutes"`
	AgingEscalation        bool `json:"aging_escalation"`
}

func (s *ReviewService) SLAReport(ctx context.Context, reviewID string) (SLAReport, error) {
	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return SLAReport{}, fmt.Errorf("get review: %w", err)
	}
	return SLAReport{
		SLAStatus:              s.sla.CheckStatus(review),
		EstimatedReviewMinutes: s.policy.EstimateReviewTime(review),
		AgingEscalation:        s.policy.ShouldEscalate(review),
	}, nil
}

func (s *ReviewService) SLASummary(ctx context.Context) (SLASummary, error) {
	all, err := s.reviews.FindAll(ctx)
	if err != nil {
		return SLASummary{}, fmt.Errorf("list reviews: %w", err)
	}
	return s.sla.Summary(all), nil
}

func (s *ReviewService) Overdue(ctx context.Context) ([]domain.Review, error) {
	all, err := s.reviews.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return s.sla.FindOverdue(all), nil
}

func (s *ReviewService) AuditTrail(ctx context.Context, reviewID string) ([]domain.AuditLog, error) {
	if _, err := s.reviews.FindByID(ctx, reviewID); err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return s.audit.Trail(ctx, domain.EntityTypeReview, reviewID)
}

func (s *ReviewService) resolveUsers(ctx context.Context, ids []string) ([]domain.User, error) {
	users := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		u, err := s.users.FindByID(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get approver %s: %w", id, err)
		}
		users = append(users, u)
	}
	return users, nil
}

// finish runs the side effects of a review reaching a terminal status.
func (s *ReviewService) finish(ctx context.Context, r domain.Review, actorID string) {
	recipients := []string{r.Requester.ID}
	for _, id := range r.Reviewers {
		if !slices.Contains(recipients, id) {
			recipients = append(recipients, id)
		}
	}
	s.notify(ctx, "completed", s.notifier.ReviewCompleted, r, recipients)
	if s.envs != nil {
		s.envs.DestroyQuietly(ctx, r.ID, actorID)
	}
}

func (s *ReviewService) recordChange(ctx context.Context, before, after domain.Review, action domain.AuditAction, actorID string) {
	oldState := reviewSnapshot(before)
	newState := reviewSnapshot(after)
	s.audit.Record(ctx, domain.EntityTypeReview, after.ID, action, actorID, domain.AuditLogParams{
		OldState: oldState,
		NewState: newState,
		Changes:  diffSnapshots(oldState, newState),
	})
	s.metrics.ReviewTransition(action)
	s.logger.Info("review transition",
		"review_id", after.ID,
		"action", string(action),
		"actor_id", actorID,
		"from", string(before.Status),
		"to", string(after.Status),
	)
}

type notifyFunc func(ctx context.Context, r domain.Review, recipients []string) error

func (s *ReviewService) notify(ctx context.Context, kind string, send notifyFunc, r domain.Review, recipients []string) {
	if len(recipients) == 0 {
		return
	}
	err := send(ctx, r, recipients)
	s.metrics.NotificationSent(kind, err)
	if err != nil {
		s.logger.Warn("send notification", "error", err, "kind", kind, "review_id", r.ID)
	}
}

// gitKey is the id the Git provider knows the review by.
func gitKey(r domain.Review) string {
	if r.ExternalPRID != "" {
		return r.ExternalPRID
	}
	return r.ID
}
