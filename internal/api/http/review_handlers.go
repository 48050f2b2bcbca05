package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/forsitet/review-workflow-service/internal/domain"
	"github.com/forsitet/review-workflow-service/internal/service"
	"github.com/forsitet/review-workflow-service/internal/service/converter"
)

type createReviewRequest struct {
	Title        string   `json:"title" validate:"required,min=5,max=200"`
	Description  string   `json:"description" validate:"required,min=10,max=5000"`
	SourceBranch string   `json:"source_branch" validate:"required,min=1,max=255"`
	TargetBranch string   `json:"target_branch" validate:"required,min=1,max=255,nefield=SourceBranch"`
	RequesterID  string   `json:"requester_id" validate:"required"`
	Priority     string   `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	Labels       []string `json:"labels" validate:"omitempty,max=20,dive,min=1,max=50"`
}

func (s *Server) HandleReviewCreate(w http.ResponseWriter, r *http.Request) {
	var req createReviewRequest
	if err := s.decode(w, r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}

	review, err := s.app.Reviews.Create(r.Context(), service.CreateReviewInput{
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		SourceBranch: req.SourceBranch,
		TargetBranch: req.TargetBranch,
		RequesterID:  req.RequesterID,
		Priority:     domain.Priority(req.Priority),
		Labels:       req.Labels,
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusCreated, converter.ReviewToAPI(&review))
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError("parameter '%s' must be an integer", name)
	}
	return n, nil
}

func parseReviewFilter(r *http.Request) (domain.ReviewFilter, error) {
	q := r.URL.Query()
	f := domain.ReviewFilter{
		RequesterID: q.Get("requester_id"),
		ReviewerID:  q.Get("reviewer_id"),
		Query:       strings.TrimSpace(q.Get("q")),
		SortBy:      domain.ReviewSortField(q.Get("sort_by")),
		SortOrder:   domain.SortOrder(strings.ToLower(q.Get("sort_order"))),
	}

	if v := q.Get("status"); v != "" {
		st, err := domain.ParseReviewStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = st
	}
	if v := q.Get("priority"); v != "" {
		p, err := domain.ParsePriority(v)
		if err != nil {
			return f, err
		}
		f.Priority = p
	}

	var err error
	if f.Skip, err = queryInt(r, "skip"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}
	if q.Has("limit") && f.Limit == 0 {
		return f, domain.NewValidationError("parameter 'limit' must be >= 1")
	}
	return f.Normalize()
}

func (s *Server) HandleReviewList(w http.ResponseWriter, r *http.Request) {
	f, err := parseReviewFilter(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	page, total, err := s.app.Reviews.List(r.Context(), f)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writePage(w, r, converter.ReviewsToAPI(page), total, f.Skip, f.Limit)
}

func (s *Server) HandleReviewSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.handleError(w, r, domain.NewValidationError("parameter 'q' is required"))
		return
	}

	reviews, err := s.app.Reviews.Search(r.Context(), q)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, converter.ReviewShortsFromDomain(reviews))
}

// HandleReviewGet enforces view permission only when X-User-ID is sent.
func (s *Server) HandleReviewGet(w http.ResponseWriter, r *http.Request) {
	viewer := strings.TrimSpace(r.Header.Get(headerUserID))

	review, err := s.app.Reviews.Get(r.Context(), chi.URLParam(r, "reviewID"), viewer)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, converter.ReviewToAPI(&review))
}

type updateReviewRequest struct {
	ActorID     string `json:"actor_id" validate:"required"`
	Title       string `json:"title" validate:"omitempty,min=5,max=200"`
	Description string `json:"description" validate:"omitempty,min=10,max=5000"`
}

func (s *Server) HandleReviewUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateReviewRequest
	if err := s.decode(w, r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	if req.Title == "" && req.Description == "" {
		s.handleError(w, r, domain.NewValidationError("title or description must be provided"))
		return
	}

	review, err := s.app.Reviews.UpdateDetails(r.Context(), chi.URLParam(r, "reviewID"), req.ActorID, req.Title, req.Description)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, converter.ReviewToAPI(&review))
}

type assignReviewerRequest struct {
	ActorID    string `json:"actor_id" validate:"required"`
	ReviewerID string `json:"reviewer_id" validate:"required"`
}

func (s *Server) HandleReviewAssign(w http.ResponseWriter, r *http.Request) {
	var req assignReviewerRequest
	if err := s.decode(w, r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}

	review, err := s.app.Reviews.AssignReviewer(r.Context(), chi.URLParam(r, "reviewID"), req.ActorID, req.ReviewerID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, converter.ReviewToAPI(&review))
}

type reviewerActionRequest struct {
	ReviewerID string `json:"reviewer_id" validate:"required"`
}

type reviewerActionFunc func(ctx context.Context, id, reviewerID string) (domain.Review, error)

// reviewerAction serves approve, reject and request-changes, which share
// a body and a response.
func (s *Server) reviewerAction(w http.ResponseWriter, r *http.Request, act reviewerActionFunc) {
	var req reviewerActionRequest
	if err := s.decode(w, r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}

	review, err := act(r.Context(), chi.URLParam(r, "reviewID"), req.ReviewerID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, converter.ReviewToAPI(&review))
}

func (s *Server) HandleReviewApprove(w http.ResponseWriter, r *http.Request) {
	s.reviewerAction(w, r, s.app.Reviews.Approve)
}

func (s *Server) HandleReviewReject(w http.ResponseWriter, r *http.Request) {
	s.reviewerAction(w, r, s.app.Reviews.Reject)
}

func (s *Server) HandleReviewRequestChanges(w http.ResponseWriter, r *http.Request) {
	s.reviewerAction(w, r, s.app.Reviews.RequestChanges)
}

type mergeReviewRequest struct {
	MergerID string `json:"merger_id" validate:"required"`
}

func (s *Server) HandleReviewMerge(w http.ResponseWriter, r *http.Request) {
	var req mergeReviewRequest
	if err := s.decode(w, r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}

	review, err := s.app.Reviews.Merge(r.Context(), chi.URLParam(r, "reviewID"), req.MergerID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, converter.ReviewToAPI(&review))
}

type actorRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
}

func (s *Server) HandleReviewClose(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := s.decode(w, r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}

	review, err := s.app.Reviews.Close(r.Context(), chi.URLParam(r, "reviewID"), req.ActorID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, converter.ReviewToAPI(&review))
}

type addCommentRequest struct {
	AuthorID   string `json:"author_id" validate:"required"`
	Content    string `json:"content" validate:"required,min=1,max=10000"`
	ParentID   string `json:"parent_id"`
	FilePath   string `json:"file_path" validate:"omitempty,max=1024"`
	LineNumber *int   `json:"line_number" validate:"omitempty,min=1"`
}

func (s *Server) HandleCommentAdd(w http.ResponseWriter, r *http.Request) {
	var req addCommentRequest
	if err := s.decode(w, r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}

	comment, err := s.app.Reviews.AddComment(r.Context(), chi.URLParam(r, "reviewID"), service.AddCommentInput{
		AuthorID:   req.AuthorID,
		Content:    req.Content,
		ParentID:   req.ParentID,
		FilePath:   req.FilePath,
		LineNumber: req.LineNumber,
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusCreated, converter.CommentToAPI(&comment))
}

func (s *Server) HandleCommentList(w http.ResponseWriter, r *http.Request) {
	comments, err := s.app.Reviews.ListComments(r.Context(), chi.URLParam(r, "reviewID"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, converter.CommentsToAPI(comments))
}

func (s *Server) HandleCommentResolve(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := s.decode(w, r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}

	comment, err := s.app.Reviews.ResolveComment(r.Context(), chi.URLParam(r, "reviewID"), chi.URLParam(r, "commentID"), req.ActorID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, converter.CommentToAPI(&comment))
}

func (s *Server) HandleReviewRisk(w http.ResponseWriter, r *http.Request) {
	score, err := s.app.Reviews.RiskScore(r.Context(), chi.URLParam(r, "reviewID"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, converter.RiskScoreToAPI(&score))
}

func (s *Server) HandleReviewAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.app.Reviews.AuditTrail(r.Context(), chi.URLParam(r, "reviewID"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, converter.AuditLogsToAPI(entries))
}
