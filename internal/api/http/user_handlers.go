package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/forsitet/review-workflow-service/internal/domain"
	"github.com/forsitet/review-workflow-service/internal/service"
	"github.com/forsitet/review-workflow-service/internal/service/converter"
)

type createUserRequest struct {
	UserID   string   `json:"user_id" validate:"omitempty,max=64"`
	Username string   `json:"username" validate:"required,min=3,max=50"`
	Email    string   `json:"email" validate:"required,email"`
	FullName string   `json:"full_name" validate:"omitempty,max=200"`
	Roles    []string `json:"roles" validate:"omitempty,dive,oneof=developer reviewer qa_engineer security_engineer compliance_officer admin"`
}

func (s *Server) HandleUserCreate(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := s.decode(w, r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}

	roles := make([]domain.Role, 0, len(req.Roles))
	for _, name := range req.Roles {
		role, err := domain.ParseRole(name)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		roles = append(roles, role)
	}

	user, err := s.app.Users.Create(r.Context(), service.CreateUserInput{
		ID:       req.UserID,
		Username: strings.TrimSpace(req.Username),
		Email:    req.Email,
		FullName: req.FullName,
		Roles:    roles,
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusCreated, converter.UserToAPI(&user))
}

func (s *Server) HandleUserList(w http.ResponseWriter, r *http.Request) {
	var role domain.Role
	if v := r.URL.Query().Get("role"); v != "" {
		parsed, err := domain.ParseRole(v)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		role = parsed
	}

	users, err := s.app.Users.List(r.Context(), role)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, converter.UsersToAPI(users))
}

func (s *Server) HandleUserGet(w http.ResponseWriter, r *http.Request) {
	user, err := s.app.Users.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, converter.UserToAPI(&user))
}

type userReviewsResponse struct {
	UserID  string                  `json:"user_id"`
	Reviews []converter.ReviewShort `json:"reviews"`
}

func (s *Server) HandleUserReviews(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	reviews, err := s.app.Users.ListReviews(r.Context(), userID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.writeOK(w, r, http.StatusOK, userReviewsResponse{
		UserID:  userID,
		Reviews: converter.ReviewShortsFromDomain(reviews),
	})
}

func (s *Server) HandleUserAddRole(w http.ResponseWriter, r *http.Request) {
	s.changeRole(w, r, s.app.Users.AddRole)
}

func (s *Server) HandleUserRemoveRole(w http.ResponseWriter, r *http.Request) {
	s.changeRole(w, r, s.app.Users.RemoveRole)
}

type roleChangeFunc func(ctx context.Context, userID string, role domain.Role, actorID string) (domain.User, error)

func (s *Server) changeRole(w http.ResponseWriter, r *http.Request, change roleChangeFunc) {
	actorID, err := actor(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	role, err := domain.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	user, err := change(r.Context(), chi.URLParam(r, "userID"), role, actorID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, converter.UserToAPI(&user))
}

func (s *Server) HandleUserAudit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if _, err := s.app.Users.Get(r.Context(), userID); err != nil {
		s.handleError(w, r, err)
		return
	}

	entries, err := s.app.Audit.ByActor(r.Context(), userID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, converter.AuditLogsToAPI(entries))
}
