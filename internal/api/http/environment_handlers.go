package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/forsitet/review-workflow-service/internal/service/converter"
)

// HandleEnvironmentGet returns the review's latest environment and marks
// it accessed.
func (s *Server) HandleEnvironmentGet(w http.ResponseWriter, r *http.Request) {
	env, err := s.app.Environments.Get(r.Context(), chi.URLParam(r, "reviewID"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, converter.EnvironmentToAPI(&env))
}

func (s *Server) HandleEnvironmentProvision(w http.ResponseWriter, r *http.Request) {
	actorID, err := actor(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	env, err := s.app.Environments.ProvisionForReview(r.Context(), chi.URLParam(r, "reviewID"), actorID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusCreated, converter.EnvironmentToAPI(&env))
}

func (s *Server) HandleEnvironmentStop(w http.ResponseWriter, r *http.Request) {
	env, err := s.app.Environments.Stop(r.Context(), chi.URLParam(r, "reviewID"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, converter.EnvironmentToAPI(&env))
}

func (s *Server) HandleEnvironmentDestroy(w http.ResponseWriter, r *http.Request) {
	actorID, err := actor(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	env, err := s.app.Environments.Destroy(r.Context(), chi.URLParam(r, "reviewID"), actorID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, converter.EnvironmentToAPI(&env))
}
