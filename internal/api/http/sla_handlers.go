package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/forsitet/review-workflow-service/internal/service/converter"
)

func (s *Server) HandleReviewSLA(w http.ResponseWriter, r *http.Request) {
	report, err := s.app.Reviews.SLAReport(r.Context(), chi.URLParam(r, "reviewID"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, report)
}

func (s *Server) HandleSLASummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.app.Reviews.SLASummary(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, summary)
}

func (s *Server) HandleSLAOverdue(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.app.Reviews.Overdue(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, converter.ReviewShortsFromDomain(reviews))
}

// HandleSLASweep runs one escalation sweep synchronously.
func (s *Server) HandleSLASweep(w http.ResponseWriter, r *http.Request) {
	result, err := s.app.Escalations.Sweep(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.writeOK(w, r, http.StatusOK, result)
}
