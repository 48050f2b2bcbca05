package http

import (
	"net/http"
	"sort"

	"github.com/forsitet/review-workflow-service/internal/service"
)

type reviewerAssignmentsDTO struct {
	ReviewerID  string `json:"reviewer_id"`
	Assignments int64  `json:"assignments"`
}

type statusCountDTO struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type statsResponse struct {
	ByReviewer []reviewerAssignmentsDTO `json:"by_reviewer"`
	ByStatus   []statusCountDTO         `json:"by_status"`
	SLA        service.SLASummary       `json:"sla"`
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.Stats.GetStats(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	resp := statsResponse{
		ByReviewer: make([]reviewerAssignmentsDTO, 0, len(stats.AssignmentsByReviewer)),
		ByStatus:   make([]statusCountDTO, 0, len(stats.ReviewsByStatus)),
		SLA:        stats.SLA,
	}

	for _, id := range sortedKeys(stats.AssignmentsByReviewer) {
		resp.ByReviewer = append(resp.ByReviewer, reviewerAssignmentsDTO{
			ReviewerID:  id,
			Assignments: stats.AssignmentsByReviewer[id],
		})
	}

	for _, st := range sortedKeys(stats.ReviewsByStatus) {
		resp.ByStatus = append(resp.ByStatus, statusCountDTO{
			Status: st,
			Count:  stats.ReviewsByStatus[st],
		})
	}

	s.writeOK(w, r, http.StatusOK, resp)
}
