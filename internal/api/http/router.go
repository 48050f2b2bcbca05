package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/forsitet/review-workflow-service/internal/metrics"
)

// NewRouter mounts the API. m may be nil, in which case /metrics is not
// served and requests are not instrumented.
func NewRouter(server *Server, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(Correlation)
	r.Use(RequestLogger(logger))
	if m != nil {
		r.Use(m.Middleware)
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Get("/healthz", server.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Post("/", server.HandleUserCreate)
			r.Get("/", server.HandleUserList)
			r.Get("/{userID}", server.HandleUserGet)
			r.Get("/{userID}/reviews", server.HandleUserReviews)
			r.Get("/{userID}/audit", server.HandleUserAudit)
			r.Post("/{userID}/roles/{role}", server.HandleUserAddRole)
			r.Delete("/{userID}/roles/{role}", server.HandleUserRemoveRole)
		})

		r.Route("/code-reviews", func(r chi.Router) {
			r.Post("/", server.HandleReviewCreate)
			r.Get("/", server.HandleReviewList)
			r.Get("/search", server.HandleReviewSearch)

			r.Route("/{reviewID}", func(r chi.Router) {
				r.Get("/", server.HandleReviewGet)
				r.Patch("/", server.HandleReviewUpdate)

				r.Post("/reviewers", server.HandleReviewAssign)
				r.Post("/approve", server.HandleReviewApprove)
				r.Post("/reject", server.HandleReviewReject)
				r.Post("/request-changes", server.HandleReviewRequestChanges)
				r.Post("/merge", server.HandleReviewMerge)
				r.Post("/close", server.HandleReviewClose)

				r.Post("/comments", server.HandleCommentAdd)
				r.Get("/comments", server.HandleCommentList)
				r.Post("/comments/{commentID}/resolve", server.HandleCommentResolve)

				r.Get("/sla", server.HandleReviewSLA)
				r.Get("/risk", server.HandleReviewRisk)
				r.Get("/audit", server.HandleReviewAudit)

				r.Get("/environment", server.HandleEnvironmentGet)
				r.Post("/environment", server.HandleEnvironmentProvision)
				r.Post("/environment/stop", server.HandleEnvironmentStop)
				r.Post("/environment/destroy", server.HandleEnvironmentDestroy)
			})
		})

		r.Route("/sla", func(r chi.Router) {
			r.Get("/summary", server.HandleSLASummary)
			r.Get("/overdue", server.HandleSLAOverdue)
			r.Post("/sweep", server.HandleSLASweep)
		})

		r.Get("/stats", server.HandleStats)
	})

	return r
}
