package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forsitet/review-workflow-service/internal/adapters/environment"
	"github.com/forsitet/review-workflow-service/internal/adapters/git"
	"github.com/forsitet/review-workflow-service/internal/adapters/notify"
	"github.com/forsitet/review-workflow-service/internal/adapters/risk"
	"github.com/forsitet/review-workflow-service/internal/domain"
	"github.com/forsitet/review-workflow-service/internal/metrics"
	"github.com/forsitet/review-workflow-service/internal/repo/memory"
	"github.com/forsitet/review-workflow-service/internal/service"
)

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type response struct {
	Success       bool                `json:"success"`
	Data          json.RawMessage     `json:"data"`
	Error         string              `json:"error"`
	ErrorCode     string              `json:"error_code"`
	ErrorDetails  []domain.FieldError `json:"error_details"`
	Pagination    *pagination         `json:"pagination"`
	CorrelationID string              `json:"correlation_id"`
}

// newTestHandler wires the API over in-memory storage with users
// u1 alice (developer), u2 bob (reviewer) and u3 carol (admin).
func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := func() time.Time { return testNow }

	users := memory.NewUserRepo()
	reviews := memory.NewReviewRepo()
	envRepo := memory.NewEnvironmentRepo()

	analyzer, err := risk.NewAnalyzer(domain.DefaultRiskWeights(), now)
	require.NoError(t, err)

	sla := service.NewSLAService(service.SLAConfig{}, now)
	policy := service.NewReviewPolicy(now)
	audit := service.NewAuditService(memory.NewAuditLogRepo(), logger, now)
	envs := service.NewEnvironmentService(envRepo, reviews, environment.NewProvisioner(""), audit,
		service.EnvironmentConfig{}, logger, now)
	notifier := notify.NewLogNotifier(notify.Config{}, logger, now)
	m := metrics.New()

	reviewSvc := service.NewReviewService(service.ReviewServiceDeps{
		Reviews:      reviews,
		Users:        users,
		Comments:     memory.NewCommentRepo(),
		RiskScores:   memory.NewRiskScoreRepo(),
		Risk:         analyzer,
		Git:          git.NewProvider(),
		Notifier:     notifier,
		Environments: envs,
		SLA:          sla,
		Policy:       policy,
		Audit:        audit,
		Metrics:      m,
		Logger:       logger,
		NowFunc:      now,
	})
	escalations := service.NewEscalationService(service.EscalationServiceDeps{
		Reviews:      reviews,
		Users:        users,
		Notifier:     notifier,
		Environments: envs,
		SLA:          sla,
		Policy:       policy,
		Audit:        audit,
		Metrics:      m,
		Logger:       logger,
		NowFunc:      now,
	})
	userSvc := service.NewUserService(users, reviews, audit, logger, now)

	_, err = userSvc.Seed(context.Background(), []service.CreateUserInput{
		{ID: "u1", Username: "alice", Email: "alice@example.com", Roles: []domain.Role{domain.RoleDeveloper}},
		{ID: "u2", Username: "bob", Email: "bob@example.com", Roles: []domain.Role{domain.RoleReviewer}},
		{ID: "u3", Username: "carol", Email: "carol@example.com", Roles: []domain.Role{domain.RoleAdmin}},
	})
	require.NoError(t, err)

	app := service.NewApp(reviewSvc, userSvc, envs, escalations, service.NewStatsService(reviews, reviews, sla), audit)
	srv := NewServer(app, logger)
	srv.nowFunc = now
	return NewRouter(srv, m, logger)
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, response) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func decodeData[T any](t *testing.T, resp response) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Data, &v))
	return v
}

type reviewDTO struct {
	ReviewID  string   `json:"review_id"`
	Status    string   `json:"status"`
	Reviewers []string `json:"reviewers"`
	EnvURL    string   `json:"ephemeral_environment_url"`
}

func createReview(t *testing.T, h http.Handler, title string) reviewDTO {
	t.Helper()
	rec, resp := do(t, h, http.MethodPost, "/api/code-reviews", map[string]any{
		"title":         title,
		"description":   "Adds skip and limit to the listing",
		"source_branch": "feature/pagination",
		"target_branch": "main",
		"requester_id":  "u1",
		"priority":      "high",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeData[reviewDTO](t, resp)
}

func TestHealthCheck_EchoesCorrelationID(t *testing.T) {
	h := newTestHandler(t)

	rec, resp := do(t, h, http.MethodGet, "/healthz", nil, headerCorrelationID, "corr-1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "corr-1", resp.CorrelationID)
	assert.Equal(t, "corr-1", rec.Header().Get(headerCorrelationID))
}

func TestHealthCheck_GeneratesCorrelationID(t *testing.T) {
	h := newTestHandler(t)

	rec, resp := do(t, h, http.MethodGet, "/healthz", nil)

	assert.NotEmpty(t, resp.CorrelationID)
	assert.Equal(t, resp.CorrelationID, rec.Header().Get(headerCorrelationID))
}

func TestCreateReview_Validation(t *testing.T) {
	h := newTestHandler(t)

	rec, resp := do(t, h, http.MethodPost, "/api/code-reviews", map[string]any{
		"title":         "Fix",
		"description":   "too short",
		"source_branch": "main",
		"target_branch": "main",
		"requester_id":  "u1",
		"priority":      "urgent",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, string(domain.ErrorCodeValidation), resp.ErrorCode)

	fields := make(map[string]string)
	for _, d := range resp.ErrorDetails {
		fields[d.Field] = d.Code
	}
	assert.Equal(t, map[string]string{
		"title":         "min",
		"description":   "min",
		"target_branch": "nefield",
		"priority":      "oneof",
	}, fields)
}

func TestCreateReview_InvalidJSON(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/code-reviews", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid JSON body")
}

func TestReviewLifecycle(t *testing.T) {
	h := newTestHandler(t)

	review := createReview(t, h, "Add pagination")
	assert.Equal(t, string(domain.ReviewStatusOpen), review.Status)
	require.Equal(t, []string{"u2"}, review.Reviewers)
	assert.NotEmpty(t, review.EnvURL)

	rec, resp := do(t, h, http.MethodPost, "/api/code-reviews/"+review.ReviewID+"/merge", map[string]string{"merger_id": "u1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(domain.ErrorCodeIllegalState), resp.ErrorCode)

	rec, resp = do(t, h, http.MethodPost, "/api/code-reviews/"+review.ReviewID+"/approve", map[string]string{"reviewer_id": "u2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(domain.ReviewStatusApproved), decodeData[reviewDTO](t, resp).Status)

	rec, resp = do(t, h, http.MethodPost, "/api/code-reviews/"+review.ReviewID+"/merge", map[string]string{"merger_id": "u1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(domain.ReviewStatusMerged), decodeData[reviewDTO](t, resp).Status)

	rec, resp = do(t, h, http.MethodGet, "/api/code-reviews/"+review.ReviewID+"/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	trail := decodeData[[]struct {
		Action string `json:"action"`
	}](t, resp)
	require.NotEmpty(t, trail)
	assert.Equal(t, string(domain.AuditActionCreate), trail[0].Action)
	assert.Equal(t, string(domain.AuditActionMerge), trail[len(trail)-1].Action)

	rec, resp = do(t, h, http.MethodGet, "/api/code-reviews/"+review.ReviewID+"/environment", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(domain.EnvironmentStatusDestroyed), decodeData[struct {
		Status string `json:"status"`
	}](t, resp).Status)
}

func TestApprove_NotAssigned(t *testing.T) {
	h := newTestHandler(t)
	review := createReview(t, h, "Add pagination")

	rec, resp := do(t, h, http.MethodPost, "/api/code-reviews/"+review.ReviewID+"/approve", map[string]string{"reviewer_id": "u1"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(domain.ErrorCodePermissionDenied), resp.ErrorCode)
}

func TestGetReview(t *testing.T) {
	h := newTestHandler(t)
	review := createReview(t, h, "Add pagination")

	rec, resp := do(t, h, http.MethodGet, "/api/code-reviews/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(domain.ErrorCodeNotFound), resp.ErrorCode)

	rec, _ = do(t, h, http.MethodGet, "/api/code-reviews/"+review.ReviewID, nil, headerUserID, "u3")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListReviews_Paging(t *testing.T) {
	h := newTestHandler(t)
	createReview(t, h, "Fix login flow")
	createReview(t, h, "Refactor cache")
	createReview(t, h, "Fix logout flow")

	rec, resp := do(t, h, http.MethodGet, "/api/code-reviews?q=fix&limit=1&skip=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, resp.Pagination)
	assert.Equal(t, pagination{Total: 2, Skip: 1, Limit: 1, Pages: 2, CurrentPage: 2}, *resp.Pagination)
	assert.Len(t, decodeData[[]reviewDTO](t, resp), 1)

	tests := []struct {
		name  string
		query string
	}{
		{"limit above max", "limit=101"},
		{"explicit zero limit", "limit=0"},
		{"negative skip", "skip=-1"},
		{"non numeric skip", "skip=abc"},
		{"unknown status", "status=pending"},
		{"unknown sort field", "sort_by=title"},
		{"unknown sort order", "sort_order=up"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := do(t, h, http.MethodGet, "/api/code-reviews?"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(domain.ErrorCodeValidation), resp.ErrorCode)
		})
	}
}

func TestSearchReviews(t *testing.T) {
	h := newTestHandler(t)
	createReview(t, h, "Fix login flow")

	rec, _ := do(t, h, http.MethodGet, "/api/code-reviews/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp := do(t, h, http.MethodGet, "/api/code-reviews/search?q=LOGIN", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]json.RawMessage](t, resp), 1)
}

func TestComments(t *testing.T) {
	h := newTestHandler(t)
	review := createReview(t, h, "Add pagination")
	base := "/api/code-reviews/" + review.ReviewID + "/comments"

	rec, resp := do(t, h, http.MethodPost, base, map[string]any{
		"author_id":   "u2",
		"content":     "Consider a cursor here",
		"file_path":   "internal/handler/user.go",
		"line_number": 12,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	comment := decodeData[struct {
		CommentID string `json:"comment_id"`
		Type      string `json:"comment_type"`
	}](t, resp)
	assert.Equal(t, string(domain.CommentTypeLine), comment.Type)

	rec, resp = do(t, h, http.MethodPost, base+"/"+comment.CommentID+"/resolve", map[string]string{"actor_id": "u1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeData[struct {
		IsResolved bool `json:"is_resolved"`
	}](t, resp).IsResolved)

	rec, resp = do(t, h, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]json.RawMessage](t, resp), 1)
}

func TestUsers(t *testing.T) {
	h := newTestHandler(t)

	rec, resp := do(t, h, http.MethodPost, "/api/users", map[string]any{
		"username": "dave",
		"email":    "dave@example.com",
		"roles":    []string{"reviewer"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dave := decodeData[struct {
		UserID string   `json:"user_id"`
		Roles  []string `json:"roles"`
	}](t, resp)
	assert.NotEmpty(t, dave.UserID)

	rec, resp = do(t, h, http.MethodPost, "/api/users", map[string]any{"username": "dave", "email": "dave2@example.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(domain.ErrorCodeConflict), resp.ErrorCode)

	rec, resp = do(t, h, http.MethodGet, "/api/users?role=reviewer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]json.RawMessage](t, resp), 2)

	rec, _ = do(t, h, http.MethodPost, "/api/users/"+dave.UserID+"/roles/admin", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = do(t, h, http.MethodPost, "/api/users/"+dave.UserID+"/roles/admin", nil, headerUserID, "u3")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeData[struct {
		IsAdmin bool `json:"is_admin"`
	}](t, resp).IsAdmin)

	rec, resp = do(t, h, http.MethodGet, "/api/users/u3/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]json.RawMessage](t, resp), 1)
}

func TestSLAEndpoints(t *testing.T) {
	h := newTestHandler(t)
	review := createReview(t, h, "Add pagination")

	rec, resp := do(t, h, http.MethodGet, "/api/code-reviews/"+review.ReviewID+"/sla", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeData[service.SLAReport](t, resp)
	assert.False(t, report.IsOverdue)
	assert.Positive(t, report.EstimatedReviewMinutes)

	rec, resp = do(t, h, http.MethodGet, "/api/sla/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeData[service.SLASummary](t, resp).TotalActive)

	rec, _ = do(t, h, http.MethodPost, "/api/sla/sweep", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp = do(t, h, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeData[statsResponse](t, resp)
	assert.Equal(t, []statusCountDTO{{Status: string(domain.ReviewStatusOpen), Count: 1}}, stats.ByStatus)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t)
	do(t, h, http.MethodGet, "/healthz", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `review_service_http_requests_total{code="200",method="GET",route="/healthz"} 1`)
}
