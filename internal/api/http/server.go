package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/forsitet/review-workflow-service/internal/domain"
	"github.com/forsitet/review-workflow-service/internal/service"
)

const (
	headerUserID        = "X-User-ID"
	headerCorrelationID = "X-Correlation-ID"

	maxBodyBytes = 1 << 20
)

type Server struct {
	app      *service.App
	validate *validator.Validate
	logger   *slog.Logger
	nowFunc  func() time.Time
}

func NewServer(app *service.App, logger *slog.Logger) *Server {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json field names in validation details.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Server{
		app:      app,
		validate: v,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

type pagination struct {
	Total       int `json:"total"`
	Skip        int `json:"skip"`
	Limit       int `json:"limit"`
	Pages       int `json:"pages"`
	CurrentPage int `json:"current_page"`
}

func newPagination(total, skip, limit int) *pagination {
	return &pagination{
		Total:       total,
		Skip:        skip,
		Limit:       limit,
		Pages:       (total + limit - 1) / limit,
		CurrentPage: skip/limit + 1,
	}
}

// envelope wraps every response body.
type envelope struct {
	Success       bool                `json:"success"`
	Data          any                 `json:"data"`
	Error         string              `json:"error,omitempty"`
	ErrorCode     string              `json:"error_code,omitempty"`
	ErrorDetails  []domain.FieldError `json:"error_details,omitempty"`
	Pagination    *pagination         `json:"pagination,omitempty"`
	CorrelationID string              `json:"correlation_id"`
	Timestamp     time.Time           `json:"timestamp"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeOK(w http.ResponseWriter, r *http.Request, status int, data any) {
	s.writeJSON(w, status, envelope{
		Success:       true,
		Data:          data,
		CorrelationID: CorrelationID(r.Context()),
		Timestamp:     s.nowFunc().UTC(),
	})
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, data any, total, skip, limit int) {
	s.writeJSON(w, http.StatusOK, envelope{
		Success:       true,
		Data:          data,
		Pagination:    newPagination(total, skip, limit),
		CorrelationID: CorrelationID(r.Context()),
		Timestamp:     s.nowFunc().UTC(),
	})
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, status int, code domain.ErrorCode, message string, details []domain.FieldError) {
	s.writeJSON(w, status, envelope{
		Success:       false,
		Error:         message,
		ErrorCode:     string(code),
		ErrorDetails:  details,
		CorrelationID: CorrelationID(r.Context()),
		Timestamp:     s.nowFunc().UTC(),
	})
}

func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.ErrorCodeValidation:
		return http.StatusBadRequest
	case domain.ErrorCodeIllegalState, domain.ErrorCodeConflict:
		return http.StatusConflict
	case domain.ErrorCodePermissionDenied:
		return http.StatusForbidden
	case domain.ErrorCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	var de *domain.DomainError
	if errors.As(err, &de) {
		status := statusFor(de.Code)
		if status == http.StatusInternalServerError {
			s.logger.Error("internal domain error", "error", err, "correlation_id", CorrelationID(r.Context()))
		}
		s.writeDomainError(w, r, status, de.Code, de.Message, de.Details)
		return
	}

	s.logger.Error("unexpected error", "error", err, "correlation_id", CorrelationID(r.Context()))
	s.writeDomainError(w, r, http.StatusInternalServerError, domain.ErrorCodeInternal, "internal server error", nil)
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	defer func() {
		if err := r.Body.Close(); err != nil {
			s.logger.Debug("error closing request body", "error", err)
		}
	}()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewValidationError("request body is required")
		}
		return domain.NewValidationError("invalid JSON body: %v", err)
	}
	return s.check(dst)
}

func (s *Server) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate request: %w", err)
	}

	de := domain.NewValidationError("request validation failed")
	for _, fe := range verrs {
		de.Details = append(de.Details, domain.FieldError{
			Field:   fe.Field(),
			Code:    fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return de
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", fe.Field(), fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// actor returns the caller identity from the X-User-ID header.
func actor(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(headerUserID))
	if id == "" {
		return "", domain.NewValidationError("%s header is required", headerUserID)
	}
	return id, nil
}

func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.writeOK(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
