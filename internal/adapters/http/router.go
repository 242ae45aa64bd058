package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
)

type CaseService interface {
	ResolveCase(ctx context.Context, caseID string) (domain.CaseResolved, error)
	GetCaseState(ctx context.Context, caseID string) (domain.CaseSnapshot, error)
}

type Handler struct {
	service CaseService
}

func NewHandler(service CaseService) *Handler {
	return &Handler{service: service}
}

type RouterOptions struct {
	// Cases is nil for roles that do not serve the case API.
	Cases   *Handler
	Metrics http.Handler
	Ready   func(ctx context.Context) error
	Limiter *RateLimiter
}

func NewRouter(opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ok") })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ready != nil {
			if err := opts.Ready(r.Context()); err != nil {
				logHTTPOperationError(r.Context(), "readyz", http.StatusServiceUnavailable, "NOT_READY", "not ready", err)
				writeError(w, http.StatusServiceUnavailable, "NOT_READY", "not ready")
				return
			}
		}
		writeMessage(w, http.StatusOK, "ready")
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	if opts.Cases != nil {
		r.Route("/api/v1/cases", func(r chi.Router) {
			r.Use(rateLimitMiddleware(opts.Limiter))
			r.Post("/resolve", opts.Cases.resolveCase)
			r.Get("/{caseId}", opts.Cases.getCase)
		})
	}
	return r
}
