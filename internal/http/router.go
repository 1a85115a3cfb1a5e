// Package httpapi assembles the HTTP surface: middleware stack, role-gated
// route groups, webhooks and operational endpoints.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	documenthandler "onramp/internal/document/handler"
	onboardinghandler "onramp/internal/onboarding/handler"
	"onramp/pkg/platform/middleware"
	"onramp/pkg/platform/token"
)

// Dependencies carries everything the router mounts.
type Dependencies struct {
	Logger     *slog.Logger
	Validator  middleware.Validator
	Onboarding *onboardinghandler.Handler
	Documents  *documenthandler.Handler
	// Ready reports readiness of the backing stores. nil means always ready.
	Ready func(ctx context.Context) error
}

// NewRouter builds the full route tree.
//
// Role model: customers drive their own application, reviewers and admins
// drive review and account operations, admins alone may purge, and webhooks
// authenticate as service principals.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if deps.Ready != nil {
			if err := deps.Ready(req.Context()); err != nil {
				deps.Logger.WarnContext(req.Context(), "readiness probe failed", "error", err)
				writeStatus(w, http.StatusServiceUnavailable, "not ready")
				return
			}
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	authed := middleware.RequireAuth(deps.Validator, deps.Logger)
	reviewOnly := middleware.RequireRole(deps.Logger, token.RoleReviewer, token.RoleAdmin)
	adminOnly := middleware.RequireRole(deps.Logger, token.RoleAdmin)
	serviceOnly := middleware.RequireRole(deps.Logger, token.RoleService, token.RoleAdmin)

	r.Route("/v1", func(r chi.Router) {
		r.Use(authed)

		deps.Onboarding.Register(r)
		deps.Documents.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(reviewOnly)
			deps.Onboarding.RegisterReview(r)
			deps.Documents.RegisterReview(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			deps.Documents.RegisterAdmin(r)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(authed, serviceOnly)
		deps.Onboarding.RegisterWebhooks(r)
		deps.Documents.RegisterWebhooks(r)
	})

	return r
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"status":"` + status + `"}`))
}
