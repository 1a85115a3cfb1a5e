// Package handler wires the onboarding endpoints to the orchestrator.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"onramp/internal/history"
	"onramp/internal/onboarding/models"
	"onramp/internal/onboarding/service"
	"onramp/internal/onboarding/store"
	id "onramp/pkg/domain"
	dErrors "onramp/pkg/domain-errors"
	"onramp/pkg/platform/httputil"
	"onramp/pkg/requestcontext"
)

// Service is the orchestrator surface the handler needs.
type Service interface {
	Create(ctx context.Context, in service.CreateInput) (*models.Application, error)
	UpdateDraft(ctx context.Context, appID id.ApplicationID, in service.UpdateDraftInput) (*models.Application, error)
	Submit(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	Cancel(ctx context.Context, appID id.ApplicationID, reason string) (*models.Application, error)
	Reopen(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	MarkDocumentsRequired(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	InitiateKYC(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	SyncKYCStatus(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	RecordKYCVerdict(ctx context.Context, in service.VerdictInput) error
	Decide(ctx context.Context, appID id.ApplicationID, in service.DecisionInput) (*models.Application, error)
	Activate(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	Suspend(ctx context.Context, appID id.ApplicationID, reason string) (*models.Application, error)
	Reactivate(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	Deactivate(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	Get(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	List(ctx context.Context, filter store.ListFilter) ([]*models.Application, error)
	History(ctx context.Context, appID id.ApplicationID) ([]history.Entry, error)
}

// Handler serves the application lifecycle endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the customer-facing routes. Role gating happens in the
// router; handlers only translate HTTP to the service.
func (h *Handler) Register(r chi.Router) {
	r.Post("/applications", h.HandleCreate)
	r.Get("/applications/{applicationID}", h.HandleGet)
	r.Patch("/applications/{applicationID}", h.HandleUpdateDraft)
	r.Get("/applications/{applicationID}/history", h.HandleHistory)
	r.Post("/applications/{applicationID}/submit", h.HandleSubmit)
	r.Post("/applications/{applicationID}/cancel", h.HandleCancel)
	r.Post("/applications/{applicationID}/reopen", h.HandleReopen)
}

// RegisterReview mounts the reviewer and operations routes.
func (h *Handler) RegisterReview(r chi.Router) {
	r.Get("/applications", h.HandleList)
	r.Post("/applications/{applicationID}/require-documents", h.HandleRequireDocuments)
	r.Post("/applications/{applicationID}/kyc", h.HandleInitiateKYC)
	r.Post("/applications/{applicationID}/kyc/sync", h.HandleSyncKYC)
	r.Post("/applications/{applicationID}/decision", h.HandleDecide)
	r.Post("/applications/{applicationID}/activate", h.HandleActivate)
	r.Post("/applications/{applicationID}/suspend", h.HandleSuspend)
	r.Post("/applications/{applicationID}/reactivate", h.HandleReactivate)
	r.Post("/applications/{applicationID}/deactivate", h.HandleDeactivate)
}

// RegisterWebhooks mounts the provider-facing callback routes.
func (h *Handler) RegisterWebhooks(r chi.Router) {
	r.Post("/webhooks/kyc", h.HandleKYCWebhook)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[createRequest](w, r, h.logger)
	if !ok {
		return
	}
	in, err := req.toInput()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	app, err := h.service.Create(ctx, in)
	if err != nil {
		h.logError(ctx, "creating application failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, app)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := listFilterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	apps, err := h.service.List(ctx, filter)
	if err != nil {
		h.logError(ctx, "listing applications failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{
		Applications: apps,
		Count:        len(apps),
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.service.Get)
}

func (h *Handler) HandleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[updateDraftRequest](w, r, h.logger)
	if !ok {
		return
	}
	app, err := h.service.UpdateDraft(ctx, appID, req.toInput())
	if err != nil {
		h.logError(ctx, "updating draft failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.service.Submit)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	req, _ := decodeOptional[reasonRequest](r)
	app, err := h.service.Cancel(ctx, appID, req.Reason)
	if err != nil {
		h.logError(ctx, "cancelling application failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) HandleReopen(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.service.Reopen)
}

func (h *Handler) HandleRequireDocuments(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.service.MarkDocumentsRequired)
}

func (h *Handler) HandleInitiateKYC(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.service.InitiateKYC)
}

func (h *Handler) HandleSyncKYC(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.service.SyncKYCStatus)
}

func (h *Handler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[decisionRequest](w, r, h.logger)
	if !ok {
		return
	}
	in, err := req.toInput()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	app, err := h.service.Decide(ctx, appID, in)
	if err != nil {
		h.logError(ctx, "deciding application failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.service.Activate)
}

func (h *Handler) HandleSuspend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	req, _ := decodeOptional[reasonRequest](r)
	app, err := h.service.Suspend(ctx, appID, req.Reason)
	if err != nil {
		h.logError(ctx, "suspending application failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) HandleReactivate(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.service.Reactivate)
}

func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.service.Deactivate)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	entries, err := h.service.History(ctx, appID)
	if err != nil {
		h.logError(ctx, "loading history failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, historyResponse{Entries: entries, Count: len(entries)})
}

// HandleKYCWebhook ingests provider verdicts. Replays and stale events
// acknowledge with 200 so the provider stops retrying.
func (h *Handler) HandleKYCWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[kycWebhookRequest](w, r, h.logger)
	if !ok {
		return
	}
	err := h.service.RecordKYCVerdict(ctx, service.VerdictInput{
		VerificationID:       req.VerificationID,
		Status:               req.Status,
		RequiresManualReview: req.RequiresManualReview,
		EventID:              req.EventID,
	})
	if err != nil {
		h.logError(ctx, "recording kyc verdict failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// byID is the shared shape of the one-argument lifecycle endpoints.
func (h *Handler) byID(w http.ResponseWriter, r *http.Request,
	op func(context.Context, id.ApplicationID) (*models.Application, error)) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	app, err := op(ctx, appID)
	if err != nil {
		h.logError(ctx, "application operation failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) applicationID(w http.ResponseWriter, r *http.Request) (id.ApplicationID, bool) {
	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.ApplicationID{}, false
	}
	return appID, true
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	// Expected domain refusals stay at info; only infrastructure noise warns.
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeIntegration:
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx), "error", err)
	default:
		h.logger.InfoContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx), "error", err)
	}
}
