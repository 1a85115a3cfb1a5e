// Package handler wires the document verification endpoints to the workflow.
package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"onramp/internal/document/models"
	"onramp/internal/document/service"
	"onramp/internal/history"
	id "onramp/pkg/domain"
	dErrors "onramp/pkg/domain-errors"
	"onramp/pkg/platform/httputil"
	"onramp/pkg/requestcontext"
)

// Service is the workflow surface the handler needs.
type Service interface {
	Upload(ctx context.Context, in service.UploadInput) (*models.Document, error)
	Get(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*models.Document, error)
	Download(ctx context.Context, docID id.DocumentID) ([]byte, string, error)
	History(ctx context.Context, docID id.DocumentID) ([]history.Entry, error)
	Approve(ctx context.Context, docID id.DocumentID, review service.ReviewInput) (*models.Document, error)
	Reject(ctx context.Context, docID id.DocumentID, review service.ReviewInput) (*models.Document, error)
	RequestResubmission(ctx context.Context, docID id.DocumentID, review service.ReviewInput) (*models.Document, error)
	EscalateToManualReview(ctx context.Context, docID id.DocumentID, review service.ReviewInput) (*models.Document, error)
	ApplyAIResult(ctx context.Context, result service.AIResult) error
	Completion(ctx context.Context, appID id.ApplicationID) (service.CompletionStatus, error)
	Purge(ctx context.Context, docID id.DocumentID) error
}

// Handler serves upload, review and completion endpoints.
type Handler struct {
	service      Service
	logger       *slog.Logger
	maxSizeBytes int64
}

func New(service Service, logger *slog.Logger, maxSizeBytes int64) *Handler {
	if maxSizeBytes <= 0 {
		maxSizeBytes = 10 << 20
	}
	return &Handler{service: service, logger: logger, maxSizeBytes: maxSizeBytes}
}

// Register mounts the customer-facing document routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/applications/{applicationID}/documents", h.HandleUpload)
	r.Get("/applications/{applicationID}/documents", h.HandleList)
	r.Get("/applications/{applicationID}/completion", h.HandleCompletion)
	r.Get("/documents/{documentID}", h.HandleGet)
	r.Get("/documents/{documentID}/content", h.HandleDownload)
	r.Get("/documents/{documentID}/history", h.HandleHistory)
}

// RegisterReview mounts the reviewer decision routes.
func (h *Handler) RegisterReview(r chi.Router) {
	r.Post("/documents/{documentID}/approve", h.HandleApprove)
	r.Post("/documents/{documentID}/reject", h.HandleReject)
	r.Post("/documents/{documentID}/resubmission", h.HandleRequestResubmission)
	r.Post("/documents/{documentID}/escalate", h.HandleEscalate)
}

// RegisterAdmin mounts the destructive routes kept behind the admin role.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Delete("/documents/{documentID}", h.HandlePurge)
}

// RegisterWebhooks mounts the verifier callback. Normally verdicts arrive via
// the worker; the webhook covers externally hosted verifiers.
func (h *Handler) RegisterWebhooks(r chi.Router) {
	r.Post("/webhooks/ai-verification", h.HandleAIWebhook)
}

// HandleUpload accepts a multipart form: "file" plus "type" and optional
// "is_primary" fields.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxSizeBytes+4096)
	if err := r.ParseMultipartForm(h.maxSizeBytes); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "expecting a multipart form within the size limit"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "file part is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "reading file part failed"))
		return
	}

	docType, err := models.ParseDocumentType(r.FormValue("type"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	isPrimary, _ := strconv.ParseBool(r.FormValue("is_primary"))

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	doc, err := h.service.Upload(ctx, service.UploadInput{
		ApplicationID: appID,
		Type:          docType,
		FileName:      header.Filename,
		MIMEType:      mimeType,
		Data:          data,
		IsPrimary:     isPrimary,
	})
	if err != nil {
		h.logError(ctx, "document upload failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, doc)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	docs, err := h.service.ListByApplication(ctx, appID)
	if err != nil {
		h.logError(ctx, "listing documents failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Documents: docs, Count: len(docs)})
}

func (h *Handler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	status, err := h.service.Completion(ctx, appID)
	if err != nil {
		h.logError(ctx, "evaluating completion failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Get(ctx, docID)
	if err != nil {
		h.logError(ctx, "loading document failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	data, mimeType, err := h.service.Download(ctx, docID)
	if err != nil {
		h.logError(ctx, "downloading document failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	entries, err := h.service.History(ctx, docID)
	if err != nil {
		h.logError(ctx, "loading document history failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, historyResponse{Entries: entries, Count: len(entries)})
}

func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.service.Approve)
}

func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.service.Reject)
}

func (h *Handler) HandleRequestResubmission(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.service.RequestResubmission)
}

func (h *Handler) HandleEscalate(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.service.EscalateToManualReview)
}

func (h *Handler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	if err := h.service.Purge(ctx, docID); err != nil {
		h.logError(ctx, "purging document failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAIWebhook ingests verifier verdicts delivered over HTTP. Stale
// verdicts acknowledge with 200 so the verifier stops retrying.
func (h *Handler) HandleAIWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[aiWebhookRequest](w, r, h.logger)
	if !ok {
		return
	}
	result, err := req.toResult()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.ApplyAIResult(ctx, result); err != nil {
		h.logError(ctx, "applying verification verdict failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// review is the shared shape of the reviewer decision endpoints.
func (h *Handler) review(w http.ResponseWriter, r *http.Request,
	op func(context.Context, id.DocumentID, service.ReviewInput) (*models.Document, error)) {
	ctx := r.Context()
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[reviewRequest](w, r, h.logger)
	if !ok {
		return
	}
	in, err := req.toInput()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	doc, err := op(ctx, docID, in)
	if err != nil {
		h.logError(ctx, "document review failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) applicationID(w http.ResponseWriter, r *http.Request) (id.ApplicationID, bool) {
	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.ApplicationID{}, false
	}
	return appID, true
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (id.DocumentID, bool) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.DocumentID{}, false
	}
	return docID, true
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeIntegration:
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx), "error", err)
	default:
		h.logger.InfoContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx), "error", err)
	}
}
