package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"onramp/internal/blob"
	"onramp/internal/document/metrics"
	"onramp/internal/document/models"
	"onramp/internal/document/store"
	"onramp/internal/history"
	onboarding "onramp/internal/onboarding/models"
	appstore "onramp/internal/onboarding/store"
	id "onramp/pkg/domain"
	dErrors "onramp/pkg/domain-errors"
	"onramp/pkg/platform/sentinel"
	platformstrings "onramp/pkg/platform/strings"
	"onramp/pkg/requestcontext"
)

// DispatchRequest carries everything the automated verifier needs to pick up
// a document without reading the store.
type DispatchRequest struct {
	DocumentID    id.DocumentID
	ApplicationID id.ApplicationID
	Type          models.DocumentType
	MIMEType      string
	StorageRef    string
}

// Dispatcher hands a document to the automated verification pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) error
}

// CompletionListener is told when a decision may have changed an application's
// completion picture. The orchestrator implements it; nil disables the hook.
type CompletionListener interface {
	CompletionChanged(ctx context.Context, appID id.ApplicationID)
}

// Service runs the document verification workflow: upload intake, automated
// verification hand-off, reviewer decisions and completion aggregation.
type Service struct {
	docs     store.DocumentStore
	apps     appstore.ApplicationStore
	blobs    blob.Store
	ledger   *history.Ledger
	dispatch Dispatcher
	listener CompletionListener
	metrics  *metrics.Metrics
	log      *slog.Logger

	maxSizeBytes int64
	allowedMIME  map[string]struct{}
	aiEligible   map[string]struct{}
	requirements Requirements
}

// Option configures optional collaborators.
type Option func(*Service)

func WithLedger(l *history.Ledger) Option {
	return func(s *Service) { s.ledger = l }
}

func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) { s.dispatch = d }
}

func WithCompletionListener(l CompletionListener) Option {
	return func(s *Service) { s.listener = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithUploadLimits bounds accepted uploads. A nil or empty MIME list keeps the
// defaults.
func WithUploadLimits(maxSizeBytes int64, allowedMIME []string) Option {
	return func(s *Service) {
		if maxSizeBytes > 0 {
			s.maxSizeBytes = maxSizeBytes
		}
		if len(allowedMIME) > 0 {
			s.allowedMIME = stringSet(allowedMIME)
		}
	}
}

// WithAIEligibility installs the "type/mime" pairs that are sent to automated
// verification after upload.
func WithAIEligibility(pairs []string) Option {
	return func(s *Service) { s.aiEligible = stringSet(pairs) }
}

func WithRequirements(r Requirements) Option {
	return func(s *Service) { s.requirements = r }
}

// New builds the workflow service. docs, apps and blobs are required; the
// rest default to no-ops.
func New(docs store.DocumentStore, apps appstore.ApplicationStore, blobs blob.Store, opts ...Option) *Service {
	s := &Service{
		docs:         docs,
		apps:         apps,
		blobs:        blobs,
		log:          slog.Default(),
		maxSizeBytes: 10 << 20,
		allowedMIME:  stringSet([]string{"image/jpeg", "image/png", "application/pdf"}),
		requirements: DefaultRequirements(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func stringSet(values []string) map[string]struct{} {
	cleaned := platformstrings.DedupeAndTrimLower(values)
	set := make(map[string]struct{}, len(cleaned))
	for _, v := range cleaned {
		set[v] = struct{}{}
	}
	return set
}

// UploadInput is one incoming artifact.
type UploadInput struct {
	ApplicationID id.ApplicationID
	Type          models.DocumentType
	FileName      string
	MIMEType      string
	Data          []byte
	IsPrimary     bool
}

// Upload validates and stores an artifact, creates its verification record
// and, when the type/MIME pair is eligible, hands it to the automated
// verifier. The document only leaves PENDING after the hand-off succeeded;
// a failed hand-off leaves it PENDING for manual pickup.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*models.Document, error) {
	if _, err := models.ParseDocumentType(string(in.Type)); err != nil {
		return nil, err
	}
	if in.FileName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "file name is required")
	}
	if len(in.Data) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "file content is empty")
	}
	if int64(len(in.Data)) > s.maxSizeBytes {
		return nil, dErrors.Newf(dErrors.CodeValidation,
			"file exceeds the %d byte limit", s.maxSizeBytes).
			WithMeta("size_bytes", fmt.Sprintf("%d", len(in.Data)))
	}
	if _, ok := s.allowedMIME[strings.ToLower(in.MIMEType)]; !ok {
		return nil, dErrors.Newf(dErrors.CodeValidation, "content type %q is not accepted", in.MIMEType)
	}

	app, err := s.apps.FindByID(ctx, in.ApplicationID)
	if err != nil {
		return nil, translateStoreErr(err, "application", in.ApplicationID.String())
	}
	if !acceptsUploads(app.Status) {
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition,
			"application %s no longer accepts documents", app.ID).
			WithMeta("application_status", string(app.Status))
	}

	if in.IsPrimary {
		if err := s.guardDuplicatePrimary(ctx, in.ApplicationID, in.Type); err != nil {
			return nil, err
		}
	}

	now := requestcontext.Now(ctx)
	docID := id.NewDocumentID()
	sum := sha256.Sum256(in.Data)
	storageRef := fmt.Sprintf("%s/%s/%s", in.ApplicationID, docID, in.FileName)

	if err := s.blobs.Put(ctx, storageRef, in.Data, in.MIMEType); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeIntegration, "storing document content failed")
	}

	doc := models.NewDocument(docID, in.ApplicationID, in.Type,
		in.FileName, hex.EncodeToString(sum[:]), in.MIMEType, storageRef,
		int64(len(in.Data)), in.IsPrimary, now)

	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, translateStoreErr(err, "document", docID.String())
	}
	s.recordHistory(ctx, doc, "", "document uploaded", now)
	s.metrics.IncrementUploaded(string(doc.Type))

	if s.eligibleForAI(doc) && s.dispatch != nil {
		if err := s.dispatchAI(ctx, doc, now); err != nil {
			s.log.Warn("automated verification hand-off failed, document stays pending",
				"document_id", doc.ID.String(), "error", err)
		}
	}
	return doc, nil
}

// guardDuplicatePrimary rejects a primary upload when an approved document of
// the same type already exists, whether or not that one was primary, and
// while another primary of the type is still live. A rejected or pulled-back
// primary may be replaced.
func (s *Service) guardDuplicatePrimary(ctx context.Context, appID id.ApplicationID, docType models.DocumentType) error {
	existing, err := s.docs.ListByApplication(ctx, appID)
	if err != nil {
		return translateStoreErr(err, "application", appID.String())
	}
	for _, doc := range existing {
		if doc.Type != docType {
			continue
		}
		if doc.Status == models.VerificationApproved {
			return dErrors.Newf(dErrors.CodeValidation,
				"an approved %s document already exists for application %s", docType, appID).
				WithMeta("document_id", doc.ID.String()).
				WithMeta("document_status", string(doc.Status))
		}
		if !doc.IsPrimary {
			continue
		}
		if doc.Status == models.VerificationRejected || doc.Status == models.VerificationResubmissionRequired {
			continue
		}
		return dErrors.Newf(dErrors.CodeValidation,
			"a primary %s document already exists for application %s", docType, appID).
			WithMeta("document_id", doc.ID.String()).
			WithMeta("document_status", string(doc.Status))
	}
	return nil
}

func (s *Service) eligibleForAI(doc *models.Document) bool {
	_, ok := s.aiEligible[string(doc.Type)+"/"+strings.ToLower(doc.MIMEType)]
	return ok
}

func (s *Service) dispatchAI(ctx context.Context, doc *models.Document, now time.Time) error {
	err := s.dispatch.Dispatch(ctx, DispatchRequest{
		DocumentID:    doc.ID,
		ApplicationID: doc.ApplicationID,
		Type:          doc.Type,
		MIMEType:      doc.MIMEType,
		StorageRef:    doc.StorageRef,
	})
	if err != nil {
		return err
	}
	from := doc.Status
	if err := doc.Transition(models.VerificationAIInProgress, now); err != nil {
		return err
	}
	if err := s.docs.Update(ctx, doc); err != nil {
		return translateStoreErr(err, "document", doc.ID.String())
	}
	s.recordHistory(ctx, doc, string(from), "dispatched for automated verification", now)
	s.metrics.IncrementAIDispatched()
	return nil
}

// ReviewInput carries a reviewer decision's metadata.
type ReviewInput struct {
	ReviewerID        *id.ReviewerID
	Notes             string
	RejectionReason   string
	SuggestedAction   string
	Confidence        *float64
	ExpiryDate        *time.Time
	AllowResubmission bool
}

// Approve moves a document to APPROVED. Allowed from PENDING, AI_VERIFIED and
// MANUAL_REVIEW per the transition table.
func (s *Service) Approve(ctx context.Context, docID id.DocumentID, review ReviewInput) (*models.Document, error) {
	doc, err := s.decide(ctx, docID, models.VerificationApproved, review, "approved by reviewer")
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementDecision("approved")
	s.notifyCompletion(ctx, doc.ApplicationID)
	return doc, nil
}

// Reject moves a document to REJECTED. A reason is mandatory so the customer
// always learns why.
func (s *Service) Reject(ctx context.Context, docID id.DocumentID, review ReviewInput) (*models.Document, error) {
	if review.RejectionReason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}
	doc, err := s.decide(ctx, docID, models.VerificationRejected, review, review.RejectionReason)
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementDecision("rejected")
	s.notifyCompletion(ctx, doc.ApplicationID)
	return doc, nil
}

// EscalateToManualReview routes a document to a human reviewer.
func (s *Service) EscalateToManualReview(ctx context.Context, docID id.DocumentID, review ReviewInput) (*models.Document, error) {
	return s.decide(ctx, docID, models.VerificationManualReview, review, "escalated to manual review")
}

func (s *Service) decide(ctx context.Context, docID id.DocumentID, target models.VerificationStatus,
	review ReviewInput, reason string) (*models.Document, error) {
	doc, err := s.docs.FindByID(ctx, docID)
	if err != nil {
		return nil, translateStoreErr(err, "document", docID.String())
	}
	now := requestcontext.Now(ctx)
	from := doc.Status
	if err := doc.Transition(target, now); err != nil {
		return nil, err
	}
	applyReview(doc, review, now)
	if err := s.docs.Update(ctx, doc); err != nil {
		return nil, translateStoreErr(err, "document", docID.String())
	}
	s.recordHistory(ctx, doc, string(from), reason, now)
	return doc, nil
}

// RequestResubmission pulls a non-terminal document back so the customer can
// replace it. This is the corrective path: it is allowed from any non-terminal
// status regardless of the forward table.
func (s *Service) RequestResubmission(ctx context.Context, docID id.DocumentID, review ReviewInput) (*models.Document, error) {
	doc, err := s.docs.FindByID(ctx, docID)
	if err != nil {
		return nil, translateStoreErr(err, "document", docID.String())
	}
	if err := doc.CanRequestResubmission(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	from := doc.Status
	doc.ApplyTransition(models.VerificationResubmissionRequired, now)
	doc.AllowResubmission = true
	applyReview(doc, review, now)
	if err := s.docs.Update(ctx, doc); err != nil {
		return nil, translateStoreErr(err, "document", docID.String())
	}
	reason := review.Notes
	if reason == "" {
		reason = "resubmission requested"
	}
	s.recordHistory(ctx, doc, string(from), reason, now)
	s.metrics.IncrementDecision("resubmission_required")
	s.notifyCompletion(ctx, doc.ApplicationID)
	return doc, nil
}

func applyReview(doc *models.Document, review ReviewInput, now time.Time) {
	doc.Review.ReviewerID = review.ReviewerID
	doc.Review.Notes = review.Notes
	doc.Review.RejectionReason = review.RejectionReason
	doc.Review.SuggestedAction = review.SuggestedAction
	doc.Review.Confidence = review.Confidence
	doc.Review.ExpiryDate = review.ExpiryDate
	reviewedAt := now
	doc.Review.ReviewedAt = &reviewedAt
	if review.AllowResubmission {
		doc.AllowResubmission = true
	}
}

// AIResult is the verdict delivered by the automated verifier.
type AIResult struct {
	DocumentID           id.DocumentID
	Verified             bool
	RequiresManualReview bool
	Confidence           *float64
	Notes                string
}

// ApplyAIResult records an automated verdict. Verdicts arriving after the
// document moved on (a reviewer decided first, or a duplicate delivery) are
// dropped silently so redeliveries stay harmless.
func (s *Service) ApplyAIResult(ctx context.Context, result AIResult) error {
	doc, err := s.docs.FindByID(ctx, result.DocumentID)
	if err != nil {
		return translateStoreErr(err, "document", result.DocumentID.String())
	}
	if doc.Status != models.VerificationAIInProgress {
		s.log.Info("dropping stale automated verdict",
			"document_id", doc.ID.String(), "status", string(doc.Status))
		s.metrics.IncrementStaleAIVerdict()
		return nil
	}

	target := models.VerificationAIFailed
	verdict := "failed"
	switch {
	case result.RequiresManualReview:
		target = models.VerificationManualReview
		verdict = "manual_review"
	case result.Verified:
		target = models.VerificationAIVerified
		verdict = "verified"
	}

	now := requestcontext.Now(ctx)
	from := doc.Status
	if err := doc.Transition(target, now); err != nil {
		return err
	}
	doc.Review.Confidence = result.Confidence
	doc.Review.Notes = result.Notes
	reviewedAt := now
	doc.Review.ReviewedAt = &reviewedAt
	if err := s.docs.Update(ctx, doc); err != nil {
		return translateStoreErr(err, "document", doc.ID.String())
	}
	s.recordHistory(ctx, doc, string(from), "automated verification verdict", now)
	s.metrics.IncrementAIResult(verdict)
	return nil
}

// Get returns one document.
func (s *Service) Get(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	doc, err := s.docs.FindByID(ctx, docID)
	if err != nil {
		return nil, translateStoreErr(err, "document", docID.String())
	}
	return doc, nil
}

// ListByApplication returns every document under an application.
func (s *Service) ListByApplication(ctx context.Context, appID id.ApplicationID) ([]*models.Document, error) {
	docs, err := s.docs.ListByApplication(ctx, appID)
	if err != nil {
		return nil, translateStoreErr(err, "application", appID.String())
	}
	return docs, nil
}

// Download returns the stored bytes and their content type.
func (s *Service) Download(ctx context.Context, docID id.DocumentID) ([]byte, string, error) {
	doc, err := s.docs.FindByID(ctx, docID)
	if err != nil {
		return nil, "", translateStoreErr(err, "document", docID.String())
	}
	data, err := s.blobs.Get(ctx, doc.StorageRef)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeIntegration, "fetching document content failed")
	}
	return data, doc.MIMEType, nil
}

// History returns the document's transition trail, oldest first.
func (s *Service) History(ctx context.Context, docID id.DocumentID) ([]history.Entry, error) {
	if s.ledger == nil {
		return nil, nil
	}
	return s.ledger.List(ctx, history.EntityDocument, docID.String())
}

// Completion evaluates the application's required document groups.
func (s *Service) Completion(ctx context.Context, appID id.ApplicationID) (CompletionStatus, error) {
	app, err := s.apps.FindByID(ctx, appID)
	if err != nil {
		return CompletionStatus{}, translateStoreErr(err, "application", appID.String())
	}
	docs, err := s.docs.ListByApplication(ctx, appID)
	if err != nil {
		return CompletionStatus{}, translateStoreErr(err, "application", appID.String())
	}
	return EvaluateCompletion(docs, s.requirements[app.Segment]), nil
}

// Purge physically removes a document and its stored bytes. Administrative
// use only; the history trail stays.
func (s *Service) Purge(ctx context.Context, docID id.DocumentID) error {
	doc, err := s.docs.FindByID(ctx, docID)
	if err != nil {
		return translateStoreErr(err, "document", docID.String())
	}
	if err := s.blobs.Delete(ctx, doc.StorageRef); err != nil {
		s.log.Warn("purging stored content failed", "document_id", docID.String(), "error", err)
	}
	if err := s.docs.Delete(ctx, docID); err != nil {
		return translateStoreErr(err, "document", docID.String())
	}
	if s.ledger != nil {
		entry := history.Entry{
			EntityType: history.EntityDocument,
			EntityRef:  docID.String(),
			FromStatus: string(doc.Status),
			Reason:     "document purged",
			Actor:      requestcontext.Actor(ctx),
			Timestamp:  requestcontext.Now(ctx),
		}
		if err := s.ledger.Record(ctx, entry); err != nil {
			s.log.Error("recording purge failed", "document_id", docID.String(), "error", err)
		}
	}
	return nil
}

func (s *Service) recordHistory(ctx context.Context, doc *models.Document, from, reason string, now time.Time) {
	if s.ledger == nil {
		return
	}
	entry := history.Entry{
		EntityType: history.EntityDocument,
		EntityRef:  doc.ID.String(),
		FromStatus: from,
		ToStatus:   string(doc.Status),
		Reason:     reason,
		Actor:      requestcontext.Actor(ctx),
		Timestamp:  now,
	}
	if err := s.ledger.Record(ctx, entry); err != nil {
		s.log.Error("recording history failed", "document_id", doc.ID.String(), "error", err)
	}
}

func (s *Service) notifyCompletion(ctx context.Context, appID id.ApplicationID) {
	if s.listener != nil {
		s.listener.CompletionChanged(ctx, appID)
	}
}

// acceptsUploads limits intake to the phases where documents still matter.
// Once an application reaches a decision or an account state, uploads stop.
func acceptsUploads(status onboarding.Status) bool {
	switch status {
	case onboarding.StatusDraft, onboarding.StatusSubmitted,
		onboarding.StatusDocumentsRequired, onboarding.StatusDocumentsUploaded,
		onboarding.StatusKYCInProgress, onboarding.StatusKYCFailed,
		onboarding.StatusUnderReview:
		return true
	}
	return false
}

func translateStoreErr(err error, entity, ref string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Newf(dErrors.CodeNotFound, "%s %s not found", entity, ref)
	case errors.Is(err, sentinel.ErrVersionMismatch):
		return dErrors.Wrap(err, dErrors.CodeConflict,
			fmt.Sprintf("%s %s was modified concurrently, reload and retry", entity, ref))
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, fmt.Sprintf("%s %s already exists", entity, ref))
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("%s store failure", entity))
	}
}
