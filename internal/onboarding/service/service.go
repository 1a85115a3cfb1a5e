package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	docservice "onramp/internal/document/service"
	"onramp/internal/history"
	"onramp/internal/idempotency"
	"onramp/internal/notify"
	"onramp/internal/onboarding/metrics"
	"onramp/internal/onboarding/models"
	"onramp/internal/onboarding/ports"
	"onramp/internal/onboarding/store"
	id "onramp/pkg/domain"
	dErrors "onramp/pkg/domain-errors"
	"onramp/pkg/platform/sentinel"
	"onramp/pkg/requestcontext"
)

// CompletionGate reports whether an application's required documents are all
// approved. The document workflow implements it.
type CompletionGate interface {
	Completion(ctx context.Context, appID id.ApplicationID) (docservice.CompletionStatus, error)
}

// Notifier delivers customer-facing notifications. nil disables them.
type Notifier interface {
	Emit(n notify.Notification)
}

// Service is the onboarding orchestrator. It owns the application state
// machine and coordinates the KYC, auth and billing collaborators around it.
//
// Ordering rule for provider calls: the external call happens before the
// status transition, so a provider failure leaves the application unchanged
// and the operation can simply be retried.
type Service struct {
	apps    store.ApplicationStore
	kyc     ports.KYCProvider
	auth    ports.AuthProvider
	billing ports.BillingProvider
	gate    CompletionGate
	ledger  *history.Ledger
	notes   Notifier
	idem    idempotency.Store
	idemTTL time.Duration
	metrics *metrics.Metrics
	log     *slog.Logger
}

// Option configures optional collaborators.
type Option func(*Service)

func WithCompletionGate(g CompletionGate) Option {
	return func(s *Service) { s.gate = g }
}

func WithLedger(l *history.Ledger) Option {
	return func(s *Service) { s.ledger = l }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notes = n }
}

// WithIdempotency guards webhook redeliveries. Claimed keys expire after ttl.
func WithIdempotency(store idempotency.Store, ttl time.Duration) Option {
	return func(s *Service) {
		s.idem = store
		s.idemTTL = ttl
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// New builds the orchestrator. The store and the three providers are
// required; everything else defaults to a no-op.
func New(apps store.ApplicationStore, kyc ports.KYCProvider, auth ports.AuthProvider,
	billing ports.BillingProvider, opts ...Option) *Service {
	s := &Service{
		apps:    apps,
		kyc:     kyc,
		auth:    auth,
		billing: billing,
		idemTTL: 24 * time.Hour,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput starts a new application.
type CreateInput struct {
	Segment         models.Segment
	Profile         models.Profile
	TermsAccepted   bool
	PrivacyAccepted bool
}

// Create opens a DRAFT application.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Application, error) {
	now := requestcontext.Now(ctx)
	app, err := models.NewApplication(id.NewApplicationID(), in.Segment, in.Profile, now)
	if err != nil {
		return nil, err
	}
	app.TermsAccepted = in.TermsAccepted
	app.PrivacyAccepted = in.PrivacyAccepted

	if err := s.apps.Create(ctx, app); err != nil {
		return nil, s.translateStoreErr(err, "application", app.ID.String())
	}
	s.recordHistory(ctx, app, "", "application created", now)
	s.metrics.IncrementCreated(string(app.Segment))
	return app, nil
}

// UpdateDraftInput carries partial draft edits. Nil fields are left alone.
type UpdateDraftInput struct {
	Profile         *models.Profile
	TermsAccepted   *bool
	PrivacyAccepted *bool
}

// UpdateDraft edits an application while it is still a draft. Any other
// status refuses customer edits.
func (s *Service) UpdateDraft(ctx context.Context, appID id.ApplicationID, in UpdateDraftInput) (*models.Application, error) {
	app, err := s.load(ctx, appID)
	if err != nil {
		return nil, err
	}
	if !app.IsDraft() {
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition,
			"application %s is %s and no longer editable", app.ID, app.Status).
			WithMeta("application_status", string(app.Status))
	}
	if in.Profile != nil {
		app.Profile = *in.Profile
	}
	if in.TermsAccepted != nil {
		app.TermsAccepted = *in.TermsAccepted
	}
	if in.PrivacyAccepted != nil {
		app.PrivacyAccepted = *in.PrivacyAccepted
	}
	app.UpdatedAt = requestcontext.Now(ctx)
	if err := s.apps.Update(ctx, app); err != nil {
		return nil, s.translateStoreErr(err, "application", appID.String())
	}
	return app, nil
}

// Submit moves a complete draft into the pipeline.
func (s *Service) Submit(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	app, err := s.load(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := app.CanTransition(models.StatusSubmitted); err != nil {
		s.metrics.IncrementDenied(string(models.StatusSubmitted))
		return nil, err
	}
	if err := app.ReadyToSubmit(); err != nil {
		return nil, err
	}
	if err := s.applyTransition(ctx, app, models.StatusSubmitted, "application submitted"); err != nil {
		return nil, err
	}
	s.notify(app, "Application received",
		"We received your application and will start verification shortly.")
	return app, nil
}

// MarkDocumentsRequired asks the customer for verification documents.
func (s *Service) MarkDocumentsRequired(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	app, err := s.load(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := s.applyTransition(ctx, app, models.StatusDocumentsRequired, "verification documents requested"); err != nil {
		return nil, err
	}
	s.notify(app, "Documents required",
		"Please upload the required verification documents to continue.")
	return app, nil
}

// Cancel withdraws an application at the customer's request.
func (s *Service) Cancel(ctx context.Context, appID id.ApplicationID, reason string) (*models.Application, error) {
	app, err := s.load(ctx, appID)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "cancelled by customer"
	}
	if err := s.applyTransition(ctx, app, models.StatusCancelled, reason); err != nil {
		return nil, err
	}
	s.notify(app, "Application cancelled", "Your application has been cancelled.")
	return app, nil
}

// Reopen returns a rejected or cancelled application to DRAFT so the
// customer can fix it and try again. The previous rejection reason stays in
// the history trail but is cleared from the live record.
func (s *Service) Reopen(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	app, err := s.load(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := app.CanTransition(models.StatusDraft); err != nil {
		s.metrics.IncrementDenied(string(models.StatusDraft))
		return nil, err
	}
	app.RejectionReason = ""
	if err := s.applyTransition(ctx, app, models.StatusDraft, "application reopened"); err != nil {
		return nil, err
	}
	return app, nil
}

// CompletionChanged is the document workflow's hook. When the customer was
// asked for documents and the set is now complete, the application advances
// automatically.
func (s *Service) CompletionChanged(ctx context.Context, appID id.ApplicationID) {
	if s.gate == nil {
		return
	}
	app, err := s.load(ctx, appID)
	if err != nil {
		s.log.Error("completion hook load failed", "application_id", appID.String(), "error", err)
		return
	}
	if app.Status != models.StatusDocumentsRequired {
		return
	}
	status, err := s.gate.Completion(ctx, appID)
	if err != nil {
		s.log.Error("completion hook evaluation failed", "application_id", appID.String(), "error", err)
		return
	}
	if !status.Complete {
		return
	}
	if err := s.applyTransition(ctx, app, models.StatusDocumentsUploaded, "all required documents approved"); err != nil {
		s.log.Error("completion hook transition failed", "application_id", appID.String(), "error", err)
		return
	}
	s.notify(app, "Documents verified",
		"All required documents were verified. Your application moves to the next step.")
}

// Get returns one application.
func (s *Service) Get(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	return s.load(ctx, appID)
}

// List returns applications matching the filter.
func (s *Service) List(ctx context.Context, filter store.ListFilter) ([]*models.Application, error) {
	apps, err := s.apps.List(ctx, filter)
	if err != nil {
		return nil, s.translateStoreErr(err, "application", "")
	}
	return apps, nil
}

// History returns the application's transition trail, oldest first.
func (s *Service) History(ctx context.Context, appID id.ApplicationID) ([]history.Entry, error) {
	if s.ledger == nil {
		return nil, nil
	}
	return s.ledger.List(ctx, history.EntityApplication, appID.String())
}

func (s *Service) load(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	app, err := s.apps.FindByID(ctx, appID)
	if err != nil {
		return nil, s.translateStoreErr(err, "application", appID.String())
	}
	return app, nil
}

// applyTransition is the single write path for status changes: validate,
// persist under the optimistic lock, then record exactly one history entry.
func (s *Service) applyTransition(ctx context.Context, app *models.Application, to models.Status, reason string) error {
	now := requestcontext.Now(ctx)
	from := app.Status
	if err := app.Transition(to, now); err != nil {
		s.metrics.IncrementDenied(string(to))
		return err
	}
	if err := s.apps.Update(ctx, app); err != nil {
		return s.translateStoreErr(err, "application", app.ID.String())
	}
	s.metrics.IncrementTransition(string(to))
	s.recordHistory(ctx, app, string(from), reason, now)
	return nil
}

func (s *Service) recordHistory(ctx context.Context, app *models.Application, from, reason string, now time.Time) {
	if s.ledger == nil {
		return
	}
	entry := history.Entry{
		EntityType: history.EntityApplication,
		EntityRef:  app.ID.String(),
		FromStatus: from,
		ToStatus:   string(app.Status),
		Reason:     reason,
		Actor:      requestcontext.Actor(ctx),
		Timestamp:  now,
	}
	if err := s.ledger.Record(ctx, entry); err != nil {
		s.log.Error("recording history failed", "application_id", app.ID.String(), "error", err)
	}
}

func (s *Service) notify(app *models.Application, subject, body string) {
	if s.notes == nil {
		return
	}
	s.notes.Emit(notify.Notification{
		Recipient:     app.Profile.Email,
		Subject:       subject,
		Body:          body,
		ApplicationID: app.ID.String(),
	})
}

func (s *Service) translateStoreErr(err error, entity, ref string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Newf(dErrors.CodeNotFound, "%s %s not found", entity, ref)
	case errors.Is(err, sentinel.ErrVersionMismatch):
		s.metrics.IncrementVersionConflict()
		return dErrors.Wrap(err, dErrors.CodeConflict,
			fmt.Sprintf("%s %s was modified concurrently, reload and retry", entity, ref))
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, fmt.Sprintf("%s %s already exists", entity, ref))
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("%s store failure", entity))
	}
}
