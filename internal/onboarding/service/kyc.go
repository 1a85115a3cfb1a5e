package service

import (
	"context"
	"strings"
	"time"

	"onramp/internal/onboarding/models"
	"onramp/internal/onboarding/ports"
	id "onramp/pkg/domain"
	dErrors "onramp/pkg/domain-errors"
)

// InitiateKYC starts identity verification with the external provider.
//
// The required document set must be complete first: KYC runs against the
// identity the documents establish. The provider call happens before the
// transition, so a provider failure leaves the application where it was.
// After a failed round the application comes back through
// DOCUMENTS_REQUIRED; initiating again opens a fresh provider verification
// and replaces the stored reference.
func (s *Service) InitiateKYC(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	app, err := s.load(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := app.CanTransition(models.StatusKYCInProgress); err != nil {
		s.metrics.IncrementDenied(string(models.StatusKYCInProgress))
		return nil, err
	}
	if s.gate != nil {
		status, err := s.gate.Completion(ctx, appID)
		if err != nil {
			return nil, err
		}
		if !status.Complete {
			return nil, dErrors.Newf(dErrors.CodeValidation,
				"application %s is missing approved documents", appID).
				WithMeta("pending", strings.Join(status.Pending, ",")).
				WithMeta("missing", strings.Join(status.Missing, ",")).
				WithMeta("rejected", strings.Join(status.Rejected, ","))
		}
	}

	start := time.Now()
	initiation, err := s.kyc.Initiate(ctx, ports.IdentityPayload{
		ApplicationRef: app.ID.String(),
		FirstName:      app.Profile.FirstName,
		LastName:       app.Profile.LastName,
		Email:          app.Profile.Email,
		Phone:          app.Profile.Phone,
		DateOfBirth:    app.Profile.DateOfBirth,
		Country:        app.Profile.Country,
		BusinessName:   app.Profile.BusinessName,
		BusinessRegNo:  app.Profile.BusinessRegistry,
	})
	s.metrics.ObserveProviderLatency("kyc", "initiate", time.Since(start))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeIntegration, "starting identity verification failed")
	}
	if err := app.SetKYCVerificationID(initiation.VerificationID); err != nil {
		return nil, err
	}
	if err := s.applyTransition(ctx, app, models.StatusKYCInProgress, "identity verification started"); err != nil {
		return nil, err
	}
	s.notify(app, "Identity verification started",
		"Your identity is being verified. We will let you know the outcome.")
	return app, nil
}

// VerdictInput is one externally delivered KYC outcome. EventID, when set,
// deduplicates webhook redeliveries.
type VerdictInput struct {
	VerificationID       string
	Status               string
	RequiresManualReview bool
	EventID              string
}

// RecordKYCVerdict applies a provider verdict. The operation is idempotent
// on two levels: a replayed event id is claimed-once in the idempotency
// store, and an application that already left KYC_IN_PROGRESS ignores the
// verdict entirely. A claim taken by a delivery that then fails to apply is
// released again, so the provider's redelivery of the same event id is
// processed rather than dropped as a replay.
func (s *Service) RecordKYCVerdict(ctx context.Context, in VerdictInput) (err error) {
	if in.VerificationID == "" {
		return dErrors.New(dErrors.CodeValidation, "verification id is required")
	}
	if s.idem != nil && in.EventID != "" {
		fresh, claimErr := s.idem.Claim(ctx, "kyc:"+in.EventID, s.idemTTL)
		if claimErr != nil {
			return dErrors.Wrap(claimErr, dErrors.CodeInternal, "idempotency check failed")
		}
		if !fresh {
			s.log.Info("dropping replayed kyc event", "event_id", in.EventID)
			return nil
		}
		defer func() {
			if err == nil {
				return
			}
			if relErr := s.idem.Release(ctx, "kyc:"+in.EventID); relErr != nil {
				s.log.Error("releasing kyc event claim failed",
					"event_id", in.EventID, "error", relErr)
			}
		}()
	}

	app, err := s.apps.FindByVerificationID(ctx, in.VerificationID)
	if err != nil {
		return s.translateStoreErr(err, "verification", in.VerificationID)
	}
	if app.Status != models.StatusKYCInProgress {
		s.log.Info("dropping stale kyc verdict",
			"application_id", app.ID.String(), "status", string(app.Status))
		return nil
	}

	switch {
	case in.RequiresManualReview:
		if err := s.applyTransition(ctx, app, models.StatusUnderReview, "identity verification needs manual review"); err != nil {
			return err
		}
	case in.Status == ports.KYCStatusApproved:
		if err := s.applyTransition(ctx, app, models.StatusKYCApproved, "identity verification passed"); err != nil {
			return err
		}
		s.notify(app, "Identity verified", "Your identity verification passed.")
	case in.Status == ports.KYCStatusRejected:
		if err := s.applyTransition(ctx, app, models.StatusKYCFailed, "identity verification failed"); err != nil {
			return err
		}
		s.notify(app, "Identity verification failed",
			"Your identity verification did not pass. We may ask for further documents.")
	case in.Status == ports.KYCStatusPending:
		// Still running, nothing to record.
	default:
		return dErrors.Newf(dErrors.CodeValidation, "unknown kyc status %q", in.Status)
	}
	return nil
}

// SyncKYCStatus polls the provider for an in-flight verification and applies
// the outcome. Backstop for lost webhooks.
func (s *Service) SyncKYCStatus(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	app, err := s.load(ctx, appID)
	if err != nil {
		return nil, err
	}
	if app.Status != models.StatusKYCInProgress {
		return app, nil
	}
	if app.KYCVerificationID == "" {
		return nil, dErrors.Newf(dErrors.CodeConflict,
			"application %s has no verification to sync", appID)
	}

	start := time.Now()
	status, err := s.kyc.GetStatus(ctx, app.KYCVerificationID)
	s.metrics.ObserveProviderLatency("kyc", "status", time.Since(start))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeIntegration, "fetching verification status failed")
	}
	if err := s.RecordKYCVerdict(ctx, VerdictInput{
		VerificationID:       app.KYCVerificationID,
		Status:               status.Status,
		RequiresManualReview: status.RequiresManualReview,
	}); err != nil {
		return nil, err
	}
	return s.load(ctx, appID)
}
