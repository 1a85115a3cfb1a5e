package service

import (
	"context"
	"time"

	"onramp/internal/onboarding/models"
	"onramp/internal/onboarding/ports"
	id "onramp/pkg/domain"
	dErrors "onramp/pkg/domain-errors"
)

// DecisionInput is a reviewer's final call on an application.
type DecisionInput struct {
	Approve bool
	Reason  string
}

// Decide records the final decision.
//
// Approval provisions the customer first: an auth user, then a billing
// profile, then the transition. Each provisioning step persists its id as
// soon as it succeeds, so a failure partway through leaves the application
// in its review status with the finished steps recorded and Decide can be
// retried without provisioning twice.
func (s *Service) Decide(ctx context.Context, appID id.ApplicationID, in DecisionInput) (*models.Application, error) {
	app, err := s.load(ctx, appID)
	if err != nil {
		return nil, err
	}
	if !in.Approve {
		return s.reject(ctx, app, in.Reason)
	}
	if err := app.CanTransition(models.StatusApproved); err != nil {
		s.metrics.IncrementDenied(string(models.StatusApproved))
		return nil, err
	}

	if app.AuthUserID == "" {
		start := time.Now()
		userID, err := s.auth.CreateUser(ctx, ports.CreateUserRequest{
			Email:       app.Profile.Email,
			Phone:       app.Profile.Phone,
			Name:        app.Profile.FirstName + " " + app.Profile.LastName,
			Role:        "customer",
			ExternalRef: app.ID.String(),
		})
		s.metrics.ObserveProviderLatency("auth", "create_user", time.Since(start))
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeIntegration, "provisioning platform user failed")
		}
		if err := app.SetAuthUserID(userID); err != nil {
			return nil, err
		}
		if err := s.apps.Update(ctx, app); err != nil {
			return nil, s.translateStoreErr(err, "application", appID.String())
		}
	}

	if app.BillingProfileID == "" {
		start := time.Now()
		profileID, err := s.billing.CreateProfile(ctx, app.ID.String())
		s.metrics.ObserveProviderLatency("billing", "create_profile", time.Since(start))
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeIntegration, "provisioning billing profile failed")
		}
		if err := app.SetBillingProfileID(profileID); err != nil {
			return nil, err
		}
		if err := s.apps.Update(ctx, app); err != nil {
			return nil, s.translateStoreErr(err, "application", appID.String())
		}
	}

	if err := s.applyTransition(ctx, app, models.StatusApproved, "application approved"); err != nil {
		return nil, err
	}
	s.notify(app, "Application approved",
		"Congratulations, your application was approved. You can now activate your account.")
	return app, nil
}

func (s *Service) reject(ctx context.Context, app *models.Application, reason string) (*models.Application, error) {
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}
	if err := app.CanTransition(models.StatusRejected); err != nil {
		s.metrics.IncrementDenied(string(models.StatusRejected))
		return nil, err
	}
	app.RejectionReason = reason
	if err := s.applyTransition(ctx, app, models.StatusRejected, reason); err != nil {
		return nil, err
	}
	s.notify(app, "Application rejected", "Your application was rejected: "+reason)
	return app, nil
}

// Activate turns an approved, suspended or deactivated customer live. The
// auth provider is told first; the transition only happens once it agreed.
func (s *Service) Activate(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	return s.accountTransition(ctx, appID, models.StatusActivated,
		"account activated", s.auth.Activate)
}

// Suspend takes a live customer off the platform temporarily.
func (s *Service) Suspend(ctx context.Context, appID id.ApplicationID, reason string) (*models.Application, error) {
	if reason == "" {
		reason = "account suspended"
	}
	return s.accountTransition(ctx, appID, models.StatusSuspended, reason, s.auth.Suspend)
}

// Reactivate restores a suspended customer.
func (s *Service) Reactivate(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	return s.accountTransition(ctx, appID, models.StatusReactivated,
		"account reactivated", s.auth.Activate)
}

// Deactivate permanently retires a customer account. The application itself
// can still be reactivated later, which re-enables the auth user.
func (s *Service) Deactivate(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	return s.accountTransition(ctx, appID, models.StatusDeactivated,
		"account deactivated", s.auth.Suspend)
}

// accountTransition is the shared shape of the post-approval lifecycle ops:
// check the state machine, require a provisioned auth user, tell the auth
// service, then transition.
func (s *Service) accountTransition(ctx context.Context, appID id.ApplicationID,
	to models.Status, reason string, authCall func(context.Context, string) error) (*models.Application, error) {
	app, err := s.load(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := app.CanTransition(to); err != nil {
		s.metrics.IncrementDenied(string(to))
		return nil, err
	}
	if app.AuthUserID == "" {
		return nil, dErrors.Newf(dErrors.CodeConflict,
			"application %s has no provisioned platform user", appID)
	}
	start := time.Now()
	err = authCall(ctx, app.AuthUserID)
	s.metrics.ObserveProviderLatency("auth", "account_state", time.Since(start))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeIntegration, "updating platform user state failed")
	}
	if err := s.applyTransition(ctx, app, to, reason); err != nil {
		return nil, err
	}
	return app, nil
}
