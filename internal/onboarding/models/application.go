package models

import (
	"time"

	id "onramp/pkg/domain"
	dErrors "onramp/pkg/domain-errors"
)

// Segment selects which document requirements apply to an application.
type Segment string

const (
	SegmentIndividual Segment = "individual"
	SegmentBusiness   Segment = "business"
)

// ParseSegment validates a raw segment string.
func ParseSegment(raw string) (Segment, error) {
	switch Segment(raw) {
	case SegmentIndividual, SegmentBusiness:
		return Segment(raw), nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown customer segment %q", raw)
}

// Profile holds the contact and business identity fields supplied by the
// customer. The engine only checks presence at submission; format validation
// belongs to the intake surface.
type Profile struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	DateOfBirth      string `json:"date_of_birth,omitempty"`
	Address          string `json:"address,omitempty"`
	City             string `json:"city,omitempty"`
	Country          string `json:"country,omitempty"`
	BusinessName     string `json:"business_name,omitempty"`
	BusinessRegistry string `json:"business_registry_number,omitempty"`
	TaxID            string `json:"tax_id,omitempty"`
}

// Application is the aggregate root for one onboarding attempt.
//
// Invariants:
//   - Status only changes through CanTransition + ApplyTransition
//   - KYCVerificationID, AuthUserID and BillingProfileID are set at most once
//   - Milestone timestamps (submitted/approved/rejected) are set at most once
//   - Version increments on every persisted mutation (optimistic concurrency)
type Application struct {
	ID      id.ApplicationID `json:"id"`
	Segment Segment          `json:"segment"`
	Profile Profile          `json:"profile"`

	TermsAccepted   bool `json:"terms_accepted"`
	PrivacyAccepted bool `json:"privacy_accepted"`

	Status          Status `json:"status"`
	RejectionReason string `json:"rejection_reason,omitempty"`

	KYCVerificationID string `json:"kyc_verification_id,omitempty"`
	AuthUserID        string `json:"auth_user_id,omitempty"`
	BillingProfileID  string `json:"billing_profile_id,omitempty"`

	Version int64 `json:"version"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
}

// NewApplication constructs a DRAFT application.
func NewApplication(appID id.ApplicationID, segment Segment, profile Profile, now time.Time) (*Application, error) {
	if appID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "application id is required")
	}
	if segment != SegmentIndividual && segment != SegmentBusiness {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown customer segment %q", segment)
	}
	return &Application{
		ID:        appID,
		Segment:   segment,
		Profile:   profile,
		Status:    StatusDraft,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanTransition checks the transition table without mutating anything.
// Use with ApplyTransition for the validate-then-mutate pattern.
func (a *Application) CanTransition(to Status) error {
	if !a.Status.CanTransitionTo(to) {
		return dErrors.Newf(dErrors.CodeInvalidTransition,
			"application %s cannot move from %s to %s", a.ID, a.Status, to).
			WithMeta("application_id", a.ID.String()).
			WithMeta("from", string(a.Status)).
			WithMeta("to", string(to))
	}
	return nil
}

// ApplyTransition moves the application to the target status and stamps the
// relevant milestone exactly once. Call CanTransition first.
func (a *Application) ApplyTransition(to Status, now time.Time) {
	a.Status = to
	a.UpdatedAt = now
	switch to {
	case StatusSubmitted:
		if a.SubmittedAt == nil {
			t := now
			a.SubmittedAt = &t
		}
	case StatusApproved:
		if a.ApprovedAt == nil {
			t := now
			a.ApprovedAt = &t
		}
	case StatusRejected:
		if a.RejectedAt == nil {
			t := now
			a.RejectedAt = &t
		}
	}
}

// Transition validates and applies in one call.
func (a *Application) Transition(to Status, now time.Time) error {
	if err := a.CanTransition(to); err != nil {
		return err
	}
	a.ApplyTransition(to, now)
	return nil
}

// SetKYCVerificationID records the external verification reference. A repeat
// verification round replaces the earlier reference; a failed verification is
// terminal at the provider, so re-initiation always opens a fresh one.
func (a *Application) SetKYCVerificationID(verificationID string) error {
	if verificationID == "" {
		return dErrors.New(dErrors.CodeValidation, "kyc verification id is required")
	}
	a.KYCVerificationID = verificationID
	return nil
}

// SetAuthUserID records the provisioned auth user. Set exactly once.
func (a *Application) SetAuthUserID(userID string) error {
	if userID == "" {
		return dErrors.New(dErrors.CodeValidation, "auth user id is required")
	}
	if a.AuthUserID != "" {
		return dErrors.Newf(dErrors.CodeConflict,
			"application %s already has auth user %s", a.ID, a.AuthUserID)
	}
	a.AuthUserID = userID
	return nil
}

// SetBillingProfileID records the provisioned billing profile. Set exactly once.
func (a *Application) SetBillingProfileID(profileID string) error {
	if profileID == "" {
		return dErrors.New(dErrors.CodeValidation, "billing profile id is required")
	}
	if a.BillingProfileID != "" {
		return dErrors.Newf(dErrors.CodeConflict,
			"application %s already has billing profile %s", a.ID, a.BillingProfileID)
	}
	a.BillingProfileID = profileID
	return nil
}

// ReadyToSubmit enforces the submission preconditions: mandatory profile
// fields plus explicit terms and privacy acceptance.
func (a *Application) ReadyToSubmit() error {
	var missing []string
	if a.Profile.FirstName == "" {
		missing = append(missing, "first_name")
	}
	if a.Profile.LastName == "" {
		missing = append(missing, "last_name")
	}
	if a.Profile.Email == "" {
		missing = append(missing, "email")
	}
	if a.Profile.Phone == "" {
		missing = append(missing, "phone")
	}
	if a.Segment == SegmentBusiness && a.Profile.BusinessName == "" {
		missing = append(missing, "business_name")
	}
	if len(missing) > 0 {
		err := dErrors.New(dErrors.CodeValidation, "profile is incomplete")
		for _, f := range missing {
			err = err.WithMeta("missing."+f, "required")
		}
		return err
	}
	if !a.TermsAccepted {
		return dErrors.New(dErrors.CodeValidation, "terms of service must be accepted before submission")
	}
	if !a.PrivacyAccepted {
		return dErrors.New(dErrors.CodeValidation, "privacy policy must be accepted before submission")
	}
	return nil
}

// IsDraft reports whether customer edits are still allowed.
func (a *Application) IsDraft() bool { return a.Status == StatusDraft }

// Clone returns a deep copy so in-memory stores never leak shared pointers.
func (a *Application) Clone() *Application {
	cp := *a
	if a.SubmittedAt != nil {
		t := *a.SubmittedAt
		cp.SubmittedAt = &t
	}
	if a.ApprovedAt != nil {
		t := *a.ApprovedAt
		cp.ApprovedAt = &t
	}
	if a.RejectedAt != nil {
		t := *a.RejectedAt
		cp.RejectedAt = &t
	}
	return &cp
}
