// Package ports declares the external collaborator contracts the onboarding
// orchestrator depends on. Implementations live in internal/integrations;
// tests use hand-rolled fakes.
package ports

import (
	"context"
	"time"
)

// IdentityPayload carries the applicant identity fields the KYC provider
// verifies.
type IdentityPayload struct {
	ApplicationRef string
	FirstName      string
	LastName       string
	Email          string
	Phone          string
	DateOfBirth    string
	Country        string
	BusinessName   string
	BusinessRegNo  string
}

// KYCInitiation is the provider's response to starting a verification.
type KYCInitiation struct {
	VerificationID      string
	Status              string
	EstimatedCompletion time.Time
}

// KYCStatus is a point-in-time view of a running verification.
// Status is one of the provider's values; the orchestrator maps "approved"
// and "rejected", and routes RequiresManualReview to UNDER_REVIEW.
type KYCStatus struct {
	Status               string
	Progress             int
	RequiresManualReview bool
}

// Provider status values the orchestrator understands.
const (
	KYCStatusApproved = "approved"
	KYCStatusRejected = "rejected"
	KYCStatusPending  = "pending"
)

// KYCProvider initiates and reports identity verification.
type KYCProvider interface {
	Initiate(ctx context.Context, payload IdentityPayload) (KYCInitiation, error)
	GetStatus(ctx context.Context, verificationID string) (KYCStatus, error)
}

// CreateUserRequest provisions a platform login for an approved customer.
type CreateUserRequest struct {
	Email       string
	Phone       string
	Name        string
	Role        string
	ExternalRef string
}

// AuthProvider manages the customer's user record in the auth service.
type AuthProvider interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (userID string, err error)
	Activate(ctx context.Context, userID string) error
	Suspend(ctx context.Context, userID string) error
}

// BillingProvider provisions billing profiles for approved customers.
type BillingProvider interface {
	CreateProfile(ctx context.Context, applicationRef string) (billingProfileID string, err error)
}
