package integrations

import (
	"context"
	"net/http"
	"time"

	"onramp/internal/onboarding/ports"
)

// KYCClient talks to the identity-verification provider over HTTP.
type KYCClient struct {
	baseURL string
	client  *http.Client
}

func NewKYCClient(baseURL string, timeout time.Duration) *KYCClient {
	return &KYCClient{baseURL: baseURL, client: newHTTPClient(timeout)}
}

type kycInitiateRequest struct {
	ApplicationRef string `json:"application_ref"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	DateOfBirth    string `json:"date_of_birth,omitempty"`
	Country        string `json:"country,omitempty"`
	BusinessName   string `json:"business_name,omitempty"`
	BusinessRegNo  string `json:"business_registration_number,omitempty"`
}

type kycInitiateResponse struct {
	VerificationID      string    `json:"verification_id"`
	Status              string    `json:"status"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
}

func (c *KYCClient) Initiate(ctx context.Context, payload ports.IdentityPayload) (ports.KYCInitiation, error) {
	req := kycInitiateRequest{
		ApplicationRef: payload.ApplicationRef,
		FirstName:      payload.FirstName,
		LastName:       payload.LastName,
		Email:          payload.Email,
		Phone:          payload.Phone,
		DateOfBirth:    payload.DateOfBirth,
		Country:        payload.Country,
		BusinessName:   payload.BusinessName,
		BusinessRegNo:  payload.BusinessRegNo,
	}
	var resp kycInitiateResponse
	if err := doJSON(ctx, c.client, http.MethodPost, c.baseURL+"/v1/verifications", req, &resp); err != nil {
		return ports.KYCInitiation{}, err
	}
	return ports.KYCInitiation{
		VerificationID:      resp.VerificationID,
		Status:              resp.Status,
		EstimatedCompletion: resp.EstimatedCompletion,
	}, nil
}

type kycStatusResponse struct {
	Status               string `json:"status"`
	Progress             int    `json:"progress"`
	RequiresManualReview bool   `json:"requires_manual_review"`
}

func (c *KYCClient) GetStatus(ctx context.Context, verificationID string) (ports.KYCStatus, error) {
	var resp kycStatusResponse
	url := c.baseURL + "/v1/verifications/" + verificationID
	if err := doJSON(ctx, c.client, http.MethodGet, url, nil, &resp); err != nil {
		return ports.KYCStatus{}, err
	}
	return ports.KYCStatus{
		Status:               resp.Status,
		Progress:             resp.Progress,
		RequiresManualReview: resp.RequiresManualReview,
	}, nil
}
