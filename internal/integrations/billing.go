package integrations

import (
	"context"
	"net/http"
	"time"
)

// BillingClient provisions billing profiles for approved customers.
type BillingClient struct {
	baseURL string
	client  *http.Client
}

func NewBillingClient(baseURL string, timeout time.Duration) *BillingClient {
	return &BillingClient{baseURL: baseURL, client: newHTTPClient(timeout)}
}

type createProfileRequest struct {
	ApplicationRef string `json:"application_ref"`
}

type createProfileResponse struct {
	BillingProfileID string `json:"billing_profile_id"`
}

func (c *BillingClient) CreateProfile(ctx context.Context, applicationRef string) (string, error) {
	var resp createProfileResponse
	body := createProfileRequest{ApplicationRef: applicationRef}
	if err := doJSON(ctx, c.client, http.MethodPost, c.baseURL+"/v1/billing-profiles", body, &resp); err != nil {
		return "", err
	}
	return resp.BillingProfileID, nil
}
