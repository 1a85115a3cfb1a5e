package integrations

import (
	"context"
	"net/http"
	"time"

	"onramp/internal/onboarding/ports"
)

// AuthClient provisions users in the external auth service.
type AuthClient struct {
	baseURL string
	client  *http.Client
}

func NewAuthClient(baseURL string, timeout time.Duration) *AuthClient {
	return &AuthClient{baseURL: baseURL, client: newHTTPClient(timeout)}
}

type createUserRequest struct {
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	ExternalRef string `json:"external_ref"`
}

type createUserResponse struct {
	UserID string `json:"user_id"`
}

func (c *AuthClient) CreateUser(ctx context.Context, req ports.CreateUserRequest) (string, error) {
	body := createUserRequest{
		Email:       req.Email,
		Phone:       req.Phone,
		Name:        req.Name,
		Role:        req.Role,
		ExternalRef: req.ExternalRef,
	}
	var resp createUserResponse
	if err := doJSON(ctx, c.client, http.MethodPost, c.baseURL+"/v1/users", body, &resp); err != nil {
		return "", err
	}
	return resp.UserID, nil
}

func (c *AuthClient) Activate(ctx context.Context, userID string) error {
	return doJSON(ctx, c.client, http.MethodPost, c.baseURL+"/v1/users/"+userID+"/activate", struct{}{}, nil)
}

func (c *AuthClient) Suspend(ctx context.Context, userID string) error {
	return doJSON(ctx, c.client, http.MethodPost, c.baseURL+"/v1/users/"+userID+"/suspend", struct{}{}, nil)
}
