// Package ai defines the automated document verifier contract and its HTTP
// client.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// VerifyRequest identifies the artifact to examine.
type VerifyRequest struct {
	DocumentID    string `json:"document_id"`
	ApplicationID string `json:"application_id"`
	Type          string `json:"type"`
	MIMEType      string `json:"mime_type"`
	StorageRef    string `json:"storage_ref"`
}

// VerifyResult is the verifier's verdict on one document.
type VerifyResult struct {
	Verified             bool     `json:"verified"`
	Confidence           *float64 `json:"confidence,omitempty"`
	RequiresManualReview bool     `json:"requires_manual_review"`
	Notes                string   `json:"notes,omitempty"`
}

// Verifier examines a document and returns a verdict. The worker calls it
// synchronously inside the task handler; asynq retries on error.
type Verifier interface {
	Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error)
}

// Client is the HTTP implementation of Verifier.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

func (c *Client) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/verify", bytes.NewReader(payload))
	if err != nil {
		return VerifyResult{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("verify %s: %w", req.DocumentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return VerifyResult{}, fmt.Errorf("verify %s: status %d: %s",
			req.DocumentID, resp.StatusCode, string(excerpt))
	}
	var result VerifyResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return VerifyResult{}, fmt.Errorf("decode verdict for %s: %w", req.DocumentID, err)
	}
	return result, nil
}
