package handler

import (
	"time"

	"onramp/internal/document/models"
	"onramp/internal/document/service"
	"onramp/internal/history"
	id "onramp/pkg/domain"
)

type reviewRequest struct {
	ReviewerID        string     `json:"reviewer_id,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	RejectionReason   string     `json:"rejection_reason,omitempty"`
	SuggestedAction   string     `json:"suggested_action,omitempty"`
	Confidence        *float64   `json:"confidence,omitempty"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
	AllowResubmission bool       `json:"allow_resubmission,omitempty"`
}

func (r reviewRequest) toInput() (service.ReviewInput, error) {
	in := service.ReviewInput{
		Notes:             r.Notes,
		RejectionReason:   r.RejectionReason,
		SuggestedAction:   r.SuggestedAction,
		Confidence:        r.Confidence,
		ExpiryDate:        r.ExpiryDate,
		AllowResubmission: r.AllowResubmission,
	}
	if r.ReviewerID != "" {
		reviewerID, err := id.ParseReviewerID(r.ReviewerID)
		if err != nil {
			return service.ReviewInput{}, err
		}
		in.ReviewerID = &reviewerID
	}
	return in, nil
}

type aiWebhookRequest struct {
	DocumentID           string   `json:"document_id"`
	Verified             bool     `json:"verified"`
	RequiresManualReview bool     `json:"requires_manual_review"`
	Confidence           *float64 `json:"confidence,omitempty"`
	Notes                string   `json:"notes,omitempty"`
}

func (r aiWebhookRequest) toResult() (service.AIResult, error) {
	docID, err := id.ParseDocumentID(r.DocumentID)
	if err != nil {
		return service.AIResult{}, err
	}
	return service.AIResult{
		DocumentID:           docID,
		Verified:             r.Verified,
		RequiresManualReview: r.RequiresManualReview,
		Confidence:           r.Confidence,
		Notes:                r.Notes,
	}, nil
}

type listResponse struct {
	Documents []*models.Document `json:"documents"`
	Count     int                `json:"count"`
}

type historyResponse struct {
	Entries []history.Entry `json:"entries"`
	Count   int             `json:"count"`
}
