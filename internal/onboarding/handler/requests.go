package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"onramp/internal/history"
	"onramp/internal/onboarding/models"
	"onramp/internal/onboarding/service"
	"onramp/internal/onboarding/store"
	dErrors "onramp/pkg/domain-errors"
)

type createRequest struct {
	Segment         string         `json:"segment"`
	Profile         models.Profile `json:"profile"`
	TermsAccepted   bool           `json:"terms_accepted"`
	PrivacyAccepted bool           `json:"privacy_accepted"`
}

func (r createRequest) toInput() (service.CreateInput, error) {
	segment, err := models.ParseSegment(r.Segment)
	if err != nil {
		return service.CreateInput{}, err
	}
	return service.CreateInput{
		Segment:         segment,
		Profile:         r.Profile,
		TermsAccepted:   r.TermsAccepted,
		PrivacyAccepted: r.PrivacyAccepted,
	}, nil
}

type updateDraftRequest struct {
	Profile         *models.Profile `json:"profile,omitempty"`
	TermsAccepted   *bool           `json:"terms_accepted,omitempty"`
	PrivacyAccepted *bool           `json:"privacy_accepted,omitempty"`
}

func (r updateDraftRequest) toInput() service.UpdateDraftInput {
	return service.UpdateDraftInput{
		Profile:         r.Profile,
		TermsAccepted:   r.TermsAccepted,
		PrivacyAccepted: r.PrivacyAccepted,
	}
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type decisionRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

func (r decisionRequest) toInput() (service.DecisionInput, error) {
	switch r.Decision {
	case "approve":
		return service.DecisionInput{Approve: true}, nil
	case "reject":
		return service.DecisionInput{Approve: false, Reason: r.Reason}, nil
	}
	return service.DecisionInput{}, dErrors.Newf(dErrors.CodeValidation,
		"decision must be approve or reject, got %q", r.Decision)
}

type kycWebhookRequest struct {
	EventID              string `json:"event_id"`
	VerificationID       string `json:"verification_id"`
	Status               string `json:"status"`
	RequiresManualReview bool   `json:"requires_manual_review"`
}

type listResponse struct {
	Applications []*models.Application `json:"applications"`
	Count        int                   `json:"count"`
}

type historyResponse struct {
	Entries []history.Entry `json:"entries"`
	Count   int             `json:"count"`
}

func listFilterFromQuery(r *http.Request) (store.ListFilter, error) {
	var filter store.ListFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := models.ParseStatus(raw)
		if err != nil {
			return filter, err
		}
		filter.Status = status
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, dErrors.Newf(dErrors.CodeValidation, "invalid limit %q", raw)
		}
		filter.Limit = n
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, dErrors.Newf(dErrors.CodeValidation, "invalid offset %q", raw)
		}
		filter.Offset = n
	}
	return filter, nil
}

// decodeOptional tolerates an absent or empty body for endpoints whose body
// only carries optional fields.
func decodeOptional[T any](r *http.Request) (T, error) {
	var v T
	if r.Body == nil {
		return v, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var zero T
		return zero, nil
	}
	return v, nil
}
