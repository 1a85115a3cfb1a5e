package models

import (
	dErrors "onramp/pkg/domain-errors"
)

// Status is the application lifecycle state. Transitions are constrained by
// the table below; everything else is rejected.
type Status string

const (
	StatusDraft             Status = "DRAFT"
	StatusSubmitted         Status = "SUBMITTED"
	StatusDocumentsRequired Status = "DOCUMENTS_REQUIRED"
	StatusDocumentsUploaded Status = "DOCUMENTS_UPLOADED"
	StatusKYCInProgress     Status = "KYC_IN_PROGRESS"
	StatusKYCApproved       Status = "KYC_APPROVED"
	StatusKYCFailed         Status = "KYC_FAILED"
	StatusUnderReview       Status = "UNDER_REVIEW"
	StatusApproved          Status = "APPROVED"
	StatusRejected          Status = "REJECTED"
	StatusActivated         Status = "ACTIVATED"
	StatusSuspended         Status = "SUSPENDED"
	StatusDeactivated       Status = "DEACTIVATED"
	StatusReactivated       Status = "REACTIVATED"
	StatusCancelled         Status = "CANCELLED"
)

// transitions is the authoritative table of legal status changes.
// REJECTED → DRAFT permits re-application; CANCELLED → DRAFT lets a customer
// pick a cancelled application back up.
var transitions = map[Status][]Status{
	StatusDraft:             {StatusSubmitted, StatusCancelled},
	StatusSubmitted:         {StatusDocumentsRequired, StatusKYCInProgress, StatusRejected},
	StatusDocumentsRequired: {StatusDocumentsUploaded, StatusRejected},
	StatusDocumentsUploaded: {StatusKYCInProgress, StatusRejected},
	StatusKYCInProgress:     {StatusKYCApproved, StatusKYCFailed, StatusUnderReview},
	StatusKYCApproved:       {StatusUnderReview, StatusApproved},
	StatusKYCFailed:         {StatusRejected, StatusDocumentsRequired},
	StatusUnderReview:       {StatusApproved, StatusRejected, StatusDocumentsRequired},
	StatusApproved:          {StatusActivated, StatusSuspended},
	StatusRejected:          {StatusDraft},
	StatusActivated:         {StatusSuspended, StatusDeactivated},
	StatusSuspended:         {StatusActivated, StatusDeactivated, StatusReactivated},
	StatusDeactivated:       {StatusActivated},
	StatusReactivated:       {StatusSuspended, StatusDeactivated},
	StatusCancelled:         {StatusDraft},
}

// allStatuses exists so validation and tests can range the enum without
// duplicating the list.
var allStatuses = []Status{
	StatusDraft, StatusSubmitted, StatusDocumentsRequired, StatusDocumentsUploaded,
	StatusKYCInProgress, StatusKYCApproved, StatusKYCFailed, StatusUnderReview,
	StatusApproved, StatusRejected, StatusActivated, StatusSuspended,
	StatusDeactivated, StatusReactivated, StatusCancelled,
}

// AllStatuses returns every application status.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// IsValid reports whether s is a known status value.
func (s Status) IsValid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the table permits s → target.
// Pure and total: unknown statuses simply have no outgoing edges.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// TransitionsFrom returns the allowed targets for s. The slice is a copy.
func TransitionsFrom(s Status) []Status {
	out := make([]Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown application status %q", raw)
	}
	return s, nil
}
