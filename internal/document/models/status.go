package models

import (
	dErrors "onramp/pkg/domain-errors"
)

// VerificationStatus is the document lifecycle state.
type VerificationStatus string

const (
	VerificationPending              VerificationStatus = "PENDING"
	VerificationAIInProgress         VerificationStatus = "AI_VERIFICATION_IN_PROGRESS"
	VerificationAIVerified           VerificationStatus = "AI_VERIFIED"
	VerificationAIFailed             VerificationStatus = "AI_FAILED"
	VerificationManualReview         VerificationStatus = "MANUAL_REVIEW"
	VerificationApproved             VerificationStatus = "APPROVED"
	VerificationRejected             VerificationStatus = "REJECTED"
	VerificationResubmissionRequired VerificationStatus = "RESUBMISSION_REQUIRED"
)

// verificationTransitions is the forward-progress table. Corrective moves to
// RESUBMISSION_REQUIRED are handled separately (see CanRequestResubmission):
// a reviewer may always pull a non-terminal document back for resubmission.
var verificationTransitions = map[VerificationStatus][]VerificationStatus{
	VerificationPending:              {VerificationAIInProgress, VerificationManualReview, VerificationApproved, VerificationRejected},
	VerificationAIInProgress:         {VerificationAIVerified, VerificationAIFailed, VerificationManualReview},
	VerificationAIVerified:           {VerificationApproved, VerificationManualReview},
	VerificationAIFailed:             {VerificationManualReview, VerificationRejected},
	VerificationManualReview:         {VerificationApproved, VerificationRejected, VerificationResubmissionRequired},
	VerificationResubmissionRequired: {VerificationPending, VerificationRejected},
}

var allVerificationStatuses = []VerificationStatus{
	VerificationPending, VerificationAIInProgress, VerificationAIVerified,
	VerificationAIFailed, VerificationManualReview, VerificationApproved,
	VerificationRejected, VerificationResubmissionRequired,
}

// AllVerificationStatuses returns every document status.
func AllVerificationStatuses() []VerificationStatus {
	out := make([]VerificationStatus, len(allVerificationStatuses))
	copy(out, allVerificationStatuses)
	return out
}

// IsValid reports whether s is a known status value.
func (s VerificationStatus) IsValid() bool {
	for _, known := range allVerificationStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the document can change no further. A rejected
// document is replaced by a fresh submission, never reopened.
func (s VerificationStatus) IsTerminal() bool {
	return s == VerificationApproved || s == VerificationRejected
}

// CanTransitionTo reports whether the forward table permits s → target.
func (s VerificationStatus) CanTransitionTo(target VerificationStatus) bool {
	for _, allowed := range verificationTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ParseVerificationStatus validates a raw status string.
func ParseVerificationStatus(raw string) (VerificationStatus, error) {
	s := VerificationStatus(raw)
	if !s.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown document status %q", raw)
	}
	return s, nil
}
