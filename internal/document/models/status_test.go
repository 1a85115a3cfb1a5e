package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "onramp/pkg/domain"
	dErrors "onramp/pkg/domain-errors"
)

var expectedDocEdges = map[VerificationStatus][]VerificationStatus{
	VerificationPending:              {VerificationAIInProgress, VerificationManualReview, VerificationApproved, VerificationRejected},
	VerificationAIInProgress:         {VerificationAIVerified, VerificationAIFailed, VerificationManualReview},
	VerificationAIVerified:           {VerificationApproved, VerificationManualReview},
	VerificationAIFailed:             {VerificationManualReview, VerificationRejected},
	VerificationManualReview:         {VerificationApproved, VerificationRejected, VerificationResubmissionRequired},
	VerificationResubmissionRequired: {VerificationPending, VerificationRejected},
}

func TestDocumentTransitionTable(t *testing.T) {
	for _, from := range AllVerificationStatuses() {
		for _, to := range AllVerificationStatuses() {
			want := false
			for _, allowed := range expectedDocEdges[from] {
				if allowed == to {
					want = true
				}
			}
			assert.Equalf(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range AllVerificationStatuses() {
		wantTerminal := s == VerificationApproved || s == VerificationRejected
		assert.Equalf(t, wantTerminal, s.IsTerminal(), "terminal(%s)", s)
		if wantTerminal {
			assert.Emptyf(t, verificationTransitions[s], "terminal %s must have no outgoing edges", s)
		}
	}
}

func TestCanRequestResubmission(t *testing.T) {
	doc := NewDocument(id.DocumentID(uuid.New()), id.ApplicationID(uuid.New()),
		TypeNationalID, "id.jpg", "abc", "image/jpeg", "ref", 100, true, time.Now())

	t.Run("allowed from any non-terminal status", func(t *testing.T) {
		for _, s := range []VerificationStatus{
			VerificationPending, VerificationAIInProgress, VerificationAIVerified,
			VerificationAIFailed, VerificationManualReview,
		} {
			doc.Status = s
			assert.NoErrorf(t, doc.CanRequestResubmission(), "from %s", s)
		}
	})

	t.Run("denied from terminal statuses", func(t *testing.T) {
		for _, s := range []VerificationStatus{VerificationApproved, VerificationRejected} {
			doc.Status = s
			err := doc.CanRequestResubmission()
			require.Errorf(t, err, "from %s", s)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
		}
	})
}

func TestParseDocumentType(t *testing.T) {
	dt, err := ParseDocumentType("proof_of_address")
	require.NoError(t, err)
	assert.Equal(t, TypeProofOfAddress, dt)

	_, err = ParseDocumentType("selfie")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
