package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"onramp/internal/blob"
	"onramp/internal/document/models"
	"onramp/internal/document/store"
	"onramp/internal/history"
	onboarding "onramp/internal/onboarding/models"
	appstore "onramp/internal/onboarding/store"
	id "onramp/pkg/domain"
	dErrors "onramp/pkg/domain-errors"
	"onramp/pkg/requestcontext"
)

type fakeDispatcher struct {
	requests []DispatchRequest
	err      error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req DispatchRequest) error {
	if f.err != nil {
		return f.err
	}
	f.requests = append(f.requests, req)
	return nil
}

type fakeListener struct {
	notified []id.ApplicationID
}

func (f *fakeListener) CompletionChanged(_ context.Context, appID id.ApplicationID) {
	f.notified = append(f.notified, appID)
}

type DocumentServiceSuite struct {
	suite.Suite
	ctx        context.Context
	now        time.Time
	docs       *store.InMemory
	apps       *appstore.InMemory
	blobs      *blob.InMemory
	ledger     *history.Ledger
	dispatcher *fakeDispatcher
	listener   *fakeListener
	svc        *Service
	app        *onboarding.Application
}

func TestDocumentServiceSuite(t *testing.T) {
	suite.Run(t, new(DocumentServiceSuite))
}

func (s *DocumentServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.docs = store.NewInMemory()
	s.apps = appstore.NewInMemory()
	s.blobs = blob.NewInMemory()
	s.ledger = history.NewLedger(history.NewInMemoryStore())
	s.dispatcher = &fakeDispatcher{}
	s.listener = &fakeListener{}
	s.svc = New(s.docs, s.apps, s.blobs,
		WithLedger(s.ledger),
		WithDispatcher(s.dispatcher),
		WithCompletionListener(s.listener),
		WithAIEligibility([]string{"national_id/image/jpeg", "passport/image/jpeg"}),
	)

	app, err := onboarding.NewApplication(id.NewApplicationID(), onboarding.SegmentIndividual, onboarding.Profile{
		FirstName: "Amina",
		LastName:  "Diallo",
		Email:     "amina@example.com",
		Phone:     "+15550001111",
	}, s.now)
	s.Require().NoError(err)
	app.Status = onboarding.StatusDocumentsRequired
	s.Require().NoError(s.apps.Create(s.ctx, app))
	s.app = app
}

// Subtests get a fresh store and application each. Several of them upload a
// primary of the same type, which the duplicate guard would otherwise refuse.
func (s *DocumentServiceSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *DocumentServiceSuite) upload(docType models.DocumentType, mime string, primary bool) *models.Document {
	doc, err := s.svc.Upload(s.ctx, UploadInput{
		ApplicationID: s.app.ID,
		Type:          docType,
		FileName:      "scan.jpg",
		MIMEType:      mime,
		Data:          bytes.Repeat([]byte{0xAB}, 64),
		IsPrimary:     primary,
	})
	s.Require().NoError(err)
	return doc
}

func (s *DocumentServiceSuite) TestUpload() {
	s.Run("stores bytes and dispatches eligible documents", func() {
		doc := s.upload(models.TypeNationalID, "image/jpeg", true)

		s.Equal(models.VerificationAIInProgress, doc.Status)
		s.Len(s.dispatcher.requests, 1)
		s.Equal(doc.ID, s.dispatcher.requests[0].DocumentID)
		s.Equal(doc.StorageRef, s.dispatcher.requests[0].StorageRef)
		s.Len(doc.ContentHash, 64)
		s.Equal(int64(64), doc.SizeBytes)

		data, err := s.blobs.Get(s.ctx, doc.StorageRef)
		s.Require().NoError(err)
		s.Len(data, 64)

		entries, err := s.ledger.List(s.ctx, history.EntityDocument, doc.ID.String())
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		s.Equal(string(models.VerificationPending), entries[0].ToStatus)
		s.Equal(string(models.VerificationAIInProgress), entries[1].ToStatus)
	})

	s.Run("ineligible pair stays pending", func() {
		doc := s.upload(models.TypeProofOfAddress, "application/pdf", true)
		s.Equal(models.VerificationPending, doc.Status)
		s.Empty(s.dispatcher.requests)
	})

	s.Run("failed dispatch leaves the document pending", func() {
		s.dispatcher.err = errors.New("broker down")
		doc := s.upload(models.TypeNationalID, "image/jpeg", true)
		s.Equal(models.VerificationPending, doc.Status)
	})

	s.Run("rejects oversized content", func() {
		_, err := s.svc.Upload(s.ctx, UploadInput{
			ApplicationID: s.app.ID,
			Type:          models.TypePassport,
			FileName:      "huge.jpg",
			MIMEType:      "image/jpeg",
			Data:          bytes.Repeat([]byte{0x01}, (10<<20)+1),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects disallowed content type", func() {
		_, err := s.svc.Upload(s.ctx, UploadInput{
			ApplicationID: s.app.ID,
			Type:          models.TypePassport,
			FileName:      "scan.gif",
			MIMEType:      "image/gif",
			Data:          []byte{0x01},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects unknown application", func() {
		_, err := s.svc.Upload(s.ctx, UploadInput{
			ApplicationID: id.NewApplicationID(),
			Type:          models.TypePassport,
			FileName:      "scan.jpg",
			MIMEType:      "image/jpeg",
			Data:          []byte{0x01},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("rejects uploads once the application is decided", func() {
		s.app.Status = onboarding.StatusApproved
		s.Require().NoError(s.apps.Update(s.ctx, s.app))
		_, err := s.svc.Upload(s.ctx, UploadInput{
			ApplicationID: s.app.ID,
			Type:          models.TypePassport,
			FileName:      "scan.jpg",
			MIMEType:      "image/jpeg",
			Data:          []byte{0x01},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *DocumentServiceSuite) TestDuplicatePrimaryGuard() {
	s.Run("second live primary of the same type is refused", func() {
		s.upload(models.TypeProofOfAddress, "application/pdf", true)
		_, err := s.svc.Upload(s.ctx, UploadInput{
			ApplicationID: s.app.ID,
			Type:          models.TypeProofOfAddress,
			FileName:      "scan2.pdf",
			MIMEType:      "application/pdf",
			Data:          []byte{0x02},
			IsPrimary:     true,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("replacement is allowed after a pulled-back primary", func() {
		doc := s.upload(models.TypeProofOfAddress, "application/pdf", true)
		_, err := s.svc.RequestResubmission(s.ctx, doc.ID, ReviewInput{Notes: "blurry"})
		s.Require().NoError(err)

		replacement, err := s.svc.Upload(s.ctx, UploadInput{
			ApplicationID: s.app.ID,
			Type:          models.TypeProofOfAddress,
			FileName:      "scan2.pdf",
			MIMEType:      "application/pdf",
			Data:          []byte{0x02},
			IsPrimary:     true,
		})
		s.Require().NoError(err)
		s.Equal(models.VerificationPending, replacement.Status)
	})

	s.Run("approved non-primary of the same type blocks a new primary", func() {
		doc := s.upload(models.TypeProofOfAddress, "application/pdf", false)
		_, err := s.svc.Approve(s.ctx, doc.ID, ReviewInput{Notes: "legible"})
		s.Require().NoError(err)

		_, err = s.svc.Upload(s.ctx, UploadInput{
			ApplicationID: s.app.ID,
			Type:          models.TypeProofOfAddress,
			FileName:      "scan2.pdf",
			MIMEType:      "application/pdf",
			Data:          []byte{0x02},
			IsPrimary:     true,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("non-primary duplicates are not guarded", func() {
		s.upload(models.TypeProofOfAddress, "application/pdf", true)
		_, err := s.svc.Upload(s.ctx, UploadInput{
			ApplicationID: s.app.ID,
			Type:          models.TypeProofOfAddress,
			FileName:      "scan2.pdf",
			MIMEType:      "application/pdf",
			Data:          []byte{0x02},
		})
		s.NoError(err)
	})
}

func (s *DocumentServiceSuite) TestDecisions() {
	reviewer := id.NewReviewerID()

	s.Run("approve from pending records review and notifies", func() {
		doc := s.upload(models.TypeProofOfAddress, "application/pdf", true)
		approved, err := s.svc.Approve(s.ctx, doc.ID, ReviewInput{ReviewerID: &reviewer, Notes: "legible"})
		s.Require().NoError(err)
		s.Equal(models.VerificationApproved, approved.Status)
		s.Equal(&reviewer, approved.Review.ReviewerID)
		s.Require().NotNil(approved.Review.ReviewedAt)
		s.Equal(s.now, *approved.Review.ReviewedAt)
		s.Contains(s.listener.notified, s.app.ID)
	})

	s.Run("reject requires a reason", func() {
		doc := s.upload(models.TypeProofOfAddress, "application/pdf", false)
		_, err := s.svc.Reject(s.ctx, doc.ID, ReviewInput{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		rejected, err := s.svc.Reject(s.ctx, doc.ID, ReviewInput{
			RejectionReason:   "expired document",
			AllowResubmission: true,
		})
		s.Require().NoError(err)
		s.Equal(models.VerificationRejected, rejected.Status)
		s.True(rejected.AllowResubmission)
	})

	s.Run("approve from a rejected document is denied", func() {
		doc := s.upload(models.TypeProofOfAddress, "application/pdf", false)
		_, err := s.svc.Reject(s.ctx, doc.ID, ReviewInput{RejectionReason: "fake"})
		s.Require().NoError(err)
		_, err = s.svc.Approve(s.ctx, doc.ID, ReviewInput{})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("escalation routes to manual review", func() {
		doc := s.upload(models.TypeProofOfAddress, "application/pdf", false)
		escalated, err := s.svc.EscalateToManualReview(s.ctx, doc.ID, ReviewInput{Notes: "low quality"})
		s.Require().NoError(err)
		s.Equal(models.VerificationManualReview, escalated.Status)
	})
}

func (s *DocumentServiceSuite) TestRequestResubmission() {
	s.Run("allowed from any non-terminal status", func() {
		doc := s.upload(models.TypeNationalID, "image/jpeg", true)
		s.Equal(models.VerificationAIInProgress, doc.Status)

		pulled, err := s.svc.RequestResubmission(s.ctx, doc.ID, ReviewInput{Notes: "photo cut off"})
		s.Require().NoError(err)
		s.Equal(models.VerificationResubmissionRequired, pulled.Status)
		s.True(pulled.AllowResubmission)
	})

	s.Run("denied from a terminal status", func() {
		doc := s.upload(models.TypeProofOfAddress, "application/pdf", false)
		_, err := s.svc.Approve(s.ctx, doc.ID, ReviewInput{})
		s.Require().NoError(err)
		_, err = s.svc.RequestResubmission(s.ctx, doc.ID, ReviewInput{})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *DocumentServiceSuite) TestApplyAIResult() {
	s.Run("verified verdict moves to AI_VERIFIED", func() {
		doc := s.upload(models.TypeNationalID, "image/jpeg", true)
		confidence := 0.97
		err := s.svc.ApplyAIResult(s.ctx, AIResult{
			DocumentID: doc.ID,
			Verified:   true,
			Confidence: &confidence,
		})
		s.Require().NoError(err)

		updated, err := s.svc.Get(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(models.VerificationAIVerified, updated.Status)
		s.Equal(&confidence, updated.Review.Confidence)
	})

	s.Run("failed verdict moves to AI_FAILED", func() {
		doc := s.upload(models.TypeNationalID, "image/jpeg", false)
		err := s.svc.ApplyAIResult(s.ctx, AIResult{DocumentID: doc.ID, Notes: "face mismatch"})
		s.Require().NoError(err)

		updated, err := s.svc.Get(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(models.VerificationAIFailed, updated.Status)
	})

	s.Run("manual review flag overrides the verdict", func() {
		doc := s.upload(models.TypeNationalID, "image/jpeg", false)
		err := s.svc.ApplyAIResult(s.ctx, AIResult{
			DocumentID:           doc.ID,
			Verified:             true,
			RequiresManualReview: true,
		})
		s.Require().NoError(err)

		updated, err := s.svc.Get(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(models.VerificationManualReview, updated.Status)
	})

	s.Run("stale verdict after a reviewer decision is dropped", func() {
		doc := s.upload(models.TypeNationalID, "image/jpeg", false)
		_, err := s.svc.RequestResubmission(s.ctx, doc.ID, ReviewInput{Notes: "retake"})
		s.Require().NoError(err)

		err = s.svc.ApplyAIResult(s.ctx, AIResult{DocumentID: doc.ID, Verified: true})
		s.Require().NoError(err)

		updated, err := s.svc.Get(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(models.VerificationResubmissionRequired, updated.Status)
	})

	s.Run("duplicate verdict delivery is harmless", func() {
		doc := s.upload(models.TypeNationalID, "image/jpeg", false)
		result := AIResult{DocumentID: doc.ID, Verified: true}
		s.Require().NoError(s.svc.ApplyAIResult(s.ctx, result))
		s.Require().NoError(s.svc.ApplyAIResult(s.ctx, result))

		updated, err := s.svc.Get(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(models.VerificationAIVerified, updated.Status)
	})
}

func (s *DocumentServiceSuite) TestCompletion() {
	s.Run("tracks an individual application to completeness", func() {
		status, err := s.svc.Completion(s.ctx, s.app.ID)
		s.Require().NoError(err)
		s.False(status.Complete)
		s.ElementsMatch(status.Missing, []string{"identity", "address"})

		passport := s.upload(models.TypePassport, "application/pdf", true)
		address := s.upload(models.TypeProofOfAddress, "application/pdf", true)

		status, err = s.svc.Completion(s.ctx, s.app.ID)
		s.Require().NoError(err)
		s.False(status.Complete)
		s.ElementsMatch(status.Pending, []string{"identity", "address"})

		_, err = s.svc.Approve(s.ctx, passport.ID, ReviewInput{})
		s.Require().NoError(err)
		_, err = s.svc.Approve(s.ctx, address.ID, ReviewInput{})
		s.Require().NoError(err)

		status, err = s.svc.Completion(s.ctx, s.app.ID)
		s.Require().NoError(err)
		s.True(status.Complete)
	})
}

func (s *DocumentServiceSuite) TestDownloadAndPurge() {
	s.Run("download returns bytes and content type", func() {
		doc := s.upload(models.TypeProofOfAddress, "application/pdf", true)
		data, mime, err := s.svc.Download(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Len(data, 64)
		s.Equal("application/pdf", mime)
	})

	s.Run("purge removes the row and bytes but keeps history", func() {
		doc := s.upload(models.TypeProofOfAddress, "application/pdf", true)
		s.Require().NoError(s.svc.Purge(s.ctx, doc.ID))

		_, err := s.svc.Get(s.ctx, doc.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		_, err = s.blobs.Get(s.ctx, doc.StorageRef)
		s.Error(err)

		entries, err := s.ledger.List(s.ctx, history.EntityDocument, doc.ID.String())
		s.Require().NoError(err)
		s.NotEmpty(entries)
		s.Equal("document purged", entries[len(entries)-1].Reason)
	})
}
