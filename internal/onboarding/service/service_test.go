package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	docservice "onramp/internal/document/service"
	"onramp/internal/history"
	"onramp/internal/idempotency"
	"onramp/internal/notify"
	"onramp/internal/onboarding/models"
	"onramp/internal/onboarding/ports"
	"onramp/internal/onboarding/store"
	id "onramp/pkg/domain"
	dErrors "onramp/pkg/domain-errors"
	"onramp/pkg/platform/sentinel"
	"onramp/pkg/requestcontext"
)

type fakeKYC struct {
	initiations int
	initErr     error
	status      ports.KYCStatus
	statusErr   error
}

func (f *fakeKYC) Initiate(_ context.Context, _ ports.IdentityPayload) (ports.KYCInitiation, error) {
	if f.initErr != nil {
		return ports.KYCInitiation{}, f.initErr
	}
	f.initiations++
	return ports.KYCInitiation{VerificationID: fmt.Sprintf("ver-%d", f.initiations)}, nil
}

func (f *fakeKYC) GetStatus(_ context.Context, _ string) (ports.KYCStatus, error) {
	return f.status, f.statusErr
}

type fakeAuth struct {
	createCalls  int
	createErr    error
	activations  []string
	suspensions  []string
	stateCallErr error
}

func (f *fakeAuth) CreateUser(_ context.Context, _ ports.CreateUserRequest) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.createCalls++
	return fmt.Sprintf("user-%d", f.createCalls), nil
}

func (f *fakeAuth) Activate(_ context.Context, userID string) error {
	if f.stateCallErr != nil {
		return f.stateCallErr
	}
	f.activations = append(f.activations, userID)
	return nil
}

func (f *fakeAuth) Suspend(_ context.Context, userID string) error {
	if f.stateCallErr != nil {
		return f.stateCallErr
	}
	f.suspensions = append(f.suspensions, userID)
	return nil
}

type fakeBilling struct {
	calls int
	err   error
}

func (f *fakeBilling) CreateProfile(_ context.Context, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.calls++
	return fmt.Sprintf("bill-%d", f.calls), nil
}

type fakeGate struct {
	status docservice.CompletionStatus
	err    error
}

func (f *fakeGate) Completion(_ context.Context, _ id.ApplicationID) (docservice.CompletionStatus, error) {
	return f.status, f.err
}

// flakyStore fails the first failUpdates writes with a version mismatch,
// standing in for a concurrent modification.
type flakyStore struct {
	store.ApplicationStore
	failUpdates int
}

func (f *flakyStore) Update(ctx context.Context, app *models.Application) error {
	if f.failUpdates > 0 {
		f.failUpdates--
		return sentinel.ErrVersionMismatch
	}
	return f.ApplicationStore.Update(ctx, app)
}

type fakeNotifier struct {
	sent []notify.Notification
}

func (f *fakeNotifier) Emit(n notify.Notification) { f.sent = append(f.sent, n) }

type OrchestratorSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	apps     *store.InMemory
	kyc      *fakeKYC
	auth     *fakeAuth
	billing  *fakeBilling
	gate     *fakeGate
	notifier *fakeNotifier
	ledger   *history.Ledger
	svc      *Service
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) SetupTest() {
	s.now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.apps = store.NewInMemory()
	s.kyc = &fakeKYC{}
	s.auth = &fakeAuth{}
	s.billing = &fakeBilling{}
	s.gate = &fakeGate{status: docservice.CompletionStatus{Complete: true}}
	s.notifier = &fakeNotifier{}
	s.ledger = history.NewLedger(history.NewInMemoryStore())
	s.svc = New(s.apps, s.kyc, s.auth, s.billing,
		WithCompletionGate(s.gate),
		WithLedger(s.ledger),
		WithNotifier(s.notifier),
		WithIdempotency(idempotency.NewInMemoryStore(), time.Hour),
	)
}

// Subtests reconfigure the fakes freely, so each starts from a clean set.
func (s *OrchestratorSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *OrchestratorSuite) createDraft() *models.Application {
	app, err := s.svc.Create(s.ctx, CreateInput{
		Segment: models.SegmentIndividual,
		Profile: models.Profile{
			FirstName: "Amina",
			LastName:  "Diallo",
			Email:     "amina@example.com",
			Phone:     "+15550001111",
		},
		TermsAccepted:   true,
		PrivacyAccepted: true,
	})
	s.Require().NoError(err)
	return app
}

// advance walks the application through real transitions up to the target.
func (s *OrchestratorSuite) appAt(status models.Status) *models.Application {
	app := s.createDraft()
	path := map[models.Status][]models.Status{
		models.StatusSubmitted:         {models.StatusSubmitted},
		models.StatusDocumentsRequired: {models.StatusSubmitted, models.StatusDocumentsRequired},
		models.StatusDocumentsUploaded: {models.StatusSubmitted, models.StatusDocumentsRequired, models.StatusDocumentsUploaded},
		models.StatusKYCInProgress:     {models.StatusSubmitted, models.StatusKYCInProgress},
		models.StatusKYCApproved:       {models.StatusSubmitted, models.StatusKYCInProgress, models.StatusKYCApproved},
		models.StatusUnderReview:       {models.StatusSubmitted, models.StatusKYCInProgress, models.StatusUnderReview},
	}[status]
	for _, step := range path {
		s.Require().NoError(app.Transition(step, s.now))
	}
	if status == models.StatusKYCInProgress || status == models.StatusKYCApproved || status == models.StatusUnderReview {
		s.Require().NoError(app.SetKYCVerificationID("ver-test-" + app.ID.String()))
	}
	s.Require().NoError(s.apps.Update(s.ctx, app))
	return app
}

func (s *OrchestratorSuite) reload(app *models.Application) *models.Application {
	fresh, err := s.svc.Get(s.ctx, app.ID)
	s.Require().NoError(err)
	return fresh
}

func (s *OrchestratorSuite) TestCreateAndDraft() {
	s.Run("create opens a draft and records history", func() {
		app := s.createDraft()
		s.Equal(models.StatusDraft, app.Status)

		entries, err := s.svc.History(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(string(models.StatusDraft), entries[0].ToStatus)
	})

	s.Run("draft edits apply only provided fields", func() {
		app := s.createDraft()
		updated, err := s.svc.UpdateDraft(s.ctx, app.ID, UpdateDraftInput{
			Profile: &models.Profile{
				FirstName: "Binta",
				LastName:  "Diallo",
				Email:     "binta@example.com",
				Phone:     "+15550002222",
			},
		})
		s.Require().NoError(err)
		s.Equal("Binta", updated.Profile.FirstName)
		s.True(updated.TermsAccepted)
	})

	s.Run("edits are refused after submission", func() {
		app := s.appAt(models.StatusSubmitted)
		_, err := s.svc.UpdateDraft(s.ctx, app.ID, UpdateDraftInput{})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *OrchestratorSuite) TestSubmit() {
	s.Run("incomplete profile cannot submit and status is unchanged", func() {
		app, err := s.svc.Create(s.ctx, CreateInput{
			Segment:         models.SegmentIndividual,
			Profile:         models.Profile{FirstName: "Amina"},
			TermsAccepted:   true,
			PrivacyAccepted: true,
		})
		s.Require().NoError(err)

		_, err = s.svc.Submit(s.ctx, app.ID)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(models.StatusDraft, s.reload(app).Status)
	})

	s.Run("missing terms acceptance blocks submission", func() {
		app, err := s.svc.Create(s.ctx, CreateInput{
			Segment: models.SegmentIndividual,
			Profile: models.Profile{
				FirstName: "Amina", LastName: "Diallo",
				Email: "amina@example.com", Phone: "+15550001111",
			},
			PrivacyAccepted: true,
		})
		s.Require().NoError(err)
		_, err = s.svc.Submit(s.ctx, app.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("complete draft submits, stamps the milestone and notifies", func() {
		app := s.createDraft()
		submitted, err := s.svc.Submit(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusSubmitted, submitted.Status)
		s.Require().NotNil(submitted.SubmittedAt)
		s.Equal(s.now, *submitted.SubmittedAt)
		s.NotEmpty(s.notifier.sent)
		s.Equal("amina@example.com", s.notifier.sent[len(s.notifier.sent)-1].Recipient)
	})

	s.Run("double submit is denied", func() {
		app := s.appAt(models.StatusSubmitted)
		_, err := s.svc.Submit(s.ctx, app.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *OrchestratorSuite) TestCompletionHook() {
	s.Run("complete documents advance a waiting application", func() {
		app := s.appAt(models.StatusDocumentsRequired)
		s.svc.CompletionChanged(s.ctx, app.ID)
		s.Equal(models.StatusDocumentsUploaded, s.reload(app).Status)
	})

	s.Run("incomplete documents change nothing", func() {
		s.gate.status = docservice.CompletionStatus{Complete: false}
		app := s.appAt(models.StatusDocumentsRequired)
		s.svc.CompletionChanged(s.ctx, app.ID)
		s.Equal(models.StatusDocumentsRequired, s.reload(app).Status)
	})

	s.Run("hook ignores applications not waiting on documents", func() {
		app := s.appAt(models.StatusSubmitted)
		s.svc.CompletionChanged(s.ctx, app.ID)
		s.Equal(models.StatusSubmitted, s.reload(app).Status)
	})
}

func (s *OrchestratorSuite) TestInitiateKYC() {
	s.Run("starts verification and records the reference", func() {
		app := s.appAt(models.StatusDocumentsUploaded)
		updated, err := s.svc.InitiateKYC(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusKYCInProgress, updated.Status)
		s.Equal("ver-1", updated.KYCVerificationID)
	})

	s.Run("incomplete documents block initiation", func() {
		s.gate.status = docservice.CompletionStatus{Complete: false, Missing: []string{"identity"}}
		app := s.appAt(models.StatusDocumentsUploaded)
		_, err := s.svc.InitiateKYC(s.ctx, app.ID)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(models.StatusDocumentsUploaded, s.reload(app).Status)
	})

	s.Run("provider failure leaves the application unchanged", func() {
		s.kyc.initErr = errors.New("provider down")
		app := s.appAt(models.StatusDocumentsUploaded)
		_, err := s.svc.InitiateKYC(s.ctx, app.ID)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeIntegration))

		fresh := s.reload(app)
		s.Equal(models.StatusDocumentsUploaded, fresh.Status)
		s.Empty(fresh.KYCVerificationID)
	})

	s.Run("initiation from a draft is denied", func() {
		app := s.createDraft()
		_, err := s.svc.InitiateKYC(s.ctx, app.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("a failed round re-initiates with a fresh reference", func() {
		app := s.appAt(models.StatusKYCInProgress)
		s.Require().NoError(s.svc.RecordKYCVerdict(s.ctx, VerdictInput{
			VerificationID: app.KYCVerificationID,
			Status:         ports.KYCStatusRejected,
		}))
		_, err := s.svc.MarkDocumentsRequired(s.ctx, app.ID)
		s.Require().NoError(err)
		s.svc.CompletionChanged(s.ctx, app.ID)
		s.Equal(models.StatusDocumentsUploaded, s.reload(app).Status)

		fresh, err := s.svc.InitiateKYC(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusKYCInProgress, fresh.Status)
		s.Equal("ver-1", fresh.KYCVerificationID)
		s.NotEqual(app.KYCVerificationID, fresh.KYCVerificationID)
	})
}

func (s *OrchestratorSuite) TestRecordKYCVerdict() {
	s.Run("approved verdict advances to KYC_APPROVED", func() {
		app := s.appAt(models.StatusKYCInProgress)
		err := s.svc.RecordKYCVerdict(s.ctx, VerdictInput{
			VerificationID: app.KYCVerificationID,
			Status:         ports.KYCStatusApproved,
		})
		s.Require().NoError(err)
		s.Equal(models.StatusKYCApproved, s.reload(app).Status)
	})

	s.Run("rejected verdict advances to KYC_FAILED", func() {
		app := s.appAt(models.StatusKYCInProgress)
		err := s.svc.RecordKYCVerdict(s.ctx, VerdictInput{
			VerificationID: app.KYCVerificationID,
			Status:         ports.KYCStatusRejected,
		})
		s.Require().NoError(err)
		s.Equal(models.StatusKYCFailed, s.reload(app).Status)
	})

	s.Run("manual review flag routes to UNDER_REVIEW", func() {
		app := s.appAt(models.StatusKYCInProgress)
		err := s.svc.RecordKYCVerdict(s.ctx, VerdictInput{
			VerificationID:       app.KYCVerificationID,
			Status:               ports.KYCStatusApproved,
			RequiresManualReview: true,
		})
		s.Require().NoError(err)
		s.Equal(models.StatusUnderReview, s.reload(app).Status)
	})

	s.Run("replayed event id is dropped", func() {
		app := s.appAt(models.StatusKYCInProgress)
		verdict := VerdictInput{
			VerificationID: app.KYCVerificationID,
			Status:         ports.KYCStatusApproved,
			EventID:        "evt-1",
		}
		s.Require().NoError(s.svc.RecordKYCVerdict(s.ctx, verdict))
		s.Require().NoError(s.svc.RecordKYCVerdict(s.ctx, verdict))
		s.Equal(models.StatusKYCApproved, s.reload(app).Status)

		entries, err := s.svc.History(s.ctx, app.ID)
		s.Require().NoError(err)
		last := entries[len(entries)-1]
		s.Equal(string(models.StatusKYCApproved), last.ToStatus)
	})

	s.Run("a delivery that fails to apply does not consume the event id", func() {
		app := s.appAt(models.StatusKYCInProgress)
		flaky := &flakyStore{ApplicationStore: s.apps, failUpdates: 1}
		svc := New(flaky, s.kyc, s.auth, s.billing,
			WithIdempotency(idempotency.NewInMemoryStore(), time.Hour))

		verdict := VerdictInput{
			VerificationID: app.KYCVerificationID,
			Status:         ports.KYCStatusApproved,
			EventID:        "evt-retry",
		}
		err := svc.RecordKYCVerdict(s.ctx, verdict)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Equal(models.StatusKYCInProgress, s.reload(app).Status)

		// The provider redelivers the identical event; it must apply.
		s.Require().NoError(svc.RecordKYCVerdict(s.ctx, verdict))
		s.Equal(models.StatusKYCApproved, s.reload(app).Status)
	})

	s.Run("stale verdict after the application moved on is dropped", func() {
		app := s.appAt(models.StatusKYCApproved)
		err := s.svc.RecordKYCVerdict(s.ctx, VerdictInput{
			VerificationID: app.KYCVerificationID,
			Status:         ports.KYCStatusRejected,
		})
		s.Require().NoError(err)
		s.Equal(models.StatusKYCApproved, s.reload(app).Status)
	})

	s.Run("unknown verification id is not found", func() {
		err := s.svc.RecordKYCVerdict(s.ctx, VerdictInput{
			VerificationID: "ver-unknown",
			Status:         ports.KYCStatusApproved,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *OrchestratorSuite) TestSyncKYCStatus() {
	s.Run("pending poll changes nothing", func() {
		s.kyc.status = ports.KYCStatus{Status: ports.KYCStatusPending}
		app := s.appAt(models.StatusKYCInProgress)
		fresh, err := s.svc.SyncKYCStatus(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusKYCInProgress, fresh.Status)
	})

	s.Run("approved poll applies the verdict", func() {
		s.kyc.status = ports.KYCStatus{Status: ports.KYCStatusApproved}
		app := s.appAt(models.StatusKYCInProgress)
		fresh, err := s.svc.SyncKYCStatus(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusKYCApproved, fresh.Status)
	})
}

func (s *OrchestratorSuite) TestDecide() {
	s.Run("approval provisions user and billing then transitions", func() {
		app := s.appAt(models.StatusKYCApproved)
		approved, err := s.svc.Decide(s.ctx, app.ID, DecisionInput{Approve: true})
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, approved.Status)
		s.Equal("user-1", approved.AuthUserID)
		s.Equal("bill-1", approved.BillingProfileID)
		s.Require().NotNil(approved.ApprovedAt)
	})

	s.Run("auth failure leaves everything unchanged", func() {
		s.auth.createErr = errors.New("auth down")
		app := s.appAt(models.StatusKYCApproved)
		_, err := s.svc.Decide(s.ctx, app.ID, DecisionInput{Approve: true})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeIntegration))

		fresh := s.reload(app)
		s.Equal(models.StatusKYCApproved, fresh.Status)
		s.Empty(fresh.AuthUserID)
		s.Empty(fresh.BillingProfileID)
	})

	s.Run("billing failure keeps the auth user for the retry", func() {
		s.billing.err = errors.New("billing down")
		app := s.appAt(models.StatusKYCApproved)
		_, err := s.svc.Decide(s.ctx, app.ID, DecisionInput{Approve: true})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeIntegration))

		fresh := s.reload(app)
		s.Equal(models.StatusKYCApproved, fresh.Status)
		s.Equal("user-1", fresh.AuthUserID)
		s.Empty(fresh.BillingProfileID)

		s.billing.err = nil
		approved, err := s.svc.Decide(s.ctx, app.ID, DecisionInput{Approve: true})
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, approved.Status)
		s.Equal(1, s.auth.createCalls)
	})

	s.Run("approval from under review is allowed", func() {
		app := s.appAt(models.StatusUnderReview)
		approved, err := s.svc.Decide(s.ctx, app.ID, DecisionInput{Approve: true})
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, approved.Status)
	})

	s.Run("approval from KYC_IN_PROGRESS is denied", func() {
		app := s.appAt(models.StatusKYCInProgress)
		_, err := s.svc.Decide(s.ctx, app.ID, DecisionInput{Approve: true})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("rejection requires a reason", func() {
		app := s.appAt(models.StatusUnderReview)
		_, err := s.svc.Decide(s.ctx, app.ID, DecisionInput{Approve: false})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejection stores the reason and stamps the milestone", func() {
		app := s.appAt(models.StatusUnderReview)
		rejected, err := s.svc.Decide(s.ctx, app.ID, DecisionInput{Approve: false, Reason: "failed checks"})
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, rejected.Status)
		s.Equal("failed checks", rejected.RejectionReason)
		s.Require().NotNil(rejected.RejectedAt)
	})
}

func (s *OrchestratorSuite) TestReopen() {
	s.Run("rejected application returns to draft with reason cleared", func() {
		app := s.appAt(models.StatusUnderReview)
		_, err := s.svc.Decide(s.ctx, app.ID, DecisionInput{Approve: false, Reason: "failed checks"})
		s.Require().NoError(err)

		reopened, err := s.svc.Reopen(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusDraft, reopened.Status)
		s.Empty(reopened.RejectionReason)
		// The milestone stays from the first pass.
		s.NotNil(reopened.RejectedAt)
	})

	s.Run("cancelled application can be reopened", func() {
		app := s.createDraft()
		_, err := s.svc.Cancel(s.ctx, app.ID, "")
		s.Require().NoError(err)

		reopened, err := s.svc.Reopen(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusDraft, reopened.Status)
	})
}

func (s *OrchestratorSuite) TestAccountLifecycle() {
	s.Run("activate, suspend, reactivate and deactivate call the auth provider", func() {
		app := s.appAt(models.StatusKYCApproved)
		_, err := s.svc.Decide(s.ctx, app.ID, DecisionInput{Approve: true})
		s.Require().NoError(err)

		activated, err := s.svc.Activate(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusActivated, activated.Status)
		s.Equal([]string{"user-1"}, s.auth.activations)

		suspended, err := s.svc.Suspend(s.ctx, app.ID, "fraud signal")
		s.Require().NoError(err)
		s.Equal(models.StatusSuspended, suspended.Status)
		s.Equal([]string{"user-1"}, s.auth.suspensions)

		reactivated, err := s.svc.Reactivate(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusReactivated, reactivated.Status)

		deactivated, err := s.svc.Deactivate(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusDeactivated, deactivated.Status)
	})

	s.Run("activation without a provisioned user conflicts", func() {
		app := s.appAt(models.StatusKYCApproved)
		s.Require().NoError(app.Transition(models.StatusApproved, s.now))
		s.Require().NoError(s.apps.Update(s.ctx, app))

		_, err := s.svc.Activate(s.ctx, app.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("auth provider failure leaves the state unchanged", func() {
		app := s.appAt(models.StatusKYCApproved)
		_, err := s.svc.Decide(s.ctx, app.ID, DecisionInput{Approve: true})
		s.Require().NoError(err)

		s.auth.stateCallErr = errors.New("auth down")
		_, err = s.svc.Activate(s.ctx, app.ID)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeIntegration))
		s.Equal(models.StatusApproved, s.reload(app).Status)
	})

	s.Run("suspending a draft is denied", func() {
		app := s.createDraft()
		_, err := s.svc.Suspend(s.ctx, app.ID, "test")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *OrchestratorSuite) TestHistoryTrail() {
	s.Run("every accepted transition appends exactly one entry", func() {
		app := s.createDraft()
		_, err := s.svc.Submit(s.ctx, app.ID)
		s.Require().NoError(err)
		_, err = s.svc.MarkDocumentsRequired(s.ctx, app.ID)
		s.Require().NoError(err)
		s.svc.CompletionChanged(s.ctx, app.ID)

		entries, err := s.svc.History(s.ctx, app.ID)
		s.Require().NoError(err)
		s.Require().Len(entries, 4)
		s.Equal("", entries[0].FromStatus)
		s.Equal(string(models.StatusDocumentsUploaded), entries[3].ToStatus)
	})
}
