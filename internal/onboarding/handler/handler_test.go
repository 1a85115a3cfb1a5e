package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"onramp/internal/history"
	"onramp/internal/onboarding/models"
	"onramp/internal/onboarding/ports"
	"onramp/internal/onboarding/service"
	"onramp/internal/onboarding/store"
)

type stubKYC struct{ n int }

func (s *stubKYC) Initiate(context.Context, ports.IdentityPayload) (ports.KYCInitiation, error) {
	s.n++
	return ports.KYCInitiation{VerificationID: fmt.Sprintf("ver-%d", s.n)}, nil
}

func (s *stubKYC) GetStatus(context.Context, string) (ports.KYCStatus, error) {
	return ports.KYCStatus{Status: ports.KYCStatusPending}, nil
}

type stubAuth struct{ n int }

func (s *stubAuth) CreateUser(context.Context, ports.CreateUserRequest) (string, error) {
	s.n++
	return fmt.Sprintf("user-%d", s.n), nil
}
func (s *stubAuth) Activate(context.Context, string) error { return nil }
func (s *stubAuth) Suspend(context.Context, string) error  { return nil }

type stubBilling struct{ n int }

func (s *stubBilling) CreateProfile(context.Context, string) (string, error) {
	s.n++
	return fmt.Sprintf("bill-%d", s.n), nil
}

func newApplicationRouter(t *testing.T) http.Handler {
	t.Helper()
	svc := service.New(store.NewInMemory(), &stubKYC{}, &stubAuth{}, &stubBilling{},
		service.WithLedger(history.NewLedger(history.NewInMemoryStore())),
	)
	h := New(svc, slog.Default())
	r := chi.NewRouter()
	h.Register(r)
	h.RegisterReview(r)
	h.RegisterWebhooks(r)
	return r
}

func createApplication(t *testing.T, router http.Handler) string {
	t.Helper()
	payload := map[string]any{
		"segment": "individual",
		"profile": map[string]string{
			"first_name": "Amina",
			"last_name":  "Diallo",
			"email":      "amina@example.com",
			"phone":      "+15550001111",
		},
		"terms_accepted":   true,
		"privacy_accepted": true,
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/applications", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating application, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if resp.ID == uuid.Nil {
		t.Fatalf("expected application id in response")
	}
	return resp.ID.String()
}

func do(router http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	var body *bytes.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateRejectsUnknownSegment(t *testing.T) {
	router := newApplicationRouter(t)
	rec := do(router, http.MethodPost, "/applications", map[string]any{"segment": "robot"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Error != "validation" {
		t.Fatalf("expected validation error code, got %q", resp.Error)
	}
}

func TestSubmitAndHistoryFlow(t *testing.T) {
	router := newApplicationRouter(t)
	appID := createApplication(t, router)

	rec := do(router, http.MethodPost, "/applications/"+appID+"/submit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 submitting, got %d: %s", rec.Code, rec.Body.String())
	}
	var app models.Application
	if err := json.NewDecoder(rec.Body).Decode(&app); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	if app.Status != models.StatusSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", app.Status)
	}

	// Double submit conflicts.
	rec = do(router, http.MethodPost, "/applications/"+appID+"/submit", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double submit, got %d", rec.Code)
	}

	rec = do(router, http.MethodGet, "/applications/"+appID+"/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for history, got %d", rec.Code)
	}
	var hist struct {
		Count int `json:"count"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&hist)
	if hist.Count != 2 {
		t.Fatalf("expected 2 history entries, got %d", hist.Count)
	}
}

func TestDecisionEndpoint(t *testing.T) {
	router := newApplicationRouter(t)
	appID := createApplication(t, router)

	for _, step := range []string{"submit", "kyc"} {
		rec := do(router, http.MethodPost, "/applications/"+appID+"/"+step, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("step %s: expected 200, got %d: %s", step, rec.Code, rec.Body.String())
		}
	}

	// Deliver the verdict through the webhook.
	rec := do(router, http.MethodPost, "/webhooks/kyc", map[string]any{
		"verification_id": "ver-1",
		"status":          "approved",
		"event_id":        "evt-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from webhook, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(router, http.MethodPost, "/applications/"+appID+"/decision", map[string]any{
		"decision": "approve",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 approving, got %d: %s", rec.Code, rec.Body.String())
	}
	var app models.Application
	_ = json.NewDecoder(rec.Body).Decode(&app)
	if app.Status != models.StatusApproved {
		t.Fatalf("expected APPROVED, got %s", app.Status)
	}
	if app.AuthUserID == "" || app.BillingProfileID == "" {
		t.Fatalf("expected provisioned ids, got %+v", app)
	}

	rec = do(router, http.MethodPost, "/applications/"+appID+"/decision", map[string]any{
		"decision": "maybe",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown decision, got %d", rec.Code)
	}
}

func TestListFilterValidation(t *testing.T) {
	router := newApplicationRouter(t)
	createApplication(t, router)

	rec := do(router, http.MethodGet, "/applications?status=DRAFT", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing, got %d", rec.Code)
	}
	var resp struct {
		Count int `json:"count"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Count != 1 {
		t.Fatalf("expected 1 draft, got %d", resp.Count)
	}

	rec = do(router, http.MethodGet, "/applications?status=NONSENSE", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status filter, got %d", rec.Code)
	}
}

func TestGetUnknownApplication(t *testing.T) {
	router := newApplicationRouter(t)

	rec := do(router, http.MethodGet, "/applications/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = do(router, http.MethodGet, "/applications/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
}
