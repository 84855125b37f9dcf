package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fortimind/subscriptions/internal/auth"
	eventdomain "github.com/fortimind/subscriptions/internal/billingevent/domain"
	eventrepo "github.com/fortimind/subscriptions/internal/billingevent/repository"
	"github.com/fortimind/subscriptions/internal/clock"
	"github.com/fortimind/subscriptions/internal/config"
	"github.com/fortimind/subscriptions/internal/paypal"
	subscriptiondomain "github.com/fortimind/subscriptions/internal/subscription/domain"
	subscriptionrepo "github.com/fortimind/subscriptions/internal/subscription/repository"
	subscriptionservice "github.com/fortimind/subscriptions/internal/subscription/service"
	"github.com/fortimind/subscriptions/internal/webhook"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeTokenVerifier struct {
	users map[string]string
}

func (f fakeTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (string, error) {
	if userID, ok := f.users[idToken]; ok {
		return userID, nil
	}
	return "", auth.ErrInvalidToken
}

type staticVerifier struct {
	verified bool
}

func (v staticVerifier) VerifyWebhookSignature(ctx context.Context, webhookID string, headers paypal.SignatureHeaders, event []byte) (bool, error) {
	return v.verified, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&subscriptiondomain.UserFlag{},
		&subscriptiondomain.Subscription{},
		&eventdomain.EventRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestServer(t *testing.T, signatureOK bool) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	subscriptionSvc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fake,
		Repo:  subscriptionrepo.Provide(),
	})
	webhookSvc := webhook.NewService(webhook.Params{
		DB:              db,
		Log:             zap.NewNop(),
		GenID:           node,
		Clock:           fake,
		Adapter:         paypal.NewAdapter(staticVerifier{verified: signatureOK}, "WHID-1"),
		EventRepo:       eventrepo.Provide(),
		SubscriptionSvc: subscriptionSvc,
	})

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(ErrorHandlingMiddleware())

	srv := &Server{
		engine: engine,
		cfg:    config.Config{Environment: "test"},
		db:     db,
		log:    zap.NewNop(),
		genID:  node,
		tokens: fakeTokenVerifier{users: map[string]string{
			"token-user-1": "user_1",
			"token-user-2": "user_2",
		}},
		subscriptionSvc: subscriptionSvc,
		webhookSvc:      webhookSvc,
	}
	srv.registerRoutes()
	return srv
}

func signedHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Paypal-Auth-Algo", "SHA256withRSA")
	h.Set("Paypal-Cert-Url", "https://api.paypal.com/cert")
	h.Set("Paypal-Transmission-Id", "tx-1")
	h.Set("Paypal-Transmission-Sig", "sig-1")
	h.Set("Paypal-Transmission-Time", "2026-03-01T12:00:00Z")
	return h
}

func activatedPayload(eventID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"event_type": "BILLING.SUBSCRIPTION.ACTIVATED",
		"resource_type": "subscription",
		"resource": {"id": "I-SUB1", "status": "ACTIVE", "custom_id": "user_1"},
		"create_time": "2026-03-01T11:59:00Z"
	}`, eventID))
}

func doRequest(srv *Server, method, path string, body []byte, headers http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if headers != nil {
		req.Header = headers
	}
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v any) []byte {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return body
}

func TestWebhookWrongMethodReturns405(t *testing.T) {
	srv := newTestServer(t, true)

	rec := doRequest(srv, http.MethodGet, "/webhook", nil, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestWebhookBadSignatureReturns401(t *testing.T) {
	srv := newTestServer(t, false)

	rec := doRequest(srv, http.MethodPost, "/webhook", activatedPayload("WH-1"), signedHeaders())
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestWebhookMissingCustomIDReturns400(t *testing.T) {
	srv := newTestServer(t, true)

	payload := []byte(`{
		"id": "WH-1",
		"event_type": "BILLING.SUBSCRIPTION.ACTIVATED",
		"resource": {"id": "I-SUB1", "status": "ACTIVE"}
	}`)
	rec := doRequest(srv, http.MethodPost, "/webhook", payload, signedHeaders())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestWebhookActivatedEventGrantsPremium(t *testing.T) {
	srv := newTestServer(t, true)

	rec := doRequest(srv, http.MethodPost, "/webhook", activatedPayload("WH-1"), signedHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := jsonBody(t, map[string]string{"userId": "user_1", "idToken": "token-user-1"})
	rec = doRequest(srv, http.MethodPost, "/subscription-status", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var status subscriptiondomain.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.IsPremium || status.Status != string(subscriptiondomain.SubscriptionStatusActive) {
		t.Fatalf("expected active premium, got %+v", status)
	}
}

func TestWebhookUnrecognizedEventReturns200(t *testing.T) {
	srv := newTestServer(t, true)

	payload := []byte(`{
		"id": "WH-5",
		"event_type": "BILLING.PLAN.UPDATED",
		"resource": {"id": "P-1", "custom_id": "user_1"}
	}`)
	rec := doRequest(srv, http.MethodPost, "/webhook", payload, signedHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("unrecognized events must return 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStatusIdentityMismatchReturns403(t *testing.T) {
	srv := newTestServer(t, true)

	// Valid credential for user_2 querying user_1.
	body := jsonBody(t, map[string]string{"userId": "user_1", "idToken": "token-user-2"})
	rec := doRequest(srv, http.MethodPost, "/subscription-status", body, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("isPremium")) {
		t.Fatalf("forbidden response must not leak subscription data: %s", rec.Body.String())
	}
}

func TestStatusInvalidCredentialReturns401(t *testing.T) {
	srv := newTestServer(t, true)

	body := jsonBody(t, map[string]string{"userId": "user_1", "idToken": "garbage"})
	rec := doRequest(srv, http.MethodPost, "/subscription-status", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStatusMissingUserIDReturns400(t *testing.T) {
	srv := newTestServer(t, true)

	body := jsonBody(t, map[string]string{"idToken": "token-user-1"})
	rec := doRequest(srv, http.MethodPost, "/subscription-status", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStatusUpdateManualOverride(t *testing.T) {
	srv := newTestServer(t, true)

	body := jsonBody(t, map[string]string{
		"userId":               "user_1",
		"idToken":              "token-user-1",
		"paypalSubscriptionId": "I-MANUAL",
		"action":               "activate",
	})
	rec := doRequest(srv, http.MethodPost, "/subscription-status/update", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp["success"] {
		t.Fatalf("expected success true, got %s", rec.Body.String())
	}

	statusBody := jsonBody(t, map[string]string{"userId": "user_1", "idToken": "token-user-1"})
	rec = doRequest(srv, http.MethodPost, "/subscription-status", statusBody, nil)
	var status subscriptiondomain.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.IsPremium {
		t.Fatalf("expected premium after manual activate, got %+v", status)
	}
	if status.PayPalSubscriptionID == nil || *status.PayPalSubscriptionID != "I-MANUAL" {
		t.Fatalf("expected override subscription id, got %v", status.PayPalSubscriptionID)
	}
}

func TestStatusUpdateInvalidActionReturns400(t *testing.T) {
	srv := newTestServer(t, true)

	body := jsonBody(t, map[string]string{
		"userId":  "user_1",
		"idToken": "token-user-1",
		"action":  "suspend",
	})
	rec := doRequest(srv, http.MethodPost, "/subscription-status/update", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}
