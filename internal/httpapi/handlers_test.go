package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tokoledger/backend/internal/domain"
	"tokoledger/backend/internal/reconcile"
	"tokoledger/backend/internal/service"
	"tokoledger/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	engine := reconcile.NewEngine(nil, 0)
	svc := service.New(repo, engine)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func doJSON(t *testing.T, api *API, method, path, token, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"username": "admin",
		"password": "admin123",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["access_token"] == "" || body["access_token"] == nil {
		t.Fatalf("expected access_token in response, got %v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleItems_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/items", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleItems_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/items", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["items"] == nil {
		t.Fatalf("expected items key in response, got %v", body)
	}
}

func TestRegisterLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/registers/open", token, csrf, domain.RegisterOpenRequest{
		OpeningCents: 100000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open register: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var opened domain.SessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&opened); err != nil {
		t.Fatalf("decode open response: %v", err)
	}
	if opened.Session.ID == "" {
		t.Fatalf("expected session id in open response")
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/ledger/cash-in", token, csrf, domain.CashEntryRequest{
		AmountCents: 25000,
		Category:    domain.CategorySale,
		Description: "walk-in sale",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("cash-in: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/registers/"+opened.Session.ID+"/close", token, csrf, domain.RegisterCloseRequest{
		ActualCents: 124000,
		Notes:       "end of shift",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("close register: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var closed domain.SessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&closed); err != nil {
		t.Fatalf("decode close response: %v", err)
	}
	if closed.Session.ExpectedCents != 125000 {
		t.Fatalf("expected 125000 expected cents, got %d", closed.Session.ExpectedCents)
	}
	if closed.Session.VarianceCents != -1000 {
		t.Fatalf("expected -1000 variance, got %d", closed.Session.VarianceCents)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/registers/"+opened.Session.ID+"/report", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	reportRec := httptest.NewRecorder()
	api.Handler().ServeHTTP(reportRec, req)
	if reportRec.Code != http.StatusOK {
		t.Fatalf("report: expected 200, got %d (body: %s)", reportRec.Code, reportRec.Body.String())
	}
	var reportBody struct {
		Report domain.SessionReport `json:"report"`
	}
	if err := json.NewDecoder(reportRec.Body).Decode(&reportBody); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if reportBody.Report.ExpectedCents != 125000 {
		t.Fatalf("report expected cents: want 125000, got %d", reportBody.Report.ExpectedCents)
	}
	if reportBody.Report.EntryCount != 1 {
		t.Fatalf("report entry count: want 1, got %d", reportBody.Report.EntryCount)
	}
}

func TestSelfApprovalRejectedOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "supervisor", "supervisor123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/registers/open", token, csrf, domain.RegisterOpenRequest{OpeningCents: 50000})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open register: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var opened domain.SessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&opened); err != nil {
		t.Fatalf("decode open response: %v", err)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/registers/"+opened.Session.ID+"/close", token, csrf, domain.RegisterCloseRequest{ActualCents: 50000})
	if rec.Code != http.StatusOK {
		t.Fatalf("close register: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/access-requests", token, csrf, domain.AccessRequestCreate{
		SessionID: opened.Session.ID,
		Reason:    "fix opening balance typo",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create access request: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created domain.AccessRequestResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode access request: %v", err)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/access-requests/"+created.Request.ID+"/approve", token, csrf, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("self approval: expected 403, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestLedgerReverseRequiresSupervisorRole(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/ledger/reverse", token, csrf, domain.ReverseEntryRequest{
		TransactionID: "mtx-nonexistent",
		Reason:        "typo",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier reverse, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestUnknownLedgerEntryReturns404(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/mtx-missing", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}
