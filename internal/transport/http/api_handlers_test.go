package http

import (
	"bytes"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func postJSON(t *testing.T, ts *httptest.Server, path, tn string, body any) *stdhttp.Response {
	t.Helper()

	data, _ := json.Marshal(body)
	req, err := stdhttp.NewRequest(stdhttp.MethodPost, ts.URL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tn != "" {
		req.Header.Set(TenantHeader, tn)
	}

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRegister_RequiresTenantHeader(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts, "/api/register", "", RegisterRequest{
		Name: "Alice", Email: "alice@example.com", Phone: "5551234567", Password: "password123",
	})
	if resp.StatusCode != stdhttp.StatusBadRequest {
		t.Fatalf("expected 400 without tenant header, got %d", resp.StatusCode)
	}
}

func TestRegister_DuplicateEmailReportsField(t *testing.T) {
	ts, _ := newTestServer(t)

	registerUser(t, ts, "crm", "Alice", "alice@example.com", "5551234567")

	resp := postJSON(t, ts, "/api/register", "crm", RegisterRequest{
		Name: "Other", Email: "alice@example.com", Phone: "5559876543", Password: "password123",
	})
	if resp.StatusCode != stdhttp.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Field != "email" {
		t.Fatalf("expected field email, got %q", errResp.Field)
	}
}

func TestLogin_ScopedToTenant(t *testing.T) {
	ts, _ := newTestServer(t)

	registerUser(t, ts, "crm", "Alice", "alice@example.com", "5551234567")

	// Right tenant works.
	resp := postJSON(t, ts, "/api/login", "crm", LoginRequest{Email: "alice@example.com", Password: "password123"})
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// Same credentials in another tenant are invisible.
	resp = postJSON(t, ts, "/api/login", "helpdesk", LoginRequest{Email: "alice@example.com", Password: "password123"})
	if resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401 across tenants, got %d", resp.StatusCode)
	}

	// Wrong password.
	resp = postJSON(t, ts, "/api/login", "crm", LoginRequest{Email: "alice@example.com", Password: "wrong"})
	if resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", resp.StatusCode)
	}
}

func TestProtectedRoutes_RejectMissingToken(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/api/home")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
}
