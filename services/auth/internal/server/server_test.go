package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"carelink/internal/claims"
	"carelink/internal/httpapi"
	"carelink/internal/ratelimit"
	"carelink/pkg/domain"
	"carelink/pkg/store"
	"carelink/services/auth/internal/app"
)

const testSecret = "auth-server-test-secret-0123456789"

type harness struct {
	handler http.Handler
	signer  *claims.Signer
}

func newHarness(t *testing.T, loginLimit ratelimit.Limiter) harness {
	t.Helper()
	revoker := store.NewMemoryTokenRevoker()
	signer, err := claims.NewSigner(claims.Options{Secret: testSecret})
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	verifier, err := claims.NewVerifier(claims.Options{Secret: testSecret}, revoker)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	core, err := app.New(app.Config{
		Users:   store.NewMemoryRepository[domain.User](store.MemoryConfig{Unique: []string{"email"}}),
		Signer:  signer,
		Revoker: revoker,
	})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	srv := New(Config{
		App:        core,
		Verifier:   verifier,
		LoginLimit: loginLimit,
		Base:       httpapi.BaseConfig{Service: "auth"},
	})
	return harness{handler: srv.Router(), signer: signer}
}

func (h harness) do(t *testing.T, token, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h harness) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := h.do(t, "", http.MethodPost, "/api/auth/login", `{"email":"`+email+`","password":"`+password+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", rec.Code, rec.Body.String())
	}
	var session struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil || session.Token == "" {
		t.Fatalf("decode session: %v (%s)", err, rec.Body.String())
	}
	return session.Token
}

const nurseSignup = `{"email":"joy@example.com","password":"correct horse","firstName":"Joy","lastName":"Mensah","role":"NURSE"}`

func TestRegisterLoginMeLogout(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, "", http.MethodPost, "/api/auth/register", nurseSignup)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d body=%s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "correct horse") || strings.Contains(strings.ToLower(rec.Body.String()), "hash") {
		t.Fatalf("register response leaks the password: %s", rec.Body.String())
	}

	rec = h.do(t, "", http.MethodPost, "/api/auth/register", nurseSignup)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d", rec.Code)
	}

	token := h.login(t, "joy@example.com", "correct horse")
	rec = h.do(t, token, http.MethodGet, "/api/users/me", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d body=%s", rec.Code, rec.Body.String())
	}
	var me domain.User
	if err := json.Unmarshal(rec.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.Email != "joy@example.com" || me.Role != domain.RoleNurse {
		t.Fatalf("unexpected me: %+v", me)
	}

	rec = h.do(t, token, http.MethodPost, "/api/auth/logout", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec = h.do(t, token, http.MethodGet, "/api/users/me", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token status = %d", rec.Code)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	h := newHarness(t, nil)
	h.do(t, "", http.MethodPost, "/api/auth/register", nurseSignup)

	rec := h.do(t, "", http.MethodPost, "/api/auth/login", `{"email":"joy@example.com","password":"wrong horse"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "password is incorrect") {
		t.Fatalf("error reveals which field was wrong: %s", rec.Body.String())
	}
}

func TestAdminRegistrationNeedsAdminCaller(t *testing.T) {
	h := newHarness(t, nil)
	body := `{"email":"root@example.com","password":"correct horse","firstName":"R","lastName":"T","role":"ADMIN"}`

	rec := h.do(t, "", http.MethodPost, "/api/auth/register", body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("anonymous admin status = %d", rec.Code)
	}

	issued, err := h.signer.Issue("bootstrap-admin", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rec = h.do(t, issued.Token, http.MethodPost, "/api/auth/register", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin-created admin status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, "garbage", http.MethodPost, "/api/auth/register", nurseSignup)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad optional credential status = %d", rec.Code)
	}
}

func TestUserListIsAdminOnly(t *testing.T) {
	h := newHarness(t, nil)
	h.do(t, "", http.MethodPost, "/api/auth/register", nurseSignup)
	token := h.login(t, "joy@example.com", "correct horse")

	if rec := h.do(t, token, http.MethodGet, "/api/users", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("nurse list status = %d", rec.Code)
	}

	admin, err := h.signer.Issue("root", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rec := h.do(t, admin.Token, http.MethodGet, "/api/users?role=nurse", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin list status = %d body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Count != 1 {
		t.Fatalf("list body = %s", rec.Body.String())
	}
}

func TestLoginIsRateLimited(t *testing.T) {
	h := newHarness(t, ratelimit.NewLocalLimiter(2, time.Minute))
	for i := 0; i < 2; i++ {
		rec := h.do(t, "", http.MethodPost, "/api/auth/login", `{"email":"x@example.com","password":"whatever1"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d", i, rec.Code)
		}
	}
	rec := h.do(t, "", http.MethodPost, "/api/auth/login", `{"email":"x@example.com","password":"whatever1"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
}
