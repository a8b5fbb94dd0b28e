package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"carelink/internal/claims"
	"carelink/internal/httpapi"
	"carelink/internal/servicetoken"
	"carelink/pkg/apperr"
	"carelink/pkg/domain"
	"carelink/pkg/store"
	"carelink/services/nurse/internal/app"
)

const testSecret = "nurse-test-secret-0123456789"

type patients map[string]domain.Patient

func (d patients) Patient(_ context.Context, id string) (domain.Patient, error) {
	if p, ok := d[id]; ok {
		return p, nil
	}
	return domain.Patient{}, apperr.New(apperr.NotFound, "patient not found")
}

func (d patients) PatientByUser(_ context.Context, userID string) (domain.Patient, error) {
	for _, p := range d {
		if p.UserID == userID {
			return p, nil
		}
	}
	return domain.Patient{}, apperr.New(apperr.NotFound, "patient not found")
}

type harness struct {
	handler http.Handler
	signer  *claims.Signer
	// nurse is u-n1's profile; P1 is assigned to it.
	nurse domain.Nurse
	// internalKey signs peer calls under the default kid.
	internalKey string
}

func newHarness(t *testing.T) harness {
	t.Helper()
	signer, err := claims.NewSigner(claims.Options{Secret: testSecret})
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	verifier, err := claims.NewVerifier(claims.Options{Secret: testSecret}, nil)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	internalKey, internalPub, err := servicetoken.WriteKeyPair(t.TempDir(), "internal")
	if err != nil {
		t.Fatalf("internal keys: %v", err)
	}
	services, err := servicetoken.NewVerifier(servicetoken.VerifierOptions{
		PublicKeyPath:  internalPub,
		Audience:       "nurse",
		AllowedIssuers: []string{"patient", "emergency"},
	})
	if err != nil {
		t.Fatalf("service verifier: %v", err)
	}
	nurses := store.NewMemoryRepository[domain.Nurse](store.MemoryConfig{Unique: []string{"userId", "licenseNumber"}})
	n, err := nurses.Create(context.Background(), domain.Nurse{UserID: "u-n1", LicenseNumber: "LIC-1", Specialization: "cardiology", IsAvailable: true})
	if err != nil {
		t.Fatalf("seed nurse: %v", err)
	}
	core, err := app.New(app.Config{
		Nurses: nurses,
		Tips:   store.NewMemoryRepository[domain.MotivationalTip](store.MemoryConfig{}),
		Patients: patients{
			"P1": {Meta: domain.Meta{ID: "P1"}, UserID: "u-p1", AssignedNurseID: n.ID},
		},
	})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	srv := New(Config{
		App:      core,
		Verifier: verifier,
		Services: services,
		Base: httpapi.BaseConfig{
			Service:    "nurse",
			Descriptor: httpapi.ServiceDescriptor{Name: "nurse", Namespaces: []string{"nurses", "tips"}},
		},
	})
	return harness{handler: srv.Router(), signer: signer, nurse: n, internalKey: internalKey}
}

func (h harness) token(t *testing.T, subject string, role domain.Role) string {
	t.Helper()
	issued, err := h.signer.Issue(subject, role)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return issued.Token
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

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode: %v (%s)", err, rec.Body.String())
	}
	return v
}

type listBody struct {
	Count int `json:"count"`
}

func TestNurseDirectory(t *testing.T) {
	h := newHarness(t)
	admin := h.token(t, "u-admin", domain.RoleAdmin)
	nurse := h.token(t, "u-n1", domain.RoleNurse)

	rec := h.do(t, admin, http.MethodPost, "/api/nurses", `{"userId":"u-n2","licenseNumber":"LIC-2","specialization":"icu","shift":"MORNING"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec = h.do(t, admin, http.MethodPost, "/api/nurses", `{"userId":"u-n3","licenseNumber":"LIC-2","specialization":"icu"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate license status = %d", rec.Code)
	}
	rec = h.do(t, nurse, http.MethodPost, "/api/nurses", `{"userId":"u-n4","licenseNumber":"LIC-4","specialization":"icu"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("nurse create status = %d", rec.Code)
	}

	rec = h.do(t, nurse, http.MethodGet, "/api/nurses/me", "")
	if rec.Code != http.StatusOK || decode[domain.Nurse](t, rec).ID != h.nurse.ID {
		t.Fatalf("me: status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, nurse, http.MethodPut, "/api/nurses/"+h.nurse.ID+"/availability", `{"isAvailable":false}`)
	if rec.Code != http.StatusOK || decode[domain.Nurse](t, rec).IsAvailable {
		t.Fatalf("availability: status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec = h.do(t, nurse, http.MethodPut, "/api/nurses/"+h.nurse.ID+"/availability", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing isAvailable status = %d", rec.Code)
	}

	patient := h.token(t, "u-p1", domain.RolePatient)
	rec = h.do(t, patient, http.MethodGet, "/api/nurses?available=true", "")
	if rec.Code != http.StatusOK || decode[listBody](t, rec).Count != 1 {
		t.Fatalf("available list: status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec = h.do(t, patient, http.MethodGet, "/api/nurses?available=maybe", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad filter status = %d", rec.Code)
	}
	rec = h.do(t, patient, http.MethodPatch, "/api/nurses/"+h.nurse.ID, `{"yearsOfExperience":3}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("patient edit status = %d", rec.Code)
	}
}

func TestTipLifecycle(t *testing.T) {
	h := newHarness(t)
	nurse := h.token(t, "u-n1", domain.RoleNurse)
	patient := h.token(t, "u-p1", domain.RolePatient)

	rec := h.do(t, nurse, http.MethodPost, "/api/tips", `{"patientId":"P1","title":"Walk","content":"Ten minutes.","scheduledDate":"2026-04-02"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create tip status = %d body=%s", rec.Code, rec.Body.String())
	}
	tip := decode[domain.MotivationalTip](t, rec)
	if tip.NurseID != h.nurse.ID {
		t.Fatalf("tip nurse = %q", tip.NurseID)
	}

	rec = h.do(t, patient, http.MethodPost, "/api/tips", `{"patientId":"P1","title":"x","content":"y"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("patient create status = %d", rec.Code)
	}

	rec = h.do(t, patient, http.MethodGet, "/api/tips?from=2026-04-02&to=2026-04-02", "")
	if rec.Code != http.StatusOK || decode[listBody](t, rec).Count != 1 {
		t.Fatalf("same-day list: status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, nurse, http.MethodPost, "/api/tips/"+tip.ID+"/read", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("nurse mark read status = %d", rec.Code)
	}
	rec = h.do(t, patient, http.MethodPost, "/api/tips/"+tip.ID+"/read", "")
	if rec.Code != http.StatusOK || !decode[domain.MotivationalTip](t, rec).IsRead {
		t.Fatalf("mark read: status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec = h.do(t, patient, http.MethodGet, "/api/tips?unread=true", "")
	if rec.Code != http.StatusOK || decode[listBody](t, rec).Count != 0 {
		t.Fatalf("unread list: status = %d body=%s", rec.Code, rec.Body.String())
	}

	if rec = h.do(t, nurse, http.MethodDelete, "/api/tips/"+tip.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec = h.do(t, nurse, http.MethodPatch, "/api/tips/"+tip.ID, `{"title":"gone"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("update deleted status = %d", rec.Code)
	}
}

func TestInternalNurseLookup(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, h.token(t, "u-admin", domain.RoleAdmin), http.MethodGet, "/internal/nurses/"+h.nurse.ID, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("user token on internal route: status = %d", rec.Code)
	}

	signer, err := servicetoken.NewSigner(servicetoken.SignerOptions{PrivateKeyPath: h.internalKey, Issuer: "patient"})
	if err != nil {
		t.Fatalf("service signer: %v", err)
	}
	token, err := signer.Sign("nurse")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rec = h.do(t, token, http.MethodGet, "/internal/nurses/by-user/u-n1", "")
	if rec.Code != http.StatusOK || decode[domain.Nurse](t, rec).ID != h.nurse.ID {
		t.Fatalf("lookup by user: status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec = h.do(t, token, http.MethodGet, "/internal/nurses/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing nurse status = %d", rec.Code)
	}
}
