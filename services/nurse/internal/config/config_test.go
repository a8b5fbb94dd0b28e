package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const base = `
port: "4003"
jwtSecret: "file-secret-0123456789abcdef"
internalJwtPrivateKeyPath: "secrets/internal-jwt/private.pem"
internalJwtPublicKeyPath: "secrets/internal-jwt/public.pem"
`

func TestLoadPrefersEnvPatientURL(t *testing.T) {
	t.Setenv("PATIENT_SERVICE_URL", "http://patient:4002")
	cfg, err := Load(writeConfig(t, base+"patientServiceURL: http://file\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PatientServiceURL != "http://patient:4002" {
		t.Fatalf("patientServiceURL = %q", cfg.PatientServiceURL)
	}
}

func TestLoadRequiresPatientURL(t *testing.T) {
	t.Setenv("PATIENT_SERVICE_URL", "")
	if _, err := Load(writeConfig(t, base)); err == nil {
		t.Fatal("expected error without patientServiceURL")
	}
}

func TestLoadAppliesInternalKeyEnv(t *testing.T) {
	t.Setenv("PATIENT_SERVICE_URL", "http://patient:4002")
	t.Setenv("INTERNAL_JWT_KEY_ID", "internal-2026")
	t.Setenv("INTERNAL_JWT_VERIFY_PUBLIC_KEYS", "internal-2025=/keys/old.pem,internal-2026=/keys/new.pem")
	cfg, err := Load(writeConfig(t, base))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	keys, err := cfg.InternalVerifyKeys()
	if err != nil {
		t.Fatalf("verify keys: %v", err)
	}
	if cfg.InternalJWTKeyID != "internal-2026" || keys["internal-2025"] != "/keys/old.pem" || len(keys) != 2 {
		t.Fatalf("internal keys = %q %v", cfg.InternalJWTKeyID, keys)
	}
}
