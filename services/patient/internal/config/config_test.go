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
port: "4002"
jwtSecret: "file-secret-0123456789abcdef"
internalJwtPrivateKeyPath: "secrets/internal-jwt/private.pem"
internalJwtPublicKeyPath: "secrets/internal-jwt/public.pem"
`

func TestLoadReadsNurseServiceURL(t *testing.T) {
	t.Setenv("NURSE_SERVICE_URL", "http://nurse:4003")
	t.Setenv("TRIAGE_THRESHOLD", "0.6")
	cfg, err := Load(writeConfig(t, base))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NurseServiceURL != "http://nurse:4003" || cfg.TriageThreshold != 0.6 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Setenv("NURSE_SERVICE_URL", "")
	t.Setenv("TRIAGE_THRESHOLD", "")
	t.Setenv("INTERNAL_JWT_PUBLIC_KEY_PATH", "")
	t.Setenv("INTERNAL_JWT_VERIFY_PUBLIC_KEYS", "")
	cases := map[string]string{
		"missing nurse url": base,
		"threshold too big": base + "nurseServiceURL: http://nurse\ntriageThreshold: 1.5\n",
		"no verify key":     "port: \"4002\"\njwtSecret: \"file-secret-0123456789abcdef\"\ninternalJwtPrivateKeyPath: private.pem\nnurseServiceURL: http://nurse\n",
		"bad verify keys":   base + "nurseServiceURL: http://nurse\ninternalJwtVerifyPublicKeys: \"old\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
