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
port: "4005"
jwtSecret: "file-secret-0123456789abcdef"
internalJwtPrivateKeyPath: "secrets/internal-jwt/private.pem"
internalJwtPublicKeyPath: "secrets/internal-jwt/public.pem"
patientServiceURL: http://patient:4002
`

func TestLoadAppliesEventEnv(t *testing.T) {
	t.Setenv("EVENTS_STREAM", "carelink:alerts:test")
	t.Setenv("EVENTS_MAXLEN", "500")
	cfg, err := Load(writeConfig(t, base+"eventsMaxLen: 10\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.EventsStream != "carelink:alerts:test" || cfg.EventsMaxLen != 500 {
		t.Fatalf("events = %q/%d", cfg.EventsStream, cfg.EventsMaxLen)
	}
}

func TestLoadRejectsIncompleteArchive(t *testing.T) {
	if _, err := Load(writeConfig(t, base+"minioEndpoint: minio:9000\nminioBucket: audit\n")); err == nil {
		t.Fatal("expected error for minio endpoint without credentials")
	}
	cfg, err := Load(writeConfig(t, base+"minioEndpoint: minio:9000\nminioBucket: audit\nminioAccessKey: a\nminioSecretKey: b\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MinioBucket != "audit" {
		t.Fatalf("bucket = %q", cfg.MinioBucket)
	}
}

func TestLoadRejectsNegativeMaxLen(t *testing.T) {
	if _, err := Load(writeConfig(t, base+"eventsMaxLen: -1\n")); err == nil {
		t.Fatal("expected error for negative eventsMaxLen")
	}
}
