package servicetoken

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func writeKeys(t *testing.T, name string) (string, string) {
	t.Helper()
	privatePath, publicPath, err := WriteKeyPair(t.TempDir(), name)
	if err != nil {
		t.Fatalf("write key pair: %v", err)
	}
	return privatePath, publicPath
}

func newSigner(t *testing.T, privatePath, kid, issuer string) *Signer {
	t.Helper()
	signer, err := NewSigner(SignerOptions{PrivateKeyPath: privatePath, KeyID: kid, Issuer: issuer, TTL: 2 * time.Second})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return signer
}

func newVerifier(t *testing.T, publicPath string, allowed ...string) *Verifier {
	t.Helper()
	verifier, err := NewVerifier(VerifierOptions{
		PublicKeyPath:  publicPath,
		Audience:       "patient",
		AllowedIssuers: allowed,
		Leeway:         time.Second,
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return verifier
}

func TestSignerVerifierRS256(t *testing.T) {
	privatePath, publicPath := writeKeys(t, "emergency")
	signer := newSigner(t, privatePath, "", "emergency")
	verifier := newVerifier(t, publicPath, "emergency", "nurse")
	token, err := signer.Sign("patient")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Issuer != "emergency" || claims.ID == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifierRejectsWrongAudience(t *testing.T) {
	privatePath, publicPath := writeKeys(t, "aud")
	token, err := newSigner(t, privatePath, "", "emergency").Sign("nurse")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := newVerifier(t, publicPath, "emergency").Verify(token); err == nil {
		t.Fatalf("expected audience mismatch")
	}
}

func TestVerifierRejectsUnknownIssuer(t *testing.T) {
	privatePath, publicPath := writeKeys(t, "iss")
	token, err := newSigner(t, privatePath, "", "gateway").Sign("patient")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := newVerifier(t, publicPath, "emergency").Verify(token); err == nil {
		t.Fatalf("expected issuer rejection")
	}
}

func TestVerifierRejectsExpiredToken(t *testing.T) {
	privatePath, publicPath := writeKeys(t, "exp")
	signer := newSigner(t, privatePath, "", "emergency")
	signer.now = func() time.Time { return time.Now().Add(-time.Minute) }
	token, err := signer.Sign("patient")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := newVerifier(t, publicPath, "emergency").Verify(token); err == nil {
		t.Fatalf("expected expiry rejection")
	}
}

func TestVerifierRejectsOtherServicesKey(t *testing.T) {
	roguePrivate, _ := writeKeys(t, "rogue")
	_, publicPath := writeKeys(t, "emergency")
	token, err := newSigner(t, roguePrivate, "", "emergency").Sign("patient")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := newVerifier(t, publicPath, "emergency").Verify(token); err == nil {
		t.Fatalf("expected signature rejection")
	}
}

func TestVerifierRejectsUnknownKid(t *testing.T) {
	privatePath, publicPath := writeKeys(t, "kid")
	token, err := newSigner(t, privatePath, "kid-1", "emergency").Sign("patient")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := newVerifier(t, publicPath, "emergency").Verify(token); err == nil {
		t.Fatalf("expected unknown kid to fail")
	}
}

func TestVerifierAcceptsRotatedKeyFromMap(t *testing.T) {
	oldPrivate, oldPublic := writeKeys(t, "old")
	newPrivate, newPublic := writeKeys(t, "new")
	keys, err := ParseVerifyPublicKeys("old=" + oldPublic + ", new=" + newPublic)
	if err != nil {
		t.Fatalf("parse keys: %v", err)
	}
	verifier, err := NewVerifier(VerifierOptions{
		VerifyPublicKeyMap: keys,
		Audience:           "patient",
		AllowedIssuers:     []string{"emergency"},
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	for kid, path := range map[string]string{"old": oldPrivate, "new": newPrivate} {
		token, err := newSigner(t, path, kid, "emergency").Sign("patient")
		if err != nil {
			t.Fatalf("sign %s: %v", kid, err)
		}
		if _, err := verifier.Verify(token); err != nil {
			t.Fatalf("verify %s: %v", kid, err)
		}
	}
}

func TestVerifierRequiresKidHeader(t *testing.T) {
	privatePath, publicPath := writeKeys(t, "missing-kid")
	key, err := loadPrivateKey(privatePath)
	if err != nil {
		t.Fatalf("load private key: %v", err)
	}
	now := time.Now().UTC()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Issuer:    "emergency",
		Subject:   "emergency",
		Audience:  jwt.ClaimStrings{"patient"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		ID:        "jti-missing-kid",
	}).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := newVerifier(t, publicPath, "emergency").Verify(signed); err == nil {
		t.Fatalf("expected missing kid token to fail")
	}
}

func TestVerifierRejectsHMACToken(t *testing.T) {
	_, publicPath := writeKeys(t, "alg")
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "emergency",
		Subject:   "emergency",
		Audience:  jwt.ClaimStrings{"patient"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		ID:        "jti-hmac",
	})
	token.Header["kid"] = DefaultKeyID
	signed, err := token.SignedString([]byte("shared-secret-0123456789"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := newVerifier(t, publicPath, "emergency").Verify(signed); err == nil {
		t.Fatalf("expected hs256 token to fail")
	}
}

func TestConstructorsValidateOptions(t *testing.T) {
	privatePath, publicPath := writeKeys(t, "opts")
	if _, err := NewSigner(SignerOptions{PrivateKeyPath: privatePath}); err == nil {
		t.Fatal("expected issuer error")
	}
	if _, err := NewSigner(SignerOptions{Issuer: "emergency"}); err == nil {
		t.Fatal("expected missing key path error")
	}
	if _, err := NewSigner(SignerOptions{Issuer: "emergency", PrivateKeyPath: publicPath}); err == nil {
		t.Fatal("expected private key parse error")
	}
	if _, err := NewVerifier(VerifierOptions{PublicKeyPath: publicPath, Audience: "patient"}); err == nil {
		t.Fatal("expected issuer allowlist error")
	}
	if _, err := NewVerifier(VerifierOptions{Audience: "patient", AllowedIssuers: []string{"emergency"}}); err == nil {
		t.Fatal("expected missing public key error")
	}
	if _, err := ParseVerifyPublicKeys("old"); err == nil {
		t.Fatal("expected malformed key map error")
	}
}
