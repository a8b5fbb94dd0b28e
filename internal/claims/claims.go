// Package claims issues and verifies the bearer credentials shared by all
// services. Tokens are HS256 JWTs carrying the user id as subject and the
// caller's role.
package claims

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"carelink/internal/util"
	"carelink/pkg/apperr"
	"carelink/pkg/domain"
)

const (
	DefaultIssuer   = "carelink-auth"
	DefaultAudience = "carelink-api"
	DefaultTTL      = 24 * time.Hour
	DefaultLeeway   = 30 * time.Second
)

// Verification failures. Callers reject all of them the same way; the
// distinction only matters for logs.
var (
	ErrExpired          = errors.New("token expired")
	ErrMalformed        = errors.New("token malformed")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrRevoked          = errors.New("token revoked")
)

// Reason returns the log label for a verification failure.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrRevoked):
		return "revoked"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	}
	return "unknown"
}

// IsVerificationError reports whether err is one of the rejection reasons.
func IsVerificationError(err error) bool {
	return errors.Is(err, ErrExpired) || errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrSignatureInvalid) || errors.Is(err, ErrRevoked)
}

// Claims is the token payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Revocations answers whether a token id was revoked before expiry.
type Revocations interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Options configures both signer and verifier.
type Options struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
	Leeway   time.Duration
	// Now overrides the clock; tests only.
	Now func() time.Time
}

func normalize(opts Options) (Options, error) {
	if len(strings.TrimSpace(opts.Secret)) < 16 {
		return opts, errors.New("claims: secret must be at least 16 characters")
	}
	if strings.TrimSpace(opts.Issuer) == "" {
		opts.Issuer = DefaultIssuer
	}
	if strings.TrimSpace(opts.Audience) == "" {
		opts.Audience = DefaultAudience
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Leeway < 0 {
		opts.Leeway = 0
	} else if opts.Leeway == 0 {
		opts.Leeway = DefaultLeeway
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return opts, nil
}

// Signer mints credentials.
type Signer struct {
	opts Options
}

func NewSigner(opts Options) (*Signer, error) {
	opts, err := normalize(opts)
	if err != nil {
		return nil, err
	}
	return &Signer{opts: opts}, nil
}

// Issued describes a freshly minted token.
type Issued struct {
	Token     string    `json:"token"`
	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Issue signs a token for the subject and role.
func (s *Signer) Issue(subject string, role domain.Role) (Issued, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return Issued{}, errors.New("claims: subject is required")
	}
	if _, ok := domain.ParseRole(string(role)); !ok {
		return Issued{}, fmt.Errorf("claims: unknown role %q", role)
	}
	now := s.opts.Now().UTC()
	exp := now.Add(s.opts.TTL)
	id := util.NewID()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.opts.Issuer,
			Audience:  jwt.ClaimStrings{s.opts.Audience},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        id,
		},
	})
	signed, err := token.SignedString([]byte(s.opts.Secret))
	if err != nil {
		return Issued{}, fmt.Errorf("sign token: %w", err)
	}
	return Issued{Token: signed, TokenID: id, ExpiresAt: exp}, nil
}

// Verifier validates credentials against the configured secret.
type Verifier struct {
	opts        Options
	parser      *jwt.Parser
	revocations Revocations
}

// NewVerifier builds a verifier. revocations may be nil.
func NewVerifier(opts Options, revocations Revocations) (*Verifier, error) {
	opts, err := normalize(opts)
	if err != nil {
		return nil, err
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(opts.Issuer),
		jwt.WithAudience(opts.Audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(opts.Leeway),
		jwt.WithTimeFunc(opts.Now),
	)
	return &Verifier{opts: opts, parser: parser, revocations: revocations}, nil
}

// Verify returns the principal carried by the credential. ProfileID is left
// empty; resolving it is the caller's job.
func (v *Verifier) Verify(ctx context.Context, raw string) (domain.Principal, error) {
	c, err := v.Parse(raw)
	if err != nil {
		return domain.Principal{}, err
	}
	if v.revocations != nil && c.ID != "" {
		revoked, err := v.revocations.IsRevoked(ctx, c.ID)
		if err != nil {
			return domain.Principal{}, apperr.Wrap(apperr.DependencyUnavailable, "token revocation check failed", err)
		}
		if revoked {
			return domain.Principal{}, ErrRevoked
		}
	}
	role, _ := domain.ParseRole(c.Role)
	return domain.Principal{SubjectID: c.Subject, Role: role}, nil
}

// Parse validates signature and registered claims without the revocation
// lookup.
func (v *Verifier) Parse(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty credential", ErrMalformed)
	}
	c := &Claims{}
	_, err := v.parser.ParseWithClaims(raw, c, func(*jwt.Token) (any, error) {
		return []byte(v.opts.Secret), nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if strings.TrimSpace(c.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	if _, ok := domain.ParseRole(c.Role); !ok {
		return nil, fmt.Errorf("%w: unknown role %q", ErrMalformed, c.Role)
	}
	return c, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
