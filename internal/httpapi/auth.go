package httpapi

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"carelink/internal/claims"
	"carelink/internal/servicetoken"
	"carelink/internal/util"
	"carelink/pkg/apperr"
	"carelink/pkg/domain"
)

type principalKey struct{}

// TokenVerifier turns a bearer credential into a principal.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (domain.Principal, error)
}

// ProfileResolver fills in Principal.ProfileID. An empty id with a nil error
// means the user has no profile yet.
type ProfileResolver interface {
	ResolveProfile(ctx context.Context, p domain.Principal) (string, error)
}

// BearerToken extracts a bearer token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authHeader[7:])
	if token == "" {
		return "", false
	}
	return token, true
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated caller.
func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok
}

// Authenticator guards user-facing routes.
type Authenticator struct {
	Verifier TokenVerifier
	Resolver ProfileResolver
	Trusted  *util.TrustedProxies
}

// Middleware rejects requests without a valid credential and attaches the
// principal to the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := BearerToken(r)
		if !ok {
			Audit(r, a.Trusted, "auth.verify", "failure").Str("reason", "missing").Msg("security_event")
			WriteError(w, r, apperr.New(apperr.Unauthenticated, "authentication required"))
			return
		}
		p, err := a.Verifier.Verify(r.Context(), raw)
		if err != nil {
			if claims.IsVerificationError(err) {
				Audit(r, a.Trusted, "auth.verify", "failure").Str("reason", claims.Reason(err)).Msg("security_event")
				WriteError(w, r, apperr.New(apperr.Unauthenticated, "invalid credential"))
				return
			}
			WriteError(w, r, err)
			return
		}
		if a.Resolver != nil && p.Role != domain.RoleAdmin {
			profileID, err := a.Resolver.ResolveProfile(r.Context(), p)
			if err != nil {
				WriteError(w, r, err)
				return
			}
			p.ProfileID = profileID
		}
		ctx := WithPrincipal(r.Context(), p)
		logger := util.LoggerFromContext(ctx).With().Str("subject", p.SubjectID).Str("role", string(p.Role)).Logger()
		ctx = util.ContextWithLogger(ctx, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireService guards /internal routes with a service token.
func RequireService(v *servicetoken.Verifier, trusted *util.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				Audit(r, trusted, "service.verify", "failure").Str("reason", "missing").Msg("security_event")
				WriteError(w, r, apperr.New(apperr.Unauthenticated, "service credential required"))
				return
			}
			c, err := v.Verify(raw)
			if err != nil {
				Audit(r, trusted, "service.verify", "failure").Err(err).Msg("security_event")
				WriteError(w, r, apperr.New(apperr.Unauthenticated, "invalid service credential"))
				return
			}
			logger := util.LoggerFromContext(r.Context()).With().Str("caller", c.Issuer).Logger()
			next.ServeHTTP(w, r.WithContext(util.ContextWithLogger(r.Context(), logger)))
		})
	}
}

// Audit starts a security_event log entry. Failures log at warn.
func Audit(r *http.Request, trusted *util.TrustedProxies, event, outcome string) *zerolog.Event {
	logger := util.LoggerFromContext(r.Context())
	e := logger.Warn()
	if outcome == "success" {
		e = logger.Info()
	}
	return e.
		Str("event", event).
		Str("outcome", outcome).
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Str("ip", util.ClientIP(r, trusted))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
