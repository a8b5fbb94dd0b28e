package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"carelink/internal/claims"
	"carelink/internal/httpapi"
	"carelink/internal/ratelimit"
	"carelink/internal/util"
	"carelink/pkg/apperr"
	"carelink/pkg/domain"
	"carelink/services/auth/internal/app"
	"carelink/services/auth/internal/security"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App         *app.App
	Verifier    *claims.Verifier
	LoginLimit  ratelimit.Limiter
	SignupLimit ratelimit.Limiter
	Alerter     *security.AuditAlerter
	Trusted     *util.TrustedProxies
	Base        httpapi.BaseConfig
}

// Server exposes the account endpoints.
type Server struct {
	app      *app.App
	verifier *claims.Verifier
	auth     *httpapi.Authenticator
	alerter  *security.AuditAlerter
	trusted  *util.TrustedProxies
	router   *chi.Mux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:      cfg.App,
		verifier: cfg.Verifier,
		alerter:  cfg.Alerter,
		trusted:  cfg.Trusted,
		auth:     &httpapi.Authenticator{Verifier: cfg.Verifier, Trusted: cfg.Trusted},
	}
	s.router = httpapi.NewRouter(cfg.Base)
	s.routes(cfg)
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes(cfg Config) {
	clientIP := func(r *http.Request) string { return util.ClientIP(r, s.trusted) }
	limited := func(l ratelimit.Limiter, scope string) func(http.Handler) http.Handler {
		if l == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return ratelimit.Middleware(l, scope, time.Minute, clientIP)
	}

	s.router.Route("/api/auth", func(r chi.Router) {
		r.With(limited(cfg.SignupLimit, "auth.register")).Post("/register", s.handleRegister)
		r.With(limited(cfg.LoginLimit, "auth.login")).Post("/login", s.handleLogin)
		r.With(s.auth.Middleware).Post("/logout", s.handleLogout)
	})
	s.router.Route("/api/users", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Get("/me", s.handleMe)
		r.Get("/", s.handleListUsers)
		r.Get("/{id}", s.handleGetUser)
		r.Patch("/{id}", s.handleUpdateUser)
		r.Post("/{id}/password", s.handleChangePassword)
		r.Delete("/{id}", s.handleDeleteUser)
	})
}

func (s *Server) audit(r *http.Request, event, outcome string) {
	ip := util.ClientIP(r, s.trusted)
	httpapi.Audit(r, s.trusted, event, outcome).Msg("security_event")
	s.alerter.Record(r.Context(), event, outcome, ip)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var caller *domain.Principal
	if raw, ok := httpapi.BearerToken(r); ok {
		p, err := s.verifier.Verify(r.Context(), raw)
		if err != nil {
			s.audit(r, "auth.verify", "failure")
			httpapi.WriteError(w, r, apperr.New(apperr.Unauthenticated, "invalid credential"))
			return
		}
		caller = &p
	}
	var in app.RegisterInput
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	user, err := s.app.Register(r.Context(), caller, in)
	if err != nil {
		s.audit(r, "auth.register", "failure")
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.Audit(r, s.trusted, "auth.register", "success").
		Str("user_id", user.ID).
		Str("role", string(user.Role)).
		Msg("security_event")
	httpapi.WriteJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpapi.Decode(w, r, &req); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	session, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if apperr.Is(err, apperr.Unauthenticated) {
			s.audit(r, "auth.login", "failure")
		}
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.Audit(r, s.trusted, "auth.login", "success").Str("user_id", session.User.ID).Msg("security_event")
	httpapi.WriteJSON(w, http.StatusOK, session)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	raw, _ := httpapi.BearerToken(r)
	c, err := s.verifier.Parse(raw)
	if err != nil {
		httpapi.WriteError(w, r, apperr.New(apperr.Unauthenticated, "invalid credential"))
		return
	}
	if err := s.app.Logout(r.Context(), c); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.Audit(r, s.trusted, "auth.logout", "success").Msg("security_event")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := httpapi.PrincipalFrom(r.Context())
	user, err := s.app.Me(r.Context(), p)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, user)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	p, _ := httpapi.PrincipalFrom(r.Context())
	users, err := s.app.ListUsers(r.Context(), p, r.URL.Query().Get("role"))
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	p, _ := httpapi.PrincipalFrom(r.Context())
	user, err := s.app.GetUser(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	p, _ := httpapi.PrincipalFrom(r.Context())
	var in app.UpdateUserInput
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	user, err := s.app.UpdateUser(r.Context(), p, chi.URLParam(r, "id"), in)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	if in.Role != nil {
		httpapi.Audit(r, s.trusted, "user.role_change", "success").
			Str("user_id", user.ID).
			Str("role", string(user.Role)).
			Msg("security_event")
	}
	httpapi.WriteJSON(w, http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	p, _ := httpapi.PrincipalFrom(r.Context())
	var req changePasswordRequest
	if err := httpapi.Decode(w, r, &req); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	if err := s.app.ChangePassword(r.Context(), p, chi.URLParam(r, "id"), req.CurrentPassword, req.NewPassword); err != nil {
		s.audit(r, "auth.password.change", "failure")
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.Audit(r, s.trusted, "auth.password.change", "success").Msg("security_event")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	p, _ := httpapi.PrincipalFrom(r.Context())
	id := chi.URLParam(r, "id")
	if err := s.app.DeleteUser(r.Context(), p, id); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.Audit(r, s.trusted, "user.delete", "success").Str("user_id", id).Msg("security_event")
	w.WriteHeader(http.StatusNoContent)
}
