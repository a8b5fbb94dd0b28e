package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"carelink/internal/httpapi"
	"carelink/internal/util"
	"carelink/pkg/apperr"
	"carelink/pkg/domain"
	"carelink/services/emergency/internal/lifecycle"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Engine   *lifecycle.Engine
	Verifier httpapi.TokenVerifier
	Resolver httpapi.ProfileResolver
	Trusted  *util.TrustedProxies
	Base     httpapi.BaseConfig
}

// Server exposes the alert endpoints.
type Server struct {
	engine  *lifecycle.Engine
	auth    *httpapi.Authenticator
	trusted *util.TrustedProxies
	router  *chi.Mux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		engine:  cfg.Engine,
		trusted: cfg.Trusted,
		auth: &httpapi.Authenticator{
			Verifier: cfg.Verifier,
			Resolver: cfg.Resolver,
			Trusted:  cfg.Trusted,
		},
	}
	s.router = httpapi.NewRouter(cfg.Base)
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Route("/api/alerts", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Delete("/{id}", s.handleDelete)
		r.Post("/{id}/{event}", s.handleTransition)
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, _ := httpapi.PrincipalFrom(r.Context())
	var in lifecycle.CreateInput
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	alert, err := s.engine.Create(r.Context(), p, in)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, alert)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	p, _ := httpapi.PrincipalFrom(r.Context())
	q, err := listQuery(r)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	alerts, err := s.engine.List(r.Context(), p, q)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func listQuery(r *http.Request) (lifecycle.ListQuery, error) {
	values := r.URL.Query()
	q := lifecycle.ListQuery{
		Severity:  domain.Severity(strings.ToUpper(strings.TrimSpace(values.Get("severity")))),
		PatientID: strings.TrimSpace(values.Get("patientId")),
		NurseID:   strings.TrimSpace(values.Get("nurseId")),
		Active:    httpapi.QueryBool(r, "active"),
		Unread:    httpapi.QueryBool(r, "unread"),
	}
	for _, raw := range values["status"] {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				q.Statuses = append(q.Statuses, domain.AlertStatus(strings.ToUpper(s)))
			}
		}
	}
	var err error
	if q.From, q.To, err = httpapi.QueryRange(r); err != nil {
		return q, err
	}
	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, apperr.New(apperr.Validation, "limit must be a non-negative integer").With("field", "limit")
		}
		q.Limit = n
	}
	return q, nil
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	p, _ := httpapi.PrincipalFrom(r.Context())
	alert, err := s.engine.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, alert)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	p, _ := httpapi.PrincipalFrom(r.Context())
	ev, ok := lifecycle.ParseEvent(chi.URLParam(r, "event"))
	if !ok {
		httpapi.NotFound(w, r)
		return
	}
	var in lifecycle.TransitionInput
	if err := httpapi.DecodeOptional(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	alert, err := s.engine.Transition(r.Context(), p, chi.URLParam(r, "id"), ev, in)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, alert)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	p, _ := httpapi.PrincipalFrom(r.Context())
	id := chi.URLParam(r, "id")
	alert, err := s.engine.HardDelete(r.Context(), p, id)
	if err != nil {
		if apperr.Is(err, apperr.Unauthorized) {
			httpapi.Audit(r, s.trusted, "alert.hard_delete", "denied").Str("alert_id", id).Msg("security_event")
		}
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.Audit(r, s.trusted, "alert.hard_delete", "success").
		Str("alert_id", alert.ID).
		Str("patient_id", alert.PatientID).
		Str("status", string(alert.Status)).
		Msg("security_event")
	w.WriteHeader(http.StatusNoContent)
}
