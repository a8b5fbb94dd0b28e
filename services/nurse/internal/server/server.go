package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"carelink/internal/httpapi"
	"carelink/internal/servicetoken"
	"carelink/internal/util"
	"carelink/pkg/apperr"
	"carelink/pkg/domain"
	"carelink/services/nurse/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App      *app.App
	Verifier httpapi.TokenVerifier
	Services *servicetoken.Verifier
	Trusted  *util.TrustedProxies
	Base     httpapi.BaseConfig
}

// Server exposes the nurse directory, tips and the peer lookup routes.
type Server struct {
	app      *app.App
	auth     *httpapi.Authenticator
	services *servicetoken.Verifier
	trusted  *util.TrustedProxies
	router   *chi.Mux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:      cfg.App,
		services: cfg.Services,
		trusted:  cfg.Trusted,
		auth: &httpapi.Authenticator{
			Verifier: cfg.Verifier,
			Resolver: cfg.App,
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
	s.router.Route("/api/nurses", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Get("/me", s.handleMe)
		r.Get("/by-user/{userId}", s.handleByUser)
		r.Get("/{id}", s.handleGet)
		r.Patch("/{id}", s.handleUpdate)
		r.Put("/{id}/availability", s.handleAvailability)
		r.Delete("/{id}", s.handleDelete)
	})
	s.router.Route("/api/tips", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Post("/", s.handleCreateTip)
		r.Get("/", s.handleListTips)
		r.Post("/{id}/read", s.handleMarkRead)
		r.Patch("/{id}", s.handleUpdateTip)
		r.Delete("/{id}", s.handleDeleteTip)
	})

	if s.services != nil {
		s.router.Route("/internal/nurses", func(r chi.Router) {
			r.Use(httpapi.RequireService(s.services, s.trusted))
			r.Get("/{id}", s.handleLookup)
			r.Get("/by-user/{userId}", s.handleLookupByUser)
		})
	}
}

func reply[T any](w http.ResponseWriter, r *http.Request, status int, v T, err error) {
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, status, v)
}

func principal(r *http.Request) domain.Principal {
	p, _ := httpapi.PrincipalFrom(r.Context())
	return p
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in app.NurseInput
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	n, err := s.app.CreateNurse(r.Context(), principal(r), in)
	reply(w, r, http.StatusCreated, n, err)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := app.NurseQuery{Specialization: r.URL.Query().Get("specialization")}
	if raw := strings.TrimSpace(r.URL.Query().Get("available")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httpapi.WriteError(w, r, apperr.New(apperr.Validation, "available must be true or false").With("field", "available"))
			return
		}
		q.Available = &v
	}
	nurses, err := s.app.ListNurses(r.Context(), principal(r), q)
	reply(w, r, http.StatusOK, map[string]any{"nurses": nurses, "count": len(nurses)}, err)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	n, err := s.app.MyNurse(r.Context(), principal(r))
	reply(w, r, http.StatusOK, n, err)
}

func (s *Server) handleByUser(w http.ResponseWriter, r *http.Request) {
	n, err := s.app.NurseByUser(r.Context(), principal(r), chi.URLParam(r, "userId"))
	reply(w, r, http.StatusOK, n, err)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	n, err := s.app.GetNurse(r.Context(), principal(r), chi.URLParam(r, "id"))
	reply(w, r, http.StatusOK, n, err)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var in app.NurseUpdate
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	n, err := s.app.UpdateNurse(r.Context(), principal(r), chi.URLParam(r, "id"), in)
	reply(w, r, http.StatusOK, n, err)
}

type availabilityRequest struct {
	IsAvailable *bool `json:"isAvailable"`
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	var in availabilityRequest
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	if in.IsAvailable == nil {
		httpapi.WriteError(w, r, apperr.New(apperr.Validation, "isAvailable is required").With("field", "isAvailable"))
		return
	}
	n, err := s.app.SetAvailability(r.Context(), principal(r), chi.URLParam(r, "id"), *in.IsAvailable)
	reply(w, r, http.StatusOK, n, err)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.app.DeleteNurse(r.Context(), principal(r), id); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.Audit(r, s.trusted, "nurse.delete", "success").Str("nurse_id", id).Msg("security_event")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateTip(w http.ResponseWriter, r *http.Request) {
	var in app.TipInput
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	tip, err := s.app.CreateTip(r.Context(), principal(r), in)
	reply(w, r, http.StatusCreated, tip, err)
}

func (s *Server) handleListTips(w http.ResponseWriter, r *http.Request) {
	from, to, err := httpapi.QueryRange(r)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	q := r.URL.Query()
	tips, err := s.app.ListTips(r.Context(), principal(r), app.TipQuery{
		PatientID: q.Get("patientId"),
		Category:  q.Get("category"),
		Unread:    httpapi.QueryBool(r, "unread"),
		From:      from,
		To:        to,
	})
	reply(w, r, http.StatusOK, map[string]any{"tips": tips, "count": len(tips)}, err)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	tip, err := s.app.MarkRead(r.Context(), principal(r), chi.URLParam(r, "id"))
	reply(w, r, http.StatusOK, tip, err)
}

func (s *Server) handleUpdateTip(w http.ResponseWriter, r *http.Request) {
	var in app.TipUpdate
	if err := httpapi.Decode(w, r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	tip, err := s.app.UpdateTip(r.Context(), principal(r), chi.URLParam(r, "id"), in)
	reply(w, r, http.StatusOK, tip, err)
}

func (s *Server) handleDeleteTip(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteTip(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	n, err := s.app.Lookup(r.Context(), chi.URLParam(r, "id"))
	reply(w, r, http.StatusOK, n, err)
}

func (s *Server) handleLookupByUser(w http.ResponseWriter, r *http.Request) {
	n, err := s.app.LookupByUser(r.Context(), chi.URLParam(r, "userId"))
	reply(w, r, http.StatusOK, n, err)
}
